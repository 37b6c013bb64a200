package vrx

import (
	"github.com/cockroachdb/errors"

	"github.com/hyeonjang/vrx/driver"
)

// DescriptorSet is a binding of resources to a descriptor, per a specific
// DescriptorSetLayout. Writes are queued with the Add methods and applied by
// Write.
type DescriptorSet struct {
	Device *Device
	Pool   *DescriptorPool
	Layout *DescriptorSetLayout
	Handle driver.DescriptorSet
	writes []driver.WriteDescriptorSet
}

// AddBuffer queues a write of rng bytes of b from offset to binding.
func (s *DescriptorSet) AddBuffer(binding int, dtype driver.DescriptorType, b *Buffer, offset, rng uint64) {
	s.writes = append(s.writes, driver.WriteDescriptorSet{
		Binding:    uint32(binding),
		Type:       dtype,
		BufferInfo: []driver.DescriptorBufferInfo{b.DescriptorInfo(offset, rng)},
	})
}

// AddImage queues a write of an image view and its layout to binding.
func (s *DescriptorSet) AddImage(binding int, dtype driver.DescriptorType, info driver.DescriptorImageInfo) {
	s.writes = append(s.writes, driver.WriteDescriptorSet{
		Binding:   uint32(binding),
		Type:      dtype,
		ImageInfo: []driver.DescriptorImageInfo{info},
	})
}

// Write applies the queued writes. Writes to a binding the layout does not
// have, or with another descriptor type, are rejected before reaching the
// driver.
func (s *DescriptorSet) Write() error {
	writes := s.writes
	s.writes = nil
	for i := range writes {
		w := &writes[i]
		if s.Layout != nil {
			b, ok := s.Layout.Binding(int(w.Binding))
			if !ok {
				return errors.Newf("descriptor set has no binding %d", w.Binding)
			}
			if b.Type != w.Type {
				return errors.Newf("binding %d holds descriptor type %d, not %d", w.Binding, b.Type, w.Type)
			}
		}
		w.Set = s.Handle
	}
	if len(writes) > 0 {
		s.Device.driver().UpdateDescriptorSets(s.Device.Handle, writes)
	}
	return nil
}
