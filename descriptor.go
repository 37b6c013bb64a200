package vrx

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/hyeonjang/vrx/driver"
)

// Descriptor owns a pool and count descriptor set layouts, each with a
// single binding 0, plus one set allocated per layout. Set i is bound as set
// number i by a pipeline built from the Descriptor.
type Descriptor struct {
	Device  *Device
	Type    driver.DescriptorType
	Pool    *DescriptorPool
	layouts []*DescriptorSetLayout
	sets    []*DescriptorSet
}

// NewDescriptor creates count storage buffer descriptors.
func (d *Device) NewDescriptor(count int) (*Descriptor, error) {
	return d.NewDescriptorWithOptions(count, driver.DescriptorTypeStorageBuffer)
}

func (d *Device) NewDescriptorWithOptions(count int, dtype driver.DescriptorType) (_ *Descriptor, err error) {
	if count <= 0 {
		return nil, errors.Wrapf(ErrInvalidCount, "descriptor count %d", count)
	}
	desc := &Descriptor{Device: d, Type: dtype}
	defer func() {
		if err != nil {
			desc.Destroy()
		}
	}()

	pool := d.NewDescriptorPool()
	pool.AddPoolSize(dtype, count)
	if desc.Pool, err = d.CreateDescriptorPool(pool, count); err != nil {
		return nil, err
	}

	for i := 0; i < count; i++ {
		l := d.NewDescriptorSetLayout()
		l.AddBinding(0, dtype, 1)
		if _, err = d.CreateDescriptorSetLayout(l); err != nil {
			return nil, errors.Wrapf(err, "layout %d", i)
		}
		desc.layouts = append(desc.layouts, l)
	}

	if desc.sets, err = desc.Pool.Allocate(desc.layouts...); err != nil {
		return nil, err
	}

	d.logger.Debug("descriptor created", slog.Int("count", count), slog.Int("type", int(dtype)))
	return desc, nil
}

// Count returns the number of layouts, which is also the number of sets.
func (desc *Descriptor) Count() int {
	return len(desc.layouts)
}

func (desc *Descriptor) Layouts() []*DescriptorSetLayout {
	return desc.layouts
}

func (desc *Descriptor) Sets() []*DescriptorSet {
	return desc.sets
}

func (desc *Descriptor) LayoutHandles() []driver.DescriptorSetLayout {
	ret := make([]driver.DescriptorSetLayout, len(desc.layouts))
	for i, l := range desc.layouts {
		ret[i] = l.Handle
	}
	return ret
}

func (desc *Descriptor) SetHandles() []driver.DescriptorSet {
	ret := make([]driver.DescriptorSet, len(desc.sets))
	for i, s := range desc.sets {
		ret[i] = s.Handle
	}
	return ret
}

func (desc *Descriptor) set(index int) (*DescriptorSet, error) {
	if index < 0 || index >= len(desc.sets) {
		return nil, errors.Wrapf(ErrDescriptorIndex, "index %d of %d", index, len(desc.sets))
	}
	return desc.sets[index], nil
}

// UpdateBuffer points set index at rng bytes of b from offset. A zero rng
// covers the rest of the buffer.
func (desc *Descriptor) UpdateBuffer(index int, b *Buffer, offset, rng uint64) error {
	s, err := desc.set(index)
	if err != nil {
		return err
	}
	if offset >= b.Size || (rng != 0 && rng > b.Size-offset) {
		return errors.Wrapf(ErrBufferOverflow, "descriptor range [%d, +%d) of %d bytes", offset, rng, b.Size)
	}
	s.AddBuffer(0, desc.Type, b, offset, rng)
	return s.Write()
}

// UpdateImage points set index at view, which the shader accesses in
// layout. Only storage and sampled image descriptors accept it.
func (desc *Descriptor) UpdateImage(index int, view *ImageView, layout driver.ImageLayout) error {
	s, err := desc.set(index)
	if err != nil {
		return err
	}
	switch desc.Type {
	case driver.DescriptorTypeSampledImage, driver.DescriptorTypeStorageImage:
	default:
		return errors.Newf("descriptor type %d does not take images", desc.Type)
	}
	if view == nil || view.Handle == 0 {
		return errors.New("image view is destroyed")
	}
	s.AddImage(0, desc.Type, view.DescriptorInfo(layout))
	return s.Write()
}

// Destroy frees the sets, the layouts and the pool.
func (desc *Descriptor) Destroy() {
	if desc.Pool != nil && desc.Pool.Handle != 0 {
		if err := desc.Pool.Free(desc.sets...); err != nil {
			desc.Device.logger.Warn("free descriptor sets", slog.Any("error", err))
		}
	}
	desc.sets = nil
	for _, l := range desc.layouts {
		l.Destroy()
	}
	desc.layouts = nil
	if desc.Pool != nil && desc.Pool.Handle != 0 {
		desc.Pool.Destroy()
	}
	desc.Pool = nil
}
