package vrx

import (
	"github.com/cockroachdb/errors"

	"github.com/hyeonjang/vrx/driver"
)

// DescriptorPool hands out descriptor sets. Sets can be freed one by one.
type DescriptorPool struct {
	Device  *Device
	Handle  driver.DescriptorPool
	Sizes   []driver.DescriptorPoolSize
	MaxSets int
}

func (d *Device) NewDescriptorPool() *DescriptorPool {
	return &DescriptorPool{Device: d}
}

// AddPoolSize informs the descriptor pool how many of a certain descriptor
// type it will contain
func (p *DescriptorPool) AddPoolSize(dtype driver.DescriptorType, count int) {
	p.Sizes = append(p.Sizes, driver.DescriptorPoolSize{Type: dtype, Count: uint32(count)})
}

// CreateDescriptorPool creates the descriptor pool
func (d *Device) CreateDescriptorPool(pool *DescriptorPool, maxSets int) (*DescriptorPool, error) {
	if maxSets <= 0 {
		return nil, errors.Wrapf(ErrInvalidCount, "descriptor pool of %d sets", maxSets)
	}
	h, err := d.driver().CreateDescriptorPool(d.Handle, uint32(maxSets), pool.Sizes)
	if err != nil {
		return nil, errors.Wrap(err, "create descriptor pool")
	}
	pool.Device = d
	pool.Handle = h
	pool.MaxSets = maxSets
	return pool, nil
}

// Allocate allocates one descriptor set per layout.
func (p *DescriptorPool) Allocate(layouts ...*DescriptorSetLayout) ([]*DescriptorSet, error) {
	handles := make([]driver.DescriptorSetLayout, len(layouts))
	for i, l := range layouts {
		handles[i] = l.Handle
	}
	sets, err := p.Device.driver().AllocateDescriptorSets(p.Device.Handle, p.Handle, handles)
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d descriptor sets", len(layouts))
	}
	ret := make([]*DescriptorSet, len(sets))
	for i, s := range sets {
		ret[i] = &DescriptorSet{Device: p.Device, Pool: p, Layout: layouts[i], Handle: s}
	}
	return ret, nil
}

func (p *DescriptorPool) Free(sets ...*DescriptorSet) error {
	if len(sets) == 0 {
		return nil
	}
	handles := make([]driver.DescriptorSet, len(sets))
	for i, s := range sets {
		handles[i] = s.Handle
	}
	return errors.Wrap(p.Device.driver().FreeDescriptorSets(p.Device.Handle, p.Handle, handles), "free descriptor sets")
}

func (p *DescriptorPool) Destroy() {
	p.Device.driver().DestroyDescriptorPool(p.Device.Handle, p.Handle)
}
