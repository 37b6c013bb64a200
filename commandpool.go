package vrx

import (
	"github.com/cockroachdb/errors"

	"github.com/hyeonjang/vrx/driver"
)

type CommandPool struct {
	Device      *Device
	QueueFamily *QueueFamily
	Handle      driver.CommandPool
}

// CreateCommandPool creates a pool whose buffers can be reset one by one.
func (d *Device) CreateCommandPool(q *QueueFamily) (*CommandPool, error) {
	h, err := d.driver().CreateCommandPool(d.Handle, uint32(q.Index))
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}
	return &CommandPool{Device: d, QueueFamily: q, Handle: h}, nil
}

func (c *CommandPool) Destroy() {
	c.Device.driver().DestroyCommandPool(c.Device.Handle, c.Handle)
}

func (c *CommandPool) AllocateBuffers(count int) ([]*CommandBuffer, error) {
	if count <= 0 {
		return nil, errors.Wrapf(ErrInvalidCount, "command buffers %d", count)
	}
	cbs, err := c.Device.driver().AllocateCommandBuffers(c.Device.Handle, c.Handle, count)
	if err != nil {
		return nil, errors.Wrap(err, "allocate command buffers")
	}
	ret := make([]*CommandBuffer, count)
	for i := range ret {
		ret[i] = &CommandBuffer{Pool: c, Handle: cbs[i]}
	}
	return ret, nil
}

func (c *CommandPool) AllocateBuffer() (*CommandBuffer, error) {
	ret, err := c.AllocateBuffers(1)
	if err != nil {
		return nil, err
	}
	return ret[0], nil
}

func (c *CommandPool) FreeBuffers(bs []*CommandBuffer) {
	c.Device.driver().FreeCommandBuffers(c.Device.Handle, c.Handle, handles(bs))
}

func (c *CommandPool) FreeBuffer(b *CommandBuffer) {
	c.FreeBuffers([]*CommandBuffer{b})
}
