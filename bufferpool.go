package vrx

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/hyeonjang/vrx/driver"
)

// BufferPool sub-allocates buffers out of a single memory block.
type BufferPool struct {
	Device           *Device
	Name             string
	Usage            driver.BufferUsageFlags
	MemoryProperties driver.MemoryPropertyFlags
	Size             uint64
	Allocator        Allocator
	Memory           *DeviceMemory
	buffers          map[*Buffer]struct{}
}

// NewBufferPool allocates size bytes of memory for buffers of the given
// usage. The memory type is chosen from the requirements of a scratch buffer
// of the full pool size.
func (d *Device) NewBufferPool(name string, size uint64, usage driver.BufferUsageFlags, memoryProperties driver.MemoryPropertyFlags) (*BufferPool, error) {
	scratch, err := d.createUnboundBuffer(size, usage)
	if err != nil {
		return nil, errors.Wrapf(err, "pool %s", name)
	}
	mr := scratch.MemoryRequirements()
	scratch.destroyHandle()

	memory, err := d.Allocate(max(size, mr.Size), mr.MemoryTypeBits, memoryProperties)
	if err != nil {
		return nil, errors.Wrapf(err, "pool %s", name)
	}

	return &BufferPool{
		Device:           d,
		Name:             name,
		Usage:            usage,
		MemoryProperties: memoryProperties,
		Size:             memory.Size,
		Allocator:        &LinearAllocator{Size: memory.Size},
		Memory:           memory,
		buffers:          make(map[*Buffer]struct{}),
	}, nil
}

// AllocateBuffer creates a buffer of size bytes placed in the pool's memory.
func (p *BufferPool) AllocateBuffer(size uint64) (*Buffer, error) {
	if p.Memory == nil {
		return nil, errors.Newf("pool %s is destroyed", p.Name)
	}
	b, err := p.Device.createUnboundBuffer(size, p.Usage)
	if err != nil {
		return nil, err
	}

	mr := b.MemoryRequirements()
	allocation := p.Allocator.Allocate(mr.Size, mr.Alignment)
	if allocation == nil {
		b.destroyHandle()
		return nil, errors.Wrapf(ErrPoolExhausted, "pool %s: %d bytes", p.Name, size)
	}

	if err := b.Bind(p.Memory, allocation.Offset); err != nil {
		p.Allocator.Free(allocation)
		b.destroyHandle()
		return nil, err
	}
	b.pool = p
	b.allocation = allocation
	p.buffers[b] = struct{}{}

	p.Device.logger.Debug("pool buffer allocated",
		slog.String("pool", p.Name),
		slog.Uint64("offset", allocation.Offset),
		slog.Uint64("size", allocation.Size))
	return b, nil
}

func (p *BufferPool) release(b *Buffer) {
	if b.allocation != nil {
		p.Allocator.Free(b.allocation)
		b.allocation = nil
	}
	delete(p.buffers, b)
	b.pool = nil
	b.Memory = nil
}

// Len returns the number of live buffers in the pool.
func (p *BufferPool) Len() int {
	return len(p.buffers)
}

func (p *BufferPool) LogDetails() {
	attrs := []any{
		slog.String("pool", p.Name),
		slog.Uint64("size", p.Size),
		slog.String("usage", p.Usage.String()),
		slog.Int("buffers", len(p.buffers)),
	}
	if la, ok := p.Allocator.(*LinearAllocator); ok {
		attrs = append(attrs, slog.Uint64("used", la.Used()), slog.String("allocations", la.String()))
	}
	p.Device.logger.Info("buffer pool", attrs...)
}

// Destroy destroys the buffers still in the pool and frees its memory.
func (p *BufferPool) Destroy() {
	for b := range p.buffers {
		b.Destroy()
	}
	if p.Memory != nil {
		p.Memory.Destroy()
		p.Memory = nil
	}
}
