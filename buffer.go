package vrx

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/hyeonjang/vrx/driver"
)

const (
	// StorageUsage is the usage of buffers which are bound to a shader and
	// copied from or to.
	StorageUsage = driver.BufferUsageStorageBuffer | driver.BufferUsageTransferSrc | driver.BufferUsageTransferDst

	HostVisibleMemory = driver.MemoryPropertyHostVisible | driver.MemoryPropertyHostCoherent
	DeviceLocalMemory = driver.MemoryPropertyDeviceLocal
)

// Buffer are used to map hunks of data that are then bound to descriptor
// sets and copied between host and device.
type Buffer struct {
	Device *Device
	Handle driver.Buffer
	Size   uint64
	Usage  driver.BufferUsageFlags
	Memory *DeviceMemory
	// Offset of the buffer in Memory.
	Offset uint64

	pool       *BufferPool
	allocation *Allocation
}

// CreateBuffer creates a buffer, allocates memory of a type with all of
// memoryProperties for it and binds the two.
func (d *Device) CreateBuffer(sizeInBytes uint64, usage driver.BufferUsageFlags, memoryProperties driver.MemoryPropertyFlags) (*Buffer, error) {
	b, err := d.createUnboundBuffer(sizeInBytes, usage)
	if err != nil {
		return nil, err
	}
	mem, err := d.AllocateForBuffer(b, memoryProperties)
	if err != nil {
		b.destroyHandle()
		return nil, err
	}
	if err := b.Bind(mem, 0); err != nil {
		mem.Destroy()
		b.destroyHandle()
		return nil, err
	}
	d.logger.Debug("buffer created",
		slog.Uint64("size", sizeInBytes),
		slog.String("usage", usage.String()),
		slog.Int("memoryType", int(mem.TypeIndex)))
	return b, nil
}

// CreateHostBuffer creates a host visible, coherent storage buffer.
func (d *Device) CreateHostBuffer(sizeInBytes uint64) (*Buffer, error) {
	return d.CreateBuffer(sizeInBytes, StorageUsage, HostVisibleMemory)
}

// CreateDeviceBuffer creates a device local storage buffer.
func (d *Device) CreateDeviceBuffer(sizeInBytes uint64) (*Buffer, error) {
	return d.CreateBuffer(sizeInBytes, StorageUsage, DeviceLocalMemory)
}

func (d *Device) createUnboundBuffer(sizeInBytes uint64, usage driver.BufferUsageFlags) (*Buffer, error) {
	if sizeInBytes == 0 {
		return nil, errors.Wrap(ErrInvalidCount, "buffer size")
	}
	h, err := d.driver().CreateBuffer(d.Handle, driver.BufferInfo{Size: sizeInBytes, Usage: usage})
	if err != nil {
		return nil, errors.Wrapf(err, "create buffer of %d bytes", sizeInBytes)
	}
	return &Buffer{Device: d, Handle: h, Size: sizeInBytes, Usage: usage}, nil
}

func (b *Buffer) MemoryRequirements() driver.MemoryRequirements {
	return b.Device.driver().BufferMemoryRequirements(b.Device.Handle, b.Handle)
}

func (b *Buffer) Bind(memory *DeviceMemory, offset uint64) error {
	if err := b.Device.driver().BindBufferMemory(b.Device.Handle, b.Handle, memory.Handle, offset); err != nil {
		return errors.Wrap(err, "bind buffer memory")
	}
	b.Memory = memory
	b.Offset = offset
	return nil
}

// Write copies data to the start of the buffer through a host mapping.
func (b *Buffer) Write(data []byte) error {
	return b.WriteAt(data, 0)
}

func (b *Buffer) WriteAt(data []byte, offset uint64) error {
	if offset > b.Size || uint64(len(data)) > b.Size-offset {
		return errors.Wrapf(ErrBufferOverflow, "%d bytes at offset %d into %d", len(data), offset, b.Size)
	}
	if len(data) == 0 {
		return nil
	}
	out, err := b.mapRange(offset, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(out, data)
	b.Memory.Unmap()
	return nil
}

// Read copies the start of the buffer into dst and returns the number of
// bytes copied.
func (b *Buffer) Read(dst []byte) (int, error) {
	n := min(uint64(len(dst)), b.Size)
	if n == 0 {
		return 0, nil
	}
	in, err := b.mapRange(0, n)
	if err != nil {
		return 0, err
	}
	copy(dst, in)
	b.Memory.Unmap()
	return int(n), nil
}

// Bytes returns a copy of the buffer contents.
func (b *Buffer) Bytes() ([]byte, error) {
	out := make([]byte, b.Size)
	if _, err := b.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Buffer) mapRange(offset, size uint64) ([]byte, error) {
	if b.Memory == nil {
		return nil, errors.New("buffer has no memory bound")
	}
	return b.Memory.MapWithOffset(size, b.Offset+offset)
}

// DescriptorInfo describes rng bytes of b from offset for a descriptor write,
// a zero rng means up to the end of the buffer.
func (b *Buffer) DescriptorInfo(offset, rng uint64) driver.DescriptorBufferInfo {
	if rng == 0 {
		rng = driver.WholeSize
	}
	return driver.DescriptorBufferInfo{Buffer: b.Handle, Offset: offset, Range: rng}
}

// Barrier returns a whole buffer memory barrier for b with no queue family
// ownership transfer.
func (b *Buffer) Barrier(src, dst driver.AccessFlags) driver.BufferMemoryBarrier {
	return driver.BufferMemoryBarrier{
		SrcAccess: src,
		DstAccess: dst,
		SrcQueue:  driver.QueueFamilyIgnored,
		DstQueue:  driver.QueueFamilyIgnored,
		Buffer:    b.Handle,
		Offset:    0,
		Size:      driver.WholeSize,
	}
}

func (b *Buffer) destroyHandle() {
	b.Device.driver().DestroyBuffer(b.Device.Handle, b.Handle)
}

// Destroy releases the buffer and its memory. A pooled buffer hands its
// range back to the pool instead of freeing memory. Destroying twice is a
// no-op.
func (b *Buffer) Destroy() {
	if b.Handle == 0 {
		return
	}
	b.destroyHandle()
	b.Handle = 0
	if b.pool != nil {
		b.pool.release(b)
		return
	}
	if b.Memory != nil {
		b.Memory.Destroy()
		b.Memory = nil
	}
}
