package vrx

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/hyeonjang/vrx/driver"
)

// DeviceMemory maps to Vulkan DeviceMemory and can either be memory on the
// host or on the device.
type DeviceMemory struct {
	Device    *Device
	Handle    driver.DeviceMemory
	Size      uint64
	TypeIndex uint32
	Flags     driver.MemoryPropertyFlags
	MapCount  int32
}

// Allocate allocates sizeInBytes of the first memory type allowed by
// memoryTypeBits which has all of memoryProperties.
func (d *Device) Allocate(sizeInBytes uint64, memoryTypeBits uint32, memoryProperties driver.MemoryPropertyFlags) (*DeviceMemory, error) {
	typeIndex, err := d.PhysicalDevice.FindMemoryType(memoryTypeBits, memoryProperties)
	if err != nil {
		return nil, err
	}
	h, err := d.driver().AllocateMemory(d.Handle, sizeInBytes, typeIndex)
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d bytes of memory type %d", sizeInBytes, typeIndex)
	}
	d.logger.Debug("memory allocated",
		slog.Uint64("size", sizeInBytes),
		slog.Int("memoryType", int(typeIndex)),
		slog.String("properties", memoryProperties.String()))
	return &DeviceMemory{
		Device:    d,
		Handle:    h,
		Size:      sizeInBytes,
		TypeIndex: typeIndex,
		Flags:     d.PhysicalDevice.Memory.Types[typeIndex].PropertyFlags,
	}, nil
}

// AllocateForBuffer allocates memory sized and typed for b.
func (d *Device) AllocateForBuffer(b *Buffer, memoryProperties driver.MemoryPropertyFlags) (*DeviceMemory, error) {
	mr := b.MemoryRequirements()
	return d.Allocate(mr.Size, mr.MemoryTypeBits, memoryProperties)
}

// IsMapped returns true if the device memory is currently mapped
func (m *DeviceMemory) IsMapped() bool {
	return atomic.LoadInt32(&m.MapCount) > 0
}

func (m *DeviceMemory) IsHostVisible() bool {
	return m.Flags.Has(driver.MemoryPropertyHostVisible)
}

// Destroy frees this memory
func (m *DeviceMemory) Destroy() {
	m.Device.driver().FreeMemory(m.Device.Handle, m.Handle)
}

// MapWithOffset maps size bytes starting at offset. The slice is valid until
// Unmap.
func (m *DeviceMemory) MapWithOffset(size uint64, offset uint64) ([]byte, error) {
	if !m.IsHostVisible() {
		return nil, errors.Wrapf(ErrNotHostVisible, "memory type %d (%s)", m.TypeIndex, m.Flags)
	}
	if offset > m.Size || size > m.Size-offset {
		return nil, errors.Wrapf(ErrBufferOverflow, "map [%d, %d) of %d bytes", offset, offset+size, m.Size)
	}
	data, err := m.Device.driver().MapMemory(m.Device.Handle, m.Handle, offset, size)
	if err != nil {
		return nil, errors.Wrap(err, "map memory")
	}
	atomic.AddInt32(&m.MapCount, 1)
	return data, nil
}

// Map will map the entirety of this memory
func (m *DeviceMemory) Map() ([]byte, error) {
	return m.MapWithOffset(m.Size, 0)
}

// MapWithSize will map this memory starting at offset 0 with a particular size
func (m *DeviceMemory) MapWithSize(size int) ([]byte, error) {
	return m.MapWithOffset(uint64(size), 0)
}

// Unmap this memory
func (m *DeviceMemory) Unmap() {
	m.Device.driver().UnmapMemory(m.Device.Handle, m.Handle)
	atomic.AddInt32(&m.MapCount, -1)
}

// MapCopyUnmap will map this memory, copy the specified data to it and unmap
func (m *DeviceMemory) MapCopyUnmap(data []byte) error {
	out, err := m.MapWithSize(len(data))
	if err != nil {
		return err
	}
	copy(out, data)
	m.Unmap()
	return nil
}
