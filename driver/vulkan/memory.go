package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/hyeonjang/vrx/driver"
)

func (d *Driver) CreateBuffer(h driver.Device, info driver.BufferInfo) (driver.Buffer, error) {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return 0, err
	}
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       vk.BufferUsageFlags(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := check(vk.CreateBuffer(dev.vk, &bufferCreateInfo, nil, &buffer), "vkCreateBuffer"); err != nil {
		return 0, err
	}
	return driver.Buffer(d.put(buffer)), nil
}

func (d *Driver) DestroyBuffer(h driver.Device, b driver.Buffer) {
	dev, ok := must[*device](d, uint64(h), "vkDestroyBuffer")
	if !ok {
		return
	}
	buffer, ok := must[vk.Buffer](d, uint64(b), "vkDestroyBuffer")
	if !ok {
		return
	}
	vk.DestroyBuffer(dev.vk, buffer, nil)
	d.remove(uint64(b))
}

func (d *Driver) BufferMemoryRequirements(h driver.Device, b driver.Buffer) driver.MemoryRequirements {
	dev, ok := must[*device](d, uint64(h), "vkGetBufferMemoryRequirements")
	if !ok {
		return driver.MemoryRequirements{}
	}
	buffer, ok := must[vk.Buffer](d, uint64(b), "vkGetBufferMemoryRequirements")
	if !ok {
		return driver.MemoryRequirements{}
	}
	var mr vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dev.vk, buffer, &mr)
	mr.Deref()
	return driver.MemoryRequirements{
		Size:           uint64(mr.Size),
		Alignment:      uint64(mr.Alignment),
		MemoryTypeBits: mr.MemoryTypeBits,
	}
}

func (d *Driver) BindBufferMemory(h driver.Device, b driver.Buffer, m driver.DeviceMemory, offset uint64) error {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return err
	}
	buffer, err := get[vk.Buffer](d, uint64(b))
	if err != nil {
		return err
	}
	mem, err := get[vk.DeviceMemory](d, uint64(m))
	if err != nil {
		return err
	}
	return check(vk.BindBufferMemory(dev.vk, buffer, mem, vk.DeviceSize(offset)), "vkBindBufferMemory")
}

func (d *Driver) AllocateMemory(h driver.Device, size uint64, typeIndex uint32) (driver.DeviceMemory, error) {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return 0, err
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}
	var deviceMemory vk.DeviceMemory
	if err := check(vk.AllocateMemory(dev.vk, &allocateInfo, nil, &deviceMemory), "vkAllocateMemory"); err != nil {
		return 0, err
	}
	return driver.DeviceMemory(d.put(deviceMemory)), nil
}

func (d *Driver) FreeMemory(h driver.Device, m driver.DeviceMemory) {
	dev, ok := must[*device](d, uint64(h), "vkFreeMemory")
	if !ok {
		return
	}
	mem, ok := must[vk.DeviceMemory](d, uint64(m), "vkFreeMemory")
	if !ok {
		return
	}
	vk.FreeMemory(dev.vk, mem, nil)
	d.remove(uint64(m))
}

func (d *Driver) MapMemory(h driver.Device, m driver.DeviceMemory, offset, size uint64) ([]byte, error) {
	if size == driver.WholeSize {
		return nil, errors.New("mapping the whole size needs an explicit length on the host side")
	}
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return nil, err
	}
	mem, err := get[vk.DeviceMemory](d, uint64(m))
	if err != nil {
		return nil, err
	}
	var ptr unsafe.Pointer
	if err := check(vk.MapMemory(dev.vk, mem, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &ptr), "vkMapMemory"); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}

func (d *Driver) UnmapMemory(h driver.Device, m driver.DeviceMemory) {
	dev, ok := must[*device](d, uint64(h), "vkUnmapMemory")
	if !ok {
		return
	}
	mem, ok := must[vk.DeviceMemory](d, uint64(m), "vkUnmapMemory")
	if !ok {
		return
	}
	vk.UnmapMemory(dev.vk, mem)
}
