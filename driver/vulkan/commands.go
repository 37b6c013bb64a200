package vulkan

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/hyeonjang/vrx/driver"
)

type commandPool struct {
	vk     vk.CommandPool
	device *device
}

func (d *Driver) CreateCommandPool(h driver.Device, family uint32) (driver.CommandPool, error) {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return 0, err
	}
	commandPoolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := check(vk.CreateCommandPool(dev.vk, &commandPoolCreateInfo, nil, &pool), "vkCreateCommandPool"); err != nil {
		return 0, err
	}
	return driver.CommandPool(d.put(&commandPool{vk: pool, device: dev})), nil
}

func (d *Driver) DestroyCommandPool(h driver.Device, p driver.CommandPool) {
	dev, ok := must[*device](d, uint64(h), "vkDestroyCommandPool")
	if !ok {
		return
	}
	pool, ok := must[*commandPool](d, uint64(p), "vkDestroyCommandPool")
	if !ok {
		return
	}
	vk.DestroyCommandPool(dev.vk, pool.vk, nil)
	d.remove(uint64(p))
}

func (d *Driver) AllocateCommandBuffers(h driver.Device, p driver.CommandPool, count int) ([]driver.CommandBuffer, error) {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return nil, err
	}
	pool, err := get[*commandPool](d, uint64(p))
	if err != nil {
		return nil, err
	}
	commandBufferAllocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool.vk,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}
	commandBuffers := make([]vk.CommandBuffer, count)
	if err := check(vk.AllocateCommandBuffers(dev.vk, &commandBufferAllocateInfo, commandBuffers), "vkAllocateCommandBuffers"); err != nil {
		return nil, err
	}
	ret := make([]driver.CommandBuffer, count)
	for i, cb := range commandBuffers {
		ret[i] = driver.CommandBuffer(d.put(cb))
	}
	return ret, nil
}

func (d *Driver) FreeCommandBuffers(h driver.Device, p driver.CommandPool, buffers []driver.CommandBuffer) {
	dev, ok := must[*device](d, uint64(h), "vkFreeCommandBuffers")
	if !ok {
		return
	}
	pool, ok := must[*commandPool](d, uint64(p), "vkFreeCommandBuffers")
	if !ok {
		return
	}
	b := make([]vk.CommandBuffer, 0, len(buffers))
	for _, cb := range buffers {
		if c, ok := must[vk.CommandBuffer](d, uint64(cb), "vkFreeCommandBuffers"); ok {
			b = append(b, c)
			d.remove(uint64(cb))
		}
	}
	if len(b) > 0 {
		vk.FreeCommandBuffers(dev.vk, pool.vk, uint32(len(b)), b)
	}
}

func (d *Driver) BeginCommandBuffer(h driver.CommandBuffer, oneTime bool) error {
	cb, err := get[vk.CommandBuffer](d, uint64(h))
	if err != nil {
		return err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTime {
		beginInfo.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return check(vk.BeginCommandBuffer(cb, &beginInfo), "vkBeginCommandBuffer")
}

func (d *Driver) EndCommandBuffer(h driver.CommandBuffer) error {
	cb, err := get[vk.CommandBuffer](d, uint64(h))
	if err != nil {
		return err
	}
	return check(vk.EndCommandBuffer(cb), "vkEndCommandBuffer")
}

func (d *Driver) ResetCommandBuffer(h driver.CommandBuffer) error {
	cb, err := get[vk.CommandBuffer](d, uint64(h))
	if err != nil {
		return err
	}
	return check(vk.ResetCommandBuffer(cb, 0), "vkResetCommandBuffer")
}

func (d *Driver) CmdCopyBuffer(h driver.CommandBuffer, src, dst driver.Buffer, regions []driver.BufferCopy) {
	cb, ok := must[vk.CommandBuffer](d, uint64(h), "vkCmdCopyBuffer")
	if !ok {
		return
	}
	s, ok := must[vk.Buffer](d, uint64(src), "vkCmdCopyBuffer")
	if !ok {
		return
	}
	t, ok := must[vk.Buffer](d, uint64(dst), "vkCmdCopyBuffer")
	if !ok {
		return
	}
	r := make([]vk.BufferCopy, len(regions))
	for i, region := range regions {
		r[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(region.SrcOffset),
			DstOffset: vk.DeviceSize(region.DstOffset),
			Size:      vk.DeviceSize(region.Size),
		}
	}
	vk.CmdCopyBuffer(cb, s, t, uint32(len(r)), r)
}

func (d *Driver) CmdBindComputePipeline(h driver.CommandBuffer, p driver.Pipeline) {
	cb, ok := must[vk.CommandBuffer](d, uint64(h), "vkCmdBindPipeline")
	if !ok {
		return
	}
	pipeline, ok := must[vk.Pipeline](d, uint64(p), "vkCmdBindPipeline")
	if !ok {
		return
	}
	vk.CmdBindPipeline(cb, vk.PipelineBindPointCompute, pipeline)
}

func (d *Driver) CmdBindDescriptorSets(h driver.CommandBuffer, l driver.PipelineLayout, firstSet uint32, sets []driver.DescriptorSet) {
	cb, ok := must[vk.CommandBuffer](d, uint64(h), "vkCmdBindDescriptorSets")
	if !ok {
		return
	}
	layout, ok := must[vk.PipelineLayout](d, uint64(l), "vkCmdBindDescriptorSets")
	if !ok {
		return
	}
	s := make([]vk.DescriptorSet, len(sets))
	for i, set := range sets {
		if s[i], ok = must[vk.DescriptorSet](d, uint64(set), "vkCmdBindDescriptorSets"); !ok {
			return
		}
	}
	vk.CmdBindDescriptorSets(cb, vk.PipelineBindPointCompute, layout, firstSet, uint32(len(s)), s, 0, nil)
}

func (d *Driver) CmdDispatch(h driver.CommandBuffer, x, y, z uint32) {
	cb, ok := must[vk.CommandBuffer](d, uint64(h), "vkCmdDispatch")
	if !ok {
		return
	}
	vk.CmdDispatch(cb, x, y, z)
}

func (d *Driver) CmdPipelineBarrier(h driver.CommandBuffer, src, dst driver.PipelineStageFlags, barriers []driver.BufferMemoryBarrier) {
	cb, ok := must[vk.CommandBuffer](d, uint64(h), "vkCmdPipelineBarrier")
	if !ok {
		return
	}
	b := make([]vk.BufferMemoryBarrier, len(barriers))
	for i, barrier := range barriers {
		buffer, ok := must[vk.Buffer](d, uint64(barrier.Buffer), "vkCmdPipelineBarrier")
		if !ok {
			return
		}
		b[i] = vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(barrier.SrcAccess),
			DstAccessMask:       vk.AccessFlags(barrier.DstAccess),
			SrcQueueFamilyIndex: barrier.SrcQueue,
			DstQueueFamilyIndex: barrier.DstQueue,
			Buffer:              buffer,
			Offset:              vk.DeviceSize(barrier.Offset),
			Size:                vk.DeviceSize(barrier.Size),
		}
	}
	vk.CmdPipelineBarrier(cb, vk.PipelineStageFlags(src), vk.PipelineStageFlags(dst), 0,
		0, nil, uint32(len(b)), b, 0, nil)
}

func (d *Driver) CmdPushConstants(h driver.CommandBuffer, l driver.PipelineLayout, stages driver.ShaderStageFlags, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	cb, ok := must[vk.CommandBuffer](d, uint64(h), "vkCmdPushConstants")
	if !ok {
		return
	}
	layout, ok := must[vk.PipelineLayout](d, uint64(l), "vkCmdPushConstants")
	if !ok {
		return
	}
	vk.CmdPushConstants(cb, layout, vk.ShaderStageFlags(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}
