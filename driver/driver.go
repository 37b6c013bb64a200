/*
Package driver defines the boundary between vrx and a native compute API.

A Driver exposes the subset of Vulkan that a single compute dispatch needs:
instance and device discovery, memory, buffers and storage images,
descriptors, pipelines with push constants, command recording, queue
submission and fences. Handles are plain integers issued by the driver, flag
values are the Vulkan bit values.

Two implementations live below this package:

	driver/vulkan	native Vulkan through github.com/vulkan-go/vulkan
	driver/soft	a host-memory device which executes recorded commands on submit
*/
package driver

import "github.com/cockroachdb/errors"

// ErrFenceTimeout is returned by WaitForFences when the timeout elapsed
// before the fences were signaled.
var ErrFenceTimeout = errors.New("fence wait timed out")

// ErrUnknownHandle is returned when a driver is handed a handle it did not
// issue or one that was already destroyed.
var ErrUnknownHandle = errors.New("unknown handle")

type Driver interface {
	// Name identifies the implementation, e.g. "vulkan" or "soft".
	Name() string

	CreateInstance(info InstanceInfo) (Instance, error)
	DestroyInstance(instance Instance)
	EnumeratePhysicalDevices(instance Instance) ([]PhysicalDevice, error)

	PhysicalDeviceProperties(pd PhysicalDevice) PhysicalDeviceProperties
	QueueFamilyProperties(pd PhysicalDevice) []QueueFamilyProperties
	MemoryProperties(pd PhysicalDevice) MemoryProperties

	CreateDevice(pd PhysicalDevice, info DeviceInfo) (Device, error)
	DestroyDevice(device Device)
	DeviceWaitIdle(device Device) error
	GetQueue(device Device, family, index uint32) Queue

	QueueSubmit(queue Queue, buffers []CommandBuffer, fence Fence) error
	QueueWaitIdle(queue Queue) error

	CreateCommandPool(device Device, family uint32) (CommandPool, error)
	DestroyCommandPool(device Device, pool CommandPool)
	AllocateCommandBuffers(device Device, pool CommandPool, count int) ([]CommandBuffer, error)
	FreeCommandBuffers(device Device, pool CommandPool, buffers []CommandBuffer)

	BeginCommandBuffer(cb CommandBuffer, oneTime bool) error
	EndCommandBuffer(cb CommandBuffer) error
	ResetCommandBuffer(cb CommandBuffer) error
	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, regions []BufferCopy)
	CmdBindComputePipeline(cb CommandBuffer, pipeline Pipeline)
	CmdBindDescriptorSets(cb CommandBuffer, layout PipelineLayout, firstSet uint32, sets []DescriptorSet)
	CmdDispatch(cb CommandBuffer, x, y, z uint32)
	CmdPipelineBarrier(cb CommandBuffer, src, dst PipelineStageFlags, barriers []BufferMemoryBarrier)
	CmdImageBarrier(cb CommandBuffer, src, dst PipelineStageFlags, barriers []ImageMemoryBarrier)
	// CmdPushConstants updates len(data) bytes of push constant memory at
	// offset. Offset and length are multiples of 4.
	CmdPushConstants(cb CommandBuffer, layout PipelineLayout, stages ShaderStageFlags, offset uint32, data []byte)
	CmdCopyBufferToImage(cb CommandBuffer, src Buffer, dst Image, layout ImageLayout, regions []BufferImageCopy)
	CmdCopyImageToBuffer(cb CommandBuffer, src Image, layout ImageLayout, dst Buffer, regions []BufferImageCopy)

	CreateBuffer(device Device, info BufferInfo) (Buffer, error)
	DestroyBuffer(device Device, buffer Buffer)
	BufferMemoryRequirements(device Device, buffer Buffer) MemoryRequirements
	BindBufferMemory(device Device, buffer Buffer, memory DeviceMemory, offset uint64) error

	CreateImage(device Device, info ImageInfo) (Image, error)
	DestroyImage(device Device, image Image)
	ImageMemoryRequirements(device Device, image Image) MemoryRequirements
	BindImageMemory(device Device, image Image, memory DeviceMemory, offset uint64) error
	// CreateImageView creates a 2D color view of the whole image in its own
	// format.
	CreateImageView(device Device, image Image) (ImageView, error)
	DestroyImageView(device Device, view ImageView)

	AllocateMemory(device Device, size uint64, memoryTypeIndex uint32) (DeviceMemory, error)
	FreeMemory(device Device, memory DeviceMemory)
	// MapMemory returns a host view of size bytes starting at offset. The
	// slice is only valid until UnmapMemory.
	MapMemory(device Device, memory DeviceMemory, offset, size uint64) ([]byte, error)
	UnmapMemory(device Device, memory DeviceMemory)

	CreateDescriptorPool(device Device, maxSets uint32, sizes []DescriptorPoolSize) (DescriptorPool, error)
	DestroyDescriptorPool(device Device, pool DescriptorPool)
	CreateDescriptorSetLayout(device Device, bindings []DescriptorSetLayoutBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(device Device, layout DescriptorSetLayout)
	AllocateDescriptorSets(device Device, pool DescriptorPool, layouts []DescriptorSetLayout) ([]DescriptorSet, error)
	FreeDescriptorSets(device Device, pool DescriptorPool, sets []DescriptorSet) error
	UpdateDescriptorSets(device Device, writes []WriteDescriptorSet)

	CreateShaderModule(device Device, code []byte) (ShaderModule, error)
	DestroyShaderModule(device Device, module ShaderModule)
	CreatePipelineLayout(device Device, layouts []DescriptorSetLayout, pushConstants []PushConstantRange) (PipelineLayout, error)
	DestroyPipelineLayout(device Device, layout PipelineLayout)
	CreatePipelineCache(device Device) (PipelineCache, error)
	DestroyPipelineCache(device Device, cache PipelineCache)
	CreateComputePipeline(device Device, info ComputePipelineInfo) (Pipeline, error)
	DestroyPipeline(device Device, pipeline Pipeline)

	CreateFence(device Device, signaled bool) (Fence, error)
	DestroyFence(device Device, fence Fence)
	ResetFences(device Device, fences []Fence) error
	FenceSignaled(device Device, fence Fence) (bool, error)
	// WaitForFences blocks until the fences are signaled or timeout
	// nanoseconds elapse. WaitForever never times out.
	WaitForFences(device Device, fences []Fence, waitAll bool, timeout uint64) error
}
