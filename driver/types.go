package driver

import "fmt"

// Handles are opaque identifiers issued by a Driver. The zero value is the
// null handle for every kind.
type (
	Instance            uint64
	PhysicalDevice      uint64
	Device              uint64
	Queue               uint64
	CommandPool         uint64
	CommandBuffer       uint64
	Buffer              uint64
	DeviceMemory        uint64
	DescriptorPool      uint64
	DescriptorSetLayout uint64
	DescriptorSet       uint64
	ShaderModule        uint64
	PipelineLayout      uint64
	PipelineCache       uint64
	Pipeline            uint64
	Fence               uint64
	Image               uint64
	ImageView           uint64
)

// WholeSize matches VK_WHOLE_SIZE.
const WholeSize = ^uint64(0)

// QueueFamilyIgnored matches VK_QUEUE_FAMILY_IGNORED.
const QueueFamilyIgnored = ^uint32(0)

// WaitForever is the unbounded timeout sentinel for fence waits.
const WaitForever = ^uint64(0)

// The flag values below are bit-for-bit the Vulkan ones so that the vulkan
// driver can convert without lookup tables.

type QueueFlags uint32

const (
	QueueGraphics      QueueFlags = 0x1
	QueueCompute       QueueFlags = 0x2
	QueueTransfer      QueueFlags = 0x4
	QueueSparseBinding QueueFlags = 0x8
)

func (q QueueFlags) Has(f QueueFlags) bool {
	return q&f == f
}

func (q QueueFlags) String() string {
	return flagString(uint32(q), []flagName{
		{uint32(QueueGraphics), "Graphics"},
		{uint32(QueueCompute), "Compute"},
		{uint32(QueueTransfer), "Transfer"},
		{uint32(QueueSparseBinding), "SparseBinding"},
	})
}

type MemoryPropertyFlags uint32

const (
	MemoryPropertyDeviceLocal     MemoryPropertyFlags = 0x1
	MemoryPropertyHostVisible     MemoryPropertyFlags = 0x2
	MemoryPropertyHostCoherent    MemoryPropertyFlags = 0x4
	MemoryPropertyHostCached      MemoryPropertyFlags = 0x8
	MemoryPropertyLazilyAllocated MemoryPropertyFlags = 0x10
	MemoryPropertyProtected       MemoryPropertyFlags = 0x20
)

func (m MemoryPropertyFlags) Has(f MemoryPropertyFlags) bool {
	return m&f == f
}

func (m MemoryPropertyFlags) String() string {
	return flagString(uint32(m), []flagName{
		{uint32(MemoryPropertyDeviceLocal), "DeviceLocal"},
		{uint32(MemoryPropertyHostVisible), "HostVisible"},
		{uint32(MemoryPropertyHostCoherent), "HostCoherent"},
		{uint32(MemoryPropertyHostCached), "HostCached"},
		{uint32(MemoryPropertyLazilyAllocated), "LazilyAllocated"},
		{uint32(MemoryPropertyProtected), "Protected"},
	})
}

type MemoryHeapFlags uint32

const (
	MemoryHeapDeviceLocal   MemoryHeapFlags = 0x1
	MemoryHeapMultiInstance MemoryHeapFlags = 0x2
)

func (m MemoryHeapFlags) String() string {
	return flagString(uint32(m), []flagName{
		{uint32(MemoryHeapDeviceLocal), "DeviceLocal"},
		{uint32(MemoryHeapMultiInstance), "MultiInstance"},
	})
}

type BufferUsageFlags uint32

const (
	BufferUsageTransferSrc   BufferUsageFlags = 0x1
	BufferUsageTransferDst   BufferUsageFlags = 0x2
	BufferUsageUniformBuffer BufferUsageFlags = 0x10
	BufferUsageStorageBuffer BufferUsageFlags = 0x20
	BufferUsageIndexBuffer   BufferUsageFlags = 0x40
	BufferUsageVertexBuffer  BufferUsageFlags = 0x80
	BufferUsageIndirect      BufferUsageFlags = 0x100
)

func (b BufferUsageFlags) String() string {
	return flagString(uint32(b), []flagName{
		{uint32(BufferUsageTransferSrc), "TransferSrc"},
		{uint32(BufferUsageTransferDst), "TransferDst"},
		{uint32(BufferUsageUniformBuffer), "UniformBuffer"},
		{uint32(BufferUsageStorageBuffer), "StorageBuffer"},
		{uint32(BufferUsageIndexBuffer), "IndexBuffer"},
		{uint32(BufferUsageVertexBuffer), "VertexBuffer"},
		{uint32(BufferUsageIndirect), "Indirect"},
	})
}

type AccessFlags uint32

const (
	AccessIndirectCommandRead AccessFlags = 0x1
	AccessUniformRead         AccessFlags = 0x8
	AccessShaderRead          AccessFlags = 0x20
	AccessShaderWrite         AccessFlags = 0x40
	AccessTransferRead        AccessFlags = 0x800
	AccessTransferWrite       AccessFlags = 0x1000
	AccessHostRead            AccessFlags = 0x2000
	AccessHostWrite           AccessFlags = 0x4000
	AccessMemoryRead          AccessFlags = 0x8000
	AccessMemoryWrite         AccessFlags = 0x10000
)

func (a AccessFlags) String() string {
	return flagString(uint32(a), []flagName{
		{uint32(AccessIndirectCommandRead), "IndirectCommandRead"},
		{uint32(AccessUniformRead), "UniformRead"},
		{uint32(AccessShaderRead), "ShaderRead"},
		{uint32(AccessShaderWrite), "ShaderWrite"},
		{uint32(AccessTransferRead), "TransferRead"},
		{uint32(AccessTransferWrite), "TransferWrite"},
		{uint32(AccessHostRead), "HostRead"},
		{uint32(AccessHostWrite), "HostWrite"},
		{uint32(AccessMemoryRead), "MemoryRead"},
		{uint32(AccessMemoryWrite), "MemoryWrite"},
	})
}

type PipelineStageFlags uint32

const (
	PipelineStageTopOfPipe     PipelineStageFlags = 0x1
	PipelineStageDrawIndirect  PipelineStageFlags = 0x2
	PipelineStageComputeShader PipelineStageFlags = 0x800
	PipelineStageTransfer      PipelineStageFlags = 0x1000
	PipelineStageBottomOfPipe  PipelineStageFlags = 0x2000
	PipelineStageHost          PipelineStageFlags = 0x4000
	PipelineStageAllCommands   PipelineStageFlags = 0x10000
)

func (p PipelineStageFlags) String() string {
	return flagString(uint32(p), []flagName{
		{uint32(PipelineStageTopOfPipe), "TopOfPipe"},
		{uint32(PipelineStageDrawIndirect), "DrawIndirect"},
		{uint32(PipelineStageComputeShader), "ComputeShader"},
		{uint32(PipelineStageTransfer), "Transfer"},
		{uint32(PipelineStageBottomOfPipe), "BottomOfPipe"},
		{uint32(PipelineStageHost), "Host"},
		{uint32(PipelineStageAllCommands), "AllCommands"},
	})
}

type DescriptorType uint32

const (
	DescriptorTypeSampler              DescriptorType = 0
	DescriptorTypeCombinedImageSampler DescriptorType = 1
	DescriptorTypeSampledImage         DescriptorType = 2
	DescriptorTypeStorageImage         DescriptorType = 3
	DescriptorTypeUniformBuffer        DescriptorType = 6
	DescriptorTypeStorageBuffer        DescriptorType = 7
)

type ShaderStageFlags uint32

const ShaderStageCompute ShaderStageFlags = 0x20

// Format matches VkFormat for the single plane color formats images are
// created with.
type Format uint32

const (
	FormatUndefined     Format = 0
	FormatR8G8B8A8Unorm Format = 37
	FormatR32Uint       Format = 98
	FormatR32Sint       Format = 99
	FormatR32Sfloat     Format = 100
)

// TexelSize is the size of one texel in bytes, 0 for unsupported formats.
func (f Format) TexelSize() uint64 {
	switch f {
	case FormatR8G8B8A8Unorm, FormatR32Uint, FormatR32Sint, FormatR32Sfloat:
		return 4
	}
	return 0
}

func (f Format) String() string {
	switch f {
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8Unorm"
	case FormatR32Uint:
		return "R32Uint"
	case FormatR32Sint:
		return "R32Sint"
	case FormatR32Sfloat:
		return "R32Sfloat"
	}
	return fmt.Sprintf("Format(%d)", uint32(f))
}

type ImageUsageFlags uint32

const (
	ImageUsageTransferSrc ImageUsageFlags = 0x1
	ImageUsageTransferDst ImageUsageFlags = 0x2
	ImageUsageSampled     ImageUsageFlags = 0x4
	ImageUsageStorage     ImageUsageFlags = 0x8
)

func (u ImageUsageFlags) Has(f ImageUsageFlags) bool {
	return u&f == f
}

func (u ImageUsageFlags) String() string {
	return flagString(uint32(u), []flagName{
		{uint32(ImageUsageTransferSrc), "TransferSrc"},
		{uint32(ImageUsageTransferDst), "TransferDst"},
		{uint32(ImageUsageSampled), "Sampled"},
		{uint32(ImageUsageStorage), "Storage"},
	})
}

// ImageLayout matches VkImageLayout for the layouts a compute binding uses.
type ImageLayout uint32

const (
	ImageLayoutUndefined             ImageLayout = 0
	ImageLayoutGeneral               ImageLayout = 1
	ImageLayoutShaderReadOnlyOptimal ImageLayout = 5
	ImageLayoutTransferSrcOptimal    ImageLayout = 6
	ImageLayoutTransferDstOptimal    ImageLayout = 7
)

func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutUndefined:
		return "Undefined"
	case ImageLayoutGeneral:
		return "General"
	case ImageLayoutShaderReadOnlyOptimal:
		return "ShaderReadOnlyOptimal"
	case ImageLayoutTransferSrcOptimal:
		return "TransferSrcOptimal"
	case ImageLayoutTransferDstOptimal:
		return "TransferDstOptimal"
	}
	return fmt.Sprintf("ImageLayout(%d)", uint32(l))
}

type PhysicalDeviceType uint32

const (
	PhysicalDeviceTypeOther         PhysicalDeviceType = 0
	PhysicalDeviceTypeIntegratedGPU PhysicalDeviceType = 1
	PhysicalDeviceTypeDiscreteGPU   PhysicalDeviceType = 2
	PhysicalDeviceTypeVirtualGPU    PhysicalDeviceType = 3
	PhysicalDeviceTypeCPU           PhysicalDeviceType = 4
)

func (t PhysicalDeviceType) String() string {
	switch t {
	case PhysicalDeviceTypeIntegratedGPU:
		return "IntegratedGPU"
	case PhysicalDeviceTypeDiscreteGPU:
		return "DiscreteGPU"
	case PhysicalDeviceTypeVirtualGPU:
		return "VirtualGPU"
	case PhysicalDeviceTypeCPU:
		return "CPU"
	}
	return "Other"
}

// Version is a Vulkan packed version split in its parts.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Packed returns the VK_MAKE_VERSION encoding.
func (v Version) Packed() uint32 {
	return uint32(v.Major)<<22 | uint32(v.Minor)<<12 | uint32(v.Patch)
}

func UnpackVersion(v uint32) Version {
	return Version{Major: int(v >> 22), Minor: int(v>>12) & 0x3ff, Patch: int(v & 0xfff)}
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

type InstanceInfo struct {
	ApplicationName    string
	ApplicationVersion Version
	EngineName         string
	EngineVersion      Version
	APIVersion         Version
	EnabledLayers      []string
	EnabledExtensions  []string
}

type PhysicalDeviceProperties struct {
	Name       string
	Type       PhysicalDeviceType
	APIVersion Version
	VendorID   uint32
	DeviceID   uint32
}

type QueueFamilyProperties struct {
	Flags QueueFlags
	Count uint32
}

type MemoryType struct {
	PropertyFlags MemoryPropertyFlags
	HeapIndex     uint32
}

type MemoryHeap struct {
	Size  uint64
	Flags MemoryHeapFlags
}

type MemoryProperties struct {
	Types []MemoryType
	Heaps []MemoryHeap
}

type MemoryRequirements struct {
	Size           uint64
	Alignment      uint64
	MemoryTypeBits uint32
}

type DeviceInfo struct {
	QueueFamilyIndex  uint32
	QueuePriorities   []float32
	EnabledExtensions []string
}

type BufferInfo struct {
	Size  uint64
	Usage BufferUsageFlags
}

// ImageInfo describes a 2D image with one mip level and one array layer,
// optimal tiling and exclusive sharing.
type ImageInfo struct {
	Width  uint32
	Height uint32
	Format Format
	Usage  ImageUsageFlags
}

// BufferImageCopy copies a Width x Height texel region at the image origin
// from or to tightly packed buffer memory at BufferOffset.
type BufferImageCopy struct {
	BufferOffset uint64
	Width        uint32
	Height       uint32
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type BufferMemoryBarrier struct {
	SrcAccess AccessFlags
	DstAccess AccessFlags
	SrcQueue  uint32
	DstQueue  uint32
	Buffer    Buffer
	Offset    uint64
	Size      uint64
}

// ImageMemoryBarrier covers the single color subresource of Image.
type ImageMemoryBarrier struct {
	SrcAccess AccessFlags
	DstAccess AccessFlags
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcQueue  uint32
	DstQueue  uint32
	Image     Image
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorSetLayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStageFlags
}

type DescriptorBufferInfo struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

type DescriptorImageInfo struct {
	ImageView ImageView
	Layout    ImageLayout
}

// WriteDescriptorSet carries either BufferInfo or ImageInfo, matching Type.
type WriteDescriptorSet struct {
	Set        DescriptorSet
	Binding    uint32
	Type       DescriptorType
	BufferInfo []DescriptorBufferInfo
	ImageInfo  []DescriptorImageInfo
}

type PushConstantRange struct {
	Stages ShaderStageFlags
	Offset uint32
	Size   uint32
}

type ComputePipelineInfo struct {
	Layout     PipelineLayout
	Shader     ShaderModule
	EntryPoint string
	Cache      PipelineCache
}

type flagName struct {
	bit  uint32
	name string
}

func flagString(v uint32, names []flagName) string {
	s := ""
	for _, n := range names {
		if v&n.bit != 0 {
			s += n.name + "|"
		}
	}
	if len(s) > 0 {
		s = s[:len(s)-1]
	}
	return s + fmt.Sprintf(" (%x)", v)
}
