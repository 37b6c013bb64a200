package soft

import (
	"encoding/binary"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyeonjang/vrx/driver"
)

type fixture struct {
	drv    *Driver
	inst   driver.Instance
	dev    driver.Device
	queue  driver.Queue
	pool   driver.CommandPool
	family uint32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, DefaultConfig())
}

func newFixtureWith(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{drv: New(cfg), family: 2}
	var err error
	f.inst, err = f.drv.CreateInstance(driver.InstanceInfo{ApplicationName: "test"})
	require.NoError(t, err)
	pds, err := f.drv.EnumeratePhysicalDevices(f.inst)
	require.NoError(t, err)
	require.Len(t, pds, 1)
	f.dev, err = f.drv.CreateDevice(pds[0], driver.DeviceInfo{QueueFamilyIndex: f.family, QueuePriorities: []float32{1}})
	require.NoError(t, err)
	f.queue = f.drv.GetQueue(f.dev, f.family, 0)
	require.NotZero(t, f.queue)
	f.pool, err = f.drv.CreateCommandPool(f.dev, f.family)
	require.NoError(t, err)
	return f
}

// buffer creates a buffer bound to fresh memory of the given type.
func (f *fixture) buffer(t *testing.T, size uint64, typeIndex uint32) (driver.Buffer, driver.DeviceMemory) {
	t.Helper()
	b, err := f.drv.CreateBuffer(f.dev, driver.BufferInfo{Size: size, Usage: driver.BufferUsageStorageBuffer})
	require.NoError(t, err)
	req := f.drv.BufferMemoryRequirements(f.dev, b)
	m, err := f.drv.AllocateMemory(f.dev, req.Size, typeIndex)
	require.NoError(t, err)
	require.NoError(t, f.drv.BindBufferMemory(f.dev, b, m, 0))
	return b, m
}

func (f *fixture) commandBuffer(t *testing.T) driver.CommandBuffer {
	t.Helper()
	cbs, err := f.drv.AllocateCommandBuffers(f.dev, f.pool, 1)
	require.NoError(t, err)
	return cbs[0]
}

func TestEnumerate(t *testing.T) {
	f := newFixture(t)
	pds, err := f.drv.EnumeratePhysicalDevices(f.inst)
	require.NoError(t, err)

	props := f.drv.PhysicalDeviceProperties(pds[0])
	assert.Equal(t, "vrx soft device", props.Name)
	assert.Equal(t, driver.PhysicalDeviceTypeCPU, props.Type)

	families := f.drv.QueueFamilyProperties(pds[0])
	require.Len(t, families, 3)
	assert.True(t, families[2].Flags.Has(driver.QueueCompute))
	assert.False(t, families[1].Flags.Has(driver.QueueCompute))

	mem := f.drv.MemoryProperties(pds[0])
	assert.Len(t, mem.Types, 4)
	assert.Len(t, mem.Heaps, 2)
}

func TestCreateDeviceValidation(t *testing.T) {
	drv := New(DefaultConfig())
	inst, err := drv.CreateInstance(driver.InstanceInfo{})
	require.NoError(t, err)
	pds, err := drv.EnumeratePhysicalDevices(inst)
	require.NoError(t, err)

	_, err = drv.CreateDevice(pds[0], driver.DeviceInfo{QueueFamilyIndex: 7, QueuePriorities: []float32{1}})
	assert.Error(t, err)
	_, err = drv.CreateDevice(pds[0], driver.DeviceInfo{QueueFamilyIndex: 0})
	assert.Error(t, err)
	_, err = drv.CreateDevice(pds[0], driver.DeviceInfo{QueueFamilyIndex: 0, QueuePriorities: []float32{1, 1}})
	assert.Error(t, err, "family 0 only has one queue")
}

func TestMapRules(t *testing.T) {
	f := newFixture(t)

	_, local := f.buffer(t, 64, 0)
	_, err := f.drv.MapMemory(f.dev, local, 0, 64)
	assert.Error(t, err, "device local memory is not host visible")

	_, host := f.buffer(t, 64, 1)
	data, err := f.drv.MapMemory(f.dev, host, 0, driver.WholeSize)
	require.NoError(t, err)
	assert.Len(t, data, 64)

	_, err = f.drv.MapMemory(f.dev, host, 0, 16)
	assert.Error(t, err, "double map")

	f.drv.UnmapMemory(f.dev, host)
	_, err = f.drv.MapMemory(f.dev, host, 60, 8)
	assert.Error(t, err, "range past the allocation")
}

func TestBindChecks(t *testing.T) {
	cfg := DefaultConfig()
	desc := DefaultDevice()
	desc.RequirementBits = 0b0010
	cfg.Devices = []DeviceDesc{desc}
	drv := New(cfg)
	inst, err := drv.CreateInstance(driver.InstanceInfo{})
	require.NoError(t, err)
	pds, err := drv.EnumeratePhysicalDevices(inst)
	require.NoError(t, err)
	dev, err := drv.CreateDevice(pds[0], driver.DeviceInfo{QueueFamilyIndex: 0, QueuePriorities: []float32{1}})
	require.NoError(t, err)

	b, err := drv.CreateBuffer(dev, driver.BufferInfo{Size: 10})
	require.NoError(t, err)
	req := drv.BufferMemoryRequirements(dev, b)
	assert.Equal(t, uint64(16), req.Size)
	assert.Equal(t, uint32(0b0010), req.MemoryTypeBits)

	wrongType, err := drv.AllocateMemory(dev, 64, 0)
	require.NoError(t, err)
	assert.Error(t, drv.BindBufferMemory(dev, b, wrongType, 0))

	mem, err := drv.AllocateMemory(dev, 64, 1)
	require.NoError(t, err)
	assert.Error(t, drv.BindBufferMemory(dev, b, mem, 8), "unaligned offset")
	assert.Error(t, drv.BindBufferMemory(dev, b, mem, 64), "past the end")
	require.NoError(t, drv.BindBufferMemory(dev, b, mem, 48))
	assert.Error(t, drv.BindBufferMemory(dev, b, mem, 0), "already bound")
}

func TestRecordingState(t *testing.T) {
	f := newFixture(t)
	src, _ := f.buffer(t, 16, 1)
	dst, _ := f.buffer(t, 16, 1)
	cb := f.commandBuffer(t)

	f.drv.CmdCopyBuffer(cb, src, dst, []driver.BufferCopy{{Size: 16}})
	assert.Empty(t, f.drv.Commands(cb))

	require.NoError(t, f.drv.BeginCommandBuffer(cb, false))
	assert.Error(t, f.drv.BeginCommandBuffer(cb, false), "already recording")
	f.drv.CmdCopyBuffer(cb, src, dst, []driver.BufferCopy{{Size: 16}})
	require.NoError(t, f.drv.EndCommandBuffer(cb))
	assert.Error(t, f.drv.EndCommandBuffer(cb), "not recording")

	cmds := f.drv.Commands(cb)
	require.Len(t, cmds, 1)
	assert.Equal(t, OpCopyBuffer, cmds[0].Op)

	require.NoError(t, f.drv.ResetCommandBuffer(cb))
	assert.Empty(t, f.drv.Commands(cb))
	assert.Error(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, 0), "reset buffer is not executable")
}

func TestFenceRules(t *testing.T) {
	f := newFixture(t)
	src, _ := f.buffer(t, 16, 1)
	dst, _ := f.buffer(t, 16, 1)
	cb := f.commandBuffer(t)
	require.NoError(t, f.drv.BeginCommandBuffer(cb, false))
	f.drv.CmdCopyBuffer(cb, src, dst, []driver.BufferCopy{{Size: 16}})
	require.NoError(t, f.drv.EndCommandBuffer(cb))

	fence, err := f.drv.CreateFence(f.dev, true)
	require.NoError(t, err)
	signaled, err := f.drv.FenceSignaled(f.dev, fence)
	require.NoError(t, err)
	assert.True(t, signaled)

	assert.Error(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, fence), "signaled fence")

	require.NoError(t, f.drv.ResetFences(f.dev, []driver.Fence{fence}))
	err = f.drv.WaitForFences(f.dev, []driver.Fence{fence}, true, 1000)
	assert.True(t, errors.Is(err, driver.ErrFenceTimeout))
	assert.Error(t, f.drv.WaitForFences(f.dev, []driver.Fence{fence}, true, driver.WaitForever))

	require.NoError(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, fence))
	require.NoError(t, f.drv.WaitForFences(f.dev, []driver.Fence{fence}, true, driver.WaitForever))

	// Stays signaled until reset.
	signaled, err = f.drv.FenceSignaled(f.dev, fence)
	require.NoError(t, err)
	assert.True(t, signaled)
	require.NoError(t, f.drv.WaitForFences(f.dev, []driver.Fence{fence}, true, 0))

	f.drv.DestroyFence(f.dev, fence)
	_, err = f.drv.FenceSignaled(f.dev, fence)
	assert.True(t, errors.Is(err, driver.ErrUnknownHandle))
}

func TestOneTimeSubmit(t *testing.T) {
	f := newFixture(t)
	src, _ := f.buffer(t, 16, 1)
	dst, _ := f.buffer(t, 16, 1)
	cb := f.commandBuffer(t)
	require.NoError(t, f.drv.BeginCommandBuffer(cb, true))
	f.drv.CmdCopyBuffer(cb, src, dst, []driver.BufferCopy{{Size: 16}})
	require.NoError(t, f.drv.EndCommandBuffer(cb))

	require.NoError(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, 0))
	assert.Error(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, 0))
}

func TestDescriptorPoolLimits(t *testing.T) {
	f := newFixture(t)
	pool, err := f.drv.CreateDescriptorPool(f.dev, 2, []driver.DescriptorPoolSize{{Type: driver.DescriptorTypeStorageBuffer, Count: 2}})
	require.NoError(t, err)

	binding := []driver.DescriptorSetLayoutBinding{{Binding: 0, Type: driver.DescriptorTypeStorageBuffer, Count: 1, Stages: driver.ShaderStageCompute}}
	layout, err := f.drv.CreateDescriptorSetLayout(f.dev, binding)
	require.NoError(t, err)

	_, err = f.drv.CreateDescriptorSetLayout(f.dev, append(binding, binding[0]))
	assert.Error(t, err, "duplicate binding")

	sets, err := f.drv.AllocateDescriptorSets(f.dev, pool, []driver.DescriptorSetLayout{layout, layout})
	require.NoError(t, err)
	require.Len(t, sets, 2)

	_, err = f.drv.AllocateDescriptorSets(f.dev, pool, []driver.DescriptorSetLayout{layout})
	assert.Error(t, err, "maxSets reached")

	require.NoError(t, f.drv.FreeDescriptorSets(f.dev, pool, sets[:1]))
	again, err := f.drv.AllocateDescriptorSets(f.dev, pool, []driver.DescriptorSetLayout{layout})
	require.NoError(t, err)
	assert.Len(t, again, 1)
}

func TestDescriptorWriteMatchesLayout(t *testing.T) {
	f := newFixture(t)
	buf, _ := f.buffer(t, 32, 1)
	pool, err := f.drv.CreateDescriptorPool(f.dev, 1, []driver.DescriptorPoolSize{{Type: driver.DescriptorTypeStorageBuffer, Count: 1}})
	require.NoError(t, err)
	layout, err := f.drv.CreateDescriptorSetLayout(f.dev, []driver.DescriptorSetLayoutBinding{{Binding: 0, Type: driver.DescriptorTypeStorageBuffer, Count: 1}})
	require.NoError(t, err)
	sets, err := f.drv.AllocateDescriptorSets(f.dev, pool, []driver.DescriptorSetLayout{layout})
	require.NoError(t, err)

	f.drv.UpdateDescriptorSets(f.dev, []driver.WriteDescriptorSet{{
		Set: sets[0], Binding: 0, Type: driver.DescriptorTypeUniformBuffer,
		BufferInfo: []driver.DescriptorBufferInfo{{Buffer: buf, Range: driver.WholeSize}},
	}})
	assert.Empty(t, f.drv.BoundBuffers(sets[0], 0), "type mismatch is ignored")

	f.drv.UpdateDescriptorSets(f.dev, []driver.WriteDescriptorSet{{
		Set: sets[0], Binding: 0, Type: driver.DescriptorTypeStorageBuffer,
		BufferInfo: []driver.DescriptorBufferInfo{{Buffer: buf, Range: driver.WholeSize}},
	}})
	assert.Equal(t, []driver.DescriptorBufferInfo{{Buffer: buf, Range: driver.WholeSize}}, f.drv.BoundBuffers(sets[0], 0))
}

func TestDispatch(t *testing.T) {
	f := newFixture(t)
	f.drv.RegisterKernel("double", DoubleUint32)

	const n = 8
	buf, mem := f.buffer(t, n*4, 1)
	data, err := f.drv.MapMemory(f.dev, mem, 0, n*4)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(data[i*4:], uint32(i))
	}
	f.drv.UnmapMemory(f.dev, mem)

	pool, err := f.drv.CreateDescriptorPool(f.dev, 1, []driver.DescriptorPoolSize{{Type: driver.DescriptorTypeStorageBuffer, Count: 1}})
	require.NoError(t, err)
	layout, err := f.drv.CreateDescriptorSetLayout(f.dev, []driver.DescriptorSetLayoutBinding{{Binding: 0, Type: driver.DescriptorTypeStorageBuffer, Count: 1}})
	require.NoError(t, err)
	sets, err := f.drv.AllocateDescriptorSets(f.dev, pool, []driver.DescriptorSetLayout{layout})
	require.NoError(t, err)
	f.drv.UpdateDescriptorSets(f.dev, []driver.WriteDescriptorSet{{
		Set: sets[0], Binding: 0, Type: driver.DescriptorTypeStorageBuffer,
		BufferInfo: []driver.DescriptorBufferInfo{{Buffer: buf, Range: driver.WholeSize}},
	}})

	pl, err := f.drv.CreatePipelineLayout(f.dev, []driver.DescriptorSetLayout{layout}, nil)
	require.NoError(t, err)
	shader, err := f.drv.CreateShaderModule(f.dev, make([]byte, 8))
	require.NoError(t, err)
	_, err = f.drv.CreateShaderModule(f.dev, make([]byte, 6))
	assert.Error(t, err)
	_, err = f.drv.CreateComputePipeline(f.dev, driver.ComputePipelineInfo{Layout: pl, Shader: shader, EntryPoint: "missing"})
	assert.Error(t, err)
	p, err := f.drv.CreateComputePipeline(f.dev, driver.ComputePipelineInfo{Layout: pl, Shader: shader, EntryPoint: "double"})
	require.NoError(t, err)

	cb := f.commandBuffer(t)
	require.NoError(t, f.drv.BeginCommandBuffer(cb, false))
	f.drv.CmdDispatch(cb, 4, 1, 1)
	require.NoError(t, f.drv.EndCommandBuffer(cb))
	assert.Error(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, 0), "no pipeline bound")

	require.NoError(t, f.drv.BeginCommandBuffer(cb, false))
	f.drv.CmdBindComputePipeline(cb, p)
	f.drv.CmdBindDescriptorSets(cb, pl, 0, sets)
	f.drv.CmdDispatch(cb, 4, 1, 1)
	require.NoError(t, f.drv.EndCommandBuffer(cb))
	require.NoError(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, 0))

	data, err = f.drv.MapMemory(f.dev, mem, 0, n*4)
	require.NoError(t, err)
	defer f.drv.UnmapMemory(f.dev, mem)
	for i := 0; i < n; i++ {
		want := uint32(i)
		if i < 4 {
			want *= 2
		}
		assert.Equal(t, want, binary.LittleEndian.Uint32(data[i*4:]), "element %d", i)
	}
}

func TestCopyBounds(t *testing.T) {
	f := newFixture(t)
	src, _ := f.buffer(t, 16, 1)
	dst, _ := f.buffer(t, 8, 1)
	cb := f.commandBuffer(t)
	require.NoError(t, f.drv.BeginCommandBuffer(cb, false))
	f.drv.CmdCopyBuffer(cb, src, dst, []driver.BufferCopy{{Size: 16}})
	require.NoError(t, f.drv.EndCommandBuffer(cb))
	assert.Error(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, 0))
}

func TestLive(t *testing.T) {
	f := newFixture(t)
	before := f.drv.Live()
	b, m := f.buffer(t, 16, 1)
	assert.Equal(t, before+2, f.drv.Live())
	f.drv.DestroyBuffer(f.dev, b)
	f.drv.FreeMemory(f.dev, m)
	assert.Equal(t, before, f.drv.Live())
}

func (f *fixture) copyCommand(t *testing.T) driver.CommandBuffer {
	t.Helper()
	src, _ := f.buffer(t, 16, 1)
	dst, _ := f.buffer(t, 16, 1)
	cb := f.commandBuffer(t)
	require.NoError(t, f.drv.BeginCommandBuffer(cb, false))
	f.drv.CmdCopyBuffer(cb, src, dst, []driver.BufferCopy{{Size: 16}})
	require.NoError(t, f.drv.EndCommandBuffer(cb))
	return cb
}

func deferredFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DeferCompletion = true
	return newFixtureWith(t, cfg)
}

func TestDeferredCompletion(t *testing.T) {
	f := deferredFixture(t)
	cb := f.copyCommand(t)
	fence, err := f.drv.CreateFence(f.dev, false)
	require.NoError(t, err)

	require.NoError(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, fence))
	assert.True(t, errors.Is(f.drv.WaitForFences(f.dev, []driver.Fence{fence}, true, 1000), driver.ErrFenceTimeout))
	assert.Error(t, f.drv.BeginCommandBuffer(cb, false), "pending buffer cannot be recorded")
	assert.Error(t, f.drv.ResetFences(f.dev, []driver.Fence{fence}), "pending fence cannot be reset")
	assert.Error(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, 0), "pending buffer is not executable")

	require.NoError(t, f.drv.QueueWaitIdle(f.queue))
	signaled, err := f.drv.FenceSignaled(f.dev, fence)
	require.NoError(t, err)
	assert.True(t, signaled)
	require.NoError(t, f.drv.BeginCommandBuffer(cb, false))

	f.drv.DestroyFence(f.dev, fence)
	f.drv.FreeCommandBuffers(f.dev, f.pool, []driver.CommandBuffer{cb})
	assert.Empty(t, f.drv.ValidationErrors())
}

func TestDeferredWaitForever(t *testing.T) {
	f := deferredFixture(t)
	cb := f.copyCommand(t)
	fence, err := f.drv.CreateFence(f.dev, false)
	require.NoError(t, err)

	require.NoError(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, fence))
	require.NoError(t, f.drv.WaitForFences(f.dev, []driver.Fence{fence}, true, driver.WaitForever))
	require.NoError(t, f.drv.ResetFences(f.dev, []driver.Fence{fence}))
	require.NoError(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, fence), "completed buffer is executable again")
}

func TestDestroyWhilePending(t *testing.T) {
	f := deferredFixture(t)
	cb := f.copyCommand(t)
	fence, err := f.drv.CreateFence(f.dev, false)
	require.NoError(t, err)
	require.NoError(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, fence))

	f.drv.DestroyFence(f.dev, fence)
	require.Len(t, f.drv.ValidationErrors(), 1)
	f.drv.FreeCommandBuffers(f.dev, f.pool, []driver.CommandBuffer{cb})
	require.Len(t, f.drv.ValidationErrors(), 2)

	// The forgotten fence is not signaled by the drain.
	require.NoError(t, f.drv.DeviceWaitIdle(f.dev))
	assert.Len(t, f.drv.ValidationErrors(), 2)
}

func TestPushConstantRanges(t *testing.T) {
	f := newFixture(t)
	_, err := f.drv.CreatePipelineLayout(f.dev, nil, []driver.PushConstantRange{{Stages: driver.ShaderStageCompute, Size: 6}})
	assert.Error(t, err, "size not a multiple of 4")
	_, err = f.drv.CreatePipelineLayout(f.dev, nil, []driver.PushConstantRange{{Stages: driver.ShaderStageCompute}})
	assert.Error(t, err, "empty range")
	_, err = f.drv.CreatePipelineLayout(f.dev, nil, []driver.PushConstantRange{{Size: 4}})
	assert.Error(t, err, "no stages")

	f.drv.RegisterKernel("add", AddUint32)
	buf, mem := f.buffer(t, 16, 1)
	pool, err := f.drv.CreateDescriptorPool(f.dev, 1, []driver.DescriptorPoolSize{{Type: driver.DescriptorTypeStorageBuffer, Count: 1}})
	require.NoError(t, err)
	layout, err := f.drv.CreateDescriptorSetLayout(f.dev, []driver.DescriptorSetLayoutBinding{{Binding: 0, Type: driver.DescriptorTypeStorageBuffer, Count: 1}})
	require.NoError(t, err)
	sets, err := f.drv.AllocateDescriptorSets(f.dev, pool, []driver.DescriptorSetLayout{layout})
	require.NoError(t, err)
	f.drv.UpdateDescriptorSets(f.dev, []driver.WriteDescriptorSet{{
		Set: sets[0], Binding: 0, Type: driver.DescriptorTypeStorageBuffer,
		BufferInfo: []driver.DescriptorBufferInfo{{Buffer: buf, Range: driver.WholeSize}},
	}})
	pl, err := f.drv.CreatePipelineLayout(f.dev, []driver.DescriptorSetLayout{layout},
		[]driver.PushConstantRange{{Stages: driver.ShaderStageCompute, Size: 4}})
	require.NoError(t, err)
	shader, err := f.drv.CreateShaderModule(f.dev, make([]byte, 8))
	require.NoError(t, err)
	p, err := f.drv.CreateComputePipeline(f.dev, driver.ComputePipelineInfo{Layout: pl, Shader: shader, EntryPoint: "add"})
	require.NoError(t, err)

	word := func(v uint32) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v)
		return b
	}
	run := func(offset uint32, data []byte) error {
		cb := f.commandBuffer(t)
		require.NoError(t, f.drv.BeginCommandBuffer(cb, false))
		f.drv.CmdBindComputePipeline(cb, p)
		f.drv.CmdPushConstants(cb, pl, driver.ShaderStageCompute, offset, data)
		f.drv.CmdBindDescriptorSets(cb, pl, 0, sets)
		f.drv.CmdDispatch(cb, 4, 1, 1)
		require.NoError(t, f.drv.EndCommandBuffer(cb))
		return f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, 0)
	}
	assert.Error(t, run(4, word(1)), "past the range")
	assert.Error(t, run(0, make([]byte, 8)), "larger than the range")
	assert.Error(t, run(0xfffffffc, make([]byte, 8)), "offset wraps")
	require.NoError(t, run(0, word(5)))

	data, err := f.drv.MapMemory(f.dev, mem, 0, 16)
	require.NoError(t, err)
	defer f.drv.UnmapMemory(f.dev, mem)
	for i := 0; i < 4; i++ {
		assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(data[i*4:]), "element %d", i)
	}
}

// image creates a storage image bound to fresh device local memory.
func (f *fixture) image(t *testing.T, width, height uint32) driver.Image {
	t.Helper()
	img, err := f.drv.CreateImage(f.dev, driver.ImageInfo{
		Width:  width,
		Height: height,
		Format: driver.FormatR32Uint,
		Usage:  driver.ImageUsageStorage | driver.ImageUsageTransferSrc | driver.ImageUsageTransferDst,
	})
	require.NoError(t, err)
	req := f.drv.ImageMemoryRequirements(f.dev, img)
	m, err := f.drv.AllocateMemory(f.dev, req.Size, 0)
	require.NoError(t, err)
	require.NoError(t, f.drv.BindImageMemory(f.dev, img, m, 0))
	return img
}

func layoutBarrier(img driver.Image, from, to driver.ImageLayout) []driver.ImageMemoryBarrier {
	return []driver.ImageMemoryBarrier{{
		OldLayout: from,
		NewLayout: to,
		SrcQueue:  driver.QueueFamilyIgnored,
		DstQueue:  driver.QueueFamilyIgnored,
		Image:     img,
	}}
}

// fill writes 0..n-1 as little endian uint32s to mem.
func (f *fixture) fill(t *testing.T, mem driver.DeviceMemory, n int) {
	t.Helper()
	data, err := f.drv.MapMemory(f.dev, mem, 0, uint64(n*4))
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(data[i*4:], uint32(i))
	}
	f.drv.UnmapMemory(f.dev, mem)
}

func TestImageCreateChecks(t *testing.T) {
	f := newFixture(t)
	_, err := f.drv.CreateImage(f.dev, driver.ImageInfo{Width: 0, Height: 4, Format: driver.FormatR32Uint, Usage: driver.ImageUsageStorage})
	assert.Error(t, err)
	_, err = f.drv.CreateImage(f.dev, driver.ImageInfo{Width: 4, Height: 4, Format: driver.FormatUndefined, Usage: driver.ImageUsageStorage})
	assert.Error(t, err)
	_, err = f.drv.CreateImage(f.dev, driver.ImageInfo{Width: 4, Height: 4, Format: driver.FormatR32Uint})
	assert.Error(t, err)

	img, err := f.drv.CreateImage(f.dev, driver.ImageInfo{Width: 4, Height: 4, Format: driver.FormatR32Uint, Usage: driver.ImageUsageStorage})
	require.NoError(t, err)
	req := f.drv.ImageMemoryRequirements(f.dev, img)
	assert.Equal(t, uint64(64), req.Size)
	small, err := f.drv.AllocateMemory(f.dev, 32, 0)
	require.NoError(t, err)
	assert.Error(t, f.drv.BindImageMemory(f.dev, img, small, 0))
	assert.Equal(t, driver.ImageLayoutUndefined, f.drv.ImageLayout(img))
}

func TestImageCopies(t *testing.T) {
	f := newFixture(t)
	img := f.image(t, 4, 2)
	src, srcMem := f.buffer(t, 32, 1)
	dst, dstMem := f.buffer(t, 32, 1)
	f.fill(t, srcMem, 8)
	whole := []driver.BufferImageCopy{{Width: 4, Height: 2}}

	cb := f.commandBuffer(t)
	require.NoError(t, f.drv.BeginCommandBuffer(cb, false))
	f.drv.CmdCopyBufferToImage(cb, src, img, driver.ImageLayoutTransferDstOptimal, whole)
	require.NoError(t, f.drv.EndCommandBuffer(cb))
	assert.Error(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, 0), "image is still undefined")

	require.NoError(t, f.drv.BeginCommandBuffer(cb, false))
	f.drv.CmdImageBarrier(cb, driver.PipelineStageTopOfPipe, driver.PipelineStageTransfer,
		layoutBarrier(img, driver.ImageLayoutGeneral, driver.ImageLayoutTransferDstOptimal))
	require.NoError(t, f.drv.EndCommandBuffer(cb))
	assert.Error(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, 0), "old layout does not match")

	require.NoError(t, f.drv.BeginCommandBuffer(cb, false))
	f.drv.CmdImageBarrier(cb, driver.PipelineStageTopOfPipe, driver.PipelineStageTransfer,
		layoutBarrier(img, driver.ImageLayoutUndefined, driver.ImageLayoutTransferDstOptimal))
	f.drv.CmdCopyBufferToImage(cb, src, img, driver.ImageLayoutTransferDstOptimal, whole)
	f.drv.CmdImageBarrier(cb, driver.PipelineStageTransfer, driver.PipelineStageTransfer,
		layoutBarrier(img, driver.ImageLayoutTransferDstOptimal, driver.ImageLayoutTransferSrcOptimal))
	f.drv.CmdCopyImageToBuffer(cb, img, driver.ImageLayoutTransferSrcOptimal, dst, whole)
	require.NoError(t, f.drv.EndCommandBuffer(cb))
	require.NoError(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, 0))
	assert.Equal(t, driver.ImageLayoutTransferSrcOptimal, f.drv.ImageLayout(img))

	data, err := f.drv.MapMemory(f.dev, dstMem, 0, 32)
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		assert.Equal(t, uint32(i), binary.LittleEndian.Uint32(data[i*4:]), "texel %d", i)
	}
	f.drv.UnmapMemory(f.dev, dstMem)

	require.NoError(t, f.drv.BeginCommandBuffer(cb, false))
	f.drv.CmdCopyImageToBuffer(cb, img, driver.ImageLayoutTransferSrcOptimal, dst, []driver.BufferImageCopy{{Width: 5, Height: 1}})
	require.NoError(t, f.drv.EndCommandBuffer(cb))
	assert.Error(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, 0), "region wider than the image")

	require.NoError(t, f.drv.BeginCommandBuffer(cb, false))
	f.drv.CmdCopyImageToBuffer(cb, img, driver.ImageLayoutTransferDstOptimal, dst, whole)
	require.NoError(t, f.drv.EndCommandBuffer(cb))
	assert.Error(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, 0), "wrong layout for a read")
}

func TestImageDispatch(t *testing.T) {
	f := newFixture(t)
	f.drv.RegisterKernel("image", ImageToBuffer)
	img := f.image(t, 2, 2)
	src, srcMem := f.buffer(t, 16, 1)
	dst, dstMem := f.buffer(t, 16, 1)
	f.fill(t, srcMem, 4)

	view, err := f.drv.CreateImageView(f.dev, img)
	require.NoError(t, err)
	pool, err := f.drv.CreateDescriptorPool(f.dev, 1, []driver.DescriptorPoolSize{
		{Type: driver.DescriptorTypeStorageImage, Count: 1},
		{Type: driver.DescriptorTypeStorageBuffer, Count: 1},
	})
	require.NoError(t, err)
	layout, err := f.drv.CreateDescriptorSetLayout(f.dev, []driver.DescriptorSetLayoutBinding{
		{Binding: 0, Type: driver.DescriptorTypeStorageImage, Count: 1},
		{Binding: 1, Type: driver.DescriptorTypeStorageBuffer, Count: 1},
	})
	require.NoError(t, err)
	sets, err := f.drv.AllocateDescriptorSets(f.dev, pool, []driver.DescriptorSetLayout{layout})
	require.NoError(t, err)
	write := func(imageLayout driver.ImageLayout) {
		f.drv.UpdateDescriptorSets(f.dev, []driver.WriteDescriptorSet{
			{
				Set: sets[0], Binding: 0, Type: driver.DescriptorTypeStorageImage,
				ImageInfo: []driver.DescriptorImageInfo{{ImageView: view, Layout: imageLayout}},
			},
			{
				Set: sets[0], Binding: 1, Type: driver.DescriptorTypeStorageBuffer,
				BufferInfo: []driver.DescriptorBufferInfo{{Buffer: dst, Range: driver.WholeSize}},
			},
		})
	}
	pl, err := f.drv.CreatePipelineLayout(f.dev, []driver.DescriptorSetLayout{layout}, nil)
	require.NoError(t, err)
	shader, err := f.drv.CreateShaderModule(f.dev, make([]byte, 8))
	require.NoError(t, err)
	p, err := f.drv.CreateComputePipeline(f.dev, driver.ComputePipelineInfo{Layout: pl, Shader: shader, EntryPoint: "image"})
	require.NoError(t, err)

	cb := f.commandBuffer(t)
	record := func() {
		require.NoError(t, f.drv.BeginCommandBuffer(cb, false))
		f.drv.CmdImageBarrier(cb, driver.PipelineStageTopOfPipe, driver.PipelineStageTransfer,
			layoutBarrier(img, driver.ImageLayoutUndefined, driver.ImageLayoutGeneral))
		f.drv.CmdCopyBufferToImage(cb, src, img, driver.ImageLayoutGeneral, []driver.BufferImageCopy{{Width: 2, Height: 2}})
		f.drv.CmdBindComputePipeline(cb, p)
		f.drv.CmdBindDescriptorSets(cb, pl, 0, sets)
		f.drv.CmdDispatch(cb, 1, 1, 1)
		require.NoError(t, f.drv.EndCommandBuffer(cb))
	}

	write(driver.ImageLayoutShaderReadOnlyOptimal)
	record()
	assert.Error(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, 0), "descriptor layout differs from the image's")

	write(driver.ImageLayoutGeneral)
	record()
	require.NoError(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, 0))

	data, err := f.drv.MapMemory(f.dev, dstMem, 0, 16)
	require.NoError(t, err)
	defer f.drv.UnmapMemory(f.dev, dstMem)
	for i := 0; i < 4; i++ {
		assert.Equal(t, uint32(i), binary.LittleEndian.Uint32(data[i*4:]), "texel %d", i)
	}

	f.drv.DestroyImageView(f.dev, view)
	assert.Error(t, f.drv.QueueSubmit(f.queue, []driver.CommandBuffer{cb}, 0), "view destroyed")
}
