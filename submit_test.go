package vrx

import (
	"math"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyeonjang/vrx/driver"
	"github.com/hyeonjang/vrx/driver/soft"
)

func TestRecordComputeOrder(t *testing.T) {
	e := newTestEnv(t)
	host := e.hostBuffer(t, 256)
	dev := e.deviceBuffer(t, 256)
	p := e.pipeline(t, "main", dev)

	cb, err := e.dev.CommandPool.AllocateBuffer()
	require.NoError(t, err)
	defer e.dev.CommandPool.FreeBuffer(cb)

	require.NoError(t, cb.Begin())
	require.NoError(t, RecordCompute(cb, ComputeJob{Pipeline: p, Groups: [3]int{4}, Device: dev, Host: host}))
	require.NoError(t, cb.End())

	cmds := e.drv.Commands(cb.Handle)
	ops := make([]soft.Op, len(cmds))
	for i, c := range cmds {
		ops[i] = c.Op
	}
	require.Equal(t, []soft.Op{
		soft.OpPipelineBarrier,
		soft.OpBindPipeline,
		soft.OpBindDescriptorSets,
		soft.OpDispatch,
		soft.OpPipelineBarrier,
		soft.OpCopyBuffer,
		soft.OpPipelineBarrier,
	}, ops)

	barrier := func(b *Buffer, src, dst driver.AccessFlags) []driver.BufferMemoryBarrier {
		return []driver.BufferMemoryBarrier{{
			SrcAccess: src,
			DstAccess: dst,
			SrcQueue:  driver.QueueFamilyIgnored,
			DstQueue:  driver.QueueFamilyIgnored,
			Buffer:    b.Handle,
			Size:      driver.WholeSize,
		}}
	}

	assert.Equal(t, driver.PipelineStageHost, cmds[0].SrcStage)
	assert.Equal(t, driver.PipelineStageComputeShader, cmds[0].DstStage)
	assert.Equal(t, barrier(dev, driver.AccessHostWrite, driver.AccessShaderRead), cmds[0].Barriers)

	assert.Equal(t, p.Handle, cmds[1].Pipeline)
	assert.Equal(t, p.Layout.Handle, cmds[2].Layout)
	assert.Equal(t, uint32(0), cmds[2].FirstSet)
	assert.Equal(t, p.Descriptor.SetHandles(), cmds[2].Sets)
	assert.Equal(t, [3]uint32{4, 1, 1}, cmds[3].Groups)

	assert.Equal(t, driver.PipelineStageComputeShader, cmds[4].SrcStage)
	assert.Equal(t, driver.PipelineStageTransfer, cmds[4].DstStage)
	assert.Equal(t, barrier(dev, driver.AccessShaderWrite, driver.AccessTransferRead), cmds[4].Barriers)

	assert.Equal(t, dev.Handle, cmds[5].Src)
	assert.Equal(t, host.Handle, cmds[5].Dst)
	assert.Equal(t, []driver.BufferCopy{{Size: 256}}, cmds[5].Regions)

	assert.Equal(t, driver.PipelineStageTransfer, cmds[6].SrcStage)
	assert.Equal(t, driver.PipelineStageHost, cmds[6].DstStage)
	assert.Equal(t, barrier(host, driver.AccessTransferWrite, driver.AccessHostRead), cmds[6].Barriers)
}

func TestRecordComputeNeedsBuffers(t *testing.T) {
	e := newTestEnv(t)
	cb, err := e.dev.CommandPool.AllocateBuffer()
	require.NoError(t, err)
	defer e.dev.CommandPool.FreeBuffer(cb)
	require.NoError(t, cb.Begin())
	assert.Error(t, RecordCompute(cb, ComputeJob{}))
}

func TestRunComputeRoundTrip(t *testing.T) {
	const n = 1000
	e := newTestEnv(t)
	data := Sequence(n)
	size := data.SizeInBytes()

	staging := e.hostBuffer(t, size)
	dev := e.deviceBuffer(t, size)
	result := e.hostBuffer(t, size)
	p := e.pipeline(t, "", dev)
	assert.Equal(t, DefaultEntryPoint, p.EntryPoint)

	live := e.drv.Live()
	require.NoError(t, staging.Write(data.Bytes()))
	require.NoError(t, e.dev.Upload(staging, dev, 0))
	require.NoError(t, e.dev.RunCompute(ComputeJob{
		Pipeline: p,
		Groups:   [3]int{(n + DefaultWorkgroupSize - 1) / DefaultWorkgroupSize},
		Device:   dev,
		Host:     result,
	}))

	got, err := result.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data.Bytes(), got)
	assert.Equal(t, live, e.drv.Live(), "command buffers and fences are released")
}

func TestRunComputeDouble(t *testing.T) {
	const n = 256
	scfg := soft.DefaultConfig()
	scfg.Kernels["double"] = soft.DoubleUint32
	e := newTestEnvWith(t, scfg, testConfig())

	data := Sequence(n)
	staging := e.hostBuffer(t, data.SizeInBytes())
	dev := e.deviceBuffer(t, data.SizeInBytes())
	p := e.pipeline(t, "double", dev)

	require.NoError(t, staging.Write(data.Bytes()))
	require.NoError(t, e.dev.Upload(staging, dev, 0))
	require.NoError(t, e.dev.RunCompute(ComputeJob{Pipeline: p, Groups: [3]int{n}, Device: dev, Host: staging}))

	got, err := staging.Bytes()
	require.NoError(t, err)
	want := make(Uint32Slice, n)
	for i := range want {
		want[i] = uint32(2 * i)
	}
	assert.Equal(t, want, Uint32s(got))
}

func TestUploadBounds(t *testing.T) {
	e := newTestEnv(t)
	small := e.hostBuffer(t, 16)
	large := e.deviceBuffer(t, 64)

	assert.Error(t, e.dev.Upload(small, large, 32))
	require.NoError(t, small.Write(Uint32Slice{1, 2, 3, 4}.Bytes()))
	require.NoError(t, e.dev.Upload(small, large, 0))
}

func TestSubmitAndWaitReusable(t *testing.T) {
	e := newTestEnv(t)
	cb := emptyCommandBuffer(t, e.dev)
	for i := 0; i < 3; i++ {
		require.NoError(t, e.dev.SubmitAndWait(cb))
	}
}

func TestPipelineKernelBinding(t *testing.T) {
	e := newTestEnv(t)
	host := e.hostBuffer(t, 16)
	dev := e.deviceBuffer(t, 16)
	p := e.pipeline(t, "main", dev)

	e.drv.RegisterKernel("main", soft.DoubleUint32)
	// The pipeline captured its kernel at creation, so a plain run still works.
	require.NoError(t, e.dev.RunCompute(ComputeJob{Pipeline: p, Device: dev, Host: host}))

	_, err := e.dev.NewComputePipeline(p.Descriptor, &ShaderModule{Device: e.dev, Handle: 0}, "missing")
	assert.Error(t, err)
}

// pushPipeline builds a pipeline like testEnv.pipeline whose layout also
// declares ranges.
func (e *testEnv) pushPipeline(t *testing.T, entryPoint string, b *Buffer, ranges ...driver.PushConstantRange) *ComputePipeline {
	t.Helper()
	desc, err := e.dev.NewDescriptor(1)
	require.NoError(t, err)
	t.Cleanup(desc.Destroy)
	require.NoError(t, desc.UpdateBuffer(0, b, 0, 0))

	shader, err := e.dev.LoadShaderModule("test", make([]byte, 16))
	require.NoError(t, err)
	t.Cleanup(shader.Destroy)

	p, err := e.dev.NewComputePipelineWithPushConstants(desc, shader, entryPoint, ranges...)
	require.NoError(t, err)
	t.Cleanup(p.Destroy)
	return p
}

var computeWord = driver.PushConstantRange{Stages: driver.ShaderStageCompute, Size: 4}

func TestRunComputePushConstants(t *testing.T) {
	const n = 64
	scfg := soft.DefaultConfig()
	scfg.Kernels["add"] = soft.AddUint32
	e := newTestEnvWith(t, scfg, testConfig())

	data := Sequence(n)
	staging := e.hostBuffer(t, data.SizeInBytes())
	dev := e.deviceBuffer(t, data.SizeInBytes())
	p := e.pushPipeline(t, "add", dev, computeWord)
	assert.Equal(t, []driver.PushConstantRange{computeWord}, p.Layout.PushConstants)

	require.NoError(t, staging.Write(data.Bytes()))
	require.NoError(t, e.dev.Upload(staging, dev, 0))
	require.NoError(t, e.dev.RunCompute(ComputeJob{
		Pipeline:      p,
		Groups:        [3]int{n},
		Device:        dev,
		Host:          staging,
		PushConstants: Uint32Slice{5}.Bytes(),
	}))

	got, err := staging.Bytes()
	require.NoError(t, err)
	want := make(Uint32Slice, n)
	for i := range want {
		want[i] = uint32(i) + 5
	}
	assert.Equal(t, want, Uint32s(got))
}

func TestRecordComputePushConstantOrder(t *testing.T) {
	scfg := soft.DefaultConfig()
	scfg.Kernels["add"] = soft.AddUint32
	e := newTestEnvWith(t, scfg, testConfig())
	host := e.hostBuffer(t, 64)
	dev := e.deviceBuffer(t, 64)
	p := e.pushPipeline(t, "add", dev, computeWord)

	cb, err := e.dev.CommandPool.AllocateBuffer()
	require.NoError(t, err)
	defer e.dev.CommandPool.FreeBuffer(cb)
	require.NoError(t, cb.Begin())
	require.NoError(t, RecordCompute(cb, ComputeJob{Pipeline: p, Device: dev, Host: host, PushConstants: Uint32Slice{9}.Bytes()}))
	require.NoError(t, cb.End())

	cmds := e.drv.Commands(cb.Handle)
	require.Len(t, cmds, 8)
	assert.Equal(t, soft.OpBindPipeline, cmds[1].Op)
	assert.Equal(t, soft.OpPushConstants, cmds[2].Op)
	assert.Equal(t, soft.OpBindDescriptorSets, cmds[3].Op)
	assert.Equal(t, p.Layout.Handle, cmds[2].Layout)
	assert.Equal(t, driver.ShaderStageCompute, cmds[2].Stages)
	assert.Equal(t, uint32(0), cmds[2].Offset)
	assert.Equal(t, Uint32Slice{9}.Bytes(), cmds[2].Data)
}

func TestPushConstantsOutsideLayout(t *testing.T) {
	e := newTestEnv(t)
	host := e.hostBuffer(t, 16)
	dev := e.deviceBuffer(t, 16)
	plain := e.pipeline(t, "main", dev)

	err := e.dev.RunCompute(ComputeJob{Pipeline: plain, Device: dev, Host: host, PushConstants: Uint32Slice{1}.Bytes()})
	assert.True(t, errors.Is(err, ErrPushConstantRange), "layout without ranges")

	p := e.pushPipeline(t, "main", dev, computeWord)
	err = e.dev.RunCompute(ComputeJob{Pipeline: p, Device: dev, Host: host, PushConstants: Uint32Slice{1, 2}.Bytes()})
	assert.True(t, errors.Is(err, ErrPushConstantRange), "larger than the range")
	err = e.dev.RunCompute(ComputeJob{Pipeline: p, Device: dev, Host: host, PushConstants: []byte{1, 2}})
	assert.True(t, errors.Is(err, ErrPushConstantRange), "not a multiple of 4")
}

func TestPipelineLayoutCovers(t *testing.T) {
	l := &PipelineLayout{PushConstants: []driver.PushConstantRange{
		{Stages: driver.ShaderStageCompute, Offset: 0, Size: 8},
		{Stages: driver.ShaderStageCompute, Offset: 16, Size: 16},
	}}
	for _, tc := range []struct {
		offset, size uint32
		want         bool
	}{
		{0, 4, true},
		{0, 8, true},
		{4, 8, false},
		{8, 4, false},
		{16, 16, true},
		{20, 12, true},
		{4, 16, false},
		{math.MaxUint32 - 3, 8, false},
		{16, math.MaxUint32, false},
	} {
		assert.Equal(t, tc.want, l.Covers(driver.ShaderStageCompute, tc.offset, tc.size), "[%d, +%d)", tc.offset, tc.size)
	}
	assert.False(t, l.Covers(driver.ShaderStageCompute|driver.ShaderStageFlags(1), 0, 4), "stage not in the range")
}

// deferredEnv completes submissions only when they are waited on without a
// bound, so a fence wait bounded by the device's WaitTimeout expires.
func deferredEnv(t *testing.T) *testEnv {
	t.Helper()
	scfg := soft.DefaultConfig()
	scfg.DeferCompletion = true
	cfg := testConfig()
	cfg.WaitTimeout = Duration{time.Millisecond}
	return newTestEnvWith(t, scfg, cfg)
}

func TestSubmitTimeoutDrainsQueue(t *testing.T) {
	e := deferredEnv(t)
	data := Sequence(16)
	staging := e.hostBuffer(t, data.SizeInBytes())
	dev := e.deviceBuffer(t, data.SizeInBytes())
	result := e.hostBuffer(t, data.SizeInBytes())
	p := e.pipeline(t, "main", dev)
	require.NoError(t, staging.Write(data.Bytes()))

	live := e.drv.Live()
	err := e.dev.Upload(staging, dev, 0)
	assert.True(t, errors.Is(err, ErrFenceTimeout))
	err = e.dev.RunCompute(ComputeJob{Pipeline: p, Groups: [3]int{16}, Device: dev, Host: result})
	assert.True(t, errors.Is(err, ErrFenceTimeout))

	assert.Empty(t, e.drv.ValidationErrors(), "nothing is released while pending")
	assert.Equal(t, live, e.drv.Live(), "command buffers and fences are released after the drain")
	got, err := result.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data.Bytes(), got)
}

func TestSubmitTimeoutReusableBuffer(t *testing.T) {
	e := deferredEnv(t)
	cb := emptyCommandBuffer(t, e.dev)
	for i := 0; i < 2; i++ {
		assert.True(t, errors.Is(e.dev.SubmitAndWait(cb), ErrFenceTimeout))
	}
	assert.Empty(t, e.drv.ValidationErrors())
}

func TestDeferredCompletionWithoutBound(t *testing.T) {
	scfg := soft.DefaultConfig()
	scfg.DeferCompletion = true
	e := newTestEnvWith(t, scfg, testConfig())
	cb := emptyCommandBuffer(t, e.dev)
	require.NoError(t, e.dev.SubmitAndWait(cb))
	require.NoError(t, e.dev.SubmitAndWait(cb))
	assert.Empty(t, e.drv.ValidationErrors())
}
