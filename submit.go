package vrx

import (
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/hyeonjang/vrx/driver"
)

// ComputeJob is one dispatch of Pipeline whose result is copied from the
// Device buffer back to the Host buffer.
type ComputeJob struct {
	Pipeline *ComputePipeline
	// Sets bound from set number 0, all sets of the pipeline's Descriptor
	// when empty.
	Sets []driver.DescriptorSet
	// Groups is the workgroup grid, zero components count as 1.
	Groups [3]int
	Device *Buffer
	Host   *Buffer
	// Size of the copy back, the smaller of both buffers when zero.
	Size uint64
	// PushConstants are pushed at offset 0 for the compute stage after the
	// pipeline is bound. The pipeline must declare a range holding them.
	PushConstants []byte
}

func (j *ComputeJob) groups() (x, y, z int) {
	g := j.Groups
	for i := range g {
		if g[i] == 0 {
			g[i] = 1
		}
	}
	return g[0], g[1], g[2]
}

// RecordCompute records job into cb, which must be recording: a barrier
// making host writes to the device buffer visible to the shader, the
// pipeline bind, the push constants if any, the set binds, the dispatch, a
// barrier ordering shader writes before the transfer, the copy to the host
// buffer and a barrier making the copy visible to host reads.
func RecordCompute(cb *CommandBuffer, job ComputeJob) error {
	if job.Pipeline == nil || job.Device == nil || job.Host == nil {
		return errors.New("compute job needs a pipeline, a device and a host buffer")
	}
	sets := job.Sets
	if len(sets) == 0 && job.Pipeline.Descriptor != nil {
		sets = job.Pipeline.Descriptor.SetHandles()
	}
	size := job.Size
	if size == 0 {
		size = min(job.Device.Size, job.Host.Size)
	}
	x, y, z := job.groups()

	if err := cb.CmdPipelineBarrier(driver.PipelineStageHost, driver.PipelineStageComputeShader,
		job.Device.Barrier(driver.AccessHostWrite, driver.AccessShaderRead)); err != nil {
		return err
	}
	if err := cb.CmdBindComputePipeline(job.Pipeline); err != nil {
		return err
	}
	if len(job.PushConstants) > 0 {
		if err := cb.CmdPushConstants(job.Pipeline.Layout, driver.ShaderStageCompute, 0, job.PushConstants); err != nil {
			return err
		}
	}
	if err := cb.CmdBindDescriptorSets(job.Pipeline.Layout, 0, sets...); err != nil {
		return err
	}
	if err := cb.CmdDispatch(x, y, z); err != nil {
		return err
	}
	if err := cb.CmdPipelineBarrier(driver.PipelineStageComputeShader, driver.PipelineStageTransfer,
		job.Device.Barrier(driver.AccessShaderWrite, driver.AccessTransferRead)); err != nil {
		return err
	}
	if err := cb.CmdCopyBuffer(job.Device, job.Host, driver.BufferCopy{Size: size}); err != nil {
		return err
	}
	return cb.CmdPipelineBarrier(driver.PipelineStageTransfer, driver.PipelineStageHost,
		job.Host.Barrier(driver.AccessTransferWrite, driver.AccessHostRead))
}

// SubmitAndWait submits cb on the device queue and blocks until it has
// completed, bounded by WaitTimeout. When the bound expires the queue is
// drained before the fence is destroyed and ErrFenceTimeout is returned, so
// cb may be freed or reused once SubmitAndWait returns.
func (d *Device) SubmitAndWait(cb *CommandBuffer) error {
	fence, err := d.CreateFence()
	if err != nil {
		return err
	}
	defer fence.Destroy()

	if err := d.Queue.SubmitWithFence(fence, cb); err != nil {
		return err
	}
	start := time.Now()
	if err := fence.Wait(); err != nil {
		if !errors.Is(err, ErrFenceTimeout) {
			return err
		}
		d.logger.Warn("fence wait timed out, draining queue",
			slog.Int("queueFamily", d.QueueFamily.Index),
			slog.Duration("timeout", d.WaitTimeout.Duration))
		if werr := d.Queue.WaitIdle(); werr != nil {
			return errors.CombineErrors(err, werr)
		}
		return err
	}
	d.logger.Debug("submit complete",
		slog.Int("queueFamily", d.QueueFamily.Index),
		slog.Duration("wait", time.Since(start)))
	return nil
}

// oneTime records a one time submit command buffer with record, submits it,
// waits for it and frees it.
func (d *Device) oneTime(record func(cb *CommandBuffer) error) error {
	cb, err := d.CommandPool.AllocateBuffer()
	if err != nil {
		return err
	}
	defer d.CommandPool.FreeBuffer(cb)

	if err := cb.BeginOneTime(); err != nil {
		return err
	}
	if err := record(cb); err != nil {
		return err
	}
	if err := cb.End(); err != nil {
		return err
	}
	return d.SubmitAndWait(cb)
}

// RunCompute records job in a one time command buffer, submits it and waits
// for the result to be readable from job.Host.
func (d *Device) RunCompute(job ComputeJob) error {
	return errors.Wrap(d.oneTime(func(cb *CommandBuffer) error {
		return RecordCompute(cb, job)
	}), "run compute")
}

// Upload copies size bytes of src into dst on the device queue and waits for
// the copy. A zero size copies the smaller of both buffers.
func (d *Device) Upload(src, dst *Buffer, size uint64) error {
	if size == 0 {
		size = min(src.Size, dst.Size)
	}
	if size > src.Size || size > dst.Size {
		return errors.Wrapf(ErrBufferOverflow, "upload of %d bytes from %d into %d", size, src.Size, dst.Size)
	}
	return errors.Wrap(d.oneTime(func(cb *CommandBuffer) error {
		return cb.CmdCopyBuffer(src, dst, driver.BufferCopy{Size: size})
	}), "upload")
}
