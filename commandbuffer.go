package vrx

import (
	"github.com/cockroachdb/errors"

	"github.com/hyeonjang/vrx/driver"
)

type RecordingState int

const (
	StateInitial RecordingState = iota
	StateRecording
	StateExecutable
)

func (s RecordingState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateRecording:
		return "recording"
	case StateExecutable:
		return "executable"
	}
	return "unknown"
}

// CommandBuffers describe a sequence of commands that will be executed
// upon being sent to a device queue. Every Cmd method fails with
// ErrNotRecording outside Begin/End and records nothing.
type CommandBuffer struct {
	Pool   *CommandPool
	Handle driver.CommandBuffer
	state  RecordingState
}

func (c *CommandBuffer) drv() driver.Driver {
	return c.Pool.Device.driver()
}

func (c *CommandBuffer) State() RecordingState {
	return c.state
}

func (c *CommandBuffer) begin(oneTime bool) error {
	if c.state == StateRecording {
		return errors.New("command buffer is already recording")
	}
	if err := c.drv().BeginCommandBuffer(c.Handle, oneTime); err != nil {
		return errors.Wrap(err, "begin command buffer")
	}
	c.state = StateRecording
	return nil
}

// Begin capturing work for this command buffer
func (c *CommandBuffer) Begin() error {
	return c.begin(false)
}

// BeginOneTime begins capturing work for this command buffer, with the
// stipulation that it will only be submitted once.
func (c *CommandBuffer) BeginOneTime() error {
	return c.begin(true)
}

// End describing work for this command buffer
func (c *CommandBuffer) End() error {
	if c.state != StateRecording {
		return ErrNotRecording
	}
	if err := c.drv().EndCommandBuffer(c.Handle); err != nil {
		c.state = StateInitial
		return errors.Wrap(err, "end command buffer")
	}
	c.state = StateExecutable
	return nil
}

// Reset this command buffer
func (c *CommandBuffer) Reset() error {
	if err := c.drv().ResetCommandBuffer(c.Handle); err != nil {
		return errors.Wrap(err, "reset command buffer")
	}
	c.state = StateInitial
	return nil
}

func (c *CommandBuffer) recording(cmd string) error {
	if c.state != StateRecording {
		return errors.Wrapf(ErrNotRecording, "%s in state %s", cmd, c.state)
	}
	return nil
}

// CmdCopyBuffer copies regions of src into dst. Without regions the whole
// of the smaller buffer is copied.
func (c *CommandBuffer) CmdCopyBuffer(src, dst *Buffer, regions ...driver.BufferCopy) error {
	if err := c.recording("copy buffer"); err != nil {
		return err
	}
	if len(regions) == 0 {
		regions = []driver.BufferCopy{{Size: min(src.Size, dst.Size)}}
	}
	c.drv().CmdCopyBuffer(c.Handle, src.Handle, dst.Handle, regions)
	return nil
}

func (c *CommandBuffer) CmdBindComputePipeline(p *ComputePipeline) error {
	if err := c.recording("bind pipeline"); err != nil {
		return err
	}
	c.drv().CmdBindComputePipeline(c.Handle, p.Handle)
	return nil
}

func (c *CommandBuffer) CmdBindDescriptorSets(layout *PipelineLayout, firstSet int, descriptorSets ...driver.DescriptorSet) error {
	if err := c.recording("bind descriptor sets"); err != nil {
		return err
	}
	c.drv().CmdBindDescriptorSets(c.Handle, layout.Handle, uint32(firstSet), descriptorSets)
	return nil
}

func (c *CommandBuffer) CmdDispatch(x, y, z int) error {
	if err := c.recording("dispatch"); err != nil {
		return err
	}
	if x <= 0 || y <= 0 || z <= 0 {
		return errors.Wrapf(ErrInvalidCount, "dispatch %dx%dx%d", x, y, z)
	}
	c.drv().CmdDispatch(c.Handle, uint32(x), uint32(y), uint32(z))
	return nil
}

func (c *CommandBuffer) CmdPipelineBarrier(src, dst driver.PipelineStageFlags, barriers ...driver.BufferMemoryBarrier) error {
	if err := c.recording("pipeline barrier"); err != nil {
		return err
	}
	c.drv().CmdPipelineBarrier(c.Handle, src, dst, barriers)
	return nil
}

func (c *CommandBuffer) CmdImageBarrier(src, dst driver.PipelineStageFlags, barriers ...driver.ImageMemoryBarrier) error {
	if err := c.recording("image barrier"); err != nil {
		return err
	}
	c.drv().CmdImageBarrier(c.Handle, src, dst, barriers)
	return nil
}

// CmdPushConstants updates the push constants at offset for stages. The
// range must lie within one of layout's push constant ranges.
func (c *CommandBuffer) CmdPushConstants(layout *PipelineLayout, stages driver.ShaderStageFlags, offset uint32, data []byte) error {
	if err := c.recording("push constants"); err != nil {
		return err
	}
	if len(data) == 0 || len(data)%4 != 0 || offset%4 != 0 {
		return errors.Wrapf(ErrPushConstantRange, "[%d, +%d) is not a non empty multiple of 4", offset, len(data))
	}
	if !layout.Covers(stages, offset, uint32(len(data))) {
		return errors.Wrapf(ErrPushConstantRange, "[%d, +%d)", offset, len(data))
	}
	c.drv().CmdPushConstants(c.Handle, layout.Handle, stages, offset, data)
	return nil
}

func imageRegions(img *Image, regions []driver.BufferImageCopy) []driver.BufferImageCopy {
	if len(regions) == 0 {
		return []driver.BufferImageCopy{img.Region(0)}
	}
	return regions
}

// CmdCopyBufferToImage copies regions of src into dst, which must be in the
// TransferDstOptimal or General layout. Without regions the whole image is
// copied from the start of src.
func (c *CommandBuffer) CmdCopyBufferToImage(src *Buffer, dst *Image, regions ...driver.BufferImageCopy) error {
	if err := c.recording("copy buffer to image"); err != nil {
		return err
	}
	if dst.Layout != driver.ImageLayoutTransferDstOptimal && dst.Layout != driver.ImageLayoutGeneral {
		return errors.Newf("copy into image in layout %s", dst.Layout)
	}
	c.drv().CmdCopyBufferToImage(c.Handle, src.Handle, dst.Handle, dst.Layout, imageRegions(dst, regions))
	return nil
}

// CmdCopyImageToBuffer copies regions of src, which must be in the
// TransferSrcOptimal or General layout, into dst. Without regions the whole
// image is copied to the start of dst.
func (c *CommandBuffer) CmdCopyImageToBuffer(src *Image, dst *Buffer, regions ...driver.BufferImageCopy) error {
	if err := c.recording("copy image to buffer"); err != nil {
		return err
	}
	if src.Layout != driver.ImageLayoutTransferSrcOptimal && src.Layout != driver.ImageLayoutGeneral {
		return errors.Newf("copy from image in layout %s", src.Layout)
	}
	c.drv().CmdCopyImageToBuffer(c.Handle, src.Handle, src.Layout, dst.Handle, imageRegions(src, regions))
	return nil
}
