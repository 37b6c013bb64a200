package soft

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/hyeonjang/vrx/driver"
)

type Op int

const (
	OpCopyBuffer Op = iota
	OpBindPipeline
	OpBindDescriptorSets
	OpDispatch
	OpPipelineBarrier
	OpImageBarrier
	OpPushConstants
	OpCopyBufferToImage
	OpCopyImageToBuffer
)

func (o Op) String() string {
	switch o {
	case OpCopyBuffer:
		return "CopyBuffer"
	case OpBindPipeline:
		return "BindPipeline"
	case OpBindDescriptorSets:
		return "BindDescriptorSets"
	case OpDispatch:
		return "Dispatch"
	case OpPipelineBarrier:
		return "PipelineBarrier"
	case OpImageBarrier:
		return "ImageBarrier"
	case OpPushConstants:
		return "PushConstants"
	case OpCopyBufferToImage:
		return "CopyBufferToImage"
	case OpCopyImageToBuffer:
		return "CopyImageToBuffer"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Command is one recorded command. Only the fields relevant to Op are set.
type Command struct {
	Op Op

	Src     driver.Buffer
	Dst     driver.Buffer
	Regions []driver.BufferCopy

	Pipeline driver.Pipeline
	Layout   driver.PipelineLayout
	FirstSet uint32
	Sets     []driver.DescriptorSet

	Groups [3]uint32

	SrcStage      driver.PipelineStageFlags
	DstStage      driver.PipelineStageFlags
	Barriers      []driver.BufferMemoryBarrier
	ImageBarriers []driver.ImageMemoryBarrier

	Stages driver.ShaderStageFlags
	Offset uint32
	Data   []byte

	Image        driver.Image
	ImageLayout  driver.ImageLayout
	ImageRegions []driver.BufferImageCopy
}

type recordState int

const (
	stateInitial recordState = iota
	stateRecording
	stateExecutable
	statePending
	stateInvalid
)

type commandBuffer struct {
	pool     *commandPool
	state    recordState
	oneTime  bool
	commands []Command
	// err holds the first recording error, reported by EndCommandBuffer.
	err error
}

// retire moves a command buffer out of the pending state once its
// submission completed.
func (c *commandBuffer) retire() {
	if c.state != statePending {
		return
	}
	if c.oneTime {
		c.state = stateInvalid
	} else {
		c.state = stateExecutable
	}
}

func (c *commandBuffer) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Commands returns a copy of what has been recorded into cb.
func (d *Driver) Commands(cb driver.CommandBuffer) []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, err := lookup[commandBuffer](d, uint64(cb))
	if err != nil {
		return nil
	}
	return append([]Command(nil), c.commands...)
}

func (d *Driver) BeginCommandBuffer(cb driver.CommandBuffer, oneTime bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, err := lookup[commandBuffer](d, uint64(cb))
	if err != nil {
		return err
	}
	if c.state == stateRecording {
		return errors.New("command buffer is already recording")
	}
	if c.state == statePending {
		return errors.New("command buffer is pending")
	}
	// Begin implicitly resets, the pool is created resettable.
	c.commands = nil
	c.err = nil
	c.oneTime = oneTime
	c.state = stateRecording
	return nil
}

func (d *Driver) EndCommandBuffer(cb driver.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, err := lookup[commandBuffer](d, uint64(cb))
	if err != nil {
		return err
	}
	if c.state != stateRecording {
		return errors.New("command buffer is not recording")
	}
	if c.err != nil {
		c.state = stateInvalid
		return c.err
	}
	c.state = stateExecutable
	return nil
}

func (d *Driver) ResetCommandBuffer(cb driver.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, err := lookup[commandBuffer](d, uint64(cb))
	if err != nil {
		return err
	}
	if c.state == statePending {
		return errors.New("command buffer is pending")
	}
	c.commands = nil
	c.err = nil
	c.state = stateInitial
	return nil
}

func (d *Driver) record(cb driver.CommandBuffer, cmd Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, err := lookup[commandBuffer](d, uint64(cb))
	if err != nil {
		d.logger.Warn("soft: command recorded into unknown command buffer", slog.String("op", cmd.Op.String()))
		return
	}
	if c.state != stateRecording {
		c.fail(errors.Newf("%s recorded outside begin/end", cmd.Op))
		return
	}
	c.commands = append(c.commands, cmd)
}

func (d *Driver) CmdCopyBuffer(cb driver.CommandBuffer, src, dst driver.Buffer, regions []driver.BufferCopy) {
	d.record(cb, Command{Op: OpCopyBuffer, Src: src, Dst: dst, Regions: append([]driver.BufferCopy(nil), regions...)})
}

func (d *Driver) CmdBindComputePipeline(cb driver.CommandBuffer, p driver.Pipeline) {
	d.record(cb, Command{Op: OpBindPipeline, Pipeline: p})
}

func (d *Driver) CmdBindDescriptorSets(cb driver.CommandBuffer, layout driver.PipelineLayout, firstSet uint32, sets []driver.DescriptorSet) {
	d.record(cb, Command{Op: OpBindDescriptorSets, Layout: layout, FirstSet: firstSet, Sets: append([]driver.DescriptorSet(nil), sets...)})
}

func (d *Driver) CmdDispatch(cb driver.CommandBuffer, x, y, z uint32) {
	d.record(cb, Command{Op: OpDispatch, Groups: [3]uint32{x, y, z}})
}

func (d *Driver) CmdPipelineBarrier(cb driver.CommandBuffer, src, dst driver.PipelineStageFlags, barriers []driver.BufferMemoryBarrier) {
	d.record(cb, Command{Op: OpPipelineBarrier, SrcStage: src, DstStage: dst, Barriers: append([]driver.BufferMemoryBarrier(nil), barriers...)})
}

func (d *Driver) CmdImageBarrier(cb driver.CommandBuffer, src, dst driver.PipelineStageFlags, barriers []driver.ImageMemoryBarrier) {
	d.record(cb, Command{Op: OpImageBarrier, SrcStage: src, DstStage: dst, ImageBarriers: append([]driver.ImageMemoryBarrier(nil), barriers...)})
}

func (d *Driver) CmdPushConstants(cb driver.CommandBuffer, layout driver.PipelineLayout, stages driver.ShaderStageFlags, offset uint32, data []byte) {
	d.record(cb, Command{Op: OpPushConstants, Layout: layout, Stages: stages, Offset: offset, Data: append([]byte(nil), data...)})
}

func (d *Driver) CmdCopyBufferToImage(cb driver.CommandBuffer, src driver.Buffer, dst driver.Image, layout driver.ImageLayout, regions []driver.BufferImageCopy) {
	d.record(cb, Command{Op: OpCopyBufferToImage, Src: src, Image: dst, ImageLayout: layout, ImageRegions: append([]driver.BufferImageCopy(nil), regions...)})
}

func (d *Driver) CmdCopyImageToBuffer(cb driver.CommandBuffer, src driver.Image, layout driver.ImageLayout, dst driver.Buffer, regions []driver.BufferImageCopy) {
	d.record(cb, Command{Op: OpCopyImageToBuffer, Image: src, ImageLayout: layout, Dst: dst, ImageRegions: append([]driver.BufferImageCopy(nil), regions...)})
}

func (d *Driver) QueueSubmit(q driver.Queue, buffers []driver.CommandBuffer, fh driver.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	qu, err := lookup[queue](d, uint64(q))
	if err != nil {
		return err
	}
	var f *fence
	if fh != 0 {
		if f, err = lookup[fence](d, uint64(fh)); err != nil {
			return err
		}
		if f.signaled {
			return errors.New("fence passed to submit must be unsignaled")
		}
		if f.pending != nil {
			return errors.New("fence passed to submit is in use by a pending submission")
		}
	}
	cbs := make([]*commandBuffer, len(buffers))
	for i, cb := range buffers {
		c, err := lookup[commandBuffer](d, uint64(cb))
		if err != nil {
			return err
		}
		if c.state != stateExecutable {
			return errors.Newf("command buffer %d is not executable", cb)
		}
		if c.pool.device != qu.device || c.pool.family != qu.family {
			return errors.Newf("command buffer %d was allocated for another queue family", cb)
		}
		cbs[i] = c
	}
	for i, c := range cbs {
		if err := d.execute(c); err != nil {
			return errors.Wrapf(err, "command buffer %d", buffers[i])
		}
		c.state = statePending
	}
	qu.pending = append(qu.pending, submission{buffers: cbs, fence: f})
	if f != nil {
		f.pending = qu
	}
	if !d.cfg.DeferCompletion {
		qu.complete()
	}
	d.logger.Debug("soft: submitted",
		slog.Int("commandBuffers", len(buffers)),
		slog.Bool("pending", d.cfg.DeferCompletion))
	return nil
}

type execState struct {
	pipeline *pipeline
	sets     map[uint32]*descriptorSet
	push     []byte
}

func (d *Driver) execute(c *commandBuffer) error {
	st := execState{sets: make(map[uint32]*descriptorSet)}
	for i, cmd := range c.commands {
		var err error
		switch cmd.Op {
		case OpCopyBuffer:
			err = d.execCopy(cmd)
		case OpBindPipeline:
			st.pipeline, err = lookup[pipeline](d, uint64(cmd.Pipeline))
		case OpBindDescriptorSets:
			for j, sh := range cmd.Sets {
				s, serr := lookup[descriptorSet](d, uint64(sh))
				if serr != nil {
					err = serr
					break
				}
				st.sets[cmd.FirstSet+uint32(j)] = s
			}
		case OpDispatch:
			err = d.execDispatch(&st, cmd.Groups)
		case OpPipelineBarrier:
			// Execution is in order on host memory, barriers only need to
			// reference live buffers.
			for _, b := range cmd.Barriers {
				if _, berr := lookup[buffer](d, uint64(b.Buffer)); berr != nil {
					err = berr
					break
				}
			}
		case OpImageBarrier:
			err = d.execImageBarrier(cmd.ImageBarriers)
		case OpPushConstants:
			err = d.execPushConstants(&st, cmd)
		case OpCopyBufferToImage:
			err = d.execCopyBufferToImage(cmd)
		case OpCopyImageToBuffer:
			err = d.execCopyImageToBuffer(cmd)
		}
		if err != nil {
			return errors.Wrapf(err, "command %d (%s)", i, cmd.Op)
		}
	}
	return nil
}

func (d *Driver) execCopy(cmd Command) error {
	src, err := lookup[buffer](d, uint64(cmd.Src))
	if err != nil {
		return err
	}
	dst, err := lookup[buffer](d, uint64(cmd.Dst))
	if err != nil {
		return err
	}
	sb, err := src.bytes()
	if err != nil {
		return errors.Wrap(err, "source")
	}
	db, err := dst.bytes()
	if err != nil {
		return errors.Wrap(err, "destination")
	}
	for _, r := range cmd.Regions {
		if !inBounds(r.SrcOffset, r.Size, uint64(len(sb))) || !inBounds(r.DstOffset, r.Size, uint64(len(db))) {
			return errors.Newf("copy region %+v out of bounds (src %d, dst %d bytes)", r, len(sb), len(db))
		}
		copy(db[r.DstOffset:r.DstOffset+r.Size], sb[r.SrcOffset:r.SrcOffset+r.Size])
	}
	return nil
}

func (d *Driver) execPushConstants(st *execState, cmd Command) error {
	layout, err := lookup[pipelineLayout](d, uint64(cmd.Layout))
	if err != nil {
		return err
	}
	size := uint32(len(cmd.Data))
	if size == 0 || cmd.Offset%4 != 0 || size%4 != 0 {
		return errors.Newf("push constants [%d, +%d) must be a non empty multiple of 4", cmd.Offset, size)
	}
	if !layout.covers(cmd.Stages, cmd.Offset, size) {
		return errors.Newf("push constants [%d, +%d) for stages %x are outside the layout's ranges", cmd.Offset, size, cmd.Stages)
	}
	if end := int(cmd.Offset + size); len(st.push) < end {
		st.push = append(st.push, make([]byte, end-len(st.push))...)
	}
	copy(st.push[cmd.Offset:], cmd.Data)
	return nil
}

func (d *Driver) execDispatch(st *execState, groups [3]uint32) error {
	if st.pipeline == nil {
		return errors.New("dispatch without a bound compute pipeline")
	}
	idx := make([]uint32, 0, len(st.sets))
	for i := range st.sets {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool { return idx[a] < idx[b] })

	inv := Invocation{Groups: groups, PushConstants: append([]byte(nil), st.push...)}
	for _, i := range idx {
		s := st.sets[i]
		bindings := make([]uint32, 0, len(s.buffers))
		for b := range s.buffers {
			bindings = append(bindings, b)
		}
		sort.Slice(bindings, func(a, b int) bool { return bindings[a] < bindings[b] })
		for _, b := range bindings {
			for _, info := range s.buffers[b] {
				buf, err := lookup[buffer](d, uint64(info.Buffer))
				if err != nil {
					return errors.Wrapf(err, "set %d binding %d", i, b)
				}
				data, err := buf.bytes()
				if err != nil {
					return errors.Wrapf(err, "set %d binding %d", i, b)
				}
				if info.Offset > uint64(len(data)) {
					return errors.Newf("set %d binding %d: offset %d past buffer of %d bytes", i, b, info.Offset, len(data))
				}
				rng := info.Range
				if rng == driver.WholeSize {
					rng = uint64(len(data)) - info.Offset
				}
				if !inBounds(info.Offset, rng, uint64(len(data))) {
					return errors.Newf("set %d binding %d: range [%d, %d) exceeds buffer of %d bytes", i, b, info.Offset, info.Offset+rng, len(data))
				}
				inv.Buffers = append(inv.Buffers, data[info.Offset:info.Offset+rng])
			}
		}
		if err := d.bindImages(&inv, i, s); err != nil {
			return err
		}
	}
	return errors.Wrapf(st.pipeline.kernel(inv), "kernel %q", st.pipeline.entryPoint)
}

// inBounds reports whether [offset, offset+size) lies within [0, limit)
// without overflowing.
func inBounds(offset, size, limit uint64) bool {
	return offset <= limit && size <= limit-offset
}
