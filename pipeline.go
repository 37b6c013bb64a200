package vrx

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/hyeonjang/vrx/driver"
)

type PipelineCache struct {
	Device *Device
	Handle driver.PipelineCache
}

func (d *Device) CreatePipelineCache() (*PipelineCache, error) {
	h, err := d.driver().CreatePipelineCache(d.Handle)
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline cache")
	}
	return &PipelineCache{Device: d, Handle: h}, nil
}

func (c *PipelineCache) Destroy() {
	c.Device.driver().DestroyPipelineCache(c.Device.Handle, c.Handle)
}

// ComputePipeline is a compute shader entry point bound to a layout over all
// of a Descriptor's set layouts and its push constant ranges.
type ComputePipeline struct {
	Device     *Device
	Handle     driver.Pipeline
	Layout     *PipelineLayout
	Descriptor *Descriptor
	Cache      *PipelineCache
	EntryPoint string
}

// NewComputePipeline builds a pipeline running entryPoint of shader, "main"
// when entryPoint is empty.
func (d *Device) NewComputePipeline(desc *Descriptor, shader *ShaderModule, entryPoint string) (*ComputePipeline, error) {
	return d.NewComputePipelineWithPushConstants(desc, shader, entryPoint)
}

// NewComputePipelineWithPushConstants builds a pipeline whose layout also
// declares pushConstants.
func (d *Device) NewComputePipelineWithPushConstants(desc *Descriptor, shader *ShaderModule, entryPoint string, pushConstants ...driver.PushConstantRange) (_ *ComputePipeline, err error) {
	if entryPoint == "" {
		entryPoint = DefaultEntryPoint
	}
	p := &ComputePipeline{Device: d, Descriptor: desc, EntryPoint: entryPoint}
	defer func() {
		if err != nil {
			p.Destroy()
		}
	}()

	if p.Layout, err = d.CreatePipelineLayoutWithPushConstants(desc.Layouts(), pushConstants); err != nil {
		return nil, err
	}
	if p.Cache, err = d.CreatePipelineCache(); err != nil {
		return nil, err
	}
	p.Handle, err = d.driver().CreateComputePipeline(d.Handle, driver.ComputePipelineInfo{
		Layout:     p.Layout.Handle,
		Shader:     shader.Handle,
		EntryPoint: entryPoint,
		Cache:      p.Cache.Handle,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create compute pipeline %q", entryPoint)
	}

	d.logger.Debug("compute pipeline created",
		slog.String("shader", shader.Description),
		slog.String("entryPoint", entryPoint),
		slog.Int("sets", desc.Count()),
		slog.Int("pushConstantRanges", len(pushConstants)))
	return p, nil
}

// Destroy releases the pipeline, its cache and its layout. The Descriptor
// is left to its owner.
func (p *ComputePipeline) Destroy() {
	if p.Handle != 0 {
		p.Device.driver().DestroyPipeline(p.Device.Handle, p.Handle)
		p.Handle = 0
	}
	if p.Cache != nil {
		p.Cache.Destroy()
		p.Cache = nil
	}
	if p.Layout != nil {
		p.Layout.Destroy()
		p.Layout = nil
	}
}
