package vrx

import (
	"github.com/cockroachdb/errors"

	"github.com/hyeonjang/vrx/driver"
)

type PipelineLayout struct {
	Device        *Device
	Handle        driver.PipelineLayout
	PushConstants []driver.PushConstantRange
}

func (p *PipelineLayout) Destroy() {
	p.Device.driver().DestroyPipelineLayout(p.Device.Handle, p.Handle)
}

// Covers reports whether one push constant range of the layout holds
// [offset, offset+size) for all of stages.
func (p *PipelineLayout) Covers(stages driver.ShaderStageFlags, offset, size uint32) bool {
	for _, r := range p.PushConstants {
		if r.Stages&stages == stages && offset >= r.Offset && size <= r.Size && offset-r.Offset <= r.Size-size {
			return true
		}
	}
	return false
}

func (d *Device) CreatePipelineLayoutWithPushConstants(descriptorSetLayouts []*DescriptorSetLayout, pushConstants []driver.PushConstantRange) (*PipelineLayout, error) {
	l := make([]driver.DescriptorSetLayout, len(descriptorSetLayouts))
	for i, dsl := range descriptorSetLayouts {
		l[i] = dsl.Handle
	}
	h, err := d.driver().CreatePipelineLayout(d.Handle, l, pushConstants)
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline layout")
	}
	return &PipelineLayout{Device: d, Handle: h, PushConstants: append([]driver.PushConstantRange(nil), pushConstants...)}, nil
}

func (d *Device) CreatePipelineLayout(descriptorSetLayouts ...*DescriptorSetLayout) (*PipelineLayout, error) {
	return d.CreatePipelineLayoutWithPushConstants(descriptorSetLayouts, nil)
}
