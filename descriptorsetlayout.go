package vrx

import (
	"github.com/cockroachdb/errors"

	"github.com/hyeonjang/vrx/driver"
)

// DescriptorSetLayout describes the layout of a descriptor set
type DescriptorSetLayout struct {
	Device   *Device
	Handle   driver.DescriptorSetLayout
	Bindings []driver.DescriptorSetLayoutBinding
}

func (d *Device) NewDescriptorSetLayout() *DescriptorSetLayout {
	return &DescriptorSetLayout{Device: d}
}

// AddBinding adds a binding of count descriptors visible to the compute
// stage.
func (l *DescriptorSetLayout) AddBinding(binding int, dtype driver.DescriptorType, count int) {
	l.Bindings = append(l.Bindings, driver.DescriptorSetLayoutBinding{
		Binding: uint32(binding),
		Type:    dtype,
		Count:   uint32(count),
		Stages:  driver.ShaderStageCompute,
	})
}

// Binding returns the binding numbered binding, if the layout has one.
func (l *DescriptorSetLayout) Binding(binding int) (driver.DescriptorSetLayoutBinding, bool) {
	for _, b := range l.Bindings {
		if b.Binding == uint32(binding) {
			return b, true
		}
	}
	return driver.DescriptorSetLayoutBinding{}, false
}

// Destroy destroys this descriptor set layout
func (l *DescriptorSetLayout) Destroy() {
	l.Device.driver().DestroyDescriptorSetLayout(l.Device.Handle, l.Handle)
}

// CreateDescriptorSetLayout creates layout with the bindings added to it.
func (d *Device) CreateDescriptorSetLayout(layout *DescriptorSetLayout) (*DescriptorSetLayout, error) {
	h, err := d.driver().CreateDescriptorSetLayout(d.Handle, layout.Bindings)
	if err != nil {
		return nil, errors.Wrap(err, "create descriptor set layout")
	}
	layout.Device = d
	layout.Handle = h
	return layout, nil
}
