package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/hyeonjang/vrx/driver"
)

func (d *Driver) CreateShaderModule(h driver.Device, code []byte) (driver.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, errors.Newf("SPIR-V code size %d is not a positive multiple of 4", len(code))
	}
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return 0, err
	}
	var module vk.ShaderModule
	err = check(vk.CreateShaderModule(dev.vk, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}, nil, &module), "vkCreateShaderModule")
	if err != nil {
		return 0, err
	}
	return driver.ShaderModule(d.put(module)), nil
}

func (d *Driver) DestroyShaderModule(h driver.Device, s driver.ShaderModule) {
	dev, ok := must[*device](d, uint64(h), "vkDestroyShaderModule")
	if !ok {
		return
	}
	module, ok := must[vk.ShaderModule](d, uint64(s), "vkDestroyShaderModule")
	if !ok {
		return
	}
	vk.DestroyShaderModule(dev.vk, module, nil)
	d.remove(uint64(s))
}

func sliceUint32(data []byte) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

func (d *Driver) CreatePipelineLayout(h driver.Device, layouts []driver.DescriptorSetLayout, pushConstants []driver.PushConstantRange) (driver.PipelineLayout, error) {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return 0, err
	}
	setLayouts := make([]vk.DescriptorSetLayout, len(layouts))
	for i, l := range layouts {
		if setLayouts[i], err = get[vk.DescriptorSetLayout](d, uint64(l)); err != nil {
			return 0, err
		}
	}
	ranges := make([]vk.PushConstantRange, len(pushConstants))
	for i, r := range pushConstants {
		ranges[i] = vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	var layout vk.PipelineLayout
	if err := check(vk.CreatePipelineLayout(dev.vk, &pipelineLayoutCreateInfo, nil, &layout), "vkCreatePipelineLayout"); err != nil {
		return 0, err
	}
	return driver.PipelineLayout(d.put(layout)), nil
}

func (d *Driver) DestroyPipelineLayout(h driver.Device, l driver.PipelineLayout) {
	dev, ok := must[*device](d, uint64(h), "vkDestroyPipelineLayout")
	if !ok {
		return
	}
	layout, ok := must[vk.PipelineLayout](d, uint64(l), "vkDestroyPipelineLayout")
	if !ok {
		return
	}
	vk.DestroyPipelineLayout(dev.vk, layout, nil)
	d.remove(uint64(l))
}

func (d *Driver) CreatePipelineCache(h driver.Device) (driver.PipelineCache, error) {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return 0, err
	}
	pipelineCacheCreate := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	var pipelineCache vk.PipelineCache
	if err := check(vk.CreatePipelineCache(dev.vk, &pipelineCacheCreate, nil, &pipelineCache), "vkCreatePipelineCache"); err != nil {
		return 0, err
	}
	return driver.PipelineCache(d.put(pipelineCache)), nil
}

func (d *Driver) DestroyPipelineCache(h driver.Device, c driver.PipelineCache) {
	dev, ok := must[*device](d, uint64(h), "vkDestroyPipelineCache")
	if !ok {
		return
	}
	cache, ok := must[vk.PipelineCache](d, uint64(c), "vkDestroyPipelineCache")
	if !ok {
		return
	}
	vk.DestroyPipelineCache(dev.vk, cache, nil)
	d.remove(uint64(c))
}

func (d *Driver) CreateComputePipeline(h driver.Device, info driver.ComputePipelineInfo) (driver.Pipeline, error) {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return 0, err
	}
	layout, err := get[vk.PipelineLayout](d, uint64(info.Layout))
	if err != nil {
		return 0, err
	}
	module, err := get[vk.ShaderModule](d, uint64(info.Shader))
	if err != nil {
		return 0, err
	}
	var cache vk.PipelineCache
	if info.Cache != 0 {
		if cache, err = get[vk.PipelineCache](d, uint64(info.Cache)); err != nil {
			return 0, err
		}
	}

	pipelineCreateInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  safeString(info.EntryPoint),
		},
		Layout: layout,
	}
	pipelines := make([]vk.Pipeline, 1)
	err = check(vk.CreateComputePipelines(dev.vk, cache, 1,
		[]vk.ComputePipelineCreateInfo{pipelineCreateInfo}, nil, pipelines), "vkCreateComputePipelines")
	if err != nil {
		return 0, err
	}
	return driver.Pipeline(d.put(pipelines[0])), nil
}

func (d *Driver) DestroyPipeline(h driver.Device, p driver.Pipeline) {
	dev, ok := must[*device](d, uint64(h), "vkDestroyPipeline")
	if !ok {
		return
	}
	pipeline, ok := must[vk.Pipeline](d, uint64(p), "vkDestroyPipeline")
	if !ok {
		return
	}
	vk.DestroyPipeline(dev.vk, pipeline, nil)
	d.remove(uint64(p))
}
