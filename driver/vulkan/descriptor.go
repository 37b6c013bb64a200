package vulkan

import (
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"github.com/hyeonjang/vrx/driver"
)

func (d *Driver) CreateDescriptorPool(h driver.Device, maxSets uint32, sizes []driver.DescriptorPoolSize) (driver.DescriptorPool, error) {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return 0, err
	}
	poolSizes := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		poolSizes[i] = vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}
	var pool vk.DescriptorPool
	ret := vk.CreateDescriptorPool(dev.vk, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}, nil, &pool)
	if err := check(ret, "vkCreateDescriptorPool"); err != nil {
		return 0, err
	}
	return driver.DescriptorPool(d.put(pool)), nil
}

func (d *Driver) DestroyDescriptorPool(h driver.Device, p driver.DescriptorPool) {
	dev, ok := must[*device](d, uint64(h), "vkDestroyDescriptorPool")
	if !ok {
		return
	}
	pool, ok := must[vk.DescriptorPool](d, uint64(p), "vkDestroyDescriptorPool")
	if !ok {
		return
	}
	vk.DestroyDescriptorPool(dev.vk, pool, nil)
	d.remove(uint64(p))
}

func (d *Driver) CreateDescriptorSetLayout(h driver.Device, bindings []driver.DescriptorSetLayoutBinding) (driver.DescriptorSetLayout, error) {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return 0, err
	}
	b := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, binding := range bindings {
		b[i] = vk.DescriptorSetLayoutBinding{
			Binding:         binding.Binding,
			DescriptorType:  vk.DescriptorType(binding.Type),
			DescriptorCount: binding.Count,
			StageFlags:      vk.ShaderStageFlags(binding.Stages),
		}
	}
	var layout vk.DescriptorSetLayout
	ret := vk.CreateDescriptorSetLayout(dev.vk, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(b)),
		PBindings:    b,
	}, nil, &layout)
	if err := check(ret, "vkCreateDescriptorSetLayout"); err != nil {
		return 0, err
	}
	return driver.DescriptorSetLayout(d.put(layout)), nil
}

func (d *Driver) DestroyDescriptorSetLayout(h driver.Device, l driver.DescriptorSetLayout) {
	dev, ok := must[*device](d, uint64(h), "vkDestroyDescriptorSetLayout")
	if !ok {
		return
	}
	layout, ok := must[vk.DescriptorSetLayout](d, uint64(l), "vkDestroyDescriptorSetLayout")
	if !ok {
		return
	}
	vk.DestroyDescriptorSetLayout(dev.vk, layout, nil)
	d.remove(uint64(l))
}

// AllocateDescriptorSets allocates one set per layout. Sets are allocated one
// call at a time so each native handle lands in its own Go value.
func (d *Driver) AllocateDescriptorSets(h driver.Device, p driver.DescriptorPool, layouts []driver.DescriptorSetLayout) ([]driver.DescriptorSet, error) {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return nil, err
	}
	pool, err := get[vk.DescriptorPool](d, uint64(p))
	if err != nil {
		return nil, err
	}
	ret := make([]driver.DescriptorSet, 0, len(layouts))
	for _, l := range layouts {
		layout, err := get[vk.DescriptorSetLayout](d, uint64(l))
		if err == nil {
			var set vk.DescriptorSet
			err = check(vk.AllocateDescriptorSets(dev.vk, &vk.DescriptorSetAllocateInfo{
				SType:              vk.StructureTypeDescriptorSetAllocateInfo,
				DescriptorPool:     pool,
				DescriptorSetCount: 1,
				PSetLayouts:        []vk.DescriptorSetLayout{layout},
			}, &set), "vkAllocateDescriptorSets")
			if err == nil {
				ret = append(ret, driver.DescriptorSet(d.put(set)))
				continue
			}
		}
		if ferr := d.FreeDescriptorSets(h, p, ret); ferr != nil {
			d.logger.Warn("vulkan: releasing partial descriptor set allocation", slog.String("err", ferr.Error()))
		}
		return nil, err
	}
	return ret, nil
}

func (d *Driver) FreeDescriptorSets(h driver.Device, p driver.DescriptorPool, sets []driver.DescriptorSet) error {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return err
	}
	pool, err := get[vk.DescriptorPool](d, uint64(p))
	if err != nil {
		return err
	}
	for _, s := range sets {
		set, err := get[vk.DescriptorSet](d, uint64(s))
		if err != nil {
			return err
		}
		if err := check(vk.FreeDescriptorSets(dev.vk, pool, 1, &set), "vkFreeDescriptorSets"); err != nil {
			return err
		}
		d.remove(uint64(s))
	}
	return nil
}

func (d *Driver) UpdateDescriptorSets(h driver.Device, writes []driver.WriteDescriptorSet) {
	dev, ok := must[*device](d, uint64(h), "vkUpdateDescriptorSets")
	if !ok {
		return
	}
	w := make([]vk.WriteDescriptorSet, len(writes))
	for i, write := range writes {
		set, ok := must[vk.DescriptorSet](d, uint64(write.Set), "vkUpdateDescriptorSets")
		if !ok {
			return
		}
		w[i] = vk.WriteDescriptorSet{
			SType:          vk.StructureTypeWriteDescriptorSet,
			DstSet:         set,
			DstBinding:     write.Binding,
			DescriptorType: vk.DescriptorType(write.Type),
		}
		if len(write.BufferInfo) > 0 {
			infos := make([]vk.DescriptorBufferInfo, len(write.BufferInfo))
			for j, bi := range write.BufferInfo {
				buffer, ok := must[vk.Buffer](d, uint64(bi.Buffer), "vkUpdateDescriptorSets")
				if !ok {
					return
				}
				infos[j] = vk.DescriptorBufferInfo{
					Buffer: buffer,
					Offset: vk.DeviceSize(bi.Offset),
					Range:  vk.DeviceSize(bi.Range),
				}
			}
			w[i].DescriptorCount = uint32(len(infos))
			w[i].PBufferInfo = infos
		}
		if len(write.ImageInfo) > 0 {
			infos := make([]vk.DescriptorImageInfo, len(write.ImageInfo))
			for j, ii := range write.ImageInfo {
				view, ok := must[*imageView](d, uint64(ii.ImageView), "vkUpdateDescriptorSets")
				if !ok {
					return
				}
				infos[j] = vk.DescriptorImageInfo{ImageView: view.vk, ImageLayout: vk.ImageLayout(ii.Layout)}
			}
			w[i].DescriptorCount = uint32(len(infos))
			w[i].PImageInfo = infos
		}
	}
	vk.UpdateDescriptorSets(dev.vk, uint32(len(w)), w, 0, nil)
}
