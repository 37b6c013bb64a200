package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/hyeonjang/vrx/driver"
)

type image struct {
	vk     vk.Image
	format vk.Format
}

type imageView struct {
	vk vk.ImageView
}

var colorSubresource = vk.ImageSubresourceRange{
	AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	LevelCount: 1,
	LayerCount: 1,
}

func (d *Driver) CreateImage(h driver.Device, info driver.ImageInfo) (driver.Image, error) {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return 0, err
	}
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Width,
			Height: info.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var img vk.Image
	if err := check(vk.CreateImage(dev.vk, &imageInfo, nil, &img), "vkCreateImage"); err != nil {
		return 0, err
	}
	return driver.Image(d.put(&image{vk: img, format: imageInfo.Format})), nil
}

func (d *Driver) DestroyImage(h driver.Device, i driver.Image) {
	dev, ok := must[*device](d, uint64(h), "vkDestroyImage")
	if !ok {
		return
	}
	img, ok := must[*image](d, uint64(i), "vkDestroyImage")
	if !ok {
		return
	}
	vk.DestroyImage(dev.vk, img.vk, nil)
	d.remove(uint64(i))
}

func (d *Driver) ImageMemoryRequirements(h driver.Device, i driver.Image) driver.MemoryRequirements {
	dev, ok := must[*device](d, uint64(h), "vkGetImageMemoryRequirements")
	if !ok {
		return driver.MemoryRequirements{}
	}
	img, ok := must[*image](d, uint64(i), "vkGetImageMemoryRequirements")
	if !ok {
		return driver.MemoryRequirements{}
	}
	var mr vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev.vk, img.vk, &mr)
	mr.Deref()
	return driver.MemoryRequirements{
		Size:           uint64(mr.Size),
		Alignment:      uint64(mr.Alignment),
		MemoryTypeBits: mr.MemoryTypeBits,
	}
}

func (d *Driver) BindImageMemory(h driver.Device, i driver.Image, m driver.DeviceMemory, offset uint64) error {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return err
	}
	img, err := get[*image](d, uint64(i))
	if err != nil {
		return err
	}
	mem, err := get[vk.DeviceMemory](d, uint64(m))
	if err != nil {
		return err
	}
	return check(vk.BindImageMemory(dev.vk, img.vk, mem, vk.DeviceSize(offset)), "vkBindImageMemory")
}

func (d *Driver) CreateImageView(h driver.Device, i driver.Image) (driver.ImageView, error) {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return 0, err
	}
	img, err := get[*image](d, uint64(i))
	if err != nil {
		return 0, err
	}
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.vk,
		ViewType: vk.ImageViewType2d,
		Format:   img.format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleR,
			G: vk.ComponentSwizzleG,
			B: vk.ComponentSwizzleB,
			A: vk.ComponentSwizzleA,
		},
		SubresourceRange: colorSubresource,
	}
	var view vk.ImageView
	if err := check(vk.CreateImageView(dev.vk, &viewInfo, nil, &view), "vkCreateImageView"); err != nil {
		return 0, err
	}
	return driver.ImageView(d.put(&imageView{vk: view})), nil
}

func (d *Driver) DestroyImageView(h driver.Device, v driver.ImageView) {
	dev, ok := must[*device](d, uint64(h), "vkDestroyImageView")
	if !ok {
		return
	}
	view, ok := must[*imageView](d, uint64(v), "vkDestroyImageView")
	if !ok {
		return
	}
	vk.DestroyImageView(dev.vk, view.vk, nil)
	d.remove(uint64(v))
}

func bufferImageCopies(regions []driver.BufferImageCopy) []vk.BufferImageCopy {
	r := make([]vk.BufferImageCopy, len(regions))
	for i, region := range regions {
		r[i] = vk.BufferImageCopy{
			BufferOffset: vk.DeviceSize(region.BufferOffset),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{Width: region.Width, Height: region.Height, Depth: 1},
		}
	}
	return r
}

func (d *Driver) CmdCopyBufferToImage(h driver.CommandBuffer, src driver.Buffer, dst driver.Image, layout driver.ImageLayout, regions []driver.BufferImageCopy) {
	cb, ok := must[vk.CommandBuffer](d, uint64(h), "vkCmdCopyBufferToImage")
	if !ok {
		return
	}
	buffer, ok := must[vk.Buffer](d, uint64(src), "vkCmdCopyBufferToImage")
	if !ok {
		return
	}
	img, ok := must[*image](d, uint64(dst), "vkCmdCopyBufferToImage")
	if !ok {
		return
	}
	r := bufferImageCopies(regions)
	vk.CmdCopyBufferToImage(cb, buffer, img.vk, vk.ImageLayout(layout), uint32(len(r)), r)
}

func (d *Driver) CmdCopyImageToBuffer(h driver.CommandBuffer, src driver.Image, layout driver.ImageLayout, dst driver.Buffer, regions []driver.BufferImageCopy) {
	cb, ok := must[vk.CommandBuffer](d, uint64(h), "vkCmdCopyImageToBuffer")
	if !ok {
		return
	}
	img, ok := must[*image](d, uint64(src), "vkCmdCopyImageToBuffer")
	if !ok {
		return
	}
	buffer, ok := must[vk.Buffer](d, uint64(dst), "vkCmdCopyImageToBuffer")
	if !ok {
		return
	}
	r := bufferImageCopies(regions)
	vk.CmdCopyImageToBuffer(cb, img.vk, vk.ImageLayout(layout), buffer, uint32(len(r)), r)
}

func (d *Driver) CmdImageBarrier(h driver.CommandBuffer, src, dst driver.PipelineStageFlags, barriers []driver.ImageMemoryBarrier) {
	cb, ok := must[vk.CommandBuffer](d, uint64(h), "vkCmdPipelineBarrier")
	if !ok {
		return
	}
	b := make([]vk.ImageMemoryBarrier, len(barriers))
	for i, barrier := range barriers {
		img, ok := must[*image](d, uint64(barrier.Image), "vkCmdPipelineBarrier")
		if !ok {
			return
		}
		b[i] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(barrier.SrcAccess),
			DstAccessMask:       vk.AccessFlags(barrier.DstAccess),
			OldLayout:           vk.ImageLayout(barrier.OldLayout),
			NewLayout:           vk.ImageLayout(barrier.NewLayout),
			SrcQueueFamilyIndex: barrier.SrcQueue,
			DstQueueFamilyIndex: barrier.DstQueue,
			Image:               img.vk,
			SubresourceRange:    colorSubresource,
		}
	}
	vk.CmdPipelineBarrier(cb, vk.PipelineStageFlags(src), vk.PipelineStageFlags(dst), 0,
		0, nil, 0, nil, uint32(len(b)), b)
}
