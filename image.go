package vrx

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/hyeonjang/vrx/driver"
)

// StorageImageUsage is the usage of images bound to a shader and copied from
// or to.
const StorageImageUsage = driver.ImageUsageStorage | driver.ImageUsageTransferSrc | driver.ImageUsageTransferDst

// Image is a 2D image with its own memory. Layout is the layout the last
// recorded transition leaves it in, which is the layout the next recorded
// command must use.
type Image struct {
	Device *Device
	Handle driver.Image
	Width  int
	Height int
	Format driver.Format
	Usage  driver.ImageUsageFlags
	Memory *DeviceMemory
	Layout driver.ImageLayout
}

// CreateImage creates an image, allocates memory of a type with all of
// memoryProperties for it and binds the two.
func (d *Device) CreateImage(width, height int, format driver.Format, usage driver.ImageUsageFlags, memoryProperties driver.MemoryPropertyFlags) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrInvalidCount, "image extent %dx%d", width, height)
	}
	h, err := d.driver().CreateImage(d.Handle, driver.ImageInfo{
		Width:  uint32(width),
		Height: uint32(height),
		Format: format,
		Usage:  usage,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create %dx%d %s image", width, height, format)
	}
	img := &Image{
		Device: d,
		Handle: h,
		Width:  width,
		Height: height,
		Format: format,
		Usage:  usage,
		Layout: driver.ImageLayoutUndefined,
	}

	mr := img.MemoryRequirements()
	mem, err := d.Allocate(mr.Size, mr.MemoryTypeBits, memoryProperties)
	if err != nil {
		d.driver().DestroyImage(d.Handle, h)
		return nil, err
	}
	if err := d.driver().BindImageMemory(d.Handle, h, mem.Handle, 0); err != nil {
		mem.Destroy()
		d.driver().DestroyImage(d.Handle, h)
		return nil, errors.Wrap(err, "bind image memory")
	}
	img.Memory = mem

	d.logger.Debug("image created",
		slog.Int("width", width),
		slog.Int("height", height),
		slog.String("format", format.String()),
		slog.String("usage", usage.String()))
	return img, nil
}

// CreateStorageImage creates a device local image a shader reads and writes.
func (d *Device) CreateStorageImage(width, height int, format driver.Format) (*Image, error) {
	return d.CreateImage(width, height, format, StorageImageUsage, DeviceLocalMemory)
}

func (i *Image) MemoryRequirements() driver.MemoryRequirements {
	return i.Device.driver().ImageMemoryRequirements(i.Device.Handle, i.Handle)
}

// SizeInBytes is the size of the texels when tightly packed.
func (i *Image) SizeInBytes() uint64 {
	return uint64(i.Width) * uint64(i.Height) * i.Format.TexelSize()
}

// Region is a copy of the whole image from or to a buffer at offset.
func (i *Image) Region(bufferOffset uint64) driver.BufferImageCopy {
	return driver.BufferImageCopy{BufferOffset: bufferOffset, Width: uint32(i.Width), Height: uint32(i.Height)}
}

// Barrier returns a barrier moving the image from its current layout to
// layout with no queue family ownership transfer.
func (i *Image) Barrier(src, dst driver.AccessFlags, layout driver.ImageLayout) driver.ImageMemoryBarrier {
	return driver.ImageMemoryBarrier{
		SrcAccess: src,
		DstAccess: dst,
		OldLayout: i.Layout,
		NewLayout: layout,
		SrcQueue:  driver.QueueFamilyIgnored,
		DstQueue:  driver.QueueFamilyIgnored,
		Image:     i.Handle,
	}
}

func (i *Image) CreateImageView() (*ImageView, error) {
	h, err := i.Device.driver().CreateImageView(i.Device.Handle, i.Handle)
	if err != nil {
		return nil, errors.Wrap(err, "create image view")
	}
	return &ImageView{Device: i.Device, Image: i, Handle: h}, nil
}

// Destroy releases the image and its memory. Views of the image must be
// destroyed first.
func (i *Image) Destroy() {
	if i.Handle == 0 {
		return
	}
	i.Device.driver().DestroyImage(i.Device.Handle, i.Handle)
	i.Handle = 0
	if i.Memory != nil {
		i.Memory.Destroy()
		i.Memory = nil
	}
}

type layoutTransition struct {
	srcAccess driver.AccessFlags
	dstAccess driver.AccessFlags
	srcStage  driver.PipelineStageFlags
	dstStage  driver.PipelineStageFlags
}

const shaderReadWrite = driver.AccessShaderRead | driver.AccessShaderWrite

// transitions lists the layout changes a compute image goes through, keyed
// by old and new layout.
var transitions = map[[2]driver.ImageLayout]layoutTransition{
	{driver.ImageLayoutUndefined, driver.ImageLayoutTransferDstOptimal}: {
		0, driver.AccessTransferWrite,
		driver.PipelineStageTopOfPipe, driver.PipelineStageTransfer},
	{driver.ImageLayoutUndefined, driver.ImageLayoutGeneral}: {
		0, shaderReadWrite,
		driver.PipelineStageTopOfPipe, driver.PipelineStageComputeShader},
	{driver.ImageLayoutTransferDstOptimal, driver.ImageLayoutGeneral}: {
		driver.AccessTransferWrite, shaderReadWrite,
		driver.PipelineStageTransfer, driver.PipelineStageComputeShader},
	{driver.ImageLayoutTransferDstOptimal, driver.ImageLayoutShaderReadOnlyOptimal}: {
		driver.AccessTransferWrite, driver.AccessShaderRead,
		driver.PipelineStageTransfer, driver.PipelineStageComputeShader},
	{driver.ImageLayoutTransferDstOptimal, driver.ImageLayoutTransferSrcOptimal}: {
		driver.AccessTransferWrite, driver.AccessTransferRead,
		driver.PipelineStageTransfer, driver.PipelineStageTransfer},
	{driver.ImageLayoutGeneral, driver.ImageLayoutTransferSrcOptimal}: {
		driver.AccessShaderWrite, driver.AccessTransferRead,
		driver.PipelineStageComputeShader, driver.PipelineStageTransfer},
	{driver.ImageLayoutGeneral, driver.ImageLayoutTransferDstOptimal}: {
		driver.AccessShaderWrite, driver.AccessTransferWrite,
		driver.PipelineStageComputeShader, driver.PipelineStageTransfer},
	{driver.ImageLayoutShaderReadOnlyOptimal, driver.ImageLayoutTransferSrcOptimal}: {
		0, driver.AccessTransferRead,
		driver.PipelineStageComputeShader, driver.PipelineStageTransfer},
	{driver.ImageLayoutShaderReadOnlyOptimal, driver.ImageLayoutTransferDstOptimal}: {
		0, driver.AccessTransferWrite,
		driver.PipelineStageComputeShader, driver.PipelineStageTransfer},
	{driver.ImageLayoutTransferSrcOptimal, driver.ImageLayoutGeneral}: {
		0, shaderReadWrite,
		driver.PipelineStageTransfer, driver.PipelineStageComputeShader},
	{driver.ImageLayoutTransferSrcOptimal, driver.ImageLayoutShaderReadOnlyOptimal}: {
		0, driver.AccessShaderRead,
		driver.PipelineStageTransfer, driver.PipelineStageComputeShader},
	{driver.ImageLayoutTransferSrcOptimal, driver.ImageLayoutTransferDstOptimal}: {
		0, driver.AccessTransferWrite,
		driver.PipelineStageTransfer, driver.PipelineStageTransfer},
}

// TransitionImageLayout records a barrier moving img to layout and updates
// img.Layout. A transition to the current layout records nothing.
func (c *CommandBuffer) TransitionImageLayout(img *Image, layout driver.ImageLayout) error {
	if err := c.recording("image layout transition"); err != nil {
		return err
	}
	if img.Layout == layout {
		return nil
	}
	t, ok := transitions[[2]driver.ImageLayout{img.Layout, layout}]
	if !ok {
		return errors.Newf("unsupported image layout transition %s -> %s", img.Layout, layout)
	}
	c.drv().CmdImageBarrier(c.Handle, t.srcStage, t.dstStage,
		[]driver.ImageMemoryBarrier{img.Barrier(t.srcAccess, t.dstAccess, layout)})
	img.Layout = layout
	return nil
}

// imageJob runs record in a one time command buffer. img.Layout is restored
// when the work does not complete.
func (d *Device) imageJob(img *Image, record func(cb *CommandBuffer) error) error {
	prev := img.Layout
	err := d.oneTime(record)
	if err != nil {
		img.Layout = prev
	}
	return err
}

// UploadImage copies the tightly packed texels at the start of src into img
// and leaves img in layout.
func (d *Device) UploadImage(src *Buffer, img *Image, layout driver.ImageLayout) error {
	if src.Size < img.SizeInBytes() {
		return errors.Wrapf(ErrBufferOverflow, "image of %d bytes from buffer of %d", img.SizeInBytes(), src.Size)
	}
	return errors.Wrap(d.imageJob(img, func(cb *CommandBuffer) error {
		if err := cb.TransitionImageLayout(img, driver.ImageLayoutTransferDstOptimal); err != nil {
			return err
		}
		if err := cb.CmdCopyBufferToImage(src, img); err != nil {
			return err
		}
		return cb.TransitionImageLayout(img, layout)
	}), "upload image")
}

// ReadImage copies the texels of img to the start of dst, tightly packed,
// and returns img to the layout it was in.
func (d *Device) ReadImage(img *Image, dst *Buffer) error {
	if dst.Size < img.SizeInBytes() {
		return errors.Wrapf(ErrBufferOverflow, "image of %d bytes into buffer of %d", img.SizeInBytes(), dst.Size)
	}
	if img.Layout == driver.ImageLayoutUndefined {
		return errors.New("image has no defined contents")
	}
	return errors.Wrap(d.imageJob(img, func(cb *CommandBuffer) error {
		prev := img.Layout
		if err := cb.TransitionImageLayout(img, driver.ImageLayoutTransferSrcOptimal); err != nil {
			return err
		}
		if err := cb.CmdCopyImageToBuffer(img, dst); err != nil {
			return err
		}
		if err := cb.CmdPipelineBarrier(driver.PipelineStageTransfer, driver.PipelineStageHost,
			dst.Barrier(driver.AccessTransferWrite, driver.AccessHostRead)); err != nil {
			return err
		}
		return cb.TransitionImageLayout(img, prev)
	}), "read image")
}
