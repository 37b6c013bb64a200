package soft

import (
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/hyeonjang/vrx/driver"
)

// image stores texels row major and tightly packed. layout is the layout
// the executed commands left it in.
type image struct {
	info   driver.ImageInfo
	req    driver.MemoryRequirements
	memory *memory
	offset uint64
	layout driver.ImageLayout
}

func (i *image) size() uint64 {
	return uint64(i.info.Width) * uint64(i.info.Height) * i.info.Format.TexelSize()
}

func (i *image) bytes() ([]byte, error) {
	if i.memory == nil {
		return nil, errors.New("image has no memory bound")
	}
	return i.memory.data[i.offset : i.offset+i.size()], nil
}

type imageView struct {
	image driver.Image
}

func (d *Driver) CreateImage(h driver.Device, info driver.ImageInfo) (driver.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, err := lookup[device](d, uint64(h))
	if err != nil {
		return 0, err
	}
	if info.Width == 0 || info.Height == 0 {
		return 0, errors.Newf("image extent %dx%d must be greater than zero", info.Width, info.Height)
	}
	if info.Format.TexelSize() == 0 {
		return 0, errors.Newf("unsupported image format %s", info.Format)
	}
	if info.Usage == 0 {
		return 0, errors.New("image usage must not be empty")
	}
	desc := dev.physical.desc
	align := desc.Alignment
	if align == 0 {
		align = 16
	}
	bits := desc.RequirementBits
	if bits == 0 {
		bits = uint32(1)<<uint(len(desc.Memory.Types)) - 1
	}
	img := &image{info: info, layout: driver.ImageLayoutUndefined}
	img.req = driver.MemoryRequirements{
		Size:           alignUp(img.size(), align),
		Alignment:      align,
		MemoryTypeBits: bits,
	}
	return driver.Image(d.put(img)), nil
}

func (d *Driver) DestroyImage(h driver.Device, i driver.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := lookup[image](d, uint64(i)); err == nil {
		delete(d.objects, uint64(i))
	}
}

func (d *Driver) ImageMemoryRequirements(h driver.Device, i driver.Image) driver.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, err := lookup[image](d, uint64(i))
	if err != nil {
		return driver.MemoryRequirements{}
	}
	return img.req
}

func (d *Driver) BindImageMemory(h driver.Device, i driver.Image, m driver.DeviceMemory, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, err := lookup[image](d, uint64(i))
	if err != nil {
		return err
	}
	mem, err := lookup[memory](d, uint64(m))
	if err != nil {
		return err
	}
	if img.memory != nil {
		return errors.New("image already has memory bound")
	}
	if offset%img.req.Alignment != 0 {
		return errors.Newf("offset %d is not aligned to %d", offset, img.req.Alignment)
	}
	if img.req.MemoryTypeBits&(1<<mem.typeIndex) == 0 {
		return errors.Newf("memory type %d not allowed by requirement bits %b", mem.typeIndex, img.req.MemoryTypeBits)
	}
	if !inBounds(offset, img.size(), uint64(len(mem.data))) {
		return errors.Newf("image of %d bytes at offset %d exceeds allocation of %d bytes", img.size(), offset, len(mem.data))
	}
	img.memory = mem
	img.offset = offset
	return nil
}

func (d *Driver) CreateImageView(h driver.Device, i driver.Image) (driver.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := lookup[device](d, uint64(h)); err != nil {
		return 0, err
	}
	if _, err := lookup[image](d, uint64(i)); err != nil {
		return 0, err
	}
	return driver.ImageView(d.put(&imageView{image: i})), nil
}

func (d *Driver) DestroyImageView(h driver.Device, v driver.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := lookup[imageView](d, uint64(v)); err == nil {
		delete(d.objects, uint64(v))
	}
}

// ImageLayout returns the layout the executed commands left image in.
func (d *Driver) ImageLayout(i driver.Image) driver.ImageLayout {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, err := lookup[image](d, uint64(i))
	if err != nil {
		return driver.ImageLayoutUndefined
	}
	return img.layout
}

func (d *Driver) execImageBarrier(barriers []driver.ImageMemoryBarrier) error {
	for _, b := range barriers {
		img, err := lookup[image](d, uint64(b.Image))
		if err != nil {
			return err
		}
		// Undefined as the old layout discards the contents, any current
		// layout matches it.
		if b.OldLayout != driver.ImageLayoutUndefined && b.OldLayout != img.layout {
			return errors.Newf("image %d is in layout %s, barrier expects %s", b.Image, img.layout, b.OldLayout)
		}
		if b.NewLayout == driver.ImageLayoutUndefined {
			return errors.Newf("image %d cannot transition to layout %s", b.Image, b.NewLayout)
		}
		img.layout = b.NewLayout
	}
	return nil
}

// imageCopy resolves a buffer image copy to the image and buffer bytes it
// touches. layout is the layout the command claims the image is in.
func (d *Driver) imageCopy(bh driver.Buffer, ih driver.Image, layout driver.ImageLayout, want driver.ImageLayout) (*image, []byte, []byte, error) {
	img, err := lookup[image](d, uint64(ih))
	if err != nil {
		return nil, nil, nil, err
	}
	if layout != want && layout != driver.ImageLayoutGeneral {
		return nil, nil, nil, errors.Newf("copy needs image layout %s or General, not %s", want, layout)
	}
	if img.layout != layout {
		return nil, nil, nil, errors.Newf("image %d is in layout %s, copy expects %s", ih, img.layout, layout)
	}
	buf, err := lookup[buffer](d, uint64(bh))
	if err != nil {
		return nil, nil, nil, err
	}
	bb, err := buf.bytes()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "buffer")
	}
	ib, err := img.bytes()
	if err != nil {
		return nil, nil, nil, err
	}
	return img, bb, ib, nil
}

// rows calls f for every row of region with the byte offsets of the row in
// the buffer and in the image.
func rows(img *image, r driver.BufferImageCopy, buffer []byte, f func(bufOff, imgOff, n uint64)) error {
	if r.Width == 0 || r.Height == 0 || r.Width > img.info.Width || r.Height > img.info.Height {
		return errors.Newf("region %dx%d does not fit image %dx%d", r.Width, r.Height, img.info.Width, img.info.Height)
	}
	texel := img.info.Format.TexelSize()
	row := uint64(r.Width) * texel
	if !inBounds(r.BufferOffset, row*uint64(r.Height), uint64(len(buffer))) {
		return errors.Newf("region %dx%d at buffer offset %d exceeds buffer of %d bytes", r.Width, r.Height, r.BufferOffset, len(buffer))
	}
	for y := uint64(0); y < uint64(r.Height); y++ {
		f(r.BufferOffset+y*row, y*uint64(img.info.Width)*texel, row)
	}
	return nil
}

func (d *Driver) execCopyBufferToImage(cmd Command) error {
	img, bb, ib, err := d.imageCopy(cmd.Src, cmd.Image, cmd.ImageLayout, driver.ImageLayoutTransferDstOptimal)
	if err != nil {
		return err
	}
	for _, r := range cmd.ImageRegions {
		if err := rows(img, r, bb, func(bufOff, imgOff, n uint64) {
			copy(ib[imgOff:imgOff+n], bb[bufOff:bufOff+n])
		}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) execCopyImageToBuffer(cmd Command) error {
	img, bb, ib, err := d.imageCopy(cmd.Dst, cmd.Image, cmd.ImageLayout, driver.ImageLayoutTransferSrcOptimal)
	if err != nil {
		return err
	}
	for _, r := range cmd.ImageRegions {
		if err := rows(img, r, bb, func(bufOff, imgOff, n uint64) {
			copy(bb[bufOff:bufOff+n], ib[imgOff:imgOff+n])
		}); err != nil {
			return err
		}
	}
	return nil
}

// bindImages appends the images written to set s to inv. Each image must be
// in the layout its descriptor was written with.
func (d *Driver) bindImages(inv *Invocation, set uint32, s *descriptorSet) error {
	bindings := make([]uint32, 0, len(s.images))
	for b := range s.images {
		bindings = append(bindings, b)
	}
	sort.Slice(bindings, func(i, j int) bool { return bindings[i] < bindings[j] })
	for _, b := range bindings {
		for _, info := range s.images[b] {
			view, err := lookup[imageView](d, uint64(info.ImageView))
			if err != nil {
				return errors.Wrapf(err, "set %d binding %d", set, b)
			}
			img, err := lookup[image](d, uint64(view.image))
			if err != nil {
				return errors.Wrapf(err, "set %d binding %d", set, b)
			}
			if img.layout != info.Layout {
				return errors.Newf("set %d binding %d: image is in layout %s, descriptor expects %s", set, b, img.layout, info.Layout)
			}
			data, err := img.bytes()
			if err != nil {
				return errors.Wrapf(err, "set %d binding %d", set, b)
			}
			inv.Images = append(inv.Images, ImageData{
				Width:  img.info.Width,
				Height: img.info.Height,
				Format: img.info.Format,
				Texels: data,
			})
		}
	}
	return nil
}
