package vrx

import (
	"github.com/hyeonjang/vrx/driver"
)

// ImageView is a 2D color view of a whole Image.
type ImageView struct {
	Device *Device
	Image  *Image
	Handle driver.ImageView
}

// DescriptorInfo describes the view for a descriptor write, accessed by the
// shader in layout.
func (v *ImageView) DescriptorInfo(layout driver.ImageLayout) driver.DescriptorImageInfo {
	return driver.DescriptorImageInfo{ImageView: v.Handle, Layout: layout}
}

func (v *ImageView) Destroy() {
	if v.Handle == 0 {
		return
	}
	v.Device.driver().DestroyImageView(v.Device.Handle, v.Handle)
	v.Handle = 0
}
