package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/hyeonjang/vrx/driver"
)

func (d *Driver) CreateFence(h driver.Device, signaled bool) (driver.Fence, error) {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return 0, err
	}
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := check(vk.CreateFence(dev.vk, &fenceCreateInfo, nil, &fence), "vkCreateFence"); err != nil {
		return 0, err
	}
	return driver.Fence(d.put(fence)), nil
}

func (d *Driver) DestroyFence(h driver.Device, f driver.Fence) {
	dev, ok := must[*device](d, uint64(h), "vkDestroyFence")
	if !ok {
		return
	}
	fence, ok := must[vk.Fence](d, uint64(f), "vkDestroyFence")
	if !ok {
		return
	}
	vk.DestroyFence(dev.vk, fence, nil)
	d.remove(uint64(f))
}

func (d *Driver) fences(fences []driver.Fence) ([]vk.Fence, error) {
	ret := make([]vk.Fence, len(fences))
	for i, f := range fences {
		fence, err := get[vk.Fence](d, uint64(f))
		if err != nil {
			return nil, err
		}
		ret[i] = fence
	}
	return ret, nil
}

func (d *Driver) ResetFences(h driver.Device, fences []driver.Fence) error {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return err
	}
	f, err := d.fences(fences)
	if err != nil {
		return err
	}
	return check(vk.ResetFences(dev.vk, uint32(len(f)), f), "vkResetFences")
}

func (d *Driver) FenceSignaled(h driver.Device, f driver.Fence) (bool, error) {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return false, err
	}
	fence, err := get[vk.Fence](d, uint64(f))
	if err != nil {
		return false, err
	}
	switch ret := vk.GetFenceStatus(dev.vk, fence); ret {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, check(ret, "vkGetFenceStatus")
	}
}

func (d *Driver) WaitForFences(h driver.Device, fences []driver.Fence, waitAll bool, timeout uint64) error {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return err
	}
	f, err := d.fences(fences)
	if err != nil {
		return err
	}
	wait := vk.False
	if waitAll {
		wait = vk.True
	}
	ret := vk.WaitForFences(dev.vk, uint32(len(f)), f, vk.Bool32(wait), timeout)
	if ret == vk.Timeout {
		return errors.Wrapf(driver.ErrFenceTimeout, "after %dns", timeout)
	}
	return check(ret, "vkWaitForFences")
}
