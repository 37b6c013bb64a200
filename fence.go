package vrx

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/hyeonjang/vrx/driver"
)

type Fence struct {
	Device *Device
	Handle driver.Fence
}

// CreateFence creates an unsignaled fence.
func (d *Device) CreateFence() (*Fence, error) {
	return d.CreateFenceWithOptions(false)
}

// CreateFenceWithOptions creates a fence, signaled or not. A signaled fence
// must be Reset before it is passed to a submit.
func (d *Device) CreateFenceWithOptions(signaled bool) (*Fence, error) {
	h, err := d.driver().CreateFence(d.Handle, signaled)
	if err != nil {
		return nil, errors.Wrap(err, "create fence")
	}
	return &Fence{Device: d, Handle: h}, nil
}

func (f *Fence) Signaled() (bool, error) {
	return f.Device.driver().FenceSignaled(f.Device.Handle, f.Handle)
}

func (f *Fence) Reset() error {
	return errors.Wrap(f.Device.driver().ResetFences(f.Device.Handle, []driver.Fence{f.Handle}), "reset fence")
}

// Wait blocks until the fence is signaled, bounded by the device's
// WaitTimeout.
func (f *Fence) Wait() error {
	return f.Device.WaitForFences(true, f.Device.WaitTimeout.Duration, f)
}

func (f *Fence) Destroy() {
	f.Device.driver().DestroyFence(f.Device.Handle, f.Handle)
}

// WaitForFences waits for all or any of the fences. A zero timeout waits
// forever.
func (d *Device) WaitForFences(waitForAll bool, timeout time.Duration, fences ...*Fence) error {
	f := make([]driver.Fence, len(fences))
	for i := range fences {
		f[i] = fences[i].Handle
	}
	err := d.driver().WaitForFences(d.Handle, f, waitForAll, Duration{timeout}.Nanoseconds())
	if errors.Is(err, ErrFenceTimeout) {
		return errors.Wrapf(err, "fence wait after %s", timeout)
	}
	return errors.Wrap(err, "wait for fences")
}
