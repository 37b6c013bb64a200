package vrx

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/hyeonjang/vrx/driver"
)

// Device is a logical device with one compute queue and the command pool
// feeding it.
type Device struct {
	Context        *Context
	PhysicalDevice *PhysicalDevice
	Handle         driver.Device
	QueueFamily    *QueueFamily
	Queue          *Queue
	CommandPool    *CommandPool
	// WaitTimeout bounds fence waits, zero waits forever.
	WaitTimeout Duration
	logger      *slog.Logger
}

type DeviceOptions struct {
	DeviceIndex       int
	QueueFamily       QueueFamilyPolicy
	EnabledExtensions []string
}

// NewDevice creates a device with the options from the Context's Config.
func (c *Context) NewDevice() (*Device, error) {
	return c.NewDeviceWithOptions(DeviceOptions{
		DeviceIndex: c.Config.DeviceIndex,
		QueueFamily: c.Config.QueueFamily,
	})
}

func (c *Context) NewDeviceWithOptions(opts DeviceOptions) (*Device, error) {
	if opts.DeviceIndex < 0 || opts.DeviceIndex >= len(c.physicalDevices) {
		return nil, errors.Wrapf(ErrNoPhysicalDevice, "device index %d of %d", opts.DeviceIndex, len(c.physicalDevices))
	}
	pd := c.physicalDevices[opts.DeviceIndex]

	qf, err := SelectComputeQueueFamily(pd.QueueFamilies(), opts.QueueFamily)
	if err != nil {
		return nil, errors.Wrapf(err, "physical device %q", pd)
	}

	handle, err := c.Driver.CreateDevice(pd.Handle, driver.DeviceInfo{
		QueueFamilyIndex:  uint32(qf.Index),
		QueuePriorities:   []float32{1.0},
		EnabledExtensions: opts.EnabledExtensions,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create device on %q", pd)
	}

	d := &Device{
		Context:        c,
		PhysicalDevice: pd,
		Handle:         handle,
		QueueFamily:    qf,
		WaitTimeout:    c.Config.WaitTimeout,
		logger:         c.logger,
	}
	d.Queue = d.GetQueue(qf)

	d.CommandPool, err = d.CreateCommandPool(qf)
	if err != nil {
		c.Driver.DestroyDevice(handle)
		return nil, err
	}

	d.logger.Debug("device selected",
		slog.String("device", pd.String()),
		slog.Int("queueFamily", qf.Index),
		slog.String("policy", opts.QueueFamily.String()))
	return d, nil
}

func (d *Device) driver() driver.Driver {
	return d.Context.Driver
}

func (d *Device) Logger() *slog.Logger {
	return d.logger
}

func (d *Device) GetQueue(qf *QueueFamily) *Queue {
	return &Queue{
		Device:      d,
		QueueFamily: qf,
		Handle:      d.driver().GetQueue(d.Handle, uint32(qf.Index), 0),
	}
}

func (d *Device) WaitIdle() error {
	return errors.Wrap(d.driver().DeviceWaitIdle(d.Handle), "device wait idle")
}

// Destroy releases the command pool and the device. Resources created from
// d must be destroyed first.
func (d *Device) Destroy() {
	if d.CommandPool != nil {
		d.CommandPool.Destroy()
		d.CommandPool = nil
	}
	d.driver().DestroyDevice(d.Handle)
}

func (d *Device) String() string {
	return fmt.Sprintf("{ PhysicalDevice: %s QueueFamily: %d }", d.PhysicalDevice, d.QueueFamily.Index)
}
