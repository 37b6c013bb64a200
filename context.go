package vrx

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/hyeonjang/vrx/driver"
)

// Context owns the driver instance and the physical devices it reports. It
// is created explicitly and passed to whatever needs it, there is no
// process wide instance.
type Context struct {
	Driver          driver.Driver
	Config          Config
	Instance        driver.Instance
	physicalDevices []*PhysicalDevice
	logger          *slog.Logger
}

// NewContext creates the instance described by cfg on drv and enumerates its
// physical devices.
func NewContext(drv driver.Driver, cfg Config) (*Context, error) {
	appVersion, err := ParseVersion(cfg.App.Version)
	if err != nil {
		return nil, errors.Wrap(err, "app version")
	}
	apiVersion, err := ParseVersion(cfg.App.APIVersion)
	if err != nil {
		return nil, errors.Wrap(err, "api version")
	}

	c := &Context{Driver: drv, Config: cfg, logger: cfg.logger()}

	c.Instance, err = drv.CreateInstance(driver.InstanceInfo{
		ApplicationName:    cfg.App.Name,
		ApplicationVersion: appVersion,
		EngineName:         cfg.App.EngineName,
		EngineVersion:      appVersion,
		APIVersion:         apiVersion,
		EnabledLayers:      cfg.EnabledLayers(),
		EnabledExtensions:  cfg.EnabledExtensions(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create instance")
	}

	handles, err := drv.EnumeratePhysicalDevices(c.Instance)
	if err != nil {
		drv.DestroyInstance(c.Instance)
		return nil, errors.Wrap(err, "enumerate physical devices")
	}
	if len(handles) == 0 {
		drv.DestroyInstance(c.Instance)
		return nil, ErrNoPhysicalDevice
	}
	for i, h := range handles {
		c.physicalDevices = append(c.physicalDevices, &PhysicalDevice{
			Context:    c,
			Handle:     h,
			Index:      i,
			Properties: drv.PhysicalDeviceProperties(h),
			Memory:     drv.MemoryProperties(h),
		})
	}

	c.logger.Debug("instance created",
		slog.String("driver", drv.Name()),
		slog.String("api", apiVersion.String()),
		slog.Int("physicalDevices", len(c.physicalDevices)))
	return c, nil
}

func (c *Context) PhysicalDevices() []*PhysicalDevice {
	return c.physicalDevices
}

func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// Destroy releases the instance. Devices created from c must be destroyed
// first.
func (c *Context) Destroy() {
	c.Driver.DestroyInstance(c.Instance)
	c.physicalDevices = nil
}
