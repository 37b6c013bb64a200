// Command vrx inspects compute devices and runs a round trip through the
// copy, dispatch and copy back protocol.
package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/hyeonjang/vrx"
	"github.com/hyeonjang/vrx/driver"
	"github.com/hyeonjang/vrx/driver/soft"
	"github.com/hyeonjang/vrx/driver/vulkan"
)

type options struct {
	configPath string
	driverName string
	elements   int
	shader     string
	entryPoint string
	validation bool
	logLevel   string
	add        uint32
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "vrx: %+v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "vrx",
		Short:         "Vulkan compute resource tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "TOML configuration file")
	f.StringVar(&opts.driverName, "driver", vrx.DefaultDriverName, "driver to use, vulkan or soft")
	f.IntVar(&opts.elements, "elements", vrx.DefaultElements, "number of uint32 elements to round trip")
	f.StringVar(&opts.shader, "shader", "", "SPIR-V compute shader")
	f.StringVar(&opts.entryPoint, "entry-point", vrx.DefaultEntryPoint, "shader entry point")
	f.BoolVar(&opts.validation, "validation", false, "enable the Khronos validation layer")
	f.StringVar(&opts.logLevel, "log-level", vrx.DefaultLogLevelString, "debug, info, warn or error")
	f.Uint32Var(&opts.add, "add", 0, "push constant the shader adds to every element")

	root.AddCommand(newInfoCommand(opts), newRunCommand(opts))
	return root
}

// config loads the configuration file, if any, and applies the flags the
// user set on top of it.
func (o *options) config(cmd *cobra.Command) (vrx.Config, error) {
	cfg := vrx.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = vrx.LoadConfig(o.configPath); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Run.Driver = o.driverName
	}
	if flags.Changed("elements") {
		cfg.Run.Elements = o.elements
	}
	if flags.Changed("shader") {
		cfg.Run.Shader = o.shader
	}
	if flags.Changed("entry-point") {
		cfg.Run.EntryPoint = o.entryPoint
	}
	if flags.Changed("validation") {
		cfg.Validation = o.validation
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("add") {
		cfg.Run.Add = o.add
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	cfg.Logger = cfg.NewLogger(cmd.ErrOrStderr())
	return cfg, nil
}

func newDriver(cfg vrx.Config) (driver.Driver, error) {
	switch cfg.Run.Driver {
	case "vulkan":
		return vulkan.New(vulkan.Options{Logger: cfg.Logger, DebugReport: cfg.Validation})
	case "soft":
		scfg := soft.DefaultConfig()
		scfg.Logger = cfg.Logger
		scfg.Kernels[cfg.Run.EntryPoint] = soft.AddUint32
		return soft.New(scfg), nil
	}
	return nil, errors.Newf("unknown driver %q", cfg.Run.Driver)
}

// open creates the driver, the context and its default device.
func open(cfg vrx.Config) (*vrx.Context, *vrx.Device, error) {
	drv, err := newDriver(cfg)
	if err != nil {
		return nil, nil, err
	}
	ctx, err := vrx.NewContext(drv, cfg)
	if err != nil {
		return nil, nil, err
	}
	dev, err := ctx.NewDevice()
	if err != nil {
		ctx.Destroy()
		return nil, nil, err
	}
	return ctx, dev, nil
}
