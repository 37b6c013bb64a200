package main

import (
	"fmt"
	"io"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/hyeonjang/vrx"
)

// loaderInfo is implemented by drivers which can list what the loader
// offers before an instance exists.
type loaderInfo interface {
	SupportedLayers() ([]string, error)
	SupportedExtensions() ([]string, error)
}

func newInfoCommand(opts *options) *cobra.Command {
	var showLoader bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "List physical devices, queue families and memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			drv, err := newDriver(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if li, ok := drv.(loaderInfo); ok && showLoader {
				layers, err := li.SupportedLayers()
				if err != nil {
					return err
				}
				list(out, "Layers", layers)
				extensions, err := li.SupportedExtensions()
				if err != nil {
					return err
				}
				list(out, "Extensions", extensions)
			}

			ctx, err := vrx.NewContext(drv, cfg)
			if err != nil {
				return err
			}
			defer ctx.Destroy()
			for _, pd := range ctx.PhysicalDevices() {
				showPhysicalDevice(out, pd, cfg)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showLoader, "loader", false, "also list the layers and extensions offered by the loader")
	return cmd
}

func list(w io.Writer, title string, data []string) {
	fmt.Fprintf(w, "%s\n", title)
	fmt.Fprintf(w, "-----------------------------\n")
	for _, d := range data {
		fmt.Fprintf(w, "\t%s\n", d)
	}
	fmt.Fprintf(w, "\n")
}

func showPhysicalDevice(w io.Writer, pd *vrx.PhysicalDevice, cfg vrx.Config) {
	p := pd.Properties
	fmt.Fprintf(w, "\n[%d] %s\n", pd.Index, p.Name)
	fmt.Fprintf(w, "-----------------------------\n")
	fmt.Fprintf(w, "\tType %s, API %s, vendor %#x, device %#x\n",
		p.Type, p.APIVersion, p.VendorID, p.DeviceID)

	families := pd.QueueFamilies()
	selected, _ := vrx.SelectComputeQueueFamily(families, cfg.QueueFamily)
	fmt.Fprintf(w, "\n\tQueue Families (policy %s)\n", cfg.QueueFamily)
	for _, qf := range families {
		mark := ""
		if qf == selected {
			mark = "*"
		}
		fmt.Fprintf(w, "\t\t%s%d\t%s\tx%d\n", mark, qf.Index, qf.Properties.Flags, qf.Properties.Count)
	}

	fmt.Fprintf(w, "\n\tMemory Types %s\n", pd.MemoryTypes())
	fmt.Fprintf(w, "\t\tIdx\tHeap\tFlags\n")
	for i, mt := range pd.Memory.Types {
		fmt.Fprintf(w, "\t\t%d\t%d\t%s\n", i, mt.HeapIndex, mt.PropertyFlags)
	}

	fmt.Fprintf(w, "\n\tHeaps\n")
	for i, h := range pd.Memory.Heaps {
		fmt.Fprintf(w, "\t\t%d\t%s\t%s\n", i, units.BytesSize(float64(h.Size)), h.Flags)
	}
}
