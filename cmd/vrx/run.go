package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/spf13/cobra"

	"github.com/hyeonjang/vrx"
	"github.com/hyeonjang/vrx/driver"
)

// placeholderShader is a bare SPIR-V header, enough for the soft driver which
// runs a Go kernel in place of the module.
var placeholderShader = vrx.Uint32Slice{0x07230203, 0x00010000, 0, 1, 0}.Bytes()

// poolSlack leaves room for aligning the second buffer placed in the host
// pool.
const poolSlack = 64 << 10

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Upload 0..n-1, dispatch the shader and verify the copy back is offset by --add",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}
}

func loadShader(dev *vrx.Device, cfg vrx.Config) (*vrx.ShaderModule, error) {
	if cfg.Run.Shader != "" {
		return dev.LoadShaderModuleFromFile(cfg.Run.Shader)
	}
	if cfg.Run.Driver != "soft" {
		return nil, errors.New("a SPIR-V shader is required, pass --shader")
	}
	return dev.LoadShaderModule("placeholder", placeholderShader)
}

func run(cmd *cobra.Command, cfg vrx.Config) error {
	ctx, dev, err := open(cfg)
	if err != nil {
		return err
	}
	defer ctx.Destroy()
	defer dev.Destroy()

	data := vrx.Sequence(cfg.Run.Elements)
	size := data.SizeInBytes()

	pool, err := dev.NewBufferPool("host", 2*size+poolSlack, vrx.StorageUsage, vrx.HostVisibleMemory)
	if err != nil {
		return err
	}
	defer pool.Destroy()
	staging, err := pool.AllocateBuffer(size)
	if err != nil {
		return err
	}
	result, err := pool.AllocateBuffer(size)
	if err != nil {
		return err
	}
	device, err := dev.CreateDeviceBuffer(size)
	if err != nil {
		return err
	}
	defer device.Destroy()

	desc, err := dev.NewDescriptor(1)
	if err != nil {
		return err
	}
	defer desc.Destroy()
	if err := desc.UpdateBuffer(0, device, 0, 0); err != nil {
		return err
	}

	shader, err := loadShader(dev, cfg)
	if err != nil {
		return err
	}
	defer shader.Destroy()
	pipeline, err := dev.NewComputePipelineWithPushConstants(desc, shader, cfg.Run.EntryPoint,
		driver.PushConstantRange{Stages: driver.ShaderStageCompute, Size: 4})
	if err != nil {
		return err
	}
	defer pipeline.Destroy()

	groups := (cfg.Run.Elements + cfg.Run.WorkgroupSize - 1) / cfg.Run.WorkgroupSize

	start := hrtime.Now()
	if err := staging.Write(data.Bytes()); err != nil {
		return err
	}
	if err := dev.Upload(staging, device, size); err != nil {
		return err
	}
	uploaded := hrtime.Since(start)
	if err := dev.RunCompute(vrx.ComputeJob{
		Pipeline:      pipeline,
		Groups:        [3]int{groups},
		Device:        device,
		Host:          result,
		Size:          size,
		PushConstants: vrx.Uint32Slice{cfg.Run.Add}.Bytes(),
	}); err != nil {
		return err
	}
	computed := hrtime.Since(start)

	out, err := result.Bytes()
	if err != nil {
		return err
	}
	want := make(vrx.Uint32Slice, len(data))
	for i, v := range data {
		want[i] = v + cfg.Run.Add
	}
	if err := verify(want, vrx.Uint32s(out)); err != nil {
		return err
	}

	pool.LogDetails()
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s: %d elements in %d workgroups of %d on queue family %d\n",
		dev.PhysicalDevice, len(data), groups, cfg.Run.WorkgroupSize, dev.QueueFamily.Index)
	fmt.Fprintf(w, "\tupload   %v\n", uploaded)
	fmt.Fprintf(w, "\tdispatch %v\n", computed-uploaded)
	fmt.Fprintf(w, "\ttotal    %v\n", computed)
	return nil
}

func verify(want, got vrx.Uint32Slice) error {
	if len(got) != len(want) {
		return errors.Newf("read back %d elements, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return errors.Newf("element %d: got %d, want %d", i, got[i], want[i])
		}
	}
	return nil
}
