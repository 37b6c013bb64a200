package vrx

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/hyeonjang/vrx/driver"
	"github.com/hyeonjang/vrx/driver/soft"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Run.Driver = "soft"
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

type testEnv struct {
	drv *soft.Driver
	ctx *Context
	dev *Device
}

func newTestEnvWith(t *testing.T, scfg soft.Config, cfg Config) *testEnv {
	t.Helper()
	e := &testEnv{drv: soft.New(scfg)}
	var err error
	e.ctx, err = NewContext(e.drv, cfg)
	require.NoError(t, err)
	e.dev, err = e.ctx.NewDevice()
	require.NoError(t, err)
	t.Cleanup(e.destroy)
	return e
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, soft.DefaultConfig(), testConfig())
}

func (e *testEnv) destroy() {
	e.dev.Destroy()
	e.ctx.Destroy()
}

func (e *testEnv) hostBuffer(t *testing.T, size uint64) *Buffer {
	t.Helper()
	b, err := e.dev.CreateHostBuffer(size)
	require.NoError(t, err)
	t.Cleanup(b.Destroy)
	return b
}

func (e *testEnv) deviceBuffer(t *testing.T, size uint64) *Buffer {
	t.Helper()
	b, err := e.dev.CreateDeviceBuffer(size)
	require.NoError(t, err)
	t.Cleanup(b.Destroy)
	return b
}

func (e *testEnv) storageImage(t *testing.T, width, height int) *Image {
	t.Helper()
	img, err := e.dev.CreateStorageImage(width, height, driver.FormatR32Uint)
	require.NoError(t, err)
	t.Cleanup(img.Destroy)
	return img
}

// pipeline builds a one set pipeline whose set 0 is bound to b.
func (e *testEnv) pipeline(t *testing.T, entryPoint string, b *Buffer) *ComputePipeline {
	t.Helper()
	desc, err := e.dev.NewDescriptor(1)
	require.NoError(t, err)
	t.Cleanup(desc.Destroy)
	require.NoError(t, desc.UpdateBuffer(0, b, 0, 0))

	shader, err := e.dev.LoadShaderModule("test", make([]byte, 16))
	require.NoError(t, err)
	t.Cleanup(shader.Destroy)

	p, err := e.dev.NewComputePipeline(desc, shader, entryPoint)
	require.NoError(t, err)
	t.Cleanup(p.Destroy)
	return p
}
