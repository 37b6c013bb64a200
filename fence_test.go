package vrx

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emptyCommandBuffer(t *testing.T, d *Device) *CommandBuffer {
	t.Helper()
	cb, err := d.CommandPool.AllocateBuffer()
	require.NoError(t, err)
	t.Cleanup(func() { d.CommandPool.FreeBuffer(cb) })
	require.NoError(t, cb.Begin())
	require.NoError(t, cb.End())
	return cb
}

func TestFenceLifecycle(t *testing.T) {
	e := newTestEnv(t)
	cb := emptyCommandBuffer(t, e.dev)

	f, err := e.dev.CreateFenceWithOptions(true)
	require.NoError(t, err)
	defer f.Destroy()

	signaled, err := f.Signaled()
	require.NoError(t, err)
	assert.True(t, signaled)
	assert.Error(t, e.dev.Queue.SubmitWithFence(f, cb), "signaled fence must be reset before submit")

	require.NoError(t, f.Reset())
	signaled, err = f.Signaled()
	require.NoError(t, err)
	assert.False(t, signaled)

	require.NoError(t, e.dev.Queue.SubmitWithFence(f, cb))
	require.NoError(t, f.Wait())
	for i := 0; i < 2; i++ {
		signaled, err = f.Signaled()
		require.NoError(t, err)
		assert.True(t, signaled, "stays signaled until reset")
	}

	require.NoError(t, f.Reset())
	signaled, err = f.Signaled()
	require.NoError(t, err)
	assert.False(t, signaled)
}

func TestFenceWaitTimeout(t *testing.T) {
	e := newTestEnv(t)
	f, err := e.dev.CreateFence()
	require.NoError(t, err)
	defer f.Destroy()

	e.dev.WaitTimeout = Duration{10 * time.Millisecond}
	err = f.Wait()
	assert.True(t, errors.Is(err, ErrFenceTimeout))

	e.dev.WaitTimeout = Duration{}
	err = f.Wait()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrFenceTimeout))
}

func TestWaitForAnyFence(t *testing.T) {
	e := newTestEnv(t)
	done, err := e.dev.CreateFenceWithOptions(true)
	require.NoError(t, err)
	defer done.Destroy()
	pending, err := e.dev.CreateFence()
	require.NoError(t, err)
	defer pending.Destroy()

	assert.NoError(t, e.dev.WaitForFences(false, time.Millisecond, done, pending))
	assert.True(t, errors.Is(e.dev.WaitForFences(true, time.Millisecond, done, pending), ErrFenceTimeout))
}
