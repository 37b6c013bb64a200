package vrx

import (
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyeonjang/vrx/driver"
)

func TestDescriptorCount(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.dev.NewDescriptor(0)
	assert.True(t, errors.Is(err, ErrInvalidCount))

	for _, n := range []int{1, 2, 5} {
		desc, err := e.dev.NewDescriptor(n)
		require.NoError(t, err)
		assert.Equal(t, n, desc.Count())
		assert.Len(t, desc.Layouts(), n)
		assert.Len(t, desc.Sets(), n)
		assert.Len(t, desc.SetHandles(), n)
		assert.Len(t, desc.LayoutHandles(), n)
		for i, l := range desc.Layouts() {
			b, ok := l.Binding(0)
			require.True(t, ok)
			assert.Equal(t, driver.DescriptorTypeStorageBuffer, b.Type)
			assert.Equal(t, driver.ShaderStageCompute, b.Stages)
			assert.Same(t, l, desc.Sets()[i].Layout)
		}
		desc.Destroy()
	}
}

func TestDescriptorUpdateBuffer(t *testing.T) {
	e := newTestEnv(t)
	a := e.deviceBuffer(t, 64)
	b := e.deviceBuffer(t, 128)

	desc, err := e.dev.NewDescriptor(2)
	require.NoError(t, err)
	defer desc.Destroy()

	require.NoError(t, desc.UpdateBuffer(0, a, 0, 0))
	require.NoError(t, desc.UpdateBuffer(1, b, 16, 32))

	sets := desc.SetHandles()
	assert.Equal(t, []driver.DescriptorBufferInfo{{Buffer: a.Handle, Range: driver.WholeSize}}, e.drv.BoundBuffers(sets[0], 0))
	assert.Equal(t, []driver.DescriptorBufferInfo{{Buffer: b.Handle, Offset: 16, Range: 32}}, e.drv.BoundBuffers(sets[1], 0))

	for _, index := range []int{2, 3, -1} {
		err := desc.UpdateBuffer(index, a, 0, 0)
		assert.True(t, errors.Is(err, ErrDescriptorIndex), "index %d", index)
	}
	assert.True(t, errors.Is(desc.UpdateBuffer(0, a, 32, 64), ErrBufferOverflow))
	assert.True(t, errors.Is(desc.UpdateBuffer(0, a, 64, 0), ErrBufferOverflow))
	assert.True(t, errors.Is(desc.UpdateBuffer(0, a, 16, math.MaxUint64-8), ErrBufferOverflow), "offset plus range wraps")
	assert.Equal(t, []driver.DescriptorBufferInfo{{Buffer: a.Handle, Range: driver.WholeSize}}, e.drv.BoundBuffers(sets[0], 0), "rejected ranges are not written")
}

func TestDescriptorUpdateImage(t *testing.T) {
	e := newTestEnv(t)
	img := e.storageImage(t, 4, 4)
	view, err := img.CreateImageView()
	require.NoError(t, err)
	t.Cleanup(view.Destroy)

	buffers, err := e.dev.NewDescriptor(1)
	require.NoError(t, err)
	defer buffers.Destroy()
	assert.Error(t, buffers.UpdateImage(0, view, driver.ImageLayoutGeneral), "storage buffer descriptors take no images")

	images, err := e.dev.NewDescriptorWithOptions(2, driver.DescriptorTypeStorageImage)
	require.NoError(t, err)
	defer images.Destroy()

	require.NoError(t, images.UpdateImage(1, view, driver.ImageLayoutGeneral))
	assert.Equal(t, []driver.DescriptorImageInfo{{ImageView: view.Handle, Layout: driver.ImageLayoutGeneral}}, e.drv.BoundImages(images.SetHandles()[1], 0))
	assert.True(t, errors.Is(images.UpdateImage(2, view, driver.ImageLayoutGeneral), ErrDescriptorIndex))
	assert.Error(t, images.UpdateImage(0, nil, driver.ImageLayoutGeneral))

	gone, err := img.CreateImageView()
	require.NoError(t, err)
	gone.Destroy()
	assert.Error(t, images.UpdateImage(0, gone, driver.ImageLayoutGeneral), "destroyed view")
	assert.Empty(t, e.drv.BoundImages(images.SetHandles()[0], 0))
}

func TestDescriptorSetWriteChecksLayout(t *testing.T) {
	e := newTestEnv(t)
	buf := e.deviceBuffer(t, 64)

	desc, err := e.dev.NewDescriptor(1)
	require.NoError(t, err)
	defer desc.Destroy()

	set := desc.Sets()[0]
	set.AddBuffer(1, driver.DescriptorTypeStorageBuffer, buf, 0, 0)
	assert.Error(t, set.Write(), "no binding 1")
	set.AddBuffer(0, driver.DescriptorTypeUniformBuffer, buf, 0, 0)
	assert.Error(t, set.Write(), "binding 0 holds storage buffers")
	assert.Empty(t, e.drv.BoundBuffers(set.Handle, 0))
}

func TestDescriptorPoolLimit(t *testing.T) {
	e := newTestEnv(t)

	layout := e.dev.NewDescriptorSetLayout()
	layout.AddBinding(0, driver.DescriptorTypeStorageBuffer, 1)
	_, err := e.dev.CreateDescriptorSetLayout(layout)
	require.NoError(t, err)
	defer layout.Destroy()

	pool := e.dev.NewDescriptorPool()
	pool.AddPoolSize(driver.DescriptorTypeStorageBuffer, 1)
	_, err = e.dev.CreateDescriptorPool(pool, 1)
	require.NoError(t, err)
	defer pool.Destroy()

	sets, err := pool.Allocate(layout)
	require.NoError(t, err)
	_, err = pool.Allocate(layout)
	assert.Error(t, err, "pool holds one set")

	require.NoError(t, pool.Free(sets...))
	_, err = pool.Allocate(layout)
	assert.NoError(t, err, "freed sets return to the pool")

	_, err = e.dev.CreateDescriptorPool(e.dev.NewDescriptorPool(), 0)
	assert.True(t, errors.Is(err, ErrInvalidCount))
}
