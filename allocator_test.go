package vrx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlign(t *testing.T) {
	assert.Equal(t, uint64(12), makeAlignUp(12, 3))
	assert.Equal(t, uint64(12), makeAlignUp(10, 3))
	assert.Equal(t, uint64(7), makeAlignUp(7, 0))
	assert.Equal(t, uint64(7), makeAlignUp(7, 1))
}

func TestAllocator(t *testing.T) {
	a := LinearAllocator{Size: 1024}

	assert.Nil(t, a.Allocate(2048, 1), "larger than the pool")
	assert.Nil(t, a.Allocate(0, 1))

	first := a.Allocate(512, 1)
	require.NotNil(t, first)
	assert.Equal(t, uint64(0), first.Offset)

	assert.Nil(t, a.Allocate(768, 1))

	second := a.Allocate(500, 1)
	require.NotNil(t, second)
	assert.Equal(t, uint64(512), second.Offset)

	assert.Nil(t, a.Allocate(50, 1))

	tail := a.Allocate(5, 1)
	require.NotNil(t, tail)
	assert.Equal(t, uint64(1012), tail.Offset)

	assert.Nil(t, a.Allocate(20, 1))
	assert.Equal(t, uint64(1017), a.Used())

	a.Free(second)
	again := a.Allocate(500, 1)
	require.NotNil(t, again, "freed gap is reused")
	assert.Equal(t, uint64(512), again.Offset)

	a.Free(first)
	head := a.Allocate(20, 1)
	require.NotNil(t, head)
	assert.Equal(t, uint64(0), head.Offset)

	gap := a.Allocate(40, 1)
	require.NotNil(t, gap)
	assert.Equal(t, uint64(20), gap.Offset)

	assert.Nil(t, a.Allocate(500, 1))
}

func TestAllocatorAlignment(t *testing.T) {
	a := LinearAllocator{Size: 256}

	x := a.Allocate(10, 64)
	require.NotNil(t, x)
	y := a.Allocate(10, 64)
	require.NotNil(t, y)
	assert.Equal(t, uint64(64), y.Offset)

	z := a.Allocate(100, 64)
	require.NotNil(t, z)
	assert.Equal(t, uint64(128), z.Offset)

	assert.Nil(t, a.Allocate(10, 64), "next aligned offset 256 is the end")

	a.Free(y)
	w := a.Allocate(60, 64)
	require.NotNil(t, w)
	assert.Equal(t, uint64(64), w.Offset)
	assert.Equal(t, "[[0 10] [64 60] [128 100]]", a.String())
}
