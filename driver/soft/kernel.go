package soft

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/hyeonjang/vrx/driver"
)

// Invocation is what a Kernel sees of a dispatch: the workgroup grid, the
// push constant bytes and the storage buffers and images bound at dispatch
// time, each ordered by set index and then by binding number.
type Invocation struct {
	Groups        [3]uint32
	PushConstants []byte
	Buffers       [][]byte
	Images        []ImageData
}

// ImageData is a bound image, Texels is row major with no row padding.
type ImageData struct {
	Width  uint32
	Height uint32
	Format driver.Format
	Texels []byte
}

func (inv Invocation) invocations() int {
	return int(inv.Groups[0]) * int(max(inv.Groups[1], 1)) * int(max(inv.Groups[2], 1))
}

// Kernel stands in for a compute shader entry point. It works directly on
// the bound buffer memory.
type Kernel func(inv Invocation) error

// Identity leaves every bound buffer unchanged.
func Identity(inv Invocation) error {
	return nil
}

// DoubleUint32 doubles every little endian uint32 of the first bound buffer.
// One invocation covers one element; elements past the grid are untouched.
func DoubleUint32(inv Invocation) error {
	if len(inv.Buffers) == 0 {
		return errors.New("double: no buffer bound")
	}
	b := inv.Buffers[0]
	for i := 0; i < inv.invocations() && (i+1)*4 <= len(b); i++ {
		v := binary.LittleEndian.Uint32(b[i*4:])
		binary.LittleEndian.PutUint32(b[i*4:], v*2)
	}
	return nil
}

// AddUint32 adds the first push constant word to every little endian uint32
// of the first bound buffer, like a shader whose workgroups loop over the
// whole buffer.
func AddUint32(inv Invocation) error {
	if len(inv.Buffers) == 0 {
		return errors.New("add: no buffer bound")
	}
	if len(inv.PushConstants) < 4 {
		return errors.New("add: no push constant")
	}
	k := binary.LittleEndian.Uint32(inv.PushConstants)
	b := inv.Buffers[0]
	for i := 0; (i+1)*4 <= len(b); i++ {
		v := binary.LittleEndian.Uint32(b[i*4:])
		binary.LittleEndian.PutUint32(b[i*4:], v+k)
	}
	return nil
}

// ImageToBuffer copies the texels of the first bound image into the first
// bound buffer, as far as both reach.
func ImageToBuffer(inv Invocation) error {
	if len(inv.Images) == 0 || len(inv.Buffers) == 0 {
		return errors.New("image to buffer: needs an image and a buffer")
	}
	copy(inv.Buffers[0], inv.Images[0].Texels)
	return nil
}
