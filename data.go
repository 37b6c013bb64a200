package vrx

import (
	"encoding/binary"
)

// Uint32Slice is the element type the compute examples and tests move
// between host and device, laid out little endian like the soft kernels and
// SPIR-V storage buffers on the supported platforms expect.
type Uint32Slice []uint32

func (s Uint32Slice) Bytes() []byte {
	b := make([]byte, len(s)*4)
	for i, v := range s {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
	return b
}

// SizeInBytes returns the size of the slice's byte form.
func (s Uint32Slice) SizeInBytes() uint64 {
	return uint64(len(s)) * 4
}

// Uint32s decodes b into uint32 values, ignoring a trailing partial word.
func Uint32s(b []byte) Uint32Slice {
	s := make(Uint32Slice, len(b)/4)
	for i := range s {
		s[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return s
}

// Sequence returns 0, 1, ..., n-1.
func Sequence(n int) Uint32Slice {
	s := make(Uint32Slice, n)
	for i := range s {
		s[i] = uint32(i)
	}
	return s
}
