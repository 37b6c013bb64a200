package vrx

import (
	"fmt"
)

// Allocation is a range handed out by an Allocator.
type Allocation struct {
	Offset uint64
	Size   uint64
}

func (a *Allocation) String() string {
	return fmt.Sprintf("[%d %d]", a.Offset, a.Size)
}

type Allocator interface {
	Free(a *Allocation)
	// Allocate returns nil when no aligned range of size is left.
	Allocate(size uint64, align uint64) *Allocation
}

// LinearAllocator places allocations first fit in [0, Size), keeping them
// sorted by offset.
type LinearAllocator struct {
	Size   uint64
	allocs []*Allocation
}

func makeAlignUp(a uint64, align uint64) uint64 {
	if align <= 1 {
		return a
	}
	m := a % align
	if m == 0 {
		return a
	}
	return (a - m) + align
}

func (p *LinearAllocator) Free(fa *Allocation) {
	for i, a := range p.allocs {
		if a == fa {
			p.allocs = append(p.allocs[:i], p.allocs[i+1:]...)
			return
		}
	}
}

func (p *LinearAllocator) Allocate(size uint64, align uint64) *Allocation {
	if size == 0 || size > p.Size {
		return nil
	}

	// Offset 0 is aligned for any alignment.
	if len(p.allocs) == 0 || p.allocs[0].Offset >= size {
		na := &Allocation{Offset: 0, Size: size}
		p.allocs = append([]*Allocation{na}, p.allocs...)
		return na
	}

	for i := 0; i+1 < len(p.allocs); i++ {
		c, n := p.allocs[i], p.allocs[i+1]
		l := makeAlignUp(c.Offset+c.Size, align)
		if l <= n.Offset && n.Offset-l >= size {
			na := &Allocation{Offset: l, Size: size}
			p.allocs = append(p.allocs[:i+1], append([]*Allocation{na}, p.allocs[i+1:]...)...)
			return na
		}
	}

	last := p.allocs[len(p.allocs)-1]
	nl := makeAlignUp(last.Offset+last.Size, align)
	if nl <= p.Size && p.Size-nl >= size {
		na := &Allocation{Offset: nl, Size: size}
		p.allocs = append(p.allocs, na)
		return na
	}
	return nil
}

// Used returns the number of bytes currently allocated.
func (p *LinearAllocator) Used() uint64 {
	var n uint64
	for _, a := range p.allocs {
		n += a.Size
	}
	return n
}

func (p *LinearAllocator) String() string {
	return fmt.Sprintf("%v", p.allocs)
}
