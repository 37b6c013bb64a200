package vrx

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/hyeonjang/vrx/driver"
)

type PhysicalDevice struct {
	Context    *Context
	Handle     driver.PhysicalDevice
	Index      int
	Properties driver.PhysicalDeviceProperties
	Memory     driver.MemoryProperties
}

func (p *PhysicalDevice) String() string {
	return p.Properties.Name
}

func (p *PhysicalDevice) QueueFamilies() QueueFamilySlice {
	props := p.Context.Driver.QueueFamilyProperties(p.Handle)
	ret := make(QueueFamilySlice, len(props))
	for i := range props {
		ret[i] = &QueueFamily{Index: i, PhysicalDevice: p, Properties: props[i]}
	}
	return ret
}

func (p *PhysicalDevice) MemoryTypes() MemoryTypeSlice {
	return p.Memory.Types
}

// FindMemoryType selects a memory type of p using the Context's match mode.
func (p *PhysicalDevice) FindMemoryType(memoryTypeBits uint32, properties driver.MemoryPropertyFlags) (uint32, error) {
	return FindMemoryType(p.Memory.Types, memoryTypeBits, properties, p.Context.Config.MemoryTypeMatch)
}

// FindMemoryType returns the index of the first memory type which passes the
// requirement bit test of mode and has every flag in properties.
func FindMemoryType(types []driver.MemoryType, memoryTypeBits uint32, properties driver.MemoryPropertyFlags, mode MemoryTypeMatch) (uint32, error) {
	for i, mt := range types {
		if !mode.allows(memoryTypeBits, uint32(i)) {
			continue
		}
		if mt.PropertyFlags&properties == properties {
			return uint32(i), nil
		}
	}
	return 0, errors.Wrapf(ErrNoMemoryType, "bits %#b, properties %s, %s", memoryTypeBits, properties, mode)
}

func (m MemoryTypeMatch) allows(memoryTypeBits, index uint32) bool {
	if m == MatchLegacyBitZero {
		return memoryTypeBits&1 != 0
	}
	return index < 32 && memoryTypeBits&(1<<index) != 0
}

type MemoryTypeSlice []driver.MemoryType

func (m MemoryTypeSlice) Filter(f func(properties driver.MemoryPropertyFlags) bool) MemoryTypeSlice {
	res := make(MemoryTypeSlice, 0)
	for i := 0; i < len(m); i++ {
		if f(m[i].PropertyFlags) {
			res = append(res, m[i])
		}
	}
	return res
}

func (m MemoryTypeSlice) NumHostVisible() int {
	return len(m.Filter(func(properties driver.MemoryPropertyFlags) bool {
		return properties.Has(driver.MemoryPropertyHostVisible)
	}))
}

func (m MemoryTypeSlice) NumHostVisibleAndCoherent() int {
	return len(m.Filter(func(properties driver.MemoryPropertyFlags) bool {
		return properties.Has(driver.MemoryPropertyHostVisible | driver.MemoryPropertyHostCoherent)
	}))
}

func (m MemoryTypeSlice) NumDeviceLocal() int {
	return len(m.Filter(func(properties driver.MemoryPropertyFlags) bool {
		return properties.Has(driver.MemoryPropertyDeviceLocal)
	}))
}

func (m MemoryTypeSlice) String() string {
	return fmt.Sprintf("{ types: %d hostVisible: %d deviceLocal: %d }", len(m), m.NumHostVisible(), m.NumDeviceLocal())
}
