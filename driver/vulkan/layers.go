package vulkan

import (
	vk "github.com/vulkan-go/vulkan"
)

// SupportedLayers returns the instance layers the loader offers.
func (d *Driver) SupportedLayers() ([]string, error) {
	var n uint32
	if err := check(vk.EnumerateInstanceLayerProperties(&n, nil), "vkEnumerateInstanceLayerProperties"); err != nil {
		return nil, err
	}
	props := make([]vk.LayerProperties, n)
	if err := check(vk.EnumerateInstanceLayerProperties(&n, props), "vkEnumerateInstanceLayerProperties"); err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for _, p := range props[:n] {
		p.Deref()
		names = append(names, vk.ToString(p.LayerName[:]))
	}
	return names, nil
}

// SupportedExtensions returns the instance extensions the loader and its
// implicit layers offer.
func (d *Driver) SupportedExtensions() ([]string, error) {
	var n uint32
	if err := check(vk.EnumerateInstanceExtensionProperties("", &n, nil), "vkEnumerateInstanceExtensionProperties"); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, n)
	if err := check(vk.EnumerateInstanceExtensionProperties("", &n, props), "vkEnumerateInstanceExtensionProperties"); err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for _, p := range props[:n] {
		p.Deref()
		names = append(names, vk.ToString(p.ExtensionName[:]))
	}
	return names, nil
}
