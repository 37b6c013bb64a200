/*
Package vulkan implements driver.Driver with github.com/vulkan-go/vulkan.

Native handles are kept in a table keyed by the integer handles handed out to
callers, so nothing above this package touches cgo types. Every failing
vk.Result is converted with vk.Error and wrapped with the name of the call.
*/
package vulkan

import (
	"sync"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"github.com/hyeonjang/vrx/driver"
)

type Options struct {
	Logger *slog.Logger
	// DebugReport installs a debug report callback on every instance which
	// logs validation messages through Logger. The VK_EXT_debug_report
	// extension must be enabled on the instance.
	DebugReport bool
}

type Driver struct {
	mu      sync.Mutex
	opts    Options
	logger  *slog.Logger
	next    uint64
	objects map[uint64]any
}

var initOnce sync.Once
var initErr error

// New loads the Vulkan loader for compute use, no windowing system is
// initialized.
func New(opts Options) (*Driver, error) {
	initOnce.Do(func() {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			initErr = errors.Wrap(err, "vkGetInstanceProcAddr")
			return
		}
		initErr = errors.Wrap(vk.Init(), "vulkan init")
	})
	if initErr != nil {
		return nil, initErr
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{opts: opts, logger: logger, objects: make(map[uint64]any)}, nil
}

var _ driver.Driver = (*Driver)(nil)

func (d *Driver) Name() string {
	return "vulkan"
}

func (d *Driver) put(o any) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.objects[d.next] = o
	return d.next
}

func (d *Driver) remove(h uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.objects, h)
}

func get[T any](d *Driver, h uint64) (T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var zero T
	o, ok := d.objects[h]
	if !ok {
		return zero, errors.Wrapf(driver.ErrUnknownHandle, "%d", h)
	}
	t, ok := o.(T)
	if !ok {
		return zero, errors.Wrapf(driver.ErrUnknownHandle, "%d is a %T", h, o)
	}
	return t, nil
}

// must is for the calls which have no error return in the driver
// interface, a bad handle is logged and the call skipped.
func must[T any](d *Driver, h uint64, call string) (T, bool) {
	t, err := get[T](d, h)
	if err != nil {
		d.logger.Warn("vulkan: "+call+" with bad handle", slog.String("err", err.Error()))
		return t, false
	}
	return t, true
}

func check(ret vk.Result, call string) error {
	return errors.Wrap(vk.Error(ret), call)
}

type instance struct {
	vk       vk.Instance
	debug    vk.DebugReportCallback
	physical []driver.PhysicalDevice
}

type physicalDevice struct {
	vk vk.PhysicalDevice
}

type device struct {
	vk       vk.Device
	physical vk.PhysicalDevice
	queues   []driver.Queue
}

func (d *Driver) CreateInstance(info driver.InstanceInfo) (driver.Instance, error) {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         info.APIVersion.Packed(),
		ApplicationVersion: info.ApplicationVersion.Packed(),
		EngineVersion:      info.EngineVersion.Packed(),
		PApplicationName:   safeString(info.ApplicationName),
		PEngineName:        safeString(info.EngineName),
	}

	extensions := safeStrings(info.EnabledExtensions)
	layers := safeStrings(info.EnabledLayers)

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	inst := &instance{}
	if err := check(vk.CreateInstance(&createInfo, nil, &inst.vk), "vkCreateInstance"); err != nil {
		return 0, err
	}
	if err := vk.InitInstance(inst.vk); err != nil {
		vk.DestroyInstance(inst.vk, nil)
		return 0, errors.Wrap(err, "vulkan instance init")
	}

	if d.opts.DebugReport {
		if err := d.installDebugReport(inst); err != nil {
			d.logger.Warn("vulkan: debug report unavailable", slog.String("err", err.Error()))
		}
	}

	var count uint32
	if err := check(vk.EnumeratePhysicalDevices(inst.vk, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		d.destroyInstance(inst)
		return 0, err
	}
	devices := make([]vk.PhysicalDevice, count)
	if count > 0 {
		if err := check(vk.EnumeratePhysicalDevices(inst.vk, &count, devices), "vkEnumeratePhysicalDevices"); err != nil {
			d.destroyInstance(inst)
			return 0, err
		}
	}
	for _, pd := range devices[:count] {
		inst.physical = append(inst.physical, driver.PhysicalDevice(d.put(&physicalDevice{vk: pd})))
	}

	return driver.Instance(d.put(inst)), nil
}

func (d *Driver) destroyInstance(inst *instance) {
	if inst.debug != nil {
		vk.DestroyDebugReportCallback(inst.vk, inst.debug, nil)
	}
	vk.DestroyInstance(inst.vk, nil)
}

func (d *Driver) DestroyInstance(h driver.Instance) {
	inst, ok := must[*instance](d, uint64(h), "vkDestroyInstance")
	if !ok {
		return
	}
	for _, pd := range inst.physical {
		d.remove(uint64(pd))
	}
	d.destroyInstance(inst)
	d.remove(uint64(h))
}

func (d *Driver) EnumeratePhysicalDevices(h driver.Instance) ([]driver.PhysicalDevice, error) {
	inst, err := get[*instance](d, uint64(h))
	if err != nil {
		return nil, err
	}
	return append([]driver.PhysicalDevice(nil), inst.physical...), nil
}

func (d *Driver) PhysicalDeviceProperties(h driver.PhysicalDevice) driver.PhysicalDeviceProperties {
	pd, ok := must[*physicalDevice](d, uint64(h), "vkGetPhysicalDeviceProperties")
	if !ok {
		return driver.PhysicalDeviceProperties{}
	}
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd.vk, &props)
	props.Deref()
	return driver.PhysicalDeviceProperties{
		Name:       vk.ToString(props.DeviceName[:]),
		Type:       driver.PhysicalDeviceType(props.DeviceType),
		APIVersion: driver.UnpackVersion(props.ApiVersion),
		VendorID:   props.VendorID,
		DeviceID:   props.DeviceID,
	}
}

func (d *Driver) QueueFamilyProperties(h driver.PhysicalDevice) []driver.QueueFamilyProperties {
	pd, ok := must[*physicalDevice](d, uint64(h), "vkGetPhysicalDeviceQueueFamilyProperties")
	if !ok {
		return nil
	}
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd.vk, &count, nil)
	if count == 0 {
		return nil
	}
	queues := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd.vk, &count, queues)

	ret := make([]driver.QueueFamilyProperties, count)
	for i := range queues {
		queues[i].Deref()
		ret[i] = driver.QueueFamilyProperties{
			Flags: driver.QueueFlags(queues[i].QueueFlags),
			Count: queues[i].QueueCount,
		}
	}
	return ret
}

func (d *Driver) MemoryProperties(h driver.PhysicalDevice) driver.MemoryProperties {
	pd, ok := must[*physicalDevice](d, uint64(h), "vkGetPhysicalDeviceMemoryProperties")
	if !ok {
		return driver.MemoryProperties{}
	}
	var mp vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd.vk, &mp)
	mp.Deref()

	var ret driver.MemoryProperties
	for i := uint32(0); i < mp.MemoryTypeCount; i++ {
		mt := mp.MemoryTypes[i]
		mt.Deref()
		ret.Types = append(ret.Types, driver.MemoryType{
			PropertyFlags: driver.MemoryPropertyFlags(mt.PropertyFlags),
			HeapIndex:     mt.HeapIndex,
		})
	}
	for i := uint32(0); i < mp.MemoryHeapCount; i++ {
		mh := mp.MemoryHeaps[i]
		mh.Deref()
		ret.Heaps = append(ret.Heaps, driver.MemoryHeap{
			Size:  uint64(mh.Size),
			Flags: driver.MemoryHeapFlags(mh.Flags),
		})
	}
	return ret
}

func (d *Driver) CreateDevice(h driver.PhysicalDevice, info driver.DeviceInfo) (driver.Device, error) {
	pd, err := get[*physicalDevice](d, uint64(h))
	if err != nil {
		return 0, err
	}

	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: info.QueueFamilyIndex,
		QueueCount:       uint32(len(info.QueuePriorities)),
		PQueuePriorities: info.QueuePriorities,
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueCreateInfo},
		PEnabledFeatures:     []vk.PhysicalDeviceFeatures{{}},
	}
	if len(info.EnabledExtensions) > 0 {
		deviceCreateInfo.EnabledExtensionCount = uint32(len(info.EnabledExtensions))
		deviceCreateInfo.PpEnabledExtensionNames = safeStrings(info.EnabledExtensions)
	}

	var ldevice vk.Device
	if err := check(vk.CreateDevice(pd.vk, &deviceCreateInfo, nil, &ldevice), "vkCreateDevice"); err != nil {
		return 0, err
	}
	return driver.Device(d.put(&device{vk: ldevice, physical: pd.vk})), nil
}

func (d *Driver) DestroyDevice(h driver.Device) {
	dev, ok := must[*device](d, uint64(h), "vkDestroyDevice")
	if !ok {
		return
	}
	for _, q := range dev.queues {
		d.remove(uint64(q))
	}
	vk.DestroyDevice(dev.vk, nil)
	d.remove(uint64(h))
}

func (d *Driver) DeviceWaitIdle(h driver.Device) error {
	dev, err := get[*device](d, uint64(h))
	if err != nil {
		return err
	}
	return check(vk.DeviceWaitIdle(dev.vk), "vkDeviceWaitIdle")
}

func (d *Driver) GetQueue(h driver.Device, family, index uint32) driver.Queue {
	dev, ok := must[*device](d, uint64(h), "vkGetDeviceQueue")
	if !ok {
		return 0
	}
	var q vk.Queue
	vk.GetDeviceQueue(dev.vk, family, index, &q)
	qh := driver.Queue(d.put(q))
	dev.queues = append(dev.queues, qh)
	return qh
}

func (d *Driver) QueueWaitIdle(h driver.Queue) error {
	q, err := get[vk.Queue](d, uint64(h))
	if err != nil {
		return err
	}
	return check(vk.QueueWaitIdle(q), "vkQueueWaitIdle")
}

func (d *Driver) QueueSubmit(h driver.Queue, buffers []driver.CommandBuffer, fh driver.Fence) error {
	q, err := get[vk.Queue](d, uint64(h))
	if err != nil {
		return err
	}
	b := make([]vk.CommandBuffer, len(buffers))
	for i, cb := range buffers {
		if b[i], err = get[vk.CommandBuffer](d, uint64(cb)); err != nil {
			return err
		}
	}
	var fence vk.Fence
	if fh != 0 {
		if fence, err = get[vk.Fence](d, uint64(fh)); err != nil {
			return err
		}
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(b)),
		PCommandBuffers:    b,
	}
	return check(vk.QueueSubmit(q, 1, []vk.SubmitInfo{submitInfo}, fence), "vkQueueSubmit")
}
