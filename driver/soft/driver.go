/*
Package soft implements driver.Driver on host memory.

Device memory is a Go byte slice, command buffers are command lists which are
executed in order when they are submitted, and a dispatch runs the Kernel
registered under the pipeline's entry point. Work executes inside
QueueSubmit. By default the submission also completes there, so a fence
passed to QueueSubmit is signaled by the time it returns. With
Config.DeferCompletion the submission stays pending until a queue or device
wait, or an unbounded fence wait, observes it; bounded fence waits on it time
out.

The driver follows the Vulkan usage rules it can check cheaply (recording
state, unsignaled fence on submit, host visible memory on map, pool limits,
image layouts, push constant ranges) and reports violations as errors instead
of undefined behaviour. Misuse in calls without an error return, such as
destroying a fence that a pending submission still signals, is collected and
returned by ValidationErrors.
*/
package soft

import (
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/hyeonjang/vrx/driver"
)

// DeviceDesc describes one simulated physical device.
type DeviceDesc struct {
	Properties    driver.PhysicalDeviceProperties
	QueueFamilies []driver.QueueFamilyProperties
	Memory        driver.MemoryProperties
	// RequirementBits is reported as MemoryTypeBits for every buffer, zero
	// means every memory type is allowed.
	RequirementBits uint32
	// Alignment of buffer offsets and sizes, zero means 16.
	Alignment uint64
}

type Config struct {
	Devices []DeviceDesc
	Kernels map[string]Kernel
	Logger  *slog.Logger
	// DeferCompletion keeps submissions pending after QueueSubmit.
	DeferCompletion bool
}

// DefaultDevice is a device with a mixed queue family layout and the four
// memory types commonly found on discrete GPUs.
func DefaultDevice() DeviceDesc {
	return DeviceDesc{
		Properties: driver.PhysicalDeviceProperties{
			Name:       "vrx soft device",
			Type:       driver.PhysicalDeviceTypeCPU,
			APIVersion: driver.Version{Major: 1, Minor: 2},
			VendorID:   0x10005,
		},
		QueueFamilies: []driver.QueueFamilyProperties{
			{Flags: driver.QueueGraphics | driver.QueueCompute | driver.QueueTransfer, Count: 1},
			{Flags: driver.QueueTransfer, Count: 2},
			{Flags: driver.QueueCompute | driver.QueueTransfer, Count: 4},
		},
		Memory: driver.MemoryProperties{
			Types: []driver.MemoryType{
				{PropertyFlags: driver.MemoryPropertyDeviceLocal, HeapIndex: 0},
				{PropertyFlags: driver.MemoryPropertyHostVisible | driver.MemoryPropertyHostCoherent, HeapIndex: 1},
				{PropertyFlags: driver.MemoryPropertyHostVisible | driver.MemoryPropertyHostCoherent | driver.MemoryPropertyHostCached, HeapIndex: 1},
				{PropertyFlags: driver.MemoryPropertyDeviceLocal | driver.MemoryPropertyHostVisible | driver.MemoryPropertyHostCoherent, HeapIndex: 0},
			},
			Heaps: []driver.MemoryHeap{
				{Size: 1 << 30, Flags: driver.MemoryHeapDeviceLocal},
				{Size: 256 << 20},
			},
		},
	}
}

func DefaultConfig() Config {
	return Config{
		Devices: []DeviceDesc{DefaultDevice()},
		Kernels: map[string]Kernel{"main": Identity},
	}
}

type Driver struct {
	mu         sync.Mutex
	cfg        Config
	logger     *slog.Logger
	next       uint64
	objects    map[uint64]any
	violations []error
}

// New returns a driver for cfg. A config without devices gets DefaultDevice.
func New(cfg Config) *Driver {
	if len(cfg.Devices) == 0 {
		cfg.Devices = []DeviceDesc{DefaultDevice()}
	}
	kernels := make(map[string]Kernel, len(cfg.Kernels))
	for k, v := range cfg.Kernels {
		kernels[k] = v
	}
	cfg.Kernels = kernels
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{cfg: cfg, logger: logger, objects: make(map[uint64]any)}
}

var _ driver.Driver = (*Driver)(nil)

func (d *Driver) Name() string {
	return "soft"
}

// RegisterKernel makes k available to pipelines created with entry point name.
func (d *Driver) RegisterKernel(name string, k Kernel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.Kernels[name] = k
}

// ValidationErrors returns the usage errors detected in calls which cannot
// report them.
func (d *Driver) ValidationErrors() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.violations...)
}

func (d *Driver) violation(err error) {
	d.logger.Warn("soft: validation error", slog.String("err", err.Error()))
	d.violations = append(d.violations, err)
}

// Live returns the number of objects which have been created and not yet
// destroyed, physical devices excluded.
func (d *Driver) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, o := range d.objects {
		if _, ok := o.(*physicalDevice); !ok {
			n++
		}
	}
	return n
}

type instance struct {
	info     driver.InstanceInfo
	physical []driver.PhysicalDevice
}

type physicalDevice struct {
	desc DeviceDesc
}

type device struct {
	physical *physicalDevice
	family   uint32
	queues   map[uint32]driver.Queue
}

type queue struct {
	device  *device
	family  uint32
	index   uint32
	pending []submission
}

type submission struct {
	buffers []*commandBuffer
	fence   *fence
}

// complete retires every pending submission of q.
func (q *queue) complete() {
	for _, s := range q.pending {
		for _, c := range s.buffers {
			c.retire()
		}
		if s.fence != nil {
			s.fence.signaled = true
			s.fence.pending = nil
		}
	}
	q.pending = nil
}

func (q *queue) forget(f *fence) {
	for i := range q.pending {
		if q.pending[i].fence == f {
			q.pending[i].fence = nil
		}
	}
	f.pending = nil
}

type commandPool struct {
	device  *device
	family  uint32
	buffers map[driver.CommandBuffer]bool
}

type memory struct {
	typeIndex uint32
	flags     driver.MemoryPropertyFlags
	data      []byte
	mapped    bool
}

type buffer struct {
	info   driver.BufferInfo
	req    driver.MemoryRequirements
	memory *memory
	offset uint64
}

func (b *buffer) bytes() ([]byte, error) {
	if b.memory == nil {
		return nil, errors.New("buffer has no memory bound")
	}
	return b.memory.data[b.offset : b.offset+b.info.Size], nil
}

type descriptorPool struct {
	maxSets   uint32
	available map[driver.DescriptorType]uint32
	sets      map[driver.DescriptorSet]bool
}

type descriptorSetLayout struct {
	bindings []driver.DescriptorSetLayoutBinding
}

func (l *descriptorSetLayout) binding(n uint32) (driver.DescriptorSetLayoutBinding, bool) {
	for _, b := range l.bindings {
		if b.Binding == n {
			return b, true
		}
	}
	return driver.DescriptorSetLayoutBinding{}, false
}

type descriptorSet struct {
	pool    driver.DescriptorPool
	layout  *descriptorSetLayout
	buffers map[uint32][]driver.DescriptorBufferInfo
	images  map[uint32][]driver.DescriptorImageInfo
}

type shaderModule struct {
	code []byte
}

type pipelineLayout struct {
	setLayouts    []*descriptorSetLayout
	pushConstants []driver.PushConstantRange
}

// covers reports whether a single range of l holds [offset, offset+size)
// for all of stages.
func (l *pipelineLayout) covers(stages driver.ShaderStageFlags, offset, size uint32) bool {
	for _, r := range l.pushConstants {
		if r.Stages&stages == stages && offset >= r.Offset && size <= r.Size && offset-r.Offset <= r.Size-size {
			return true
		}
	}
	return false
}

type pipelineCache struct{}

type pipeline struct {
	layout     *pipelineLayout
	entryPoint string
	kernel     Kernel
}

type fence struct {
	signaled bool
	// pending is the queue of the submission which will signal the fence.
	pending *queue
}

func (d *Driver) put(o any) uint64 {
	d.next++
	d.objects[d.next] = o
	return d.next
}

func lookup[T any](d *Driver, h uint64) (*T, error) {
	o, ok := d.objects[h]
	if !ok {
		return nil, errors.Wrapf(driver.ErrUnknownHandle, "%d", h)
	}
	t, ok := o.(*T)
	if !ok {
		return nil, errors.Wrapf(driver.ErrUnknownHandle, "%d is a %T", h, o)
	}
	return t, nil
}

func (d *Driver) CreateInstance(info driver.InstanceInfo) (driver.Instance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inst := &instance{info: info}
	for i := range d.cfg.Devices {
		inst.physical = append(inst.physical, driver.PhysicalDevice(d.put(&physicalDevice{desc: d.cfg.Devices[i]})))
	}
	h := driver.Instance(d.put(inst))
	d.logger.Debug("soft: instance created", slog.String("app", info.ApplicationName), slog.Int("devices", len(inst.physical)))
	return h, nil
}

func (d *Driver) DestroyInstance(h driver.Instance) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inst, err := lookup[instance](d, uint64(h))
	if err != nil {
		return
	}
	for _, pd := range inst.physical {
		delete(d.objects, uint64(pd))
	}
	delete(d.objects, uint64(h))
}

func (d *Driver) EnumeratePhysicalDevices(h driver.Instance) ([]driver.PhysicalDevice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inst, err := lookup[instance](d, uint64(h))
	if err != nil {
		return nil, err
	}
	return append([]driver.PhysicalDevice(nil), inst.physical...), nil
}

func (d *Driver) physical(h driver.PhysicalDevice) *physicalDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	pd, err := lookup[physicalDevice](d, uint64(h))
	if err != nil {
		return &physicalDevice{}
	}
	return pd
}

func (d *Driver) PhysicalDeviceProperties(h driver.PhysicalDevice) driver.PhysicalDeviceProperties {
	return d.physical(h).desc.Properties
}

func (d *Driver) QueueFamilyProperties(h driver.PhysicalDevice) []driver.QueueFamilyProperties {
	return append([]driver.QueueFamilyProperties(nil), d.physical(h).desc.QueueFamilies...)
}

func (d *Driver) MemoryProperties(h driver.PhysicalDevice) driver.MemoryProperties {
	m := d.physical(h).desc.Memory
	return driver.MemoryProperties{
		Types: append([]driver.MemoryType(nil), m.Types...),
		Heaps: append([]driver.MemoryHeap(nil), m.Heaps...),
	}
}

func (d *Driver) CreateDevice(h driver.PhysicalDevice, info driver.DeviceInfo) (driver.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pd, err := lookup[physicalDevice](d, uint64(h))
	if err != nil {
		return 0, err
	}
	if int(info.QueueFamilyIndex) >= len(pd.desc.QueueFamilies) {
		return 0, errors.Newf("queue family %d out of range (%d families)", info.QueueFamilyIndex, len(pd.desc.QueueFamilies))
	}
	if len(info.QueuePriorities) == 0 {
		return 0, errors.New("at least one queue priority is required")
	}
	if uint32(len(info.QueuePriorities)) > pd.desc.QueueFamilies[info.QueueFamilyIndex].Count {
		return 0, errors.Newf("family %d has only %d queues", info.QueueFamilyIndex, pd.desc.QueueFamilies[info.QueueFamilyIndex].Count)
	}
	dev := &device{physical: pd, family: info.QueueFamilyIndex, queues: make(map[uint32]driver.Queue)}
	for i := range info.QueuePriorities {
		dev.queues[uint32(i)] = driver.Queue(d.put(&queue{device: dev, family: info.QueueFamilyIndex, index: uint32(i)}))
	}
	return driver.Device(d.put(dev)), nil
}

func (d *Driver) DestroyDevice(h driver.Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, err := lookup[device](d, uint64(h))
	if err != nil {
		return
	}
	for _, qh := range dev.queues {
		if q, err := lookup[queue](d, uint64(qh)); err == nil && len(q.pending) > 0 {
			d.violation(errors.Newf("device %d destroyed with %d pending submissions", h, len(q.pending)))
		}
		delete(d.objects, uint64(qh))
	}
	delete(d.objects, uint64(h))
}

func (d *Driver) DeviceWaitIdle(h driver.Device) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, err := lookup[device](d, uint64(h))
	if err != nil {
		return err
	}
	for _, qh := range dev.queues {
		if q, err := lookup[queue](d, uint64(qh)); err == nil {
			q.complete()
		}
	}
	return nil
}

func (d *Driver) GetQueue(h driver.Device, family, index uint32) driver.Queue {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, err := lookup[device](d, uint64(h))
	if err != nil || family != dev.family {
		return 0
	}
	return dev.queues[index]
}

func (d *Driver) QueueWaitIdle(h driver.Queue) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, err := lookup[queue](d, uint64(h))
	if err != nil {
		return err
	}
	q.complete()
	return nil
}

func (d *Driver) CreateCommandPool(h driver.Device, family uint32) (driver.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, err := lookup[device](d, uint64(h))
	if err != nil {
		return 0, err
	}
	if family != dev.family {
		return 0, errors.Newf("device has no queues in family %d", family)
	}
	return driver.CommandPool(d.put(&commandPool{device: dev, family: family, buffers: make(map[driver.CommandBuffer]bool)})), nil
}

func (d *Driver) DestroyCommandPool(h driver.Device, p driver.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pool, err := lookup[commandPool](d, uint64(p))
	if err != nil {
		return
	}
	for cb := range pool.buffers {
		if c, err := lookup[commandBuffer](d, uint64(cb)); err == nil && c.state == statePending {
			d.violation(errors.Newf("command pool %d destroyed while command buffer %d is pending", p, cb))
		}
		delete(d.objects, uint64(cb))
	}
	delete(d.objects, uint64(p))
}

func (d *Driver) AllocateCommandBuffers(h driver.Device, p driver.CommandPool, count int) ([]driver.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pool, err := lookup[commandPool](d, uint64(p))
	if err != nil {
		return nil, err
	}
	ret := make([]driver.CommandBuffer, count)
	for i := range ret {
		ret[i] = driver.CommandBuffer(d.put(&commandBuffer{pool: pool}))
		pool.buffers[ret[i]] = true
	}
	return ret, nil
}

func (d *Driver) FreeCommandBuffers(h driver.Device, p driver.CommandPool, buffers []driver.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pool, err := lookup[commandPool](d, uint64(p))
	if err != nil {
		return
	}
	for _, cb := range buffers {
		if pool.buffers[cb] {
			if c, err := lookup[commandBuffer](d, uint64(cb)); err == nil && c.state == statePending {
				d.violation(errors.Newf("command buffer %d freed while pending", cb))
			}
			delete(pool.buffers, cb)
			delete(d.objects, uint64(cb))
		}
	}
}

func (d *Driver) CreateBuffer(h driver.Device, info driver.BufferInfo) (driver.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, err := lookup[device](d, uint64(h))
	if err != nil {
		return 0, err
	}
	if info.Size == 0 {
		return 0, errors.New("buffer size must be greater than zero")
	}
	desc := dev.physical.desc
	align := desc.Alignment
	if align == 0 {
		align = 16
	}
	bits := desc.RequirementBits
	if bits == 0 {
		bits = uint32(1)<<uint(len(desc.Memory.Types)) - 1
	}
	req := driver.MemoryRequirements{
		Size:           alignUp(info.Size, align),
		Alignment:      align,
		MemoryTypeBits: bits,
	}
	return driver.Buffer(d.put(&buffer{info: info, req: req})), nil
}

func alignUp(v, align uint64) uint64 {
	if m := v % align; m != 0 {
		return v - m + align
	}
	return v
}

func (d *Driver) DestroyBuffer(h driver.Device, b driver.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := lookup[buffer](d, uint64(b)); err == nil {
		delete(d.objects, uint64(b))
	}
}

func (d *Driver) BufferMemoryRequirements(h driver.Device, b driver.Buffer) driver.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, err := lookup[buffer](d, uint64(b))
	if err != nil {
		return driver.MemoryRequirements{}
	}
	return buf.req
}

func (d *Driver) BindBufferMemory(h driver.Device, b driver.Buffer, m driver.DeviceMemory, offset uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, err := lookup[buffer](d, uint64(b))
	if err != nil {
		return err
	}
	mem, err := lookup[memory](d, uint64(m))
	if err != nil {
		return err
	}
	if buf.memory != nil {
		return errors.New("buffer already has memory bound")
	}
	if offset%buf.req.Alignment != 0 {
		return errors.Newf("offset %d is not aligned to %d", offset, buf.req.Alignment)
	}
	if buf.req.MemoryTypeBits&(1<<mem.typeIndex) == 0 {
		return errors.Newf("memory type %d not allowed by requirement bits %b", mem.typeIndex, buf.req.MemoryTypeBits)
	}
	if !inBounds(offset, buf.info.Size, uint64(len(mem.data))) {
		return errors.Newf("buffer of %d bytes at offset %d exceeds allocation of %d bytes", buf.info.Size, offset, len(mem.data))
	}
	buf.memory = mem
	buf.offset = offset
	return nil
}

func (d *Driver) AllocateMemory(h driver.Device, size uint64, typeIndex uint32) (driver.DeviceMemory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, err := lookup[device](d, uint64(h))
	if err != nil {
		return 0, err
	}
	types := dev.physical.desc.Memory.Types
	if int(typeIndex) >= len(types) {
		return 0, errors.Newf("memory type %d out of range (%d types)", typeIndex, len(types))
	}
	return driver.DeviceMemory(d.put(&memory{
		typeIndex: typeIndex,
		flags:     types[typeIndex].PropertyFlags,
		data:      make([]byte, size),
	})), nil
}

func (d *Driver) FreeMemory(h driver.Device, m driver.DeviceMemory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := lookup[memory](d, uint64(m)); err == nil {
		delete(d.objects, uint64(m))
	}
}

func (d *Driver) MapMemory(h driver.Device, m driver.DeviceMemory, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, err := lookup[memory](d, uint64(m))
	if err != nil {
		return nil, err
	}
	if !mem.flags.Has(driver.MemoryPropertyHostVisible) {
		return nil, errors.Newf("memory type %d is not host visible", mem.typeIndex)
	}
	if mem.mapped {
		return nil, errors.New("memory is already mapped")
	}
	if offset > uint64(len(mem.data)) {
		return nil, errors.Newf("map offset %d exceeds allocation of %d bytes", offset, len(mem.data))
	}
	if size == driver.WholeSize {
		size = uint64(len(mem.data)) - offset
	}
	if !inBounds(offset, size, uint64(len(mem.data))) {
		return nil, errors.Newf("map range [%d, %d) exceeds allocation of %d bytes", offset, offset+size, len(mem.data))
	}
	mem.mapped = true
	return mem.data[offset : offset+size : offset+size], nil
}

func (d *Driver) UnmapMemory(h driver.Device, m driver.DeviceMemory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if mem, err := lookup[memory](d, uint64(m)); err == nil {
		mem.mapped = false
	}
}

func (d *Driver) CreateDescriptorPool(h driver.Device, maxSets uint32, sizes []driver.DescriptorPoolSize) (driver.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := lookup[device](d, uint64(h)); err != nil {
		return 0, err
	}
	if maxSets == 0 {
		return 0, errors.New("maxSets must be greater than zero")
	}
	p := &descriptorPool{maxSets: maxSets, available: make(map[driver.DescriptorType]uint32), sets: make(map[driver.DescriptorSet]bool)}
	for _, s := range sizes {
		p.available[s.Type] += s.Count
	}
	return driver.DescriptorPool(d.put(p)), nil
}

func (d *Driver) DestroyDescriptorPool(h driver.Device, p driver.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pool, err := lookup[descriptorPool](d, uint64(p))
	if err != nil {
		return
	}
	for s := range pool.sets {
		delete(d.objects, uint64(s))
	}
	delete(d.objects, uint64(p))
}

func (d *Driver) CreateDescriptorSetLayout(h driver.Device, bindings []driver.DescriptorSetLayoutBinding) (driver.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := lookup[device](d, uint64(h)); err != nil {
		return 0, err
	}
	seen := make(map[uint32]bool)
	for _, b := range bindings {
		if seen[b.Binding] {
			return 0, errors.Newf("binding %d declared twice", b.Binding)
		}
		seen[b.Binding] = true
	}
	return driver.DescriptorSetLayout(d.put(&descriptorSetLayout{bindings: append([]driver.DescriptorSetLayoutBinding(nil), bindings...)})), nil
}

func (d *Driver) DestroyDescriptorSetLayout(h driver.Device, l driver.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := lookup[descriptorSetLayout](d, uint64(l)); err == nil {
		delete(d.objects, uint64(l))
	}
}

func (d *Driver) AllocateDescriptorSets(h driver.Device, p driver.DescriptorPool, layouts []driver.DescriptorSetLayout) ([]driver.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pool, err := lookup[descriptorPool](d, uint64(p))
	if err != nil {
		return nil, err
	}
	if uint32(len(pool.sets)+len(layouts)) > pool.maxSets {
		return nil, errors.Newf("out of pool memory: %d sets allocated, %d requested, max %d", len(pool.sets), len(layouts), pool.maxSets)
	}
	need := make(map[driver.DescriptorType]uint32)
	ls := make([]*descriptorSetLayout, len(layouts))
	for i, lh := range layouts {
		l, err := lookup[descriptorSetLayout](d, uint64(lh))
		if err != nil {
			return nil, err
		}
		ls[i] = l
		for _, b := range l.bindings {
			need[b.Type] += b.Count
		}
	}
	for t, n := range need {
		if pool.available[t] < n {
			return nil, errors.Newf("out of pool memory: %d descriptors of type %d requested, %d available", n, t, pool.available[t])
		}
	}
	for t, n := range need {
		pool.available[t] -= n
	}
	ret := make([]driver.DescriptorSet, len(ls))
	for i, l := range ls {
		ret[i] = driver.DescriptorSet(d.put(&descriptorSet{
			pool:    p,
			layout:  l,
			buffers: make(map[uint32][]driver.DescriptorBufferInfo),
			images:  make(map[uint32][]driver.DescriptorImageInfo),
		}))
		pool.sets[ret[i]] = true
	}
	return ret, nil
}

func (d *Driver) FreeDescriptorSets(h driver.Device, p driver.DescriptorPool, sets []driver.DescriptorSet) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	pool, err := lookup[descriptorPool](d, uint64(p))
	if err != nil {
		return err
	}
	for _, sh := range sets {
		if !pool.sets[sh] {
			return errors.Wrapf(driver.ErrUnknownHandle, "descriptor set %d not allocated from pool %d", sh, p)
		}
	}
	for _, sh := range sets {
		s, err := lookup[descriptorSet](d, uint64(sh))
		if err == nil {
			for _, b := range s.layout.bindings {
				pool.available[b.Type] += b.Count
			}
		}
		delete(pool.sets, sh)
		delete(d.objects, uint64(sh))
	}
	return nil
}

func (d *Driver) UpdateDescriptorSets(h driver.Device, writes []driver.WriteDescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range writes {
		s, err := lookup[descriptorSet](d, uint64(w.Set))
		if err != nil {
			d.logger.Warn("soft: update of unknown descriptor set", slog.Uint64("set", uint64(w.Set)))
			continue
		}
		b, ok := s.layout.binding(w.Binding)
		if !ok || b.Type != w.Type {
			d.logger.Warn("soft: descriptor write does not match layout",
				slog.Uint64("set", uint64(w.Set)), slog.Int("binding", int(w.Binding)))
			continue
		}
		if len(w.BufferInfo) > 0 {
			s.buffers[w.Binding] = append([]driver.DescriptorBufferInfo(nil), w.BufferInfo...)
		}
		if len(w.ImageInfo) > 0 {
			s.images[w.Binding] = append([]driver.DescriptorImageInfo(nil), w.ImageInfo...)
		}
	}
}

// BoundBuffers returns the buffer infos written to binding of set.
func (d *Driver) BoundBuffers(set driver.DescriptorSet, binding uint32) []driver.DescriptorBufferInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := lookup[descriptorSet](d, uint64(set))
	if err != nil {
		return nil
	}
	return append([]driver.DescriptorBufferInfo(nil), s.buffers[binding]...)
}

// BoundImages returns the image infos written to binding of set.
func (d *Driver) BoundImages(set driver.DescriptorSet, binding uint32) []driver.DescriptorImageInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := lookup[descriptorSet](d, uint64(set))
	if err != nil {
		return nil
	}
	return append([]driver.DescriptorImageInfo(nil), s.images[binding]...)
}

func (d *Driver) CreateShaderModule(h driver.Device, code []byte) (driver.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := lookup[device](d, uint64(h)); err != nil {
		return 0, err
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, errors.Newf("shader code size %d is not a positive multiple of 4", len(code))
	}
	return driver.ShaderModule(d.put(&shaderModule{code: append([]byte(nil), code...)})), nil
}

func (d *Driver) DestroyShaderModule(h driver.Device, m driver.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := lookup[shaderModule](d, uint64(m)); err == nil {
		delete(d.objects, uint64(m))
	}
}

func (d *Driver) CreatePipelineLayout(h driver.Device, layouts []driver.DescriptorSetLayout, pushConstants []driver.PushConstantRange) (driver.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pl := &pipelineLayout{}
	for _, r := range pushConstants {
		if r.Size == 0 || r.Offset%4 != 0 || r.Size%4 != 0 {
			return 0, errors.Newf("push constant range [%d, +%d) must be a non empty multiple of 4", r.Offset, r.Size)
		}
		if r.Stages == 0 {
			return 0, errors.Newf("push constant range [%d, +%d) has no stages", r.Offset, r.Size)
		}
	}
	pl.pushConstants = append(pl.pushConstants, pushConstants...)
	for _, lh := range layouts {
		l, err := lookup[descriptorSetLayout](d, uint64(lh))
		if err != nil {
			return 0, err
		}
		pl.setLayouts = append(pl.setLayouts, l)
	}
	return driver.PipelineLayout(d.put(pl)), nil
}

func (d *Driver) DestroyPipelineLayout(h driver.Device, l driver.PipelineLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := lookup[pipelineLayout](d, uint64(l)); err == nil {
		delete(d.objects, uint64(l))
	}
}

func (d *Driver) CreatePipelineCache(h driver.Device) (driver.PipelineCache, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := lookup[device](d, uint64(h)); err != nil {
		return 0, err
	}
	return driver.PipelineCache(d.put(&pipelineCache{})), nil
}

func (d *Driver) DestroyPipelineCache(h driver.Device, c driver.PipelineCache) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := lookup[pipelineCache](d, uint64(c)); err == nil {
		delete(d.objects, uint64(c))
	}
}

func (d *Driver) CreateComputePipeline(h driver.Device, info driver.ComputePipelineInfo) (driver.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	layout, err := lookup[pipelineLayout](d, uint64(info.Layout))
	if err != nil {
		return 0, errors.Wrap(err, "pipeline layout")
	}
	if _, err := lookup[shaderModule](d, uint64(info.Shader)); err != nil {
		return 0, errors.Wrap(err, "shader module")
	}
	k, ok := d.cfg.Kernels[info.EntryPoint]
	if !ok {
		return 0, errors.Newf("no kernel registered for entry point %q", info.EntryPoint)
	}
	return driver.Pipeline(d.put(&pipeline{layout: layout, entryPoint: info.EntryPoint, kernel: k})), nil
}

func (d *Driver) DestroyPipeline(h driver.Device, p driver.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := lookup[pipeline](d, uint64(p)); err == nil {
		delete(d.objects, uint64(p))
	}
}

func (d *Driver) CreateFence(h driver.Device, signaled bool) (driver.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := lookup[device](d, uint64(h)); err != nil {
		return 0, err
	}
	return driver.Fence(d.put(&fence{signaled: signaled})), nil
}

func (d *Driver) DestroyFence(h driver.Device, fh driver.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, err := lookup[fence](d, uint64(fh))
	if err != nil {
		return
	}
	if f.pending != nil {
		d.violation(errors.Newf("fence %d destroyed while a submission is pending on it", fh))
		f.pending.forget(f)
	}
	delete(d.objects, uint64(fh))
}

func (d *Driver) ResetFences(h driver.Device, fences []driver.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, fh := range fences {
		f, err := lookup[fence](d, uint64(fh))
		if err != nil {
			return err
		}
		if f.pending != nil {
			return errors.Newf("fence %d is in use by a pending submission", fh)
		}
		f.signaled = false
	}
	return nil
}

func (d *Driver) FenceSignaled(h driver.Device, fh driver.Fence) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, err := lookup[fence](d, uint64(fh))
	if err != nil {
		return false, err
	}
	return f.signaled, nil
}

// WaitForFences never blocks. An unbounded wait completes the queues the
// fences are pending on, a bounded wait on a pending fence times out. An
// unsignaled fence with no pending submission could only be signaled by a
// later submit from the same goroutine, so waiting forever on it is reported
// as an error instead.
func (d *Driver) WaitForFences(h driver.Device, fences []driver.Fence, waitAll bool, timeout uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	fs := make([]*fence, len(fences))
	for i, fh := range fences {
		f, err := lookup[fence](d, uint64(fh))
		if err != nil {
			return err
		}
		fs[i] = f
	}
	if timeout == driver.WaitForever {
		for _, f := range fs {
			if f.pending != nil {
				f.pending.complete()
			}
		}
	}
	signaled := 0
	for _, f := range fs {
		if f.signaled {
			signaled++
		}
	}
	if signaled == len(fs) || (!waitAll && signaled > 0) {
		return nil
	}
	if timeout == driver.WaitForever {
		return errors.New("waiting forever on fences with no pending submission")
	}
	return driver.ErrFenceTimeout
}
