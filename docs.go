/*
Package vrx prepares and runs compute dispatches on a Vulkan compute queue.

The package wraps the handful of Vulkan objects a compute job needs and the
order in which they must be driven. It does not try to expose all of Vulkan;
every object carries the driver handle it wraps, so callers can reach the
driver directly when they need something the package does not provide.

All native calls go through a driver.Driver. The vulkan driver talks to the
Vulkan loader, the soft driver runs the same calls on host memory and is what
the tests use.

Native Vulkan terms

	Instance	the vulkan runtime instance
	PhysicalDevice	the physical hardware device
	Device		the logical device, target of most of the APIs
	QueueFamily	a group of queues sharing capabilities (compute, transfer, ...)
	Queue		a queue which command buffers are submitted to
	DeviceMemory	an allocation on the host or the device, used by buffers
	Buffer		a linear range of data bound to device memory
	DescriptorSet	a mapping of buffers for use by shaders
	DescriptorSetLayout	a description of what is in a descriptor set
	Pipeline	a compiled compute shader plus its layout
	Fence		a primitive the host waits on for submitted work

A compute job with this package goes:

 1. NewContext creates the instance and lists the physical devices
 2. Context.NewDevice picks a compute queue family and creates the device
 3. Device.CreateBuffer allocates a host visible buffer and a device buffer
 4. Buffer.Write fills the host buffer, Device.Upload copies it over
 5. Device.NewDescriptor creates one set per storage buffer binding
 6. Device.NewComputePipeline builds the pipeline over the descriptor layouts
 7. Device.RunCompute records barrier, bind, dispatch, barrier, copy back,
    barrier, submits with a fence and waits for it
 8. Buffer.Read reads the result

Buffers can also be carved out of one memory block with a BufferPool.
*/
package vrx
