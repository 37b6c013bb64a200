package vrx

import (
	"github.com/cockroachdb/errors"

	"github.com/hyeonjang/vrx/driver"
)

var (
	ErrNoPhysicalDevice  = errors.New("no physical device available")
	ErrNoComputeQueue    = errors.New("no queue family supports compute")
	ErrNoMemoryType      = errors.New("no memory type satisfies the requirements")
	ErrNotRecording      = errors.New("command buffer is not recording")
	ErrDescriptorIndex   = errors.New("descriptor set index out of range")
	ErrInvalidCount      = errors.New("count must be greater than zero")
	ErrBufferOverflow    = errors.New("data does not fit in buffer")
	ErrNotHostVisible    = errors.New("memory is not host visible")
	ErrPoolExhausted     = errors.New("insufficient storage space in buffer pool")
	ErrPushConstantRange = errors.New("push constants outside the pipeline layout's ranges")
	// ErrFenceTimeout is returned when a bounded fence wait expires.
	ErrFenceTimeout = driver.ErrFenceTimeout
)
