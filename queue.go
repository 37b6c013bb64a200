package vrx

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/hyeonjang/vrx/driver"
)

type Queue struct {
	Device      *Device
	QueueFamily *QueueFamily
	Handle      driver.Queue
}

func (q *Queue) WaitIdle() error {
	return errors.Wrap(q.Device.driver().QueueWaitIdle(q.Handle), "queue wait idle")
}

func handles(buffers []*CommandBuffer) []driver.CommandBuffer {
	b := make([]driver.CommandBuffer, len(buffers))
	for i := range buffers {
		b[i] = buffers[i].Handle
	}
	return b
}

// SubmitWaitIdle submits the buffers without a fence and waits for the queue
// to drain.
func (q *Queue) SubmitWaitIdle(buffers ...*CommandBuffer) error {
	if err := q.Device.driver().QueueSubmit(q.Handle, handles(buffers), 0); err != nil {
		return errors.Wrap(err, "queue submit")
	}
	return q.WaitIdle()
}

// SubmitWithFence submits the buffers, fence is signaled when they complete.
// The fence must be unsignaled.
func (q *Queue) SubmitWithFence(fence *Fence, buffers ...*CommandBuffer) error {
	return errors.Wrap(q.Device.driver().QueueSubmit(q.Handle, handles(buffers), fence.Handle), "queue submit")
}

func (q *Queue) String() string {
	return fmt.Sprintf("{Device: %s QueueFamily: %s}", q.Device.String(), q.QueueFamily.String())
}
