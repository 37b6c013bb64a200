package vrx

import (
	"fmt"

	"github.com/hyeonjang/vrx/driver"
)

type QueueFamilySlice []*QueueFamily

func (ql QueueFamilySlice) Filter(f func(q *QueueFamily) bool) QueueFamilySlice {
	ret := make([]*QueueFamily, 0)
	for _, q := range ql {
		if f(q) {
			ret = append(ret, q)
		}
	}
	return ret
}

func (ql QueueFamilySlice) FilterCompute() QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.IsCompute()
	})
}

func (ql QueueFamilySlice) FilterTransfer() QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.IsTransfer()
	})
}

// SelectComputeQueueFamily returns the compute capable family chosen by
// policy, or ErrNoComputeQueue.
func SelectComputeQueueFamily(families QueueFamilySlice, policy QueueFamilyPolicy) (*QueueFamily, error) {
	compute := families.FilterCompute()
	if len(compute) == 0 {
		return nil, ErrNoComputeQueue
	}
	if policy == QueueFamilyFirst {
		return compute[0], nil
	}
	return compute[len(compute)-1], nil
}

type QueueFamily struct {
	Index          int
	PhysicalDevice *PhysicalDevice
	Properties     driver.QueueFamilyProperties
}

func (q *QueueFamily) IsCompute() bool {
	return q.Properties.Flags.Has(driver.QueueCompute)
}

func (q *QueueFamily) IsGraphics() bool {
	return q.Properties.Flags.Has(driver.QueueGraphics)
}

func (q *QueueFamily) IsTransfer() bool {
	return q.Properties.Flags.Has(driver.QueueTransfer)
}

func (q *QueueFamily) String() string {
	return fmt.Sprintf("{ Index: %d Compute: %v Graphics: %v Transfer: %v Queues: %d }",
		q.Index, q.IsCompute(), q.IsGraphics(), q.IsTransfer(), q.Properties.Count)
}
