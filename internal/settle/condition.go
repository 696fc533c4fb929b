package settle

import (
	"github.com/ydb-platform/udev-queue/internal/queue"
)

// Condition is evaluated by the watcher goroutine, which has exclusive
// access to the queue.
type Condition func(*queue.Queue) (bool, error)

// Empty holds once no event is being processed.
func Empty() Condition {
	return func(q *queue.Queue) (bool, error) {
		return q.IsEmpty()
	}
}

func Finished(seqnum uint64) Condition {
	return func(q *queue.Queue) (bool, error) {
		return q.IsSequenceNumberFinished(seqnum)
	}
}

// RangeFinished holds once every event between start and end is done; the
// bounds may be given in either order.
func RangeFinished(start, end uint64) Condition {
	return func(q *queue.Queue) (bool, error) {
		return q.IsSequenceNumberFinished(start, end)
	}
}

// Caught holds once udevd has seen every event the kernel had generated
// when the condition was first evaluated, and all of them are finished.
// The target is captured once, so a Caught condition serves a single Wait.
func Caught() Condition {
	var (
		target   uint64
		captured bool
	)
	return func(q *queue.Queue) (bool, error) {
		if !captured {
			kernel, err := q.CurrentKernelSequenceNumber()
			if err != nil {
				return false, err
			}
			target, captured = kernel, true
		}
		udevSeqnum, err := q.CurrentUdevSequenceNumber()
		if err != nil {
			return false, err
		}
		if udevSeqnum < target {
			return false, nil
		}
		return q.IsSequenceNumberFinished(target)
	}
}

// All holds once every cond holds, evaluated in order.
func All(conds ...Condition) Condition {
	return func(q *queue.Queue) (bool, error) {
		for _, cond := range conds {
			ok, err := cond(q)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}
