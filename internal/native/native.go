// Package native declares the queue capability udev exposes to this module.
// Implementations live elsewhere (see internal/rundir); the queue package
// consumes them only through these interfaces.
package native

import (
	"github.com/ydb-platform/udev-queue/internal/udev"
)

// Library creates queue handles scoped to a context.
type Library interface {
	Open(ctx *udev.Context) (Handle, error)
}

// Handle is a native queue object. Release must be called exactly once;
// no other method may be called after it.
type Handle interface {
	Release()

	UdevIsActive() bool
	QueueIsEmpty() bool
	KernelSeqnum() uint64
	UdevSeqnum() uint64
	SeqnumIsFinished(seqnum uint64) bool
	SeqnumSequenceIsFinished(start, end uint64) bool

	// QueuedList yields (syspath, decimal seqnum) entries.
	QueuedList() ListCursor
	// FailedList yields (syspath, "") entries.
	FailedList() ListCursor

	// MaxSeqnum is the largest value the seqnum parameters can carry.
	MaxSeqnum() uint64
}

// ListCursor walks a native name/value list once. Its entries are owned by
// the Handle it came from and end when that Handle is released.
type ListCursor interface {
	Next() (name, value string, ok bool)
}

type Entry struct {
	Name  string
	Value string
}

type entries struct {
	list []Entry
}

func (e *entries) Next() (string, string, bool) {
	if len(e.list) == 0 {
		return "", "", false
	}
	entry := e.list[0]
	e.list = e.list[1:]
	return entry.Name, entry.Value, true
}

// Entries returns a cursor over a fixed list.
func Entries(list ...Entry) ListCursor {
	return &entries{list: list}
}

// Empty returns a cursor with no entries.
func Empty() ListCursor {
	return &entries{}
}
