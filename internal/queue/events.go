package queue

import (
	"errors"
	"fmt"
	"iter"
	"strconv"

	"github.com/ydb-platform/udev-queue/internal/native"
	"github.com/ydb-platform/udev-queue/internal/udev"
)

type QueuedEvent struct {
	Device udev.Device
	Seqnum uint64
}

// cursor walks one native list snapshot, checking before every step that
// the queue and its context are still alive.
type cursor struct {
	q    *Queue
	list native.ListCursor
	err  error
}

func (q *Queue) cursor(list func(native.Handle) native.ListCursor) *cursor {
	raw, err := q.live()
	if err != nil {
		return &cursor{q: q, err: err}
	}
	return &cursor{q: q, list: list(raw)}
}

func (c *cursor) next() (name, value string, ok bool, err error) {
	if c.err != nil {
		err, c.err = c.err, nil
		c.list = nil
		return "", "", false, err
	}
	if c.list == nil {
		return "", "", false, nil
	}
	if _, err := c.q.live(); err != nil {
		c.list = nil
		return "", "", false, err
	}
	name, value, ok = c.list.Next()
	if !ok {
		c.list = nil
	}
	return name, value, ok, nil
}

func (q *Queue) resolve(syspath string) (udev.Device, error) {
	dev, err := q.resolver.FromPath(q.ctx, syspath)
	if err != nil {
		var resErr *udev.ResolutionError
		if !errors.As(err, &resErr) {
			err = &udev.ResolutionError{Syspath: syspath, Err: err}
		}
		return nil, err
	}
	return dev, nil
}

// QueuedEvents snapshots the queued list and yields its events one at a
// time. Devices are resolved as they are reached; a device that cannot be
// resolved yields a *udev.ResolutionError for that element only. The
// sequence can be ranged over once.
func (q *Queue) QueuedEvents() iter.Seq2[QueuedEvent, error] {
	c := q.cursor(native.Handle.QueuedList)
	return func(yield func(QueuedEvent, error) bool) {
		for {
			syspath, value, ok, err := c.next()
			if err != nil {
				yield(QueuedEvent{}, err)
				return
			}
			if !ok {
				return
			}

			seqnum, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				err = fmt.Errorf("queue: queued event %q has invalid sequence number %q: %w", syspath, value, err)
				if !yield(QueuedEvent{}, err) {
					return
				}
				continue
			}

			dev, err := q.resolve(syspath)
			if !yield(QueuedEvent{Device: dev, Seqnum: seqnum}, err) {
				return
			}
		}
	}
}

// FailedEvents snapshots the failed list and yields the devices whose
// events failed, resolved the same way as QueuedEvents.
func (q *Queue) FailedEvents() iter.Seq2[udev.Device, error] {
	c := q.cursor(native.Handle.FailedList)
	return func(yield func(udev.Device, error) bool) {
		for {
			syspath, _, ok, err := c.next()
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if !yield(q.resolve(syspath)) {
				return
			}
		}
	}
}
