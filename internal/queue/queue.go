// Package queue exposes the udev event queue: daemon activity, kernel and
// udev sequence numbers, completion checks and the queued/failed event
// lists.
//
// A Queue is not safe for concurrent use; callers sharing one across
// goroutines must synchronize access themselves.
package queue

import (
	"errors"
	"fmt"
	"runtime"

	"k8s.io/klog/v2"

	"github.com/ydb-platform/udev-queue/internal/native"
	"github.com/ydb-platform/udev-queue/internal/rundir"
	"github.com/ydb-platform/udev-queue/internal/udev"
)

type Queue struct {
	ctx      *udev.Context
	resolver udev.Resolver
	handle   *handle
	cleanup  runtime.Cleanup
}

type options struct {
	library  native.Library
	resolver udev.Resolver
}

type Option interface {
	apply(*options)
}

type withLibrary struct {
	library native.Library
}

func (o *withLibrary) apply(opts *options) {
	opts.library = o.library
}

// WithLibrary selects the native queue implementation. The default reads
// the kernel and udevd runtime files.
func WithLibrary(library native.Library) Option {
	return &withLibrary{library}
}

type withResolver struct {
	resolver udev.Resolver
}

func (o *withResolver) apply(opts *options) {
	opts.resolver = o.resolver
}

func WithResolver(resolver udev.Resolver) Option {
	return &withResolver{resolver}
}

// New creates a queue for ctx. It either returns a usable Queue or an
// *InitializationError.
func New(ctx *udev.Context, opts ...Option) (*Queue, error) {
	o := options{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(&o)
	}
	if o.library == nil {
		o.library = rundir.New()
	}
	if o.resolver == nil {
		o.resolver = udev.NewResolver()
	}

	if !ctx.Alive() {
		return nil, &InitializationError{Err: udev.ErrContextClosed}
	}

	raw, err := o.library.Open(ctx)
	if err != nil {
		klog.Errorf("Failed to create udev queue for %s: %v", ctx, err)
		return nil, &InitializationError{Err: err}
	}
	if raw == nil {
		return nil, &InitializationError{Err: errors.New("native library returned no handle")}
	}

	q := &Queue{
		ctx:      ctx,
		resolver: o.resolver,
		handle:   newHandle(raw),
	}
	// Release the handle if the queue is dropped without Close.
	q.cleanup = runtime.AddCleanup(q, func(h *handle) { h.release() }, q.handle)

	return q, nil
}

// Close releases the native handle. Calling Close again is a no-op.
func (q *Queue) Close() error {
	if !q.handle.alive() {
		return nil
	}
	q.cleanup.Stop()
	q.handle.release()
	return nil
}

func (q *Queue) Context() *udev.Context {
	return q.ctx
}

func (q *Queue) live() (native.Handle, error) {
	raw, err := q.handle.get()
	if err != nil {
		return nil, err
	}
	if !q.ctx.Alive() {
		return nil, fmt.Errorf("%w: %w", ErrClosed, udev.ErrContextClosed)
	}
	return raw, nil
}

// IsActive reports whether udevd is listening for and handling events. It
// says nothing about whether an event is being processed right now.
func (q *Queue) IsActive() (bool, error) {
	raw, err := q.live()
	if err != nil {
		return false, err
	}
	return raw.UdevIsActive(), nil
}

// IsEmpty reports whether no event is currently being processed. Inside a
// rule script run for an event this is likely false.
func (q *Queue) IsEmpty() (bool, error) {
	raw, err := q.live()
	if err != nil {
		return false, err
	}
	return raw.QueueIsEmpty(), nil
}

// CurrentKernelSequenceNumber is the latest seqnum the kernel generated.
func (q *Queue) CurrentKernelSequenceNumber() (uint64, error) {
	raw, err := q.live()
	if err != nil {
		return 0, err
	}
	return oracle{raw}.kernel(), nil
}

// CurrentUdevSequenceNumber is the latest seqnum generated by udevd,
// including events it synthesized itself.
func (q *Queue) CurrentUdevSequenceNumber() (uint64, error) {
	raw, err := q.live()
	if err != nil {
		return 0, err
	}
	return oracle{raw}.udev(), nil
}

// CurrentSequenceNumbers returns the udev and kernel seqnums. They are two
// separate reads; events arriving in between make them disagree.
func (q *Queue) CurrentSequenceNumbers() (udevSeqnum, kernelSeqnum uint64, err error) {
	raw, err := q.live()
	if err != nil {
		return 0, 0, err
	}
	o := oracle{raw}
	udevSeqnum = o.udev()
	kernelSeqnum = o.kernel()
	return udevSeqnum, kernelSeqnum, nil
}

// IsSequenceNumberFinished reports whether the event start has been
// processed or, with end, whether every event between start and end
// inclusive has. The bounds may be given in either order, and sequence
// numbers that were never issued count as finished.
func (q *Queue) IsSequenceNumberFinished(start uint64, end ...uint64) (bool, error) {
	if len(end) > 1 {
		return false, fmt.Errorf("queue: expected at most one end sequence number, got %d", len(end))
	}
	raw, err := q.live()
	if err != nil {
		return false, err
	}

	o := oracle{raw}
	if len(end) == 0 {
		return o.finished(start)
	}
	return o.rangeFinished(start, end[0])
}
