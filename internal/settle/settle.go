// Package settle watches a udev queue and lets callers wait for it to
// drain or for particular events to finish, like udevadm settle.
package settle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"k8s.io/klog/v2"

	"github.com/ydb-platform/udev-queue/internal/mux"
	"github.com/ydb-platform/udev-queue/internal/queue"
)

const DefaultInterval = 500 * time.Millisecond

var ErrClosed = errors.New("settle: watcher is closed")

// State is one sample of the queue.
type State struct {
	Active bool   `yaml:"active"`
	Empty  bool   `yaml:"empty"`
	Udev   uint64 `yaml:"udevSeqnum"`
	Kernel uint64 `yaml:"kernelSeqnum"`
}

func (s State) String() string {
	return fmt.Sprintf("State[active=%t, empty=%t, udev=%d, kernel=%d]", s.Active, s.Empty, s.Udev, s.Kernel)
}

func Busy(s State) bool {
	return !s.Empty
}

func Inactive(s State) bool {
	return !s.Active
}

// Sample reads one State from q. The reads are not atomic together.
func Sample(q *queue.Queue) (State, error) {
	var (
		s   State
		err error
	)
	if s.Active, err = q.IsActive(); err != nil {
		return State{}, err
	}
	if s.Empty, err = q.IsEmpty(); err != nil {
		return State{}, err
	}
	if s.Udev, s.Kernel, err = q.CurrentSequenceNumbers(); err != nil {
		return State{}, err
	}
	return s, nil
}

type request interface {
	requestSealed()
}

type stateRequest struct{}

type stateReply struct {
	state State
	err   error
}

func (stateRequest) requestSealed() {}

type newSub struct {
	sink mux.Sink[State]
}

func (newSub) requestSealed() {}

type waitRequest struct {
	ctx    context.Context
	cond   Condition
	result chan error
}

func (*waitRequest) requestSealed() {}

type stopRequest struct{}

func (stopRequest) requestSealed() {}

// Watcher owns a Queue and samples it from a single goroutine whenever the
// udev runtime directory changes or the poll interval elapses.
type Watcher struct {
	queue    *queue.Queue
	requests chan mux.AwaitReply[request, any]
	mux      *mux.Mux[State]
	notify   *fsnotify.Watcher
	interval time.Duration
	done     chan struct{}

	// accessed only by the run goroutine
	state   State
	waiters []*waitRequest
}

type options struct {
	interval time.Duration
	notify   bool
}

type Option interface {
	apply(*options)
}

type withInterval struct {
	interval time.Duration
}

func (o *withInterval) apply(opts *options) {
	opts.interval = o.interval
}

// WithInterval sets how often the queue is sampled regardless of
// filesystem notifications.
func WithInterval(interval time.Duration) Option {
	return &withInterval{interval}
}

type withoutNotify struct{}

func (withoutNotify) apply(opts *options) {
	opts.notify = false
}

// WithoutNotify disables fsnotify and relies on polling alone.
func WithoutNotify() Option {
	return withoutNotify{}
}

// New starts watching q. The Watcher takes ownership of q and closes it
// when the Watcher is closed.
func New(q *queue.Queue, opts ...Option) (*Watcher, error) {
	o := options{interval: DefaultInterval, notify: true}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(&o)
	}
	if o.interval <= 0 {
		return nil, fmt.Errorf("settle: poll interval must be positive, got %s", o.interval)
	}

	state, err := Sample(q)
	if err != nil {
		return nil, fmt.Errorf("settle: failed to sample queue: %w", err)
	}

	w := &Watcher{
		queue:    q,
		requests: make(chan mux.AwaitReply[request, any]),
		mux:      mux.Make(mux.WithLogger[State](mux.LoggerFunc(klog.Warningf))),
		interval: o.interval,
		done:     make(chan struct{}),
		state:    state,
	}

	if o.notify {
		w.notify = watchRuntime(q.Context().RunPath("udev"))
	}

	go w.run()

	return w, nil
}

func watchRuntime(dir string) *fsnotify.Watcher {
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		klog.Errorf("Failed to create fsnotify watcher, falling back to polling: %v", err)
		return nil
	}
	if err := notify.Add(dir); err != nil {
		klog.V(2).Infof("Not watching %q, falling back to polling: %v", dir, err)
		notify.Close()
		return nil
	}
	klog.V(4).Infof("Watching %q for udev queue changes", dir)
	return notify
}

func (w *Watcher) run() {
	defer close(w.done)
	defer w.mux.Close()
	defer w.queue.Close()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w.notify != nil {
		defer w.notify.Close()
		events = w.notify.Events
		errs = w.notify.Errors
	}

	for {
		select {
		case <-ticker.C:
			w.logRefresh()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			klog.V(5).Infof("udev runtime change: %s", ev)
			w.logRefresh()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			klog.Errorf("Error from udev runtime watch: %v", err)
		case req := <-w.requests:
			switch r := req.Value().(type) {
			case stateRequest:
				err := w.refresh()
				req.Reply(stateReply{w.state, err})
			case newSub:
				if err := r.sink.Submit(w.state); err != nil {
					klog.Errorf("Failed to submit initial state: %v", err)
				}
				req.Reply(w.mux.Subscribe(r.sink))
			case *waitRequest:
				w.waiters = append(w.waiters, r)
				w.check()
				req.Reply(nil)
			case stopRequest:
				for _, waiter := range w.waiters {
					waiter.result <- ErrClosed
				}
				w.waiters = nil
				req.Reply(nil)
				return
			}
		}
	}
}

// refresh samples the queue, publishes a changed state and re-checks the
// waiters. On error the last good state is kept.
func (w *Watcher) refresh() error {
	state, err := Sample(w.queue)
	if err != nil {
		return err
	}
	if state != w.state {
		klog.V(4).Infof("udev queue changed: %s -> %s", w.state, state)
		w.state = state
		if err := w.mux.Submit(state); err != nil {
			klog.Errorf("Failed to publish udev queue state: %v", err)
		}
	}
	w.check()
	return nil
}

func (w *Watcher) logRefresh() {
	if err := w.refresh(); err != nil {
		klog.Errorf("Failed to sample udev queue: %v", err)
	}
}

// check resolves every waiter whose condition holds, failed or whose
// context is done.
func (w *Watcher) check() {
	pending := w.waiters[:0]
	for _, waiter := range w.waiters {
		if waiter.ctx.Err() != nil {
			continue
		}
		ok, err := waiter.cond(w.queue)
		if err != nil {
			waiter.result <- err
			continue
		}
		if ok {
			waiter.result <- nil
			continue
		}
		pending = append(pending, waiter)
	}
	w.waiters = pending
}

func (w *Watcher) request(r request) (any, error) {
	ar := mux.NewAwaitReply[request, any](r)
	select {
	case w.requests <- ar:
		return ar.Await(), nil
	case <-w.done:
		return nil, ErrClosed
	}
}

// State samples the queue now. A failed sample is returned as an error
// together with the zero State.
func (w *Watcher) State() (State, error) {
	reply, err := w.request(stateRequest{})
	if err != nil {
		return State{}, err
	}
	r := reply.(stateReply)
	if r.err != nil {
		return State{}, r.err
	}
	return r.state, nil
}

// Subscribe delivers the current state to sink, then every change. The
// first Submit happens before Subscribe returns, so sink must not block
// on the caller.
func (w *Watcher) Subscribe(sink mux.Sink[State]) mux.CancelFunc {
	reply, err := w.request(newSub{sink})
	if err != nil {
		sink.Close()
		return func() {}
	}
	return reply.(mux.CancelFunc)
}

// Wait blocks until cond holds, cond fails, ctx is done or the watcher is
// closed.
func (w *Watcher) Wait(ctx context.Context, cond Condition) error {
	req := &waitRequest{ctx: ctx, cond: cond, result: make(chan error, 1)}
	if _, err := w.request(req); err != nil {
		return err
	}
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the watcher and closes its queue.
func (w *Watcher) Close() {
	if _, err := w.request(stopRequest{}); err != nil {
		return
	}
	<-w.done
}
