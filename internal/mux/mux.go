package mux

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrClosed = errors.New("mux: closed")

type Logger interface {
	Info(format string, args ...interface{})
}

// LoggerFunc adapts a printf-style function such as klog.Warningf.
type LoggerFunc func(format string, args ...interface{})

func (f LoggerFunc) Info(format string, args ...interface{}) {
	f(format, args...)
}

// AwaitReply carries a request to a serving goroutine together with the
// channel its single reply is delivered on.
type AwaitReply[T, U any] struct {
	value T
	reply chan U
}

func (ar AwaitReply[T, U]) Value() T {
	return ar.value
}

func (ar AwaitReply[T, U]) Reply(value U) {
	ar.reply <- value
	close(ar.reply)
}

func (ar AwaitReply[T, U]) Await() U {
	return <-ar.reply
}

func NewAwaitReply[T, U any](value T) AwaitReply[T, U] {
	return AwaitReply[T, U]{
		value: value,
		reply: make(chan U, 1),
	}
}

type Sink[T any] interface {
	Submit(T) error
	Close()
}

type filterSink[T any] struct {
	sink Sink[T]
	f    FilterFunc[T]
}

func (c *filterSink[T]) Submit(v T) error {
	if c.f(v) {
		return c.sink.Submit(v)
	}
	return nil
}

func (c *filterSink[T]) Close() {
	c.sink.Close()
}

// FilterSink passes on only the values f accepts.
func FilterSink[T any](sink Sink[T], f FilterFunc[T]) Sink[T] {
	return &filterSink[T]{sink, f}
}

type chanSink[T any] struct {
	ch chan<- T
}

func (c *chanSink[T]) Submit(v T) error {
	c.ch <- v
	return nil
}

func (c *chanSink[T]) Close() {
	close(c.ch)
}

// SinkFromChan submits into ch and closes it when the sink is closed.
func SinkFromChan[T any](ch chan<- T) Sink[T] {
	return &chanSink[T]{ch}
}

type Source[T any] interface {
	Subscribe(Sink[T]) CancelFunc
}

// Mux fans every submitted value out to all subscribed sinks.
type Mux[T any] struct {
	input      chan T
	register   chan AwaitReply[Sink[T], struct{}]
	unregister chan AwaitReply[Sink[T], struct{}]
	outputs    map[Sink[T]]bool
	stop       chan struct{}
	done       chan struct{}
	closeOnce  sync.Once

	submitTimeout time.Duration
	inBufSize     int
	logger        Logger
}

type Option[T any] interface {
	apply(*Mux[T])
}

type buffered[T any] struct {
	Size int
}

func (b *buffered[T]) apply(m *Mux[T]) {
	m.inBufSize = b.Size
}

func Buffered[T any](size int) Option[T] {
	return &buffered[T]{size}
}

type withLogger[T any] struct {
	Logger Logger
}

func (l *withLogger[T]) apply(m *Mux[T]) {
	m.logger = l.Logger
}

func WithLogger[T any](logger Logger) Option[T] {
	return &withLogger[T]{logger}
}

type withSubmitTimeout[T any] struct {
	timeout time.Duration
}

func (s *withSubmitTimeout[T]) apply(m *Mux[T]) {
	m.submitTimeout = s.timeout
}

func WithSubmitTimeout[T any](timeout time.Duration) Option[T] {
	return &withSubmitTimeout[T]{timeout}
}

func Make[T any](opts ...Option[T]) *Mux[T] {
	mux := &Mux[T]{
		submitTimeout: 1 * time.Second,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(mux)
	}

	mux.input = make(chan T, mux.inBufSize)
	mux.register = make(chan AwaitReply[Sink[T], struct{}])
	mux.unregister = make(chan AwaitReply[Sink[T], struct{}])
	mux.outputs = make(map[Sink[T]]bool)
	mux.stop = make(chan struct{})
	mux.done = make(chan struct{})

	go mux.run()

	return mux
}

func (m *Mux[T]) run() {
	defer close(m.done)
	defer func() {
		for sub := range m.outputs {
			delete(m.outputs, sub)
			sub.Close()
		}
	}()

	for {
		select {
		case v := <-m.input:
			for out := range m.outputs {
				if err := out.Submit(v); err != nil {
					m.error("error submitting value %v: %v", v, err)
				}
			}
		case ar := <-m.register:
			m.outputs[ar.value] = true
			ar.Reply(struct{}{})
		case ar := <-m.unregister:
			sub := ar.value
			if m.outputs[sub] {
				delete(m.outputs, sub)
				sub.Close()
			}
			ar.Reply(struct{}{})
		case <-m.stop:
			return
		}
	}
}

func (m *Mux[T]) error(format string, args ...any) error {
	if m.logger != nil {
		m.logger.Info(format, args...)
	}
	return fmt.Errorf(format, args...)
}

// Close stops the mux and closes every subscribed sink. Values still
// buffered are dropped.
func (m *Mux[T]) Close() {
	m.closeOnce.Do(func() {
		close(m.stop)
	})
	<-m.done
}

func (m *Mux[T]) Submit(v T) error {
	timer := time.NewTimer(m.submitTimeout)
	defer timer.Stop()

	select {
	case m.input <- v:
		return nil
	case <-m.done:
		return ErrClosed
	case <-timer.C:
		return m.error("timed out submitting value %v after %s", v, m.submitTimeout)
	}
}

type CancelFunc func()

// Subscribe registers sink. On a closed mux the sink is closed right away
// and the returned CancelFunc does nothing.
func (m *Mux[T]) Subscribe(sink Sink[T]) CancelFunc {
	ar := NewAwaitReply[Sink[T], struct{}](sink)
	select {
	case m.register <- ar:
		ar.Await()
	case <-m.done:
		sink.Close()
		return func() {}
	}

	return func() {
		ar := NewAwaitReply[Sink[T], struct{}](sink)
		select {
		case m.unregister <- ar:
			ar.Await()
		case <-m.done:
		}
	}
}
