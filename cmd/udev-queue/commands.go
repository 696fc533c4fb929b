package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"gopkg.in/yaml.v3"

	"k8s.io/klog/v2"

	"github.com/ydb-platform/udev-queue/internal/mux"
	"github.com/ydb-platform/udev-queue/internal/queue"
	"github.com/ydb-platform/udev-queue/internal/settle"
)

// errNotDone makes the process exit with 1 without printing an error.
var errNotDone = errors.New("not done")

type env struct {
	out    io.Writer
	queue  *queue.Queue
	config *Config
	values *FlagValues

	// stop ends watch; nil means SIGINT/SIGTERM
	stop <-chan struct{}
}

type command func(e *env, args []string) error

var commands = map[string]command{
	"status":   statusCommand,
	"queued":   queuedCommand,
	"failed":   failedCommand,
	"finished": finishedCommand,
	"settle":   settleCommand,
	"watch":    watchCommand,
}

func (e *env) yaml() bool {
	return e.values != nil && e.values.Output == "yaml"
}

func (e *env) encode(v any) error {
	encoder := yaml.NewEncoder(e.out)
	defer encoder.Close()
	return encoder.Encode(v)
}

func statusCommand(e *env, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: status takes no arguments", errUsage)
	}
	state, err := settle.Sample(e.queue)
	if err != nil {
		return err
	}
	if e.yaml() {
		return e.encode(state)
	}
	fmt.Fprintf(e.out, "active:\t%t\nempty:\t%t\nudev:\t%d\nkernel:\t%d\n", state.Active, state.Empty, state.Udev, state.Kernel)
	return nil
}

type eventReport struct {
	Seqnum    uint64 `yaml:"seqnum,omitempty"`
	Syspath   string `yaml:"syspath"`
	Subsystem string `yaml:"subsystem,omitempty"`
}

func (e *env) report(r eventReport) error {
	if e.yaml() {
		return e.encode(r)
	}
	if r.Seqnum != 0 {
		_, err := fmt.Fprintf(e.out, "%d\t%s\n", r.Seqnum, r.Syspath)
		return err
	}
	_, err := fmt.Fprintln(e.out, r.Syspath)
	return err
}

func queuedCommand(e *env, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: queued takes no arguments", errUsage)
	}
	failures := 0
	for ev, err := range e.queue.QueuedEvents() {
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				return err
			}
			klog.Errorf("Skipping queued event: %v", err)
			failures++
			continue
		}
		if err := e.report(eventReport{Seqnum: ev.Seqnum, Syspath: ev.Device.Syspath(), Subsystem: ev.Device.Subsystem()}); err != nil {
			return err
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d queued events could not be resolved", failures)
	}
	return nil
}

func failedCommand(e *env, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: failed takes no arguments", errUsage)
	}
	failures := 0
	for dev, err := range e.queue.FailedEvents() {
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				return err
			}
			klog.Errorf("Skipping failed event: %v", err)
			failures++
			continue
		}
		if err := e.report(eventReport{Syspath: dev.Syspath(), Subsystem: dev.Subsystem()}); err != nil {
			return err
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d failed events could not be resolved", failures)
	}
	return nil
}

func parseRange(args []string) ([]uint64, error) {
	if len(args) > 2 {
		return nil, fmt.Errorf("%w: expected START [END], got %d arguments", errUsage, len(args))
	}
	seqnums := make([]uint64, 0, len(args))
	for _, arg := range args {
		seqnum, err := queue.ParseSequenceNumber(arg)
		if err != nil {
			return nil, err
		}
		seqnums = append(seqnums, seqnum)
	}
	return seqnums, nil
}

func finishedCommand(e *env, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: finished requires START [END]", errUsage)
	}
	seqnums, err := parseRange(args)
	if err != nil {
		return err
	}
	finished, err := e.queue.IsSequenceNumberFinished(seqnums[0], seqnums[1:]...)
	if err != nil {
		return err
	}
	if e.yaml() {
		if err := e.encode(map[string]bool{"finished": finished}); err != nil {
			return err
		}
	} else if finished {
		fmt.Fprintln(e.out, "finished")
	} else {
		fmt.Fprintln(e.out, "pending")
	}
	if !finished {
		return errNotDone
	}
	return nil
}

func settleCondition(seqnums []uint64) settle.Condition {
	switch len(seqnums) {
	case 1:
		return settle.Finished(seqnums[0])
	case 2:
		return settle.RangeFinished(seqnums[0], seqnums[1])
	default:
		return settle.All(settle.Caught(), settle.Empty())
	}
}

func settleCommand(e *env, args []string) error {
	seqnums, err := parseRange(args)
	if err != nil {
		return err
	}
	w, err := settle.New(e.queue, settle.WithInterval(e.config.PollInterval))
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), e.config.SettleTimeout)
	defer cancel()

	klog.V(2).Infof("Waiting up to %s for the udev queue to settle", e.config.SettleTimeout)
	if err := w.Wait(ctx, settleCondition(seqnums)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			state, stateErr := w.State()
			if stateErr == nil {
				klog.Errorf("Timed out after %s waiting for the udev queue: %s", e.config.SettleTimeout, state)
			}
			return errNotDone
		}
		return err
	}
	return nil
}

// onlyFilter turns a comma separated list of state names into a filter
// accepting states that match any of them.
func onlyFilter(only string) (mux.FilterFunc[settle.State], error) {
	if only == "" {
		return mux.Any[settle.State](), nil
	}
	var filters []mux.FilterFunc[settle.State]
	for _, name := range strings.Split(only, ",") {
		switch strings.TrimSpace(name) {
		case "all":
			return mux.Any[settle.State](), nil
		case "busy":
			filters = append(filters, settle.Busy)
		case "idle":
			filters = append(filters, mux.Not[settle.State](settle.Busy))
		case "inactive":
			filters = append(filters, settle.Inactive)
		case "active":
			filters = append(filters, mux.Not[settle.State](settle.Inactive))
		default:
			return nil, fmt.Errorf("%w: unknown -only value %q", errUsage, name)
		}
	}
	return mux.Or(filters...), nil
}

func healthz(w *settle.Watcher) http.HandlerFunc {
	return func(resp http.ResponseWriter, req *http.Request) {
		state, err := w.State()
		switch {
		case err != nil:
			klog.Errorf("healthz: failed to sample udev queue: %v", err)
			resp.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(resp, "failed to sample udev queue: %v\n", err)
		case !state.Active:
			resp.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(resp, "udev is not active")
		default:
			resp.WriteHeader(http.StatusOK)
			fmt.Fprintln(resp, state)
		}
	}
}

// stopOnSignal closes the returned channel once a signal arrives on sigs.
// release stops listening and returns after the listener has exited.
func stopOnSignal(sigs <-chan os.Signal) (<-chan struct{}, func()) {
	stop := make(chan struct{})
	released := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case sig := <-sigs:
			klog.Infof("Received signal %q, shutting down", sig.String())
			close(stop)
		case <-released:
		}
	}()
	var once sync.Once
	return stop, func() {
		once.Do(func() {
			close(released)
		})
		<-exited
	}
}

func watchCommand(e *env, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: watch takes no arguments", errUsage)
	}
	only := ""
	if e.values != nil {
		only = e.values.Only
	}
	filter, err := onlyFilter(only)
	if err != nil {
		return err
	}

	w, err := settle.New(e.queue, settle.WithInterval(e.config.PollInterval))
	if err != nil {
		return err
	}
	defer w.Close()

	if e.config.Healthz != "" {
		serveMux := http.NewServeMux()
		serveMux.HandleFunc("/healthz", healthz(w))
		server := &http.Server{Addr: e.config.Healthz, Handler: serveMux}
		klog.Infof("Starting /healthz server on %s", e.config.Healthz)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				klog.Errorf("healthz server failed: %v", err)
			}
		}()
		defer server.Close()
	}

	stop := e.stop
	if stop == nil {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)
		var release func()
		stop, release = stopOnSignal(sigs)
		defer release()
	}

	states := make(chan settle.State, 16)
	cancel := w.Subscribe(mux.FilterSink(mux.SinkFromChan(states), mux.And(filter, mux.Changed[settle.State]())))
	defer func() {
		// unblock a pending delivery so the unsubscribe can go through
		go func() {
			for range states {
			}
		}()
		cancel()
	}()

	for {
		select {
		case state, ok := <-states:
			if !ok {
				return nil
			}
			if e.yaml() {
				if err := e.encode(state); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintln(e.out, state)
		case <-stop:
			return nil
		}
	}
}
