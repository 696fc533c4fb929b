// Package rundir implements the native queue capability on top of the files
// the kernel and udevd export: the kernel uevent counter in sysfs and the
// udevd runtime directory.
package rundir

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"k8s.io/klog/v2"

	"github.com/ydb-platform/udev-queue/internal/native"
	"github.com/ydb-platform/udev-queue/internal/udev"
)

const (
	KernelSeqnumFile = "kernel/uevent_seqnum"
	ControlFile      = "udev/control"
	QueueFlagFile    = "udev/queue"
	QueueLogFile     = "udev/queue.bin"
	FailedDir        = "udev/failed"
)

type Library struct{}

func New() *Library {
	return &Library{}
}

func (l *Library) Open(ctx *udev.Context) (native.Handle, error) {
	if !ctx.Alive() {
		return nil, udev.ErrContextClosed
	}

	root := ctx.SysfsPath()
	info, err := ctx.Fs().Stat(root)
	if err != nil {
		return nil, fmt.Errorf("sysfs %q unavailable: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sysfs %q is not a directory", root)
	}

	klog.V(4).Infof("Opened udev queue on %s", ctx)
	return &handle{ctx: ctx, fs: ctx.Fs()}, nil
}

type handle struct {
	ctx *udev.Context
	fs  afero.Fs

	released bool
	cursors  []*failedCursor
}

func (h *handle) Release() {
	if h.released {
		return
	}
	h.released = true
	cursors := h.cursors
	h.cursors = nil
	for _, c := range cursors {
		c.close()
	}
	klog.V(4).Infof("Released udev queue on %s", h.ctx)
}

// forget drops a closed cursor from the set Release has to close.
func (h *handle) forget(c *failedCursor) {
	h.cursors = slices.DeleteFunc(h.cursors, func(open *failedCursor) bool {
		return open == c
	})
}

func (h *handle) exists(name string) bool {
	_, err := h.fs.Stat(h.ctx.RunPath(name))
	return err == nil
}

func (h *handle) UdevIsActive() bool {
	return h.exists(ControlFile)
}

func (h *handle) KernelSeqnum() uint64 {
	name := h.ctx.SysfsPath(KernelSeqnumFile)
	data, err := afero.ReadFile(h.fs, name)
	if err != nil {
		klog.V(2).Infof("Failed to read kernel seqnum from %q: %v", name, err)
		return 0
	}
	seqnum, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		klog.V(2).Infof("Failed to parse kernel seqnum from %q: %v", name, err)
		return 0
	}
	return seqnum
}

// eventLog returns nil when udevd does not export one.
func (h *handle) eventLog() *eventLog {
	name := h.ctx.RunPath(QueueLogFile)
	file, err := h.fs.Open(name)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			klog.V(2).Infof("Failed to open udev event log %q: %v", name, err)
		}
		return nil
	}
	defer file.Close()

	log, err := parseEventLog(file)
	if err != nil {
		klog.V(2).Infof("Failed to read udev event log %q: %v", name, err)
		return nil
	}
	return log
}

func (h *handle) UdevSeqnum() uint64 {
	kernel := h.KernelSeqnum()
	log := h.eventLog()
	if log == nil {
		return kernel
	}
	// udevd consumes every kernel event, so it can never be behind
	return max(log.last, kernel)
}

func (h *handle) QueueIsEmpty() bool {
	if log := h.eventLog(); log != nil && len(log.pending) > 0 {
		return false
	}
	return !h.exists(QueueFlagFile)
}

func (h *handle) SeqnumIsFinished(seqnum uint64) bool {
	log := h.eventLog()
	if log == nil {
		return h.QueueIsEmpty()
	}
	return !log.queued(seqnum, seqnum)
}

func (h *handle) SeqnumSequenceIsFinished(start, end uint64) bool {
	log := h.eventLog()
	if log == nil {
		return h.QueueIsEmpty()
	}
	if start > end {
		start, end = end, start
	}
	return !log.queued(start, end)
}

func (h *handle) QueuedList() native.ListCursor {
	log := h.eventLog()
	if log == nil {
		return native.Empty()
	}
	list := make([]native.Entry, 0, len(log.pending))
	for _, rec := range log.pending {
		list = append(list, native.Entry{
			Name:  h.ctx.SysfsPath(rec.devpath),
			Value: strconv.FormatUint(rec.seqnum, 10),
		})
	}
	return native.Entries(list...)
}

func (h *handle) FailedList() native.ListCursor {
	name := h.ctx.RunPath(FailedDir)
	dir, err := h.fs.Open(name)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			klog.V(2).Infof("Failed to open failed events directory %q: %v", name, err)
		}
		return native.Empty()
	}
	c := &failedCursor{h: h, dir: dir}
	h.cursors = append(h.cursors, c)
	return c
}

func (h *handle) MaxSeqnum() uint64 {
	return ^uint64(0)
}
