package queue

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/ydb-platform/udev-queue/internal/native"
)

// handle owns a native queue handle and releases it at most once.
type handle struct {
	raw  native.Handle
	once sync.Once
}

func newHandle(raw native.Handle) *handle {
	return &handle{raw: raw}
}

func (h *handle) get() (native.Handle, error) {
	if h.raw == nil {
		return nil, ErrClosed
	}
	return h.raw, nil
}

func (h *handle) alive() bool {
	return h.raw != nil
}

func (h *handle) release() {
	h.once.Do(func() {
		raw := h.raw
		h.raw = nil
		raw.Release()
		klog.V(4).Info("Released native queue handle")
	})
}
