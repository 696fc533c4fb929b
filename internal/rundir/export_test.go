package rundir

import "github.com/ydb-platform/udev-queue/internal/native"

func OpenCursors(h native.Handle) int {
	return len(h.(*handle).cursors)
}
