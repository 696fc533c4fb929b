package rundir

import (
	"errors"
	"io"
	"path"
	"strings"

	"github.com/spf13/afero"

	"k8s.io/klog/v2"
)

var devpathDecoder = strings.NewReplacer(`\x2f`, "/", `\x5c`, `\`)

// decodeDevpath reverses udevd's escaping of failed-event entry names.
func decodeDevpath(name string) string {
	devpath := devpathDecoder.Replace(name)
	if !strings.HasPrefix(devpath, "/") {
		devpath = "/" + devpath
	}
	return devpath
}

// failedCursor reads the failed directory one entry at a time.
type failedCursor struct {
	h   *handle
	dir afero.File
}

func (c *failedCursor) close() {
	if c.dir == nil {
		return
	}
	if err := c.dir.Close(); err != nil {
		klog.V(2).Infof("Failed to close failed events directory: %v", err)
	}
	c.dir = nil
	c.h.forget(c)
}

func (c *failedCursor) Next() (string, string, bool) {
	for {
		if c.dir == nil || c.h.released {
			return "", "", false
		}

		names, err := c.dir.Readdirnames(1)
		if len(names) == 0 {
			if err != nil && !errors.Is(err, io.EOF) {
				klog.V(2).Infof("Failed to read failed events directory: %v", err)
			}
			c.close()
			return "", "", false
		}

		syspath := c.h.ctx.SysfsPath(decodeDevpath(names[0]))
		if _, err := c.h.fs.Stat(path.Join(syspath, "uevent")); err != nil {
			klog.V(5).Infof("Skipping failed event for vanished device %q", syspath)
			continue
		}
		return syspath, "", true
	}
}
