package udev

import (
	"errors"
	"fmt"
	"path"

	libudev "github.com/jochenvg/go-udev"
	"github.com/spf13/afero"

	"k8s.io/klog/v2"
)

const (
	DefaultSysfsRoot = "/sys"
	DefaultRunRoot   = "/run"
)

var ErrContextClosed = errors.New("udev: context is closed")

// Context is one open connection to the udev subsystem. Handles derived
// from it (queues, devices) are invalid once the Context is closed.
type Context struct {
	udev  libudev.Udev
	fs    afero.Fs
	sysfs string
	run   string

	closed bool
}

type Option interface {
	apply(*Context)
}

type withFs struct {
	fs afero.Fs
}

func (o *withFs) apply(c *Context) {
	c.fs = o.fs
}

// WithFs replaces the filesystem runtime state is read from.
func WithFs(fs afero.Fs) Option {
	return &withFs{fs}
}

type withSysfs struct {
	root string
}

func (o *withSysfs) apply(c *Context) {
	c.sysfs = o.root
}

func WithSysfs(root string) Option {
	return &withSysfs{root}
}

type withRun struct {
	root string
}

func (o *withRun) apply(c *Context) {
	c.run = o.root
}

func WithRun(root string) Option {
	return &withRun{root}
}

func NewContext(opts ...Option) (*Context, error) {
	c := &Context{
		fs:    afero.NewOsFs(),
		sysfs: DefaultSysfsRoot,
		run:   DefaultRunRoot,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(c)
	}

	var errs error
	if !path.IsAbs(c.sysfs) {
		errs = errors.Join(errs, fmt.Errorf("sysfs root %q must be an absolute path", c.sysfs))
	}
	if !path.IsAbs(c.run) {
		errs = errors.Join(errs, fmt.Errorf("run root %q must be an absolute path", c.run))
	}
	if errs != nil {
		return nil, errs
	}
	c.sysfs = path.Clean(c.sysfs)
	c.run = path.Clean(c.run)

	klog.V(4).Infof("Opened udev context %s", c)
	return c, nil
}

// Udev returns the libudev handle. It must not be used after Close.
func (c *Context) Udev() *libudev.Udev {
	return &c.udev
}

func (c *Context) Fs() afero.Fs {
	return c.fs
}

// SysfsPath joins elem onto the sysfs root.
func (c *Context) SysfsPath(elem ...string) string {
	return path.Join(append([]string{c.sysfs}, elem...)...)
}

// RunPath joins elem onto the runtime state root.
func (c *Context) RunPath(elem ...string) string {
	return path.Join(append([]string{c.run}, elem...)...)
}

func (c *Context) Alive() bool {
	return c != nil && !c.closed
}

func (c *Context) Close() {
	if c.closed {
		return
	}
	c.closed = true
	klog.V(4).Infof("Closed udev context %s", c)
}

func (c *Context) String() string {
	return fmt.Sprintf("Context[sysfs=%s, run=%s]", c.sysfs, c.run)
}
