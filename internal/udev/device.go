package udev

import (
	"errors"
	"fmt"
)

type Id string

type Device interface {
	Id() Id
	Syspath() string
	Sysname() string
	Parent() Device
	Subsystem() string
	DevType() string
	DevNode() string
	Action() string
	DevLinks() []string
	Properties() map[string]string
	Property(string) string
	PropertyLookup(string) string
	SystemAttribute(string) string
	SystemAttributeLookup(string) string
	Tags() []string

	Debug() string
}

var (
	ErrResolution = errors.New("udev: device resolution failed")
	ErrNoDevice   = errors.New("no such device")
)

// ResolutionError is returned when a syspath could not be turned into a
// Device, typically because the device vanished in between.
type ResolutionError struct {
	Syspath string
	Err     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("udev: failed to resolve device %q: %v", e.Syspath, e.Err)
}

func (e *ResolutionError) Unwrap() []error {
	return []error{ErrResolution, e.Err}
}

// Resolver produces a Device for a syspath.
type Resolver interface {
	FromPath(ctx *Context, syspath string) (Device, error)
}

type ResolverFunc func(ctx *Context, syspath string) (Device, error)

func (f ResolverFunc) FromPath(ctx *Context, syspath string) (Device, error) {
	return f(ctx, syspath)
}

// NewResolver returns a Resolver backed by libudev.
func NewResolver() Resolver {
	return ResolverFunc(fromPath)
}

func fromPath(ctx *Context, syspath string) (Device, error) {
	if !ctx.Alive() {
		return nil, &ResolutionError{Syspath: syspath, Err: ErrContextClosed}
	}
	if syspath == "" {
		return nil, &ResolutionError{Syspath: syspath, Err: errors.New("empty syspath")}
	}

	dev := ctx.Udev().NewDeviceFromSyspath(syspath)
	if dev == nil {
		return nil, &ResolutionError{Syspath: syspath, Err: ErrNoDevice}
	}

	return &generic{ctx: ctx, dev: dev}, nil
}
