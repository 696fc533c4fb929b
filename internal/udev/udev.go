package udev

import (
	"fmt"
	"strings"

	libudev "github.com/jochenvg/go-udev"
)

const (
	BlockSubsystem = "block"
	NetSubsystem   = "net"

	ActionAdd    = "add"
	ActionChange = "change"
	ActionRemove = "remove"
)

type generic struct {
	ctx *Context

	dev    *libudev.Device
	parent Device
}

func (g *generic) Id() Id {
	return Id(g.dev.Syspath())
}

func (g *generic) Syspath() string {
	return g.dev.Syspath()
}

func (g *generic) Sysname() string {
	return g.dev.Sysname()
}

func (g *generic) Parent() Device {
	if g.parent == nil {
		parent := g.dev.Parent()
		if parent == nil {
			return nil
		}
		g.parent = &generic{ctx: g.ctx, dev: parent}
	}
	return g.parent
}

func (g *generic) Subsystem() string {
	return g.dev.Subsystem()
}

func (g *generic) DevType() string {
	return g.dev.Devtype()
}

func (g *generic) DevNode() string {
	return g.dev.Devnode()
}

func (g *generic) Action() string {
	return g.dev.Action()
}

func (g *generic) DevLinks() []string {
	devlinks := g.dev.Devlinks()
	res := make([]string, 0, len(devlinks))
	for link := range devlinks {
		res = append(res, link)
	}
	return res
}

func (g *generic) Properties() map[string]string {
	return g.dev.Properties()
}

func (g *generic) Property(key string) string {
	return strings.TrimSpace(g.dev.PropertyValue(key))
}

func (g *generic) PropertyLookup(key string) string {
	value := g.Property(key)
	if value == "" {
		if parent := g.Parent(); parent != nil {
			return parent.PropertyLookup(key)
		}
	}
	return value
}

func (g *generic) SystemAttribute(key string) string {
	return strings.TrimSpace(g.dev.SysattrValue(key))
}

func (g *generic) SystemAttributeLookup(key string) string {
	value := g.SystemAttribute(key)
	if value == "" {
		if parent := g.Parent(); parent != nil {
			return parent.SystemAttributeLookup(key)
		}
	}
	return value
}

func (g *generic) Tags() []string {
	tags := g.dev.Tags()
	res := make([]string, 0, len(tags))
	for tag := range tags {
		res = append(res, tag)
	}
	return res
}

func (g *generic) Debug() string {
	return fmt.Sprintf("Device[ID=%s, Subsystem=%s, DevType=%s, DevNode=%s, Links=%v, Tags=%v]",
		g.Id(),
		g.Subsystem(),
		g.DevType(),
		g.DevNode(),
		g.DevLinks(),
		g.Tags(),
	)
}
