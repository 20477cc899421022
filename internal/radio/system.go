// Package radio ties every other package together into the running
// daemon: the System context and the startup
// sequence that builds it.
package radio

import (
	"net"

	"github.com/charmbracelet/log"

	"github.com/cwsl/radiod-go/internal/channel"
	"github.com/cwsl/radiod-go/internal/config"
	"github.com/cwsl/radiod-go/internal/frontend"
	"github.com/cwsl/radiod-go/internal/multicast"
	"github.com/cwsl/radiod-go/internal/preset"
)

// System is mutable during startup and frozen once Run's startup phase
// completes: channels and the status endpoint hold a pointer to it (or
// to its Frontend) but System itself never reaches back into a channel.
type System struct {
	Frontend *frontend.Frontend
	Config   *config.Tree
	Presets  *preset.Tree

	Sockets *multicast.Sockets
	Iface   *net.Interface

	Channels *channel.Manager

	Logger *log.Logger

	Name string // -N name; stored here and not read by the startup sequence
}

// New constructs an empty System; Run's startup sequence fills in each
// field in dependency order (config, presets, frontend, sockets,
// channels) before anything is allowed to read from it concurrently.
func New(logger *log.Logger, name string) *System {
	return &System{
		Channels: channel.NewManager(),
		Logger:   logger,
		Name:     name,
	}
}
