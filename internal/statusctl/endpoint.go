package statusctl

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/cwsl/radiod-go/internal/channel"
	"github.com/cwsl/radiod-go/internal/frontend"
	"github.com/cwsl/radiod-go/internal/template"
)

// Endpoint is the status/control long-running task: it listens on the
// status group for commands addressed by SSRC, and
// creates a dynamic channel inheriting the global template for any
// command addressed to an SSRC with no existing channel. Its send side
// shares the process-wide TTL>0 data socket; only the receive side owns
// a dedicated listener.
type Endpoint struct {
	Manager  *channel.Manager
	SendConn *net.UDPConn // shared with the data path; never closed here
	Logger   *log.Logger

	// GlobalTemplate, Frontend, and DataAddr are what a freshly created
	// dynamic channel inherits: the global template (cloned per channel),
	// the process-wide Frontend, and the global data group destination.
	GlobalTemplate template.Template
	Frontend       *frontend.Frontend
	DataAddr       *net.UDPAddr

	listener *net.UDPConn
	stop     chan struct{}
}

// Listen binds a SO_REUSEPORT listener on addr so other processes can
// share the status port without fighting over the bind, joins addr on
// iface when iface is non-nil (no other interface is joined), and returns
// an Endpoint ready for Run. tmpl, fe, and dataAddr supply what a
// dynamically created channel inherits.
func Listen(addr *net.UDPAddr, iface *net.Interface, manager *channel.Manager, sendConn *net.UDPConn, logger *log.Logger, tmpl template.Template, fe *frontend.Frontend, dataAddr *net.UDPAddr) (*Endpoint, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var opErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					opErr = fmt.Errorf("setting SO_REUSEADDR: %w", err)
					return
				}
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
					opErr = fmt.Errorf("setting SO_REUSEPORT: %w", err)
					return
				}
			})
			if err != nil {
				return err
			}
			return opErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", addr.String())
	if err != nil {
		return nil, fmt.Errorf("statusctl: listening on %s: %w", addr, err)
	}
	conn := pc.(*net.UDPConn)

	p := ipv4.NewPacketConn(conn)
	if iface != nil {
		if err := p.JoinGroup(iface, addr); err != nil {
			conn.Close()
			return nil, fmt.Errorf("statusctl: joining status group: %w", err)
		}
	}

	return &Endpoint{
		Manager:        manager,
		SendConn:       sendConn,
		Logger:         logger,
		GlobalTemplate: tmpl,
		Frontend:       fe,
		DataAddr:       dataAddr,
		listener:       conn,
		stop:           make(chan struct{}),
	}, nil
}

// Run reads command packets until Stop is called, dispatching each to
// handle. It never exits on a read error other than the stop signal;
// per-packet failures are logged and skipped.
func (e *Endpoint) Run() {
	buf := make([]byte, 9000)
	for {
		select {
		case <-e.stop:
			return
		default:
		}

		e.listener.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, _, err := e.listener.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			e.Logger.Warn("statusctl read error", "err", err)
			continue
		}
		if n < 2 || buf[0] != PktTypeCmd {
			continue
		}
		e.handleCommand(buf[1:n])
	}
}

// handleCommand looks up the channel named by the packet's SSRC field and
// touches it (resetting its idle-expiry clock); a command addressed to an
// SSRC with no existing channel creates one, tuned to 0 Hz and inheriting
// GlobalTemplate, which the idle-expiry sweep will reclaim if it is never
// subsequently tuned off 0 Hz.
func (e *Endpoint) handleCommand(body []byte) {
	fields := Decode(body)
	var ssrc uint32
	for _, f := range fields {
		if f.Tag == TagOutputSSRC {
			ssrc = DecodeInt32(f.Value)
		}
	}
	if ssrc == 0 {
		return
	}
	if ch, ok := e.Manager.Lookup(ssrc); ok {
		ch.Touch()
		return
	}
	e.createDynamicChannel(ssrc)
}

// createDynamicChannel allocates ssrc (the exact SSRC the command named,
// not a derived one) and registers a new non-static channel at 0 Hz.
// It is a no-op if ssrc is the reserved value or already in use by
// another channel racing this one.
func (e *Endpoint) createDynamicChannel(ssrc uint32) {
	got, reserved, exhausted := e.Manager.Allocate(ssrc)
	if reserved || exhausted {
		return
	}
	if got != ssrc {
		// ssrc was already taken; give back the retried value.
		e.Manager.Remove(got)
		return
	}
	ch := channel.New(got, 0, false, e.GlobalTemplate.Clone(), e.Frontend, e.DataAddr)
	e.Manager.Add(ch)
	e.Logger.Info("dynamic channel created", "ssrc", got)
}

// Stop halts Run and closes the listener.
func (e *Endpoint) Stop() {
	close(e.stop)
	e.listener.Close()
}
