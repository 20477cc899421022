// Package channel implements the per-frequency demodulation channel:
// identity (SSRC), lifetime, and the section-level fan-out that builds
// one channel per parsed frequency token.
package channel

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwsl/radiod-go/internal/frontend"
	"github.com/cwsl/radiod-go/internal/template"
)

// RTPState holds the sequence/byte counters a channel's own output
// stream advances. Its fields are plain integers; rtcpsender reads them
// once per second directly, with neither a lock nor atomic loads.
type RTPState struct {
	Seq        uint32
	Timestamp  uint32
	PacketsOut uint64
	BytesOut   uint64
}

// Channel is one demodulated output stream: a unique SSRC, a template
// describing its output/status destinations, and a back-reference to the
// Frontend it draws samples from. Never the other way: Frontend has no
// knowledge of its channels, which simply borrow it by pointer.
type Channel struct {
	SSRC    uint32
	FreqHz  float64
	Static  bool // true for explicit non-zero frequencies; false (dynamic) channels expire when idle.
	Tmpl    template.Template
	FE      *frontend.Frontend
	DataDst *net.UDPAddr
	RTP     RTPState

	lastActivity atomic.Int64 // unix nanoseconds, touched by command/traffic arrival
	errors       atomic.Int64

	mu       sync.Mutex
	stopped  bool
	sapStop  stoppable
	rtcpStop stoppable
}

// stoppable is implemented by a channel's optional side threads (SAP
// announcer, RTCP sender). Kept as a narrow local interface so this
// package never needs to import rtcpsender, which itself imports this
// package for *Channel.
type stoppable interface{ Stop() }

// New constructs a Channel bound to fe with ssrc and tmpl already
// resolved by the caller (the Channel Factory); New itself does no I/O.
func New(ssrc uint32, freqHz float64, static bool, tmpl template.Template, fe *frontend.Frontend, dst *net.UDPAddr) *Channel {
	c := &Channel{
		SSRC:    ssrc,
		FreqHz:  freqHz,
		Static:  static,
		Tmpl:    tmpl,
		FE:      fe,
		DataDst: dst,
	}
	c.Touch()
	return c
}

// Touch records activity (a new command, or — for non-zero frequencies —
// simply being alive), resetting the idle-expiry clock.
func (c *Channel) Touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// IdleFor reports how long it has been since the last Touch.
func (c *Channel) IdleFor(now time.Time) time.Duration {
	last := time.Unix(0, c.lastActivity.Load())
	return now.Sub(last)
}

// Expired reports whether a dynamic (zero-frequency, non-Static) channel
// has gone unused for Tmpl.LifetimeBlocks blocks at blocktimeMs each.
// Static channels never expire.
func (c *Channel) Expired(now time.Time, blocktimeMs float64) bool {
	if c.Static {
		return false
	}
	idle := time.Duration(float64(c.Tmpl.LifetimeBlocks) * blocktimeMs * float64(time.Millisecond))
	return c.IdleFor(now) >= idle
}

// RecordSendError increments the channel's error counter; it never stops
// the channel or the process — a send failure is recoverable.
func (c *Channel) RecordSendError() {
	c.errors.Add(1)
}

func (c *Channel) Errors() int64 {
	return c.errors.Load()
}

// SetSAPStopper attaches the channel's SAP announcer, letting Stop tear it
// down alongside the channel; nil clears it. Must be called before the
// channel can be concurrently stopped.
func (c *Channel) SetSAPStopper(s stoppable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sapStop = s
}

// SetRTCPStopper attaches the channel's RTCP sender, mirroring
// SetSAPStopper.
func (c *Channel) SetRTCPStopper(s stoppable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rtcpStop = s
}

// Stop marks the channel stopped and tears down any SAP/RTCP side
// threads it owns. Safe to call more than once.
func (c *Channel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	if c.sapStop != nil {
		c.sapStop.Stop()
	}
	if c.rtcpStop != nil {
		c.rtcpStop.Stop()
	}
}

func (c *Channel) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}
