// Package rtcpsender runs the per-channel 1Hz RTCP sender report loop:
// Sender Report plus SDES, built with github.com/pion/rtcp and sent over
// the channel's shared TTL>0 socket.
package rtcpsender

import (
	"net"
	"os"
	"time"

	"github.com/pion/rtcp"

	"github.com/cwsl/radiod-go/internal/channel"
)

// ntpEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01) and the Unix epoch (1970-01-01), needed to convert a
// realtime clock reading into an NTP timestamp.
const ntpEpochOffset = 2208988800

// Sender drives one channel's 1Hz RTCP loop. The report's RTP timestamp
// field is copied from the channel's RTPState.Timestamp as stored by the
// channel's own send path; Sender does not compute it.
type Sender struct {
	Conn    *net.UDPConn
	Dest    *net.UDPAddr
	Channel *channel.Channel

	stop chan struct{}
}

func New(conn *net.UDPConn, dest *net.UDPAddr, ch *channel.Channel) *Sender {
	return &Sender{Conn: conn, Dest: dest, Channel: ch, stop: make(chan struct{})}
}

// Run ticks once per second until Stop is called. A channel whose SSRC
// is 0 is skipped on every tick: such a channel
// exists only transiently during construction and should never reach a
// running Sender, but the check is kept cheap insurance against a racy
// caller.
func (s *Sender) Run() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Sender) Stop() {
	close(s.stop)
}

// tick is the per-second body of Run, split out so its skip-on-SSRC-0
// rule is directly testable without a live ticker.
func (s *Sender) tick() {
	if s.Channel.SSRC == 0 {
		return
	}
	s.sendReport()
}

func (s *Sender) sendReport() {
	now := time.Now()
	ntpSeconds := uint64(now.Unix()+ntpEpochOffset) << 32
	ntpFrac := uint64(float64(now.Nanosecond()) / 1e9 * (1 << 32))
	ntpTime := ntpSeconds | ntpFrac

	sr := &rtcp.SenderReport{
		SSRC:        s.Channel.SSRC,
		NTPTime:     ntpTime,
		RTPTime:     s.Channel.RTP.Timestamp,
		PacketCount: uint32(s.Channel.RTP.PacketsOut),
		OctetCount:  uint32(s.Channel.RTP.BytesOut),
	}

	hostname, _ := os.Hostname()
	sdes := &rtcp.SourceDescription{
		Chunks: []rtcp.SourceDescriptionChunk{
			{
				Source: s.Channel.SSRC,
				Items: []rtcp.SourceDescriptionItem{
					{Type: rtcp.SDESCNAME, Text: "radio@" + hostname},
					{Type: rtcp.SDESName, Text: "radiod-go"},
					{Type: rtcp.SDESEmail, Text: "radio@" + hostname},
					{Type: rtcp.SDESTool, Text: "radiod-go"},
				},
			},
		},
	}

	buf, err := rtcp.Marshal([]rtcp.Packet{sr, sdes})
	if err != nil {
		s.Channel.RecordSendError()
		return
	}

	if err := s.Conn.SetWriteDeadline(time.Now().Add(1 * time.Second)); err != nil {
		s.Channel.RecordSendError()
		return
	}
	if _, err := s.Conn.WriteTo(buf, s.Dest); err != nil {
		s.Channel.RecordSendError()
	}
}
