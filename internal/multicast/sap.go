package multicast

import (
	"fmt"
	"net"
	"time"
)

// DefaultSAPInterval is the re-announcement period, matching the interval
// ka9q-radio's sap.c uses (RFC 2974 leaves the exact value to the
// implementation).
const DefaultSAPInterval = 5 * time.Minute

// SAPAnnouncer periodically sends an SDP session announcement to the
// well-known SAP group (224.2.127.254:9875) describing one data group.
type SAPAnnouncer struct {
	conn    *net.UDPConn
	dest    *net.UDPAddr
	name    string
	groupIP string
	port    int
	stop    chan struct{}
}

// NewSAPAnnouncer builds an announcer for a single group; conn is shared
// with the caller (normally the Sockets.Wire send socket) and is never
// closed by the announcer.
func NewSAPAnnouncer(conn *net.UDPConn, name, groupIP string, port int) (*SAPAnnouncer, error) {
	dest, err := net.ResolveUDPAddr("udp4", sapAddr)
	if err != nil {
		return nil, fmt.Errorf("multicast: resolving SAP group: %w", err)
	}
	return &SAPAnnouncer{conn: conn, dest: dest, name: name, groupIP: groupIP, port: port, stop: make(chan struct{})}, nil
}

// Run sends one announcement immediately and then once per interval until
// Stop is called. It never exits on a send error; it just skips that tick.
func (s *SAPAnnouncer) Run(interval time.Duration) {
	s.announce()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.announce()
		}
	}
}

func (s *SAPAnnouncer) Stop() {
	close(s.stop)
}

func (s *SAPAnnouncer) announce() {
	payload := s.sdp()
	header := []byte{0x20, 0x00, 0x00, 0x00}
	pkt := append(header, payload...)

	if err := s.conn.SetWriteDeadline(time.Now().Add(1 * time.Second)); err != nil {
		return
	}
	s.conn.WriteTo(pkt, s.dest)
}

func (s *SAPAnnouncer) sdp() []byte {
	return []byte(fmt.Sprintf(
		"v=0\r\no=- 0 0 IN IP4 %s\r\ns=%s\r\nc=IN IP4 %s/1\r\nt=0 0\r\nm=audio %d RTP/AVP 10\r\n",
		s.groupIP, s.name, s.groupIP, s.port,
	))
}
