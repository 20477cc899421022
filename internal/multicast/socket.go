package multicast

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/ipv4"
)

// Sockets holds the two process-wide multicast send sockets the daemon
// keeps open for its whole lifetime: Loop (TTL=0,
// local-only) and Wire (TTL>0, routed to the LAN). Every channel and the
// status/control endpoint picks one of these two by its template's TTL
// rather than opening its own.
type Sockets struct {
	Loop *net.UDPConn
	Wire *net.UDPConn
}

// Open creates both sockets bound to iface (nil means the kernel default
// route), with IP_MULTICAST_LOOP enabled on both so same-host listeners
// always see traffic. Open joins no groups; callers use JoinGroup, which
// joins the Wire socket only.
func Open(iface *net.Interface, wireTTL int) (*Sockets, error) {
	if wireTTL <= 0 {
		wireTTL = 1
	}

	loop, err := newSendSocket(iface, 0)
	if err != nil {
		return nil, fmt.Errorf("multicast: opening loop socket: %w", err)
	}
	wire, err := newSendSocket(iface, wireTTL)
	if err != nil {
		loop.Close()
		return nil, fmt.Errorf("multicast: opening wire socket: %w", err)
	}
	return &Sockets{Loop: loop, Wire: wire}, nil
}

func newSendSocket(iface *net.Interface, ttl int) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("creating udp socket: %w", err)
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("getting raw connection: %w", err)
	}

	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		if err := syscall.SetsockoptInt(int(fd), syscall.IPPROTO_IP, syscall.IP_MULTICAST_LOOP, 1); err != nil {
			sockErr = fmt.Errorf("setting IP_MULTICAST_LOOP: %w", err)
			return
		}
		if err := syscall.SetsockoptInt(int(fd), syscall.IPPROTO_IP, syscall.IP_MULTICAST_TTL, ttl); err != nil {
			sockErr = fmt.Errorf("setting IP_MULTICAST_TTL: %w", err)
			return
		}
		if iface != nil {
			mreqn := syscall.IPMreqn{Ifindex: int32(iface.Index)}
			if err := syscall.SetsockoptIPMreqn(int(fd), syscall.IPPROTO_IP, syscall.IP_MULTICAST_IF, &mreqn); err != nil {
				sockErr = fmt.Errorf("setting IP_MULTICAST_IF: %w", err)
				return
			}
		}
	})
	if ctrlErr != nil {
		conn.Close()
		return nil, fmt.Errorf("controlling socket: %w", ctrlErr)
	}
	if sockErr != nil {
		conn.Close()
		return nil, sockErr
	}

	return conn, nil
}

// JoinGroup makes the TTL>0 socket a member of addr's group on iface, the
// workaround an IGMP-snooping switch needs to keep forwarding to a
// sender that never itself subscribes.
func (s *Sockets) JoinGroup(iface *net.Interface, addr *net.UDPAddr) error {
	p := ipv4.NewPacketConn(s.Wire)
	if err := p.JoinGroup(iface, addr); err != nil {
		return fmt.Errorf("multicast: joining group %s on %v: %w", addr, iface, err)
	}
	return nil
}

// Pick returns Loop for ttl==0 and Wire otherwise.
func (s *Sockets) Pick(ttl int) *net.UDPConn {
	if ttl == 0 {
		return s.Loop
	}
	return s.Wire
}

// Close closes both sockets and returns the first error encountered (the
// Loop socket's if both fail).
func (s *Sockets) Close() error {
	err1 := s.Loop.Close()
	err2 := s.Wire.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
