// Package multicast resolves group names to addresses, opens the two
// process-wide send sockets, and advertises services over mDNS/DNS-SD
// and SAP.
package multicast

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// fnv1Hash is ka9q-radio's fnv1hash() from misc.c, used unchanged so
// addresses synthesized here agree with any ka9q-radio peer on the wire.
func fnv1Hash(data []byte) uint32 {
	hash := uint32(0x811c9dc5)
	for _, b := range data {
		hash *= 0x01000193
		hash ^= uint32(b)
	}
	return hash
}

// MakeMaddr synthesizes a 239.0.0.0/8 multicast address from name via
// FNV-1, matching ka9q-radio's make_maddr() from multicast.c, including
// its avoidance of the 239.0.0.0/24 and 239.128.0.0/24 ranges that alias
// onto the same Ethernet multicast MAC address.
func MakeMaddr(name string) string {
	hash := fnv1Hash([]byte(name))
	addr := (uint32(239) << 24) | (hash & 0xffffff)

	if addr&0x007fff00 == 0 {
		addr |= (addr & 0xff) << 8
	}
	if addr&0x007fff00 == 0 {
		addr |= 0x00100000
	}

	return fmt.Sprintf("%d.%d.%d.%d", (addr>>24)&0xff, (addr>>16)&0xff, (addr>>8)&0xff, addr&0xff)
}

// Resolve turns a "name:port" or bare "name" group descriptor into a
// *net.UDPAddr. If dnsEnabled, it tries net.ResolveUDPAddr first (up to
// two attempts, since the first can race a not-yet-published record);
// any resolution failure, or dnsEnabled being false, falls back to FNV-1
// hash synthesis so the group address is still deterministic across every
// radiod-go instance and any peer ka9q-radio deployment.
func Resolve(group string, port int, dnsEnabled bool) (*net.UDPAddr, error) {
	host, explicitPort := splitHostPort(group)
	if explicitPort != 0 {
		port = explicitPort
	}

	if dnsEnabled {
		for attempt := 0; attempt < 2; attempt++ {
			addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", host, port))
			if err == nil {
				return addr, nil
			}
		}
	}

	synth := MakeMaddr(host)
	return net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", synth, port))
}

func splitHostPort(group string) (host string, port int) {
	idx := strings.LastIndex(group, ":")
	if idx < 0 {
		return group, 0
	}
	p, err := strconv.Atoi(group[idx+1:])
	if err != nil {
		return group, 0
	}
	return group[:idx], p
}

// WithLocalSuffix appends ".local" to a bare host name lacking a dot, the
// way mDNS resolution expects names to be shaped.
func WithLocalSuffix(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".local"
}
