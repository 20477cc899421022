package channel

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/cwsl/radiod-go/internal/config"
	"github.com/cwsl/radiod-go/internal/frontend"
	"github.com/cwsl/radiod-go/internal/multicast"
	"github.com/cwsl/radiod-go/internal/preset"
	"github.com/cwsl/radiod-go/internal/template"
)

// DefaultStatPort is the port of the status/control group, matching
// ka9q-radio's DEFAULT_STAT_PORT.
const DefaultStatPort = 5006

// DefaultRTCPPort is the port rtcpsender addresses, matching ka9q-radio's
// DEFAULT_RTCP_PORT.
const DefaultRTCPPort = 5007

// Factory builds the channels named by one config section, run once
// per section in parallel with every other section's factory.
type Factory struct {
	Manager *Manager
	Sockets *multicast.Sockets
	Iface   *net.Interface
	Logger  *log.Logger
	DNS     bool
}

// BuildSection resolves sectionName's template and its data group
// address (joining that group on the wire socket when a TTL>0 socket and
// interface are configured), then creates one channel per parsed
// frequency token across its freq/freq0..freq9 keys. It neither
// publishes the group over mDNS nor derives a status group; the caller
// does the advertising. It returns the
// created channels; skipped tokens (unparseable, reserved SSRC, or SSRC
// exhaustion) are logged, never fatal to the section or the process.
func (f *Factory) BuildSection(ctx context.Context, cfg *config.Tree, presets *preset.Tree, fe *frontend.Frontend, sectionName string) ([]*Channel, error) {
	tmpl, warnings := template.Build(cfg, presets, sectionName)
	for _, w := range warnings {
		f.Logger.Warn(w)
	}

	if tmpl.Output.Dest == "" {
		return nil, fmt.Errorf("channel: section %q has no data= destination", sectionName)
	}

	dataAddr, err := multicast.Resolve(tmpl.Output.Dest, 5004, f.DNS)
	if err != nil {
		return nil, fmt.Errorf("channel: resolving data group for %q: %w", sectionName, err)
	}

	if f.Sockets != nil && f.Iface != nil && tmpl.Output.TTL > 0 {
		if err := f.Sockets.JoinGroup(f.Iface, dataAddr); err != nil {
			f.Logger.Warn("failed to join data group", "section", sectionName, "err", err)
		}
	}

	section := cfg.Section(sectionName)

	var created []*Channel
	for _, key := range FreqKeys() {
		v, ok := section.Get(key)
		if !ok {
			continue
		}
		for _, tok := range Tokens(v) {
			hz, ok := ParseFreq(tok)
			if !ok {
				f.Logger.Warn("unparseable frequency token, skipping", "section", sectionName, "token", tok)
				continue
			}

			requested := DeriveSSRC(tok)
			if override, ok := section.Get("ssrc"); ok {
				if n, err := strconv.ParseUint(override, 10, 32); err == nil {
					requested = uint32(n)
				}
			}

			ssrc, reserved, exhausted := f.Manager.Allocate(requested)
			if reserved {
				f.Logger.Warn("reserved SSRC, skipping channel", "section", sectionName, "token", tok)
				continue
			}
			if exhausted {
				f.Logger.Warn("SSRC collision retries exhausted, skipping channel", "section", sectionName, "token", tok, "requested", requested)
				continue
			}

			static := hz != 0
			ch := New(ssrc, hz, static, tmpl.Clone(), fe, dataAddr)
			f.Manager.Add(ch)
			created = append(created, ch)
		}
	}

	return created, nil
}
