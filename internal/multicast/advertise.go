package multicast

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

// Service types radiod-go advertises over mDNS/DNS-SD.
const (
	ServiceRTP    = "_rtp._udp"
	ServiceOpus   = "_opus._udp"
	ServiceStatus = "_ka9q-ctl._udp"

	sapAddr = "224.2.127.254:9875"
)

// Advertiser publishes one mDNS service record per group, wrapping
// github.com/brutella/dnssd's Service/Responder pair. SAP announcements
// are sent by SAPAnnouncer, not by Advertiser.
type Advertiser struct {
	responder dnssd.Responder
	log       *log.Logger
}

// NewAdvertiser creates a responder and starts it in the background; ctx
// cancellation stops it. A failure to create the responder is logged, not
// fatal: service discovery is a convenience, not required for streams to
// flow.
func NewAdvertiser(ctx context.Context, logger *log.Logger) (*Advertiser, error) {
	rp, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("multicast: creating mDNS responder: %w", err)
	}
	a := &Advertiser{responder: rp, log: logger}
	go func() {
		if err := rp.Respond(ctx); err != nil && ctx.Err() == nil {
			a.log.Error("mDNS responder stopped", "err", err)
		}
	}()
	return a, nil
}

// Publish announces name (appended with WithLocalSuffix if bare) as
// serviceType on port, with a TTL=<n> TXT attribute describing the
// group's multicast TTL.
func (a *Advertiser) Publish(ctx context.Context, name, serviceType string, port int, ttl int) error {
	cfg := dnssd.Config{
		Name: WithLocalSuffix(name),
		Type: serviceType,
		Port: port,
		Text: map[string]string{
			"TTL": fmt.Sprintf("%d", ttl),
		},
	}
	sv, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("multicast: building service %s: %w", name, err)
	}
	if _, err := a.responder.Add(sv); err != nil {
		return fmt.Errorf("multicast: adding service %s: %w", name, err)
	}
	return nil
}
