package radio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sync/errgroup"

	"github.com/cwsl/radiod-go/internal/channel"
	"github.com/cwsl/radiod-go/internal/config"
	"github.com/cwsl/radiod-go/internal/frontend"
	"github.com/cwsl/radiod-go/internal/multicast"
	"github.com/cwsl/radiod-go/internal/preset"
	"github.com/cwsl/radiod-go/internal/radioerr"
	"github.com/cwsl/radiod-go/internal/rtcpsender"
	"github.com/cwsl/radiod-go/internal/statusctl"
	"github.com/cwsl/radiod-go/internal/telemetry"
	"github.com/cwsl/radiod-go/internal/template"
	"github.com/cwsl/radiod-go/internal/timing"
)

// Options configures one Run invocation; it is the decoded form of the
// CLI flags and environment.
type Options struct {
	ConfigPath string
	DataDir    string
	SODir      string
	DNS        bool
	Iface      string
}

// Run executes the full startup sequence: Config
// Loader, Preset Library, Front-End Binder, Advertiser for the global
// data group, Channel Template Builder, one Channel Factory per section
// run in parallel, and the Status/Control Endpoint. It returns once
// startup either completes (with every side task launched in the
// background) or fails.
func Run(ctx context.Context, sys *System, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return radioerr.New(radioerr.ConfigLoad, "Run", err)
	}
	for _, w := range cfg.Validate() {
		sys.Logger.Warn(w)
	}
	sys.Config = cfg

	presetsPath := preset.Resolve(cfg, opts.DataDir)
	presets, err := preset.Load(presetsPath)
	if err != nil {
		return radioerr.New(radioerr.PresetMissing, "Run", fmt.Errorf("loading presets from %s: %w", presetsPath, err))
	}
	sys.Presets = presets

	hwSection, ok := cfg.HardwareSection()
	if !ok {
		return radioerr.New(radioerr.ConfigValidate, "Run", fmt.Errorf("global.hardware is not set"))
	}

	fe, err := frontend.Bind(cfg, opts.SODir, hwSection, nil)
	if err != nil {
		kind := radioerr.HardwareBind
		var be *frontend.BindError
		if errors.As(err, &be) && be.Stage != frontend.StageResolve {
			kind = radioerr.HardwareSetup
		}
		return radioerr.New(kind, "Run", err)
	}
	sys.Frontend = fe

	var iface *net.Interface
	if opts.Iface != "" {
		iface, err = net.InterfaceByName(opts.Iface)
		if err != nil {
			return radioerr.New(radioerr.SocketOpen, "Run", err)
		}
	}
	sys.Iface = iface

	globalTmpl, warnings := template.Build(cfg, presets, config.GlobalSection)
	for _, w := range warnings {
		sys.Logger.Warn(w)
	}

	sockets, err := multicast.Open(iface, globalTmpl.Output.TTL)
	if err != nil {
		return radioerr.New(radioerr.SocketOpen, "Run", err)
	}
	sys.Sockets = sockets

	advertiser, err := multicast.NewAdvertiser(ctx, sys.Logger)
	if err != nil {
		sys.Logger.Warn("mDNS advertiser unavailable", "err", err)
	}

	// Advertiser for the global data group, ahead of the per-section
	// fan-out: the global template may declare no data= destination of
	// its own, in which case there is nothing to advertise or for a
	// dynamically created channel to inherit.
	var globalDataAddr *net.UDPAddr
	if globalTmpl.Output.Dest != "" {
		addr, rerr := multicast.Resolve(globalTmpl.Output.Dest, 5004, opts.DNS)
		if rerr != nil {
			sys.Logger.Warn("resolving global data group", "err", rerr)
		} else {
			globalDataAddr = addr
			if iface != nil && globalTmpl.Output.TTL > 0 {
				if jerr := sockets.JoinGroup(iface, addr); jerr != nil {
					sys.Logger.Warn("failed to join global data group", "err", jerr)
				}
			}
			if advertiser != nil {
				if perr := advertiser.Publish(ctx, globalTmpl.Output.Dest, multicast.ServiceRTP, 5004, globalTmpl.Output.TTL); perr != nil {
					sys.Logger.Warn("advertising global data group", "err", perr)
				}
			}
		}
	}

	blocktimeMs := timing.DefaultBlocktimeMs
	if v, ok := cfg.Global().Get("blocktime"); ok {
		if bt, perr := strconv.ParseFloat(v, 64); perr == nil && bt > 0 {
			blocktimeMs = bt
		}
	}
	go sys.reapIdleChannels(ctx, blocktimeMs)

	broker, _ := cfg.Global().Get("mqtt-broker")
	topic, _ := cfg.Global().Get("mqtt-topic")
	metricsListen, _ := cfg.Global().Get("metrics-listen")
	if broker != "" || metricsListen != "" {
		proc, _ := process.NewProcess(int32(os.Getpid()))
		pub := telemetry.NewPublisher(sys.Channels, sys.Logger,
			func() float64 {
				if proc == nil {
					return 0
				}
				pct, perr := proc.Percent(0)
				if perr != nil {
					return 0
				}
				return pct
			},
			func() int64 {
				if sys.Frontend == nil {
					return 0
				}
				return sys.Frontend.ADOverranges
			},
			nil,
		)
		if err := pub.ConfigureMQTT(broker, topic); err != nil {
			sys.Logger.Warn("configuring mqtt telemetry", "err", err)
		}
		if err := pub.ConfigureMetrics(metricsListen); err != nil {
			sys.Logger.Warn("configuring metrics telemetry", "err", err)
		}
		go pub.Run(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sectionName := range cfg.ChannelSections() {
		sectionName := sectionName
		g.Go(func() error {
			return sys.buildSection(gctx, sectionName, advertiser)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Resolve already falls back to hash synthesis on its own when DNS
	// lookup fails; a non-nil error here means even the synthesized
	// address was unusable, which is not worth aborting startup over —
	// log it and run without the status/control endpoint.
	statusAddr, err := multicast.Resolve(hwSection+"-status", channel.DefaultStatPort, opts.DNS)
	if err != nil {
		sys.Logger.Warn("resolving status group, status/control endpoint disabled", "err", err)
		return nil
	}
	endpoint, err := statusctl.Listen(statusAddr, iface, sys.Channels, sockets.Wire, sys.Logger, globalTmpl, sys.Frontend, globalDataAddr)
	if err != nil {
		return radioerr.New(radioerr.SocketOpen, "Run", err)
	}
	go endpoint.Run()

	return nil
}

// buildSection runs one section's Channel Template Builder, Advertiser,
// and Channel Factory. It returns an error only for section-level
// conditions (missing data= destination, unresolvable group); such an
// error fails the errgroup in Run and so aborts startup. Per-channel problems (unparseable token, SSRC collision
// exhaustion, reserved SSRC) are logged and skipped inside the factory.
func (sys *System) buildSection(ctx context.Context, sectionName string, advertiser *multicast.Advertiser) error {
	f := &channel.Factory{
		Manager: sys.Channels,
		Sockets: sys.Sockets,
		Iface:   sys.Iface,
		Logger:  sys.Logger,
		DNS:     false,
	}

	chans, err := f.BuildSection(ctx, sys.Config, sys.Presets, sys.Frontend, sectionName)
	if err != nil {
		return radioerr.New(radioerr.ConfigValidate, "buildSection", err)
	}

	if advertiser != nil && len(chans) > 0 {
		tmpl := chans[0].Tmpl
		if err := advertiser.Publish(ctx, tmpl.Output.Dest, multicast.ServiceRTP, 5004, tmpl.Output.TTL); err != nil {
			sys.Logger.Warn("advertising data group", "section", sectionName, "err", err)
		}
	}

	for _, ch := range chans {
		sys.startChannelSideThreads(ch, sectionName)
	}

	sys.Logger.Info("section ready", "section", sectionName, "channels", len(chans))
	return nil
}

// startChannelSideThreads starts ch's optional SAP and RTCP sender
// threads per its template's sap=/rtcp= keys, steps 6 and 7 of the
// Channel Factory. Both share the process-wide wire (TTL>0) socket.
func (sys *System) startChannelSideThreads(ch *channel.Channel, sectionName string) {
	if sys.Sockets == nil || sys.Sockets.Wire == nil || ch.DataDst == nil {
		return
	}

	if ch.Tmpl.SAP {
		ann, err := multicast.NewSAPAnnouncer(sys.Sockets.Wire, sectionName, ch.DataDst.IP.String(), ch.DataDst.Port)
		if err != nil {
			sys.Logger.Warn("starting SAP announcer", "section", sectionName, "ssrc", ch.SSRC, "err", err)
		} else {
			ch.SetSAPStopper(ann)
			go ann.Run(multicast.DefaultSAPInterval)
		}
	}

	if ch.Tmpl.RTCP {
		rtcpDest := &net.UDPAddr{IP: ch.DataDst.IP, Port: channel.DefaultRTCPPort}
		sender := rtcpsender.New(sys.Sockets.Wire, rtcpDest, ch)
		ch.SetRTCPStopper(sender)
		go sender.Run()
	}
}

// reapIdleChannels is the Channel Lifetime sweep: once per block interval
// it removes every non-static channel that has gone unused for its
// template's lifetime (Channel.Expired), stopping any SAP/RTCP threads it
// owns and freeing its SSRC for reuse.
func (sys *System) reapIdleChannels(ctx context.Context, blocktimeMs float64) {
	interval := time.Duration(blocktimeMs * float64(time.Millisecond))
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, ch := range sys.Channels.Snapshot() {
				if !ch.Expired(now, blocktimeMs) {
					continue
				}
				ch.Stop()
				sys.Channels.Remove(ch.SSRC)
				sys.Logger.Info("dynamic channel expired", "ssrc", ch.SSRC)
			}
		}
	}
}
