// Package telemetry publishes process-level stats: a periodic MQTT
// publish plus a Prometheus /metrics endpoint, both disabled unless
// configured.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwsl/radiod-go/internal/channel"
)

// DefaultInterval is how often telemetry is sampled and published when
// global.mqtt-broker or global.metrics-listen is set.
const DefaultInterval = 60 * time.Second

// Snapshot is one sample of process-level stats.
type Snapshot struct {
	ChannelCount     int            `json:"channel_count"`
	SectionCounts    map[string]int `json:"section_counts"`
	CPUPercent       float64        `json:"cpu_percent"`
	ADOverranges     int64          `json:"ad_overranges"`
}

// Publisher samples the channel manager and frontend periodically and
// forwards the snapshot to whichever sinks are configured.
type Publisher struct {
	Manager  *channel.Manager
	Logger   *log.Logger
	Interval time.Duration

	mqttClient mqtt.Client
	mqttTopic  string

	metrics *prometheusSink

	cpuPercent   func() float64
	adOverranges func() int64
	sectionOf    func(ssrc uint32) string
}

// NewPublisher builds a Publisher. Either sink left unconfigured (empty
// broker URL or topic for MQTT, empty listen address for metrics) is
// simply not started.
func NewPublisher(manager *channel.Manager, logger *log.Logger, cpuPercent func() float64, adOverranges func() int64, sectionOf func(uint32) string) *Publisher {
	return &Publisher{
		Manager:      manager,
		Logger:       logger,
		Interval:     DefaultInterval,
		cpuPercent:   cpuPercent,
		adOverranges: adOverranges,
		sectionOf:    sectionOf,
	}
}

// ConfigureMQTT sets the broker and topic to publish each Snapshot to as
// JSON. Call before Run.
func (p *Publisher) ConfigureMQTT(broker, topic string) error {
	if broker == "" || topic == "" {
		return nil
	}
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID("radiod-go")
	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: connecting to mqtt broker %s: %w", broker, err)
	}
	p.mqttClient = client
	p.mqttTopic = topic
	return nil
}

// ConfigureMetrics starts a Prometheus /metrics HTTP server on listen.
// Call before Run.
func (p *Publisher) ConfigureMetrics(listen string) error {
	if listen == "" {
		return nil
	}
	sink := newPrometheusSink()
	p.metrics = sink

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(sink.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: listen, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			p.Logger.Error("metrics server stopped", "err", err)
		}
	}()
	return nil
}

// Run samples and publishes once per Interval until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishOnce()
		}
	}
}

func (p *Publisher) publishOnce() {
	snap := p.sample()

	if p.mqttClient != nil {
		body, err := json.Marshal(snap)
		if err == nil {
			token := p.mqttClient.Publish(p.mqttTopic, 0, false, body)
			token.Wait()
		}
	}

	if p.metrics != nil {
		p.metrics.update(snap)
	}
}

func (p *Publisher) sample() Snapshot {
	chans := p.Manager.Snapshot()
	sectionCounts := make(map[string]int)
	for _, ch := range chans {
		if p.sectionOf != nil {
			sectionCounts[p.sectionOf(ch.SSRC)]++
		}
	}

	snap := Snapshot{
		ChannelCount:  len(chans),
		SectionCounts: sectionCounts,
	}
	if p.cpuPercent != nil {
		snap.CPUPercent = p.cpuPercent()
	}
	if p.adOverranges != nil {
		snap.ADOverranges = p.adOverranges()
	}
	return snap
}

type prometheusSink struct {
	registry     *prometheus.Registry
	channelCount prometheus.Gauge
	cpuPercent   prometheus.Gauge
	adOverranges prometheus.Gauge
}

func newPrometheusSink() *prometheusSink {
	reg := prometheus.NewRegistry()
	s := &prometheusSink{
		registry: reg,
		channelCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radiod_channel_count", Help: "Number of live channels.",
		}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radiod_cpu_percent", Help: "Process CPU utilization percent.",
		}),
		adOverranges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radiod_ad_overruns_total", Help: "Cumulative A/D overrange count.",
		}),
	}
	reg.MustRegister(s.channelCount, s.cpuPercent, s.adOverranges)
	return s
}

func (s *prometheusSink) update(snap Snapshot) {
	s.channelCount.Set(float64(snap.ChannelCount))
	s.cpuPercent.Set(snap.CPUPercent)
	s.adOverranges.Set(float64(snap.ADOverranges))
}
