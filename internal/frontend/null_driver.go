package frontend

import (
	"fmt"
	"strconv"

	"github.com/cwsl/radiod-go/internal/config"
)

// nullDriver is the only front-end driver radiod-go ships statically: it
// reports a configurable sample rate and real/complex flag and produces no
// samples. It exists so the core can be bound and exercised end to end
// without real RF hardware attached.
type nullDriver struct {
	tuned float64
}

func newNullDriver() Capabilities { return &nullDriver{} }

func (d *nullDriver) Setup(fe *Frontend, cfg *config.Tree, section string) error {
	sec := cfg.Section(section)

	sampleRate := 16000.0
	if sec != nil {
		if v, ok := sec.Get("samprate"); ok {
			if r, err := strconv.ParseFloat(v, 64); err == nil && r > 0 {
				sampleRate = r
			}
		}
	}

	isReal := false
	if sec != nil {
		if v, ok := sec.Get("real"); ok {
			b, err := strconv.ParseBool(v)
			if err == nil {
				isReal = b
			}
		}
	}

	fe.SampleRate = sampleRate
	fe.IsReal = isReal
	fe.Description = fmt.Sprintf("null test source @ %.0f Hz", sampleRate)
	return nil
}

func (d *nullDriver) Start(fe *Frontend) error {
	// A real driver spawns the capture/forward-FFT thread here. The null
	// driver has no samples to capture, so there is nothing to spawn.
	return nil
}

func (d *nullDriver) Tune(fe *Frontend, hz float64) error {
	d.tuned = hz
	return nil
}
