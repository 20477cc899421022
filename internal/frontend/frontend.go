// Package frontend binds the RF front-end driver named by the hardware
// section, dimensions the shared overlap-save input filter, and holds the
// single process-wide Frontend record. The driver capability set is
// modeled as a Go interface with optional methods rather than an
// inheritance hierarchy.
package frontend

import (
	"fmt"
	"plugin"
	"sync"

	"github.com/cwsl/radiod-go/internal/config"
	"github.com/cwsl/radiod-go/internal/timing"
)

// NSPURS bounds the number of spur-notch entries a front end may register.
const NSPURS = 64

// FilterKind distinguishes the two overlap-save input filter variants a
// front end dimensions.
type FilterKind int

const (
	FilterReal FilterKind = iota
	FilterComplex
)

// InputFilter is the shared forward-FFT overlap-save filter every channel
// slices bins out of. Its actual FFT/filter math is an out-of-scope DSP
// concern; this type only carries the dimensioning and kind the
// Front-End Binder computes, plus the handle a real DSP engine would
// attach to.
type InputFilter struct {
	Kind FilterKind
	Dims timing.Dims
}

// SpurNotch is one frequency-domain bin whose magnitude is adaptively
// suppressed to remove a known front-end spur (glossary: "Spur notch").
// The final entry in a Frontend's spur list is always a DC sentinel.
type SpurNotch struct {
	FreqHz float64
	Bin    int
	IsDC   bool
}

// ComputeTuning derives the spur-notch bin indices for the given spur
// frequencies. Bin index maps a frequency offset onto the N-point FFT's
// bin grid; out-of-range frequencies are dropped with no error since an
// operator-supplied spur list is best-effort.
func ComputeTuning(n, m int, sampleRate float64, spurHz []float64) []SpurNotch {
	var out []SpurNotch
	for _, f := range spurHz {
		if len(out) >= NSPURS-1 { // leave room for the DC sentinel
			break
		}
		bin := int(f / sampleRate * float64(n))
		if bin < 0 || bin >= n {
			continue
		}
		out = append(out, SpurNotch{FreqHz: f, Bin: bin})
	}
	out = append(out, SpurNotch{FreqHz: 0, Bin: 0, IsDC: true})
	return out
}

// Capabilities is the driver interface: setup, start, tune, gain, atten.
// Gain and Atten are optional; a driver that doesn't implement them
// silently has no-op knobs.
type Capabilities interface {
	// Setup populates samprate/isreal/description on fe and arranges the
	// sample source the driver will pump once Start is called.
	Setup(fe *Frontend, cfg *config.Tree, section string) error
	// Start spawns the capture/FFT thread. It must not block.
	Start(fe *Frontend) error
	// Tune retunes the front end to the given center frequency in Hz.
	Tune(fe *Frontend, hz float64) error
}

// OptionalGain and OptionalAtten are satisfied by drivers exposing
// software gain/attenuation controls; type-asserted from a bound
// Capabilities value, never required.
type OptionalGain interface {
	Gain(fe *Frontend, db float64) error
}
type OptionalAtten interface {
	Atten(fe *Frontend, db float64) error
}

// Frontend is the single per-process front-end record.
// Created once by Bind/Setup, immutable thereafter except the status
// fields guarded by StatusMu/StatusCond.
type Frontend struct {
	SampleRate  float64
	IsReal      bool
	Description string

	driver Capabilities

	Filter *InputFilter
	Spurs  []SpurNotch

	// MetadataDest is the status broadcast destination socket; owned by
	// the Status/Control Endpoint component, set once at bind time.
	MetadataDest string

	StatusMu   sync.Mutex
	StatusCond *sync.Cond

	// overrange counters referenced by the Telemetry Publisher.
	ADOverranges int64
}

func New() *Frontend {
	fe := &Frontend{}
	fe.StatusCond = sync.NewCond(&fe.StatusMu)
	return fe
}

// Tune, Gain, and Atten forward to the bound driver; Gain/Atten are no-ops
// when the driver doesn't implement the optional interfaces.
func (fe *Frontend) Tune(hz float64) error { return fe.driver.Tune(fe, hz) }

func (fe *Frontend) Gain(db float64) error {
	if g, ok := fe.driver.(OptionalGain); ok {
		return g.Gain(fe, db)
	}
	return nil
}

func (fe *Frontend) Atten(db float64) error {
	if a, ok := fe.driver.(OptionalAtten); ok {
		return a.Atten(fe, db)
	}
	return nil
}

// builtins is the statically linked driver table. Real device drivers
// (rx888, airspy, sdrplay, ...) are out-of-scope external collaborators;
// radiod-go ships a "null" driver
// that produces silence at a configurable sample rate, useful for testing
// the core without hardware, and is the one entry a fresh checkout can
// actually exercise end to end.
var builtins = map[string]func() Capabilities{
	"null": newNullDriver,
}

// RegisterBuiltin lets an external package (e.g. a real device driver
// linked in by the integrator) add itself to the static table at init
// time, rather than radiod-go needing to import every driver directly.
func RegisterBuiltin(name string, ctor func() Capabilities) {
	builtins[name] = ctor
}

// Resolve implements two-step driver resolution: a built-in table
// lookup by device name, or a dynamically loaded shared
// library at <sodir>/<device>.so (overridable via library=) exposing
// <device>_setup, <device>_startup, <device>_tune and optionally
// <device>_gain/<device>_atten.
func Resolve(device, sodir string, hwSection *config.Section) (Capabilities, error) {
	if ctor, ok := builtins[device]; ok {
		return ctor(), nil
	}
	return loadPlugin(device, sodir, hwSection)
}

func loadPlugin(device, sodir string, hwSection *config.Section) (Capabilities, error) {
	path := fmt.Sprintf("%s/%s.so", sodir, device)
	if hwSection != nil {
		if lib, ok := hwSection.Get("library"); ok && lib != "" {
			path = lib
		}
	}

	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("frontend: opening driver plugin %s: %w", path, err)
	}

	setupSym, err := p.Lookup(device + "_setup")
	if err != nil {
		return nil, fmt.Errorf("frontend: driver %s missing %s_setup: %w", device, device, err)
	}
	startupSym, err := p.Lookup(device + "_startup")
	if err != nil {
		return nil, fmt.Errorf("frontend: driver %s missing %s_startup: %w", device, device, err)
	}

	pd := &pluginDriver{device: device}

	pd.setupFn, err = asSetupFn(setupSym)
	if err != nil {
		return nil, fmt.Errorf("frontend: driver %s has wrong %s_setup signature: %w", device, device, err)
	}
	pd.startFn, err = asStartFn(startupSym)
	if err != nil {
		return nil, fmt.Errorf("frontend: driver %s has wrong %s_startup signature: %w", device, device, err)
	}

	// A missing or mistyped tune symbol is not fatal and is not logged;
	// Tune is then a no-op.
	if tuneSym, terr := p.Lookup(device + "_tune"); terr == nil {
		if fn, cerr := asTuneFn(tuneSym); cerr == nil {
			pd.tuneFn = fn
		}
	}
	// gain/atten misses are silent.
	if gainSym, gerr := p.Lookup(device + "_gain"); gerr == nil {
		if fn, cerr := asGainFn(gainSym); cerr == nil {
			pd.gainFn = fn
		}
	}
	if attenSym, aerr := p.Lookup(device + "_atten"); aerr == nil {
		if fn, cerr := asGainFn(attenSym); cerr == nil {
			pd.attenFn = fn
		}
	}

	return pd, nil
}

type setupFn func(fe *Frontend, cfg *config.Tree, section string) error
type startFn func(fe *Frontend) error
type tuneFn func(fe *Frontend, hz float64) error
type gainFn func(fe *Frontend, db float64) error

func asSetupFn(sym plugin.Symbol) (setupFn, error) {
	fn, ok := sym.(func(*Frontend, *config.Tree, string) error)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T", sym)
	}
	return fn, nil
}
func asStartFn(sym plugin.Symbol) (startFn, error) {
	fn, ok := sym.(func(*Frontend) error)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T", sym)
	}
	return fn, nil
}
func asTuneFn(sym plugin.Symbol) (tuneFn, error) {
	fn, ok := sym.(func(*Frontend, float64) error)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T", sym)
	}
	return fn, nil
}
func asGainFn(sym plugin.Symbol) (gainFn, error) {
	fn, ok := sym.(func(*Frontend, float64) error)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T", sym)
	}
	return fn, nil
}

// pluginDriver adapts a dynamically loaded .so's two to five resolved
// symbols to the Capabilities/OptionalGain/OptionalAtten interfaces.
type pluginDriver struct {
	device  string
	setupFn setupFn
	startFn startFn
	tuneFn  tuneFn
	gainFn  gainFn
	attenFn gainFn
}

func (d *pluginDriver) Setup(fe *Frontend, cfg *config.Tree, section string) error {
	return d.setupFn(fe, cfg, section)
}
func (d *pluginDriver) Start(fe *Frontend) error { return d.startFn(fe) }
func (d *pluginDriver) Tune(fe *Frontend, hz float64) error {
	if d.tuneFn == nil {
		return nil
	}
	return d.tuneFn(fe, hz)
}
func (d *pluginDriver) Gain(fe *Frontend, db float64) error {
	if d.gainFn == nil {
		return nil
	}
	return d.gainFn(fe, db)
}
func (d *pluginDriver) Atten(fe *Frontend, db float64) error {
	if d.attenFn == nil {
		return nil
	}
	return d.attenFn(fe, db)
}

// BindStage names the phase of Bind that failed, letting a caller tell a
// driver resolution failure apart from a setup/dimensioning/start failure
// without string-matching the error text.
type BindStage int

const (
	StageResolve BindStage = iota
	StageSetup
	StageDimension
	StageStart
)

func (s BindStage) String() string {
	switch s {
	case StageResolve:
		return "resolve"
	case StageSetup:
		return "setup"
	case StageDimension:
		return "dimension"
	case StageStart:
		return "start"
	default:
		return "unknown"
	}
}

// BindError wraps a Bind failure with the stage it occurred in.
type BindError struct {
	Stage BindStage
	Err   error
}

func (e *BindError) Error() string { return e.Err.Error() }
func (e *BindError) Unwrap() error { return e.Err }

// Bind resolves the driver named by the hardware section's device= key
// (default: the section name itself), invokes its Setup and Start
// callbacks, and dimensions the shared input filter. Every error it
// returns is a *BindError identifying which of those four phases failed.
func Bind(cfg *config.Tree, sodir, hwSectionName string, spurHz []float64) (*Frontend, error) {
	hwSection := cfg.Section(hwSectionName)

	device := hwSectionName
	if hwSection != nil {
		if d, ok := hwSection.Get("device"); ok && d != "" {
			device = d
		}
	}

	driver, err := Resolve(device, sodir, hwSection)
	if err != nil {
		return nil, &BindError{StageResolve, fmt.Errorf("frontend: resolving driver %q: %w", device, err)}
	}

	fe := New()
	fe.driver = driver

	if err := driver.Setup(fe, cfg, hwSectionName); err != nil {
		return nil, &BindError{StageSetup, fmt.Errorf("frontend: %s_setup failed: %w", device, err)}
	}
	if fe.SampleRate <= 0 {
		return nil, &BindError{StageSetup, fmt.Errorf("frontend: %s_setup did not set a positive sample rate", device)}
	}

	blocktime := timing.DefaultBlocktimeMs
	if v, ok := cfg.Global().Get("blocktime"); ok {
		if bt, perr := parsePositiveFloat(v); perr == nil {
			blocktime = bt
		}
	}
	overlap := timing.DefaultOverlap
	if v, ok := cfg.Global().Get("overlap"); ok {
		if ov, perr := parsePositiveInt(v); perr == nil {
			overlap = ov
		}
	}

	dims, err := timing.Compute(timing.Params{SampleRate: fe.SampleRate, BlocktimeMs: blocktime, Overlap: overlap})
	if err != nil {
		return nil, &BindError{StageDimension, fmt.Errorf("frontend: dimensioning input filter: %w", err)}
	}

	kind := FilterComplex
	if fe.IsReal {
		kind = FilterReal
	}
	fe.Filter = &InputFilter{Kind: kind, Dims: dims}
	fe.Spurs = ComputeTuning(dims.N, dims.M, fe.SampleRate, spurHz)

	if err := driver.Start(fe); err != nil {
		return nil, &BindError{StageStart, fmt.Errorf("frontend: %s_startup failed: %w", device, err)}
	}

	return fe, nil
}

func parsePositiveFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%f", &f)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid positive float %q", s)
	}
	return f, nil
}

func parsePositiveInt(s string) (int, error) {
	var i int
	_, err := fmt.Sscanf(s, "%d", &i)
	if err != nil || i <= 0 {
		return 0, fmt.Errorf("invalid positive int %q", s)
	}
	return i, nil
}
