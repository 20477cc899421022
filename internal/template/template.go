// Package template composes the per-section channel template by layering
// hard-coded defaults, [global], the named preset recipe, and the channel
// section itself, strictly lowest to highest priority. It is also where
// the TTL-coercion product decision lives.
package template

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cwsl/radiod-go/internal/config"
	"github.com/cwsl/radiod-go/internal/preset"
	"github.com/cwsl/radiod-go/internal/timing"
)

// OutputDescriptor names a destination socket plus the wire parameters
// needed to advertise and encode a stream from it.
type OutputDescriptor struct {
	Dest        string
	TTL         int
	SampleRate  int
	Channels    int
	Encoding    string
	PayloadType int
}

// Template is the per-section (or global) value type. It is a plain
// value type: copying it must not transfer ownership of heap state,
// which is why Demod is cloned explicitly by Clone rather than relied
// upon to copy correctly via `tmpl2 := tmpl1`.
type Template struct {
	Output         OutputDescriptor
	Status         OutputDescriptor
	Preset         string
	LifetimeBlocks int
	SAP            bool // if set, the Channel Factory starts a SAP announcer thread for the channel
	RTCP           bool // if set, the Channel Factory starts an RTCP sender thread for the channel
	Demod          map[string]string
}

// Clone returns a value copy of t whose Demod map is independent
// storage; copying a template must not transfer ownership of any
// heap-allocated follow-on state. Dynamic buffers beyond this point
// (socket descriptors, demod thread state) are created by the channel's
// own start path, never by Clone.
func (t Template) Clone() Template {
	out := t
	out.Demod = make(map[string]string, len(t.Demod))
	for k, v := range t.Demod {
		out.Demod[k] = v
	}
	return out
}

// Defaults returns the hard-coded lowest-priority layer.
func Defaults() Template {
	return Template{
		Output: OutputDescriptor{
			TTL:        0,
			SampleRate: 8000,
			Channels:   1,
			Encoding:   "s16be",
		},
		Status:         OutputDescriptor{},
		LifetimeBlocks: timing.IdleBlocks(timing.DefaultBlocktimeMs),
		Demod:          map[string]string{},
	}
}

// applyLayer interprets a handful of keys directly onto Template fields;
// anything else in a section lands in Demod, letting arbitrary
// per-demodulator tuning keys pass through unmodified.
func applyLayer(t *Template, sec *config.Section) {
	if sec == nil {
		return
	}
	for _, k := range sec.Keys() {
		v, _ := sec.Get(k)
		switch k {
		case "data":
			t.Output.Dest = v
		case "ttl":
			if n, err := strconv.Atoi(v); err == nil {
				t.Output.TTL = n
			}
		case "encoding":
			t.Output.Encoding = v
			if strings.EqualFold(v, "opus") {
				t.Output.Channels = 2
			}
		case "lifetime":
			if n, err := strconv.Atoi(v); err == nil {
				t.LifetimeBlocks = n
			}
		case "preset", "mode":
			t.Preset = v
		case "sap":
			t.SAP, _ = strconv.ParseBool(v)
		case "rtcp":
			t.RTCP, _ = strconv.ParseBool(v)
		default:
			t.Demod[k] = v
		}
	}
}

// Build composes the template for sectionName following this priority
// order: defaults -> [global] -> preset recipe -> section.
// The preset *name* used is resolved from whichever of [global]/section
// sets preset=/mode= last (section out-ranks global for the choice, same
// as for every other key), but its *content* is layered in between global
// and section, never after section. An unknown preset name is a warning,
// not an abort; that layer is simply skipped.
func Build(cfg *config.Tree, presets *preset.Tree, sectionName string) (Template, []string) {
	var warnings []string

	t := Defaults()

	global := cfg.Global()
	applyLayer(&t, global)

	section := cfg.Section(sectionName)

	presetName := t.Preset
	if section != nil {
		if v, ok := section.Get("preset"); ok && v != "" {
			presetName = v
		} else if v, ok := section.Get("mode"); ok && v != "" {
			presetName = v
		}
	}

	if presetName != "" {
		recipe := presets.Recipe(presetName)
		if recipe == nil {
			warnings = append(warnings, fmt.Sprintf("section [%s]: unknown preset %q, skipping that layer", sectionName, presetName))
		} else {
			applyLayer(&t, recipe)
		}
	}

	preSectionTTL := t.Output.TTL
	applyLayer(&t, section)
	t.Preset = presetName

	// If both global and section specify a non-zero TTL, force the
	// section to the global value — the system maintains at most two
	// send sockets (TTL=0, TTL>0) and does not support arbitrary
	// per-channel TTLs. This is a product decision, not a bug.
	if sectionTTL := t.Output.TTL; preSectionTTL != 0 && sectionTTL != 0 && sectionTTL != preSectionTTL {
		t.Output.TTL = preSectionTTL
	}

	return t, warnings
}
