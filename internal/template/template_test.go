package template

import (
	"fmt"
	"os"
	"strconv"
	"testing"

	"pgregory.net/rapid"

	"github.com/cwsl/radiod-go/internal/config"
	"github.com/cwsl/radiod-go/internal/preset"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// TestTTLCoercionForcesSectionToGlobal covers [global] ttl=2, [hf]
// ttl=4 -> section effective TTL is 2.
func TestTTLCoercionForcesSectionToGlobal(t *testing.T) {
	dir := t.TempDir()
	confPath := dir + "/radiod.conf"
	writeFile(t, confPath, "[global]\nhardware=rx888\nttl=2\n[hf]\ndevice=rx888\nfreq=14074000\nttl=4\n")

	cfg, err := config.Load(confPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	tmpl, warnings := Build(cfg, nil, "hf")
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if tmpl.Output.TTL != 2 {
		t.Fatalf("got TTL %d, want 2 (global wins when both non-zero)", tmpl.Output.TTL)
	}
}

func TestSectionTTLKeptWhenGlobalUnset(t *testing.T) {
	dir := t.TempDir()
	confPath := dir + "/radiod.conf"
	writeFile(t, confPath, "[global]\nhardware=rx888\n[hf]\ndevice=rx888\nfreq=14074000\nttl=4\n")

	cfg, err := config.Load(confPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	tmpl, _ := Build(cfg, nil, "hf")
	if tmpl.Output.TTL != 4 {
		t.Fatalf("got TTL %d, want 4 (no coercion when global TTL is zero)", tmpl.Output.TTL)
	}
}

func TestPresetLayerAppliesBetweenGlobalAndSection(t *testing.T) {
	dir := t.TempDir()
	confPath := dir + "/radiod.conf"
	writeFile(t, confPath, "[global]\nhardware=rx888\npreset=am\n[hf]\ndevice=rx888\nfreq=14074000\nbandwidth=2800\n")

	presetsPath := dir + "/presets.conf"
	writeFile(t, presetsPath, "[am]\nbandwidth=6000\nsquelch=-20\n")

	cfg, err := config.Load(confPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	presets, err := preset.Load(presetsPath)
	if err != nil {
		t.Fatalf("preset.Load: %v", err)
	}

	tmpl, warnings := Build(cfg, presets, "hf")
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if tmpl.Preset != "am" {
		t.Fatalf("got preset %q, want am", tmpl.Preset)
	}
	// section's own bandwidth= overrides the preset's.
	if tmpl.Demod["bandwidth"] != "2800" {
		t.Fatalf("got bandwidth %q, want section override 2800", tmpl.Demod["bandwidth"])
	}
	// squelch only came from the preset layer.
	if tmpl.Demod["squelch"] != "-20" {
		t.Fatalf("got squelch %q, want -20 from preset layer", tmpl.Demod["squelch"])
	}
}

func TestUnknownPresetWarnsAndSkipsLayer(t *testing.T) {
	dir := t.TempDir()
	confPath := dir + "/radiod.conf"
	writeFile(t, confPath, "[global]\nhardware=rx888\n[hf]\ndevice=rx888\nfreq=14074000\npreset=nonexistent\n")

	cfg, err := config.Load(confPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	presets, err := preset.Load(confPath) // reuse radiod.conf as an (empty-of-nonexistent) preset tree
	if err != nil {
		t.Fatalf("preset.Load: %v", err)
	}

	tmpl, warnings := Build(cfg, presets, "hf")
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want exactly 1: %v", len(warnings), warnings)
	}
	if tmpl.Preset != "nonexistent" {
		t.Fatalf("preset name should still be recorded even when its layer is skipped, got %q", tmpl.Preset)
	}
}

// TestBuildLayerPriorityProperty covers the layered-overrides invariant:
// whichever of global/preset/section independently sets a demod key,
// the highest-priority layer that set it (section beats preset beats
// global) determines the final value.
func TestBuildLayerPriorityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		hasGlobal := rapid.Bool().Draw(t, "has_global")
		hasPreset := rapid.Bool().Draw(t, "has_preset")
		hasSection := rapid.Bool().Draw(t, "has_section")
		globalVal := rapid.IntRange(1, 1000).Draw(t, "global_val")
		presetVal := rapid.IntRange(1, 1000).Draw(t, "preset_val")
		sectionVal := rapid.IntRange(1, 1000).Draw(t, "section_val")

		dir := t.TempDir()
		confPath := dir + "/radiod.conf"

		globalBody := "hardware=rx888\n"
		if hasGlobal {
			globalBody += fmt.Sprintf("squelch=%d\n", globalVal)
		}
		if hasPreset {
			globalBody += "preset=p\n"
		}

		sectionBody := "device=rx888\nfreq=14074000\n"
		if hasSection {
			sectionBody += fmt.Sprintf("squelch=%d\n", sectionVal)
		}

		writeFile(t, confPath, "[global]\n"+globalBody+"[hf]\n"+sectionBody)

		var presets *preset.Tree
		if hasPreset {
			presetsPath := dir + "/presets.conf"
			writeFile(t, presetsPath, fmt.Sprintf("[p]\nsquelch=%d\n", presetVal))
			p, err := preset.Load(presetsPath)
			if err != nil {
				t.Fatalf("preset.Load: %v", err)
			}
			presets = p
		} else {
			// An empty-of-"p" tree: no preset= key is ever set in this
			// branch, so Build never looks the name up; a nil *preset.Tree
			// would do as well, since Recipe is nil-safe.
			p, err := preset.Load(confPath)
			if err != nil {
				t.Fatalf("preset.Load: %v", err)
			}
			presets = p
		}

		cfg, err := config.Load(confPath)
		if err != nil {
			t.Fatalf("config.Load: %v", err)
		}

		tmpl, _ := Build(cfg, presets, "hf")

		want := ""
		switch {
		case hasSection:
			want = strconv.Itoa(sectionVal)
		case hasPreset:
			want = strconv.Itoa(presetVal)
		case hasGlobal:
			want = strconv.Itoa(globalVal)
		}

		if got := tmpl.Demod["squelch"]; got != want {
			t.Fatalf("squelch = %q, want %q (hasGlobal=%v hasPreset=%v hasSection=%v)",
				got, want, hasGlobal, hasPreset, hasSection)
		}
	})
}

func TestCloneIsIndependentOfSource(t *testing.T) {
	t1 := Defaults()
	t1.Demod["mode"] = "usb"

	t2 := t1.Clone()
	t2.Demod["mode"] = "lsb"

	if t1.Demod["mode"] != "usb" {
		t.Fatalf("Clone mutated the source template's Demod map")
	}
}
