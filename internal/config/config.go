// Package config loads and validates the radiod-go configuration tree:
// a single file, or a directory (or "<path>.d" directory) of *.conf
// fragments concatenated in byte-lexicographic filename order into one
// logical INI source, via a single Load(path) entry point plus lookups
// that fall back to [global], parsed with gopkg.in/ini.v1.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/ini.v1"
)

// GlobalSection is the distinguished section name carrying process-wide
// defaults.
const GlobalSection = "global"

// Section holds one config section's keys, case-insensitively, while
// preserving the original section name and per-key insertion order for
// anything that wants to enumerate deterministically.
type Section struct {
	Name     string
	keys     map[string]string
	keyOrder []string
}

func newSection(name string) *Section {
	return &Section{Name: name, keys: make(map[string]string)}
}

func (s *Section) set(key, val string) {
	lk := strings.ToLower(key)
	if _, exists := s.keys[lk]; !exists {
		s.keyOrder = append(s.keyOrder, lk)
	}
	s.keys[lk] = val
}

// Get returns a key's raw value and whether it was present in this section.
func (s *Section) Get(key string) (string, bool) {
	v, ok := s.keys[strings.ToLower(key)]
	return v, ok
}

// Keys returns the keys defined directly in this section, in the order
// they were first set.
func (s *Section) Keys() []string {
	out := make([]string, len(s.keyOrder))
	copy(out, s.keyOrder)
	return out
}

// Tree is the merged config: section name (case-insensitive) -> key/value
// map. It is read-only once returned from Load; the tree is only needed
// through the channel-factory phase, which in Go just means letting the
// *Tree go out of scope.
type Tree struct {
	sections map[string]*Section // lowercased name -> section
	order    []string            // lowercased names, enumeration order
}

// Section returns the named section (case-insensitive), or nil if absent.
func (t *Tree) Section(name string) *Section {
	return t.sections[strings.ToLower(name)]
}

// Global returns the [global] section, creating an empty one if the
// config never declared it (so lookups never need a nil check).
func (t *Tree) Global() *Section {
	if g := t.Section(GlobalSection); g != nil {
		return g
	}
	return newSection(GlobalSection)
}

// SectionNames returns all section names in enumeration order, i.e. the
// order in which the Channel Factory must process
// them.
func (t *Tree) SectionNames() []string {
	out := make([]string, 0, len(t.order))
	for _, lk := range t.order {
		out = append(out, t.sections[lk].Name)
	}
	return out
}

// Get looks up key in section, falling back to the same key in [global]
// when absent from section.
func (t *Tree) Get(section, key string) (string, bool) {
	if s := t.Section(section); s != nil {
		if v, ok := s.Get(key); ok {
			return v, true
		}
	}
	return t.Global().Get(key)
}

// Load resolves path:
//  1. a regular file is parsed directly as INI.
//  2. a directory, or "<path>.d" if it exists, has its *.conf entries
//     sorted byte-lexicographically by filename and concatenated into one
//     logical source.
//  3. anything else is a load failure.
func Load(path string) (*Tree, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil && info.Mode().IsRegular():
		return loadFiles([]string{path})
	case err == nil && info.IsDir():
		return loadDir(path)
	default:
		dotD := path + ".d"
		if dInfo, dErr := os.Stat(dotD); dErr == nil && dInfo.IsDir() {
			return loadDir(dotD)
		}
		if err != nil {
			return nil, fmt.Errorf("config: cannot stat %s: %w", path, err)
		}
		return nil, fmt.Errorf("config: %s is neither a file nor a directory", path)
	}
}

func loadDir(dir string) (*Tree, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("config: reading directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".conf") {
			names = append(names, e.Name())
		}
	}
	// Byte-lexicographic sort, stable across runs regardless of the
	// filesystem's own directory-entry order.
	sort.Strings(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("config: no *.conf fragments found in %s", dir)
	}

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return loadFiles(paths)
}

func loadFiles(paths []string) (*Tree, error) {
	sources := make([]interface{}, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", p, err)
		}
		sources = append(sources, data)
	}

	opts := ini.LoadOptions{
		AllowBooleanKeys:       true,
		IgnoreInlineComment:    true,
		SkipUnrecognizableLines: true,
	}
	f, err := ini.LoadSources(opts, sources[0], sources[1:]...)
	if err != nil {
		return nil, fmt.Errorf("config: parsing INI: %w", err)
	}

	t := &Tree{sections: make(map[string]*Section)}
	for _, isec := range f.Sections() {
		name := isec.Name()
		if name == ini.DefaultSection {
			// Unsectioned keys at the top of a fragment are folded into
			// [global], matching how a concatenated single INI source
			// would behave if the first fragment opens with bare keys.
			name = GlobalSection
		}
		lk := strings.ToLower(name)
		sec, exists := t.sections[lk]
		if !exists {
			sec = newSection(name)
			t.sections[lk] = sec
			t.order = append(t.order, lk)
		}
		for _, k := range isec.Keys() {
			sec.set(k.Name(), k.Value())
		}
	}

	return t, nil
}

// IsFrontend reports whether section is the front-end section: either its
// name equals [global] hardware=, or it carries its own device= key.
// Sections other than the designated hardware section that nonetheless
// declare device= are front ends too and are skipped by the channel pass.
func (t *Tree) IsFrontend(name string) bool {
	hw, _ := t.Global().Get("hardware")
	if strings.EqualFold(hw, name) {
		return true
	}
	if s := t.Section(name); s != nil {
		if _, ok := s.Get("device"); ok {
			return true
		}
	}
	return false
}

// ChannelSections returns every section that is neither [global] nor a
// front end, in enumeration order — the sections the Channel Factory
// fans out over.
func (t *Tree) ChannelSections() []string {
	var out []string
	for _, name := range t.SectionNames() {
		if strings.EqualFold(name, GlobalSection) {
			continue
		}
		if t.IsFrontend(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// HardwareSection returns the name of the designated front-end section,
// i.e. the value of global.hardware, and whether it was set at all
// (hardware= is mandatory; its absence is a usage
// error, exit code 64).
func (t *Tree) HardwareSection() (string, bool) {
	return t.Global().Get("hardware")
}

// GlobalAllowedKeys is the recognized [global] key allow-list.
var GlobalAllowedKeys = map[string]bool{
	"affinity": true, "blocktime": true, "data": true, "description": true,
	"dns": true, "fft-plan-level": true, "fft-threads": true,
	"fft-time-limit": true, "hardware": true, "iface": true,
	"mode-file": true, "mode": true, "overlap": true, "preset": true,
	"presets-file": true, "prio": true, "rtcp": true, "sap": true,
	"static": true, "status": true, "tos": true, "ttl": true, "update": true,
	"verbose": true, "wisdom-file": true,
	// Supplemented telemetry keys.
	"mqtt-broker": true, "mqtt-topic": true, "metrics-listen": true,
}

// ChannelAllowedKeys is the recognized channel-section key allow-list,
// plus hardware-section-only keys that must still pass validation when a
// channel section doubles as a front end.
var ChannelAllowedKeys = map[string]bool{
	"device": true, "disable": true, "data": true, "iface": true,
	"encoding": true, "ttl": true, "ssrc": true, "dns": true,
	"freq": true, "mode": true, "preset": true, "library": true,
	"rtcp": true, "sap": true, "lifetime": true,
}

func init() {
	for i := 0; i <= 9; i++ {
		ChannelAllowedKeys[fmt.Sprintf("freq%d", i)] = true
	}
}

// Validate emits one warning string per key that is not in the relevant
// allow-list. Unknown keys never fail the load —
// the caller is expected to log these at Warn level and continue.
func (t *Tree) Validate() []string {
	var warnings []string
	for _, name := range t.SectionNames() {
		sec := t.Section(name)
		allow := ChannelAllowedKeys
		if strings.EqualFold(name, GlobalSection) {
			allow = GlobalAllowedKeys
		}
		for _, k := range sec.Keys() {
			if !allow[k] && !GlobalAllowedKeys[k] {
				warnings = append(warnings, fmt.Sprintf("section [%s]: unrecognized key %q", name, k))
			}
		}
	}
	return warnings
}
