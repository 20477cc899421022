// Package preset loads the named demodulation recipe library: a second
// INI tree, shaped like the config tree, whose sections are named presets
//.
package preset

import (
	"fmt"
	"path/filepath"

	"github.com/cwsl/radiod-go/internal/config"
)

// DefaultFile is the distribution-data-relative filename used when neither
// global.presets-file nor the legacy global.mode-file is set.
const DefaultFile = "presets.conf"

// Tree is the loaded preset library, kept for the process lifetime once
// loaded.
type Tree struct {
	*config.Tree
}

// Resolve determines the preset file path from the config tree:
// global.presets-file, falling back to the legacy alias global.mode-file,
// falling back to DefaultFile resolved against dataDir.
func Resolve(cfg *config.Tree, dataDir string) string {
	if v, ok := cfg.Global().Get("presets-file"); ok && v != "" {
		return v
	}
	if v, ok := cfg.Global().Get("mode-file"); ok && v != "" {
		return v
	}
	return filepath.Join(dataDir, DefaultFile)
}

// Load parses the preset file at path into a Tree. A missing presets file
// is a PresetMissing-class condition at the call site;
// Load itself just reports the stat/parse failure.
func Load(path string) (*Tree, error) {
	t, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("preset: loading %s: %w", path, err)
	}
	return &Tree{Tree: t}, nil
}

// Recipe returns the named preset section, or nil if the preset tree has
// no such name. Channel Template Builder callers treat a nil Recipe as
// "unknown preset": warn and skip that layer.
func (t *Tree) Recipe(name string) *config.Section {
	if t == nil {
		return nil
	}
	return t.Section(name)
}
