package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"
)

func writeFragments(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("writing fragment %s: %v", name, err)
		}
	}
}

func TestLoadDirectoryMatchesConcatenation(t *testing.T) {
	dir := t.TempDir()
	writeFragments(t, dir, map[string]string{
		"00-global.conf": "[global]\nhardware=rx888\nblocktime=20\n",
		"10-section.conf": "[hf]\nfreq=7200000\n",
	})

	tree, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir): %v", err)
	}

	concatDir := t.TempDir()
	concatenated := "[global]\nhardware=rx888\nblocktime=20\n[hf]\nfreq=7200000\n"
	if err := os.WriteFile(filepath.Join(concatDir, "all.conf"), []byte(concatenated), 0o644); err != nil {
		t.Fatalf("writing concatenated file: %v", err)
	}
	single, err := Load(filepath.Join(concatDir, "all.conf"))
	if err != nil {
		t.Fatalf("Load(file): %v", err)
	}

	if len(tree.ChannelSections()) != len(single.ChannelSections()) {
		t.Fatalf("channel section count differs: dir=%d file=%d",
			len(tree.ChannelSections()), len(single.ChannelSections()))
	}
	got, _ := tree.Get("hf", "freq")
	want, _ := single.Get("hf", "freq")
	if got != want {
		t.Fatalf("freq mismatch: dir=%q file=%q", got, want)
	}
}

func TestDotDDirectoryIsUsedWhenPathItselfIsMissing(t *testing.T) {
	base := t.TempDir()
	confPath := filepath.Join(base, "radiod.conf")
	dotD := confPath + ".d"
	if err := os.Mkdir(dotD, 0o755); err != nil {
		t.Fatalf("mkdir .d: %v", err)
	}
	writeFragments(t, dotD, map[string]string{
		"00-global.conf": "[global]\nhardware=rx888\n",
	})

	tree, err := Load(confPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	hw, ok := tree.HardwareSection()
	if !ok || hw != "rx888" {
		t.Fatalf("hardware section = %q, ok=%v", hw, ok)
	}
}

func TestCaseInsensitiveSectionsAndFallback(t *testing.T) {
	dir := t.TempDir()
	writeFragments(t, dir, map[string]string{
		"a.conf": "[GLOBAL]\nttl=2\n[HF]\nfreq=7200000\n",
	})
	tree, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v, ok := tree.Get("hf", "ttl"); !ok || v != "2" {
		t.Fatalf("expected ttl fallback to global, got %q ok=%v", v, ok)
	}
}

func TestValidateWarnsOnUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	writeFragments(t, dir, map[string]string{
		"a.conf": "[global]\nhardware=rx888\nbogus-key=1\n",
	})
	tree, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	warnings := tree.Validate()
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", warnings)
	}
}

// TestLoadDirectoryOrderIndependence covers fragment ordering
// determinism: the same set of fragments, written to disk in forward or
// reverse order, must merge to an identical Tree — filename
// byte-lexicographic sort, not filesystem write or directory-entry
// order, decides precedence.
func TestLoadDirectoryOrderIndependence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 6).Draw(t, "n")

		type fragment struct {
			name string
			key  string
			val  string
		}
		used := make(map[string]bool)
		frags := make([]fragment, n)
		for i := 0; i < n; i++ {
			var name string
			for {
				name = fmt.Sprintf("%02d-f.conf", rapid.IntRange(0, 99).Draw(t, "prefix"))
				if !used[name] {
					used[name] = true
					break
				}
			}
			frags[i] = fragment{
				name: name,
				key:  fmt.Sprintf("k%d", i),
				val:  fmt.Sprintf("v%d", rapid.IntRange(0, 1000).Draw(t, "val")),
			}
		}

		load := func(order []int) *Tree {
			dir := t.TempDir()
			for _, idx := range order {
				f := frags[idx]
				writeFragments(t, dir, map[string]string{
					f.name: fmt.Sprintf("[hf]\n%s=%s\n", f.key, f.val),
				})
			}
			tree, err := Load(dir)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			return tree
		}

		forward := make([]int, n)
		reverse := make([]int, n)
		for i := 0; i < n; i++ {
			forward[i] = i
			reverse[i] = n - 1 - i
		}

		t1 := load(forward)
		t2 := load(reverse)

		for _, f := range frags {
			v1, ok1 := t1.Get("hf", f.key)
			v2, ok2 := t2.Get("hf", f.key)
			if ok1 != ok2 || v1 != v2 {
				t.Fatalf("key %q differs by fragment write order: (%q,%v) vs (%q,%v)",
					f.key, v1, ok1, v2, ok2)
			}
		}
	})
}

func TestMissingHardwareKeyIsDetectable(t *testing.T) {
	dir := t.TempDir()
	writeFragments(t, dir, map[string]string{
		"a.conf": "[global]\nblocktime=20\n",
	})
	tree, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := tree.HardwareSection(); ok {
		t.Fatalf("expected no hardware section to be set")
	}
}
