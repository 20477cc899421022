package frontend

import (
	"fmt"
	"os"
	"testing"

	"github.com/cwsl/radiod-go/internal/config"
)

func TestBindNullDriverScenarioOne(t *testing.T) {
	dir := t.TempDir()
	confPath := dir + "/radiod.conf"
	writeFile(t, confPath, "[global]\nhardware=rx888\nblocktime=20\noverlap=5\n[rx888]\ndevice=null\nsamprate=16000\n")

	tree, err := config.Load(confPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	hw, ok := tree.HardwareSection()
	if !ok {
		t.Fatalf("expected hardware section to be set")
	}

	fe, err := Bind(tree, dir, hw, nil)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if fe.Filter.Dims.L != 320 || fe.Filter.Dims.M != 81 || fe.Filter.Dims.N != 400 {
		t.Fatalf("got dims %+v, want L=320 M=81 N=400", fe.Filter.Dims)
	}
	// DC sentinel is always present, even with no spur list.
	if len(fe.Spurs) != 1 || !fe.Spurs[0].IsDC {
		t.Fatalf("expected only a DC sentinel spur, got %+v", fe.Spurs)
	}
}

func TestBindUnknownDriverFailsAtResolveStage(t *testing.T) {
	dir := t.TempDir()
	confPath := dir + "/radiod.conf"
	writeFile(t, confPath, "[global]\nhardware=nosuchdevice\n[nosuchdevice]\n")

	tree, err := config.Load(confPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	hw, _ := tree.HardwareSection()

	_, err = Bind(tree, dir, hw, nil)
	if err == nil {
		t.Fatalf("expected Bind to fail for an unresolvable driver")
	}
	be, ok := err.(*BindError)
	if !ok {
		t.Fatalf("expected *BindError, got %T", err)
	}
	if be.Stage != StageResolve {
		t.Fatalf("got stage %v, want %v", be.Stage, StageResolve)
	}
}

// failingSetupDriver is a test-only Capabilities that fails Setup, used to
// confirm Bind reports a StageSetup failure distinctly from StageResolve.
type failingSetupDriver struct{}

func (failingSetupDriver) Setup(fe *Frontend, cfg *config.Tree, section string) error {
	return fmt.Errorf("setup intentionally failed")
}
func (failingSetupDriver) Start(fe *Frontend) error        { return nil }
func (failingSetupDriver) Tune(fe *Frontend, hz float64) error { return nil }

func TestBindSetupFailureFailsAtSetupStage(t *testing.T) {
	RegisterBuiltin("failing-setup-test", func() Capabilities { return failingSetupDriver{} })

	dir := t.TempDir()
	confPath := dir + "/radiod.conf"
	writeFile(t, confPath, "[global]\nhardware=rx888\n[rx888]\ndevice=failing-setup-test\n")

	tree, err := config.Load(confPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	hw, _ := tree.HardwareSection()

	_, err = Bind(tree, dir, hw, nil)
	if err == nil {
		t.Fatalf("expected Bind to fail when the driver's Setup fails")
	}
	be, ok := err.(*BindError)
	if !ok {
		t.Fatalf("expected *BindError, got %T", err)
	}
	if be.Stage != StageSetup {
		t.Fatalf("got stage %v, want %v", be.Stage, StageSetup)
	}
}

func TestComputeTuningCapsAtNSPURS(t *testing.T) {
	spurs := make([]float64, NSPURS*2)
	for i := range spurs {
		spurs[i] = float64(i * 10)
	}
	out := ComputeTuning(400, 81, 16000, spurs)
	if len(out) > NSPURS {
		t.Fatalf("ComputeTuning returned %d entries, want <= %d", len(out), NSPURS)
	}
	if !out[len(out)-1].IsDC {
		t.Fatalf("expected last spur entry to be the DC sentinel")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}
