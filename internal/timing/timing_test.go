package timing

import (
	"testing"

	"pgregory.net/rapid"
)

func TestComputeScenarioOne(t *testing.T) {
	// blocktime=20, overlap=5, samplerate=16000
	d, err := Compute(Params{SampleRate: 16000, BlocktimeMs: 20, Overlap: 5})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if d.L != 320 || d.M != 81 || d.N != 400 {
		t.Fatalf("got L=%d M=%d N=%d, want L=320 M=81 N=400", d.L, d.M, d.N)
	}
}

func TestComputeAlwaysPositive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sr := rapid.Float64Range(1, 200_000_000).Draw(t, "samplerate")
		bt := rapid.Float64Range(0.1, 1000).Draw(t, "blocktime_ms")
		ov := rapid.IntRange(2, 64).Draw(t, "overlap")

		d, err := Compute(Params{SampleRate: sr, BlocktimeMs: bt, Overlap: ov})
		if err != nil {
			// Degenerate combinations (e.g. L rounding to 0) are rejected,
			// never silently producing non-positive dimensions.
			return
		}
		if d.L <= 0 || d.M <= 0 || d.N <= 0 {
			t.Fatalf("Compute returned non-positive dims without error: %+v", d)
		}
		if d.N != d.L+d.M-1 {
			t.Fatalf("N invariant broken: L=%d M=%d N=%d", d.L, d.M, d.N)
		}
	})
}

func TestIdleBlocks(t *testing.T) {
	if got := IdleBlocks(20); got != 1000 {
		t.Fatalf("IdleBlocks(20) = %d, want 1000", got)
	}
}
