// Package timing derives the overlap-save FFT dimensions shared by every
// channel from the front end's reported sample rate and the configured
// block timing, ahead of the Front-End Binder constructing the shared
// input filter.
package timing

import (
	"fmt"
	"math"
)

const (
	DefaultBlocktimeMs = 20.0
	DefaultOverlap     = 5
)

// Params are the three timing inputs a front end setup callback and
// [global] supply: sample rate (Hz), block duration (ms), and overlap
// factor (>= 2).
type Params struct {
	SampleRate float64
	BlocktimeMs float64
	Overlap     int
}

// Dims are the derived, always-positive FFT dimensions: L is the input
// block length, M the impulse-response length, N the FFT length.
type Dims struct {
	L int
	M int
	N int
}

// Compute derives L, M, N from Params exactly:
//
//	L = round(samplerate * blocktime_ms / 1000)
//	M = L/(overlap-1) + 1
//	N = L + M - 1
//
// All three must come out positive; Compute returns an error otherwise
// rather than silently producing a zero-length filter.
func Compute(p Params) (Dims, error) {
	if p.SampleRate <= 0 {
		return Dims{}, fmt.Errorf("timing: sample rate must be positive, got %v", p.SampleRate)
	}
	if p.BlocktimeMs <= 0 {
		return Dims{}, fmt.Errorf("timing: blocktime must be positive, got %v", p.BlocktimeMs)
	}
	if p.Overlap < 2 {
		return Dims{}, fmt.Errorf("timing: overlap must be >= 2, got %d", p.Overlap)
	}

	l := int(math.Round(p.SampleRate * p.BlocktimeMs / 1000.0))
	if l <= 0 {
		return Dims{}, fmt.Errorf("timing: derived L=%d is not positive", l)
	}

	m := l/(p.Overlap-1) + 1
	if m <= 0 {
		return Dims{}, fmt.Errorf("timing: derived M=%d is not positive", m)
	}

	n := l + m - 1
	if n <= 0 {
		return Dims{}, fmt.Errorf("timing: derived N=%d is not positive", n)
	}

	return Dims{L: l, M: m, N: n}, nil
}

// IdleBlocks returns the number of blocks a zero-frequency channel may go
// without a command before it is reclaimed: lifetime = 20000 / blocktime_ms,
// and section 4.7's Channel_idle_timeout.
func IdleBlocks(blocktimeMs float64) int {
	if blocktimeMs <= 0 {
		blocktimeMs = DefaultBlocktimeMs
	}
	return int(20000.0 / blocktimeMs)
}
