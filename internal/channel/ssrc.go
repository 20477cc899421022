package channel

import (
	"strings"
)

// maxSSRCAttempts bounds the collision-retry loop: the requested SSRC
// and its +1 successors are tried this many times in total, after which
// a colliding SSRC is skipped and logged rather than retried forever.
const maxSSRCAttempts = 100

// DeriveSSRC extracts the decimal-digit subsequence of the raw frequency
// token, e.g. "14074k" yields digits "14074" (the engineering suffix and
// any decimal point are simply not digits), and parses it as a 32-bit
// wrapping integer. This is the way ka9q-radio derives an SSRC from a
// channel's frequency token when none is given explicitly.
func DeriveSSRC(token string) uint32 {
	var digits strings.Builder
	for _, r := range token {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	var v uint32
	for _, r := range digits.String() {
		v = v*10 + uint32(r-'0') // wraps on overflow, matching unsigned C arithmetic
	}
	return v
}

// Registry tracks SSRCs in use across the process so DeriveSSRC
// collisions can be detected and retried. The zero value is ready to use.
type Registry struct {
	inUse map[uint32]bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{inUse: make(map[uint32]bool)}
}

// Reserved reports whether want is the reserved SSRC (0). A channel whose
// derived or explicit SSRC is reserved is skipped entirely, not
// reassigned to a substitute value.
func Reserved(want uint32) bool {
	return want == 0
}

// Reserve claims the first of want, want+1, want+2, ... up to
// maxSSRCAttempts that is not already in use, skipping the reserved value
// 0 if the retry walk reaches it. Callers must check Reserved(want) before
// calling Reserve; Reserve itself only resolves collisions among non-zero
// candidates. It returns ok=false once the attempt budget is exhausted,
// in which case the caller must skip the channel and log it rather than
// retry indefinitely.
func (r *Registry) Reserve(want uint32) (ssrc uint32, ok bool) {
	if r.inUse == nil {
		r.inUse = make(map[uint32]bool)
	}
	candidate := want
	for attempt := 0; attempt < maxSSRCAttempts; attempt++ {
		if candidate != 0 && !r.inUse[candidate] {
			r.inUse[candidate] = true
			return candidate, true
		}
		candidate++
	}
	return 0, false
}

// Release frees ssrc for reuse, called when a dynamic channel is torn
// down.
func (r *Registry) Release(ssrc uint32) {
	delete(r.inUse, ssrc)
}
