package channel

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/cwsl/radiod-go/internal/template"
)

func newTestChannel(static bool, lifetimeBlocks int) *Channel {
	tmpl := template.Defaults()
	tmpl.LifetimeBlocks = lifetimeBlocks
	return New(1, 0, static, tmpl, nil, nil)
}

func TestExpiredStaticChannelNeverExpires(t *testing.T) {
	ch := newTestChannel(true, 1)
	future := time.Now().Add(24 * time.Hour)
	if ch.Expired(future, 20) {
		t.Fatalf("a static channel must never expire")
	}
}

func TestExpiredDynamicChannelBeforeLifetime(t *testing.T) {
	ch := newTestChannel(false, 10)
	now := time.Now()
	if ch.Expired(now, 20) {
		t.Fatalf("a freshly touched channel must not be expired")
	}
}

func TestExpiredDynamicChannelAfterLifetime(t *testing.T) {
	ch := newTestChannel(false, 10)
	// lifetime = 10 blocks * 20ms = 200ms
	future := time.Now().Add(300 * time.Millisecond)
	if !ch.Expired(future, 20) {
		t.Fatalf("expected channel idle past its lifetime to be expired")
	}
}

// TestExpiredProperty covers the Channel Lifetime invariant: a static
// channel never expires; a non-static channel expires if and only if it
// has been idle at least LifetimeBlocks*blocktimeMs.
func TestExpiredProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		static := rapid.Bool().Draw(t, "static")
		lifetimeBlocks := rapid.IntRange(1, 10_000).Draw(t, "lifetime_blocks")
		blocktimeMs := rapid.Float64Range(1, 1000).Draw(t, "blocktime_ms")
		idleMs := rapid.Float64Range(0, 2_000_000).Draw(t, "idle_ms")

		ch := newTestChannel(static, lifetimeBlocks)
		baseline := time.Unix(1_700_000_000, 0)
		ch.lastActivity.Store(baseline.UnixNano())
		now := baseline.Add(time.Duration(idleMs * float64(time.Millisecond)))

		got := ch.Expired(now, blocktimeMs)

		if static {
			if got {
				t.Fatalf("a static channel must never expire")
			}
			return
		}

		lifetime := float64(lifetimeBlocks) * blocktimeMs
		want := idleMs >= lifetime
		if got != want {
			t.Fatalf("Expired = %v, want %v (idle=%.2fms lifetime=%.2fms)", got, want, idleMs, lifetime)
		}
	})
}
