package multicast

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestMakeMaddrStaysInAdministrativelyScopedRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		name := rapid.StringN(1, 64, -1).Draw(rt, "name")
		addr := MakeMaddr(name)
		if !strings.HasPrefix(addr, "239.") {
			rt.Fatalf("MakeMaddr(%q) = %q, want 239.0.0.0/8", name, addr)
		}
	})
}

func TestMakeMaddrIsDeterministic(t *testing.T) {
	a := MakeMaddr("hf-data")
	b := MakeMaddr("hf-data")
	if a != b {
		t.Fatalf("MakeMaddr not deterministic: %q vs %q", a, b)
	}
}

func TestResolveFallsBackToHashWhenDNSDisabled(t *testing.T) {
	addr, err := Resolve("no-such-host-radiod-go-test", 5004, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := MakeMaddr("no-such-host-radiod-go-test")
	if addr.IP.String() != want {
		t.Fatalf("got %s, want synthesized %s", addr.IP, want)
	}
	if addr.Port != 5004 {
		t.Fatalf("got port %d, want 5004", addr.Port)
	}
}

func TestWithLocalSuffix(t *testing.T) {
	if got := WithLocalSuffix("hf-data"); got != "hf-data.local" {
		t.Fatalf("got %q, want hf-data.local", got)
	}
	if got := WithLocalSuffix("hf-data.example.com"); got != "hf-data.example.com" {
		t.Fatalf("got %q, want unchanged", got)
	}
}
