package byteacct

import (
	"testing"

	"github.com/rcliao/writepolicybench/internal/episode"
)

func TestEstimateBytes_Stable(t *testing.T) {
	step := episode.Step{
		T:           0,
		Observation: map[string]any{"api": "a", "v": 1},
		Metadata:    map[string]any{"mode": "default"},
	}
	a := EstimateBytes(step)
	b := EstimateBytes(step)
	if a != b {
		t.Fatalf("expected stable cost, got %d then %d", a, b)
	}
	if a <= HeaderOverhead {
		t.Fatalf("expected cost to exceed header overhead, got %d", a)
	}
}

func TestEstimateBytes_KeyOrderIndependent(t *testing.T) {
	obs1 := map[string]any{"b": 2, "a": 1}
	obs2 := map[string]any{"a": 1, "b": 2}
	s1 := episode.Step{T: 0, Observation: obs1, Metadata: map[string]any{}}
	s2 := episode.Step{T: 0, Observation: obs2, Metadata: map[string]any{}}
	if EstimateBytes(s1) != EstimateBytes(s2) {
		t.Fatalf("expected key order to not affect byte cost")
	}
}

func TestCanonicalEncode_EscapesNonASCII(t *testing.T) {
	raw := CanonicalEncode("héllo")
	for _, b := range raw {
		if b >= 0x80 {
			t.Fatalf("expected ASCII-only encoding, found byte 0x%x in %q", b, raw)
		}
	}
}

func TestCanonicalEncode_NoInsignificantWhitespace(t *testing.T) {
	raw := CanonicalEncode(map[string]any{"a": 1, "b": 2})
	for _, b := range raw {
		if b == ' ' || b == '\n' || b == '\t' {
			t.Fatalf("expected no insignificant whitespace, got %q", raw)
		}
	}
}

func TestDeltaBytes_AddsMergeOverhead(t *testing.T) {
	delta := map[string]any{"v": 2}
	got := DeltaBytes(delta)
	want := len(CanonicalEncode(delta)) + MergeOverhead
	if got != want {
		t.Fatalf("DeltaBytes() = %d, want %d", got, want)
	}
}
