package memstore

import (
	"strconv"
	"testing"
	"testing/quick"

	"github.com/rcliao/writepolicybench/internal/byteacct"
	"github.com/rcliao/writepolicybench/internal/episode"
)

func obsStep(t int64, api string, fields map[string]any) episode.Step {
	obs := map[string]any{"api": api}
	for k, v := range fields {
		obs[k] = v
	}
	return episode.Step{T: t, Observation: obs, Metadata: map[string]any{}}
}

// S1: Budget=0 rejects all writes.
func TestS1_BudgetZeroRejectsWrite(t *testing.T) {
	s := New(0)
	step := obsStep(0, "x", map[string]any{"v": 1})
	if s.Apply(WriteAction(step), 0) {
		t.Fatal("expected WRITE to be rejected at budget=0")
	}
	if s.BytesUsed() != 0 {
		t.Fatalf("expected bytes_used=0, got %d", s.BytesUsed())
	}
	if len(RetainedSetOf(s)) != 0 {
		t.Fatalf("expected empty retained set")
	}
	if !s.Apply(SkipAction(""), 0) {
		t.Fatal("SKIP must always succeed")
	}
}

// S2: WRITE then EXPIRE round-trip.
func TestS2_WriteThenExpireRoundTrip(t *testing.T) {
	s := New(10 * 1024)
	step0 := obsStep(0, "x", map[string]any{"v": 1})
	step1 := obsStep(1, "x", map[string]any{"v": 2})

	if !s.Apply(WriteAction(step0), 0) {
		t.Fatal("expected WRITE t=0 to succeed")
	}
	if !s.Apply(ExpireAction(0), 1) {
		t.Fatal("expected EXPIRE target_t=0 to succeed at t=1")
	}
	if !s.Apply(WriteAction(step1), 1) {
		t.Fatal("expected WRITE t=1 to succeed")
	}

	w := RetainedSetOf(s)
	if _, ok := w[1]; !ok || len(w) != 1 {
		t.Fatalf("expected W={1}, got %v", w)
	}
	if s.BytesUsed() != byteacct.EstimateBytes(step1) {
		t.Fatalf("bytes_used = %d, want %d", s.BytesUsed(), byteacct.EstimateBytes(step1))
	}
}

// S3: Canonical MERGE accepted.
func TestS3_CanonicalMergeAccepted(t *testing.T) {
	s := New(10 * 1024)
	step0 := obsStep(0, "x", map[string]any{"v": 1, "p": []any{"a"}})
	step1 := obsStep(1, "x", map[string]any{"v": 2, "p": []any{"a"}})

	if !s.Apply(WriteAction(step0), 0) {
		t.Fatal("expected WRITE t=0 to succeed")
	}
	if !s.Apply(MergeAction(step1, 0, map[string]any{"v": 2}), 1) {
		t.Fatal("expected canonical MERGE to succeed")
	}

	w := RetainedSetOf(s)
	if _, ok := w[0]; !ok {
		t.Error("expected 0 in W")
	}
	if _, ok := w[1]; !ok {
		t.Error("expected 1 in W")
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 resident items, got %d", s.Len())
	}
	want := byteacct.EstimateBytes(step0) + byteacct.DeltaBytes(map[string]any{"v": 2})
	if s.BytesUsed() != want {
		t.Fatalf("bytes_used = %d, want %d", s.BytesUsed(), want)
	}
}

// S4: Endpoint-mismatch MERGE rejected.
func TestS4_EndpointMismatchMergeRejected(t *testing.T) {
	s := New(10 * 1024)
	step0 := obsStep(0, "x", map[string]any{"v": 1})
	step1 := obsStep(1, "y", map[string]any{"v": 2})

	s.Apply(WriteAction(step0), 0)
	if s.Apply(MergeAction(step1, 0, nil), 1) {
		t.Fatal("expected MERGE with mismatched api to be rejected")
	}
	w := RetainedSetOf(s)
	if _, ok := w[0]; !ok || len(w) != 1 {
		t.Fatalf("expected W={0}, got %v", w)
	}
}

// S5: MERGE-to-MERGE rejected (I3).
func TestS5_MergeToMergeRejected(t *testing.T) {
	s := New(10 * 1024)
	step0 := obsStep(0, "x", map[string]any{"v": 1})
	step1 := obsStep(1, "x", map[string]any{"v": 2})
	step2 := obsStep(2, "x", map[string]any{"v": 3})

	s.Apply(WriteAction(step0), 0)
	s.Apply(MergeAction(step1, 0, nil), 1)
	if s.Apply(MergeAction(step2, 1, nil), 2) {
		t.Fatal("expected MERGE targeting a DELTA item to be rejected")
	}
}

// S7: MERGE with a non-canonical delta is rejected.
func TestS7_NonCanonicalDeltaRejected(t *testing.T) {
	s := New(10 * 1024)
	step0 := obsStep(0, "x", map[string]any{"v": 1})
	step1 := obsStep(1, "x", map[string]any{"v": 2})

	s.Apply(WriteAction(step0), 0)
	if s.Apply(MergeAction(step1, 0, map[string]any{"v": 999}), 1) {
		t.Fatal("expected MERGE with wrong delta to be rejected")
	}
	if s.Apply(MergeAction(step1, 0, map[string]any{}), 1) {
		t.Fatal("expected MERGE with empty delta to be rejected")
	}
}

// S8: EXPIRE of a BASE with a surviving DELTA child is rejected (the
// spec's explicit strict-refusal choice for the orphan-DELTA open
// question).
func TestS8_ExpireBaseWithSurvivingDeltaRejected(t *testing.T) {
	s := New(10 * 1024)
	step0 := obsStep(0, "x", map[string]any{"v": 1})
	step1 := obsStep(1, "x", map[string]any{"v": 2})

	s.Apply(WriteAction(step0), 0)
	s.Apply(MergeAction(step1, 0, nil), 1)

	if s.Apply(ExpireAction(0), 2) {
		t.Fatal("expected EXPIRE of a BASE with a surviving DELTA child to be rejected")
	}
	w := RetainedSetOf(s)
	if _, ok := w[0]; !ok {
		t.Error("expected base to remain in W")
	}
	if _, ok := w[1]; !ok {
		t.Error("expected delta to remain in W")
	}
}

func TestExpire_RequiresStrictlyOlderTarget(t *testing.T) {
	s := New(10 * 1024)
	step0 := obsStep(0, "x", map[string]any{"v": 1})
	s.Apply(WriteAction(step0), 0)
	if s.Apply(ExpireAction(0), 0) {
		t.Fatal("expected EXPIRE to reject target_t >= current_t")
	}
}

func TestWrite_DuplicateTimestepRejected(t *testing.T) {
	s := New(10 * 1024)
	step0 := obsStep(0, "x", map[string]any{"v": 1})
	s.Apply(WriteAction(step0), 0)
	if s.Apply(WriteAction(step0), 0) {
		t.Fatal("expected WRITE to the same timestep twice to be rejected")
	}
}

func TestExpire_CreditsBudget(t *testing.T) {
	s := New(10 * 1024)
	step0 := obsStep(0, "x", map[string]any{"v": 1})
	s.Apply(WriteAction(step0), 0)
	used := s.BytesUsed()
	if used == 0 {
		t.Fatal("expected nonzero usage after WRITE")
	}
	if !s.Apply(ExpireAction(0), 1) {
		t.Fatal("expected EXPIRE to succeed")
	}
	if s.BytesUsed() != 0 {
		t.Fatalf("expected bytes_used back to 0, got %d", s.BytesUsed())
	}
}

// P1 (partial): sum(byte_cost) == bytes_used <= max_bytes after any
// sequence of applied actions.
func TestP1_ByteAccountingInvariant(t *testing.T) {
	f := func(seed uint16) bool {
		s := New(4096)
		var currentT int64
		for i := 0; i < 40; i++ {
			currentT = int64(i)
			step := obsStep(currentT, "x", map[string]any{"v": int(seed) + i})
			switch i % 3 {
			case 0:
				s.Apply(WriteAction(step), currentT)
			case 1:
				s.Apply(MergeAction(step, currentT-1, nil), currentT)
			case 2:
				s.Apply(ExpireAction(currentT-1), currentT)
			}
			sum := 0
			for _, it := range s.Items() {
				sum += it.ByteCost
			}
			if sum != s.BytesUsed() {
				return false
			}
			if s.BytesUsed() < 0 || s.BytesUsed() > s.MaxBytes() {
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 200}); err != nil {
		t.Error(err)
	}
}

// P2: no DELTA exists whose parent is absent or whose parent is itself a
// DELTA.
func TestP2_NoOrphanOrChainedDelta(t *testing.T) {
	f := func(seed uint16) bool {
		s := New(4096)
		for i := 0; i < 40; i++ {
			t64 := int64(i)
			step := obsStep(t64, "x", map[string]any{"v": int(seed) + i})
			switch i % 4 {
			case 0:
				s.Apply(WriteAction(step), t64)
			case 1:
				s.Apply(MergeAction(step, t64-1, nil), t64)
			case 2:
				s.Apply(ExpireAction(t64-2), t64)
			case 3:
				s.Apply(MergeAction(step, t64-2, nil), t64)
			}
		}
		for _, it := range s.Items() {
			if it.Kind != Delta {
				continue
			}
			parent, ok := s.Get(it.MergeParentT)
			if !ok || parent.Kind != Base {
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 200}); err != nil {
		t.Error(err)
	}
}

// P3: a rejected action leaves bytes_used and the item set unchanged.
func TestP3_RejectionLeavesStateUnchanged(t *testing.T) {
	s := New(64) // tiny budget: most writes will be rejected
	step0 := obsStep(0, "x", map[string]any{"v": 1, "p": []any{"a", "b", "c", "d", "e"}})

	before := snapshot(s)
	ok := s.Apply(WriteAction(step0), 0)
	after := snapshot(s)
	if !ok && before != after {
		t.Fatalf("rejection mutated state: before=%q after=%q", before, after)
	}

	// Force a guaranteed rejection: duplicate timestep.
	s2 := New(4096)
	s2.Apply(WriteAction(step0), 0)
	before2 := snapshot(s2)
	if s2.Apply(WriteAction(step0), 1) {
		t.Fatal("expected duplicate WRITE to be rejected")
	}
	after2 := snapshot(s2)
	if before2 != after2 {
		t.Fatalf("rejection mutated state: before=%q after=%q", before2, after2)
	}
}

func snapshot(s *Store) string {
	out := strconv.Itoa(s.BytesUsed()) + ":"
	for _, it := range s.Items() {
		out += it.Step.Observation.(map[string]any)["api"].(string)
	}
	return out
}

// RetainedSetOf is a small test helper that mirrors metric.RetainedSet
// without importing the metric package (avoiding an import cycle), since
// these tests only need W's membership, not the full scoring pipeline.
func RetainedSetOf(s *Store) map[int64]struct{} {
	items := s.Items()
	byT := make(map[int64]Item, len(items))
	for _, it := range items {
		byT[it.Step.T] = it
	}
	w := make(map[int64]struct{}, len(items))
	for _, it := range items {
		if it.Kind == Base {
			w[it.Step.T] = struct{}{}
			continue
		}
		parent, ok := byT[it.MergeParentT]
		if !ok || parent.Kind != Base {
			continue
		}
		w[it.Step.T] = struct{}{}
	}
	return w
}
