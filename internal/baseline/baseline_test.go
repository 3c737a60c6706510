package baseline

import (
	"testing"

	"github.com/rcliao/writepolicybench/internal/episode"
	"github.com/rcliao/writepolicybench/internal/memstore"
)

func mkStep(t int64, api string, priority float64) episode.Step {
	return episode.Step{
		T:           t,
		Observation: map[string]any{"api": api, "v": int(t)},
		Metadata:    map[string]any{"mode": "default", "priority": priority},
	}
}

func TestNoMem_AlwaysSkips(t *testing.T) {
	s := memstore.New(10 * 1024)
	actions := NoMem{}.Select(mkStep(0, "x", 0), s.View())
	if len(actions) != 1 || actions[0].Kind() != memstore.Skip {
		t.Fatalf("expected a single SKIP, got %+v", actions)
	}
}

func TestFIFOStoreAll_SkipsAtZeroBudget(t *testing.T) {
	s := memstore.New(0)
	actions := FIFOStoreAll{}.Select(mkStep(0, "x", 0), s.View())
	if actions[0].Kind() != memstore.Skip {
		t.Fatalf("expected SKIP at zero budget, got %v", actions[0].Kind())
	}
}

func TestUniformSample_OnlySamplesOnTick(t *testing.T) {
	s := memstore.New(10 * 1024)
	p := UniformSample{EveryN: 4, Start: 0}
	if a := p.Select(mkStep(1, "x", 0), s.View()); a[0].Kind() != memstore.Skip {
		t.Fatalf("expected SKIP off-tick, got %v", a[0].Kind())
	}
	if a := p.Select(mkStep(4, "x", 0), s.View()); a[0].Kind() != memstore.Write {
		t.Fatalf("expected WRITE on-tick, got %v", a[0].Kind())
	}
}

func TestLastKB_EvictsOldestToFit(t *testing.T) {
	s := memstore.New(100) // room for one 80-byte step, not two
	s.Apply(memstore.WriteAction(mkStep(0, "x", 0)), 0)
	before := s.BytesUsed()
	if before == 0 {
		t.Fatal("expected nonzero usage after seed write")
	}
	actions := LastKB{}.Select(mkStep(1, "y", 0), s.View())
	hasExpire := false
	hasWrite := false
	for _, a := range actions {
		if a.Kind() == memstore.Expire {
			hasExpire = true
		}
		if a.Kind() == memstore.Write {
			hasWrite = true
		}
	}
	if !hasWrite {
		t.Fatalf("expected a WRITE in the eviction sequence, got %+v", actions)
	}
	if !hasExpire {
		t.Fatalf("expected an EXPIRE of the oldest item in the eviction sequence, got %+v", actions)
	}
}

func TestLastKB_OversizeStepOnEmptyStoreSkips(t *testing.T) {
	s := memstore.New(1) // too small for anything
	actions := LastKB{}.Select(mkStep(0, "x", 0), s.View())
	if actions[0].Kind() != memstore.Skip {
		t.Fatalf("expected SKIP for an oversize step on an empty store, got %v", actions[0].Kind())
	}
}

func TestPriorityThreshold_Gating(t *testing.T) {
	s := memstore.New(10 * 1024)
	p := PriorityThreshold{Threshold: 0.5}
	if a := p.Select(mkStep(0, "x", 0.1), s.View()); a[0].Kind() != memstore.Skip {
		t.Fatalf("expected SKIP below threshold, got %v", a[0].Kind())
	}
	if a := p.Select(mkStep(1, "x", 0.9), s.View()); a[0].Kind() != memstore.Write {
		t.Fatalf("expected WRITE above threshold, got %v", a[0].Kind())
	}
}

func TestPriorityGreedy_WritesWhenRoom(t *testing.T) {
	s := memstore.New(10 * 1024)
	actions := PriorityGreedy{}.Select(mkStep(0, "x", 0.5), s.View())
	if actions[0].Kind() != memstore.Write {
		t.Fatalf("expected WRITE when there's room, got %v", actions[0].Kind())
	}
}

func TestPriorityGreedy_SkipsLowerPriorityWhenFull(t *testing.T) {
	s := memstore.New(100) // room for one 82-byte step, not two
	if !s.Apply(memstore.WriteAction(mkStep(0, "x", 0.9)), 0) {
		t.Fatal("expected the seed WRITE to succeed")
	}
	actions := PriorityGreedy{}.Select(mkStep(1, "y", 0.1), s.View())
	if actions[0].Kind() != memstore.Skip {
		t.Fatalf("expected SKIP for a lower-priority incoming step, got %v", actions[0].Kind())
	}
}

func TestMergeAggressive_FallsBackWithoutMatchingEndpoint(t *testing.T) {
	s := memstore.New(10 * 1024)
	actions := MergeAggressive{}.Select(mkStep(0, "x", 0), s.View())
	if actions[len(actions)-1].Kind() != memstore.Write {
		t.Fatalf("expected a fallback WRITE with no endpoint match, got %+v", actions)
	}
}

func TestMergeAggressive_MergesIntoSameEndpoint(t *testing.T) {
	s := memstore.New(10 * 1024)
	s.Apply(memstore.WriteAction(mkStep(0, "x", 0)), 0)
	actions := MergeAggressive{}.Select(mkStep(1, "x", 0), s.View())
	if actions[len(actions)-1].Kind() != memstore.Merge {
		t.Fatalf("expected a MERGE against the same endpoint, got %+v", actions)
	}
}

func TestRegistry_IDsNonEmptyForBothTracks(t *testing.T) {
	if len(IDs(0)) == 0 {
		t.Fatal("expected unprivileged policy IDs")
	}
	if len(IDs(1)) == 0 {
		t.Fatal("expected privileged policy IDs")
	}
}

func TestRegistry_NewUnknownIDFails(t *testing.T) {
	if _, ok := New(0, "does_not_exist"); ok {
		t.Fatal("expected unknown policy ID to fail")
	}
}
