// Package memstore implements the byte-budgeted memory store: the
// collection of retained items, the SKIP/WRITE/MERGE/EXPIRE action
// protocol, and the invariants (I1-I5) that couple merge deltas to
// surviving parents. This is the core of WritePolicyBench — correctness
// here is what makes the rest of the evaluator reproducible.
package memstore

import (
	"github.com/rcliao/writepolicybench/internal/byteacct"
	"github.com/rcliao/writepolicybench/internal/episode"
)

// Store is the budget-tracked collection of retained items. The natural
// shape is an insertion-ordered mapping t -> Item plus a secondary index
// from parent timestep to the set of child DELTA timesteps, so "no expire
// with a surviving delta child" is a constant-time check (spec.md §9).
// The BASE item owns nothing; a DELTA holds its parent key by value, never
// a reference, so there is no possibility of a cycle.
type Store struct {
	budget Budget

	items   map[int64]*Item
	order   []int64            // insertion order, oldest first
	removed map[int64]struct{} // tombstones in order, lazily compacted

	children map[int64]map[int64]struct{} // base t -> set of delta t referencing it
}

// New constructs an empty store with the given byte cap.
func New(maxBytes int) *Store {
	return &Store{
		budget:   NewBudget(maxBytes),
		items:    make(map[int64]*Item),
		children: make(map[int64]map[int64]struct{}),
	}
}

// Remaining returns the unused byte budget.
func (s *Store) Remaining() int { return s.budget.Remaining() }

// BytesUsed returns the bytes currently charged against the budget.
func (s *Store) BytesUsed() int { return s.budget.Used() }

// MaxBytes returns the store's byte cap.
func (s *Store) MaxBytes() int { return s.budget.Max }

// Len returns the number of resident items.
func (s *Store) Len() int { return len(s.items) }

// Contains reports whether an item is resident at t.
func (s *Store) Contains(t int64) bool {
	_, ok := s.items[t]
	return ok
}

// Get returns the resident item at t, if any.
func (s *Store) Get(t int64) (Item, bool) {
	it, ok := s.items[t]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// Items returns resident items in insertion order. The returned slice is a
// defensive copy; mutating it does not affect the store.
func (s *Store) Items() []Item {
	out := make([]Item, 0, len(s.items))
	for _, t := range s.order {
		it, ok := s.items[t]
		if ok {
			out = append(out, *it)
		}
	}
	return out
}

// OldestItem returns the item with the smallest insertion order still
// resident, or false if the store is empty.
func (s *Store) OldestItem() (Item, bool) {
	s.compactOrder()
	if len(s.order) == 0 {
		return Item{}, false
	}
	return *s.items[s.order[0]], true
}

// compactOrder drops tombstoned entries from the front of order so
// OldestItem stays O(1) amortized instead of re-scanning on every call.
func (s *Store) compactOrder() {
	i := 0
	for i < len(s.order) {
		if _, dead := s.removed[s.order[i]]; !dead {
			break
		}
		i++
	}
	if i > 0 {
		s.order = s.order[i:]
	}
}

// Apply validates and, on success, executes action against the current
// step's timestep currentT (used only to enforce EXPIRE's age
// constraint). It returns true on success, false on rejection, and never
// partially mutates state on rejection — every field is checked before
// any mutation (spec.md §4.3).
func (s *Store) Apply(action Action, currentT int64) bool {
	switch action.Kind() {
	case Skip:
		return true
	case Write:
		return s.applyWrite(action.Step)
	case Merge:
		return s.applyMerge(action.Step, action.TargetT, action.Delta, action.HasDelta)
	case Expire:
		return s.applyExpire(action.TargetT, currentT)
	default:
		return false
	}
}

func (s *Store) applyWrite(step episode.Step) bool {
	if _, exists := s.items[step.T]; exists {
		return false
	}
	cost := byteacct.EstimateBytes(step)
	if cost > s.budget.Remaining() {
		return false
	}
	// Validation is complete; mutate.
	if !s.budget.consume(cost) {
		return false
	}
	s.insert(&Item{Step: step, WrittenAt: step.T, ByteCost: cost, Kind: Base})
	return true
}

func (s *Store) applyMerge(step episode.Step, targetT int64, delta map[string]any, hasDelta bool) bool {
	base, ok := s.items[targetT]
	if !ok {
		return false
	}
	if base.Kind != Base {
		return false // I3: a DELTA never chains to another DELTA
	}
	baseObs, baseIsMap := base.Step.Observation.(map[string]any)
	newObs, newIsMap := step.Observation.(map[string]any)
	if !baseIsMap || !newIsMap {
		return false
	}
	baseAPI, baseHasAPI := baseObs["api"]
	newAPI, newHasAPI := newObs["api"]
	if !baseHasAPI || !newHasAPI {
		return false
	}
	if !deepEqual(baseAPI, newAPI) { // I4: endpoint identity
		return false
	}

	canonical := CanonicalDelta(baseObs, newObs)
	if hasDelta {
		if !deltaEquals(delta, canonical) {
			return false
		}
	} else {
		delta = canonical
	}
	if len(delta) == 0 {
		return false // prevents no-op accumulation of near-free items
	}
	if _, exists := s.items[step.T]; exists {
		return false
	}

	cost := byteacct.DeltaBytes(delta)
	if cost > s.budget.Remaining() {
		return false
	}
	if !s.budget.consume(cost) {
		return false
	}
	s.insert(&Item{
		Step:         step,
		WrittenAt:    step.T,
		ByteCost:     cost,
		Kind:         Delta,
		MergeParentT: targetT,
		Delta:        delta,
	})
	if s.children[targetT] == nil {
		s.children[targetT] = make(map[int64]struct{})
	}
	s.children[targetT][step.T] = struct{}{}
	return true
}

func (s *Store) applyExpire(targetT int64, currentT int64) bool {
	item, ok := s.items[targetT]
	if !ok {
		return false
	}
	if targetT >= currentT { // only strictly older items may expire
		return false
	}
	if item.Kind == Base {
		if kids := s.children[targetT]; len(kids) > 0 {
			return false // strict refusal: BASE with a surviving DELTA child
		}
	}

	delete(s.items, targetT)
	if item.Kind == Delta {
		if kids := s.children[item.MergeParentT]; kids != nil {
			delete(kids, targetT)
			if len(kids) == 0 {
				delete(s.children, item.MergeParentT)
			}
		}
	}
	if s.removed == nil {
		s.removed = make(map[int64]struct{})
	}
	s.removed[targetT] = struct{}{}
	s.budget.credit(item.ByteCost)
	return true
}

func (s *Store) insert(item *Item) {
	s.items[item.Step.T] = item
	s.order = append(s.order, item.Step.T)
}

// CanonicalDelta computes canonical_delta[k] = newObs[k] for every key k
// such that k != "api" and (k is absent from baseObs or baseObs[k] !=
// newObs[k]). Exported so callers outside this package (e.g. policies
// that want to preview the cost of a MERGE before emitting it) compute
// the same delta the store will validate against.
func CanonicalDelta(baseObs, newObs map[string]any) map[string]any {
	delta := make(map[string]any)
	for k, v := range newObs {
		if k == "api" {
			continue
		}
		if bv, ok := baseObs[k]; !ok || !deepEqual(bv, v) {
			delta[k] = v
		}
	}
	return delta
}

func deltaEquals(supplied, canonical map[string]any) bool {
	if len(supplied) != len(canonical) {
		return false
	}
	for k, v := range canonical {
		sv, ok := supplied[k]
		if !ok || !deepEqual(sv, v) {
			return false
		}
	}
	return true
}
