package memstore

import "github.com/rcliao/writepolicybench/internal/episode"

// Kind tags the action variant. Modeling the action as a tagged sum rather
// than a struct with nullable fields collapses half the validation surface
// (spec.md §9, "Tagged action variants").
type Kind int

const (
	Skip Kind = iota
	Write
	Merge
	Expire
)

func (k Kind) String() string {
	switch k {
	case Skip:
		return "SKIP"
	case Write:
		return "WRITE"
	case Merge:
		return "MERGE"
	case Expire:
		return "EXPIRE"
	default:
		return "UNKNOWN"
	}
}

// Action is one memory mutation a policy emits for the current step.
// Required fields vary by Kind; see spec.md §4.3's validation table.
// Construct via the SkipAction/WriteAction/MergeAction/ExpireAction
// helpers rather than a literal, so the kind tag always matches the
// populated fields.
type Action struct {
	kind Kind

	Step     episode.Step   // WRITE, MERGE
	TargetT  int64          // MERGE, EXPIRE
	Delta    map[string]any // MERGE, optional (nil => store computes canonical delta)
	HasDelta bool           // true iff the policy supplied Delta explicitly
	Reason   string         // optional, informational only
}

// Kind reports which variant this action is.
func (a Action) Kind() Kind { return a.kind }

func SkipAction(reason string) Action {
	return Action{kind: Skip, Reason: reason}
}

func WriteAction(step episode.Step) Action {
	return Action{kind: Write, Step: step}
}

// MergeAction builds a MERGE. Pass a nil delta to let the store compute
// the canonical delta; pass a non-nil delta to assert it explicitly (the
// store rejects the action if it does not equal the canonical delta).
func MergeAction(step episode.Step, targetT int64, delta map[string]any) Action {
	return Action{kind: Merge, Step: step, TargetT: targetT, Delta: delta, HasDelta: delta != nil}
}

func ExpireAction(targetT int64) Action {
	return Action{kind: Expire, TargetT: targetT}
}
