// Package policy defines the contract a write policy implements. The
// evaluator does not know a policy's internals: it only ever calls
// Select and applies the actions it returns.
package policy

import (
	"github.com/rcliao/writepolicybench/internal/episode"
	"github.com/rcliao/writepolicybench/internal/memstore"
)

// Track controls which metadata keys a step's view exposes to a policy.
// Under Unprivileged, everything outside an allow-list is stripped;
// Privileged additionally exposes the scalar priority hint (spec.md §4.4).
type Track int

const (
	Unprivileged Track = iota
	Privileged
)

func (t Track) String() string {
	if t == Privileged {
		return "privileged"
	}
	return "unprivileged"
}

// VisibleKeys lists the metadata keys a policy may see under each track.
// "mode" is always visible (it identifies the synthetic regime, not a
// supervision signal); "priority" is the bounded utility surrogate and is
// gated to the Privileged track only.
var VisibleKeys = map[Track][]string{
	Unprivileged: {"mode"},
	Privileged:   {"mode", "priority"},
}

// ViewStep returns the step as the given track would see it: the
// observation is untouched, but metadata is filtered to the track's
// allow-list.
func ViewStep(s episode.Step, track Track) episode.Step {
	allowed := VisibleKeys[track]
	md := make(map[string]any, len(allowed))
	for _, k := range allowed {
		if v, ok := s.Metadata[k]; ok {
			md[k] = v
		}
	}
	return episode.Step{T: s.T, Observation: s.Observation, Metadata: md}
}

// WritePolicy selects zero, one, or multiple memory actions for a single
// incoming step. The driver applies the returned actions, in order,
// immediately. A policy must tolerate any of them being rejected: its
// continued behavior must not depend on a particular action being
// accepted, and the driver never retries a rejected action on the
// policy's behalf.
type WritePolicy interface {
	// ID names the policy for results rows and logs.
	ID() string
	// Select returns the actions to apply for step, given a read-only
	// view of the current store contents.
	Select(step episode.Step, store memstore.View) []memstore.Action
}

// Seeded is implemented by policies whose behavior depends on randomness.
// The evaluator derives a seed deterministically from the condition
// identity (episode id, budget, policy id) so repeated runs are
// byte-identical (spec.md §5, §9).
type Seeded interface {
	WritePolicy
	Seed(seed int64)
}
