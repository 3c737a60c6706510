// Package episode defines the immutable data model for a streaming
// evaluation episode: an ordered sequence of steps plus ground-truth
// labels used only by the metric engine, never by a policy.
package episode

import "fmt"

// Step is a single timestep in a streaming episode. Equality is
// structural: two steps with the same t, observation and metadata are
// interchangeable.
type Step struct {
	T           int64          `json:"t"`
	Observation any            `json:"observation"`
	Metadata    map[string]any `json:"metadata"`
}

// Labels carries ground-truth supervision for an episode. None of it is
// policy-visible; only the metric engine reads it.
type Labels struct {
	CriticalSteps    []int64           `json:"critical_steps"`
	TotalDriftEvents int               `json:"total_drift_events"`
	PerStepUtility   map[int64]float64 `json:"per_step_utility,omitempty"`
	EpisodeID        string            `json:"episode_id,omitempty"`
	Mode             string            `json:"mode,omitempty"`
	Extra            map[string]any    `json:"-"`
}

// Episode is an ordered, strictly-increasing-by-t sequence of steps plus
// labels.
type Episode struct {
	Steps  []Step `json:"steps"`
	Labels Labels `json:"labels"`
}

// Validate checks the structural invariants of an episode: steps must be
// strictly increasing in t (not necessarily contiguous), and
// total_drift_events must be at least the number of critical steps.
func (e Episode) Validate() error {
	var prev int64
	for i, s := range e.Steps {
		if i > 0 && s.T <= prev {
			return fmt.Errorf("episode: step %d has t=%d, not strictly greater than previous t=%d", i, s.T, prev)
		}
		prev = s.T
	}
	if e.Labels.TotalDriftEvents < len(e.Labels.CriticalSteps) {
		return fmt.Errorf("episode: total_drift_events (%d) less than len(critical_steps) (%d)", e.Labels.TotalDriftEvents, len(e.Labels.CriticalSteps))
	}
	return nil
}

// CriticalSet returns the critical steps as a set for membership tests.
func (l Labels) CriticalSet() map[int64]struct{} {
	set := make(map[int64]struct{}, len(l.CriticalSteps))
	for _, t := range l.CriticalSteps {
		set[t] = struct{}{}
	}
	return set
}

// Utility returns the labeled per-step utility for t, defaulting to 0 when
// absent (per spec: per_step_utility is optional).
func (l Labels) Utility(t int64) float64 {
	if l.PerStepUtility == nil {
		return 0
	}
	return l.PerStepUtility[t]
}
