package baseline

import (
	"sort"

	"github.com/rcliao/writepolicybench/internal/policy"
)

// Registry lists the baseline policies available per track, mirroring
// evaluator.py's policies_by_track table.
var Registry = map[policy.Track]map[string]func() policy.WritePolicy{
	policy.Unprivileged: {
		"no_mem":           func() policy.WritePolicy { return NoMem{} },
		"fifo_store_all":   func() policy.WritePolicy { return FIFOStoreAll{} },
		"uniform_sample":   func() policy.WritePolicy { return UniformSample{EveryN: 10} },
		"last_kb":          func() policy.WritePolicy { return LastKB{} },
		"merge_aggressive": func() policy.WritePolicy { return MergeAggressive{} },
	},
	policy.Privileged: {
		"no_mem":                      func() policy.WritePolicy { return NoMem{} },
		"fifo_store_all":              func() policy.WritePolicy { return FIFOStoreAll{} },
		"uniform_sample":              func() policy.WritePolicy { return UniformSample{EveryN: 10} },
		"priority_threshold":          func() policy.WritePolicy { return PriorityThreshold{Threshold: 0.5} },
		"utility_threshold_surrogate": func() policy.WritePolicy { return UtilityThresholdSurrogate{Threshold: 0.5} },
		"priority_greedy":             func() policy.WritePolicy { return PriorityGreedy{} },
		"last_kb":                     func() policy.WritePolicy { return LastKB{} },
		"merge_aggressive":            func() policy.WritePolicy { return MergeAggressive{} },
	},
}

// IDs returns the sorted policy IDs registered for a track.
func IDs(track policy.Track) []string {
	names := make([]string, 0, len(Registry[track]))
	for name := range Registry[track] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs a fresh instance of the named policy for track, or
// (nil, false) if unregistered.
func New(track policy.Track, id string) (policy.WritePolicy, bool) {
	factory, ok := Registry[track][id]
	if !ok {
		return nil, false
	}
	return factory(), true
}
