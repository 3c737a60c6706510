// Package synth generates synthetic API-drift episodes, ported from the
// reference implementation's writepolicybench/synthetic.py. Episode
// generation is an external collaborator per spec.md's scope, but a
// runnable repository needs something to feed the evaluator, so this
// package supplies the reference generator's exact regime semantics.
package synth

import (
	"fmt"
	"math/rand"

	"github.com/rcliao/writepolicybench/internal/episode"
)

// Mode selects a drift regime.
type Mode string

const (
	ModeDefault         Mode = "default"
	ModeBurstDrift      Mode = "burst_drift"
	ModeRedundancy      Mode = "redundancy"
	ModeBurstRedundancy Mode = "burst_redundancy"
)

// Config mirrors synthetic.py's DriftConfig.
type Config struct {
	Steps      int
	APIPool    int
	DriftProb  float64
	MaxParams  int
	Seed       int64
	Mode       Mode

	BurstInterval  int
	BurstLen       int
	BurstDriftProb float64

	RedundancyProb float64
}

// DefaultConfig mirrors the Python dataclass defaults.
func DefaultConfig() Config {
	return Config{
		Steps:          200,
		APIPool:        8,
		DriftProb:      0.08,
		MaxParams:      6,
		Seed:           0,
		Mode:           ModeDefault,
		BurstInterval:  50,
		BurstLen:       8,
		BurstDriftProb: 0.6,
		RedundancyProb: 0.7,
	}
}

func buildObservation(apiID, version int, params []string, deprecated bool) map[string]any {
	cp := make([]string, len(params))
	copy(cp, params)
	paramsAny := make([]any, len(cp))
	for i, p := range cp {
		paramsAny[i] = p
	}
	return map[string]any{
		"api":        fmt.Sprintf("api.v%d.endpoint_%d", version, apiID),
		"params":     paramsAny,
		"deprecated": deprecated,
		"version":    version,
	}
}

func isBurstWindow(cfg Config, t int) bool {
	if cfg.BurstInterval <= 0 {
		return false
	}
	start := (t / cfg.BurstInterval) * cfg.BurstInterval
	return (t - start) < cfg.BurstLen
}

// GenerateEpisode produces one deterministic synthetic episode for the
// given episode id. Two calls with the same (episodeID, cfg) are
// byte-identical.
func GenerateEpisode(episodeID int, cfg Config) episode.Episode {
	rng := rand.New(rand.NewSource(cfg.Seed + int64(episodeID)))

	versions := make([]int, cfg.APIPool)
	params := make([][]string, cfg.APIPool)
	for i := range versions {
		versions[i] = 1
		n := 2 + rng.Intn(max(1, cfg.MaxParams-1))
		ps := make([]string, n)
		for j := range ps {
			ps[j] = fmt.Sprintf("p%d_%d", i, j)
		}
		params[i] = ps
	}

	steps := make([]episode.Step, 0, cfg.Steps)
	var criticalSteps []int64
	utilities := make(map[int64]float64, cfg.Steps)

	bursty := cfg.Mode == ModeBurstDrift || cfg.Mode == ModeBurstRedundancy
	redundant := cfg.Mode == ModeRedundancy || cfg.Mode == ModeBurstRedundancy

	var lastAPIID int
	haveLast := false

	for t := 0; t < cfg.Steps; t++ {
		var apiID int
		if redundant && haveLast && rng.Float64() < cfg.RedundancyProb {
			apiID = lastAPIID
		} else {
			apiID = rng.Intn(cfg.APIPool)
		}

		driftP := cfg.DriftProb
		if bursty && isBurstWindow(cfg, t) {
			driftP = cfg.BurstDriftProb
		}

		drift := rng.Float64() < driftP
		if drift {
			versions[apiID]++
			if rng.Float64() < 0.5 && len(params[apiID]) > 0 {
				params[apiID] = params[apiID][:len(params[apiID])-1]
			} else {
				params[apiID] = append(params[apiID], fmt.Sprintf("p%d_%d", apiID, versions[apiID]))
			}
		}

		deprecated := drift && rng.Float64() < 0.3
		observation := buildObservation(apiID, versions[apiID], params[apiID], deprecated)

		// synthetic.py computes this branch's condition as
		// `api_id == steps[-1].observation.get("api_id", api_id)`, but the
		// observation key is "api", never "api_id", so the .get() always
		// falls back to its own default and the comparison is always
		// true once redundant is set — this port keeps that behavior
		// rather than "fixing" it to an actual reuse check.
		var utility float64
		switch {
		case drift && bursty && isBurstWindow(cfg, t):
			utility = 6.0
		case drift:
			utility = 5.0
		case redundant && haveLast:
			utility = 0.5
		default:
			utility = 1.0
		}

		priority := utility / 6.0
		if priority < 0 {
			priority = 0
		}
		if priority > 1 {
			priority = 1
		}

		metadata := map[string]any{
			"mode":     string(cfg.Mode),
			"priority": priority,
		}

		if drift {
			criticalSteps = append(criticalSteps, int64(t))
		}
		utilities[int64(t)] = utility

		steps = append(steps, episode.Step{T: int64(t), Observation: observation, Metadata: metadata})
		lastAPIID = apiID
		haveLast = true
	}

	return episode.Episode{
		Steps: steps,
		Labels: episode.Labels{
			CriticalSteps:    criticalSteps,
			TotalDriftEvents: len(criticalSteps),
			PerStepUtility:   utilities,
			Mode:             string(cfg.Mode),
		},
	}
}

// GenerateEpisodes produces count episodes with ids 0..count-1.
func GenerateEpisodes(count int, cfg Config) []episode.Episode {
	out := make([]episode.Episode, count)
	for i := 0; i < count; i++ {
		out[i] = GenerateEpisode(i, cfg)
	}
	return out
}
