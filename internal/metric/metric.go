// Package metric computes the benchmark's scoring: recall, precision,
// f1, utility-per-KB, regret against a WRITE-only knapsack oracle,
// staleness, drift coverage, expire rate, utilization and write density
// — all against the final memory store contents and the episode's
// ground-truth labels (spec.md §4.5).
package metric

import (
	"github.com/rcliao/writepolicybench/internal/byteacct"
	"github.com/rcliao/writepolicybench/internal/episode"
	"github.com/rcliao/writepolicybench/internal/memstore"
)

// Counts tallies the actions a policy actually had accepted or rejected
// over an episode, used by expire_rate and the results table.
type Counts struct {
	Writes     int
	Merges     int
	Expires    int
	Skips      int
	Rejections int
}

// Result is one scored (episode, budget, policy, track) condition.
type Result struct {
	Recall        float64
	Precision     float64
	F1            float64
	UtilityPerKB  float64
	Regret        float64
	AvgStaleness  float64
	DriftCoverage float64
	ExpireRate    float64
	Utilization   float64
	WriteDensity  float64

	BytesUsed int
	Counts    Counts
}

// RetainedSet computes W: every BASE item's timestep, plus every DELTA
// item's timestep whose parent BASE is still present (by I2/I3 this is
// just "every resident item's timestep", since the store enforces strict
// refusal of orphaning — but we recompute it explicitly here so the
// metric engine's notion of W does not silently depend on store
// internals staying bug-free).
func RetainedSet(items []memstore.Item) map[int64]struct{} {
	present := make(map[int64]struct{}, len(items))
	for _, it := range items {
		present[it.Step.T] = struct{}{}
	}

	byT := make(map[int64]memstore.Item, len(items))
	for _, it := range items {
		byT[it.Step.T] = it
	}

	w := make(map[int64]struct{}, len(items))
	for _, it := range items {
		if it.Kind == memstore.Base {
			w[it.Step.T] = struct{}{}
			continue
		}
		parent, ok := byT[it.MergeParentT]
		if !ok || parent.Kind != memstore.Base {
			continue
		}
		if !endpointMatches(parent.Step.Observation, it.Step.Observation) {
			continue
		}
		w[it.Step.T] = struct{}{}
	}
	return w
}

func endpointMatches(baseObs, deltaObs any) bool {
	bm, ok := baseObs.(map[string]any)
	if !ok {
		return false
	}
	dm, ok := deltaObs.(map[string]any)
	if !ok {
		return false
	}
	ba, ok1 := bm["api"]
	da, ok2 := dm["api"]
	return ok1 && ok2 && ba == da
}

// Compute scores a finished condition: ep is the episode (its Labels
// carry ground truth), items is the final store contents, bytesUsed/
// maxBytes describe the budget, counts tallies action outcomes, and
// currentT is the last step's timestep (used for staleness).
func Compute(ep episode.Episode, items []memstore.Item, bytesUsed, maxBytes int, counts Counts, currentT int64) Result {
	w := RetainedSet(items)
	critical := ep.Labels.CriticalSet()

	intersect := 0
	for t := range w {
		if _, ok := critical[t]; ok {
			intersect++
		}
	}

	recall := recallOf(intersect, len(critical), len(w))
	precision := precisionOf(intersect, len(w), len(critical))
	f1 := f1Of(precision, recall)

	utility := utilityOf(ep, w)
	utilityPerKB := 0.0
	if bytesUsed > 0 {
		utilityPerKB = utility / (float64(bytesUsed) / 1024.0)
	}

	oracle := OracleUtility(ep.Steps, ep.Labels, maxBytes)
	regret := oracle - utility
	if regret < 0 {
		regret = 0
	}

	totalDrift := float64(ep.Labels.TotalDriftEvents)
	driftCoverage := 0.0
	if totalDrift > 0 {
		driftWritten := 0
		for t := range w {
			if _, ok := critical[t]; ok {
				driftWritten++
			}
		}
		driftCoverage = float64(driftWritten) / totalDrift
	}

	avgStaleness := 0.0
	if len(w) > 0 {
		total := 0.0
		for t := range w {
			total += float64(currentT - t)
		}
		avgStaleness = total / float64(len(w))
	}

	expireRate := 0.0
	denomWrites := counts.Writes
	if denomWrites < 1 {
		denomWrites = 1
	}
	expireRate = float64(counts.Expires) / float64(denomWrites)

	utilization := 0.0
	if maxBytes > 0 {
		utilization = float64(bytesUsed) / float64(maxBytes)
	}

	writeDensity := 0.0
	if len(ep.Steps) > 0 {
		writeDensity = float64(len(w)) / float64(len(ep.Steps))
	}

	return Result{
		Recall:        recall,
		Precision:     precision,
		F1:            f1,
		UtilityPerKB:  utilityPerKB,
		Regret:        regret,
		AvgStaleness:  avgStaleness,
		DriftCoverage: driftCoverage,
		ExpireRate:    expireRate,
		Utilization:   utilization,
		WriteDensity:  writeDensity,
		BytesUsed:     bytesUsed,
		Counts:        counts,
	}
}

func recallOf(intersect, criticalN, wN int) float64 {
	if criticalN == 0 {
		if wN == 0 {
			return 1.0
		}
		return 0.0
	}
	return float64(intersect) / float64(criticalN)
}

func precisionOf(intersect, wN, criticalN int) float64 {
	if wN == 0 {
		if criticalN == 0 {
			return 1.0
		}
		return 0.0
	}
	return float64(intersect) / float64(wN)
}

func f1Of(precision, recall float64) float64 {
	if precision == 0 && recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

func utilityOf(ep episode.Episode, w map[int64]struct{}) float64 {
	total := 0.0
	for t := range w {
		total += ep.Labels.Utility(t)
	}
	return total
}

// OracleUtility computes U*(B), the WRITE-only oracle: the maximum sum of
// per_step_utility achievable by any subset of steps whose total
// estimate_bytes is <= maxBytes, via exact 0/1 knapsack DP. Non-goals
// forbid approximate/statistical metrics, so unlike the reference
// implementation this never falls back to a greedy approximation for
// large budgets — it caps the DP table at the sum of step weights instead
// of the full budget, which keeps it exact while bounding the table size
// for budgets far larger than any step could use.
func OracleUtility(steps []episode.Step, labels episode.Labels, maxBytes int) float64 {
	if maxBytes <= 0 || len(steps) == 0 {
		return 0
	}

	weights := make([]int, len(steps))
	values := make([]float64, len(steps))
	totalWeight := 0
	totalValue := 0.0
	for i, s := range steps {
		weights[i] = byteacct.EstimateBytes(s)
		values[i] = labels.Utility(s.T)
		totalWeight += weights[i]
		totalValue += values[i]
	}

	dpCap := maxBytes
	if totalWeight < dpCap {
		dpCap = totalWeight
	}
	if dpCap <= 0 {
		return 0
	}

	dp := make([]float64, dpCap+1)
	for i, w := range weights {
		if w > dpCap {
			continue
		}
		v := values[i]
		for b := dpCap; b >= w; b-- {
			if cand := dp[b-w] + v; cand > dp[b] {
				dp[b] = cand
			}
		}
	}

	best := 0.0
	for _, v := range dp {
		if v > best {
			best = v
		}
	}
	if totalWeight <= maxBytes && totalValue > best {
		best = totalValue
	}
	return best
}
