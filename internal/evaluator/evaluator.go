// Package evaluator is the driver: it instantiates a fresh memory store
// per (episode, budget, policy, track) condition, feeds steps to the
// policy in episode order, applies the returned actions atomically, and
// hands the final store contents to the metric engine. Conditions are
// independent and embarrassingly parallel (spec.md §5); this package
// exposes both a sequential Run and a worker-pool RunParallel.
package evaluator

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/writepolicybench/internal/episode"
	"github.com/rcliao/writepolicybench/internal/memstore"
	"github.com/rcliao/writepolicybench/internal/metric"
	"github.com/rcliao/writepolicybench/internal/policy"
)

// Row is one scored condition, shaped for the results table (spec.md §6).
type Row struct {
	EpisodeID string
	Budget    int
	PolicyID  string
	Track     policy.Track

	metric.Result
}

// PolicyFactory constructs a fresh policy instance for one condition. The
// evaluator calls it once per (episode, budget) pair so policies never
// carry state across conditions (spec.md §4.4: "constructed fresh per
// condition").
type PolicyFactory func() policy.WritePolicy

// ActionObserver is notified of every action the driver applies, whether
// accepted or rejected. It backs the optional per-episode action log
// (spec.md §6); RunOne never blocks on it failing.
type ActionObserver func(t int64, action memstore.Action, accepted bool)

// Condition names one (episode, budget, policy, track) grid cell.
type Condition struct {
	Episode   episode.Episode
	Budget    int
	PolicyID  string
	NewPolicy PolicyFactory
	Track     policy.Track
	Observe   ActionObserver // optional
}

// ConditionSeed derives a deterministic seed from the condition identity
// so a Seeded policy's randomness is reproducible across runs (spec.md
// §5, §9, property P5).
func ConditionSeed(episodeID string, budget int, policyID string) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%s", episodeID, budget, policyID)
	return int64(h.Sum64())
}

// Run scores every condition sequentially, in the order given, and
// returns one Row per condition.
func Run(conditions []Condition, log *logrus.Logger) ([]Row, error) {
	rows := make([]Row, 0, len(conditions))
	for i, c := range conditions {
		row, err := RunOne(c)
		if err != nil {
			return nil, fmt.Errorf("condition %d (episode=%s budget=%d policy=%s): %w",
				i, c.Episode.Labels.EpisodeID, c.Budget, c.PolicyID, err)
		}
		if log != nil {
			log.WithFields(logrus.Fields{
				"episode": row.EpisodeID,
				"budget":  row.Budget,
				"policy":  row.PolicyID,
				"track":   row.Track.String(),
				"f1":      row.F1,
			}).Debug("condition scored")
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RunParallel scores conditions across a worker pool. Each worker owns
// its memory store and policy instance exclusively — there is no shared
// mutable state across conditions (spec.md §5). Row order matches
// conditions order regardless of completion order.
func RunParallel(conditions []Condition, workers int, log *logrus.Logger) ([]Row, error) {
	if workers <= 0 {
		workers = 1
	}
	rows := make([]Row, len(conditions))
	errs := make([]error, len(conditions))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				row, err := RunOne(conditions[i])
				rows[i] = row
				errs[i] = err
			}
		}()
	}
	for i := range conditions {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			c := conditions[i]
			return nil, fmt.Errorf("condition %d (episode=%s budget=%d policy=%s): %w",
				i, c.Episode.Labels.EpisodeID, c.Budget, c.PolicyID, err)
		}
	}
	if log != nil {
		log.WithField("conditions", len(conditions)).Info("evaluation complete")
	}
	return rows, nil
}

// RunOne runs a single condition to completion and scores it. It returns
// an error only for a fatal, implementation-bug-grade invariant
// violation detected post-apply (spec.md §7); ordinary action rejections
// are non-fatal and simply counted.
func RunOne(c Condition) (Row, error) {
	store := memstore.New(c.Budget)
	pol := c.NewPolicy()
	if seeded, ok := pol.(policy.Seeded); ok {
		seeded.Seed(ConditionSeed(c.Episode.Labels.EpisodeID, c.Budget, c.PolicyID))
	}

	var counts metric.Counts
	var lastT int64

	for _, raw := range c.Episode.Steps {
		step := policy.ViewStep(raw, c.Track)
		lastT = step.T

		actions := pol.Select(step, store.View())
		for _, action := range actions {
			ok := store.Apply(action, step.T)
			tallyAction(&counts, action.Kind(), ok)
			if c.Observe != nil {
				c.Observe(step.T, action, ok)
			}
		}
		sum := 0
		for _, it := range store.Items() {
			sum += it.ByteCost
		}
		if sum != store.BytesUsed() || store.BytesUsed() > store.MaxBytes() || store.BytesUsed() < 0 {
			return Row{}, fmt.Errorf("invariant I1 violated at t=%d: sum(byte_cost)=%d bytes_used=%d max_bytes=%d",
				step.T, sum, store.BytesUsed(), store.MaxBytes())
		}
	}

	result := metric.Compute(c.Episode, store.Items(), store.BytesUsed(), c.Budget, counts, lastT)
	return Row{
		EpisodeID: c.Episode.Labels.EpisodeID,
		Budget:    c.Budget,
		PolicyID:  c.PolicyID,
		Track:     c.Track,
		Result:    result,
	}, nil
}

func tallyAction(counts *metric.Counts, kind memstore.Kind, accepted bool) {
	if !accepted {
		counts.Rejections++
		return
	}
	switch kind {
	case memstore.Write:
		counts.Writes++
	case memstore.Merge:
		counts.Merges++
	case memstore.Expire:
		counts.Expires++
	case memstore.Skip:
		counts.Skips++
	}
}
