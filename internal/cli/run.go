package cli

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rcliao/writepolicybench/internal/actionlog"
	"github.com/rcliao/writepolicybench/internal/baseline"
	"github.com/rcliao/writepolicybench/internal/evaluator"
	"github.com/rcliao/writepolicybench/internal/manifest"
	"github.com/rcliao/writepolicybench/internal/memstore"
	"github.com/rcliao/writepolicybench/internal/policy"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the evaluator over a manifest for a grid of budgets and policies",
		Long: "Runs every (episode, budget, policy) condition named by a run-config file, scores each with the metric engine, " +
			"and writes the results table to --out. Exits non-zero on manifest mismatch, malformed episode, or internal invariant violation.",
		Run: runRun,
	}

	cmd.Flags().String("config", "", "Path to a run-config YAML file (required)")
	cmd.MarkFlagRequired("config")

	RootCmd.AddCommand(cmd)
}

func runRun(cmd *cobra.Command, args []string) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := evaluator.LoadRunConfig(configPath)
	if err != nil {
		exitErr("run", err)
	}

	track, err := evaluator.ParseTrack(cfg.Track)
	if err != nil {
		exitErr("run", err)
	}

	m, err := manifest.Load(cfg.Manifest)
	if err != nil {
		exitErr("run", err)
	}
	sets, err := manifest.LoadVerified(m)
	if err != nil {
		exitErr("run", err)
	}

	budgetList := make([]string, len(cfg.Budgets))
	for i, b := range cfg.Budgets {
		budgetList[i] = humanize.Bytes(uint64(b))
	}
	log.WithField("budgets", budgetList).Info("budget grid")

	setNames := cfg.Sets
	if len(setNames) == 0 {
		for name := range sets {
			setNames = append(setNames, name)
		}
		sort.Strings(setNames)
	}

	policyIDs := cfg.Policies
	if len(policyIDs) == 0 {
		policyIDs = baseline.IDs(track)
	}
	for _, id := range policyIDs {
		if _, ok := baseline.New(track, id); !ok {
			exitErr("run", fmt.Errorf("unknown policy %q for track %s", id, track))
		}
	}

	var logger actionlog.Logger
	if cfg.ActionLog != "" {
		logger, err = openActionLogger(cfg.ActionLog, cfg.ActionLogDriver)
		if err != nil {
			exitErr("run", err)
		}
		defer logger.Close()
	}

	var conditions []evaluator.Condition
	for _, setName := range setNames {
		episodes, ok := sets[setName]
		if !ok {
			exitErr("run", fmt.Errorf("episode set %q not found in manifest", setName))
		}
		for _, ep := range episodes {
			for _, budget := range cfg.Budgets {
				for _, policyID := range policyIDs {
					policyID := policyID
					episodeLocal := ep
					budgetLocal := budget
					conditions = append(conditions, evaluator.Condition{
						Episode:  episodeLocal,
						Budget:   budgetLocal,
						PolicyID: policyID,
						Track:    track,
						NewPolicy: func() policy.WritePolicy {
							pol, _ := baseline.New(track, policyID)
							return pol
						},
						Observe: observerFor(logger, episodeLocal.Labels.EpisodeID, budgetLocal, policyID),
					})
				}
			}
		}
	}

	rows, err := evaluator.RunParallel(conditions, cfg.Workers, log)
	if err != nil {
		exitErr("run", err)
	}

	if err := actionlog.WriteCSVFile(cfg.Out, rows); err != nil {
		exitErr("run", err)
	}

	var totalBytes uint64
	for _, r := range rows {
		totalBytes += uint64(r.BytesUsed)
	}
	fmt.Printf("scored %d conditions (%s resident across final stores), wrote %s\n",
		len(rows), humanize.Bytes(totalBytes), cfg.Out)
}

func openActionLogger(path, driver string) (actionlog.Logger, error) {
	switch driver {
	case "", "jsonl":
		return actionlog.NewJSONLLogger(path)
	case "sqlite":
		return actionlog.NewSQLiteLogger(path)
	default:
		return nil, fmt.Errorf("run: unknown action_log_driver %q", driver)
	}
}

func observerFor(logger actionlog.Logger, episodeID string, budget int, policyID string) evaluator.ActionObserver {
	if logger == nil {
		return nil
	}
	return func(t int64, action memstore.Action, accepted bool) {
		entry := actionlog.EntryFromAction(episodeID, budget, policyID, t, action, accepted)
		_ = logger.Log(entry) // best-effort: a log write failure must not abort scoring
	}
}
