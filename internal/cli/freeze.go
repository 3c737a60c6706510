package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rcliao/writepolicybench/internal/manifest"
	"github.com/rcliao/writepolicybench/internal/synth"
)

func init() {
	cmd := &cobra.Command{
		Use:   "freeze",
		Short: "Generate and freeze a synthetic episode set",
		Long:  "Generates synthetic drift episodes for each regime mode, writes one JSONL file per mode, and writes a manifest recording each file's content hash.",
		Run:   runFreeze,
	}

	cmd.Flags().String("out-dir", "data/episodes", "Output directory for frozen episode files")
	cmd.Flags().String("manifest", "data/episodes/manifest.yaml", "Path to write the manifest")
	cmd.Flags().Int64("seed", 0, "Random seed")
	cmd.Flags().Int("steps", 200, "Steps per episode")
	cmd.Flags().Int("episodes", 10, "Episodes per mode")
	cmd.Flags().StringSlice("modes", []string{"default", "burst_drift", "redundancy", "burst_redundancy"}, "Synthetic regimes to generate")

	RootCmd.AddCommand(cmd)
}

func runFreeze(cmd *cobra.Command, args []string) {
	outDir, _ := cmd.Flags().GetString("out-dir")
	manifestPath, _ := cmd.Flags().GetString("manifest")
	seed, _ := cmd.Flags().GetInt64("seed")
	steps, _ := cmd.Flags().GetInt("steps")
	episodesN, _ := cmd.Flags().GetInt("episodes")
	modeNames, _ := cmd.Flags().GetStringSlice("modes")

	modes := make([]synth.Mode, len(modeNames))
	for i, m := range modeNames {
		modes[i] = synth.Mode(m)
	}

	m, err := manifest.Freeze(manifest.FreezeConfig{
		OutDir:   outDir,
		Seed:     seed,
		Steps:    steps,
		EpisodeN: episodesN,
		Modes:    modes,
	})
	if err != nil {
		exitErr("freeze", err)
	}
	if err := manifest.Save(manifestPath, m); err != nil {
		exitErr("freeze", err)
	}

	var totalRecords int64
	for _, entry := range m.Sets {
		totalRecords += int64(entry.Records)
	}
	fmt.Printf("wrote %d episode sets (%s episodes total) under %s, manifest at %s\n",
		len(m.Sets), humanize.Comma(totalRecords), outDir, manifestPath)
}
