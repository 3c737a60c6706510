// Package actionlog writes the evaluator's results table and the
// optional per-episode action log, in the fixed column order spec.md §6
// requires for the results table (locale-independent, fixed-precision
// numeric formatting so two runs over the same inputs are byte-identical,
// property P5).
package actionlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rcliao/writepolicybench/internal/evaluator"
)

// ResultColumns is the fixed column order for the results table.
var ResultColumns = []string{
	"episode_id", "budget_bytes", "policy", "track",
	"recall", "precision", "f1", "utility_per_kb", "regret",
	"avg_staleness", "drift_coverage", "expire_rate", "utilization", "write_density",
	"bytes_used", "writes", "merges", "expires", "skips", "rejections",
}

const floatPrecision = 6

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', floatPrecision, 64)
}

func rowToRecord(r evaluator.Row) []string {
	return []string{
		r.EpisodeID,
		strconv.Itoa(r.Budget),
		r.PolicyID,
		r.Track.String(),
		formatFloat(r.Recall),
		formatFloat(r.Precision),
		formatFloat(r.F1),
		formatFloat(r.UtilityPerKB),
		formatFloat(r.Regret),
		formatFloat(r.AvgStaleness),
		formatFloat(r.DriftCoverage),
		formatFloat(r.ExpireRate),
		formatFloat(r.Utilization),
		formatFloat(r.WriteDensity),
		strconv.Itoa(r.BytesUsed),
		strconv.Itoa(r.Counts.Writes),
		strconv.Itoa(r.Counts.Merges),
		strconv.Itoa(r.Counts.Expires),
		strconv.Itoa(r.Counts.Skips),
		strconv.Itoa(r.Counts.Rejections),
	}
}

// WriteCSV writes rows as a CSV table with ResultColumns as the header,
// using '\n' line endings regardless of platform so output is
// byte-identical across machines.
func WriteCSV(w io.Writer, rows []evaluator.Row) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = false
	if err := cw.Write(ResultColumns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(rowToRecord(r)); err != nil {
			return fmt.Errorf("actionlog: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile is a convenience wrapper around WriteCSV for a file path.
func WriteCSVFile(path string, rows []evaluator.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("actionlog: create %s: %w", path, err)
	}
	defer f.Close()
	return WriteCSV(f, rows)
}
