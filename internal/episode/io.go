package episode

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// wireStep/wireEpisode mirror the external line-delimited record shape
// from spec.md §6: each episode record has exactly "steps" and "labels".
type wireStep struct {
	T          int64          `json:"t"`
	Observation any           `json:"observation"`
	Metadata   map[string]any `json:"metadata"`
}

type wireLabels struct {
	CriticalSteps    []int64            `json:"critical_steps"`
	TotalDriftEvents int                `json:"total_drift_events"`
	PerStepUtility   map[string]float64 `json:"per_step_utility,omitempty"`
	EpisodeID        string             `json:"episode_id,omitempty"`
	Mode             string             `json:"mode,omitempty"`
}

type wireEpisode struct {
	Steps  []wireStep `json:"steps"`
	Labels wireLabels `json:"labels"`
}

func toWire(e Episode) wireEpisode {
	w := wireEpisode{
		Steps: make([]wireStep, len(e.Steps)),
		Labels: wireLabels{
			CriticalSteps:    e.Labels.CriticalSteps,
			TotalDriftEvents: e.Labels.TotalDriftEvents,
			EpisodeID:        e.Labels.EpisodeID,
			Mode:             e.Labels.Mode,
		},
	}
	for i, s := range e.Steps {
		w.Steps[i] = wireStep{T: s.T, Observation: s.Observation, Metadata: s.Metadata}
	}
	if e.Labels.PerStepUtility != nil {
		w.Labels.PerStepUtility = make(map[string]float64, len(e.Labels.PerStepUtility))
		for t, u := range e.Labels.PerStepUtility {
			w.Labels.PerStepUtility[fmt.Sprintf("%d", t)] = u
		}
	}
	return w
}

func fromWire(w wireEpisode) (Episode, error) {
	e := Episode{
		Steps: make([]Step, len(w.Steps)),
		Labels: Labels{
			CriticalSteps:    w.Labels.CriticalSteps,
			TotalDriftEvents: w.Labels.TotalDriftEvents,
			EpisodeID:        w.Labels.EpisodeID,
			Mode:             w.Labels.Mode,
		},
	}
	for i, s := range w.Steps {
		md := s.Metadata
		if md == nil {
			md = map[string]any{}
		}
		e.Steps[i] = Step{T: s.T, Observation: s.Observation, Metadata: md}
	}
	if len(w.Labels.PerStepUtility) > 0 {
		e.Labels.PerStepUtility = make(map[int64]float64, len(w.Labels.PerStepUtility))
		for ts, u := range w.Labels.PerStepUtility {
			var t int64
			if _, err := fmt.Sscanf(ts, "%d", &t); err != nil {
				return Episode{}, fmt.Errorf("episode: invalid per_step_utility key %q: %w", ts, err)
			}
			e.Labels.PerStepUtility[t] = u
		}
	}
	return e, nil
}

// Encode writes a single episode as one canonical JSON line (no trailing
// newline). Serializing a loaded episode and reloading it must yield a
// structurally equal episode (P4).
func Encode(e Episode) ([]byte, error) {
	return json.Marshal(toWire(e))
}

// WriteJSONL writes episodes as line-delimited JSON, one record per line.
func WriteJSONL(w io.Writer, episodes []Episode) error {
	bw := bufio.NewWriter(w)
	for _, e := range episodes {
		raw, err := Encode(e)
		if err != nil {
			return fmt.Errorf("episode: encode: %w", err)
		}
		if _, err := bw.Write(raw); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteJSONLFile is a convenience wrapper around WriteJSONL for a file
// path, matching the teacher's export-to-path idiom.
func WriteJSONLFile(path string, episodes []Episode) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("episode: create %s: %w", path, err)
	}
	defer f.Close()
	return WriteJSONL(f, episodes)
}

// ReadJSONL loads a stream where each record is one episode. Malformed
// records fail fast, identifying the offending record index; there are no
// partial loads — on error, nothing from the call is considered loaded.
func ReadJSONL(r io.Reader) ([]Episode, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	var episodes []Episode
	idx := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			idx++
			continue
		}
		var w wireEpisode
		if err := json.Unmarshal(line, &w); err != nil {
			return nil, fmt.Errorf("episode: malformed record at index %d: %w", idx, err)
		}
		if w.Steps == nil {
			return nil, fmt.Errorf("episode: record at index %d missing 'steps' field", idx)
		}
		e, err := fromWire(w)
		if err != nil {
			return nil, fmt.Errorf("episode: record at index %d: %w", idx, err)
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("episode: record at index %d: %w", idx, err)
		}
		episodes = append(episodes, e)
		idx++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("episode: scan: %w", err)
	}
	return episodes, nil
}

// ReadJSONLFile is a convenience wrapper around ReadJSONL for a file path.
func ReadJSONLFile(path string) ([]Episode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("episode: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadJSONL(f)
}
