// Package manifest implements the frozen episode manifest: a record
// mapping logical episode-set names to (path, content hash, record
// count). The evaluator refuses to run against a manifest whose hashes
// do not match (spec.md §6, §7).
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/writepolicybench/internal/episode"
	"github.com/rcliao/writepolicybench/internal/synth"
)

// Entry describes one frozen episode-set file.
type Entry struct {
	Path    string `yaml:"path"`
	Hash    string `yaml:"hash"`
	Records int    `yaml:"records"`
}

// Manifest maps logical episode-set names to their frozen entry.
type Manifest struct {
	Sets map[string]Entry `yaml:"sets"`
}

// HashFile returns the hex-encoded SHA-256 of path's contents.
func HashFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("manifest: read %s: %w", path, err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Load reads a manifest YAML file.
func Load(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("manifest: parse %s: %w", path, err)
	}
	return m, nil
}

// Save writes a manifest YAML file.
func Save(path string, m Manifest) error {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("manifest: marshal: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("manifest: write %s: %w", path, err)
	}
	return nil
}

// Verify checks that every entry's on-disk hash and record count still
// match the manifest. It returns a descriptive error naming the first
// mismatching set.
func Verify(m Manifest) error {
	names := make([]string, 0, len(m.Sets))
	for name := range m.Sets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry := m.Sets[name]
		hash, err := HashFile(entry.Path)
		if err != nil {
			return err
		}
		if hash != entry.Hash {
			return fmt.Errorf("manifest: set %q hash mismatch: manifest=%s on-disk=%s", name, entry.Hash, hash)
		}
		episodes, err := episode.ReadJSONLFile(entry.Path)
		if err != nil {
			return fmt.Errorf("manifest: set %q: %w", name, err)
		}
		if len(episodes) != entry.Records {
			return fmt.Errorf("manifest: set %q record count mismatch: manifest=%d on-disk=%d", name, entry.Records, len(episodes))
		}
	}
	return nil
}

// LoadVerified reads every episode set named in the manifest, verifying
// hashes and record counts first and refusing to run on any mismatch.
func LoadVerified(m Manifest) (map[string][]episode.Episode, error) {
	if err := Verify(m); err != nil {
		return nil, err
	}
	out := make(map[string][]episode.Episode, len(m.Sets))
	for name, entry := range m.Sets {
		episodes, err := episode.ReadJSONLFile(entry.Path)
		if err != nil {
			return nil, fmt.Errorf("manifest: set %q: %w", name, err)
		}
		out[name] = episodes
	}
	return out, nil
}

// FreezeConfig configures a freeze run: which synthetic modes to
// generate, under what episode count/step count/seed, and where to write
// the resulting files.
type FreezeConfig struct {
	OutDir      string
	Seed        int64
	Steps       int
	EpisodeN    int
	Modes       []synth.Mode
}

// Freeze generates synthetic episodes for each configured mode, writes
// one JSONL file per mode, and returns the resulting manifest (mirroring
// scripts/freeze_episodes.py in the reference implementation).
func Freeze(cfg FreezeConfig) (Manifest, error) {
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return Manifest{}, fmt.Errorf("manifest: mkdir %s: %w", cfg.OutDir, err)
	}

	m := Manifest{Sets: make(map[string]Entry, len(cfg.Modes))}
	for _, mode := range cfg.Modes {
		sc := synth.DefaultConfig()
		sc.Seed = cfg.Seed
		sc.Steps = cfg.Steps
		sc.Mode = mode

		episodes := synth.GenerateEpisodes(cfg.EpisodeN, sc)
		for i := range episodes {
			episodes[i].Labels.EpisodeID = fmt.Sprintf("%s-%d", mode, i)
		}

		path := fmt.Sprintf("%s/episodes__mode=%s__seed=%d__steps=%d__n=%d.jsonl",
			cfg.OutDir, mode, cfg.Seed, cfg.Steps, cfg.EpisodeN)
		if err := episode.WriteJSONLFile(path, episodes); err != nil {
			return Manifest{}, err
		}
		hash, err := HashFile(path)
		if err != nil {
			return Manifest{}, err
		}
		m.Sets[string(mode)] = Entry{Path: path, Hash: hash, Records: len(episodes)}
	}
	return m, nil
}
