package evaluator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/writepolicybench/internal/policy"
)

// RunConfig describes one evaluator invocation: which frozen episode
// sets to score, over what budget grid, with which policies, under
// which track. Mirrors evaluator.py's RunConfig/evaluate_baselines shape
// but as a loadable YAML file rather than a hardcoded script.
type RunConfig struct {
	Manifest        string   `yaml:"manifest"`
	Sets            []string `yaml:"sets"`    // episode-set names to pull from the manifest; empty = all
	Budgets         []int    `yaml:"budgets"`
	Policies        []string `yaml:"policies"` // policy IDs; empty = every registered policy for Track
	Track           string   `yaml:"track"`    // "unprivileged" | "privileged"
	Out             string   `yaml:"out"`
	ActionLog       string   `yaml:"action_log,omitempty"`
	ActionLogDriver string   `yaml:"action_log_driver,omitempty"` // "jsonl" | "sqlite"
	Workers         int      `yaml:"workers,omitempty"`
}

// DefaultBudgets is the grid spec.md §6 names as the CLI default.
var DefaultBudgets = []int{1024, 10240, 102400, 1048576}

// LoadRunConfig reads a YAML run-config file.
func LoadRunConfig(path string) (RunConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("evaluator: read config %s: %w", path, err)
	}
	var cfg RunConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("evaluator: parse config %s: %w", path, err)
	}
	if len(cfg.Budgets) == 0 {
		cfg.Budgets = DefaultBudgets
	}
	if cfg.Track == "" {
		cfg.Track = policy.Unprivileged.String()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return cfg, nil
}

// ParseTrack maps a config string to a policy.Track.
func ParseTrack(s string) (policy.Track, error) {
	switch s {
	case "", "unprivileged":
		return policy.Unprivileged, nil
	case "privileged":
		return policy.Privileged, nil
	default:
		return 0, fmt.Errorf("evaluator: unknown track %q", s)
	}
}
