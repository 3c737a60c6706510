package actionlog

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/writepolicybench/internal/memstore"
)

// Entry is one recorded action application, the unit the optional
// per-episode action log exports (spec.md §6: "the (optionally exported)
// per-episode action log").
type Entry struct {
	ID        string `json:"id"`
	EpisodeID string `json:"episode_id"`
	Budget    int    `json:"budget_bytes"`
	PolicyID  string `json:"policy"`
	T         int64  `json:"t"`
	Action    string `json:"action"`
	Accepted  bool   `json:"accepted"`
	Reason    string `json:"reason,omitempty"`
}

// Logger records action applications. Implementations must not mutate
// or retain the store; they only observe what the evaluator already
// decided.
type Logger interface {
	Log(e Entry) error
	Close() error
}

// JSONLLogger appends entries as line-delimited JSON, the default export
// format.
type JSONLLogger struct {
	w       io.WriteCloser
	entropy *rand.Rand
}

// NewJSONLLogger opens path for append-or-create and returns a logger
// backed by it.
func NewJSONLLogger(path string) (*JSONLLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("actionlog: open %s: %w", path, err)
	}
	return &JSONLLogger{w: f, entropy: rand.New(rand.NewSource(time.Now().UnixNano()))}, nil
}

func (l *JSONLLogger) Log(e Entry) error {
	if e.ID == "" {
		e.ID = ulid.MustNew(ulid.Timestamp(time.Now()), l.entropy).String()
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	_, err = l.w.Write(raw)
	return err
}

func (l *JSONLLogger) Close() error { return l.w.Close() }

// EntryFromAction builds an Entry from the action the driver just
// applied, tagging it accepted or rejected.
func EntryFromAction(episodeID string, budget int, policyID string, t int64, action memstore.Action, accepted bool) Entry {
	return Entry{
		EpisodeID: episodeID,
		Budget:    budget,
		PolicyID:  policyID,
		T:         t,
		Action:    action.Kind().String(),
		Accepted:  accepted,
		Reason:    action.Reason,
	}
}
