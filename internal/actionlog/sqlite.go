package actionlog

import (
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteLogger is an optional structured backend for the per-episode
// action log (spec.md §6 permits exporting it; it is a write-only sink
// the evaluator never reads back from, so it does not reintroduce the
// persistence Non-goal). Schema and migration style mirror the teacher's
// SQLiteStore.migrate.
type SQLiteLogger struct {
	db      *sql.DB
	entropy *rand.Rand
}

// NewSQLiteLogger opens or creates a SQLite action-log database at path.
func NewSQLiteLogger(path string) (*SQLiteLogger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("actionlog: create dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("actionlog: open %s: %w", path, err)
	}

	l := &SQLiteLogger{db: db, entropy: rand.New(rand.NewSource(time.Now().UnixNano()))}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("actionlog: migrate: %w", err)
	}
	return l, nil
}

func (l *SQLiteLogger) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS actions (
		id          TEXT PRIMARY KEY,
		episode_id  TEXT NOT NULL,
		budget_bytes INTEGER NOT NULL,
		policy      TEXT NOT NULL,
		t           INTEGER NOT NULL,
		action      TEXT NOT NULL,
		accepted    INTEGER NOT NULL,
		reason      TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_actions_episode ON actions(episode_id, t);
	CREATE INDEX IF NOT EXISTS idx_actions_policy ON actions(policy, budget_bytes);
	`
	_, err := l.db.Exec(schema)
	return err
}

func (l *SQLiteLogger) Log(e Entry) error {
	if e.ID == "" {
		e.ID = ulid.MustNew(ulid.Timestamp(time.Now()), l.entropy).String()
	}
	_, err := l.db.Exec(
		`INSERT INTO actions (id, episode_id, budget_bytes, policy, t, action, accepted, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EpisodeID, e.Budget, e.PolicyID, e.T, e.Action, boolToInt(e.Accepted), e.Reason,
	)
	return err
}

func (l *SQLiteLogger) Close() error { return l.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
