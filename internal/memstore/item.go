package memstore

import "github.com/rcliao/writepolicybench/internal/episode"

// ItemKind distinguishes a full BASE write from a partial DELTA merge.
type ItemKind int

const (
	Base ItemKind = iota
	Delta
)

func (k ItemKind) String() string {
	if k == Base {
		return "BASE"
	}
	return "DELTA"
}

// Item is a single resident memory entry: an immutable reference to the
// step that produced it, the timestep it was written at, the exact bytes
// charged at insertion, and — for DELTA items — the parent BASE timestep
// and the canonical delta payload. Items are never mutated after creation
// (MERGE always creates a new DELTA item; it never edits the BASE).
type Item struct {
	Step       episode.Step
	WrittenAt  int64
	ByteCost   int
	Kind       ItemKind
	MergeParentT int64          // valid iff Kind == Delta
	Delta        map[string]any // valid iff Kind == Delta
}
