// Package timeline maintains the ordered position sequence of comics within a
// universe. Every operation is a pure function over a snapshot of sibling
// items and returns a Plan of position writes for the caller to persist.
//
// The engine holds no locks. Callers must serialize read-compute-write cycles
// on the same partition (a database transaction is enough), otherwise two
// concurrent inserts can compute overlapping shift windows from a stale
// snapshot.
package timeline

import (
	"errors"
	"fmt"
	"sort"
)

// ErrPartitionMismatch is returned when the reference item of an insertion
// lives in a different partition than the item being placed.
var ErrPartitionMismatch = errors.New("partition mismatch")

// Unpositioned marks an item that has never been placed on a timeline.
const Unpositioned = -1

// Item is one orderable entry in a partition's timeline.
type Item struct {
	ID        string
	Partition string
	Position  int
}

func (it Item) String() string {
	return fmt.Sprintf("%s@%s:%d", it.ID, it.Partition, it.Position)
}

// Placement selects where an item lands relative to its reference item.
type Placement int

const (
	// After places the item immediately after the reference item.
	After Placement = iota
	// Before reproduces the legacy "after=true" flag: the target slot is
	// max(prior-1, 0), and everything from that slot onward shifts up.
	Before
	// Head places the item at position 0 and ignores any reference item.
	Head
)

func (p Placement) String() string {
	switch p {
	case After:
		return "after"
	case Before:
		return "before"
	case Head:
		return "head"
	default:
		return fmt.Sprintf("placement(%d)", int(p))
	}
}

// ParsePlacement converts a CLI or form value into a Placement.
func ParsePlacement(s string) (Placement, error) {
	switch s {
	case "", "after":
		return After, nil
	case "before":
		return Before, nil
	case "head", "first":
		return Head, nil
	default:
		return After, fmt.Errorf("unknown placement %q", s)
	}
}

// Assignment is a single position write.
type Assignment struct {
	ID   string
	From int
	To   int
}

// Plan is the ordered set of writes produced by one engine call.
type Plan []Assignment

// Empty reports whether the plan performs no writes.
func (p Plan) Empty() bool { return len(p) == 0 }

// Positions flattens the plan into an ID -> new position map.
func (p Plan) Positions() map[string]int {
	m := make(map[string]int, len(p))
	for _, a := range p {
		m[a.ID] = a.To
	}
	return m
}

// siblings returns the items of partition sorted by position, excluding the
// item with ID skip. Ties on position fall back to ID so output is stable.
func siblings(snapshot []Item, partition, skip string) []Item {
	out := make([]Item, 0, len(snapshot))
	for _, it := range snapshot {
		if it.Partition != partition || it.ID == skip {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Apply returns a copy of snapshot with the plan's writes applied. Items named
// by the plan but missing from the snapshot are appended.
func Apply(snapshot []Item, plan Plan, partition string) []Item {
	out := make([]Item, len(snapshot))
	copy(out, snapshot)

	index := make(map[string]int, len(out))
	for i, it := range out {
		index[it.ID] = i
	}
	for _, a := range plan {
		if i, ok := index[a.ID]; ok {
			out[i].Position = a.To
			continue
		}
		index[a.ID] = len(out)
		out = append(out, Item{ID: a.ID, Partition: partition, Position: a.To})
	}
	return out
}
