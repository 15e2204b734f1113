package timeline

import "fmt"

// Insert places item next to prior and returns the writes needed to keep the
// partition's positions unique.
//
// A nil prior means the partition has no timeline yet: item takes position 0
// and nothing else is touched. With After the target slot is prior+1; with
// Before it is max(prior-1, 0). Every sibling at or past the target shifts so
// the i-th of them lands on target+i+1, and only siblings whose position
// actually changes are written. Head delegates to InsertAtHead.
//
// If item already appears in the snapshot (a move), it is left out of the
// shift window and its old slot becomes a gap that Reorder can compact.
func Insert(snapshot []Item, item Item, prior *Item, placement Placement) (Plan, error) {
	if placement == Head {
		return InsertAtHead(snapshot, item), nil
	}

	if prior == nil {
		return Plan{{ID: item.ID, From: item.Position, To: 0}}, nil
	}

	if prior.Partition != item.Partition {
		return nil, fmt.Errorf("%w: inserting into %q relative to item %s in %q",
			ErrPartitionMismatch, item.Partition, prior.ID, prior.Partition)
	}

	target := prior.Position + 1
	if placement == Before {
		target = max(prior.Position-1, 0)
	}

	var plan Plan
	shifted := 0
	for _, sib := range siblings(snapshot, item.Partition, item.ID) {
		if sib.Position < target {
			continue
		}
		to := target + shifted + 1
		shifted++
		if sib.Position != to {
			plan = append(plan, Assignment{ID: sib.ID, From: sib.Position, To: to})
		}
	}

	return append(plan, Assignment{ID: item.ID, From: item.Position, To: target}), nil
}

// InsertAtHead puts item at position 0 and moves every other item of its
// partition up by one. Unlike Insert, the shift is relative to each item's
// own position rather than packed behind the target.
func InsertAtHead(snapshot []Item, item Item) Plan {
	var plan Plan
	for _, sib := range siblings(snapshot, item.Partition, item.ID) {
		plan = append(plan, Assignment{ID: sib.ID, From: sib.Position, To: sib.Position + 1})
	}
	return append(plan, Assignment{ID: item.ID, From: item.Position, To: 0})
}

// Reorder compacts a partition to the dense sequence 0..N-1 without changing
// relative order. Calling it on its own applied output yields an empty plan.
func Reorder(snapshot []Item, partition string) Plan {
	var plan Plan
	for i, it := range siblings(snapshot, partition, "") {
		if it.Position != i {
			plan = append(plan, Assignment{ID: it.ID, From: it.Position, To: i})
		}
	}
	return plan
}
