package timeline

import "fmt"

// Navigation holds the navigation targets around one item: the first and
// last items of the partition and the items directly before and after it.
// First is nil when the item is itself first, and Last when it is last.
type Navigation struct {
	First *Item
	Prev  *Item
	Next  *Item
	Last  *Item
}

// Navigate returns the navigation targets for item within its partition.
func Navigate(snapshot []Item, item Item) Navigation {
	var nav Navigation
	for _, sib := range siblings(snapshot, item.Partition, item.ID) {
		s := sib
		switch {
		case sib.Position < item.Position:
			if nav.First == nil {
				nav.First = &s
			}
			nav.Prev = &s
		case sib.Position > item.Position:
			if nav.Next == nil {
				nav.Next = &s
			}
			nav.Last = &s
		}
	}
	return nav
}

// Slot is one choice in the "where should this comic go" menu.
type Slot struct {
	Label     string
	PriorID   string
	Placement Placement
}

// Slots lists every place a new item can be inserted into partition: before
// the first item, between each adjacent pair, and after the last. An empty
// partition has a single slot that starts the timeline.
//
// label renders an item for display; nil uses the item's ID and position.
func Slots(snapshot []Item, partition string, label func(Item) string) []Slot {
	if label == nil {
		label = func(it Item) string { return fmt.Sprintf("%q (%d)", it.ID, it.Position) }
	}

	items := siblings(snapshot, partition, "")
	if len(items) == 0 {
		return []Slot{{Label: "Start the timeline", Placement: Head}}
	}

	slots := make([]Slot, 0, len(items)+1)
	slots = append(slots, Slot{
		Label:     "Before " + label(items[0]),
		Placement: Head,
	})
	for i := 0; i+1 < len(items); i++ {
		slots = append(slots, Slot{
			Label:     fmt.Sprintf("%s to %s", label(items[i]), label(items[i+1])),
			PriorID:   items[i].ID,
			Placement: After,
		})
	}
	last := items[len(items)-1]
	return append(slots, Slot{
		Label:     "After " + label(last),
		PriorID:   last.ID,
		Placement: After,
	})
}
