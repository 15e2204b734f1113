package timeline

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items(partition string, pairs ...any) []Item {
	out := make([]Item, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Item{ID: pairs[i].(string), Partition: partition, Position: pairs[i+1].(int)})
	}
	return out
}

func fresh(id, partition string) Item {
	return Item{ID: id, Partition: partition, Position: Unpositioned}
}

func TestInsert(t *testing.T) {
	tests := []struct {
		name      string
		snapshot  []Item
		item      Item
		prior     *Item
		placement Placement
		want      Plan
	}{
		{
			name:     "first item ever",
			snapshot: nil,
			item:     fresh("x", "u"),
			want:     Plan{{ID: "x", From: -1, To: 0}},
		},
		{
			name:     "after shifts the tail",
			snapshot: items("u", "a", 0, "b", 1, "c", 2),
			item:     fresh("x", "u"),
			prior:    &Item{ID: "a", Partition: "u", Position: 0},
			want: Plan{
				{ID: "b", From: 1, To: 2},
				{ID: "c", From: 2, To: 3},
				{ID: "x", From: -1, To: 1},
			},
		},
		{
			name:     "after the last item touches nothing else",
			snapshot: items("u", "a", 0, "b", 1),
			item:     fresh("x", "u"),
			prior:    &Item{ID: "b", Partition: "u", Position: 1},
			want:     Plan{{ID: "x", From: -1, To: 2}},
		},
		{
			name:      "before uses prior minus one",
			snapshot:  items("u", "a", 0, "b", 1, "c", 2),
			item:      fresh("x", "u"),
			prior:     &Item{ID: "c", Partition: "u", Position: 2},
			placement: Before,
			want: Plan{
				{ID: "b", From: 1, To: 2},
				{ID: "c", From: 2, To: 3},
				{ID: "x", From: -1, To: 1},
			},
		},
		{
			name:      "before clamps at zero",
			snapshot:  items("u", "a", 0, "b", 1),
			item:      fresh("x", "u"),
			prior:     &Item{ID: "a", Partition: "u", Position: 0},
			placement: Before,
			want: Plan{
				{ID: "a", From: 0, To: 1},
				{ID: "b", From: 1, To: 2},
				{ID: "x", From: -1, To: 0},
			},
		},
		{
			name:     "gaps are packed behind the target",
			snapshot: items("u", "a", 0, "b", 5, "c", 9),
			item:     fresh("x", "u"),
			prior:    &Item{ID: "a", Partition: "u", Position: 0},
			want: Plan{
				{ID: "b", From: 5, To: 2},
				{ID: "c", From: 9, To: 3},
				{ID: "x", From: -1, To: 1},
			},
		},
		{
			name:     "unchanged siblings are not written",
			snapshot: items("u", "a", 0, "b", 2, "c", 3),
			item:     fresh("x", "u"),
			prior:    &Item{ID: "a", Partition: "u", Position: 0},
			want:     Plan{{ID: "x", From: -1, To: 1}},
		},
		{
			name:     "moving an existing item skips itself",
			snapshot: items("u", "a", 0, "b", 1, "c", 2, "d", 3),
			item:     Item{ID: "b", Partition: "u", Position: 1},
			prior:    &Item{ID: "c", Partition: "u", Position: 2},
			want: Plan{
				{ID: "d", From: 3, To: 4},
				{ID: "b", From: 1, To: 3},
			},
		},
		{
			name:      "head ignores prior",
			snapshot:  items("u", "a", 0, "b", 1),
			item:      fresh("x", "u"),
			prior:     &Item{ID: "b", Partition: "u", Position: 1},
			placement: Head,
			want: Plan{
				{ID: "a", From: 0, To: 1},
				{ID: "b", From: 1, To: 2},
				{ID: "x", From: -1, To: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Insert(tt.snapshot, tt.item, tt.prior, tt.placement)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Insert() plan mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInsertIgnoresOtherPartitions(t *testing.T) {
	snapshot := append(items("u", "a", 0, "b", 1), items("v", "p", 0, "q", 1, "r", 2)...)

	plan, err := Insert(snapshot, fresh("x", "u"), &snapshot[0], After)
	require.NoError(t, err)

	for _, a := range plan {
		assert.NotContains(t, []string{"p", "q", "r"}, a.ID, "partition v must not be touched")
	}
	assert.Equal(t, map[string]int{"b": 2, "x": 1}, plan.Positions())
}

func TestInsertPartitionMismatch(t *testing.T) {
	snapshot := append(items("u", "a", 0), items("v", "p", 0)...)

	plan, err := Insert(snapshot, fresh("x", "u"), &snapshot[1], After)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPartitionMismatch))
	assert.Nil(t, plan)
	assert.Contains(t, err.Error(), `"v"`)
}

func TestInsertAtHead(t *testing.T) {
	snapshot := append(items("u", "a", 0, "b", 1, "c", 3), items("v", "p", 0)...)

	got := InsertAtHead(snapshot, fresh("x", "u"))
	want := Plan{
		{ID: "a", From: 0, To: 1},
		{ID: "b", From: 1, To: 2},
		{ID: "c", From: 3, To: 4},
		{ID: "x", From: -1, To: 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("InsertAtHead() mismatch (-want +got):\n%s", diff)
	}

	empty := InsertAtHead(nil, fresh("x", "u"))
	assert.Equal(t, Plan{{ID: "x", From: -1, To: 0}}, empty)
}

func TestReorder(t *testing.T) {
	snapshot := append(items("u", "c", 10, "a", 3, "b", 7), items("v", "z", 5)...)

	plan := Reorder(snapshot, "u")
	want := Plan{
		{ID: "a", From: 3, To: 0},
		{ID: "b", From: 7, To: 1},
		{ID: "c", From: 10, To: 2},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Fatalf("Reorder() mismatch (-want +got):\n%s", diff)
	}

	applied := Apply(snapshot, plan, "u")
	assert.True(t, Reorder(applied, "u").Empty(), "second reorder must not write")
	assert.False(t, Reorder(applied, "v").Empty(), "partition v keeps its gap")
}

func TestReorderDenseIsNoop(t *testing.T) {
	assert.Empty(t, Reorder(items("u", "a", 0, "b", 1, "c", 2), "u"))
	assert.Empty(t, Reorder(nil, "u"))
}

// TestInsertKeepsPositionsUnique drives long random insertion sequences and
// checks the applied timeline against a plain slice model after every step.
func TestInsertKeepsPositionsUnique(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		var snapshot []Item
		var order []string

		for n := 0; n < 40; n++ {
			item := fresh(fmt.Sprintf("c%d", n), "u")

			var prior *Item
			placement := After
			target := 0
			if len(order) > 0 {
				p := rng.Intn(len(order))
				for i := range snapshot {
					if snapshot[i].ID == order[p] {
						it := snapshot[i]
						prior = &it
					}
				}
				if rng.Intn(2) == 1 {
					placement = Before
					target = max(p-1, 0)
				} else {
					target = p + 1
				}
			}

			plan, err := Insert(snapshot, item, prior, placement)
			require.NoError(t, err)
			snapshot = Apply(snapshot, plan, "u")

			order = append(order, "")
			copy(order[target+1:], order[target:])
			order[target] = item.ID

			seen := make(map[int]string, len(snapshot))
			for _, it := range snapshot {
				other, dup := seen[it.Position]
				require.False(t, dup, "round %d step %d: %s and %s share position %d", round, n, it.ID, other, it.Position)
				seen[it.Position] = it.ID
			}
			for pos, id := range order {
				require.Equal(t, id, seen[pos], "round %d step %d: position %d", round, n, pos)
			}
		}
	}
}

func TestApplyAppendsUnknownItems(t *testing.T) {
	snapshot := items("u", "a", 0)
	got := Apply(snapshot, Plan{{ID: "a", From: 0, To: 1}, {ID: "x", From: -1, To: 0}}, "u")

	assert.Equal(t, []Item{
		{ID: "a", Partition: "u", Position: 1},
		{ID: "x", Partition: "u", Position: 0},
	}, got)
	assert.Equal(t, 0, snapshot[0].Position, "input snapshot must not be mutated")
}

func TestParsePlacement(t *testing.T) {
	for in, want := range map[string]Placement{"": After, "after": After, "before": Before, "head": Head, "first": Head} {
		got, err := ParsePlacement(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParsePlacement("sideways")
	assert.Error(t, err)
}
