package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"dcon/internal/timeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var drivers = []string{"sqlite3", "sqlite"}

func openMemory(t *testing.T, driver string) *Store {
	t.Helper()
	s, err := Open(context.Background(), driver, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func titles(comics []Comic) []string {
	out := make([]string, len(comics))
	for i, c := range comics {
		out[i] = c.Title
	}
	return out
}

func positions(comics []Comic) []int {
	out := make([]int, len(comics))
	for i, c := range comics {
		out[i] = c.Position
	}
	return out
}

func TestAddComic(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			s := openMemory(t, driver)

			first, plan, err := s.AddComic(ctx, NewComic{Universe: "dcon", Title: "one"}, "", timeline.After)
			require.NoError(t, err)
			assert.Equal(t, 0, first.Position)
			assert.Len(t, plan, 1)

			third, _, err := s.AddComic(ctx, NewComic{Universe: "dcon", Title: "three"}, first.ID, timeline.After)
			require.NoError(t, err)
			assert.Equal(t, 1, third.Position)

			_, plan, err = s.AddComic(ctx, NewComic{Universe: "dcon", Title: "two"}, first.ID, timeline.After)
			require.NoError(t, err)
			assert.Equal(t, map[string]int{third.ID: 2, plan[len(plan)-1].ID: 1}, plan.Positions())

			_, _, err = s.AddComic(ctx, NewComic{Universe: "dcon", Title: "zero"}, "", timeline.After)
			require.NoError(t, err)

			comics, err := s.Comics(ctx, "dcon")
			require.NoError(t, err)
			assert.Equal(t, []string{"zero", "one", "two", "three"}, titles(comics))
			assert.Equal(t, []int{0, 1, 2, 3}, positions(comics))

			got, err := s.Comic(ctx, first.ID)
			require.NoError(t, err)
			assert.Equal(t, "one", got.Title)
			assert.True(t, first.CreatedAt.Equal(got.CreatedAt))
		})
	}
}

func TestAddComicPartitionMismatch(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t, "sqlite3")

	other, _, err := s.AddComic(ctx, NewComic{Universe: "other", Title: "x"}, "", timeline.After)
	require.NoError(t, err)
	_, _, err = s.AddComic(ctx, NewComic{Universe: "dcon", Title: "a"}, "", timeline.After)
	require.NoError(t, err)

	_, _, err = s.AddComic(ctx, NewComic{Universe: "dcon", Title: "bad"}, other.ID, timeline.After)
	require.Error(t, err)
	assert.True(t, errors.Is(err, timeline.ErrPartitionMismatch))

	comics, err := s.Comics(ctx, "dcon")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, titles(comics), "rejected insert must not write")
}

func TestMoveComicPartitionMismatch(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t, "sqlite")

	other, _, err := s.AddComic(ctx, NewComic{Universe: "other", Title: "x"}, "", timeline.After)
	require.NoError(t, err)
	a, _, err := s.AddComic(ctx, NewComic{Universe: "dcon", Title: "a"}, "", timeline.After)
	require.NoError(t, err)
	b, _, err := s.AddComic(ctx, NewComic{Universe: "dcon", Title: "b"}, a.ID, timeline.After)
	require.NoError(t, err)

	_, err = s.MoveComic(ctx, a.ID, other.ID, timeline.After)
	require.Error(t, err)
	assert.True(t, errors.Is(err, timeline.ErrPartitionMismatch))

	comics, err := s.Comics(ctx, "dcon")
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, []string{comics[0].ID, comics[1].ID})
	assert.Equal(t, []int{0, 1}, positions(comics), "rejected move must not write")

	comics, err = s.Comics(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, positions(comics))
}

func TestAddComicUnknownPrior(t *testing.T) {
	s := openMemory(t, "sqlite3")
	_, _, err := s.AddComic(context.Background(), NewComic{Universe: "dcon", Title: "a"}, "nope", timeline.After)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMoveDeleteReorder(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			s := openMemory(t, driver)

			var ids []string
			prior := ""
			for _, title := range []string{"a", "b", "c", "d"} {
				c, _, err := s.AddComic(ctx, NewComic{Universe: "u", Title: title}, prior, timeline.After)
				require.NoError(t, err)
				ids = append(ids, c.ID)
				prior = c.ID
			}

			_, err := s.MoveComic(ctx, ids[1], ids[2], timeline.After)
			require.NoError(t, err)
			comics, err := s.Comics(ctx, "u")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "c", "b", "d"}, titles(comics))
			assert.Equal(t, []int{0, 2, 3, 4}, positions(comics))

			_, err = s.MoveComic(ctx, ids[3], "", timeline.After)
			require.NoError(t, err)
			comics, err = s.Comics(ctx, "u")
			require.NoError(t, err)
			assert.Equal(t, []string{"d", "a", "c", "b"}, titles(comics))

			require.NoError(t, s.DeleteComic(ctx, ids[0]))
			assert.True(t, errors.Is(s.DeleteComic(ctx, ids[0]), ErrNotFound))

			plan, err := s.Reorder(ctx, "u")
			require.NoError(t, err)
			assert.NotEmpty(t, plan)
			comics, err = s.Comics(ctx, "u")
			require.NoError(t, err)
			assert.Equal(t, []string{"d", "c", "b"}, titles(comics))
			assert.Equal(t, []int{0, 1, 2}, positions(comics))

			plan, err = s.Reorder(ctx, "u")
			require.NoError(t, err)
			assert.Empty(t, plan, "second reorder must not write")
		})
	}
}

func TestMoveComicRelativeToItself(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t, "sqlite3")
	c, _, err := s.AddComic(ctx, NewComic{Universe: "u", Title: "a"}, "", timeline.After)
	require.NoError(t, err)

	_, err = s.MoveComic(ctx, c.ID, c.ID, timeline.After)
	assert.Error(t, err)
}

func TestNavigationAndSlots(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t, "sqlite3")

	slots, err := s.Slots(ctx, "u")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, timeline.Head, slots[0].Placement)

	a, _, err := s.AddComic(ctx, NewComic{Universe: "u", Title: "Alpha"}, "", timeline.After)
	require.NoError(t, err)
	b, _, err := s.AddComic(ctx, NewComic{Universe: "u", Title: "Beta"}, a.ID, timeline.After)
	require.NoError(t, err)

	nav, err := s.Navigation(ctx, a.ID, time.Now())
	require.NoError(t, err)
	assert.Nil(t, nav.First)
	assert.Nil(t, nav.Prev)
	require.NotNil(t, nav.Next)
	assert.Equal(t, b.ID, nav.Next.ID)
	require.NotNil(t, nav.Last)
	assert.Equal(t, b.ID, nav.Last.ID)

	slots, err = s.Slots(ctx, "u")
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, `"Alpha" (0) to "Beta" (1)`, slots[1].Label)
	assert.Equal(t, a.ID, slots[1].PriorID)

	universes, err := s.Universes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u"}, universes)

	_, err = s.Navigation(ctx, "missing", time.Now())
	assert.True(t, errors.Is(err, ErrNotFound))
}

// TestRandomMovesKeepPositionsUnique exercises the two-phase writes against
// the unique (universe, position) index.
func TestRandomMovesKeepPositionsUnique(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t, "sqlite")
	rng := rand.New(rand.NewSource(3))

	var ids []string
	for i := 0; i < 12; i++ {
		prior := ""
		if len(ids) > 0 {
			prior = ids[rng.Intn(len(ids))]
		}
		placement := timeline.Placement(rng.Intn(2))
		c, _, err := s.AddComic(ctx, NewComic{Universe: "u", Title: fmt.Sprint(i)}, prior, placement)
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	for i := 0; i < 30; i++ {
		id := ids[rng.Intn(len(ids))]
		prior := ids[rng.Intn(len(ids))]
		if prior == id {
			continue
		}
		_, err := s.MoveComic(ctx, id, prior, timeline.Placement(rng.Intn(3)))
		require.NoError(t, err)
	}

	comics, err := s.Comics(ctx, "u")
	require.NoError(t, err)
	require.Len(t, comics, len(ids))
	for i := 1; i < len(comics); i++ {
		assert.Less(t, comics[i-1].Position, comics[i].Position)
	}
}

func TestReopenPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "dcon.db")

	s, err := Open(ctx, "sqlite3", path)
	require.NoError(t, err)
	c, _, err := s.AddComic(ctx, NewComic{Universe: "u", Title: "kept", Comment: "**hi**"}, "", timeline.After)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(ctx, "sqlite3", path)
	require.NoError(t, err)
	defer s2.Close()
	assert.Equal(t, path, s2.Path())

	got, err := s2.Comic(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "**hi**", got.Comment)
}

func TestScheduledPublishing(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t, "sqlite3")
	now := time.Now()

	first, _, err := s.AddComic(ctx, NewComic{Universe: "u", Title: "first"}, "", timeline.After)
	require.NoError(t, err)
	assert.True(t, first.Published(now.Add(time.Second)))

	mid, _, err := s.AddComic(ctx, NewComic{Universe: "u", Title: "mid"}, first.ID, timeline.After)
	require.NoError(t, err)
	future := now.Add(24 * time.Hour).UTC().Truncate(time.Microsecond)
	scheduled, _, err := s.AddComic(ctx, NewComic{
		Universe:    "u",
		Title:       "scheduled",
		Description: "a cat, falling",
		PublishAt:   future,
	}, mid.ID, timeline.After)
	require.NoError(t, err)

	got, err := s.Comic(ctx, scheduled.ID)
	require.NoError(t, err)
	assert.True(t, future.Equal(got.PublishAt))
	assert.Equal(t, "a cat, falling", got.Description)
	assert.False(t, got.Published(now))

	published, err := s.PublishedComics(ctx, "u", now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "mid"}, titles(published))

	all, err := s.Comics(ctx, "u")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	nav, err := s.Navigation(ctx, first.ID, now.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, nav.Last)
	assert.Equal(t, mid.ID, nav.Last.ID, "scheduled comics are hidden from navigation")

	nav, err = s.Navigation(ctx, first.ID, future.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, nav.Last)
	assert.Equal(t, scheduled.ID, nav.Last.ID)

	nav, err = s.Navigation(ctx, scheduled.ID, now.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, nav.First)
	assert.Equal(t, first.ID, nav.First.ID)
	assert.Equal(t, mid.ID, nav.Prev.ID)
	assert.Nil(t, nav.Next)
}

func TestVerifyPlanRejectsDrift(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t, "sqlite3")

	a, _, err := s.AddComic(ctx, NewComic{Universe: "u", Title: "a"}, "", timeline.After)
	require.NoError(t, err)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		before, err := snapshot(ctx, tx, "u")
		if err != nil {
			return err
		}
		plan := timeline.Plan{{ID: a.ID, From: 0, To: 5}}
		return verifyPlan(ctx, tx, "u", before, plan)
	})
	assert.ErrorContains(t, err, "expected 5")
}
