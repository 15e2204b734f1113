package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dcon/internal/logging"
	"dcon/internal/timeline"

	"github.com/google/uuid"
)

// Comic is one stored timeline entry.
type Comic struct {
	ID          string
	Universe    string
	Title       string
	Description string // alt text for the image
	Comment     string
	Filename    string
	Position    int
	CreatedAt   time.Time
	PublishAt   time.Time
}

// Item projects the comic onto the timeline engine's view.
func (c Comic) Item() timeline.Item {
	return timeline.Item{ID: c.ID, Partition: c.Universe, Position: c.Position}
}

// Published reports whether the comic is visible at now. Comics scheduled
// for the future do not exist for readers until their publish time arrives.
func (c Comic) Published(now time.Time) bool {
	return !c.PublishAt.After(now)
}

// NewComic carries the fields of a comic that has not been stored yet.
// A zero PublishAt publishes the comic immediately.
type NewComic struct {
	Universe    string
	Title       string
	Description string
	Comment     string
	Filename    string
	PublishAt   time.Time
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const comicColumns = "id, universe, title, description, comment, filename, position, created_at, publish_at"

func scanComic(row interface{ Scan(...any) error }) (Comic, error) {
	var c Comic
	var created, publish int64
	if err := row.Scan(&c.ID, &c.Universe, &c.Title, &c.Description, &c.Comment, &c.Filename,
		&c.Position, &created, &publish); err != nil {
		return Comic{}, err
	}
	c.CreatedAt = time.UnixMicro(created).UTC()
	c.PublishAt = time.UnixMicro(publish).UTC()
	return c, nil
}

func getComic(ctx context.Context, q querier, id string) (Comic, error) {
	row := q.QueryRowContext(ctx, "SELECT "+comicColumns+" FROM comics WHERE id = ?", id)
	c, err := scanComic(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Comic{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Comic{}, fmt.Errorf("failed to load comic %s: %w", id, err)
	}
	return c, nil
}

func listComics(ctx context.Context, q querier, universe string) ([]Comic, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+comicColumns+" FROM comics WHERE universe = ? ORDER BY position", universe)
	if err != nil {
		return nil, fmt.Errorf("failed to list comics: %w", err)
	}
	defer rows.Close()

	var out []Comic
	for rows.Next() {
		c, err := scanComic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comic: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func items(comics []Comic) []timeline.Item {
	out := make([]timeline.Item, len(comics))
	for i, c := range comics {
		out[i] = c.Item()
	}
	return out
}

func snapshot(ctx context.Context, q querier, universe string) ([]timeline.Item, error) {
	comics, err := listComics(ctx, q, universe)
	if err != nil {
		return nil, err
	}
	return items(comics), nil
}

// applyPlan writes plan in two phases. Every planned row first moves to a
// distinct negative slot, then to its target, so the unique (universe,
// position) index never sees a transient duplicate.
func applyPlan(ctx context.Context, tx *sql.Tx, plan timeline.Plan) error {
	if plan.Empty() {
		return nil
	}
	log := logging.Get(logging.CategoryTimeline)
	for _, a := range plan {
		log.Debug("%s: %d -> %d", a.ID, a.From, a.To)
	}

	stmt, err := tx.PrepareContext(ctx, "UPDATE comics SET position = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare position update: %w", err)
	}
	defer stmt.Close()

	for i, a := range plan {
		if _, err := stmt.ExecContext(ctx, -(i + 1), a.ID); err != nil {
			return fmt.Errorf("failed to park comic %s: %w", a.ID, err)
		}
	}
	for _, a := range plan {
		if _, err := stmt.ExecContext(ctx, a.To, a.ID); err != nil {
			return fmt.Errorf("failed to move comic %s to %d: %w", a.ID, a.To, err)
		}
	}
	return nil
}

// verifyPlan reloads the universe inside tx and checks that every row holds
// the position the plan predicts for it.
func verifyPlan(ctx context.Context, tx *sql.Tx, universe string, before []timeline.Item, plan timeline.Plan) error {
	want := make(map[string]int)
	for _, it := range timeline.Apply(before, plan, universe) {
		want[it.ID] = it.Position
	}

	got, err := snapshot(ctx, tx, universe)
	if err != nil {
		return err
	}
	if len(got) != len(want) {
		return fmt.Errorf("universe %q holds %d comics after write, expected %d", universe, len(got), len(want))
	}
	for _, it := range got {
		if pos, ok := want[it.ID]; !ok || pos != it.Position {
			return fmt.Errorf("comic %s is at %d after write, expected %d", it.ID, it.Position, pos)
		}
	}
	return nil
}

// resolvePrior loads the reference comic, or returns nil for an empty ID.
func resolvePrior(ctx context.Context, q querier, priorID string) (*timeline.Item, error) {
	if priorID == "" {
		return nil, nil
	}
	prior, err := getComic(ctx, q, priorID)
	if err != nil {
		return nil, err
	}
	item := prior.Item()
	return &item, nil
}

// AddComic stores a new comic next to priorID. An empty priorID on a
// non-empty universe places the comic at the head of the timeline.
func (s *Store) AddComic(ctx context.Context, nc NewComic, priorID string, placement timeline.Placement) (Comic, timeline.Plan, error) {
	timer := logging.StartTimer(logging.CategoryStore, "AddComic")
	defer timer.Stop()

	now := time.Now().UTC().Truncate(time.Microsecond)
	comic := Comic{
		ID:          uuid.NewString(),
		Universe:    nc.Universe,
		Title:       nc.Title,
		Description: nc.Description,
		Comment:     nc.Comment,
		Filename:    nc.Filename,
		CreatedAt:   now,
		PublishAt:   nc.PublishAt.UTC().Truncate(time.Microsecond),
	}
	if nc.PublishAt.IsZero() {
		comic.PublishAt = now
	}

	var plan timeline.Plan
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		before, err := snapshot(ctx, tx, nc.Universe)
		if err != nil {
			return err
		}
		prior, err := resolvePrior(ctx, tx, priorID)
		if err != nil {
			return err
		}
		if prior == nil && len(before) > 0 {
			placement = timeline.Head
		}

		item := timeline.Item{ID: comic.ID, Partition: comic.Universe, Position: timeline.Unpositioned}
		plan, err = timeline.Insert(before, item, prior, placement)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO comics ("+comicColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			comic.ID, comic.Universe, comic.Title, comic.Description, comic.Comment, comic.Filename,
			-(len(plan) + 1), comic.CreatedAt.UnixMicro(), comic.PublishAt.UnixMicro(),
		); err != nil {
			return fmt.Errorf("failed to insert comic: %w", err)
		}
		if err := applyPlan(ctx, tx, plan); err != nil {
			return err
		}
		return verifyPlan(ctx, tx, comic.Universe, before, plan)
	})
	if err != nil {
		return Comic{}, nil, err
	}

	comic.Position = plan.Positions()[comic.ID]
	logging.Get(logging.CategoryStore).With("universe", comic.Universe).
		Info("added comic %s at %d (%d writes)", comic.ID, comic.Position, len(plan))
	return comic, plan, nil
}

// MoveComic repositions an existing comic next to priorID. The comic's old
// slot is left as a gap; Reorder compacts it.
func (s *Store) MoveComic(ctx context.Context, id, priorID string, placement timeline.Placement) (timeline.Plan, error) {
	if id == priorID {
		return nil, fmt.Errorf("cannot move comic %s relative to itself", id)
	}

	var plan timeline.Plan
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		comic, err := getComic(ctx, tx, id)
		if err != nil {
			return err
		}
		before, err := snapshot(ctx, tx, comic.Universe)
		if err != nil {
			return err
		}
		prior, err := resolvePrior(ctx, tx, priorID)
		if err != nil {
			return err
		}
		if prior == nil {
			placement = timeline.Head
		}

		plan, err = timeline.Insert(before, comic.Item(), prior, placement)
		if err != nil {
			return err
		}
		if err := applyPlan(ctx, tx, plan); err != nil {
			return err
		}
		return verifyPlan(ctx, tx, comic.Universe, before, plan)
	})
	if err != nil {
		return nil, err
	}
	logging.Store("moved comic %s (%d writes)", id, len(plan))
	return plan, nil
}

// Reorder compacts a universe's positions to 0..N-1.
func (s *Store) Reorder(ctx context.Context, universe string) (timeline.Plan, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Reorder")
	defer timer.Stop()

	var plan timeline.Plan
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		before, err := snapshot(ctx, tx, universe)
		if err != nil {
			return err
		}
		plan = timeline.Reorder(before, universe)
		if err := applyPlan(ctx, tx, plan); err != nil {
			return err
		}
		return verifyPlan(ctx, tx, universe, before, plan)
	})
	if err != nil {
		return nil, err
	}
	logging.Store("reordered %q (%d writes)", universe, len(plan))
	return plan, nil
}

// DeleteComic removes a comic, leaving a gap in its universe's positions.
func (s *Store) DeleteComic(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM comics WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete comic: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count deleted rows: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

// Comic loads one comic by ID.
func (s *Store) Comic(ctx context.Context, id string) (Comic, error) {
	return getComic(ctx, s.db, id)
}

// Comics lists a universe's comics in timeline order, scheduled ones included.
func (s *Store) Comics(ctx context.Context, universe string) ([]Comic, error) {
	return listComics(ctx, s.db, universe)
}

// PublishedComics lists the comics of a universe that are visible at now.
func (s *Store) PublishedComics(ctx context.Context, universe string, now time.Time) ([]Comic, error) {
	comics, err := listComics(ctx, s.db, universe)
	if err != nil {
		return nil, err
	}
	out := comics[:0]
	for _, c := range comics {
		if c.Published(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Universes lists every universe that has at least one comic.
func (s *Store) Universes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT universe FROM comics ORDER BY universe")
	if err != nil {
		return nil, fmt.Errorf("failed to list universes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Navigation holds the comics a reader can jump to from one comic.
type Navigation struct {
	First *Comic
	Prev  *Comic
	Next  *Comic
	Last  *Comic
}

// Navigation returns the first, previous, next, and last comics around id,
// considering only comics published at now. The comic itself is always
// included so a scheduled comic still gets its surroundings.
func (s *Store) Navigation(ctx context.Context, id string, now time.Time) (Navigation, error) {
	comic, err := s.Comic(ctx, id)
	if err != nil {
		return Navigation{}, err
	}
	comics, err := s.Comics(ctx, comic.Universe)
	if err != nil {
		return Navigation{}, err
	}

	byID := make(map[string]Comic, len(comics))
	visible := make([]Comic, 0, len(comics))
	for _, c := range comics {
		if c.ID == comic.ID || c.Published(now) {
			byID[c.ID] = c
			visible = append(visible, c)
		}
	}

	lookup := func(it *timeline.Item) *Comic {
		if it == nil {
			return nil
		}
		c := byID[it.ID]
		return &c
	}
	nav := timeline.Navigate(items(visible), comic.Item())
	return Navigation{
		First: lookup(nav.First),
		Prev:  lookup(nav.Prev),
		Next:  lookup(nav.Next),
		Last:  lookup(nav.Last),
	}, nil
}

// Slots lists the insertion choices for a universe, labelled the way the
// upload form shows them.
func (s *Store) Slots(ctx context.Context, universe string) ([]timeline.Slot, error) {
	comics, err := s.Comics(ctx, universe)
	if err != nil {
		return nil, err
	}

	titles := make(map[string]string, len(comics))
	for _, c := range comics {
		titles[c.ID] = c.Title
	}
	return timeline.Slots(items(comics), universe, func(it timeline.Item) string {
		return fmt.Sprintf("%q (%d)", titles[it.ID], it.Position)
	}), nil
}
