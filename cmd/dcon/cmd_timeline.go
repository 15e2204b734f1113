package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"dcon/cmd/dcon/ui"
	"dcon/internal/markup"
	"dcon/internal/store"
	"dcon/internal/timeline"

	"github.com/spf13/cobra"
)

var (
	tlUniverse    string
	tlTitle       string
	tlDescription string
	tlComment     string
	tlCommentFile string
	tlFilename    string
	tlPublishAt   string
	tlPrior       string
	tlPlacement   string
	tlAll         bool
	tlPublished   bool
)

// timeLayouts are accepted by --at, in local time unless the value says otherwise.
var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"}

const displayTime = "2006-01-02 15:04"

// timelineCmd groups the timeline commands
var timelineCmd = &cobra.Command{
	Use:     "timeline",
	Aliases: []string{"tl"},
	Short:   "Manage comic timelines",
	Long: `Adds, moves, and lists comics in a universe's timeline.

--prior and --placement choose where a comic goes:
  --prior ID                     at position(ID)+1, shifting later comics up
  --prior ID --placement before  at max(position(ID)-1, 0), shifting the
                                 comics from that slot on up. With no gap
                                 this lands before the comic preceding ID.
  --placement head               at position 0, every other comic moves up

A comic added without --prior to a non-empty universe goes to the head.`,
}

var timelineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a universe's comics in order",
	RunE:  runTimelineList,
}

var timelineAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a comic to a universe",
	Example: `  dcon timeline add --universe dcon --title "First strip"
  dcon timeline add --universe dcon --title "Filler" --prior 2f1c...
  dcon timeline add --title "Friday" --at "2026-11-06 09:00"`,
	RunE: runTimelineAdd,
}

var timelineMoveCmd = &cobra.Command{
	Use:   "move [comic-id]",
	Short: "Move a comic within its universe",
	Args:  cobra.ExactArgs(1),
	RunE:  runTimelineMove,
}

var timelineRemoveCmd = &cobra.Command{
	Use:     "remove [comic-id]",
	Aliases: []string{"rm"},
	Short:   "Remove a comic, leaving a gap",
	Args:    cobra.ExactArgs(1),
	RunE:    runTimelineRemove,
}

var timelineReorderCmd = &cobra.Command{
	Use:   "reorder",
	Short: "Compact a universe's positions to 0..N-1",
	RunE:  runTimelineReorder,
}

var timelineSlotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "List the places a new comic can be inserted",
	RunE:  runTimelineSlots,
}

var timelineShowCmd = &cobra.Command{
	Use:   "show [comic-id]",
	Short: "Show a comic with its rendered commentary and navigation",
	Args:  cobra.ExactArgs(1),
	RunE:  runTimelineShow,
}

func init() {
	timelineCmd.PersistentFlags().StringVarP(&tlUniverse, "universe", "u", "dcon", "Universe (timeline partition)")

	timelineListCmd.Flags().BoolVarP(&tlAll, "all", "a", false, "List every universe")
	timelineListCmd.Flags().BoolVarP(&tlPublished, "published", "p", false, "Hide comics scheduled for later")

	timelineAddCmd.Flags().StringVarP(&tlTitle, "title", "t", "", "Comic title")
	timelineAddCmd.Flags().StringVarP(&tlDescription, "description", "d", "", "Alt text for the image")
	timelineAddCmd.Flags().StringVarP(&tlComment, "comment", "m", "", "Commentary markup")
	timelineAddCmd.Flags().StringVarP(&tlCommentFile, "comment-file", "f", "", "Read commentary markup from a file")
	timelineAddCmd.Flags().StringVar(&tlFilename, "file", "", "Image file for the comic page")
	timelineAddCmd.Flags().StringVar(&tlPublishAt, "at", "", "Publish time (RFC 3339 or 2006-01-02 15:04); default now")
	_ = timelineAddCmd.MarkFlagRequired("title")
	timelineAddCmd.MarkFlagsMutuallyExclusive("comment", "comment-file")

	for _, c := range []*cobra.Command{timelineAddCmd, timelineMoveCmd} {
		c.Flags().StringVar(&tlPrior, "prior", "", "Comic to place relative to")
		c.Flags().StringVar(&tlPlacement, "placement", "after", "after, before, or head")
	}

	timelineCmd.AddCommand(
		timelineListCmd,
		timelineAddCmd,
		timelineMoveCmd,
		timelineRemoveCmd,
		timelineReorderCmd,
		timelineSlotsCmd,
		timelineShowCmd,
	)
}

// placementFromFlags converts --prior and --placement into the store's
// prior ID and placement.
func placementFromFlags() (string, timeline.Placement, error) {
	placement, err := timeline.ParsePlacement(tlPlacement)
	if err != nil {
		return "", placement, err
	}
	switch {
	case placement == timeline.Head:
		return "", timeline.Head, nil
	case placement == timeline.Before && tlPrior == "":
		return "", placement, fmt.Errorf("--placement before needs --prior")
	}
	return tlPrior, placement, nil
}

// parsePublishAt parses --at. An empty value publishes immediately.
func parsePublishAt(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse publish time %q", value)
}

func publishStatus(c store.Comic, now time.Time) string {
	if c.Published(now) {
		return ""
	}
	return "scheduled " + c.PublishAt.Local().Format(displayTime)
}

func runTimelineList(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	universes := []string{tlUniverse}
	if tlAll {
		if universes, err = s.Universes(ctx); err != nil {
			return err
		}
		if len(universes) == 0 {
			fmt.Fprintln(out, "No comics yet.")
			return nil
		}
	}

	now := time.Now()
	styles := ui.DefaultStyles()
	excerpt := currentConfig().Markup.ExcerptLength
	for _, u := range universes {
		var comics []store.Comic
		if tlPublished {
			comics, err = s.PublishedComics(ctx, u, now)
		} else {
			comics, err = s.Comics(ctx, u)
		}
		if err != nil {
			return err
		}
		tbl := ui.NewTable(fmt.Sprintf("Universe %s", u), "Pos", "ID", "Title", "Commentary", "Status")
		tbl.Empty = "No comics yet."
		for _, c := range comics {
			tbl.AddRow(strconv.Itoa(c.Position), c.ID, c.Title, markup.Excerpt(c.Comment, excerpt), publishStatus(c, now))
		}
		fmt.Fprint(out, tbl.View(styles))
	}
	return nil
}

func runTimelineAdd(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	comment := tlComment
	if tlCommentFile != "" {
		data, err := os.ReadFile(tlCommentFile)
		if err != nil {
			return fmt.Errorf("failed to read comment file: %w", err)
		}
		comment = string(data)
	}
	publishAt, err := parsePublishAt(tlPublishAt)
	if err != nil {
		return err
	}
	priorID, placement, err := placementFromFlags()
	if err != nil {
		return err
	}

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	comic, plan, err := s.AddComic(ctx, store.NewComic{
		Universe:    tlUniverse,
		Title:       tlTitle,
		Description: tlDescription,
		Comment:     comment,
		Filename:    tlFilename,
		PublishAt:   publishAt,
	}, priorID, placement)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Added %s %q at position %d (%d position writes)\n", comic.ID, comic.Title, comic.Position, len(plan))
	if status := publishStatus(comic, time.Now()); status != "" {
		fmt.Fprintf(out, "Comic is %s\n", status)
	}
	return nil
}

func runTimelineMove(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	priorID, placement, err := placementFromFlags()
	if err != nil {
		return err
	}

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	plan, err := s.MoveComic(ctx, args[0], priorID, placement)
	if err != nil {
		return err
	}

	to := plan.Positions()[args[0]]
	fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to position %d (%d position writes)\n", args[0], to, len(plan))
	return nil
}

func runTimelineRemove(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteComic(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
	return nil
}

func runTimelineReorder(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	plan, err := s.Reorder(ctx, tlUniverse)
	if err != nil {
		return err
	}
	if plan.Empty() {
		fmt.Fprintf(cmd.OutOrStdout(), "Universe %s is already compact\n", tlUniverse)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reordered %s (%d position writes)\n", tlUniverse, len(plan))
	return nil
}

func runTimelineSlots(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	slots, err := s.Slots(ctx, tlUniverse)
	if err != nil {
		return err
	}

	tbl := ui.NewTable(fmt.Sprintf("Insertion points in %s", tlUniverse), "Slot", "Flags")
	for _, slot := range slots {
		flags := "--placement " + slot.Placement.String()
		if slot.PriorID != "" {
			flags = "--prior " + slot.PriorID + " " + flags
		}
		tbl.AddRow(slot.Label, flags)
	}
	fmt.Fprint(cmd.OutOrStdout(), tbl.View(ui.DefaultStyles()))
	return nil
}

func runTimelineShow(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	now := time.Now()
	comic, err := s.Comic(ctx, args[0])
	if err != nil {
		return err
	}
	nav, err := s.Navigation(ctx, comic.ID, now)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	styles := ui.DefaultStyles()
	r := markup.New(currentConfig().RendererOptions(false))

	fmt.Fprintln(out, styles.Title.Render(comic.Title))
	fmt.Fprintln(out, styles.Muted.Render(fmt.Sprintf("%s  universe %s  position %d  added %s",
		comic.ID, comic.Universe, comic.Position, comic.CreatedAt.Local().Format(displayTime))))
	if status := publishStatus(comic, now); status != "" {
		fmt.Fprintln(out, styles.Muted.Render(status))
	}
	if comic.Filename != "" {
		fmt.Fprintln(out, styles.Muted.Render("file "+comic.Filename))
	}
	if comic.Description != "" {
		fmt.Fprintln(out, styles.Muted.Render("alt "+comic.Description))
	}
	fmt.Fprintln(out, ui.Divider(styles, 40))
	fmt.Fprintln(out, r.Render(comic.Comment))
	fmt.Fprintln(out, ui.Divider(styles, 40))
	printNavigation(out, nav)
	return nil
}

func printNavigation(out io.Writer, nav store.Navigation) {
	for _, row := range []struct {
		label string
		comic *store.Comic
	}{
		{"First", nav.First},
		{"Previous", nav.Prev},
		{"Next", nav.Next},
		{"Last", nav.Last},
	} {
		fmt.Fprintf(out, "%-9s %s\n", row.label+":", describeComic(row.comic))
	}
}

func describeComic(c *store.Comic) string {
	if c == nil {
		return "none"
	}
	return fmt.Sprintf("%s %q", c.ID, c.Title)
}
