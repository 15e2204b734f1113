package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dcon/internal/markup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRenderWatcherRerendersChangedFile(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	setupCLI(t)

	dir := t.TempDir()
	target := filepath.Join(dir, "post.txt")
	other := filepath.Join(dir, "other.txt")
	require.NoError(t, os.WriteFile(target, []byte("a"), 0644))

	changed := make(chan string, 16)
	w, err := NewRenderWatcher([]string{target}, func(path string) error {
		changed <- path
		return nil
	})
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Start(ctx), "second start is a no-op")

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0644))
	require.NoError(t, os.WriteFile(target, []byte("**b**"), 0644))

	select {
	case got := <-changed:
		assert.Equal(t, target, got)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for re-render")
	}

	w.Stop()
	w.Stop()
	stats := w.Stats()
	assert.GreaterOrEqual(t, stats.Renders, 1)
	assert.Equal(t, target, stats.LastEventPath)
}

func TestRenderWatcherEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	dir := setupCLI(t)
	renderOutDir = filepath.Join(dir, "out")

	src := filepath.Join(dir, "news.txt")
	require.NoError(t, os.WriteFile(src, []byte("old"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := markup.New(markup.Options{})
	w, err := NewRenderWatcher([]string{src}, func(path string) error {
		return renderAll(ctx, r, []string{path}, renderOutDir, io.Discard)
	})
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(src, []byte("*new*"), 0644))

	target := filepath.Join(renderOutDir, "news.html")
	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(target)
		return err == nil && string(data) == "<p><i>new</i></p>\n"
	}, 5*time.Second, 20*time.Millisecond)
}
