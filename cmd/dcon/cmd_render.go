package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dcon/internal/config"
	"dcon/internal/logging"
	"dcon/internal/markup"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// slowRender is the renderAll duration logged as a warning.
const slowRender = 2 * time.Second

var (
	renderSafe     bool
	renderOutDir   string
	renderWatch    bool
	renderLFBreaks bool
	renderJobs     int
)

// renderCmd renders blog markup to HTML
var renderCmd = &cobra.Command{
	Use:   "render [files...]",
	Short: "Render blog markup to HTML",
	Long: `Renders commentary markup into an HTML fragment.

Markup:
  **bold**   *italics*   _underline_
  CRLF is a line break, CRLF CRLF starts a new paragraph, and a line
  beginning with '>' is greentext.

With no files the markup is read from stdin. With --out each file is written
to <dir>/<name>.html; otherwise the HTML is printed.

Examples:
  dcon render post.txt
  dcon render --safe --lf comments/*.txt --out public/
  dcon render --watch --out public/ news.txt`,
	RunE: runRender,
}

func init() {
	renderCmd.Flags().BoolVar(&renderSafe, "safe", false, "Escape HTML in the input (untrusted text)")
	renderCmd.Flags().StringVarP(&renderOutDir, "out", "o", "", "Directory to write .html files into")
	renderCmd.Flags().BoolVarP(&renderWatch, "watch", "w", false, "Re-render files when they change")
	renderCmd.Flags().BoolVar(&renderLFBreaks, "lf", false, "Treat bare LF line endings as CRLF")
	renderCmd.Flags().IntVarP(&renderJobs, "jobs", "j", 4, "Files rendered concurrently")
}

// currentConfig returns the loaded configuration or the defaults.
func currentConfig() *config.Config {
	if cfg == nil {
		return config.DefaultConfig()
	}
	return cfg
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	r := markup.New(currentConfig().RendererOptions(renderSafe))

	if len(args) == 0 {
		if renderWatch {
			return fmt.Errorf("--watch needs at least one file")
		}
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), r.Render(prepareInput(string(data))))
		return nil
	}

	if err := renderAll(ctx, r, args, renderOutDir, cmd.OutOrStdout()); err != nil {
		return err
	}
	if !renderWatch {
		return nil
	}

	w, err := NewRenderWatcher(args, func(path string) error {
		return renderAll(ctx, r, []string{path}, renderOutDir, cmd.OutOrStdout())
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %d file(s), press Ctrl+C to stop\n", len(args))
	<-ctx.Done()
	w.Stop()
	return nil
}

// renderedFile is one file's output.
type renderedFile struct {
	Source string
	Target string
	HTML   string
}

// renderAll renders paths concurrently. Output is written to outDir when it
// is set and printed to out otherwise, in argument order.
func renderAll(ctx context.Context, r *markup.Renderer, paths []string, outDir string, out io.Writer) error {
	timer := logging.StartTimer(logging.CategoryMarkup, "renderAll")
	defer timer.StopWithThreshold(slowRender)

	targets, err := outputTargets(paths, outDir)
	if err != nil {
		return err
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	results := make([]renderedFile, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if renderJobs > 0 {
		g.SetLimit(renderJobs)
	}
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := renderFile(r, path, targets[i])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logging.Markup("rendered %d file(s), safe=%t", len(paths), r.Options().Safe)

	for _, res := range results {
		if res.Target != "" {
			if logger != nil {
				logger.Info("rendered", zap.String("source", res.Source), zap.String("target", res.Target))
			}
			fmt.Fprintf(out, "%s -> %s\n", res.Source, res.Target)
			continue
		}
		if len(paths) > 1 {
			fmt.Fprintf(out, "<!-- %s -->\n", res.Source)
		}
		fmt.Fprintln(out, res.HTML)
	}
	return nil
}

// outputTargets maps each source to its .html file in outDir. Two sources
// that would write the same file are an error. With no outDir every target
// is empty.
func outputTargets(paths []string, outDir string) ([]string, error) {
	targets := make([]string, len(paths))
	if outDir == "" {
		return targets, nil
	}
	owners := make(map[string]string, len(paths))
	for i, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".html"
		target := filepath.Join(outDir, name)
		if prev, ok := owners[target]; ok {
			return nil, fmt.Errorf("%s and %s both render to %s", prev, path, target)
		}
		owners[target] = path
		targets[i] = target
	}
	return targets, nil
}

func renderFile(r *markup.Renderer, path, target string) (renderedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return renderedFile{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	res := renderedFile{Source: path, HTML: r.Render(prepareInput(string(data)))}
	logging.MarkupDebug("rendered %s (%d bytes in, %d out)", path, len(data), len(res.HTML))

	if target == "" {
		return res, nil
	}
	res.Target = target
	if err := os.WriteFile(target, []byte(res.HTML+"\n"), 0644); err != nil {
		return renderedFile{}, fmt.Errorf("failed to write %s: %w", target, err)
	}
	return res, nil
}

// prepareInput applies the --lf conversion. The file's final newline is
// dropped so it does not render as a trailing break.
func prepareInput(text string) string {
	if !renderLFBreaks {
		return text
	}
	text = strings.TrimRight(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	return strings.ReplaceAll(text, "\n", "\r\n")
}
