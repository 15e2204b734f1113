package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dcon/cmd/dcon/ui"
	"dcon/internal/config"
	"dcon/internal/logging"
	"dcon/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dotenvPath string

	// Loaded by the root command before any subcommand runs
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dcon",
	Short: "dcon - webcomic timeline and commentary tool",
	Long: `dcon maintains ordered comic timelines and renders the blog markup
used for comic commentary and news posts.

Comics live in universes. Each universe is an independent timeline whose
positions are kept strictly ordered as comics are added and moved.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotenv(dotenvPath); err != nil {
			return err
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}

		if err := logging.Initialize(loaded.LoggingOptions()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, logger = loaded, logging.Base()
		logging.Boot("dcon %s starting", cmd.Name())
		logging.Get(logging.CategoryConfig).With("path", configPath).
			Debug("database %s (%s)", cfg.Database.Path, cfg.Database.Driver)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&dotenvPath, "env-file", ".env", "Dotenv file loaded before the config")

	rootCmd.AddCommand(renderCmd, timelineCmd, configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ui.DefaultStyles().Error.Render("Error: "+err.Error()))
		stop()
		os.Exit(1)
	}
}

// openStore opens the configured timeline database.
func openStore(ctx context.Context) (*store.Store, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	logging.Get(logging.CategoryCLI).Debug("using database %s", s.Path())
	return s, nil
}

// commandContext returns the command's context, falling back to Background
// for commands invoked directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
