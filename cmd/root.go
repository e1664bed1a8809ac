package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/pagetree/api"
	"github.com/agentic-research/pagetree/internal/cache"
	"github.com/agentic-research/pagetree/internal/config"
	"github.com/agentic-research/pagetree/internal/control"
	"github.com/agentic-research/pagetree/internal/pages"
	"github.com/agentic-research/pagetree/internal/resolve"
	"github.com/agentic-research/pagetree/internal/store"
)

var (
	configPath string
	dbPath     string
	siteID     int64
	verbose    bool

	cfg *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	rootCmd.PersistentFlags().Int64Var(&siteID, "site", 1, "Site id")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

var rootCmd = &cobra.Command{
	Use:          "pagetree",
	Short:        "Page tree index and path resolver",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			c.Database = dbPath
		}
		cfg = c
		return nil
	},
}

// app wires the store, cache, model and resolver of one process.
type app struct {
	store    *store.SQLite
	board    *control.Board
	cache    *cache.Cache
	model    *pages.Model
	resolver *resolve.Resolver
}

func openApp() (*app, error) {
	s, err := store.OpenSQLite(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	board, err := control.OpenOrCreate(control.PathFor(cfg.Database))
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open control board: %w", err)
	}
	c := cache.New(s, slog.Default())
	model := pages.New(s, c, slog.Default())
	model.Notify(board)
	return &app{
		store:    s,
		board:    board,
		cache:    c,
		model:    model,
		resolver: resolve.New(c, s, nil),
	}, nil
}

func (a *app) Close() error {
	return errors.Join(a.board.Close(), a.store.Close())
}

func selectedSite() (api.Site, error) {
	site, ok := cfg.Site(siteID)
	if !ok {
		return api.Site{}, fmt.Errorf("site %d is not configured", siteID)
	}
	return site, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
