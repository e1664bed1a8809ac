package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-research/pagetree/internal/server"
)

var listenAddr string

const watchInterval = time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve page resolution and the page API over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listenAddr != "" {
			cfg.Listen = listenAddr
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		srv := &http.Server{
			Addr:              cfg.Listen,
			Handler:           server.New(cfg, a.model, a.resolver, slog.Default()).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		watched := make(chan struct{})
		go func() {
			defer close(watched)
			a.board.Watch(ctx, watchInterval, func(siteID int64) {
				slog.Debug("site changed by another process", "site_id", siteID)
				a.cache.Invalidate(siteID)
			})
		}()
		// The board must stay mapped until the watcher is gone.
		defer func() {
			stop()
			<-watched
		}()

		errc := make(chan error, 1)
		go func() { errc <- srv.ListenAndServe() }()
		slog.Info("serving", "addr", cfg.Listen, "database", cfg.Database, "sites", len(cfg.Sites))

		select {
		case err := <-errc:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
