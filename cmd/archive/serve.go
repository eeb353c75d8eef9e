package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/rex8112/HumbleScrapperBot/api"
	"github.com/rex8112/HumbleScrapperBot/ingest"
	"github.com/rex8112/HumbleScrapperBot/metrics"
)

// shutdownTimeout bounds how long in-flight requests get on SIGINT/SIGTERM.
const shutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled ingest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	flags := cmd.Flags()
	flags.Int("port", 0, "HTTP server port")
	flags.Bool("ingest", false, "periodically ingest scraped month files from --ingest-dir")
	flags.String("ingest-dir", "", "directory of scraped month files to ingest periodically")
	flags.Duration("ingest-interval", 0, "time between ingest cycles")
	for key, flag := range map[string]string{
		"http.port":       "port",
		"ingest.enabled":  "ingest",
		"ingest.dir":      "ingest-dir",
		"ingest.interval": "ingest-interval",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", flag, err))
		}
	}
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	var collector metrics.Collector = metrics.NewNoopCollector()
	var prom *metrics.PrometheusCollector
	if a.cfg.Metrics.Enabled {
		prom = metrics.NewCollector()
		collector = prom
	}

	store, archive, err := a.openArchive(collector)
	if err != nil {
		return err
	}
	defer store.Close()

	ingester := ingest.NewIngester(archive, a.logger)
	if err := ingester.Load(ctx); err != nil {
		return err
	}

	handler := api.NewHandler(ingester)
	if prom != nil {
		handler.Metrics = prom.Handler()
	}

	if a.cfg.Ingest.Enabled {
		scheduler := ingest.NewScheduler(
			ingest.NewFileSource(a.cfg.Ingest.Dir),
			ingester,
			ingest.WithInterval(a.cfg.Ingest.Interval),
			ingest.WithSchedulerLogger(a.logger),
			ingest.WithSchedulerMetrics(collector),
		)
		handler.Scheduler = scheduler
		scheduler.Start()
		defer scheduler.Stop()
	} else if a.cfg.Ingest.Dir != "" {
		a.logger.Warn().Str("dir", a.cfg.Ingest.Dir).Msg("ingest.dir is set but ingest is disabled; pass --ingest to enable it")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.HTTP.Port),
		Handler:      api.NewRouter(handler, a.logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Int("port", a.cfg.HTTP.Port).Str("db", a.cfg.DB.Path).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info().Msg("server stopped")
	return nil
}
