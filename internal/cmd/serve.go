package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mavailable/offres-france-travail/internal/config"
	"github.com/mavailable/offres-france-travail/internal/scheduler"
)

const version = "1.0.0"

// ServeCmd runs the long-lived service: a cron-triggered ingest+enrich
// cycle plus an HTTP health endpoint.
type ServeCmd struct{}

func (cmd *ServeCmd) Run(c *Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := app.store.SeedDefaultJobs(ctx); err != nil {
		return err
	}

	ingester, err := app.ingestRunner(ctx, c)
	if err != nil {
		return err
	}

	// The runner gets a fresh AiConfig per cycle from the settings store, so
	// only the base URL matters at wiring time.
	baseAiCfg, err := config.LoadAiConfig(ctx, app.store)
	if err != nil {
		return err
	}
	enricher := app.jobRunner(c, baseAiCfg)

	sched := scheduler.New(ingester, enricher, app.store, c.Config.PublieeDepuisDays, c.Config.IntervalHours, c.Log)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", c.Config.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.Log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		c.Log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		c.Log.Error().Err(err).Msg("shutdown error")
	}
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "offres-france-travail",
		"version": version,
	})
}
