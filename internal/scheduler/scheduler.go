// Package scheduler wires up the cron job that periodically runs an
// ingestion cycle followed by every enabled enrichment job.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mavailable/offres-france-travail/internal/ai"
	"github.com/mavailable/offres-france-travail/internal/config"
	"github.com/mavailable/offres-france-travail/internal/ingest"
)

// Scheduler wraps robfig/cron and manages the ingest+enrich loop.
type Scheduler struct {
	cron     *cron.Cron
	ingester *ingest.Runner
	enricher *ai.JobRunner
	settings config.SettingsSource
	days     int
	spec     string
	log      zerolog.Logger
}

// New creates a Scheduler that fires every intervalHours hours, ingesting
// offers published within the last days days.
func New(ingester *ingest.Runner, enricher *ai.JobRunner, settings config.SettingsSource, days, intervalHours int, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cron.DefaultLogger)),
		ingester: ingester,
		enricher: enricher,
		settings: settings,
		days:     days,
		spec:     fmt.Sprintf("@every %dh", intervalHours),
		log:      log,
	}
}

// Start registers the job and starts the scheduler. Also runs one cycle
// immediately so a fresh deployment does not wait for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runCycle(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.Info().Str("spec", s.spec).Msg("scheduler started")

	go s.runCycle(ctx)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info().Msg("scheduler stopped")
}

// runCycle ingests new offers, then runs every enabled enrichment job over
// the table. An ingestion failure still lets enrichment run: rows from
// earlier runs may have pending jobs.
func (s *Scheduler) runCycle(ctx context.Context) {
	s.log.Info().Msg("cycle started")

	if _, err := s.ingester.Run(ctx, s.days); err != nil {
		s.log.Error().Err(err).Msg("ingestion failed")
	}

	aiCfg, err := config.LoadAiConfig(ctx, s.settings)
	if err != nil {
		s.log.Error().Err(err).Msg("loading ai config failed")
		return
	}
	if aiCfg.APIKey == "" && !aiCfg.DryRun {
		s.log.Warn().Msg("no OpenAI API key configured, skipping enrichment")
		return
	}

	if err := s.enricher.RunAllEnabled(ctx, aiCfg); err != nil {
		s.log.Error().Err(err).Msg("enrichment failed")
	}

	s.log.Info().Msg("cycle complete")
}
