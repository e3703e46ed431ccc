package store

import (
	"context"
	"fmt"
)

// schemaStatements creates every table the service uses. All statements are
// idempotent so EnsureSchema can run on every start.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS offers (
		offre_id         TEXT PRIMARY KEY,
		date_creation    TIMESTAMPTZ NOT NULL,
		poste            TEXT NOT NULL DEFAULT '',
		offer_url        TEXT NOT NULL DEFAULT '',
		resume           TEXT NOT NULL DEFAULT '',
		description_full TEXT NOT NULL DEFAULT '',
		entreprise       TEXT NOT NULL DEFAULT '',
		contact          TEXT NOT NULL DEFAULT '',
		code_postal      TEXT NOT NULL DEFAULT '',
		contrat          TEXT NOT NULL DEFAULT '',
		etp              TEXT NOT NULL DEFAULT '',
		email            TEXT NOT NULL DEFAULT '',
		telephone        TEXT NOT NULL DEFAULT '',
		a_propos         TEXT NOT NULL DEFAULT '',
		a_propos_full    TEXT NOT NULL DEFAULT '',
		enrichment       JSONB NOT NULL DEFAULT '{}'::jsonb,
		highlights       TEXT[] NOT NULL DEFAULT '{}',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS raw_imports (
		offre_id   TEXT PRIMARY KEY,
		raw_json   JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS exclusion_rules (
		id       BIGSERIAL PRIMARY KEY,
		field    TEXT NOT NULL,
		pattern  TEXT NOT NULL,
		position INT NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS ai_jobs (
		job_key         TEXT PRIMARY KEY,
		enabled         BOOLEAN NOT NULL DEFAULT false,
		prompt_template TEXT NOT NULL DEFAULT '',
		output_mode     TEXT NOT NULL DEFAULT 'text',
		schema_json     TEXT NOT NULL DEFAULT '',
		target_columns  TEXT[] NOT NULL DEFAULT '{}',
		write_strategy  TEXT NOT NULL DEFAULT 'overwrite',
		rate_limit_ms   INT,
		position        INT NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS ai_logs (
		id              BIGSERIAL PRIMARY KEY,
		ts              TIMESTAMPTZ NOT NULL,
		job_key         TEXT NOT NULL,
		offre_id        TEXT NOT NULL DEFAULT '',
		row_number      INT NOT NULL DEFAULT 0,
		request_id      TEXT NOT NULL DEFAULT '',
		model           TEXT NOT NULL DEFAULT '',
		prompt_rendered TEXT NOT NULL DEFAULT '',
		response_text   TEXT NOT NULL DEFAULT '',
		input_tokens    INT NOT NULL DEFAULT 0,
		output_tokens   INT NOT NULL DEFAULT 0,
		total_tokens    INT NOT NULL DEFAULT 0,
		duration_ms     BIGINT NOT NULL DEFAULT 0,
		status          TEXT NOT NULL,
		error_message   TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS enrichment_columns (
		name     TEXT PRIMARY KEY,
		position BIGSERIAL
	)`,

	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	)`,
}

// EnsureSchema creates all tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
