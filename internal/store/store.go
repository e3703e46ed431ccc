// Package store persists offers, exclusion rules, AI jobs, audit logs and
// settings in PostgreSQL. It is the single write path of the service; every
// other package goes through its methods.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mavailable/offres-france-travail/internal/model"
)

// Store wraps a pgx pool with the service's persistence operations.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store over an established pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ── Ingestion ──────────────────────────────────────────────────────────────

// LoadKnownIDs returns the set of every offre_id ever ingested.
func (s *Store) LoadKnownIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT offre_id FROM offers`)
	if err != nil {
		return nil, fmt.Errorf("query known ids: %w", err)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		known[id] = struct{}{}
	}
	return known, rows.Err()
}

// AppendOffers inserts new offer rows in one transaction: either every row
// lands or none does. Rows whose offre_id already exists are left untouched.
func (s *Store) AppendOffers(ctx context.Context, offerRows []model.OfferRow) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, r := range offerRows {
			_, err := tx.Exec(ctx,
				`INSERT INTO offers (offre_id, date_creation, poste, offer_url, resume,
				                     description_full, entreprise, contact, code_postal,
				                     contrat, etp, email, telephone, a_propos, a_propos_full)
				 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
				 ON CONFLICT (offre_id) DO NOTHING`,
				r.OffreID, r.DateCreation, r.Intitule, r.OfferURL, r.Resume,
				r.DescriptionFull, r.EntrepriseNom, r.ContactNom, r.CodePostal,
				r.TypeContrat, r.Etp, r.ContactEmail, r.ContactTelephone,
				r.APropos, r.AProposFull,
			)
			if err != nil {
				return fmt.Errorf("insert offer %s: %w", r.OffreID, err)
			}
		}
		return nil
	})
}

// AppendRawImports stores the untouched provider JSON per offre_id.
func (s *Store) AppendRawImports(ctx context.Context, imports []model.RawImport) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, imp := range imports {
			_, err := tx.Exec(ctx,
				`INSERT INTO raw_imports (offre_id, raw_json)
				 VALUES ($1, $2::jsonb)
				 ON CONFLICT (offre_id) DO NOTHING`,
				imp.OffreID, imp.RawJSON,
			)
			if err != nil {
				return fmt.Errorf("insert raw import %s: %w", imp.OffreID, err)
			}
		}
		return nil
	})
}

// LoadExclusionRows returns all exclusion rules in user-defined order.
func (s *Store) LoadExclusionRows(ctx context.Context) ([]model.ExclusionRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT field, pattern FROM exclusion_rules ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("query exclusion rules: %w", err)
	}
	defer rows.Close()

	var out []model.ExclusionRow
	for rows.Next() {
		var r model.ExclusionRow
		if err := rows.Scan(&r.Field, &r.Pattern); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ── AI jobs & table reads ──────────────────────────────────────────────────

// LoadJobs returns all AI jobs in table order, coercing loosely typed
// fields: an unknown output mode falls back to text, an unknown write
// strategy to overwrite. Rows without a job key cannot exist (primary key).
func (s *Store) LoadJobs(ctx context.Context) ([]model.JobConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT job_key, enabled, prompt_template, output_mode, schema_json,
		        target_columns, write_strategy, rate_limit_ms
		 FROM ai_jobs ORDER BY position, job_key`)
	if err != nil {
		return nil, fmt.Errorf("query ai jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.JobConfig
	for rows.Next() {
		var (
			j    model.JobConfig
			mode string
			ws   string
		)
		if err := rows.Scan(&j.JobKey, &j.Enabled, &j.PromptTemplate, &mode,
			&j.SchemaJSON, &j.TargetColumns, &ws, &j.RateLimitMs); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		switch model.OutputMode(mode) {
		case model.OutputJSON, model.OutputNumber:
			j.OutputMode = model.OutputMode(mode)
		default:
			j.OutputMode = model.OutputText
		}
		if model.WriteStrategy(ws) == model.WriteFillIfEmpty {
			j.WriteStrategy = model.WriteFillIfEmpty
		} else {
			j.WriteStrategy = model.WriteOverwrite
		}

		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// EnsureColumns registers enrichment target columns so that ReadTable
// exposes them in a stable order. Fixed display columns are never
// registered twice.
func (s *Store) EnsureColumns(ctx context.Context, names []string) error {
	fixed := make(map[string]struct{}, len(model.HeadersOffres))
	for _, h := range model.HeadersOffres {
		fixed[h] = struct{}{}
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := fixed[name]; ok {
			continue
		}
		_, err := s.pool.Exec(ctx,
			`INSERT INTO enrichment_columns (name) VALUES ($1)
			 ON CONFLICT (name) DO NOTHING`, name)
		if err != nil {
			return fmt.Errorf("ensure column %q: %w", name, err)
		}
	}
	return nil
}

// enrichmentColumns returns the registered enrichment column names in
// registration order.
func (s *Store) enrichmentColumns(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name FROM enrichment_columns ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query enrichment columns: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// ReadTable materialises the Offres table: fixed display columns followed
// by every registered enrichment column. Row numbers are 1-based in read
// order (oldest ingested first).
func (s *Store) ReadTable(ctx context.Context) (model.Table, error) {
	extra, err := s.enrichmentColumns(ctx)
	if err != nil {
		return model.Table{}, err
	}
	header := append(append([]string{}, model.HeadersOffres...), extra...)

	rows, err := s.pool.Query(ctx,
		`SELECT offre_id, date_creation, poste, resume, entreprise, contact,
		        code_postal, contrat, etp, email, telephone, a_propos, enrichment
		 FROM offers ORDER BY created_at, offre_id`)
	if err != nil {
		return model.Table{}, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()

	table := model.Table{Header: header}
	num := 0
	for rows.Next() {
		var (
			id, poste, resume, entreprise, contact string
			cp, contrat, etp, email, tel, aPropos  string
			date                                   time.Time
			enrichment                             map[string]string
		)
		if err := rows.Scan(&id, &date, &poste, &resume, &entreprise, &contact,
			&cp, &contrat, &etp, &email, &tel, &aPropos, &enrichment); err != nil {
			return model.Table{}, fmt.Errorf("scan: %w", err)
		}

		num++
		values := map[string]string{
			"Date":          date.Format("02/01/2006"),
			"Poste":         poste,
			"Résumé":        resume,
			"Entreprise":    entreprise,
			"Contact":       contact,
			"CP":            cp,
			"Contrat":       contrat,
			"ETP":           etp,
			"Email":         email,
			"Téléphone":     tel,
			"À propos":      aPropos,
			model.ColOffreID: id,
		}
		for _, col := range extra {
			values[col] = enrichment[col]
		}

		table.Rows = append(table.Rows, model.TableRow{Number: num, OffreID: id, Values: values})
	}
	return table, rows.Err()
}

// RawImportMap returns the stored provider JSON per offre_id.
func (s *Store) RawImportMap(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT offre_id, raw_json::text FROM raw_imports`)
	if err != nil {
		return nil, fmt.Errorf("query raw imports: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out[id] = raw
	}
	return out, rows.Err()
}

// displayColumn maps writable display header names to their offers column.
// Date and offre_ID are immutable and deliberately absent.
var displayColumn = map[string]string{
	"Poste":      "poste",
	"Résumé":     "resume",
	"Entreprise": "entreprise",
	"Contact":    "contact",
	"CP":         "code_postal",
	"Contrat":    "contrat",
	"ETP":        "etp",
	"Email":      "email",
	"Téléphone":  "telephone",
	"À propos":   "a_propos",
}

// RowUpdate is one buffered set of cell writes for a single offer row, plus
// the columns whose cells should be highlighted.
type RowUpdate struct {
	OffreID    string
	Values     map[string]string
	Highlights []string
}

// ApplyRowUpdate writes all buffered cells of one row at once. Display
// columns update the fixed column, everything else merges into the
// enrichment document. Highlight marks accumulate, never repeat.
func (s *Store) ApplyRowUpdate(ctx context.Context, u RowUpdate) error {
	if u.OffreID == "" {
		return fmt.Errorf("apply row update: empty offre_id")
	}
	if len(u.Values) == 0 && len(u.Highlights) == 0 {
		return nil
	}

	enrichment := make(map[string]string)
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for col, val := range u.Values {
			dbCol, ok := displayColumn[col]
			if !ok {
				enrichment[col] = val
				continue
			}
			_, err := tx.Exec(ctx,
				fmt.Sprintf(`UPDATE offers SET %s = $1 WHERE offre_id = $2`, dbCol),
				val, u.OffreID)
			if err != nil {
				return fmt.Errorf("update %s: %w", dbCol, err)
			}
		}

		if len(enrichment) > 0 {
			doc, err := json.Marshal(enrichment)
			if err != nil {
				return fmt.Errorf("marshal enrichment: %w", err)
			}
			_, err = tx.Exec(ctx,
				`UPDATE offers SET enrichment = enrichment || $1::jsonb WHERE offre_id = $2`,
				string(doc), u.OffreID)
			if err != nil {
				return fmt.Errorf("merge enrichment: %w", err)
			}
		}

		if len(u.Highlights) > 0 {
			_, err := tx.Exec(ctx,
				`UPDATE offers
				 SET highlights = (
				   SELECT ARRAY(SELECT DISTINCT h FROM unnest(highlights || $1::text[]) AS h)
				 )
				 WHERE offre_id = $2`,
				u.Highlights, u.OffreID)
			if err != nil {
				return fmt.Errorf("merge highlights: %w", err)
			}
		}
		return nil
	})
}

// ── Audit log ──────────────────────────────────────────────────────────────

// AppendAiLog appends one audit entry. The log is append-only: there is no
// update or delete path anywhere in the service.
func (s *Store) AppendAiLog(ctx context.Context, l model.AiLogRow) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ai_logs (ts, job_key, offre_id, row_number, request_id, model,
		                      prompt_rendered, response_text, input_tokens,
		                      output_tokens, total_tokens, duration_ms, status,
		                      error_message)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		l.Timestamp, l.JobKey, l.OffreID, l.RowNumber, l.RequestID, l.Model,
		l.PromptRendered, l.ResponseText, l.InputTokens, l.OutputTokens,
		l.TotalTokens, l.Duration.Milliseconds(), string(l.Status), l.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("append ai log: %w", err)
	}
	return nil
}

// ── Settings ───────────────────────────────────────────────────────────────

// Setting returns the stored value for key, or "" when absent.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read setting %q: %w", key, err)
	}
	return value, nil
}

// SetSettings upserts the given key/value pairs.
func (s *Store) SetSettings(ctx context.Context, kv map[string]string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for key, value := range kv {
			_, err := tx.Exec(ctx,
				`INSERT INTO settings (key, value) VALUES ($1, $2)
				 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
				key, value)
			if err != nil {
				return fmt.Errorf("set %q: %w", key, err)
			}
		}
		return nil
	})
}

// ── Helpers ────────────────────────────────────────────────────────────────

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
