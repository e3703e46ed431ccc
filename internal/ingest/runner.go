// Package ingest runs one ingestion cycle: fetch recent offers from the
// France Travail search API, filter them through the user's exclusion
// rules, and append only unseen offers to the Offres table.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mavailable/offres-france-travail/internal/ftapi"
	"github.com/mavailable/offres-france-travail/internal/model"
	"github.com/mavailable/offres-france-travail/internal/rules"
)

// OfferFetcher fetches pages of offers matching a search. Satisfied by
// ftapi.SearchClient.
type OfferFetcher interface {
	SearchOffersPaged(ctx context.Context, opts ftapi.SearchOptions) ([]model.Offer, error)
}

// OfferStore is the persistence surface the runner needs: known-id lookup,
// exclusion rule rows, and the two append sinks.
type OfferStore interface {
	LoadKnownIDs(ctx context.Context) (map[string]struct{}, error)
	LoadExclusionRows(ctx context.Context) ([]model.ExclusionRow, error)
	AppendOffers(ctx context.Context, rows []model.OfferRow) error
	AppendRawImports(ctx context.Context, imports []model.RawImport) error
}

// Summary reports what one ingestion run did.
type Summary struct {
	Fetched         int
	DedupSkipped    int
	ExcludedSkipped int
	Inserted        int
	Elapsed         time.Duration
}

// Runner executes ingestion cycles. It is stateless between runs: the
// known-id set and the exclusion rules are reloaded every time so that
// manual edits take effect on the next run.
type Runner struct {
	fetcher  OfferFetcher
	store    OfferStore
	keywords string
	log      zerolog.Logger

	now func() time.Time
}

// NewRunner constructs a Runner searching for the given keywords.
func NewRunner(fetcher OfferFetcher, store OfferStore, keywords string, log zerolog.Logger) *Runner {
	return &Runner{
		fetcher:  fetcher,
		store:    store,
		keywords: keywords,
		log:      log,
		now:      time.Now,
	}
}

// Run ingests offers published within the last `days` days.
//
// Excluded offers are skipped but their ids are NOT remembered: if the
// matching rule is later removed, the offer reappears on a following run
// as long as the API still returns it.
func (r *Runner) Run(ctx context.Context, days int) (Summary, error) {
	start := r.now()
	var sum Summary

	offers, err := r.fetcher.SearchOffersPaged(ctx, ftapi.SearchOptions{
		MotsCles:      r.keywords,
		PublieeDepuis: days,
	})
	if err != nil {
		return sum, fmt.Errorf("search offers: %w", err)
	}
	sum.Fetched = len(offers)

	known, err := r.store.LoadKnownIDs(ctx)
	if err != nil {
		return sum, fmt.Errorf("load known ids: %w", err)
	}
	ruleRows, err := r.store.LoadExclusionRows(ctx)
	if err != nil {
		return sum, fmt.Errorf("load exclusion rules: %w", err)
	}
	exclusions := rules.FromRows(ruleRows)

	var (
		rows    []model.OfferRow
		imports []model.RawImport
	)
	for _, offer := range offers {
		if _, seen := known[offer.ID]; seen {
			sum.DedupSkipped++
			continue
		}

		if exclusions.IsExcluded(rules.Candidate{
			Intitule:    offer.Intitule,
			Entreprise:  offer.EntrepriseNom,
			Description: offer.Description,
			Raw:         offer.Raw,
			Contrat:     offer.TypeContratLibelle,
		}) {
			sum.ExcludedSkipped++
			continue
		}

		// Guard against the API returning the same offer on two pages.
		known[offer.ID] = struct{}{}

		rows = append(rows, buildOfferRow(offer, start))
		imports = append(imports, model.RawImport{OffreID: offer.ID, RawJSON: offer.Raw})
	}

	if len(rows) > 0 {
		if err := r.store.AppendOffers(ctx, rows); err != nil {
			return sum, fmt.Errorf("append offers: %w", err)
		}
		if err := r.store.AppendRawImports(ctx, imports); err != nil {
			return sum, fmt.Errorf("append raw imports: %w", err)
		}
	}

	sum.Inserted = len(rows)
	sum.Elapsed = r.now().Sub(start)

	r.log.Info().
		Int("fetched", sum.Fetched).
		Int("inserted", sum.Inserted).
		Int("dedup_skipped", sum.DedupSkipped).
		Int("excluded_skipped", sum.ExcludedSkipped).
		Dur("elapsed", sum.Elapsed).
		Msg("ingestion run done")

	return sum, nil
}
