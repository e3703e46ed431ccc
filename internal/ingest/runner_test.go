package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mavailable/offres-france-travail/internal/ftapi"
	"github.com/mavailable/offres-france-travail/internal/model"
)

type fakeFetcher struct {
	offers []model.Offer
	opts   ftapi.SearchOptions
}

func (f *fakeFetcher) SearchOffersPaged(_ context.Context, opts ftapi.SearchOptions) ([]model.Offer, error) {
	f.opts = opts
	return f.offers, nil
}

type fakeStore struct {
	knownIDs map[string]struct{}
	rules    []model.ExclusionRow

	appendedRows    []model.OfferRow
	appendedImports []model.RawImport
}

func (s *fakeStore) LoadKnownIDs(context.Context) (map[string]struct{}, error) {
	known := make(map[string]struct{}, len(s.knownIDs))
	for id := range s.knownIDs {
		known[id] = struct{}{}
	}
	return known, nil
}

func (s *fakeStore) LoadExclusionRows(context.Context) ([]model.ExclusionRow, error) {
	return s.rules, nil
}

func (s *fakeStore) AppendOffers(_ context.Context, rows []model.OfferRow) error {
	s.appendedRows = append(s.appendedRows, rows...)
	return nil
}

func (s *fakeStore) AppendRawImports(_ context.Context, imports []model.RawImport) error {
	s.appendedImports = append(s.appendedImports, imports...)
	return nil
}

func newTestRunner(fetcher *fakeFetcher, store *fakeStore) *Runner {
	r := NewRunner(fetcher, store, "travailleur social", zerolog.Nop())
	r.now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }
	return r
}

func offer(id, title, company string) model.Offer {
	return model.Offer{
		ID:            id,
		Intitule:      title,
		EntrepriseNom: company,
		Raw:           `{"id":"` + id + `"}`,
	}
}

// ── Run ────────────────────────────────────────────────────────────────────

func TestRun_InsertsNewOffers(t *testing.T) {
	fetcher := &fakeFetcher{offers: []model.Offer{
		offer("1", "Travailleur social", "Asso A"),
		offer("2", "Éducateur", "Asso B"),
	}}
	store := &fakeStore{}

	sum, err := newTestRunner(fetcher, store).Run(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}

	if sum.Fetched != 2 || sum.Inserted != 2 || sum.DedupSkipped != 0 || sum.ExcludedSkipped != 0 {
		t.Errorf("summary = %+v, want 2 fetched and 2 inserted", sum)
	}
	if len(store.appendedRows) != 2 || len(store.appendedImports) != 2 {
		t.Errorf("appended %d rows and %d imports, want 2 each", len(store.appendedRows), len(store.appendedImports))
	}
	if fetcher.opts.MotsCles != "travailleur social" || fetcher.opts.PublieeDepuis != 1 {
		t.Errorf("search options = %+v", fetcher.opts)
	}
	if store.appendedImports[0].RawJSON != `{"id":"1"}` {
		t.Errorf("raw import should carry the provider JSON, got %q", store.appendedImports[0].RawJSON)
	}
}

func TestRun_IsIdempotentAgainstKnownIDs(t *testing.T) {
	offers := []model.Offer{offer("1", "A", "X"), offer("2", "B", "Y")}
	fetcher := &fakeFetcher{offers: offers}
	store := &fakeStore{knownIDs: map[string]struct{}{"1": {}, "2": {}}}

	sum, err := newTestRunner(fetcher, store).Run(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}

	if sum.Inserted != 0 || sum.DedupSkipped != 2 {
		t.Errorf("re-running over known offers: summary = %+v, want 0 inserted and 2 dedup-skipped", sum)
	}
	if len(store.appendedRows) != 0 {
		t.Errorf("no rows should be appended, got %d", len(store.appendedRows))
	}
}

func TestRun_SkipsWithinRunDuplicates(t *testing.T) {
	fetcher := &fakeFetcher{offers: []model.Offer{
		offer("1", "A", "X"),
		offer("1", "A", "X"), // same offer returned on two pages
	}}
	store := &fakeStore{}

	sum, err := newTestRunner(fetcher, store).Run(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Inserted != 1 || sum.DedupSkipped != 1 {
		t.Errorf("summary = %+v, want 1 inserted and 1 dedup-skipped", sum)
	}
}

func TestRun_AppliesExclusionRules(t *testing.T) {
	fetcher := &fakeFetcher{offers: []model.Offer{
		offer("1", "Travailleur social", "ACME"),
		offer("2", "Travailleur social", "Asso B"),
	}}
	store := &fakeStore{rules: []model.ExclusionRow{
		{Field: model.FieldEntreprise, Pattern: "acme"},
	}}

	sum, err := newTestRunner(fetcher, store).Run(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}

	if sum.ExcludedSkipped != 1 || sum.Inserted != 1 {
		t.Errorf("summary = %+v, want 1 excluded and 1 inserted", sum)
	}
	if len(store.appendedRows) != 1 || store.appendedRows[0].OffreID != "2" {
		t.Errorf("only offer 2 should be inserted, got %+v", store.appendedRows)
	}
}

// An excluded offer's id is not remembered: remove the rule and it comes
// back on the next run.
func TestRun_ExcludedOffersReappearWithoutRule(t *testing.T) {
	fetcher := &fakeFetcher{offers: []model.Offer{offer("1", "Poste", "ACME")}}
	store := &fakeStore{rules: []model.ExclusionRow{
		{Field: model.FieldEntreprise, Pattern: "acme"},
	}}

	if _, err := newTestRunner(fetcher, store).Run(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	store.rules = nil
	sum, err := newTestRunner(fetcher, store).Run(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Inserted != 1 {
		t.Errorf("offer should be ingested once its exclusion rule is gone, summary = %+v", sum)
	}
}

// ── Derivations ────────────────────────────────────────────────────────────

func TestBuildOfferRow(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	o := model.Offer{
		ID:                  "188XYZ",
		DateCreation:        "2026-08-29T08:30:00Z",
		Intitule:            "  Travailleur social  ",
		Description:         "Première ligne.\nSuite du texte.",
		EntrepriseNom:       "ACME",
		EntrepriseAPropos:   "Asso locale.\nDétails.",
		DureeTravailLibelle: "17,5 H/semaine",
	}

	row := buildOfferRow(o, now)

	if row.OffreID != "188XYZ" {
		t.Errorf("OffreID = %q", row.OffreID)
	}
	if row.DateCreation.Format("02/01/2006") != "29/08/2026" {
		t.Errorf("DateCreation = %v", row.DateCreation)
	}
	if row.Intitule != "Travailleur social" {
		t.Errorf("Intitule = %q", row.Intitule)
	}
	if row.Resume != "Première ligne." || row.DescriptionFull != o.Description {
		t.Errorf("Resume = %q, DescriptionFull = %q", row.Resume, row.DescriptionFull)
	}
	if row.APropos != "Asso locale." || row.AProposFull != o.EntrepriseAPropos {
		t.Errorf("APropos = %q", row.APropos)
	}
	if row.Etp != "50%" {
		t.Errorf("Etp = %q, want 50%%", row.Etp)
	}
	if row.OfferURL != "https://candidat.francetravail.fr/offres/recherche/detail/188XYZ" {
		t.Errorf("OfferURL = %q", row.OfferURL)
	}
}

func TestBuildOfferRow_BadDateFallsBackToNow(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	row := buildOfferRow(model.Offer{ID: "1", DateCreation: "not-a-date"}, now)
	if !row.DateCreation.Equal(now) {
		t.Errorf("DateCreation = %v, want fallback %v", row.DateCreation, now)
	}
}

func TestComputeEtpPercent(t *testing.T) {
	cases := []struct {
		label string
		want  string
	}{
		{"35H/semaine", "100%"},
		{"17,5 H / semaine", "50%"},
		{"24H/semaine travail en journée", "69%"},
		{"28 h/Semaine", "80%"},
		{"Temps plein", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := ComputeEtpPercent(c.label); got != c.want {
			t.Errorf("ComputeEtpPercent(%q) = %q, want %q", c.label, got, c.want)
		}
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("\n\n  hello \nworld"); got != "hello" {
		t.Errorf("firstLine = %q, want %q", got, "hello")
	}
	if got := firstLine("   "); got != "" {
		t.Errorf("firstLine of blanks = %q, want empty", got)
	}
}
