package ftapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mavailable/offres-france-travail/internal/ftapi"
)

const (
	testPageSize = 3
	testMaxPages = 4
)

type fakeOffer struct {
	ID       string `json:"id"`
	Intitule string `json:"intitule"`
}

func offersPage(ids ...string) []byte {
	items := make([]fakeOffer, 0, len(ids))
	for _, id := range ids {
		items = append(items, fakeOffer{ID: id, Intitule: "Poste " + id})
	}
	b, _ := json.Marshal(map[string]any{"resultats": items})
	return b
}

// newSearchEnv wires a token endpoint and a search endpoint behind one
// test server, returning a ready SearchClient.
func newSearchEnv(t *testing.T, search http.HandlerFunc) *ftapi.SearchClient {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok"}`))
	})
	mux.HandleFunc("/search", search)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	tokens := ftapi.NewTokenCache(testCache(t), srv.URL+"/token", 50*time.Minute, 5*time.Second)
	return ftapi.NewSearchClient(srv.URL+"/search", testPageSize, testMaxPages, tokens, testSecrets, 5*time.Second, zerolog.Nop())
}

// ── Pagination ─────────────────────────────────────────────────────────────

func TestSearchOffersPaged_StopsOnShortPage(t *testing.T) {
	var ranges []string
	client := newSearchEnv(t, func(w http.ResponseWriter, r *http.Request) {
		rng := r.URL.Query().Get("range")
		ranges = append(ranges, rng)
		switch rng {
		case "0-2":
			w.Write(offersPage("1", "2", "3"))
		case "3-5":
			w.Write(offersPage("4"))
		default:
			t.Errorf("unexpected range %q", rng)
			w.Write(offersPage())
		}
	})

	offers, err := client.SearchOffersPaged(context.Background(), ftapi.SearchOptions{MotsCles: "x", PublieeDepuis: 1})
	if err != nil {
		t.Fatalf("SearchOffersPaged: %v", err)
	}
	if len(offers) != 4 {
		t.Errorf("got %d offers, want 4", len(offers))
	}
	if len(ranges) != 2 {
		t.Errorf("expected 2 page fetches, got %v", ranges)
	}
}

func TestSearchOffersPaged_StopsAtMaxPagesOnFullLastPage(t *testing.T) {
	var pages int
	client := newSearchEnv(t, func(w http.ResponseWriter, r *http.Request) {
		pages++
		// Always a full page: pagination must stop at maxPages, not loop.
		w.Write(offersPage(
			fmt.Sprintf("%d-a", pages),
			fmt.Sprintf("%d-b", pages),
			fmt.Sprintf("%d-c", pages),
		))
	})

	offers, err := client.SearchOffersPaged(context.Background(), ftapi.SearchOptions{MotsCles: "x", PublieeDepuis: 1})
	if err != nil {
		t.Fatalf("SearchOffersPaged: %v", err)
	}
	if pages != testMaxPages {
		t.Errorf("fetched %d pages, want %d", pages, testMaxPages)
	}
	if len(offers) != testMaxPages*testPageSize {
		t.Errorf("got %d offers, want %d", len(offers), testMaxPages*testPageSize)
	}
}

func TestSearchOffersPaged_EmptyFirstPage(t *testing.T) {
	client := newSearchEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resultats":[]}`))
	})

	offers, err := client.SearchOffersPaged(context.Background(), ftapi.SearchOptions{MotsCles: "x", PublieeDepuis: 1})
	if err != nil {
		t.Fatalf("SearchOffersPaged: %v", err)
	}
	if len(offers) != 0 {
		t.Errorf("got %d offers, want 0", len(offers))
	}
}

// ── 401 handling ───────────────────────────────────────────────────────────

func TestSearchOffersPaged_RetriesOnceOn401(t *testing.T) {
	var searchCalls int
	client := newSearchEnv(t, func(w http.ResponseWriter, r *http.Request) {
		searchCalls++
		if searchCalls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write(offersPage("1"))
	})

	offers, err := client.SearchOffersPaged(context.Background(), ftapi.SearchOptions{MotsCles: "x", PublieeDepuis: 1})
	if err != nil {
		t.Fatalf("SearchOffersPaged after 401 retry: %v", err)
	}
	if len(offers) != 1 || searchCalls != 2 {
		t.Errorf("offers=%d searchCalls=%d, want 1 offer after exactly one retry", len(offers), searchCalls)
	}
}

func TestSearchOffersPaged_SecondConsecutive401IsFatal(t *testing.T) {
	client := newSearchEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"unauthorized"}`))
	})

	_, err := client.SearchOffersPaged(context.Background(), ftapi.SearchOptions{MotsCles: "x", PublieeDepuis: 1})
	var searchErr *ftapi.SearchError
	if !errors.As(err, &searchErr) {
		t.Fatalf("expected *SearchError, got %v", err)
	}
	if searchErr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", searchErr.Status)
	}
}

func TestSearchOffersPaged_ServerErrorIsFatal(t *testing.T) {
	client := newSearchEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})

	_, err := client.SearchOffersPaged(context.Background(), ftapi.SearchOptions{MotsCles: "x", PublieeDepuis: 1})
	var searchErr *ftapi.SearchError
	if !errors.As(err, &searchErr) {
		t.Fatalf("expected *SearchError, got %v", err)
	}
	if searchErr.Status != http.StatusInternalServerError || searchErr.Body != "boom" {
		t.Errorf("unexpected error detail: %+v", searchErr)
	}
}

// ── Mapping ────────────────────────────────────────────────────────────────

func TestSearchOffersPaged_DropsItemsWithoutID(t *testing.T) {
	client := newSearchEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resultats":[{"id":"ok","intitule":"A"},{"intitule":"no id"},{"id":"  "}]}`))
	})

	offers, err := client.SearchOffersPaged(context.Background(), ftapi.SearchOptions{MotsCles: "x", PublieeDepuis: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 1 || offers[0].ID != "ok" {
		t.Errorf("expected only the offer with an id, got %+v", offers)
	}
}

func TestSearchOffersPaged_MapsFieldsAndCleansContact(t *testing.T) {
	client := newSearchEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resultats":[{
			"id":"188XYZ",
			"dateCreation":"2026-08-30T08:00:00.000Z",
			"intitule":"Travailleur social",
			"description":"Ligne 1\nLigne 2",
			"entreprise":{"nom":"ACME","description":"Petite asso locale"},
			"contact":{"nom":"ACME - Mme Jeanne MARTIN","email":"j@acme.fr","telephone":"0102030405"},
			"lieuTravail":{"codePostal":"75011"},
			"typeContratLibelle":"CDD",
			"dureeTravailLibelle":"17,5 H/semaine"
		},{
			"id":"189XYZ",
			"contact":{"nom":"Agence France Travail de Paris"}
		}]}`))
	})

	offers, err := client.SearchOffersPaged(context.Background(), ftapi.SearchOptions{MotsCles: "x", PublieeDepuis: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 2 {
		t.Fatalf("got %d offers, want 2", len(offers))
	}

	o := offers[0]
	if o.ContactNom != "Mme Jeanne MARTIN" {
		t.Errorf("ContactNom = %q, want the part after the first \" - \"", o.ContactNom)
	}
	if o.EntrepriseNom != "ACME" || o.EntrepriseAPropos != "Petite asso locale" {
		t.Errorf("entreprise mapping wrong: %+v", o)
	}
	if o.CodePostal != "75011" || o.DureeTravailLibelle != "17,5 H/semaine" {
		t.Errorf("field mapping wrong: %+v", o)
	}
	if o.Raw == "" {
		t.Error("Raw provider JSON should be retained")
	}

	if offers[1].ContactNom != "" {
		t.Errorf("Agence France pseudo-contact should be blanked, got %q", offers[1].ContactNom)
	}
}

func TestPublicOfferURL(t *testing.T) {
	got := ftapi.PublicOfferURL("188XYZ")
	want := "https://candidat.francetravail.fr/offres/recherche/detail/188XYZ"
	if got != want {
		t.Errorf("PublicOfferURL = %q, want %q", got, want)
	}
}
