package ftapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mavailable/offres-france-travail/internal/model"
)

// SearchOptions are the query parameters of one search.
type SearchOptions struct {
	MotsCles      string
	PublieeDepuis int // days
}

// SearchClient pages through the offers search endpoint.
type SearchClient struct {
	searchURL string
	pageSize  int
	maxPages  int
	tokens    *TokenCache
	secrets   Secrets
	client    *http.Client
	log       zerolog.Logger
}

// NewSearchClient constructs a SearchClient bound to a set of credentials.
func NewSearchClient(searchURL string, pageSize, maxPages int, tokens *TokenCache, secrets Secrets, timeout time.Duration, log zerolog.Logger) *SearchClient {
	return &SearchClient{
		searchURL: searchURL,
		pageSize:  pageSize,
		maxPages:  maxPages,
		tokens:    tokens,
		secrets:   secrets,
		client:    &http.Client{Timeout: timeout},
		log:       log,
	}
}

// searchResponse mirrors the top-level search JSON. The result list is read
// from the first present of three alternative field names.
type searchResponse struct {
	Resultats []json.RawMessage `json:"resultats"`
	Results   []json.RawMessage `json:"results"`
	Offres    []json.RawMessage `json:"offres"`
}

func (r *searchResponse) items() []json.RawMessage {
	if len(r.Resultats) > 0 {
		return r.Resultats
	}
	if len(r.Results) > 0 {
		return r.Results
	}
	return r.Offres
}

// apiOffer mirrors a single search result item.
type apiOffer struct {
	ID           string `json:"id"`
	DateCreation string `json:"dateCreation"`
	Intitule     string `json:"intitule"`
	Description  string `json:"description"`
	Entreprise   struct {
		Nom         string `json:"nom"`
		Description string `json:"description"`
	} `json:"entreprise"`
	Contact struct {
		Nom       string `json:"nom"`
		Email     string `json:"email"`
		Telephone string `json:"telephone"`
	} `json:"contact"`
	LieuTravail struct {
		CodePostal string `json:"codePostal"`
	} `json:"lieuTravail"`
	TypeContratLibelle  string `json:"typeContratLibelle"`
	DureeTravailLibelle string `json:"dureeTravailLibelle"`
}

var agencePseudoContact = regexp.MustCompile(`(?i)^Agence France`)

// mapOffer converts one raw search item to a model.Offer. Items without an
// id map to nothing: they are dropped at this boundary, not counted as
// fetched.
func mapOffer(raw json.RawMessage) (model.Offer, bool) {
	var o apiOffer
	if err := json.Unmarshal(raw, &o); err != nil {
		return model.Offer{}, false
	}
	id := strings.TrimSpace(o.ID)
	if id == "" {
		return model.Offer{}, false
	}

	// contact.nom often looks like "ENTREPRISE - Mme Prénom NOM"; keep only
	// the part after the first " - ". "Agence France…" pseudo-contacts are
	// blanked.
	contact := strings.TrimSpace(o.Contact.Nom)
	if agencePseudoContact.MatchString(contact) {
		contact = ""
	} else if parts := strings.Split(contact, " - "); len(parts) >= 2 {
		contact = strings.TrimSpace(strings.Join(parts[1:], " - "))
	}

	return model.Offer{
		ID:                  id,
		DateCreation:        o.DateCreation,
		Intitule:            o.Intitule,
		Description:         o.Description,
		EntrepriseNom:       o.Entreprise.Nom,
		ContactNom:          contact,
		ContactEmail:        o.Contact.Email,
		ContactTelephone:    o.Contact.Telephone,
		// Strictly entreprise.description: other fields would mix in
		// job-related content such as diplomas.
		EntrepriseAPropos:   strings.TrimSpace(o.Entreprise.Description),
		CodePostal:          o.LieuTravail.CodePostal,
		TypeContratLibelle:  o.TypeContratLibelle,
		DureeTravailLibelle: o.DureeTravailLibelle,
		Raw:                 string(raw),
	}, true
}

// PublicOfferURL returns the human-facing offer page for an offer id (not
// the API endpoint).
func PublicOfferURL(offerID string) string {
	return "https://candidat.francetravail.fr/offres/recherche/detail/" + url.PathEscape(offerID)
}

// SearchOffersPaged iterates pages of pageSize up to maxPages, stopping
// early on an empty page or a page shorter than pageSize.
func (c *SearchClient) SearchOffersPaged(ctx context.Context, opts SearchOptions) ([]model.Offer, error) {
	var all []model.Offer
	start := 0

	for page := 0; page < c.maxPages; page++ {
		rng := fmt.Sprintf("%d-%d", start, start+c.pageSize-1)

		offers, err := c.searchOnce(ctx, opts, rng, true)
		if err != nil {
			return nil, fmt.Errorf("range %s: %w", rng, err)
		}
		if len(offers) == 0 {
			break
		}

		all = append(all, offers...)
		if len(offers) < c.pageSize {
			break // last page
		}
		start += c.pageSize
	}

	return all, nil
}

// searchOnce fetches a single page. On a 401 it clears the cached token and
// retries exactly once with a fresh one; a second 401 is fatal.
func (c *SearchClient) searchOnce(ctx context.Context, opts SearchOptions, rng string, allowRetry401 bool) ([]model.Offer, error) {
	token, err := c.tokens.Token(ctx, c.secrets)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("motsCles", opts.MotsCles)
	params.Set("publieeDepuis", strconv.Itoa(opts.PublieeDepuis))
	params.Set("range", rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized && allowRetry401 {
		// Token likely expired or revoked mid-run.
		c.log.Warn().Str("range", rng).Msg("search returned 401, refreshing token")
		c.tokens.Clear(ctx)
		return c.searchOnce(ctx, opts, rng, false)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SearchError{Status: resp.StatusCode, Body: truncateBody(body)}
	}

	var page searchResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := page.items()
	offers := make([]model.Offer, 0, len(items))
	for _, item := range items {
		if offer, ok := mapOffer(item); ok {
			offers = append(offers, offer)
		}
	}
	return offers, nil
}
