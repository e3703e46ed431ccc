// Package ftapi implements the France Travail "Offres d'emploi v2" client:
// client-credentials token acquisition with caching, and the paginated
// offers search.
package ftapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const tokenCacheKey = "FT_OAUTH_TOKEN_JSON"

// oauthScope is tolerant: FT accepts various scope sets per application.
const oauthScope = "api_offresdemploiv2 o2dsoffre"

// Secrets are the France Travail API credentials.
type Secrets struct {
	ClientID     string
	ClientSecret string
}

// Cache is the TTL key/value capability the token cache needs. Absence is
// always a valid miss; errors are treated as misses too.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}

// TokenCache obtains a bearer token via the client-credentials grant and
// caches it for a duration shorter than its real expiry (a safety margin).
type TokenCache struct {
	cache    Cache
	tokenURL string
	ttl      time.Duration
	client   *http.Client
}

// NewTokenCache constructs a TokenCache with its own HTTP client.
func NewTokenCache(cache Cache, tokenURL string, ttl, timeout time.Duration) *TokenCache {
	return &TokenCache{
		cache:    cache,
		tokenURL: tokenURL,
		ttl:      ttl,
		client:   &http.Client{Timeout: timeout},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

// Token returns a bearer token, from cache when possible. On miss it POSTs
// the client-credentials grant; a non-2xx response or a body without an
// access_token yields an *AuthError carrying the status and a truncated
// body.
func (t *TokenCache) Token(ctx context.Context, secrets Secrets) (string, error) {
	if cached, err := t.cache.Get(ctx, tokenCacheKey); err == nil && cached != "" {
		var tok tokenResponse
		if json.Unmarshal([]byte(cached), &tok) == nil && tok.AccessToken != "" {
			return tok.AccessToken, nil
		}
		// Unreadable cache entry: ignore and refresh.
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", secrets.ClientID)
	form.Set("client_secret", secrets.ClientSecret)
	form.Set("scope", oauthScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var tok tokenResponse
	_ = json.Unmarshal(body, &tok)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || tok.AccessToken == "" {
		return "", &AuthError{Status: resp.StatusCode, Body: truncateBody(body)}
	}

	cached, _ := json.Marshal(tokenResponse{AccessToken: tok.AccessToken})
	// Best effort: a failed cache write just means a refresh next time.
	_ = t.cache.Put(ctx, tokenCacheKey, string(cached), t.ttl)

	return tok.AccessToken, nil
}

// Clear drops the cached token, forcing the next Token call to refresh.
func (t *TokenCache) Clear(ctx context.Context) {
	_ = t.cache.Remove(ctx, tokenCacheKey)
}
