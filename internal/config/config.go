// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultSearchKeywords = "travailleur social"
	defaultPublieeDepuis  = 1
	defaultPageSize       = 150
	defaultMaxPages       = 20

	defaultOAuthTokenURL  = "https://entreprise.pole-emploi.fr/connexion/oauth2/access_token?realm=/partenaire"
	defaultOffresSearch   = "https://api.francetravail.io/partenaire/offresdemploi/v2/offres/search"
	defaultOpenAIBaseURL  = "https://api.openai.com"
	defaultTokenCacheTTL  = 50 * time.Minute // safety margin under the real 60 min expiry
	defaultIntervalHours  = 24
	defaultRequestTimeout = 15 * time.Second
)

// Config holds all runtime configuration for the ingestion service.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// France Travail credentials. May be empty here: the settings store is
	// consulted as a fallback at run time.
	FTClientID     string
	FTClientSecret string

	SearchKeywords    string
	PublieeDepuisDays int // default day window for scheduled runs
	PageSize          int
	MaxPages          int

	OAuthTokenURL   string
	OffresSearchURL string
	OpenAIBaseURL   string

	TokenCacheTTL  time.Duration
	RequestTimeout time.Duration
	IntervalHours  int // how often the cron job fires
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	interval := defaultIntervalHours
	if s := os.Getenv("INGEST_INTERVAL_HOURS"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("INGEST_INTERVAL_HOURS must be a positive integer, got %q", s)
		}
		interval = v
	}

	days := defaultPublieeDepuis
	if s := os.Getenv("FT_PUBLIEE_DEPUIS_DAYS"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("FT_PUBLIEE_DEPUIS_DAYS must be a positive integer, got %q", s)
		}
		days = v
	}

	pageSize := defaultPageSize
	if s := os.Getenv("FT_PAGE_SIZE"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > 150 {
			return nil, fmt.Errorf("FT_PAGE_SIZE must be in 1..150, got %q", s)
		}
		pageSize = v
	}

	maxPages := defaultMaxPages
	if s := os.Getenv("FT_MAX_PAGES"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("FT_MAX_PAGES must be a positive integer, got %q", s)
		}
		maxPages = v
	}

	keywords := os.Getenv("FT_SEARCH_KEYWORDS")
	if keywords == "" {
		keywords = defaultSearchKeywords
	}

	port := os.Getenv("INGEST_PORT")
	if port == "" {
		port = "8083"
	}

	return &Config{
		Port:              port,
		DatabaseURL:       dbURL,
		RedisURL:          redisURL,
		FTClientID:        os.Getenv("FT_CLIENT_ID"),
		FTClientSecret:    os.Getenv("FT_CLIENT_SECRET"),
		SearchKeywords:    keywords,
		PublieeDepuisDays: days,
		PageSize:          pageSize,
		MaxPages:          maxPages,
		OAuthTokenURL:     envOr("FT_OAUTH_TOKEN_URL", defaultOAuthTokenURL),
		OffresSearchURL:   envOr("FT_OFFRES_SEARCH_URL", defaultOffresSearch),
		OpenAIBaseURL:     envOr("OPENAI_BASE_URL", defaultOpenAIBaseURL),
		TokenCacheTTL:     defaultTokenCacheTTL,
		RequestTimeout:    defaultRequestTimeout,
		IntervalHours:     interval,
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ConfigError signals a missing or malformed piece of user configuration.
// Hint tells the user how to fix it.
type ConfigError struct {
	Msg  string
	Hint string
}

func (e *ConfigError) Error() string {
	if e.Hint == "" {
		return e.Msg
	}
	return e.Msg + " (" + e.Hint + ")"
}
