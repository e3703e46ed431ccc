package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mavailable/offres-france-travail/internal/ai"
	"github.com/mavailable/offres-france-travail/internal/config"
	"github.com/mavailable/offres-france-travail/internal/db"
	"github.com/mavailable/offres-france-travail/internal/ftapi"
	"github.com/mavailable/offres-france-travail/internal/ingest"
	"github.com/mavailable/offres-france-travail/internal/store"
)

// Context carries the configuration and logger into every command.
type Context struct {
	Config *config.Config
	Log    zerolog.Logger
}

// app bundles the connected dependencies a command works with.
type app struct {
	pool  *pgxpool.Pool
	rdb   *redis.Client
	store *store.Store
	cache *db.Cache
}

// connect establishes the PostgreSQL and Redis connections. Callers must
// Close the returned app.
func (c *Context) connect(ctx context.Context) (*app, error) {
	pool, err := db.NewPostgresPool(ctx, c.Config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	rdb, err := db.NewRedisClient(ctx, c.Config.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	return &app{
		pool:  pool,
		rdb:   rdb,
		store: store.New(pool),
		cache: db.NewCache(rdb),
	}, nil
}

func (a *app) Close() {
	a.rdb.Close()
	a.pool.Close()
}

// ftSecrets resolves the France Travail OAuth credentials: environment
// variables first, then the settings store.
func (a *app) ftSecrets(ctx context.Context, cfg *config.Config) (ftapi.Secrets, error) {
	id := strings.TrimSpace(cfg.FTClientID)
	secret := strings.TrimSpace(cfg.FTClientSecret)

	if id == "" {
		v, err := a.store.Setting(ctx, "FT_CLIENT_ID")
		if err != nil {
			return ftapi.Secrets{}, err
		}
		id = strings.TrimSpace(v)
	}
	if secret == "" {
		v, err := a.store.Setting(ctx, "FT_CLIENT_SECRET")
		if err != nil {
			return ftapi.Secrets{}, err
		}
		secret = strings.TrimSpace(v)
	}

	if id == "" || secret == "" {
		return ftapi.Secrets{}, &config.ConfigError{
			Msg:  "France Travail credentials are not configured",
			Hint: "set FT_CLIENT_ID and FT_CLIENT_SECRET, or store them with the secrets command",
		}
	}
	return ftapi.Secrets{ClientID: id, ClientSecret: secret}, nil
}

// ingestRunner wires the full ingestion pipeline.
func (a *app) ingestRunner(ctx context.Context, c *Context) (*ingest.Runner, error) {
	secrets, err := a.ftSecrets(ctx, c.Config)
	if err != nil {
		return nil, err
	}

	tokens := ftapi.NewTokenCache(a.cache, c.Config.OAuthTokenURL, c.Config.TokenCacheTTL, c.Config.RequestTimeout)
	search := ftapi.NewSearchClient(
		c.Config.OffresSearchURL,
		c.Config.PageSize,
		c.Config.MaxPages,
		tokens,
		secrets,
		c.Config.RequestTimeout,
		c.Log,
	)

	return ingest.NewRunner(search, a.store, c.Config.SearchKeywords, c.Log), nil
}

// jobRunner wires the enrichment pipeline.
func (a *app) jobRunner(c *Context, aiCfg config.AiConfig) *ai.JobRunner {
	client := ai.NewClient(c.Config.OpenAIBaseURL, aiCfg.RequestTimeout, c.Log)
	cache := ai.NewPromptCache(a.cache, 0)
	return ai.NewJobRunner(a.store, cache, client, c.Log)
}
