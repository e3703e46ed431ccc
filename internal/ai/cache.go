package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/mavailable/offres-france-travail/internal/db"
)

const cachePrefix = "ai:prompt:"

// CachedResult is the cached outcome of one LLM call, keyed by everything
// that can change the model's output.
type CachedResult struct {
	Text              string `json:"text"`
	InputTokens       int    `json:"inputTokens,omitempty"`
	OutputTokens      int    `json:"outputTokens,omitempty"`
	TotalTokens       int    `json:"totalTokens,omitempty"`
	UsedWebSearch     bool   `json:"usedWebSearch,omitempty"`
	WebSearchFallback bool   `json:"webSearchFallback,omitempty"`
}

// KeyParts are the call parameters hashed into a cache key.
type KeyParts struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
	OutputMode      string
	SchemaJSON      string
	Prompt          string
}

// BuildKey derives the cache key: SHA-256 over the canonical JSON of the
// parts, so large prompts never become keys themselves. The version field
// invalidates old entries if the key layout ever changes.
func BuildKey(p KeyParts) string {
	src, _ := json.Marshal(struct {
		V               int     `json:"v"`
		Model           string  `json:"model"`
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
		OutputMode      string  `json:"outputMode"`
		SchemaJSON      string  `json:"schemaJson"`
		Prompt          string  `json:"prompt"`
	}{1, p.Model, p.Temperature, p.MaxOutputTokens, p.OutputMode, p.SchemaJSON, p.Prompt})

	sum := sha256.Sum256(src)
	return cachePrefix + hex.EncodeToString(sum[:])
}

// PromptCache stores LLM results in Redis, best-effort: a cache failure is
// a miss on read and a no-op on write, never an error for the caller.
type PromptCache struct {
	cache *db.Cache
	ttl   time.Duration
}

// NewPromptCache wraps a Redis cache facade with the prompt-result TTL.
func NewPromptCache(cache *db.Cache, ttl time.Duration) *PromptCache {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &PromptCache{cache: cache, ttl: ttl}
}

// Get returns the cached result for key, if any.
func (p *PromptCache) Get(ctx context.Context, key string) (CachedResult, bool) {
	raw, err := p.cache.Get(ctx, key)
	if err != nil || raw == "" {
		return CachedResult{}, false
	}
	var v CachedResult
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return CachedResult{}, false
	}
	return v, true
}

// Put stores the result under key.
func (p *PromptCache) Put(ctx context.Context, key string, v CachedResult) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = p.cache.Put(ctx, key, string(raw), p.ttl)
}
