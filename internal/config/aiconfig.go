package config

import (
	"context"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Settings keys for the AI runtime configuration, stored in the settings
// table. Kept separate from the France Travail OAuth secrets.
const (
	KeyOpenAIAPIKey     = "OPENAI_API_KEY"
	KeyOpenAIModel      = "OPENAI_MODEL"
	KeyTemperature      = "OPENAI_TEMPERATURE"
	KeyMaxOutputTokens  = "OPENAI_MAX_OUTPUT_TOKENS"
	KeyRequestTimeoutMs = "OPENAI_REQUEST_TIMEOUT_MS"
	KeyRateLimitMs      = "OPENAI_RATE_LIMIT_MS"
	KeyDryRun           = "OPENAI_DRY_RUN"
	KeyLogPayloads      = "OPENAI_LOG_PAYLOADS"
)

// AiConfig is the runtime configuration of the LLM client and job runner.
type AiConfig struct {
	APIKey          string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	RequestTimeout  time.Duration
	RateLimit       time.Duration
	DryRun          bool
	LogPayloads     bool
}

var aiDefaults = AiConfig{
	Model:           "gpt-4o-mini",
	Temperature:     0.2,
	MaxOutputTokens: 400,
	RequestTimeout:  90 * time.Second,
	RateLimit:       800 * time.Millisecond,
	DryRun:          false,
	LogPayloads:     true,
}

// SettingsSource reads one value from the property store; a missing key
// yields an empty string, not an error.
type SettingsSource interface {
	Setting(ctx context.Context, key string) (string, error)
}

var truthy = regexp.MustCompile(`(?i)^(1|true|yes|y|on)$`)

func toBool(v string, fallback bool) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return truthy.MatchString(v)
}

func toFloat(v string, fallback float64) float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return fallback
	}
	return n
}

// LoadAiConfig assembles the AI configuration from the settings store,
// coercing malformed values to defaults and clamping out-of-range ones.
// The API key may also come from the OPENAI_API_KEY environment variable,
// which takes precedence over the stored value.
func LoadAiConfig(ctx context.Context, settings SettingsSource) (AiConfig, error) {
	get := func(key string) (string, error) {
		v, err := settings.Setting(ctx, key)
		return strings.TrimSpace(v), err
	}

	apiKey := strings.TrimSpace(os.Getenv(KeyOpenAIAPIKey))
	if apiKey == "" {
		v, err := get(KeyOpenAIAPIKey)
		if err != nil {
			return AiConfig{}, err
		}
		apiKey = v
	}

	model, err := get(KeyOpenAIModel)
	if err != nil {
		return AiConfig{}, err
	}
	if model == "" {
		model = aiDefaults.Model
	}

	temperature, err := get(KeyTemperature)
	if err != nil {
		return AiConfig{}, err
	}
	maxTokens, err := get(KeyMaxOutputTokens)
	if err != nil {
		return AiConfig{}, err
	}
	timeoutMs, err := get(KeyRequestTimeoutMs)
	if err != nil {
		return AiConfig{}, err
	}
	rateMs, err := get(KeyRateLimitMs)
	if err != nil {
		return AiConfig{}, err
	}
	dryRun, err := get(KeyDryRun)
	if err != nil {
		return AiConfig{}, err
	}
	logPayloads, err := get(KeyLogPayloads)
	if err != nil {
		return AiConfig{}, err
	}

	cfg := AiConfig{
		APIKey:          apiKey,
		Model:           model,
		Temperature:     toFloat(temperature, aiDefaults.Temperature),
		MaxOutputTokens: int(toFloat(maxTokens, float64(aiDefaults.MaxOutputTokens))),
		RequestTimeout:  time.Duration(toFloat(timeoutMs, float64(aiDefaults.RequestTimeout/time.Millisecond))) * time.Millisecond,
		RateLimit:       time.Duration(toFloat(rateMs, float64(aiDefaults.RateLimit/time.Millisecond))) * time.Millisecond,
		DryRun:          toBool(dryRun, aiDefaults.DryRun),
		LogPayloads:     toBool(logPayloads, aiDefaults.LogPayloads),
	}

	if cfg.MaxOutputTokens < 16 {
		cfg.MaxOutputTokens = 16
	}
	if cfg.RequestTimeout < 5*time.Second {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.RateLimit < 0 {
		cfg.RateLimit = 0
	}

	return cfg, nil
}
