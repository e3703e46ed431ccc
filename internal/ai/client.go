package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mavailable/offres-france-travail/internal/config"
)

// LlmCallError is a non-2xx answer from the Responses API. Status is 0 for
// transport-level failures wrapped elsewhere.
type LlmCallError struct {
	Status int
	Body   string
}

func (e *LlmCallError) Error() string {
	body := e.Body
	if len(body) > 800 {
		body = body[:800]
	}
	if body == "" {
		body = "(empty)"
	}
	return fmt.Sprintf("openai: HTTP %d: %s", e.Status, body)
}

// CallResult is the outcome of one text generation call.
type CallResult struct {
	Text              string
	InputTokens       int
	OutputTokens      int
	TotalTokens       int
	UsedWebSearch     bool
	WebSearchFallback bool
}

// CallOptions tweak a single call.
type CallOptions struct {
	// RateLimitOverride replaces the configured pre-call sleep when set.
	RateLimitOverride *time.Duration
	// UseWebSearch requests the web_search_preview tool, falling back to a
	// plain call when the API rejects tool usage.
	UseWebSearch bool
}

const (
	maxAttempts = 3
	baseBackoff = 600 * time.Millisecond
)

// Client calls the OpenAI Responses API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger

	// sleep is replaceable in tests.
	sleep func(time.Duration)
}

// NewClient constructs a Client against baseURL (the real API or a
// compatible endpoint).
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
		sleep:   time.Sleep,
	}
}

func isRetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests ||
		(code >= 500 && code <= 599)
}

var timeoutLike = regexp.MustCompile(`(?i)timed out|timeout|deadline exceeded`)

func retryable(err error) bool {
	if callErr, ok := err.(*LlmCallError); ok {
		return isRetryableStatus(callErr.Status)
	}
	return timeoutLike.MatchString(err.Error())
}

// jitter spreads a backoff by ±20% so concurrent retries do not align.
func jitter(d time.Duration) time.Duration {
	r := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(d) * r)
}

var toolIssue = regexp.MustCompile(`(?i)tool|web_search|unsupported|not allowed|not authorized|invalid`)

// CallText generates text for prompt. It sleeps the configured rate limit
// before the request, retries transient failures up to three attempts with
// doubling jittered backoff, and, in web-search mode, falls back to a plain
// call when the error looks tool-related.
func (c *Client) CallText(ctx context.Context, cfg config.AiConfig, prompt string, opts CallOptions) (CallResult, error) {
	rate := cfg.RateLimit
	if opts.RateLimitOverride != nil {
		rate = *opts.RateLimitOverride
	}
	if rate > 0 {
		c.sleep(rate)
	}

	payload := map[string]any{
		"model":             cfg.Model,
		"input":             prompt,
		"temperature":       cfg.Temperature,
		"max_output_tokens": cfg.MaxOutputTokens,
	}

	if opts.UseWebSearch {
		withTools := make(map[string]any, len(payload)+1)
		for k, v := range payload {
			withTools[k] = v
		}
		withTools["tools"] = []map[string]string{{"type": "web_search_preview"}}

		res, err := c.callWithRetry(ctx, cfg, withTools)
		if err == nil {
			res.UsedWebSearch = true
			return res, nil
		}
		if !toolIssue.MatchString(err.Error()) {
			return CallResult{}, err
		}
		c.log.Warn().Err(err).Msg("web search rejected, retrying without tools")

		res, err = c.callWithRetry(ctx, cfg, payload)
		if err != nil {
			return CallResult{}, err
		}
		res.UsedWebSearch = true
		res.WebSearchFallback = true
		return res, nil
	}

	return c.callWithRetry(ctx, cfg, payload)
}

func (c *Client) callWithRetry(ctx context.Context, cfg config.AiConfig, payload map[string]any) (CallResult, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := c.callOnce(ctx, cfg, payload)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !retryable(err) || attempt == maxAttempts {
			return CallResult{}, err
		}

		backoff := jitter(baseBackoff << (attempt - 1))
		c.log.Debug().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying openai call")
		c.sleep(backoff)
	}
	return CallResult{}, lastErr
}

// responsesBody is the subset of the Responses API answer we read.
type responsesBody struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func (b *responsesBody) text() string {
	if b.OutputText != "" {
		return b.OutputText
	}
	var parts []string
	for _, o := range b.Output {
		for _, c := range o.Content {
			if c.Text != "" {
				parts = append(parts, c.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func (c *Client) callOnce(ctx context.Context, cfg config.AiConfig, payload map[string]any) (CallResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return CallResult{}, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/responses", bytes.NewReader(body))
	if err != nil {
		return CallResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return CallResult{}, fmt.Errorf("http POST: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return CallResult{}, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CallResult{}, &LlmCallError{Status: resp.StatusCode, Body: string(raw)}
	}

	var parsed responsesBody
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return CallResult{}, fmt.Errorf("openai: invalid JSON response: %w", err)
	}

	return CallResult{
		Text:         parsed.text(),
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
		TotalTokens:  parsed.Usage.TotalTokens,
	}, nil
}
