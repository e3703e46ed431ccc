package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mavailable/offres-france-travail/internal/config"
)

func testAiConfig() config.AiConfig {
	return config.AiConfig{
		APIKey:          "sk-test",
		Model:           "gpt-4o-mini",
		Temperature:     0.2,
		MaxOutputTokens: 400,
		RequestTimeout:  5 * time.Second,
		RateLimit:       0,
	}
}

// newTestClient returns a Client with sleeping disabled, recording every
// sleep it would have done.
func newTestClient(url string) (*Client, *[]time.Duration) {
	c := NewClient(url, 5*time.Second, zerolog.Nop())
	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }
	return c, &slept
}

func TestCallText_Success(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		w.Write([]byte(`{"output_text":"hello","usage":{"input_tokens":12,"output_tokens":3,"total_tokens":15}}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(srv.URL)
	res, err := client.CallText(context.Background(), testAiConfig(), "say hello", CallOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if res.Text != "hello" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.InputTokens != 12 || res.OutputTokens != 3 || res.TotalTokens != 15 {
		t.Errorf("usage = %+v", res)
	}
	if gotBody["model"] != "gpt-4o-mini" || gotBody["input"] != "say hello" {
		t.Errorf("request payload = %v", gotBody)
	}
	if gotBody["max_output_tokens"] != float64(400) {
		t.Errorf("max_output_tokens = %v", gotBody["max_output_tokens"])
	}
	if _, hasTools := gotBody["tools"]; hasTools {
		t.Error("plain call must not carry tools")
	}
}

func TestCallText_ExtractsFromOutputBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"output":[{"content":[{"text":"part one"},{"text":"part two"}]}]}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(srv.URL)
	res, err := client.CallText(context.Background(), testAiConfig(), "p", CallOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "part one\npart two" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestCallText_RetriesOn429(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"output_text":"ok"}`))
	}))
	defer srv.Close()

	client, slept := newTestClient(srv.URL)
	res, err := client.CallText(context.Background(), testAiConfig(), "p", CallOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "ok" || calls != 3 {
		t.Errorf("Text = %q after %d calls", res.Text, calls)
	}

	// Two backoffs, doubling from 600ms, each within the ±20% jitter band.
	if len(*slept) != 2 {
		t.Fatalf("slept %d times, want 2", len(*slept))
	}
	for i, want := range []time.Duration{600 * time.Millisecond, 1200 * time.Millisecond} {
		got := (*slept)[i]
		lo := time.Duration(float64(want) * 0.8)
		hi := time.Duration(float64(want) * 1.2)
		if got < lo || got > hi {
			t.Errorf("backoff %d = %v, want within [%v, %v]", i, got, lo, hi)
		}
	}
}

func TestCallText_GivesUpAfterThreeAttempts(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, _ := newTestClient(srv.URL)
	_, err := client.CallText(context.Background(), testAiConfig(), "p", CallOptions{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 3 {
		t.Errorf("made %d calls, want 3", calls)
	}
}

func TestCallText_BadRequestIsNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad schema"}}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(srv.URL)
	_, err := client.CallText(context.Background(), testAiConfig(), "p", CallOptions{})

	var callErr *LlmCallError
	if !errors.As(err, &callErr) || callErr.Status != http.StatusBadRequest {
		t.Fatalf("expected a 400 LlmCallError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("made %d calls, want 1", calls)
	}
}

func TestCallText_WebSearchFallback(t *testing.T) {
	var payloads []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var p map[string]any
		json.Unmarshal(raw, &p)
		payloads = append(payloads, p)

		if _, hasTools := p["tools"]; hasTools {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"web_search is unsupported for this model"}}`))
			return
		}
		w.Write([]byte(`{"output_text":"plain answer"}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(srv.URL)
	res, err := client.CallText(context.Background(), testAiConfig(), "p", CallOptions{UseWebSearch: true})
	if err != nil {
		t.Fatal(err)
	}

	if res.Text != "plain answer" {
		t.Errorf("Text = %q", res.Text)
	}
	if !res.UsedWebSearch || !res.WebSearchFallback {
		t.Errorf("flags = %+v, want UsedWebSearch and WebSearchFallback", res)
	}
	if len(payloads) != 2 {
		t.Fatalf("made %d calls, want 2", len(payloads))
	}
	if _, hasTools := payloads[1]["tools"]; hasTools {
		t.Error("fallback call must not carry tools")
	}
}

func TestCallText_NonToolErrorIsNotFallenBack(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"insufficient quota"}}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(srv.URL)
	_, err := client.CallText(context.Background(), testAiConfig(), "p", CallOptions{UseWebSearch: true})
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("made %d calls, want 1 (no fallback)", calls)
	}
}

func TestCallText_RateLimitSleep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"output_text":"ok"}`))
	}))
	defer srv.Close()

	cfg := testAiConfig()
	cfg.RateLimit = 800 * time.Millisecond

	client, slept := newTestClient(srv.URL)
	if _, err := client.CallText(context.Background(), cfg, "p", CallOptions{}); err != nil {
		t.Fatal(err)
	}
	if len(*slept) != 1 || (*slept)[0] != 800*time.Millisecond {
		t.Errorf("slept = %v, want one 800ms rate-limit sleep", *slept)
	}

	override := 50 * time.Millisecond
	*slept = nil
	if _, err := client.CallText(context.Background(), cfg, "p", CallOptions{RateLimitOverride: &override}); err != nil {
		t.Fatal(err)
	}
	if len(*slept) != 1 || (*slept)[0] != override {
		t.Errorf("slept = %v, want the 50ms override", *slept)
	}
}
