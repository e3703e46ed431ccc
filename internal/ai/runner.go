package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mavailable/offres-france-travail/internal/config"
	"github.com/mavailable/offres-france-travail/internal/model"
	"github.com/mavailable/offres-france-travail/internal/store"
)

// maxPayloadLen bounds prompt and response texts in audit entries.
const maxPayloadLen = 45000

// TableStore is the persistence surface the job runner needs. Satisfied by
// store.Store.
type TableStore interface {
	LoadJobs(ctx context.Context) ([]model.JobConfig, error)
	EnsureColumns(ctx context.Context, names []string) error
	ReadTable(ctx context.Context) (model.Table, error)
	RawImportMap(ctx context.Context) (map[string]string, error)
	ApplyRowUpdate(ctx context.Context, u store.RowUpdate) error
	AppendAiLog(ctx context.Context, l model.AiLogRow) error
}

// TextCaller generates text for a prompt. Satisfied by Client.
type TextCaller interface {
	CallText(ctx context.Context, cfg config.AiConfig, prompt string, opts CallOptions) (CallResult, error)
}

// ResultCache caches call results by prompt key. Satisfied by PromptCache.
type ResultCache interface {
	Get(ctx context.Context, key string) (CachedResult, bool)
	Put(ctx context.Context, key string, v CachedResult)
}

// JobRunner executes enrichment jobs row by row. A failing row is logged
// and skipped; only storage failures abort a job.
type JobRunner struct {
	store TableStore
	cache ResultCache
	llm   TextCaller
	log   zerolog.Logger

	now          func() time.Time
	newRequestID func() string
}

// NewJobRunner constructs a JobRunner.
func NewJobRunner(st TableStore, cache ResultCache, llm TextCaller, log zerolog.Logger) *JobRunner {
	return &JobRunner{
		store:        st,
		cache:        cache,
		llm:          llm,
		log:          log,
		now:          time.Now,
		newRequestID: uuid.NewString,
	}
}

// RunJob runs the named job over every offer row.
func (r *JobRunner) RunJob(ctx context.Context, cfg config.AiConfig, jobKey string) error {
	jobs, err := r.store.LoadJobs(ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if job.JobKey == jobKey {
			return r.runOne(ctx, cfg, job)
		}
	}
	return fmt.Errorf("unknown job %q", jobKey)
}

// RunAllEnabled runs every enabled job in table order.
func (r *JobRunner) RunAllEnabled(ctx context.Context, cfg config.AiConfig) error {
	jobs, err := r.store.LoadJobs(ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		if err := r.runOne(ctx, cfg, job); err != nil {
			return fmt.Errorf("job %s: %w", job.JobKey, err)
		}
	}
	return nil
}

func (r *JobRunner) runOne(ctx context.Context, cfg config.AiConfig, job model.JobConfig) error {
	if cfg.APIKey == "" && !cfg.DryRun {
		return &config.ConfigError{
			Msg:  "OPENAI_API_KEY is not configured",
			Hint: "set the OPENAI_API_KEY environment variable or run the secrets command",
		}
	}

	if err := r.store.EnsureColumns(ctx, job.TargetColumns); err != nil {
		return err
	}
	table, err := r.store.ReadTable(ctx)
	if err != nil {
		return err
	}
	imports, err := r.store.RawImportMap(ctx)
	if err != nil {
		return err
	}

	r.log.Info().Str("job", job.JobKey).Int("rows", len(table.Rows)).Msg("running enrichment job")

	for _, row := range table.Rows {
		if strings.TrimSpace(row.OffreID) == "" {
			continue
		}
		if err := r.runRow(ctx, cfg, job, table.Header, row, imports); err != nil {
			return err
		}
	}
	return nil
}

// runRow processes one offer row. Its error is a storage failure only; LLM
// and parse errors end up as ERROR audit entries.
func (r *JobRunner) runRow(ctx context.Context, cfg config.AiConfig, job model.JobConfig, header []string, row model.TableRow, imports map[string]string) error {
	base := model.AiLogRow{
		JobKey:    job.JobKey,
		OffreID:   row.OffreID,
		RowNumber: row.Number,
		RequestID: r.newRequestID(),
		Model:     cfg.Model,
	}

	if job.WriteStrategy == model.WriteFillIfEmpty && allTargetsFilled(job.TargetColumns, row) {
		base.Timestamp = r.now()
		base.Status = model.AiLogSkip
		base.ErrorMessage = "FILL_IF_EMPTY: already filled"
		return r.appendLog(ctx, cfg, base)
	}

	vars := make(map[string]string, len(header)+1)
	for _, col := range header {
		vars["Offres."+col] = row.Values[col]
	}
	vars["Import.raw_json"] = imports[row.OffreID]

	prompt := Render(job.PromptTemplate, vars)
	base.PromptRendered = prompt

	if cfg.DryRun {
		base.Timestamp = r.now()
		base.Status = model.AiLogSkip
		base.ErrorMessage = "DRY_RUN"
		return r.appendLog(ctx, cfg, base)
	}

	key := BuildKey(KeyParts{
		Model:           cfg.Model,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		OutputMode:      string(job.OutputMode),
		SchemaJSON:      job.SchemaJSON,
		Prompt:          prompt,
	})

	started := r.now()
	res, statusNote, err := r.resolve(ctx, cfg, job, key, prompt)
	base.Duration = r.now().Sub(started)
	base.Timestamp = r.now()

	if err != nil {
		base.Status = model.AiLogError
		base.ErrorMessage = err.Error()
		return r.appendLog(ctx, cfg, base)
	}

	base.ResponseText = res.Text
	base.InputTokens = res.InputTokens
	base.OutputTokens = res.OutputTokens
	base.TotalTokens = res.TotalTokens

	update, err := distribute(job, row, res.Text)
	if err != nil {
		base.Status = model.AiLogError
		base.ErrorMessage = err.Error()
		return r.appendLog(ctx, cfg, base)
	}

	if len(update.Values) > 0 || len(update.Highlights) > 0 {
		if err := r.store.ApplyRowUpdate(ctx, update); err != nil {
			return fmt.Errorf("apply row %s: %w", row.OffreID, err)
		}
	}

	base.Status = model.AiLogOK
	base.ErrorMessage = statusNote
	return r.appendLog(ctx, cfg, base)
}

// resolve answers the prompt from the cache when possible, calling the
// model otherwise. The status note records cache hits and web search usage.
func (r *JobRunner) resolve(ctx context.Context, cfg config.AiConfig, job model.JobConfig, key, prompt string) (CachedResult, string, error) {
	if cached, ok := r.cache.Get(ctx, key); ok {
		flags := []string{"CACHE_HIT"}
		if cached.UsedWebSearch {
			flags = append(flags, "WEB_SEARCH")
		}
		if cached.WebSearchFallback {
			flags = append(flags, "WEB_SEARCH_FALLBACK")
		}
		return cached, strings.Join(flags, " |"), nil
	}

	var opts CallOptions
	if job.RateLimitMs != nil {
		d := time.Duration(*job.RateLimitMs) * time.Millisecond
		opts.RateLimitOverride = &d
	}

	res, err := r.llm.CallText(ctx, cfg, prompt, opts)
	if err != nil {
		return CachedResult{}, "", err
	}

	value := CachedResult{
		Text:              res.Text,
		InputTokens:       res.InputTokens,
		OutputTokens:      res.OutputTokens,
		TotalTokens:       res.TotalTokens,
		UsedWebSearch:     res.UsedWebSearch,
		WebSearchFallback: res.WebSearchFallback,
	}
	r.cache.Put(ctx, key, value)

	var flags []string
	if res.UsedWebSearch {
		flags = append(flags, "WEB_SEARCH")
	}
	if res.WebSearchFallback {
		flags = append(flags, "WEB_SEARCH_FALLBACK")
	}
	return value, strings.Join(flags, " |"), nil
}

func allTargetsFilled(targets []string, row model.TableRow) bool {
	for _, target := range targets {
		if strings.TrimSpace(row.Values[target]) == "" {
			return false
		}
	}
	return true
}

// distribute parses the response per output mode and buffers the resulting
// cell writes for one row. Cells newly filled by the completion job are
// marked for highlight.
func distribute(job model.JobConfig, row model.TableRow, text string) (store.RowUpdate, error) {
	update := store.RowUpdate{OffreID: row.OffreID, Values: make(map[string]string)}

	var (
		parsed map[string]any
		scalar string
	)
	switch job.OutputMode {
	case model.OutputJSON:
		obj, err := ExtractJSONObject(text)
		if err != nil {
			return store.RowUpdate{}, err
		}
		parsed = obj
	case model.OutputNumber:
		n, err := ParseNumber(text)
		if err != nil {
			return store.RowUpdate{}, err
		}
		scalar = formatNumber(n)
	default:
		scalar = strings.TrimSpace(text)
	}

	for _, target := range job.TargetColumns {
		current, known := row.Values[target]
		if !known {
			continue
		}
		isEmpty := strings.TrimSpace(current) == ""
		if job.WriteStrategy == model.WriteFillIfEmpty && !isEmpty {
			continue
		}

		value := scalar
		if job.OutputMode == model.OutputJSON {
			value = ValueForTarget(job.JobKey, target, parsed)
		}

		update.Values[target] = value
		if job.JobKey == "completion" && isEmpty && strings.TrimSpace(value) != "" {
			update.Highlights = append(update.Highlights, target)
		}
	}

	return update, nil
}

func truncatePayload(s string) string {
	if len(s) <= maxPayloadLen {
		return s
	}
	return s[:maxPayloadLen] + "\n…(truncated)"
}

// appendLog writes one audit entry, hiding or truncating payloads per the
// logging configuration.
func (r *JobRunner) appendLog(ctx context.Context, cfg config.AiConfig, l model.AiLogRow) error {
	if cfg.LogPayloads {
		l.PromptRendered = truncatePayload(l.PromptRendered)
		l.ResponseText = truncatePayload(l.ResponseText)
	} else {
		l.PromptRendered = "(hidden)"
		l.ResponseText = "(hidden)"
	}
	if err := r.store.AppendAiLog(ctx, l); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}
