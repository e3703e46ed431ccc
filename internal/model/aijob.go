package model

import "time"

// OutputMode tells the job runner how to parse a model response.
type OutputMode string

const (
	OutputJSON   OutputMode = "json"
	OutputText   OutputMode = "text"
	OutputNumber OutputMode = "number"
)

// WriteStrategy governs whether enrichment overwrites existing cell values
// or only fills empty ones.
type WriteStrategy string

const (
	WriteOverwrite   WriteStrategy = "overwrite"
	WriteFillIfEmpty WriteStrategy = "fill_if_empty"
)

// JobConfig is one row of the declarative AI job table. Loaded fresh on
// every run, since users may edit jobs live between runs.
type JobConfig struct {
	JobKey         string
	Enabled        bool
	PromptTemplate string
	OutputMode     OutputMode
	SchemaJSON     string
	TargetColumns  []string
	WriteStrategy  WriteStrategy
	RateLimitMs    *int
}

// AiLogStatus is the outcome recorded for one (job, row) attempt.
type AiLogStatus string

const (
	AiLogOK    AiLogStatus = "OK"
	AiLogError AiLogStatus = "ERROR"
	AiLogSkip  AiLogStatus = "SKIP"
)

// AiLogRow is one append-only audit trail entry: exactly one per
// (job, offer row) attempt, never mutated or deleted.
type AiLogRow struct {
	Timestamp      time.Time
	JobKey         string
	OffreID        string
	RowNumber      int
	RequestID      string
	Model          string
	PromptRendered string
	ResponseText   string
	InputTokens    int
	OutputTokens   int
	TotalTokens    int
	Duration       time.Duration
	Status         AiLogStatus
	ErrorMessage   string
}
