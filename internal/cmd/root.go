// Package cmd defines the command line interface of the service.
package cmd

// CLI is the kong command tree.
type CLI struct {
	LogLevel  string `help:"Log level: trace, debug, info, warn, error." default:"info"`
	LogFormat string `help:"Log format." enum:"console,json" default:"console"`

	Serve   ServeCmd   `cmd:"" help:"Run the scheduler: periodic ingestion plus enrichment, with a health endpoint."`
	Ingest  IngestCmd  `cmd:"" help:"Run one ingestion cycle now."`
	Enrich  EnrichCmd  `cmd:"" help:"Run enrichment jobs over the offers table."`
	Init    InitCmd    `cmd:"" help:"Create the database schema and seed the default enrichment jobs."`
	Secrets SecretsCmd `cmd:"" help:"Store API credentials in the settings table."`
}
