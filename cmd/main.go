// offres-france-travail — scheduled France Travail offer ingestion with
// exclusion rules and AI enrichment jobs.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/mavailable/offres-france-travail/internal/cmd"
	"github.com/mavailable/offres-france-travail/internal/config"
	"github.com/mavailable/offres-france-travail/internal/logging"
)

func main() {
	// Optional: a .env file in the working directory.
	_ = godotenv.Load()

	cli := &cmd.CLI{}
	kctx := kong.Parse(cli,
		kong.Name("offres-france-travail"),
		kong.Description("France Travail offer ingestion and AI enrichment."),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logging.New(cli.LogLevel, cli.LogFormat)

	if err := kctx.Run(&cmd.Context{Config: cfg, Log: log}); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
