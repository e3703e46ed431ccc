package cmd

import (
	"context"

	"github.com/mavailable/offres-france-travail/internal/config"
)

// EnrichCmd runs enrichment jobs: all enabled ones by default, or a single
// job by key.
type EnrichCmd struct {
	Job    string `help:"Run only this job key." optional:""`
	DryRun bool   `help:"Log what would be sent without calling the model."`
}

func (cmd *EnrichCmd) Run(c *Context) error {
	ctx := context.Background()

	app, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.store.EnsureSchema(ctx); err != nil {
		return err
	}

	aiCfg, err := config.LoadAiConfig(ctx, app.store)
	if err != nil {
		return err
	}
	if cmd.DryRun {
		aiCfg.DryRun = true
	}

	runner := app.jobRunner(c, aiCfg)
	if cmd.Job != "" {
		return runner.RunJob(ctx, aiCfg, cmd.Job)
	}
	return runner.RunAllEnabled(ctx, aiCfg)
}
