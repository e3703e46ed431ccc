package cmd

import "context"

// InitCmd prepares a fresh database: schema plus the default enrichment
// jobs. Safe to run repeatedly; existing rows are never touched.
type InitCmd struct{}

func (cmd *InitCmd) Run(c *Context) error {
	ctx := context.Background()

	app, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := app.store.SeedDefaultJobs(ctx); err != nil {
		return err
	}

	c.Log.Info().Msg("schema ready, default jobs seeded")
	return nil
}
