package cmd

import "context"

// IngestCmd runs one ingestion cycle over a chosen publication window, the
// command line counterpart of the scheduled run.
type IngestCmd struct {
	Days int `help:"Only offers published within this many days." enum:"1,7,31" default:"1"`
}

func (cmd *IngestCmd) Run(c *Context) error {
	ctx := context.Background()

	app, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.store.EnsureSchema(ctx); err != nil {
		return err
	}

	runner, err := app.ingestRunner(ctx, c)
	if err != nil {
		return err
	}

	sum, err := runner.Run(ctx, cmd.Days)
	if err != nil {
		return err
	}

	c.Log.Info().
		Int("days", cmd.Days).
		Int("fetched", sum.Fetched).
		Int("inserted", sum.Inserted).
		Msg("ingestion finished")
	return nil
}
