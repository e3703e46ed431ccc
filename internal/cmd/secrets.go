package cmd

import (
	"context"

	"github.com/mavailable/offres-france-travail/internal/config"
)

// SecretsCmd stores API credentials in the settings table, where they act
// as fallbacks when the corresponding environment variables are unset.
type SecretsCmd struct {
	FTClientID     string `help:"France Travail OAuth client id." name:"ft-client-id"`
	FTClientSecret string `help:"France Travail OAuth client secret." name:"ft-client-secret"`
	OpenAIAPIKey   string `help:"OpenAI API key." name:"openai-api-key"`
}

func (cmd *SecretsCmd) Run(c *Context) error {
	kv := map[string]string{}
	if cmd.FTClientID != "" {
		kv["FT_CLIENT_ID"] = cmd.FTClientID
	}
	if cmd.FTClientSecret != "" {
		kv["FT_CLIENT_SECRET"] = cmd.FTClientSecret
	}
	if cmd.OpenAIAPIKey != "" {
		kv[config.KeyOpenAIAPIKey] = cmd.OpenAIAPIKey
	}
	if len(kv) == 0 {
		return &config.ConfigError{
			Msg:  "nothing to store",
			Hint: "pass at least one of --ft-client-id, --ft-client-secret, --openai-api-key",
		}
	}

	ctx := context.Background()
	app, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := app.store.SetSettings(ctx, kv); err != nil {
		return err
	}

	c.Log.Info().Int("keys", len(kv)).Msg("secrets stored")
	return nil
}
