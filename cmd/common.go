package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/reviewpilot/internal/config"
	"github.com/reviewpilot/internal/credentials"
)

// loadConfig loads and validates the configuration for a command.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newStore builds the credential store backend the configuration selects.
func newStore(cfg *config.Config) (credentials.Store, error) {
	switch cfg.Credentials.Backend {
	case "keyring":
		return credentials.NewKeyringStore(), nil
	case "file":
		return credentials.NewFileStore(cfg.Credentials.Dir), nil
	default:
		return nil, fmt.Errorf("unsupported credentials backend %q", cfg.Credentials.Backend)
	}
}

// newResolver builds the credential resolver over the configured store.
func newResolver(cfg *config.Config) (*credentials.Resolver, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	return credentials.NewResolver(store, credentials.ExchangeConfig{
		TokenURL:            cfg.Copilot.TokenURL,
		UserAgent:           cfg.Copilot.UserAgent,
		EditorVersion:       cfg.Copilot.EditorVersion,
		EditorPluginVersion: cfg.Copilot.EditorPluginVersion,
	}, nil), nil
}
