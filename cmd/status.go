package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/reviewpilot/pkg/models"
)

// StatusCommand returns the status command
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show which credentials are stored and when they expire",
		Action: runStatus,
	}
}

func runStatus(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := newStore(cfg)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, kind := range []models.CredentialKind{models.CredentialPrimary, models.CredentialSecondary} {
		cred, err := store.Load(kind)
		if err != nil {
			return fmt.Errorf("failed to load %s credential: %w", kind, err)
		}
		switch {
		case cred == nil:
			fmt.Printf("%-10s absent\n", kind)
		case cred.Valid(now):
			fmt.Printf("%-10s valid until %s\n", kind, cred.ExpiresAt.Format(time.RFC1123))
		default:
			fmt.Printf("%-10s expired at %s\n", kind, cred.ExpiresAt.Format(time.RFC1123))
		}
	}

	return nil
}
