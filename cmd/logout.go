package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/reviewpilot/pkg/models"
)

// LogoutCommand returns the logout command
func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Discard all stored credentials",
		Action: runLogout,
	}
}

func runLogout(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := newStore(cfg)
	if err != nil {
		return err
	}

	// Clearing an absent record is fine; both kinds go together
	for _, kind := range []models.CredentialKind{models.CredentialPrimary, models.CredentialSecondary} {
		if err := store.Clear(kind); err != nil {
			return fmt.Errorf("failed to clear %s credential: %w", kind, err)
		}
	}

	fmt.Println("Logged out")
	return nil
}
