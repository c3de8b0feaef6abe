package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/reviewpilot/internal/auth"
)

// LoginCommand returns the login command
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:   "login",
		Usage:  "Authorize with the source-control host via the device flow",
		Action: runLogin,
	}
}

func runLogin(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := newStore(cfg)
	if err != nil {
		return err
	}

	authenticator := auth.New(auth.Config{
		BaseURL:  cfg.GitHub.BaseURL,
		ClientID: cfg.GitHub.ClientID,
		Scope:    cfg.GitHub.Scope,
	}, store, nil, nil)

	// Ctrl-C abandons the poll without side effects
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	session, err := authenticator.RequestDeviceCode(ctx)
	if err != nil {
		return fmt.Errorf("failed to request device code: %w", err)
	}

	fmt.Printf("Open %s and enter the code: %s\n", session.VerificationURI, session.UserCode)
	fmt.Printf("Waiting for authorization (expires in %s)...\n",
		time.Duration(session.ExpiresIn)*time.Second)

	cred, err := authenticator.PollForToken(ctx, session)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return fmt.Errorf("authorization cancelled")
		}
		return fmt.Errorf("authorization failed: %w", err)
	}

	fmt.Printf("Logged in. Credential valid until %s.\n",
		cred.ExpiresAt.Format(time.RFC1123))
	return nil
}
