package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/reviewpilot/internal/providers/gitlab"
	"github.com/reviewpilot/internal/retry"
	"github.com/reviewpilot/pkg/models"
)

// ChangesCommand returns the changes command
func ChangesCommand() *cli.Command {
	return &cli.Command{
		Name:  "changes",
		Usage: "Print the changed files of a merge request as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "project",
				Aliases:  []string{"p"},
				Usage:    "Project ID or URL-encoded path",
				Required: true,
			},
			&cli.IntFlag{
				Name:     "mr",
				Aliases:  []string{"m"},
				Usage:    "Merge request IID",
				Required: true,
			},
		},
		Action: runChanges,
	}
}

func runChanges(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	resolver, err := newResolver(cfg)
	if err != nil {
		return err
	}

	client := gitlab.NewClient(cfg.GitLab.URL, resolver.Source(models.CredentialPrimary), nil)

	var files []models.ChangedFile
	err = retry.Do(c.Context, retry.DefaultConfig(), func() error {
		files, err = client.ListChangedFiles(c.Context, c.String("project"), c.Int("mr"))
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrCredentialRejected) {
			resolver.Invalidate(models.CredentialPrimary)
			return fmt.Errorf("credential rejected, run `reviewpilot login` and retry: %w", err)
		}
		return fmt.Errorf("failed to fetch changes: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(files)
}
