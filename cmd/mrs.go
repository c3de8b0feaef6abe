package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/reviewpilot/internal/providers/gitlab"
	"github.com/reviewpilot/internal/retry"
	"github.com/reviewpilot/pkg/models"
)

// MrsCommand returns the mrs command
func MrsCommand() *cli.Command {
	return &cli.Command{
		Name:   "mrs",
		Usage:  "List open merge requests where you are a reviewer or assignee",
		Action: runMrs,
	}
}

func runMrs(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	resolver, err := newResolver(cfg)
	if err != nil {
		return err
	}

	client := gitlab.NewClient(cfg.GitLab.URL, resolver.Source(models.CredentialPrimary), nil)

	var mrs []models.MergeRequestSummary
	err = retry.Do(c.Context, retry.DefaultConfig(), func() error {
		mrs, err = client.ListAssignedMergeRequests(c.Context)
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrCredentialRejected) {
			resolver.Invalidate(models.CredentialPrimary)
			return fmt.Errorf("credential rejected, run `reviewpilot login` and retry: %w", err)
		}
		return fmt.Errorf("failed to list merge requests: %w", err)
	}

	if len(mrs) == 0 {
		fmt.Println("No open merge requests assigned to you")
		return nil
	}

	for _, mr := range mrs {
		fmt.Printf("!%d [%s] %s (%s -> %s)\n    %s\n",
			mr.IID, mr.UserRole, mr.Title, mr.SourceBranch, mr.TargetBranch, mr.WebURL)
	}
	return nil
}
