package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/reviewpilot/internal/providers/gitlab"
	"github.com/reviewpilot/internal/review"
	"github.com/reviewpilot/pkg/models"
)

// SubmitCommand returns the submit command
func SubmitCommand() *cli.Command {
	return &cli.Command{
		Name:  "submit",
		Usage: "Post a batch of review comments onto a merge request diff",
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
			&cli.StringFlag{
				Name:    "comments",
				Aliases: []string{"f"},
				Usage:   "Load review comments from JSON `FILE` (- for stdin)",
				Value:   "-",
			},
		},
		Action: runSubmit,
	}
}

func runSubmit(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	comments, err := readComments(c.String("comments"))
	if err != nil {
		return err
	}
	if len(comments) == 0 {
		return fmt.Errorf("no comments to submit")
	}

	resolver, err := newResolver(cfg)
	if err != nil {
		return err
	}

	client := gitlab.NewClient(cfg.GitLab.URL, resolver.Source(models.CredentialPrimary), nil)
	pipeline := review.NewPipeline(client, resolver)

	outcomes, err := pipeline.Submit(c.Context, c.String("project"), c.Int("mr"), comments)

	for _, o := range outcomes {
		if o.Posted {
			fmt.Printf("posted  %s:%d\n", o.Comment.FilePath, o.Comment.LineNumber)
		} else {
			fmt.Printf("failed  %s:%d: %v\n", o.Comment.FilePath, o.Comment.LineNumber, o.Err)
		}
	}

	if err != nil {
		if errors.Is(err, models.ErrCredentialRejected) {
			return fmt.Errorf("credential rejected, run `reviewpilot login` and retry: %w", err)
		}
		var subErr *review.SubmissionError
		if errors.As(err, &subErr) {
			return fmt.Errorf("batch finished with failures: %w", err)
		}
		return err
	}

	fmt.Printf("Posted %d comments\n", len(outcomes))
	return nil
}

// readComments parses the submitted batch from a JSON file or stdin.
func readComments(path string) ([]models.ReviewComment, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read comments: %w", err)
	}

	var comments []models.ReviewComment
	if err := json.Unmarshal(data, &comments); err != nil {
		return nil, fmt.Errorf("failed to parse comments: %w", err)
	}

	for i, c := range comments {
		if c.FilePath == "" || c.LineNumber <= 0 {
			return nil, fmt.Errorf("comment %d is missing a file path or a positive line number", i)
		}
	}
	return comments, nil
}
