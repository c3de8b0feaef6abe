package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/reviewpilot/pkg/models"
)

// ChangeClient is the slice of the merge-request API the pipeline needs.
type ChangeClient interface {
	GetChangeRef(ctx context.Context, projectID string, changeIID int) (*models.ChangeRef, error)
	CreateDiscussion(ctx context.Context, projectID string, changeIID int, body string, position *models.DiffPosition) error
}

// CredentialInvalidator purges a stored credential after the remote
// rejected it.
type CredentialInvalidator interface {
	Invalidate(kind models.CredentialKind) error
}

// SubmissionError reports a batch where one or more comments failed to
// post. Comments that succeeded before or after a failure stay posted;
// the outcomes list which ones failed and why.
type SubmissionError struct {
	Outcomes []models.CommentOutcome
}

func (e *SubmissionError) Error() string {
	failed := 0
	for _, o := range e.Outcomes {
		if !o.Posted {
			failed++
		}
	}
	return fmt.Sprintf("%d of %d comments failed to post", failed, len(e.Outcomes))
}

// Pipeline submits review comment batches onto a merge request diff.
type Pipeline struct {
	client ChangeClient
	creds  CredentialInvalidator
}

// NewPipeline creates a submission pipeline.
func NewPipeline(client ChangeClient, creds CredentialInvalidator) *Pipeline {
	return &Pipeline{client: client, creds: creds}
}

// Submit posts the comments in input order, one discussion-creation call
// each, against the change's current diff. Submission is not transactional:
// a failed comment does not roll back earlier ones and does not stop later
// ones. The only early abort is a credential rejection, since no further
// call in the batch could succeed with a purged credential.
func (p *Pipeline) Submit(ctx context.Context, projectID string, changeIID int, comments []models.ReviewComment) ([]models.CommentOutcome, error) {
	batchID := uuid.NewString()
	logger := log.With().
		Str("batch_id", batchID).
		Str("project_id", projectID).
		Int("change_iid", changeIID).
		Logger()

	// One round trip; every comment in the batch shares the ref.
	ref, err := p.client.GetChangeRef(ctx, projectID, changeIID)
	if err != nil {
		if errors.Is(err, models.ErrCredentialRejected) {
			p.invalidate()
		}
		return nil, fmt.Errorf("failed to fetch change ref: %w", err)
	}

	logger.Debug().
		Str("head_sha", ref.HeadSHA).
		Str("base_sha", ref.BaseSHA).
		Str("start_sha", ref.StartSHA).
		Int("comments", len(comments)).
		Msg("Submitting review batch")

	outcomes := make([]models.CommentOutcome, 0, len(comments))
	failed := false

	for _, comment := range comments {
		position := ResolvePosition(comment, *ref)
		err := p.client.CreateDiscussion(ctx, projectID, changeIID, comment.Comment, position)
		if err != nil {
			if errors.Is(err, models.ErrCredentialRejected) {
				p.invalidate()
				return outcomes, err
			}
			logger.Warn().
				Err(err).
				Str("file", comment.FilePath).
				Int("line", comment.LineNumber).
				Msg("Failed to post comment")
			failed = true
		}
		outcomes = append(outcomes, models.CommentOutcome{
			Comment: comment,
			Posted:  err == nil,
			Err:     err,
		})
	}

	if failed {
		return outcomes, &SubmissionError{Outcomes: outcomes}
	}
	logger.Debug().Int("posted", len(outcomes)).Msg("Review batch submitted")
	return outcomes, nil
}

func (p *Pipeline) invalidate() {
	if p.creds == nil {
		return
	}
	if err := p.creds.Invalidate(models.CredentialPrimary); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate rejected credential")
	}
}
