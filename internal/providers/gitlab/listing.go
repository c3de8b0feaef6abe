package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/reviewpilot/pkg/models"
)

// apiClient builds an official-client handle authenticated with the current
// token. A fresh handle per call keeps the token from going stale across
// refreshes.
func (c *Client) apiClient(ctx context.Context) (*gitlab.Client, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	glab, err := gitlab.NewClient(token,
		gitlab.WithBaseURL(c.baseURL),
		gitlab.WithHTTPClient(c.client),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}
	return glab, nil
}

// ListAssignedMergeRequests returns the open merge requests where the
// current user is a reviewer and/or an assignee, newest activity first.
// Requests appearing in both lists are collapsed into one entry with the
// role marked "both".
func (c *Client) ListAssignedMergeRequests(ctx context.Context) ([]models.MergeRequestSummary, error) {
	glab, err := c.apiClient(ctx)
	if err != nil {
		return nil, err
	}

	user, resp, err := glab.Users.CurrentUser(gitlab.WithContext(ctx))
	if err != nil {
		return nil, classifyClientError(resp, err)
	}

	reviewerMRs, err := c.listMergeRequests(ctx, glab, &gitlab.ListMergeRequestsOptions{
		ReviewerID: gitlab.ReviewerID(user.ID),
		State:      gitlab.Ptr("opened"),
		OrderBy:    gitlab.Ptr("updated_at"),
		Sort:       gitlab.Ptr("desc"),
	})
	if err != nil {
		return nil, err
	}

	assigneeMRs, err := c.listMergeRequests(ctx, glab, &gitlab.ListMergeRequestsOptions{
		AssigneeID: gitlab.AssigneeID(user.ID),
		State:      gitlab.Ptr("opened"),
		Scope:      gitlab.Ptr("assigned_to_me"),
		OrderBy:    gitlab.Ptr("updated_at"),
		Sort:       gitlab.Ptr("desc"),
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[int]int, len(reviewerMRs))
	merged := make([]models.MergeRequestSummary, 0, len(reviewerMRs)+len(assigneeMRs))
	for _, mr := range reviewerMRs {
		mr.UserRole = "reviewer"
		byID[mr.ID] = len(merged)
		merged = append(merged, mr)
	}
	for _, mr := range assigneeMRs {
		if i, ok := byID[mr.ID]; ok {
			merged[i].UserRole = "both"
			continue
		}
		mr.UserRole = "assignee"
		merged = append(merged, mr)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].UpdatedAt.After(merged[j].UpdatedAt)
	})

	return merged, nil
}

func (c *Client) listMergeRequests(ctx context.Context, glab *gitlab.Client, opts *gitlab.ListMergeRequestsOptions) ([]models.MergeRequestSummary, error) {
	var all []models.MergeRequestSummary
	opts.ListOptions = gitlab.ListOptions{Page: 1, PerPage: 100}

	for {
		mrs, resp, err := glab.MergeRequests.ListMergeRequests(opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, classifyClientError(resp, err)
		}

		for _, mr := range mrs {
			summary := models.MergeRequestSummary{
				ID:           mr.ID,
				IID:          mr.IID,
				ProjectID:    mr.ProjectID,
				Title:        mr.Title,
				State:        mr.State,
				SourceBranch: mr.SourceBranch,
				TargetBranch: mr.TargetBranch,
				WebURL:       mr.WebURL,
			}
			if mr.UpdatedAt != nil {
				summary.UpdatedAt = *mr.UpdatedAt
			}
			all = append(all, summary)
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// ListChangedFiles fetches the change list of a merge request. The raw diff
// text is passed through for the external annotation collaborator.
func (c *Client) ListChangedFiles(ctx context.Context, projectID string, changeIID int) ([]models.ChangedFile, error) {
	glab, err := c.apiClient(ctx)
	if err != nil {
		return nil, err
	}

	var all []models.ChangedFile
	opts := &gitlab.ListMergeRequestDiffsOptions{
		ListOptions: gitlab.ListOptions{Page: 1, PerPage: 100},
	}

	for {
		diffs, resp, err := glab.MergeRequests.ListMergeRequestDiffs(projectID, changeIID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, classifyClientError(resp, err)
		}

		for _, d := range diffs {
			all = append(all, models.ChangedFile{
				OldPath:     d.OldPath,
				NewPath:     d.NewPath,
				NewFile:     d.NewFile,
				RenamedFile: d.RenamedFile,
				DeletedFile: d.DeletedFile,
				Diff:        d.Diff,
			})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// classifyClientError maps official-client failures onto the shared error
// kinds so callers do not depend on the client's error text.
func classifyClientError(resp *gitlab.Response, err error) error {
	if resp == nil {
		return fmt.Errorf("request failed: %w: %v", models.ErrHostUnavailable, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("API request returned status %d: %w", resp.StatusCode, models.ErrCredentialRejected)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("API request returned status %d: %w", resp.StatusCode, models.ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("API request returned status %d: %w", resp.StatusCode, models.ErrHostUnavailable)
	default:
		return fmt.Errorf("API request failed with status %d: %w", resp.StatusCode, err)
	}
}
