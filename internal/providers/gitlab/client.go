// Package gitlab talks to the source-control host's merge-request APIs.
// Discussion creation goes through a small custom HTTP client so the
// position payload is sent exactly as the API documents it; listing and
// diff fetching use the official client.
package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reviewpilot/pkg/models"
)

// TokenSource yields the token to authenticate the next API call with.
// Implementations are expected to serve cached tokens cheaply.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is a custom HTTP client for the merge-request APIs.
type Client struct {
	baseURL string
	rawURL  string
	tokens  TokenSource
	client  *http.Client
}

// NewClient creates a client for the GitLab instance at baseURL. A nil
// HTTP client defaults to one with a 30s timeout.
func NewClient(baseURL string, tokens TokenSource, httpClient *http.Client) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: fmt.Sprintf("%s/api/v4", baseURL),
		rawURL:  baseURL,
		tokens:  tokens,
		client:  httpClient,
	}
}

// mergeRequestDetail is the subset of the MR detail payload we need for
// positioning comments.
type mergeRequestDetail struct {
	IID      int    `json:"iid"`
	SHA      string `json:"sha"`
	DiffRefs struct {
		BaseSHA  string `json:"base_sha"`
		HeadSHA  string `json:"head_sha"`
		StartSHA string `json:"start_sha"`
	} `json:"diff_refs"`
}

// GetChangeRef fetches the commit identifiers of a merge request. All
// comments of a submission batch share the returned ref.
func (c *Client) GetChangeRef(ctx context.Context, projectID string, changeIID int) (*models.ChangeRef, error) {
	requestURL := fmt.Sprintf("%s/projects/%s/merge_requests/%d",
		c.baseURL, url.PathEscape(projectID), changeIID)

	body, err := c.do(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	var detail mergeRequestDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("failed to decode merge request: %w", err)
	}

	headSHA := detail.SHA
	if headSHA == "" {
		headSHA = detail.DiffRefs.HeadSHA
	}

	ref := &models.ChangeRef{
		ProjectID: projectID,
		ChangeIID: changeIID,
		HeadSHA:   headSHA,
		BaseSHA:   detail.DiffRefs.BaseSHA,
		StartSHA:  detail.DiffRefs.StartSHA,
	}
	if ref.HeadSHA == "" || ref.BaseSHA == "" || ref.StartSHA == "" {
		return nil, fmt.Errorf("merge request %s!%d is missing diff refs", projectID, changeIID)
	}
	return ref, nil
}

// CreateDiscussion posts one comment anchored at the given position.
func (c *Client) CreateDiscussion(ctx context.Context, projectID string, changeIID int, body string, position *models.DiffPosition) error {
	requestURL := fmt.Sprintf("%s/projects/%s/merge_requests/%d/discussions",
		c.baseURL, url.PathEscape(projectID), changeIID)

	requestData := map[string]interface{}{
		"body": body,
	}
	if position != nil {
		requestData["position"] = position
	}

	payload, err := json.Marshal(requestData)
	if err != nil {
		return fmt.Errorf("failed to marshal discussion request: %w", err)
	}

	if _, err := c.do(ctx, http.MethodPost, requestURL, payload); err != nil {
		return fmt.Errorf("failed to create discussion: %w", err)
	}
	return nil
}

// do executes one authenticated request and maps the response status onto
// the shared error kinds.
func (c *Client) do(ctx context.Context, method, requestURL string, payload []byte) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("PRIVATE-TOKEN", token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w: %v", models.ErrHostUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, classifyStatus(resp.StatusCode, body)
	}
	return body, nil
}

// classifyStatus converts a non-success API status into a typed error.
func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("API request returned status %d: %w", status, models.ErrCredentialRejected)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("API request returned status %d: %w", status, models.ErrRateLimited)
	case status >= 500:
		return fmt.Errorf("API request returned status %d: %w", status, models.ErrHostUnavailable)
	default:
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		log.Debug().Int("status", status).Str("body", msg).Msg("API request failed")
		return fmt.Errorf("API request failed with status %d: %s", status, msg)
	}
}
