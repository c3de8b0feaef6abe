package models

import (
	"time"
)

// CredentialKind identifies which of the two token tiers a credential
// belongs to.
type CredentialKind string

const (
	// CredentialPrimary is the long-lived token obtained from the
	// device-authorization flow.
	CredentialPrimary CredentialKind = "primary"
	// CredentialSecondary is the shorter-lived token exchanged using the
	// primary credential.
	CredentialSecondary CredentialKind = "secondary"
)

// Credential is a stored token with its issuance and expiry timestamps.
// At most one record per kind is retained; a new record overwrites the
// previous one of the same kind.
type Credential struct {
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the credential can still be used at the given time.
func (c *Credential) Valid(now time.Time) bool {
	return c != nil && c.Token != "" && c.ExpiresAt.After(now)
}

// DeviceAuthorizationSession is the transient state of one device-flow
// authorization attempt. It is never persisted; it lives only for the
// duration of a single polling loop.
type DeviceAuthorizationSession struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// DiffType classifies the line a review comment is anchored to.
type DiffType string

const (
	DiffUnchanged DiffType = "unchanged"
	DiffAdded     DiffType = "added"
	DiffDeleted   DiffType = "deleted"
)

// CommentSeverity represents the severity level of a review comment
type CommentSeverity string

const (
	SeverityInfo    CommentSeverity = "info"
	SeverityWarning CommentSeverity = "warning"
	SeverityError   CommentSeverity = "error"
)

// ReviewComment is a single annotation to be posted onto a change. The
// comment text is opaque to this system; it is produced elsewhere.
type ReviewComment struct {
	FilePath   string          `json:"filePath"`
	LineNumber int             `json:"lineNumber"`
	Comment    string          `json:"comment"`
	Severity   CommentSeverity `json:"severity"`
	DiffType   DiffType        `json:"diffType"`
}

// ChangeRef carries the commit identifiers of a proposed change. It is
// fetched once per submission batch; every comment in the batch shares it.
type ChangeRef struct {
	ProjectID string
	ChangeIID int
	HeadSHA   string
	BaseSHA   string
	StartSHA  string
}

// DiffPosition anchors a comment to a specific line of a specific diff,
// in the wire shape the discussions endpoint expects. Exactly one of
// NewLine/OldLine is set for added/deleted lines; both are set for
// unchanged lines.
type DiffPosition struct {
	PositionType string `json:"position_type"`
	BaseSHA      string `json:"base_sha"`
	HeadSHA      string `json:"head_sha"`
	StartSHA     string `json:"start_sha"`
	NewPath      string `json:"new_path"`
	OldPath      string `json:"old_path"`
	NewLine      *int   `json:"new_line,omitempty"`
	OldLine      *int   `json:"old_line,omitempty"`
}

// CommentOutcome records the result of posting one comment of a batch.
type CommentOutcome struct {
	Comment ReviewComment
	Posted  bool
	Err     error
}

// MergeRequestSummary is one row of the assigned merge-request listing.
type MergeRequestSummary struct {
	ID           int
	IID          int
	ProjectID    int
	Title        string
	State        string
	SourceBranch string
	TargetBranch string
	WebURL       string
	UpdatedAt    time.Time
	UserRole     string // "reviewer", "assignee" or "both"
}

// ChangedFile is one file entry of a merge request's change list. The diff
// text is passed through untouched for the external annotation collaborator.
type ChangedFile struct {
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path"`
	NewFile     bool   `json:"new_file"`
	RenamedFile bool   `json:"renamed_file"`
	DeletedFile bool   `json:"deleted_file"`
	Diff        string `json:"diff"`
}
