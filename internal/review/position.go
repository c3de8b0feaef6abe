// Package review resolves comment positions on a diff and submits review
// annotation batches to the merge-request discussions API.
package review

import (
	"strings"

	"github.com/reviewpilot/pkg/models"
)

// ResolvePosition maps a comment onto the exact position record the
// discussions API needs to anchor it. The line assignment is the
// load-bearing contract of the submission feature:
//
//	added     -> new_line only
//	deleted   -> old_line only
//	unchanged -> both lines
//
// Renames are not tracked for anchoring; both paths carry the current
// file path. Pure function, no I/O.
func ResolvePosition(comment models.ReviewComment, ref models.ChangeRef) *models.DiffPosition {
	// Normalize file path (remove leading slash)
	path := strings.TrimPrefix(comment.FilePath, "/")

	pos := &models.DiffPosition{
		PositionType: "text",
		BaseSHA:      ref.BaseSHA,
		HeadSHA:      ref.HeadSHA,
		StartSHA:     ref.StartSHA,
		NewPath:      path,
		OldPath:      path,
	}

	line := comment.LineNumber
	switch comment.DiffType {
	case models.DiffAdded:
		pos.NewLine = &line
	case models.DiffDeleted:
		pos.OldLine = &line
	default:
		// Unchanged lines exist identically on both sides
		pos.NewLine = &line
		pos.OldLine = &line
	}

	return pos
}
