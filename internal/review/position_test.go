package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewpilot/pkg/models"
)

var testRef = models.ChangeRef{
	ProjectID: "group/project",
	ChangeIID: 42,
	HeadSHA:   "abcdef1234567890",
	BaseSHA:   "1234567890abcdef",
	StartSHA:  "9876543210abcdef",
}

func TestResolvePositionLineAssignment(t *testing.T) {
	tests := []struct {
		name     string
		diffType models.DiffType
		wantNew  bool
		wantOld  bool
	}{
		{"added line gets new_line only", models.DiffAdded, true, false},
		{"deleted line gets old_line only", models.DiffDeleted, false, true},
		{"unchanged line gets both", models.DiffUnchanged, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comment := models.ReviewComment{
				FilePath:   "src/main.go",
				LineNumber: 17,
				Comment:    "check this",
				Severity:   models.SeverityWarning,
				DiffType:   tt.diffType,
			}

			pos := ResolvePosition(comment, testRef)

			assert.Equal(t, "text", pos.PositionType)
			assert.Equal(t, testRef.BaseSHA, pos.BaseSHA)
			assert.Equal(t, testRef.HeadSHA, pos.HeadSHA)
			assert.Equal(t, testRef.StartSHA, pos.StartSHA)
			assert.Equal(t, "src/main.go", pos.NewPath)
			assert.Equal(t, "src/main.go", pos.OldPath)

			if tt.wantNew {
				require.NotNil(t, pos.NewLine)
				assert.Equal(t, 17, *pos.NewLine)
			} else {
				assert.Nil(t, pos.NewLine)
			}
			if tt.wantOld {
				require.NotNil(t, pos.OldLine)
				assert.Equal(t, 17, *pos.OldLine)
			} else {
				assert.Nil(t, pos.OldLine)
			}
		})
	}
}

func TestResolvePositionSameFileBothSides(t *testing.T) {
	// Comments on both sides of the same file and line resolve to distinct
	// positions that share the batch's SHAs.
	added := models.ReviewComment{FilePath: "fileA", LineNumber: 10, Comment: "x", DiffType: models.DiffAdded}
	deleted := models.ReviewComment{FilePath: "fileA", LineNumber: 10, Comment: "y", DiffType: models.DiffDeleted}

	posAdded := ResolvePosition(added, testRef)
	posDeleted := ResolvePosition(deleted, testRef)

	require.NotNil(t, posAdded.NewLine)
	assert.Equal(t, 10, *posAdded.NewLine)
	assert.Nil(t, posAdded.OldLine)

	require.NotNil(t, posDeleted.OldLine)
	assert.Equal(t, 10, *posDeleted.OldLine)
	assert.Nil(t, posDeleted.NewLine)

	for _, pos := range []*models.DiffPosition{posAdded, posDeleted} {
		assert.Equal(t, testRef.BaseSHA, pos.BaseSHA)
		assert.Equal(t, testRef.HeadSHA, pos.HeadSHA)
		assert.Equal(t, testRef.StartSHA, pos.StartSHA)
	}
}

func TestResolvePositionNormalizesLeadingSlash(t *testing.T) {
	comment := models.ReviewComment{FilePath: "/src/util.go", LineNumber: 3, DiffType: models.DiffAdded}

	pos := ResolvePosition(comment, testRef)

	assert.Equal(t, "src/util.go", pos.NewPath)
	assert.Equal(t, "src/util.go", pos.OldPath)
}
