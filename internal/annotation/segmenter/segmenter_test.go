package segmenter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marginalia/internal/annotation/models"
	id "marginalia/pkg/domain"
)

func ann(t *testing.T, start, end int, text string) *models.Annotation {
	t.Helper()
	exact := ""
	if start >= 0 && end <= len(text) && start < end {
		exact = text[start:end]
	}
	return &models.Annotation{
		ID:         id.NewAnnotationID(),
		Motivation: models.MotivationHighlighting,
		Target:     models.Target{Source: "urn:marginalia:doc:test", Exact: exact, Start: start, End: end},
	}
}

func joined(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

func TestSegmentize_OverlapDropsLaterStart(t *testing.T) {
	text := "Hello world, this is a test"
	first := ann(t, 0, 5, text)
	second := ann(t, 3, 8, text)

	plan := Compute(text, []*models.Annotation{first, second})

	require.Len(t, plan.Segments, 2)
	assert.Equal(t, "Hello", plan.Segments[0].Text)
	assert.Equal(t, first.ID, plan.Segments[0].Annotation.ID)
	assert.Equal(t, " world, this is a test", plan.Segments[1].Text)
	assert.Nil(t, plan.Segments[1].Annotation)

	require.Len(t, plan.Dropped, 1)
	assert.Equal(t, second.ID, plan.Dropped[0].Annotation.ID)
	assert.Equal(t, DropOverlap, plan.Dropped[0].Reason)
}

func TestSegmentize_EmptyInputsYieldOneSegment(t *testing.T) {
	t.Run("empty text and no annotations", func(t *testing.T) {
		segments := Segmentize("", nil)
		require.Len(t, segments, 1)
		assert.Equal(t, "", segments[0].Text)
		assert.Nil(t, segments[0].Annotation)
	})

	t.Run("text without annotations", func(t *testing.T) {
		segments := Segmentize("plain text", nil)
		require.Len(t, segments, 1)
		assert.Equal(t, "plain text", segments[0].Text)
	})

	t.Run("empty text with annotations", func(t *testing.T) {
		segments := Segmentize("", []*models.Annotation{ann(t, 0, 5, "")})
		require.Len(t, segments, 1)
		assert.Equal(t, "", segments[0].Text)
	})
}

func TestSegmentize_InvalidOffsetsExcludedWithoutPanic(t *testing.T) {
	text := "0123456789"
	tests := []struct {
		name       string
		start, end int
	}{
		{"negative start", -1, 2},
		{"end past text", 5, 11},
		{"collapsed", 4, 4},
		{"inverted", 7, 3},
		{"both far out", -100, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := ann(t, tt.start, tt.end, text)
			plan := Compute(text, []*models.Annotation{bad})

			require.Len(t, plan.Segments, 1)
			assert.Equal(t, text, plan.Segments[0].Text)
			require.Len(t, plan.Dropped, 1)
			assert.Equal(t, DropInvalid, plan.Dropped[0].Reason)
		})
	}
}

func TestSegmentize_NilAnnotationsSkipped(t *testing.T) {
	text := "some text"
	segments := Segmentize(text, []*models.Annotation{nil, ann(t, 0, 4, text), nil})
	assert.Equal(t, text, joined(segments))
}

// TestSegmentize_RoundTrip is the lossless-reconstruction property: the
// concatenation of segment texts equals the source for any input mix.
func TestSegmentize_RoundTrip(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog"
	cases := [][]*models.Annotation{
		nil,
		{ann(t, 0, 3, text)},
		{ann(t, 4, 9, text), ann(t, 16, 19, text)},
		{ann(t, 0, 3, text), ann(t, 1, 5, text), ann(t, 3, 9, text)},
		{ann(t, 0, len(text), text)},
		{ann(t, -5, 2, text), ann(t, 10, 15, text), ann(t, 12, 20, text)},
		{ann(t, 40, 43, text), ann(t, 0, 1, text)},
	}

	for _, anns := range cases {
		assert.Equal(t, text, joined(Segmentize(text, anns)))
	}
}

func TestSegmentize_PositionPreservation(t *testing.T) {
	text := "annotate me precisely"
	a := ann(t, 9, 11, text)
	b := ann(t, 12, 21, text)

	plan := Compute(text, []*models.Annotation{b, a})

	for _, s := range plan.Segments {
		if s.Annotation == nil {
			continue
		}
		assert.Equal(t, text[s.Start:s.End], s.Text)
		assert.Equal(t, s.Annotation.Target.Exact, s.Text)
		assert.Equal(t, s.Annotation.Target.Start, s.Start)
		assert.Equal(t, s.Annotation.Target.End, s.End)
	}
}

func TestSegmentize_NonOverlap(t *testing.T) {
	text := strings.Repeat("abcdef ", 10)
	anns := []*models.Annotation{
		ann(t, 0, 10, text), ann(t, 5, 15, text), ann(t, 10, 20, text),
		ann(t, 18, 25, text), ann(t, 30, 40, text),
	}

	segments := Segmentize(text, anns)

	covered := make([]bool, len(text))
	for _, s := range segments {
		if s.Annotation == nil {
			continue
		}
		for i := s.Start; i < s.End; i++ {
			require.False(t, covered[i], "index %d covered twice", i)
			covered[i] = true
		}
	}
}

// TestSegmentize_Idempotence verifies that segmenting the same inputs twice
// yields structurally identical output, including drop records.
func TestSegmentize_Idempotence(t *testing.T) {
	text := "deterministic output please"
	anns := []*models.Annotation{
		ann(t, 2, 8, text), ann(t, 4, 10, text), ann(t, 14, 20, text),
	}

	first := Compute(text, anns)
	second := Compute(text, anns)

	assert.Equal(t, first, second)
}

// TestSegmentize_IncrementalStability verifies that removing the most
// recently added annotation leaves every other segment untouched.
func TestSegmentize_IncrementalStability(t *testing.T) {
	text := "stability under removal of the newest annotation"
	stable := []*models.Annotation{ann(t, 0, 9, text), ann(t, 16, 23, text)}
	newest := ann(t, 31, 37, text)

	with := Segmentize(text, append(append([]*models.Annotation{}, stable...), newest))
	without := Segmentize(text, stable)

	for _, s := range without {
		if s.Annotation == nil {
			continue
		}
		found := false
		for _, ws := range with {
			if ws.Annotation != nil && ws.Annotation.ID == s.Annotation.ID {
				assert.Equal(t, s.Text, ws.Text)
				assert.Equal(t, s.Start, ws.Start)
				assert.Equal(t, s.End, ws.End)
				found = true
			}
		}
		assert.True(t, found)
	}
}

func TestSegmentize_TieOnStartKeepsInputOrder(t *testing.T) {
	text := "tie breaking"
	first := ann(t, 0, 3, text)
	second := ann(t, 0, 5, text)

	plan := Compute(text, []*models.Annotation{first, second})

	require.NotEmpty(t, plan.Segments)
	assert.Equal(t, first.ID, plan.Segments[0].Annotation.ID)
	require.Len(t, plan.Dropped, 1)
	assert.Equal(t, second.ID, plan.Dropped[0].Annotation.ID)
}

func TestSegmentize_AdjacentSpansLeaveNoGapSegment(t *testing.T) {
	text := "abcdef"
	plan := Compute(text, []*models.Annotation{ann(t, 0, 3, text), ann(t, 3, 6, text)})

	require.Len(t, plan.Segments, 2)
	assert.Equal(t, "abc", plan.Segments[0].Text)
	assert.Equal(t, "def", plan.Segments[1].Text)
	assert.Empty(t, plan.Dropped)
}

func TestPlanKept(t *testing.T) {
	text := "kept annotations in render order"
	late := ann(t, 20, 26, text)
	early := ann(t, 0, 4, text)
	overlap := ann(t, 2, 6, text)

	plan := Compute(text, []*models.Annotation{late, early, overlap})

	kept := plan.Kept()
	require.Len(t, kept, 2)
	assert.Equal(t, early.ID, kept[0].ID)
	assert.Equal(t, late.ID, kept[1].ID)
}

func TestFingerprint(t *testing.T) {
	text := "fingerprint stability"
	a := ann(t, 0, 11, text)
	b := ann(t, 12, 21, text)

	t.Run("identical plans share a fingerprint", func(t *testing.T) {
		p1 := Compute(text, []*models.Annotation{a, b})
		p2 := Compute(text, []*models.Annotation{a, b})
		assert.Equal(t, p1.Fingerprint(), p2.Fingerprint())
	})

	t.Run("dropped annotations do not contribute", func(t *testing.T) {
		overlap := ann(t, 5, 14, text)
		with := Compute(text, []*models.Annotation{a, overlap, b})
		without := Compute(text, []*models.Annotation{a, b})
		assert.Equal(t, without.Fingerprint(), with.Fingerprint())
	})

	t.Run("different sets differ", func(t *testing.T) {
		p1 := Compute(text, []*models.Annotation{a})
		p2 := Compute(text, []*models.Annotation{a, b})
		assert.NotEqual(t, p1.Fingerprint(), p2.Fingerprint())
	})

	t.Run("resolution state contributes", func(t *testing.T) {
		ref := ann(t, 0, 11, text)
		ref.Motivation = models.MotivationLinking
		stub := Compute(text, []*models.Annotation{ref})
		stubFP := stub.Fingerprint()

		ref.Body = models.ResourceBody("doc-42", nil, "")
		resolved := Compute(text, []*models.Annotation{ref})
		assert.NotEqual(t, stubFP, resolved.Fingerprint())
	})

	t.Run("empty plan still fingerprints", func(t *testing.T) {
		assert.NotEmpty(t, Compute("", nil).Fingerprint())
	})
}
