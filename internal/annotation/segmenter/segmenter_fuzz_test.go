//go:build go1.18

package segmenter

import (
	"strings"
	"testing"

	"marginalia/internal/annotation/models"
	id "marginalia/pkg/domain"
)

// FuzzSegmentizeRoundTrip drives the segmenter with arbitrary text and
// offsets, including hostile ones, and checks the invariants that must hold
// for every input: no panic, lossless reconstruction, at least one segment,
// and no overlapping annotated spans.
func FuzzSegmentizeRoundTrip(f *testing.F) {
	f.Add("Hello world, this is a test", 0, 5, 3, 8)
	f.Add("", 0, 0, 0, 0)
	f.Add("abc", -1, 2, 1, 100)
	f.Add("unicode: héllo wörld", 9, 14, 2, 4)
	f.Add("x", 0, 1, 0, 1)
	f.Add(strings.Repeat("a", 64), 63, 64, -5, -1)

	f.Fuzz(func(t *testing.T, text string, s1, e1, s2, e2 int) {
		anns := []*models.Annotation{
			{
				ID:         id.NewAnnotationID(),
				Motivation: models.MotivationHighlighting,
				Target:     models.Target{Source: "urn:fuzz", Start: s1, End: e1},
			},
			{
				ID:         id.NewAnnotationID(),
				Motivation: models.MotivationLinking,
				Target:     models.Target{Source: "urn:fuzz", Start: s2, End: e2},
			},
		}

		plan := Compute(text, anns)

		if len(plan.Segments) == 0 {
			t.Fatal("segmentation produced zero segments")
		}

		var b strings.Builder
		for _, s := range plan.Segments {
			b.WriteString(s.Text)
		}
		if b.String() != text {
			t.Fatalf("round-trip mismatch: %q != %q", b.String(), text)
		}

		prevEnd := -1
		for _, s := range plan.Segments {
			if s.Annotation == nil {
				continue
			}
			if s.Start < prevEnd {
				t.Fatalf("annotated segments overlap at %d", s.Start)
			}
			prevEnd = s.End
		}

		if len(plan.Kept())+len(plan.Dropped) != len(anns) {
			t.Fatal("annotations lost: kept + dropped != input count")
		}
	})
}
