// Package segmenter turns (text, annotation set) into the ordered,
// non-overlapping segmentation both views render from. It is pure derivation:
// no store access, no mutation of its inputs, and the concatenation of all
// segment texts always reconstructs the source byte for byte.
package segmenter

import (
	"sort"

	"marginalia/internal/annotation/models"
)

// Segment is one derived unit of text. Annotation is nil for plain gaps
// between annotated spans. Segments are ephemeral: derived on every render,
// never persisted.
type Segment struct {
	Text       string
	Start      int
	End        int
	Annotation *models.Annotation
}

// Annotated reports whether the segment carries an annotation.
func (s Segment) Annotated() bool { return s.Annotation != nil }

// DropReason says why an annotation was excluded from a render.
type DropReason string

const (
	// DropInvalid covers offsets outside the text or inverted spans.
	DropInvalid DropReason = "invalid_offsets"
	// DropOverlap covers annotations losing the earliest-start-wins rule.
	DropOverlap DropReason = "overlap"
)

// Dropped records one excluded annotation. Exclusion is per-render only; the
// annotation stays in the store untouched.
type Dropped struct {
	Annotation *models.Annotation
	Reason     DropReason
}

// Plan is the full result of a segmentation pass: the renderable segments
// plus everything that was excluded, for metrics and warnings.
type Plan struct {
	Segments []Segment
	Dropped  []Dropped
}

// Kept returns the surviving annotations in render order.
func (p Plan) Kept() []*models.Annotation {
	kept := make([]*models.Annotation, 0, len(p.Segments))
	for _, s := range p.Segments {
		if s.Annotation != nil {
			kept = append(kept, s.Annotation)
		}
	}
	return kept
}

// Segmentize derives the renderable segments for text and annotations.
// Shorthand for Compute(...).Segments.
func Segmentize(text string, anns []*models.Annotation) []Segment {
	return Compute(text, anns).Segments
}

// Compute derives the segmentation plan:
//
//  1. Annotations with offsets outside [0, len(text)] or with start >= end
//     are dropped as invalid.
//  2. Survivors are stable-sorted by start offset; ties keep their input
//     order, which makes the whole pass deterministic.
//  3. A cursor walks the sorted list. An annotation starting before the
//     cursor overlaps one already emitted and is dropped: the
//     earliest-starting annotation wins. Otherwise the gap before it (if
//     any) becomes a plain segment, the span itself an annotated one.
//  4. Any text after the last annotated span becomes a trailing plain
//     segment.
//
// The result always contains at least one segment, even for empty text, so
// callers can render unconditionally. Concatenating all segment texts in
// order yields text exactly.
func Compute(text string, anns []*models.Annotation) Plan {
	var plan Plan

	valid := make([]*models.Annotation, 0, len(anns))
	for _, a := range anns {
		if a == nil {
			continue
		}
		if !a.Target.ValidFor(len(text)) {
			plan.Dropped = append(plan.Dropped, Dropped{Annotation: a, Reason: DropInvalid})
			continue
		}
		valid = append(valid, a)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Target.Start < valid[j].Target.Start
	})

	cursor := 0
	for _, a := range valid {
		if a.Target.Start < cursor {
			plan.Dropped = append(plan.Dropped, Dropped{Annotation: a, Reason: DropOverlap})
			continue
		}
		if a.Target.Start > cursor {
			plan.Segments = append(plan.Segments, Segment{
				Text:  text[cursor:a.Target.Start],
				Start: cursor,
				End:   a.Target.Start,
			})
		}
		plan.Segments = append(plan.Segments, Segment{
			Text:       text[a.Target.Start:a.Target.End],
			Start:      a.Target.Start,
			End:        a.Target.End,
			Annotation: a,
		})
		cursor = a.Target.End
	}

	if cursor < len(text) || len(plan.Segments) == 0 {
		plan.Segments = append(plan.Segments, Segment{
			Text:  text[cursor:],
			Start: cursor,
			End:   len(text),
		})
	}

	return plan
}
