package models

import (
	"strings"

	dErrors "marginalia/pkg/domain-errors"
	pstrings "marginalia/pkg/platform/strings"
)

// Size limits for user-supplied selection data. Selections are bounded so a
// hostile client cannot store unbounded text through the annotation API.
const (
	MaxExactLen   = 8192
	MaxContextLen = 512
	MaxBodyLen    = 8192
	MaxEntityType = 64
)

// SelectionRequest is the inbound shape of a user text selection, dispatched
// by motivation. Offsets are optional; when absent the span is located by
// searching for Exact with Prefix/Suffix disambiguation.
type SelectionRequest struct {
	Motivation string `json:"motivation"`
	Exact      string `json:"exact"`
	Start      *int   `json:"start,omitempty"`
	End        *int   `json:"end,omitempty"`
	Prefix     string `json:"prefix,omitempty"`
	Suffix     string `json:"suffix,omitempty"`
	// Text carries an inline note for assessing selections. Comments get
	// their text later through selection completion.
	Text string `json:"text,omitempty"`
}

// Normalize trims fields where whitespace carries no meaning. Exact, Prefix
// and Suffix are left untouched: their bytes locate the span.
func (r *SelectionRequest) Normalize() {
	r.Motivation = strings.TrimSpace(r.Motivation)
	r.Text = strings.TrimSpace(r.Text)
}

// Validate checks the request in order: size, required, syntax, semantic.
func (r *SelectionRequest) Validate() error {
	if len(r.Exact) > MaxExactLen {
		return dErrors.Newf(dErrors.CodeValidation, "exact must be at most %d bytes", MaxExactLen)
	}
	if len(r.Prefix) > MaxContextLen || len(r.Suffix) > MaxContextLen {
		return dErrors.Newf(dErrors.CodeValidation, "prefix and suffix must be at most %d bytes", MaxContextLen)
	}
	if len(r.Text) > MaxBodyLen {
		return dErrors.Newf(dErrors.CodeValidation, "text must be at most %d bytes", MaxBodyLen)
	}

	if r.Motivation == "" {
		return dErrors.New(dErrors.CodeValidation, "motivation is required")
	}
	if r.Exact == "" && (r.Start == nil || r.End == nil) {
		return dErrors.New(dErrors.CodeValidation, "selection needs exact text or both offsets")
	}

	motivation, err := ParseMotivation(r.Motivation)
	if err != nil {
		return err
	}

	if r.Start != nil && r.End != nil {
		if *r.Start < 0 || *r.End <= *r.Start {
			return dErrors.New(dErrors.CodeValidation, "selection offsets must satisfy 0 <= start < end")
		}
	}
	if r.Text != "" && motivation != MotivationAssessing {
		return dErrors.New(dErrors.CodeValidation, "inline text is only accepted for assessing selections")
	}
	return nil
}

// ParsedMotivation returns the validated motivation. Call Validate first.
func (r *SelectionRequest) ParsedMotivation() Motivation {
	return Motivation(r.Motivation)
}

// CompleteSelectionRequest finishes a deferred selection: comment text for
// commenting, entity-type choice (and optionally an immediate resolution
// source) for linking.
type CompleteSelectionRequest struct {
	Text        string   `json:"text,omitempty"`
	EntityTypes []string `json:"entityTypes,omitempty"`
	Source      string   `json:"source,omitempty"`
}

func (r *CompleteSelectionRequest) Normalize() {
	r.Text = strings.TrimSpace(r.Text)
	r.Source = strings.TrimSpace(r.Source)
	r.EntityTypes = pstrings.DedupeAndTrim(r.EntityTypes)
}

// ValidateFor checks the completion against the pending selection's
// motivation.
func (r *CompleteSelectionRequest) ValidateFor(m Motivation) error {
	if len(r.Text) > MaxBodyLen {
		return dErrors.Newf(dErrors.CodeValidation, "text must be at most %d bytes", MaxBodyLen)
	}
	for _, t := range r.EntityTypes {
		if len(t) > MaxEntityType {
			return dErrors.Newf(dErrors.CodeValidation, "entity types must be at most %d bytes", MaxEntityType)
		}
	}
	switch m {
	case MotivationCommenting:
		if r.Text == "" {
			return dErrors.New(dErrors.CodeValidation, "comment text is required")
		}
		if len(r.EntityTypes) > 0 || r.Source != "" {
			return dErrors.New(dErrors.CodeValidation, "comments do not take entity types or a source")
		}
	case MotivationLinking:
		if r.Text != "" {
			return dErrors.New(dErrors.CodeValidation, "references do not take comment text")
		}
	default:
		return dErrors.Newf(dErrors.CodeConflict, "%s selections complete immediately and cannot be finished later", m)
	}
	return nil
}

// ResolveRequest links a stub reference to a resource.
type ResolveRequest struct {
	Source      string   `json:"source"`
	EntityTypes []string `json:"entityTypes,omitempty"`
	Purpose     string   `json:"purpose,omitempty"`
}

func (r *ResolveRequest) Normalize() {
	r.Source = strings.TrimSpace(r.Source)
	r.Purpose = strings.TrimSpace(r.Purpose)
	r.EntityTypes = pstrings.DedupeAndTrim(r.EntityTypes)
}

func (r *ResolveRequest) Validate() error {
	for _, t := range r.EntityTypes {
		if len(t) > MaxEntityType {
			return dErrors.Newf(dErrors.CodeValidation, "entity types must be at most %d bytes", MaxEntityType)
		}
	}
	if r.Source == "" {
		return dErrors.New(dErrors.CodeValidation, "source is required")
	}
	if len(r.Source) > MaxExactLen {
		return dErrors.New(dErrors.CodeValidation, "source is too long")
	}
	return nil
}
