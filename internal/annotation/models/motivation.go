package models

import (
	dErrors "marginalia/pkg/domain-errors"
)

// Motivation is the purpose tag of an annotation, following the W3C Web
// Annotation vocabulary subset this system supports.
type Motivation string

const (
	MotivationHighlighting Motivation = "highlighting"
	MotivationLinking      Motivation = "linking"
	MotivationAssessing    Motivation = "assessing"
	MotivationCommenting   Motivation = "commenting"
)

// ParseMotivation validates a wire value into a Motivation.
func ParseMotivation(s string) (Motivation, error) {
	m := Motivation(s)
	if !m.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown motivation %q", s)
	}
	return m, nil
}

func (m Motivation) IsValid() bool {
	switch m {
	case MotivationHighlighting, MotivationLinking, MotivationAssessing, MotivationCommenting:
		return true
	}
	return false
}

func (m Motivation) String() string { return string(m) }

// SidePanel reports whether annotations of this motivation route to a side
// panel on a detail click. Highlights and assessments are inline-only.
func (m Motivation) SidePanel() bool {
	switch m {
	case MotivationCommenting, MotivationLinking:
		return true
	default:
		return false
	}
}

// Deferred reports whether creation with this motivation requires a second
// step before the annotation exists: comments wait for body text from the
// comment panel, references wait for entity-type disambiguation. Highlights
// and assessments create immediately.
func (m Motivation) Deferred() bool {
	switch m {
	case MotivationCommenting, MotivationLinking:
		return true
	default:
		return false
	}
}

// ClickAction is what a user click on an existing annotation asks for.
type ClickAction string

const (
	// ClickDetail routes to the side panel keyed by annotation id; only
	// side-panel-bearing motivations accept it.
	ClickDetail ClickAction = "detail"
	// ClickFollow navigates to the linked resource; only resolved
	// references accept it.
	ClickFollow ClickAction = "follow"
	// ClickJSONLD opens the raw-model inspector.
	ClickJSONLD ClickAction = "jsonld"
	// ClickDeleting starts the delete confirmation flow.
	ClickDeleting ClickAction = "deleting"
)

// ParseClickAction validates a wire value into a ClickAction.
func ParseClickAction(s string) (ClickAction, error) {
	a := ClickAction(s)
	switch a {
	case ClickDetail, ClickFollow, ClickJSONLD, ClickDeleting:
		return a, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown click action %q", s)
}
