package models

import (
	"time"

	id "marginalia/pkg/domain"
	dErrors "marginalia/pkg/domain-errors"
)

// Target describes which span of a document an annotation covers.
//
// Offsets are byte positions into the immutable source text, half-open
// [Start, End). Exact is the covered text captured at creation time; Prefix
// and Suffix hold surrounding context so the span can be re-located when
// offsets alone are ambiguous.
type Target struct {
	// Source is the URI of the annotated document.
	Source string
	Exact  string
	Start  int
	End    int
	Prefix string
	Suffix string
}

// ValidFor reports whether the target offsets address a real span of a text
// of the given length. Invalid targets stay in the store but are excluded
// from rendering.
func (t Target) ValidFor(textLen int) bool {
	return t.Start >= 0 && t.End <= textLen && t.Start < t.End
}

// Annotation is typed metadata attached to a character span of a document.
//
// Invariants:
//   - Motivation is one of the four supported values
//   - Body shape is consistent with Motivation (highlights never carry a
//     resolved body; comments and assessments never carry a resource body)
//   - Target offsets are never mutated after creation
//   - Body and Motivation change only through the defined conversions
type Annotation struct {
	ID         id.AnnotationID
	Motivation Motivation
	Target     Target
	Body       Body
	Creator    string
	Created    time.Time
}

// NewAnnotation constructs an annotation and validates its invariants.
// Offsets are validated against the document where the text length is known;
// the constructor only enforces shape.
func NewAnnotation(annID id.AnnotationID, motivation Motivation, target Target, body Body, creator string, now time.Time) (*Annotation, error) {
	if !motivation.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown motivation %q", motivation)
	}
	if target.Source == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "annotation target must name a source document")
	}
	if err := checkBodyShape(motivation, body); err != nil {
		return nil, err
	}
	return &Annotation{
		ID:         annID,
		Motivation: motivation,
		Target:     target,
		Body:       body,
		Creator:    creator,
		Created:    now,
	}, nil
}

// checkBodyShape enforces the motivation/body consistency invariant.
func checkBodyShape(m Motivation, b Body) error {
	switch m {
	case MotivationHighlighting:
		if !b.IsEmpty() {
			return dErrors.New(dErrors.CodeInvariantViolation, "highlight body must be empty")
		}
	case MotivationLinking:
		if b.Kind == BodyKindTextual {
			return dErrors.New(dErrors.CodeInvariantViolation, "reference body cannot be textual")
		}
	case MotivationAssessing, MotivationCommenting:
		if b.Kind == BodyKindResource {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "%s body cannot be a resource", m)
		}
	}
	return nil
}

// State is the exhaustive classification over (motivation, body shape) that
// the conversion state machine runs on.
type State string

const (
	StateHighlight         State = "highlight"
	StateAssessment        State = "assessment"
	StateComment           State = "comment"
	StateReferenceStub     State = "reference_stub"
	StateReferenceResolved State = "reference_resolved"
)

// State derives the classification from motivation and body shape. Unknown
// motivations classify as highlight, the most conservative rendering.
func (a *Annotation) State() State {
	switch a.Motivation {
	case MotivationLinking:
		if a.Body.Resolved() {
			return StateReferenceResolved
		}
		return StateReferenceStub
	case MotivationAssessing:
		return StateAssessment
	case MotivationCommenting:
		return StateComment
	default:
		return StateHighlight
	}
}

func (a *Annotation) IsHighlight() bool  { return a.Motivation == MotivationHighlighting }
func (a *Annotation) IsReference() bool  { return a.Motivation == MotivationLinking }
func (a *Annotation) IsAssessment() bool { return a.Motivation == MotivationAssessing }
func (a *Annotation) IsComment() bool    { return a.Motivation == MotivationCommenting }

// Resolved reports whether this is a reference linked to a target resource.
func (a *Annotation) Resolved() bool {
	return a.IsReference() && a.Body.Resolved()
}

// EntityTypes returns the entity classification of a resolved reference.
// Annotations without one yield an empty slice, never nil access.
func (a *Annotation) EntityTypes() []string {
	if a == nil || a.Body.Kind != BodyKindResource {
		return []string{}
	}
	if a.Body.EntityTypes == nil {
		return []string{}
	}
	return a.Body.EntityTypes
}

// BodySource returns the referenced resource URI, or "" when the body is not
// a resolved resource.
func (a *Annotation) BodySource() string {
	if a == nil || a.Body.Kind != BodyKindResource {
		return ""
	}
	return a.Body.Source
}

// ExactText returns the covered text captured at creation, or "".
func (a *Annotation) ExactText() string {
	if a == nil {
		return ""
	}
	return a.Target.Exact
}

// Selector returns the position selector of the annotation. The bool is
// false when the annotation carries no usable offsets.
func (a *Annotation) Selector() (start, end int, ok bool) {
	if a == nil || a.Target.Start >= a.Target.End {
		return 0, 0, false
	}
	return a.Target.Start, a.Target.End, true
}

// -----------------------------------------------------------------------------
// Conversions
//
// The state machine:
//
//	Highlight ⇄ Reference-Stub        (convert; motivation flips, new identity)
//	Reference-Stub ⇄ Reference-Resolved  (resolve/unlink; body patch, same identity)
//	any → deleted                     (terminal)
//
// Assessments and comments have no conversion edges.
// -----------------------------------------------------------------------------

// ConversionTarget returns the motivation a convert operation flips to.
// Highlights become stub references; references (stub or resolved) become
// highlights, discarding any resolution. Assessments and comments reject.
func (a *Annotation) ConversionTarget() (Motivation, error) {
	switch a.State() {
	case StateHighlight:
		return MotivationLinking, nil
	case StateReferenceStub, StateReferenceResolved:
		return MotivationHighlighting, nil
	default:
		return "", dErrors.Newf(dErrors.CodeConflict, "%s annotations cannot be converted", a.State())
	}
}

// CanResolve checks the stub → resolved transition.
func (a *Annotation) CanResolve() error {
	if a.State() != StateReferenceStub {
		return dErrors.Newf(dErrors.CodeConflict, "only stub references can be resolved, annotation is %s", a.State())
	}
	return nil
}

// ApplyResolution links the reference to a resource. The target selector is
// untouched; only the body changes. Call CanResolve first.
func (a *Annotation) ApplyResolution(source string, entityTypes []string, purpose string) {
	a.Body = ResourceBody(source, entityTypes, purpose)
}

// CanUnlink checks the resolved → stub transition.
func (a *Annotation) CanUnlink() error {
	if a.State() != StateReferenceResolved {
		return dErrors.Newf(dErrors.CodeConflict, "only resolved references can be unlinked, annotation is %s", a.State())
	}
	return nil
}

// ApplyUnlink discards the resolution, returning the reference to a stub.
// Call CanUnlink first.
func (a *Annotation) ApplyUnlink() {
	a.Body = EmptyBody()
}
