package models

// BodyKind tags the closed set of body shapes an annotation can carry.
// Classification switches over BodyKind so the compiler flags any unhandled
// shape when one is added.
type BodyKind string

const (
	// BodyKindEmpty is the stub shape: highlights always, references
	// before resolution.
	BodyKindEmpty BodyKind = "empty"
	// BodyKindTextual carries plain text: comments and assessments.
	BodyKindTextual BodyKind = "textual"
	// BodyKindResource points at another resource: resolved references.
	BodyKindResource BodyKind = "resource"
)

// Body is the tagged union of annotation body shapes. Only the fields for the
// active Kind are meaningful; constructors keep the rest zeroed.
type Body struct {
	Kind BodyKind

	// Value is the plain text of a textual body.
	Value string

	// Source is the referenced resource URI of a resource body.
	Source string
	// EntityTypes classify the referenced entity (person, place, ...).
	EntityTypes []string
	// Purpose carries the W3C purpose of a resource body, when present.
	Purpose string
}

// EmptyBody returns the stub body.
func EmptyBody() Body { return Body{Kind: BodyKindEmpty} }

// TextualBody returns a plain-text body.
func TextualBody(text string) Body {
	return Body{Kind: BodyKindTextual, Value: text}
}

// ResourceBody returns a resolved-reference body.
func ResourceBody(source string, entityTypes []string, purpose string) Body {
	return Body{Kind: BodyKindResource, Source: source, EntityTypes: entityTypes, Purpose: purpose}
}

// Resolved reports whether the body is a resource body with a non-empty
// source. A resource body without a source classifies as unresolved.
func (b Body) Resolved() bool {
	return b.Kind == BodyKindResource && b.Source != ""
}

// IsEmpty reports whether the body is the stub shape.
func (b Body) IsEmpty() bool { return b.Kind == BodyKindEmpty || b.Kind == "" }
