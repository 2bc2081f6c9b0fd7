// Package domain holds the typed identifiers shared across services. IDs are
// distinct UUID types so the compiler rejects cross-entity assignment; Parse
// functions enforce validity at trust boundaries (HTTP params, store rows,
// decoded wire data).
package domain

import (
	"github.com/google/uuid"

	dErrors "marginalia/pkg/domain-errors"
)

// AnnotationID identifies one annotation.
type AnnotationID uuid.UUID

// DocumentID identifies one document.
type DocumentID uuid.UUID

// SelectionToken identifies a pending selection awaiting completion
// (comment body entry, entity-type disambiguation).
type SelectionToken uuid.UUID

// NewAnnotationID returns a fresh random AnnotationID.
func NewAnnotationID() AnnotationID { return AnnotationID(uuid.New()) }

// NewDocumentID returns a fresh random DocumentID.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// NewSelectionToken returns a fresh random SelectionToken.
func NewSelectionToken() SelectionToken { return SelectionToken(uuid.New()) }

// ParseAnnotationID validates and converts a string into an AnnotationID.
func ParseAnnotationID(s string) (AnnotationID, error) {
	u, err := parseUUID(s)
	return AnnotationID(u), err
}

// ParseDocumentID validates and converts a string into a DocumentID.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s)
	return DocumentID(u), err
}

// ParseSelectionToken validates and converts a string into a SelectionToken.
func ParseSelectionToken(s string) (SelectionToken, error) {
	u, err := parseUUID(s)
	return SelectionToken(u), err
}

func (id AnnotationID) String() string   { return uuid.UUID(id).String() }
func (id DocumentID) String() string     { return uuid.UUID(id).String() }
func (id SelectionToken) String() string { return uuid.UUID(id).String() }

// IsZero reports whether the ID is the nil UUID.
func (id AnnotationID) IsZero() bool   { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsZero() bool     { return uuid.UUID(id) == uuid.Nil }
func (id SelectionToken) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// parseUUID is the shared validation: IDs must be valid, non-empty, non-nil
// UUIDs. Every ID type goes through this one function so rejection behavior
// stays consistent.
func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return u, nil
}
