// Package models defines the document aggregate: an immutable text that
// annotations attach to by byte offset.
package models

import (
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zeebo/blake3"

	id "marginalia/pkg/domain"
	dErrors "marginalia/pkg/domain-errors"
)

// MaxContentLen bounds document size. Annotation offsets address bytes of the
// content, so unbounded documents would make every downstream pass unbounded.
const MaxContentLen = 1 << 20

// Document is an immutable source text published under a resource URI.
//
// Invariants:
//   - Content never changes after registration; annotation offsets rely on it
//   - Resource is a non-empty URI, unique across the library
//   - Digest is the BLAKE3-256 hex of Content, assigned at construction
type Document struct {
	ID       id.DocumentID
	Resource string
	Title    string
	Content  string
	Digest   string
	Created  time.Time
}

// NewDocument constructs a document and computes its content digest.
func NewDocument(docID id.DocumentID, resource, title, content string, now time.Time) (*Document, error) {
	resource = strings.TrimSpace(resource)
	title = strings.TrimSpace(title)
	if resource == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "resource is required")
	}
	if strings.ContainsAny(resource, " \t\n") {
		return nil, dErrors.New(dErrors.CodeValidation, "resource must be a URI without whitespace")
	}
	if len(content) > MaxContentLen {
		return nil, dErrors.Newf(dErrors.CodeValidation, "content must be at most %d bytes", MaxContentLen)
	}
	if !utf8.ValidString(content) {
		return nil, dErrors.New(dErrors.CodeValidation, "content must be valid UTF-8")
	}
	return &Document{
		ID:       docID,
		Resource: resource,
		Title:    title,
		Content:  content,
		Digest:   Digest(content),
		Created:  now,
	}, nil
}

// Digest returns the BLAKE3-256 hex digest of a content string. Render cache
// keys and ETags derive from it, so two documents with equal content share
// cached renders.
func Digest(content string) string {
	sum := blake3.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Len returns the content length in bytes, the upper bound for annotation
// offsets.
func (d *Document) Len() int {
	return len(d.Content)
}
