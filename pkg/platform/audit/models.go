// Package audit defines the annotation audit trail: who changed which
// annotation on which document, when, and from where.
package audit

import (
	"strings"
	"time"

	"github.com/mssola/useragent"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryContent covers mutations of stored content: annotations and
	// documents. These are the events a provenance question reaches for
	// ("who deleted that comment"), so they get the longest retention.
	CategoryContent EventCategory = "content"

	// CategoryActivity covers the selection workflow around mutations:
	// pending selections opening, completing, and expiring. Useful for
	// reconstructing a session, can be aged out earlier.
	CategoryActivity EventCategory = "activity"

	// CategoryOperations covers routine reads and internal housekeeping.
	// These can be sampled or aggregated with short retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// Resource is the URI of the document the action touched.
	Resource string
	// Annotation is the annotation id, empty for document and selection events.
	Annotation string
	Action     string
	Motivation string
	// Actor is the annotator the action is attributed to.
	Actor string
	// Reason carries transition detail, e.g. the conversion direction.
	Reason     string
	RequestID  string
	Provenance Provenance
}

// Provenance records where a request came from. The raw User-Agent string is
// parsed into coarse fields so the trail stays useful without storing
// free-form header bytes.
type Provenance struct {
	IP      string `json:"ip,omitempty"`
	Browser string `json:"browser,omitempty"`
	OS      string `json:"os,omitempty"`
	Mobile  bool   `json:"mobile,omitempty"`
	Bot     bool   `json:"bot,omitempty"`
}

// ParseProvenance builds a Provenance from the client IP and raw User-Agent.
func ParseProvenance(ip, rawUserAgent string) Provenance {
	p := Provenance{IP: ip}
	if rawUserAgent == "" {
		return p
	}
	ua := useragent.New(rawUserAgent)
	name, version := ua.Browser()
	p.Browser = strings.TrimSpace(name + " " + version)
	p.OS = ua.OS()
	p.Mobile = ua.Mobile()
	p.Bot = ua.Bot()
	return p
}

type AuditEvent string

const (
	// Annotation events
	EventAnnotationCreated   AuditEvent = "annotation_created"
	EventAnnotationDeleted   AuditEvent = "annotation_deleted"
	EventAnnotationConverted AuditEvent = "annotation_converted"
	EventAnnotationResolved  AuditEvent = "annotation_resolved"
	EventAnnotationUnlinked  AuditEvent = "annotation_unlinked"

	// Selection events
	EventSelectionRegistered AuditEvent = "selection_registered"
	EventSelectionCompleted  AuditEvent = "selection_completed"
	EventSelectionDiscarded  AuditEvent = "selection_discarded"
	EventSelectionExpired    AuditEvent = "selection_expired"

	// Document events
	EventDocumentRegistered AuditEvent = "document_registered"

	// Read-side events
	EventReferenceFollowed AuditEvent = "reference_followed"
	EventRenderServed      AuditEvent = "render_served"
)

// eventCategories maps each audit event to its category.
// Content: mutations of durable state, longest retention.
// Activity: the selection workflow, session reconstruction.
// Operations: read-side traffic, sampled.
var eventCategories = map[AuditEvent]EventCategory{
	EventAnnotationCreated:   CategoryContent,
	EventAnnotationDeleted:   CategoryContent,
	EventAnnotationConverted: CategoryContent,
	EventAnnotationResolved:  CategoryContent,
	EventAnnotationUnlinked:  CategoryContent,
	EventDocumentRegistered:  CategoryContent,

	EventSelectionRegistered: CategoryActivity,
	EventSelectionCompleted:  CategoryActivity,
	EventSelectionDiscarded:  CategoryActivity,
	EventSelectionExpired:    CategoryActivity,

	EventReferenceFollowed: CategoryOperations,
	EventRenderServed:      CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
