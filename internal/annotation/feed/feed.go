// Package feed streams annotation change events to WebSocket subscribers.
//
// Events are fire-and-forget cues: they carry which annotation changed and
// how, never the full state. Subscribers refetch the annotation list instead
// of merging, so a dropped event costs one stale interval, not corruption.
package feed

import "time"

// EventType names what happened to an annotation.
type EventType string

const (
	EventCreated   EventType = "created"
	EventDeleted   EventType = "deleted"
	EventConverted EventType = "converted"
	EventResolved  EventType = "resolved"
	EventUnlinked  EventType = "unlinked"
	// EventDetail announces a side-panel routing click so panel
	// collaborators can re-query the annotation.
	EventDetail EventType = "detail"
)

// Event is one change-feed message, scoped to the resource it happened on.
type Event struct {
	Type         EventType `json:"type"`
	Resource     string    `json:"resource"`
	AnnotationID string    `json:"annotationId,omitempty"`
	Motivation   string    `json:"motivation,omitempty"`
	At           time.Time `json:"at"`
}
