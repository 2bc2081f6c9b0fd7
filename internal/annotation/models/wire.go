package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	id "marginalia/pkg/domain"
)

// Wire codec for the W3C-Web-Annotation-like JSON shape:
//
//	{id, motivation,
//	 target: {source, selector: {type: "TextPositionSelector", start, end}, exact},
//	 body: [] | {type: "TextualBody", value} | {type: "SpecificResource", source, entityTypes, purpose},
//	 creator, created}
//
// Decoding is defensive: external data is parsed on a best-effort basis and
// every unknown or malformed field degrades to the most conservative
// classification (stub body, empty strings, zero offsets that the segmenter
// will exclude). Only malformed JSON framing returns an error; a valid JSON
// document always decodes to an annotation.

const (
	wireTypeAnnotation       = "Annotation"
	wireTypeTextualBody      = "TextualBody"
	wireTypeSpecificResource = "SpecificResource"
	wireTypePositionSelector = "TextPositionSelector"
	wireTypeQuoteSelector    = "TextQuoteSelector"
	wireContext              = "http://www.w3.org/ns/anno.jsonld"
)

type wireAnnotation struct {
	Context    json.RawMessage `json:"@context,omitempty"`
	ID         string          `json:"id"`
	Type       string          `json:"type,omitempty"`
	Motivation string          `json:"motivation"`
	Target     json.RawMessage `json:"target"`
	Body       json.RawMessage `json:"body"`
	Creator    json.RawMessage `json:"creator,omitempty"`
	Created    string          `json:"created,omitempty"`
}

// DecodeAnnotation parses one annotation from wire JSON. The only error is
// malformed JSON framing; every field-level problem degrades instead.
func DecodeAnnotation(data []byte) (*Annotation, error) {
	var w wireAnnotation
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWire(w), nil
}

// DecodeAnnotationList parses a JSON array of annotations. Accepts either a
// bare array or a container object with an "items" or "annotations" field.
func DecodeAnnotationList(data []byte) ([]*Annotation, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var container struct {
			Items       []json.RawMessage `json:"items"`
			Annotations []json.RawMessage `json:"annotations"`
		}
		if err := json.Unmarshal(data, &container); err != nil {
			return nil, err
		}
		raw := container.Items
		if raw == nil {
			raw = container.Annotations
		}
		return decodeRawList(raw)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return decodeRawList(raw)
}

func decodeRawList(raw []json.RawMessage) ([]*Annotation, error) {
	anns := make([]*Annotation, 0, len(raw))
	for _, r := range raw {
		a, err := DecodeAnnotation(r)
		if err != nil {
			return nil, err
		}
		anns = append(anns, a)
	}
	return anns, nil
}

func fromWire(w wireAnnotation) *Annotation {
	motivation, ok := decodeMotivation(w.Motivation)
	body := decodeBody(w.Body)
	if !ok {
		// Unknown motivation: classify as a highlight, the shape with the
		// fewest affordances, and drop any body the shape cannot carry.
		motivation = MotivationHighlighting
		body = EmptyBody()
	}
	if checkBodyShape(motivation, body) != nil {
		body = EmptyBody()
	}
	return &Annotation{
		ID:         decodeID(w.ID),
		Motivation: motivation,
		Target:     decodeTarget(w.Target),
		Body:       body,
		Creator:    decodeCreator(w.Creator),
		Created:    decodeCreated(w.Created),
	}
}

// decodeID accepts a bare UUID, a urn:uuid form, or a URL whose last path
// segment is a UUID. Anything else yields the zero ID; the annotation still
// renders, it just cannot be individually addressed.
func decodeID(s string) id.AnnotationID {
	s = strings.TrimSpace(s)
	if s == "" {
		return id.AnnotationID{}
	}
	if u, err := uuid.Parse(s); err == nil {
		return id.AnnotationID(u)
	}
	for _, sep := range []string{"/", ":"} {
		if i := strings.LastIndex(s, sep); i >= 0 && i+1 < len(s) {
			if u, err := uuid.Parse(s[i+1:]); err == nil {
				return id.AnnotationID(u)
			}
		}
	}
	return id.AnnotationID{}
}

func decodeMotivation(s string) (Motivation, bool) {
	m := Motivation(strings.TrimSpace(s))
	if m.IsValid() {
		return m, true
	}
	return "", false
}

// wireTarget tolerates both the flat shape this system emits and nested W3C
// variants (selector object or list, separate quote selector).
type wireTarget struct {
	Source   string          `json:"source"`
	ID       string          `json:"id"`
	Exact    string          `json:"exact"`
	Prefix   string          `json:"prefix"`
	Suffix   string          `json:"suffix"`
	Selector json.RawMessage `json:"selector"`
}

type wireSelector struct {
	Type   string   `json:"type"`
	Start  *float64 `json:"start"`
	End    *float64 `json:"end"`
	Exact  string   `json:"exact"`
	Prefix string   `json:"prefix"`
	Suffix string   `json:"suffix"`
}

func decodeTarget(raw json.RawMessage) Target {
	var t Target
	// Offsets default to the empty span [0,0), which every renderer excludes.
	if len(raw) == 0 {
		return t
	}
	var w wireTarget
	if err := json.Unmarshal(raw, &w); err != nil {
		// Target may be a list; take the first usable entry.
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
			return t
		}
		return decodeTarget(list[0])
	}
	t.Source = w.Source
	if t.Source == "" {
		t.Source = w.ID
	}
	t.Exact = w.Exact
	t.Prefix = w.Prefix
	t.Suffix = w.Suffix
	for _, sel := range decodeSelectors(w.Selector) {
		switch sel.Type {
		case wireTypePositionSelector:
			if sel.Start != nil && sel.End != nil {
				t.Start = clampOffset(*sel.Start)
				t.End = clampOffset(*sel.End)
			}
		case wireTypeQuoteSelector:
			if t.Exact == "" {
				t.Exact = sel.Exact
			}
			if t.Prefix == "" {
				t.Prefix = sel.Prefix
			}
			if t.Suffix == "" {
				t.Suffix = sel.Suffix
			}
		}
	}
	return t
}

func decodeSelectors(raw json.RawMessage) []wireSelector {
	if len(raw) == 0 {
		return nil
	}
	var one wireSelector
	if err := json.Unmarshal(raw, &one); err == nil && one.Type != "" {
		return []wireSelector{one}
	}
	var many []wireSelector
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil
	}
	return many
}

// clampOffset converts a JSON number to an int offset. Fractional values
// truncate; values outside the int range land far outside any document and
// are excluded by the segmenter like any other invalid offset.
func clampOffset(f float64) int {
	const bound = 1 << 53
	if f > bound {
		return bound
	}
	if f < -bound {
		return -bound
	}
	return int(f)
}

type wireBody struct {
	Type        string          `json:"type"`
	Value       string          `json:"value"`
	Source      json.RawMessage `json:"source"`
	EntityTypes json.RawMessage `json:"entityTypes"`
	Purpose     string          `json:"purpose"`
}

func decodeBody(raw json.RawMessage) Body {
	if len(raw) == 0 {
		return EmptyBody()
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" || trimmed == "[]" || trimmed == `""` {
		return EmptyBody()
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
			return EmptyBody()
		}
		// One body per annotation in this system; extra entries are dropped.
		return decodeBody(list[0])
	}
	var w wireBody
	if err := json.Unmarshal(raw, &w); err != nil {
		return EmptyBody()
	}
	switch w.Type {
	case wireTypeTextualBody:
		return TextualBody(w.Value)
	case wireTypeSpecificResource:
		return ResourceBody(decodeStringOrID(w.Source), decodeStringList(w.EntityTypes), w.Purpose)
	default:
		return EmptyBody()
	}
}

// decodeStringOrID accepts "uri" or {"id": "uri"}.
func decodeStringOrID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

// decodeStringList accepts "one" or ["one", "two"].
func decodeStringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	return nil
}

func decodeCreator(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if obj.Name != "" {
		return obj.Name
	}
	return obj.ID
}

func decodeCreated(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// -----------------------------------------------------------------------------
// Encoding
// -----------------------------------------------------------------------------

// EncodeAnnotation renders the annotation as Web-Annotation JSON-LD. This is
// the shape the jsonld inspector and the HTTP API emit.
func EncodeAnnotation(a *Annotation) ([]byte, error) {
	return json.Marshal(ToWire(a))
}

// WireView is the outbound JSON shape of one annotation.
type WireView struct {
	Context    string         `json:"@context"`
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Motivation string         `json:"motivation"`
	Target     WireTargetView `json:"target"`
	Body       any            `json:"body"`
	Creator    string         `json:"creator,omitempty"`
	Created    string         `json:"created,omitempty"`
}

// WireTargetView is the outbound JSON shape of a target.
type WireTargetView struct {
	Source   string           `json:"source,omitempty"`
	Selector WireSelectorView `json:"selector"`
	Exact    string           `json:"exact,omitempty"`
	Prefix   string           `json:"prefix,omitempty"`
	Suffix   string           `json:"suffix,omitempty"`
}

// WireSelectorView is the outbound position selector.
type WireSelectorView struct {
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// ToWire converts an annotation to its outbound JSON shape.
func ToWire(a *Annotation) WireView {
	v := WireView{
		Context:    wireContext,
		ID:         a.ID.String(),
		Type:       wireTypeAnnotation,
		Motivation: a.Motivation.String(),
		Target: WireTargetView{
			Source: a.Target.Source,
			Selector: WireSelectorView{
				Type:  wireTypePositionSelector,
				Start: a.Target.Start,
				End:   a.Target.End,
			},
			Exact:  a.Target.Exact,
			Prefix: a.Target.Prefix,
			Suffix: a.Target.Suffix,
		},
		Creator: a.Creator,
	}
	if !a.Created.IsZero() {
		v.Created = a.Created.UTC().Format(time.RFC3339)
	}
	switch a.Body.Kind {
	case BodyKindTextual:
		v.Body = map[string]any{"type": wireTypeTextualBody, "value": a.Body.Value}
	case BodyKindResource:
		body := map[string]any{"type": wireTypeSpecificResource, "source": a.Body.Source}
		if len(a.Body.EntityTypes) > 0 {
			body["entityTypes"] = a.Body.EntityTypes
		}
		if a.Body.Purpose != "" {
			body["purpose"] = a.Body.Purpose
		}
		v.Body = body
	default:
		// Stub bodies stay the empty list on the wire.
		v.Body = []any{}
	}
	return v
}
