// Package render turns a document plus its annotation set into the two
// client-facing HTML views, source and markdown, behind a digest-keyed cache.
package render

import (
	"html"
	"strings"

	"marginalia/internal/annotation/segmenter"
)

// RenderSource renders the source view: every segment in order, annotated
// ones wrapped in <mark> elements, plain ones as escaped text. No structure
// is added or removed, so unescaping the text content of the result yields
// the source byte for byte.
func RenderSource(text string, segments []segmenter.Segment) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)

	for _, seg := range segments {
		if !seg.Annotated() {
			b.WriteString(html.EscapeString(seg.Text))
			continue
		}
		a := seg.Annotation
		b.WriteString(`<mark data-annotation-id="`)
		b.WriteString(html.EscapeString(a.ID.String()))
		b.WriteString(`" data-motivation="`)
		b.WriteString(html.EscapeString(string(a.Motivation)))
		b.WriteString(`"`)
		if a.Resolved() {
			b.WriteString(` data-resolved="true"`)
		}
		b.WriteString(`>`)
		b.WriteString(html.EscapeString(seg.Text))
		b.WriteString(`</mark>`)
	}

	return b.String()
}
