package markdown

import (
	"github.com/yuin/goldmark/ast"
)

// KindAnnotationSpan identifies AnnotationSpan nodes in the goldmark AST.
var KindAnnotationSpan = ast.NewNodeKind("AnnotationSpan")

// AnnotationSpan is an inline node wrapping the text covered by one
// annotation. An annotation whose span crosses inline boundaries (emphasis,
// links) is represented by several sibling spans sharing the same id, so the
// underlying text nodes are never moved out of their formatting context.
type AnnotationSpan struct {
	ast.BaseInline

	AnnotationID string
	Motivation   string
	Resolved     bool
}

// NewAnnotationSpan returns a span for the given annotation attributes.
func NewAnnotationSpan(annotationID, motivation string, resolved bool) *AnnotationSpan {
	return &AnnotationSpan{
		AnnotationID: annotationID,
		Motivation:   motivation,
		Resolved:     resolved,
	}
}

// Kind implements ast.Node.
func (n *AnnotationSpan) Kind() ast.NodeKind { return KindAnnotationSpan }

// Dump implements ast.Node.
func (n *AnnotationSpan) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"AnnotationID": n.AnnotationID,
		"Motivation":   n.Motivation,
	}, nil)
}
