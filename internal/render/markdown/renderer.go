package markdown

import (
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// spanRenderer renders AnnotationSpan nodes as interactive <mark> elements.
// It touches only the wrapping element; the text inside is rendered by the
// default text renderer, so content bytes pass through unchanged.
type spanRenderer struct{}

func newSpanRenderer() renderer.NodeRenderer {
	return &spanRenderer{}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *spanRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindAnnotationSpan, r.renderAnnotationSpan)
}

func (r *spanRenderer) renderAnnotationSpan(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*AnnotationSpan)
	if !entering {
		_, _ = w.WriteString("</mark>")
		return ast.WalkContinue, nil
	}

	_, _ = w.WriteString(`<mark data-annotation-id="`)
	_, _ = w.Write(util.EscapeHTML([]byte(n.AnnotationID)))
	_, _ = w.WriteString(`" data-motivation="`)
	_, _ = w.Write(util.EscapeHTML([]byte(n.Motivation)))
	_, _ = w.WriteString(`"`)
	if n.Resolved {
		_, _ = w.WriteString(` data-resolved="true"`)
	}
	_, _ = w.WriteString(`>`)
	return ast.WalkContinue, nil
}
