// Package markdown maps byte-anchored annotations onto rendered markdown.
//
// The mapping is two-phase. Phase A runs after parsing: goldmark text nodes
// still carry their byte segments into the source, so annotation offsets are
// matched against those segments, text nodes are split at annotation
// boundaries, and covered runs are wrapped in AnnotationSpan inline nodes.
// Phase B is a custom node renderer that turns each span into a <mark>
// element. Neither phase alters text content, which keeps source offsets and
// rendered text offsets aligned for unformatted text.
package markdown

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"

	"marginalia/internal/annotation/models"
	"marginalia/internal/annotation/segmenter"
	dErrors "marginalia/pkg/domain-errors"
)

// Result is one rendered markdown view. Dropped carries the annotations the
// segmentation excluded before mapping; Warnings the ones the mapper could
// not place exactly.
type Result struct {
	HTML     string
	Warnings []Warning
	Dropped  []segmenter.Dropped
}

// Mapper renders markdown with annotations attached. One Mapper is safe for
// concurrent use: per-render state rides in the parser context, never on the
// Mapper itself.
type Mapper struct {
	md goldmark.Markdown
}

// NewMapper constructs the annotation-aware markdown renderer.
func NewMapper() *Mapper {
	return &Mapper{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(
				parser.WithASTTransformers(
					util.Prioritized(&annotationTransformer{}, 500),
				),
			),
			goldmark.WithRendererOptions(
				renderer.WithNodeRenderers(
					util.Prioritized(newSpanRenderer(), 500),
				),
			),
		),
	}
}

// Render converts source to HTML with the given annotations wrapped in marks.
// The same exclusion rules as the source view apply first: invalid offsets
// and overlap losers are dropped, and the survivors are attached in render
// order. Bad annotation data can therefore never fail a render; only a
// conversion breakdown, which with a fixed parser configuration means a bug,
// returns an error.
func (m *Mapper) Render(source string, anns []*models.Annotation) (Result, error) {
	plan := segmenter.Compute(source, anns)

	state := &renderState{annotations: plan.Kept()}
	pc := parser.NewContext()
	pc.Set(renderStateKey, state)

	var buf bytes.Buffer
	if err := m.md.Convert([]byte(source), &buf, parser.WithContext(pc)); err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "markdown conversion failed")
	}

	return Result{
		HTML:     buf.String(),
		Warnings: state.warnings,
		Dropped:  plan.Dropped,
	}, nil
}
