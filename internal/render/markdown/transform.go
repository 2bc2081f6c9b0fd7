package markdown

import (
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"marginalia/internal/annotation/models"
)

// renderStateKey carries per-render state through the parser context, so one
// Mapper can serve concurrent renders.
var renderStateKey = parser.NewContextKey()

// renderState is the input and output of one transform pass: the annotations
// to attach going in, the warnings they produced coming out.
type renderState struct {
	annotations []*models.Annotation
	warnings    []Warning
}

// WarningReason classifies a non-fatal mapping problem.
type WarningReason string

const (
	// WarningClipped marks an annotation whose span crossed out of its
	// first enclosing block and was truncated to it.
	WarningClipped WarningReason = "clipped_to_block"
	// WarningUnmatched marks an annotation whose span covered no rendered
	// text at all, such as one anchored inside a code fence or entirely on
	// markup delimiters.
	WarningUnmatched WarningReason = "unmatched"
)

// Warning records one annotation the markdown view could not place exactly.
// Warnings never abort a render; the annotation is shown clipped or not at
// all and the caller decides whether to surface the problem.
type Warning struct {
	AnnotationID string        `json:"annotationId"`
	Reason       WarningReason `json:"reason"`
}

// textEntry tracks one inline text node and the source bytes it covers.
type textEntry struct {
	node  *ast.Text
	start int
	stop  int
}

// annotationTransformer splits inline text nodes at annotation boundaries and
// wraps the covered runs in AnnotationSpan nodes. It runs after parsing, so
// every text node still carries its byte segment into the source; those
// segments are what annotation offsets are matched against.
type annotationTransformer struct{}

// Transform implements parser.ASTTransformer.
func (t *annotationTransformer) Transform(doc *ast.Document, _ text.Reader, pc parser.Context) {
	state, ok := pc.Get(renderStateKey).(*renderState)
	if !ok || len(state.annotations) == 0 {
		return
	}

	entries := collectTexts(doc)
	for _, a := range state.annotations {
		if w, ok := attach(a, entries); ok {
			state.warnings = append(state.warnings, w)
		}
	}
}

// collectTexts gathers the document's inline text nodes in source order.
// Block-carried raw text (code fences, HTML blocks) has no inline text nodes
// and therefore cannot host annotation spans.
func collectTexts(doc *ast.Document) []*textEntry {
	var entries []*textEntry
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindText {
			return ast.WalkContinue, nil
		}
		tn := n.(*ast.Text)
		if tn.Segment.Len() == 0 {
			return ast.WalkContinue, nil
		}
		entries = append(entries, &textEntry{node: tn, start: tn.Segment.Start, stop: tn.Segment.Stop})
		return ast.WalkContinue, nil
	})
	return entries
}

// attach wraps every run of a's span that falls on collected text inside the
// span's first enclosing block. The entries slice is updated in place as
// nodes split, which the caller's later annotations rely on: annotations
// arrive sorted by start and non-overlapping, so they only ever touch the
// remainder entries.
func attach(a *models.Annotation, entries []*textEntry) (Warning, bool) {
	var (
		anchor  ast.Node
		matched bool
		clipped bool
	)

	for _, e := range entries {
		if e.start >= a.Target.End {
			break
		}
		if e.stop <= a.Target.Start || e.start == e.stop {
			continue
		}

		block := enclosingBlock(e.node)
		if anchor == nil {
			anchor = block
		} else if block != anchor {
			clipped = true
			continue
		}

		matched = true
		wrapEntry(a, e)
	}

	switch {
	case !matched:
		return Warning{AnnotationID: a.ID.String(), Reason: WarningUnmatched}, true
	case clipped:
		return Warning{AnnotationID: a.ID.String(), Reason: WarningClipped}, true
	default:
		return Warning{}, false
	}
}

// wrapEntry splits e.node around the covered byte range and wraps the middle
// in an AnnotationSpan. e is rewritten to the uncovered tail so later
// annotations keep an accurate view.
func wrapEntry(a *models.Annotation, e *textEntry) {
	lo := a.Target.Start
	if lo < e.start {
		lo = e.start
	}
	hi := a.Target.End
	if hi > e.stop {
		hi = e.stop
	}

	node := e.node
	parent := node.Parent()

	if lo > e.start {
		before := ast.NewTextSegment(text.NewSegment(e.start, lo))
		parent.InsertBefore(parent, node, before)
	}

	covered := ast.NewTextSegment(text.NewSegment(lo, hi))
	span := NewAnnotationSpan(a.ID.String(), string(a.Motivation), a.Resolved())
	span.AppendChild(span, covered)
	parent.InsertBefore(parent, node, span)

	if hi < e.stop {
		after := ast.NewTextSegment(text.NewSegment(hi, e.stop))
		after.SetSoftLineBreak(node.SoftLineBreak())
		after.SetHardLineBreak(node.HardLineBreak())
		parent.InsertBefore(parent, node, after)
		e.node = after
		e.start = hi
	} else {
		covered.SetSoftLineBreak(node.SoftLineBreak())
		covered.SetHardLineBreak(node.HardLineBreak())
		// Nothing left of this node; collapse the entry so it can never
		// intersect again.
		e.start = hi
		e.stop = hi
	}

	parent.RemoveChild(parent, node)
}

// enclosingBlock walks up to the nearest block-level ancestor.
func enclosingBlock(n ast.Node) ast.Node {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Type() == ast.TypeBlock {
			return p
		}
	}
	return nil
}
