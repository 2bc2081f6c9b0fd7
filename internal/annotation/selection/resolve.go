// Package selection pins a user text selection to byte offsets of immutable
// source text.
//
// Clients may send offsets, the exact covered text, or both. Offsets are
// authoritative only when they agree with the text; a bare quote is located
// by search, with prefix and suffix context scoring to disambiguate repeated
// occurrences.
package selection

import (
	"strings"
	"unicode/utf8"

	"marginalia/internal/annotation/models"
	dErrors "marginalia/pkg/domain-errors"
)

// contextCapture is how many bytes of surrounding text are captured as
// prefix and suffix when the client supplies none. Captured context lets the
// span be re-located later if offsets alone turn ambiguous.
const contextCapture = 32

// Resolved is a selection pinned to concrete byte offsets. Exact always
// holds the covered bytes of the text it was resolved against.
type Resolved struct {
	Start  int
	End    int
	Exact  string
	Prefix string
	Suffix string
}

// Resolve pins a selection request to offsets in text.
//
// With both offsets present the span is verified against Exact when given
// and Exact is captured from the text when not. Without offsets, Exact is
// located by search; when it occurs more than once, candidates are scored by
// how many context bytes agree around them and the earliest best-scoring
// occurrence wins. No context at all degrades to first match.
func Resolve(text string, req models.SelectionRequest) (Resolved, error) {
	if req.Exact == "" && (req.Start == nil || req.End == nil) {
		return Resolved{}, dErrors.New(dErrors.CodeValidation, "selection needs exact text or both offsets")
	}
	if req.Start != nil && req.End != nil {
		return resolveOffsets(text, req)
	}
	return resolveSearch(text, req)
}

func resolveOffsets(text string, req models.SelectionRequest) (Resolved, error) {
	start, end := *req.Start, *req.End
	if start < 0 || end > len(text) || start >= end {
		return Resolved{}, dErrors.New(dErrors.CodeInvalidInput, "selection offsets fall outside the document")
	}
	if req.Exact != "" && text[start:end] != req.Exact {
		return Resolved{}, dErrors.New(dErrors.CodeConflict, "selection text does not match the document at the given offsets")
	}
	return located(text, start, end, req), nil
}

func resolveSearch(text string, req models.SelectionRequest) (Resolved, error) {
	best, found := -1, -1
	for from := 0; ; {
		i := strings.Index(text[from:], req.Exact)
		if i < 0 {
			break
		}
		idx := from + i
		score := contextScore(text, idx, idx+len(req.Exact), req.Prefix, req.Suffix)
		if score > best {
			best, found = score, idx
		}
		from = idx + 1
	}
	if found < 0 {
		return Resolved{}, dErrors.New(dErrors.CodeInvalidInput, "selection text not found in the document")
	}
	return located(text, found, found+len(req.Exact), req), nil
}

// contextScore counts how many context bytes agree with the text around a
// candidate span: the prefix is matched backwards from the span start, the
// suffix forwards from the span end.
func contextScore(text string, start, end int, prefix, suffix string) int {
	score := 0
	if prefix != "" {
		before := text[:start]
		n := 0
		for n < len(prefix) && n < len(before) && prefix[len(prefix)-1-n] == before[len(before)-1-n] {
			n++
		}
		score += n
	}
	if suffix != "" {
		after := text[end:]
		n := 0
		for n < len(suffix) && n < len(after) && suffix[n] == after[n] {
			n++
		}
		score += n
	}
	return score
}

// located builds the result for a pinned span. Client-provided context is
// kept as sent; missing context is captured from the text, clamped to whole
// runes so it stays valid UTF-8.
func located(text string, start, end int, req models.SelectionRequest) Resolved {
	r := Resolved{
		Start:  start,
		End:    end,
		Exact:  text[start:end],
		Prefix: req.Prefix,
		Suffix: req.Suffix,
	}
	if r.Prefix == "" {
		from := start - contextCapture
		if from < 0 {
			from = 0
		}
		for from < start && !utf8.RuneStart(text[from]) {
			from++
		}
		r.Prefix = text[from:start]
	}
	if r.Suffix == "" {
		to := end + contextCapture
		if to > len(text) {
			to = len(text)
		}
		for to > end && to < len(text) && !utf8.RuneStart(text[to]) {
			to--
		}
		r.Suffix = text[end:to]
	}
	return r
}
