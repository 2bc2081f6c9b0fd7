package selection

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marginalia/internal/annotation/models"
	dErrors "marginalia/pkg/domain-errors"
)

func intPtr(n int) *int { return &n }

func TestResolveOffsets(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog"

	t.Run("pins the span and captures covered bytes", func(t *testing.T) {
		res, err := Resolve(text, models.SelectionRequest{Start: intPtr(4), End: intPtr(9)})
		require.NoError(t, err)
		assert.Equal(t, 4, res.Start)
		assert.Equal(t, 9, res.End)
		assert.Equal(t, "quick", res.Exact)
		assert.Equal(t, text[res.Start:res.End], res.Exact)
		assert.Equal(t, "the ", res.Prefix)
		assert.Equal(t, " brown fox jumps over the lazy d", res.Suffix)
	})

	t.Run("verifies exact against the document", func(t *testing.T) {
		res, err := Resolve(text, models.SelectionRequest{Exact: "quick", Start: intPtr(4), End: intPtr(9)})
		require.NoError(t, err)
		assert.Equal(t, "quick", res.Exact)
	})

	t.Run("mismatched exact is a conflict", func(t *testing.T) {
		_, err := Resolve(text, models.SelectionRequest{Exact: "brown", Start: intPtr(4), End: intPtr(9)})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("offsets past the end are rejected", func(t *testing.T) {
		_, err := Resolve(text, models.SelectionRequest{Start: intPtr(4), End: intPtr(len(text) + 1)})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("negative start is rejected without panic", func(t *testing.T) {
		_, err := Resolve(text, models.SelectionRequest{Start: intPtr(-1), End: intPtr(5)})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("collapsed span is rejected", func(t *testing.T) {
		_, err := Resolve(text, models.SelectionRequest{Start: intPtr(4), End: intPtr(4)})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("client context is kept verbatim", func(t *testing.T) {
		res, err := Resolve(text, models.SelectionRequest{
			Start: intPtr(4), End: intPtr(9),
			Prefix: "the ", Suffix: " brown",
		})
		require.NoError(t, err)
		assert.Equal(t, "the ", res.Prefix)
		assert.Equal(t, " brown", res.Suffix)
	})
}

func TestResolveSearch(t *testing.T) {
	t.Run("unique occurrence is found", func(t *testing.T) {
		res, err := Resolve("one fish two whale", models.SelectionRequest{Exact: "whale"})
		require.NoError(t, err)
		assert.Equal(t, 13, res.Start)
		assert.Equal(t, 18, res.End)
		assert.Equal(t, "whale", res.Exact)
	})

	t.Run("prefix context picks the right occurrence", func(t *testing.T) {
		text := "one fish two fish"
		res, err := Resolve(text, models.SelectionRequest{Exact: "fish", Prefix: "two "})
		require.NoError(t, err)
		assert.Equal(t, 13, res.Start)
		assert.Equal(t, "fish", text[res.Start:res.End])
	})

	t.Run("suffix context picks the right occurrence", func(t *testing.T) {
		text := "ab X cd X ef"
		res, err := Resolve(text, models.SelectionRequest{Exact: "X", Suffix: " ef"})
		require.NoError(t, err)
		assert.Equal(t, 8, res.Start)
	})

	t.Run("no context falls back to first match", func(t *testing.T) {
		res, err := Resolve("one fish two fish", models.SelectionRequest{Exact: "fish"})
		require.NoError(t, err)
		assert.Equal(t, 4, res.Start)
	})

	t.Run("tied scores fall back to earliest", func(t *testing.T) {
		res, err := Resolve("aa bb aa", models.SelectionRequest{Exact: "aa", Prefix: "zz"})
		require.NoError(t, err)
		assert.Equal(t, 0, res.Start)
	})

	t.Run("absent text is rejected", func(t *testing.T) {
		_, err := Resolve("one fish two fish", models.SelectionRequest{Exact: "shark"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("empty selection is rejected", func(t *testing.T) {
		_, err := Resolve("one fish", models.SelectionRequest{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestResolveCapturesWholeRunes(t *testing.T) {
	// 20 three-byte runes put the capture window start inside a rune.
	text := strings.Repeat("世", 20) + "mark"
	res, err := Resolve(text, models.SelectionRequest{Exact: "mark"})
	require.NoError(t, err)
	assert.Equal(t, 60, res.Start)
	assert.True(t, utf8.ValidString(res.Prefix))
	assert.Equal(t, 30, len(res.Prefix))
	assert.Equal(t, "", res.Suffix)
}
