package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "marginalia/pkg/domain"
	dErrors "marginalia/pkg/domain-errors"
)

func testTarget() Target {
	return Target{
		Source: "urn:marginalia:doc:test",
		Exact:  "Hello",
		Start:  0,
		End:    5,
	}
}

func TestNewAnnotation_Invariants(t *testing.T) {
	now := time.Now()

	t.Run("accepts a highlight with empty body", func(t *testing.T) {
		a, err := NewAnnotation(id.NewAnnotationID(), MotivationHighlighting, testTarget(), EmptyBody(), "alice", now)
		require.NoError(t, err)
		assert.Equal(t, StateHighlight, a.State())
	})

	t.Run("rejects unknown motivation", func(t *testing.T) {
		_, err := NewAnnotation(id.NewAnnotationID(), Motivation("describing"), testTarget(), EmptyBody(), "alice", now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects missing target source", func(t *testing.T) {
		target := testTarget()
		target.Source = ""
		_, err := NewAnnotation(id.NewAnnotationID(), MotivationHighlighting, target, EmptyBody(), "alice", now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects a highlight with a resolved body", func(t *testing.T) {
		_, err := NewAnnotation(id.NewAnnotationID(), MotivationHighlighting, testTarget(), ResourceBody("doc-42", nil, ""), "alice", now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects a comment with a resource body", func(t *testing.T) {
		_, err := NewAnnotation(id.NewAnnotationID(), MotivationCommenting, testTarget(), ResourceBody("doc-42", nil, ""), "alice", now)
		require.Error(t, err)
	})
}

// TestStateClassification covers every (motivation, body shape) combination
// the state machine runs on.
func TestStateClassification(t *testing.T) {
	tests := []struct {
		name       string
		motivation Motivation
		body       Body
		want       State
	}{
		{"highlight", MotivationHighlighting, EmptyBody(), StateHighlight},
		{"assessment with text", MotivationAssessing, TextualBody("agree"), StateAssessment},
		{"assessment without text", MotivationAssessing, EmptyBody(), StateAssessment},
		{"comment", MotivationCommenting, TextualBody("a comment"), StateComment},
		{"stub reference with empty body", MotivationLinking, EmptyBody(), StateReferenceStub},
		{"stub reference with sourceless resource", MotivationLinking, ResourceBody("", []string{"Person"}, ""), StateReferenceStub},
		{"resolved reference", MotivationLinking, ResourceBody("doc-42", nil, ""), StateReferenceResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Annotation{Motivation: tt.motivation, Body: tt.body}
			assert.Equal(t, tt.want, a.State())
		})
	}
}

func TestPredicates(t *testing.T) {
	highlight := &Annotation{Motivation: MotivationHighlighting}
	reference := &Annotation{Motivation: MotivationLinking, Body: ResourceBody("doc-42", nil, "")}
	assessment := &Annotation{Motivation: MotivationAssessing}
	comment := &Annotation{Motivation: MotivationCommenting, Body: TextualBody("x")}

	assert.True(t, highlight.IsHighlight())
	assert.False(t, highlight.IsReference())
	assert.True(t, reference.IsReference())
	assert.True(t, reference.Resolved())
	assert.True(t, assessment.IsAssessment())
	assert.True(t, comment.IsComment())
	assert.False(t, comment.Resolved())
}

// TestAccessors_DegradeGracefully verifies accessors never panic on missing
// or malformed data.
func TestAccessors_DegradeGracefully(t *testing.T) {
	t.Run("nil annotation", func(t *testing.T) {
		var a *Annotation
		assert.Empty(t, a.EntityTypes())
		assert.Empty(t, a.BodySource())
		assert.Empty(t, a.ExactText())
		_, _, ok := a.Selector()
		assert.False(t, ok)
	})

	t.Run("empty body", func(t *testing.T) {
		a := &Annotation{Motivation: MotivationLinking}
		assert.Empty(t, a.EntityTypes())
		assert.Empty(t, a.BodySource())
	})

	t.Run("resource body without entity types", func(t *testing.T) {
		a := &Annotation{Motivation: MotivationLinking, Body: ResourceBody("doc-42", nil, "")}
		assert.NotNil(t, a.EntityTypes())
		assert.Empty(t, a.EntityTypes())
		assert.Equal(t, "doc-42", a.BodySource())
	})

	t.Run("degenerate selector", func(t *testing.T) {
		a := &Annotation{Target: Target{Start: 5, End: 5}}
		_, _, ok := a.Selector()
		assert.False(t, ok)
	})
}

func TestConversionTarget(t *testing.T) {
	t.Run("highlight converts to a reference", func(t *testing.T) {
		a := &Annotation{Motivation: MotivationHighlighting}
		m, err := a.ConversionTarget()
		require.NoError(t, err)
		assert.Equal(t, MotivationLinking, m)
	})

	t.Run("stub reference converts to a highlight", func(t *testing.T) {
		a := &Annotation{Motivation: MotivationLinking}
		m, err := a.ConversionTarget()
		require.NoError(t, err)
		assert.Equal(t, MotivationHighlighting, m)
	})

	t.Run("resolved reference converts to a highlight, discarding resolution", func(t *testing.T) {
		a := &Annotation{Motivation: MotivationLinking, Body: ResourceBody("doc-42", nil, "")}
		m, err := a.ConversionTarget()
		require.NoError(t, err)
		assert.Equal(t, MotivationHighlighting, m)
	})

	t.Run("assessments and comments have no conversion edges", func(t *testing.T) {
		for _, m := range []Motivation{MotivationAssessing, MotivationCommenting} {
			a := &Annotation{Motivation: m}
			_, err := a.ConversionTarget()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
		}
	})
}

// TestResolveUnlink covers the stub ⇄ resolved transitions, including the
// selector-bytes-unchanged guarantee.
func TestResolveUnlink(t *testing.T) {
	t.Run("resolving a stub preserves the target", func(t *testing.T) {
		target := testTarget()
		a := &Annotation{Motivation: MotivationLinking, Target: target}

		require.NoError(t, a.CanResolve())
		a.ApplyResolution("doc-42", []string{"Person"}, "identifying")

		assert.Equal(t, StateReferenceResolved, a.State())
		assert.Equal(t, "doc-42", a.BodySource())
		assert.Equal(t, target, a.Target, "resolution must not touch the selector")
	})

	t.Run("resolving a resolved reference conflicts", func(t *testing.T) {
		a := &Annotation{Motivation: MotivationLinking, Body: ResourceBody("doc-42", nil, "")}
		err := a.CanResolve()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("unlink resets the body to empty", func(t *testing.T) {
		a := &Annotation{Motivation: MotivationLinking, Target: testTarget(), Body: ResourceBody("doc-42", []string{"Person"}, "")}

		require.NoError(t, a.CanUnlink())
		a.ApplyUnlink()

		assert.Equal(t, StateReferenceStub, a.State())
		assert.True(t, a.Body.IsEmpty())
	})

	t.Run("unlinking a stub conflicts", func(t *testing.T) {
		a := &Annotation{Motivation: MotivationLinking}
		err := a.CanUnlink()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("highlights cannot resolve", func(t *testing.T) {
		a := &Annotation{Motivation: MotivationHighlighting}
		require.Error(t, a.CanResolve())
	})
}

func TestTargetValidFor(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		len    int
		want   bool
	}{
		{"valid span", Target{Start: 0, End: 5}, 10, true},
		{"full text", Target{Start: 0, End: 10}, 10, true},
		{"negative start", Target{Start: -1, End: 2}, 10, false},
		{"end past text", Target{Start: 0, End: 11}, 10, false},
		{"collapsed", Target{Start: 3, End: 3}, 10, false},
		{"inverted", Target{Start: 5, End: 2}, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.target.ValidFor(tt.len))
		})
	}
}

func TestMotivationRegistry(t *testing.T) {
	assert.True(t, MotivationCommenting.SidePanel())
	assert.True(t, MotivationLinking.SidePanel())
	assert.False(t, MotivationHighlighting.SidePanel())
	assert.False(t, MotivationAssessing.SidePanel())

	assert.True(t, MotivationCommenting.Deferred())
	assert.True(t, MotivationLinking.Deferred())
	assert.False(t, MotivationHighlighting.Deferred())
	assert.False(t, MotivationAssessing.Deferred())

	_, err := ParseMotivation("bookmarking")
	require.Error(t, err)
	m, err := ParseMotivation("linking")
	require.NoError(t, err)
	assert.Equal(t, MotivationLinking, m)
}
