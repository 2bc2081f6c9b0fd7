package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"marginalia/internal/annotation/feed"
	"marginalia/internal/annotation/models"
	"marginalia/internal/annotation/service/mocks"
	"marginalia/internal/annotation/store"
	docmodels "marginalia/internal/document/models"
	"marginalia/internal/platform/middleware"
	docservice "marginalia/internal/document/service"
	docstore "marginalia/internal/document/store"
	id "marginalia/pkg/domain"
	dErrors "marginalia/pkg/domain-errors"
	audit "marginalia/pkg/platform/audit"
	"marginalia/pkg/platform/audit/publisher"
	"marginalia/pkg/platform/audit/store/memory"
	"marginalia/pkg/requestcontext"
)

const docText = "the quick brown fox jumps over the lazy dog"

type captureNotifier struct {
	mu     sync.Mutex
	events []feed.Event
}

func (n *captureNotifier) Notify(_ context.Context, e feed.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *captureNotifier) Types() []feed.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	types := make([]feed.EventType, 0, len(n.events))
	for _, e := range n.events {
		types = append(types, e.Type)
	}
	return types
}

type fixture struct {
	svc      *Service
	docID    id.DocumentID
	resource string
	clock    *fakeClock
	notifier *captureNotifier
	audits   *memory.InMemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newFakeClock()
	auditStore := memory.NewInMemoryStore()
	pub := publisher.NewPublisher(auditStore)
	t.Cleanup(pub.Close)

	docs := docservice.New(docstore.NewMemory())
	doc, err := docs.Register(context.Background(), docservice.RegisterRequest{
		Resource: "urn:marginalia:doc:lifecycle",
		Content:  docText,
	})
	require.NoError(t, err)

	notifier := &captureNotifier{}
	svc := New(store.NewMemory().WithClock(clock.Now), docs,
		WithAuditPublisher(pub),
		WithNotifier(notifier),
		WithClock(clock.Now),
	)
	return &fixture{
		svc:      svc,
		docID:    doc.ID,
		resource: doc.Resource,
		clock:    clock,
		notifier: notifier,
		audits:   auditStore,
	}
}

func (f *fixture) auditActions(t *testing.T) []string {
	t.Helper()
	events, err := f.audits.ListByResource(context.Background(), f.resource)
	require.NoError(t, err)
	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	return actions
}

func intPtr(n int) *int { return &n }

func TestSelect_HighlightCreatesImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := requestcontext.WithActor(context.Background(), "alice")

	out, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
		Motivation: "highlighting",
		Exact:      "quick",
	})
	require.NoError(t, err)
	require.False(t, out.Deferred())

	a := out.Annotation
	assert.Equal(t, models.MotivationHighlighting, a.Motivation)
	assert.Equal(t, models.StateHighlight, a.State())
	assert.Equal(t, f.resource, a.Target.Source)
	assert.Equal(t, 4, a.Target.Start)
	assert.Equal(t, 9, a.Target.End)
	assert.Equal(t, "quick", a.Target.Exact)
	assert.Equal(t, "alice", a.Creator)

	require.Len(t, out.Annotations, 1, "the outcome carries the full refetch")
	assert.True(t, out.Annotations[0].New)

	assert.Contains(t, f.auditActions(t), string(audit.EventAnnotationCreated))
	assert.Equal(t, []feed.EventType{feed.EventCreated}, f.notifier.Types())
}

func TestAudit_EventsCarryClientProvenance(t *testing.T) {
	f := newFixture(t)
	ctx := requestcontext.WithActor(context.Background(), "alice")
	ctx = middleware.WithClientMetadata(ctx, "203.0.113.9",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")

	_, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
		Motivation: "highlighting",
		Exact:      "quick",
	})
	require.NoError(t, err)

	events, err := f.audits.ListByResource(context.Background(), f.resource)
	require.NoError(t, err)
	require.NotEmpty(t, events)

	var created *audit.Event
	for i := range events {
		if events[i].Action == string(audit.EventAnnotationCreated) {
			created = &events[i]
			break
		}
	}
	require.NotNil(t, created)
	assert.Equal(t, "alice", created.Actor)
	assert.Equal(t, "203.0.113.9", created.Provenance.IP)
	assert.Contains(t, created.Provenance.Browser, "Chrome")
	assert.Contains(t, created.Provenance.OS, "Linux")
}

func TestSelect_OffsetsVerifiedAgainstDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("matching offsets pin the span", func(t *testing.T) {
		out, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
			Motivation: "highlighting",
			Exact:      "brown",
			Start:      intPtr(10),
			End:        intPtr(15),
		})
		require.NoError(t, err)
		assert.Equal(t, "brown", out.Annotation.Target.Exact)
	})

	t.Run("mismatched offsets are a conflict", func(t *testing.T) {
		_, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
			Motivation: "highlighting",
			Exact:      "quick",
			Start:      intPtr(10),
			End:        intPtr(15),
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("text absent from the document is rejected", func(t *testing.T) {
		_, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
			Motivation: "highlighting",
			Exact:      "zebra",
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("unknown motivation is rejected", func(t *testing.T) {
		_, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
			Motivation: "doodling",
			Exact:      "quick",
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestSelect_AssessmentCarriesInlineText(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.Select(context.Background(), f.docID, models.SelectionRequest{
		Motivation: "assessing",
		Exact:      "jumps over",
		Text:       "verb phrase",
	})
	require.NoError(t, err)
	require.False(t, out.Deferred())
	assert.Equal(t, models.StateAssessment, out.Annotation.State())
	assert.Equal(t, models.BodyKindTextual, out.Annotation.Body.Kind)
	assert.Equal(t, "verb phrase", out.Annotation.Body.Value)
}

func TestSelect_CommentDefersForCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := requestcontext.WithActor(context.Background(), "alice")

	out, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
		Motivation: "commenting",
		Exact:      "lazy",
	})
	require.NoError(t, err)
	require.True(t, out.Deferred())
	assert.False(t, out.Token.IsZero())
	assert.Equal(t, models.MotivationCommenting, out.Motivation)
	assert.False(t, out.ExpiresAt.IsZero())
	assert.Equal(t, 1, f.svc.PendingCount())

	views, err := f.svc.ListForDocument(ctx, f.docID)
	require.NoError(t, err)
	assert.Empty(t, views, "nothing is stored until the selection completes")

	assert.Contains(t, f.auditActions(t), string(audit.EventSelectionRegistered))
}

func TestSelect_OverlapWithPendingRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
		Motivation: "commenting",
		Exact:      "quick",
	})
	require.NoError(t, err)

	t.Run("immediate create over the held span", func(t *testing.T) {
		_, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
			Motivation: "highlighting",
			Exact:      "quick brown",
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("second deferred selection over the held span", func(t *testing.T) {
		_, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
			Motivation: "linking",
			Exact:      "the quick",
			Prefix:     "",
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("disjoint span proceeds", func(t *testing.T) {
		out, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
			Motivation: "highlighting",
			Exact:      "lazy",
		})
		require.NoError(t, err)
		assert.False(t, out.Deferred())
	})
}

func TestCompleteSelection_Comment(t *testing.T) {
	f := newFixture(t)
	alice := requestcontext.WithActor(context.Background(), "alice")

	out, err := f.svc.Select(alice, f.docID, models.SelectionRequest{
		Motivation: "commenting",
		Exact:      "fox",
	})
	require.NoError(t, err)

	// A different caller finishes the flow; the annotation still belongs to
	// whoever made the selection.
	bob := requestcontext.WithActor(context.Background(), "bob")
	result, err := f.svc.CompleteSelection(bob, out.Token, models.CompleteSelectionRequest{
		Text: "sly one",
	})
	require.NoError(t, err)

	a := result.Annotation
	assert.Equal(t, models.StateComment, a.State())
	assert.Equal(t, "sly one", a.Body.Value)
	assert.Equal(t, "alice", a.Creator)
	assert.Equal(t, 0, f.svc.PendingCount())

	require.Len(t, result.Annotations, 1)
	assert.True(t, result.Annotations[0].New)

	actions := f.auditActions(t)
	assert.Contains(t, actions, string(audit.EventSelectionCompleted))
	assert.Contains(t, actions, string(audit.EventAnnotationCreated))
}

func TestCompleteSelection_Reference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("entity types alone make a stub", func(t *testing.T) {
		out, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
			Motivation: "linking",
			Exact:      "fox",
		})
		require.NoError(t, err)

		result, err := f.svc.CompleteSelection(ctx, out.Token, models.CompleteSelectionRequest{
			EntityTypes: []string{"animal"},
		})
		require.NoError(t, err)
		assert.Equal(t, models.StateReferenceStub, result.Annotation.State())
		assert.Equal(t, []string{"animal"}, result.Annotation.EntityTypes())
	})

	t.Run("a source resolves immediately", func(t *testing.T) {
		out, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
			Motivation: "linking",
			Exact:      "dog",
		})
		require.NoError(t, err)

		result, err := f.svc.CompleteSelection(ctx, out.Token, models.CompleteSelectionRequest{
			EntityTypes: []string{"animal"},
			Source:      "https://example.org/entity/dog",
		})
		require.NoError(t, err)
		assert.Equal(t, models.StateReferenceResolved, result.Annotation.State())
		assert.Equal(t, "https://example.org/entity/dog", result.Annotation.BodySource())
	})
}

func TestCompleteSelection_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
		Motivation: "commenting",
		Exact:      "quick",
	})
	require.NoError(t, err)

	t.Run("comment without text is invalid and retryable", func(t *testing.T) {
		_, err := f.svc.CompleteSelection(ctx, out.Token, models.CompleteSelectionRequest{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Equal(t, 1, f.svc.PendingCount(), "a failed completion keeps the selection")
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := f.svc.CompleteSelection(ctx, id.NewSelectionToken(), models.CompleteSelectionRequest{Text: "hi"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("expired token", func(t *testing.T) {
		f.clock.Advance(defaultSelectionTTL + time.Second)
		_, err := f.svc.CompleteSelection(ctx, out.Token, models.CompleteSelectionRequest{Text: "hi"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		assert.Contains(t, f.auditActions(t), string(audit.EventSelectionExpired))
	})
}

func TestDiscardSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
		Motivation: "linking",
		Exact:      "quick",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DiscardSelection(ctx, out.Token))
	assert.Equal(t, 0, f.svc.PendingCount())
	assert.Contains(t, f.auditActions(t), string(audit.EventSelectionDiscarded))

	t.Run("the span is free again", func(t *testing.T) {
		_, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
			Motivation: "highlighting",
			Exact:      "quick",
		})
		assert.NoError(t, err)
	})

	t.Run("a second discard reports not found", func(t *testing.T) {
		err := f.svc.DiscardSelection(ctx, out.Token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
		Motivation: "highlighting",
		Exact:      "quick",
	})
	require.NoError(t, err)
	annID := out.Annotation.ID

	result, err := f.svc.Delete(ctx, annID)
	require.NoError(t, err)
	assert.Empty(t, result.Annotations)

	_, err = f.svc.Get(ctx, annID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	assert.Contains(t, f.auditActions(t), string(audit.EventAnnotationDeleted))
	assert.Contains(t, f.notifier.Types(), feed.EventDeleted)

	t.Run("deleting again reports not found", func(t *testing.T) {
		_, err := f.svc.Delete(ctx, annID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestConvert_HighlightToReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
		Motivation: "highlighting",
		Exact:      "brown fox",
	})
	require.NoError(t, err)
	original := out.Annotation

	result, err := f.svc.Convert(ctx, original.ID)
	require.NoError(t, err)
	converted := result.Annotation

	assert.NotEqual(t, original.ID, converted.ID, "conversion mints a new identity")
	assert.Equal(t, models.StateReferenceStub, converted.State())
	assert.Equal(t, original.Target, converted.Target, "selector bytes are preserved")
	assert.Equal(t, original.Creator, converted.Creator)

	_, err = f.svc.Get(ctx, original.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound), "the old identity is gone")

	require.Len(t, result.Annotations, 1)
	assert.True(t, result.Annotations[0].New, "the converted annotation is new again")

	assert.Contains(t, f.auditActions(t), string(audit.EventAnnotationConverted))
	assert.Contains(t, f.notifier.Types(), feed.EventConverted)
}

func TestConvert_ReferenceBackToHighlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
		Motivation: "linking",
		Exact:      "dog",
	})
	require.NoError(t, err)
	completed, err := f.svc.CompleteSelection(ctx, out.Token, models.CompleteSelectionRequest{
		Source: "https://example.org/entity/dog",
	})
	require.NoError(t, err)
	require.Equal(t, models.StateReferenceResolved, completed.Annotation.State())

	result, err := f.svc.Convert(ctx, completed.Annotation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateHighlight, result.Annotation.State())
	assert.True(t, result.Annotation.Body.IsEmpty(), "resolution is discarded")
}

func TestConvert_CommentRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
		Motivation: "commenting",
		Exact:      "fox",
	})
	require.NoError(t, err)
	completed, err := f.svc.CompleteSelection(ctx, out.Token, models.CompleteSelectionRequest{Text: "hi"})
	require.NoError(t, err)

	_, err = f.svc.Convert(ctx, completed.Annotation.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestResolveAndUnlink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
		Motivation: "linking",
		Exact:      "fox",
	})
	require.NoError(t, err)
	completed, err := f.svc.CompleteSelection(ctx, out.Token, models.CompleteSelectionRequest{
		EntityTypes: []string{"animal"},
	})
	require.NoError(t, err)
	annID := completed.Annotation.ID

	result, err := f.svc.Resolve(ctx, annID, models.ResolveRequest{
		Source:      "https://example.org/entity/fox",
		EntityTypes: []string{"animal"},
	})
	require.NoError(t, err)
	assert.Equal(t, annID, result.Annotation.ID, "resolution preserves identity")
	assert.Equal(t, models.StateReferenceResolved, result.Annotation.State())
	assert.Equal(t, completed.Annotation.Target, result.Annotation.Target)

	t.Run("resolving twice conflicts", func(t *testing.T) {
		_, err := f.svc.Resolve(ctx, annID, models.ResolveRequest{Source: "https://example.org/other"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("unlink returns to a stub", func(t *testing.T) {
		result, err := f.svc.Unlink(ctx, annID)
		require.NoError(t, err)
		assert.Equal(t, annID, result.Annotation.ID)
		assert.Equal(t, models.StateReferenceStub, result.Annotation.State())
		assert.True(t, result.Annotation.Body.IsEmpty())
	})

	t.Run("unlinking a stub conflicts", func(t *testing.T) {
		_, err := f.svc.Unlink(ctx, annID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	actions := f.auditActions(t)
	assert.Contains(t, actions, string(audit.EventAnnotationResolved))
	assert.Contains(t, actions, string(audit.EventAnnotationUnlinked))
}

func TestList_NewMarksDecay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
		Motivation: "highlighting",
		Exact:      "quick",
	})
	require.NoError(t, err)

	views, err := f.svc.ListForDocument(ctx, f.docID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].New)

	f.clock.Advance(defaultNewMarkTTL + time.Second)

	views, err = f.svc.ListForDocument(ctx, f.docID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.False(t, views[0].New, "the mark decays without any mutation")
}

func TestClick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	highlight, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
		Motivation: "highlighting",
		Exact:      "quick",
	})
	require.NoError(t, err)

	commentSel, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
		Motivation: "commenting",
		Exact:      "fox",
	})
	require.NoError(t, err)
	comment, err := f.svc.CompleteSelection(ctx, commentSel.Token, models.CompleteSelectionRequest{Text: "note"})
	require.NoError(t, err)

	linkSel, err := f.svc.Select(ctx, f.docID, models.SelectionRequest{
		Motivation: "linking",
		Exact:      "dog",
	})
	require.NoError(t, err)
	reference, err := f.svc.CompleteSelection(ctx, linkSel.Token, models.CompleteSelectionRequest{
		Source: "https://example.org/entity/dog",
	})
	require.NoError(t, err)

	t.Run("detail routes side-panel types to the panel", func(t *testing.T) {
		before := len(f.notifier.Types())
		result, err := f.svc.Click(ctx, comment.Annotation.ID, models.ClickDetail)
		require.NoError(t, err)
		assert.True(t, result.Panel)
		types := f.notifier.Types()
		require.Greater(t, len(types), before)
		assert.Equal(t, feed.EventDetail, types[len(types)-1])
	})

	t.Run("detail on a highlight stays inline", func(t *testing.T) {
		before := len(f.notifier.Types())
		result, err := f.svc.Click(ctx, highlight.Annotation.ID, models.ClickDetail)
		require.NoError(t, err)
		assert.False(t, result.Panel)
		assert.Len(t, f.notifier.Types(), before, "no panel event for inline types")
	})

	t.Run("follow returns the target of a resolved reference", func(t *testing.T) {
		result, err := f.svc.Click(ctx, reference.Annotation.ID, models.ClickFollow)
		require.NoError(t, err)
		assert.Equal(t, "https://example.org/entity/dog", result.Source)
		assert.Contains(t, f.auditActions(t), string(audit.EventReferenceFollowed))
	})

	t.Run("follow on anything unresolved conflicts", func(t *testing.T) {
		_, err := f.svc.Click(ctx, highlight.Annotation.ID, models.ClickFollow)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("jsonld and deleting return the annotation", func(t *testing.T) {
		for _, action := range []models.ClickAction{models.ClickJSONLD, models.ClickDeleting} {
			result, err := f.svc.Click(ctx, comment.Annotation.ID, action)
			require.NoError(t, err)
			assert.Equal(t, comment.Annotation.ID, result.Annotation.ID)
		}
	})

	t.Run("a click clears the new mark", func(t *testing.T) {
		views, err := f.svc.ListForDocument(ctx, f.docID)
		require.NoError(t, err)
		for _, v := range views {
			if v.ID == highlight.Annotation.ID {
				assert.False(t, v.New, "clicked annotations are no longer new")
			}
		}
	})
}

func TestService_StoreErrorPaths(t *testing.T) {
	boom := errors.New("boom")

	t.Run("list failure maps to internal", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		st := mocks.NewMockStore(ctrl)
		docs := mocks.NewMockDocuments(ctrl)
		docID := id.NewDocumentID()

		docs.EXPECT().Resolve(gomock.Any(), docID).Return("urn:doc", nil)
		st.EXPECT().List(gomock.Any(), "urn:doc").Return(nil, boom)

		svc := New(st, docs)
		_, err := svc.ListForDocument(context.Background(), docID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	t.Run("create failure leaves no side effects", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		st := mocks.NewMockStore(ctrl)
		docs := mocks.NewMockDocuments(ctrl)
		notifier := &captureNotifier{}
		docID := id.NewDocumentID()

		doc := &docmodels.Document{ID: docID, Resource: "urn:doc", Content: docText}
		docs.EXPECT().Get(gomock.Any(), docID).Return(doc, nil)
		st.EXPECT().
			Create(gomock.Any(), "urn:doc", models.MotivationHighlighting, gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, boom)

		svc := New(st, docs, WithNotifier(notifier))
		_, err := svc.Select(context.Background(), docID, models.SelectionRequest{
			Motivation: "highlighting",
			Exact:      "quick",
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
		assert.Empty(t, notifier.Types(), "no feed event without a confirmed create")
	})

	t.Run("missing annotation maps to not found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		st := mocks.NewMockStore(ctrl)
		annID := id.NewAnnotationID()

		st.EXPECT().Get(gomock.Any(), annID).Return(nil, store.ErrNotFound)

		svc := New(st, mocks.NewMockDocuments(ctrl))
		_, err := svc.Get(context.Background(), annID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestShardedTx_CancelledContext(t *testing.T) {
	tx := newShardedTx(store.NewMemory())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tx.RunInTx(ctx, func(Store) error { return nil })
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}
