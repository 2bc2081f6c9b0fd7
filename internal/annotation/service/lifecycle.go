package service

import (
	"context"
	"errors"
	"time"

	"marginalia/internal/annotation/feed"
	"marginalia/internal/annotation/models"
	"marginalia/internal/annotation/selection"
	"marginalia/internal/annotation/store"
	id "marginalia/pkg/domain"
	dErrors "marginalia/pkg/domain-errors"
	audit "marginalia/pkg/platform/audit"
	"marginalia/pkg/requestcontext"
)

// SelectionOutcome is the result of dispatching a selection. Immediate
// motivations settle into an annotation; deferred ones hand back a token
// that a later completion or discard consumes.
type SelectionOutcome struct {
	Annotation  *models.Annotation
	Annotations []ListedAnnotation
	Token       id.SelectionToken
	Motivation  models.Motivation
	ExpiresAt   time.Time
}

// Deferred reports whether the selection awaits completion.
func (o *SelectionOutcome) Deferred() bool { return o.Annotation == nil }

// MutationResult reports a settled mutation together with the full refetched
// annotation set for the resource, so no caller merges incrementally.
type MutationResult struct {
	Annotation  *models.Annotation
	Annotations []ListedAnnotation
}

// Select dispatches a text selection by motivation. Highlights and
// assessments create immediately; comments and references register a pending
// selection that a second step completes. Either way the span is pinned to
// byte offsets of the document first and checked against selections already
// pending on the resource.
func (s *Service) Select(ctx context.Context, docID id.DocumentID, req models.SelectionRequest) (*SelectionOutcome, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	doc, err := s.documents.Get(ctx, docID)
	if err != nil {
		return nil, err
	}

	resolved, err := selection.Resolve(doc.Content, req)
	if err != nil {
		return nil, err
	}
	target := models.Target{
		Source: doc.Resource,
		Exact:  resolved.Exact,
		Start:  resolved.Start,
		End:    resolved.End,
		Prefix: resolved.Prefix,
		Suffix: resolved.Suffix,
	}

	motivation := req.ParsedMotivation()
	if motivation.Deferred() {
		return s.registerPending(ctx, doc.Resource, motivation, target)
	}

	blocked, expired := s.pending.blocked(doc.Resource, target)
	s.auditExpired(ctx, expired)
	if blocked {
		return nil, dErrors.New(dErrors.CodeConflict, "an overlapping selection is pending completion")
	}

	body := models.EmptyBody()
	if motivation == models.MotivationAssessing && req.Text != "" {
		body = models.TextualBody(req.Text)
	}
	created, err := s.create(ctx, doc.Resource, motivation, target, body, requestcontext.Actor(ctx))
	if err != nil {
		return nil, err
	}
	views, err := s.listViews(ctx, doc.Resource)
	if err != nil {
		return nil, err
	}
	return &SelectionOutcome{Annotation: created, Annotations: views, Motivation: motivation}, nil
}

func (s *Service) registerPending(ctx context.Context, resource string, motivation models.Motivation, target models.Target) (*SelectionOutcome, error) {
	p, expired, err := s.pending.register(resource, motivation, target, requestcontext.Actor(ctx))
	s.auditExpired(ctx, expired)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, string(audit.EventSelectionRegistered), resource,
		"selection_token", p.Token.String(),
		"motivation", motivation.String(),
	)
	return &SelectionOutcome{Token: p.Token, Motivation: motivation, ExpiresAt: p.ExpiresAt}, nil
}

// CompleteSelection finishes a deferred selection: comment text becomes a
// comment annotation, an entity-type choice becomes a reference. The pending
// span is released only after the create settles, so a failed completion can
// be retried against the same token.
func (s *Service) CompleteSelection(ctx context.Context, token id.SelectionToken, req models.CompleteSelectionRequest) (*MutationResult, error) {
	req.Normalize()

	p, expired, ok := s.pending.get(token)
	s.auditExpired(ctx, expired)
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "selection not found or expired")
	}
	if err := req.ValidateFor(p.Motivation); err != nil {
		return nil, err
	}

	body := models.EmptyBody()
	switch p.Motivation {
	case models.MotivationCommenting:
		body = models.TextualBody(req.Text)
	case models.MotivationLinking:
		if req.Source != "" || len(req.EntityTypes) > 0 {
			body = models.ResourceBody(req.Source, req.EntityTypes, "")
		}
	}

	created, err := s.create(ctx, p.Resource, p.Motivation, p.Target, body, p.Creator)
	if err != nil {
		return nil, err
	}
	s.pending.remove(token)
	s.logAudit(ctx, string(audit.EventSelectionCompleted), p.Resource,
		"selection_token", token.String(),
		"annotation_id", created.ID.String(),
		"motivation", created.Motivation.String(),
	)
	views, err := s.listViews(ctx, p.Resource)
	if err != nil {
		return nil, err
	}
	return &MutationResult{Annotation: created, Annotations: views}, nil
}

// DiscardSelection cancels a pending selection and releases its span.
func (s *Service) DiscardSelection(ctx context.Context, token id.SelectionToken) error {
	p, expired, ok := s.pending.get(token)
	s.auditExpired(ctx, expired)
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "selection not found or expired")
	}
	s.pending.remove(token)
	s.logAudit(ctx, string(audit.EventSelectionDiscarded), p.Resource,
		"selection_token", token.String(),
		"motivation", p.Motivation.String(),
	)
	return nil
}

// create runs one confirmed store create with its side effects: the id
// enters the "new" set only after the write settles, audit and metrics
// record it, the feed announces it.
func (s *Service) create(ctx context.Context, resource string, motivation models.Motivation, target models.Target, body models.Body, creator string) (*models.Annotation, error) {
	created, err := s.store.Create(ctx, resource, motivation, target, body, creator)
	if err != nil {
		if dErrors.CodeOf(err) != dErrors.CodeInternal {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create annotation")
	}
	s.marks.Mark(created.ID)
	s.logAudit(ctx, string(audit.EventAnnotationCreated), resource,
		"annotation_id", created.ID.String(),
		"motivation", created.Motivation.String(),
	)
	s.metrics.IncrementCreated(created.Motivation.String())
	s.notify(ctx, feed.EventCreated, resource, created)
	return created, nil
}

// Delete removes an annotation permanently.
func (s *Service) Delete(ctx context.Context, annID id.AnnotationID) (*MutationResult, error) {
	a, err := s.Get(ctx, annID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, annID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "annotation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete annotation")
	}
	s.marks.Clear(annID)
	s.logAudit(ctx, string(audit.EventAnnotationDeleted), a.Target.Source,
		"annotation_id", annID.String(),
		"motivation", a.Motivation.String(),
	)
	s.metrics.IncrementDeleted()
	s.notify(ctx, feed.EventDeleted, a.Target.Source, a)
	views, err := s.listViews(ctx, a.Target.Source)
	if err != nil {
		return nil, err
	}
	return &MutationResult{Annotations: views}, nil
}

// Convert flips an annotation between highlight and reference. The change is
// delete-then-recreate inside one transaction: the converted annotation is a
// new identity over the same target bytes, and any resolution is discarded
// on the way back to a highlight. Assessments and comments reject.
func (s *Service) Convert(ctx context.Context, annID id.AnnotationID) (*MutationResult, error) {
	a, err := s.Get(ctx, annID)
	if err != nil {
		return nil, err
	}
	targetMotivation, err := a.ConversionTarget()
	if err != nil {
		return nil, err
	}
	fromState := a.State()

	var converted *models.Annotation
	err = s.tx.RunInTx(withTxResource(ctx, a.Target.Source), func(st Store) error {
		ts := traceStore(st)
		if err := ts.Delete(ctx, annID); err != nil {
			return err
		}
		created, err := ts.Create(ctx, a.Target.Source, targetMotivation, a.Target, models.EmptyBody(), a.Creator)
		if err != nil {
			return err
		}
		converted = created
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "annotation not found")
		}
		if dErrors.CodeOf(err) != dErrors.CodeInternal {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to convert annotation")
	}

	s.marks.Clear(annID)
	s.marks.Mark(converted.ID)
	transition := transitionLabel(fromState, converted.State())
	s.logAudit(ctx, string(audit.EventAnnotationConverted), a.Target.Source,
		"annotation_id", converted.ID.String(),
		"previous_id", annID.String(),
		"motivation", converted.Motivation.String(),
		"reason", transition,
	)
	s.metrics.IncrementConverted(transition)
	s.notify(ctx, feed.EventConverted, a.Target.Source, converted)
	views, err := s.listViews(ctx, a.Target.Source)
	if err != nil {
		return nil, err
	}
	return &MutationResult{Annotation: converted, Annotations: views}, nil
}

// Resolve links a stub reference to its target resource. Identity and
// selector bytes are preserved; only the body changes.
func (s *Service) Resolve(ctx context.Context, annID id.AnnotationID, req models.ResolveRequest) (*MutationResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	a, err := s.Get(ctx, annID)
	if err != nil {
		return nil, err
	}
	if err := a.CanResolve(); err != nil {
		return nil, err
	}
	a.ApplyResolution(req.Source, req.EntityTypes, req.Purpose)

	updated, err := s.updateBody(ctx, annID, a.Body)
	if err != nil {
		return nil, err
	}
	transition := transitionLabel(models.StateReferenceStub, models.StateReferenceResolved)
	s.logAudit(ctx, string(audit.EventAnnotationResolved), updated.Target.Source,
		"annotation_id", annID.String(),
		"motivation", updated.Motivation.String(),
		"source", req.Source,
		"reason", transition,
	)
	s.metrics.IncrementConverted(transition)
	s.notify(ctx, feed.EventResolved, updated.Target.Source, updated)
	views, err := s.listViews(ctx, updated.Target.Source)
	if err != nil {
		return nil, err
	}
	return &MutationResult{Annotation: updated, Annotations: views}, nil
}

// Unlink discards a reference's resolution, returning it to a stub with the
// same identity.
func (s *Service) Unlink(ctx context.Context, annID id.AnnotationID) (*MutationResult, error) {
	a, err := s.Get(ctx, annID)
	if err != nil {
		return nil, err
	}
	if err := a.CanUnlink(); err != nil {
		return nil, err
	}
	a.ApplyUnlink()

	updated, err := s.updateBody(ctx, annID, a.Body)
	if err != nil {
		return nil, err
	}
	transition := transitionLabel(models.StateReferenceResolved, models.StateReferenceStub)
	s.logAudit(ctx, string(audit.EventAnnotationUnlinked), updated.Target.Source,
		"annotation_id", annID.String(),
		"motivation", updated.Motivation.String(),
		"reason", transition,
	)
	s.metrics.IncrementConverted(transition)
	s.notify(ctx, feed.EventUnlinked, updated.Target.Source, updated)
	views, err := s.listViews(ctx, updated.Target.Source)
	if err != nil {
		return nil, err
	}
	return &MutationResult{Annotation: updated, Annotations: views}, nil
}

func (s *Service) updateBody(ctx context.Context, annID id.AnnotationID, body models.Body) (*models.Annotation, error) {
	updated, err := s.store.UpdateBody(ctx, annID, body)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "annotation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update annotation body")
	}
	return updated, nil
}

func transitionLabel(from, to models.State) string {
	return string(from) + "_to_" + string(to)
}

// ClickResult is the dispatch outcome for a click on an existing annotation.
type ClickResult struct {
	Action     models.ClickAction
	Annotation *models.Annotation
	// Panel is set on a detail click when the annotation's type routes to a
	// side panel. Panels re-query the store; the feed event is their cue.
	Panel bool
	// Source is the navigation target of a follow click.
	Source string
}

// Click dispatches a click on an annotation by action. Detail clicks route
// to a side panel only for side-panel-bearing types; follow clicks return
// the target source only for resolved references. Any successful click also
// clears the annotation's "new" mark: the user has seen it.
func (s *Service) Click(ctx context.Context, annID id.AnnotationID, action models.ClickAction) (*ClickResult, error) {
	a, err := s.Get(ctx, annID)
	if err != nil {
		return nil, err
	}

	result := &ClickResult{Action: action, Annotation: a}
	switch action {
	case models.ClickDetail:
		if a.Motivation.SidePanel() {
			result.Panel = true
			s.notify(ctx, feed.EventDetail, a.Target.Source, a)
		}
	case models.ClickFollow:
		if !a.Resolved() {
			return nil, dErrors.New(dErrors.CodeConflict, "only resolved references can be followed")
		}
		result.Source = a.BodySource()
		s.logAudit(ctx, string(audit.EventReferenceFollowed), a.Target.Source,
			"annotation_id", annID.String(),
			"motivation", a.Motivation.String(),
			"source", result.Source,
		)
	case models.ClickJSONLD:
		// The handler serializes the raw model; the dispatch only loads.
	case models.ClickDeleting:
		// Deletion happens on the confirmed DELETE; this returns the
		// annotation for the confirmation prompt.
	default:
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown click action %q", action)
	}

	s.marks.Clear(annID)
	return result, nil
}
