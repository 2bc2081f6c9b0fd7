package annotation

import (
	"context"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	DELETE(path string) error
	GetResponseField(field string) (interface{}, error)
	GetDocumentID() string
	SetAnnotationID(id string)
	GetAnnotationID() string
	SetSelectionToken(token string)
	GetSelectionToken() string
}

// RegisterSteps registers annotation lifecycle step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &annotationSteps{tc: tc}

	// Selection steps
	ctx.Step(`^I select "([^"]*)" at offsets (\d+) to (\d+) for "([^"]*)"$`, steps.selectSpan)
	ctx.Step(`^I select "([^"]*)" for "([^"]*)"$`, steps.selectSpanByQuote)
	ctx.Step(`^I select "([^"]*)" for "([^"]*)" with text "([^"]*)"$`, steps.selectSpanWithText)
	ctx.Step(`^I save the selection token$`, steps.saveSelectionToken)
	ctx.Step(`^I complete the selection with text "([^"]*)"$`, steps.completeWithText)
	ctx.Step(`^I complete the selection with entity types "([^"]*)"$`, steps.completeWithEntityTypes)
	ctx.Step(`^I discard the selection$`, steps.discardSelection)

	// Annotation steps
	ctx.Step(`^I save the annotation id$`, steps.saveAnnotationID)
	ctx.Step(`^I list the document annotations$`, steps.listAnnotations)
	ctx.Step(`^I fetch the annotation$`, steps.fetchAnnotation)
	ctx.Step(`^I fetch the annotation as JSON-LD$`, steps.fetchAnnotationJSONLD)
	ctx.Step(`^I resolve the annotation to "([^"]*)"$`, steps.resolveAnnotation)
	ctx.Step(`^I follow the annotation$`, steps.followAnnotation)
	ctx.Step(`^I convert the annotation$`, steps.convertAnnotation)
	ctx.Step(`^I unlink the annotation$`, steps.unlinkAnnotation)
	ctx.Step(`^I delete the annotation$`, steps.deleteAnnotation)
}

type annotationSteps struct {
	tc TestContext
}

func (s *annotationSteps) selectSpan(ctx context.Context, exact string, start, end int, motivation string) error {
	body := map[string]interface{}{
		"motivation": motivation,
		"exact":      exact,
		"start":      start,
		"end":        end,
	}
	return s.tc.POST("/documents/"+s.tc.GetDocumentID()+"/selections", body)
}

func (s *annotationSteps) selectSpanByQuote(ctx context.Context, exact, motivation string) error {
	body := map[string]interface{}{
		"motivation": motivation,
		"exact":      exact,
	}
	return s.tc.POST("/documents/"+s.tc.GetDocumentID()+"/selections", body)
}

func (s *annotationSteps) selectSpanWithText(ctx context.Context, exact, motivation, text string) error {
	body := map[string]interface{}{
		"motivation": motivation,
		"exact":      exact,
		"text":       text,
	}
	return s.tc.POST("/documents/"+s.tc.GetDocumentID()+"/selections", body)
}

func (s *annotationSteps) saveSelectionToken(ctx context.Context) error {
	token, err := s.tc.GetResponseField("token")
	if err != nil {
		return err
	}
	s.tc.SetSelectionToken(token.(string))
	return nil
}

func (s *annotationSteps) completeWithText(ctx context.Context, text string) error {
	body := map[string]interface{}{
		"text": text,
	}
	return s.tc.POST("/selections/"+s.tc.GetSelectionToken()+"/complete", body)
}

func (s *annotationSteps) completeWithEntityTypes(ctx context.Context, entityTypes string) error {
	body := map[string]interface{}{
		"entityTypes": strings.Split(entityTypes, ","),
	}
	return s.tc.POST("/selections/"+s.tc.GetSelectionToken()+"/complete", body)
}

func (s *annotationSteps) discardSelection(ctx context.Context) error {
	return s.tc.DELETE("/selections/" + s.tc.GetSelectionToken())
}

func (s *annotationSteps) saveAnnotationID(ctx context.Context) error {
	id, err := s.tc.GetResponseField("annotation.id")
	if err != nil {
		return err
	}
	s.tc.SetAnnotationID(id.(string))
	return nil
}

func (s *annotationSteps) listAnnotations(ctx context.Context) error {
	return s.tc.GET("/documents/"+s.tc.GetDocumentID()+"/annotations", nil)
}

func (s *annotationSteps) fetchAnnotation(ctx context.Context) error {
	return s.tc.GET("/annotations/"+s.tc.GetAnnotationID(), nil)
}

func (s *annotationSteps) fetchAnnotationJSONLD(ctx context.Context) error {
	return s.tc.GET("/annotations/"+s.tc.GetAnnotationID()+"/jsonld", nil)
}

func (s *annotationSteps) resolveAnnotation(ctx context.Context, source string) error {
	body := map[string]interface{}{
		"source": source,
	}
	return s.tc.POST("/annotations/"+s.tc.GetAnnotationID()+"/resolve", body)
}

func (s *annotationSteps) followAnnotation(ctx context.Context) error {
	return s.tc.GET("/annotations/"+s.tc.GetAnnotationID()+"/follow", nil)
}

func (s *annotationSteps) convertAnnotation(ctx context.Context) error {
	return s.tc.POST("/annotations/"+s.tc.GetAnnotationID()+"/convert", nil)
}

func (s *annotationSteps) unlinkAnnotation(ctx context.Context) error {
	return s.tc.POST("/annotations/"+s.tc.GetAnnotationID()+"/unlink", nil)
}

func (s *annotationSteps) deleteAnnotation(ctx context.Context) error {
	return s.tc.DELETE("/annotations/" + s.tc.GetAnnotationID())
}
