package document

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	QualifyResource(resource string) string
	SetDocumentID(id string)
	GetDocumentID() string
}

// RegisterSteps registers document registration and fetch steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &documentSteps{tc: tc}

	ctx.Step(`^a registered document "([^"]*)" with content "([^"]*)"$`, steps.givenRegisteredDocument)
	ctx.Step(`^I register the resource "([^"]*)" with content "([^"]*)"$`, steps.registerResource)
	ctx.Step(`^I register the same resource with content "([^"]*)"$`, steps.reregisterResource)
	ctx.Step(`^I save the document id$`, steps.saveDocumentID)
	ctx.Step(`^I fetch the document$`, steps.fetchDocument)
	ctx.Step(`^the response field "id" should equal the saved document id$`, steps.responseIDMatchesSavedDocument)
}

type documentSteps struct {
	tc TestContext
	// resource remembers the qualified name so re-registration steps hit
	// the same document.
	resource string
}

func (s *documentSteps) givenRegisteredDocument(ctx context.Context, resource, content string) error {
	if err := s.registerResource(ctx, resource, content); err != nil {
		return err
	}
	return s.saveDocumentID(ctx)
}

func (s *documentSteps) registerResource(ctx context.Context, resource, content string) error {
	s.resource = s.tc.QualifyResource(resource)
	body := map[string]interface{}{
		"resource": s.resource,
		"content":  content,
	}
	return s.tc.POST("/documents", body)
}

func (s *documentSteps) reregisterResource(ctx context.Context, content string) error {
	body := map[string]interface{}{
		"resource": s.resource,
		"content":  content,
	}
	return s.tc.POST("/documents", body)
}

func (s *documentSteps) saveDocumentID(ctx context.Context) error {
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.SetDocumentID(id.(string))
	return nil
}

func (s *documentSteps) fetchDocument(ctx context.Context) error {
	return s.tc.GET("/documents/"+s.tc.GetDocumentID(), nil)
}

func (s *documentSteps) responseIDMatchesSavedDocument(ctx context.Context) error {
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	if id != s.tc.GetDocumentID() {
		return fmt.Errorf("document id %v does not match saved id %s", id, s.tc.GetDocumentID())
	}
	return nil
}
