package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TestContext drives a running annotation service over HTTP and records the
// last response so assertion steps can inspect it. Step packages declare
// their own interfaces against it.
type TestContext struct {
	baseURL string
	client  *http.Client

	// runID namespaces document resources so repeated suite runs against a
	// long-lived server do not see annotations from earlier runs.
	runID int64
	actor string

	lastStatus int
	lastBody   []byte

	documentID     string
	annotationID   string
	selectionToken string
}

func NewTestContext(baseURL string) *TestContext {
	tc := &TestContext{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	tc.Reset()
	return tc
}

// Reset clears per-scenario state and starts a fresh resource namespace.
func (tc *TestContext) Reset() {
	tc.runID = time.Now().UnixNano()
	tc.actor = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.documentID = ""
	tc.annotationID = ""
	tc.selectionToken = ""
}

func (tc *TestContext) do(req *http.Request) error {
	if tc.actor != "" {
		req.Header.Set("X-Annotator", tc.actor)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.lastStatus = resp.StatusCode
	tc.lastBody = body
	return nil
}

func (tc *TestContext) POST(path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, tc.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return tc.do(req)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequest(http.MethodGet, tc.baseURL+path, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.do(req)
}

func (tc *TestContext) DELETE(path string) error {
	req, err := http.NewRequest(http.MethodDelete, tc.baseURL+path, nil)
	if err != nil {
		return err
	}
	return tc.do(req)
}

func (tc *TestContext) GetLastResponseStatus() int  { return tc.lastStatus }
func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }

// GetResponseField digs a dotted path such as "annotation.target.source" out
// of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	var doc interface{}
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("last response is not JSON: %w", err)
	}
	current := doc
	for _, part := range strings.Split(field, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field %q not found in response", field)
		}
		current, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("field %q not found in response", field)
		}
	}
	return current, nil
}

func (tc *TestContext) ResponseContains(field string) bool {
	_, err := tc.GetResponseField(field)
	return err == nil
}

// QualifyResource appends the scenario's run id to a feature-file resource
// name so every scenario annotates a document of its own.
func (tc *TestContext) QualifyResource(resource string) string {
	return fmt.Sprintf("%s-%d", resource, tc.runID)
}

func (tc *TestContext) SetActor(name string) { tc.actor = name }
func (tc *TestContext) GetActor() string     { return tc.actor }

func (tc *TestContext) SetDocumentID(id string) { tc.documentID = id }
func (tc *TestContext) GetDocumentID() string   { return tc.documentID }

func (tc *TestContext) SetAnnotationID(id string) { tc.annotationID = id }
func (tc *TestContext) GetAnnotationID() string   { return tc.annotationID }

func (tc *TestContext) SetSelectionToken(token string) { tc.selectionToken = token }
func (tc *TestContext) GetSelectionToken() string      { return tc.selectionToken }
