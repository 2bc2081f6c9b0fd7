package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marginalia/internal/annotation/models"
	"marginalia/internal/annotation/store"
	docservice "marginalia/internal/document/service"
	docstore "marginalia/internal/document/store"
	"marginalia/internal/render"
	id "marginalia/pkg/domain"
)

func newRenderServer(t *testing.T) (*httptest.Server, id.DocumentID) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	docs := docservice.New(docstore.NewMemory())
	doc, err := docs.Register(context.Background(), docservice.RegisterRequest{
		Resource: "urn:marginalia:doc:render-http",
		Content:  "the quick brown fox",
	})
	require.NoError(t, err)

	st := store.NewMemory()
	_, err = st.Create(context.Background(), doc.Resource,
		models.MotivationHighlighting,
		models.Target{Exact: "quick", Start: 4, End: 9},
		models.EmptyBody(), "tester")
	require.NoError(t, err)

	svc := render.New(docs, st, render.WithLogger(logger))

	r := chi.NewRouter()
	New(svc, logger, nil).Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, doc.ID
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestHandleRender_SourceView(t *testing.T) {
	srv, docID := newRenderServer(t)

	resp, err := http.Get(srv.URL + "/documents/" + docID.String() + "/render")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var result render.Result
	decodeBody(t, resp, &result)
	assert.Equal(t, render.ViewSource, result.View)
	assert.Equal(t, "urn:marginalia:doc:render-http", result.Resource)
	assert.Contains(t, result.HTML, ">quick</mark>")
	assert.False(t, result.Cached)
}

func TestHandleRender_MarkdownView(t *testing.T) {
	srv, docID := newRenderServer(t)

	resp, err := http.Get(srv.URL + "/documents/" + docID.String() + "/render?view=markdown")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result render.Result
	decodeBody(t, resp, &result)
	assert.Equal(t, render.ViewMarkdown, result.View)
	assert.Contains(t, result.HTML, "<p>")
	assert.Contains(t, result.HTML, ">quick</mark>")
}

func TestHandleRender_Errors(t *testing.T) {
	srv, docID := newRenderServer(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "unknown view",
			path:       "/documents/" + docID.String() + "/render?view=pdf",
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "validation_error",
		},
		{
			name:       "malformed document id",
			path:       "/documents/not-a-uuid/render",
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "validation_error",
		},
		{
			name:       "unknown document",
			path:       "/documents/" + id.NewDocumentID().String() + "/render",
			wantStatus: http.StatusNotFound,
			wantError:  "not_found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body map[string]string
			decodeBody(t, resp, &body)
			assert.Equal(t, tt.wantError, body["error"])
		})
	}
}
