package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marginalia/internal/document/service"
	"marginalia/internal/document/store"
	id "marginalia/pkg/domain"
)

func newDocumentServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(store.NewMemory(), service.WithLogger(logger))

	r := chi.NewRouter()
	New(svc, logger, nil).Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postDocument(t *testing.T, srv *httptest.Server, payload any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/documents", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeDocument(t *testing.T, resp *http.Response) documentView {
	t.Helper()
	defer resp.Body.Close()
	var view documentView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	return view
}

func TestRegisterAndFetch(t *testing.T) {
	srv := newDocumentServer(t)

	resp := postDocument(t, srv, service.RegisterRequest{
		Resource: "urn:marginalia:doc:alpha",
		Title:    "Alpha",
		Content:  "the quick brown fox",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeDocument(t, resp)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Digest)
	assert.Equal(t, "Alpha", created.Title)
	assert.Equal(t, "the quick brown fox", created.Content)
	assert.Equal(t, "/documents/"+created.ID, resp.Header.Get("Location"))

	getResp, err := http.Get(srv.URL + "/documents/" + created.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	assert.Equal(t, `"`+created.Digest+`"`, getResp.Header.Get("ETag"))

	fetched := decodeDocument(t, getResp)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, created.Content, fetched.Content)
}

func TestFetch_ETagRevalidation(t *testing.T) {
	srv := newDocumentServer(t)

	resp := postDocument(t, srv, service.RegisterRequest{
		Resource: "urn:marginalia:doc:etag",
		Content:  "immutable bytes",
	})
	created := decodeDocument(t, resp)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/documents/"+created.ID, nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", `"`+created.Digest+`"`)

	revalidated, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer revalidated.Body.Close()
	assert.Equal(t, http.StatusNotModified, revalidated.StatusCode)
}

func TestRegister_IdempotentOnIdenticalContent(t *testing.T) {
	srv := newDocumentServer(t)
	payload := service.RegisterRequest{
		Resource: "urn:marginalia:doc:dup",
		Content:  "same bytes",
	}

	first := decodeDocument(t, postDocument(t, srv, payload))
	second := decodeDocument(t, postDocument(t, srv, payload))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Digest, second.Digest)
}

func TestRegister_ConflictOnChangedContent(t *testing.T) {
	srv := newDocumentServer(t)

	resp := postDocument(t, srv, service.RegisterRequest{
		Resource: "urn:marginalia:doc:fixed",
		Content:  "original",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postDocument(t, srv, service.RegisterRequest{
		Resource: "urn:marginalia:doc:fixed",
		Content:  "rewritten",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRegister_Validation(t *testing.T) {
	srv := newDocumentServer(t)

	resp := postDocument(t, srv, service.RegisterRequest{Content: "no resource"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	malformed, err := http.Post(srv.URL+"/documents", "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	defer malformed.Body.Close()
	assert.Equal(t, http.StatusBadRequest, malformed.StatusCode)
}

func TestFetch_Errors(t *testing.T) {
	srv := newDocumentServer(t)

	resp, err := http.Get(srv.URL + "/documents/not-a-uuid")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/documents/" + id.NewDocumentID().String())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
