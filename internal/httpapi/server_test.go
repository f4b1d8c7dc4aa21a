package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pmvlabs/ragd/internal/generation"
	"github.com/pmvlabs/ragd/internal/rag"
	"github.com/pmvlabs/ragd/internal/vectorstore"
)

// memStore is a minimal in-memory vector store for handler tests. Search
// returns every stored record; relevance ordering is not under test here.
type memStore struct {
	docs []vectorstore.Document
}

func (m *memStore) AddTexts(_ context.Context, texts []string, metadata map[string]string) ([]string, error) {
	ids := make([]string, len(texts))
	for i, text := range texts {
		id := "rec-" + strings.Repeat("a", i+1)
		ids[i] = id
		m.docs = append(m.docs, vectorstore.Document{ID: id, Content: text, Metadata: metadata})
	}
	return ids, nil
}

func (m *memStore) Search(_ context.Context, _ string, k int) ([]vectorstore.SearchResult, error) {
	var out []vectorstore.SearchResult
	for _, d := range m.docs {
		if len(out) == k {
			break
		}
		out = append(out, vectorstore.SearchResult{ID: d.ID, Content: d.Content, Metadata: d.Metadata})
	}
	return out, nil
}

func (m *memStore) SearchWithFilter(_ context.Context, _ string, filter map[string]string, k int) ([]vectorstore.SearchResult, error) {
	var out []vectorstore.SearchResult
	for _, d := range m.docs {
		if len(out) == k {
			break
		}
		matched := true
		for key, want := range filter {
			if d.Metadata[key] != want {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, vectorstore.SearchResult{ID: d.ID, Content: d.Content, Metadata: d.Metadata})
		}
	}
	return out, nil
}

func (m *memStore) DeleteByMetadata(_ context.Context, filter map[string]string) (int, error) {
	var kept []vectorstore.Document
	deleted := 0
	for _, d := range m.docs {
		matched := true
		for key, want := range filter {
			if d.Metadata[key] != want {
				matched = false
				break
			}
		}
		if matched {
			deleted++
		} else {
			kept = append(kept, d)
		}
	}
	m.docs = kept
	return deleted, nil
}

func (m *memStore) Stats(_ context.Context) (*vectorstore.Stats, error) {
	return &vectorstore.Stats{RecordCount: len(m.docs), Backend: "memory", Collection: "test"}, nil
}

func (m *memStore) Close() error { return nil }

// stubGateway returns a canned answer and records the last request.
type stubGateway struct {
	answer string
	err    error
	last   generation.Request
}

func (g *stubGateway) Generate(_ context.Context, req generation.Request) (string, error) {
	g.last = req
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

type testServer struct {
	server  *Server
	store   *memStore
	gateway *stubGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := &memStore{}
	gateway := &stubGateway{answer: "the answer"}
	pipeline := rag.New(store, rag.Config{ChunkSize: 100, ChunkOverlap: 10, TopK: 5, MaxContextLength: 4000}, zap.NewNop())

	srv, err := NewServer(pipeline, gateway, generation.NewSessionStore(20), zap.NewNop(), &Config{
		Host:            "localhost",
		Port:            0,
		UploadDir:       t.TempDir(),
		MaxFileSize:     1 << 20,
		Backend:         "memory",
		EmbeddingModel:  "test-embedder",
		GenerationModel: "test-model",
	})
	require.NoError(t, err)

	return &testServer{server: srv, store: store, gateway: gateway}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.server.echo.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set(echoHeaderContentType, "application/json")
	return req
}

const echoHeaderContentType = "Content-Type"

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "memory", resp.VectorBackend)
	assert.Equal(t, "test-model", resp.GenerationModel)
}

func TestQueryText(t *testing.T) {
	ts := newTestServer(t)
	ts.store.docs = []vectorstore.Document{
		{ID: "r1", Content: "stored knowledge", Metadata: map[string]string{}},
	}

	rec := ts.do(jsonRequest(http.MethodPost, "/api/v1/text", QueryRequest{Query: "what is stored?"}))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "the answer", resp.Response)
	assert.True(t, resp.ContextFound)

	assert.Equal(t, "what is stored?", ts.gateway.last.Query)
	assert.Equal(t, "stored knowledge", ts.gateway.last.Context)
	assert.False(t, ts.gateway.last.FileScoped)
}

func TestQueryText_EmptyStore(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(jsonRequest(http.MethodPost, "/api/v1/text", QueryRequest{Query: "anything"}))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.ContextFound)
	assert.Empty(t, ts.gateway.last.Context)
}

func TestQueryText_MissingQuery(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(jsonRequest(http.MethodPost, "/api/v1/text", QueryRequest{Query: "  "}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryText_SessionHistory(t *testing.T) {
	ts := newTestServer(t)

	first := jsonRequest(http.MethodPost, "/api/v1/text", QueryRequest{Query: "first question"})
	first.Header.Set(sessionHeader, "session-a")
	require.Equal(t, http.StatusOK, ts.do(first).Code)

	second := jsonRequest(http.MethodPost, "/api/v1/text", QueryRequest{Query: "second question"})
	second.Header.Set(sessionHeader, "session-a")
	require.Equal(t, http.StatusOK, ts.do(second).Code)

	// The second call replays the first exchange.
	require.Len(t, ts.gateway.last.History, 2)
	assert.Equal(t, "first question", ts.gateway.last.History[0].Content)
	assert.Equal(t, "the answer", ts.gateway.last.History[1].Content)

	// A different session starts clean.
	other := jsonRequest(http.MethodPost, "/api/v1/text", QueryRequest{Query: "third question"})
	other.Header.Set(sessionHeader, "session-b")
	require.Equal(t, http.StatusOK, ts.do(other).Code)
	assert.Empty(t, ts.gateway.last.History)
}

func TestQueryFile(t *testing.T) {
	ts := newTestServer(t)
	ts.store.docs = []vectorstore.Document{
		{ID: "r1", Content: "in the file", Metadata: map[string]string{"file_id": "f-1"}},
		{ID: "r2", Content: "elsewhere", Metadata: map[string]string{"file_id": "f-2"}},
	}

	rec := ts.do(jsonRequest(http.MethodPost, "/api/v1/text/file", FileQueryRequest{Query: "summarize", FileID: "f-1"}))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "in the file", ts.gateway.last.Context)
	assert.True(t, ts.gateway.last.FileScoped)
}

func TestQueryFile_MissingFileID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(jsonRequest(http.MethodPost, "/api/v1/text/file", FileQueryRequest{Query: "summarize"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/file", &buf)
	req.Header.Set(echoHeaderContentType, w.FormDataContentType())
	return req
}

func TestUploadFile(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(multipartRequest(t, "notes.txt", "some text worth indexing"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.FileID)
	assert.Equal(t, "notes.txt", resp.Filename)
	assert.Equal(t, ".txt", resp.FileType)
	assert.Equal(t, 1, resp.Chunks)

	// Records are tagged for later scoped retrieval.
	require.Len(t, ts.store.docs, 1)
	assert.Equal(t, resp.FileID, ts.store.docs[0].Metadata["file_id"])
	assert.Equal(t, "file_upload", ts.store.docs[0].Metadata["source"])
}

func TestUploadFile_UnsupportedType(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(multipartRequest(t, "report.pdf", "%PDF-1.4"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.store.docs)
}

func TestUploadFile_EmptyContent(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(multipartRequest(t, "blank.txt", "   \n"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadFile_TooLarge(t *testing.T) {
	ts := newTestServer(t)
	ts.server.config.MaxFileSize = 10

	rec := ts.do(multipartRequest(t, "big.txt", strings.Repeat("a", 100)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUploadFile_MissingFile(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/file", nil)
	rec := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteFile(t *testing.T) {
	ts := newTestServer(t)
	ts.store.docs = []vectorstore.Document{
		{ID: "r1", Content: "a", Metadata: map[string]string{"file_id": "f-1"}},
		{ID: "r2", Content: "b", Metadata: map[string]string{"file_id": "f-1"}},
		{ID: "r3", Content: "c", Metadata: map[string]string{"file_id": "f-2"}},
	}

	rec := ts.do(httptest.NewRequest(http.MethodDelete, "/api/v1/file/f-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DeleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Deleted)
	require.Len(t, ts.store.docs, 1)
}

func TestDeleteFile_UnknownIDIsIdempotent(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodDelete, "/api/v1/file/no-such-file", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DeleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Deleted)
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)
	ts.store.docs = []vectorstore.Document{{ID: "r1", Content: "a"}}

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats vectorstore.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.RecordCount)
	assert.Equal(t, "memory", stats.Backend)
}

func TestGenerationFailureMapsToBadGateway(t *testing.T) {
	ts := newTestServer(t)
	ts.gateway.err = generation.ErrGenerationFailed

	rec := ts.do(jsonRequest(http.MethodPost, "/api/v1/text", QueryRequest{Query: "anything"}))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
