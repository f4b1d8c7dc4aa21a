package rag

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pmvlabs/ragd/internal/vectorstore"
)

// stubStore records calls and returns canned results.
type stubStore struct {
	addedTexts    []string
	addedMetadata map[string]string

	searchQuery  string
	searchK      int
	searchFilter map[string]string
	results      []vectorstore.SearchResult

	deleteFilter map[string]string
	deleted      int

	err error
}

func (s *stubStore) AddTexts(_ context.Context, texts []string, metadata map[string]string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.addedTexts = texts
	s.addedMetadata = metadata
	ids := make([]string, len(texts))
	for i := range texts {
		ids[i] = "id-" + strings.Repeat("x", i+1)
	}
	return ids, nil
}

func (s *stubStore) Search(_ context.Context, query string, k int) ([]vectorstore.SearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.searchQuery = query
	s.searchK = k
	return s.results, nil
}

func (s *stubStore) SearchWithFilter(_ context.Context, query string, filter map[string]string, k int) ([]vectorstore.SearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.searchQuery = query
	s.searchK = k
	s.searchFilter = filter
	return s.results, nil
}

func (s *stubStore) DeleteByMetadata(_ context.Context, filter map[string]string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.deleteFilter = filter
	return s.deleted, nil
}

func (s *stubStore) Stats(_ context.Context) (*vectorstore.Stats, error) {
	return &vectorstore.Stats{RecordCount: len(s.addedTexts), Backend: "stub"}, nil
}

func (s *stubStore) Close() error { return nil }

func newTestPipeline(store vectorstore.Store, cfg Config) *Pipeline {
	return New(store, cfg, zap.NewNop())
}

func TestIngestText(t *testing.T) {
	store := &stubStore{}
	p := newTestPipeline(store, Config{ChunkSize: 100, ChunkOverlap: 20})

	res, err := p.IngestText(context.Background(), "a short note about vector search", "note.txt")
	require.NoError(t, err)

	assert.NotEmpty(t, res.FileID)
	assert.Equal(t, "note.txt", res.Filename)
	require.Len(t, res.ChunkIDs, 1)

	require.Len(t, store.addedTexts, 1)
	assert.Equal(t, res.FileID, store.addedMetadata["file_id"])
	assert.Equal(t, "note.txt", store.addedMetadata["filename"])
	assert.Equal(t, "file_upload", store.addedMetadata["source"])
}

func TestIngestText_EmptyInput(t *testing.T) {
	p := newTestPipeline(&stubStore{}, Config{})

	_, err := p.IngestText(context.Background(), "   \n ", "empty.txt")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestIngestText_UniqueFileIDs(t *testing.T) {
	store := &stubStore{}
	p := newTestPipeline(store, Config{})

	first, err := p.IngestText(context.Background(), "same text", "a.txt")
	require.NoError(t, err)
	second, err := p.IngestText(context.Background(), "same text", "a.txt")
	require.NoError(t, err)

	assert.NotEqual(t, first.FileID, second.FileID)
}

func TestRetrieveContext(t *testing.T) {
	store := &stubStore{results: []vectorstore.SearchResult{
		{Content: "first chunk", Distance: 0.1},
		{Content: "second chunk", Distance: 0.2},
	}}
	p := newTestPipeline(store, Config{TopK: 3, MaxContextLength: 4000})

	got, err := p.RetrieveContext(context.Background(), "  what is stored?  ")
	require.NoError(t, err)

	assert.Equal(t, "first chunk\n\nsecond chunk", got)
	assert.Equal(t, "what is stored?", store.searchQuery)
	assert.Equal(t, 3, store.searchK)
}

func TestRetrieveContext_EmptyQuery(t *testing.T) {
	p := newTestPipeline(&stubStore{}, Config{})

	_, err := p.RetrieveContext(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRetrieveContext_CapsLongQuery(t *testing.T) {
	store := &stubStore{}
	p := newTestPipeline(store, Config{MaxContextLength: 100})

	_, err := p.RetrieveContext(context.Background(), strings.Repeat("q", 500))
	require.NoError(t, err)
	assert.Len(t, store.searchQuery, 100)
}

func TestRetrieveContext_CapTrimsToRuneBoundary(t *testing.T) {
	store := &stubStore{}
	p := newTestPipeline(store, Config{MaxContextLength: 101})

	// "é" is two bytes, so an odd byte cap lands mid-rune.
	_, err := p.RetrieveContext(context.Background(), strings.Repeat("é", 300))
	require.NoError(t, err)

	assert.True(t, utf8.ValidString(store.searchQuery))
	assert.Len(t, store.searchQuery, 100)
}

func TestRetrieveContext_NoResults(t *testing.T) {
	p := newTestPipeline(&stubStore{}, Config{})

	got, err := p.RetrieveContext(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveFileContext(t *testing.T) {
	store := &stubStore{results: []vectorstore.SearchResult{
		{Content: "from the file", Distance: 0.05},
	}}
	p := newTestPipeline(store, Config{TopK: 5, MaxContextLength: 4000})

	got, err := p.RetrieveFileContext(context.Background(), "a question", "file-123")
	require.NoError(t, err)

	assert.Equal(t, "from the file", got)
	assert.Equal(t, map[string]string{"file_id": "file-123"}, store.searchFilter)
}

func TestRetrieveFileContext_EmptyFileID(t *testing.T) {
	p := newTestPipeline(&stubStore{}, Config{})

	_, err := p.RetrieveFileContext(context.Background(), "a question", "")
	assert.ErrorIs(t, err, ErrEmptyFileID)
}

func TestDeleteFile(t *testing.T) {
	store := &stubStore{deleted: 4}
	p := newTestPipeline(store, Config{})

	deleted, err := p.DeleteFile(context.Background(), "file-123")
	require.NoError(t, err)

	assert.Equal(t, 4, deleted)
	assert.Equal(t, map[string]string{"file_id": "file-123"}, store.deleteFilter)
}

func TestDeleteFile_EmptyFileID(t *testing.T) {
	p := newTestPipeline(&stubStore{}, Config{})

	_, err := p.DeleteFile(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyFileID)
}
