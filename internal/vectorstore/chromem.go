// Package vectorstore provides vector storage implementations.
package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("ragd.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "./data/chroma_db"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection name.
	// Default: "rag_documents"
	Collection string

	// VectorSize is the expected embedding dimension.
	// Must match the embedder's output dimension.
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "./data/chroma_db"
	}
	if c.Collection == "" {
		c.Collection = "rag_documents"
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ChromemStore implements the Store interface using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies. It keeps vectors in memory, persists to gob files under the
// configured path, and uses cosine similarity for search. Cosine is fixed at
// collection creation and not changeable afterward.
//
// Reads run concurrently; writes are serialized by a store-level mutex so
// each AddTexts batch becomes visible atomically.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	config     ChromemConfig
	logger     *zap.Logger

	// writeMu serializes add/delete so concurrent readers never observe a
	// half-written batch.
	writeMu sync.Mutex
}

// NewChromemStore creates a new ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandChromemPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(expandedPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", config.Collection, err)
	}

	store := &ChromemStore{
		db:         db,
		collection: collection,
		embedder:   embedder,
		config:     config,
		logger:     logger,
	}

	logger.Info("chromem store initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
		zap.String("collection", config.Collection),
	)

	return store, nil
}

// expandChromemPath expands ~ to the home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// checkDimensions validates that every embedding matches the configured
// vector size. Mixed dimensions would make distances meaningless.
func (s *ChromemStore) checkDimensions(embeddings [][]float32) error {
	for i, emb := range embeddings {
		if len(emb) != s.config.VectorSize {
			return fmt.Errorf("%w: embedding %d has dimension %d, collection expects %d",
				ErrDimensionMismatch, i, len(emb), s.config.VectorSize)
		}
	}
	return nil
}

// AddTexts embeds and stores the given texts with shared metadata.
func (s *ChromemStore) AddTexts(ctx context.Context, texts []string, metadata map[string]string) ([]string, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AddTexts")
	defer span.End()

	span.SetAttributes(
		attribute.Int("text_count", len(texts)),
		attribute.String("collection", s.config.Collection),
	)

	if len(texts) == 0 {
		return nil, ErrEmptyDocuments
	}

	// Embed outside the write lock; this is the network-bound part.
	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingFailed, len(embeddings), len(texts))
	}
	if err := s.checkDimensions(embeddings); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	docs := make([]chromem.Document, len(texts))
	ids := make([]string, len(texts))
	for i, text := range texts {
		ids[i] = uuid.NewString()
		docs[i] = chromem.Document{
			ID:        ids[i],
			Content:   text,
			Metadata:  cloneMetadata(metadata),
			Embedding: embeddings[i],
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Concurrency 1: embeddings are precomputed, nothing to parallelize.
	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	span.SetAttributes(attribute.Int("records_added", len(ids)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("added records to chromem",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(ids)),
	)

	return ids, nil
}

// Search performs similarity search over the whole collection.
func (s *ChromemStore) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	return s.SearchWithFilter(ctx, query, nil, k)
}

// SearchWithFilter performs similarity search restricted to records whose
// metadata exactly matches every key/value pair in filter.
func (s *ChromemStore) SearchWithFilter(ctx context.Context, query string, filter map[string]string, k int) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.SearchWithFilter")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", k),
		attribute.Int("filter_keys", len(filter)),
	)

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	queryEmbedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(queryEmbedding) != s.config.VectorSize {
		err := fmt.Errorf("%w: query has dimension %d, collection expects %d",
			ErrDimensionMismatch, len(queryEmbedding), s.config.VectorSize)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// chromem requires nResults <= matching document count.
	docCount := s.collection.Count()
	if docCount == 0 {
		return []SearchResult{}, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := s.collection.QueryEmbedding(ctx, queryEmbedding, k, filter, nil)
	if err != nil {
		// A filter matching fewer than k documents is not an error at
		// this layer.
		if strings.Contains(err.Error(), "nResults") {
			return s.searchShrinking(ctx, queryEmbedding, filter, k)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	searchResults := convertChromemResults(results)

	span.SetAttributes(attribute.Int("results_count", len(searchResults)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("searched chromem collection",
		zap.String("collection", s.config.Collection),
		zap.Int("k", k),
		zap.Int("results", len(searchResults)),
	)

	return searchResults, nil
}

// searchShrinking retries a filtered query with decreasing k until it fits
// the number of filter-matching documents. chromem rejects nResults larger
// than the matching set and exposes no count-by-filter.
func (s *ChromemStore) searchShrinking(ctx context.Context, queryEmbedding []float32, filter map[string]string, k int) ([]SearchResult, error) {
	for k > 1 {
		k--
		results, err := s.collection.QueryEmbedding(ctx, queryEmbedding, k, filter, nil)
		if err == nil {
			return convertChromemResults(results), nil
		}
		if !strings.Contains(err.Error(), "nResults") {
			return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
		}
	}
	// Zero matching documents.
	return []SearchResult{}, nil
}

func convertChromemResults(results []chromem.Result) []SearchResult {
	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: cloneMetadata(r.Metadata),
			// chromem reports cosine similarity (higher = closer);
			// expose cosine distance so ascending order means most
			// similar first across all backends.
			Distance: 1 - r.Similarity,
		}
	}
	return searchResults
}

// DeleteByMetadata removes every record whose metadata matches filter.
// Idempotent: a filter matching zero records returns (0, nil).
func (s *ChromemStore) DeleteByMetadata(ctx context.Context, filter map[string]string) (int, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteByMetadata")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("filter_keys", len(filter)),
	)

	if len(filter) == 0 {
		return 0, fmt.Errorf("delete filter cannot be empty")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	before := s.collection.Count()

	if err := s.collection.Delete(ctx, filter, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("deleting from collection %s: %w", s.config.Collection, err)
	}

	deleted := before - s.collection.Count()
	span.SetAttributes(attribute.Int("records_deleted", deleted))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("deleted records from chromem",
		zap.String("collection", s.config.Collection),
		zap.Int("count", deleted),
	)

	return deleted, nil
}

// Stats returns the record count of the collection.
func (s *ChromemStore) Stats(ctx context.Context) (*Stats, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.Stats")
	defer span.End()

	stats := &Stats{
		RecordCount: s.collection.Count(),
		Backend:     "chroma",
		Collection:  s.config.Collection,
	}

	span.SetAttributes(attribute.Int("record_count", stats.RecordCount))
	span.SetStatus(codes.Ok, "success")
	return stats, nil
}

// Close closes the ChromemStore.
// chromem-go persists on every write, no explicit close needed.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

// cloneMetadata copies a metadata map so stored records never alias
// caller-owned maps.
func cloneMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	clone := make(map[string]string, len(metadata))
	for k, v := range metadata {
		clone[k] = v
	}
	return clone
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
