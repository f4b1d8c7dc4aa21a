// Package vectorstore defines the interface for vector storage operations.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotImplemented indicates a backend operation that has no
	// implementation yet. It is always surfaced to the caller, never
	// silently degraded to an empty result.
	ErrNotImplemented = errors.New("backend operation not implemented")

	// ErrEmptyDocuments indicates empty or nil input texts.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrConnectionFailed indicates a backend connection failure.
	ErrConnectionFailed = errors.New("failed to connect to vector store backend")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrDimensionMismatch is returned when an embedding's dimension does
	// not match the collection's configured vector size. Similarity search
	// over mixed dimensions is meaningless, so this always fails loudly.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Embedder generates vector embeddings from text.
//
// Embeddings are dense numerical representations that capture semantic
// meaning, enabling similarity search. Implementations can use local models
// (FastEmbed) or remote APIs (TEI, OpenAI-compatible endpoints).
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns one embedding per input text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the uniform interface over interchangeable vector store backends.
//
// All implementations expose identical externally observable behavior:
// results ordered by ascending distance, exact-equality metadata filter
// semantics, and idempotent metadata-scoped deletion. Backend-specific
// limitations surface as errors (ErrNotImplemented), never as silent
// behavior changes.
//
// The backend is a deployment-time choice made once via the factory; it is
// never re-dispatched per call.
//
// Implementations:
//   - ChromemStore: embedded chromem-go with on-disk persistence (default)
//   - QdrantStore: external Qdrant server over gRPC
//   - FaissStore: reserved backend name, every operation fails explicitly
type Store interface {
	// AddTexts embeds and stores the given texts with shared metadata.
	//
	// One embedding is computed per text, preserving input order, and each
	// record receives a random UUID. The batch becomes visible to Search
	// atomically: a concurrent reader observes either none or all of the
	// records from one call.
	//
	// Returns the generated record IDs.
	AddTexts(ctx context.Context, texts []string, metadata map[string]string) ([]string, error)

	// Search performs similarity search over the whole collection.
	//
	// Returns up to k results ordered by ascending distance (most similar
	// first). Searching an empty collection returns an empty slice, not an
	// error.
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)

	// SearchWithFilter is Search restricted to records whose metadata
	// exactly matches every key/value pair in filter. Equality only; no
	// range or substring matching.
	SearchWithFilter(ctx context.Context, query string, filter map[string]string, k int) ([]SearchResult, error)

	// DeleteByMetadata removes every record whose metadata matches filter
	// under the same exact-equality semantics. A filter matching zero
	// records is a no-op, not an error. Returns the number of records
	// removed.
	DeleteByMetadata(ctx context.Context, filter map[string]string) (int, error)

	// Stats returns the record count and backend identity of the collection.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases backend resources.
	Close() error
}
