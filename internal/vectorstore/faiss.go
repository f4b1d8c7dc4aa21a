package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FaissConfig holds configuration for the FAISS backend.
type FaissConfig struct {
	// IndexPath is the on-disk location for the FAISS index.
	IndexPath string
}

// FaissStore is a reserved Store implementation for a FAISS-backed engine.
//
// The backend name is accepted by the factory so deployments can be
// configured ahead of the implementation, but every operation fails with
// ErrNotImplemented rather than substituting another backend.
type FaissStore struct {
	config FaissConfig
	logger *zap.Logger
}

// NewFaissStore creates the FAISS store stub.
func NewFaissStore(config FaissConfig, logger *zap.Logger) (*FaissStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Warn("faiss backend selected: all operations will fail until implemented",
		zap.String("index_path", config.IndexPath),
	)
	return &FaissStore{config: config, logger: logger}, nil
}

func (s *FaissStore) AddTexts(ctx context.Context, texts []string, metadata map[string]string) ([]string, error) {
	return nil, fmt.Errorf("%w: faiss add", ErrNotImplemented)
}

func (s *FaissStore) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	return nil, fmt.Errorf("%w: faiss search", ErrNotImplemented)
}

func (s *FaissStore) SearchWithFilter(ctx context.Context, query string, filter map[string]string, k int) ([]SearchResult, error) {
	return nil, fmt.Errorf("%w: faiss filtered search", ErrNotImplemented)
}

func (s *FaissStore) DeleteByMetadata(ctx context.Context, filter map[string]string) (int, error) {
	return 0, fmt.Errorf("%w: faiss delete", ErrNotImplemented)
}

func (s *FaissStore) Stats(ctx context.Context) (*Stats, error) {
	return nil, fmt.Errorf("%w: faiss stats", ErrNotImplemented)
}

func (s *FaissStore) Close() error {
	return nil
}

// Ensure FaissStore implements Store.
var _ Store = (*FaissStore)(nil)
