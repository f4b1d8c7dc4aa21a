package vectorstore

import (
	"fmt"

	"github.com/pmvlabs/ragd/internal/config"
	"go.uber.org/zap"
)

// New creates a Store based on the configuration.
//
// The backend is selected exactly once, at construction:
//   - "chroma" (default): embedded chromem-go with on-disk persistence
//   - "qdrant": external Qdrant server over gRPC
//   - "faiss": reserved, every operation fails with ErrNotImplemented
//
// An unknown backend name is a configuration error and the process must not
// start. There is no fallback from one backend to another.
func New(cfg *config.Config, embedder Embedder, logger *zap.Logger) (Store, error) {
	switch cfg.VectorStore.Provider {
	case "chroma", "":
		return NewChromemStore(ChromemConfig{
			Path:       cfg.VectorStore.Chroma.Path,
			Compress:   cfg.VectorStore.Chroma.Compress,
			Collection: cfg.VectorStore.Collection,
			VectorSize: cfg.Embedding.Dimension,
		}, embedder, logger)

	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:       cfg.VectorStore.Qdrant.Host,
			Port:       cfg.VectorStore.Qdrant.Port,
			Collection: cfg.VectorStore.Collection,
			VectorSize: cfg.Embedding.Dimension,
			UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
		}, embedder, logger)

	case "faiss":
		return NewFaissStore(FaissConfig{
			IndexPath: cfg.VectorStore.Faiss.IndexPath,
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vector store provider %q (supported: chroma, qdrant, faiss)",
			ErrInvalidConfig, cfg.VectorStore.Provider)
	}
}
