// Package config provides configuration loading for ragd.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. Validation is strict: an unsupported backend name or a missing
// required credential aborts startup.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete ragd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Log         LogConfig         `koanf:"log"`
	VectorStore VectorStoreConfig `koanf:"vector_store"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	Generation  GenerationConfig  `koanf:"generation"`
	RAG         RAGConfig         `koanf:"rag"`
	Upload      UploadConfig      `koanf:"upload"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// VectorStoreConfig holds vector store backend selection and settings.
type VectorStoreConfig struct {
	// Provider selects the backend: chroma (default), qdrant, faiss.
	Provider string `koanf:"provider"`

	// Collection is the collection name shared by all backends.
	Collection string `koanf:"collection"`

	Chroma ChromaConfig `koanf:"chroma"`
	Qdrant QdrantConfig `koanf:"qdrant"`
	Faiss  FaissConfig  `koanf:"faiss"`
}

// ChromaConfig holds settings for the embedded chromem backend.
type ChromaConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig holds settings for the Qdrant backend.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
}

// FaissConfig holds settings for the reserved FAISS backend.
type FaissConfig struct {
	IndexPath string `koanf:"index_path"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	// Provider selects the embedder: fastembed, tei, openai.
	Provider string `koanf:"provider"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// Dimension is the embedding dimension; must match the model output.
	Dimension int `koanf:"dimension"`

	// BaseURL is the endpoint for tei and openai-compatible providers.
	BaseURL string `koanf:"base_url"`

	// APIKey authenticates against openai-compatible providers.
	APIKey Secret `koanf:"api_key"`

	// CacheDir is the model cache directory (fastembed only).
	CacheDir string `koanf:"cache_dir"`

	// Timeout bounds each embedding call.
	Timeout time.Duration `koanf:"timeout"`
}

// GenerationConfig holds generation gateway configuration.
type GenerationConfig struct {
	// Model is the chat model name.
	Model string `koanf:"model"`

	// BaseURL is the OpenAI-compatible endpoint.
	BaseURL string `koanf:"base_url"`

	// APIKey authenticates against the endpoint. Required.
	APIKey Secret `koanf:"api_key"`

	// Timeout bounds each generation call.
	Timeout time.Duration `koanf:"timeout"`

	// HistoryLimit caps per-session conversation history entries.
	HistoryLimit int `koanf:"history_limit"`
}

// RAGConfig holds retrieval pipeline tuning.
type RAGConfig struct {
	ChunkSize        int `koanf:"chunk_size"`
	ChunkOverlap     int `koanf:"chunk_overlap"`
	TopK             int `koanf:"top_k"`
	MaxContextLength int `koanf:"max_context_length"`
}

// UploadConfig holds file upload settings.
type UploadConfig struct {
	Dir         string   `koanf:"dir"`
	MaxFileSize int64    `koanf:"max_file_size"`
	Extensions  []string `koanf:"extensions"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		VectorStore: VectorStoreConfig{
			Provider:   "chroma",
			Collection: "rag_documents",
			Chroma: ChromaConfig{
				Path: "./data/chroma_db",
			},
			Qdrant: QdrantConfig{
				Host: "localhost",
				Port: 6334,
			},
			Faiss: FaissConfig{
				IndexPath: "./data/faiss_index",
			},
		},
		Embedding: EmbeddingConfig{
			Provider:  "fastembed",
			Model:     "BAAI/bge-small-en-v1.5",
			Dimension: 384,
			Timeout:   30 * time.Second,
		},
		Generation: GenerationConfig{
			Model:        "gemini-2.5-flash",
			Timeout:      60 * time.Second,
			HistoryLimit: 20,
		},
		RAG: RAGConfig{
			ChunkSize:        1000,
			ChunkOverlap:     200,
			TopK:             5,
			MaxContextLength: 4000,
		},
		Upload: UploadConfig{
			Dir:         "./data/uploads",
			MaxFileSize: 10 * 1024 * 1024,
			Extensions:  []string{".txt", ".md"},
		},
	}
}

// supported backend and provider names, checked at startup.
var (
	supportedStores     = map[string]bool{"chroma": true, "qdrant": true, "faiss": true}
	supportedEmbedders  = map[string]bool{"fastembed": true, "tei": true, "openai": true}
	supportedLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	supportedLogFormats = map[string]bool{"json": true, "console": true}
)

// Validate checks the configuration for fatal errors. A failed validation
// must abort startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	if !supportedLogLevels[c.Log.Level] {
		return fmt.Errorf("log: unsupported level %q", c.Log.Level)
	}
	if !supportedLogFormats[c.Log.Format] {
		return fmt.Errorf("log: unsupported format %q", c.Log.Format)
	}
	if !supportedStores[c.VectorStore.Provider] {
		return fmt.Errorf("vector_store: unsupported provider %q (supported: chroma, qdrant, faiss)", c.VectorStore.Provider)
	}
	if !supportedEmbedders[c.Embedding.Provider] {
		return fmt.Errorf("embedding: unsupported provider %q (supported: fastembed, tei, openai)", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding: dimension must be positive")
	}
	if c.Embedding.Provider == "openai" && !c.Embedding.APIKey.IsSet() {
		return fmt.Errorf("embedding: api_key required for openai provider")
	}
	if !c.Generation.APIKey.IsSet() {
		return fmt.Errorf("generation: api_key required")
	}
	if c.Generation.HistoryLimit <= 0 {
		return fmt.Errorf("generation: history_limit must be positive")
	}
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag: chunk_size must be positive")
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag: chunk_overlap must be in [0, chunk_size)")
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag: top_k must be positive")
	}
	if c.RAG.MaxContextLength <= 0 {
		return fmt.Errorf("rag: max_context_length must be positive")
	}
	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("upload: max_file_size must be positive")
	}
	return nil
}
