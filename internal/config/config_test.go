package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "chroma", cfg.VectorStore.Provider)
	assert.Equal(t, "rag_documents", cfg.VectorStore.Collection)
	assert.Equal(t, "fastembed", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 4000, cfg.RAG.MaxContextLength)
	assert.Equal(t, 20, cfg.Generation.HistoryLimit)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  http_port: 9001
  shutdown_timeout: 5s
vector_store:
  provider: qdrant
  qdrant:
    host: qdrant.internal
rag:
  chunk_size: 500
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	// Untouched keys keep defaults.
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9001\n"), 0o600))

	t.Setenv("SERVER_HTTP_PORT", "9002")
	t.Setenv("VECTOR_STORE_PROVIDER", "faiss")
	t.Setenv("GENERATION_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9002, cfg.Server.Port)
	assert.Equal(t, "faiss", cfg.VectorStore.Provider)
	assert.Equal(t, "sk-test", cfg.Generation.APIKey.Value())
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestTransformEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SERVER_HTTP_PORT", "server.http_port"},
		{"VECTOR_STORE_PROVIDER", "vector_store.provider"},
		{"EMBEDDING_API_KEY", "embedding.api_key"},
		{"RAG_CHUNK_SIZE", "rag.chunk_size"},
		{"PATH", ""},
		{"HOME", ""},
		{"SERVER_", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, transformEnvKey(tt.in))
		})
	}
}

func validConfig() *Config {
	cfg := Default()
	cfg.Generation.APIKey = "sk-test"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid port"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "unsupported level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "unsupported format"},
		{"bad store", func(c *Config) { c.VectorStore.Provider = "pinecone" }, "unsupported provider"},
		{"bad embedder", func(c *Config) { c.Embedding.Provider = "wordvec" }, "unsupported provider"},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }, "dimension"},
		{"openai embedder without key", func(c *Config) { c.Embedding.Provider = "openai" }, "api_key"},
		{"missing generation key", func(c *Config) { c.Generation.APIKey = "" }, "api_key"},
		{"zero history", func(c *Config) { c.Generation.HistoryLimit = 0 }, "history_limit"},
		{"zero chunk size", func(c *Config) { c.RAG.ChunkSize = 0 }, "chunk_size"},
		{"overlap >= chunk size", func(c *Config) { c.RAG.ChunkOverlap = c.RAG.ChunkSize }, "chunk_overlap"},
		{"zero top k", func(c *Config) { c.RAG.TopK = 0 }, "top_k"},
		{"zero context", func(c *Config) { c.RAG.MaxContextLength = 0 }, "max_context_length"},
		{"zero upload size", func(c *Config) { c.Upload.MaxFileSize = 0 }, "max_file_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("sk-supersecret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "supersecret")
	assert.Equal(t, "sk-supersecret", s.Value())
	assert.True(t, s.IsSet())
	assert.False(t, Secret("").IsSet())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "supersecret")
}
