// Package rag wires chunking, vector storage and retrieval into the
// ingestion and query paths of the service.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pmvlabs/ragd/internal/chunker"
	"github.com/pmvlabs/ragd/internal/vectorstore"
)

var (
	// ErrEmptyText indicates empty or whitespace-only ingestion input.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrEmptyQuery indicates an empty retrieval query.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrEmptyFileID indicates a missing file identifier.
	ErrEmptyFileID = errors.New("file id cannot be empty")
)

// sourceFileUpload tags records ingested through the upload paths.
const sourceFileUpload = "file_upload"

func ragTracer() trace.Tracer {
	return otel.Tracer("ragd/rag")
}

// Config holds pipeline tuning parameters.
type Config struct {
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int

	// ChunkOverlap is the shared context between adjacent chunks.
	ChunkOverlap int

	// TopK is the number of nearest records retrieved per query.
	TopK int

	// MaxContextLength is the character budget for assembled context.
	MaxContextLength int
}

// ApplyDefaults fills zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.MaxContextLength <= 0 {
		c.MaxContextLength = 4000
	}
}

// IngestResult reports what a single ingestion produced.
type IngestResult struct {
	// FileID identifies every record of this ingestion for later
	// filtered retrieval and deletion.
	FileID string `json:"file_id"`

	// Filename is the caller-supplied display name.
	Filename string `json:"filename"`

	// ChunkIDs are the stored record identifiers, in chunk order.
	ChunkIDs []string `json:"chunk_ids"`
}

// Pipeline is the ingestion and retrieval engine.
type Pipeline struct {
	store    vectorstore.Store
	splitter *chunker.Splitter
	config   Config
	logger   *zap.Logger
}

// New creates a Pipeline on top of a vector store.
func New(store vectorstore.Store, cfg Config, logger *zap.Logger) *Pipeline {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:    store,
		splitter: chunker.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		config:   cfg,
		logger:   logger.Named("rag"),
	}
}

// IngestText chunks text and stores each chunk tagged with a fresh file ID.
// The filename is kept as display metadata only.
func (p *Pipeline) IngestText(ctx context.Context, text, filename string) (*IngestResult, error) {
	ctx, span := ragTracer().Start(ctx, "rag.ingest_text")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	fileID := uuid.NewString()
	chunks := p.splitter.Split(text)
	if len(chunks) == 0 {
		return nil, ErrEmptyText
	}

	metadata := map[string]string{
		"file_id":  fileID,
		"filename": filename,
		"source":   sourceFileUpload,
	}

	ids, err := p.store.AddTexts(ctx, chunks, metadata)
	if err != nil {
		// Best-effort cleanup of anything a backend may have written
		// before failing, so a retry never leaves orphaned records.
		if _, cleanupErr := p.store.DeleteByMetadata(ctx, map[string]string{"file_id": fileID}); cleanupErr != nil {
			p.logger.Warn("cleanup after failed ingestion",
				zap.String("file_id", fileID),
				zap.Error(cleanupErr))
		}
		return nil, fmt.Errorf("storing chunks: %w", err)
	}

	stats := chunker.ChunkStats(chunks)
	span.SetAttributes(
		attribute.String("file_id", fileID),
		attribute.Int("chunks", len(chunks)),
	)
	p.logger.Info("ingested text",
		zap.String("file_id", fileID),
		zap.String("filename", filename),
		zap.Int("chunks", stats.TotalChunks),
		zap.Int("characters", stats.TotalCharacters))

	return &IngestResult{
		FileID:   fileID,
		Filename: filename,
		ChunkIDs: ids,
	}, nil
}

// RetrieveContext searches the whole store and assembles the nearest chunks
// into a context block. Returns an empty string when nothing is stored or
// nothing fits the budget.
func (p *Pipeline) RetrieveContext(ctx context.Context, query string) (string, error) {
	ctx, span := ragTracer().Start(ctx, "rag.retrieve_context")
	defer span.End()

	query, err := p.normalizeQuery(query)
	if err != nil {
		return "", err
	}

	results, err := p.store.Search(ctx, query, p.config.TopK)
	if err != nil {
		return "", fmt.Errorf("searching: %w", err)
	}

	assembled := AssembleContext(results, p.config.MaxContextLength)
	span.SetAttributes(
		attribute.Int("results", len(results)),
		attribute.Int("context_chars", len(assembled)),
	)
	return assembled, nil
}

// RetrieveFileContext searches only the records of one ingested file.
func (p *Pipeline) RetrieveFileContext(ctx context.Context, query, fileID string) (string, error) {
	ctx, span := ragTracer().Start(ctx, "rag.retrieve_file_context")
	defer span.End()

	if fileID == "" {
		return "", ErrEmptyFileID
	}
	query, err := p.normalizeQuery(query)
	if err != nil {
		return "", err
	}

	results, err := p.store.SearchWithFilter(ctx, query, map[string]string{"file_id": fileID}, p.config.TopK)
	if err != nil {
		return "", fmt.Errorf("searching file %s: %w", fileID, err)
	}

	assembled := AssembleContext(results, p.config.MaxContextLength)
	span.SetAttributes(
		attribute.String("file_id", fileID),
		attribute.Int("results", len(results)),
		attribute.Int("context_chars", len(assembled)),
	)
	return assembled, nil
}

// DeleteFile removes every record of an ingested file. Deleting a file that
// does not exist is not an error; the returned count is zero.
func (p *Pipeline) DeleteFile(ctx context.Context, fileID string) (int, error) {
	ctx, span := ragTracer().Start(ctx, "rag.delete_file")
	defer span.End()

	if fileID == "" {
		return 0, ErrEmptyFileID
	}

	deleted, err := p.store.DeleteByMetadata(ctx, map[string]string{"file_id": fileID})
	if err != nil {
		return 0, fmt.Errorf("deleting file %s: %w", fileID, err)
	}

	span.SetAttributes(attribute.String("file_id", fileID), attribute.Int("deleted", deleted))
	p.logger.Info("deleted file records",
		zap.String("file_id", fileID),
		zap.Int("deleted", deleted))
	return deleted, nil
}

// Stats reports storage statistics.
func (p *Pipeline) Stats(ctx context.Context) (*vectorstore.Stats, error) {
	return p.store.Stats(ctx)
}

// normalizeQuery trims the query and caps it at the context budget so a
// pasted document cannot blow up the embedding call.
func (p *Pipeline) normalizeQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	if len(query) > p.config.MaxContextLength {
		cut := p.config.MaxContextLength
		for cut > 0 && !utf8.RuneStart(query[cut]) {
			cut--
		}
		query = query[:cut]
	}
	return query, nil
}
