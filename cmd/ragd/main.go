// Ragd is a retrieval-augmented generation service over HTTP.
//
// It ingests text and uploaded documents into a vector store, retrieves the
// nearest chunks for a question and asks an LLM to answer from them, keeping
// a bounded conversation history per session.
//
// Configuration is loaded from an optional YAML file and environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	ragd
//
//	# Start with a config file
//	ragd -config config.yaml
//
//	# Configure via environment
//	SERVER_HTTP_PORT=8000 VECTOR_STORE_PROVIDER=qdrant ragd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/pmvlabs/ragd/internal/config"
	"github.com/pmvlabs/ragd/internal/embeddings"
	"github.com/pmvlabs/ragd/internal/generation"
	"github.com/pmvlabs/ragd/internal/httpapi"
	"github.com/pmvlabs/ragd/internal/logging"
	"github.com/pmvlabs/ragd/internal/rag"
	"github.com/pmvlabs/ragd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  ragd           Start the ragd server\n")
			fmt.Fprintf(os.Stderr, "  ragd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("ragd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the ragd server and blocks until the context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize logger
//  3. Create embedding provider
//  4. Create vector store backend
//  5. Create retrieval pipeline and generation gateway
//  6. Start HTTP server
//  7. Graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting ragd",
		zap.Int("port", cfg.Server.Port),
		zap.String("vector_backend", cfg.VectorStore.Provider),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing dependencies: %w", err)
	}
	defer deps.Close()

	logger.Info("Dependencies initialized",
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimension", deps.embedder.Dimension()),
		zap.String("collection", cfg.VectorStore.Collection))

	pipeline := rag.New(deps.store, rag.Config{
		ChunkSize:        cfg.RAG.ChunkSize,
		ChunkOverlap:     cfg.RAG.ChunkOverlap,
		TopK:             cfg.RAG.TopK,
		MaxContextLength: cfg.RAG.MaxContextLength,
	}, logger)

	gateway, err := generation.NewOpenAIGateway(generation.OpenAIConfig{
		APIKey:  cfg.Generation.APIKey.Value(),
		BaseURL: cfg.Generation.BaseURL,
		Model:   cfg.Generation.Model,
		Timeout: cfg.Generation.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing generation gateway: %w", err)
	}

	sessions := generation.NewSessionStore(cfg.Generation.HistoryLimit)

	srv, err := httpapi.NewServer(pipeline, gateway, sessions, logger, &httpapi.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		UploadDir:       cfg.Upload.Dir,
		MaxFileSize:     cfg.Upload.MaxFileSize,
		Backend:         cfg.VectorStore.Provider,
		EmbeddingModel:  cfg.Embedding.Model,
		GenerationModel: cfg.Generation.Model,
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// dependencies holds the infrastructure the pipeline is built on.
type dependencies struct {
	embedder embeddings.Provider
	store    vectorstore.Store
	logger   *zap.Logger
}

// Close releases infrastructure resources.
func (d *dependencies) Close() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("closing vector store", zap.Error(err))
		}
	}
	if d.embedder != nil {
		if err := d.embedder.Close(); err != nil {
			d.logger.Warn("closing embedding provider", zap.Error(err))
		}
	}
}

// initDependencies creates the embedding provider and the vector store
// backend named by the configuration. An unknown backend is a startup
// error, never a silent substitute.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	embedder, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey.Value(),
		CacheDir: cfg.Embedding.CacheDir,
		Timeout:  cfg.Embedding.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	// The store's vector size must match what the provider produces, not
	// whatever the config happens to say.
	if dim := embedder.Dimension(); dim > 0 {
		cfg.Embedding.Dimension = dim
	}

	store, err := vectorstore.New(cfg, embedder, logger)
	if err != nil {
		embedder.Close()
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	return &dependencies{
		embedder: embedder,
		store:    store,
		logger:   logger,
	}, nil
}
