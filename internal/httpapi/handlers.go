package httpapi

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/pmvlabs/ragd/internal/extraction"
	"github.com/pmvlabs/ragd/internal/generation"
	"github.com/pmvlabs/ragd/internal/rag"
	"github.com/pmvlabs/ragd/internal/vectorstore"
)

// QueryRequest is the request body for POST /api/v1/text.
type QueryRequest struct {
	Query string `json:"query"`
}

// FileQueryRequest is the request body for POST /api/v1/text/file.
type FileQueryRequest struct {
	Query  string `json:"query"`
	FileID string `json:"file_id"`
}

// QueryResponse is the response body for the query endpoints.
type QueryResponse struct {
	Response     string `json:"response"`
	ContextFound bool   `json:"context_found"`
}

// UploadResponse is the response body for POST /api/v1/file.
type UploadResponse struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	FileType string `json:"file_type"`
	Chunks   int    `json:"chunks"`
}

// DeleteResponse is the response body for DELETE /api/v1/file/:id.
type DeleteResponse struct {
	FileID  string `json:"file_id"`
	Deleted int    `json:"deleted"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthzResponse is the response body for GET /healthz.
type HealthzResponse struct {
	Status          string `json:"status"`
	VectorBackend   string `json:"vector_backend"`
	EmbeddingModel  string `json:"embedding_model"`
	GenerationModel string `json:"generation_model"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleHealthz returns a detailed health check response.
func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthzResponse{
		Status:          "ok",
		VectorBackend:   s.config.Backend,
		EmbeddingModel:  s.config.EmbeddingModel,
		GenerationModel: s.config.GenerationModel,
	})
}

// handleQueryText answers a question using the whole collection.
func (s *Server) handleQueryText(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid query request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	ctx := c.Request().Context()
	retrieved, err := s.pipeline.RetrieveContext(ctx, req.Query)
	if err != nil {
		return s.mapError(err)
	}

	return s.respond(c, req.Query, retrieved, false)
}

// handleQueryFile answers a question using only one uploaded file.
func (s *Server) handleQueryFile(c echo.Context) error {
	var req FileQueryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid file query request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}
	if req.FileID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "file_id field is required")
	}

	ctx := c.Request().Context()
	retrieved, err := s.pipeline.RetrieveFileContext(ctx, req.Query, req.FileID)
	if err != nil {
		return s.mapError(err)
	}

	return s.respond(c, req.Query, retrieved, true)
}

// respond generates an answer and records the exchange in the session
// history.
func (s *Server) respond(c echo.Context, query, retrieved string, fileScoped bool) error {
	history := s.sessions.Get(s.sessionID(c))

	answer, err := s.gateway.Generate(c.Request().Context(), generation.Request{
		Query:      query,
		Context:    retrieved,
		FileScoped: fileScoped,
		History:    history.Messages(),
	})
	if err != nil {
		return s.mapError(err)
	}

	history.Append(query, answer)

	return c.JSON(http.StatusOK, QueryResponse{
		Response:     answer,
		ContextFound: retrieved != "",
	})
}

// handleUploadFile ingests an uploaded document.
func (s *Server) handleUploadFile(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}

	if !extraction.Supported(fileHeader.Filename) {
		return echo.NewHTTPError(http.StatusBadRequest,
			"unsupported file type (supported: "+strings.Join(extraction.Extensions(), ", ")+")")
	}
	if s.config.MaxFileSize > 0 && fileHeader.Size > s.config.MaxFileSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file exceeds upload size limit")
	}

	path, err := s.saveUpload(fileHeader)
	if err != nil {
		s.logger.Error("saving upload", zap.String("filename", fileHeader.Filename), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save upload")
	}

	text, err := extraction.ExtractText(path)
	if err != nil {
		os.Remove(path)
		return s.mapError(err)
	}

	result, err := s.pipeline.IngestText(c.Request().Context(), text, fileHeader.Filename)
	if err != nil {
		os.Remove(path)
		return s.mapError(err)
	}

	s.logger.Info("ingested upload",
		zap.String("file_id", result.FileID),
		zap.String("filename", result.Filename),
		zap.Int("chunks", len(result.ChunkIDs)))

	return c.JSON(http.StatusOK, UploadResponse{
		FileID:   result.FileID,
		Filename: result.Filename,
		FileType: strings.ToLower(filepath.Ext(fileHeader.Filename)),
		Chunks:   len(result.ChunkIDs),
	})
}

// saveUpload writes the multipart file under the upload directory with a
// unique prefix so concurrent uploads of the same name never collide.
func (s *Server) saveUpload(fileHeader *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(s.config.UploadDir, 0o750); err != nil {
		return "", err
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	name := uuid.NewString() + "_" + filepath.Base(fileHeader.Filename)
	path := filepath.Join(s.config.UploadDir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// handleDeleteFile removes an uploaded file's indexed content. Deleting an
// unknown file succeeds with a zero count.
func (s *Server) handleDeleteFile(c echo.Context) error {
	fileID := c.Param("id")

	deleted, err := s.pipeline.DeleteFile(c.Request().Context(), fileID)
	if err != nil {
		return s.mapError(err)
	}

	return c.JSON(http.StatusOK, DeleteResponse{FileID: fileID, Deleted: deleted})
}

// handleStats reports vector store statistics.
func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.pipeline.Stats(c.Request().Context())
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// mapError converts component errors into HTTP errors.
func (s *Server) mapError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, rag.ErrEmptyText),
		errors.Is(err, rag.ErrEmptyQuery),
		errors.Is(err, rag.ErrEmptyFileID),
		errors.Is(err, extraction.ErrUnsupportedFileType),
		errors.Is(err, extraction.ErrEmptyExtraction),
		errors.Is(err, extraction.ErrInvalidEncoding),
		errors.Is(err, generation.ErrEmptyQuery):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, vectorstore.ErrNotImplemented):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	case errors.Is(err, generation.ErrGenerationFailed),
		errors.Is(err, vectorstore.ErrConnectionFailed):
		s.logger.Error("upstream failure", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "upstream service failure")
	default:
		s.logger.Error("internal error", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
