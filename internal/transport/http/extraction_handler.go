// Package http contains the HTTP transport: request decoding, error
// mapping and response rendering for the extraction API.
package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "docpulse/internal/errors"
	"docpulse/internal/pipeline"
	"docpulse/internal/services"
	"docpulse/internal/session"
	"docpulse/internal/upload"
)

// ExtractionServiceInterface is the service surface the handler needs.
type ExtractionServiceInterface interface {
	Upload(ctx context.Context, filename string, size int64, r io.Reader) (*session.Session, *upload.FileInfo, error)
	Run(ctx context.Context, sessionID string) error
	Report(ctx context.Context, sessionID string) (string, error)
	Snapshot(sessionID string) (pipeline.Snapshot, error)
	OutputFiles(sessionID string) ([]string, error)
	Download(ctx context.Context, sessionID string) (string, error)
	Reset(ctx context.Context, sessionID string) (*session.Session, error)
}

// ExtractionHandler exposes the extraction flow over HTTP.
type ExtractionHandler struct {
	service       ExtractionServiceInterface
	logger        *slog.Logger
	maxUploadSize int64
}

// NewExtractionHandler creates the extraction handler.
func NewExtractionHandler(service ExtractionServiceInterface, maxUploadMB int64, logger *slog.Logger) *ExtractionHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionHandler{
		service:       service,
		logger:        logger.With(slog.String("handler", "extraction")),
		maxUploadSize: maxUploadMB * 1024 * 1024,
	}
}

// Routes mounts the extraction endpoints.
func (h *ExtractionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/upload", h.Upload)
	r.Post("/run", h.Run)
	r.Get("/{id}/report", h.Report)
	r.Get("/{id}/status", h.Status)
	r.Get("/{id}/download", h.Download)
	r.Post("/{id}/reset", h.Reset)
	return r
}

// UploadResponse is the body returned after a successful upload.
type UploadResponse struct {
	Success   bool    `json:"success"`
	SessionID string  `json:"session_id"`
	Filename  string  `json:"filename"`
	SizeMB    float64 `json:"size_mb"`
}

// Upload accepts a multipart document and allocates a session for it.
func (h *ExtractionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+1024*1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrMissingFile))
		return
	}
	defer file.Close()

	sess, info, err := h.service.Upload(r.Context(), header.Filename, header.Size, file)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, UploadResponse{
		Success:   true,
		SessionID: sess.ID,
		Filename:  info.Name,
		SizeMB:    info.SizeMB,
	})
}

// RunRequest starts a pipeline run for a session.
type RunRequest struct {
	SessionID string `json:"session_id"`
}

// Bind implements render.Binder.
func (req *RunRequest) Bind(*http.Request) error {
	if req.SessionID == "" {
		return errors.New("session_id is required")
	}
	return nil
}

// Run starts the three-stage pipeline. The run proceeds in the
// background; progress streams over the WebSocket.
func (h *ExtractionHandler) Run(w http.ResponseWriter, r *http.Request) {
	req := &RunRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	if err := h.service.Run(r.Context(), req.SessionID); err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]any{
		"success":    true,
		"session_id": req.SessionID,
		"status":     "started",
	})
}

// Report returns the final aggregated report for a session.
func (h *ExtractionHandler) Report(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	report, err := h.service.Report(r.Context(), sessionID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]any{
		"success":    true,
		"session_id": sessionID,
		"report":     report,
	})
}

// Status returns the per-stage status snapshot for a session.
func (h *ExtractionHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	snap, err := h.service.Snapshot(sessionID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	files, err := h.service.OutputFiles(sessionID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]any{
		"success":      true,
		"session_id":   sessionID,
		"snapshot":     snap,
		"output_files": files,
	})
}

// Download streams the zipped output artifacts. The archive is built
// fresh on each request and removed after serving.
func (h *ExtractionHandler) Download(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	zipPath, err := h.service.Download(r.Context(), sessionID)
	if errors.Is(err, services.ErrNoArtifacts) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	defer os.Remove(zipPath)

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(zipPath)+`"`)
	http.ServeFile(w, r, zipPath)
}

// Reset abandons a session and returns a fresh one.
func (h *ExtractionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	sess, err := h.service.Reset(r.Context(), sessionID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]any{
		"success":    true,
		"session_id": sess.ID,
	})
}

// renderError maps service and validation errors onto API responses.
func (h *ExtractionHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apierrors.APIError
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		apiErr = apierrors.ErrSessionNotFound
	case errors.Is(err, services.ErrReportNotReady):
		apiErr = apierrors.ErrReportNotFound
	case errors.Is(err, services.ErrRunInProgress):
		apiErr = apierrors.ErrPipelineRunning
	case errors.Is(err, services.ErrNoDocument):
		apiErr = apierrors.ErrMissingFile
	case errors.Is(err, upload.ErrNoFile):
		apiErr = apierrors.ErrMissingFile
	case errors.Is(err, upload.ErrTooLarge):
		apiErr = apierrors.ErrFileTooLarge
	case errors.Is(err, upload.ErrUnsupportedType):
		apiErr = apierrors.ErrUnsupportedFileType
	default:
		h.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		apiErr = apierrors.ErrInternalServer
	}
	render.Render(w, r, apierrors.NewErrorResponse(apiErr))
}
