package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "docpulse/internal/errors"
	"docpulse/internal/prompts"
)

// PromptsHandler serves the prompt gallery.
type PromptsHandler struct {
	gallery *prompts.Gallery
	logger  *slog.Logger
}

// NewPromptsHandler creates the prompts handler.
func NewPromptsHandler(gallery *prompts.Gallery, logger *slog.Logger) *PromptsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PromptsHandler{
		gallery: gallery,
		logger:  logger.With(slog.String("handler", "prompts")),
	}
}

// Routes mounts the prompt gallery endpoints.
func (h *PromptsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{category}", h.ListCategory)
	r.Get("/{category}/{id}", h.Get)
	return r
}

// List returns every category with its prompts.
func (h *PromptsHandler) List(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"success":    true,
		"categories": h.gallery.Categories(),
	})
}

// ListCategory returns one category with its prompts.
func (h *PromptsHandler) ListCategory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "category")

	category, ok := h.gallery.Category(id)
	if !ok {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.NotFoundError("prompt category")))
		return
	}

	render.JSON(w, r, map[string]any{
		"success":  true,
		"category": category,
	})
}

// Get returns one prompt by category and id.
func (h *PromptsHandler) Get(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	id := chi.URLParam(r, "id")

	prompt, err := h.gallery.Prompt(category, id)
	if err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.NotFoundError("prompt")))
		return
	}

	render.JSON(w, r, map[string]any{
		"success": true,
		"prompt":  prompt,
	})
}
