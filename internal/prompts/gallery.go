// Package prompts loads the prompt gallery: curated example prompts
// grouped into categories, served to the frontend as starting points.
package prompts

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// Prompt is one reusable example prompt.
type Prompt struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Text        string `json:"text"`
}

// Category groups related prompts.
type Category struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Prompts     []Prompt `json:"prompts"`
}

// Gallery holds the loaded prompt catalog. A missing or unreadable
// file yields an empty gallery, never an error: the gallery is a
// convenience, not a dependency.
type Gallery struct {
	categories map[string]Category
	logger     *slog.Logger
}

// Load reads the gallery JSON from path. Any failure is logged and
// produces an empty gallery.
func Load(path string, logger *slog.Logger) *Gallery {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "prompt_gallery"))

	g := &Gallery{categories: map[string]Category{}, logger: logger}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("prompt gallery file not found", slog.String("path", path))
		} else {
			logger.Error("failed to read prompt gallery", slog.String("path", path), slog.String("error", err.Error()))
		}
		return g
	}

	var file struct {
		Categories map[string]Category `json:"categories"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		logger.Error("failed to parse prompt gallery", slog.String("path", path), slog.String("error", err.Error()))
		return g
	}
	if file.Categories != nil {
		g.categories = file.Categories
	}

	logger.Info("prompt gallery loaded",
		slog.String("path", path),
		slog.Int("categories", len(g.categories)))
	return g
}

// Categories returns the full catalog keyed by category id.
func (g *Gallery) Categories() map[string]Category {
	out := make(map[string]Category, len(g.categories))
	for k, v := range g.categories {
		out[k] = v
	}
	return out
}

// Category returns one category by id.
func (g *Gallery) Category(id string) (Category, bool) {
	c, ok := g.categories[id]
	return c, ok
}

// PromptsFor returns the prompts of one category, or nil if the
// category does not exist.
func (g *Gallery) PromptsFor(categoryID string) []Prompt {
	return g.categories[categoryID].Prompts
}

// Prompt looks up a single prompt by category and prompt id.
func (g *Gallery) Prompt(categoryID, promptID string) (Prompt, error) {
	for _, p := range g.PromptsFor(categoryID) {
		if p.ID == promptID {
			return p, nil
		}
	}
	return Prompt{}, fmt.Errorf("prompt %s/%s not found", categoryID, promptID)
}
