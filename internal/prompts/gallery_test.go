package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const galleryJSON = `{
	"categories": {
		"financial": {
			"name": "Financial Reports",
			"prompts": [
				{"id": "balance", "title": "Balance Sheet", "text": "Extract the balance sheet"},
				{"id": "income", "title": "Income Statement", "text": "Extract the income statement"}
			]
		},
		"invoices": {
			"name": "Invoices",
			"prompts": [
				{"id": "totals", "title": "Invoice Totals", "text": "Sum all invoice totals"}
			]
		}
	}
}`

func writeGallery(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompt_gallery.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadGallery(t *testing.T) {
	g := Load(writeGallery(t, galleryJSON), nil)

	cats := g.Categories()
	require.Len(t, cats, 2)
	assert.Equal(t, "Financial Reports", cats["financial"].Name)

	prompts := g.PromptsFor("financial")
	require.Len(t, prompts, 2)
	assert.Equal(t, "balance", prompts[0].ID)
}

func TestLoadMissingFileYieldsEmptyGallery(t *testing.T) {
	g := Load(filepath.Join(t.TempDir(), "nope.json"), nil)
	assert.Empty(t, g.Categories())
	assert.Nil(t, g.PromptsFor("financial"))
}

func TestLoadInvalidJSONYieldsEmptyGallery(t *testing.T) {
	g := Load(writeGallery(t, "{broken"), nil)
	assert.Empty(t, g.Categories())
}

func TestCategoryLookup(t *testing.T) {
	g := Load(writeGallery(t, galleryJSON), nil)

	cat, ok := g.Category("invoices")
	require.True(t, ok)
	assert.Equal(t, "Invoices", cat.Name)

	_, ok = g.Category("legal")
	assert.False(t, ok)
}

func TestPromptLookup(t *testing.T) {
	g := Load(writeGallery(t, galleryJSON), nil)

	p, err := g.Prompt("financial", "income")
	require.NoError(t, err)
	assert.Equal(t, "Income Statement", p.Title)

	_, err = g.Prompt("financial", "missing")
	assert.Error(t, err)

	_, err = g.Prompt("unknown", "balance")
	assert.Error(t, err)
}
