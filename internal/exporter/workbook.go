// Package exporter builds Excel workbooks from arranged JSON data. It
// is the local fallback used when a pipeline run finishes without the
// generation stage having produced a workbook itself.
package exporter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// FallbackWorkbookName is the file written when the generation stage
// produced no workbook of its own.
const FallbackWorkbookName = "extracted_data.xlsx"

// WorkbookBuilder renders arranged JSON into a multi-sheet workbook.
type WorkbookBuilder struct {
	logger *slog.Logger
}

// NewWorkbookBuilder creates a workbook builder.
func NewWorkbookBuilder(logger *slog.Logger) *WorkbookBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkbookBuilder{logger: logger.With(slog.String("component", "exporter"))}
}

// BuildFromArrangedFile reads an arranged-data JSON file and writes a
// workbook next to it in outDir. Returns the workbook path. The JSON
// layout is whatever the arranger produced; objects become one sheet
// per top-level key, arrays of objects become tabular sheets, and
// anything else lands on a single Data sheet.
func (b *WorkbookBuilder) BuildFromArrangedFile(arrangedPath, outDir string) (string, error) {
	data, err := os.ReadFile(arrangedPath)
	if err != nil {
		return "", fmt.Errorf("read arranged data: %w", err)
	}

	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse arranged data: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := b.render(f, parsed); err != nil {
		return "", err
	}

	outPath := filepath.Join(outDir, FallbackWorkbookName)
	if err := f.SaveAs(outPath); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	b.logger.Info("fallback workbook written", slog.String("path", outPath))
	return outPath, nil
}

func (b *WorkbookBuilder) render(f *excelize.File, parsed interface{}) error {
	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return b.renderSheet(f, "Data", parsed, true)
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, key := range keys {
		if err := b.renderSheet(f, sheetName(key), obj[key], i == 0); err != nil {
			return err
		}
	}
	return nil
}

// renderSheet writes one top-level value onto its own sheet. The first
// sheet reuses the workbook's default sheet.
func (b *WorkbookBuilder) renderSheet(f *excelize.File, name string, value interface{}, first bool) error {
	if first {
		f.SetSheetName(f.GetSheetName(0), name)
	} else {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	switch v := value.(type) {
	case []interface{}:
		return b.renderRows(f, name, v)
	case map[string]interface{}:
		return b.renderPairs(f, name, v)
	default:
		return f.SetCellValue(name, "A1", cellValue(value))
	}
}

// renderRows writes an array. Arrays of objects get a header row from
// the union of keys; scalar arrays get one value per row.
func (b *WorkbookBuilder) renderRows(f *excelize.File, sheet string, rows []interface{}) error {
	headers := collectHeaders(rows)
	if len(headers) == 0 {
		for i, item := range rows {
			cell := fmt.Sprintf("A%d", i+1)
			if err := f.SetCellValue(sheet, cell, cellValue(item)); err != nil {
				return err
			}
		}
		return nil
	}

	for col, h := range headers {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, name+"1", h); err != nil {
			return err
		}
	}

	for i, item := range rows {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		for col, h := range headers {
			name, err := excelize.ColumnNumberToName(col + 1)
			if err != nil {
				return err
			}
			cell := fmt.Sprintf("%s%d", name, i+2)
			if err := f.SetCellValue(sheet, cell, cellValue(obj[h])); err != nil {
				return err
			}
		}
	}
	return nil
}

// renderPairs writes a flat object as two columns: key, value. Nested
// structures are serialized into the value cell.
func (b *WorkbookBuilder) renderPairs(f *excelize.File, sheet string, obj map[string]interface{}) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		row := i + 1
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", row), k); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", row), cellValue(obj[k])); err != nil {
			return err
		}
	}
	return nil
}

// collectHeaders returns the sorted union of keys across object rows.
func collectHeaders(rows []interface{}) []string {
	seen := make(map[string]bool)
	for _, item := range rows {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		for k := range obj {
			seen[k] = true
		}
	}
	headers := make([]string, 0, len(seen))
	for k := range seen {
		headers = append(headers, k)
	}
	sort.Strings(headers)
	return headers
}

// cellValue flattens nested values into something excelize can store.
func cellValue(v interface{}) interface{} {
	switch v.(type) {
	case nil:
		return ""
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	default:
		return v
	}
}

// sheetName sanitizes a JSON key into a legal sheet name. Excel caps
// names at 31 characters and bans a handful of punctuation characters.
func sheetName(key string) string {
	replacer := strings.NewReplacer(":", " ", "\\", " ", "/", " ", "?", " ", "*", " ", "[", " ", "]", " ")
	name := strings.TrimSpace(replacer.Replace(key))
	if name == "" {
		name = "Data"
	}
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}
