// Package upload validates and stores uploaded documents into a
// session's input directory.
package upload

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"docpulse/internal/session"
)

// Sentinel errors the transport layer maps onto response codes.
var (
	ErrNoFile          = errors.New("no file was uploaded")
	ErrTooLarge        = errors.New("file exceeds the size limit")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// FileInfo describes a validated upload.
type FileInfo struct {
	Name   string  `json:"name" validate:"required"`
	Type   string  `json:"type" validate:"required"`
	SizeMB float64 `json:"size_mb" validate:"gte=0"`
	Path   string  `json:"path,omitempty"`
}

// Validator enforces the upload allow-list and size cap. Validation
// errors are reported synchronously; the pipeline never starts on
// invalid input.
type Validator struct {
	maxSizeBytes int64
	extensions   map[string]bool
	validate     *validator.Validate
	logger       *slog.Logger
}

// NewValidator creates an upload validator.
func NewValidator(maxSizeMB int64, extensions []string, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &Validator{
		maxSizeBytes: maxSizeMB * 1024 * 1024,
		extensions:   allowed,
		validate:     validator.New(),
		logger:       logger.With(slog.String("component", "upload_validator")),
	}
}

// Check validates a prospective upload by name and size without
// touching its content.
func (v *Validator) Check(filename string, size int64) (*FileInfo, error) {
	if filename == "" {
		return nil, ErrNoFile
	}
	if size > v.maxSizeBytes {
		return nil, fmt.Errorf("%w: %d MB maximum", ErrTooLarge, v.maxSizeBytes/(1024*1024))
	}

	base := filepath.Base(filename)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(base), "."))
	if ext == "" || !v.extensions[ext] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}

	info := &FileInfo{
		Name:   base,
		Type:   ext,
		SizeMB: float64(size) / (1024 * 1024),
	}
	if err := v.validate.Struct(info); err != nil {
		return nil, fmt.Errorf("invalid file metadata: %w", err)
	}
	return info, nil
}

// Save validates the upload and writes it into the session's input
// directory under its base name, returning the stored path.
func (v *Validator) Save(sess *session.Session, filename string, size int64, r io.Reader) (*FileInfo, error) {
	info, err := v.Check(filename, size)
	if err != nil {
		return nil, err
	}

	dst := filepath.Join(sess.InputDir, info.Name)
	f, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to create input file: %w", err)
	}
	defer f.Close()

	// The size cap is enforced again while copying: multipart headers
	// are client-supplied.
	written, err := io.Copy(f, io.LimitReader(r, v.maxSizeBytes+1))
	if err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	if written > v.maxSizeBytes {
		os.Remove(dst)
		return nil, fmt.Errorf("%w: %d MB maximum", ErrTooLarge, v.maxSizeBytes/(1024*1024))
	}

	info.Path = dst
	info.SizeMB = float64(written) / (1024 * 1024)

	v.logger.Info("upload stored",
		slog.String("session_id", sess.ID),
		slog.String("file", info.Name),
		slog.Float64("size_mb", info.SizeMB))

	return info, nil
}
