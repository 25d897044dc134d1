// Package archive bundles a session's output artifacts into a single
// downloadable zip.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"docpulse/internal/infrastructure"
	"docpulse/internal/session"
)

// Packager builds download archives from session output directories.
type Packager struct {
	logger  *slog.Logger
	metrics *infrastructure.Metrics
}

// NewPackager creates an archive packager.
func NewPackager(logger *slog.Logger, metrics *infrastructure.Metrics) *Packager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Packager{
		logger:  logger.With(slog.String("component", "packager")),
		metrics: metrics,
	}
}

// Package zips every file under the session's output directory into a
// fresh archive in the system temp directory and returns its path.
// An empty or missing output directory yields ("", nil): nothing to
// download is not an error.
func (p *Packager) Package(sess *session.Session) (string, error) {
	zipPath := filepath.Join(os.TempDir(),
		fmt.Sprintf("processed_files_%s_%d.zip", sess.ID, time.Now().Unix()))

	f, err := os.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}

	zw := zip.NewWriter(f)
	count, walkErr := p.addOutputs(zw, sess.OutputDir)

	if err := zw.Close(); err != nil && walkErr == nil {
		walkErr = fmt.Errorf("finalize archive: %w", err)
	}
	if err := f.Close(); err != nil && walkErr == nil {
		walkErr = fmt.Errorf("close archive: %w", err)
	}

	if walkErr != nil {
		os.Remove(zipPath)
		return "", walkErr
	}
	if count == 0 {
		os.Remove(zipPath)
		return "", nil
	}

	if p.metrics != nil {
		p.metrics.ArchivesBuilt.Inc()
	}
	p.logger.Info("archive built",
		slog.String("session_id", sess.ID),
		slog.String("path", zipPath),
		slog.Int("files", count))
	return zipPath, nil
}

// addOutputs walks the output directory, storing each regular file
// under its path relative to the directory root.
func (p *Packager) addOutputs(zw *zip.Writer, outDir string) (int, error) {
	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		return 0, nil
	}

	count := 0
	err := filepath.Walk(outDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(outDir, path)
		if err != nil {
			return err
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, src)
		src.Close()
		if err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("walk output directory: %w", err)
	}
	return count, nil
}
