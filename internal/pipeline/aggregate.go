package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"docpulse/internal/session"
)

// Aggregator collects per-stage outputs into one combined report and
// lists the artifacts the run produced.
type Aggregator struct {
	logger *slog.Logger
}

// NewAggregator creates a result aggregator.
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger.With(slog.String("component", "aggregator"))}
}

// BuildReport produces the final markdown report: each stage's raw
// text verbatim under its own heading, in canonical order, followed by
// the output directory listing. The arrangement section prefers the
// arranged-data artifact file over the in-memory text when the file
// parses as JSON; a read or parse failure silently falls back to the
// in-memory text.
func (a *Aggregator) BuildReport(sess *session.Session, texts map[Stage]string) string {
	var b strings.Builder
	b.WriteString("# Complete Processing Report\n\n")

	for _, stage := range CanonicalOrder {
		text := texts[stage]
		if stage == StageArrangement {
			if fromFile, ok := a.arrangedFromFile(sess); ok {
				text = fromFile
			}
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", StageName(stage), text)
	}

	b.WriteString("## Execution Results\n\n")
	fmt.Fprintf(&b, "**Output Directory**: `%s`\n\n", sess.OutputDir)

	files := a.listOutputs(sess)
	if len(files) == 0 {
		b.WriteString("**Execution Status**: No output files found\n")
		return b.String()
	}

	fmt.Fprintf(&b, "**Execution Status**: Success (%d files generated)\n\n", len(files))
	b.WriteString("**Generated Files:**\n")
	for _, f := range files {
		fmt.Fprintf(&b, "- `%s` (%d bytes)\n", f.name, f.size)
	}
	return b.String()
}

// arrangedFromFile reads the arranged-data artifact. The file, written
// by the collaborator's tool execution, is trusted over the network
// response when both exist.
func (a *Aggregator) arrangedFromFile(sess *session.Session) (string, bool) {
	path := filepath.Join(sess.OutputDir, ArrangedDataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}

	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		a.logger.Warn("arranged data file is not valid JSON, using in-memory text",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return "", false
	}

	pretty, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("### Arranged Data\n\n```json\n%s\n```", pretty), true
}

type outputFile struct {
	name string
	size int64
}

func (a *Aggregator) listOutputs(sess *session.Session) []outputFile {
	var files []outputFile
	filepath.Walk(sess.OutputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(sess.OutputDir, path)
		if relErr != nil {
			rel = info.Name()
		}
		files = append(files, outputFile{name: rel, size: info.Size()})
		return nil
	})
	return files
}

// OutputFiles lists artifact paths relative to the output directory.
func (a *Aggregator) OutputFiles(sess *session.Session) []string {
	files := a.listOutputs(sess)
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.name)
	}
	return names
}
