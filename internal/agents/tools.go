package agents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nexxia-ai/aigentic/ai"
)

// fileTools exposes a session output directory to agents. Every path
// argument is flattened to its base name so a model cannot write or
// read outside the directory.
type fileTools struct {
	outDir string
}

func newFileTools(outDir string) *fileTools {
	return &fileTools{outDir: outDir}
}

type saveFileInput struct {
	Filename string `json:"filename" description:"Name of the file to create in the output directory"`
	Content  string `json:"content" description:"Full file content to write"`
}

type readFileInput struct {
	Filename string `json:"filename" description:"Name of the file to read from the output directory"`
}

type listFilesInput struct {
	Pattern string `json:"pattern,omitempty" description:"Optional glob pattern, e.g. *.json"`
}

func (f *fileTools) saveTool() ai.Tool {
	return *ai.NewTool(
		"save_output_file",
		"Saves a file into the session output directory, overwriting any existing file with the same name.",
		func(_ context.Context, in saveFileInput) (string, error) {
			path, err := f.resolve(in.Filename)
			if err != nil {
				return "", err
			}
			if err := os.WriteFile(path, []byte(in.Content), 0o644); err != nil {
				return "", fmt.Errorf("write %s: %w", in.Filename, err)
			}
			return fmt.Sprintf("saved %s (%d bytes)", filepath.Base(path), len(in.Content)), nil
		},
	)
}

func (f *fileTools) readTool() ai.Tool {
	return *ai.NewTool(
		"read_output_file",
		"Reads a previously saved file from the session output directory.",
		func(_ context.Context, in readFileInput) (string, error) {
			path, err := f.resolve(in.Filename)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("read %s: %w", in.Filename, err)
			}
			return string(data), nil
		},
	)
}

func (f *fileTools) listTool() ai.Tool {
	return *ai.NewTool(
		"list_output_files",
		"Lists the files currently present in the session output directory.",
		func(_ context.Context, in listFilesInput) (string, error) {
			entries, err := os.ReadDir(f.outDir)
			if err != nil {
				return "", fmt.Errorf("list output directory: %w", err)
			}
			var names []string
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				if in.Pattern != "" {
					if ok, _ := filepath.Match(in.Pattern, e.Name()); !ok {
						continue
					}
				}
				names = append(names, e.Name())
			}
			if len(names) == 0 {
				return "no files in output directory", nil
			}
			return strings.Join(names, "\n"), nil
		},
	)
}

// resolve maps a model-supplied filename onto the output directory,
// rejecting empty names and stripping any path components.
func (f *fileTools) resolve(name string) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid filename %q", name)
	}
	return filepath.Join(f.outDir, base), nil
}
