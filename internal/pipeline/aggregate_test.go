package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReportSectionsInCanonicalOrder(t *testing.T) {
	sess := newTestSession(t)
	agg := NewAggregator(nil)

	report := agg.BuildReport(sess, map[Stage]string{
		StageExtraction:  "raw extracted text",
		StageArrangement: "arranged text",
		StageGeneration:  "generation log",
	})

	assert.Contains(t, report, "# Complete Processing Report")
	extIdx := indexOf(t, report, "## Data Extraction")
	arrIdx := indexOf(t, report, "## Data Arrangement")
	genIdx := indexOf(t, report, "## Excel Generation")
	execIdx := indexOf(t, report, "## Execution Results")
	assert.Less(t, extIdx, arrIdx)
	assert.Less(t, arrIdx, genIdx)
	assert.Less(t, genIdx, execIdx)

	assert.Contains(t, report, "raw extracted text")
	assert.Contains(t, report, "No output files found")
}

func TestBuildReportSkipsEmptyStages(t *testing.T) {
	sess := newTestSession(t)
	agg := NewAggregator(nil)

	report := agg.BuildReport(sess, map[Stage]string{
		StageExtraction: "only extraction ran",
	})

	assert.Contains(t, report, "## Data Extraction")
	assert.NotContains(t, report, "## Data Arrangement")
	assert.NotContains(t, report, "## Excel Generation")
}

func TestBuildReportPrefersArrangedDataFile(t *testing.T) {
	sess := newTestSession(t)
	agg := NewAggregator(nil)

	artifact := filepath.Join(sess.OutputDir, ArrangedDataFile)
	require.NoError(t, os.WriteFile(artifact, []byte(`{"tables":[{"name":"summary"}]}`), 0o644))

	report := agg.BuildReport(sess, map[Stage]string{
		StageArrangement: "stale in-memory arrangement",
	})

	// The written artifact supersedes the in-memory text
	assert.Contains(t, report, `"summary"`)
	assert.Contains(t, report, "```json")
	assert.NotContains(t, report, "stale in-memory arrangement")
}

func TestBuildReportFallsBackOnInvalidArtifact(t *testing.T) {
	sess := newTestSession(t)
	agg := NewAggregator(nil)

	artifact := filepath.Join(sess.OutputDir, ArrangedDataFile)
	require.NoError(t, os.WriteFile(artifact, []byte("not json at all"), 0o644))

	report := agg.BuildReport(sess, map[Stage]string{
		StageArrangement: "in-memory arrangement",
	})

	assert.Contains(t, report, "in-memory arrangement")
}

func TestBuildReportListsOutputFiles(t *testing.T) {
	sess := newTestSession(t)
	agg := NewAggregator(nil)

	require.NoError(t, os.WriteFile(filepath.Join(sess.OutputDir, "report.xlsx"), []byte("xlsx"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(sess.OutputDir, "charts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sess.OutputDir, "charts", "trend.png"), []byte("png"), 0o644))

	report := agg.BuildReport(sess, map[Stage]string{StageExtraction: "x"})

	assert.Contains(t, report, "Success (2 files generated)")
	assert.Contains(t, report, "report.xlsx")
	assert.Contains(t, report, filepath.Join("charts", "trend.png"))

	files := agg.OutputFiles(sess)
	assert.ElementsMatch(t, []string{"report.xlsx", filepath.Join("charts", "trend.png")}, files)
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	idx := strings.Index(haystack, needle)
	require.GreaterOrEqual(t, idx, 0, "missing %q", needle)
	return idx
}
