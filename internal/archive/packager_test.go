package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docpulse/internal/session"
)

func newSession(t *testing.T) *session.Session {
	t.Helper()
	store := session.NewStore(t.TempDir(), nil)
	sess, err := store.Create()
	require.NoError(t, err)
	return sess
}

func TestPackageBundlesAllOutputFiles(t *testing.T) {
	sess := newSession(t)
	require.NoError(t, os.WriteFile(filepath.Join(sess.OutputDir, "report.xlsx"), []byte("workbook"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(sess.OutputDir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sess.OutputDir, "data", "arranged.json"), []byte("{}"), 0o644))

	p := NewPackager(nil, nil)
	zipPath, err := p.Package(sess)
	require.NoError(t, err)
	require.NotEmpty(t, zipPath)
	t.Cleanup(func() { os.Remove(zipPath) })

	assert.True(t, strings.HasPrefix(filepath.Base(zipPath), "processed_files_"+sess.ID+"_"))
	assert.True(t, strings.HasSuffix(zipPath, ".zip"))

	r, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"report.xlsx", "data/arranged.json"}, names)
}

func TestPackageEmptyOutputReturnsNoArchive(t *testing.T) {
	sess := newSession(t)

	p := NewPackager(nil, nil)
	zipPath, err := p.Package(sess)
	require.NoError(t, err)
	assert.Empty(t, zipPath)

	// No stray zip left behind for this session
	entries, err := os.ReadDir(os.TempDir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "processed_files_"+sess.ID+"_"))
	}
}

func TestPackageMissingOutputDirReturnsNoArchive(t *testing.T) {
	sess := newSession(t)
	require.NoError(t, os.RemoveAll(sess.OutputDir))

	p := NewPackager(nil, nil)
	zipPath, err := p.Package(sess)
	require.NoError(t, err)
	assert.Empty(t, zipPath)
}

func TestPackageArchiveContentsRoundTrip(t *testing.T) {
	sess := newSession(t)
	require.NoError(t, os.WriteFile(filepath.Join(sess.OutputDir, "summary.txt"), []byte("final numbers"), 0o644))

	p := NewPackager(nil, nil)
	zipPath, err := p.Package(sess)
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(zipPath) })

	r, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer r.Close()

	require.Len(t, r.File, 1)
	rc, err := r.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()

	buf := make([]byte, 64)
	n, _ := rc.Read(buf)
	assert.Equal(t, "final numbers", string(buf[:n]))
}
