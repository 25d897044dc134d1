package upload

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docpulse/internal/session"
)

func testValidator() *Validator {
	return NewValidator(50, []string{"pdf", "txt", "csv", "xlsx"}, nil)
}

func TestCheck(t *testing.T) {
	v := testValidator()

	tests := []struct {
		name     string
		filename string
		size     int64
		wantErr  string
	}{
		{name: "valid pdf", filename: "report.pdf", size: 1024},
		{name: "valid with path", filename: "/tmp/upload/report.txt", size: 10},
		{name: "missing file", filename: "", size: 0, wantErr: "no file"},
		{name: "too large", filename: "big.pdf", size: 51 * 1024 * 1024, wantErr: "size limit"},
		{name: "bad extension", filename: "tool.exe", size: 10, wantErr: "unsupported file type"},
		{name: "no extension", filename: "README", size: 10, wantErr: "unsupported file type"},
		{name: "case insensitive extension", filename: "DATA.XLSX", size: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := v.Check(tt.filename, tt.size)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, info.Name)
			assert.NotContains(t, info.Name, "/")
		})
	}
}

func TestSaveWritesIntoSessionInputDir(t *testing.T) {
	store := session.NewStore(t.TempDir(), nil)
	sess, err := store.Create()
	require.NoError(t, err)

	v := testValidator()
	content := "hello,world\n1,2\n"
	info, err := v.Save(sess, "data.csv", int64(len(content)), strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, "data.csv", info.Name)
	data, err := os.ReadFile(info.Path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestSaveEnforcesSizeWhileCopying(t *testing.T) {
	store := session.NewStore(t.TempDir(), nil)
	sess, err := store.Create()
	require.NoError(t, err)

	v := NewValidator(0, []string{"txt"}, nil) // zero MB cap
	// Declared size passes the cap of 0 bytes only if empty; lie about it
	_, err = v.Save(sess, "big.txt", 0, strings.NewReader("more than zero bytes"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size limit")

	// Nothing left behind
	entries, err := os.ReadDir(sess.InputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
