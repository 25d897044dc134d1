package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAllocatesDirectories(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	sess, err := store.Create()
	require.NoError(t, err)

	assert.Len(t, sess.ID, 8)
	for _, dir := range []string{sess.InputDir, sess.OutputDir, sess.TempDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestCreateIsIdempotentOnExistingDirs(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, nil)

	sess, err := store.Create()
	require.NoError(t, err)

	// Re-materializing the same tree must not fail
	_, err = store.materialize(sess.ID)
	require.NoError(t, err)
}

// stubIDs makes Create draw ids from a fixed sequence.
func stubIDs(t *testing.T, ids ...string) {
	t.Helper()
	orig := newID
	t.Cleanup(func() { newID = orig })
	i := 0
	newID = func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func TestCreateRetriesOnIDCollision(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "aaaa1111"), 0o755))
	stubIDs(t, "aaaa1111", "bbbb2222")

	store := NewStore(root, nil)
	sess, err := store.Create()
	require.NoError(t, err)
	assert.Equal(t, "bbbb2222", sess.ID)
}

func TestCreateFailsWhenBothIDsCollide(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "aaaa1111"), 0o755))
	stubIDs(t, "aaaa1111")

	store := NewStore(root, nil)
	_, err := store.Create()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collision")
}

func TestResetProducesFreshIDAndKeepsOldFiles(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	old, err := store.Create()
	require.NoError(t, err)

	marker := filepath.Join(old.OutputDir, "artifact.txt")
	require.NoError(t, os.WriteFile(marker, []byte("kept"), 0o644))

	fresh, err := store.Reset(old)
	require.NoError(t, err)

	assert.NotEqual(t, old.ID, fresh.ID)

	// Old session's files survive the reset
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(data))
}

func TestGet(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	sess, err := store.Create()
	require.NoError(t, err)

	got, err := store.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, sess.OutputDir, got.OutputDir)

	_, err = store.Get("ffffffff")
	assert.Error(t, err)

	_, err = store.Get("../../etc")
	assert.Error(t, err)
}

func TestSweepRemovesOnlyOldSessions(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, nil)

	oldSess, err := store.Create()
	require.NoError(t, err)
	freshSess, err := store.Create()
	require.NoError(t, err)

	// Age the first session past the cutoff
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, oldSess.ID), past, past))

	removed := store.Sweep(24 * time.Hour)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(filepath.Join(root, oldSess.ID))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, freshSess.ID))
	assert.NoError(t, err)
}

func TestSweepMissingRootIsBestEffort(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "absent"), nil)
	assert.Equal(t, 0, store.Sweep(time.Hour))
}
