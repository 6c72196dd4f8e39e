package oplog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginCapturesPriorState(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing")
	require.NoError(t, os.WriteFile(existing, []byte("before"), 0640))

	log := New(Options{})

	h, err := log.Begin(KindFileBackup, existing)
	require.NoError(t, err)
	log.Commit(h)

	h2, err := log.Begin(KindSymlinkCreate, filepath.Join(dir, "absent"))
	require.NoError(t, err)
	log.Commit(h2)

	recs := log.Records()
	require.Len(t, recs, 2)

	assert.True(t, recs[0].Prior.Existed)
	assert.Equal(t, []byte("before"), recs[0].Prior.Content)
	assert.Equal(t, os.FileMode(0640), recs[0].Prior.Mode)
	assert.True(t, recs[0].Committed)

	assert.False(t, recs[1].Prior.Existed)
	assert.Equal(t, 2, log.CommittedCount())
}

func TestBeginCapturesSymlink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink("/somewhere/else", link))

	log := New(Options{})
	_, err := log.Begin(KindSymlinkCreate, link)
	require.NoError(t, err)

	rec := log.Records()[0]
	assert.True(t, rec.Prior.IsSymlink)
	assert.Equal(t, "/somewhere/else", rec.Prior.LinkDest)
}

func TestRollbackRestoresReverseOrder(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(file, []byte("original"), 0600))

	log := New(Options{})

	// First mutation: overwrite the file.
	h1, err := log.Begin(KindFileBackup, file)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, []byte("changed"), 0644))
	log.Commit(h1)

	// Second mutation: replace the file with a symlink.
	h2, err := log.Begin(KindSymlinkCreate, file)
	require.NoError(t, err)
	require.NoError(t, os.Remove(file))
	require.NoError(t, os.Symlink("/elsewhere", file))
	log.Commit(h2)

	results, err := log.RollbackAll()
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Newest first: symlink record before file record.
	assert.Equal(t, KindSymlinkCreate, results[0].Record.Kind)
	assert.True(t, results[0].Undone)
	assert.Equal(t, KindFileBackup, results[1].Record.Kind)
	assert.True(t, results[1].Undone)

	content, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "original", string(content))

	info, err := os.Lstat(file)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	assert.Zero(t, info.Mode()&os.ModeSymlink)
}

func TestRollbackRemovesCreatedTarget(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, ".bashrc")

	log := New(Options{})
	h, err := log.Begin(KindSymlinkCreate, link)
	require.NoError(t, err)
	require.NoError(t, os.Symlink("/src/bashrc", link))
	log.Commit(h)

	_, err = log.RollbackAll()
	require.NoError(t, err)

	_, err = os.Lstat(link)
	assert.True(t, os.IsNotExist(err))
}

func TestRollbackReportsIrreversibleKinds(t *testing.T) {
	dir := t.TempDir()
	clone := filepath.Join(dir, "repo")

	log := New(Options{})
	h, err := log.Begin(KindRepoClone, clone)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(clone, ".git"), 0755))
	log.Commit(h)

	h2, err := log.Begin(KindPackageInstall, "vim curl")
	require.NoError(t, err)
	log.Commit(h2)

	results, err := log.RollbackAll()
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, res := range results {
		assert.True(t, res.Irreversible)
		assert.False(t, res.Undone)
	}

	// The clone is reported, never deleted.
	_, statErr := os.Stat(clone)
	assert.NoError(t, statErr)
}

func TestRollbackSkipsUncommitted(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")

	log := New(Options{})
	_, err := log.Begin(KindSymlinkCreate, file)
	require.NoError(t, err)
	require.NoError(t, os.Symlink("/x", file))
	// No commit: the mutation never succeeded from the log's view.

	results, err := log.RollbackAll()
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDryRunNeverMutates(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("keep"), 0644))

	log := New(Options{DryRun: true})
	h, err := log.Begin(KindFileBackup, file)
	require.NoError(t, err)
	log.Commit(h)

	rec := log.Records()[0]
	assert.True(t, rec.Simulated)
	assert.True(t, rec.Committed)

	results, err := log.RollbackAll()
	require.NoError(t, err)
	assert.Empty(t, results, "simulated records are never rolled back")

	content, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(content))
}

func TestPersistAndLoad(t *testing.T) {
	dir := t.TempDir()
	persist := filepath.Join(dir, "state", "run.json")
	target := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0644))

	log := New(Options{PersistPath: persist})
	h, err := log.Begin(KindFileBackup, target)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(target, []byte("v2"), 0644))
	log.Commit(h)

	loaded, err := Load(persist)
	require.NoError(t, err)
	recs := loaded.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, KindFileBackup, recs[0].Kind)
	assert.Equal(t, []byte("v1"), recs[0].Prior.Content)

	// Rolling back the loaded log restores the original content.
	_, err = loaded.RollbackAll()
	require.NoError(t, err)
	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(content))

	log.Discard()
	_, err = os.Stat(persist)
	assert.True(t, os.IsNotExist(err))
}

func TestRollbackFailureIsSurfaced(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not bind root")
	}
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0755))
	target := filepath.Join(sub, "f")

	log := New(Options{})
	h, err := log.Begin(KindSymlinkCreate, target)
	require.NoError(t, err)
	require.NoError(t, os.Symlink("/x", target))
	log.Commit(h)

	// Make the parent read-only so removal fails.
	require.NoError(t, os.Chmod(sub, 0555))
	t.Cleanup(func() { _ = os.Chmod(sub, 0755) })

	results, err := log.RollbackAll()
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.False(t, results[0].Undone)
}
