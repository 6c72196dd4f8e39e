package backup

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dacraezy1/autorig/pkg/config"
	"github.com/Dacraezy1/autorig/pkg/oplog"
)

func testRig(t *testing.T, targets ...string) *config.Rig {
	t.Helper()
	rig := &config.Rig{Name: "test rig", Dir: t.TempDir()}
	for _, target := range targets {
		rig.Dotfiles = append(rig.Dotfiles, config.Dotfile{
			Source: filepath.Base(target),
			Target: target,
		})
	}
	return rig
}

func TestSnapshotAndRestoreRoundTrip(t *testing.T) {
	home := t.TempDir()
	target := filepath.Join(home, ".bashrc")
	require.NoError(t, os.WriteFile(target, []byte("export PATH=original"), 0640))

	mgr := New(t.TempDir(), []string{home})
	rig := testRig(t, target)

	archivePath, manifest, err := mgr.Snapshot(rig)
	require.NoError(t, err)
	require.Len(t, manifest.Entries, 1)
	assert.Equal(t, target, manifest.Entries[0].Target)
	assert.Equal(t, os.FileMode(0640), manifest.Entries[0].Mode)
	assert.NotEmpty(t, manifest.Entries[0].SHA256)
	assert.FileExists(t, archivePath)

	// Mutate the target, then restore.
	require.NoError(t, os.WriteFile(target, []byte("export PATH=mutated"), 0644))

	log := oplog.New(oplog.Options{})
	restored, err := mgr.Restore(archivePath, log)
	require.NoError(t, err)
	require.Len(t, restored.Entries, 1)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "export PATH=original", string(content))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())
}

func TestRestoreIsItselfRollbackable(t *testing.T) {
	home := t.TempDir()
	target := filepath.Join(home, ".vimrc")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0644))

	mgr := New(t.TempDir(), []string{home})
	archivePath, _, err := mgr.Snapshot(testRig(t, target))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(target, []byte("v2"), 0644))

	log := oplog.New(oplog.Options{})
	_, err = mgr.Restore(archivePath, log)
	require.NoError(t, err)

	// Rolling back the restore puts the mutated content back.
	_, err = log.RollbackAll()
	require.NoError(t, err)
	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))
}

func TestSnapshotSkipsMissingTargets(t *testing.T) {
	home := t.TempDir()
	existing := filepath.Join(home, ".bashrc")
	require.NoError(t, os.WriteFile(existing, []byte("here"), 0644))

	mgr := New(t.TempDir(), []string{home})
	rig := testRig(t, existing, filepath.Join(home, ".absent"))

	_, manifest, err := mgr.Snapshot(rig)
	require.NoError(t, err)
	require.Len(t, manifest.Entries, 1)
	assert.Equal(t, existing, manifest.Entries[0].Target)
}

func TestRestoreRejectsChecksumMismatch(t *testing.T) {
	home := t.TempDir()
	target := filepath.Join(home, ".bashrc")
	require.NoError(t, os.WriteFile(target, []byte("content"), 0644))

	mgr := New(t.TempDir(), []string{home})
	archivePath, _, err := mgr.Snapshot(testRig(t, target))
	require.NoError(t, err)

	tampered := tamperArchive(t, archivePath, func(name string, content []byte) []byte {
		if name != ManifestName {
			return []byte("tampered!")
		}
		return content
	})

	log := oplog.New(oplog.Options{})
	_, err = mgr.Restore(tampered, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKUP_INTEGRITY")
}

func TestRestoreRejectsTraversalEntries(t *testing.T) {
	home := t.TempDir()
	outside := t.TempDir()

	mgr := New(t.TempDir(), []string{home})

	// Build a hostile archive whose manifest points outside the allowed roots.
	manifest := Manifest{
		ConfigName: "evil",
		Timestamp:  time.Now(),
		Entries: []Entry{{
			Target: filepath.Join(outside, "escape"),
			Name:   "escape",
			Mode:   0644,
			SHA256: "00",
		}},
	}
	archivePath := writeHostileArchive(t, manifest, map[string][]byte{"escape": []byte("x")})

	log := oplog.New(oplog.Options{})
	_, err := mgr.Restore(archivePath, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNSAFE_PATH")

	_, statErr := os.Stat(filepath.Join(outside, "escape"))
	assert.True(t, os.IsNotExist(statErr), "nothing may be written outside allowed roots")
}

func TestLatest(t *testing.T) {
	backupDir := t.TempDir()
	mgr := New(backupDir, nil)

	_, err := mgr.Latest()
	require.Error(t, err)

	for _, name := range []string{"rig_20240101-000000.tar.gz", "rig_20250101-000000.tar.gz"} {
		require.NoError(t, os.WriteFile(filepath.Join(backupDir, name), nil, 0644))
	}

	latest, err := mgr.Latest()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(backupDir, "rig_20250101-000000.tar.gz"), latest)
}

// tamperArchive rewrites an archive, applying fn to every entry's content.
func tamperArchive(t *testing.T, path string, fn func(string, []byte) []byte) string {
	t.Helper()

	manifest, contents, err := readArchive(path)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "tampered.tar.gz")
	f, err := os.Create(out)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	require.NoError(t, err)
	require.NoError(t, writeTarEntry(tw, ManifestName, 0644, fn(ManifestName, manifestData)))
	for name, content := range contents {
		require.NoError(t, writeTarEntry(tw, name, 0644, fn(name, content)))
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return out
}

func writeHostileArchive(t *testing.T, manifest Manifest, contents map[string][]byte) string {
	t.Helper()

	out := filepath.Join(t.TempDir(), "hostile.tar.gz")
	f, err := os.Create(out)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	manifestData, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, writeTarEntry(tw, ManifestName, 0644, manifestData))
	for name, content := range contents {
		require.NoError(t, writeTarEntry(tw, name, 0644, content))
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return out
}
