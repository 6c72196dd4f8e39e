// Package backup creates and restores manifest-indexed archive snapshots
// of dotfile targets. A snapshot is a compressed tarball holding a
// manifest.json index plus the backed-up file contents; restores verify
// every entry's checksum and path before anything is written.
package backup

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dacraezy1/autorig/pkg/config"
	"github.com/Dacraezy1/autorig/pkg/errors"
	"github.com/Dacraezy1/autorig/pkg/logging"
	"github.com/Dacraezy1/autorig/pkg/oplog"
	"github.com/Dacraezy1/autorig/pkg/paths"
	"github.com/Dacraezy1/autorig/pkg/security"
)

// Manager creates and restores snapshots for one rig.
type Manager struct {
	logger       zerolog.Logger
	backupDir    string
	allowedRoots []string
}

// New creates a backup manager writing under backupDir. Restored targets
// must resolve inside allowedRoots.
func New(backupDir string, allowedRoots []string) *Manager {
	return &Manager{
		logger:       logging.GetLogger("backup"),
		backupDir:    backupDir,
		allowedRoots: allowedRoots,
	}
}

// NextArchivePath returns the path the next snapshot of this rig would be
// written to. Callers that log the write resolve the path first so the
// record precedes the mutation.
func (m *Manager) NextArchivePath(rig *config.Rig) string {
	return filepath.Join(m.backupDir,
		fmt.Sprintf("%s_%s.tar.gz", paths.SanitizeName(rig.Name), time.Now().Format("20060102-150405")))
}

// Snapshot archives every resolved dotfile target that currently exists
// and returns the path of the written archive. Targets are stored under
// relative names with their mode and a content checksum recorded in the
// manifest.
func (m *Manager) Snapshot(rig *config.Rig) (string, *Manifest, error) {
	archivePath := m.NextArchivePath(rig)
	manifest, err := m.SnapshotTo(archivePath, rig)
	if err != nil {
		return "", nil, err
	}
	return archivePath, manifest, nil
}

// SnapshotTo writes the snapshot archive to archivePath.
func (m *Manager) SnapshotTo(archivePath string, rig *config.Rig) (*Manifest, error) {
	if err := os.MkdirAll(m.backupDir, 0755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrDirCreate, "cannot create backup dir %s", m.backupDir)
	}

	manifest := &Manifest{
		ConfigName: rig.Name,
		Timestamp:  time.Now(),
	}

	f, err := os.Create(archivePath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrBackupCreate, "cannot create archive %s", archivePath)
	}
	defer func() { _ = f.Close() }()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	type stored struct {
		entry   Entry
		content []byte
	}
	var files []stored

	for _, df := range rig.Dotfiles {
		target := paths.Expand(df.Target)
		info, err := os.Stat(target)
		if err != nil || info.IsDir() {
			continue
		}

		name := archiveName(target)
		if name == "" {
			m.logger.Warn().Str("target", target).Msg("Skipping target with unsafe archive name")
			continue
		}

		content, err := os.ReadFile(target)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrBackupCreate, "cannot read %s", target)
		}

		sum := sha256.Sum256(content)
		files = append(files, stored{
			entry: Entry{
				Target: target,
				Name:   name,
				Mode:   info.Mode().Perm(),
				SHA256: hex.EncodeToString(sum[:]),
			},
			content: content,
		})
	}

	for _, s := range files {
		manifest.Entries = append(manifest.Entries, s.entry)
	}

	// Manifest goes in first so restores can index before reading content.
	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrBackupCreate, "cannot encode manifest")
	}
	if err := writeTarEntry(tw, ManifestName, 0644, manifestData); err != nil {
		return nil, err
	}

	for _, s := range files {
		if err := writeTarEntry(tw, s.entry.Name, s.entry.Mode, s.content); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrBackupCreate, "cannot finalize archive")
	}
	if err := gz.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrBackupCreate, "cannot finalize archive")
	}

	m.logger.Info().
		Str("archive", archivePath).
		Int("files", len(manifest.Entries)).
		Msg("Snapshot created")

	return manifest, nil
}

// Restore reads a snapshot archive and writes every manifest entry back to
// its target. Each target's current state is recorded in the operation log
// before it is overwritten, so a restore can itself be rolled back. A
// checksum mismatch between manifest and content is a hard failure.
func (m *Manager) Restore(archivePath string, log *oplog.Log) (*Manifest, error) {
	manifest, contents, err := readArchive(archivePath)
	if err != nil {
		return nil, err
	}

	for _, entry := range manifest.Entries {
		if res := security.ValidatePath(entry.Target, m.allowedRoots); !res.OK {
			return nil, errors.Newf(errors.ErrUnsafePath,
				"archive entry %s rejected: %s", entry.Target, res.Reason)
		}
		if !safeArchiveName(entry.Name) {
			return nil, errors.Newf(errors.ErrUnsafePath,
				"archive entry has unsafe stored name: %s", entry.Name)
		}
	}

	for _, entry := range manifest.Entries {
		content, ok := contents[entry.Name]
		if !ok {
			return nil, errors.Newf(errors.ErrBackupRestore,
				"archive is missing content for %s", entry.Name)
		}

		sum := sha256.Sum256(content)
		if hex.EncodeToString(sum[:]) != entry.SHA256 {
			return nil, errors.Newf(errors.ErrBackupIntegrity,
				"checksum mismatch for %s", entry.Target)
		}

		h, err := log.Begin(oplog.KindFileRestore, entry.Target)
		if err != nil {
			return nil, err
		}

		if err := os.MkdirAll(filepath.Dir(entry.Target), 0755); err != nil {
			return nil, errors.Wrapf(err, errors.ErrDirCreate, "cannot create parent of %s", entry.Target)
		}
		// An existing symlink must be removed first or the write would
		// follow it.
		if info, err := os.Lstat(entry.Target); err == nil && info.Mode()&os.ModeSymlink != 0 {
			if err := os.Remove(entry.Target); err != nil {
				return nil, errors.Wrapf(err, errors.ErrFileWrite, "cannot replace symlink %s", entry.Target)
			}
		}
		if err := os.WriteFile(entry.Target, content, entry.Mode); err != nil {
			return nil, errors.Wrapf(err, errors.ErrFileWrite, "cannot restore %s", entry.Target)
		}
		if err := os.Chmod(entry.Target, entry.Mode); err != nil {
			return nil, errors.Wrapf(err, errors.ErrFileWrite, "cannot set mode on %s", entry.Target)
		}

		log.Commit(h)
		m.logger.Info().Str("target", entry.Target).Msg("Restored")
	}

	return manifest, nil
}

// Latest returns the newest snapshot in the backup directory, or an error
// if none exist.
func (m *Manager) Latest() (string, error) {
	snapshots, err := m.List()
	if err != nil {
		return "", err
	}
	if len(snapshots) == 0 {
		return "", errors.New(errors.ErrNotFound, "no snapshots found")
	}
	return snapshots[len(snapshots)-1], nil
}

// List returns all snapshot paths sorted oldest first.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.backupDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "cannot read backup dir %s", m.backupDir)
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".tar.gz") {
			out = append(out, filepath.Join(m.backupDir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func writeTarEntry(tw *tar.Writer, name string, mode os.FileMode, content []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    int64(mode),
		Size:    int64(len(content)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, errors.ErrBackupCreate, "cannot write archive entry %s", name)
	}
	if _, err := tw.Write(content); err != nil {
		return errors.Wrapf(err, errors.ErrBackupCreate, "cannot write archive entry %s", name)
	}
	return nil
}

// readArchive loads the manifest and all stored contents from a snapshot.
func readArchive(archivePath string) (*Manifest, map[string][]byte, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, errors.ErrNotFound, "snapshot not found: %s", archivePath)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, nil, errors.Wrapf(err, errors.ErrBackupRestore, "invalid archive: %s", archivePath)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	var manifest *Manifest
	contents := make(map[string][]byte)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, errors.ErrBackupRestore, "corrupt archive: %s", archivePath)
		}

		if !safeArchiveName(hdr.Name) {
			return nil, nil, errors.Newf(errors.ErrUnsafePath,
				"dangerous path in archive: %s", hdr.Name)
		}

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil { //nolint:gosec // snapshot sizes are bounded by dotfile targets
			return nil, nil, errors.Wrapf(err, errors.ErrBackupRestore, "corrupt archive entry: %s", hdr.Name)
		}

		if hdr.Name == ManifestName {
			var mf Manifest
			if err := json.Unmarshal(buf.Bytes(), &mf); err != nil {
				return nil, nil, errors.Wrap(err, errors.ErrBackupRestore, "corrupt manifest")
			}
			manifest = &mf
			continue
		}
		contents[hdr.Name] = buf.Bytes()
	}

	if manifest == nil {
		return nil, nil, errors.Newf(errors.ErrBackupRestore, "archive has no %s", ManifestName)
	}
	return manifest, contents, nil
}

// archiveName converts an absolute target path into a safe relative
// archive name, or returns "" when that is not possible.
func archiveName(target string) string {
	name := strings.TrimLeft(filepath.ToSlash(filepath.Clean(target)), "/")
	if !safeArchiveName(name) {
		return ""
	}
	return name
}

func safeArchiveName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
		return false
	}
	return !strings.Contains(name, ":")
}
