// Package paths provides centralized path handling for autorig.
// It implements XDG Base Directory specification compliance and
// provides a consistent API for all path operations in the codebase.
package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/Dacraezy1/autorig/pkg/errors"
)

// Environment variable names
const (
	// EnvRigFile overrides the default rig configuration file location
	EnvRigFile = "AUTORIG_CONFIG"

	// EnvStateDir overrides the XDG state directory for autorig
	EnvStateDir = "AUTORIG_STATE_DIR"

	// EnvBackupDir overrides the backup directory for autorig
	EnvBackupDir = "AUTORIG_BACKUP_DIR"
)

// AppDirName is the directory name used under the XDG base directories.
const AppDirName = "autorig"

// Paths resolves all autorig-owned directories for a run.
type Paths struct {
	stateDir  string
	backupDir string
	home      string
}

// New creates a Paths instance rooted at the XDG base directories,
// honoring the AUTORIG_* override environment variables.
func New() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrFileAccess, "cannot determine home directory")
	}

	stateDir := os.Getenv(EnvStateDir)
	if stateDir == "" {
		stateDir = filepath.Join(xdg.StateHome, AppDirName)
	}

	backupDir := os.Getenv(EnvBackupDir)
	if backupDir == "" {
		backupDir = filepath.Join(xdg.DataHome, AppDirName, "backups")
	}

	return &Paths{
		stateDir:  stateDir,
		backupDir: backupDir,
		home:      home,
	}, nil
}

// Home returns the user's home directory.
func (p *Paths) Home() string { return p.home }

// StateDir returns the directory holding persisted run state.
func (p *Paths) StateDir() string { return p.stateDir }

// BackupDir returns the directory holding backup snapshots.
func (p *Paths) BackupDir() string { return p.backupDir }

// EnsureDirs creates the state and backup directories if missing.
func (p *Paths) EnsureDirs() error {
	for _, dir := range []string{p.stateDir, p.backupDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", dir)
		}
	}
	return nil
}

// Expand expands ~ and environment variables in a path.
func Expand(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// ValidatePath performs basic validation on a path.
func ValidatePath(path string) error {
	if path == "" {
		return errors.New(errors.ErrInvalidInput, "path cannot be empty")
	}
	if strings.Contains(path, "\x00") {
		return errors.New(errors.ErrInvalidInput, "path contains null bytes")
	}
	if len(path) > 4096 {
		return errors.New(errors.ErrInvalidInput, "path exceeds maximum length")
	}
	return nil
}

// ContainsPath checks if child is contained within parent.
// Both paths are cleaned before comparison.
func ContainsPath(parent, child string) bool {
	parent = filepath.Clean(parent)
	child = filepath.Clean(child)

	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// SanitizeName turns a config name into a safe file name component.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		out = "rig"
	}
	return out
}
