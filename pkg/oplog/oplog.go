// Package oplog implements the append-only operation log that makes a run
// reversible. Every mutating action is recorded before it is attempted,
// with a snapshot of the target's prior state, and marked committed only
// once the mutation succeeds. The log has exactly one writer: the
// orchestrator goroutine that drives the pipeline.
package oplog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dacraezy1/autorig/pkg/errors"
	"github.com/Dacraezy1/autorig/pkg/logging"
)

// Kind identifies the category of a mutating action.
type Kind string

const (
	KindSymlinkCreate  Kind = "symlink-create"
	KindSymlinkRemove  Kind = "symlink-remove"
	KindFileBackup     Kind = "file-backup"
	KindArchiveWrite   Kind = "archive-write"
	KindFileRestore    Kind = "file-restore"
	KindRepoClone      Kind = "repo-clone"
	KindRepoUpdate     Kind = "repo-update"
	KindPackageInstall Kind = "package-install"
	KindScriptRun      Kind = "script-run"
	KindHookRun        Kind = "hook-run"
)

// reversible reports whether rollback can undo a record of this kind by
// restoring the captured prior state of its target path. Repository
// clones are deliberately irreversible: deleting a freshly cloned tree is
// destructive and is only reported, never performed.
func (k Kind) reversible() bool {
	switch k {
	case KindSymlinkCreate, KindSymlinkRemove, KindFileBackup, KindArchiveWrite, KindFileRestore:
		return true
	}
	return false
}

// PriorState is the snapshot of a target taken before mutation.
type PriorState struct {
	Existed   bool        `json:"existed"`
	IsSymlink bool        `json:"is_symlink,omitempty"`
	IsDir     bool        `json:"is_dir,omitempty"`
	LinkDest  string      `json:"link_dest,omitempty"`
	Mode      os.FileMode `json:"mode,omitempty"`
	Content   []byte      `json:"content,omitempty"`
}

// Record is one logged mutating action.
type Record struct {
	Seq       int        `json:"seq"`
	Kind      Kind       `json:"kind"`
	Target    string     `json:"target"`
	Prior     PriorState `json:"prior"`
	Committed bool       `json:"committed"`
	Simulated bool       `json:"simulated"`
	Timestamp time.Time  `json:"timestamp"`
}

// Handle refers to an open record awaiting commit.
type Handle int

// Log is the per-run operation log.
type Log struct {
	logger      zerolog.Logger
	records     []*Record
	dryRun      bool
	persistPath string
}

// Options configures a Log.
type Options struct {
	// DryRun marks every record as simulated; no rollback action will
	// ever touch the filesystem.
	DryRun bool
	// PersistPath, when set, mirrors the log to a JSON file after every
	// commit so an interrupted run can still be rolled back.
	PersistPath string
}

// New creates an empty operation log.
func New(opts Options) *Log {
	return &Log{
		logger:      logging.GetLogger("oplog"),
		dryRun:      opts.DryRun,
		persistPath: opts.PersistPath,
	}
}

// Begin captures the prior state of target and appends an uncommitted
// record. The caller performs the mutation and then calls Commit.
func (l *Log) Begin(kind Kind, target string) (Handle, error) {
	prior, err := capture(target)
	if err != nil {
		return -1, errors.Wrapf(err, errors.ErrFileAccess,
			"cannot capture prior state of %s", target)
	}

	rec := &Record{
		Seq:       len(l.records),
		Kind:      kind,
		Target:    target,
		Prior:     prior,
		Simulated: l.dryRun,
		Timestamp: time.Now(),
	}
	l.records = append(l.records, rec)

	l.logger.Debug().
		Str("kind", string(kind)).
		Str("target", target).
		Bool("existed", prior.Existed).
		Bool("simulated", rec.Simulated).
		Msg("Operation begun")

	return Handle(rec.Seq), nil
}

// Commit marks the record as committed. In dry-run mode the record stays
// simulated; it counts toward the plan but never toward rollback work.
func (l *Log) Commit(h Handle) {
	if int(h) < 0 || int(h) >= len(l.records) {
		l.logger.Error().Int("handle", int(h)).Msg("Commit with invalid handle")
		return
	}
	rec := l.records[h]
	rec.Committed = true

	l.logger.Debug().
		Str("kind", string(rec.Kind)).
		Str("target", rec.Target).
		Msg("Operation committed")

	if l.persistPath != "" && !l.dryRun {
		if err := l.persist(); err != nil {
			l.logger.Warn().Err(err).Str("path", l.persistPath).Msg("Failed to persist operation log")
		}
	}
}

// Records returns a copy of the log entries in append order.
func (l *Log) Records() []Record {
	out := make([]Record, len(l.records))
	for i, r := range l.records {
		out[i] = *r
	}
	return out
}

// CommittedCount returns the number of committed records.
func (l *Log) CommittedCount() int {
	n := 0
	for _, r := range l.records {
		if r.Committed {
			n++
		}
	}
	return n
}

// Discard removes the persisted mirror after a successful run.
func (l *Log) Discard() {
	if l.persistPath == "" {
		return
	}
	if err := os.Remove(l.persistPath); err != nil && !os.IsNotExist(err) {
		l.logger.Warn().Err(err).Str("path", l.persistPath).Msg("Failed to remove persisted log")
	}
}

func (l *Log) persist() error {
	if err := os.MkdirAll(filepath.Dir(l.persistPath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(l.records, "", "  ")
	if err != nil {
		return err
	}
	tmp := l.persistPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, l.persistPath)
}

// Load reads a persisted operation log, as left behind by an interrupted
// run, so its committed records can be rolled back.
func Load(path string) (*Log, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "cannot read operation log %s", path)
	}
	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigParse, "corrupt operation log %s", path)
	}
	return &Log{
		logger:      logging.GetLogger("oplog"),
		records:     records,
		persistPath: path,
	}, nil
}

// capture snapshots the current state of a path. Absence is a valid state.
func capture(target string) (PriorState, error) {
	info, err := os.Lstat(target)
	if os.IsNotExist(err) {
		return PriorState{Existed: false}, nil
	}
	if err != nil {
		return PriorState{}, err
	}

	state := PriorState{
		Existed: true,
		Mode:    info.Mode().Perm(),
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		state.IsSymlink = true
		dest, err := os.Readlink(target)
		if err != nil {
			return PriorState{}, err
		}
		state.LinkDest = dest
	case info.IsDir():
		state.IsDir = true
	default:
		content, err := os.ReadFile(target)
		if err != nil {
			return PriorState{}, err
		}
		state.Content = content
	}

	return state, nil
}
