// Package dotfiles links the rig's dotfile sources into place. Sources
// live next to the rig file; targets become symlinks pointing back at
// them. Template sources are rendered into the state directory first and
// the target links to the rendered copy.
package dotfiles

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dacraezy1/autorig/pkg/config"
	"github.com/Dacraezy1/autorig/pkg/errors"
	"github.com/Dacraezy1/autorig/pkg/logging"
	"github.com/Dacraezy1/autorig/pkg/oplog"
	"github.com/Dacraezy1/autorig/pkg/paths"
	"github.com/Dacraezy1/autorig/pkg/security"
	"github.com/Dacraezy1/autorig/pkg/template"
)

// Action is the per-dotfile outcome.
type Action string

const (
	ActionLinked    Action = "linked"
	ActionUnchanged Action = "unchanged"
	ActionSkipped   Action = "skipped"
)

// Result reports what happened to one dotfile.
type Result struct {
	Dotfile config.Dotfile
	// Source is the resolved link destination; for templates this is the
	// rendered copy, not the .tmpl source.
	Source string
	Target string
	Action Action
	// BackupPath is set when an existing unmanaged file or symlink was
	// moved aside.
	BackupPath string
}

// Linker runs the dotfiles phase.
type Linker struct {
	logger       zerolog.Logger
	log          *oplog.Log
	rigDir       string
	renderDir    string
	vars         map[string]string
	allowedRoots []string
	force        bool
	dryRun       bool
}

// Options configures a Linker.
type Options struct {
	Log *oplog.Log
	// RigDir is the directory containing the rig file; sources must
	// resolve inside it.
	RigDir string
	// RenderDir receives rendered template output.
	RenderDir string
	// Variables feed template rendering.
	Variables map[string]string
	// AllowedRoots constrains where targets may resolve.
	AllowedRoots []string
	// Force replaces an existing unmanaged file or symlink after
	// backing it up; without it the dotfile is skipped.
	Force  bool
	DryRun bool
}

// New creates a Linker.
func New(opts Options) *Linker {
	return &Linker{
		logger:       logging.GetLogger("dotfiles"),
		log:          opts.Log,
		rigDir:       filepath.Clean(opts.RigDir),
		renderDir:    opts.RenderDir,
		vars:         opts.Variables,
		allowedRoots: opts.AllowedRoots,
		force:        opts.Force,
		dryRun:       opts.DryRun,
	}
}

// Link processes the dotfiles in configuration order and returns one
// Result per entry. The first hard error aborts the phase; an existing
// unmanaged file or symlink without --force is a skip, not an error.
func (l *Linker) Link(ctx context.Context, files []config.Dotfile) ([]Result, error) {
	if len(files) == 0 {
		return nil, nil
	}

	l.logger.Info().Int("count", len(files)).Msg("Linking dotfiles")

	results := make([]Result, 0, len(files))
	for _, df := range files {
		if err := ctx.Err(); err != nil {
			return results, errors.Wrap(err, errors.ErrInterrupted, "dotfiles phase interrupted")
		}

		res, err := l.linkOne(df)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (l *Linker) linkOne(df config.Dotfile) (Result, error) {
	res := Result{Dotfile: df}

	source, err := l.resolveSource(df)
	if err != nil {
		return res, err
	}
	res.Source = source

	if v := security.ValidatePath(df.Target, l.allowedRoots); !v.OK {
		return res, errors.Newf(errors.ErrUnsafePath, "dotfile target rejected: %s", v.Reason).
			WithDetail("target", df.Target)
	}
	target := filepath.Clean(paths.Expand(df.Target))
	res.Target = target

	info, lstatErr := os.Lstat(target)
	switch {
	case lstatErr == nil && info.Mode()&os.ModeSymlink != 0:
		dest, readErr := os.Readlink(target)
		if readErr == nil && dest == source {
			res.Action = ActionUnchanged
			l.logger.Debug().Str("target", target).Msg("Symlink already correct")
			return res, nil
		}
		// A symlink we did not create gets the same treatment as a
		// regular file; only our own stale links are relinked freely.
		if readErr != nil || !l.managedDest(dest) {
			if !l.force {
				res.Action = ActionSkipped
				l.logger.Warn().
					Str("target", target).
					Msg("Target is an unmanaged symlink, skipped (use --force to replace)")
				return res, nil
			}
			backupPath, err := l.backupExisting(target, info)
			if err != nil {
				return res, err
			}
			res.BackupPath = backupPath
		}
	case lstatErr == nil && !l.force:
		res.Action = ActionSkipped
		l.logger.Warn().
			Str("target", target).
			Msg("Target exists and is not managed, skipped (use --force to replace)")
		return res, nil
	case lstatErr == nil:
		backupPath, err := l.backupExisting(target, info)
		if err != nil {
			return res, err
		}
		res.BackupPath = backupPath
	case !os.IsNotExist(lstatErr):
		return res, errors.Wrapf(lstatErr, errors.ErrFileAccess, "cannot inspect %s", target)
	}

	h, err := l.log.Begin(oplog.KindSymlinkCreate, target)
	if err != nil {
		return res, err
	}

	if l.dryRun {
		res.Action = ActionLinked
		l.logger.Info().Str("source", source).Str("target", target).Msg("Dry run - symlink not created")
		l.log.Commit(h)
		return res, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return res, errors.Wrapf(err, errors.ErrDirCreate, "cannot create parent of %s", target)
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return res, errors.Wrapf(err, errors.ErrFileAccess, "cannot remove existing %s", target)
	}
	if err := os.Symlink(source, target); err != nil {
		return res, errors.Wrapf(err, errors.ErrSymlinkCreate, "cannot link %s -> %s", target, source)
	}
	l.log.Commit(h)

	res.Action = ActionLinked
	l.logger.Info().Str("source", source).Str("target", target).Msg("Dotfile linked")
	return res, nil
}

// managedDest reports whether a symlink destination is one of ours: a
// source inside the rig directory or a rendered copy in the render dir.
func (l *Linker) managedDest(dest string) bool {
	if paths.ContainsPath(l.rigDir, dest) {
		return true
	}
	return l.renderDir != "" && paths.ContainsPath(l.renderDir, dest)
}

// ExpectedSource returns the path a correctly linked target points at:
// the source itself, or the rendered copy for templates. It does not
// check that either exists.
func ExpectedSource(rigDir, renderDir string, df config.Dotfile) string {
	source := filepath.Clean(filepath.Join(filepath.Clean(rigDir), df.Source))
	if !template.IsTemplate(source) {
		return source
	}
	return filepath.Join(renderDir, paths.SanitizeName(template.TargetName(df.Source)))
}

// resolveSource maps the config source to the path the target will link
// to, rendering templates into the render directory.
func (l *Linker) resolveSource(df config.Dotfile) (string, error) {
	source := filepath.Clean(filepath.Join(l.rigDir, df.Source))
	if !paths.ContainsPath(l.rigDir, source) {
		return "", errors.Newf(errors.ErrUnsafePath,
			"dotfile source %s escapes the rig directory", df.Source)
	}
	if _, err := os.Stat(source); err != nil {
		if os.IsNotExist(err) {
			return "", errors.Newf(errors.ErrFileNotFound, "dotfile source %s not found", df.Source)
		}
		return "", errors.Wrapf(err, errors.ErrFileAccess, "cannot read dotfile source %s", df.Source)
	}

	if !template.IsTemplate(source) {
		return source, nil
	}

	rendered, err := template.Render(source, l.vars)
	if err != nil {
		return "", err
	}

	out := ExpectedSource(l.rigDir, l.renderDir, df)

	if l.dryRun {
		return out, nil
	}

	// Rendered copies live in our own state directory and are rewritten
	// on every run; they are not logged operations.
	if err := os.MkdirAll(l.renderDir, 0755); err != nil {
		return "", errors.Wrapf(err, errors.ErrDirCreate, "cannot create render directory %s", l.renderDir)
	}
	if existing, err := os.ReadFile(out); err == nil && bytes.Equal(existing, rendered) {
		return out, nil
	}
	if err := os.WriteFile(out, rendered, 0644); err != nil {
		return "", errors.Wrapf(err, errors.ErrFileWrite, "cannot write rendered template %s", out)
	}

	l.logger.Debug().Str("source", source).Str("rendered", out).Msg("Template rendered")
	return out, nil
}

// backupExisting moves what sits at the target aside to a timestamped
// sibling: file content is copied, a symlink is recreated with its old
// destination. The backup itself is logged so rollback can remove it.
func (l *Linker) backupExisting(target string, info os.FileInfo) (string, error) {
	if info.IsDir() {
		return "", errors.Newf(errors.ErrFileAccess,
			"%s is a directory; refusing to replace it", target)
	}

	backupPath := fmt.Sprintf("%s.backup-%s", target, time.Now().Format("20060102-150405"))

	h, err := l.log.Begin(oplog.KindFileBackup, backupPath)
	if err != nil {
		return "", err
	}

	if l.dryRun {
		l.log.Commit(h)
		return backupPath, nil
	}

	if info.Mode()&os.ModeSymlink != 0 {
		dest, err := os.Readlink(target)
		if err != nil {
			return "", errors.Wrapf(err, errors.ErrFileAccess, "cannot back up %s", target)
		}
		if err := os.Symlink(dest, backupPath); err != nil {
			return "", errors.Wrapf(err, errors.ErrFileWrite, "cannot write backup %s", backupPath)
		}
	} else {
		content, err := os.ReadFile(target)
		if err != nil {
			return "", errors.Wrapf(err, errors.ErrFileAccess, "cannot back up %s", target)
		}
		if err := os.WriteFile(backupPath, content, info.Mode().Perm()); err != nil {
			return "", errors.Wrapf(err, errors.ErrFileWrite, "cannot write backup %s", backupPath)
		}
	}
	l.log.Commit(h)

	l.logger.Info().Str("target", target).Str("backup", backupPath).Msg("Existing file backed up")
	return backupPath, nil
}
