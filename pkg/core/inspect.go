package core

import (
	"context"
	"os"
	"strings"

	"github.com/Dacraezy1/autorig/pkg/backup"
	"github.com/Dacraezy1/autorig/pkg/config"
	"github.com/Dacraezy1/autorig/pkg/dotfiles"
	"github.com/Dacraezy1/autorig/pkg/errors"
	"github.com/Dacraezy1/autorig/pkg/gitsync"
	"github.com/Dacraezy1/autorig/pkg/oplog"
	"github.com/Dacraezy1/autorig/pkg/paths"
)

// DotfileState describes how a target currently relates to its source.
type DotfileState string

const (
	// DotfileLinked means the target is a symlink to the expected source.
	DotfileLinked DotfileState = "linked"
	// DotfileStale means the target is a symlink pointing elsewhere.
	DotfileStale DotfileState = "stale"
	// DotfileConflict means an unmanaged file occupies the target.
	DotfileConflict DotfileState = "conflict"
	// DotfileMissing means nothing exists at the target.
	DotfileMissing DotfileState = "missing"
)

// DotfileStatus is the inspection result for one dotfile.
type DotfileStatus struct {
	Dotfile config.Dotfile
	Target  string
	State   DotfileState
}

// RepoState describes a configured repository's local presence.
type RepoState string

const (
	RepoPresent RepoState = "present"
	RepoMissing RepoState = "missing"
	// RepoConflict means the path exists but is not a git repository.
	RepoConflict RepoState = "conflict"
)

// RepoStatus is the inspection result for one repository.
type RepoStatus struct {
	Repo  config.Repo
	Path  string
	State RepoState
}

// StatusReport summarizes the rig's current footprint on this host.
type StatusReport struct {
	Rig       string
	Dotfiles  []DotfileStatus
	Repos     []RepoStatus
	Snapshots []string
	// PendingRollback is true when an interrupted run left a persisted
	// operation log behind.
	PendingRollback bool
}

// Status inspects the host without mutating anything.
func (o *Orchestrator) Status() (*StatusReport, error) {
	report := &StatusReport{Rig: o.rig.Name}

	for _, df := range o.rig.Dotfiles {
		target := paths.Expand(df.Target)
		expected := dotfiles.ExpectedSource(o.rig.Dir, o.renderDir(), df)

		st := DotfileStatus{Dotfile: df, Target: target}
		info, err := os.Lstat(target)
		switch {
		case os.IsNotExist(err):
			st.State = DotfileMissing
		case err != nil:
			return nil, errors.Wrapf(err, errors.ErrFileAccess, "cannot inspect %s", target)
		case info.Mode()&os.ModeSymlink == 0:
			st.State = DotfileConflict
		default:
			dest, err := os.Readlink(target)
			if err == nil && dest == expected {
				st.State = DotfileLinked
			} else {
				st.State = DotfileStale
			}
		}
		report.Dotfiles = append(report.Dotfiles, st)
	}

	for _, repo := range o.rig.Git.Repositories {
		path := paths.Expand(repo.Path)
		st := RepoStatus{Repo: repo, Path: path}

		if info, err := os.Stat(path); err != nil {
			st.State = RepoMissing
		} else if !info.IsDir() {
			st.State = RepoConflict
		} else if _, err := os.Stat(path + "/.git"); err != nil {
			st.State = RepoConflict
		} else {
			st.State = RepoPresent
		}
		report.Repos = append(report.Repos, st)
	}

	mgr := backup.New(o.paths.BackupDir(), o.allowedRoots)
	snapshots, err := mgr.List()
	if err != nil {
		return nil, err
	}
	report.Snapshots = snapshots

	if _, err := os.Stat(OplogPath(o.paths)); err == nil {
		report.PendingRollback = true
	}

	return report, nil
}

// DiffReport is the plan an apply would execute right now.
type DiffReport struct {
	Dotfiles []dotfiles.Result
	// MissingRepos would be cloned.
	MissingRepos []config.Repo
	// Packages would be handed to the package manager; the engine does
	// not query installed state.
	Packages []string
	Scripts  []config.Script
}

// Diff computes the pending work without touching the filesystem. The
// dotfile plan comes from a dry-run pass of the linker.
func (o *Orchestrator) Diff(ctx context.Context) (*DiffReport, error) {
	report := &DiffReport{
		Packages: o.rig.System.Packages,
		Scripts:  o.rig.Scripts,
	}

	linker := dotfiles.New(dotfiles.Options{
		Log:          oplog.New(oplog.Options{DryRun: true}),
		RigDir:       o.rig.Dir,
		RenderDir:    o.renderDir(),
		Variables:    o.rig.Variables,
		AllowedRoots: o.allowedRoots,
		Force:        o.force,
		DryRun:       true,
	})
	results, err := linker.Link(ctx, o.rig.Dotfiles)
	if err != nil {
		return nil, err
	}
	report.Dotfiles = results

	for _, repo := range o.rig.Git.Repositories {
		if _, err := os.Stat(paths.Expand(repo.Path)); os.IsNotExist(err) {
			report.MissingRepos = append(report.MissingRepos, repo)
		}
	}

	return report, nil
}

// Clean removes every managed symlink the rig created. Only targets that
// are symlinks pointing at the rig's sources or rendered copies are
// touched; everything else is left alone. Removals go through the
// operation log so a failed clean can be rolled back.
func (o *Orchestrator) Clean(ctx context.Context) ([]string, error) {
	log := oplog.New(oplog.Options{
		DryRun:      o.dryRun,
		PersistPath: OplogPath(o.paths),
	})

	var removed []string
	for _, df := range o.rig.Dotfiles {
		if err := ctx.Err(); err != nil {
			return removed, errors.Wrap(err, errors.ErrInterrupted, "clean interrupted")
		}

		target := paths.Expand(df.Target)
		info, err := os.Lstat(target)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			continue
		}

		dest, err := os.Readlink(target)
		if err != nil {
			continue
		}
		if !paths.ContainsPath(o.rig.Dir, dest) && !paths.ContainsPath(o.renderDir(), dest) {
			o.logger.Debug().Str("target", target).Str("dest", dest).Msg("Not a managed symlink, left alone")
			continue
		}

		h, err := log.Begin(oplog.KindSymlinkRemove, target)
		if err != nil {
			return removed, err
		}

		if o.dryRun {
			log.Commit(h)
			removed = append(removed, target)
			continue
		}

		if err := os.Remove(target); err != nil {
			return removed, errors.Wrapf(err, errors.ErrFileAccess, "cannot remove %s", target)
		}
		log.Commit(h)
		removed = append(removed, target)
		o.logger.Info().Str("target", target).Msg("Managed symlink removed")
	}

	if !o.dryRun {
		log.Discard()
	}
	return removed, nil
}

// Sync runs only the repository synchronization, outside the pipeline.
// All repositories are attempted; the error reports how many failed.
func (o *Orchestrator) Sync(ctx context.Context) ([]gitsync.Result, error) {
	repos := o.rig.Git.Repositories
	if len(repos) == 0 {
		return nil, nil
	}

	syncer := gitsync.New(gitsync.Options{
		MaxParallel:  o.settings.MaxParallel,
		Timeout:      o.gitTimeout(),
		DryRun:       o.dryRun,
		AllowedRoots: o.allowedRoots,
	})

	var results []gitsync.Result
	failed := 0
	for res := range syncer.Sync(ctx, repos) {
		results = append(results, res)
		if res.Status == gitsync.StatusFailed {
			failed++
		}
	}

	if failed > 0 {
		return results, errors.Newf(errors.ErrGitOperation,
			"%d of %d repositories failed", failed, len(repos)).
			WithDetail("failed", strings.Join(failedURLs(results), ", "))
	}
	return results, nil
}

func failedURLs(results []gitsync.Result) []string {
	var urls []string
	for _, res := range results {
		if res.Status == gitsync.StatusFailed {
			urls = append(urls, res.Repo.URL)
		}
	}
	return urls
}
