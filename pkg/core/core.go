// Package core drives the apply pipeline. The orchestrator owns the rig
// for the duration of a run, walks the fixed phase order, and is the only
// goroutine that writes the operation log. On any phase failure it rolls
// back every committed reversible operation, newest first.
package core

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dacraezy1/autorig/pkg/backup"
	"github.com/Dacraezy1/autorig/pkg/config"
	"github.com/Dacraezy1/autorig/pkg/dotfiles"
	"github.com/Dacraezy1/autorig/pkg/errors"
	"github.com/Dacraezy1/autorig/pkg/gitsync"
	"github.com/Dacraezy1/autorig/pkg/hooks"
	"github.com/Dacraezy1/autorig/pkg/logging"
	"github.com/Dacraezy1/autorig/pkg/oplog"
	"github.com/Dacraezy1/autorig/pkg/packages"
	"github.com/Dacraezy1/autorig/pkg/paths"
	"github.com/Dacraezy1/autorig/pkg/scripts"
)

// State is the orchestrator's position in its lifecycle.
type State string

const (
	StateIdle           State = "idle"
	StateValidating     State = "validating"
	StateRunning        State = "running"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
	StateRollingBack    State = "rolling_back"
	StateRolledBack     State = "rolled_back"
	StateRollbackFailed State = "rollback_failed"
)

// Phase names one step of the apply pipeline.
type Phase string

const (
	PhasePreSystem    Phase = "pre_system"
	PhasePackages     Phase = "packages"
	PhasePostSystem   Phase = "post_system"
	PhasePreGit       Phase = "pre_git"
	PhaseGitSync      Phase = "git_sync"
	PhasePostGit      Phase = "post_git"
	PhasePreDotfiles  Phase = "pre_dotfiles"
	PhaseDotfiles     Phase = "dotfiles"
	PhasePostDotfiles Phase = "post_dotfiles"
	PhasePreScripts   Phase = "pre_scripts"
	PhaseScripts      Phase = "scripts"
	PhasePostScripts  Phase = "post_scripts"
)

// PhaseOrder is the fixed pipeline sequence. There is no reordering and
// no partial apply: a failure in any phase stops the run there.
var PhaseOrder = []Phase{
	PhasePreSystem, PhasePackages, PhasePostSystem,
	PhasePreGit, PhaseGitSync, PhasePostGit,
	PhasePreDotfiles, PhaseDotfiles, PhasePostDotfiles,
	PhasePreScripts, PhaseScripts, PhasePostScripts,
}

// OplogFileName is the persisted operation log inside the state directory.
const OplogFileName = "oplog.json"

// Report is the outcome of one apply run.
type Report struct {
	State       State
	FailedPhase Phase
	Err         error

	GitResults     []gitsync.Result
	DotfileResults []dotfiles.Result
	Operations     []oplog.Record
	Rollback       []oplog.RollbackResult
	RollbackErr    error
	SnapshotPath   string
}

// Orchestrator runs the pipeline for one rig.
type Orchestrator struct {
	logger   zerolog.Logger
	rig      *config.Rig
	settings *config.Settings
	paths    *paths.Paths

	dryRun       bool
	force        bool
	skipSnapshot bool
	allowedRoots []string
}

// Options configures an Orchestrator.
type Options struct {
	Rig      *config.Rig
	Settings *config.Settings
	Paths    *paths.Paths

	DryRun bool
	// Force lets the dotfiles phase replace existing unmanaged files.
	Force bool
	// SkipSnapshot disables the pre-run snapshot of dotfile targets.
	SkipSnapshot bool
	// AllowedRoots constrains where dotfile targets and repository paths
	// may resolve. Empty means unrestricted beyond the built-in denies.
	AllowedRoots []string
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		logger:       logging.GetLogger("core"),
		rig:          opts.Rig,
		settings:     opts.Settings,
		paths:        opts.Paths,
		dryRun:       opts.DryRun,
		force:        opts.Force,
		skipSnapshot: opts.SkipSnapshot,
		allowedRoots: opts.AllowedRoots,
	}
}

func (o *Orchestrator) commandTimeout() time.Duration {
	return time.Duration(o.settings.CommandTimeoutSec) * time.Second
}

func (o *Orchestrator) gitTimeout() time.Duration {
	return time.Duration(o.settings.GitTimeoutSec) * time.Second
}

func (o *Orchestrator) renderDir() string {
	return filepath.Join(o.paths.StateDir(), "rendered", paths.SanitizeName(o.rig.Name))
}

// OplogPath returns where the orchestrator persists its operation log.
func OplogPath(p *paths.Paths) string {
	return filepath.Join(p.StateDir(), OplogFileName)
}

// Apply runs the full pipeline. The returned report always carries a
// terminal state; Err is set for anything but StateSucceeded.
func (o *Orchestrator) Apply(ctx context.Context) *Report {
	report := &Report{State: StateValidating}

	if err := o.rig.Validate(); err != nil {
		report.State = StateFailed
		report.Err = err
		return report
	}

	if !o.dryRun {
		if err := o.paths.EnsureDirs(); err != nil {
			report.State = StateFailed
			report.Err = err
			return report
		}
	}

	log := oplog.New(oplog.Options{
		DryRun:      o.dryRun,
		PersistPath: OplogPath(o.paths),
	})

	o.logger.Info().
		Str("rig", o.rig.Name).
		Bool("dry_run", o.dryRun).
		Msg("Apply started")

	if !o.skipSnapshot && len(o.rig.Dotfiles) > 0 {
		if err := o.snapshot(log, report); err != nil {
			report.State = StateFailed
			report.Err = err
			return report
		}
	}

	report.State = StateRunning
	hookRunner := hooks.New(hooks.Options{Log: log, Timeout: o.commandTimeout(), DryRun: o.dryRun})

	for _, phase := range PhaseOrder {
		done := logging.LogOperationStart(o.logger, string(phase))

		var err error
		switch phase {
		case PhasePackages:
			err = o.runPackages(ctx, log)
		case PhaseGitSync:
			err = o.runGitSync(ctx, log, report)
		case PhaseDotfiles:
			err = o.runDotfiles(ctx, log, report)
		case PhaseScripts:
			err = o.runScripts(ctx, log)
		default:
			err = hookRunner.Run(ctx, config.HookPhase(phase), o.rig.HooksFor(config.HookPhase(phase)))
		}
		done()

		if err != nil {
			report.FailedPhase = phase
			report.Err = err
			report.Operations = log.Records()
			if o.dryRun {
				report.State = StateFailed
				log.Discard()
				o.logger.Error().
					Str("phase", string(phase)).
					Err(err).
					Msg("Phase failed (dry run, nothing to undo)")
				return report
			}
			o.logger.Error().
				Str("phase", string(phase)).
				Err(err).
				Msg("Phase failed, rolling back")
			o.rollback(log, report)
			return report
		}
	}

	report.State = StateSucceeded
	report.Operations = log.Records()
	log.Discard()

	o.logger.Info().
		Str("rig", o.rig.Name).
		Int("operations", len(report.Operations)).
		Msg("Apply succeeded")
	return report
}

// snapshot archives current dotfile targets before the run mutates them.
// The archive write is logged before it happens, so rollback sees a
// did-not-exist prior state and deletes the archive again.
func (o *Orchestrator) snapshot(log *oplog.Log, report *Report) error {
	mgr := backup.New(o.paths.BackupDir(), o.allowedRoots)
	archivePath := mgr.NextArchivePath(o.rig)

	h, err := log.Begin(oplog.KindArchiveWrite, archivePath)
	if err != nil {
		return err
	}

	if o.dryRun {
		log.Commit(h)
		o.logger.Info().Str("archive", archivePath).Msg("Dry run - snapshot not written")
		return nil
	}

	manifest, err := mgr.SnapshotTo(archivePath, o.rig)
	if err != nil {
		return err
	}
	log.Commit(h)

	report.SnapshotPath = archivePath
	o.logger.Info().
		Str("archive", archivePath).
		Int("files", len(manifest.Entries)).
		Msg("Pre-run snapshot created")
	return nil
}

func (o *Orchestrator) runPackages(ctx context.Context, log *oplog.Log) error {
	in := packages.New(packages.Options{
		Log:     log,
		Timeout: o.commandTimeout(),
		DryRun:  o.dryRun,
	})
	return in.Install(ctx, o.rig.System.Packages)
}

// runGitSync fans repositories out to the syncer pool and folds every
// result back on this goroutine, which keeps the operation log single
// writer. The phase is best effort: all repositories are attempted, and
// the phase fails afterwards if any of them failed.
func (o *Orchestrator) runGitSync(ctx context.Context, log *oplog.Log, report *Report) error {
	repos := o.rig.Git.Repositories
	if len(repos) == 0 {
		return nil
	}

	syncer := gitsync.New(gitsync.Options{
		MaxParallel:  o.settings.MaxParallel,
		Timeout:      o.gitTimeout(),
		DryRun:       o.dryRun,
		AllowedRoots: o.allowedRoots,
	})

	var failed []string
	for res := range syncer.Sync(ctx, repos) {
		report.GitResults = append(report.GitResults, res)

		switch res.Status {
		case gitsync.StatusCloned:
			o.recordRepo(log, oplog.KindRepoClone, res.Path)
		case gitsync.StatusUpdated:
			o.recordRepo(log, oplog.KindRepoUpdate, res.Path)
		case gitsync.StatusFailed:
			failed = append(failed, res.Repo.URL)
			o.logger.Error().Str("url", res.Repo.URL).Err(res.Err).Msg("Repository sync failed")
		}
	}

	if len(failed) > 0 {
		return errors.Newf(errors.ErrGitOperation,
			"%d of %d repositories failed", len(failed), len(repos)).
			WithDetail("failed", strings.Join(failed, ", "))
	}
	return nil
}

func (o *Orchestrator) recordRepo(log *oplog.Log, kind oplog.Kind, path string) {
	h, err := log.Begin(kind, path)
	if err != nil {
		o.logger.Warn().Err(err).Str("path", path).Msg("Could not record repository operation")
		return
	}
	log.Commit(h)
}

func (o *Orchestrator) runDotfiles(ctx context.Context, log *oplog.Log, report *Report) error {
	linker := dotfiles.New(dotfiles.Options{
		Log:          log,
		RigDir:       o.rig.Dir,
		RenderDir:    o.renderDir(),
		Variables:    o.rig.Variables,
		AllowedRoots: o.allowedRoots,
		Force:        o.force,
		DryRun:       o.dryRun,
	})
	results, err := linker.Link(ctx, o.rig.Dotfiles)
	report.DotfileResults = results
	return err
}

func (o *Orchestrator) runScripts(ctx context.Context, log *oplog.Log) error {
	r := scripts.New(scripts.Options{
		Log:     log,
		Timeout: o.commandTimeout(),
		DryRun:  o.dryRun,
	})
	return r.Run(ctx, o.rig.Scripts)
}

// rollback transitions the report through the rollback states. Dry runs
// never reach it; a failed dry run ends at StateFailed with the planned
// operations intact.
func (o *Orchestrator) rollback(log *oplog.Log, report *Report) {
	report.State = StateRollingBack

	results, err := log.RollbackAll()
	report.Rollback = results
	report.RollbackErr = err

	if err != nil {
		report.State = StateRollbackFailed
		o.logger.Error().Err(err).Msg("Rollback incomplete")
		return
	}

	report.State = StateRolledBack
	log.Discard()
	o.logger.Info().Int("operations", len(results)).Msg("Rollback complete")
}

// RollbackPersisted rolls back the operation log a previous interrupted
// run left in the state directory, then removes it.
func RollbackPersisted(p *paths.Paths) ([]oplog.RollbackResult, error) {
	path := OplogPath(p)
	log, err := oplog.Load(path)
	if err != nil {
		return nil, err
	}

	results, err := log.RollbackAll()
	if err != nil {
		return results, err
	}
	log.Discard()
	return results, nil
}
