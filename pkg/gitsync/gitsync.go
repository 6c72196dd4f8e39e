// Package gitsync clones or updates the rig's repositories concurrently.
// Independent repositories are processed by a bounded worker pool; every
// outcome is funneled through a single results channel back to the
// orchestrator, which stays the sole writer of the operation log.
package gitsync

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rs/zerolog"

	"github.com/Dacraezy1/autorig/pkg/config"
	"github.com/Dacraezy1/autorig/pkg/errors"
	"github.com/Dacraezy1/autorig/pkg/logging"
	"github.com/Dacraezy1/autorig/pkg/paths"
	"github.com/Dacraezy1/autorig/pkg/security"
)

// Status is the per-repository outcome.
type Status string

const (
	StatusCloned    Status = "cloned"
	StatusUpdated   Status = "updated"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"
)

// Result reports what happened to one repository.
type Result struct {
	Repo   config.Repo
	Path   string
	Status Status
	Err    error
}

// Syncer runs the git synchronization phase.
type Syncer struct {
	logger       zerolog.Logger
	maxParallel  int
	timeout      time.Duration
	dryRun       bool
	allowedRoots []string
}

// Options configures a Syncer.
type Options struct {
	// MaxParallel bounds the worker pool; the effective pool size is
	// min(len(repos), MaxParallel).
	MaxParallel int
	// Timeout bounds each repository's clone or update.
	Timeout time.Duration
	DryRun  bool
	// AllowedRoots constrains where repository paths may resolve.
	AllowedRoots []string
}

// New creates a Syncer.
func New(opts Options) *Syncer {
	maxParallel := opts.MaxParallel
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Syncer{
		logger:       logging.GetLogger("gitsync"),
		maxParallel:  maxParallel,
		timeout:      opts.Timeout,
		dryRun:       opts.DryRun,
		allowedRoots: opts.AllowedRoots,
	}
}

// Sync processes the repositories and returns a channel yielding one
// Result per repository. The channel is closed when all work is done.
// A failure in one repository never cancels its siblings; cancelling ctx
// stops queued repositories from being dispatched.
func (s *Syncer) Sync(ctx context.Context, repos []config.Repo) <-chan Result {
	results := make(chan Result, len(repos))
	if len(repos) == 0 {
		close(results)
		return results
	}

	workers := s.maxParallel
	if len(repos) < workers {
		workers = len(repos)
	}

	jobs := make(chan config.Repo)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for repo := range jobs {
				results <- s.syncOne(ctx, repo)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, repo := range repos {
			select {
			case jobs <- repo:
			case <-ctx.Done():
				results <- Result{Repo: repo, Status: StatusFailed,
					Err: errors.Wrap(ctx.Err(), errors.ErrInterrupted, "sync cancelled before dispatch")}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// syncOne performs the clone-or-update sequence for a single repository.
// The sequence is atomic relative to itself; there is no cross-repository
// ordering.
func (s *Syncer) syncOne(ctx context.Context, repo config.Repo) Result {
	path := filepath.Clean(paths.Expand(repo.Path))
	res := Result{Repo: repo, Path: path}

	if v := security.ValidatePath(repo.Path, s.allowedRoots); !v.OK {
		res.Status = StatusFailed
		res.Err = errors.Newf(errors.ErrUnsafePath, "repository path rejected: %s", v.Reason)
		return res
	}

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	info, statErr := os.Stat(path)
	switch {
	case os.IsNotExist(statErr):
		res.Status, res.Err = s.clone(runCtx, repo, path)
	case statErr != nil:
		res.Status = StatusFailed
		res.Err = errors.Wrapf(statErr, errors.ErrFileAccess, "cannot stat %s", path)
	case !info.IsDir():
		res.Status = StatusFailed
		res.Err = errors.Newf(errors.ErrGitOperation, "%s exists and is not a directory", path)
	default:
		res.Status, res.Err = s.update(runCtx, repo, path)
	}

	s.logger.Debug().
		Str("url", repo.URL).
		Str("path", path).
		Str("status", string(res.Status)).
		Err(res.Err).
		Msg("Repository processed")

	return res
}

func (s *Syncer) clone(ctx context.Context, repo config.Repo, path string) (Status, error) {
	if s.dryRun {
		return StatusCloned, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return StatusFailed, errors.Wrapf(err, errors.ErrDirCreate, "cannot create parent of %s", path)
	}

	_, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
		URL:           repo.URL,
		ReferenceName: plumbing.NewBranchReferenceName(repo.Branch),
		SingleBranch:  true,
	})
	if err != nil {
		return StatusFailed, errors.Wrapf(err, errors.ErrGitOperation, "clone of %s failed", repo.URL)
	}
	return StatusCloned, nil
}

func (s *Syncer) update(ctx context.Context, repo config.Repo, path string) (Status, error) {
	gitRepo, err := git.PlainOpen(path)
	if err != nil {
		return StatusFailed, errors.Wrapf(err, errors.ErrGitOperation,
			"%s exists but is not a git repository", path)
	}

	if s.dryRun {
		return StatusUpdated, nil
	}

	upToDate := false
	err = gitRepo.FetchContext(ctx, &git.FetchOptions{RemoteName: "origin"})
	switch {
	case err == git.NoErrAlreadyUpToDate:
		upToDate = true
	case err != nil:
		return StatusFailed, errors.Wrapf(err, errors.ErrGitOperation, "fetch of %s failed", repo.URL)
	}

	wt, err := gitRepo.Worktree()
	if err != nil {
		return StatusFailed, errors.Wrapf(err, errors.ErrGitOperation, "no worktree in %s", path)
	}

	branch := plumbing.NewBranchReferenceName(repo.Branch)
	if err := wt.Checkout(&git.CheckoutOptions{Branch: branch}); err != nil {
		return StatusFailed, errors.Wrapf(err, errors.ErrGitOperation,
			"checkout of %s in %s failed", repo.Branch, path)
	}

	if upToDate {
		return StatusUnchanged, nil
	}
	return StatusUpdated, nil
}
