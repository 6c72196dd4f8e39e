// Package hooks executes the command lists bound to pipeline checkpoints.
// Hooks run sequentially on the control goroutine; every command passes
// the security gate before any side effect occurs.
package hooks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dacraezy1/autorig/pkg/config"
	"github.com/Dacraezy1/autorig/pkg/errors"
	"github.com/Dacraezy1/autorig/pkg/logging"
	"github.com/Dacraezy1/autorig/pkg/oplog"
	"github.com/Dacraezy1/autorig/pkg/security"
	"github.com/Dacraezy1/autorig/pkg/shell"
)

// Runner executes hook lists at phase boundaries.
type Runner struct {
	logger  zerolog.Logger
	log     *oplog.Log
	timeout time.Duration
	dryRun  bool
}

// Options configures a Runner.
type Options struct {
	Log     *oplog.Log
	Timeout time.Duration
	DryRun  bool
}

// New creates a hook runner.
func New(opts Options) *Runner {
	return &Runner{
		logger:  logging.GetLogger("hooks"),
		log:     opts.Log,
		timeout: opts.Timeout,
		dryRun:  opts.DryRun,
	}
}

// Run executes the hooks bound to phase, in order. The first failure —
// a security rejection or a non-zero exit — aborts the remaining hooks
// and fails the phase. A rejection happens before any execution.
func (r *Runner) Run(ctx context.Context, phase config.HookPhase, hooks []config.Hook) error {
	if len(hooks) == 0 {
		return nil
	}

	r.logger.Info().
		Str("phase", string(phase)).
		Int("count", len(hooks)).
		Msg("Running hooks")

	for i, hook := range hooks {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrInterrupted, "hook phase interrupted")
		}

		if res := security.ValidateCommand(hook.Command); !res.OK {
			return errors.Newf(errors.ErrUnsafeCommand,
				"hook %s[%d] rejected: %s", phase, i, res.Reason).
				WithDetail("command", hook.Command)
		}

		h, err := r.log.Begin(oplog.KindHookRun, hook.Command)
		if err != nil {
			return err
		}

		if r.dryRun {
			r.logger.Info().Str("command", hook.Command).Msg("Dry run - hook not executed")
			r.log.Commit(h)
			continue
		}

		out, err := shell.Run(ctx, hook.Command, "", r.timeout)
		if err != nil {
			return errors.Wrapf(err, errors.ErrHookFailed,
				"hook %s[%d] failed: %s", phase, i, hook.Command).
				WithDetail("output", string(out))
		}
		r.log.Commit(h)

		r.logger.Debug().
			Str("command", hook.Command).
			Str("description", hook.Description).
			Msg("Hook completed")
	}

	return nil
}
