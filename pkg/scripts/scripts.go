// Package scripts executes user scripts from the rig, honoring each
// script's optional shell-evaluated condition.
package scripts

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dacraezy1/autorig/pkg/config"
	"github.com/Dacraezy1/autorig/pkg/errors"
	"github.com/Dacraezy1/autorig/pkg/logging"
	"github.com/Dacraezy1/autorig/pkg/oplog"
	"github.com/Dacraezy1/autorig/pkg/paths"
	"github.com/Dacraezy1/autorig/pkg/security"
	"github.com/Dacraezy1/autorig/pkg/shell"
)

// Runner executes the scripts phase.
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

// New creates a script runner.
func New(opts Options) *Runner {
	return &Runner{
		logger:  logging.GetLogger("scripts"),
		log:     opts.Log,
		timeout: opts.Timeout,
		dryRun:  opts.DryRun,
	}
}

// Run executes the scripts in configuration order. A script whose
// condition exits non-zero is skipped; a security rejection or a
// non-zero script exit fails the phase.
func (r *Runner) Run(ctx context.Context, scriptList []config.Script) error {
	if len(scriptList) == 0 {
		return nil
	}

	r.logger.Info().Int("count", len(scriptList)).Msg("Running scripts")

	for i, script := range scriptList {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrInterrupted, "scripts phase interrupted")
		}

		if res := security.ValidateCommand(script.Command); !res.OK {
			return errors.Newf(errors.ErrUnsafeCommand,
				"script %d rejected: %s", i, res.Reason).
				WithDetail("command", script.Command)
		}

		cwd := ""
		if script.Cwd != "" {
			cwd = paths.Expand(script.Cwd)
		}

		if script.Condition != "" {
			if res := security.ValidateCommand(script.Condition); !res.OK {
				return errors.Newf(errors.ErrUnsafeCommand,
					"script %d condition rejected: %s", i, res.Reason).
					WithDetail("condition", script.Condition)
			}

			if r.dryRun {
				// Conditions are not evaluated in dry run; the plan
				// assumes the script would run.
				r.logger.Debug().Str("condition", script.Condition).Msg("Dry run - condition not evaluated")
			} else {
				ok, err := shell.Eval(ctx, script.Condition, cwd, r.timeout)
				if err != nil {
					return errors.Wrapf(err, errors.ErrScriptFailed,
						"script %d condition errored: %s", i, script.Condition)
				}
				if !ok {
					r.logger.Info().
						Str("command", script.Command).
						Str("condition", script.Condition).
						Msg("Condition not met, script skipped")
					continue
				}
			}
		}

		h, err := r.log.Begin(oplog.KindScriptRun, script.Command)
		if err != nil {
			return err
		}

		if r.dryRun {
			r.logger.Info().Str("command", script.Command).Msg("Dry run - script not executed")
			r.log.Commit(h)
			continue
		}

		out, err := shell.Run(ctx, script.Command, cwd, r.timeout)
		if err != nil {
			return errors.Wrapf(err, errors.ErrScriptFailed,
				"script %d failed: %s", i, script.Command).
				WithDetail("output", string(out))
		}
		r.log.Commit(h)

		r.logger.Debug().
			Str("command", script.Command).
			Str("description", script.Description).
			Msg("Script completed")
	}

	return nil
}
