// Package shell executes validated user commands without handing the
// command line to a shell. Commands are split into argv with quote-aware
// word splitting and run directly, bounded by a timeout.
package shell

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/Dacraezy1/autorig/pkg/errors"
)

// SplitArgs splits a command string into argv, honoring single and double
// quotes. It never interprets shell metacharacters; the security gate has
// already rejected commands that contain them.
func SplitArgs(command string) ([]string, error) {
	var args []string
	var cur strings.Builder
	var quote rune
	inWord := false

	for _, r := range command {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t' || r == '\n':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 {
		return nil, errors.New(errors.ErrInvalidInput, "unterminated quote in command")
	}
	if inWord {
		args = append(args, cur.String())
	}
	if len(args) == 0 {
		return nil, errors.New(errors.ErrInvalidInput, "empty command")
	}
	return args, nil
}

// Run executes a command with the given working directory, bounded by
// timeout. It returns the combined output; a non-zero exit or timeout is
// an error.
func Run(ctx context.Context, command, dir string, timeout time.Duration) ([]byte, error) {
	args, err := SplitArgs(command)
	if err != nil {
		return nil, err
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	if runCtx.Err() == context.DeadlineExceeded {
		return out, errors.Newf(errors.ErrTimeout, "command timed out after %s: %s", timeout, command)
	}
	if err != nil {
		return out, err
	}
	return out, nil
}

// Eval runs an expression through /bin/sh and reports whether it exited
// zero. Used only for script conditions, which are shell-evaluated by
// contract; the expression must already have passed the security gate.
func Eval(ctx context.Context, expr, dir string, timeout time.Duration) (bool, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", expr)
	cmd.Dir = dir

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return false, errors.Newf(errors.ErrTimeout, "condition timed out after %s: %s", timeout, expr)
	}
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
