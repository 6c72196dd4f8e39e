package oplog

import (
	"os"
	"path/filepath"

	"github.com/Dacraezy1/autorig/pkg/errors"
)

// RollbackResult reports the outcome of reversing one committed record.
type RollbackResult struct {
	Record Record
	// Undone is true when the target was restored to its prior state.
	Undone bool
	// Irreversible is true for kinds that are reported but never undone
	// (repository clones, package installs, executed commands).
	Irreversible bool
	// Err is set when the reversal itself failed. The host is then in a
	// state described by neither the old nor the new configuration.
	Err error
}

// RollbackAll restores every committed target to its captured prior state,
// in strict reverse chronological order. It is best-effort: a failed
// reversal is reported in its result and in the returned error, and does
// not stop the remaining reversals. Simulated records are never acted on.
func (l *Log) RollbackAll() ([]RollbackResult, error) {
	var results []RollbackResult
	var failed bool

	for i := len(l.records) - 1; i >= 0; i-- {
		rec := l.records[i]
		if !rec.Committed || rec.Simulated {
			continue
		}

		res := RollbackResult{Record: *rec}

		if !rec.Kind.reversible() {
			res.Irreversible = true
			l.logger.Info().
				Str("kind", string(rec.Kind)).
				Str("target", rec.Target).
				Msg("Irreversible operation reported, not undone")
			results = append(results, res)
			continue
		}

		if err := restore(rec.Target, rec.Prior); err != nil {
			res.Err = err
			failed = true
			l.logger.Error().
				Err(err).
				Str("kind", string(rec.Kind)).
				Str("target", rec.Target).
				Msg("Rollback step failed")
		} else {
			res.Undone = true
			l.logger.Info().
				Str("kind", string(rec.Kind)).
				Str("target", rec.Target).
				Msg("Rolled back")
		}
		results = append(results, res)
	}

	if failed {
		return results, errors.New(errors.ErrRollbackFailed,
			"one or more rollback steps failed; manual intervention required")
	}
	return results, nil
}

// restore puts target back into the given prior state.
func restore(target string, prior PriorState) error {
	// Clear whatever currently occupies the target. Lstat so a dangling
	// symlink is still seen and removed.
	if _, err := os.Lstat(target); err == nil {
		if err := os.Remove(target); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	if !prior.Existed {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	switch {
	case prior.IsSymlink:
		return os.Symlink(prior.LinkDest, target)
	case prior.IsDir:
		return os.Mkdir(target, prior.Mode)
	default:
		if err := os.WriteFile(target, prior.Content, prior.Mode); err != nil {
			return err
		}
		// WriteFile honors umask; force the captured mode.
		return os.Chmod(target, prior.Mode)
	}
}
