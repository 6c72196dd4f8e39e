package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dacraezy1/autorig/pkg/config"
	"github.com/Dacraezy1/autorig/pkg/errors"
	"github.com/Dacraezy1/autorig/pkg/oplog"
)

func TestRunExecutesInOrder(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")

	log := oplog.New(oplog.Options{})
	r := New(Options{Log: log, Timeout: 5 * time.Second})

	err := r.Run(context.Background(), config.PreSystem, []config.Hook{
		{Command: "touch " + marker},
		{Command: "test -f " + marker},
	})
	require.NoError(t, err)
	assert.FileExists(t, marker)
	assert.Equal(t, 2, log.CommittedCount())
}

func TestRunRejectsUnsafeCommandBeforeExecution(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "must-not-exist")

	log := oplog.New(oplog.Options{})
	r := New(Options{Log: log, Timeout: 5 * time.Second})

	err := r.Run(context.Background(), config.PostSystem, []config.Hook{
		{Command: "touch " + marker + " && echo chained"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrUnsafeCommand))

	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr), "rejected command must never run")
	assert.Zero(t, log.CommittedCount())
}

func TestRunFailsOnNonZeroExit(t *testing.T) {
	log := oplog.New(oplog.Options{})
	r := New(Options{Log: log, Timeout: 5 * time.Second})

	err := r.Run(context.Background(), config.PreGit, []config.Hook{
		{Command: "false"},
		{Command: "echo unreachable"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrHookFailed))
	assert.Zero(t, log.CommittedCount(), "failed hook is never committed")
}

func TestRunDryRun(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")

	log := oplog.New(oplog.Options{DryRun: true})
	r := New(Options{Log: log, Timeout: 5 * time.Second, DryRun: true})

	err := r.Run(context.Background(), config.PreDotfiles, []config.Hook{
		{Command: "touch " + marker},
	})
	require.NoError(t, err)

	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr), "dry run must not execute")

	recs := log.Records()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Simulated)
}

func TestRunEmpty(t *testing.T) {
	log := oplog.New(oplog.Options{})
	r := New(Options{Log: log})
	require.NoError(t, r.Run(context.Background(), config.PreScripts, nil))
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log := oplog.New(oplog.Options{})
	r := New(Options{Log: log, Timeout: time.Second})

	err := r.Run(ctx, config.PostScripts, []config.Hook{{Command: "echo hi"}})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInterrupted))
}
