package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dacraezy1/autorig/pkg/errors"
	"github.com/Dacraezy1/autorig/pkg/paths"
)

func testEnv(t *testing.T) (rigPath string, home string) {
	t.Helper()
	base := t.TempDir()
	home = filepath.Join(base, "home")
	require.NoError(t, os.MkdirAll(home, 0755))

	t.Setenv("HOME", home)
	t.Setenv("XDG_STATE_HOME", filepath.Join(base, "xdg-state"))
	t.Setenv(paths.EnvStateDir, filepath.Join(base, "state"))
	t.Setenv(paths.EnvBackupDir, filepath.Join(base, "backups"))

	rigPath = filepath.Join(base, "rig.yaml")
	rig := `name: testbox
dotfiles:
  - source: vimrc
    target: ` + filepath.Join(home, ".vimrc") + `
`
	require.NoError(t, os.WriteFile(rigPath, []byte(rig), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "vimrc"), []byte("set number\n"), 0644))
	return rigPath, home
}

func runCommand(t *testing.T, args ...string) error {
	t.Helper()
	_, err := runCommandCapture(t, args...)
	return err
}

func runCommandCapture(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommandFlags(t *testing.T) {
	cmd := NewRootCmd()

	for flag, shorthand := range map[string]string{
		"verbose": "v",
		"dry-run": "n",
		"force":   "f",
		"profile": "p",
		"config":  "c",
	} {
		f := cmd.PersistentFlags().Lookup(flag)
		require.NotNil(t, f, flag)
		assert.Equal(t, shorthand, f.Shorthand, flag)
	}
}

func TestRootCommandHasAllSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	want := []string{
		"apply", "validate", "status", "diff", "clean", "sync",
		"rollback", "backup", "restore", "init", "guide",
		"version", "completion", "man",
	}
	have := make(map[string]bool)
	for _, c := range cmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, have[name], "missing command %s", name)
	}
}

func TestValidateCommand(t *testing.T) {
	rigPath, _ := testEnv(t)
	require.NoError(t, runCommand(t, "validate", "-c", rigPath))
}

func TestValidateShowPrintsEffectiveRig(t *testing.T) {
	rigPath, home := testEnv(t)

	out, err := runCommandCapture(t, "validate", "--show", "-c", rigPath)
	require.NoError(t, err)
	assert.Contains(t, out, "name: testbox")
	assert.Contains(t, out, filepath.Join(home, ".vimrc"))
}

func TestUsageStyledSectionHeaders(t *testing.T) {
	out, err := runCommandCapture(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "USAGE:")
	assert.Contains(t, out, "COMMANDS:")
	assert.Contains(t, out, "FLAGS:")
}

func TestValidateCommandMissingFile(t *testing.T) {
	_, _ = testEnv(t)
	err := runCommand(t, "validate", "-c", "/nonexistent/rig.yaml")
	require.Error(t, err)
}

func TestApplyDryRunLeavesNoTrace(t *testing.T) {
	rigPath, home := testEnv(t)

	require.NoError(t, runCommand(t, "apply", "-n", "-c", rigPath))

	_, statErr := os.Lstat(filepath.Join(home, ".vimrc"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestApplyThenStatusAndClean(t *testing.T) {
	rigPath, home := testEnv(t)
	target := filepath.Join(home, ".vimrc")

	require.NoError(t, runCommand(t, "apply", "-c", rigPath))
	_, err := os.Readlink(target)
	require.NoError(t, err)

	require.NoError(t, runCommand(t, "status", "-c", rigPath))
	require.NoError(t, runCommand(t, "diff", "-c", rigPath))

	require.NoError(t, runCommand(t, "clean", "-c", rigPath))
	_, statErr := os.Lstat(target)
	assert.True(t, os.IsNotExist(statErr))
}

func TestInitCommand(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_STATE_HOME", filepath.Join(base, "xdg-state"))
	path := filepath.Join(base, "rig.yaml")

	require.NoError(t, runCommand(t, "init", "-c", path))
	assert.FileExists(t, path)

	err := runCommand(t, "init", "-c", path)
	require.Error(t, err, "refuses to overwrite without --force")

	require.NoError(t, runCommand(t, "init", "-c", path, "-f"))
}

func TestApplyRejectsTargetOutsideHome(t *testing.T) {
	base := t.TempDir()
	home := filepath.Join(base, "home")
	require.NoError(t, os.MkdirAll(home, 0755))

	t.Setenv("HOME", home)
	t.Setenv("XDG_STATE_HOME", filepath.Join(base, "xdg-state"))
	t.Setenv(paths.EnvStateDir, filepath.Join(base, "state"))
	t.Setenv(paths.EnvBackupDir, filepath.Join(base, "backups"))

	outside := filepath.Join(base, "outside", ".vimrc")
	rigPath := filepath.Join(base, "rig.yaml")
	rig := `name: testbox
dotfiles:
  - source: vimrc
    target: ` + outside + `
`
	require.NoError(t, os.WriteFile(rigPath, []byte(rig), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "vimrc"), []byte("x\n"), 0644))

	err := runCommand(t, "apply", "-c", rigPath)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrUnsafePath))

	_, statErr := os.Lstat(outside)
	assert.True(t, os.IsNotExist(statErr), "nothing written outside the home root")
}

func TestRollbackWithNothingPending(t *testing.T) {
	_, _ = testEnv(t)
	require.NoError(t, runCommand(t, "rollback"))
}

func TestBackupAndRestore(t *testing.T) {
	rigPath, home := testEnv(t)
	target := filepath.Join(home, ".vimrc")
	require.NoError(t, os.WriteFile(target, []byte("original\n"), 0644))

	require.NoError(t, runCommand(t, "backup", "-c", rigPath))

	require.NoError(t, os.WriteFile(target, []byte("mutated\n"), 0644))
	require.NoError(t, runCommand(t, "restore", "-c", rigPath))

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "original\n", string(content))
}
