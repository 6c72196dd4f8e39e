package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRig = `
name: devbox
variables:
  email: jane@example.com
system:
  packages: [vim, curl, git, vim]
git:
  repositories:
    - url: https://example.com/dotfiles.git
      path: ~/src/dotfiles
    - url: https://example.com/tools.git
      path: ~/src/tools
      branch: develop
dotfiles:
  - source: bashrc
    target: ~/.bashrc
scripts:
  - command: make install
    description: build tools
    cwd: ~/src/tools
    condition: which make
hooks:
  pre_system:
    - command: echo starting
  post_dotfiles:
    - command: echo linked
      description: report
profiles:
  work:
    name: devbox-work
    system:
      packages: [docker]
`

func writeRig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rig.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadRig(t *testing.T) {
	rig, err := LoadRig(writeRig(t, sampleRig), "")
	require.NoError(t, err)

	assert.Equal(t, "devbox", rig.Name)
	assert.Equal(t, "jane@example.com", rig.Variables["email"])
	assert.Equal(t, []string{"vim", "curl", "git"}, rig.System.Packages, "duplicates removed")

	require.Len(t, rig.Git.Repositories, 2)
	assert.Equal(t, "main", rig.Git.Repositories[0].Branch, "branch defaults to main")
	assert.Equal(t, "develop", rig.Git.Repositories[1].Branch)

	require.Len(t, rig.Dotfiles, 1)
	assert.Equal(t, "bashrc", rig.Dotfiles[0].Source)
	assert.NotEmpty(t, rig.Dir)

	hooks := rig.HooksFor(PreSystem)
	require.Len(t, hooks, 1)
	assert.Equal(t, "echo starting", hooks[0].Command)
	assert.Empty(t, rig.HooksFor(PreGit))
}

func TestLoadRigWithProfile(t *testing.T) {
	rig, err := LoadRig(writeRig(t, sampleRig), "work")
	require.NoError(t, err)

	assert.Equal(t, "devbox-work", rig.Name, "profile overlay wins")
	assert.Equal(t, []string{"docker"}, rig.System.Packages, "profile list replaces base list")
}

func TestLoadRigUnknownProfile(t *testing.T) {
	_, err := LoadRig(writeRig(t, sampleRig), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown profile")
}

func TestLoadRigMissingFile(t *testing.T) {
	_, err := LoadRig(filepath.Join(t.TempDir(), "absent.yaml"), "")
	require.Error(t, err)
}

func TestLoadRigInvalidYAML(t *testing.T) {
	_, err := LoadRig(writeRig(t, "name: [unclosed"), "")
	require.Error(t, err)
}

func TestLoadSettings(t *testing.T) {
	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, 4, s.MaxParallel)
	assert.Equal(t, 120, s.CommandTimeoutSec)
	assert.Equal(t, 300, s.GitTimeoutSec)
}

func TestLoadSettingsEnvOverride(t *testing.T) {
	t.Setenv("AUTORIG_GIT__MAX_PARALLEL", "8")

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, 8, s.MaxParallel)
}
