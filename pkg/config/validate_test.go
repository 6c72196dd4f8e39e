package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRig() *Rig {
	return &Rig{
		Name: "test",
		Git: Git{Repositories: []Repo{
			{URL: "https://example.com/a.git", Path: "/tmp/work/a"},
		}},
		Dotfiles: []Dotfile{{Source: "bashrc", Target: "~/.bashrc"}},
		Scripts:  []Script{{Command: "make"}},
		Hooks:    map[string][]Hook{"pre_git": {{Command: "echo hi"}}},
	}
}

func TestValidateOK(t *testing.T) {
	rig := validRig()
	require.NoError(t, rig.Validate())
	assert.Equal(t, "main", rig.Git.Repositories[0].Branch)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Rig)
		wantMsg string
	}{
		{"missing name", func(r *Rig) { r.Name = "" }, "name is required"},
		{"repo without url", func(r *Rig) { r.Git.Repositories[0].URL = "" }, "url is required"},
		{"repo without path", func(r *Rig) { r.Git.Repositories[0].Path = "" }, "path is required"},
		{"duplicate repo paths", func(r *Rig) {
			r.Git.Repositories = append(r.Git.Repositories,
				Repo{URL: "https://example.com/b.git", Path: "/tmp/work/../work/a"})
		}, "same path"},
		{"dotfile without source", func(r *Rig) { r.Dotfiles[0].Source = "" }, "source is required"},
		{"dotfile without target", func(r *Rig) { r.Dotfiles[0].Target = "" }, "target is required"},
		{"script without command", func(r *Rig) { r.Scripts[0].Command = "" }, "command is required"},
		{"unknown hook phase", func(r *Rig) {
			r.Hooks["pre_gti"] = []Hook{{Command: "echo"}}
		}, "unknown hook phase"},
		{"hook without command", func(r *Rig) {
			r.Hooks["pre_git"] = []Hook{{Command: ""}}
		}, "command is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := validRig()
			tt.mutate(rig)
			err := rig.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestIsValidHookPhase(t *testing.T) {
	for _, p := range AllHookPhases {
		assert.True(t, IsValidHookPhase(string(p)))
	}
	assert.False(t, IsValidHookPhase("mid_system"))
}
