package config

import (
	"path/filepath"

	"github.com/Dacraezy1/autorig/pkg/errors"
	"github.com/Dacraezy1/autorig/pkg/paths"
)

// Validate checks the rig for structural problems and normalizes defaults.
// It must be called before the rig is handed to the orchestrator; after a
// successful Validate the rig is treated as immutable.
func (r *Rig) Validate() error {
	if r.Name == "" {
		return errors.New(errors.ErrConfigValid, "rig name is required")
	}

	r.System.Packages = dedupe(r.System.Packages)

	seen := make(map[string]string)
	for i := range r.Git.Repositories {
		repo := &r.Git.Repositories[i]
		if repo.URL == "" {
			return errors.Newf(errors.ErrConfigValid, "repository %d: url is required", i)
		}
		if repo.Path == "" {
			return errors.Newf(errors.ErrConfigValid, "repository %d: path is required", i)
		}
		if repo.Branch == "" {
			repo.Branch = "main"
		}

		resolved := filepath.Clean(paths.Expand(repo.Path))
		if prev, dup := seen[resolved]; dup {
			return errors.Newf(errors.ErrConfigValid,
				"repositories %s and %s resolve to the same path %s", prev, repo.URL, resolved)
		}
		seen[resolved] = repo.URL
	}

	for i, df := range r.Dotfiles {
		if df.Source == "" {
			return errors.Newf(errors.ErrConfigValid, "dotfile %d: source is required", i)
		}
		if df.Target == "" {
			return errors.Newf(errors.ErrConfigValid, "dotfile %d: target is required", i)
		}
	}

	for i, s := range r.Scripts {
		if s.Command == "" {
			return errors.Newf(errors.ErrConfigValid, "script %d: command is required", i)
		}
	}

	for phase, hooks := range r.Hooks {
		if !IsValidHookPhase(phase) {
			return errors.Newf(errors.ErrConfigValid, "unknown hook phase: %s", phase)
		}
		for i, h := range hooks {
			if h.Command == "" {
				return errors.Newf(errors.ErrConfigValid, "hook %s[%d]: command is required", phase, i)
			}
		}
	}

	return nil
}

// dedupe removes duplicate package names, keeping first occurrence order.
func dedupe(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
