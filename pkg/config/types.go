package config

// HookPhase identifies one of the eight pipeline checkpoints where hooks run.
// The set is closed: a hooks key outside this set is a configuration error,
// never a silently dead entry.
type HookPhase string

const (
	PreSystem    HookPhase = "pre_system"
	PostSystem   HookPhase = "post_system"
	PreGit       HookPhase = "pre_git"
	PostGit      HookPhase = "post_git"
	PreDotfiles  HookPhase = "pre_dotfiles"
	PostDotfiles HookPhase = "post_dotfiles"
	PreScripts   HookPhase = "pre_scripts"
	PostScripts  HookPhase = "post_scripts"
)

// AllHookPhases lists the valid hook phases in pipeline order.
var AllHookPhases = []HookPhase{
	PreSystem, PostSystem,
	PreGit, PostGit,
	PreDotfiles, PostDotfiles,
	PreScripts, PostScripts,
}

// IsValidHookPhase reports whether s names a known hook phase.
func IsValidHookPhase(s string) bool {
	for _, p := range AllHookPhases {
		if string(p) == s {
			return true
		}
	}
	return false
}

// System describes the package set to install.
type System struct {
	Packages []string `koanf:"packages" yaml:"packages"`
}

// Repo describes one git repository to clone or update.
type Repo struct {
	URL    string `koanf:"url" yaml:"url"`
	Path   string `koanf:"path" yaml:"path"`
	Branch string `koanf:"branch" yaml:"branch"`
}

// Dotfile maps a source file (relative to the rig file) to a link target.
type Dotfile struct {
	Source string `koanf:"source" yaml:"source"`
	Target string `koanf:"target" yaml:"target"`
}

// Script is a user command run during the scripts phase. Condition, when
// set, is shell-evaluated first; a non-zero exit skips the script.
type Script struct {
	Command     string `koanf:"command" yaml:"command"`
	Description string `koanf:"description" yaml:"description,omitempty"`
	Cwd         string `koanf:"cwd" yaml:"cwd,omitempty"`
	Condition   string `koanf:"condition" yaml:"condition,omitempty"`
}

// Hook is a command bound to a phase boundary.
type Hook struct {
	Command     string `koanf:"command" yaml:"command"`
	Description string `koanf:"description" yaml:"description,omitempty"`
}

// Git groups the repository specs.
type Git struct {
	Repositories []Repo `koanf:"repositories" yaml:"repositories"`
}

// Rig is the validated, immutable in-memory representation of an
// environment description. It is owned exclusively by the orchestrator
// for the duration of a run.
type Rig struct {
	Name      string                           `koanf:"name" yaml:"name"`
	Variables map[string]string                `koanf:"variables" yaml:"variables,omitempty"`
	System    System                           `koanf:"system" yaml:"system,omitempty"`
	Git       Git                              `koanf:"git" yaml:"git,omitempty"`
	Dotfiles  []Dotfile                        `koanf:"dotfiles" yaml:"dotfiles,omitempty"`
	Scripts   []Script                         `koanf:"scripts" yaml:"scripts,omitempty"`
	Hooks     map[string][]Hook                `koanf:"hooks" yaml:"hooks,omitempty"`
	Profiles  map[string]map[string]interface{} `koanf:"profiles" yaml:"profiles,omitempty"`

	// Dir is the directory containing the rig file. Dotfile sources
	// resolve relative to it. Not part of the YAML schema.
	Dir string `koanf:"-" yaml:"-"`
}

// HooksFor returns the ordered hook list for a phase.
func (r *Rig) HooksFor(phase HookPhase) []Hook {
	if r.Hooks == nil {
		return nil
	}
	return r.Hooks[string(phase)]
}

// Settings holds app-level tunables loaded from the embedded defaults
// and AUTORIG_* environment overrides. These are not part of the rig file.
type Settings struct {
	// MaxParallel bounds the git sync worker pool.
	MaxParallel int `koanf:"git.max_parallel"`
	// CommandTimeoutSec bounds each hook/script/installer subprocess.
	CommandTimeoutSec int `koanf:"exec.command_timeout_sec"`
	// GitTimeoutSec bounds each repository clone or update.
	GitTimeoutSec int `koanf:"git.timeout_sec"`
}
