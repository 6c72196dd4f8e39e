package main

// User-facing message strings, kept together so the command wiring stays
// readable.
const (
	MsgRootShort = "A declarative environment bootstrapper"
	MsgRootLong  = `autorig applies a declarative description of a machine environment:
system packages, git repositories, dotfile symlinks, scripts and hooks.
Every mutating step is recorded, and a failed run is rolled back to the
state the machine was in before it started.`

	MsgFlagVerbose = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagDryRun  = "Preview changes without executing them"
	MsgFlagForce   = "Replace existing files at dotfile targets (after backing them up)"
	MsgFlagProfile = "Apply the named profile overlay from the rig file"
	MsgFlagConfig  = "Path to the rig file (default $AUTORIG_CONFIG or ~/.autorig.yaml)"

	MsgApplyShort = "Apply the rig to this machine"
	MsgApplyLong  = `Apply runs the full pipeline: packages, repositories, dotfiles, scripts,
with hooks at every phase boundary. On failure every reversible change is
undone; irreversible steps (installed packages, cloned repositories) are
reported instead.`

	MsgValidateShort = "Validate the rig file without applying it"
	MsgStatusShort   = "Show how the rig maps onto this machine"
	MsgDiffShort     = "Show what an apply would change"
	MsgCleanShort    = "Remove the symlinks the rig manages"
	MsgSyncShort     = "Clone or update the rig's repositories"
	MsgRollbackShort = "Roll back the operation log of an interrupted run"
	MsgBackupShort   = "Snapshot the current dotfile targets"
	MsgRestoreShort  = "Restore dotfile targets from a snapshot"
	MsgRestoreLong   = `Restore writes every file recorded in a snapshot archive back to its
original location, verifying checksums first. Without an argument the
newest snapshot is used.`
	MsgInitShort  = "Write a starter rig file"
	MsgGuideShort = "Show the user guide"
)

// MsgUsageTemplate is cobra's usage layout with section headers pushed
// through the bold/boldUpper template funcs from formatting.go.
const MsgUsageTemplate = `{{boldUpper "Usage:"}}{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

{{boldUpper "Aliases:"}}
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

{{boldUpper "Examples:"}}
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

{{boldUpper "Available Commands:"}}{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{bold (upper .Title)}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

{{boldUpper "Additional Commands:"}}{{range $cmds}}{{if (and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

{{boldUpper "Flags:"}}
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

{{boldUpper "Global Flags:"}}
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`

// starterRig is written by the init command.
const starterRig = `# autorig configuration
name: my-machine

variables:
  editor: vim

system:
  packages: []

git:
  repositories: []
    # - url: https://github.com/you/dotfiles
    #   path: ~/src/dotfiles
    #   branch: main

dotfiles: []
  # - source: vimrc
  #   target: ~/.vimrc

scripts: []
  # - command: echo hello
  #   condition: test -d ~/src

hooks: {}
  # pre_system:
  #   - command: echo starting

profiles: {}
  # work:
  #   variables:
  #     editor: code
`
