package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Dacraezy1/autorig/pkg/backup"
	"github.com/Dacraezy1/autorig/pkg/config"
	"github.com/Dacraezy1/autorig/pkg/core"
	"github.com/Dacraezy1/autorig/pkg/dotfiles"
	"github.com/Dacraezy1/autorig/pkg/errors"
	"github.com/Dacraezy1/autorig/pkg/gitsync"
	"github.com/Dacraezy1/autorig/pkg/logging"
	"github.com/Dacraezy1/autorig/pkg/oplog"
	"github.com/Dacraezy1/autorig/pkg/paths"
)

// sectionStyle renders the rig name header in status output.
var sectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)

func newApplyCmd(flags *rootFlags) *cobra.Command {
	var skipSnapshot bool

	cmd := &cobra.Command{
		Use:     "apply",
		Short:   MsgApplyShort,
		Long:    MsgApplyLong,
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			rig, err := loadRig(flags)
			if err != nil {
				return err
			}

			settings, err := config.LoadSettings()
			if err != nil {
				return err
			}
			p, err := paths.New()
			if err != nil {
				return err
			}

			o := core.New(core.Options{
				Rig:          rig,
				Settings:     settings,
				Paths:        p,
				DryRun:       flags.dryRun,
				Force:        flags.force,
				SkipSnapshot: skipSnapshot,
				AllowedRoots: []string{p.Home()},
			})

			report := o.Apply(cmd.Context())
			printApplyReport(rig.Name, flags.dryRun, report)
			return report.Err
		},
	}

	cmd.Flags().BoolVar(&skipSnapshot, "no-backup", false, "Skip the pre-run snapshot of dotfile targets")
	return cmd
}

func printApplyReport(name string, dryRun bool, report *core.Report) {
	for _, res := range report.GitResults {
		switch res.Status {
		case gitsync.StatusFailed:
			pterm.Error.Printfln("repo %s: %v", res.Repo.URL, res.Err)
		default:
			pterm.Info.Printfln("repo %s: %s", res.Repo.URL, res.Status)
		}
	}
	for _, res := range report.DotfileResults {
		pterm.Info.Printfln("dotfile %s: %s", res.Target, res.Action)
	}

	switch report.State {
	case core.StateSucceeded:
		if dryRun {
			pterm.Success.Printfln("%s: dry run complete, %d operations planned", name, len(report.Operations))
		} else {
			pterm.Success.Printfln("%s applied (%d operations)", name, len(report.Operations))
		}
	case core.StateRolledBack:
		pterm.Error.Printfln("%s failed in phase %s; %d operations rolled back",
			name, report.FailedPhase, len(report.Rollback))
		for _, rb := range report.Rollback {
			if rb.Irreversible {
				pterm.Warning.Printfln("irreversible, left in place: %s %s", rb.Record.Kind, rb.Record.Target)
			}
		}
	case core.StateRollbackFailed:
		pterm.Error.Printfln("%s failed in phase %s and rollback was incomplete: %v",
			name, report.FailedPhase, report.RollbackErr)
	case core.StateFailed:
		pterm.Error.Printfln("%s failed: %v", name, report.Err)
	}
}

func newValidateCmd(flags *rootFlags) *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:     "validate",
		Short:   MsgValidateShort,
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			rig, err := loadRig(flags)
			if err != nil {
				return err
			}
			if show {
				data, err := yaml.Marshal(rig)
				if err != nil {
					return errors.Wrap(err, errors.ErrInternal, "cannot render effective configuration")
				}
				fmt.Fprint(cmd.OutOrStdout(), string(data))
			}
			pterm.Success.Printfln("%s is valid: %d packages, %d repos, %d dotfiles, %d scripts",
				rig.Name, len(rig.System.Packages), len(rig.Git.Repositories),
				len(rig.Dotfiles), len(rig.Scripts))
			return nil
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "Print the effective configuration after profile merging")
	return cmd
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   MsgStatusShort,
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			rig, err := loadRig(flags)
			if err != nil {
				return err
			}
			o, _, err := buildOrchestrator(flags, rig)
			if err != nil {
				return err
			}

			report, err := o.Status()
			if err != nil {
				return err
			}

			fmt.Println(sectionStyle.Render(report.Rig))
			for _, st := range report.Dotfiles {
				switch st.State {
				case core.DotfileLinked:
					pterm.Success.Printfln("dotfile %s: linked", st.Target)
				case core.DotfileMissing:
					pterm.Info.Printfln("dotfile %s: missing", st.Target)
				default:
					pterm.Warning.Printfln("dotfile %s: %s", st.Target, st.State)
				}
			}
			for _, st := range report.Repos {
				switch st.State {
				case core.RepoPresent:
					pterm.Success.Printfln("repo %s: present", st.Path)
				case core.RepoMissing:
					pterm.Info.Printfln("repo %s: missing", st.Path)
				default:
					pterm.Warning.Printfln("repo %s: %s", st.Path, st.State)
				}
			}
			pterm.Info.Printfln("snapshots: %d", len(report.Snapshots))
			if report.PendingRollback {
				pterm.Warning.Println("an interrupted run left an operation log; run 'autorig rollback'")
			}
			return nil
		},
	}
}

func newDiffCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "diff",
		Short:   MsgDiffShort,
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			rig, err := loadRig(flags)
			if err != nil {
				return err
			}
			o, _, err := buildOrchestrator(flags, rig)
			if err != nil {
				return err
			}

			plan, err := o.Diff(cmd.Context())
			if err != nil {
				return err
			}

			pending := 0
			for _, res := range plan.Dotfiles {
				if res.Action == dotfiles.ActionUnchanged {
					continue
				}
				pending++
				pterm.Info.Printfln("dotfile %s: would be %s", res.Target, res.Action)
			}
			for _, repo := range plan.MissingRepos {
				pending++
				pterm.Info.Printfln("repo %s: would be cloned to %s", repo.URL, repo.Path)
			}
			if len(plan.Packages) > 0 {
				pterm.Info.Printfln("packages handed to the package manager: %d", len(plan.Packages))
			}
			if pending == 0 {
				pterm.Success.Println("nothing to do")
			}
			return nil
		},
	}
}

func newCleanCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "clean",
		Short:   MsgCleanShort,
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			rig, err := loadRig(flags)
			if err != nil {
				return err
			}
			o, _, err := buildOrchestrator(flags, rig)
			if err != nil {
				return err
			}

			removed, err := o.Clean(cmd.Context())
			for _, target := range removed {
				if flags.dryRun {
					pterm.Info.Printfln("would remove %s", target)
				} else {
					pterm.Info.Printfln("removed %s", target)
				}
			}
			if err != nil {
				return err
			}
			pterm.Success.Printfln("%d managed symlinks", len(removed))
			return nil
		},
	}
}

func newSyncCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "sync",
		Short:   MsgSyncShort,
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			rig, err := loadRig(flags)
			if err != nil {
				return err
			}
			o, _, err := buildOrchestrator(flags, rig)
			if err != nil {
				return err
			}

			results, err := o.Sync(cmd.Context())
			for _, res := range results {
				if res.Status == gitsync.StatusFailed {
					pterm.Error.Printfln("repo %s: %v", res.Repo.URL, res.Err)
				} else {
					pterm.Info.Printfln("repo %s: %s", res.Repo.URL, res.Status)
				}
			}
			return err
		},
	}
}

func newRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rollback",
		Short:   MsgRollbackShort,
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := paths.New()
			if err != nil {
				return err
			}

			if _, statErr := os.Stat(core.OplogPath(p)); os.IsNotExist(statErr) {
				pterm.Info.Println("no pending operation log; nothing to roll back")
				return nil
			}

			results, err := core.RollbackPersisted(p)
			printRollbackResults(results)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("rolled back %d operations", len(results))
			return nil
		},
	}
}

func printRollbackResults(results []oplog.RollbackResult) {
	for _, rb := range results {
		switch {
		case rb.Err != nil:
			pterm.Error.Printfln("could not undo %s %s: %v", rb.Record.Kind, rb.Record.Target, rb.Err)
		case rb.Irreversible:
			pterm.Warning.Printfln("irreversible, left in place: %s %s", rb.Record.Kind, rb.Record.Target)
		case rb.Undone:
			pterm.Info.Printfln("undone: %s %s", rb.Record.Kind, rb.Record.Target)
		}
	}
}

func newBackupCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "backup",
		Short:   MsgBackupShort,
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			rig, err := loadRig(flags)
			if err != nil {
				return err
			}
			p, err := paths.New()
			if err != nil {
				return err
			}
			if err := p.EnsureDirs(); err != nil {
				return err
			}

			mgr := backup.New(p.BackupDir(), []string{p.Home()})
			archivePath, manifest, err := mgr.Snapshot(rig)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("snapshot %s (%d files)", archivePath, len(manifest.Entries))
			return nil
		},
	}
}

func newRestoreCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "restore [snapshot]",
		Short:   MsgRestoreShort,
		Long:    MsgRestoreLong,
		GroupID: "core",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := paths.New()
			if err != nil {
				return err
			}

			mgr := backup.New(p.BackupDir(), []string{p.Home()})
			archivePath := ""
			if len(args) == 1 {
				archivePath = args[0]
			} else {
				archivePath, err = mgr.Latest()
				if err != nil {
					return err
				}
			}

			log := oplog.New(oplog.Options{
				DryRun:      flags.dryRun,
				PersistPath: core.OplogPath(p),
			})
			if flags.dryRun {
				pterm.Info.Printfln("would restore from %s", archivePath)
				return nil
			}

			manifest, err := mgr.Restore(archivePath, log)
			if err != nil {
				return err
			}
			log.Discard()
			pterm.Success.Printfln("restored %d files from %s", len(manifest.Entries), archivePath)
			return nil
		},
	}
}

func newInitCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "init",
		Short:   MsgInitShort,
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.GetLogger("cmd.init")

			path := flags.rigFile
			if path == "" {
				path = config.DefaultRigFile()
			}

			if _, err := os.Stat(path); err == nil && !flags.force {
				return errors.Newf(errors.ErrAlreadyExists,
					"%s already exists (use --force to overwrite)", path)
			}

			if err := os.WriteFile(path, []byte(starterRig), 0644); err != nil {
				return errors.Wrapf(err, errors.ErrFileWrite, "cannot write %s", path)
			}

			logger.Info().Str("path", path).Msg("Starter rig written")
			pterm.Success.Printfln("wrote %s", path)
			fmt.Println("Edit it, then run: autorig apply")
			return nil
		},
	}
}
