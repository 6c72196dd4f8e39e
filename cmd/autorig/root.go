package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/Dacraezy1/autorig/internal/version"
	"github.com/Dacraezy1/autorig/pkg/config"
	"github.com/Dacraezy1/autorig/pkg/core"
	"github.com/Dacraezy1/autorig/pkg/logging"
	"github.com/Dacraezy1/autorig/pkg/paths"
)

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	verbosity int
	dryRun    bool
	force     bool
	profile   string
	rigFile   string
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	initTemplateFormatting()

	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:     "autorig",
		Short:   MsgRootShort,
		Long:    MsgRootLong,
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(flags.verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return fmt.Errorf("no command specified")
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}

	rootCmd.SetUsageTemplate(MsgUsageTemplate)

	rootCmd.PersistentFlags().CountVarP(&flags.verbosity, "verbose", "v", MsgFlagVerbose)
	rootCmd.PersistentFlags().BoolVarP(&flags.dryRun, "dry-run", "n", false, MsgFlagDryRun)
	rootCmd.PersistentFlags().BoolVarP(&flags.force, "force", "f", false, MsgFlagForce)
	rootCmd.PersistentFlags().StringVarP(&flags.profile, "profile", "p", "", MsgFlagProfile)
	rootCmd.PersistentFlags().StringVarP(&flags.rigFile, "config", "c", "", MsgFlagConfig)

	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "COMMANDS:"})
	rootCmd.AddGroup(&cobra.Group{ID: "misc", Title: "MISC:"})

	rootCmd.AddCommand(newApplyCmd(flags))
	rootCmd.AddCommand(newValidateCmd(flags))
	rootCmd.AddCommand(newStatusCmd(flags))
	rootCmd.AddCommand(newDiffCmd(flags))
	rootCmd.AddCommand(newCleanCmd(flags))
	rootCmd.AddCommand(newSyncCmd(flags))
	rootCmd.AddCommand(newRollbackCmd())
	rootCmd.AddCommand(newBackupCmd(flags))
	rootCmd.AddCommand(newRestoreCmd(flags))
	rootCmd.AddCommand(newInitCmd(flags))
	rootCmd.AddCommand(newGuideCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())
	rootCmd.AddCommand(newManCmd(rootCmd))

	return rootCmd
}

// loadRig resolves the rig file, applies the selected profile and returns
// the validated configuration.
func loadRig(flags *rootFlags) (*config.Rig, error) {
	path := flags.rigFile
	if path == "" {
		path = config.DefaultRigFile()
	}
	return config.LoadRig(path, flags.profile)
}

// buildOrchestrator assembles the engine for the loaded rig.
func buildOrchestrator(flags *rootFlags, rig *config.Rig) (*core.Orchestrator, *paths.Paths, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, nil, err
	}
	p, err := paths.New()
	if err != nil {
		return nil, nil, err
	}
	o := core.New(core.Options{
		Rig:          rig,
		Settings:     settings,
		Paths:        p,
		DryRun:       flags.dryRun,
		Force:        flags.force,
		AllowedRoots: []string{p.Home()},
	})
	return o, p, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Print version information",
		GroupID: "misc",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("autorig version %s\n", version.Version)
			fmt.Printf("  commit: %s\n", version.Commit)
			fmt.Printf("  built:  %s\n", version.Date)
		},
	}
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "completion [bash|zsh|fish|powershell]",
		Short:                 "Generate shell completion script",
		GroupID:               "misc",
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		Run: func(cmd *cobra.Command, args []string) {
			switch args[0] {
			case "bash":
				if err := cmd.Root().GenBashCompletion(cmd.OutOrStdout()); err != nil {
					log.Error().Err(err).Msg("Failed to generate bash completion")
				}
			case "zsh":
				if err := cmd.Root().GenZshCompletion(cmd.OutOrStdout()); err != nil {
					log.Error().Err(err).Msg("Failed to generate zsh completion")
				}
			case "fish":
				if err := cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true); err != nil {
					log.Error().Err(err).Msg("Failed to generate fish completion")
				}
			case "powershell":
				if err := cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout()); err != nil {
					log.Error().Err(err).Msg("Failed to generate powershell completion")
				}
			}
		},
	}
}

func newManCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:     "man",
		Short:   "Generate man pages",
		GroupID: "misc",
		RunE: func(cmd *cobra.Command, args []string) error {
			header := &doc.GenManHeader{
				Title:   "AUTORIG",
				Section: "1",
			}
			return doc.GenManTree(root, header, "/tmp")
		},
	}
}
