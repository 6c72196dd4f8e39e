// Package packages installs the rig's system packages through the host's
// package manager. Installation is an opaque external step: the engine
// records it as irreversible and never interprets package semantics.
package packages

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dacraezy1/autorig/pkg/errors"
	"github.com/Dacraezy1/autorig/pkg/logging"
	"github.com/Dacraezy1/autorig/pkg/oplog"
	"github.com/Dacraezy1/autorig/pkg/security"
	"github.com/Dacraezy1/autorig/pkg/shell"
)

// Installer invokes one batch install command per run.
type Installer struct {
	logger  zerolog.Logger
	log     *oplog.Log
	command []string
	timeout time.Duration
	dryRun  bool
}

// Options configures an Installer.
type Options struct {
	Log *oplog.Log
	// Command is the installer argv prefix, e.g. ["apt-get", "install", "-y"].
	// When empty the host's package manager is detected.
	Command []string
	Timeout time.Duration
	DryRun  bool
}

// New creates a package installer.
func New(opts Options) *Installer {
	cmd := opts.Command
	if len(cmd) == 0 {
		cmd = Detect()
	}
	return &Installer{
		logger:  logging.GetLogger("packages"),
		log:     opts.Log,
		command: cmd,
		timeout: opts.Timeout,
		dryRun:  opts.DryRun,
	}
}

// knownManagers maps a binary name to its batch install argv, in probe
// order. Mirrors the managers the project has always supported.
var knownManagers = []struct {
	binary string
	argv   []string
}{
	{"apt-get", []string{"apt-get", "install", "-y"}},
	{"dnf", []string{"dnf", "install", "-y"}},
	{"yum", []string{"yum", "install", "-y"}},
	{"zypper", []string{"zypper", "install", "-y"}},
	{"pacman", []string{"pacman", "-S", "--noconfirm"}},
	{"xbps-install", []string{"xbps-install", "-Sy"}},
	{"apk", []string{"apk", "add"}},
	{"brew", []string{"brew", "install"}},
}

// Detect returns the install argv for the first known package manager on
// PATH, or nil when none is found.
func Detect() []string {
	for _, m := range knownManagers {
		if _, err := exec.LookPath(m.binary); err == nil {
			return m.argv
		}
	}
	return nil
}

// Install runs one batch install for the given packages. The assembled
// command passes the security gate before execution; the operation is
// logged as irreversible.
func (in *Installer) Install(ctx context.Context, pkgs []string) error {
	if len(pkgs) == 0 {
		return nil
	}
	if len(in.command) == 0 {
		return errors.New(errors.ErrNotImplemented, "no supported package manager found on this host")
	}

	full := strings.Join(append(append([]string{}, in.command...), pkgs...), " ")
	if res := security.ValidateCommand(full); !res.OK {
		return errors.Newf(errors.ErrUnsafeCommand, "install command rejected: %s", res.Reason).
			WithDetail("command", full)
	}

	h, err := in.log.Begin(oplog.KindPackageInstall, strings.Join(pkgs, " "))
	if err != nil {
		return err
	}

	if in.dryRun {
		in.logger.Info().Str("command", full).Msg("Dry run - packages not installed")
		in.log.Commit(h)
		return nil
	}

	in.logger.Info().
		Strs("packages", pkgs).
		Str("command", full).
		Msg("Installing packages")

	out, err := shell.Run(ctx, full, "", in.timeout)
	if err != nil {
		return errors.Wrapf(err, errors.ErrPackageInstall,
			"package install failed (%d packages)", len(pkgs)).
			WithDetail("output", string(out))
	}
	in.log.Commit(h)

	in.logger.Info().Int("count", len(pkgs)).Msg("Packages installed")
	return nil
}
