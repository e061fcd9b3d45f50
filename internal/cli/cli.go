// Package cli parses flags and subcommands and dispatches to a
// runner.Runner, mirroring the flaggy wiring in lazydocker's main.go
// but trimmed to mnb's flag surface: root path, Windows host flavor,
// dev mode, and the update/init/scripts subcommands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/berkgaut/mnb/internal/config"
	"github.com/berkgaut/mnb/internal/mnblog"
	"github.com/berkgaut/mnb/internal/runner"
	"github.com/integrii/flaggy"
)

// BuildInfo carries version metadata stamped in at link time, mirroring
// lazydocker's version/commit/date globals in main.go.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// Run parses os.Args, resolves an AppConfig and logger, and dispatches
// to the chosen Runner subcommand. It returns the process exit code:
// 0 on full success, non-zero when any action fails or when the entry
// document is missing or invalid.
func Run(ctx context.Context, info BuildInfo) int {
	var rootAbsPath string
	var windowsHost bool
	var devMode bool
	var debug bool

	flaggy.SetName("mnb")
	flaggy.SetDescription("make-in-a-box: a containerized build orchestrator")
	flaggy.SetVersion(fmt.Sprintf("%s (%s, %s)", info.Version, info.Commit, info.Date))

	flaggy.String(&rootAbsPath, "", "rootabspath", "absolute path to the working root (defaults to the current directory)")
	flaggy.Bool(&windowsHost, "", "windows-host", "format host-side bind-mount sources using Windows path flavor")
	flaggy.Bool(&devMode, "", "dev-mode", "run as if mnb itself were inside the container root")
	flaggy.Bool(&debug, "d", "debug", "enable verbose file-backed logging")

	updateCmd := flaggy.NewSubcommand("update")
	updateCmd.Description = "run the two-stage pipeline: generate, then execute the generated spec (default)"

	initCmd := flaggy.NewSubcommand("init")
	initCmd.Description = "create an empty entry document and launcher script"

	scriptsCmd := flaggy.NewSubcommand("scripts")
	scriptsCmd.Description = "re-render the launcher script only"

	flaggy.AttachSubcommand(updateCmd, 1)
	flaggy.AttachSubcommand(initCmd, 1)
	flaggy.AttachSubcommand(scriptsCmd, 1)

	flaggy.Parse()

	if rootAbsPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "resolve working directory:", err)
			return 1
		}
		rootAbsPath = wd
	}

	cfg, err := config.NewAppConfig(info.Version, info.Commit, info.Date, debug, rootAbsPath, windowsHost, devMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load configuration:", err)
		return 1
	}

	log := mnblog.NewLogger(cfg)
	r := runner.New(cfg, log)

	var runErr error
	switch {
	case initCmd.Used:
		runErr = r.Init()
	case scriptsCmd.Used:
		runErr = r.Scripts()
	default:
		runErr = r.Update(ctx)
	}

	if runErr != nil {
		log.Error(runErr)
		fmt.Fprintln(os.Stderr, runErr)
		return 1
	}
	return 0
}
