package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dl-alexandre/savegem/internal/config"
	"github.com/dl-alexandre/savegem/internal/daemon"
	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/watchdog"
	"github.com/spf13/cobra"
)

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Keep the background daemons running",
	Long: `Start the change watcher and the process watcher and restart each of them
one interval after it exits. The command lines can be replaced with
watchdogCommands in config.json.`,
	Annotations: map[string]string{logFileAnnotation: "watchdog.log"},
	Args:        cobra.NoArgs,
	RunE:        runWatchdog,
}

func init() {
	rootCmd.AddCommand(watchdogCmd)
}

func runWatchdog(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	commands, err := watchdogCommands()
	if err != nil {
		return err
	}
	for _, argv := range commands {
		logger.Info("Supervising", logging.F("command", strings.Join(argv, " ")))
	}

	sup := watchdog.New(commands, watchdog.Options{
		Delay:   appConfig.GetDaemonInterval(),
		Starter: watchdog.ExecStarter{Stdout: os.Stdout, Stderr: os.Stderr},
		Logger:  logger,
	})

	configDir, err := config.GetConfigDir()
	if err != nil {
		return err
	}
	// No IPC port and no auth gate: the children wait for auth themselves
	runner, err := daemon.New(ctx, sup, daemon.Options{
		Name:       "watchdog",
		Interval:   appConfig.GetDaemonInterval(),
		ConfigPath: filepath.Join(configDir, "watchdog.toml"),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	sup.Start(ctx)
	err = runner.Run(ctx)
	sup.Wait()
	return err
}

// watchdogCommands returns the configured command lines, or this binary's
// own daemon subcommands
func watchdogCommands() ([][]string, error) {
	if appConfig != nil && len(appConfig.WatchdogCommands) > 0 {
		return appConfig.WatchdogCommands, nil
	}
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	return defaultDaemonCommands(self, globalFlags.Profile), nil
}

func defaultDaemonCommands(self, profile string) [][]string {
	return [][]string{
		{self, "--profile", profile, "daemon", "changes"},
		{self, "--profile", profile, "daemon", "processes"},
	}
}
