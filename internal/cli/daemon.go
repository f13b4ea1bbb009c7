package cli

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/dl-alexandre/savegem/internal/changewatch"
	"github.com/dl-alexandre/savegem/internal/daemon"
	"github.com/dl-alexandre/savegem/internal/events"
	"github.com/dl-alexandre/savegem/internal/games"
	"github.com/dl-alexandre/savegem/internal/ipc"
	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/process"
	"github.com/dl-alexandre/savegem/internal/processwatch"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run a background service",
	Long: `Background services are normally started by 'savegem watchdog'. Each one
binds its loopback port, so a second instance exits with status 1.`,
}

var daemonChangesCmd = &cobra.Command{
	Use:         "changes",
	Short:       "Watch remote changes of the selected game and the game configuration",
	Annotations: map[string]string{logFileAnnotation: "changes.log"},
	Args:        cobra.NoArgs,
	RunE:        runDaemonChanges,
}

var daemonProcessesCmd = &cobra.Command{
	Use:         "processes",
	Short:       "Publish which games are running and sync them in auto mode",
	Annotations: map[string]string{logFileAnnotation: "processes.log"},
	Args:        cobra.NoArgs,
	RunE:        runDaemonProcesses,
}

var (
	daemonResetCursor bool
	daemonWatchLocal  bool
	daemonHeartbeat   bool
)

func init() {
	daemonChangesCmd.Flags().BoolVar(&daemonResetCursor, "reset-cursor", false, "Forget the stored change cursor and start from now")
	daemonChangesCmd.Flags().BoolVar(&daemonWatchLocal, "watch-local", false, "Also report edits of the selected save directory")
	daemonProcessesCmd.Flags().BoolVar(&daemonHeartbeat, "heartbeat", false, "Rewrite the activity entry every round")

	daemonCmd.AddCommand(daemonChangesCmd)
	daemonCmd.AddCommand(daemonProcessesCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemonChanges(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, err := openDaemonEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	if env.app.Index == nil {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeUnknown,
			"the change watcher needs the status index").Build())
	}
	if daemonResetCursor {
		if err := env.app.Index.ClearPageToken(ctx, changewatch.ServiceName); err != nil {
			return err
		}
		logger.Info("Change cursor cleared")
	}

	watcher := changewatch.New(changewatch.Options{
		Fs:         env.app.Fs,
		Store:      env.app.Store,
		Games:      env.app.Games,
		State:      env.app.State,
		Index:      env.app.Index,
		Notify:     ipc.NotifyPort(env.cfg.UIPort),
		WatchLocal: daemonWatchLocal,
		Logger:     logger,
	})
	defer watcher.Close()

	return runDaemon(ctx, env, changewatch.ServiceName, env.cfg.ChangesPort, watcher)
}

func runDaemonProcesses(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, err := openDaemonEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	ch := events.NewChannel()
	ch.Subscribe(func(e events.Event) {
		if e.Type == events.TypeError {
			logger.Warn("Auto sync transfer failed", logging.F("kind", string(e.Kind)))
		}
	})
	downloader, uploader := env.transfers(ch)

	watcher := processwatch.New(processwatch.Options{
		Fs:         env.app.Fs,
		Store:      env.app.Store,
		Games:      env.app.Games,
		State:      env.app.State,
		Activity:   env.app.Activity,
		Lister:     process.NewLister(),
		Downloader: downloader,
		Uploader:   uploader,
		Notify:     ipc.NotifyPort(env.cfg.UIPort),
		Heartbeat:  daemonHeartbeat,
		Logger:     logger,
	})

	return runDaemon(ctx, env, "processes", env.cfg.ProcessesPort, watcher)
}

// openDaemonEnvironment swaps in a registry that leaves credentials alone
// when the game configuration cannot be loaded. Only the UI and one-shot
// commands force a new sign-in.
func openDaemonEnvironment(ctx context.Context) (*environment, error) {
	env, err := openEnvironment(ctx)
	if err != nil {
		return nil, err
	}
	env.app.Games = games.NewRegistry(env.app.Store, env.cfg.GameConfigFileID, games.Options{
		Profile: env.profile,
		Logger:  logger,
	})
	return env, nil
}

func runDaemon(ctx context.Context, env *environment, name string, port int, worker daemon.Worker) error {
	runner, err := daemon.New(ctx, worker, daemon.Options{
		Name:        name,
		Port:        port,
		Interval:    env.cfg.GetDaemonInterval(),
		RequireAuth: true,
		IsAuthenticated: func() bool {
			return env.auth.IsAuthenticated(env.profile)
		},
		ConfigPath: filepath.Join(env.configDir, name+".toml"),
		Logger:     logger,
	})
	if err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			logger.Info("Another instance is running", logging.F("service", name), logging.F("port", port))
		}
		return err
	}
	return runner.Run(ctx)
}
