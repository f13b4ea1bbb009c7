package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dl-alexandre/savegem/internal/config"
	"github.com/dl-alexandre/savegem/internal/daemon"
	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/dl-alexandre/savegem/pkg/version"
	"github.com/spf13/cobra"
)

// logFileAnnotation names the log file a long-running command writes under
// <config dir>/logs when --log-file is not given
const logFileAnnotation = "savegem/log-file"

var (
	globalFlags    types.GlobalFlags
	logger         logging.Logger = logging.NewNoOpLogger()
	debugTransport *logging.DebugTransport
	appConfig      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "savegem",
	Short: "Keep game saves in sync between machines",
	Long: `savegem uploads and downloads game save directories through Google Drive
and shows who else is playing.

It runs as a foreground UI process plus two background daemons, one watching
remote changes and one watching local game processes, kept alive by a watchdog.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build())
		}
		appConfig = cfg

		if !cmd.Flags().Changed("profile") {
			globalFlags.Profile = cfg.DefaultProfile
		}
		if !cmd.Flags().Changed("output") && !globalFlags.JSON {
			globalFlags.OutputFormat = cfg.DefaultOutputFormat
		}
		if err := validateGlobalFlags(); err != nil {
			return err
		}
		return initLogger(cmd, cfg)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.Profile, "profile", "default", "Authentication profile to use")
	rootCmd.PersistentFlags().StringVar((*string)(&globalFlags.OutputFormat), "output", "table", "Output format (json, table)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "Enable debug output including remote requests")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")
}

func validateGlobalFlags() error {
	if globalFlags.JSON {
		globalFlags.OutputFormat = types.OutputFormatJSON
	}
	if globalFlags.OutputFormat != types.OutputFormatJSON && globalFlags.OutputFormat != types.OutputFormatTable {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid output format: %s", globalFlags.OutputFormat)).Build())
	}
	return nil
}

func initLogger(cmd *cobra.Command, cfg *config.Config) error {
	logConfig := logging.DefaultLogConfig()
	logConfig.Component = cmd.Name()
	logConfig.OutputFile = globalFlags.LogFile
	logConfig.EnableConsole = !globalFlags.Quiet
	logConfig.EnableColor = cfg.ColorOutput
	logConfig.EnableDebug = globalFlags.Debug

	logConfig.Level = logging.ParseLevel(cfg.LogLevel)
	if globalFlags.Verbose {
		logConfig.Level = logging.DEBUG
	}
	if globalFlags.OutputFormat == types.OutputFormatJSON && !globalFlags.Verbose && !globalFlags.Debug {
		logConfig.EnableConsole = false
	}
	if name, ok := cmd.Annotations[logFileAnnotation]; ok && logConfig.OutputFile == "" {
		if dir, err := config.GetConfigDir(); err == nil {
			logConfig.OutputFile = filepath.Join(dir, "logs", name)
		}
	}

	l, transport, err := logging.NewDebugLoggerWithTransport(logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = l
	debugTransport = transport
	return nil
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return utils.ExitSuccess
	}

	var reported *reportedError
	if !errors.As(err, &reported) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		return utils.ExitAlreadyRunning
	}
	return utils.GetExitCode(utils.AsCLIError(err).Code)
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() types.GlobalFlags {
	return globalFlags
}

// GetLogger returns the global logger
func GetLogger() logging.Logger {
	return logger
}
