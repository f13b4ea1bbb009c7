package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dl-alexandre/savegem/internal/config"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Commands for managing the savegem configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration, environment overrides included",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value. Keys are case-insensitive:
  ` + strings.Join(configKeys(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset configuration to defaults",
	Args:  cobra.NoArgs,
	RunE:  runConfigReset,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	cfg, err := config.Load()
	if err != nil {
		return out.WriteError("config.show", utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build())
	}
	return out.WriteSuccess("config.show", configView(cfg))
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	key, value := args[0], args[1]

	cfg, err := config.Load()
	if err != nil {
		return out.WriteError("config.set", utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build())
	}
	if err := setConfigValue(cfg, key, value); err != nil {
		return out.WriteError("config.set", utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).
			WithContext("key", key).Build())
	}
	if err := cfg.Save(); err != nil {
		return out.WriteError("config.set", utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to save configuration: %v", err)).Build())
	}

	out.Log("Configuration updated: %s = %s", key, value)
	return out.WriteSuccess("config.set", map[string]interface{}{
		"key":   key,
		"value": value,
	})
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	cfg := config.DefaultConfig()
	if err := cfg.Save(); err != nil {
		return out.WriteError("config.reset", utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to reset configuration: %v", err)).Build())
	}

	out.Log("Configuration reset to defaults")
	return out.WriteSuccess("config.reset", configView(cfg))
}

type configSetter func(cfg *config.Config, value string) error

var configSetters = map[string]configSetter{
	"defaultprofile": func(cfg *config.Config, v string) error {
		cfg.DefaultProfile = v
		return nil
	},
	"defaultoutputformat": func(cfg *config.Config, v string) error {
		cfg.DefaultOutputFormat = types.OutputFormat(v)
		return nil
	},
	"gameconfigfileid": func(cfg *config.Config, v string) error {
		cfg.GameConfigFileID = v
		return nil
	},
	"activityfileid": func(cfg *config.Config, v string) error {
		cfg.ActivityFileID = v
		return nil
	},
	"machinename": func(cfg *config.Config, v string) error {
		cfg.MachineName = v
		return nil
	},
	"uiport":             intSetter(func(cfg *config.Config) *int { return &cfg.UIPort }),
	"changesport":        intSetter(func(cfg *config.Config) *int { return &cfg.ChangesPort }),
	"processesport":      intSetter(func(cfg *config.Config) *int { return &cfg.ProcessesPort }),
	"daemoninterval":     intSetter(func(cfg *config.Config) *int { return &cfg.DaemonInterval }),
	"activitystaleafter": intSetter(func(cfg *config.Config) *int { return &cfg.ActivityStaleAfter }),
	"maxretries":         intSetter(func(cfg *config.Config) *int { return &cfg.MaxRetries }),
	"retrybasedelay":     intSetter(func(cfg *config.Config) *int { return &cfg.RetryBaseDelay }),
	"loglevel": func(cfg *config.Config, v string) error {
		cfg.LogLevel = v
		return nil
	},
	"coloroutput": func(cfg *config.Config, v string) error {
		cfg.ColorOutput = parseBool(v)
		return nil
	},
}

func intSetter(field func(cfg *config.Config) *int) configSetter {
	return func(cfg *config.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%q is not a number", v)
		}
		*field(cfg) = n
		return nil
	}
}

// setConfigValue applies one key and validates the result as a whole
func setConfigValue(cfg *config.Config, key, value string) error {
	set, ok := configSetters[strings.ToLower(key)]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err := set(cfg, value); err != nil {
		return err
	}
	return cfg.Validate()
}

func configKeys() []string {
	keys := make([]string, 0, len(configSetters))
	for k := range configSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// configView flattens cfg for the key/value table
func configView(cfg *config.Config) map[string]interface{} {
	view := map[string]interface{}{
		"defaultProfile":      cfg.DefaultProfile,
		"defaultOutputFormat": string(cfg.DefaultOutputFormat),
		"gameConfigFileId":    orDash(cfg.GameConfigFileID),
		"activityFileId":      orDash(cfg.ActivityFileID),
		"machineName":         cfg.MachineName,
		"uiPort":              cfg.UIPort,
		"changesPort":         cfg.ChangesPort,
		"processesPort":       cfg.ProcessesPort,
		"daemonInterval":      cfg.DaemonInterval,
		"activityStaleAfter":  cfg.ActivityStaleAfter,
		"maxRetries":          cfg.MaxRetries,
		"retryBaseDelay":      cfg.RetryBaseDelay,
		"logLevel":            cfg.LogLevel,
		"colorOutput":         cfg.ColorOutput,
	}
	for i, argv := range cfg.WatchdogCommands {
		view[fmt.Sprintf("watchdogCommands[%d]", i)] = strings.Join(argv, " ")
	}
	return view
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
