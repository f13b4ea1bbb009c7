package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// MachineIDFileName holds the generated machine identifier
	MachineIDFileName = "machine_id"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "SAVEGEM_"
)

// Config holds application configuration
type Config struct {
	// DefaultProfile is the authentication profile to use
	DefaultProfile string `json:"defaultProfile"`

	// DefaultOutputFormat is the default output format (json, table)
	DefaultOutputFormat types.OutputFormat `json:"defaultOutputFormat"`

	// GameConfigFileID is the remote document listing the configured games
	GameConfigFileID string `json:"gameConfigFileId"`

	// ActivityFileID is the remote document recording who is playing what
	ActivityFileID string `json:"activityFileId"`

	// MachineName is shown to other players. Defaults to the host name.
	MachineName string `json:"machineName"`

	// UIPort, ChangesPort and ProcessesPort are the loopback IPC ports
	UIPort        int `json:"uiPort"`
	ChangesPort   int `json:"changesPort"`
	ProcessesPort int `json:"processesPort"`

	// DaemonInterval is the default daemon poll interval in seconds
	DaemonInterval int `json:"daemonInterval"`

	// ActivityStaleAfter hides activity entries older than this many seconds. 0 disables it.
	ActivityStaleAfter int `json:"activityStaleAfter"`

	// WatchdogCommands overrides the command lines the watchdog keeps alive
	WatchdogCommands [][]string `json:"watchdogCommands,omitempty"`

	// MaxRetries is the maximum number of retries for API calls
	MaxRetries int `json:"maxRetries"`

	// RetryBaseDelay is the base delay for exponential backoff in milliseconds
	RetryBaseDelay int `json:"retryBaseDelay"`

	// LogLevel sets the logging verbosity (quiet, normal, verbose, debug)
	LogLevel string `json:"logLevel"`

	// ColorOutput enables color output for console logs and tables
	ColorOutput bool `json:"colorOutput"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultProfile:      "default",
		DefaultOutputFormat: types.OutputFormatTable,
		MachineName:         defaultMachineName(),
		UIPort:              utils.DefaultUIPort,
		ChangesPort:         utils.DefaultChangesPort,
		ProcessesPort:       utils.DefaultProcessesPort,
		DaemonInterval:      utils.DefaultDaemonIntervalSeconds,
		ActivityStaleAfter:  0,
		MaxRetries:          3,
		RetryBaseDelay:      1000,
		LogLevel:            "normal",
		ColorOutput:         true,
	}
}

// Load loads configuration with precedence: CLI flags > env vars > config file > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv(EnvPrefix + "DEFAULT_PROFILE"); v != "" {
		c.DefaultProfile = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_FORMAT"); v != "" {
		c.DefaultOutputFormat = types.OutputFormat(v)
	}
	if v := os.Getenv(EnvPrefix + "GAME_CONFIG_FILE_ID"); v != "" {
		c.GameConfigFileID = v
	}
	if v := os.Getenv(EnvPrefix + "ACTIVITY_FILE_ID"); v != "" {
		c.ActivityFileID = v
	}
	if v := os.Getenv(EnvPrefix + "MACHINE_NAME"); v != "" {
		c.MachineName = v
	}
	envInt(EnvPrefix+"UI_PORT", &c.UIPort)
	envInt(EnvPrefix+"CHANGES_PORT", &c.ChangesPort)
	envInt(EnvPrefix+"PROCESSES_PORT", &c.ProcessesPort)
	envInt(EnvPrefix+"DAEMON_INTERVAL", &c.DaemonInterval)
	envInt(EnvPrefix+"ACTIVITY_STALE_AFTER", &c.ActivityStaleAfter)
	envInt(EnvPrefix+"MAX_RETRIES", &c.MaxRetries)
	envInt(EnvPrefix+"RETRY_BASE_DELAY", &c.RetryBaseDelay)
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "COLOR_OUTPUT"); v != "" {
		c.ColorOutput = parseBool(v)
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// Save saves the configuration to the config file
func (c *Config) Save() error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DefaultOutputFormat != types.OutputFormatJSON &&
		c.DefaultOutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s (must be 'json' or 'table')", c.DefaultOutputFormat)
	}

	ports := map[string]int{"uiPort": c.UIPort, "changesPort": c.ChangesPort, "processesPort": c.ProcessesPort}
	seen := map[int]string{}
	for _, name := range []string{"uiPort", "changesPort", "processesPort"} {
		port := ports[name]
		if port < 1 || port > 65535 {
			return fmt.Errorf("%s must be between 1 and 65535, got: %d", name, port)
		}
		if other, ok := seen[port]; ok {
			return fmt.Errorf("%s and %s must differ, both are %d", other, name, port)
		}
		seen[port] = name
	}

	if c.DaemonInterval < 1 {
		return fmt.Errorf("daemon interval must be at least 1 second, got: %d", c.DaemonInterval)
	}

	if c.ActivityStaleAfter < 0 {
		return fmt.Errorf("activity stale-after must be non-negative, got: %d", c.ActivityStaleAfter)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got: %d", c.MaxRetries)
	}

	if c.RetryBaseDelay < 100 || c.RetryBaseDelay > 60000 {
		return fmt.Errorf("retry base delay must be between 100ms and 60000ms, got: %d", c.RetryBaseDelay)
	}

	validLogLevels := []string{"quiet", "normal", "verbose", "debug"}
	isValid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// GetRetryBaseDelay returns the retry base delay as a duration
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Millisecond
}

// GetDaemonInterval returns the daemon poll interval as a duration
func (c *Config) GetDaemonInterval() time.Duration {
	return time.Duration(c.DaemonInterval) * time.Second
}

// GetActivityStaleAfter returns the activity TTL; zero means disabled
func (c *Config) GetActivityStaleAfter() time.Duration {
	return time.Duration(c.ActivityStaleAfter) * time.Second
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return ExpandPath(dir)
	}
	homeDir, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "savegem"), nil
}

// percentVar matches %NAME% references, including names like ProgramFiles(x86)
var percentVar = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_()]*)%`)

// expandEnv expands %NAME% and then $NAME / ${NAME}. Unset %NAME%
// references are left as written.
func expandEnv(p string) string {
	p = percentVar.ReplaceAllStringFunc(p, func(m string) string {
		if v, ok := os.LookupEnv(m[1 : len(m)-1]); ok {
			return v
		}
		return m
	})
	return os.ExpandEnv(p)
}

// ExpandPath expands environment variables and a leading ~ in p
func ExpandPath(p string) (string, error) {
	expanded, err := homedir.Expand(expandEnv(p))
	if err != nil {
		return "", fmt.Errorf("failed to expand %q: %w", p, err)
	}
	return filepath.Clean(expanded), nil
}

// MachineID returns the identifier of this machine in the activity
// document, generating and storing one on first use
func MachineID() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(configDir, MachineIDFileName)

	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read machine id: %w", err)
	}

	id := uuid.New().String()
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to write machine id: %w", err)
	}
	return id, nil
}

func defaultMachineName() string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return "unknown"
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
