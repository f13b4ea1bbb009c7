package cli

import (
	"github.com/dl-alexandre/savegem/internal/config"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/dl-alexandre/savegem/pkg/version"
	"github.com/spf13/cobra"
)

var aboutCmd = &cobra.Command{
	Use:   "about",
	Short: "Display the Drive account and this machine's identity",
	Long: `Show the account the remote store is accessed as, the name and id other
players see for this machine, and where local state lives.`,
	Args: cobra.NoArgs,
	RunE: runAbout,
}

func init() {
	rootCmd.AddCommand(aboutCmd)
}

func runAbout(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := cmd.Context()

	env, err := openEnvironment(ctx)
	if err != nil {
		return out.WriteError("about", utils.AsCLIError(err))
	}
	defer env.Close()
	if err := env.requireAuth(); err != nil {
		return out.WriteError("about", utils.AsCLIError(err))
	}

	user, err := env.app.Store.CurrentUser(ctx)
	if err != nil {
		return out.WriteError("about", utils.AsCLIError(err))
	}
	machineID, err := config.MachineID()
	if err != nil {
		return out.WriteError("about", utils.AsCLIError(err))
	}

	return out.WriteSuccess("about", map[string]interface{}{
		"version":          version.Get().Short(),
		"profile":          env.profile,
		"account":          user.EmailAddress,
		"accountName":      orDash(user.DisplayName),
		"machineId":        machineID,
		"machineName":      env.cfg.MachineName,
		"configDir":        env.configDir,
		"gameConfigFileId": env.cfg.GameConfigFileID,
		"activityFileId":   orDash(env.cfg.ActivityFileID),
		"storageBackend":   env.auth.StorageBackend(),
	})
}
