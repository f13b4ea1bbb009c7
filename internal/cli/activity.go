package cli

import (
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/spf13/cobra"
)

var activityCmd = &cobra.Command{
	Use:   "activity [game]",
	Short: "Show who else is playing a game",
	Long: `List the other machines currently playing a game, as published by their
process watcher daemons. Defaults to the game selected in the UI.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runActivity,
}

func init() {
	rootCmd.AddCommand(activityCmd)
}

func runActivity(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := cmd.Context()

	env, err := openEnvironment(ctx)
	if err != nil {
		return out.WriteError("activity", utils.AsCLIError(err))
	}
	defer env.Close()
	if err := env.requireAuth(); err != nil {
		return out.WriteError("activity", utils.AsCLIError(err))
	}

	name := ""
	if len(args) == 1 {
		name = args[0]
	} else {
		st, err := env.app.State.Load()
		if err != nil {
			logger.Warn("Using default state", loggingError(err))
		}
		name = st.SelectedGame
	}
	if name == "" {
		return out.WriteError("activity", utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"No game selected. Pass a game name.").Build())
	}

	entries, err := env.app.Activity.Refresh(ctx, name)
	if err != nil {
		return out.WriteError("activity", utils.AsCLIError(err))
	}
	return out.WriteSuccess("activity", types.ActivityList(entries))
}
