package cli

import (
	"fmt"

	"github.com/dl-alexandre/savegem/internal/app"
	"github.com/dl-alexandre/savegem/internal/config"
	"github.com/dl-alexandre/savegem/internal/index"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [game...]",
	Short: "Compare local saves with the latest uploaded archive",
	Long: `Show the sync status of every configured game, or of the named games.

With --history, show the recorded status changes of a single game instead.`,
	RunE: runStatus,
}

var statusHistory int

func init() {
	statusCmd.Flags().IntVar(&statusHistory, "history", 0, "Show the last N recorded statuses of one game")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := cmd.Context()

	if statusHistory > 0 {
		return runStatusHistory(cmd, out, args)
	}

	env, err := openEnvironment(ctx)
	if err != nil {
		return out.WriteError("status", utils.AsCLIError(err))
	}
	defer env.Close()
	if err := env.requireAuth(); err != nil {
		return out.WriteError("status", utils.AsCLIError(err))
	}
	if err := env.app.Games.Load(ctx); err != nil {
		return out.WriteError("status", utils.AsCLIError(err))
	}

	selected, err := selectGames(env, args)
	if err != nil {
		return out.WriteError("status", utils.AsCLIError(err))
	}

	result := make(types.GameStatusList, 0, len(selected))
	for _, game := range selected {
		st, err := app.GameStatus(ctx, env.app, game)
		if err != nil {
			logger.Warn("Status failed", loggingGame(game, err)...)
			st = types.GameStatus{Game: game.Name, Error: utils.AsCLIError(err).Message}
		}
		result = append(result, st)
	}
	return out.WriteSuccess("status", result)
}

func runStatusHistory(cmd *cobra.Command, out *OutputWriter, args []string) error {
	if len(args) != 1 {
		return out.WriteError("status", utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"--history needs exactly one game").Build())
	}

	dir, err := config.GetConfigDir()
	if err != nil {
		return err
	}
	db, err := index.Open(indexPath(dir))
	if err != nil {
		return out.WriteError("status", utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to open status index: %v", err)).Build())
	}
	defer db.Close()

	records, err := db.History(cmd.Context(), args[0], statusHistory)
	if err != nil {
		return out.WriteError("status", utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build())
	}
	return out.WriteSuccess("status.history", historyList(records))
}

// selectGames returns the named games, or all of them when names is empty
func selectGames(env *environment, names []string) ([]types.Game, error) {
	if len(names) == 0 {
		return env.app.Games.Games(), nil
	}
	out := make([]types.Game, 0, len(names))
	for _, name := range names {
		game, ok := env.app.Games.Find(name)
		if !ok {
			return nil, unknownGame(name)
		}
		out = append(out, game)
	}
	return out, nil
}

func unknownGame(name string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeUnknownGame,
		fmt.Sprintf("Game '%s' is not configured", name)).WithContext("game", name).Build())
}

// historyList renders recorded statuses, newest first
type historyList []index.StatusRecord

func (l historyList) Headers() []string {
	return []string{"Recorded", "Status", "Drive Owner", "Local Checksum", "Drive Checksum"}
}

func (l historyList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		rows = append(rows, []string{
			r.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			r.Status,
			orDash(r.DriveOwner),
			shortChecksum(r.LocalChecksum),
			shortChecksum(r.DriveChecksum),
		})
	}
	return rows
}

func (l historyList) EmptyMessage() string {
	return "No status recorded yet"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortChecksum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return orDash(sum)
}
