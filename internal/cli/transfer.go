package cli

import (
	"context"

	"github.com/dl-alexandre/savegem/internal/app"
	"github.com/dl-alexandre/savegem/internal/events"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download <game>",
	Short: "Replace local saves with the latest uploaded archive",
	Long: `Download the newest archive of a game and extract it over the local save
directory. The previous saves are copied to a sibling backup directory first.`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

var uploadCmd = &cobra.Command{
	Use:   "upload <game>",
	Short: "Archive local saves and upload them",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(uploadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	return runTransfer(cmd, "download", args[0], func(ctx context.Context, env *environment, ch *events.Channel, game types.Game) error {
		downloader, _ := env.transfers(ch)
		return downloader.Download(ctx, game)
	})
}

func runUpload(cmd *cobra.Command, args []string) error {
	return runTransfer(cmd, "upload", args[0], func(ctx context.Context, env *environment, ch *events.Channel, game types.Game) error {
		_, uploader := env.transfers(ch)
		return uploader.Upload(ctx, game)
	})
}

type transferFunc func(ctx context.Context, env *environment, ch *events.Channel, game types.Game) error

func runTransfer(cmd *cobra.Command, command, name string, fn transferFunc) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := cmd.Context()

	env, err := openEnvironment(ctx)
	if err != nil {
		return out.WriteError(command, utils.AsCLIError(err))
	}
	defer env.Close()
	if err := env.requireAuth(); err != nil {
		return out.WriteError(command, utils.AsCLIError(err))
	}
	if err := env.app.Games.Load(ctx); err != nil {
		return out.WriteError(command, utils.AsCLIError(err))
	}
	game, ok := env.app.Games.Find(name)
	if !ok {
		return out.WriteError(command, utils.AsCLIError(unknownGame(name)))
	}

	ch := events.NewChannel()
	ch.Subscribe(progressPrinter(out))

	if err := fn(ctx, env, ch, game); err != nil {
		return out.WriteError(command, transferError(game, err))
	}

	st, err := app.GameStatus(ctx, env.app, game)
	if err != nil {
		logger.Warn("Status after transfer failed", loggingGame(game, err)...)
		st = types.GameStatus{Game: game.Name}
	}
	return out.WriteSuccess(command, types.GameStatusList{st})
}

// progressPrinter logs progress to stderr in steps of ten percent
func progressPrinter(out *OutputWriter) events.Handler {
	last := -1
	return func(e events.Event) {
		switch e.Type {
		case events.TypeProgress:
			if last < 0 || e.Percent/10 != last/10 {
				out.Log("%3d%%", e.Percent)
			}
			last = e.Percent
		case events.TypeError:
			out.Log("Failed: %s", e.Kind)
		}
	}
}
