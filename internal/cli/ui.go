package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dl-alexandre/savegem/internal/app"
	"github.com/dl-alexandre/savegem/internal/events"
	"github.com/dl-alexandre/savegem/internal/ipc"
	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/spf13/cobra"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Run the foreground controller",
	Long: `Run the foreground process the daemons report to. It loads the game
configuration, keeps the selected game and runs one transfer at a time.

Commands are read from standard input, one per line:
  select <game>   switch the selected game
  download        download the selected game
  upload          upload the selected game
  auto on|off     switch auto mode
  status          show the selected game's sync status
  activity        show who else is playing the selected game
  games           list the configured games
  quit            exit`,
	Annotations: map[string]string{logFileAnnotation: "ui.log"},
	Args:        cobra.NoArgs,
	RunE:        runUI,
}

func init() {
	rootCmd.AddCommand(uiCmd)
}

// uiCommand is one parsed input line
type uiCommand struct {
	name string
	arg  string
}

func parseUICommand(line string) (uiCommand, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return uiCommand{}, nil
	}
	cmd := uiCommand{name: strings.ToLower(fields[0])}
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	switch cmd.name {
	case "select":
		if rest == "" {
			return uiCommand{}, errors.New("usage: select <game>")
		}
		cmd.arg = rest
	case "auto":
		switch strings.ToLower(rest) {
		case "on", "off":
			cmd.arg = strings.ToLower(rest)
		default:
			return uiCommand{}, errors.New("usage: auto on|off")
		}
	case "exit":
		cmd.name = "quit"
	case "download", "upload", "status", "activity", "games", "quit", "help":
		if rest != "" {
			return uiCommand{}, fmt.Errorf("%s takes no argument", cmd.name)
		}
	default:
		return uiCommand{}, fmt.Errorf("unknown command %q", cmd.name)
	}
	return cmd, nil
}

// uiSession serializes console output of the input loop, the refresh
// handlers and the worker results
type uiSession struct {
	ctrl *app.Controller
	env  *environment
	out  *OutputWriter

	mu    sync.Mutex
	fatal chan error
}

func runUI(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	env, err := openEnvironment(ctx)
	if err != nil {
		return out.WriteError("ui", utils.AsCLIError(err))
	}
	defer env.Close()
	if err := env.requireAuth(); err != nil {
		return out.WriteError("ui", utils.AsCLIError(err))
	}

	ctrl := app.NewController(env.app)
	if err := ctrl.Listen(env.cfg.UIPort); err != nil {
		return out.WriteError("ui", utils.AsCLIError(err))
	}
	defer ctrl.Close()

	s := &uiSession{ctrl: ctrl, env: env, out: out, fatal: make(chan error, 1)}
	s.register()

	go func() {
		if err := ctrl.Serve(ctx); err != nil {
			logger.Error("UI listener stopped", loggingError(err))
		}
	}()

	if err := ctrl.Start(ctx); err != nil {
		return out.WriteError("ui", utils.AsCLIError(err))
	}
	logger.Info("UI started", logging.F("port", ctrl.Port()))
	s.showStatus(ctx)

	return s.loop(ctx, os.Stdin)
}

func (s *uiSession) register() {
	s.ctrl.Events().Subscribe(s.locked(progressPrinter(s.out)))

	s.ctrl.OnRefresh(ipc.RefreshSyncStatus, func(ctx context.Context) error {
		s.showStatus(ctx)
		return nil
	})
	s.ctrl.OnRefresh(ipc.RefreshActivity, func(ctx context.Context) error {
		s.showActivity(ctx)
		return nil
	})
	s.ctrl.OnRefresh(ipc.RefreshGames, func(ctx context.Context) error {
		if err := s.env.app.Games.Load(ctx); err != nil {
			select {
			case s.fatal <- err:
			default:
			}
			return err
		}
		s.print("games", gameList(s.env.app.Games.Games()))
		return nil
	})
}

// loop reads commands from in until quit, end of input, a fatal refresh
// error or cancellation
func (s *uiSession) loop(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-s.fatal:
			return s.out.WriteError("ui", utils.AsCLIError(err))
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, err := parseUICommand(line)
			if err != nil {
				s.out.Log("%s", err)
				continue
			}
			if cmd.name == "quit" {
				return nil
			}
			s.dispatch(ctx, cmd)
		}
	}
}

func (s *uiSession) dispatch(ctx context.Context, cmd uiCommand) {
	switch cmd.name {
	case "":
	case "help":
		s.out.Log("commands: select <game>, download, upload, auto on|off, status, activity, games, quit")
	case "select":
		s.await("select", func() (<-chan error, error) { return s.ctrl.SelectGame(ctx, cmd.arg) })
	case "download":
		s.await("download", func() (<-chan error, error) { return s.ctrl.Download(ctx) })
	case "upload":
		s.await("upload", func() (<-chan error, error) { return s.ctrl.Upload(ctx) })
	case "auto":
		if err := s.ctrl.SetAutoMode(ctx, cmd.arg == "on"); err != nil {
			s.reportError("auto", err)
			return
		}
		s.out.Log("Auto mode %s", cmd.arg)
	case "status":
		s.showStatus(ctx)
	case "activity":
		s.showActivity(ctx)
	case "games":
		s.print("games", gameList(s.env.app.Games.Games()))
	}
}

// await starts a worker and reports its result when it finishes. A busy
// controller is reported right away.
func (s *uiSession) await(command string, start func() (<-chan error, error)) {
	done, err := start()
	if err != nil {
		s.reportError(command, err)
		return
	}
	go func() {
		if err := <-done; err != nil {
			s.reportError(command, err)
			return
		}
		s.out.Log("%s finished", command)
	}()
}

func (s *uiSession) reportError(command string, err error) {
	cliErr := utils.AsCLIError(err)
	if errors.Is(err, app.ErrBusy) {
		cliErr = utils.NewCLIError(utils.ErrCodeBusy, "Another operation is still running").Build()
	} else if game, selErr := s.ctrl.Selected(); selErr == nil && command != "select" {
		cliErr = transferError(game, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.out.WriteError(command, cliErr)
}

func (s *uiSession) showStatus(ctx context.Context) {
	st, err := s.ctrl.Status(ctx)
	if err != nil {
		s.reportError("status", err)
		return
	}
	s.print("status", types.GameStatusList{st})
}

func (s *uiSession) showActivity(ctx context.Context) {
	entries, err := s.ctrl.Activity(ctx)
	if err != nil {
		s.reportError("activity", err)
		return
	}
	s.print("activity", types.ActivityList(entries))
}

// locked runs h under the session lock; transfer events arrive on the
// worker goroutine
func (s *uiSession) locked(h events.Handler) events.Handler {
	return func(e events.Event) {
		s.mu.Lock()
		defer s.mu.Unlock()
		h(e)
	}
}

func (s *uiSession) print(command string, data interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.out.WriteSuccess(command, data); err != nil {
		logger.Warn("Failed to write output", loggingError(err))
	}
}

// gameList renders the configured games
type gameList []types.Game

func (l gameList) Headers() []string {
	return []string{"Game", "Process", "Auto Mode", "Local Path"}
}

func (l gameList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, g := range l {
		auto := "no"
		if g.AutoModeAllowed {
			auto = "yes"
		}
		rows = append(rows, []string{g.Name, orDash(g.ProcessName), auto, g.LocalPath})
	}
	return rows
}

func (l gameList) EmptyMessage() string {
	return "No games configured"
}
