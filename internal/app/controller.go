package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dl-alexandre/savegem/internal/events"
	"github.com/dl-alexandre/savegem/internal/index"
	"github.com/dl-alexandre/savegem/internal/ipc"
	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/metadata"
	"github.com/dl-alexandre/savegem/internal/state"
	"github.com/dl-alexandre/savegem/internal/transfer"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
)

// ErrBusy is returned when a worker is requested while another one runs
var ErrBusy = utils.NewAppError(utils.NewCLIError(utils.ErrCodeBusy, "another operation is in progress").Build())

// RefreshHandler re-derives one part of the UI
type RefreshHandler func(ctx context.Context) error

// Controller serializes long operations. A busy flag rejects a second
// worker outright and a mutex keeps inbound refreshes from interleaving with
// the running worker.
type Controller struct {
	app        *Context
	events     *events.Channel
	downloader *transfer.Downloader
	uploader   *transfer.Uploader
	notify     func(ctx context.Context, port int, msg ipc.Message) error

	busy   atomic.Bool
	workMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[ipc.RefreshEvent][]RefreshHandler

	server *ipc.Server
}

func NewController(appCtx *Context) *Controller {
	a := appCtx.withDefaults()
	ch := events.NewChannel()
	return &Controller{
		app:        a,
		events:     ch,
		downloader: transfer.NewDownloader(a.Fs, a.Store, ch, a.Logger),
		uploader:   transfer.NewUploader(a.Fs, a.Store, ch, a.Logger, a.Clock),
		notify:     ipc.Send,
		handlers:   make(map[ipc.RefreshEvent][]RefreshHandler),
	}
}

// Events is the channel transfer progress is reported on
func (c *Controller) Events() *events.Channel {
	return c.events
}

// Busy reports whether a worker is running
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// OnRefresh registers h for event. Handlers run in registration order.
func (c *Controller) OnRefresh(event ipc.RefreshEvent, h RefreshHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// Listen binds the UI socket
func (c *Controller) Listen(port int) error {
	server, err := ipc.Listen(port, c.app.Logger)
	if err != nil {
		if errors.Is(err, ipc.ErrAddressInUse) {
			return utils.NewAppError(utils.NewCLIError(utils.ErrCodeAlreadyRunning,
				"the UI is already running").WithContext("port", port).Build())
		}
		return err
	}
	server.Handle(c.handleMessage)
	c.server = server
	return nil
}

// Port is the bound UI port, or 0 before Listen
func (c *Controller) Port() int {
	if c.server == nil {
		return 0
	}
	return c.server.Port()
}

// Serve handles inbound messages until ctx is cancelled
func (c *Controller) Serve(ctx context.Context) error {
	if c.server == nil {
		return errors.New("controller is not listening")
	}
	return c.server.Serve(ctx)
}

// Start loads the game configuration, marks the UI as initialized and tells
// the change watcher it may start polling. A configuration failure is
// returned as is and must end the process.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.app.Games.Load(ctx); err != nil {
		return err
	}

	st, err := c.app.State.Load()
	if err != nil {
		c.app.Logger.Warn("Ignoring unreadable state", logging.F("error", err.Error()))
	}
	if _, ok := c.app.Games.Find(st.SelectedGame); !ok {
		names := c.app.Games.Names()
		if len(names) > 0 {
			if _, err := c.app.State.Update(func(s *state.AppState) { s.SelectedGame = names[0] }); err != nil {
				return err
			}
		}
	}

	if err := c.app.State.MarkGUIInitialized(); err != nil {
		return fmt.Errorf("failed to mark UI as initialized: %w", err)
	}
	c.send(ctx, c.app.ChangesPort, ipc.GUIInitialized())
	return nil
}

// Close removes the initialized flag and releases the UI socket
func (c *Controller) Close() {
	if err := c.app.State.ClearGUIInitialized(); err != nil {
		c.app.Logger.Warn("Failed to clear UI flag", logging.F("error", err.Error()))
	}
	if c.server != nil {
		c.server.Close()
	}
}

func (c *Controller) handleMessage(ctx context.Context, msg ipc.Message) {
	if msg.Command != ipc.CommandRefreshUI {
		c.app.Logger.Debug("Ignoring command", logging.F("command", string(msg.Command)))
		return
	}
	c.workMu.Lock()
	defer c.workMu.Unlock()
	c.refresh(ctx, msg.Event)
}

// refresh runs the handlers of event. The caller holds workMu.
func (c *Controller) refresh(ctx context.Context, event ipc.RefreshEvent) {
	c.handlersMu.RLock()
	handlers := append([]RefreshHandler(nil), c.handlers[event]...)
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx); err != nil {
			c.app.Logger.Warn("Refresh handler failed",
				logging.F("event", string(event)),
				logging.F("error", err.Error()),
			)
		}
	}
}

// run starts fn on a worker goroutine. The returned channel yields fn's
// result once.
func (c *Controller) run(ctx context.Context, fn func(ctx context.Context) error) (<-chan error, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}

	done := make(chan error, 1)
	go func() {
		defer c.busy.Store(false)
		c.workMu.Lock()
		defer c.workMu.Unlock()
		done <- fn(ctx)
	}()
	return done, nil
}

// Selected returns the selected game
func (c *Controller) Selected() (types.Game, error) {
	st, err := c.app.State.Load()
	if err != nil {
		return types.Game{}, err
	}
	return c.lookup(st.SelectedGame)
}

func (c *Controller) lookup(name string) (types.Game, error) {
	game, ok := c.app.Games.Find(name)
	if !ok {
		return types.Game{}, utils.NewAppError(utils.NewCLIError(utils.ErrCodeUnknownGame,
			fmt.Sprintf("unknown game %q", name)).Build())
	}
	return game, nil
}

// SelectGame switches the selected game on a worker, tells the daemons and
// refreshes the status and activity views
func (c *Controller) SelectGame(ctx context.Context, name string) (<-chan error, error) {
	if _, err := c.lookup(name); err != nil {
		return nil, err
	}
	return c.run(ctx, func(ctx context.Context) error {
		if _, err := c.app.State.Update(func(s *state.AppState) { s.SelectedGame = name }); err != nil {
			return err
		}
		c.broadcastState(ctx)
		c.refresh(ctx, ipc.RefreshSyncStatus)
		c.refresh(ctx, ipc.RefreshActivity)
		return nil
	})
}

// SetAutoMode flips auto mode and tells the daemons
func (c *Controller) SetAutoMode(ctx context.Context, on bool) error {
	if _, err := c.app.State.Update(func(s *state.AppState) { s.AutoMode = on }); err != nil {
		return err
	}
	c.broadcastState(ctx)
	return nil
}

// Download fetches the selected game's newest archive on a worker
func (c *Controller) Download(ctx context.Context) (<-chan error, error) {
	game, err := c.Selected()
	if err != nil {
		return nil, err
	}
	return c.run(ctx, func(ctx context.Context) error {
		if err := c.downloader.Download(ctx, game); err != nil {
			return err
		}
		c.refresh(ctx, ipc.RefreshSyncStatus)
		return nil
	})
}

// Upload publishes the selected game's saves on a worker
func (c *Controller) Upload(ctx context.Context) (<-chan error, error) {
	game, err := c.Selected()
	if err != nil {
		return nil, err
	}
	return c.run(ctx, func(ctx context.Context) error {
		if err := c.uploader.Upload(ctx, game); err != nil {
			return err
		}
		c.refresh(ctx, ipc.RefreshSyncStatus)
		return nil
	})
}

// Status refreshes and evaluates the selected game's sync status
func (c *Controller) Status(ctx context.Context) (types.GameStatus, error) {
	game, err := c.Selected()
	if err != nil {
		return types.GameStatus{}, err
	}
	return GameStatus(ctx, c.app, game)
}

// Activity lists the other machines playing the selected game
func (c *Controller) Activity(ctx context.Context) ([]types.ActivityEntry, error) {
	game, err := c.Selected()
	if err != nil {
		return nil, err
	}
	return c.app.Activity.Refresh(ctx, game.Name)
}

func (c *Controller) broadcastState(ctx context.Context) {
	c.send(ctx, c.app.ChangesPort, ipc.StateChanged())
	c.send(ctx, c.app.ProcessesPort, ipc.StateChanged())
}

func (c *Controller) send(ctx context.Context, port int, msg ipc.Message) {
	if port == 0 {
		return
	}
	if err := c.notify(ctx, port, msg); err != nil {
		c.app.Logger.Debug("Daemon not reachable",
			logging.F("port", port),
			logging.F("command", string(msg.Command)),
			logging.F("error", err.Error()),
		)
	}
}

// GameStatus refreshes both metadata sides of game and evaluates its
// status. The result is recorded in the index when one is configured.
func GameStatus(ctx context.Context, a *Context, game types.Game) (types.GameStatus, error) {
	a = a.withDefaults()
	tracker := metadata.NewTracker(a.Fs, a.Store, game)
	if err := tracker.Refresh(ctx); err != nil {
		return types.GameStatus{}, err
	}
	status, err := tracker.Status()
	if err != nil {
		return types.GameStatus{}, err
	}

	out := types.GameStatus{
		Game:       game.Name,
		Status:     status,
		LocalOwner: tracker.Local.Owner(),
		DriveOwner: tracker.Drive.Owner(),
	}
	if created := tracker.Drive.CreatedTime(); !created.IsZero() {
		out.DriveCreated = created.Local().Format("2006-01-02 15:04")
	}

	if a.Index != nil {
		_, err := a.Index.RecordStatus(ctx, index.StatusRecord{
			Game:          game.Name,
			Status:        string(status),
			LocalChecksum: tracker.Local.Checksum(),
			DriveChecksum: tracker.Drive.Checksum(),
			DriveOwner:    tracker.Drive.Owner(),
			RecordedAt:    a.Clock.Now(),
		})
		if err != nil {
			a.Logger.Warn("Failed to record status", logging.F("game", game.Name), logging.F("error", err.Error()))
		}
	}
	return out, nil
}
