// Package changewatch is the change-watcher daemon. Once the UI has
// finished starting, it polls the remote change feed and tells the UI when
// the selected game's archives or the game configuration changed. Local
// edits of the selected game's save directory are reported too.
package changewatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dl-alexandre/savegem/internal/daemon"
	"github.com/dl-alexandre/savegem/internal/games"
	"github.com/dl-alexandre/savegem/internal/index"
	"github.com/dl-alexandre/savegem/internal/ipc"
	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/metadata"
	"github.com/dl-alexandre/savegem/internal/remote"
	"github.com/dl-alexandre/savegem/internal/state"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

// ServiceName keys the change cursor in the index
const ServiceName = "changes"

// Options wires a Watcher
type Options struct {
	Fs     afero.Fs
	Store  remote.Store
	Games  *games.Registry
	State  *state.Store
	Index  *index.DB
	Notify ipc.Notifier
	// WatchLocal enables the fsnotify watcher on the selected save directory
	WatchLocal bool
	Clock      clockwork.Clock
	Logger     logging.Logger
}

// Watcher implements daemon.Worker, daemon.StateReloader and
// daemon.CommandHandler
type Watcher struct {
	opts     Options
	guiReady atomic.Bool

	mu       sync.Mutex
	selected string
	loaded   bool
	local    *LocalWatcher
}

func New(opts Options) *Watcher {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	return &Watcher{opts: opts}
}

// Initialize reads the watch_local setting of the service file
func (w *Watcher) Initialize(ctx context.Context, cfg daemon.ServiceConfig) error {
	w.opts.WatchLocal = cfg.Bool("watch_local", w.opts.WatchLocal)
	return nil
}

// HandleCommand reacts to GUIInitialized by opening the polling gate
func (w *Watcher) HandleCommand(ctx context.Context, msg ipc.Message) {
	if msg.Command == ipc.CommandGUIInitialized {
		w.guiReady.Store(true)
		w.opts.Logger.Info("UI initialized, change polling enabled")
	}
}

// ReloadState re-reads the selected game and moves the local watcher to it
func (w *Watcher) ReloadState(ctx context.Context) error {
	st, err := w.opts.State.Load()
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	changed := !w.loaded || st.SelectedGame != w.selected
	w.selected = st.SelectedGame
	w.loaded = true
	if changed && w.opts.WatchLocal {
		w.restartLocalLocked(ctx)
	}
	return nil
}

func (w *Watcher) restartLocalLocked(ctx context.Context) {
	if w.local != nil {
		_ = w.local.Close()
		w.local = nil
	}
	game, ok := w.opts.Games.Find(w.selected)
	if !ok {
		return
	}

	lw, err := WatchLocal(w.opts.Fs, game.LocalPath)
	if err != nil {
		w.opts.Logger.Warn("Cannot watch save directory",
			logging.F("game", game.Name),
			logging.F("path", game.LocalPath),
			logging.F("error", err.Error()),
		)
		return
	}
	w.local = lw

	go func() {
		for range lw.Updates() {
			w.notify(ctx, ipc.RefreshUI(ipc.RefreshSyncStatus))
		}
	}()
}

func (w *Watcher) selectedGame() (types.Game, bool) {
	w.mu.Lock()
	name := w.selected
	w.mu.Unlock()
	if name == "" {
		return types.Game{}, false
	}
	return w.opts.Games.Find(name)
}

func (w *Watcher) ready() bool {
	if w.guiReady.Load() {
		return true
	}
	if w.opts.State.GUIInitialized() {
		w.guiReady.Store(true)
		return true
	}
	return false
}

// Work polls the change feed once
func (w *Watcher) Work(ctx context.Context) error {
	if !w.ready() {
		w.opts.Logger.Debug("UI not initialized, skipping change poll")
		return nil
	}

	w.mu.Lock()
	loaded := w.loaded
	w.mu.Unlock()
	if !loaded {
		if err := w.ReloadState(ctx); err != nil {
			return err
		}
	}

	if !w.opts.Games.Loaded() {
		if err := w.opts.Games.Load(ctx); err != nil {
			return err
		}
	}

	token, ok, err := w.opts.Index.PageToken(ctx, ServiceName)
	if err != nil {
		return err
	}
	if !ok {
		start, err := w.opts.Store.GetStartPageToken(ctx)
		if err != nil {
			return err
		}
		return w.opts.Index.SetPageToken(ctx, ServiceName, start, w.opts.Clock.Now())
	}

	game, haveGame := w.selectedGame()
	var gamesChanged, statusChanged bool

	for {
		list, err := w.opts.Store.ListChanges(ctx, token)
		if err != nil {
			return err
		}
		for _, c := range list.Changes {
			if c.Touches(w.opts.Games.FileID(), "") {
				gamesChanged = true
			}
			if haveGame && c.Touches("", game.RemoteDirectoryID) {
				statusChanged = true
			}
		}
		if list.NextPageToken != "" {
			token = list.NextPageToken
			continue
		}
		if list.NewStartPageToken != "" {
			token = list.NewStartPageToken
		}
		break
	}

	if statusChanged {
		w.recordStatus(ctx, game)
		w.notify(ctx, ipc.RefreshUI(ipc.RefreshSyncStatus))
	}
	// The cursor only moves once the reload went through, so a failed
	// reload sees the same changes again next round
	if gamesChanged {
		if err := w.opts.Games.Load(ctx); err != nil {
			return err
		}
		w.notify(ctx, ipc.RefreshUI(ipc.RefreshGames))
	}
	return w.opts.Index.SetPageToken(ctx, ServiceName, token, w.opts.Clock.Now())
}

func (w *Watcher) recordStatus(ctx context.Context, game types.Game) {
	tracker := metadata.NewTracker(w.opts.Fs, w.opts.Store, game)
	if err := tracker.Refresh(ctx); err != nil {
		w.opts.Logger.Warn("Failed to refresh drive metadata", logging.F("game", game.Name), logging.F("error", err.Error()))
		return
	}
	status, err := tracker.Status()
	if err != nil {
		w.opts.Logger.Warn("Failed to compute sync status", logging.F("game", game.Name), logging.F("error", err.Error()))
		return
	}

	_, err = w.opts.Index.RecordStatus(ctx, index.StatusRecord{
		Game:          game.Name,
		Status:        string(status),
		LocalChecksum: tracker.Local.Checksum(),
		DriveChecksum: tracker.Drive.Checksum(),
		DriveOwner:    tracker.Drive.Owner(),
		RecordedAt:    w.opts.Clock.Now(),
	})
	if err != nil {
		w.opts.Logger.Warn("Failed to record status", logging.F("game", game.Name), logging.F("error", err.Error()))
	}
}

func (w *Watcher) notify(ctx context.Context, msg ipc.Message) {
	if w.opts.Notify == nil {
		return
	}
	if err := w.opts.Notify(ctx, msg); err != nil {
		w.opts.Logger.Debug("UI not reachable",
			logging.F("command", string(msg.Command)),
			logging.F("event", string(msg.Event)),
			logging.F("error", err.Error()),
		)
	}
}

// Close stops the local watcher
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.local != nil {
		_ = w.local.Close()
		w.local = nil
	}
}
