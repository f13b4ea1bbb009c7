// Package processwatch is the activity daemon. It notices which configured
// games are running on this machine, publishes that to the shared activity
// document and, in auto mode, syncs saves around each play session.
package processwatch

import (
	"context"
	"sort"
	"sync"

	"github.com/dl-alexandre/savegem/internal/activity"
	"github.com/dl-alexandre/savegem/internal/daemon"
	"github.com/dl-alexandre/savegem/internal/games"
	"github.com/dl-alexandre/savegem/internal/ipc"
	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/metadata"
	"github.com/dl-alexandre/savegem/internal/process"
	"github.com/dl-alexandre/savegem/internal/remote"
	"github.com/dl-alexandre/savegem/internal/state"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/spf13/afero"
)

// Downloader fetches the newest archive of a game
type Downloader interface {
	Download(ctx context.Context, game types.Game) error
}

// Uploader publishes the current saves of a game
type Uploader interface {
	Upload(ctx context.Context, game types.Game) error
}

type Options struct {
	Fs         afero.Fs
	Store      remote.Store
	Games      *games.Registry
	State      *state.Store
	Activity   *activity.Directory
	Lister     process.Lister
	Downloader Downloader
	Uploader   Uploader
	Notify     ipc.Notifier
	// Heartbeat rewrites the activity entry every round so that it does
	// not go stale while a game keeps running
	Heartbeat bool
	Logger    logging.Logger
}

// Watcher implements daemon.Worker and daemon.StateReloader
type Watcher struct {
	opts Options

	mu       sync.Mutex
	autoMode bool
	loaded   bool
	// running is nil until the first observation
	running map[string]bool
	// published is false until running has been written to the activity
	// document; a failed write is retried on the next round
	published bool
}

func New(opts Options) *Watcher {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	return &Watcher{opts: opts}
}

// Initialize reads the heartbeat setting of the service file
func (w *Watcher) Initialize(ctx context.Context, cfg daemon.ServiceConfig) error {
	w.opts.Heartbeat = cfg.Bool("heartbeat", w.opts.Heartbeat)
	return nil
}

// ReloadState picks up the auto mode switch and the current game set
func (w *Watcher) ReloadState(ctx context.Context) error {
	st, err := w.opts.State.Load()
	if err != nil {
		return err
	}
	if err := w.opts.Games.Load(ctx); err != nil {
		return err
	}
	w.mu.Lock()
	w.autoMode = st.AutoMode
	w.loaded = true
	w.mu.Unlock()
	return nil
}

// Running returns the names of the games seen in the last observation
func (w *Watcher) Running() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedNames(w.running)
}

// Work observes running processes once
func (w *Watcher) Work(ctx context.Context) error {
	w.mu.Lock()
	loaded := w.loaded
	w.mu.Unlock()
	if !loaded {
		if err := w.ReloadState(ctx); err != nil {
			return err
		}
	}

	names, err := w.opts.Lister.Running(ctx)
	if err != nil {
		return err
	}

	current := make(map[string]bool)
	byName := make(map[string]types.Game)
	for _, g := range w.opts.Games.Games() {
		byName[g.Name] = g
		if process.Matches(names, g.ProcessName) {
			current[g.Name] = true
		}
	}

	w.mu.Lock()
	previous := w.running
	autoMode := w.autoMode
	published := w.published
	w.running = current
	w.mu.Unlock()

	first := previous == nil
	started, stopped := diff(previous, current)
	changed := first || len(started) > 0 || len(stopped) > 0
	if !changed && published && !w.opts.Heartbeat {
		return nil
	}

	if changed {
		w.opts.Logger.Info("Running games changed",
			logging.F("running", sortedNames(current)),
			logging.F("started", started),
			logging.F("stopped", stopped),
		)
	}

	err = w.opts.Activity.Update(ctx, sortedNames(current))
	w.mu.Lock()
	w.published = err == nil
	w.mu.Unlock()
	if err != nil {
		w.opts.Logger.Error("Failed to update activity", logging.F("error", err.Error()))
	} else if changed || !published {
		w.notify(ctx, ipc.RefreshUI(ipc.RefreshActivity))
	}

	// Games already running when the daemon starts are left alone
	if !changed || !autoMode || first {
		return nil
	}
	for _, name := range started {
		w.autoSync(ctx, byName[name], types.SyncStatusNeedsDownload)
	}
	for _, name := range stopped {
		if g, ok := byName[name]; ok {
			w.autoSync(ctx, g, types.SyncStatusNeedsUpload)
		}
	}
	return nil
}

func (w *Watcher) autoSync(ctx context.Context, game types.Game, want types.SyncStatus) {
	if !game.AutoModeAllowed {
		return
	}

	tracker := metadata.NewTracker(w.opts.Fs, w.opts.Store, game)
	if err := tracker.Refresh(ctx); err != nil {
		w.opts.Logger.Error("Failed to refresh drive metadata", logging.F("game", game.Name), logging.F("error", err.Error()))
		return
	}
	status, err := tracker.Status()
	if err != nil {
		w.opts.Logger.Error("Failed to compute sync status", logging.F("game", game.Name), logging.F("error", err.Error()))
		return
	}
	if status != want {
		w.opts.Logger.Debug("Auto sync not needed", logging.F("game", game.Name), logging.F("status", string(status)))
		return
	}

	if want == types.SyncStatusNeedsDownload {
		err = w.opts.Downloader.Download(ctx, game)
	} else {
		err = w.opts.Uploader.Upload(ctx, game)
	}
	if err != nil {
		w.opts.Logger.Error("Auto sync failed",
			logging.F("game", game.Name),
			logging.F("status", string(status)),
			logging.F("error", err.Error()),
		)
		return
	}
	w.opts.Logger.Info("Auto sync finished", logging.F("game", game.Name), logging.F("status", string(status)))
	w.notify(ctx, ipc.RefreshUI(ipc.RefreshSyncStatus))
}

func (w *Watcher) notify(ctx context.Context, msg ipc.Message) {
	if w.opts.Notify == nil {
		return
	}
	if err := w.opts.Notify(ctx, msg); err != nil {
		w.opts.Logger.Debug("UI not reachable", logging.F("event", string(msg.Event)), logging.F("error", err.Error()))
	}
}

func diff(previous, current map[string]bool) (started, stopped []string) {
	for name := range current {
		if !previous[name] {
			started = append(started, name)
		}
	}
	for name := range previous {
		if !current[name] {
			stopped = append(stopped, name)
		}
	}
	sort.Strings(started)
	sort.Strings(stopped)
	return started, stopped
}

func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
