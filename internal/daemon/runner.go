// Package daemon runs background services: a fixed-interval work loop with
// an optional authentication gate, single-instance enforcement through the
// service's IPC port, and an IPC listener for commands.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/dl-alexandre/savegem/internal/ipc"
	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/jonboulle/clockwork"
)

// ErrAlreadyRunning is returned by New when another instance holds the port
var ErrAlreadyRunning = errors.New("daemon is already running")

// State is the lifecycle state of a Runner
type State int32

const (
	StateUninitialized State = iota
	StateWaitingForAuth
	StateWorking
	StateExited
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWaitingForAuth:
		return "waiting_for_auth"
	case StateWorking:
		return "working"
	case StateExited:
		return "exited"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Worker does one round of a service's periodic work
type Worker interface {
	Work(ctx context.Context) error
}

// Initializer is implemented by workers that read their service config file
type Initializer interface {
	Initialize(ctx context.Context, cfg ServiceConfig) error
}

// CommandHandler is implemented by workers that react to IPC commands
type CommandHandler interface {
	HandleCommand(ctx context.Context, msg ipc.Message)
}

// StateReloader is implemented by workers that cache the application state
type StateReloader interface {
	ReloadState(ctx context.Context) error
}

// Options configures a Runner
type Options struct {
	Name string
	// Port is the IPC port. Zero disables both the listener and the
	// single-instance check.
	Port        int
	Interval    time.Duration
	RequireAuth bool
	// IsAuthenticated reports whether credentials are available
	IsAuthenticated func() bool
	// ConfigPath is the optional per-service TOML file
	ConfigPath string
	Clock      clockwork.Clock
	Logger     logging.Logger
}

// Runner drives a Worker
type Runner struct {
	opts   Options
	worker Worker
	server *ipc.Server
	clock  clockwork.Clock
	logger logging.Logger
	state  atomic.Int32
}

// New claims the service port, loads the service config and initializes the
// worker. ErrAlreadyRunning means another instance owns the port.
func New(ctx context.Context, worker Worker, opts Options) (*Runner, error) {
	if opts.Interval <= 0 {
		opts.Interval = time.Duration(utils.DefaultDaemonIntervalSeconds) * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.IsAuthenticated == nil {
		opts.IsAuthenticated = func() bool { return true }
	}

	r := &Runner{
		opts:   opts,
		worker: worker,
		clock:  opts.Clock,
		logger: opts.Logger,
	}

	if opts.Port != 0 {
		server, err := ipc.Listen(opts.Port, opts.Logger)
		if err != nil {
			if errors.Is(err, ipc.ErrAddressInUse) {
				return nil, ErrAlreadyRunning
			}
			return nil, err
		}
		r.server = server
		r.wireCommands()
	}

	cfg, found, err := LoadServiceConfig(opts.ConfigPath)
	if err != nil {
		r.Close()
		return nil, err
	}
	if found {
		r.opts.Interval = cfg.Interval(r.opts.Interval)
		if cfg.RequireAuth != nil {
			r.opts.RequireAuth = *cfg.RequireAuth
		}
		if initializer, ok := worker.(Initializer); ok {
			if err := initializer.Initialize(ctx, cfg); err != nil {
				r.Close()
				return nil, fmt.Errorf("initialize %s: %w", opts.Name, err)
			}
		}
		r.logger.Info("Loaded service config",
			logging.F("service", opts.Name),
			logging.F("path", opts.ConfigPath),
			logging.F("interval", r.opts.Interval.String()),
		)
	}

	return r, nil
}

func (r *Runner) wireCommands() {
	if reloader, ok := r.worker.(StateReloader); ok {
		r.server.OnStateChanged(reloader.ReloadState)
	}
	if handler, ok := r.worker.(CommandHandler); ok {
		r.server.Handle(handler.HandleCommand)
	}
}

// State returns the current lifecycle state
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Interval returns the effective poll interval
func (r *Runner) Interval() time.Duration {
	return r.opts.Interval
}

// Port returns the bound IPC port, or 0 without a listener
func (r *Runner) Port() int {
	if r.server == nil {
		return 0
	}
	return r.server.Port()
}

// Run loops until ctx is cancelled. Work errors and panics are logged and
// never stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	defer r.state.Store(int32(StateExited))
	defer r.Close()

	if r.server != nil {
		go func() {
			if err := r.server.Serve(ctx); err != nil {
				r.logger.Error("IPC listener stopped", logging.F("error", err.Error()))
			}
		}()
	}

	r.logger.Info("Daemon started",
		logging.F("service", r.opts.Name),
		logging.F("port", r.Port()),
		logging.F("interval", r.opts.Interval.String()),
	)

	for {
		if ctx.Err() != nil {
			return nil
		}

		if r.opts.RequireAuth && !r.opts.IsAuthenticated() {
			if r.State() != StateWaitingForAuth {
				r.logger.Info("Waiting for authentication", logging.F("service", r.opts.Name))
			}
			r.state.Store(int32(StateWaitingForAuth))
		} else {
			r.state.Store(int32(StateWorking))
			r.runWork(ctx)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Daemon stopping", logging.F("service", r.opts.Name))
			return nil
		case <-r.clock.After(r.opts.Interval):
		}
	}
}

func (r *Runner) runWork(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Work panicked",
				logging.F("service", r.opts.Name),
				logging.F("panic", fmt.Sprint(rec)),
				logging.F("stack", string(debug.Stack())),
			)
		}
	}()

	if err := r.worker.Work(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("Work failed",
			logging.F("service", r.opts.Name),
			logging.F("error", err.Error()),
		)
	}
}

// Close releases the IPC port
func (r *Runner) Close() {
	if r.server != nil {
		r.server.Close()
	}
}
