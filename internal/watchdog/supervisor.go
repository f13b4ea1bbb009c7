// Package watchdog keeps the background daemons alive. Every configured
// command line gets its own goroutine that starts the process, waits for it
// to exit and starts it again after a fixed delay.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/dl-alexandre/savegem/internal/daemon"
	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/jonboulle/clockwork"
)

// Process is a started child
type Process interface {
	Wait() error
}

// Starter launches a command line
type Starter interface {
	Start(ctx context.Context, argv []string) (Process, error)
}

// ExecStarter starts real OS processes. Children are killed when ctx ends.
type ExecStarter struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (e ExecStarter) Start(ctx context.Context, argv []string) (Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command line")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Options configures a Supervisor
type Options struct {
	// Delay between an exit and the next start
	Delay   time.Duration
	Starter Starter
	Clock   clockwork.Clock
	Logger  logging.Logger
}

// Supervisor restarts every command line forever
type Supervisor struct {
	commands [][]string
	opts     Options
	wg       sync.WaitGroup
}

// New creates a Supervisor for commands
func New(commands [][]string, opts Options) *Supervisor {
	if opts.Delay <= 0 {
		opts.Delay = time.Duration(utils.DefaultDaemonIntervalSeconds) * time.Second
	}
	if opts.Starter == nil {
		opts.Starter = ExecStarter{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	return &Supervisor{commands: commands, opts: opts}
}

// Start launches one supervising goroutine per command line and returns
func (s *Supervisor) Start(ctx context.Context) {
	for _, argv := range s.commands {
		argv := append([]string(nil), argv...)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.supervise(ctx, argv)
		}()
	}
}

// Wait blocks until every supervising goroutine has returned
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Initialize reads restart_delay_seconds from the watchdog service file.
// It runs before Start.
func (s *Supervisor) Initialize(ctx context.Context, cfg daemon.ServiceConfig) error {
	if secs := cfg.Int("restart_delay_seconds", 0); secs > 0 {
		s.opts.Delay = time.Duration(secs) * time.Second
	}
	return nil
}

// Delay is the pause between an exit and the next start
func (s *Supervisor) Delay() time.Duration {
	return s.opts.Delay
}

// Work satisfies daemon.Worker; all the work happens in the goroutines
func (s *Supervisor) Work(ctx context.Context) error {
	return nil
}

func (s *Supervisor) supervise(ctx context.Context, argv []string) {
	name := strings.Join(argv, " ")
	for {
		s.runOnce(ctx, name, argv)

		select {
		case <-ctx.Done():
			return
		case <-s.opts.Clock.After(s.opts.Delay):
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context, name string, argv []string) {
	if ctx.Err() != nil {
		return
	}

	proc, err := s.opts.Starter.Start(ctx, argv)
	if err != nil {
		s.opts.Logger.Error("Failed to start process",
			logging.F("command", name),
			logging.F("error", err.Error()),
		)
		return
	}
	s.opts.Logger.Info("Process started", logging.F("command", name))

	err = proc.Wait()
	fields := []logging.Field{
		logging.F("command", name),
		logging.F("restart_in", s.opts.Delay.String()),
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		fields = append(fields, logging.F("exit_code", 0))
	case errors.As(err, &exitErr):
		fields = append(fields, logging.F("exit_code", exitErr.ExitCode()))
	default:
		fields = append(fields, logging.F("error", fmt.Sprint(err)))
	}
	s.opts.Logger.Warn("Process exited", fields...)
}
