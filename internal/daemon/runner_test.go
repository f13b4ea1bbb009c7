package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dl-alexandre/savegem/internal/ipc"
	testutil "github.com/dl-alexandre/savegem/internal/testing"
	"github.com/jonboulle/clockwork"
)

type fakeWorker struct {
	calls   chan int
	count   atomic.Int32
	failure func(n int) error
}

func newFakeWorker() *fakeWorker {
	return &fakeWorker{calls: make(chan int, 32)}
}

func (w *fakeWorker) Work(ctx context.Context) error {
	n := int(w.count.Add(1))
	defer func() { w.calls <- n }()
	if w.failure != nil {
		return w.failure(n)
	}
	return nil
}

func (w *fakeWorker) waitCall(t *testing.T) int {
	t.Helper()
	select {
	case n := <-w.calls:
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Work")
		return 0
	}
}

func startRunner(t *testing.T, r *Runner) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	})
	return cancel, done
}

func TestRunner_WorksEveryInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	worker := newFakeWorker()
	r, err := New(context.Background(), worker, Options{Name: "test", Interval: time.Minute, Clock: clock})
	testutil.AssertNoError(t, err)

	startRunner(t, r)

	testutil.AssertEqual(t, worker.waitCall(t), 1)
	for want := 2; want <= 4; want++ {
		clock.BlockUntil(1)
		clock.Advance(time.Minute)
		testutil.AssertEqual(t, worker.waitCall(t), want)
	}
	testutil.AssertEqual(t, r.State(), StateWorking)
}

func TestRunner_ErrorsAndPanicsAreContained(t *testing.T) {
	clock := clockwork.NewFakeClock()
	worker := newFakeWorker()
	worker.failure = func(n int) error {
		switch n {
		case 1:
			return errors.New("remote unavailable")
		case 2:
			panic("unexpected nil")
		}
		return nil
	}
	r, err := New(context.Background(), worker, Options{Name: "test", Interval: time.Second, Clock: clock})
	testutil.AssertNoError(t, err)
	startRunner(t, r)

	worker.waitCall(t)
	for i := 0; i < 2; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Second)
		worker.waitCall(t)
	}
	testutil.AssertEqual(t, int(worker.count.Load()), 3)
}

func TestRunner_AuthGate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	worker := newFakeWorker()
	var authed atomic.Bool

	r, err := New(context.Background(), worker, Options{
		Name:            "test",
		Interval:        time.Minute,
		RequireAuth:     true,
		IsAuthenticated: authed.Load,
		Clock:           clock,
	})
	testutil.AssertNoError(t, err)
	startRunner(t, r)

	clock.BlockUntil(1)
	testutil.AssertEqual(t, r.State(), StateWaitingForAuth)
	testutil.AssertEqual(t, int(worker.count.Load()), 0)

	clock.Advance(time.Minute)
	clock.BlockUntil(1)
	testutil.AssertEqual(t, int(worker.count.Load()), 0)

	authed.Store(true)
	clock.Advance(time.Minute)
	worker.waitCall(t)
	testutil.AssertEqual(t, r.State(), StateWorking)
}

func TestRunner_ExitsOnCancel(t *testing.T) {
	worker := newFakeWorker()
	r, err := New(context.Background(), worker, Options{Name: "test", Clock: clockwork.NewFakeClock()})
	testutil.AssertNoError(t, err)

	cancel, done := startRunner(t, r)
	worker.waitCall(t)
	cancel()

	select {
	case err := <-done:
		testutil.AssertNoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	testutil.AssertEqual(t, r.State(), StateExited)
}

func TestNew_AlreadyRunning(t *testing.T) {
	first, err := New(context.Background(), newFakeWorker(), Options{Name: "first", Port: freePort(t)})
	testutil.AssertNoError(t, err)
	defer first.Close()

	_, err = New(context.Background(), newFakeWorker(), Options{Name: "second", Port: first.Port()})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
}

type configuredWorker struct {
	*fakeWorker
	got ServiceConfig
}

func (w *configuredWorker) Initialize(ctx context.Context, cfg ServiceConfig) error {
	w.got = cfg
	return nil
}

func TestNew_LoadsServiceConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.toml")
	content := "interval_seconds = 5\nrequire_auth = true\n\n[settings]\nwatch = \"local\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	worker := &configuredWorker{fakeWorker: newFakeWorker()}
	r, err := New(context.Background(), worker, Options{Name: "changes", ConfigPath: path})
	testutil.AssertNoError(t, err)
	defer r.Close()

	testutil.AssertEqual(t, r.Interval(), 5*time.Second)
	testutil.AssertEqual(t, r.opts.RequireAuth, true)
	testutil.AssertEqual(t, worker.got.String("watch"), "local")
}

func TestNew_MissingServiceConfigSkipsInitialize(t *testing.T) {
	worker := &configuredWorker{fakeWorker: newFakeWorker()}
	r, err := New(context.Background(), worker, Options{
		Name:       "changes",
		Interval:   time.Hour,
		ConfigPath: filepath.Join(t.TempDir(), "absent.toml"),
	})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, r.Interval(), time.Hour)
	if worker.got.Settings != nil {
		t.Error("Initialize called without a config file")
	}
}

func TestNew_InvalidServiceConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("interval_seconds = \"soon\""), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(context.Background(), newFakeWorker(), Options{Name: "bad", ConfigPath: path}); err == nil {
		t.Error("expected parse error")
	}
}

type commandWorker struct {
	*fakeWorker
	mu       sync.Mutex
	events   []string
	received chan struct{}
}

func (w *commandWorker) ReloadState(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, "reload")
	return nil
}

func (w *commandWorker) HandleCommand(ctx context.Context, msg ipc.Message) {
	w.mu.Lock()
	w.events = append(w.events, string(msg.Command))
	w.mu.Unlock()
	w.received <- struct{}{}
}

func TestRunner_DispatchesCommands(t *testing.T) {
	worker := &commandWorker{fakeWorker: newFakeWorker(), received: make(chan struct{}, 4)}
	r, err := New(context.Background(), worker, Options{
		Name:  "test",
		Port:  freePort(t),
		Clock: clockwork.NewFakeClock(),
	})
	testutil.AssertNoError(t, err)
	startRunner(t, r)
	worker.waitCall(t)

	testutil.AssertNoError(t, ipc.Send(context.Background(), r.Port(), ipc.StateChanged()))
	select {
	case <-worker.received:
	case <-time.After(5 * time.Second):
		t.Fatal("command not delivered")
	}

	worker.mu.Lock()
	defer worker.mu.Unlock()
	if len(worker.events) != 2 || worker.events[0] != "reload" || worker.events[1] != "StateChanged" {
		t.Errorf("events = %v", worker.events)
	}
}

func TestStateString(t *testing.T) {
	testutil.AssertEqual(t, StateWaitingForAuth.String(), "waiting_for_auth")
	testutil.AssertEqual(t, State(42).String(), "state(42)")
}

// freePort finds a port that is free right now
func freePort(t *testing.T) int {
	t.Helper()
	srv, err := ipc.Listen(0, nil)
	testutil.AssertNoError(t, err)
	port := srv.Port()
	srv.Close()
	return port
}
