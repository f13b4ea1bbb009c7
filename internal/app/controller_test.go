package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dl-alexandre/savegem/internal/activity"
	"github.com/dl-alexandre/savegem/internal/events"
	"github.com/dl-alexandre/savegem/internal/games"
	"github.com/dl-alexandre/savegem/internal/index"
	"github.com/dl-alexandre/savegem/internal/ipc"
	"github.com/dl-alexandre/savegem/internal/state"
	testutil "github.com/dl-alexandre/savegem/internal/testing"
	"github.com/dl-alexandre/savegem/internal/testing/mocks"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/spf13/afero"
)

const gamesDoc = `{"games": [
  {"name": "Alpha", "processName": "alpha", "localPath": "/saves/alpha", "remoteDirectoryId": "alpha-dir"},
  {"name": "Beta", "processName": "beta", "localPath": "/saves/beta", "remoteDirectoryId": "beta-dir"}
]}`

type sent struct {
	port int
	msg  ipc.Message
}

type fakeCredentials struct{ deleted int }

func (f *fakeCredentials) DeleteCredentials(profile string) error {
	f.deleted++
	return nil
}

type fixture struct {
	app   *Context
	store *mocks.MemoryStore
	creds *fakeCredentials
	ctrl  *Controller

	mu   sync.Mutex
	sent []sent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: mocks.NewMemoryStore(), creds: &fakeCredentials{}}
	fs := afero.NewMemMapFs()

	docID := f.store.Put(types.DriveFile{Name: "games.json"}, []byte(gamesDoc)).ID
	activityID := f.store.Put(types.DriveFile{Name: "activity.json"}, []byte("{}")).ID
	testutil.WriteFiles(t, fs, "/saves/alpha", map[string]string{"slot1.sav": "alpha progress"})

	f.app = &Context{
		Fs:            fs,
		Store:         f.store,
		Games:         games.NewRegistry(f.store, docID, games.Options{Profile: "default", Credentials: f.creds}),
		State:         state.NewStore(fs, "/cfg"),
		Activity:      activity.NewDirectory(f.store, activity.Options{FileID: activityID, MachineID: "m1", DisplayName: "Desk"}),
		ChangesPort:   47001,
		ProcessesPort: 47002,
	}
	f.ctrl = NewController(f.app)
	f.ctrl.notify = func(ctx context.Context, port int, msg ipc.Message) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.sent = append(f.sent, sent{port: port, msg: msg})
		return nil
	}
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	testutil.AssertNoError(t, f.ctrl.Start(testutil.TestContext()))
}

func (f *fixture) takeSent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish")
		return nil
	}
}

func TestStart(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	st, err := f.app.State.Load()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, st.SelectedGame, "Alpha")
	testutil.AssertEqual(t, f.app.State.GUIInitialized(), true)

	msgs := f.takeSent()
	testutil.AssertEqual(t, len(msgs), 1)
	testutil.AssertEqual(t, msgs[0].port, 47001)
	testutil.AssertEqual(t, msgs[0].msg.Command, ipc.CommandGUIInitialized)

	f.ctrl.Close()
	testutil.AssertEqual(t, f.app.State.GUIInitialized(), false)
}

func TestStart_KeepsValidSelection(t *testing.T) {
	f := newFixture(t)
	testutil.AssertNoError(t, f.app.State.Save(state.AppState{SelectedGame: "Beta"}))
	f.start(t)

	st, _ := f.app.State.Load()
	testutil.AssertEqual(t, st.SelectedGame, "Beta")
}

func TestStart_GameConfigFailure(t *testing.T) {
	f := newFixture(t)
	f.store.DownloadFunc = func(fileID string, w io.Writer) error {
		return errors.New("forbidden")
	}

	err := f.ctrl.Start(testutil.TestContext())
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, f.creds.deleted, 1)
	testutil.AssertEqual(t, f.app.State.GUIInitialized(), false)
}

func TestSelectGame(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.takeSent()

	var refreshed []ipc.RefreshEvent
	for _, ev := range []ipc.RefreshEvent{ipc.RefreshSyncStatus, ipc.RefreshActivity} {
		ev := ev
		f.ctrl.OnRefresh(ev, func(ctx context.Context) error {
			refreshed = append(refreshed, ev)
			return nil
		})
	}

	done, err := f.ctrl.SelectGame(testutil.TestContext(), "Beta")
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, wait(t, done))

	selected, err := f.ctrl.Selected()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, selected.Name, "Beta")
	testutil.AssertEqual(t, fmt.Sprint(refreshed), "[sync_status activity]")

	msgs := f.takeSent()
	testutil.AssertEqual(t, len(msgs), 2)
	for i, port := range []int{47001, 47002} {
		testutil.AssertEqual(t, msgs[i].port, port)
		testutil.AssertEqual(t, msgs[i].msg.Command, ipc.CommandStateChanged)
	}
}

func TestSelectGame_Unknown(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	_, err := f.ctrl.SelectGame(testutil.TestContext(), "Gamma")
	testutil.AssertEqual(t, utils.AsCLIError(err).Code, utils.ErrCodeUnknownGame)
	testutil.AssertEqual(t, f.ctrl.Busy(), false)
}

func TestBusyGuardAndMutex(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := testutil.TestContext()

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	f.ctrl.OnRefresh(ipc.RefreshSyncStatus, func(ctx context.Context) error {
		record("worker start")
		close(entered)
		<-release
		record("worker end")
		return nil
	})
	f.ctrl.OnRefresh(ipc.RefreshGames, func(ctx context.Context) error {
		record("inbound refresh")
		return nil
	})

	done, err := f.ctrl.SelectGame(ctx, "Beta")
	testutil.AssertNoError(t, err)
	<-entered

	testutil.AssertEqual(t, f.ctrl.Busy(), true)
	_, err = f.ctrl.Upload(ctx)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("Upload while busy: err = %v, want ErrBusy", err)
	}

	inbound := make(chan struct{})
	go func() {
		f.ctrl.handleMessage(ctx, ipc.RefreshUI(ipc.RefreshGames))
		close(inbound)
	}()

	close(release)
	testutil.AssertNoError(t, wait(t, done))
	<-inbound

	mu.Lock()
	defer mu.Unlock()
	testutil.AssertEqual(t, fmt.Sprint(order), "[worker start worker end inbound refresh]")
	testutil.AssertEqual(t, f.ctrl.Busy(), false)
}

func TestUploadThenStatus(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := testutil.TestContext()

	refreshes := 0
	f.ctrl.OnRefresh(ipc.RefreshSyncStatus, func(ctx context.Context) error {
		refreshes++
		return nil
	})

	status, err := f.ctrl.Status(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, status.Status, types.SyncStatusLocalOnly)

	done, err := f.ctrl.Upload(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, wait(t, done))
	testutil.AssertEqual(t, refreshes, 1)

	status, err = f.ctrl.Status(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, status.Status, types.SyncStatusUpToDate)
	testutil.AssertEqual(t, status.DriveOwner, "Test User")

	done, err = f.ctrl.Download(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, wait(t, done))
	testutil.AssertEqual(t, refreshes, 2)
}

func TestDownload_NothingUploaded(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	var last events.Event
	f.ctrl.Events().Subscribe(func(e events.Event) { last = e })

	done, err := f.ctrl.Download(testutil.TestContext())
	testutil.AssertNoError(t, err)
	testutil.AssertError(t, wait(t, done))
	testutil.AssertEqual(t, last.Type, events.TypeDone)
	testutil.AssertEqual(t, last.Kind, events.KindDriveMetadataMissing)
}

func TestSetAutoMode(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.takeSent()

	testutil.AssertNoError(t, f.ctrl.SetAutoMode(testutil.TestContext(), true))
	st, _ := f.app.State.Load()
	testutil.AssertEqual(t, st.AutoMode, true)
	testutil.AssertEqual(t, len(f.takeSent()), 2)
}

func TestGameStatus_RecordsHistory(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	testutil.AssertNoError(t, err)
	defer db.Close()
	f.app.Index = db

	game, _ := f.app.Games.Find("Alpha")
	_, err = GameStatus(testutil.TestContext(), f.app, game)
	testutil.AssertNoError(t, err)

	last, err := db.LastStatus(testutil.TestContext(), "Alpha")
	testutil.AssertNoError(t, err)
	if last == nil || last.Status != string(types.SyncStatusLocalOnly) {
		t.Errorf("last status = %+v", last)
	}
}

func TestListenServe(t *testing.T) {
	f := newFixture(t)
	testutil.AssertNoError(t, f.ctrl.Listen(0))
	defer f.ctrl.Close()

	got := make(chan struct{}, 1)
	f.ctrl.OnRefresh(ipc.RefreshActivity, func(ctx context.Context) error {
		got <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.ctrl.Serve(ctx) }()

	testutil.AssertNoError(t, ipc.Send(ctx, f.ctrl.Port(), ipc.RefreshUI(ipc.RefreshActivity)))
	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh handler not called")
	}

	second := newFixture(t)
	err := second.ctrl.Listen(f.ctrl.Port())
	testutil.AssertEqual(t, utils.AsCLIError(err).Code, utils.ErrCodeAlreadyRunning)
}
