package cli

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/savegem/internal/app"
	"github.com/dl-alexandre/savegem/internal/config"
	"github.com/dl-alexandre/savegem/internal/daemon"
	"github.com/dl-alexandre/savegem/internal/events"
	"github.com/dl-alexandre/savegem/internal/transfer"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "daemon already running", err: daemon.ErrAlreadyRunning, want: utils.ExitAlreadyRunning},
		{name: "wrapped already running", err: fmt.Errorf("changes: %w", daemon.ErrAlreadyRunning), want: utils.ExitAlreadyRunning},
		{name: "busy", err: app.ErrBusy, want: utils.ExitBusy},
		{
			name: "saves missing",
			err:  utils.NewAppError(utils.NewCLIError(utils.ErrCodeSavesMissing, "gone").Build()),
			want: utils.ExitSavesMissing,
		},
		{name: "plain error", err: errors.New("boom"), want: utils.ExitUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTransferError(t *testing.T) {
	game := types.Game{Name: "Alpha"}
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantKind string
	}{
		{
			name:     "saves missing",
			err:      &transfer.Error{Kind: events.KindSavesDirectoryMissing},
			wantCode: utils.ErrCodeSavesMissing,
			wantKind: string(events.KindSavesDirectoryMissing),
		},
		{
			name:     "nothing uploaded",
			err:      fmt.Errorf("download: %w", &transfer.Error{Kind: events.KindDriveMetadataMissing}),
			wantCode: utils.ErrCodeDriveMetadata,
			wantKind: string(events.KindDriveMetadataMissing),
		},
		{
			name:     "upload failed",
			err:      &transfer.Error{Kind: events.KindErrorUploadingToDrive, Err: errors.New("quota")},
			wantCode: utils.ErrCodeTransferFailed,
			wantKind: string(events.KindErrorUploadingToDrive),
		},
		{
			name:     "not a transfer error",
			err:      errors.New("boom"),
			wantCode: utils.ErrCodeUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := transferError(game, tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", got.Code, tt.wantCode)
			}
			if tt.wantKind != "" && got.Context["kind"] != tt.wantKind {
				t.Errorf("kind = %v, want %s", got.Context["kind"], tt.wantKind)
			}
		})
	}
}

func TestProgressPrinter(t *testing.T) {
	w, _, stderr := newBufferedWriter(types.OutputFormatTable)
	printer := progressPrinter(w)

	for _, p := range []int{0, 3, 9, 10, 15, 42, 100, 100} {
		printer(events.Progress(p))
	}
	printer(events.Failure(events.KindErrorDownloadingFromDrive))

	lines := strings.Split(strings.TrimSpace(stderr.String()), "\n")
	want := []string{"  0%", " 10%", " 40%", "100%", "Failed: ErrorDownloadingFromDrive"}
	if len(lines) != len(want) {
		t.Fatalf("got %q, want %q", lines, want)
	}
	for i := range want {
		if strings.TrimSpace(lines[i]) != strings.TrimSpace(want[i]) {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestUISession_ProgressWaitsForSessionLock(t *testing.T) {
	w, _, stderr := newBufferedWriter(types.OutputFormatTable)
	s := &uiSession{out: w}
	printer := s.locked(progressPrinter(w))

	s.mu.Lock()
	done := make(chan struct{})
	go func() {
		printer(events.Progress(50))
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("progress was written while the session held its lock")
	case <-time.After(50 * time.Millisecond):
	}
	s.mu.Unlock()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("progress never written")
	}
	if got := strings.TrimSpace(stderr.String()); got != "50%" {
		t.Errorf("output = %q, want 50%%", got)
	}
}

func TestParseUICommand(t *testing.T) {
	tests := []struct {
		line    string
		want    uiCommand
		wantErr bool
	}{
		{line: "", want: uiCommand{}},
		{line: "   ", want: uiCommand{}},
		{line: "select Hollow Knight", want: uiCommand{name: "select", arg: "Hollow Knight"}},
		{line: "SELECT  Alpha ", want: uiCommand{name: "select", arg: "Alpha"}},
		{line: "select", wantErr: true},
		{line: "auto ON", want: uiCommand{name: "auto", arg: "on"}},
		{line: "auto off", want: uiCommand{name: "auto", arg: "off"}},
		{line: "auto maybe", wantErr: true},
		{line: "download", want: uiCommand{name: "download"}},
		{line: "upload now", wantErr: true},
		{line: "exit", want: uiCommand{name: "quit"}},
		{line: "quit", want: uiCommand{name: "quit"}},
		{line: "sync", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseUICommand(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDefaultDaemonCommands(t *testing.T) {
	got := defaultDaemonCommands("/usr/bin/savegem", "work")
	if len(got) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(got))
	}
	if strings.Join(got[0], " ") != "/usr/bin/savegem --profile work daemon changes" {
		t.Errorf("unexpected changes command: %v", got[0])
	}
	if strings.Join(got[1], " ") != "/usr/bin/savegem --profile work daemon processes" {
		t.Errorf("unexpected processes command: %v", got[1])
	}
}

func TestGameList(t *testing.T) {
	list := gameList{
		{Name: "Alpha", ProcessName: "alpha.exe", LocalPath: "/saves/alpha", AutoModeAllowed: true},
		{Name: "Beta", LocalPath: "/saves/beta"},
	}
	rows := list.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], "|") != "Alpha|alpha.exe|yes|/saves/alpha" {
		t.Errorf("unexpected row: %v", rows[0])
	}
	if strings.Join(rows[1], "|") != "Beta|-|no|/saves/beta" {
		t.Errorf("unexpected row: %v", rows[1])
	}
	if len(list.Headers()) != len(rows[0]) {
		t.Errorf("header and row widths differ")
	}
}

func TestSetConfigValue(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		check   func(cfg *config.Config) bool
		wantErr bool
	}{
		{key: "gameConfigFileId", value: "doc-1", check: func(c *config.Config) bool { return c.GameConfigFileID == "doc-1" }},
		{key: "UIPORT", value: "48000", check: func(c *config.Config) bool { return c.UIPort == 48000 }},
		{key: "activityStaleAfter", value: "600", check: func(c *config.Config) bool { return c.ActivityStaleAfter == 600 }},
		{key: "colorOutput", value: "off", check: func(c *config.Config) bool { return !c.ColorOutput }},
		{key: "uiPort", value: "abc", wantErr: true},
		{key: "uiPort", value: "0", wantErr: true},
		{key: "changesPort", value: fmt.Sprint(utils.DefaultProcessesPort), wantErr: true},
		{key: "logLevel", value: "loud", wantErr: true},
		{key: "defaultOutputFormat", value: "xml", wantErr: true},
		{key: "cacheTTL", value: "10", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cfg := config.DefaultConfig()
			err := setConfigValue(cfg, tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("value not applied: %+v", cfg)
			}
		})
	}
}

func TestConfigView(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.WatchdogCommands = [][]string{{"savegem", "daemon", "changes"}}

	view := configView(cfg)
	if view["gameConfigFileId"] != "-" {
		t.Errorf("unset file id = %v", view["gameConfigFileId"])
	}
	if view["watchdogCommands[0]"] != "savegem daemon changes" {
		t.Errorf("watchdog command = %v", view["watchdogCommands[0]"])
	}
	for _, key := range configKeys() {
		found := false
		for name := range view {
			if strings.EqualFold(name, key) {
				found = true
			}
		}
		if !found {
			t.Errorf("settable key %s missing from view", key)
		}
	}
}
