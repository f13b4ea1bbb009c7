package process

import (
	"context"
	"errors"
	"strings"
	"testing"

	testutil "github.com/dl-alexandre/savegem/internal/testing"
)

func TestCommandLister(t *testing.T) {
	tests := []struct {
		name    string
		goos    string
		out     string
		wantCmd string
		want    []string
	}{
		{
			name:    "ps",
			goos:    "linux",
			out:     "systemd\n/usr/bin/alpha\n  beta  \n\n",
			wantCmd: "ps",
			want:    []string{"systemd", "alpha", "beta"},
		},
		{
			name:    "tasklist",
			goos:    "windows",
			out:     "\"System Idle Process\",\"0\",\"Services\",\"0\",\"8 K\"\r\n\"Alpha.exe\",\"4242\",\"Console\",\"1\",\"1,024 K\"\r\n",
			wantCmd: "tasklist",
			want:    []string{"System Idle Process", "Alpha.exe"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotCmd string
			l := &CommandLister{goos: tt.goos, run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
				gotCmd = name
				return []byte(tt.out), nil
			}}

			names, err := l.Running(context.Background())
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, gotCmd, tt.wantCmd)
			testutil.AssertEqual(t, strings.Join(names, "|"), strings.Join(tt.want, "|"))
		})
	}
}

func TestCommandLister_Error(t *testing.T) {
	l := &CommandLister{goos: "linux", run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("not found")
	}}
	_, err := l.Running(context.Background())
	testutil.AssertError(t, err)
}

func TestMatches(t *testing.T) {
	running := []string{"explorer.exe", "Alpha.EXE", "beta"}

	tests := []struct {
		process string
		want    bool
	}{
		{"alpha.exe", true},
		{"Alpha", true},
		{"beta.exe", true},
		{"gamma", false},
		{"", false},
	}
	for _, tt := range tests {
		testutil.AssertEqual(t, Matches(running, tt.process), tt.want, tt.process)
	}
}
