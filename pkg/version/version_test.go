package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	i := &Info{Version: "v1.4.0", GitCommit: "abc123", BuildTime: "2026-01-01", Platform: "linux/amd64"}

	if got := i.Short(); got != "1.4.0" {
		t.Errorf("Short() = %q", got)
	}
	if got := i.String(); got != "savegem 1.4.0 (abc123, linux/amd64) built 2026-01-01" {
		t.Errorf("String() = %q", got)
	}
	if got := i.UserAgent(); got != "savegem/1.4.0 (linux/amd64)" {
		t.Errorf("UserAgent() = %q", got)
	}
}

func TestGet_Defaults(t *testing.T) {
	i := Get()
	if i.Version != Version || !strings.Contains(i.Platform, "/") || i.GoVersion == "" {
		t.Errorf("unexpected info: %+v", i)
	}
}
