package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	testutil "github.com/dl-alexandre/savegem/internal/testing"
)

func TestLoadServiceConfig(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantFound bool
		wantErr   bool
		check     func(t *testing.T, cfg ServiceConfig)
	}{
		{
			name:      "full file",
			content:   "interval_seconds = 15\nrequire_auth = false\n\n[settings]\nlimit = 3\nwatch_local = true\n",
			wantFound: true,
			check: func(t *testing.T, cfg ServiceConfig) {
				testutil.AssertEqual(t, cfg.Interval(time.Minute), 15*time.Second)
				if cfg.RequireAuth == nil || *cfg.RequireAuth {
					t.Errorf("RequireAuth = %v, want false", cfg.RequireAuth)
				}
				testutil.AssertEqual(t, cfg.String("limit"), "3")
				testutil.AssertEqual(t, cfg.String("absent"), "")
				testutil.AssertEqual(t, cfg.Bool("watch_local", false), true)
				testutil.AssertEqual(t, cfg.Bool("limit", false), false)
				testutil.AssertEqual(t, cfg.Bool("absent", true), true)
				testutil.AssertEqual(t, cfg.Int("limit", 0), 3)
				testutil.AssertEqual(t, cfg.Int("watch_local", 7), 7)
			},
		},
		{
			name:      "empty file keeps fallbacks",
			content:   "",
			wantFound: true,
			check: func(t *testing.T, cfg ServiceConfig) {
				testutil.AssertEqual(t, cfg.Interval(time.Minute), time.Minute)
				if cfg.RequireAuth != nil {
					t.Error("RequireAuth should be unset")
				}
			},
		},
		{
			name:    "negative interval",
			content: "interval_seconds = -1\n",
			wantErr: true,
		},
		{
			name:    "malformed",
			content: "interval_seconds = [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "service.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}

			cfg, found, err := LoadServiceConfig(path)
			if tt.wantErr {
				testutil.AssertError(t, err)
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, found, tt.wantFound)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadServiceConfig_NoPath(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.toml")} {
		_, found, err := LoadServiceConfig(path)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, found, false)
	}
}
