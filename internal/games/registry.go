// Package games loads the shared game configuration document from the
// remote store.
package games

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/dl-alexandre/savegem/internal/config"
	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/remote"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
)

// Document is the shape of the remote game configuration file
type Document struct {
	Games []types.Game `json:"games"`
}

// CredentialRemover drops the cached credential of a profile.
// auth.Manager satisfies it.
type CredentialRemover interface {
	DeleteCredentials(profile string) error
}

// Options configures a Registry
type Options struct {
	// Profile whose credential is deleted when loading fails
	Profile     string
	Credentials CredentialRemover
	Logger      logging.Logger
}

// Registry holds the current game set. Load replaces it wholesale.
type Registry struct {
	store  remote.Store
	fileID string
	opts   Options

	mu     sync.RWMutex
	games  []types.Game
	loaded bool
}

func NewRegistry(store remote.Store, fileID string, opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	return &Registry{store: store, fileID: fileID, opts: opts}
}

// FileID is the remote id of the configuration document
func (r *Registry) FileID() string {
	return r.fileID
}

// Load downloads and parses the configuration. Any failure is fatal for
// the caller and removes the cached credential so the next start has to
// authenticate again.
func (r *Registry) Load(ctx context.Context) error {
	games, err := r.fetch(ctx)
	if err != nil {
		r.opts.Logger.Error("Failed to load game configuration",
			logging.F("file_id", r.fileID),
			logging.F("error", err.Error()),
		)
		if r.opts.Credentials != nil {
			if delErr := r.opts.Credentials.DeleteCredentials(r.opts.Profile); delErr != nil {
				r.opts.Logger.Warn("Failed to delete cached credentials", logging.F("error", delErr.Error()))
			}
		}
		return err
	}

	r.mu.Lock()
	r.games = games
	r.loaded = true
	r.mu.Unlock()

	r.opts.Logger.Info("Loaded game configuration", logging.F("games", len(games)))
	return nil
}

func (r *Registry) fetch(ctx context.Context) ([]types.Game, error) {
	if r.fileID == "" {
		return nil, invalid("game configuration file id is not set")
	}

	var buf bytes.Buffer
	if err := r.store.Download(ctx, r.fileID, &buf, nil); err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeGameConfigFailed,
			fmt.Sprintf("failed to download game configuration: %s", err)).
			WithContext("fileId", r.fileID).
			Build(), err)
	}
	return Parse(buf.Bytes())
}

// Parse decodes and validates a configuration document. Local paths are
// expanded.
func Parse(data []byte) ([]types.Game, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, invalid(fmt.Sprintf("malformed game configuration: %s", err))
	}

	seen := make(map[string]bool, len(doc.Games))
	games := make([]types.Game, 0, len(doc.Games))
	for i, g := range doc.Games {
		if g.Name == "" {
			return nil, invalid(fmt.Sprintf("game %d has no name", i))
		}
		if seen[g.Name] {
			return nil, invalid(fmt.Sprintf("duplicate game %q", g.Name))
		}
		seen[g.Name] = true
		if g.LocalPath == "" || g.RemoteDirectoryID == "" {
			return nil, invalid(fmt.Sprintf("game %q needs localPath and remoteDirectoryId", g.Name))
		}
		for _, p := range g.FilePatterns {
			if _, err := regexp.Compile(p); err != nil {
				return nil, invalid(fmt.Sprintf("game %q has invalid pattern %q: %s", g.Name, p, err))
			}
		}

		expanded, err := config.ExpandPath(g.LocalPath)
		if err != nil {
			return nil, invalid(fmt.Sprintf("game %q: %s", g.Name, err))
		}
		g.LocalPath = expanded
		g.FilePatterns = append([]string(nil), g.FilePatterns...)
		games = append(games, g)
	}
	return games, nil
}

func invalid(msg string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeGameConfigFailed, msg).Build())
}

// Loaded reports whether a Load has succeeded
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Games returns a copy of the current set
func (r *Registry) Games() []types.Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.Game(nil), r.games...)
}

// Find looks a game up by name
func (r *Registry) Find(name string) (types.Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.games {
		if g.Name == name {
			return g, true
		}
	}
	return types.Game{}, false
}

// Names returns the game names in configuration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.games))
	for i, g := range r.games {
		names[i] = g.Name
	}
	return names
}
