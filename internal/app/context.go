// Package app is the UI-process controller: it owns the game selection,
// runs transfers one at a time and turns RefreshUI messages from the
// daemons into calls of registered refresh handlers.
package app

import (
	"github.com/dl-alexandre/savegem/internal/activity"
	"github.com/dl-alexandre/savegem/internal/games"
	"github.com/dl-alexandre/savegem/internal/index"
	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/remote"
	"github.com/dl-alexandre/savegem/internal/state"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

// Context carries the collaborators of one UI process. It replaces global
// singletons: everything that needs them gets the Context explicitly.
type Context struct {
	Fs       afero.Fs
	Store    remote.Store
	Games    *games.Registry
	State    *state.Store
	Activity *activity.Directory
	// Index is optional; statuses are recorded when set
	Index *index.DB

	// Ports the daemons listen on for StateChanged and GUIInitialized
	ChangesPort   int
	ProcessesPort int

	Clock  clockwork.Clock
	Logger logging.Logger
}

func (c *Context) withDefaults() *Context {
	out := *c
	if out.Fs == nil {
		out.Fs = afero.NewOsFs()
	}
	if out.Clock == nil {
		out.Clock = clockwork.NewRealClock()
	}
	if out.Logger == nil {
		out.Logger = logging.NewNoOpLogger()
	}
	return &out
}
