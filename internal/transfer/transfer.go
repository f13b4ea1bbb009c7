// Package transfer moves save archives between a game's save directory and
// the remote store, reporting staged progress on an events.Channel.
package transfer

import (
	"fmt"
	"os"

	"github.com/dl-alexandre/savegem/internal/events"
	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/remote"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/spf13/afero"
)

// Error is returned by Download and Upload after the matching error event
// has been sent
type Error struct {
	Kind events.Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// base holds what both directions share. Instances are not safe for
// overlapping calls.
type base struct {
	fs      afero.Fs
	store   remote.Store
	events  *events.Channel
	logger  logging.Logger
	tempDir string
}

func newBase(fs afero.Fs, store remote.Store, ch *events.Channel, logger logging.Logger) base {
	if ch == nil {
		ch = events.NewChannel()
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return base{
		fs:      fs,
		store:   store,
		events:  ch,
		logger:  logger,
		tempDir: os.TempDir(),
	}
}

// Events returns the channel progress is reported on
func (b *base) Events() *events.Channel {
	return b.events
}

// SetTempDir changes where scratch files are created
func (b *base) SetTempDir(dir string) {
	b.tempDir = dir
}

func (b *base) fail(game types.Game, kind events.Kind, err error) error {
	fields := []logging.Field{logging.F("game", game.Name), logging.F("kind", string(kind))}
	if err != nil {
		fields = append(fields, logging.F("error", err.Error()))
	}
	b.logger.Error("Transfer failed", fields...)
	b.events.Error(kind)
	return &Error{Kind: kind, Err: err}
}

func (b *base) savesExist(game types.Game) bool {
	ok, err := afero.DirExists(b.fs, game.LocalPath)
	return err == nil && ok
}

func (b *base) scratchDir() (string, error) {
	if err := b.fs.MkdirAll(b.tempDir, 0755); err != nil {
		return "", err
	}
	return afero.TempDir(b.fs, b.tempDir, "savegem-")
}
