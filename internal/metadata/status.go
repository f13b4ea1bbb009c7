// Package metadata tracks what is known about a game's save locally and on
// the remote store, and derives the sync status from both.
package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/dl-alexandre/savegem/internal/remote"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/spf13/afero"
)

// ErrInconsistentState is returned when no status rule applies
var ErrInconsistentState = errors.New("inconsistent sync state")

// LocalState is the local half of a status evaluation
type LocalState interface {
	Checksum() string
	CalculateChecksum() (string, error)
}

// DriveState is the remote half of a status evaluation
type DriveState interface {
	IsPresent() bool
	Checksum() string
}

// Status compares local and drive metadata. Rules are evaluated in order and
// the first match wins.
func Status(local LocalState, drive DriveState) (types.SyncStatus, error) {
	if !drive.IsPresent() {
		return types.SyncStatusLocalOnly, nil
	}

	recorded := local.Checksum()
	if recorded == "" {
		return types.SyncStatusNoInformation, nil
	}

	current, err := local.CalculateChecksum()
	if err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	remoteSum := drive.Checksum()
	switch {
	case recorded == current && current == remoteSum:
		return types.SyncStatusUpToDate, nil
	case recorded != remoteSum:
		return types.SyncStatusNeedsDownload, nil
	case current != remoteSum:
		return types.SyncStatusNeedsUpload, nil
	}
	return "", ErrInconsistentState
}

// Tracker pairs the local and drive metadata of one game
type Tracker struct {
	Game  types.Game
	Local *Local
	Drive *Drive
}

// NewTracker loads local metadata; drive metadata stays empty until Refresh
func NewTracker(fs afero.Fs, store remote.Store, game types.Game) *Tracker {
	return &Tracker{
		Game:  game,
		Local: LoadLocal(fs, game),
		Drive: NewDrive(store, game),
	}
}

// Refresh reloads both sides
func (t *Tracker) Refresh(ctx context.Context) error {
	t.Local.Refresh()
	return t.Drive.Refresh(ctx)
}

// Status evaluates the current sync status without refreshing
func (t *Tracker) Status() (types.SyncStatus, error) {
	return Status(t.Local, t.Drive)
}
