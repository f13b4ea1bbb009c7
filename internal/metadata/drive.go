package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/dl-alexandre/savegem/internal/remote"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
)

// Drive describes the newest archive in a game's remote directory. It only
// changes when Refresh is called.
type Drive struct {
	store remote.Store
	game  types.Game

	present     bool
	id          string
	owner       string
	checksum    string
	createdTime time.Time
}

// NewDrive creates metadata for game that has not been refreshed yet
func NewDrive(store remote.Store, game types.Game) *Drive {
	return &Drive{store: store, game: game}
}

// Refresh queries the newest archive. A failed query is returned as an
// error; an empty directory sets IsPresent to false.
func (d *Drive) Refresh(ctx context.Context) error {
	result, err := d.store.List(ctx, remote.ListOptions{
		ParentID: d.game.RemoteDirectoryID,
		MimeType: utils.MimeTypeArchive,
		OrderBy:  "createdTime desc",
		PageSize: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to query archives for %s: %w", d.game.Name, err)
	}

	if len(result.Files) == 0 {
		d.present = false
		d.id, d.owner, d.checksum = "", "", ""
		d.createdTime = time.Time{}
		return nil
	}

	f := result.Files[0]
	d.present = true
	d.id = f.ID
	d.owner = f.Properties[utils.PropertyOwner]
	d.checksum = f.Properties[utils.PropertyChecksum]
	d.createdTime = time.Time{}
	if t, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
		d.createdTime = t
	}
	return nil
}

// IsPresent reports whether the last Refresh found an archive
func (d *Drive) IsPresent() bool { return d.present }

// ID is the remote file id of the newest archive
func (d *Drive) ID() string { return d.id }

// Owner is the machine name that uploaded the newest archive
func (d *Drive) Owner() string { return d.owner }

// Checksum is the save digest recorded on the newest archive
func (d *Drive) Checksum() string { return d.checksum }

// CreatedTime is when the newest archive was uploaded
func (d *Drive) CreatedTime() time.Time { return d.createdTime }
