package transfer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dl-alexandre/savegem/internal/events"
	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/metadata"
	"github.com/dl-alexandre/savegem/internal/remote"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/spf13/afero"
)

const downloadStages = 4

// Downloader replaces local saves with the newest remote archive
type Downloader struct {
	base
}

// NewDownloader creates a downloader. ch and logger may be nil.
func NewDownloader(fs afero.Fs, store remote.Store, ch *events.Channel, logger logging.Logger) *Downloader {
	return &Downloader{base: newBase(fs, store, ch, logger)}
}

// BackupPath is the sibling directory that receives a copy of the saves
// before an archive is extracted over them
func BackupPath(game types.Game) string {
	return filepath.Clean(game.LocalPath) + utils.BackupSuffix
}

// Download fetches the newest archive of game, backs up the save directory
// and extracts the archive over it. The local checksum is set to the
// archive's checksum on success.
func (d *Downloader) Download(ctx context.Context, game types.Game) error {
	d.events.SetStages(downloadStages)

	if !d.savesExist(game) {
		return d.fail(game, events.KindSavesDirectoryMissing, nil)
	}

	tracker := metadata.NewTracker(d.fs, d.store, game)
	if err := tracker.Drive.Refresh(ctx); err != nil {
		return d.fail(game, events.KindErrorDownloadingFromDrive, err)
	}
	if !tracker.Drive.IsPresent() {
		return d.fail(game, events.KindDriveMetadataMissing, nil)
	}
	d.events.CompleteStage(1)

	scratch, err := d.scratchDir()
	if err != nil {
		return d.fail(game, events.KindErrorPreparingSaves, err)
	}
	defer d.fs.RemoveAll(scratch)

	archivePath := filepath.Join(scratch, "save.zip")
	if err := d.fetch(ctx, tracker.Drive.ID(), archivePath); err != nil {
		return d.fail(game, events.KindErrorDownloadingFromDrive, err)
	}
	d.events.CompleteStage(1)

	backup := BackupPath(game)
	if err := d.fs.RemoveAll(backup); err != nil {
		return d.fail(game, events.KindErrorPreparingSaves, fmt.Errorf("failed to remove old backup: %w", err))
	}
	if err := copyDir(d.fs, game.LocalPath, backup); err != nil {
		return d.fail(game, events.KindErrorPreparingSaves, fmt.Errorf("failed to back up saves: %w", err))
	}
	d.events.CompleteStage(1)

	if err := unzip(d.fs, archivePath, game.LocalPath); err != nil {
		return d.fail(game, events.KindErrorPreparingSaves, err)
	}

	tracker.Local.Refresh()
	if err := tracker.Local.SetChecksum(tracker.Drive.Checksum()); err != nil {
		return d.fail(game, events.KindErrorPreparingSaves, err)
	}
	d.events.CompleteStage(1)

	d.logger.Info("Downloaded saves",
		logging.F("game", game.Name),
		logging.F("fileId", tracker.Drive.ID()),
		logging.F("owner", tracker.Drive.Owner()),
	)
	d.events.Finish()
	return nil
}

func (d *Downloader) fetch(ctx context.Context, fileID, path string) (err error) {
	f, err := d.fs.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return d.store.Download(ctx, fileID, f, d.events.StageProgress())
}
