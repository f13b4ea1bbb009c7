package transfer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dl-alexandre/savegem/internal/checksum"
	"github.com/dl-alexandre/savegem/internal/events"
	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/metadata"
	"github.com/dl-alexandre/savegem/internal/remote"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

const uploadStages = 4

// Uploader archives local saves and uploads them as the newest remote archive
type Uploader struct {
	base
	clock clockwork.Clock
}

// NewUploader creates an uploader. ch, logger and clock may be nil.
func NewUploader(fs afero.Fs, store remote.Store, ch *events.Channel, logger logging.Logger, clock clockwork.Clock) *Uploader {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Uploader{base: newBase(fs, store, ch, logger), clock: clock}
}

// Upload records the current checksum and owner in the local metadata,
// archives the matched save files together with the metadata file and
// uploads the archive. If the upload fails the previous metadata is restored.
func (u *Uploader) Upload(ctx context.Context, game types.Game) error {
	u.events.SetStages(uploadStages)

	if !u.savesExist(game) {
		return u.fail(game, events.KindSavesDirectoryMissing, nil)
	}

	scratch, err := u.scratchDir()
	if err != nil {
		return u.fail(game, events.KindErrorPreparingSaves, err)
	}
	defer u.fs.RemoveAll(scratch)

	sum, err := checksum.Digest(u.fs, game)
	if err != nil {
		return u.fail(game, events.KindErrorPreparingSaves, err)
	}
	owner, err := u.owner(ctx)
	if err != nil {
		return u.fail(game, events.KindErrorUploadingToDrive, err)
	}

	local := metadata.LoadLocal(u.fs, game)
	previous := local.Record()
	now := u.clock.Now().UTC()
	if err := u.recordMetadata(local, sum, owner, now); err != nil {
		u.rollback(game, local, previous)
		return u.fail(game, events.KindErrorPreparingSaves, err)
	}
	u.events.CompleteStage(1)

	staged := filepath.Join(scratch, "files")
	if err := u.stage(game, staged); err != nil {
		u.rollback(game, local, previous)
		return u.fail(game, events.KindErrorPreparingSaves, err)
	}
	u.events.CompleteStage(1)

	archivePath := filepath.Join(scratch, "save.zip")
	if err := u.archive(staged, archivePath); err != nil {
		u.rollback(game, local, previous)
		return u.fail(game, events.KindErrorPreparingSaves, err)
	}
	u.events.CompleteStage(1)

	uploaded, err := u.send(ctx, game, archivePath, remote.UploadOptions{
		Name:     ArchiveName(game, now),
		ParentID: game.RemoteDirectoryID,
		MimeType: utils.MimeTypeArchive,
		Properties: map[string]string{
			utils.PropertyOwner:    owner,
			utils.PropertyChecksum: sum,
		},
		Progress: u.events.StageProgress(),
	})
	if err != nil {
		u.rollback(game, local, previous)
		return u.fail(game, events.KindErrorUploadingToDrive, err)
	}
	u.events.CompleteStage(1)

	u.logger.Info("Uploaded saves",
		logging.F("game", game.Name),
		logging.F("fileId", uploaded.ID),
		logging.F("checksum", sum),
	)
	u.events.Finish()
	return nil
}

// ArchiveName is the remote file name of an archive uploaded at t
func ArchiveName(game types.Game, t time.Time) string {
	return fmt.Sprintf("%s_%s.zip", game.Name, t.UTC().Format("20060102T150405Z"))
}

func (u *Uploader) owner(ctx context.Context) (string, error) {
	user, err := u.store.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}
	if user.DisplayName != "" {
		return user.DisplayName, nil
	}
	return user.EmailAddress, nil
}

func (u *Uploader) recordMetadata(local *metadata.Local, sum, owner string, now time.Time) error {
	if err := local.SetChecksum(sum); err != nil {
		return err
	}
	if err := local.SetOwner(owner); err != nil {
		return err
	}
	return local.SetCreatedTime(now)
}

func (u *Uploader) stage(game types.Game, dst string) error {
	files, err := checksum.SaveFiles(u.fs, game)
	if err != nil {
		return err
	}
	files = append(files, utils.MetadataFileName)
	for _, rel := range files {
		src := filepath.Join(game.LocalPath, filepath.FromSlash(rel))
		if err := copyFile(u.fs, src, filepath.Join(dst, filepath.FromSlash(rel))); err != nil {
			return fmt.Errorf("failed to stage %s: %w", rel, err)
		}
	}
	return nil
}

func (u *Uploader) archive(src, archivePath string) (err error) {
	f, err := u.fs.Create(archivePath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return zipDir(u.fs, src, f)
}

func (u *Uploader) send(ctx context.Context, game types.Game, archivePath string, opts remote.UploadOptions) (*types.DriveFile, error) {
	f, err := u.fs.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	u.logger.Debug("Uploading archive",
		logging.F("game", game.Name),
		logging.F("parentId", opts.ParentID),
		logging.F("name", opts.Name),
	)
	return u.store.Upload(ctx, f, opts)
}

func (u *Uploader) rollback(game types.Game, local *metadata.Local, previous metadata.LocalRecord) {
	if err := local.Restore(previous); err != nil {
		u.logger.Warn("Failed to restore metadata after failed upload",
			logging.F("game", game.Name),
			logging.F("error", err.Error()),
		)
	}
}
