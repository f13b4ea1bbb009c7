package metadata

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/savegem/internal/remote"
	testutil "github.com/dl-alexandre/savegem/internal/testing"
	"github.com/dl-alexandre/savegem/internal/testing/mocks"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/spf13/afero"
)

func TestLocal_WriteThrough(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, "/saves", map[string]string{"a.sav": "1"})
	game := testutil.TestGame("g", "/saves")

	local := LoadLocal(fs, game)
	if local.Checksum() != "" || local.Owner() != "" || !local.CreatedTime().IsZero() {
		t.Fatal("expected empty metadata for new save directory")
	}

	created := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	testutil.AssertNoError(t, local.SetOwner("Alice"))
	testutil.AssertNoError(t, local.SetCreatedTime(created))
	testutil.AssertNoError(t, local.SetChecksum("abc"))

	reloaded := LoadLocal(fs, game)
	testutil.AssertEqual(t, reloaded.Owner(), "Alice")
	testutil.AssertEqual(t, reloaded.Checksum(), "abc")
	if !reloaded.CreatedTime().Equal(created) {
		t.Errorf("CreatedTime = %v, want %v", reloaded.CreatedTime(), created)
	}

	raw := testutil.ReadFile(t, fs, filepath.Join("/saves", utils.MetadataFileName))
	for _, key := range []string{`"owner"`, `"createdTime"`, `"checksum"`} {
		if !strings.Contains(raw, key) {
			t.Errorf("metadata file missing %s: %s", key, raw)
		}
	}
}

func TestLocal_NullFieldsAndCorruptFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, "/saves", map[string]string{
		utils.MetadataFileName: `{"owner":null,"createdTime":null,"checksum":null}`,
	})
	game := testutil.TestGame("g", "/saves")

	if LoadLocal(fs, game).Checksum() != "" {
		t.Error("null checksum should read as empty")
	}

	testutil.WriteFiles(t, fs, "/saves", map[string]string{utils.MetadataFileName: "not json"})
	if LoadLocal(fs, game).Checksum() != "" {
		t.Error("corrupt file should read as empty")
	}
}

func TestLocal_SetterFailsWithoutDirectory(t *testing.T) {
	local := LoadLocal(afero.NewMemMapFs(), testutil.TestGame("g", "/missing"))
	if err := local.SetChecksum("x"); err == nil {
		t.Error("expected error when save directory is missing")
	}
}

func TestLocal_RecordRestore(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, "/saves", map[string]string{"a.sav": "1"})
	game := testutil.TestGame("g", "/saves")

	local := LoadLocal(fs, game)
	testutil.AssertNoError(t, local.SetChecksum("before"))
	rec := local.Record()

	testutil.AssertNoError(t, local.SetChecksum("after"))
	testutil.AssertNoError(t, local.SetOwner("someone"))
	testutil.AssertNoError(t, local.Restore(rec))

	reloaded := LoadLocal(fs, game)
	testutil.AssertEqual(t, reloaded.Checksum(), "before")
	testutil.AssertEqual(t, reloaded.Owner(), "")
}

func TestDrive_Refresh(t *testing.T) {
	ctx := testutil.TestContext()
	store := mocks.NewMemoryStore()
	game := testutil.TestGame("g", "/saves")

	drive := NewDrive(store, game)
	testutil.AssertNoError(t, drive.Refresh(ctx))
	if drive.IsPresent() {
		t.Fatal("empty directory should not be present")
	}

	store.Put(types.DriveFile{
		Name: "old.zip", MimeType: utils.MimeTypeArchive, Parents: []string{game.RemoteDirectoryID},
		Properties: map[string]string{utils.PropertyOwner: "Bob", utils.PropertyChecksum: "OLD"},
	}, []byte("old"))
	newest := store.Put(types.DriveFile{
		Name: "new.zip", MimeType: utils.MimeTypeArchive, Parents: []string{game.RemoteDirectoryID},
		Properties: map[string]string{utils.PropertyOwner: "Carol", utils.PropertyChecksum: "NEW"},
	}, []byte("new"))
	store.Put(types.DriveFile{
		Name: "notes.json", MimeType: utils.MimeTypeJSON, Parents: []string{game.RemoteDirectoryID},
	}, []byte("{}"))
	store.Put(types.DriveFile{
		Name: "other.zip", MimeType: utils.MimeTypeArchive, Parents: []string{"other-dir"},
	}, []byte("x"))

	testutil.AssertNoError(t, drive.Refresh(ctx))
	if !drive.IsPresent() {
		t.Fatal("expected archive to be present")
	}
	testutil.AssertEqual(t, drive.ID(), newest.ID)
	testutil.AssertEqual(t, drive.Owner(), "Carol")
	testutil.AssertEqual(t, drive.Checksum(), "NEW")
	if drive.CreatedTime().IsZero() {
		t.Error("expected created time to be parsed")
	}
}

func TestDrive_RefreshError(t *testing.T) {
	store := mocks.NewMemoryStore()
	store.ListFunc = func(opts remote.ListOptions) (*types.FileListResult, error) {
		return nil, errors.New("network down")
	}
	drive := NewDrive(store, testutil.TestGame("g", "/saves"))
	if err := drive.Refresh(testutil.TestContext()); err == nil {
		t.Error("expected query failure to be returned")
	}
}

func TestTracker_Status(t *testing.T) {
	ctx := testutil.TestContext()
	fs := afero.NewMemMapFs()
	store := mocks.NewMemoryStore()
	testutil.WriteFiles(t, fs, "/saves", map[string]string{"a.sav": "1"})
	game := testutil.TestGame("g", "/saves")

	tracker := NewTracker(fs, store, game)
	testutil.AssertNoError(t, tracker.Refresh(ctx))
	status, err := tracker.Status()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, status, types.SyncStatusLocalOnly)

	sum, err := tracker.Local.CalculateChecksum()
	testutil.AssertNoError(t, err)
	store.Put(types.DriveFile{
		Name: "save.zip", MimeType: utils.MimeTypeArchive, Parents: []string{game.RemoteDirectoryID},
		Properties: map[string]string{utils.PropertyChecksum: sum},
	}, []byte("zip"))
	testutil.AssertNoError(t, tracker.Refresh(ctx))

	status, _ = tracker.Status()
	testutil.AssertEqual(t, status, types.SyncStatusNoInformation)

	testutil.AssertNoError(t, tracker.Local.SetChecksum(sum))
	status, _ = tracker.Status()
	testutil.AssertEqual(t, status, types.SyncStatusUpToDate)

	testutil.WriteFiles(t, fs, "/saves", map[string]string{"a.sav": "2"})
	status, _ = tracker.Status()
	testutil.AssertEqual(t, status, types.SyncStatusNeedsUpload)
}
