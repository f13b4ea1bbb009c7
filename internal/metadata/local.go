package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dl-alexandre/savegem/internal/checksum"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/spf13/afero"
)

// LocalRecord is the on-disk form of the metadata file. Absent values are null.
type LocalRecord struct {
	Owner       *string `json:"owner"`
	CreatedTime *string `json:"createdTime"`
	Checksum    *string `json:"checksum"`
}

// Local is the metadata file inside a game's save directory. Every setter
// writes the file immediately.
type Local struct {
	fs     afero.Fs
	game   types.Game
	path   string
	record LocalRecord
}

// LoadLocal reads the metadata file of game. A missing or unreadable file
// yields empty metadata.
func LoadLocal(fs afero.Fs, game types.Game) *Local {
	l := &Local{
		fs:   fs,
		game: game,
		path: filepath.Join(game.LocalPath, utils.MetadataFileName),
	}
	l.Refresh()
	return l
}

// Path is the location of the metadata file
func (l *Local) Path() string {
	return l.path
}

// Refresh re-reads the file, discarding in-memory state
func (l *Local) Refresh() {
	l.record = LocalRecord{}
	data, err := afero.ReadFile(l.fs, l.path)
	if err != nil {
		return
	}
	var rec LocalRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return
	}
	l.record = rec
}

// Owner is the machine name that last synced the saves, or ""
func (l *Local) Owner() string {
	return deref(l.record.Owner)
}

// CreatedTime returns the zero time when unknown
func (l *Local) CreatedTime() time.Time {
	s := deref(l.record.CreatedTime)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Checksum returns "" when the saves have never been synced
func (l *Local) Checksum() string {
	return deref(l.record.Checksum)
}

// SetOwner records owner and writes the file
func (l *Local) SetOwner(owner string) error {
	l.record.Owner = &owner
	return l.save()
}

// SetCreatedTime records t and writes the file
func (l *Local) SetCreatedTime(t time.Time) error {
	s := t.UTC().Format(time.RFC3339)
	l.record.CreatedTime = &s
	return l.save()
}

// SetChecksum records sum and writes the file
func (l *Local) SetChecksum(sum string) error {
	l.record.Checksum = &sum
	return l.save()
}

// Record returns a copy of the current state
func (l *Local) Record() LocalRecord {
	return LocalRecord{
		Owner:       clone(l.record.Owner),
		CreatedTime: clone(l.record.CreatedTime),
		Checksum:    clone(l.record.Checksum),
	}
}

// Restore replaces the state with rec and writes it
func (l *Local) Restore(rec LocalRecord) error {
	l.record = LocalRecord{
		Owner:       clone(rec.Owner),
		CreatedTime: clone(rec.CreatedTime),
		Checksum:    clone(rec.Checksum),
	}
	return l.save()
}

// CalculateChecksum digests the current save files
func (l *Local) CalculateChecksum() (string, error) {
	return checksum.Digest(l.fs, l.game)
}

func (l *Local) save() error {
	if ok, err := afero.DirExists(l.fs, l.game.LocalPath); err != nil || !ok {
		return fmt.Errorf("save directory %s: %w", l.game.LocalPath, os.ErrNotExist)
	}
	data, err := json.MarshalIndent(l.record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := afero.WriteFile(l.fs, l.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func clone(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
