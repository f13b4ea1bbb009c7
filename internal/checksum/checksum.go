// Package checksum computes the content digest of a game's save files.
package checksum

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/spf13/afero"
)

// Matcher decides which files under a save directory belong to the save
type Matcher struct {
	patterns []*regexp.Regexp
}

// NewMatcher compiles patterns. Each pattern is anchored at the start of the
// slash-separated relative path. No patterns means every file matches.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		re, err := regexp.Compile("^(?:" + p + ")")
		if err != nil {
			return nil, fmt.Errorf("invalid file pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// Matches reports whether rel (slash-separated) is part of the save
func (m *Matcher) Matches(rel string) bool {
	if path.Base(rel) == utils.MetadataFileName {
		return false
	}
	if len(m.patterns) == 0 {
		return true
	}
	for _, re := range m.patterns {
		if re.MatchString(rel) {
			return true
		}
	}
	return false
}

// SaveFiles returns the sorted relative paths of the files that make up a
// game's save. The metadata file is never included.
func SaveFiles(fs afero.Fs, game types.Game) ([]string, error) {
	matcher, err := NewMatcher(game.FilePatterns)
	if err != nil {
		return nil, err
	}

	var files []string
	err = afero.Walk(fs, game.LocalPath, func(current string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(game.LocalPath, current)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if matcher.Matches(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Digest returns the hex checksum of a game's save files: every file is hashed
// individually and the per-file digests are fed, in sorted path order, into
// one SHA-256. Any read error fails the whole digest.
func Digest(fs afero.Fs, game types.Game) (string, error) {
	files, err := SaveFiles(fs, game)
	if err != nil {
		return "", fmt.Errorf("failed to list save files: %w", err)
	}

	total := sha256.New()
	for _, rel := range files {
		sum, err := hashFile(fs, filepath.Join(game.LocalPath, filepath.FromSlash(rel)))
		if err != nil {
			return "", fmt.Errorf("failed to hash %s: %w", rel, err)
		}
		io.WriteString(total, sum)
	}
	return hex.EncodeToString(total.Sum(nil)), nil
}

func hashFile(fs afero.Fs, path string) (hash string, err error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
