package transfer

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// copyDir copies every regular file under src into dst, creating directories as needed
func copyDir(fs afero.Fs, src, dst string) error {
	return afero.Walk(fs, src, func(current string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, current)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return fs.MkdirAll(target, 0755)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(fs, current, target)
	})
}

func copyFile(fs afero.Fs, src, dst string) (err error) {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}

// zipDir writes the files under root to w using slash-separated relative names
func zipDir(fs afero.Fs, root string, w io.Writer) error {
	zw := zip.NewWriter(w)

	err := afero.Walk(fs, root, func(current string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, current)
		if err != nil {
			return err
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		entry, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		f, err := fs.Open(current)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(entry, f)
		return err
	})
	if err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// unzip extracts archivePath over dest. Existing files are overwritten and
// files missing from the archive are left alone.
func unzip(fs afero.Fs, archivePath, dest string) error {
	f, err := fs.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return fmt.Errorf("invalid archive: %w", err)
	}

	root := filepath.Clean(dest)
	for _, entry := range zr.File {
		target := filepath.Join(root, filepath.FromSlash(entry.Name))
		if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
			return fmt.Errorf("archive entry %q escapes save directory", entry.Name)
		}

		if entry.FileInfo().IsDir() {
			if err := fs.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := extractEntry(fs, entry, target); err != nil {
			return fmt.Errorf("failed to extract %s: %w", entry.Name, err)
		}
	}
	return nil
}

func extractEntry(fs afero.Fs, entry *zip.File, target string) (err error) {
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	out, err := fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	_, err = io.Copy(out, rc)
	return err
}
