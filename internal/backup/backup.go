// Package backup copies a finance package aside before it is modified.
package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const stampLayout = "20060102_150405"

// Name is the backup name for src taken at t: <stem>_backup_<stamp><ext>.
func Name(src string, t time.Time) string {
	base := filepath.Base(filepath.Clean(src))
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s_backup_%s%s", stem, t.Format(stampLayout), ext)
}

// Create copies src (a package directory or a single file) into dir and
// returns the backup path. An existing backup of the same name is an error.
func Create(src, dir string, now time.Time) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("backup: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("backup: mkdir %s: %w", dir, err)
	}
	dst := filepath.Join(dir, Name(src, now))
	if _, err := os.Lstat(dst); err == nil {
		return "", fmt.Errorf("backup: %s already exists", dst)
	}

	if !info.IsDir() {
		if err := copyFile(src, dst, info.Mode().Perm()); err != nil {
			return "", err
		}
		return dst, nil
	}
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		fi, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, fi.Mode().Perm()|0o700)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			return copyFile(path, target, fi.Mode().Perm())
		}
		// sockets, pipes: nothing to preserve
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("backup: copy %s: %w", src, err)
	}
	return dst, nil
}

func copyFile(src, dst string, perm fs.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
