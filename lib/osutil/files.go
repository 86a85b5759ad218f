package osutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyToTemp copies path into a fresh temporary directory and returns the copy's path
// and a cleanup func that removes it. Used for files another process keeps locked.
func CopyToTemp(path string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "runharvest-*")
	if err != nil {
		return "", func() {}, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	src, err := os.Open(path)
	if err != nil {
		cleanup()
		return "", func() {}, err
	}
	defer src.Close()

	target := filepath.Join(dir, filepath.Base(path))
	dst, err := os.Create(target)
	if err != nil {
		cleanup()
		return "", func() {}, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("copy %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return target, cleanup, nil
}

// WriteFileAtomic writes data to a temp file next to path, fsyncs it and renames it over
// path, so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
