package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"runharvest/lib/osutil"
)

// FileStore keeps the dataset as a JSON file on disk. Saves are atomic.
type FileStore struct {
	Path string
}

func NewFileStore(path string) FileStore {
	return FileStore{Path: path}
}

func (s FileStore) Load(ctx context.Context) (Dataset, error) {
	buf, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Dataset{}, ErrNotFound
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return Decode(buf)
}

func (s FileStore) Save(ctx context.Context, d Dataset) error {
	buf, err := Encode(d)
	if err != nil {
		return err
	}
	if err := osutil.WriteFileAtomic(s.Path, buf, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.Path, err)
	}
	return nil
}
