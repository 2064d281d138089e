package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LoadFile restores store from the backup at path. A missing file leaves the
// store empty.
func LoadFile(store Store, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("Failed to read cache %s: %w", path, err)
	}

	if err := store.Restore(data); err != nil {
		return fmt.Errorf("Failed to restore cache %s: %w", path, err)
	}

	return nil
}

// SaveFile writes a backup of store to path. The file is replaced atomically.
func SaveFile(store Store, path string) error {
	data, err := store.Backup()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("Failed to write cache %s: %w", path, err)
	}

	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("Failed to write cache %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("Failed to write cache %s: %w", path, err)
	}

	return os.Rename(tmp.Name(), path)
}
