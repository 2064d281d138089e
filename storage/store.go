package storage

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

var ErrNotFound = errors.New("Key not found")

// Store is a JSON document addressed by gjson paths.
type Store interface {
	Set(ctx context.Context, key string, value interface{}) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error

	Restore(values []byte) error
	Backup() ([]byte, error)

	Close() error
}

// FileKey is the path under which a file identified by size and ed2k hash is
// cached.
func FileKey(size int64, ed2k string) string {
	return "files." + strings.ToLower(ed2k) + "_" + strconv.FormatInt(size, 10)
}
