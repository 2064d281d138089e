package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var ErrInvalidDocument = errors.New("Backup is not a JSON object")

var ErrClosed = errors.New("Store is closed")

type InmemoryStore struct {
	mu     sync.RWMutex
	values []byte

	// stop will be closed when Close() is called
	stop chan struct{}
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{
		values: []byte("{}"),
		stop:   make(chan struct{}),
	}
}

func (i *InmemoryStore) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.isRunning() {
		close(i.stop)
	}

	return nil
}

func (i *InmemoryStore) Set(ctx context.Context, key string, value interface{}) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return ErrClosed
	}

	values, err := sjson.SetBytes(i.values, key, value)
	if err != nil {
		return fmt.Errorf("Failed to set %s: %w", key, err)
	}

	i.values = values
	return nil
}

// Get returns the raw JSON stored under key.
func (i *InmemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	result := gjson.GetBytes(i.values, key)
	if !result.Exists() {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	if result.Index == 0 {
		return []byte(result.Raw), nil
	}

	value := make([]byte, len(result.Raw))
	copy(value, i.values[result.Index:result.Index+len(result.Raw)])
	return value, nil
}

func (i *InmemoryStore) Delete(ctx context.Context, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return ErrClosed
	}

	values, err := sjson.DeleteBytes(i.values, key)
	if err != nil {
		return fmt.Errorf("Failed to delete %s: %w", key, err)
	}

	i.values = values
	return nil
}

// Restore replaces the whole document. An empty backup restores an empty
// store.
func (i *InmemoryStore) Restore(values []byte) error {
	if len(values) == 0 {
		values = []byte("{}")
	}

	if !gjson.ValidBytes(values) || !gjson.ParseBytes(values).IsObject() {
		return ErrInvalidDocument
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.values = append([]byte(nil), values...)
	return nil
}

func (i *InmemoryStore) Backup() ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return append([]byte(nil), i.values...), nil
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

var _ Store = (*InmemoryStore)(nil)
