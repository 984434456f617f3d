package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// ErrCorrupt is returned when a record exists but cannot be decoded.
var ErrCorrupt = errors.New("storage: record corrupt")

// CounterStore persists non-negative integer counters by key.
type CounterStore interface {
	// Read returns the stored count, ErrNotFound if absent or ErrCorrupt if
	// the record cannot be parsed.
	Read(ctx context.Context, key string) (int, error)
	// Write replaces the stored count.
	Write(ctx context.Context, key string, count int) error
	// Lock takes an exclusive cross-process lock on key. The returned
	// function releases it.
	Lock(ctx context.Context, key string) (func() error, error)
	// Location describes where key is stored, for display.
	Location(key string) string
}
