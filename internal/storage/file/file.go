// Package file stores counters as small text files in a shared directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/goodtune/proctorgate/internal/storage"
)

const (
	filePrefix = "proctorgate-"
	fileSuffix = ".attempts"
	lockSuffix = ".lock"

	lockRetryDelay = 50 * time.Millisecond
)

// Store implements storage.CounterStore on the local filesystem. Each key
// maps to one file whose entire contents are the decimal count.
type Store struct {
	dir string
}

// Open creates a file-backed store rooted at dir, creating it if needed.
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := storage.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to prepare counter directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory holding counter files
func (s *Store) Dir() string {
	return s.dir
}

// Location returns the counter file path for key
func (s *Store) Location(key string) string {
	return filepath.Join(s.dir, filePrefix+key+fileSuffix)
}

// Read returns the stored count for key
func (s *Store) Read(ctx context.Context, key string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	data, err := os.ReadFile(s.Location(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}

	count, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || count < 0 {
		return 0, fmt.Errorf("%w: %q", storage.ErrCorrupt, strings.TrimSpace(string(data)))
	}

	return count, nil
}

// Write replaces the stored count for key
func (s *Store) Write(ctx context.Context, key string, count int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if count < 0 {
		return fmt.Errorf("refusing to store negative count %d", count)
	}

	if err := os.WriteFile(s.Location(key), []byte(strconv.Itoa(count)), 0644); err != nil {
		return fmt.Errorf("failed to write counter: %w", err)
	}
	return nil
}

// Lock takes an exclusive advisory lock beside the counter file, waiting
// until ctx is done.
func (s *Store) Lock(ctx context.Context, key string) (func() error, error) {
	fl := flock.New(s.Location(key) + lockSuffix)

	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock counter: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock counter: %s is held", fl.Path())
	}

	return fl.Unlock, nil
}
