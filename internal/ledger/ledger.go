// Package ledger counts test attempts against a quota, persisting one
// counter per test so separate invocations share state.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/goodtune/proctorgate/internal/metrics"
	"github.com/goodtune/proctorgate/internal/storage"
	"github.com/rs/zerolog"
)

// keyLength is the number of hex characters kept from the URL digest.
const keyLength = 16

// ErrQuotaExceeded is returned when every permitted attempt has been used.
var ErrQuotaExceeded = errors.New("ledger: attempt quota exceeded")

// Result describes a quota check
type Result struct {
	Key      string // Storage key derived from the test identifier
	Location string // Where the counter lives, for display
	Prior    int    // Count read before the decision
	Max      int
	Allowed  bool
	Attempt  int   // 1-based attempt number when allowed
	Final    bool  // Attempt == Max
	ReadErr  error // Recovered read failure; Prior treated as 0
	WriteErr error // Recovered write failure; the counter under-counts
}

// Remaining returns the attempts left after this one.
func (r Result) Remaining() int {
	used := r.Prior
	if r.Allowed {
		used = r.Attempt
	}
	if used >= r.Max {
		return 0
	}
	return r.Max - used
}

// Options configures a Ledger
type Options struct {
	// Lock serializes read-modify-write across processes. Without it two
	// simultaneous launches can both read the same count.
	Lock bool
}

// Ledger checks and consumes attempts
type Ledger struct {
	store  storage.CounterStore
	opts   Options
	logger zerolog.Logger
}

// New creates a ledger backed by store
func New(store storage.CounterStore, opts Options, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// Key derives the storage key for a test identifier (normally its URL).
func Key(testID string) string {
	sum := sha256.Sum256([]byte(testID))
	return hex.EncodeToString(sum[:])[:keyLength]
}

// Location returns where the counter for testID is stored.
func (l *Ledger) Location(testID string) string {
	return l.store.Location(Key(testID))
}

// Peek returns the current count for testID without consuming an attempt.
// Unreadable state reads as zero.
func (l *Ledger) Peek(ctx context.Context, testID string) (int, error) {
	count, err := l.read(ctx, Key(testID))
	if errors.Is(err, context.Canceled) {
		return 0, err
	}
	return count, nil
}

// CheckAndConsume denies with ErrQuotaExceeded once maxAttempts have been
// used, otherwise records one more attempt. Storage failures never deny:
// a failed read counts as zero and a failed write still allows the attempt.
func (l *Ledger) CheckAndConsume(ctx context.Context, testID string, maxAttempts int) (Result, error) {
	key := Key(testID)
	res := Result{
		Key:      key,
		Location: l.store.Location(key),
		Max:      maxAttempts,
	}

	if l.opts.Lock {
		unlock, err := l.store.Lock(ctx, key)
		if err != nil {
			metrics.LedgerErrorsTotal.WithLabelValues("lock").Inc()
			l.logger.Warn().Err(err).Str("key", key).Msg("Failed to lock attempt counter, continuing unlocked")
		} else {
			defer func() {
				if err := unlock(); err != nil {
					l.logger.Warn().Err(err).Str("key", key).Msg("Failed to release attempt counter lock")
				}
			}()
		}
	}

	prior, readErr := l.read(ctx, key)
	res.Prior = prior
	res.ReadErr = readErr

	if prior >= maxAttempts {
		metrics.AttemptsTotal.WithLabelValues("denied").Inc()
		l.logger.Info().
			Str("key", key).
			Int("count", prior).
			Int("max_attempts", maxAttempts).
			Msg("Attempt quota exhausted")
		return res, ErrQuotaExceeded
	}

	res.Allowed = true
	res.Attempt = prior + 1
	res.Final = res.Attempt == maxAttempts

	if err := l.store.Write(ctx, key, res.Attempt); err != nil {
		metrics.LedgerErrorsTotal.WithLabelValues("write").Inc()
		res.WriteErr = err
		l.logger.Warn().
			Err(err).
			Str("key", key).
			Int("attempt", res.Attempt).
			Msg("Failed to persist attempt counter, allowing attempt anyway")
	}

	metrics.AttemptsTotal.WithLabelValues("allowed").Inc()
	l.logger.Info().
		Str("key", key).
		Int("attempt", res.Attempt).
		Int("max_attempts", maxAttempts).
		Bool("final", res.Final).
		Msg("Attempt recorded")

	return res, nil
}

// read returns the stored count, degrading any failure to zero. The error is
// returned for reporting only.
func (l *Ledger) read(ctx context.Context, key string) (int, error) {
	count, err := l.store.Read(ctx, key)
	if err == nil {
		return count, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}

	metrics.LedgerErrorsTotal.WithLabelValues("read").Inc()
	l.logger.Warn().Err(err).Str("key", key).Msg("Failed to read attempt counter, assuming no prior attempts")
	return 0, fmt.Errorf("read attempt counter: %w", err)
}
