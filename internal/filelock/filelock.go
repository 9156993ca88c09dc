// Package filelock implements the mutual-exclusion primitive described
// in spec §4.1: a sidecar marker file guards access to one queue file,
// with a timeout on acquisition and stale-marker recovery.
//
// The timeout/poll loop is grounded on internal/task/store.go's
// acquireLock (5s default timeout, fixed poll interval). The marker
// itself is a new design for this package: the teacher locks via
// syscall.Flock on the data file's own descriptor, which does not give
// us a place to detect staleness from a holder's liveness. A sidecar
// JSON marker recording the holder's pid/host/uuid lets a second
// process decide, on contention, whether the holder is actually gone.
package filelock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	flowerrors "github.com/flowlock/flowlock/internal/errors"
)

// DefaultTimeout is how long Acquire polls for the marker to clear
// before surfacing ErrLockTimeout, per spec §4.1.
const DefaultTimeout = 5 * time.Second

// StaleAfter is the marker age beyond which it is presumed abandoned
// and force-removed even if the holder process is still alive (e.g. a
// hung process that never released), per spec §4.1.
const StaleAfter = 30 * time.Second

// pollInterval is how often Acquire retries while waiting for a
// contended marker to clear.
const pollInterval = 50 * time.Millisecond

// marker is the JSON content written into the sidecar lock file.
type marker struct {
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// Lock guards one path (typically tasks.json) via a sidecar file at
// path+".lock". A Lock value is not safe for concurrent reuse across
// goroutines attempting independent acquisitions; callers should treat
// Acquire/Release as paired within one logical operation.
type Lock struct {
	path       string
	lockPath   string
	holder     string
	timeout    time.Duration
	staleAfter time.Duration
	held       bool
}

// New returns a Lock guarding path with the default timeout and stale
// threshold.
func New(path string) *Lock {
	return &Lock{
		path:       path,
		lockPath:   path + ".lock",
		holder:     uuid.NewString(),
		timeout:    DefaultTimeout,
		staleAfter: StaleAfter,
	}
}

// WithTimeout overrides the default acquisition timeout.
func (l *Lock) WithTimeout(d time.Duration) *Lock {
	l.timeout = d
	return l
}

// Acquire creates the sidecar marker file, polling on contention up to
// l.timeout. A marker older than l.staleAfter, or whose recorded holder
// process is no longer alive, is force-removed and acquisition retried.
// Re-entrant acquisition by the same Lock value fails with
// ErrReentrantLock — callers must not nest.
func (l *Lock) Acquire(ctx context.Context) error {
	if l.held {
		return flowerrors.ErrReentrantLock
	}

	deadline := time.Now().Add(l.timeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		acquired, err := l.tryCreate()
		if err != nil {
			return err
		}
		if acquired {
			l.held = true
			return nil
		}

		l.recoverIfStale()

		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %v", flowerrors.ErrLockTimeout, l.timeout)
		}

		timer := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryCreate attempts an exclusive create of the marker file. Returns
// (true, nil) on success, (false, nil) if the marker already exists,
// or (false, err) for any other error.
func (l *Lock) tryCreate() (bool, error) {
	f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer func() { _ = f.Close() }()

	hostname, _ := os.Hostname()
	m := marker{
		PID:        os.Getpid(),
		Host:       hostname,
		Holder:     l.holder,
		AcquiredAt: time.Now().UTC(),
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(m); err != nil {
		return false, err
	}
	return true, nil
}

// recoverIfStale removes the marker file if it is older than
// l.staleAfter or its recorded holder process is no longer alive.
// Recovery is silent per spec §4.1.
func (l *Lock) recoverIfStale() {
	data, err := os.ReadFile(l.lockPath) //nolint:gosec // path is derived from a caller-supplied queue file path, not user input at the HTTP boundary
	if err != nil {
		return
	}

	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		// Unparseable marker: treat age as the only signal available.
		if info, statErr := os.Stat(l.lockPath); statErr == nil && time.Since(info.ModTime()) > l.staleAfter {
			_ = os.Remove(l.lockPath)
		}
		return
	}

	if time.Since(m.AcquiredAt) > l.staleAfter {
		_ = os.Remove(l.lockPath)
		return
	}

	if !processAlive(m.PID) {
		_ = os.Remove(l.lockPath)
	}
}

// Release removes the marker file. Safe to call even if Acquire never
// succeeded for this Lock value, in which case it is a no-op.
func (l *Lock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WithLock acquires the lock, runs fn, and releases the lock
// unconditionally afterward — even if fn panics or returns an error —
// per spec §4.1's withLock guarantee.
func WithLock(ctx context.Context, path string, fn func() error) error {
	l := New(path)
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer func() { _ = l.Release() }()
	return fn()
}
