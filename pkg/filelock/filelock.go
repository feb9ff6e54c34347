// Package filelock guards a file shared by several processes on one host
// with a sidecar "<path>.lock" file created with O_EXCL.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrLocked is returned when the lock is still held after the retry budget.
var ErrLocked = errors.New("filelock: lock is held by another process")

const (
	DefaultStaleAfter = 30 * time.Second
	DefaultMaxWait    = 10 * time.Second
)

// Lock is a process-wide and host-wide mutex for one path. The in-process
// mutex keeps goroutines of this process from contending on the lock file.
type Lock struct {
	path       string
	staleAfter time.Duration
	maxWait    time.Duration

	mu sync.Mutex
}

type Option func(*Lock)

// WithStaleAfter sets the age after which an abandoned lock file is removed.
func WithStaleAfter(d time.Duration) Option {
	return func(l *Lock) {
		if d > 0 {
			l.staleAfter = d
		}
	}
}

// WithMaxWait bounds how long Acquire retries before returning ErrLocked.
func WithMaxWait(d time.Duration) Option {
	return func(l *Lock) {
		if d > 0 {
			l.maxWait = d
		}
	}
}

// New returns a lock guarding target. The lock file is target + ".lock".
func New(target string, opts ...Option) *Lock {
	l := &Lock{
		path:       target + ".lock",
		staleAfter: DefaultStaleAfter,
		maxWait:    DefaultMaxWait,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path is the sidecar lock file path.
func (l *Lock) Path() string { return l.path }

// Acquire blocks until the lock is held, ctx is done, or the wait budget
// runs out. The returned release func must be called exactly once.
func (l *Lock) Acquire(ctx context.Context) (func() error, error) {
	l.mu.Lock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("acquire %s: %w", l.path, err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = l.maxWait

	op := func() error {
		err := l.tryCreate()
		if err == nil {
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return backoff.Permanent(err)
		}
		if l.breakStale() {
			return l.tryCreate()
		}
		return ErrLocked
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		l.mu.Unlock()
		if errors.Is(err, os.ErrExist) {
			err = ErrLocked
		}
		return nil, fmt.Errorf("acquire %s: %w", l.path, err)
	}

	var once sync.Once
	var releaseErr error
	release := func() error {
		once.Do(func() {
			if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				releaseErr = err
			}
			l.mu.Unlock()
		})
		return releaseErr
	}
	return release, nil
}

// WithLock runs fn while holding the lock.
func (l *Lock) WithLock(ctx context.Context, fn func() error) (err error) {
	release, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn()
}

func (l *Lock) tryCreate() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	cerr := f.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

// breakStale removes a lock file older than staleAfter and reports whether
// the path is free to retry. The stale file is first renamed aside so a
// fresh lock created by another process in the meantime is never removed.
func (l *Lock) breakStale() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		return errors.Is(err, os.ErrNotExist)
	}
	if time.Since(info.ModTime()) < l.staleAfter {
		return false
	}
	return l.removeIfSame(info)
}

// removeIfSame moves the lock file aside and deletes it only when it is
// still the stale file described by seen. Otherwise the moved file is a
// live lock and is linked back into place.
func (l *Lock) removeIfSame(seen os.FileInfo) bool {
	aside := l.path + ".stale." + strconv.Itoa(os.Getpid()) + "." + strconv.FormatInt(time.Now().UnixNano(), 36)
	if err := os.Rename(l.path, aside); err != nil {
		return errors.Is(err, os.ErrNotExist)
	}

	moved, err := os.Stat(aside)
	if err == nil && os.SameFile(seen, moved) && time.Since(moved.ModTime()) >= l.staleAfter {
		_ = os.Remove(aside)
		return true
	}

	// link fails if the path was taken again, in which case that holder wins
	// and the moved file is dropped
	_ = os.Link(aside, l.path)
	_ = os.Remove(aside)
	return false
}
