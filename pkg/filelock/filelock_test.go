package filelock

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	target := filepath.Join(t.TempDir(), "invoice_log.csv")
	l := New(target)

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	_, err = os.Stat(l.Path())
	require.NoError(t, err)

	require.NoError(t, release())
	require.NoError(t, release())
	_, err = os.Stat(l.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestAcquire_HeldByOtherProcess(t *testing.T) {
	target := filepath.Join(t.TempDir(), "invoice_log.csv")
	require.NoError(t, os.WriteFile(target+".lock", []byte("999\n"), 0o644))

	l := New(target, WithMaxWait(50*time.Millisecond), WithStaleAfter(time.Hour))
	_, err := l.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestAcquire_BreaksStaleLock(t *testing.T) {
	target := filepath.Join(t.TempDir(), "invoice_log.csv")
	lockPath := target + ".lock"
	require.NoError(t, os.WriteFile(lockPath, []byte("999\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	l := New(target, WithStaleAfter(time.Minute))
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, release())
}

func TestWithLock_Serializes(t *testing.T) {
	target := filepath.Join(t.TempDir(), "invoices.csv")
	l := New(target)

	var inside, maxInside int32
	var wg conc.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Go(func() {
			err := l.WithLock(context.Background(), func() error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		})
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestAcquire_CreatesMissingDirectory(t *testing.T) {
	target := filepath.Join(t.TempDir(), "data", "nested", "invoice_log.csv")
	l := New(target)

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, release())

	info, err := os.Stat(filepath.Dir(target))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRemoveIfSame_KeepsLockReplacedAfterStat(t *testing.T) {
	target := filepath.Join(t.TempDir(), "invoice_log.csv")
	lockPath := target + ".lock"
	require.NoError(t, os.WriteFile(lockPath, []byte("999\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	l := New(target, WithStaleAfter(time.Minute))
	seen, err := os.Stat(lockPath)
	require.NoError(t, err)

	// another process broke the stale lock and took it between our stat and remove
	fresh := lockPath + ".new"
	require.NoError(t, os.WriteFile(fresh, []byte("1000\n"), 0o644))
	require.NoError(t, os.Rename(fresh, lockPath))

	assert.False(t, l.removeIfSame(seen))

	data, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	assert.Equal(t, "1000\n", string(data))

	leftovers, err := filepath.Glob(lockPath + ".stale.*")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRemoveIfSame_RemovesStaleLock(t *testing.T) {
	target := filepath.Join(t.TempDir(), "invoice_log.csv")
	lockPath := target + ".lock"
	require.NoError(t, os.WriteFile(lockPath, []byte("999\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	l := New(target, WithStaleAfter(time.Minute))
	seen, err := os.Stat(lockPath)
	require.NoError(t, err)

	assert.True(t, l.removeIfSame(seen))
	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))
}
