package pathcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeScratchFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o600))
	return path
}

func TestFileCacheInvariants(t *testing.T) {
	dir := t.TempDir()
	f := NewFileCache(time.Hour, 1_000_000, 10)

	a := writeScratchFile(t, dir, "a", 10)
	f.Add("/a", a, 10)

	require.Equal(t, int64(10), f.SizeBytes())
	require.Equal(t, 1, f.Len())

	sp, ok := f.ScratchPath("/a")
	require.True(t, ok)
	require.Equal(t, a, sp)
}

// three 40-byte files under a 100-byte budget evict the oldest on compact().
func TestFileCacheLRUByteEviction(t *testing.T) {
	dir := t.TempDir()
	f := NewFileCache(time.Hour, 100, 10)

	a := writeScratchFile(t, dir, "a", 40)
	b := writeScratchFile(t, dir, "b", 40)
	c := writeScratchFile(t, dir, "c", 40)

	f.Add("/a", a, 40)
	f.Add("/b", b, 40)
	f.Add("/c", c, 40)
	f.Compact()

	require.Equal(t, int64(80), f.SizeBytes())
	require.False(t, f.Contains("/a"))
	require.True(t, f.Contains("/b"))
	require.True(t, f.Contains("/c"))
	_, err := os.Stat(a)
	require.True(t, os.IsNotExist(err))
}

// a two-file budget evicts the oldest once a third file is added.
func TestFileCacheLRUCountEviction(t *testing.T) {
	dir := t.TempDir()
	f := NewFileCache(time.Hour, 1_000_000_000, 2)

	a := writeScratchFile(t, dir, "a", 1)
	b := writeScratchFile(t, dir, "b", 1)
	c := writeScratchFile(t, dir, "c", 1)

	f.Add("/a", a, 1)
	f.Add("/b", b, 1)
	f.Add("/c", c, 1)
	f.Compact()

	require.False(t, f.Contains("/a"))
	require.True(t, f.Contains("/b"))
	require.True(t, f.Contains("/c"))
	require.Equal(t, 2, f.Len())
}

// an object exactly at max_bytes is kept; one byte larger is admitted on
// add() but evicted on the next compact().
func TestFileCacheOversizedObjectAdmittedThenEvicted(t *testing.T) {
	dir := t.TempDir()
	f := NewFileCache(time.Hour, 100, 10)

	exact := writeScratchFile(t, dir, "exact", 100)
	f.Add("/exact", exact, 100)
	f.Compact()
	require.True(t, f.Contains("/exact"))

	tooBig := writeScratchFile(t, dir, "toobig", 101)
	f.Add("/toobig", tooBig, 101)
	require.True(t, f.Contains("/toobig"), "oversized object is still admitted before compact")

	f.Compact()
	require.False(t, f.Contains("/toobig"), "compact evicts the oversized object")
}

func TestFileCacheExpire(t *testing.T) {
	dir := t.TempDir()
	f := NewFileCache(10*time.Millisecond, 1_000_000, 10)

	a := writeScratchFile(t, dir, "a", 1)
	f.Add("/a", a, 1)
	time.Sleep(20 * time.Millisecond)
	f.Expire()

	require.False(t, f.Contains("/a"))
	require.Equal(t, int64(0), f.SizeBytes())
}

func TestFileCacheReAddReplacesAndUnlinksPrevious(t *testing.T) {
	dir := t.TempDir()
	f := NewFileCache(time.Hour, 1_000_000, 10)

	first := writeScratchFile(t, dir, "first", 5)
	f.Add("/a", first, 5)

	second := writeScratchFile(t, dir, "second", 7)
	f.Add("/a", second, 7)

	require.Equal(t, int64(7), f.SizeBytes())
	require.Equal(t, 1, f.Len())
	_, err := os.Stat(first)
	require.True(t, os.IsNotExist(err))
}

func TestFileCachePurgeUnlinksAll(t *testing.T) {
	dir := t.TempDir()
	f := NewFileCache(time.Hour, 1_000_000, 10)

	a := writeScratchFile(t, dir, "a", 1)
	b := writeScratchFile(t, dir, "b", 1)
	f.Add("/a", a, 1)
	f.Add("/b", b, 1)

	f.Purge()

	require.Equal(t, 0, f.Len())
	require.Equal(t, int64(0), f.SizeBytes())
	_, errA := os.Stat(a)
	_, errB := os.Stat(b)
	require.True(t, os.IsNotExist(errA))
	require.True(t, os.IsNotExist(errB))
}
