package pathcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAttributeCacheDirectory(t *testing.T) {
	a := NewAttributeCache(time.Hour)
	a.AddDirectory("/dir")

	attr, ok := a.Lookup("/dir")
	require.True(t, ok)
	require.Equal(t, DirectoryMode, attr.Mode)
	require.Equal(t, int64(0), attr.Size)
}

func TestAttributeCacheFile(t *testing.T) {
	mtime := time.Unix(1700000000, 0)
	a := NewAttributeCache(time.Hour)
	a.AddFile("/dir/a.txt", 10, mtime)

	attr, ok := a.Lookup("/dir/a.txt")
	require.True(t, ok)
	require.Equal(t, RegularFileMode, attr.Mode)
	require.Equal(t, int64(10), attr.Size)
	require.True(t, attr.LastModified.Equal(mtime))
}

func TestAttributeCacheExpiry(t *testing.T) {
	a := NewAttributeCache(10 * time.Millisecond)
	a.AddDirectory("/dir")
	time.Sleep(20 * time.Millisecond)

	require.False(t, a.Contains("/dir"))
}
