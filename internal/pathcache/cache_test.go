package pathcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheAddAndLookup(t *testing.T) {
	c := New[int](time.Hour)
	c.Add("/a", 1)

	v, ok := c.Lookup("/a")
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestCacheExpiry(t *testing.T) {
	c := New[int](10 * time.Millisecond)
	c.Add("/a", 1)

	time.Sleep(20 * time.Millisecond)
	c.Expire()

	require.False(t, c.Contains("/a"))
	require.Equal(t, 0, c.Len())
}

func TestCacheContainsSweepsBeforeAnswering(t *testing.T) {
	c := New[int](10 * time.Millisecond)
	c.Add("/a", 1)
	time.Sleep(20 * time.Millisecond)

	require.False(t, c.Contains("/a"))
}

func TestCacheAddReplacesAndRestampsEntry(t *testing.T) {
	c := New[int](time.Hour)
	c.Add("/a", 1)
	c.Add("/a", 2)

	v, ok := c.Lookup("/a")
	require.True(t, ok)
	require.Equal(t, 2, v)
	require.Equal(t, 1, c.Len())
}

func TestCachePurge(t *testing.T) {
	c := New[int](time.Hour)
	c.Add("/a", 1)
	c.Add("/b", 2)
	c.Purge()

	require.Equal(t, 0, c.Len())
}
