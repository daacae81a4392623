package pathcache

import (
	"os"
	"time"
)

// Fixed mode bits: POSIX permissions are not modelled beyond a single
// owner/group and mode per entry kind.
const (
	RegularFileMode = os.FileMode(0o100600)
	DirectoryMode   = os.FileMode(0o040700)
)

// Attribute is the cached view of a single path's metadata.
type Attribute struct {
	Mode         os.FileMode
	Size         int64
	LastModified time.Time
}

// AttributeCache holds the per-path mode/size/mtime view populated by
// directory listings and served by getattr.
type AttributeCache struct {
	cache *Cache[Attribute]
}

// NewAttributeCache builds an AttributeCache with the given entry lifetime.
func NewAttributeCache(lifetime time.Duration) *AttributeCache {
	return &AttributeCache{cache: New[Attribute](lifetime)}
}

// AddDirectory records path as a directory: size 0, last-modified now.
func (a *AttributeCache) AddDirectory(path string) {
	a.cache.Add(path, Attribute{
		Mode:         DirectoryMode,
		Size:         0,
		LastModified: time.Now(),
	})
}

// AddFile records path as a regular file with the size and modification
// time taken from the remote object.
func (a *AttributeCache) AddFile(path string, size int64, lastModified time.Time) {
	a.cache.Add(path, Attribute{
		Mode:         RegularFileMode,
		Size:         size,
		LastModified: lastModified,
	})
}

// Expire sweeps entries whose lifetime has elapsed.
func (a *AttributeCache) Expire() {
	a.cache.Expire()
}

// Contains reports whether path has a fresh entry.
func (a *AttributeCache) Contains(path string) bool {
	return a.cache.Contains(path)
}

// Lookup returns the attribute entry for path, if fresh and present.
func (a *AttributeCache) Lookup(path string) (Attribute, bool) {
	return a.cache.Lookup(path)
}

// Purge drops every entry.
func (a *AttributeCache) Purge() {
	a.cache.Purge()
}

// Len reports the number of entries currently held, expired or not.
func (a *AttributeCache) Len() int {
	return a.cache.Len()
}
