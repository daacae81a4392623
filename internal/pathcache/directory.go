package pathcache

import "time"

// DirectoryCache holds the per-prefix ordered list of child basenames
// populated by a remote listing.
type DirectoryCache struct {
	cache *Cache[[]string]
}

// NewDirectoryCache builds a DirectoryCache with the given entry lifetime.
func NewDirectoryCache(lifetime time.Duration) *DirectoryCache {
	return &DirectoryCache{cache: New[[]string](lifetime)}
}

// Add stores children, in the order given, as the listing for path.
func (d *DirectoryCache) Add(path string, children []string) {
	d.cache.Add(path, children)
}

// Expire sweeps entries whose lifetime has elapsed.
func (d *DirectoryCache) Expire() {
	d.cache.Expire()
}

// Contains reports whether path has a fresh listing.
func (d *DirectoryCache) Contains(path string) bool {
	return d.cache.Contains(path)
}

// Children returns the cached child-name list for path, if fresh and
// present.
func (d *DirectoryCache) Children(path string) ([]string, bool) {
	return d.cache.Lookup(path)
}

// Purge drops every entry.
func (d *DirectoryCache) Purge() {
	d.cache.Purge()
}

// Len reports the number of entries currently held, expired or not.
func (d *DirectoryCache) Len() int {
	return d.cache.Len()
}
