package pathcache

import (
	"container/list"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// FileEntry is the cached view of a whole downloaded object body.
type FileEntry struct {
	Path        string
	ScratchPath string
	Size        int64
	timestamp   time.Time
}

// FileCache maps mount paths to local scratch files holding the whole
// object body, evicted by insertion-order LRU under both a count and a
// byte budget, and by time the way the other two caches are.
//
// FileCache.Add only increments the running size total; it never checks
// it against maxBytes. compact() is what enforces the budget, on its own
// schedule, not add().
type FileCache struct {
	mu        sync.Mutex
	lifetime  time.Duration
	maxBytes  int64
	maxFiles  int
	entries   map[string]*list.Element // path -> node in lru
	lru       *list.List               // list of *FileEntry, oldest at Front
	sizeBytes int64
	log       *logrus.Entry
}

// NewFileCache builds a FileCache with the given entry lifetime and
// admission budgets.
func NewFileCache(lifetime time.Duration, maxBytes int64, maxFiles int) *FileCache {
	return &FileCache{
		lifetime: lifetime,
		maxBytes: maxBytes,
		maxFiles: maxFiles,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
		log:      logrus.WithField("cache", "file"),
	}
}

// Add replaces any existing entry at path (unlinking its scratch file
// first) and appends the new entry to the tail of the LRU.
func (f *FileCache) Add(path, scratchPath string, size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if el, ok := f.entries[path]; ok {
		f.dropLocked(el)
	}
	fe := &FileEntry{Path: path, ScratchPath: scratchPath, Size: size, timestamp: time.Now()}
	el := f.lru.PushBack(fe)
	f.entries[path] = el
	f.sizeBytes += size
}

// Expire drops entries from the head of the LRU while they have aged past
// lifetime. Because eviction is FIFO-by-insertion, the head is always the
// oldest surviving entry, so a single pass from the front suffices.
func (f *FileCache) Expire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for {
		front := f.lru.Front()
		if front == nil {
			return
		}
		fe := front.Value.(*FileEntry)
		if now.Sub(fe.timestamp) < f.lifetime {
			return
		}
		f.dropLocked(front)
	}
}

// Compact drops entries from the head of the LRU until both the count and
// byte budgets are satisfied.
func (f *FileCache) Compact() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.lru.Len() > f.maxFiles || f.sizeBytes > f.maxBytes {
		front := f.lru.Front()
		if front == nil {
			return
		}
		f.dropLocked(front)
	}
}

// Contains reports whether path has an entry (freshness is enforced by
// the caller invoking Expire first).
func (f *FileCache) Contains(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[path]
	return ok
}

// ScratchPath returns the local scratch file for path, if present.
func (f *FileCache) ScratchPath(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	el, ok := f.entries[path]
	if !ok {
		return "", false
	}
	return el.Value.(*FileEntry).ScratchPath, true
}

// SizeBytes returns the current total cached size, for tests and
// diagnostics.
func (f *FileCache) SizeBytes() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sizeBytes
}

// Len returns the current entry count, for tests and diagnostics.
func (f *FileCache) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lru.Len()
}

// Purge drops every entry, unlinking every scratch file.
func (f *FileCache) Purge() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		front := f.lru.Front()
		if front == nil {
			return
		}
		f.dropLocked(front)
	}
}

// dropLocked removes el from the lru, the entry table, the size counter,
// and unlinks its scratch file. Callers hold f.mu.
func (f *FileCache) dropLocked(el *list.Element) {
	fe := el.Value.(*FileEntry)
	f.lru.Remove(el)
	delete(f.entries, fe.Path)
	f.sizeBytes -= fe.Size
	if err := os.Remove(fe.ScratchPath); err != nil && !os.IsNotExist(err) {
		f.log.WithError(err).WithField("path", fe.Path).Warn("failed to unlink scratch file")
	}
}
