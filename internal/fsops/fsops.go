// Package fsops implements the three filesystem-request handlers
// (getattr, readdir, read) atop the three caches and the Fetcher, and
// adapts them to the bazil.org/fuse kernel binding.
//
// getattr needs to invoke the same population logic as readdir to fill
// in its parent directory without deadlocking against its own lock.
// Go's sync.Mutex is intentionally not reentrant, and a
// goroutine-identity-tracking recursive mutex is an anti-pattern in this
// language; the same external serialization is achieved here by giving
// every handler a single lock-acquiring public entry point that calls
// into an unlocked, shared core directly, rather than one public handler
// recursively calling another.
package fsops

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bremac/s3viewport/internal/fetch"
	"github.com/bremac/s3viewport/internal/pathcache"
	"github.com/bremac/s3viewport/internal/pathutil"
)

// Mount holds the state shared by every filesystem request for one
// mounted bucket: the three caches, the Fetcher, and the identity
// recorded at mount time for every served entry's owner/group.
type Mount struct {
	mu sync.Mutex

	attrs *pathcache.AttributeCache
	dirs  *pathcache.DirectoryCache
	files *pathcache.FileCache

	fetcher *fetch.Fetcher

	uid uint32
	gid uint32

	log *logrus.Entry
}

// New builds a Mount over the given caches and Fetcher, recording the
// invoking process's effective uid/gid for every served attribute.
func New(fetcher *fetch.Fetcher, attrs *pathcache.AttributeCache, dirs *pathcache.DirectoryCache, files *pathcache.FileCache) *Mount {
	return &Mount{
		attrs:   attrs,
		dirs:    dirs,
		files:   files,
		fetcher: fetcher,
		uid:     uint32(os.Getuid()),
		gid:     uint32(os.Getgid()),
		log:     logrus.WithField("component", "fsops"),
	}
}

// Attributes is the full, owner-stamped view of a single path returned by
// Getattr.
type Attributes struct {
	pathcache.Attribute
	UID uint32
	GID uint32
}

// Getattr serves a single path's metadata. The root is a fast path that
// never touches the caches; any other path populates its parent directory
// on a miss before failing.
func (m *Mount) Getattr(ctx context.Context, path string) (Attributes, error) {
	path = pathutil.Normalize(path)
	if path == "/" {
		return Attributes{
			Attribute: pathcache.Attribute{Mode: pathcache.DirectoryMode},
			UID:       m.uid,
			GID:       m.gid,
		}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	attr, err := m.getattrLocked(ctx, path)
	if err != nil {
		return Attributes{}, err
	}
	return Attributes{Attribute: attr, UID: m.uid, GID: m.gid}, nil
}

func (m *Mount) getattrLocked(ctx context.Context, path string) (pathcache.Attribute, error) {
	m.attrs.Expire()
	if !m.attrs.Contains(path) {
		if _, err := m.fetcher.FetchDirectory(ctx, pathutil.Dirname(path)); err != nil {
			return pathcache.Attribute{}, err
		}
	}
	attr, ok := m.attrs.Lookup(path)
	if !ok {
		return pathcache.Attribute{}, fetch.ErrNotExist
	}
	return attr, nil
}

// Readdir returns the raw child list, prefixed with "." and "..".
func (m *Mount) Readdir(ctx context.Context, path string) ([]string, error) {
	path = pathutil.Normalize(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	children, err := m.fetcher.FetchDirectory(ctx, path)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(children)+2)
	out = append(out, ".", "..")
	out = append(out, children...)
	return out, nil
}

// Read fetches the whole object to a scratch file under the lock, then
// serves the requested range from the (immutable, once written) scratch
// file outside the lock.
func (m *Mount) Read(ctx context.Context, path string, size int, offset int64) ([]byte, error) {
	path = pathutil.Normalize(path)

	m.mu.Lock()
	scratchPath, err := m.fetcher.FetchFile(ctx, path)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(scratchPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, size)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// Destroy purges all three caches, unlinking every scratch file, as the
// kernel adapter's unmount path requires.
func (m *Mount) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attrs.Purge()
	m.dirs.Purge()
	m.files.Purge()
}
