// Package fetch implements the Fetcher: the stateless facade that
// populates the attribute, directory and file caches from the object
// store, following an expire-then-check-then-populate control flow and
// always fetching a whole object body rather than a byte range.
package fetch

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bremac/s3viewport/internal/pathcache"
	"github.com/bremac/s3viewport/internal/pathutil"
	"github.com/bremac/s3viewport/internal/vstore"
)

// ErrNotExist is returned when the remote object or prefix does not
// exist; FS Operations translates this to the filesystem's "no such
// entry" errno.
var ErrNotExist = errors.New("no such entry")

// ObjectStore is the subset of vstore.Client the Fetcher needs, factored
// out so tests can substitute a mock remote (see fetcher_test.go's
// counting fake).
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]vstore.Key, error)
	Get(ctx context.Context, key string, w io.Writer) (size int64, lastModified time.Time, err error)
}

// Fetcher mediates between cache paths and the remote bucket. It holds no
// state of its own beyond references to the three caches, the object
// store client and the scratch directory; all mutable state lives in the
// caches.
type Fetcher struct {
	Attributes *pathcache.AttributeCache
	Directorys *pathcache.DirectoryCache
	Files      *pathcache.FileCache

	Client     ObjectStore
	ScratchDir string

	log *logrus.Entry
}

// New builds a Fetcher over the given caches and object-store client.
func New(attrs *pathcache.AttributeCache, dirs *pathcache.DirectoryCache, files *pathcache.FileCache, client ObjectStore, scratchDir string) *Fetcher {
	return &Fetcher{
		Attributes: attrs,
		Directorys: dirs,
		Files:      files,
		Client:     client,
		ScratchDir: scratchDir,
		log:        logrus.WithField("component", "fetcher"),
	}
}

// FetchFile returns the local scratch path holding the whole body of
// path, downloading it on a cache miss.
func (f *Fetcher) FetchFile(ctx context.Context, path string) (string, error) {
	f.Files.Expire()
	if sp, ok := f.Files.ScratchPath(path); ok {
		return sp, nil
	}
	f.Files.Compact()

	key := pathutil.Key(path)

	scratch, err := os.CreateTemp(f.ScratchDir, "obj-*.tmp")
	if err != nil {
		return "", errors.Wrap(err, "failed to create scratch file")
	}
	scratchPath := scratch.Name()

	size, _, err := f.Client.Get(ctx, key, scratch)
	closeErr := scratch.Close()
	if err != nil {
		_ = os.Remove(scratchPath)
		if errors.Is(err, vstore.ErrNotFound) {
			return "", ErrNotExist
		}
		return "", errors.Wrapf(err, "failed to download %q", path)
	}
	if closeErr != nil {
		_ = os.Remove(scratchPath)
		return "", errors.Wrap(closeErr, "failed to finalize scratch file")
	}

	f.Files.Add(path, scratchPath, size)
	return scratchPath, nil
}

// FetchDirectory returns the ordered child basenames of path, listing the
// remote prefix on a cache miss and, in the same pass, populating the
// attribute cache for every child so a subsequent getattr on a child path
// needs no further remote round-trip.
func (f *Fetcher) FetchDirectory(ctx context.Context, path string) ([]string, error) {
	f.Directorys.Expire()
	if children, ok := f.Directorys.Children(path); ok {
		return children, nil
	}

	prefix := pathutil.Prefix(path)
	keys, err := f.Client.List(ctx, prefix)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %q", path)
	}

	children := make([]string, 0, len(keys))
	for _, k := range keys {
		children = append(children, pathutil.Basename(k.Name))
	}
	f.Directorys.Add(path, children)

	for _, k := range keys {
		childPath := "/" + strings.TrimSuffix(k.Name, "/")
		if k.IsPrefix {
			f.Attributes.AddDirectory(childPath)
		} else {
			f.Attributes.AddFile(childPath, k.Size, k.LastModified)
		}
	}

	return children, nil
}
