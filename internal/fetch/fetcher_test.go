package fetch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bremac/s3viewport/internal/pathcache"
	"github.com/bremac/s3viewport/internal/vstore"
)

// fakeStore is a counting, in-memory ObjectStore stand-in used to verify
// download/listing call counts without a real bucket.
type fakeStore struct {
	mu sync.Mutex

	listCalls int
	getCalls  map[string]int

	listing map[string][]vstore.Key
	bodies  map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		getCalls: make(map[string]int),
		listing:  make(map[string][]vstore.Key),
		bodies:   make(map[string]string),
	}
}

func (f *fakeStore) List(ctx context.Context, prefix string) ([]vstore.Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.listing[prefix], nil
}

func (f *fakeStore) Get(ctx context.Context, key string, w io.Writer) (int64, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls[key]++

	body, ok := f.bodies[key]
	if !ok {
		return 0, time.Time{}, vstore.ErrNotFound
	}
	n, err := io.Copy(w, strings.NewReader(body))
	return n, time.Time{}, err
}

func newFetcherForTest(t *testing.T, store ObjectStore, attrLifetime, dirLifetime time.Duration) *Fetcher {
	t.Helper()
	attrs := pathcache.NewAttributeCache(attrLifetime)
	dirs := pathcache.NewDirectoryCache(dirLifetime)
	files := pathcache.NewFileCache(time.Hour, 1_000_000, 100)
	return New(attrs, dirs, files, store, t.TempDir())
}

func TestFetchFileIsIdempotentAcrossCalls(t *testing.T) {
	store := newFakeStore()
	store.bodies["a.txt"] = "hello"
	f := newFetcherForTest(t, store, time.Hour, time.Hour)

	sp1, err := f.FetchFile(context.Background(), "/a.txt")
	require.NoError(t, err)
	sp2, err := f.FetchFile(context.Background(), "/a.txt")
	require.NoError(t, err)

	require.Equal(t, sp1, sp2)
	require.Equal(t, 1, store.getCalls["a.txt"])
}

func TestFetchFileMissingKeyTranslatesNotFound(t *testing.T) {
	store := newFakeStore()
	f := newFetcherForTest(t, store, time.Hour, time.Hour)

	_, err := f.FetchFile(context.Background(), "/missing.txt")
	require.ErrorIs(t, err, ErrNotExist)
}

func TestFetchDirectoryPopulatesAttributesInSamePass(t *testing.T) {
	store := newFakeStore()
	store.listing["dir/"] = []vstore.Key{
		{Name: "dir/sub/", IsPrefix: true},
		{Name: "dir/a.txt", Size: 42, LastModified: time.Unix(1000, 0)},
	}
	f := newFetcherForTest(t, store, time.Hour, time.Hour)

	children, err := f.FetchDirectory(context.Background(), "/dir")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"sub", "a.txt"}, children)

	attr, ok := f.Attributes.Lookup("/dir/sub")
	require.True(t, ok)
	require.Equal(t, pathcache.DirectoryMode, attr.Mode)

	attr, ok = f.Attributes.Lookup("/dir/a.txt")
	require.True(t, ok)
	require.Equal(t, pathcache.RegularFileMode, attr.Mode)
	require.Equal(t, int64(42), attr.Size)
}

func TestFetchDirectoryEmptyPrefixYieldsEmptyChildrenNotError(t *testing.T) {
	store := newFakeStore()
	f := newFetcherForTest(t, store, time.Hour, time.Hour)

	children, err := f.FetchDirectory(context.Background(), "/empty")
	require.NoError(t, err)
	require.Empty(t, children)
}

func TestFetchDirectoryExpiryReListsAfterLifetime(t *testing.T) {
	store := newFakeStore()
	store.listing[""] = []vstore.Key{{Name: "a.txt", Size: 1}}
	f := newFetcherForTest(t, store, time.Hour, 10*time.Millisecond)

	_, err := f.FetchDirectory(context.Background(), "/")
	require.NoError(t, err)
	require.Equal(t, 1, store.listCalls)

	time.Sleep(20 * time.Millisecond)

	_, err = f.FetchDirectory(context.Background(), "/")
	require.NoError(t, err)
	require.Equal(t, 2, store.listCalls)
}

func TestFetchFileDownloadsOncePerDistinctKey(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 3; i++ {
		store.bodies[fmt.Sprintf("f%d.txt", i)] = "body"
	}
	f := newFetcherForTest(t, store, time.Hour, time.Hour)

	for i := 0; i < 3; i++ {
		_, err := f.FetchFile(context.Background(), fmt.Sprintf("/f%d.txt", i))
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		require.Equal(t, 1, store.getCalls[fmt.Sprintf("f%d.txt", i)])
	}
}
