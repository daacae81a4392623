package fsops

import (
	"context"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/bremac/s3viewport/internal/fetch"
	"github.com/bremac/s3viewport/internal/pathcache"
	"github.com/bremac/s3viewport/internal/pathutil"
)

// FS adapts a Mount to bazil.org/fuse's fs.FS interface, the kernel-side
// user-space-filesystem binding this package is built on.
type FS struct {
	Mount *Mount
}

var _ fusefs.FS = (*FS)(nil)

// staleAttrTimeout bounds how long the kernel itself may cache an Attr
// response before re-asking; kept short since the real freshness
// guarantee lives in the attribute cache, not in the kernel.
const staleAttrTimeout = time.Second

// Root returns the node for the mount-point root.
func (f *FS) Root() (fusefs.Node, error) {
	return &node{mount: f.Mount, path: "/"}, nil
}

// node is a single mount-relative path projected onto bazil.org/fuse's
// Node/Handle interfaces. It carries no state of its own; every request
// re-derives its answer from the Mount's caches.
type node struct {
	mount *Mount
	path  string
}

var (
	_ fusefs.Node               = (*node)(nil)
	_ fusefs.NodeStringLookuper = (*node)(nil)
	_ fusefs.HandleReadDirAller = (*node)(nil)
	_ fusefs.HandleReader       = (*node)(nil)
)

// Attr implements fs.Node.
func (n *node) Attr(ctx context.Context, a *fuse.Attr) error {
	attrs, err := n.mount.Getattr(ctx, n.path)
	if err != nil {
		return translateErr(err)
	}
	a.Mode = attrs.Mode
	a.Size = uint64(attrs.Size)
	a.Mtime = attrs.LastModified
	a.Uid = attrs.UID
	a.Gid = attrs.GID
	a.Valid = staleAttrTimeout
	return nil
}

// Lookup implements fs.NodeStringLookuper.
func (n *node) Lookup(ctx context.Context, name string) (fusefs.Node, error) {
	child := pathutil.Join(n.path, name)
	if _, err := n.mount.Getattr(ctx, child); err != nil {
		return nil, translateErr(err)
	}
	return &node{mount: n.mount, path: child}, nil
}

// ReadDirAll implements fs.HandleReadDirAller. The kernel synthesizes "."
// and ".." itself, so they are dropped from Mount.Readdir's own ['.',
// '..', ...] contract here.
func (n *node) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	names, err := n.mount.Readdir(ctx, n.path)
	if err != nil {
		return nil, translateErr(err)
	}

	dirents := make([]fuse.Dirent, 0, len(names))
	for _, name := range names {
		if name == "." || name == ".." {
			continue
		}
		childPath := pathutil.Join(n.path, name)
		typ := fuse.DT_File
		if attr, ok := n.mount.attrs.Lookup(childPath); ok && attr.Mode == pathcache.DirectoryMode {
			typ = fuse.DT_Dir
		}
		dirents = append(dirents, fuse.Dirent{Name: name, Type: typ})
	}
	return dirents, nil
}

// Read implements fs.HandleReader.
func (n *node) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	data, err := n.mount.Read(ctx, n.path, req.Size, req.Offset)
	if err != nil {
		return translateErr(err)
	}
	resp.Data = data
	return nil
}

// translateErr maps the core's two failure kinds onto the errnos
// bazil.org/fuse returns to the kernel.
func translateErr(err error) error {
	if err == fetch.ErrNotExist {
		return fuse.ENOENT
	}
	return fuse.EIO
}
