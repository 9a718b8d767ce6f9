package node

import (
	"context"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Symlink creates the backing symlink and writes a record (no mode,
// caller's uid/gid) onto its placeholder, so a subsequent stat reports
// the caller as owner (spec.md §4.5, §3 "Symlink indirection").
func (n *Node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	n.root.Log.Debugf("Symlink %q -> %q", name, target)
	p := filepath.Join(n.path(), name)
	if err := unix.Symlink(target, p); err != nil {
		return nil, errno(err)
	}

	var st unix.Stat_t
	if err := unix.Lstat(p, &st); err != nil {
		unix.Unlink(p)
		return nil, errno(err)
	}

	rec := freshRecord(ctx, 0, false)
	if err := n.root.Store.SetSymlink(uint64(st.Dev), st.Ino, rec); err != nil {
		n.root.Log.Errorf("write symlink record for %q: %v", name, err)
		unix.Unlink(p)
		return nil, syscall.EIO
	}

	n.fillAttr(rec, &st, &out.Attr)
	return n.newChild(ctx, &st), 0
}

// Readlink passes straight through to the backing tree (spec.md §4.5),
// generalized from the teacher's growing-buffer loop
// (fs/loopback.go Readlink).
func (n *Node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	n.root.Log.Debugf("Readlink %q", n.path())
	p := n.path()
	for size := 256; ; size *= 2 {
		buf := make([]byte, size)
		sz, err := unix.Readlink(p, buf)
		if err != nil {
			return nil, errno(err)
		}
		if sz < len(buf) {
			return buf[:sz], 0
		}
	}
}

// Link creates a real hardlink to target's backing file. The fake
// record travels with it automatically since it lives on the shared
// backing inode (spec.md §4.5).
func (n *Node) Link(ctx context.Context, target gofs.InodeEmbedder, name string, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	n.root.Log.Debugf("Link %q", name)
	p := filepath.Join(n.path(), name)
	targetPath := filepath.Join(n.root.Path, target.EmbeddedInode().Path(nil))
	if err := unix.Link(targetPath, p); err != nil {
		return nil, errno(err)
	}

	var st unix.Stat_t
	if err := unix.Lstat(p, &st); err != nil {
		unix.Unlink(p)
		return nil, errno(err)
	}

	rec, _ := n.recordForChild(&st, name)
	n.fillAttr(rec, &st, &out.Attr)
	return n.newChild(ctx, &st), 0
}
