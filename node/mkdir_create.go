package node

import (
	"context"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/cloudfoundry/grootfs/internal/xattrstore"
	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Mkdir creates the directory on the backing store with the
// convention-derived real mode, then writes a fresh record with the
// requested mode and the calling client's uid/gid (spec.md §4.5).
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	n.root.Log.Debugf("Mkdir %q in %q", name, n.path())
	p := filepath.Join(n.path(), name)
	if err := unix.Mkdir(p, xattrstore.RealMode(mode, true)); err != nil {
		return nil, errno(err)
	}

	var st unix.Stat_t
	if err := unix.Lstat(p, &st); err != nil {
		unix.Rmdir(p)
		return nil, errno(err)
	}

	if err := n.writeFreshRecord(ctx, name, mode, true); err != nil {
		n.root.Log.Errorf("write record for mkdir %q: %v", name, err)
		unix.Rmdir(p)
		return nil, syscall.EIO
	}

	rec, _ := n.recordForChild(&st, name)
	n.fillAttr(rec, &st, &out.Attr)
	return n.newChild(ctx, &st), 0
}

// Mknod is unsupported: grootfs virtualizes regular files, directories
// and symlinks only, never device nodes (spec.md §4.5, §7).
func (n *Node) Mknod(ctx context.Context, name string, mode, rdev uint32, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	return nil, syscall.EROFS
}

// Create implements the O_EXCL probing dance of spec.md §4.5: if the
// kernel asked for O_CREAT without O_EXCL, force O_EXCL on the first
// attempt to learn whether this call actually created the file; on
// EEXIST retry without O_EXCL. A fresh record is written only when the
// file was in fact created by this call.
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofs.Inode, gofs.FileHandle, uint32, syscall.Errno) {
	n.root.Log.Debugf("Create %q in %q", name, n.path())
	p := filepath.Join(n.path(), name)
	realMode := xattrstore.RealMode(mode, false)

	probeFlags := flags &^ uint32(syscall.O_APPEND)
	created := true
	fd, err := unix.Open(p, int(probeFlags)|unix.O_CREAT|unix.O_EXCL, realMode)
	if err != nil {
		if err != unix.EEXIST {
			return nil, nil, 0, errno(err)
		}
		created = false
		fd, err = unix.Open(p, int(probeFlags), realMode)
		if err != nil {
			return nil, nil, 0, errno(err)
		}
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, nil, 0, errno(err)
	}

	if created {
		if err := n.writeFreshRecord(ctx, name, mode, true); err != nil {
			n.root.Log.Errorf("write record for create %q: %v", name, err)
			unix.Close(fd)
			unix.Unlink(p)
			return nil, nil, 0, syscall.EIO
		}
	}

	rec, _ := n.recordForChild(&st, name)
	n.fillAttr(rec, &st, &out.Attr)
	return n.newChild(ctx, &st), &fileHandle{fd: fd}, 0, 0
}

// writeFreshRecord writes the record for a newly-created child: the
// requested mode (when withMode) plus the calling request's uid/gid
// (spec.md §4.5 "mkdir", "open/create").
func (n *Node) writeFreshRecord(ctx context.Context, name string, mode uint32, withMode bool) error {
	parentFd, base, err := n.root.Resolver.OpenParent(filepath.Join(n.Path(n.Root()), name))
	if err != nil {
		return err
	}
	defer unix.Close(parentFd)
	return n.root.Store.Set(parentFd, base, freshRecord(ctx, mode, withMode))
}

// Unlink removes the backing object, and its symlink placeholder too
// if the target was a symlink (spec.md §4.5 "unlink").
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	n.root.Log.Debugf("Unlink %q in %q", name, n.path())
	p := filepath.Join(n.path(), name)
	var st unix.Stat_t
	hadStat := unix.Lstat(p, &st) == nil
	isSymlink := hadStat && st.Mode&unix.S_IFMT == unix.S_IFLNK

	if err := unix.Unlink(p); err != nil {
		return errno(err)
	}
	if isSymlink {
		if err := n.root.Store.UnlinkSymlinkPlaceholder(uint64(st.Dev), st.Ino); err != nil {
			n.root.Log.Errorf("unlink placeholder for %q: %v", name, err)
		}
	}
	return 0
}

// Rmdir passes straight through (spec.md §4.5).
func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	n.root.Log.Debugf("Rmdir %q in %q", name, n.path())
	return errno(unix.Rmdir(filepath.Join(n.path(), name)))
}

// Rename passes straight through to the backing tree (spec.md §4.5);
// the fake record travels with the backing inode automatically since
// it is an xattr on that same inode.
func (n *Node) Rename(ctx context.Context, name string, newParent gofs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	n.root.Log.Debugf("Rename %q to %q", name, newName)
	p1 := filepath.Join(n.path(), name)
	p2 := filepath.Join(n.root.Path, newParent.EmbeddedInode().Path(nil), newName)
	if flags != 0 {
		return errno(unix.Renameat2(unix.AT_FDCWD, p1, unix.AT_FDCWD, p2, int(flags)))
	}
	return errno(unix.Rename(p1, p2))
}
