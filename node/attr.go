package node

import (
	"context"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/cloudfoundry/grootfs/internal/record"
	"github.com/cloudfoundry/grootfs/internal/xattrstore"
	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Statfs passes straight through to the backing tree (spec.md §4.5).
func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	n.root.Log.Debugf("Statfs %q", n.path())
	var s unix.Statfs_t
	if err := unix.Statfs(n.path(), &s); err != nil {
		return errno(err)
	}
	out.FromStatfsT(&s)
	return 0
}

// Access always consults the real backing permissions; the fixed
// real-mode convention (xattrstore.RealMode) means everything is readable and
// writable for the owning process, per spec.md §4.5.
func (n *Node) Access(ctx context.Context, mask uint32) syscall.Errno {
	n.root.Log.Debugf("Access %q mask=%#o", n.path(), mask)
	return errno(unix.Access(n.path(), mask))
}

// Getattr overlays the decoded record onto the real stat result via
// Store.Apply (spec.md §4.5 "stat / fstat").
func (n *Node) Getattr(ctx context.Context, f gofs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.root.Log.Debugf("Getattr %q", n.path())
	if fh, ok := f.(*fileHandle); ok {
		var st unix.Stat_t
		if err := unix.Fstat(fh.fd, &st); err != nil {
			return errno(err)
		}
		rec, err := n.root.Store.GetByFd(fh.fd)
		if err != nil {
			n.root.Log.Errorf("fgetxattr record on fd: %v", err)
			return syscall.EIO
		}
		n.fillAttr(rec, &st, out)
		return 0
	}

	var st unix.Stat_t
	isRoot := &n.Inode == n.Root()
	var err error
	if isRoot {
		err = unix.Stat(n.path(), &st)
	} else {
		err = unix.Lstat(n.path(), &st)
	}
	if err != nil {
		return errno(err)
	}

	rec, rerr := n.recordForStat(&st)
	if rerr != nil {
		n.root.Log.Errorf("read record: %v", rerr)
		return syscall.EIO
	}
	n.fillAttr(rec, &st, out)
	return 0
}

// recordForStat reads the fake-metadata record for n, following the
// symlink indirection when n's real mode is a symlink (spec.md §3).
func (n *Node) recordForStat(st *unix.Stat_t) (record.Record, error) {
	if st.Mode&unix.S_IFMT == unix.S_IFLNK {
		return n.root.Store.GetSymlink(uint64(st.Dev), st.Ino)
	}
	parentFd, base, perr := n.root.Resolver.OpenParent(n.Path(n.Root()))
	if perr != nil {
		return record.Record{}, perr
	}
	defer unix.Close(parentFd)
	return n.root.Store.Get(parentFd, base, xattrstore.AllowNoEnt())
}

func (n *Node) fillAttr(rec record.Record, st *unix.Stat_t, out *fuse.AttrOut) {
	uid, gid, mode := n.root.Store.Apply(rec, st.Uid, st.Gid, uint32(st.Mode))
	out.FromStat(st)
	out.Uid = uid
	out.Gid = gid
	out.Mode = (out.Mode &^ 0o7777) | (mode & 0o7777)
}

// Setattr implements chmod/chown/utimens/truncate (spec.md §4.5): the
// real backing file only ever gets the fixed real-mode convention;
// every client-visible ownership/mode change lands in the fake record.
func (n *Node) Setattr(ctx context.Context, f gofs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	n.root.Log.Debugf("Setattr %q", n.path())
	p := n.path()

	parentFd, base, perr := n.root.Resolver.OpenParent(n.Path(n.Root()))
	if perr != nil {
		return errno(perr)
	}
	defer unix.Close(parentFd)

	var lst unix.Stat_t
	if err := unix.Lstat(p, &lst); err != nil {
		return errno(err)
	}
	isSymlink := lst.Mode&unix.S_IFMT == unix.S_IFLNK

	var rec record.Record
	var err error
	if isSymlink {
		rec, err = n.root.Store.GetSymlink(uint64(lst.Dev), lst.Ino)
	} else {
		rec, err = n.root.Store.Get(parentFd, base)
	}
	if err != nil {
		return errno(err)
	}

	if m, ok := in.GetMode(); ok {
		var st unix.Stat_t
		if err := unix.Lstat(p, &st); err != nil {
			return errno(err)
		}
		isDir := st.Mode&unix.S_IFMT == unix.S_IFDIR
		if err := unix.Chmod(p, xattrstore.RealMode(m, isDir)); err != nil {
			return errno(err)
		}
		rec = rec.WithMode(m)
	}

	if uid, uok := in.GetUID(); uok {
		rec = rec.WithUID(uid)
	}
	if gid, gok := in.GetGID(); gok {
		rec = rec.WithGID(gid)
	}

	if _, mok := in.GetMTime(); mok {
		if err := applyTimes(p, in); err != nil {
			return errno(err)
		}
	} else if _, aok := in.GetATime(); aok {
		if err := applyTimes(p, in); err != nil {
			return errno(err)
		}
	}

	if sz, ok := in.GetSize(); ok {
		if err := unix.Truncate(p, int64(sz)); err != nil {
			return errno(err)
		}
	}

	var werr error
	if isSymlink {
		werr = n.root.Store.SetSymlink(uint64(lst.Dev), lst.Ino, rec)
	} else {
		werr = n.root.Store.Set(parentFd, base, rec)
	}
	if werr != nil {
		n.root.Log.Errorf("write record after setattr: %v", werr)
		return syscall.EIO
	}

	var st unix.Stat_t
	if err := unix.Lstat(p, &st); err != nil {
		return errno(err)
	}
	n.fillAttr(rec, &st, out)
	return 0
}

func applyTimes(path string, in *fuse.SetAttrIn) error {
	mtime, mok := in.GetMTime()
	atime, aok := in.GetATime()
	var ts [2]unix.Timespec
	if aok {
		ts[0] = unix.NsecToTimespec(atime.UnixNano())
	} else {
		ts[0] = unix.Timespec{Nsec: unix.UTIME_OMIT}
	}
	if mok {
		ts[1] = unix.NsecToTimespec(mtime.UnixNano())
	} else {
		ts[1] = unix.Timespec{Nsec: unix.UTIME_OMIT}
	}
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, ts[:], unix.AT_SYMLINK_NOFOLLOW)
}
