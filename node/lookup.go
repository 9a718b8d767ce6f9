package node

import (
	"context"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/cloudfoundry/grootfs/internal/record"
	"github.com/cloudfoundry/grootfs/internal/xattrstore"
	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Lookup stats the named child and overlays its fake record, per
// spec.md §4.5 "stat". Generalized from the teacher's
// loopbackNode.Lookup (fs/loopback.go).
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	n.root.Log.Debugf("Lookup %q in %q", name, n.path())
	p := filepath.Join(n.path(), name)

	var st unix.Stat_t
	if err := unix.Lstat(p, &st); err != nil {
		return nil, errno(err)
	}

	rec, rerr := n.recordForChild(&st, name)
	if rerr != nil {
		n.root.Log.Errorf("read record for %q: %v", name, rerr)
		return nil, syscall.EIO
	}

	n.fillAttr(rec, &st, &out.Attr)
	child := n.newChild(ctx, &st)
	return child, 0
}

// recordForChild reads the fake record for a named child of n,
// addressed by the parent's own directory fd when possible.
func (n *Node) recordForChild(st *unix.Stat_t, name string) (record.Record, error) {
	if st.Mode&unix.S_IFMT == unix.S_IFLNK {
		return n.root.Store.GetSymlink(uint64(st.Dev), st.Ino)
	}
	parentFd, base, err := n.root.Resolver.OpenParent(filepath.Join(n.Path(n.Root()), name))
	if err != nil {
		return record.Record{}, err
	}
	defer unix.Close(parentFd)
	return n.root.Store.Get(parentFd, base, xattrstore.AllowNoEnt())
}
