package node

import (
	"context"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/cloudfoundry/grootfs/internal/record"
	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Node is a grootfs filesystem node, generalized from the teacher's
// loopbackNode (fs/loopback.go): same Inode-tree composition style,
// but every handler additionally reads/writes the fake-metadata
// record instead of touching real ownership.
type Node struct {
	gofs.Inode

	root *Root
}

var (
	_ = (gofs.NodeStatfser)((*Node)(nil))
	_ = (gofs.NodeGetattrer)((*Node)(nil))
	_ = (gofs.NodeSetattrer)((*Node)(nil))
	_ = (gofs.NodeGetxattrer)((*Node)(nil))
	_ = (gofs.NodeSetxattrer)((*Node)(nil))
	_ = (gofs.NodeRemovexattrer)((*Node)(nil))
	_ = (gofs.NodeListxattrer)((*Node)(nil))
	_ = (gofs.NodeReadlinker)((*Node)(nil))
	_ = (gofs.NodeOpener)((*Node)(nil))
	_ = (gofs.NodeLookuper)((*Node)(nil))
	_ = (gofs.NodeOpendirer)((*Node)(nil))
	_ = (gofs.NodeReaddirer)((*Node)(nil))
	_ = (gofs.NodeMkdirer)((*Node)(nil))
	_ = (gofs.NodeMknoder)((*Node)(nil))
	_ = (gofs.NodeCreater)((*Node)(nil))
	_ = (gofs.NodeLinker)((*Node)(nil))
	_ = (gofs.NodeSymlinker)((*Node)(nil))
	_ = (gofs.NodeUnlinker)((*Node)(nil))
	_ = (gofs.NodeRmdirer)((*Node)(nil))
	_ = (gofs.NodeRenamer)((*Node)(nil))
	_ = (gofs.NodeAccesser)((*Node)(nil))
)

// path composes the backing absolute path of n, the same way the
// teacher's loopbackNode.path() does: via the Inode tree's Path() and
// a single filepath.Join against the backing root.
func (n *Node) path() string {
	return filepath.Join(n.root.Path, n.Path(n.Root()))
}

func (n *Node) newChild(ctx context.Context, st *unix.Stat_t) *gofs.Inode {
	child := &Node{root: n.root}
	return n.NewInode(ctx, child, n.root.idFromStat(st))
}

func caller(ctx context.Context) (uid, gid uint32, ok bool) {
	c, ok := fuse.FromContext(ctx)
	if !ok {
		return 0, 0, false
	}
	return c.Uid, c.Gid, true
}

// freshRecord builds the record written for a newly-created object:
// the requested mode plus the calling request's uid/gid (spec.md §4.5
// "mkdir"/"open or create"/"symlink").
func freshRecord(ctx context.Context, mode uint32, withMode bool) record.Record {
	rec := record.Record{}
	if withMode {
		rec = rec.WithMode(mode)
	}
	if uid, gid, ok := caller(ctx); ok {
		rec = rec.WithUID(uid).WithGID(gid)
	}
	return rec
}

func errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	return gofs.ToErrno(err)
}
