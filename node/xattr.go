package node

import (
	"context"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/cloudfoundry/grootfs/internal/attrns"
)

// Getxattr, Setxattr, Removexattr and Listxattr project the client
// xattr namespace (spec.md §4.4), hiding the engine's own record key.
func (n *Node) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	n.root.Log.Debugf("Getxattr %q %q", n.path(), attr)
	ns, parentFd, err := n.openNamespace()
	if err != nil {
		return 0, errno(err)
	}
	defer unix.Close(parentFd)
	sz, err := ns.Getxattr(attr, dest)
	if err != nil {
		return 0, errno(err)
	}
	return uint32(sz), 0
}

func (n *Node) Setxattr(ctx context.Context, attr string, data []byte, flags uint32) syscall.Errno {
	n.root.Log.Debugf("Setxattr %q %q", n.path(), attr)
	ns, parentFd, err := n.openNamespace()
	if err != nil {
		return errno(err)
	}
	defer unix.Close(parentFd)
	return errno(ns.Setxattr(attr, data, int(flags)))
}

func (n *Node) Removexattr(ctx context.Context, attr string) syscall.Errno {
	n.root.Log.Debugf("Removexattr %q %q", n.path(), attr)
	ns, parentFd, err := n.openNamespace()
	if err != nil {
		return errno(err)
	}
	defer unix.Close(parentFd)
	return errno(ns.Removexattr(attr))
}

func (n *Node) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	n.root.Log.Debugf("Listxattr %q", n.path())
	ns, parentFd, err := n.openNamespace()
	if err != nil {
		return 0, errno(err)
	}
	defer unix.Close(parentFd)
	sz, err := ns.Listxattr(dest)
	if err != nil {
		return 0, errno(err)
	}
	return uint32(sz), 0
}

// openNamespace opens n's parent directory fd and returns an
// attrns.Namespace addressing n by parentFd+basename. The caller must
// close the returned fd.
func (n *Node) openNamespace() (attrns.Namespace, int, error) {
	parentFd, base, err := n.root.Resolver.OpenParent(n.Path(n.Root()))
	if err != nil {
		return attrns.Namespace{}, -1, err
	}
	return attrns.Namespace{ParentFd: parentFd, Name: base}, parentFd, nil
}
