package node

import (
	"context"
	"os"
	"syscall"

	"github.com/cloudfoundry/grootfs/internal/xattrstore"
	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Readdir filters every entry whose name begins with the reserved
// prefix out of the client-visible listing (spec.md §3, §8).
func (n *Node) Readdir(ctx context.Context) (gofs.DirStream, syscall.Errno) {
	n.root.Log.Debugf("Readdir %q", n.path())
	entries, err := os.ReadDir(n.path())
	if err != nil {
		return nil, errno(err)
	}

	var out []fuse.DirEntry
	for _, e := range entries {
		name := e.Name()
		if len(name) >= len(xattrstore.ReservedPrefix) && name[:len(xattrstore.ReservedPrefix)] == xattrstore.ReservedPrefix {
			continue
		}
		info, ierr := e.Info()
		if ierr != nil {
			continue
		}
		mode := uint32(info.Mode().Perm())
		if info.IsDir() {
			mode |= syscall.S_IFDIR
		} else if info.Mode()&os.ModeSymlink != 0 {
			mode |= syscall.S_IFLNK
		} else {
			mode |= syscall.S_IFREG
		}
		out = append(out, fuse.DirEntry{Name: name, Mode: mode})
	}
	return gofs.NewListDirStream(out), 0
}
