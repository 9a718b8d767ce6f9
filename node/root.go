// Package node implements grootfs's filesystem operation handlers: a
// github.com/hanwen/go-fuse/v2/fs.InodeEmbedder tree that delegates to
// a backing directory while virtualizing ownership, mode and
// extended attributes through internal/xattrstore.
package node

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/cloudfoundry/grootfs/grootlog"
	"github.com/cloudfoundry/grootfs/internal/pathresolver"
	"github.com/cloudfoundry/grootfs/internal/xattrstore"
	gofs "github.com/hanwen/go-fuse/v2/fs"
)

// Root holds everything a grootfs session needs once, shared by every
// Node in the tree: the backing root descriptor, the metadata store,
// the path resolver, and the logger. It is immutable once the session
// starts (spec.md §5).
type Root struct {
	Path     string
	Dev      uint64
	RootFd   int
	Store    *xattrstore.Store
	Resolver *pathresolver.Resolver
	Log      *grootlog.Logger
}

// Options configures a new grootfs tree.
type Options struct {
	// MaxUID/MaxGID are the clamp ceilings (spec.md §3).
	MaxUID, MaxGID uint32
	Debug          bool
}

// NewRoot opens backingPath and returns the root InodeEmbedder for a
// grootfs tree rooted there. Close must be called when the session ends.
func NewRoot(backingPath string, opts Options, log *grootlog.Logger) (gofs.InodeEmbedder, *Root, error) {
	var st unix.Stat_t
	if err := unix.Stat(backingPath, &st); err != nil {
		return nil, nil, fmt.Errorf("grootfs: stat backing root %q: %w", backingPath, err)
	}
	rootFd, err := unix.Open(backingPath, unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("grootfs: open backing root %q: %w", backingPath, err)
	}

	root := &Root{
		Path:     backingPath,
		Dev:      uint64(st.Dev),
		RootFd:   rootFd,
		Store:    xattrstore.New(rootFd, opts.MaxUID, opts.MaxGID),
		Resolver: pathresolver.New(rootFd),
		Log:      log.WithDebug(opts.Debug),
	}
	return &Node{root: root}, root, nil
}

// Close releases the backing root descriptor. Call once, at session end.
func (r *Root) Close() error {
	return unix.Close(r.RootFd)
}

// idFromStat composes a stable inode number from the backing device
// and inode numbers, generalized unchanged from the teacher's
// loopbackRoot.idFromStat (fs/loopback.go).
func (r *Root) idFromStat(st *unix.Stat_t) gofs.StableAttr {
	swapped := (uint64(st.Dev) << 32) | (uint64(st.Dev) >> 32)
	swappedRootDev := (r.Dev << 32) | (r.Dev >> 32)
	return gofs.StableAttr{
		Mode: uint32(st.Mode),
		Gen:  1,
		Ino:  (swapped ^ swappedRootDev) ^ st.Ino,
	}
}
