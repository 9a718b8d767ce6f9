package node

import (
	"context"
	"syscall"

	"golang.org/x/sys/unix"

	gofs "github.com/hanwen/go-fuse/v2/fs"
)

// fileHandle is the per-open-file state: just the backing open
// descriptor, per spec.md §4.5 "State".
type fileHandle struct {
	fd int
}

var (
	_ = (gofs.FileReader)((*fileHandle)(nil))
	_ = (gofs.FileWriter)((*fileHandle)(nil))
	_ = (gofs.FileFlusher)((*fileHandle)(nil))
	_ = (gofs.FileReleaser)((*fileHandle)(nil))
	_ = (gofs.FileFsyncer)((*fileHandle)(nil))
)

func (f *fileHandle) Read(ctx context.Context, dest []byte, off int64) (gofs.ReadResult, syscall.Errno) {
	n, err := unix.Pread(f.fd, dest, off)
	if err != nil {
		return nil, errno(err)
	}
	return gofs.ReadResultData(dest[:n]), 0
}

func (f *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := unix.Pwrite(f.fd, data, off)
	if err != nil {
		return 0, errno(err)
	}
	return uint32(n), 0
}

func (f *fileHandle) Flush(ctx context.Context) syscall.Errno {
	dup, err := unix.Dup(f.fd)
	if err != nil {
		return errno(err)
	}
	return errno(unix.Close(dup))
}

func (f *fileHandle) Release(ctx context.Context) syscall.Errno {
	return errno(unix.Close(f.fd))
}

func (f *fileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return errno(unix.Fsync(f.fd))
}

// Open passes straight through to the backing tree (spec.md §4.5).
func (n *Node) Open(ctx context.Context, flags uint32) (gofs.FileHandle, uint32, syscall.Errno) {
	n.root.Log.Debugf("Open %q flags=%#o", n.path(), flags)
	flags &^= syscall.O_APPEND
	fd, err := unix.Open(n.path(), int(flags), 0)
	if err != nil {
		return nil, 0, errno(err)
	}
	return &fileHandle{fd: fd}, 0, 0
}

// Opendir passes straight through to the backing tree (spec.md §4.5).
func (n *Node) Opendir(ctx context.Context) syscall.Errno {
	n.root.Log.Debugf("Opendir %q", n.path())
	fd, err := unix.Open(n.path(), unix.O_DIRECTORY, 0)
	if err != nil {
		return errno(err)
	}
	unix.Close(fd)
	return 0
}
