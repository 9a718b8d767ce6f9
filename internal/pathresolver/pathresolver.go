// Package pathresolver turns virtual request paths into operations
// against a backing directory descriptor, so that every mutating
// filesystem handler works from a parent directory fd plus a
// basename rather than a reconstructed string path.
package pathresolver

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Resolver interprets paths relative to a fixed backing root fd.
type Resolver struct {
	rootFd int
}

// New wraps an already-open root directory descriptor. The caller
// retains ownership of rootFd and must close it after the Resolver is
// no longer in use.
func New(rootFd int) *Resolver {
	return &Resolver{rootFd: rootFd}
}

// RootFd returns the backing root directory descriptor.
func (r *Resolver) RootFd() int { return r.rootFd }

// EnsureRelative strips leading slashes; the empty string and "/" both
// map to ".", the root of the backing tree.
func EnsureRelative(path string) string {
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return "."
	}
	return path
}

// OpenParent splits path into a directory and a final path component,
// opens that directory relative to the resolver's root, and returns
// both the open descriptor and the basename. The caller owns the
// returned descriptor and must close it. The root's own parent is
// itself with basename ".".
func (r *Resolver) OpenParent(path string) (parentFd int, base string, err error) {
	path = EnsureRelative(path)
	path = strings.TrimRight(path, "/")
	if path == "" || path == "." {
		fd, err := openatNoFollow(r.rootFd, ".", unix.O_DIRECTORY, 0)
		if err != nil {
			return -1, "", fmt.Errorf("grootfs: open root: %w", err)
		}
		return fd, ".", nil
	}

	dir, base := filepath.Split(path)
	dir = strings.TrimRight(dir, "/")
	if dir == "" {
		dir = "."
	}

	fd, err := openDirPath(r.rootFd, dir)
	if err != nil {
		return -1, "", err
	}
	return fd, base, nil
}

// openDirPath opens a (possibly multi-component) directory path
// relative to rootFd, walking one component at a time so that no
// single openat call is handed a path containing symlinks we would
// silently follow.
func openDirPath(rootFd int, dir string) (int, error) {
	fd, err := openatNoFollow(rootFd, ".", unix.O_DIRECTORY, 0)
	if err != nil {
		return -1, fmt.Errorf("grootfs: open root: %w", err)
	}
	for _, comp := range strings.Split(dir, "/") {
		if comp == "" || comp == "." {
			continue
		}
		next, err := openatNoFollow(fd, comp, unix.O_DIRECTORY, 0)
		unix.Close(fd)
		if err != nil {
			return -1, fmt.Errorf("grootfs: open parent %q: %w", dir, err)
		}
		fd = next
	}
	return fd, nil
}

// ProcFDPath composes a synthetic path of the form
// /proc/self/fd/<n>[/name], used for xattr syscalls that do not accept
// a directory descriptor plus a basename directly.
func ProcFDPath(dfd int, name string) string {
	if name == "" || name == "." {
		return fmt.Sprintf("/proc/self/fd/%d", dfd)
	}
	return fmt.Sprintf("/proc/self/fd/%d/%s", dfd, name)
}
