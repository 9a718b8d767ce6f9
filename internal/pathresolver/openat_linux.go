//go:build linux

package pathresolver

import "golang.org/x/sys/unix"

// openatNoFollow is a symlink-safe openat, generalized from the
// teacher's internal/openat.OpenatNofollow: it prefers openat2(2) with
// RESOLVE_NO_SYMLINKS (refusing to traverse any symlink in the final
// component) and falls back to a plain openat+O_NOFOLLOW on kernels
// where openat2 is unavailable (ENOSYS, e.g. pre-5.6).
func openatNoFollow(dirfd int, path string, flags int, mode uint32) (int, error) {
	how := unix.OpenHow{
		Flags:   uint64(flags) | unix.O_CLOEXEC,
		Mode:    uint64(mode),
		Resolve: unix.RESOLVE_NO_SYMLINKS,
	}
	fd, err := unix.Openat2(dirfd, path, &how)
	if err == unix.ENOSYS {
		return unix.Openat(dirfd, path, flags|unix.O_CLOEXEC|unix.O_NOFOLLOW, mode)
	}
	return fd, err
}
