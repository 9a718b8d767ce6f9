//go:build !linux

package pathresolver

import "golang.org/x/sys/unix"

func openatNoFollow(dirfd int, path string, flags int, mode uint32) (int, error) {
	return unix.Openat(dirfd, path, flags|unix.O_CLOEXEC|unix.O_NOFOLLOW, mode)
}
