// Package attrns projects a client-visible extended-attribute
// namespace onto the backing store, mangling client names under the
// grootfs prefix and hiding the engine's own fake-ownership record.
package attrns

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/cloudfoundry/grootfs/internal/pathresolver"
	"github.com/cloudfoundry/grootfs/internal/record"
)

// clientPrefix is prepended to every client-set attribute name before
// it is stored on the backing file. record.Name ("user.grootfs") is a
// sibling key in the same namespace and never carries this prefix, so
// it is never mistaken for a client attribute.
const clientPrefix = "user.grootfs."

// Namespace projects the client xattr namespace for one backing
// object, addressed by parent directory fd + basename (the object
// need not be open).
type Namespace struct {
	ParentFd int
	Name     string
}

func (n Namespace) path() string {
	return pathresolver.ProcFDPath(n.ParentFd, n.Name)
}

func mangle(name string) string { return clientPrefix + name }

// Setxattr stores data under the client's mangled key.
func (n Namespace) Setxattr(name string, data []byte, flags int) error {
	if err := unix.Setxattr(n.path(), mangle(name), data, flags); err != nil {
		return fmt.Errorf("grootfs: setxattr %q: %w", name, err)
	}
	return nil
}

// Getxattr fetches the client's mangled key into dest, returning the
// attribute's length.
func (n Namespace) Getxattr(name string, dest []byte) (int, error) {
	sz, err := unix.Getxattr(n.path(), mangle(name), dest)
	if err != nil {
		return 0, err
	}
	return sz, nil
}

// Removexattr removes the client's mangled key.
func (n Namespace) Removexattr(name string) error {
	if err := unix.Removexattr(n.path(), mangle(name)); err != nil {
		return fmt.Errorf("grootfs: removexattr %q: %w", name, err)
	}
	return nil
}

// Listxattr lists every client attribute (prefix stripped) into dest,
// null-separated, following the host xattr listing size convention:
// size 0 returns only the required byte count, a positive size that
// is too small returns ERANGE, otherwise the names are copied and the
// byte count returned.
func (n Namespace) Listxattr(dest []byte) (int, error) {
	names, err := n.listBackingNames()
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	for _, raw := range names {
		if raw == record.Name {
			continue
		}
		if len(raw) <= len(clientPrefix) || raw[:len(clientPrefix)] != clientPrefix {
			continue
		}
		buf.WriteString(raw[len(clientPrefix):])
		buf.WriteByte(0)
	}

	need := buf.Len()
	if len(dest) == 0 {
		return need, nil
	}
	if len(dest) < need {
		return 0, unix.ERANGE
	}
	copy(dest, buf.Bytes())
	return need, nil
}

// listBackingNames lists the raw (still mangled) backing attribute names,
// resizing its scratch buffer on ERANGE per spec.md §4.4, grounded on
// original_source/utils.c's doubled-buffer retry loop.
func (n Namespace) listBackingNames() ([]string, error) {
	path := n.path()
	size := 4096
	for {
		buf := make([]byte, size)
		sz, err := unix.Listxattr(path, buf)
		if err != nil {
			if errors.Is(err, unix.ERANGE) {
				size *= 2
				continue
			}
			if errors.Is(err, unix.ENOTSUP) {
				return nil, nil
			}
			return nil, fmt.Errorf("grootfs: listxattr: %w", err)
		}
		return splitNullSeparated(buf[:sz]), nil
	}
}

func splitNullSeparated(buf []byte) []string {
	var out []string
	for _, part := range bytes.Split(buf, []byte{0}) {
		if len(part) > 0 {
			out = append(out, string(part))
		}
	}
	return out
}
