// Package xattrstore implements the fake-metadata store: reading,
// writing and defaulting the packed ownership record for a backing
// filesystem object, including the symlink placeholder indirection
// and the real-backing-mode convention.
package xattrstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/cloudfoundry/grootfs/internal/pathresolver"
	"github.com/cloudfoundry/grootfs/internal/record"
)

// ReservedPrefix marks the engine's own bookkeeping entries in the
// backing root. Readdir must filter these out of client-visible listings.
const ReservedPrefix = ".groot."

const symlinkPlaceholderPrefix = ReservedPrefix + "symlink."

// Store reads, writes and clamps the fake-metadata record for paths
// in one backing tree. It holds no mutable state beyond the root
// descriptor and the configured UID/GID ceilings, so a single Store
// is safe for concurrent use by every request handler in a session.
type Store struct {
	RootFd int
	MaxUID uint32
	MaxGID uint32
}

// New constructs a Store bound to an already-open backing root
// descriptor. The caller retains ownership of rootFd.
func New(rootFd int, maxUID, maxGID uint32) *Store {
	return &Store{RootFd: rootFd, MaxUID: maxUID, MaxGID: maxGID}
}

// readOpts carries the allowNoEnt flag, which distinguishes "object absent" from "read failed"
// for stat-only callers, per spec.md §4.3.
type readOpts struct {
	allowNoEnt bool
}

// ReadOption configures a metadata read.
type ReadOption func(*readOpts)

// AllowNoEnt tells Get/GetByFd to return the zero record instead of an
// error when the backing object or its xattr is absent. Mutation
// callers never pass this.
func AllowNoEnt() ReadOption {
	return func(o *readOpts) { o.allowNoEnt = true }
}

// Get reads the record addressed by parentFd+name (a non-symlink
// object). Missing record, empty record, and ENOTSUP are all the zero
// record; ENOENT is the zero record only when AllowNoEnt is given.
func (s *Store) Get(parentFd int, name string, opts ...ReadOption) (record.Record, error) {
	o := applyOpts(opts)
	p := pathresolver.ProcFDPath(parentFd, name)
	return s.read(p, o)
}

// GetByFd reads the record of an already-open file descriptor.
func (s *Store) GetByFd(fd int, opts ...ReadOption) (record.Record, error) {
	o := applyOpts(opts)
	buf := make([]byte, record.Size)
	n, err := unix.Fgetxattr(fd, record.Name, buf)
	return decodeXattrResult(buf, n, err, o)
}

// GetSymlink reads the record stored on the placeholder file for a
// symlink identified by its device and inode. Absence of the
// placeholder (no such file) is the zero record, same as an empty
// record, per spec.md §4.2.
func (s *Store) GetSymlink(dev, ino uint64) (record.Record, error) {
	p := pathresolver.ProcFDPath(s.RootFd, placeholderName(dev, ino))
	return s.read(p, readOpts{allowNoEnt: true})
}

func (s *Store) read(path string, o readOpts) (record.Record, error) {
	buf := make([]byte, record.Size)
	n, err := unix.Getxattr(path, record.Name, buf)
	return decodeXattrResult(buf, n, err, o)
}

func decodeXattrResult(buf []byte, n int, err error, o readOpts) (record.Record, error) {
	if err != nil {
		switch {
		case errors.Is(err, unix.ENODATA), errors.Is(err, unix.ENOTSUP):
			return record.Record{}, nil
		case errors.Is(err, unix.ENOENT) && o.allowNoEnt:
			return record.Record{}, nil
		default:
			return record.Record{}, err
		}
	}
	if n == 0 {
		return record.Record{}, nil
	}
	return record.Decode(buf[:n])
}

// Set writes a fresh record addressed by parentFd+name.
func (s *Store) Set(parentFd int, name string, rec record.Record) error {
	p := pathresolver.ProcFDPath(parentFd, name)
	if err := unix.Setxattr(p, record.Name, rec.Encode(), 0); err != nil {
		return fmt.Errorf("grootfs: write metadata for %q: %w", name, err)
	}
	return nil
}

// SetByFd writes a fresh record onto an already-open descriptor.
func (s *Store) SetByFd(fd int, rec record.Record) error {
	if err := unix.Fsetxattr(fd, record.Name, rec.Encode(), 0); err != nil {
		return fmt.Errorf("grootfs: write metadata: %w", err)
	}
	return nil
}

// SetSymlink writes rec onto the placeholder file for the symlink
// identified by dev/ino, creating the placeholder if it does not yet
// exist. Placeholder creation and the xattr write are two separate
// steps; a half-initialized placeholder (created, no xattr yet) reads
// back as the zero record, identical to "no placeholder", so the pair
// is safe without a transaction (spec.md §5).
func (s *Store) SetSymlink(dev, ino uint64, rec record.Record) error {
	name := placeholderName(dev, ino)
	fd, err := unix.Openat(s.RootFd, name, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0666)
	if err != nil {
		return fmt.Errorf("grootfs: create symlink placeholder: %w", err)
	}
	defer unix.Close(fd)
	return s.SetByFd(fd, rec)
}

// UnlinkSymlinkPlaceholder removes the placeholder for dev/ino, if
// any. Absence is not an error: a symlink whose metadata was never
// written has no placeholder to remove.
func (s *Store) UnlinkSymlinkPlaceholder(dev, ino uint64) error {
	err := unix.Unlinkat(s.RootFd, placeholderName(dev, ino), 0)
	if err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("grootfs: unlink symlink placeholder: %w", err)
	}
	return nil
}

func placeholderName(dev, ino uint64) string {
	return fmt.Sprintf("%s%x_%x", symlinkPlaceholderPrefix, dev, ino)
}

// Apply overlays the set fields of rec onto the real owner/mode
// triple, then clamps uid/gid above the configured ceilings to 0
// (spec.md §3 "UID/GID clamping").
func (s *Store) Apply(rec record.Record, realUID, realGID, realMode uint32) (uid, gid, mode uint32) {
	uid, gid, mode = realUID, realGID, realMode
	if rec.HasUID() {
		uid = rec.UID
	}
	if rec.HasGID() {
		gid = rec.GID
	}
	if rec.HasMode() {
		mode = (realMode &^ 0o7777) | (rec.Mode & 0o7777)
	}
	if uid > s.MaxUID {
		uid = 0
	}
	if gid > s.MaxGID {
		gid = 0
	}
	return
}

// RealMode computes the fixed real-backing-mode convention (spec.md
// §3 invariants, original_source grootfs.c real_mode_for): user
// read-write plus group/other-read always, execute bits added for
// directories and for files whose projected mode requests user-execute.
func RealMode(projectedMode uint32, isDir bool) uint32 {
	const base = 0644
	mode := uint32(base)
	if isDir || projectedMode&0o100 != 0 {
		mode |= 0o111
	}
	return mode
}

func applyOpts(opts []ReadOption) readOpts {
	var o readOpts
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// GC removes symlink placeholders whose dev/ino no longer names a
// live symlink anywhere under the backing root. This resolves the
// Open Question in spec.md §9 in favor of opportunistic collection
// rather than leaving stale placeholders unbounded: a caller (the
// bring-up orchestrator, typically) invokes this once at session
// start rather than paying a tree walk on every unlink.
func (s *Store) GC(root string) error {
	placeholders, err := s.listPlaceholders(root)
	if err != nil || len(placeholders) == 0 {
		return err
	}

	live := make(map[string]bool, len(placeholders))
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		var st unix.Stat_t
		if err := unix.Lstat(path, &st); err != nil {
			return nil
		}
		live[placeholderName(uint64(st.Dev), st.Ino)] = true
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("grootfs: gc walk: %w", walkErr)
	}

	for _, name := range placeholders {
		if live[name] {
			continue
		}
		if err := unix.Unlinkat(s.RootFd, name, 0); err != nil && !errors.Is(err, unix.ENOENT) {
			return fmt.Errorf("grootfs: gc unlink %q: %w", name, err)
		}
	}
	return nil
}

// GCPath opens root just long enough to run GC against it, for callers
// (the bring-up orchestrator) that have not yet constructed a Store
// bound to that root.
func GCPath(root string) error {
	fd, err := unix.Open(root, unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("grootfs: open backing root %q for gc: %w", root, err)
	}
	defer unix.Close(fd)
	return New(fd, 0, 0).GC(root)
}

func (s *Store) listPlaceholders(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("grootfs: gc list root: %w", err)
	}
	var out []string
	for _, e := range entries {
		if len(e.Name()) > len(symlinkPlaceholderPrefix) && e.Name()[:len(symlinkPlaceholderPrefix)] == symlinkPlaceholderPrefix {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
