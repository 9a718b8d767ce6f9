package bringup

import (
	"fmt"

	"github.com/moby/sys/mountinfo"

	"github.com/cloudfoundry/grootfs/internal/xattrstore"
	"github.com/cloudfoundry/grootfs/session"
)

// mountAll builds and mounts the InodeEmbedder root for every target
// (spec.md §4.7 step 6). A target that fails to build or mount is
// logged and skipped, not fatal to the others: bring-up succeeds as
// long as at least one target comes up.
func mountAll(opts Options, newRoot RootFactory) ([]*session.Session, error) {
	sessions := make([]*session.Session, 0, len(opts.Targets))

	for _, t := range opts.Targets {
		if err := xattrstore.GCPath(t.BackingPath); err != nil && opts.Log != nil {
			opts.Log.Warnf("gc stale symlink placeholders under %q: %v", t.BackingPath, err)
		}

		root, err := newRoot(t.BackingPath, opts.NodeOpts, opts.Log)
		if err != nil {
			if opts.Log != nil {
				opts.Log.Warnf("build root for %q: %v, skipping", t.BackingPath, err)
			}
			continue
		}

		s, err := session.Start(t.MountPoint, root, opts.FSOptions, opts.Log.With("target", t.MountPoint))
		if err != nil {
			if opts.Log != nil {
				opts.Log.Warnf("mount %q: %v, skipping", t.MountPoint, err)
			}
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// confirmMounts verifies every target actually shows up in
// /proc/self/mountinfo as our filesystem type, a belt-and-braces check
// beyond the bare mount(2) return value (spec.md §8 "bring-up").
func confirmMounts(targets []Target) error {
	mounts, err := mountinfo.GetMounts(func(i *mountinfo.Info) (skip, stop bool) {
		return i.FSType != FSType, false
	})
	if err != nil {
		return fmt.Errorf("read mountinfo: %w", err)
	}

	seen := make(map[string]bool, len(mounts))
	for _, m := range mounts {
		seen[m.Mountpoint] = true
	}

	var missing []string
	for _, t := range targets {
		if !seen[t.MountPoint] {
			missing = append(missing, t.MountPoint)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("not found in mountinfo as %s: %v", FSType, missing)
	}
	return nil
}
