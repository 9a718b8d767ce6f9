// Package bringup orchestrates the unprivileged sequence that turns a
// fresh process into a set of mounted grootfs trees: raising
// no-new-privileges, unsharing the user and mount namespaces, writing
// the ID maps via the external newuidmap/newgidmap helpers, mounting
// at each target, confirming the mount, raising ambient capabilities,
// and running one session per target to completion.
//
// The original design (spec.md §4.7) splits this across four roles —
// launcher, ID-map helper, worker, and the in-kernel driver — with the
// device descriptor handed from launcher to worker over a socketpair.
// That handoff exists because the launcher, not the worker, is the one
// that needs to be inside the new user namespace to perform the mount.
// github.com/hanwen/go-fuse/v2's Mount does its own mount(2) call
// internally and has no public way to adopt an already-open device
// descriptor from another process, so here the launcher and worker
// collapse into one orchestrator process: it unshares its own
// namespaces and then calls Mount itself for every target, which is
// equivalent from the namespace's point of view since Mount is called
// from inside the already-unshared process. The ID-map helpers remain
// separate processes: each is forked before the unshare, blocks until
// woken, and then execs the external setuid binary (see
// idmap.StartHelper).
package bringup

import (
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/cloudfoundry/grootfs/grootlog"
	"github.com/cloudfoundry/grootfs/internal/idmap"
	"github.com/cloudfoundry/grootfs/node"
	gofs "github.com/hanwen/go-fuse/v2/fs"
)

// FSType is the filesystem type name grootfs mounts itself as; bring-up
// confirms every target appears under this type in /proc/self/mountinfo.
const FSType = "fuse.fuse-grootfs"

// Target names one backing root to project and the directory to
// project it onto.
type Target struct {
	MountPoint  string
	BackingPath string
}

// Options configures one bring-up run.
type Options struct {
	Targets []Target

	UIDMapping idmap.Mapping
	GIDMapping idmap.Mapping
	// NewUIDMapPath/NewGIDMapPath locate the external setuid helpers
	// (spec.md §4.7 step 5). Defaults to "newuidmap"/"newgidmap"
	// resolved against $PATH when empty.
	NewUIDMapPath, NewGIDMapPath string

	FSOptions *gofs.Options
	NodeOpts  node.Options

	Log *grootlog.Logger
}

// RootFactory builds the InodeEmbedder root for one target's backing
// path. node.NewRoot satisfies this after dropping its *node.Root
// return value; see NewRootFactory.
type RootFactory func(backingPath string, opts node.Options, log *grootlog.Logger) (gofs.InodeEmbedder, error)

// NewRootFactory adapts node.NewRoot to RootFactory, discarding the
// *node.Root handle bring-up itself has no further use for.
func NewRootFactory() RootFactory {
	return func(backingPath string, opts node.Options, log *grootlog.Logger) (gofs.InodeEmbedder, error) {
		root, _, err := node.NewRoot(backingPath, opts, log)
		return root, err
	}
}

// Run executes the full bring-up sequence and blocks running every
// target's session until all of them have returned, reporting the
// first session error if any (spec.md §4.7, §5).
func Run(opts Options, newRoot RootFactory) error {
	if len(opts.Targets) == 0 {
		return nil
	}

	if err := raiseNoNewPrivs(); err != nil {
		return fmt.Errorf("grootfs: %w", err)
	}

	uidHelper, gidHelper := idMapHelperPaths(opts)
	pid := os.Getpid()

	uidH, err := idmap.StartHelper(uidHelper, pid, opts.UIDMapping)
	if err != nil {
		return fmt.Errorf("grootfs: failed to setup uid/gid mappings: %w", err)
	}
	gidH, err := idmap.StartHelper(gidHelper, pid, opts.GIDMapping)
	if err != nil {
		return fmt.Errorf("grootfs: failed to setup uid/gid mappings: %w", err)
	}

	if err := unix.Unshare(unix.CLONE_NEWUSER | unix.CLONE_NEWNS); err != nil {
		return fmt.Errorf("grootfs: unshare user+mount namespaces: %w", err)
	}

	if err := uidH.Trigger(); err != nil {
		return err
	}
	if opts.UIDMapping.Limited && opts.Log != nil {
		opts.Log.Warnf("limited user/group support: no configured sub-id ranges")
	}
	if err := gidH.Trigger(); err != nil {
		return err
	}

	sessions, err := mountAll(opts, newRoot)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return fmt.Errorf("grootfs: no targets could be mounted")
	}

	if err := confirmMounts(opts.Targets); err != nil {
		opts.Log.Warnf("mount confirmation: %v", err)
	}

	if err := raiseAmbientCapabilities(); err != nil {
		opts.Log.Warnf("raise ambient capabilities: %v", err)
	}

	var g errgroup.Group
	for _, s := range sessions {
		s := s
		g.Go(s.Run)
	}
	return g.Wait()
}

// raiseNoNewPrivs sets PR_SET_NO_NEW_PRIVS before the namespace
// unshare, preserving the ordering original_source/groot-ns.c fixes
// (spec.md §4.7 step 4 names both but leaves their order to the
// original; SPEC_FULL keeps prctl strictly first).
func raiseNoNewPrivs() error {
	return unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0)
}

// idMapHelperPaths resolves the external newuidmap/newgidmap helper
// paths, defaulting to $PATH lookup when unset.
func idMapHelperPaths(opts Options) (uidHelper, gidHelper string) {
	uidHelper = opts.NewUIDMapPath
	if uidHelper == "" {
		uidHelper = "newuidmap"
	}
	gidHelper = opts.NewGIDMapPath
	if gidHelper == "" {
		gidHelper = "newgidmap"
	}
	return uidHelper, gidHelper
}
