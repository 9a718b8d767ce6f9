// Package session owns the lifetime of one mounted grootfs channel: the
// fuse.Server driving the request loop, and the signal-triggered
// shutdown path that unmounts it cleanly.
package session

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/cloudfoundry/grootfs/grootlog"
	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// registry tracks every currently-running Session, so the signal
// handler can unmount all of them rather than a single process-wide
// handle: a bring-up mounting more than one target runs one Session
// per target concurrently, and a shutdown signal must tear all of them
// down (spec.md §4.6, §5).
var registry struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
}

func registerSession(s *Session) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.sessions == nil {
		registry.sessions = make(map[*Session]struct{})
	}
	registry.sessions[s] = struct{}{}
}

func unregisterSession(s *Session) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	delete(registry.sessions, s)
}

func activeSessions() []*Session {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	out := make([]*Session, 0, len(registry.sessions))
	for s := range registry.sessions {
		out = append(out, s)
	}
	return out
}

// Session owns one mounted fuse.Server. Requests are dequeued from the
// kernel device, handled to completion and replied before the next
// read; this single-threaded cooperative loop is entirely
// fuse.Server's own (spec.md §5), so Session's job is the surrounding
// lifecycle: start, wait, and shutdown on signal or unmount.
type Session struct {
	Target string

	server *fuse.Server
	log    *grootlog.Logger
	exited atomic.Bool
}

// Start mounts root at target and returns a running Session. The
// caller must eventually call Run (or Close) to release it.
func Start(target string, root gofs.InodeEmbedder, opts *gofs.Options, log *grootlog.Logger) (*Session, error) {
	var o gofs.Options
	if opts != nil {
		o = *opts
	}
	o.SingleThreaded = true
	server, err := gofs.Mount(target, root, &o)
	if err != nil {
		return nil, fmt.Errorf("grootfs: mount %q: %w", target, err)
	}
	return &Session{Target: target, server: server, log: log}, nil
}

// Run registers this session for signal-triggered shutdown, serves
// requests until the kernel reports the device gone or a shutdown
// signal arrives, then unmounts and returns. Multiple Sessions may Run
// concurrently, one per bring-up target; a single shutdown signal
// unmounts all of them.
func (s *Session) Run() error {
	registerSession(s)
	defer unregisterSession(s)

	stop := installSignalHandler()
	defer stop()

	s.server.Serve()
	s.server.Wait()
	s.exited.Store(true)

	if err := s.server.Unmount(); err != nil {
		return fmt.Errorf("grootfs: unmount %q: %w", s.Target, err)
	}
	return nil
}

// Exited reports whether the kernel channel has been marked gone,
// either by ENODEV on read or by a shutdown signal (spec.md §4.6).
func (s *Session) Exited() bool {
	return s.exited.Load()
}

// Close requests an immediate unmount, the same path taken when a
// shutdown signal fires.
func (s *Session) Close() error {
	s.exited.Store(true)
	return s.server.Unmount()
}

// installSignalHandler arranges for SIGHUP, SIGINT and SIGTERM to mark
// every registered session exited and request its unmount; SIGPIPE is
// ignored outright so a client closing its end of a pipe mid-write
// never kills the worker (spec.md §4.6). The returned func stops the
// handler and restores default disposition.
func installSignalHandler() func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	signal.Ignore(syscall.SIGPIPE)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			for _, s := range activeSessions() {
				if s.Exited() {
					continue
				}
				if err := s.Close(); err != nil && s.log != nil {
					s.log.Warnf("unmount on signal for %q: %v", s.Target, err)
				}
			}
		case <-done:
		}
	}()

	return func() {
		close(done)
		signal.Stop(sigs)
	}
}
