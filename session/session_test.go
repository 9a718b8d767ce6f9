package session

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/cloudfoundry/grootfs/grootlog"
	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/sirupsen/logrus"
)

type trivialRoot struct {
	gofs.Inode
}

func TestStartRunCloseUnmounts(t *testing.T) {
	target := t.TempDir()

	sess, err := Start(target, &trivialRoot{}, &gofs.Options{}, grootlog.New(logrus.NewEntry(logrus.New()), false))
	if err != nil {
		t.Skipf("mount unavailable in this environment: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sess.Run(); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()

	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	wg.Wait()

	if !sess.Exited() {
		t.Errorf("Exited() = false after Close")
	}
}

func TestStartRejectsBadTarget(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "does-not-exist", "nested")
	_, err := Start(bad, &trivialRoot{}, &gofs.Options{}, grootlog.New(logrus.NewEntry(logrus.New()), false))
	if err == nil {
		t.Fatalf("expected an error mounting onto a nonexistent directory")
	}
}
