package bringup

import (
	"testing"

	"github.com/cloudfoundry/grootfs/grootlog"
	"github.com/cloudfoundry/grootfs/node"
	"github.com/sirupsen/logrus"
)

func TestRunNoTargetsIsNoop(t *testing.T) {
	opts := Options{Log: grootlog.New(logrus.NewEntry(logrus.New()), false)}
	if err := Run(opts, NewRootFactory()); err != nil {
		t.Fatalf("Run with no targets: %v", err)
	}
}

func TestNewRootFactoryDropsRootHandle(t *testing.T) {
	backing := t.TempDir()
	factory := NewRootFactory()
	root, err := factory(backing, node.Options{MaxUID: 65535, MaxGID: 65535}, grootlog.New(logrus.NewEntry(logrus.New()), false))
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if root == nil {
		t.Fatalf("expected a non-nil InodeEmbedder")
	}
}
