package xattrstore

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/cloudfoundry/grootfs/internal/record"
)

func openRoot(t *testing.T) (int, string) {
	t.Helper()
	dir := t.TempDir()
	fd, err := unix.Open(dir, unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("open root: %v", err)
	}
	t.Cleanup(func() { unix.Close(fd) })
	return fd, dir
}

func TestSetThenGetByParent(t *testing.T) {
	rootFd, dir := openRoot(t)
	store := New(rootFd, 65535, 65535)

	if err := os.WriteFile(dir+"/f", nil, 0640); err != nil {
		t.Fatal(err)
	}

	want := record.Record{}.WithUID(1000).WithGID(1000).WithMode(0640)
	if err := store.Set(rootFd, "f", want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := store.Get(rootFd, "f")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestGetMissingIsZeroRecord(t *testing.T) {
	rootFd, dir := openRoot(t)
	store := New(rootFd, 65535, 65535)
	if err := os.WriteFile(dir+"/f", nil, 0640); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(rootFd, "f")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != (record.Record{}) {
		t.Fatalf("expected zero record, got %+v", got)
	}
}

func TestSymlinkPlaceholderLifecycle(t *testing.T) {
	rootFd, dir := openRoot(t)
	store := New(rootFd, 65535, 65535)

	if err := os.Symlink("target", dir+"/s"); err != nil {
		t.Fatal(err)
	}
	var st unix.Stat_t
	if err := unix.Lstat(dir+"/s", &st); err != nil {
		t.Fatal(err)
	}

	want := record.Record{}.WithUID(42).WithGID(43)
	if err := store.SetSymlink(uint64(st.Dev), st.Ino, want); err != nil {
		t.Fatalf("SetSymlink: %v", err)
	}

	got, err := store.GetSymlink(uint64(st.Dev), st.Ino)
	if err != nil {
		t.Fatalf("GetSymlink: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	foundPlaceholder := false
	for _, e := range entries {
		if e.Name() != "s" {
			foundPlaceholder = true
		}
	}
	if !foundPlaceholder {
		t.Fatal("expected a placeholder file in the backing root")
	}

	if err := store.UnlinkSymlinkPlaceholder(uint64(st.Dev), st.Ino); err != nil {
		t.Fatalf("UnlinkSymlinkPlaceholder: %v", err)
	}
	got, err = store.GetSymlink(uint64(st.Dev), st.Ino)
	if err != nil {
		t.Fatalf("GetSymlink after unlink: %v", err)
	}
	if got != (record.Record{}) {
		t.Fatalf("expected zero record after unlink, got %+v", got)
	}
}

func TestApplyClamp(t *testing.T) {
	store := New(-1, 65535, 65535)
	rec := record.Record{}.WithUID(100000)
	uid, _, _ := store.Apply(rec, 1000, 1000, 0644)
	if uid != 0 {
		t.Fatalf("expected clamp to 0, got %d", uid)
	}
}

func TestApplyUnsetFieldsFallThrough(t *testing.T) {
	store := New(-1, 65535, 65535)
	uid, gid, mode := store.Apply(record.Record{}, 1000, 1000, 0644)
	if uid != 1000 || gid != 1000 || mode != 0644 {
		t.Fatalf("expected real values to pass through, got uid=%d gid=%d mode=%o", uid, gid, mode)
	}
}

func TestRealModeConvention(t *testing.T) {
	if m := RealMode(0555, true); m != 0755 {
		t.Fatalf("dir mode = %o, want 0755", m)
	}
	if m := RealMode(0600, false); m != 0644 {
		t.Fatalf("non-exec file mode = %o, want 0644", m)
	}
	if m := RealMode(0700, false); m != 0755 {
		t.Fatalf("exec file mode = %o, want 0755", m)
	}
}
