package attrns

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
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

func TestSetGetListRoundTrip(t *testing.T) {
	rootFd, dir := openRoot(t)
	if err := os.WriteFile(dir+"/f", nil, 0640); err != nil {
		t.Fatal(err)
	}
	ns := Namespace{ParentFd: rootFd, Name: "f"}

	if err := ns.Setxattr("myattr", []byte("v"), 0); err != nil {
		t.Fatalf("Setxattr: %v", err)
	}

	buf := make([]byte, 64)
	n, err := ns.Getxattr("myattr", buf)
	if err != nil {
		t.Fatalf("Getxattr: %v", err)
	}
	if string(buf[:n]) != "v" {
		t.Fatalf("got %q, want %q", buf[:n], "v")
	}

	need, err := ns.Listxattr(nil)
	if err != nil {
		t.Fatalf("Listxattr(size 0): %v", err)
	}
	listBuf := make([]byte, need)
	got, err := ns.Listxattr(listBuf)
	if err != nil {
		t.Fatalf("Listxattr: %v", err)
	}
	if got != need {
		t.Fatalf("Listxattr size mismatch: first call said %d, second filled %d", need, got)
	}
	if string(listBuf[:got]) != "myattr\x00" {
		t.Fatalf("got %q, want %q", listBuf[:got], "myattr\x00")
	}
}

func TestListxattrNeverExposesRecordKey(t *testing.T) {
	rootFd, dir := openRoot(t)
	if err := os.WriteFile(dir+"/f", nil, 0640); err != nil {
		t.Fatal(err)
	}
	if err := unix.Setxattr(dir+"/f", "user.grootfs", make([]byte, 16), 0); err != nil {
		t.Skipf("user xattrs unsupported on this filesystem: %v", err)
	}

	ns := Namespace{ParentFd: rootFd, Name: "f"}
	need, err := ns.Listxattr(nil)
	if err != nil {
		t.Fatalf("Listxattr: %v", err)
	}
	if need != 0 {
		t.Fatalf("expected the record key to be hidden, got %d bytes of listing", need)
	}
}

func TestListxattrRangeTooSmall(t *testing.T) {
	rootFd, dir := openRoot(t)
	if err := os.WriteFile(dir+"/f", nil, 0640); err != nil {
		t.Fatal(err)
	}
	ns := Namespace{ParentFd: rootFd, Name: "f"}
	if err := ns.Setxattr("myattr", []byte("v"), 0); err != nil {
		t.Fatalf("Setxattr: %v", err)
	}

	_, err := ns.Listxattr(make([]byte, 1))
	if err != unix.ERANGE {
		t.Fatalf("expected ERANGE, got %v", err)
	}
}
