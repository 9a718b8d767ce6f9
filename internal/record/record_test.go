package record

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Record{
		{},
		{Flags: UIDSet, UID: 1000},
		{Flags: UIDSet | GIDSet | ModeSet, UID: 1000, GID: 1000, Mode: 0640},
		{Flags: ModeSet, Mode: 0555},
	}
	for _, want := range cases {
		got, err := Decode(want.Encode())
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if diff := pretty.Compare(want, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestEncodeIsBigEndian(t *testing.T) {
	r := Record{Flags: 1, UID: 0x01020304, GID: 0, Mode: 0}
	buf := r.Encode()
	if buf[0] != 0 || buf[3] != 1 {
		t.Fatalf("Flags not big-endian in %x", buf[:4])
	}
	if buf[4] != 0x01 || buf[5] != 0x02 || buf[6] != 0x03 || buf[7] != 0x04 {
		t.Fatalf("UID not big-endian in %x", buf[4:8])
	}
}

func TestDecodeWrongSize(t *testing.T) {
	if _, err := Decode(make([]byte, 15)); err == nil {
		t.Fatal("expected error for wrong-sized buffer")
	}
	if _, err := Decode(make([]byte, 17)); err == nil {
		t.Fatal("expected error for wrong-sized buffer")
	}
}

func TestWithHelpers(t *testing.T) {
	r := Record{}.WithUID(42).WithGID(43).WithMode(0700)
	if !r.HasUID() || !r.HasGID() || !r.HasMode() {
		t.Fatalf("expected all flags set, got %+v", r)
	}
	if r.UID != 42 || r.GID != 43 || r.Mode != 0700 {
		t.Fatalf("unexpected values: %+v", r)
	}
}
