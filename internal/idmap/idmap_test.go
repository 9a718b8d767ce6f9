package idmap

import "testing"

func TestMappingArgsOrdering(t *testing.T) {
	m := Mapping{Entries: []Entry{
		{InsideID: 0, OutsideID: 1000, Count: 1},
		{InsideID: 1, OutsideID: 100000, Count: 65536},
	}}
	got := m.args(42)
	want := []string{"42", "0", "1000", "1", "1", "100000", "65536"}
	if len(got) != len(want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestStartHelperBlocksUntilTriggered verifies the fork-before-unshare
// handshake: the helper process is started (and runnable) immediately,
// but the underlying mapping helper only actually runs once Trigger
// writes the wake byte, mirroring groot-ns.c's start_uidmap_process.
func TestStartHelperBlocksUntilTriggered(t *testing.T) {
	m := NewIdentityMapping(1000)

	// "true" accepts any arguments and exits 0 once exec'd, standing in
	// for newuidmap/newgidmap without needing real sub-id privileges.
	h, err := StartHelper("true", 1, m)
	if err != nil {
		t.Fatalf("StartHelper: %v", err)
	}
	if err := h.Trigger(); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
}

func TestStartHelperPropagatesHelperFailure(t *testing.T) {
	m := NewIdentityMapping(1000)

	h, err := StartHelper("false", 1, m)
	if err != nil {
		t.Fatalf("StartHelper: %v", err)
	}
	if err := h.Trigger(); err == nil {
		t.Fatalf("expected Trigger to surface the helper's nonzero exit")
	}
}
