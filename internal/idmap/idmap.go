// Package idmap holds the ID-mapping specifications the bring-up
// orchestrator consumes, and applies them via the external
// newuidmap/newgidmap setuid helpers.
//
// Building a mapping by reading /etc/subuid or /etc/subgid is
// explicitly out of scope (spec.md §1): those files, and the identity
// of the invoking user, are resolved by an external collaborator and
// handed to this package as an already-built Mapping.
package idmap

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// Entry is one line of a uid_map/gid_map: Inside IDs starting at
// InsideID map to Count consecutive host IDs starting at OutsideID.
type Entry struct {
	InsideID  uint32
	OutsideID uint32
	Count     uint32
}

// Mapping is a complete ID-mapping specification for one namespace
// dimension (UID or GID). Entry 0 is always the identity entry
// {0, realID, 1} per spec.md §4.7 step 1.
type Mapping struct {
	Entries []Entry
	// Limited is true when the mapping has only the identity entry,
	// i.e. the user had no configured sub-ID ranges.
	Limited bool
}

// NewIdentityMapping returns the minimal one-entry mapping for a user
// with no configured sub-ID ranges (spec.md §4.7 step 1, "a user with
// no sub-ranges yields a three-entry mapping" — three fields per
// entry, one entry here).
func NewIdentityMapping(realID uint32) Mapping {
	return Mapping{Entries: []Entry{{InsideID: 0, OutsideID: realID, Count: 1}}, Limited: true}
}

func (m Mapping) args(pid int) []string {
	args := []string{strconv.Itoa(pid)}
	for _, e := range m.Entries {
		args = append(args, strconv.FormatUint(uint64(e.InsideID), 10),
			strconv.FormatUint(uint64(e.OutsideID), 10),
			strconv.FormatUint(uint64(e.Count), 10))
	}
	return args
}

// Apply invokes the named setuid helper ("newuidmap" or "newgidmap")
// against pid with this mapping's entries, in increasing
// inside-ID order, per spec.md §6. The caller's own real uid/gid must
// already resolve against the host identity when this runs — see
// StartHelper/Helper.Trigger for the case where the caller has
// already unshared its own user namespace by the time the mapping
// needs writing.
func (m Mapping) Apply(helperPath string, pid int) error {
	cmd := exec.Command(helperPath, m.args(pid)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("grootfs: %s failed: %w (%s)", helperPath, err, out)
	}
	return nil
}

// Helper is an ID-map helper process forked before its caller unshares
// its user namespace, then blocked on a synchronization pipe until
// Trigger lets it proceed. This mirrors original_source/groot-ns.c's
// start_uidmap_process: the helper must be forked while still in the
// host namespace so that when it eventually execs newuidmap/newgidmap,
// that process's own real uid/gid still resolve against the host
// identity for the /etc/subuid / /etc/subgid permission check — a
// child forked *after* the caller's unshare would inherit the caller's
// fresh, unmapped namespace and see only the overflow uid instead
// (spec.md §4.7 steps 2-5).
type Helper struct {
	cmd  *exec.Cmd
	wake *os.File
}

// StartHelper forks helperPath's process now (while the caller has not
// yet unshared) but makes it block on an inherited pipe before
// exec'ing into the mapping helper; the actual invocation is deferred
// until Trigger is called, by which point the caller is expected to
// have unshared and pid to be a valid, not-yet-mapped namespace.
func StartHelper(helperPath string, pid int, m Mapping) (*Helper, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("grootfs: create id-map helper sync pipe: %w", err)
	}
	defer r.Close()

	shArgs := append([]string{"-c", `read -r wake <&3 && exec "$0" "$@"`, helperPath}, m.args(pid)...)
	cmd := exec.Command("sh", shArgs...)
	cmd.ExtraFiles = []*os.File{r}

	if err := cmd.Start(); err != nil {
		w.Close()
		return nil, fmt.Errorf("grootfs: start id-map helper %s: %w", helperPath, err)
	}
	return &Helper{cmd: cmd, wake: w}, nil
}

// Trigger wakes the helper forked by StartHelper and waits for it to
// finish invoking the mapping helper. Loss of the wake byte, or a
// nonzero exit from the mapping helper, is fatal — "Failed to setup
// uid/gid mappings" (spec.md §4.7 step 5).
func (h *Helper) Trigger() error {
	defer h.wake.Close()
	if _, err := h.wake.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("grootfs: failed to setup uid/gid mappings: wake helper: %w", err)
	}
	if err := h.cmd.Wait(); err != nil {
		return fmt.Errorf("grootfs: failed to setup uid/gid mappings: %w", err)
	}
	return nil
}
