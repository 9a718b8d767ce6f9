package bringup

import (
	"fmt"

	"github.com/moby/sys/capability"
)

// raiseAmbientCapabilities reads this process's permitted capability
// set and raises every bit already present there into the ambient
// set, so the capabilities survive once the subsequent exec runs
// inside the new user namespace (spec.md §4.7 step 8), mirroring
// moby-moby's own ambient-capability handling.
func raiseAmbientCapabilities() error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("load process capabilities: %w", err)
	}
	if err := caps.Load(); err != nil {
		return fmt.Errorf("load process capabilities: %w", err)
	}

	for _, c := range capability.List() {
		if caps.Get(capability.PERMITTED, c) {
			caps.Set(capability.AMBIENT, c)
		}
	}

	if err := caps.Apply(capability.CAPS | capability.AMBS); err != nil {
		return fmt.Errorf("apply ambient capabilities: %w", err)
	}
	return nil
}
