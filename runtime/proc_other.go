//go:build !linux

package runtime

import "os/exec"

// setPlatformSpecificAttrs is a no-op outside Linux; orphan cleanup
// relies on the monitor's Kill there.
func setPlatformSpecificAttrs(cmd *exec.Cmd) {}
