// Package proc builds external commands whose lifetime is bounded by their
// context, child processes included.
package proc

import (
	"context"
	"os/exec"
	"time"
)

// WaitDelay bounds how long Wait keeps reading output after the process was
// killed or exited while descendants still hold its pipes.
const WaitDelay = 2 * time.Second

// Command is exec.CommandContext, except that cancellation kills the whole
// process group and Wait gives up on inherited pipes after WaitDelay.
func Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = WaitDelay
	configure(cmd)
	return cmd
}
