//go:build linux

package process

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// waitExited blocks until p has terminated without reaping it, so its pid and
// process group stay reserved until cmd.Wait runs.
func waitExited(p *os.Process) {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, p.Pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if !errors.Is(err, unix.EINTR) {
			return
		}
	}
}
