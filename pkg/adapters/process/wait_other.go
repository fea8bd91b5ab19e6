//go:build !linux

package process

import "os"

// waitExited is a no-op where waitid(WNOWAIT) is unavailable; the window
// between the reaped check and cmd.Wait is then left open.
func waitExited(p *os.Process) {}
