//go:build windows

package supervisor

import (
	"os"
	"os/exec"
)

func setProcGroup(cmd *exec.Cmd) {
	// Windows has no process groups in the POSIX sense; rely on Kill below.
}

// terminateGroup has no graceful equivalent on Windows; fall back to Kill.
func terminateGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func killGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
