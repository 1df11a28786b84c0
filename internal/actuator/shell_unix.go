//go:build !windows

package actuator

import (
	"errors"
	"os/exec"
	"syscall"
)

// configureProcess runs cmd in its own process group. Cancellation
// interrupts the whole group; the returned func kills whatever is left.
func configureProcess(cmd *exec.Cmd) (kill func()) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd, syscall.SIGINT)
	}
	return func() { _ = signalGroup(cmd, syscall.SIGKILL) }
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
