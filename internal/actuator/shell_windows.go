//go:build windows

package actuator

import "os/exec"

func configureProcess(cmd *exec.Cmd) (kill func()) {
	cmd.Cancel = func() error { return cmd.Process.Kill() }
	return func() {}
}
