//go:build windows

package process

import "os/exec"

func configureProcess(cmd *exec.Cmd) {}

func terminate(cmd *exec.Cmd) error {
    if cmd == nil || cmd.Process == nil {
        return nil
    }
    return cmd.Process.Kill()
}

func kill(cmd *exec.Cmd) { _ = terminate(cmd) }
