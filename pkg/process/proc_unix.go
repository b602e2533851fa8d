//go:build !windows

package process

import (
    "errors"
    "os"
    "os/exec"
    "syscall"
)

func configureProcess(cmd *exec.Cmd) {
    cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup delivers sig to the process group of cmd so that children
// forked by the shell are reached too.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
    if cmd == nil || cmd.Process == nil {
        return nil
    }
    pid := cmd.Process.Pid
    if pid <= 0 {
        return nil
    }
    if pgid, err := syscall.Getpgid(pid); err == nil && pgid > 0 {
        if err := syscall.Kill(-pgid, sig); err != nil && err != syscall.ESRCH {
            return err
        }
        return nil
    }
    if err := cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
        return err
    }
    return nil
}

func terminate(cmd *exec.Cmd) error { return signalGroup(cmd, syscall.SIGTERM) }

func kill(cmd *exec.Cmd) { _ = signalGroup(cmd, syscall.SIGKILL) }
