//go:build unix

package filelock

import (
	"os"
	"syscall"
)

// processAlive reports whether pid identifies a live process, by
// sending signal 0 — a no-op that only checks for existence and
// permission, per the standard kill(2) idiom.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but we can't signal it: still alive.
	return err == syscall.EPERM
}
