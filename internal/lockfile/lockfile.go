// Package lockfile guards the state directory against concurrent WeekPilot
// processes. Two instances sharing one state directory would race the job
// queue and double-send weekly kickoffs, so startup takes an exclusive
// flock and holds it for the process lifetime. The kernel releases the
// lock when the process exits, cleanly or not.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the lock file created inside the state directory.
const LockFileName = "weekpilot.lock"

// Lock is a held state-directory lock.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock takes an exclusive non-blocking lock on the state directory,
// creating the directory if needed. When the lock is already held it
// returns a HeldError identifying the owning process.
func AcquireLock(stateDir string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", stateDir, err)
	}

	path := filepath.Join(stateDir, LockFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		pid, running := holderPID(path)
		slog.Error("Lockfile.AcquireLock: state directory already locked", "path", path, "holderPID", pid, "holderRunning", running)
		return nil, &HeldError{Path: path, HolderPID: pid, HolderRunning: running, cause: err}
	}

	// Record the holder for the message a second instance prints.
	if err := file.Truncate(0); err == nil {
		fmt.Fprintf(file, "pid=%d\nstarted=%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
		file.Sync()
	}

	slog.Info("Lockfile.AcquireLock: locked state directory", "path", path, "pid", os.Getpid())
	return &Lock{path: path, file: file}, nil
}

// Release drops the lock and removes the lock file. Safe to call more
// than once.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("Lockfile.Release: unlock failed", "path", l.path, "error", err)
	}
	if err := l.file.Close(); err != nil {
		slog.Warn("Lockfile.Release: close failed", "path", l.path, "error", err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lockfile.Release: remove failed", "path", l.path, "error", err)
	}
	l.file = nil
	slog.Debug("Lockfile.Release: released state directory", "path", l.path)
	return nil
}

// HeldError reports a lock already held by another WeekPilot process.
type HeldError struct {
	Path          string
	HolderPID     int
	HolderRunning bool
	cause         error
}

func (e *HeldError) Error() string {
	msg := fmt.Sprintf("another WeekPilot instance is already running against this state directory (lock file %s)", e.Path)
	switch {
	case e.HolderPID > 0 && e.HolderRunning:
		msg += fmt.Sprintf("; held by pid %d", e.HolderPID)
	case e.HolderPID > 0:
		msg += fmt.Sprintf("; last held by pid %d, which is no longer running. Remove the lock file if no other instance uses this directory", e.HolderPID)
	}
	return msg
}

func (e *HeldError) Unwrap() error {
	return e.cause
}

// holderPID reads the owning pid out of an existing lock file and checks
// whether that process is still alive.
func holderPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	for _, line := range strings.Split(string(data), "\n") {
		var pid int
		if _, err := fmt.Sscanf(line, "pid=%d", &pid); err == nil && pid > 0 {
			return pid, processAlive(pid)
		}
	}
	return 0, false
}

// processAlive sends signal 0 to a pid, which checks existence without
// delivering anything.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
