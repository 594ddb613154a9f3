package serial

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultLockDir is where UUCP-style lock files live
const DefaultLockDir = "/var/lock"

// Locker manages LCK..<name> files compatible with minicom, cu and friends.
// A lock is advisory: it only keeps out processes that check it.
type Locker struct {
	Dir string
}

// NewLocker returns a Locker for dir, or DefaultLockDir when dir is empty
func NewLocker(dir string) *Locker {
	if dir == "" {
		dir = DefaultLockDir
	}
	return &Locker{Dir: dir}
}

// Path returns the lock file used for device
func (l *Locker) Path(device string) string {
	return filepath.Join(l.Dir, "LCK.."+filepath.Base(device))
}

// Lock takes the lock for device. A lock held by a live process yields a
// *LockedError (errors.Is ErrDeviceInUse); a stale one is removed first.
func (l *Locker) Lock(device string) error {
	path := l.Path(device)

	if pid, exists := readLockPID(path); exists {
		if processAlive(pid) {
			return &LockedError{Device: device, PID: pid}
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: removing stale %s: %w", ErrLockFailed, path, err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			// Lost a race with another locker
			pid, _ := readLockPID(path)
			return &LockedError{Device: device, PID: pid}
		}
		return fmt.Errorf("%w: %w", ErrLockFailed, err)
	}

	if _, err := fmt.Fprintf(f, "%10d\n", os.Getpid()); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("%w: writing %s: %w", ErrLockFailed, path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: closing %s: %w", ErrLockFailed, path, err)
	}
	return nil
}

// Unlock removes the lock file for device. Errors are ignored.
func (l *Locker) Unlock(device string) {
	_ = os.Remove(l.Path(device))
}

// Clear removes the lock for device if its holder has exited. A live holder
// yields a *LockedError. removed is false when there was no lock file.
func (l *Locker) Clear(device string) (removed bool, err error) {
	path := l.Path(device)
	pid, exists := readLockPID(path)
	if !exists {
		return false, nil
	}
	if processAlive(pid) {
		return false, &LockedError{Device: device, PID: pid}
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: removing %s: %w", ErrLockFailed, path, err)
	}
	return true, nil
}

// Holder reports the PID recorded in the lock file and whether that
// process is still running
func (l *Locker) Holder(device string) (pid int, alive bool) {
	pid, exists := readLockPID(l.Path(device))
	if !exists {
		return 0, false
	}
	return pid, processAlive(pid)
}

// readLockPID returns the PID stored at path. exists is false only when the
// file is absent; an unreadable or garbled file yields pid 0.
func readLockPID(path string) (pid int, exists bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, !errors.Is(err, fs.ErrNotExist)
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, true
	}
	return pid, true
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := unix.Getsid(pid)
	return err == nil || err == unix.EPERM
}
