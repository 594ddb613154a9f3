package serial

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockerPath(t *testing.T) {
	l := NewLocker("/var/lock")
	tests := []struct {
		device string
		want   string
	}{
		{"/dev/ttyUSB0", "/var/lock/LCK..ttyUSB0"},
		{"/dev/ttyS1", "/var/lock/LCK..ttyS1"},
		{"ttyACM3", "/var/lock/LCK..ttyACM3"},
	}
	for _, tt := range tests {
		if got := l.Path(tt.device); got != tt.want {
			t.Errorf("Path(%q) = %q, want %q", tt.device, got, tt.want)
		}
	}

	if NewLocker("").Dir != DefaultLockDir {
		t.Error("empty dir should fall back to DefaultLockDir")
	}
}

func TestLockRelock(t *testing.T) {
	l := NewLocker(t.TempDir())
	const dev = "/dev/ttyUSB0"

	require.NoError(t, l.Lock(dev))

	err := l.Lock(dev)
	require.ErrorIs(t, err, ErrDeviceInUse)
	var locked *LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, os.Getpid(), locked.PID)
	assert.Equal(t, dev, locked.Device)

	l.Unlock(dev)
	require.NoError(t, l.Lock(dev))
	l.Unlock(dev)
}

func TestLockFileContents(t *testing.T) {
	l := NewLocker(t.TempDir())
	require.NoError(t, l.Lock("/dev/ttyS0"))
	defer l.Unlock("/dev/ttyS0")

	data, err := os.ReadFile(l.Path("/dev/ttyS0"))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%10d\n", os.Getpid()), string(data))
}

func TestLockRemovesStaleFiles(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"dead pid", fmt.Sprintf("%10d\n", 0x3fffffff)},
		{"zero pid", "         0\n"},
		{"negative pid", "-5\n"},
		{"garbage", "not a pid"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLocker(t.TempDir())
			path := l.Path("/dev/ttyUSB1")
			require.NoError(t, os.WriteFile(path, []byte(tt.contents), 0o644))

			require.NoError(t, l.Lock("/dev/ttyUSB1"))
			pid, alive := l.Holder("/dev/ttyUSB1")
			assert.True(t, alive)
			assert.Equal(t, os.Getpid(), pid)
		})
	}
}

func TestLockFailsInMissingDirectory(t *testing.T) {
	l := NewLocker(filepath.Join(t.TempDir(), "missing"))
	err := l.Lock("/dev/ttyUSB0")
	assert.ErrorIs(t, err, ErrLockFailed)
	assert.False(t, errors.Is(err, ErrDeviceInUse))
}

func TestUnlockIgnoresMissingFile(t *testing.T) {
	l := NewLocker(t.TempDir())
	l.Unlock("/dev/ttyUSB9")

	pid, alive := l.Holder("/dev/ttyUSB9")
	assert.Zero(t, pid)
	assert.False(t, alive)
}

func TestClear(t *testing.T) {
	l := NewLocker(t.TempDir())
	const dev = "/dev/ttyUSB2"

	removed, err := l.Clear(dev)
	require.NoError(t, err)
	assert.False(t, removed, "nothing to clear")

	require.NoError(t, l.Lock(dev))
	_, err = l.Clear(dev)
	var locked *LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, os.Getpid(), locked.PID)
	_, alive := l.Holder(dev)
	assert.True(t, alive, "a live lock must survive Clear")

	l.Unlock(dev)
	require.NoError(t, os.WriteFile(l.Path(dev), []byte(fmt.Sprintf("%10d\n", 0x3fffffff)), 0o644))
	removed, err = l.Clear(dev)
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = os.Stat(l.Path(dev))
	assert.True(t, os.IsNotExist(err))
}
