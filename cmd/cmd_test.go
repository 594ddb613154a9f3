package cmd

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-moog/serbert"
)

func TestFilterPorts(t *testing.T) {
	infos := []*serial.PortInfo{
		{Name: "ttyACM0"}, {Name: "ttyAMA0"}, {Name: "ttyS0"}, {Name: "ttySAC1"}, {Name: "ttyUSB0"},
	}

	tests := []struct {
		filter string
		want   []string
	}{
		{"", []string{"ttyACM0", "ttyAMA0", "ttyS0", "ttySAC1", "ttyUSB0"}},
		{"all", []string{"ttyACM0", "ttyAMA0", "ttyS0", "ttySAC1", "ttyUSB0"}},
		{"usb", []string{"ttyACM0", "ttyUSB0"}},
		{"USB", []string{"ttyACM0", "ttyUSB0"}},
		{"standard", []string{"ttyS0"}},
		{"arm", []string{"ttyAMA0"}},
		{"bogus", nil},
	}

	for _, tt := range tests {
		var got []string
		for _, info := range filterPorts(infos, tt.filter) {
			got = append(got, info.Name)
		}
		assert.Equal(t, tt.want, got, "filter %q", tt.filter)
	}
}

func TestGetPortType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"ttyUSB0", "USB Serial"},
		{"ttyACM1", "USB CDC/ACM"},
		{"ttyAMA0", "ARM Serial"},
		{"ttymxc2", "i.MX Serial"},
		{"ttySAC0", "Samsung Serial"},
		{"ttyTHS1", "Tegra Serial"},
		{"ttyO3", "OMAP Serial"},
		{"ttyS4", "Standard Serial"},
		{"null", "Serial Port"},
	}
	for _, tt := range tests {
		if got := getPortType(tt.name); got != tt.want {
			t.Errorf("getPortType(%s) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestLockAndUSBSummary(t *testing.T) {
	assert.Equal(t, "free", lockSummary(&serial.PortInfo{}))
	assert.Equal(t, "pid 42", lockSummary(&serial.PortInfo{Locked: true, LockPID: 42}))
	assert.Equal(t, "stale (42)", lockSummary(&serial.PortInfo{LockPID: 42}))

	assert.Equal(t, "-", usbSummary(&serial.PortInfo{}))
	assert.Equal(t, "0403:6001", usbSummary(&serial.PortInfo{IsUSB: true, VendorID: "0403", ProductID: "6001"}))
	assert.Equal(t, "0403:6001 FT232R", usbSummary(&serial.PortInfo{IsUSB: true, VendorID: "0403", ProductID: "6001", Product: "FT232R"}))
}

func TestLogUSBErr(t *testing.T) {
	orig := log
	t.Cleanup(func() { log = orig })
	var buf bytes.Buffer
	log = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logUSBErr(&serial.PortInfo{Path: "/dev/ttyS0"})
	assert.Empty(t, buf.String())

	logUSBErr(&serial.PortInfo{Path: "/dev/ttyUSB0", USBErr: serial.ErrUSBInfoNotAvailable})
	assert.Contains(t, buf.String(), "USB metadata unavailable")
	assert.Contains(t, buf.String(), "device=/dev/ttyUSB0")
}

func TestRenderPorts(t *testing.T) {
	infos := []*serial.PortInfo{
		{Name: "ttyS0", Path: "/dev/ttyS0", Description: "Standard Serial Port"},
		{Name: "ttyUSB0", Path: "/dev/ttyUSB0", Description: "USB Serial Port", IsUSB: true, VendorID: "0403", ProductID: "6001", Locked: true, LockPID: 7},
	}

	var simple bytes.Buffer
	renderSimple(&simple, infos)
	assert.Equal(t, "/dev/ttyS0\n/dev/ttyUSB0\n", simple.String())

	var table bytes.Buffer
	renderTable(&table, infos)
	out := table.String()
	assert.True(t, strings.HasPrefix(out, "Found 2 serial port(s):"))
	for _, want := range []string{"ttyUSB0", "USB Serial", "0403:6001", "pid 7", "free"} {
		assert.Contains(t, out, want)
	}
}

func TestInfoFields(t *testing.T) {
	plain := infoFields(&serial.PortInfo{Name: "ttyS0", Path: "/dev/ttyS0"})
	assert.Len(t, plain, 5)

	usb := infoFields(&serial.PortInfo{Name: "ttyUSB0", IsUSB: true, VendorID: "0403", ProductID: "6001", SerialNumber: "A1"})
	require.Len(t, usb, 8)
	assert.Equal(t, infoField{"Serial", "A1"}, usb[7])

	var buf bytes.Buffer
	renderInfo(&buf, &serial.PortInfo{Name: "ttyUSB0", Path: "/dev/ttyUSB0", IsUSB: true, VendorID: "0403"})
	assert.Contains(t, buf.String(), "Port Information: /dev/ttyUSB0")
	assert.Contains(t, buf.String(), "Vendor ID")
}

func TestUnlockPort(t *testing.T) {
	l := serial.NewLocker(t.TempDir())

	var out bytes.Buffer
	require.NoError(t, unlockPort(&out, l, "/dev/ttyS9", false))
	assert.Equal(t, "/dev/ttyS9 is not locked\n", out.String())

	// Our own lock belongs to a live process
	require.NoError(t, l.Lock("/dev/ttyS9"))
	err := unlockPort(&out, l, "/dev/ttyS9", false)
	assert.ErrorIs(t, err, serial.ErrDeviceInUse)
	_, alive := l.Holder("/dev/ttyS9")
	assert.True(t, alive)

	out.Reset()
	require.NoError(t, unlockPort(&out, l, "/dev/ttyS9", true))
	assert.Contains(t, out.String(), "Removed lock")
	_, err = os.Stat(l.Path("/dev/ttyS9"))
	assert.True(t, os.IsNotExist(err))
}

func TestUnlockPortStale(t *testing.T) {
	l := serial.NewLocker(t.TempDir())
	// pid 0 never names a live holder
	require.NoError(t, os.WriteFile(l.Path("/dev/ttyS8"), []byte("         0\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, unlockPort(&out, l, "/dev/ttyS8", false))
	assert.Contains(t, out.String(), "Removed stale lock")
}

func TestPrintSignals(t *testing.T) {
	var buf bytes.Buffer
	printSignals(&buf, "/dev/ttyS0", serial.ModemSignals{DTR: true, CTS: true})
	out := buf.String()
	assert.Contains(t, out, "Modem Signals for /dev/ttyS0:")
	assert.Contains(t, out, "CTS (Clear To Send):       HIGH")
	assert.Contains(t, out, "DSR (Data Set Ready):      LOW")
	assert.Contains(t, out, "DTR (Data Terminal Ready): HIGH")
}

func TestRunTestOverPTY(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	go func() {
		buf := make([]byte, 64)
		for {
			n, err := master.Read(buf)
			if err != nil {
				return
			}
			if _, err := master.Write(buf[:n]); err != nil {
				return
			}
		}
	}()

	s, err := settingsFor(t, "-b", "115200", "-n", "64", "-t", "1000000", "-d")
	require.NoError(t, err)
	s.Port = slave.Name()

	var stdout, stderr bytes.Buffer
	require.NoError(t, runTest(context.Background(), s, &stdout, &stderr))

	out := stdout.String()
	assert.Contains(t, out, "Port: "+slave.Name())
	assert.Contains(t, out, " sent:64 errs:0 timeouts:0 corrupt:0 run:")
	assert.Contains(t, out, "Totals: 64 sent, 0 errors, 0 timeouts, 0 corrupt")
	assert.Empty(t, stderr.String())
}

func TestRunTestMissingPort(t *testing.T) {
	s, err := settingsFor(t)
	require.NoError(t, err)
	s.Port = "/dev/serbert-missing"

	var stdout, stderr bytes.Buffer
	err = runTest(context.Background(), s, &stdout, &stderr)
	assert.True(t, errors.Is(err, serial.ErrDeviceNotFound), "got %v", err)
	assert.Empty(t, stdout.String())
}
