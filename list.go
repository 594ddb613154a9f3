package serial

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// serialDeviceName matches the kernel names of real UART drivers
var serialDeviceName = regexp.MustCompile(`^tty(USB|ACM|S|AMA|mxc|O|SAC|THS)\d+$`)

// detailedPorts is replaced in tests
var detailedPorts = enumerator.GetDetailedPortsList

// ListPorts returns the character devices under /dev that look like serial
// ports, sorted by path. Virtual terminals and ptys are never included.
func ListPorts() ([]string, error) {
	return listPortsIn("/dev")
}

func listPortsIn(devDir string) ([]string, error) {
	entries, err := os.ReadDir(devDir)
	if err != nil {
		return nil, err
	}

	var ports []string
	for _, entry := range entries {
		if !serialDeviceName.MatchString(entry.Name()) {
			continue
		}
		fullPath := filepath.Join(devDir, entry.Name())
		if isCharacterDevice(fullPath) {
			ports = append(ports, fullPath)
		}
	}
	sort.Strings(ports)
	return ports, nil
}

// isCharacterDevice checks if the given path is a character device
func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// PortInfo describes a serial device and who, if anyone, holds its lock
type PortInfo struct {
	Name         string
	Path         string
	Description  string
	IsUSB        bool
	VendorID     string
	ProductID    string
	SerialNumber string
	Product      string
	LockPID      int
	Locked       bool
	// USBErr says why USB metadata is missing for a USB port
	USBErr error
}

// GetPortInfo returns detailed information about a specific port. lockDir
// selects where lock files are looked up; empty means DefaultLockDir.
func GetPortInfo(portPath, lockDir string) (*PortInfo, error) {
	if !isCharacterDevice(portPath) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, portPath)
	}
	return describePort(portPath, lockDir), nil
}

func describePort(portPath, lockDir string) *PortInfo {
	name := filepath.Base(portPath)
	info := &PortInfo{
		Name:        name,
		Path:        portPath,
		Description: getPortDescription(name),
	}
	info.LockPID, info.Locked = NewLocker(lockDir).Holder(portPath)

	if strings.HasPrefix(name, "ttyUSB") || strings.HasPrefix(name, "ttyACM") {
		info.USBErr = enrichUSBInfo(info)
	}
	return info
}

// getPortDescription provides human-readable descriptions for different port types
func getPortDescription(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return "USB Serial Port"
	case strings.HasPrefix(name, "ttyACM"):
		return "USB CDC/ACM Device"
	case strings.HasPrefix(name, "ttyAMA"):
		return "ARM Serial Port"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial Port"
	case strings.HasPrefix(name, "ttySAC"):
		return "Samsung Serial Port"
	case strings.HasPrefix(name, "ttyTHS"):
		return "Tegra Serial Port"
	case strings.HasPrefix(name, "ttyO"):
		return "OMAP Serial Port"
	case strings.HasPrefix(name, "ttyS"):
		return "Standard Serial Port"
	default:
		return "Serial Port"
	}
}

// enrichUSBInfo fills the USB fields from the system enumerator
func enrichUSBInfo(info *PortInfo) error {
	ports, err := detailedPorts()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUSBInfoNotAvailable, err)
	}
	for _, p := range ports {
		if p.Name != info.Path || !p.IsUSB {
			continue
		}
		info.IsUSB = true
		info.VendorID = p.VID
		info.ProductID = p.PID
		info.SerialNumber = p.SerialNumber
		info.Product = p.Product
		return nil
	}
	return ErrUSBInfoNotAvailable
}
