/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"
	"github.com/the-moog/serbert"
	"github.com/the-moog/serbert/internal/tui/colors"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List serial ports that can be tested",
	Long: `List the serial ports on the system that serbert can test.

This command scans for communication-capable serial devices including:
- USB serial adapters (ttyUSB*)
- USB CDC/ACM devices (ttyACM*)
- Standard serial ports (ttyS*)
- ARM/Raspberry Pi ports (ttyAMA*)
- And other platform-specific serial devices

Virtual terminals and pseudo-terminals are excluded from the listing. The
table view also shows which ports are locked and by whom.`,
	Run: func(cmd *cobra.Command, args []string) {
		ports, err := serial.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
			os.Exit(1)
		}

		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")

		infos := portInfos(ports, lockDir())
		filtered := filterPorts(infos, filterType)

		if len(filtered) == 0 {
			if filterType != "" && len(infos) > 0 {
				fmt.Printf("No serial ports found matching filter: %s\n", filterType)
			} else {
				fmt.Println("No serial ports found")
			}
			return
		}

		if tableFormat {
			renderTable(os.Stdout, filtered)
		} else {
			renderSimple(os.Stdout, filtered)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("filter", "f", "", "Filter by port type: usb, standard, arm, all")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}

// portInfos looks up every port; ports that vanish meanwhile are skipped
func portInfos(ports []string, dir string) []*serial.PortInfo {
	infos := make([]*serial.PortInfo, 0, len(ports))
	for _, port := range ports {
		info, err := serial.GetPortInfo(port, dir)
		if err != nil {
			log.Debug("skipping port", "device", port, "err", err)
			continue
		}
		logUSBErr(info)
		infos = append(infos, info)
	}
	return infos
}

func logUSBErr(info *serial.PortInfo) {
	if info.USBErr != nil {
		log.Debug("USB metadata unavailable", "device", info.Path, "err", info.USBErr)
	}
}

// filterPorts filters the port list based on the specified filter type
func filterPorts(infos []*serial.PortInfo, filterType string) []*serial.PortInfo {
	filterType = strings.ToLower(filterType)
	if filterType == "" || filterType == "all" {
		return infos
	}

	var filtered []*serial.PortInfo
	for _, info := range infos {
		name := strings.ToLower(info.Name)
		switch filterType {
		case "usb":
			if strings.HasPrefix(name, "ttyusb") || strings.HasPrefix(name, "ttyacm") {
				filtered = append(filtered, info)
			}
		case "standard":
			if strings.HasPrefix(name, "ttys") && !strings.HasPrefix(name, "ttysac") {
				filtered = append(filtered, info)
			}
		case "arm":
			if strings.HasPrefix(name, "ttyama") {
				filtered = append(filtered, info)
			}
		}
	}
	return filtered
}

const (
	colPort   = "port"
	colType   = "type"
	colDesc   = "desc"
	colUSB    = "usb"
	colLocked = "locked"
)

// portTable builds the styled static table of ports
func portTable(infos []*serial.PortInfo) table.Model {
	columns := []table.Column{
		table.NewColumn(colPort, "Port", 15),
		table.NewColumn(colType, "Type", 16),
		table.NewColumn(colDesc, "Description", 26),
		table.NewColumn(colUSB, "USB", 24),
		table.NewColumn(colLocked, "Lock", 14),
	}

	rows := make([]table.Row, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, table.NewRow(table.RowData{
			colPort:   info.Name,
			colType:   getPortType(info.Name),
			colDesc:   info.Description,
			colUSB:    usbSummary(info),
			colLocked: lockSummary(info),
		}))
	}

	return table.New(columns).
		WithRows(rows).
		BorderRounded().
		HeaderStyle(lipgloss.NewStyle().Bold(true).Foreground(colors.Mauve)).
		WithBaseStyle(lipgloss.NewStyle().Foreground(colors.Text).BorderForeground(colors.Surface2).Align(lipgloss.Left))
}

// renderTable renders the port list in a styled static table format
func renderTable(w io.Writer, infos []*serial.PortInfo) {
	fmt.Fprintf(w, "Found %d serial port(s):\n\n", len(infos))
	fmt.Fprintln(w, portTable(infos).View())
}

// renderSimple renders the port list in simple text format
func renderSimple(w io.Writer, infos []*serial.PortInfo) {
	for _, info := range infos {
		fmt.Fprintln(w, info.Path)
	}
}

func usbSummary(info *serial.PortInfo) string {
	if !info.IsUSB {
		return "-"
	}
	s := info.VendorID + ":" + info.ProductID
	if info.Product != "" {
		s += " " + info.Product
	}
	return s
}

func lockSummary(info *serial.PortInfo) string {
	switch {
	case info.Locked:
		return fmt.Sprintf("pid %d", info.LockPID)
	case info.LockPID != 0:
		return fmt.Sprintf("stale (%d)", info.LockPID)
	default:
		return "free"
	}
}

// getPortType returns a more specific type classification for the port
func getPortType(name string) string {
	name = strings.ToLower(name)
	switch {
	case strings.HasPrefix(name, "ttyusb"):
		return "USB Serial"
	case strings.HasPrefix(name, "ttyacm"):
		return "USB CDC/ACM"
	case strings.HasPrefix(name, "ttyama"):
		return "ARM Serial"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial"
	case strings.HasPrefix(name, "ttysac"):
		return "Samsung Serial"
	case strings.HasPrefix(name, "ttyths"):
		return "Tegra Serial"
	case strings.HasPrefix(name, "ttyo"):
		return "OMAP Serial"
	case strings.HasPrefix(name, "ttys"):
		return "Standard Serial"
	default:
		return "Serial Port"
	}
}
