/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"
	"github.com/the-moog/serbert"
	"github.com/the-moog/serbert/internal/tui/colors"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <port>",
	Short: "Display detailed information about a serial port",
	Long: `Display detailed information about a serial port including its lock
holder and USB metadata.

Examples:
  serbert info /dev/ttyUSB0
  serbert info /dev/ttyS0 --lock-dir /run/lock

For USB devices, this displays vendor/product IDs, the serial number and the
product name reported by the system enumerator.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		portPath := args[0]

		info, err := serial.GetPortInfo(portPath, lockDir())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting port info: %v\n", err)
			os.Exit(1)
		}
		logUSBErr(info)
		renderInfo(os.Stdout, info)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

type infoField struct {
	name  string
	value string
}

// infoFields lists the known properties of a port; USB fields only when present
func infoFields(info *serial.PortInfo) []infoField {
	fields := []infoField{
		{"Name", info.Name},
		{"Path", info.Path},
		{"Description", info.Description},
		{"Type", getPortType(info.Name)},
		{"Lock", lockSummary(info)},
	}
	if !info.IsUSB {
		return fields
	}
	for _, f := range []infoField{
		{"Vendor ID", info.VendorID},
		{"Product ID", info.ProductID},
		{"Serial", info.SerialNumber},
		{"Product", info.Product},
	} {
		if f.value != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

func renderInfo(w io.Writer, info *serial.PortInfo) {
	columns := []table.Column{
		table.NewColumn("field", "Property", 14),
		table.NewColumn("value", "Value", 40),
	}
	var rows []table.Row
	for _, f := range infoFields(info) {
		rows = append(rows, table.NewRow(table.RowData{"field": f.name, "value": f.value}))
	}

	t := table.New(columns).
		WithRows(rows).
		BorderRounded().
		HeaderStyle(lipgloss.NewStyle().Bold(true).Foreground(colors.Mauve)).
		WithBaseStyle(lipgloss.NewStyle().Foreground(colors.Text).Align(lipgloss.Left))

	fmt.Fprintf(w, "Port Information: %s\n\n", info.Path)
	fmt.Fprintln(w, t.View())
}
