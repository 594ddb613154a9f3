/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/the-moog/serbert"
)

// signalsCmd represents the signals command
var signalsCmd = &cobra.Command{
	Use:   "signals <port>",
	Short: "Display or set modem control signals",
	Long: `Display the current state of all modem control signals, optionally
setting DTR and RTS first.

A cable that should loop DTR to DSR and RTS to CTS can be checked here
before starting a test.

Examples:
  serbert signals /dev/ttyUSB0
  serbert signals /dev/ttyUSB0 --dtr high --rts low

Signal meanings:
  CTS - Clear To Send (input)
  DSR - Data Set Ready (input)
  RI  - Ring Indicator (input)
  DCD - Data Carrier Detect (input)
  RTS - Request To Send (output)
  DTR - Data Terminal Ready (output)`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		portPath := args[0]
		dtr, _ := cmd.Flags().GetString("dtr")
		rts, _ := cmd.Flags().GetString("rts")

		port, err := serial.Open(portPath, serial.WithLockDir(lockDir()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening port: %v\n", err)
			os.Exit(1)
		}
		defer port.Close()

		if err := applySignals(port, dtr, rts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			port.Close()
			os.Exit(1)
		}

		signals, err := port.ModemSignals()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading modem signals: %v\n", err)
			port.Close()
			os.Exit(1)
		}
		printSignals(os.Stdout, portPath, signals)
	},
}

func init() {
	rootCmd.AddCommand(signalsCmd)

	signalsCmd.Flags().String("dtr", "", "Set DTR first: high, low, on, off, true, false, 1, 0")
	signalsCmd.Flags().String("rts", "", "Set RTS first: high, low, on, off, true, false, 1, 0")
}

// lockDir is the lock directory from flags, environment or config file
func lockDir() string {
	if dir := viper.GetString("lock-dir"); dir != "" {
		return dir
	}
	return serial.DefaultLockDir
}

func applySignals(port serial.Port, dtr, rts string) error {
	if dtr != "" {
		state, err := parseSignalState(dtr)
		if err != nil {
			return fmt.Errorf("--dtr: %w", err)
		}
		if err := port.SetDTR(state); err != nil {
			return fmt.Errorf("setting DTR: %w", err)
		}
	}
	if rts != "" {
		state, err := parseSignalState(rts)
		if err != nil {
			return fmt.Errorf("--rts: %w", err)
		}
		if err := port.SetRTS(state); err != nil {
			return fmt.Errorf("setting RTS: %w", err)
		}
	}
	return nil
}

func printSignals(w io.Writer, portPath string, signals serial.ModemSignals) {
	fmt.Fprintf(w, "Modem Signals for %s:\n\n", portPath)
	fmt.Fprintf(w, "  CTS (Clear To Send):       %s\n", formatSignalState(signals.CTS))
	fmt.Fprintf(w, "  DSR (Data Set Ready):      %s\n", formatSignalState(signals.DSR))
	fmt.Fprintf(w, "  RI  (Ring Indicator):      %s\n", formatSignalState(signals.RI))
	fmt.Fprintf(w, "  DCD (Data Carrier Detect): %s\n", formatSignalState(signals.DCD))
	fmt.Fprintf(w, "  RTS (Request To Send):     %s\n", formatSignalState(signals.RTS))
	fmt.Fprintf(w, "  DTR (Data Terminal Ready): %s\n", formatSignalState(signals.DTR))
}

func formatSignalState(state bool) string {
	if state {
		return "HIGH"
	}
	return "LOW"
}

func parseSignalState(state string) (bool, error) {
	switch strings.ToLower(state) {
	case "high", "on", "true", "1":
		return true, nil
	case "low", "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid state: %s (valid: high, low, on, off, true, false, 1, 0)", state)
	}
}
