/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/the-moog/serbert"
	"github.com/the-moog/serbert/internal/bert"
	"github.com/the-moog/serbert/internal/report"
	"github.com/the-moog/serbert/internal/tui/components"
	"github.com/the-moog/serbert/internal/tui/models"
	"golang.org/x/sys/unix"
)

// dashboardRefresh is the snapshot rate of the TUI when no interval is given
const dashboardRefresh = 250 * time.Millisecond

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <port>",
	Short: "Run a bit error rate test on a serial port",
	Long: `Run a Bit Error Rate Test on a serial port.

Bytes are sent one at a time; each must come back unchanged before the next
is sent. Connect a loopback plug or a remote echo to the port first.

By default 1024 bytes of the sequence 00..FF are sent at 19200 8N1. The test
ends after the given byte count or time, or when interrupted. Send SIGUSR1
for intermediate results; press Ctrl+C to stop early and get the report.

Examples:
  serbert run /dev/ttyUSB0
  serbert run /dev/ttyUSB0 -b 115200 -K 64 -f
  serbert run /dev/ttyS0 -m 30 -s 55aa00ff -i 5
  serbert run /dev/ttyS0 -c -r --parity even --tui`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		settings, err := loadRunSettings(viper.GetViper(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := runTest(cmd.Context(), settings, os.Stdout, os.Stderr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	addRunFlags(runCmd.Flags())
	runCmd.MarkFlagsMutuallyExclusive(modeFlags...)
	runCmd.MarkFlagsMutuallyExclusive("pattern", "random")
	cobra.CheckErr(viper.BindPFlags(runCmd.Flags()))
}

func addRunFlags(fs *pflag.FlagSet) {
	// Line settings
	fs.IntP("baud", "b", 19200, "Baud rate: 50 - 115200")
	fs.Int("data-bits", 8, "Data bits: 5, 6, 7 or 8")
	fs.String("parity", "none", "Parity: none, odd, even")
	fs.Int("stop-bits", 1, "Stop bits: 1 or 2")
	fs.BoolP("low-latency", "l", false, "Request low latency from the UART driver")

	// Test length
	fs.Uint64P("bytes", "n", bert.DefaultCount, "Number of bytes to send")
	fs.Uint64P("kbytes", "k", 0, "Number of bytes to send in k (* 1000)")
	fs.Uint64P("kibibytes", "K", 0, "Number of bytes to send in K (* 1024), binary multipliers in the report")
	fs.Int64P("minutes", "m", 0, "Number of minutes to send")
	fs.Int64P("hours", "o", 0, "Number of hours to send")
	fs.BoolP("continuous", "c", false, "Send until interrupted")

	// Bytes and timing
	fs.StringP("pattern", "s", "", "Bytes to send as hex, e.g. 55aa00ff (default 00-FF)")
	fs.BoolP("random", "r", false, "Send random bytes")
	fs.Int64P("timeout", "t", 0, "Read timeout in microseconds, 1 - 9999999 (default depends on baud)")
	fs.Float64P("pace", "p", 0, "Seconds to wait between bytes, 0.000000001 upwards")
	fs.Int64P("interval", "i", 0, "Show intermediate results every N seconds (implies --quiet)")

	// Output
	fs.BoolP("stats", "f", false, "Show round-trip time statistics")
	fs.BoolP("verbose", "v", false, "Print every byte sent and received")
	fs.BoolP("quiet", "q", false, "Do not print individual errors")
	fs.BoolP("diag", "d", false, "Diagnostic mode: print settings and debug logs")
	fs.Bool("tui", false, "Show a live dashboard instead of line output")

	// Port handling
	fs.Bool("no-lock", false, "Do not take the UUCP lock on the port")
	fs.Bool("legacy-escape", false, "Drop the byte after an unknown 0xFF escape instead of keeping it")
	fs.String("dtr", "", "Set DTR before the test: high or low")
	fs.String("rts", "", "Set RTS before the test: high or low")
}

// runTest opens the port, runs the test and prints the report. Errors are
// returned only for failures before the test starts; a completed or
// interrupted run returns nil.
func runTest(ctx context.Context, s *runSettings, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log.Debug("opening port", "device", s.Port, "line", s.Line.String(), "lock_dir", s.LockDir, "no_lock", s.NoLock)
	port, err := serial.Open(s.Port, s.portOptions()...)
	if err != nil {
		logFailure("open failed", s.Port, err)
		return err
	}
	defer func() {
		if err := port.Close(); err != nil {
			logFailure("close failed", s.Port, err)
		}
	}()

	if err := setModemLines(port, s); err != nil {
		logFailure("modem control failed", s.Port, err)
		return err
	}

	rep := report.New(stdout, stderr, s.Report)
	if s.Diag {
		rep.WriteSettings(stdout, report.Settings{
			Version:     "serbert version " + Version,
			Port:        s.Port,
			Pattern:     s.Pattern,
			Random:      s.Random,
			Line:        s.Line,
			ReadTimeout: s.Test.ReadTimeout,
			Mode:        s.Test.Mode,
			Pace:        s.Test.Pace,
		})
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue := &bert.CommandQueue{}
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)
	go func() {
		for {
			select {
			case <-usr1:
				queue.RequestStatus()
			case <-ctx.Done():
				return
			}
		}
	}()

	var run bert.TestRun
	if s.TUI {
		err = runDashboard(ctx, port, s, queue, &run)
	} else {
		err = runLine(ctx, port, s, queue, rep, &run)
	}
	if err != nil {
		return err
	}

	rep.Final(&run)
	if s.Diag {
		fmt.Fprintln(stdout, rep.Totals(run.Snapshot()))
	}
	log.Debug("test finished", "cycles", run.Cycles, "errors", run.Counters.Errors, "stopped", run.Stopped)
	return nil
}

func runLine(ctx context.Context, port serial.Port, s *runSettings, queue *bert.CommandQueue, rep *report.Reporter, run *bert.TestRun) error {
	engine, err := bert.NewEngine(port, s.Test,
		bert.WithObserver(rep),
		bert.WithCommands(queue),
		bert.WithDecoderOptions(s.decoderOptions()...),
	)
	if err != nil {
		return err
	}
	return engine.Run(ctx, run)
}

func runDashboard(ctx context.Context, port serial.Port, s *runSettings, queue *bert.CommandQueue, run *bert.TestRun) error {
	cfg := s.Test
	if cfg.StatusInterval == 0 {
		cfg.StatusInterval = dashboardRefresh
	}

	info := components.RunInfo{Line: s.Line, Mode: cfg.Mode}
	model := models.NewRunModel(s.Port, info, s.Report.Stats, queue)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	engine, err := bert.NewEngine(port, cfg,
		bert.WithObserver(models.NewBridge(p)),
		bert.WithCommands(queue),
		bert.WithDecoderOptions(s.decoderOptions()...),
	)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := engine.Run(ctx, run)
		p.Send(models.DoneMsg{Run: run, Err: err})
	}()

	_, uiErr := p.Run()
	// The engine may still be running if the UI ended first
	queue.Stop()
	<-done

	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		log.Warn("dashboard exited with error", "err", uiErr)
	}
	return nil
}

func setModemLines(port serial.Port, s *runSettings) error {
	if s.DTR != nil {
		if err := port.SetDTR(*s.DTR); err != nil {
			return fmt.Errorf("setting DTR: %w", err)
		}
		log.Debug("DTR set", "state", formatSignalState(*s.DTR))
	}
	if s.RTS != nil {
		if err := port.SetRTS(*s.RTS); err != nil {
			return fmt.Errorf("setting RTS: %w", err)
		}
		log.Debug("RTS set", "state", formatSignalState(*s.RTS))
	}
	return nil
}

// logFailure logs err with the underlying errno, if any, at debug level
func logFailure(msg, device string, err error) {
	var errno unix.Errno
	if errors.As(err, &errno) {
		log.Debug(msg, "device", device, "err", err, "errno", int(errno), "errno_name", unix.ErrnoName(errno))
		return
	}
	log.Debug(msg, "device", device, "err", err)
}
