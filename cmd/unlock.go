/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/the-moog/serbert"
)

// unlockCmd represents the unlock command
var unlockCmd = &cobra.Command{
	Use:   "unlock <port>",
	Short: "Remove a stale lock file for a serial port",
	Long: `Remove the UUCP lock file (LCK..<name>) for a serial port.

The lock is only removed when the process recorded in it has exited, unless
--force is given. serbert removes stale locks on its own when opening a
port; this command is for other tools that do not.

Examples:
  serbert unlock /dev/ttyUSB0
  serbert unlock /dev/ttyS0 --lock-dir /run/lock --force`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		if err := unlockPort(os.Stdout, serial.NewLocker(lockDir()), args[0], force); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(unlockCmd)

	unlockCmd.Flags().Bool("force", false, "Remove the lock even if its owner is still running")
}

func unlockPort(w io.Writer, l *serial.Locker, device string, force bool) error {
	if force {
		pid, alive := l.Holder(device)
		if _, err := os.Stat(l.Path(device)); os.IsNotExist(err) {
			fmt.Fprintf(w, "%s is not locked\n", device)
			return nil
		}
		l.Unlock(device)
		if _, err := os.Stat(l.Path(device)); err == nil {
			return fmt.Errorf("%w: could not remove %s", serial.ErrLockFailed, l.Path(device))
		}
		log.Info("lock removed", "device", device, "pid", pid, "owner_alive", alive)
		fmt.Fprintf(w, "Removed lock %s\n", l.Path(device))
		return nil
	}

	removed, err := l.Clear(device)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(w, "%s is not locked\n", device)
		return nil
	}
	fmt.Fprintf(w, "Removed stale lock %s\n", l.Path(device))
	return nil
}
