/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/the-moog/serbert"
	"github.com/the-moog/serbert/internal/logger"
)

// Version is set at build time with -ldflags "-X github.com/the-moog/serbert/cmd.Version=..."
var Version = "dev"

var (
	cfgFile  string
	log      = logger.Discard()
	closeLog = func() error { return nil }
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "serbert",
	Short: "Serial port bit error rate tester",
	Long: `serbert performs a Bit Error Rate Test (BERT) on a serial port.

It transmits bytes one at a time, waits for each to come back through a
loopback plug or a remote echo, and counts timeouts, corrupt bytes and line
errors (break, framing, parity) while measuring round-trip times.

Examples:
  serbert list
  serbert run /dev/ttyUSB0
  serbert run /dev/ttyUSB0 -b 115200 -k 100 -f
  serbert run /dev/ttyS0 -c -i 10 --tui`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLog()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.serbert.yaml)")
	rootCmd.PersistentFlags().String("lock-dir", serial.DefaultLockDir, "Directory holding UUCP lock files")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text, json")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to this file instead of stderr")

	for _, name := range []string{"lock-dir", "log-level", "log-format", "log-file"} {
		cobra.CheckErr(viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName(".serbert")
	}

	viper.SetEnvPrefix("SERBERT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Warning: reading config: %v\n", err)
		}
	}
}

// setupLogger builds the command logger. Diagnostic mode forces debug level.
func setupLogger() error {
	level := viper.GetString("log-level")
	if viper.GetBool("diag") {
		level = "debug"
	}
	l, closer, err := logger.New(logger.Config{
		Level:  level,
		Format: viper.GetString("log-format"),
		Output: viper.GetString("log-file"),
	})
	if err != nil {
		return err
	}
	log, closeLog = l, closer
	slog.SetDefault(l)
	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("using config file", "path", used)
	}
	return nil
}
