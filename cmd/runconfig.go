/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/the-moog/serbert"
	"github.com/the-moog/serbert/internal/bert"
	"github.com/the-moog/serbert/internal/report"
)

var errConflictingFlags = errors.New("conflicting options")

// modeFlags select how a run ends; at most one may be given
var modeFlags = []string{"bytes", "kbytes", "kibibytes", "minutes", "hours", "continuous"}

// runSettings is everything `serbert run` needs, resolved from flags,
// environment and config file
type runSettings struct {
	Port         string
	Line         serial.LineConfig
	LockDir      string
	NoLock       bool
	LegacyEscape bool
	Test         bert.Config
	Pattern      []byte
	Random       bool
	Report       report.Options
	Diag         bool
	TUI          bool
	DTR          *bool
	RTS          *bool
}

// portOptions translates the settings into serial.Open options
func (s *runSettings) portOptions() []serial.Option {
	opts := []serial.Option{
		serial.WithLineConfig(s.Line),
		serial.WithLockDir(s.LockDir),
	}
	if s.NoLock {
		opts = append(opts, serial.WithoutLock())
	}
	return opts
}

func (s *runSettings) decoderOptions() []serial.DecoderOption {
	if s.LegacyEscape {
		return []serial.DecoderOption{serial.WithLegacyDrop()}
	}
	return nil
}

func loadRunSettings(v *viper.Viper, port string) (*runSettings, error) {
	s := &runSettings{
		Port:         port,
		LockDir:      v.GetString("lock-dir"),
		NoLock:       v.GetBool("no-lock"),
		LegacyEscape: v.GetBool("legacy-escape"),
		Diag:         v.GetBool("diag"),
		TUI:          v.GetBool("tui"),
	}
	if s.LockDir == "" {
		s.LockDir = serial.DefaultLockDir
	}

	parity, err := serial.ParseParity(v.GetString("parity"))
	if err != nil {
		return nil, err
	}
	s.Line = serial.LineConfig{
		BaudRate:   v.GetInt("baud"),
		DataBits:   v.GetInt("data-bits"),
		Parity:     parity,
		StopBits:   v.GetInt("stop-bits"),
		LowLatency: v.GetBool("low-latency"),
	}
	if err := s.Line.Validate(); err != nil {
		return nil, err
	}

	cfg := bert.DefaultConfig()
	mode, binary, err := resolveMode(v)
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode

	if err := s.resolveSource(v, &cfg); err != nil {
		return nil, err
	}

	if v.IsSet("timeout") {
		cfg.ReadTimeout, err = bert.TimeoutFromMicros(v.GetInt64("timeout"))
	} else {
		cfg.ReadTimeout, err = s.Line.ReadTimeout()
	}
	if err != nil {
		return nil, err
	}

	if v.IsSet("pace") {
		if cfg.Pace, err = bert.PaceFromSeconds(v.GetFloat64("pace")); err != nil {
			return nil, err
		}
	}

	s.Report = report.Options{
		Stats:   v.GetBool("stats"),
		Verbose: v.GetBool("verbose"),
		Quiet:   v.GetBool("quiet"),
	}
	if binary {
		s.Report.Multiplier = report.Binary
	}

	if v.IsSet("interval") {
		secs := v.GetInt64("interval")
		if secs < 1 || secs > math.MaxInt64/int64(time.Second) {
			return nil, fmt.Errorf("invalid interval %d: must be a positive number of seconds", secs)
		}
		cfg.StatusInterval = time.Duration(secs) * time.Second
		s.Report.Quiet = true
	}

	if s.DTR, err = optionalSignal(v, "dtr"); err != nil {
		return nil, err
	}
	if s.RTS, err = optionalSignal(v, "rts"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s.Test = cfg
	return s, nil
}

// resolveMode picks the termination policy. binary reports whether counts
// were given in units of 1024.
func resolveMode(v *viper.Viper) (mode bert.Mode, binary bool, err error) {
	var chosen []string
	for _, name := range modeFlags {
		if !v.IsSet(name) {
			continue
		}
		if name == "continuous" && !v.GetBool(name) {
			continue
		}
		chosen = append(chosen, name)
	}
	if len(chosen) > 1 {
		return mode, false, fmt.Errorf("%w: only one of --%s may be given", errConflictingFlags, strings.Join(chosen, ", --"))
	}
	if len(chosen) == 0 {
		return bert.ByCount(bert.DefaultCount), false, nil
	}

	switch name := chosen[0]; name {
	case "bytes":
		return bert.ByCount(v.GetUint64(name)), false, nil
	case "kbytes":
		n, err := scaleCount(v.GetUint64(name), 1000)
		return bert.ByCount(n), false, err
	case "kibibytes":
		n, err := scaleCount(v.GetUint64(name), 1024)
		return bert.ByCount(n), true, err
	case "minutes":
		d, err := scaleDuration(v.GetInt64(name), time.Minute)
		return bert.ByDuration(d), false, err
	case "hours":
		d, err := scaleDuration(v.GetInt64(name), time.Hour)
		return bert.ByDuration(d), false, err
	default:
		return bert.Continuous(), false, nil
	}
}

func scaleCount(n, unit uint64) (uint64, error) {
	if n == 0 {
		return 0, bert.ErrInvalidCount
	}
	if n > math.MaxUint64/unit {
		return 0, fmt.Errorf("%w: %d x %d overflows", bert.ErrInvalidCount, n, unit)
	}
	return n * unit, nil
}

func scaleDuration(n int64, unit time.Duration) (time.Duration, error) {
	if n < 1 || n > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("%w: %d x %v", bert.ErrInvalidDuration, n, unit)
	}
	return time.Duration(n) * unit, nil
}

func (s *runSettings) resolveSource(v *viper.Viper, cfg *bert.Config) error {
	s.Random = v.GetBool("random")
	hexPattern := v.GetString("pattern")

	switch {
	case s.Random && hexPattern != "":
		return fmt.Errorf("%w: --random and --pattern", errConflictingFlags)
	case s.Random:
		cfg.Source = bert.NewRandom(nil)
	case hexPattern != "":
		p, err := bert.ParsePattern(hexPattern)
		if err != nil {
			return err
		}
		s.Pattern = p
		cfg.Source = bert.NewSequence(p)
	default:
		s.Pattern = bert.DefaultPattern()
		cfg.Source = bert.NewSequence(s.Pattern)
	}
	return nil
}

func optionalSignal(v *viper.Viper, name string) (*bool, error) {
	raw := v.GetString(name)
	if raw == "" {
		return nil, nil
	}
	state, err := parseSignalState(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &state, nil
}
