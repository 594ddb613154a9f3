// Package stats accumulates round-trip time statistics without floating
// point. The running average is exact: after n samples it equals the floor
// of their sum divided by n, however large n grows.
package stats

import (
	"fmt"
	"math/bits"
	"time"
)

const nsPerSec = 1_000_000_000

// Duration is a non-negative span split into whole seconds and nanoseconds.
// Nsec is always below one second.
type Duration struct {
	Sec  uint64
	Nsec uint32
}

// FromDuration converts d; negative spans are rejected
func FromDuration(d time.Duration) (Duration, bool) {
	if d < 0 {
		return Duration{}, false
	}
	return Duration{Sec: uint64(d / time.Second), Nsec: uint32(d % time.Second)}, true
}

// Between returns rx - tx, or false when rx precedes tx
func Between(tx, rx time.Time) (Duration, bool) {
	sec := rx.Unix() - tx.Unix()
	nsec := int64(rx.Nanosecond()) - int64(tx.Nanosecond())
	if nsec < 0 {
		sec--
		nsec += nsPerSec
	}
	if sec < 0 {
		return Duration{}, false
	}
	return Duration{Sec: uint64(sec), Nsec: uint32(nsec)}, true
}

// Less orders by seconds, then nanoseconds
func (d Duration) Less(o Duration) bool {
	if d.Sec != o.Sec {
		return d.Sec < o.Sec
	}
	return d.Nsec < o.Nsec
}

// Std converts to time.Duration, saturating at the largest value
func (d Duration) Std() time.Duration {
	const maxSec = uint64(1<<63-1) / nsPerSec
	if d.Sec > maxSec {
		return time.Duration(1<<63 - 1)
	}
	return time.Duration(d.Sec)*time.Second + time.Duration(d.Nsec)
}

// Micros returns the seconds and microseconds parts, truncated
func (d Duration) Micros() (sec uint64, usec uint32) {
	return d.Sec, d.Nsec / 1000
}

func (d Duration) String() string {
	return fmt.Sprintf("%d.%09ds", d.Sec, d.Nsec)
}

// RunningStats tracks min, max and mean of observed samples. The zero value
// is empty and ready to use; copying it takes a snapshot.
type RunningStats struct {
	count uint64
	min   Duration
	max   Duration
	avg   Duration
	// rem is the part of the sum not represented by avg*count, in ns.
	// Invariant: rem < count.
	rem uint64
}

// Observe adds one sample
func (s *RunningStats) Observe(sample Duration) {
	if sample.Nsec >= nsPerSec {
		sample.Sec += uint64(sample.Nsec / nsPerSec)
		sample.Nsec %= nsPerSec
	}

	prev := s.count
	n := prev + 1

	if prev == 0 {
		s.min, s.max, s.avg, s.rem, s.count = sample, sample, sample, 0, 1
		return
	}
	if sample.Less(s.min) {
		s.min = sample
	}
	if s.max.Less(sample) {
		s.max = sample
	}

	// Seconds part: (avg.Sec*prev + sample.Sec) / n
	hi, lo := bits.Mul64(s.avg.Sec, prev)
	lo, carry := bits.Add64(lo, sample.Sec, 0)
	hi += carry
	sec, secRem := bits.Div64(hi, lo, n)

	// Sub-second part, with the seconds remainder scaled to ns:
	// (secRem*1e9 + avg.Nsec*prev + rem + sample.Nsec) / n
	hi, lo = bits.Mul64(secRem, nsPerSec)
	mhi, mlo := bits.Mul64(uint64(s.avg.Nsec), prev)
	hi, lo = add128(hi, lo, mhi, mlo)
	hi, lo = add128(hi, lo, 0, s.rem)
	hi, lo = add128(hi, lo, 0, uint64(sample.Nsec))
	nsec, rem := bits.Div64(hi, lo, n)

	s.avg = Duration{Sec: sec + nsec/nsPerSec, Nsec: uint32(nsec % nsPerSec)}
	s.rem = rem
	s.count = n
}

// ObserveDuration adds a time.Duration sample; negative values are dropped
// and false is returned
func (s *RunningStats) ObserveDuration(d time.Duration) bool {
	sample, ok := FromDuration(d)
	if ok {
		s.Observe(sample)
	}
	return ok
}

func add128(hi, lo, bhi, blo uint64) (uint64, uint64) {
	lo, carry := bits.Add64(lo, blo, 0)
	hi, _ = bits.Add64(hi, bhi, carry)
	return hi, lo
}

// Count is the number of samples observed
func (s *RunningStats) Count() uint64 {
	return s.count
}

// Min is the smallest sample; ok is false before the first sample
func (s *RunningStats) Min() (d Duration, ok bool) {
	return s.min, s.count > 0
}

// Max is the largest sample; ok is false before the first sample
func (s *RunningStats) Max() (d Duration, ok bool) {
	return s.max, s.count > 0
}

// Average is the mean rounded down to the nanosecond; ok is false before
// the first sample
func (s *RunningStats) Average() (d Duration, ok bool) {
	return s.avg, s.count > 0
}

// Reset empties the statistics
func (s *RunningStats) Reset() {
	*s = RunningStats{}
}
