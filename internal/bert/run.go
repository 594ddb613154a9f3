package bert

import (
	"time"

	"github.com/the-moog/serbert/internal/stats"
)

// Counters only grow during a run
type Counters struct {
	BytesSent    uint64
	Errors       uint64
	Timeouts     uint64
	CorruptBytes uint64
}

// TestRun is the complete state of one run. The caller owns it; Engine.Run
// resets it on entry and mutates it only from the cycle loop.
type TestRun struct {
	Counters Counters
	Stats    stats.RunningStats
	Cycles   uint64
	Start    time.Time
	End      time.Time

	// Stopped is set when the run ended on request rather than by its mode
	Stopped bool
	// ClockFailed is set when the clock could not be read
	ClockFailed bool
}

// Elapsed is the run time so far, or the total once the run has ended
func (r *TestRun) Elapsed() time.Duration {
	if r.Start.IsZero() {
		return 0
	}
	end := r.End
	if end.IsZero() {
		end = time.Now()
	}
	if d := end.Sub(r.Start); d > 0 {
		return d
	}
	return 0
}

// Snapshot is a copy of a run's state taken between cycles
type Snapshot struct {
	Counters Counters
	Stats    stats.RunningStats
	Cycles   uint64
	Elapsed  time.Duration
	Final    bool

	// Requested marks a snapshot asked for by the operator rather than the
	// status interval
	Requested   bool
	ClockFailed bool
}

// Snapshot copies the current state
func (r *TestRun) Snapshot() Snapshot {
	return Snapshot{
		Counters: r.Counters,
		Stats:    r.Stats,
		Cycles:   r.Cycles,
		Elapsed:  r.Elapsed(),
		Final:    !r.End.IsZero(),

		ClockFailed: r.ClockFailed,
	}
}
