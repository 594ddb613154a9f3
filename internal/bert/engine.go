// Package bert runs bit error rate tests over a serial link: each cycle
// sends one byte, waits for its echo and compares the two.
package bert

import (
	"context"
	"time"

	"github.com/the-moog/serbert"
	"github.com/the-moog/serbert/internal/stats"
)

// Link is the part of serial.Port the engine drives
type Link interface {
	serial.ByteReceiver
	WaitWritable(timeout time.Duration) (serial.Readiness, error)
	WaitReadable(timeout time.Duration) (serial.Readiness, error)
	TransmitByte(b byte) serial.TransferOutcome
	Flush() error
	ParityEnabled() bool
}

// Ensure serial ports can be tested directly
var _ Link = serial.Port(nil)

// Engine runs test cycles over a Link
type Engine struct {
	link     Link
	decoder  *serial.Decoder
	cfg      Config
	observer Observer
	commands CommandSource

	nextStatus time.Time
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithObserver receives events and intermediate snapshots
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithCommands sets the source of stop and status requests
func WithCommands(c CommandSource) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.commands = c
		}
	}
}

// WithDecoderOptions passes options to the escape decoder
func WithDecoderOptions(opts ...serial.DecoderOption) EngineOption {
	return func(e *Engine) {
		e.decoder = serial.NewDecoder(e.link, e.link.ParityEnabled(), opts...)
	}
}

// NewEngine validates cfg and binds it to link
func NewEngine(link Link, cfg Config, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = serial.RealtimeClock
	}
	e := &Engine{
		link:     link,
		cfg:      cfg,
		observer: nopObserver{},
		commands: noCommands{},
	}
	e.decoder = serial.NewDecoder(link, link.ParityEnabled())
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run resets run and cycles until the mode is satisfied, ctx is cancelled
// or a stop command arrives. Reaching any of these is a normal end.
func (e *Engine) Run(ctx context.Context, run *TestRun) error {
	if run == nil {
		return ErrNilRun
	}
	*run = TestRun{}

	start, err := e.cfg.Clock()
	if err != nil {
		run.ClockFailed = true
		start = time.Now()
		e.emit(run, Event{Kind: EventClockFailure, Err: err})
	}
	run.Start = start
	if e.cfg.StatusInterval > 0 {
		e.nextStatus = time.Now().Add(e.cfg.StatusInterval)
	}

	for !e.finished(run) {
		if e.poll(ctx, run) {
			run.Stopped = true
			break
		}
		aborted := e.cycle(ctx, run)
		run.Cycles++
		if aborted {
			run.Stopped = true
			break
		}
		e.statusTick(run)

		if e.cfg.Pace > 0 && !e.finished(run) && e.pause(ctx, run) {
			run.Stopped = true
			break
		}
	}

	end, err := e.cfg.Clock()
	if err != nil {
		end = time.Now()
	}
	if end.Before(run.Start) {
		end = run.Start
	}
	run.End = end
	return nil
}

// finished evaluates the termination policy. In duration mode an unreadable
// clock ends the run.
func (e *Engine) finished(run *TestRun) bool {
	switch e.cfg.Mode.Kind {
	case ModeCount:
		return run.Cycles >= e.cfg.Mode.Count
	case ModeDuration:
		if run.ClockFailed {
			return true
		}
		now, err := e.cfg.Clock()
		if err != nil {
			run.ClockFailed = true
			e.emit(run, Event{Kind: EventClockFailure, Err: err})
			return true
		}
		return now.Sub(run.Start) >= e.cfg.Mode.Duration
	default:
		return false
	}
}

// poll reports whether the run must stop, serving status requests on the way
func (e *Engine) poll(ctx context.Context, run *TestRun) bool {
	if ctx.Err() != nil {
		return true
	}
	switch e.commands.Poll() {
	case CommandStop:
		return true
	case CommandStatus:
		snap := run.Snapshot()
		snap.Requested = true
		e.observer.OnStatus(snap)
	}
	return false
}

func (e *Engine) statusTick(run *TestRun) {
	if e.cfg.StatusInterval <= 0 {
		return
	}
	now := time.Now()
	if now.Before(e.nextStatus) {
		return
	}
	for !now.Before(e.nextStatus) {
		e.nextStatus = e.nextStatus.Add(e.cfg.StatusInterval)
	}
	e.observer.OnStatus(run.Snapshot())
}

// pause sleeps for the pacing delay in chunks of at most PaceChunk and
// reports whether a stop arrived meanwhile
func (e *Engine) pause(ctx context.Context, run *TestRun) bool {
	for remaining := e.cfg.Pace; remaining > 0; {
		chunk := min(remaining, PaceChunk)
		timer := time.NewTimer(chunk)
		select {
		case <-ctx.Done():
			timer.Stop()
			return true
		case <-timer.C:
		}
		remaining -= chunk
		if e.poll(ctx, run) {
			return true
		}
		e.statusTick(run)
	}
	return false
}

// wait calls fn in slices of at most PaceChunk until the link is ready or
// timeout has passed, serving commands between slices. aborted reports a
// stop that arrived before the wait ended; it is not a timeout.
func (e *Engine) wait(ctx context.Context, run *TestRun, fn func(time.Duration) (serial.Readiness, error), timeout time.Duration) (ready serial.Readiness, aborted bool, err error) {
	deadline := time.Now().Add(timeout)
	for {
		slice := min(max(time.Until(deadline), 0), PaceChunk)
		ready, err = fn(slice)
		if ready != serial.Timeout || !time.Now().Before(deadline) {
			return ready, false, err
		}
		if e.poll(ctx, run) {
			return serial.Timeout, true, nil
		}
	}
}

// cycle sends one byte and classifies the echo. It reports whether a stop
// cut the cycle short.
func (e *Engine) cycle(ctx context.Context, run *TestRun) (aborted bool) {
	tx := e.cfg.Source.Next()
	defer e.settle(run)

	ready, aborted, err := e.wait(ctx, run, e.link.WaitWritable, e.cfg.WriteTimeout)
	if aborted {
		return true
	}
	switch ready {
	case serial.Timeout:
		run.Counters.Errors++
		run.Counters.Timeouts++
		e.emit(run, Event{Kind: EventWriteTimeout, TX: tx})
		return false
	case serial.Failure:
		run.Counters.Errors++
		e.emit(run, Event{Kind: EventWriteFailure, TX: tx, Err: err})
		return false
	}

	sent := e.link.TransmitByte(tx)
	if !sent.Status.Has(serial.StatusOK) {
		run.Counters.Errors++
		e.emit(run, Event{Kind: EventWriteFailure, TX: tx, Status: sent.Status, Err: sent.Err})
		return false
	}
	run.Counters.BytesSent++
	e.emit(run, Event{Kind: EventTransmit, TX: tx, Status: sent.Status, Time: sent.Time})

	ready, aborted, err = e.wait(ctx, run, e.link.WaitReadable, e.cfg.ReadTimeout)
	if aborted {
		return true
	}
	switch ready {
	case serial.Timeout:
		run.Counters.Errors++
		run.Counters.Timeouts++
		e.emit(run, Event{Kind: EventReadTimeout, TX: tx})
		return false
	case serial.Failure:
		run.Counters.Errors++
		e.emit(run, Event{Kind: EventReadFailure, TX: tx, Err: err})
		return false
	}

	got := e.decoder.Decode()
	if got.Status.Has(serial.StatusFailure) {
		run.Counters.Errors++
		e.emit(run, Event{Kind: EventReadFailure, TX: tx, Status: got.Status, Err: got.Err})
		return false
	}
	e.emit(run, Event{Kind: EventReceive, TX: tx, RX: got.Byte, Status: got.Status, Time: got.Time})

	switch {
	case got.Status.LineError():
		run.Counters.Errors++
		run.Counters.CorruptBytes++
		e.emit(run, Event{Kind: EventLineError, TX: tx, RX: got.Byte, Status: got.Status, Time: got.Time})
		return false
	case got.Byte != tx:
		run.Counters.Errors++
		run.Counters.CorruptBytes++
		e.emit(run, Event{Kind: EventMismatch, TX: tx, RX: got.Byte, Status: got.Status, Time: got.Time})
		return false
	}

	if !sent.TimeValid() || !got.TimeValid() {
		return false
	}
	if rtt, ok := stats.Between(sent.Time, got.Time); ok {
		run.Stats.Observe(rtt)
		e.emit(run, Event{Kind: EventRoundTrip, TX: tx, RX: got.Byte, Time: got.Time, RoundTrip: rtt})
	}
	return false
}

// settle discards anything left on the line so the next cycle starts clean
func (e *Engine) settle(run *TestRun) {
	if err := e.link.Flush(); err != nil {
		e.emit(run, Event{Kind: EventFlushFailure, Err: err})
	}
	e.decoder.Reset()
}

func (e *Engine) emit(run *TestRun, ev Event) {
	ev.Cycle = run.Cycles
	if ev.Time.IsZero() {
		if now, err := e.cfg.Clock(); err == nil {
			ev.Time = now
		}
	}
	e.observer.OnEvent(ev)
}
