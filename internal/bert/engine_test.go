package bert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/the-moog/serbert"
)

// fakeLink echoes every transmitted byte through mangle, with no latency.
// A wait that times out takes its full duration, like ppoll.
type fakeLink struct {
	mu        sync.Mutex
	queue     []byte
	mangle    func(byte) []byte
	readWait  serial.Readiness
	writeWait serial.Readiness
	txFail    bool
	flushes   int
	now       time.Time
}

func newEchoLink() *fakeLink {
	return &fakeLink{readWait: serial.Ready, writeWait: serial.Ready, now: time.Unix(1000, 0)}
}

func (l *fakeLink) WaitWritable(d time.Duration) (serial.Readiness, error) {
	switch l.writeWait {
	case serial.Failure:
		return serial.Failure, unix.EIO
	case serial.Timeout:
		time.Sleep(d)
	}
	return l.writeWait, nil
}

func (l *fakeLink) WaitReadable(d time.Duration) (serial.Readiness, error) {
	l.mu.Lock()
	r := l.readWait
	if r == serial.Ready && len(l.queue) == 0 {
		r = serial.Timeout
	}
	l.mu.Unlock()

	if r == serial.Timeout {
		time.Sleep(d)
	}
	return r, nil
}

func (l *fakeLink) TransmitByte(b byte) serial.TransferOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.txFail {
		return serial.TransferOutcome{Status: serial.StatusFailure, Byte: b, Err: unix.EIO}
	}
	echo := []byte{b}
	if l.mangle != nil {
		echo = l.mangle(b)
	}
	l.queue = append(l.queue, echo...)
	return serial.TransferOutcome{Status: serial.StatusOK, Byte: b, Time: l.now}
}

func (l *fakeLink) ReceiveByte() serial.TransferOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return serial.TransferOutcome{Status: serial.StatusFailure, Err: unix.EAGAIN}
	}
	b := l.queue[0]
	l.queue = l.queue[1:]
	return serial.TransferOutcome{Status: serial.StatusOK, Byte: b, Time: l.now}
}

func (l *fakeLink) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = nil
	l.flushes++
	return nil
}

func (l *fakeLink) ParityEnabled() bool { return false }

// recorder collects everything the engine reports
type recorder struct {
	mu        sync.Mutex
	events    []Event
	snapshots []Snapshot
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) OnStatus(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func testConfig(mode Mode, pattern ...byte) Config {
	cfg := DefaultConfig()
	cfg.Mode = mode
	cfg.ReadTimeout = 20 * time.Millisecond
	cfg.WriteTimeout = 5 * time.Millisecond
	if len(pattern) > 0 {
		cfg.Source = NewSequence(pattern)
	}
	return cfg
}

func runEngine(t *testing.T, link Link, cfg Config, opts ...EngineOption) *TestRun {
	t.Helper()
	e, err := NewEngine(link, cfg, opts...)
	require.NoError(t, err)
	var run TestRun
	require.NoError(t, e.Run(context.Background(), &run))
	return &run
}

func TestByCountPerfectEcho(t *testing.T) {
	link := newEchoLink()
	run := runEngine(t, link, testConfig(ByCount(5), 0x00))

	assert.Equal(t, Counters{BytesSent: 5}, run.Counters)
	assert.Equal(t, uint64(5), run.Cycles)
	assert.Equal(t, uint64(5), run.Stats.Count())
	avg, ok := run.Stats.Average()
	require.True(t, ok)
	assert.Zero(t, avg.Std())
	assert.False(t, run.Stopped)
	assert.Equal(t, 5, link.flushes, "each cycle ends with a flush")
}

func TestByCountAlwaysTimesOut(t *testing.T) {
	link := newEchoLink()
	link.readWait = serial.Timeout
	rec := &recorder{}
	run := runEngine(t, link, testConfig(ByCount(3)), WithObserver(rec))

	assert.Equal(t, uint64(3), run.Counters.BytesSent)
	assert.Equal(t, uint64(3), run.Counters.Timeouts)
	assert.Equal(t, uint64(3), run.Counters.Errors)
	assert.Zero(t, run.Counters.CorruptBytes)
	assert.Equal(t, uint64(3), run.Cycles)
	assert.Zero(t, run.Stats.Count())
	assert.Equal(t, 3, rec.count(EventReadTimeout))
}

func TestMismatchCountsCorrupt(t *testing.T) {
	link := newEchoLink()
	link.mangle = func(b byte) []byte { return []byte{b ^ 0x01} }
	rec := &recorder{}
	run := runEngine(t, link, testConfig(ByCount(4), 0x10, 0x20), WithObserver(rec))

	assert.Equal(t, Counters{BytesSent: 4, Errors: 4, CorruptBytes: 4}, run.Counters)
	assert.Zero(t, run.Stats.Count(), "corrupt bytes are not timed")
	require.Equal(t, 4, rec.count(EventMismatch))
	for _, e := range rec.events {
		if e.Kind == EventMismatch {
			assert.Equal(t, e.TX^0x01, e.RX)
			assert.True(t, e.IsError())
		}
	}
}

func TestLineErrorCountsCorrupt(t *testing.T) {
	link := newEchoLink()
	link.mangle = func(b byte) []byte { return []byte{0xFF, 0x00, b} }
	rec := &recorder{}
	run := runEngine(t, link, testConfig(ByCount(2), 0x41), WithObserver(rec))

	assert.Equal(t, Counters{BytesSent: 2, Errors: 2, CorruptBytes: 2}, run.Counters)
	require.Equal(t, 2, rec.count(EventLineError))
	for _, e := range rec.events {
		if e.Kind == EventLineError {
			assert.True(t, e.Status.Has(serial.StatusFramingError))
		}
	}
}

func TestBreakCountsCorrupt(t *testing.T) {
	link := newEchoLink()
	link.mangle = func(byte) []byte { return []byte{0xFF, 0x00, 0x00} }
	run := runEngine(t, link, testConfig(ByCount(1), 0x00))

	assert.Equal(t, Counters{BytesSent: 1, Errors: 1, CorruptBytes: 1}, run.Counters)
}

func TestEchoedFFIsClean(t *testing.T) {
	link := newEchoLink()
	link.mangle = func(b byte) []byte {
		if b == 0xFF {
			return []byte{0xFF, 0xFF}
		}
		return []byte{b}
	}
	run := runEngine(t, link, testConfig(ByCount(256)))

	assert.Equal(t, Counters{BytesSent: 256}, run.Counters)
	assert.Equal(t, uint64(256), run.Stats.Count())
}

func TestWriteTimeoutSkipsReceive(t *testing.T) {
	link := newEchoLink()
	link.writeWait = serial.Timeout
	rec := &recorder{}
	run := runEngine(t, link, testConfig(ByCount(2)), WithObserver(rec))

	assert.Equal(t, Counters{Errors: 2, Timeouts: 2}, run.Counters)
	assert.Equal(t, 2, rec.count(EventWriteTimeout))
	assert.Zero(t, rec.count(EventTransmit))
}

func TestTransmitFailureCountsError(t *testing.T) {
	link := newEchoLink()
	link.txFail = true
	rec := &recorder{}
	run := runEngine(t, link, testConfig(ByCount(3)), WithObserver(rec))

	assert.Equal(t, Counters{Errors: 3}, run.Counters)
	assert.Equal(t, 3, rec.count(EventWriteFailure))
	for _, e := range rec.events {
		if e.Kind == EventWriteFailure {
			assert.ErrorIs(t, e.Err, unix.EIO)
		}
	}
}

func TestReadWaitFailureCountsError(t *testing.T) {
	link := newEchoLink()
	link.readWait = serial.Failure
	run := runEngine(t, link, testConfig(ByCount(2)))

	assert.Equal(t, Counters{BytesSent: 2, Errors: 2}, run.Counters)
}

func TestPacingStopsWithinOneChunk(t *testing.T) {
	link := newEchoLink()
	cfg := testConfig(Continuous())
	cfg.Pace = 10 * time.Second

	var q CommandQueue
	e, err := NewEngine(link, cfg, WithCommands(&q))
	require.NoError(t, err)

	const stopAfter = 150 * time.Millisecond
	start := time.Now()
	time.AfterFunc(stopAfter, q.Stop)

	var run TestRun
	require.NoError(t, e.Run(context.Background(), &run))
	elapsed := time.Since(start)

	assert.True(t, run.Stopped)
	assert.Equal(t, uint64(1), run.Cycles)
	assert.GreaterOrEqual(t, elapsed, stopAfter)
	assert.LessOrEqual(t, elapsed, stopAfter+PaceChunk+50*time.Millisecond)
}

func TestStopInterruptsReadWait(t *testing.T) {
	link := newEchoLink()
	link.readWait = serial.Timeout
	cfg := testConfig(Continuous())
	cfg.ReadTimeout = 5 * time.Second

	var q CommandQueue
	rec := &recorder{}
	e, err := NewEngine(link, cfg, WithCommands(&q), WithObserver(rec))
	require.NoError(t, err)

	const stopAfter = 100 * time.Millisecond
	start := time.Now()
	time.AfterFunc(stopAfter, q.Stop)

	var run TestRun
	require.NoError(t, e.Run(context.Background(), &run))
	elapsed := time.Since(start)

	assert.True(t, run.Stopped)
	assert.Equal(t, uint64(1), run.Cycles)
	assert.Equal(t, Counters{BytesSent: 1}, run.Counters, "an abandoned wait is not a timeout")
	assert.Zero(t, rec.count(EventReadTimeout))
	assert.LessOrEqual(t, elapsed, stopAfter+PaceChunk+50*time.Millisecond)
}

func TestStopInterruptsWriteWait(t *testing.T) {
	link := newEchoLink()
	link.writeWait = serial.Timeout
	cfg := testConfig(ByCount(10))
	cfg.WriteTimeout = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	e, err := NewEngine(link, cfg)
	require.NoError(t, err)
	start := time.Now()
	var run TestRun
	require.NoError(t, e.Run(ctx, &run))

	assert.True(t, run.Stopped)
	assert.Equal(t, Counters{}, run.Counters)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStatusDuringReadWaitKeepsTimeout(t *testing.T) {
	link := newEchoLink()
	link.readWait = serial.Timeout
	cfg := testConfig(ByCount(1))
	cfg.ReadTimeout = 300 * time.Millisecond

	var q CommandQueue
	rec := &recorder{}
	time.AfterFunc(50*time.Millisecond, q.RequestStatus)
	start := time.Now()
	run := runEngine(t, link, cfg, WithCommands(&q), WithObserver(rec))

	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
	assert.Equal(t, Counters{BytesSent: 1, Errors: 1, Timeouts: 1}, run.Counters)
	require.Len(t, rec.snapshots, 1)
	assert.True(t, rec.snapshots[0].Requested)
	assert.Equal(t, uint64(1), rec.snapshots[0].Counters.BytesSent)
}

func TestContextCancelStopsContinuousRun(t *testing.T) {
	link := newEchoLink()
	cfg := testConfig(Continuous())
	cfg.Pace = time.Millisecond

	e, err := NewEngine(link, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var run TestRun
	require.NoError(t, e.Run(ctx, &run))
	assert.True(t, run.Stopped)
	assert.Positive(t, run.Cycles)
	assert.Equal(t, run.Cycles, run.Counters.BytesSent)
	assert.False(t, run.End.Before(run.Start))
}

func TestByDurationStopsAfterElapsed(t *testing.T) {
	link := newEchoLink()
	cfg := testConfig(ByDuration(40 * time.Millisecond))
	cfg.Pace = 5 * time.Millisecond

	start := time.Now()
	run := runEngine(t, link, cfg)

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.False(t, run.Stopped)
	assert.Positive(t, run.Cycles)
	assert.GreaterOrEqual(t, run.Elapsed(), 40*time.Millisecond)
}

func TestByDurationClockFailureStops(t *testing.T) {
	link := newEchoLink()
	cfg := testConfig(ByDuration(time.Hour))
	calls := 0
	cfg.Clock = func() (time.Time, error) {
		calls++
		if calls > 3 {
			return time.Time{}, errors.New("clock gone")
		}
		return time.Now(), nil
	}
	rec := &recorder{}
	run := runEngine(t, link, cfg, WithObserver(rec))

	assert.True(t, run.ClockFailed)
	assert.False(t, run.Stopped)
	assert.Less(t, run.Cycles, uint64(3))
	assert.Positive(t, rec.count(EventClockFailure))
}

func TestStatusRequestDoesNotReset(t *testing.T) {
	link := newEchoLink()
	var q CommandQueue
	rec := &recorder{}

	cfg := testConfig(ByCount(4))
	src := &statusAt{inner: NewSequence(nil), at: 2, q: &q}
	cfg.Source = src
	run := runEngine(t, link, cfg, WithObserver(rec), WithCommands(&q))

	require.Len(t, rec.snapshots, 1)
	snap := rec.snapshots[0]
	assert.Equal(t, uint64(2), snap.Cycles)
	assert.Equal(t, uint64(2), snap.Counters.BytesSent)
	assert.False(t, snap.Final)
	assert.True(t, snap.Requested)
	assert.Equal(t, uint64(4), run.Counters.BytesSent)
}

// statusAt requests a snapshot while producing its at-th byte
type statusAt struct {
	inner ByteSource
	at    int
	n     int
	q     *CommandQueue
}

func (s *statusAt) Next() byte {
	s.n++
	if s.n == s.at {
		s.q.RequestStatus()
	}
	return s.inner.Next()
}

func TestStatusIntervalEmitsSnapshots(t *testing.T) {
	link := newEchoLink()
	cfg := testConfig(ByDuration(120 * time.Millisecond))
	cfg.Pace = 10 * time.Millisecond
	cfg.StatusInterval = 30 * time.Millisecond
	rec := &recorder{}
	runEngine(t, link, cfg, WithObserver(rec))

	assert.GreaterOrEqual(t, len(rec.snapshots), 2)
	for i := 1; i < len(rec.snapshots); i++ {
		assert.GreaterOrEqual(t, rec.snapshots[i].Cycles, rec.snapshots[i-1].Cycles)
	}
	for _, s := range rec.snapshots {
		assert.False(t, s.Requested)
	}
}

func TestRunResetsState(t *testing.T) {
	link := newEchoLink()
	e, err := NewEngine(link, testConfig(ByCount(2)))
	require.NoError(t, err)

	run := TestRun{Counters: Counters{Errors: 99}, Cycles: 7}
	require.NoError(t, e.Run(context.Background(), &run))
	assert.Equal(t, Counters{BytesSent: 2}, run.Counters)
	assert.Equal(t, uint64(2), run.Cycles)

	assert.ErrorIs(t, e.Run(context.Background(), nil), ErrNilRun)
}

func TestNewEngineValidates(t *testing.T) {
	_, err := NewEngine(newEchoLink(), testConfig(ByCount(0)))
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestEngineOverPTY(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	port, err := serial.Open(slave.Name(), serial.WithLockDir(t.TempDir()), serial.WithBaudRate(115200))
	require.NoError(t, err)
	t.Cleanup(func() { port.Close() })

	go func() {
		buf := make([]byte, 64)
		for {
			n, err := master.Read(buf)
			if err != nil {
				return
			}
			if _, err := master.Write(buf[:n]); err != nil {
				return
			}
		}
	}()

	cfg := testConfig(ByCount(512))
	cfg.ReadTimeout = time.Second
	e, err := NewEngine(port, cfg)
	require.NoError(t, err)

	var run TestRun
	require.NoError(t, e.Run(context.Background(), &run))

	assert.Equal(t, Counters{BytesSent: 512}, run.Counters, "0xFF must survive PARMRK doubling")
	assert.Equal(t, uint64(512), run.Stats.Count())
	lo, _ := run.Stats.Min()
	avg, _ := run.Stats.Average()
	hi, _ := run.Stats.Max()
	assert.False(t, avg.Less(lo))
	assert.False(t, hi.Less(avg))
}

func TestCancelDuringLongWaitOverPTY(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	port, err := serial.Open(slave.Name(), serial.WithLockDir(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { port.Close() })

	cfg := testConfig(Continuous())
	cfg.ReadTimeout = 5 * time.Second
	e, err := NewEngine(port, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	var run TestRun
	require.NoError(t, e.Run(ctx, &run))

	assert.Less(t, time.Since(start), 100*time.Millisecond+PaceChunk+100*time.Millisecond)
	assert.True(t, run.Stopped)
	assert.Equal(t, uint64(1), run.Cycles)
	assert.Zero(t, run.Counters.Timeouts)
}
