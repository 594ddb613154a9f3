package bert

import "sync/atomic"

// Command is an operator request polled by the engine between steps
type Command int

const (
	CommandNone Command = iota
	CommandStop
	CommandStatus
)

// CommandSource is polled at the top of every cycle and after every pacing
// chunk. Poll must not block.
type CommandSource interface {
	Poll() Command
}

// CommandQueue is a CommandSource fed from other goroutines (signal
// handlers, the TUI). Stop is sticky; status requests made between two
// polls are merged into one.
type CommandQueue struct {
	stop   atomic.Bool
	status atomic.Bool
}

// Stop requests the run to end
func (q *CommandQueue) Stop() {
	q.stop.Store(true)
}

// RequestStatus asks for an intermediate snapshot
func (q *CommandQueue) RequestStatus() {
	q.status.Store(true)
}

func (q *CommandQueue) Poll() Command {
	if q.stop.Load() {
		return CommandStop
	}
	if q.status.Swap(false) {
		return CommandStatus
	}
	return CommandNone
}

type noCommands struct{}

func (noCommands) Poll() Command { return CommandNone }
