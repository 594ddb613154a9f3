package serial

const (
	escapeMark = 0xFF
	escapeErr  = 0x00
)

// ByteReceiver is the raw input side of a Port
type ByteReceiver interface {
	ReceiveByte() TransferOutcome
}

// DecoderOption configures a Decoder
type DecoderOption func(*Decoder)

// WithLegacyDrop discards the byte following a lone 0xFF instead of
// holding it for the next Decode call. This matches older seru builds
// bit for bit and loses one data byte per lone 0xFF.
func WithLegacyDrop() DecoderOption {
	return func(d *Decoder) {
		d.legacyDrop = true
	}
}

// Decoder turns the PARMRK-marked input stream into logical bytes:
//
//	X          -> X (X != 0xFF)
//	FF FF      -> FF
//	FF 00 00   -> break + framing error
//	FF 00 X    -> framing error carrying X
//	FF X       -> FF, then X on the next call
//
// With parity enabled every marked byte also carries StatusParityError,
// since the kernel reports both conditions with the same marker.
type Decoder struct {
	rx         ByteReceiver
	parity     bool
	legacyDrop bool
	pending    TransferOutcome
	hasPending bool
}

// NewDecoder reads from rx. parity tells the decoder whether the line has
// parity checking enabled.
func NewDecoder(rx ByteReceiver, parity bool, opts ...DecoderOption) *Decoder {
	d := &Decoder{rx: rx, parity: parity}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Buffered reports whether the next Decode is served without a read
func (d *Decoder) Buffered() bool {
	return d.hasPending
}

// Reset drops a held byte. Call it after flushing the line.
func (d *Decoder) Reset() {
	d.pending = TransferOutcome{}
	d.hasPending = false
}

// Decode returns the next logical byte. It performs between zero and three
// reads on the underlying receiver; a failed read is returned as is.
func (d *Decoder) Decode() TransferOutcome {
	first := d.next()
	if first.Status.Has(StatusFailure) || first.Byte != escapeMark {
		return first
	}

	second := d.rx.ReceiveByte()
	if second.Status.Has(StatusFailure) {
		return second
	}
	overrun := (first.Status | second.Status) & StatusOverrun

	switch second.Byte {
	case escapeMark:
		second.Status |= overrun
		return second
	case escapeErr:
		third := d.rx.ReceiveByte()
		if third.Status.Has(StatusFailure) {
			return third
		}
		status := StatusFramingError | overrun | third.Status&(StatusOverrun|StatusTimeReadFailed)
		if third.Byte == 0 {
			status |= StatusBreak
		}
		if d.parity {
			status |= StatusParityError
		}
		third.Status = status
		return third
	default:
		if d.legacyDrop {
			second.Byte = escapeMark
			second.Status |= overrun
			return second
		}
		d.pending = second
		d.hasPending = true
		return first
	}
}

func (d *Decoder) next() TransferOutcome {
	if d.hasPending {
		out := d.pending
		d.Reset()
		return out
	}
	return d.rx.ReceiveByte()
}
