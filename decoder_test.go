package serial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// scriptedReceiver replays bytes, then fails with EIO
type scriptedReceiver struct {
	data  []byte
	reads int
}

func (r *scriptedReceiver) ReceiveByte() TransferOutcome {
	if r.reads >= len(r.data) {
		return TransferOutcome{Status: StatusFailure, Err: unix.EIO}
	}
	b := r.data[r.reads]
	r.reads++
	return TransferOutcome{Status: StatusOK, Byte: b, Time: time.Unix(int64(r.reads), 0)}
}

func TestDecoderPassesPlainBytes(t *testing.T) {
	input := []byte{0x00, 0x01, 0x41, 0x7F, 0x80, 0xFE}
	dec := NewDecoder(&scriptedReceiver{data: input}, false)

	for _, want := range input {
		out := dec.Decode()
		assert.Equal(t, StatusOK, out.Status)
		assert.Equal(t, want, out.Byte)
	}
}

func TestDecoderEscapes(t *testing.T) {
	tests := []struct {
		name   string
		input  []byte
		parity bool
		status Status
		b      byte
		reads  int
	}{
		{"break", []byte{0xFF, 0x00, 0x00}, false, StatusFramingError | StatusBreak, 0x00, 3},
		{"break with parity", []byte{0xFF, 0x00, 0x00}, true, StatusFramingError | StatusBreak | StatusParityError, 0x00, 3},
		{"framing", []byte{0xFF, 0x00, 0x41}, false, StatusFramingError, 0x41, 3},
		{"framing with parity", []byte{0xFF, 0x00, 0x41}, true, StatusFramingError | StatusParityError, 0x41, 3},
		{"doubled 0xFF", []byte{0xFF, 0xFF}, false, StatusOK, 0xFF, 2},
		{"lone 0xFF", []byte{0xFF, 0x41}, false, StatusOK, 0xFF, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rx := &scriptedReceiver{data: tt.input}
			out := NewDecoder(rx, tt.parity).Decode()
			assert.Equal(t, tt.status, out.Status, "status %v", out.Status)
			assert.Equal(t, tt.b, out.Byte)
			assert.Equal(t, tt.reads, rx.reads)
		})
	}
}

func TestDecoderHoldsByteAfterLoneFF(t *testing.T) {
	rx := &scriptedReceiver{data: []byte{0xFF, 0x41, 0x42}}
	dec := NewDecoder(rx, false)

	out := dec.Decode()
	require.Equal(t, StatusOK, out.Status)
	assert.Equal(t, byte(0xFF), out.Byte)
	assert.True(t, dec.Buffered())

	out = dec.Decode()
	assert.Equal(t, byte(0x41), out.Byte)
	assert.Equal(t, 2, rx.reads, "held byte must be served without a read")
	assert.False(t, dec.Buffered())

	out = dec.Decode()
	assert.Equal(t, byte(0x42), out.Byte)
}

func TestDecoderLegacyDrop(t *testing.T) {
	rx := &scriptedReceiver{data: []byte{0xFF, 0x41, 0x42}}
	dec := NewDecoder(rx, false, WithLegacyDrop())

	out := dec.Decode()
	assert.Equal(t, byte(0xFF), out.Byte)
	assert.False(t, dec.Buffered())

	out = dec.Decode()
	assert.Equal(t, byte(0x42), out.Byte, "0x41 is dropped")
}

func TestDecoderReset(t *testing.T) {
	rx := &scriptedReceiver{data: []byte{0xFF, 0x41, 0x42}}
	dec := NewDecoder(rx, false)

	dec.Decode()
	require.True(t, dec.Buffered())
	dec.Reset()
	assert.False(t, dec.Buffered())
	assert.Equal(t, byte(0x42), dec.Decode().Byte)
}

func TestDecoderPropagatesFailure(t *testing.T) {
	inputs := [][]byte{
		{},
		{0xFF},
		{0xFF, 0x00},
	}

	for _, in := range inputs {
		out := NewDecoder(&scriptedReceiver{data: in}, false).Decode()
		assert.True(t, out.Status.Has(StatusFailure), "input % x", in)
		assert.ErrorIs(t, out.Err, unix.EIO)
	}
}

func TestDecoderOverPTY(t *testing.T) {
	master, slave := openPTY(t)
	p := openTestPort(t, slave)
	dec := NewDecoder(p, p.ParityEnabled())

	// n_tty doubles 0xFF under PARMRK
	_, err := master.Write([]byte{0x10, 0xFF, 0x20})
	require.NoError(t, err)

	for _, want := range []byte{0x10, 0xFF, 0x20} {
		r, err := p.WaitReadable(time.Second)
		require.NoError(t, err)
		require.Equal(t, Ready, r)

		out := dec.Decode()
		require.True(t, out.Status.Has(StatusOK), "status %v", out.Status)
		assert.Equal(t, want, out.Byte)
	}
	assert.False(t, dec.Buffered())
}
