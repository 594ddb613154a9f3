// Package serial provides the serial line primitives used by serbert, a
// bit error rate tester for UARTs, cables and modems.
//
// The package is Linux only. It opens a device under a UUCP-style lock,
// puts it in raw mode with error marking (PARMRK) and exposes single byte
// transfers with timestamps and bounded readiness waits.
//
// # Basic Usage
//
//	port, err := serial.Open("/dev/ttyUSB0",
//	    serial.WithBaudRate(115200),
//	    serial.WithParity(serial.ParityEven),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	if r, _ := port.WaitWritable(50 * time.Millisecond); r == serial.Ready {
//	    tx := port.TransmitByte(0x55)
//	    _ = tx
//	}
//
//	dec := serial.NewDecoder(port, port.ParityEnabled())
//	if r, _ := port.WaitReadable(300 * time.Millisecond); r == serial.Ready {
//	    rx := dec.Decode()
//	    if rx.Status.LineError() {
//	        // framing, parity or break
//	    }
//	}
//
// # Line Configuration
//
// Configure applies a LineConfig field by field and reports every failure
// in one *ConfigError, so callers can tell which request was rejected:
//
//	if errors.Is(err, serial.ErrInvalidDataBits) { ... }
//
// GetTimeout gives the default round-trip wait for each supported speed.
//
// # Locking
//
// Open takes /var/lock/LCK..<name> unless WithoutLock is given. Stale lock
// files left by dead processes are removed. A live holder is reported as a
// *LockedError, which matches ErrDeviceInUse.
//
// # Escapes
//
// With PARMRK the kernel marks an errored byte X as FF 00 X, a break as
// FF 00 00 and a literal FF as FF FF. Decoder undoes this and reports the
// condition in TransferOutcome.Status.
//
// # Default Configuration
//
//   - BaudRate: 19200
//   - DataBits: 8
//   - StopBits: 1
//   - Parity: None
//   - LowLatency: off
//   - LockDir: /var/lock
package serial
