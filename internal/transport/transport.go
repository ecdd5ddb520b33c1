// Package transport abstracts the two physical channels a Baikal miner can
// be attached over: a USB bulk endpoint pair, or a UART serial line. The
// Codec, Bus Session, Work Shaper, Scan Engine and Supervisor above this
// package are transport-agnostic.
package transport

import "time"

// Transport is the minimal surface the Bus Session needs: blocking
// writes, blocking reads of a known expected length, and stale-buffer
// recovery. Implementations do not interpret frame contents.
type Transport interface {
	// WriteAll writes the full buffer, returning the number of bytes
	// written and an error if the underlying channel failed before
	// consuming all of it.
	WriteAll(buf []byte) (int, error)

	// ReadExact blocks until expected bytes have been read into buf
	// (buf must be at least that long) or the transport's read
	// deadline elapses, and returns the count actually read.
	ReadExact(buf []byte, expected int) (int, error)

	// Drain repeatedly reads and discards up to 10 times to clear
	// stale bytes left over from a prior, abandoned transaction.
	Drain()

	Close() error
}

// drainAttempts bounds how many reads Drain will absorb before giving up.
const drainAttempts = 10

// genericDrain implements the shared "read and discard up to 10 times"
// policy against any reader that returns promptly on an idle channel
// (both transports' ReadExact already honor a short timeout).
func genericDrain(readOnce func([]byte) (int, error)) {
	scratch := make([]byte, 128)
	for i := 0; i < drainAttempts; i++ {
		n, err := readOnce(scratch)
		if err != nil || n == 0 {
			return
		}
	}
}

// defaultReadTimeout is a 3 s read deadline value. Neither transport
// reads it: serial takes its VTIME from OpenSerial's readTimeout argument
// and USB uses usbReadTimeout.
const defaultReadTimeout = 3 * time.Second
