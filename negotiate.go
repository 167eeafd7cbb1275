//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original nitrogen/src/negotiator.rs (2-byte big-endian
// length prefix + MessagePack) and this repository's own deleted
// stream.go (bufio.Reader + io.ReadFull framing idiom, newStreamMsgFrame).
//

package nitrogen

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/bassosimone/runtimex"
	"github.com/vmihailenco/msgpack/v5"
)

// writeNegotiate sends a [Negotiate] record using the lighter 2-byte
// length-prefixed framing reserved for the handshake.
func writeNegotiate(w io.Writer, negotiate Negotiate) error {
	body, err := msgpack.Marshal(&negotiate)
	if err != nil {
		return fmt.Errorf("nitrogen: encode negotiate: %w", err)
	}
	runtimex.Assert(len(body) <= math.MaxUint16)
	frame := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(frame, uint16(len(body)))
	copy(frame[2:], body)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("nitrogen: write negotiate: %w", err)
	}
	return nil
}

// readNegotiate reads exactly one [Negotiate] record using the 2-byte
// length-prefixed framing, as must precede any other traffic on a new
// stream.
//
// It reads directly from r with [io.ReadFull] rather than through a
// buffered reader: r becomes the backing stream of a [FramedConn]
// immediately afterwards, and a bufio.Reader here could silently
// swallow the first bytes of that subsequent framing by over-reading
// from the underlying stream.
func readNegotiate(r io.Reader) (Negotiate, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Negotiate{}, fmt.Errorf("nitrogen: read negotiate length: %w", err)
	}
	length := binary.BigEndian.Uint16(lenBuf[:])
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Negotiate{}, fmt.Errorf("nitrogen: read negotiate body: %w", err)
	}
	var negotiate Negotiate
	if err := msgpack.Unmarshal(body, &negotiate); err != nil {
		return Negotiate{}, fmt.Errorf("nitrogen: decode negotiate: %w", err)
	}
	return negotiate, nil
}
