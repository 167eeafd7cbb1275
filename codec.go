//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: this repository's own stream.go (2-byte length-prefixed
// framing over bufio.Reader + io.ReadFull), generalized to a 4-byte,
// size-capped frame carrying MessagePack payloads.
//

package nitrogen

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize is the largest frame this codec will read or write.
//
// Frames whose length prefix exceeds this value are rejected without
// reading the body; this is fatal to the owning stream only.
const MaxFrameSize = 16 * 1024 * 1024

// ErrFrameTooLarge indicates a frame's length prefix exceeded [MaxFrameSize].
var ErrFrameTooLarge = errors.New("nitrogen: frame exceeds maximum size")

// FramedConn implements length-delimited framing over a [Stream].
//
// Each frame is a 4-byte big-endian length prefix followed by that many
// payload bytes. Construct using [NewFramedConn].
//
// A [*FramedConn] is safe for one concurrent reader and one concurrent
// writer, matching how the client driver (single owner of both halves)
// and the server dispatcher (one receive loop, replies written under a
// mutex) use it; it is not safe for multiple concurrent writers or
// multiple concurrent readers.
type FramedConn struct {
	stream Stream
	reader *bufio.Reader
}

// NewFramedConn wraps stream in length-delimited framing.
func NewFramedConn(stream Stream) *FramedConn {
	return &FramedConn{
		stream: stream,
		reader: bufio.NewReader(stream),
	}
}

// ReadFrame reads and returns the next frame's raw payload.
func (f *FramedConn) ReadFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(f.reader, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(f.reader, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload as a single length-delimited frame.
func (f *FramedConn) WriteFrame(payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := f.stream.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := f.stream.Write(payload); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying stream.
func (f *FramedConn) Close() error {
	return f.stream.Close()
}

// CloseWrite half-closes the underlying stream's write side, if supported.
func (f *FramedConn) CloseWrite() error {
	return f.stream.CloseWrite()
}

// ReadMessage reads the next frame and decodes it as T via MessagePack.
func ReadMessage[T any](f *FramedConn) (T, error) {
	var zero T
	frame, err := f.ReadFrame()
	if err != nil {
		return zero, err
	}
	var msg T
	if err := msgpack.Unmarshal(frame, &msg); err != nil {
		return zero, fmt.Errorf("nitrogen: decode message: %w", err)
	}
	return msg, nil
}

// WriteMessage encodes msg via MessagePack and writes it as one frame.
func WriteMessage[T any](f *FramedConn, msg T) error {
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return fmt.Errorf("nitrogen: encode message: %w", err)
	}
	return f.WriteFrame(data)
}
