package mylaps

import (
	"bytes"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// FrameBuffer reassembles frames from the byte stream of one connection.
//
// Bytes that stay unterminated for longer than maxDelay are treated as the
// leftover of a broken transmission and are dropped on the next Append instead
// of being glued to unrelated data.
type FrameBuffer struct {
	name     string
	buffer   []byte
	lastTime time.Time
	maxDelay time.Duration
	maxSize  int
	logger   zerolog.Logger
	now      func() time.Time
}

// NewFrameBuffer creates an empty buffer. A maxSize of 0 disables the size limit.
func NewFrameBuffer(name string, maxDelay time.Duration, maxSize int, logger zerolog.Logger) *FrameBuffer {
	return &FrameBuffer{
		name:     name,
		maxDelay: maxDelay,
		maxSize:  maxSize,
		logger:   logger,
		now:      time.Now,
		lastTime: time.Now(),
	}
}

// Append adds incoming bytes, discarding a stale residual first.
func (fb *FrameBuffer) Append(data []byte) {
	now := fb.now()
	if len(fb.buffer) > 0 && now.Sub(fb.lastTime) > fb.maxDelay {
		fb.logger.Warn().
			Str("buffer", fb.name).
			Dur("delta", now.Sub(fb.lastTime)).
			Dur("allowed_delta", fb.maxDelay).
			Str("dropped", humanize.Bytes(uint64(len(fb.buffer)))).
			Bytes("dropped_bytes", fb.buffer).
			Msg("Buffer too old, dropping unterminated data")
		fb.buffer = fb.buffer[:0]
	}

	fb.buffer = append(fb.buffer, data...)
	fb.lastTime = now

	if fb.maxSize > 0 && len(fb.buffer) > fb.maxSize && bytes.IndexByte(fb.buffer, FrameTerminator[0]) < 0 {
		fb.logger.Warn().
			Str("buffer", fb.name).
			Str("dropped", humanize.Bytes(uint64(len(fb.buffer)))).
			Int("max_size", fb.maxSize).
			Msg("Buffer exceeded size limit without a frame terminator, dropping")
		fb.buffer = fb.buffer[:0]
	}
}

// Drain hands every complete frame to onFrame in arrival order, without the
// terminator, and keeps the unterminated remainder.
func (fb *FrameBuffer) Drain(onFrame func(frame []byte)) {
	for {
		pos := bytes.IndexByte(fb.buffer, FrameTerminator[0])
		if pos < 0 {
			break
		}
		frame := make([]byte, pos)
		copy(frame, fb.buffer[:pos])
		fb.buffer = append(fb.buffer[:0], fb.buffer[pos+1:]...)
		if onFrame != nil {
			onFrame(frame)
		}
	}
}

// Len returns the number of buffered, unterminated bytes.
func (fb *FrameBuffer) Len() int {
	return len(fb.buffer)
}

// Reset drops all buffered bytes.
func (fb *FrameBuffer) Reset() {
	fb.buffer = fb.buffer[:0]
}

// StripZeroBytes removes NUL bytes some decoders pad their output with.
func StripZeroBytes(data []byte) []byte {
	if bytes.IndexByte(data, 0) < 0 {
		return data
	}
	out := make([]byte, 0, len(data))
	for _, b := range data {
		if b != 0 {
			out = append(out, b)
		}
	}
	return out
}
