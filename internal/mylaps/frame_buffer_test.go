package mylaps

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestFrameBuffer(clock *fakeClock) *FrameBuffer {
	fb := NewFrameBuffer("test", 500*time.Millisecond, 0, zerolog.Nop())
	fb.now = clock.Now
	fb.lastTime = clock.Now()
	return fb
}

func drainAll(fb *FrameBuffer) []string {
	var frames []string
	fb.Drain(func(frame []byte) {
		frames = append(frames, string(frame))
	})
	return frames
}

const sampleStream = "Toolkit@Pong@$Toolkit@GetLocations@ln=Start@ln=5K@ln=Finish@$" +
	"10KM@Passing@t=13:11:30.904|c=0000041|ct=UH|d=120606@1016@$Start@AckPing@$"

// TestFrameBuffer_Drain_ExtractsFramesInOrder tests that all terminated frames are yielded in order.
func TestFrameBuffer_Drain_ExtractsFramesInOrder(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	fb := newTestFrameBuffer(clock)

	fb.Append([]byte(sampleStream + "Start@Pi"))
	frames := drainAll(fb)

	assert.Equal(t, []string{
		"Toolkit@Pong@",
		"Toolkit@GetLocations@ln=Start@ln=5K@ln=Finish@",
		"10KM@Passing@t=13:11:30.904|c=0000041|ct=UH|d=120606@1016@",
		"Start@AckPing@",
	}, frames)
	assert.Equal(t, len("Start@Pi"), fb.Len())
}

// TestFrameBuffer_ChunkBoundariesDoNotMatter tests the streaming reassembly invariant for every split size.
func TestFrameBuffer_ChunkBoundariesDoNotMatter(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	whole := newTestFrameBuffer(clock)
	whole.Append([]byte(sampleStream))
	expected := drainAll(whole)

	for chunkSize := 1; chunkSize <= len(sampleStream); chunkSize++ {
		fb := newTestFrameBuffer(clock)
		var got []string
		data := []byte(sampleStream)
		for start := 0; start < len(data); start += chunkSize {
			end := start + chunkSize
			if end > len(data) {
				end = len(data)
			}
			clock.Advance(10 * time.Millisecond)
			fb.Append(data[start:end])
			got = append(got, drainAll(fb)...)
		}
		assert.Equal(t, expected, got, "chunk size %d", chunkSize)
		assert.Zero(t, fb.Len(), "chunk size %d", chunkSize)
	}
}

// TestFrameBuffer_Append_DropsStaleResidual tests that unterminated data older than the threshold is discarded.
func TestFrameBuffer_Append_DropsStaleResidual(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	fb := newTestFrameBuffer(clock)

	fb.Append([]byte("Start@Pas"))
	assert.Empty(t, drainAll(fb))

	clock.Advance(501 * time.Millisecond)
	fb.Append([]byte("Finish@Ping@$"))

	assert.Equal(t, []string{"Finish@Ping@"}, drainAll(fb))
}

// TestFrameBuffer_Append_KeepsResidualWithinThreshold tests that a gap at the threshold keeps the residual.
func TestFrameBuffer_Append_KeepsResidualWithinThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	fb := newTestFrameBuffer(clock)

	fb.Append([]byte("Start@Pi"))
	clock.Advance(500 * time.Millisecond)
	fb.Append([]byte("ng@$"))

	assert.Equal(t, []string{"Start@Ping@"}, drainAll(fb))
}

// TestFrameBuffer_Append_LongPauseWithEmptyBuffer tests that a long pause alone never drops data.
func TestFrameBuffer_Append_LongPauseWithEmptyBuffer(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	fb := newTestFrameBuffer(clock)

	clock.Advance(time.Hour)
	fb.Append([]byte("Start@Ping@$"))

	assert.Equal(t, []string{"Start@Ping@"}, drainAll(fb))
}

// TestFrameBuffer_Append_SizeLimit tests that an oversized unterminated buffer is dropped.
func TestFrameBuffer_Append_SizeLimit(t *testing.T) {
	fb := NewFrameBuffer("test", time.Second, 8, zerolog.Nop())

	fb.Append([]byte("0123456789"))
	assert.Zero(t, fb.Len())

	fb.Append([]byte("A@Ping@$"))
	assert.Equal(t, []string{"A@Ping@"}, drainAll(fb))
}

// TestStripZeroBytes tests removal of NUL padding.
func TestStripZeroBytes(t *testing.T) {
	assert.Equal(t, []byte("A@Ping@$"), StripZeroBytes([]byte("A\x00@Ping@\x00\x00$")))
	assert.Equal(t, []byte("clean"), StripZeroBytes([]byte("clean")))
	assert.Empty(t, StripZeroBytes([]byte{0, 0}))
}
