// Package oto adapts the engine's RenderBlock loop to an
// ebitengine/oto/v3 playback context, the same audio backend dependency the
// teacher's oto/oto.go wires up (there against an older, push-style oto
// API; here against v3's io.Reader-driven Player).
package oto

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/oxbowlabs/beatforge/engine"
	"github.com/oxbowlabs/beatforge/ir"
)

// Sink owns an oto context and a single player streaming an Engine's output.
type Sink struct {
	ctx    *oto.Context
	player *oto.Player
	source *engineReader
}

// NewSink opens a stereo 16-bit playback context and wires eng as its source.
// The returned Sink owns eng's realtime render loop: nothing else should
// call eng.RenderFrame/RenderBlock while the Sink is playing.
func NewSink(eng *engine.Engine, sampleRate uint32) (*Sink, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   int(sampleRate),
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("oto: cannot create context: %w", err)
	}
	<-ready

	src := &engineReader{eng: eng, scratch: ir.NewAudioBuffer(2, ir.BlockSize)}
	player := ctx.NewPlayer(src)
	return &Sink{ctx: ctx, player: player, source: src}, nil
}

// Play starts (or resumes) streaming playback.
func (s *Sink) Play() {
	s.source.eng.Play()
	s.player.Play()
}

// Stop halts streaming playback; the engine's position is unchanged.
func (s *Sink) Stop() {
	s.player.Pause()
	s.source.eng.Stop()
}

// Close releases the player. The underlying oto context is not closed.
func (s *Sink) Close() error {
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("oto: cannot close player: %w", err)
	}
	return nil
}

// engineReader pulls rendered frames from an Engine one block at a time and
// converts them to interleaved signed 16-bit little-endian bytes, the wire
// shape oto.Player.Read expects.
type engineReader struct {
	mu      sync.Mutex
	eng     *engine.Engine
	scratch *ir.AudioBuffer
	pending []byte
}

// Read implements io.Reader, filling p with interleaved S16LE stereo frames
// rendered on demand from the engine.
func (r *engineReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for n < len(p) {
		if len(r.pending) == 0 {
			r.fillBlock()
		}
		copied := copy(p[n:], r.pending)
		r.pending = r.pending[copied:]
		n += copied
	}
	return n, nil
}

func (r *engineReader) fillBlock() {
	r.scratch.Clear()
	r.eng.RenderBlock(r.scratch)
	r.pending = floatBufferToS16LE(r.scratch)
}

// floatBufferToS16LE interleaves buf's two channels into signed 16-bit
// little-endian bytes, matching the teacher's FloatBufferTo16BitLE shape
// but reading from an ir.AudioBuffer instead of a flat interleaved slice.
func floatBufferToS16LE(buf *ir.AudioBuffer) []byte {
	frames := buf.Frames()
	out := make([]byte, 0, frames*4)
	l, r := buf.Channel(0), buf.Channel(1)
	for i := 0; i < frames; i++ {
		out = appendS16LE(out, l[i])
		out = appendS16LE(out, r[i])
	}
	return out
}

func appendS16LE(dst []byte, v float32) []byte {
	var iv int16
	switch {
	case v < -1.0:
		iv = -math.MaxInt16
	case v > 1.0:
		iv = math.MaxInt16
	default:
		iv = int16(v * math.MaxInt16)
	}
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(iv))
	return append(dst, b[:]...)
}
