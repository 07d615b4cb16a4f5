// Package controller is the facade a host (CLI, plugin, MIDI surface) drives
// a Song through: load, play/stop, query position, render offline or to a
// live audio thread, and submit edits without stopping playback. Its
// control/audio split -- a bounded non-blocking queue from the control side,
// drained once per frame on the audio side -- follows the same one-channel-
// per-concern shape as the teacher's tracker.Broker, scaled down to the
// single edit-command channel this engine needs.
package controller

import (
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"github.com/oxbowlabs/beatforge/edit"
	"github.com/oxbowlabs/beatforge/engine"
	"github.com/oxbowlabs/beatforge/ir"
	"github.com/oxbowlabs/beatforge/scheduler"
	"github.com/oxbowlabs/beatforge/wav"
)

// editQueueCapacity is the SPSC queue's bound; a full queue returns
// ErrEditQueueFull rather than blocking the submitting goroutine.
const editQueueCapacity = 64

// ErrEditQueueFull is returned by SubmitEdit when the audio thread has not
// yet drained enough room for another command; callers should retry or
// coalesce per spec.
var ErrEditQueueFull = fmt.Errorf("controller: edit queue full")

// Frame is one stereo output sample, the wire shape an AudioSink consumes.
type Frame struct {
	L, R int16
}

// Controller owns one Engine and everything needed to drive it from a
// separate control thread: a loaded Song, a bounded edit queue, and
// lock-free position/finished publishing for a polling UI.
type Controller struct {
	mu  sync.Mutex // guards eng and song swaps (LoadSong, synchronous edits)
	eng *engine.Engine

	sampleRate uint32
	edits      chan edit.Command

	positionBeat    atomic.Uint64
	positionSubbeat atomic.Uint32
	playing         atomic.Bool
	finished        atomic.Bool
}

// New returns a Controller with no song loaded.
func New(sampleRate uint32) *Controller {
	return &Controller{
		sampleRate: sampleRate,
		edits:      make(chan edit.Command, editQueueCapacity),
	}
}

// LoadSong replaces the controller's song with a freshly scheduled Engine,
// stopping playback first. Edits queued before the old song are discarded.
func (c *Controller) LoadSong(song *ir.Song) error {
	eng, err := engine.New(song, c.sampleRate)
	if err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	if err := eng.ScheduleSong(); err != nil {
		return fmt.Errorf("controller: %w", err)
	}

	c.mu.Lock()
	c.eng = eng
	c.mu.Unlock()

	c.drainEdits()
	c.playing.Store(false)
	c.finished.Store(false)
	c.positionBeat.Store(0)
	c.positionSubbeat.Store(0)
	return nil
}

func (c *Controller) drainEdits() {
	for {
		select {
		case <-c.edits:
		default:
			return
		}
	}
}

// Play starts (or resumes) playback from the current position.
func (c *Controller) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eng == nil {
		return
	}
	c.eng.Play()
	c.playing.Store(true)
}

// Stop halts playback; position is unchanged.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eng != nil {
		c.eng.Stop()
	}
	c.playing.Store(false)
}

// Position returns the last position published by the render path: the
// live path reads this lock-free via the atomics RenderFramesInto updates
// every frame; the offline path (RenderToWav) updates it once at the end.
func (c *Controller) Position() ir.MusicalTime {
	return ir.MusicalTime{Beat: c.positionBeat.Load(), SubBeat: c.positionSubbeat.Load()}
}

// IsFinished reports whether the loaded song has played past its scheduled
// end.
func (c *Controller) IsFinished() bool { return c.finished.Load() }

// TrackPosition locates trackIdx's play head in its own clip/row
// coordinates as of the controller's last published position, or false if
// no song is loaded, trackIdx is out of range, or the track has not yet
// started.
func (c *Controller) TrackPosition(trackIdx int) (scheduler.TrackPlaybackPosition, bool) {
	c.mu.Lock()
	eng := c.eng
	c.mu.Unlock()
	if eng == nil {
		return scheduler.TrackPlaybackPosition{}, false
	}
	return scheduler.TrackPositionAt(eng.Song(), trackIdx, c.Position())
}

// SubmitEdit enqueues cmd for the audio thread to apply before its next
// frame. If the engine is stopped, the edit is applied synchronously
// instead, matching spec's "when stopped, edits are applied synchronously"
// rule -- there is no audio thread draining the queue to apply it otherwise.
// Returns ErrEditQueueFull if the live queue has no room; the caller should
// retry or coalesce.
func (c *Controller) SubmitEdit(cmd edit.Command) error {
	if !c.playing.Load() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.eng == nil {
			return fmt.Errorf("controller: no song loaded")
		}
		return edit.Apply(c.eng, cmd)
	}
	select {
	case c.edits <- cmd:
		return nil
	default:
		return ErrEditQueueFull
	}
}

// applyQueuedEdits drains every edit queued since the last frame, applied in
// submission order, matching "edits are dispatched through a queue drained
// by the audio thread each frame before the render."
func (c *Controller) applyQueuedEdits() {
	for {
		select {
		case cmd := <-c.edits:
			edit.Apply(c.eng, cmd)
		default:
			return
		}
	}
}

// RenderFramesInto fills frames one stereo sample at a time, draining queued
// edits before each frame and converting the engine's f32 output to i16 via
// round(clamp(x,-1,1) * 32767), the Master-boundary conversion spec
// prescribes for the audio backend.
func (c *Controller) RenderFramesInto(frames []Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eng == nil {
		return fmt.Errorf("controller: no song loaded")
	}
	for i := range frames {
		c.applyQueuedEdits()
		l, r := c.eng.RenderFrame()
		frames[i] = Frame{L: floatToI16(l), R: floatToI16(r)}
		c.publishPosition()
	}
	return nil
}

func (c *Controller) publishPosition() {
	pos := c.eng.Position()
	c.positionBeat.Store(pos.Beat)
	c.positionSubbeat.Store(pos.SubBeat)
	c.finished.Store(c.eng.IsFinished())
}

func floatToI16(v float32) int16 {
	if v < -1 {
		v = -1
	}
	if v > 1 {
		v = 1
	}
	return int16(math.Round(float64(v) * 32767))
}

// RenderToWav renders the whole loaded song offline (ignoring the live edit
// queue -- any edit applied during an offline render is synchronous, as the
// song is not "playing" in the live sense) into a RIFF/WAVE file at path.
// frameCount bounds how many stereo frames to render; callers typically
// pass the scheduled song length in samples.
func (c *Controller) RenderToWav(path string, frameCount int, pcm16 bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eng == nil {
		return fmt.Errorf("controller: no song loaded")
	}
	c.eng.Play()
	buf := ir.NewAudioBuffer(2, frameCount)
	l, r := buf.Channel(0), buf.Channel(1)
	for i := 0; i < frameCount; i++ {
		lv, rv := c.eng.RenderFrame()
		l[i], r[i] = lv, rv
	}
	c.eng.Stop()
	c.publishPosition()

	data, err := wav.Encode(buf, c.sampleRate, pcm16)
	if err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	return nil
}
