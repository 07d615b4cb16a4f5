// Package engine orchestrates scheduling, tick-driven modulation, voice
// rendering, and graph mixing into one sample-accurate playback engine.
package engine

import (
	"errors"
	"fmt"

	"github.com/oxbowlabs/beatforge/channel"
	"github.com/oxbowlabs/beatforge/eventqueue"
	"github.com/oxbowlabs/beatforge/graph"
	"github.com/oxbowlabs/beatforge/ir"
	"github.com/oxbowlabs/beatforge/period"
	"github.com/oxbowlabs/beatforge/scheduler"
	"github.com/oxbowlabs/beatforge/voicepool"
)

// Engine is the sample-accurate playback engine for one loaded Song.
type Engine struct {
	song *ir.Song

	channels     []channel.State
	channelVoice []voicepool.VoiceID
	hasVoice     []bool
	channelNode  []ir.NodeKey // the graph node a tracker channel's audio feeds

	voices       *voicepool.Pool
	gstate       *graph.State
	queue        *eventqueue.Queue
	frameScratch *ir.AudioBuffer

	currentTime ir.MusicalTime
	sampleRate  uint32

	samplesPerTick uint32
	sampleCounter  uint32

	bpm         int32 // beats per minute * 100
	speed       uint32
	rowsPerBeat uint32
	tickInBeat  uint32

	playing     bool
	songEndTime *ir.MusicalTime

	prepared bool
}

// New constructs an Engine for song, rejecting invalid IR outright (a
// malformed song never reaches the realtime path).
func New(song *ir.Song, sampleRate uint32) (*Engine, error) {
	if err := song.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	gstate, err := graph.NewState(song.Graph, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		song:        song,
		channels:    make([]channel.State, len(song.Channels)),
		voices:       voicepool.NewPool(),
		gstate:       gstate,
		queue:        eventqueue.New(),
		frameScratch: ir.NewAudioBuffer(2, 1),
		sampleRate:   sampleRate,
		bpm:         song.InitialBPM,
		speed:       uint32(song.InitialSpeed),
		rowsPerBeat: uint32(song.RowsPerBeat),
	}
	e.channelVoice = make([]voicepool.VoiceID, len(e.channels))
	e.hasVoice = make([]bool, len(e.channels))
	e.channelNode = make([]ir.NodeKey, len(e.channels))

	for i := range e.channels {
		e.channels[i] = *channel.New()
		if i < len(song.Channels) {
			e.channels[i].Panning = song.Channels[i].Pan
			e.channels[i].Volume = song.Channels[i].Volume
		}
	}
	for _, k := range song.Graph.NodeKeys() {
		n := song.Graph.Node(k)
		if n != nil && n.Type == ir.NodeTrackerChannel && n.TrackerChannelIndex < len(e.channelNode) {
			e.channelNode[n.TrackerChannelIndex] = k
		}
	}
	// Reconstructs the canonical sample-key space: inserting Song.Samples in
	// order into a fresh SlotMap always yields Key{index: i, generation: 1},
	// the same keys an IR loader must have used to populate
	// Instrument.SampleMap in the first place.
	for _, s := range song.Samples {
		e.voices.SampleBank.Insert(s)
	}

	e.updateSamplesPerTick()
	e.prepared = true
	return e, nil
}

func (e *Engine) updateSamplesPerTick() {
	if e.bpm <= 0 {
		e.samplesPerTick = 0
		return
	}
	// Tracker convention: bpm*2/5 ticks per second, so
	// samples_per_tick = sample_rate*5 / (bpm_int*2). e.bpm holds BPM*100,
	// so it is reduced to whole BPM first.
	bpmInt := uint32(e.bpm / 100)
	if bpmInt == 0 {
		e.samplesPerTick = 0
		return
	}
	e.samplesPerTick = (e.sampleRate * 5) / (bpmInt * 2)
}

// Play starts playback from the current position.
func (e *Engine) Play() { e.playing = true }

// Stop halts playback; position is unchanged.
func (e *Engine) Stop() { e.playing = false }

// Position returns the engine's current musical-time cursor.
func (e *Engine) Position() ir.MusicalTime { return e.currentTime }

// IsFinished reports whether playback has passed the scheduled song end.
func (e *Engine) IsFinished() bool {
	return e.songEndTime != nil && e.currentTime.Compare(*e.songEndTime) >= 0
}

// Schedule pushes a single event onto the engine's event queue, used by the
// edit command system to inject a change without re-scheduling the whole
// song.
func (e *Engine) Schedule(event ir.Event) { e.queue.Push(event) }

// ScheduleEvents pushes every event in events onto the queue.
func (e *Engine) ScheduleEvents(events []ir.Event) {
	for _, ev := range events {
		e.queue.Push(ev)
	}
}

// RemoveChannelEventsInRange drops every queued event targeting channel
// with Time in [from, to), the surgical invalidation step a single-cell
// edit performs before re-scheduling its replacement. The range (rather
// than a single instant) also catches any note-delay-shifted event the
// previous cell scheduled within the same row.
func (e *Engine) RemoveChannelEventsInRange(channel uint8, from, to ir.MusicalTime) {
	e.queue.Retain(func(ev ir.Event) bool {
		if ev.Target.Kind != ir.TargetKindChannel || ev.Target.Channel != channel {
			return true
		}
		return ev.Time.Compare(from) < 0 || ev.Time.Compare(to) >= 0
	})
}

// SetNodeParam applies a parameter change to node immediately, bypassing
// the event queue entirely -- used by the edit system's SetNodeParam
// command, whether or not playback is running.
func (e *Engine) SetNodeParam(node ir.NodeKey, paramID int, value int32) {
	if m := e.gstate.Machine(node); m != nil {
		m.SetParam(paramID, value)
	}
}

// ApplyLiveNote triggers or releases a note on channel immediately,
// bypassing the event queue and the scheduler entirely -- the path a MIDI
// controller or on-screen keyboard drives, parallel to the per-row note
// events a scheduled pattern produces.
func (e *Engine) ApplyLiveNote(channel uint8, on bool, note, velocity, instrument uint8) {
	if on {
		e.applyChannelEvent(int(channel), ir.EventPayload{
			Kind: ir.PayloadNoteOn, Note: note, Velocity: velocity, Instrument: instrument,
		})
		return
	}
	e.applyChannelEvent(int(channel), ir.EventPayload{Kind: ir.PayloadNoteOff})
}

// ScheduleSong runs the scheduler over the engine's song and loads every
// resulting event into the event queue, replacing whatever was queued.
func (e *Engine) ScheduleSong() error {
	if !e.prepared {
		return errors.New("engine: not prepared")
	}
	result, err := scheduler.ScheduleSong(e.song)
	if err != nil {
		return err
	}
	e.queue.Clear()
	for _, ev := range result.Events {
		e.queue.Push(ev)
	}
	end := result.TotalTime
	e.songEndTime = &end
	return nil
}

// Song returns the engine's loaded song (read-only use expected; mutation
// happens only through the edit command system).
func (e *Engine) Song() *ir.Song { return e.song }

// Channel returns a pointer to tracker channel index's live state, or nil if
// out of range.
func (e *Engine) Channel(index int) *channel.State {
	if index < 0 || index >= len(e.channels) {
		return nil
	}
	return &e.channels[index]
}

// RenderFrame renders a single stereo frame, advancing the engine's clock by
// one sample. Returns silence if playback is stopped.
func (e *Engine) RenderFrame() (float32, float32) {
	if !e.playing {
		return 0, 0
	}

	e.queue.DrainUntil(e.currentTime, e.dispatchEvent)

	left, right := e.renderGraph()

	e.sampleCounter++
	if e.samplesPerTick > 0 && e.sampleCounter >= e.samplesPerTick {
		e.sampleCounter = 0
		e.advanceTick()
		e.processTick()
	} else {
		e.interpolateSubBeat()
	}

	return left, right
}

// RenderBlock fills buf (length buf.Frames(), 2 channels) one sample at a
// time via RenderFrame.
func (e *Engine) RenderBlock(buf *ir.AudioBuffer) {
	l, r := buf.Channel(0), buf.Channel(1)
	for i := 0; i < buf.Frames(); i++ {
		l[i], r[i] = e.RenderFrame()
	}
}

func (e *Engine) ticksPerBeat() uint32 { return e.speed * e.rowsPerBeat }

func (e *Engine) subBeatsPerTick() uint32 {
	tpb := e.ticksPerBeat()
	if tpb == 0 {
		return 0
	}
	return ir.SubBeatUnit / tpb
}

func (e *Engine) advanceTick() {
	e.tickInBeat++
	tpb := e.ticksPerBeat()
	if tpb == 0 || e.tickInBeat >= tpb {
		e.tickInBeat = 0
		e.currentTime.Beat++
		e.currentTime.SubBeat = 0
	} else {
		e.currentTime.SubBeat = e.tickInBeat * ir.SubBeatUnit / tpb
	}
}

func (e *Engine) interpolateSubBeat() {
	tpb := e.ticksPerBeat()
	if tpb == 0 || e.samplesPerTick == 0 {
		return
	}
	subPerTick := ir.SubBeatUnit / tpb
	baseSub := e.tickInBeat * subPerTick
	frac := uint64(e.sampleCounter) * uint64(subPerTick) / uint64(e.samplesPerTick)
	total := uint64(baseSub) + frac
	if total >= uint64(ir.SubBeatUnit) {
		total = uint64(ir.SubBeatUnit) - 1
	}
	e.currentTime.SubBeat = uint32(total)
}

// processTick advances every channel's modulators by one tick and syncs the
// resulting pitch/volume/pan onto its active voice.
func (e *Engine) processTick() {
	for i := range e.channels {
		c := &e.channels[i]
		if !c.Playing {
			continue
		}
		c.ApplyTickEffect()
		c.UpdateIncrement(e.sampleRate)
		e.syncVoice(i)
	}
	e.voices.TickAll(e.subBeatsPerTick())
	e.gstate.Tick()
}

func (e *Engine) syncVoice(channelIndex int) {
	if !e.hasVoice[channelIndex] {
		return
	}
	v := e.voices.Get(e.channelVoice[channelIndex])
	if v == nil {
		e.hasVoice[channelIndex] = false
		return
	}
	c := &e.channels[channelIndex]
	v.Increment = c.Increment
	v.Volume = c.Volume
	v.Panning = c.Panning
	v.VolumeOffset = c.VolumeOffset
	v.LoopForward = c.LoopForward
	v.Playing = c.Playing
}

func (e *Engine) dispatchEvent(ev ir.Event) {
	switch ev.Target.Kind {
	case ir.TargetKindChannel:
		e.applyChannelEvent(int(ev.Target.Channel), ev.Payload)
	case ir.TargetKindGlobal:
		e.applyGlobalEvent(ev.Payload)
	case ir.TargetKindNode:
		if ev.Payload.Kind == ir.PayloadSetParameter {
			if m := e.gstate.Machine(ev.Target.Node); m != nil {
				m.SetParam(int(ev.Payload.ParamID), ev.Payload.Value)
			}
		}
	}
}

// resolveSample looks up the sample index for an instrument+note, returning
// the instrument index and sample index (0-based). instrument == 0 means
// "use instrument 1" per the raw event; callers needing "keep current
// instrument" resolve that before calling.
func (e *Engine) resolveSample(instrument, note uint8) (instIdx int, sampleKey ir.SampleKey) {
	idx := 0
	if instrument > 0 {
		idx = int(instrument) - 1
	}
	if idx < 0 || idx >= len(e.song.Instruments) {
		return idx, ir.SampleKey{}
	}
	inst := &e.song.Instruments[idx]
	key, ok := inst.SampleFor(note)
	if !ok {
		return idx, ir.SampleKey{}
	}
	return idx, key
}

func (e *Engine) sampleC4Speed(key ir.SampleKey) uint32 {
	if s := e.voices.SampleBank.GetPtr(key); s != nil {
		return s.C4Speed
	}
	return 8363
}

func (e *Engine) applyChannelEvent(ch int, payload ir.EventPayload) {
	if ch < 0 || ch >= len(e.channels) {
		return
	}
	c := &e.channels[ch]

	switch payload.Kind {
	case ir.PayloadNoteOn:
		instIdx, sampleKey := e.resolveInstrumentForNoteOn(ch, payload.Instrument, payload.Note)
		e.triggerNote(ch, instIdx, sampleKey, payload.Note)

	case ir.PayloadPortaTarget:
		c.TargetPeriod = period.NoteToPeriod(payload.Note)
		if payload.Instrument > 0 {
			_, sampleKey := e.resolveSample(payload.Instrument, payload.Note)
			if s := e.voices.SampleBank.GetPtr(sampleKey); s != nil {
				c.C4Speed = s.C4Speed
				if e.hasVoice[ch] {
					if v := e.voices.Get(e.channelVoice[ch]); v != nil {
						v.SampleKey = sampleKey
					}
				}
			}
		}

	case ir.PayloadNoteOff:
		c.Stop()
		if e.hasVoice[ch] {
			e.voices.Release(e.channelVoice[ch], e.instrumentFadeout(ch))
		}

	case ir.PayloadEffect:
		eff := payload.Effect
		if eff.Kind == ir.EffectTonePorta && eff.X > 0 {
			c.PortaSpeed = uint8(eff.X)
		}
		if eff.IsRowEffect() {
			c.ApplyRowEffect(eff)
			c.UpdateIncrement(e.sampleRate)
			e.syncVoice(ch)
		} else {
			c.SetupModulator(eff)
		}
	}
}

// resolveInstrumentForNoteOn resolves instrument==0 ("keep current") against
// the channel's currently playing instrument, matching the MOD convention
// that an instrument-less note retrigger keeps the last used instrument.
func (e *Engine) resolveInstrumentForNoteOn(ch int, instrument, note uint8) (instIdx int, sampleKey ir.SampleKey) {
	if instrument > 0 {
		return e.resolveSample(instrument, note)
	}
	c := &e.channels[ch]
	return int(c.Instrument), e.currentSampleKey(ch, note)
}

func (e *Engine) currentSampleKey(ch int, note uint8) ir.SampleKey {
	c := &e.channels[ch]
	idx := int(c.Instrument)
	if idx < 0 || idx >= len(e.song.Instruments) {
		return ir.SampleKey{}
	}
	key, _ := e.song.Instruments[idx].SampleFor(note)
	return key
}

// instrumentAt returns a pointer to channel ch's currently selected
// instrument, or nil if it has none selected or the index is stale.
func (e *Engine) instrumentAt(ch int) *ir.Instrument {
	idx := int(e.channels[ch].Instrument)
	if idx < 0 || idx >= len(e.song.Instruments) {
		return nil
	}
	return &e.song.Instruments[idx]
}

// instrumentFadeout returns channel ch's current instrument's Fadeout, or 0
// if it has no instrument selected.
func (e *Engine) instrumentFadeout(ch int) uint16 {
	if inst := e.instrumentAt(ch); inst != nil {
		return inst.Fadeout
	}
	return 0
}

func (e *Engine) triggerNote(ch, instIdx int, sampleKey ir.SampleKey, note uint8) {
	c := &e.channels[ch]
	e.releasePreviousVoice(ch)

	c.Trigger(note, uint8(instIdx), 0)
	c.C4Speed = e.sampleC4Speed(sampleKey)
	c.Period = period.NoteToPeriod(note)
	c.UpdateIncrement(e.sampleRate)
	if s := e.voices.SampleBank.GetPtr(sampleKey); s != nil {
		c.Volume = s.DefaultVolume
		c.Panning = s.DefaultPan
	}

	v := voicepool.New(sampleKey, uint8(ch))
	v.Increment = c.Increment
	v.Volume = c.Volume
	v.Panning = c.Panning
	v.LoopForward = true
	if instIdx >= 0 && instIdx < len(e.song.Instruments) {
		inst := &e.song.Instruments[instIdx]
		v.SetEnvelopes(inst.VolumeEnvelope, inst.PanningEnvelope, inst.PitchEnvelope)
	}
	id := e.voices.Allocate(v)
	e.channelVoice[ch] = id
	e.hasVoice[ch] = true
}

// releasePreviousVoice applies the outgoing instrument's New Note Action to
// the channel's current voice before a new note replaces it.
func (e *Engine) releasePreviousVoice(ch int) {
	if !e.hasVoice[ch] {
		return
	}
	prevID := e.channelVoice[ch]
	inst := e.instrumentAt(ch)
	nna := ir.NNACut
	if inst != nil {
		nna = inst.NewNoteAction
	}
	switch nna {
	case ir.NNACut:
		e.voices.Kill(prevID)
	case ir.NNAContinue:
		if v := e.voices.Get(prevID); v != nil {
			v.State = voicepool.Background
		}
	case ir.NNAOff:
		fadeout := uint16(0)
		if inst != nil {
			fadeout = inst.Fadeout
		}
		e.voices.Release(prevID, fadeout)
	case ir.NNAFade:
		speed := uint16(256)
		if inst != nil && inst.Fadeout > 0 {
			speed = inst.Fadeout
		}
		e.voices.Fade(prevID, speed)
	}
	e.hasVoice[ch] = false
}

func (e *Engine) applyGlobalEvent(payload ir.EventPayload) {
	switch payload.Kind {
	case ir.PayloadSetBPM:
		e.bpm = payload.BPM
		e.updateSamplesPerTick()
	case ir.PayloadSetSpeed:
		e.speed = payload.Speed
		if payload.RPB > 0 {
			e.rowsPerBeat = payload.RPB
		}
		e.tickInBeat = 0
	case ir.PayloadEndOfSong:
		end := e.currentTime
		e.songEndTime = &end
	}
}

// renderGraph renders every occupied voice into its originating channel's
// graph node -- not just the one each channel currently tracks, so voices
// handed off to Background, Released, or Fading state by a New Note Action
// keep contributing to the mix until they're reaped -- runs every
// Machine/Passthrough node, and returns Master's single-frame output.
func (e *Engine) renderGraph() (float32, float32) {
	e.gstate.ClearOutputs()

	frame := e.frameScratch
	for i := 0; i < voicepool.MaxVoices; i++ {
		v, ok := e.voices.Slot(i)
		if !ok {
			continue
		}
		if int(v.Channel) >= len(e.channelNode) {
			continue
		}
		node := e.channelNode[v.Channel]
		if !node.Valid() {
			continue
		}
		frame.Clear()
		e.voices.RenderVoice(voicepool.VoiceID(i), frame)
		dst := e.gstate.Output(node)
		dst.Channel(0)[0] += frame.Channel(0)[0]
		dst.Channel(1)[0] += frame.Channel(1)[0]
	}
	e.voices.ReapFinished()

	for _, k := range e.gstate.TopoOrder() {
		if k == e.song.Graph.Master {
			continue
		}
		e.gstate.RenderNode(k)
	}
	master := e.gstate.Output(e.song.Graph.Master)
	e.gstate.GatherInputs(e.song.Graph.Master, master)
	return master.Channel(0)[0], master.Channel(1)[0]
}
