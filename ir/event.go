package ir

// EventTargetKind distinguishes an Event's three possible target shapes.
type EventTargetKind int

const (
	TargetKindChannel EventTargetKind = iota
	TargetKindNode
	TargetKindGlobal
)

// EventTarget names what an Event dispatches to.
type EventTarget struct {
	Kind    EventTargetKind
	Channel uint8   // valid when Kind == TargetKindChannel
	Node    NodeKey // valid when Kind == TargetKindNode
}

// ChannelTarget is a convenience constructor.
func ChannelTarget(ch uint8) EventTarget { return EventTarget{Kind: TargetKindChannel, Channel: ch} }

// NodeTarget is a convenience constructor.
func NodeTarget(n NodeKey) EventTarget { return EventTarget{Kind: TargetKindNode, Node: n} }

// GlobalTarget is a convenience constructor.
func GlobalTarget() EventTarget { return EventTarget{Kind: TargetKindGlobal} }

// EventPayloadKind tags which field of EventPayload is populated.
type EventPayloadKind int

const (
	PayloadNoteOn EventPayloadKind = iota
	PayloadNoteOff
	PayloadGateOff
	PayloadEffect
	PayloadSetParameter
	PayloadSetBPM
	PayloadEndOfSong
	PayloadSeqMarker
	PayloadPortaTarget
	PayloadSetSpeed
)

// EventPayload is a small tagged union (Copy-cheap: no pointers, no slices)
// covering every event the scheduler and engine exchange.
type EventPayload struct {
	Kind EventPayloadKind

	Note       uint8 // NoteOn
	Velocity   uint8 // NoteOn
	Instrument uint8 // NoteOn

	Effect Effect // PayloadEffect

	ParamID int32 // SetParameter
	Value   int32 // SetParameter

	BPM   int32  // SetBPM, fixed-point beats-per-minute*100
	Speed uint32 // SetSpeed, ticks per row
	RPB   uint32 // SetSpeed, rows per beat in effect at this point

	TrackIdx int // SeqMarker
	SeqIdx   int // SeqMarker
	ClipIdx  int // SeqMarker
}

// Event is one scheduled occurrence: a time, a target, and a payload.
type Event struct {
	Time    MusicalTime
	Target  EventTarget
	Payload EventPayload
}

// NoteOnEvent builds a NoteOn event.
func NoteOnEvent(t MusicalTime, ch uint8, note, velocity, instrument uint8) Event {
	return Event{Time: t, Target: ChannelTarget(ch), Payload: EventPayload{
		Kind: PayloadNoteOn, Note: note, Velocity: velocity, Instrument: instrument,
	}}
}

// NoteOffEvent builds a NoteOff event.
func NoteOffEvent(t MusicalTime, ch uint8) Event {
	return Event{Time: t, Target: ChannelTarget(ch), Payload: EventPayload{Kind: PayloadNoteOff}}
}

// GateOffEvent builds a GateOff event (release sustain hold, not a hard cut).
func GateOffEvent(t MusicalTime, ch uint8) Event {
	return Event{Time: t, Target: ChannelTarget(ch), Payload: EventPayload{Kind: PayloadGateOff}}
}

// PortaTargetEvent builds a PortaTarget event: a tone-porta row names a new
// target note without retriggering the voice, so it is scheduled distinct
// from NoteOn and interpreted by the channel controller as "glide toward
// this note's period" rather than "start this note".
func PortaTargetEvent(t MusicalTime, ch uint8, note, instrument uint8) Event {
	return Event{Time: t, Target: ChannelTarget(ch), Payload: EventPayload{
		Kind: PayloadPortaTarget, Note: note, Instrument: instrument,
	}}
}

// EffectEvent builds an Effect event.
func EffectEvent(t MusicalTime, ch uint8, e Effect) Event {
	return Event{Time: t, Target: ChannelTarget(ch), Payload: EventPayload{Kind: PayloadEffect, Effect: e}}
}

// SetBPMEvent builds a global SetBPM event.
func SetBPMEvent(t MusicalTime, bpm int32) Event {
	return Event{Time: t, Target: GlobalTarget(), Payload: EventPayload{Kind: PayloadSetBPM, BPM: bpm}}
}

// SetSpeedEvent builds a global SetSpeed event: ticks-per-row and
// rows-per-beat, together, are what the realtime engine needs to keep its
// own tick clock aligned with the scheduler's row timing after a row sets
// the speed or a pattern overrides ticks-per-row/rows-per-beat.
func SetSpeedEvent(t MusicalTime, speed, rpb uint32) Event {
	return Event{Time: t, Target: GlobalTarget(), Payload: EventPayload{
		Kind: PayloadSetSpeed, Speed: speed, RPB: rpb,
	}}
}

// EndOfSongEvent builds a global EndOfSong event.
func EndOfSongEvent(t MusicalTime) Event {
	return Event{Time: t, Target: GlobalTarget(), Payload: EventPayload{Kind: PayloadEndOfSong}}
}

// SeqMarkerEvent builds an (optional) position-tracking marker event.
func SeqMarkerEvent(t MusicalTime, track, seq, clip int) Event {
	return Event{Time: t, Target: GlobalTarget(), Payload: EventPayload{
		Kind: PayloadSeqMarker, TrackIdx: track, SeqIdx: seq, ClipIdx: clip,
	}}
}
