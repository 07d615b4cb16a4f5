// Package ir holds the format-neutral intermediate representation the
// playback engine runs on: songs, patterns, samples, instruments, the audio
// graph, and the event stream the scheduler produces from them.
package ir

// SubBeatUnit is the number of sub-beat units per beat. It is the LCM of
// 1..16, so any ticks_per_row x rows_per_beat combination used by a legacy
// tracker format divides it exactly.
const SubBeatUnit uint32 = 720720

// MusicalTime is a beat-based position. Comparisons are lexicographic on
// (Beat, SubBeat); arithmetic normalizes carries into Beat.
type MusicalTime struct {
	Beat    uint64
	SubBeat uint32
}

// Zero is the song-start position.
func Zero() MusicalTime { return MusicalTime{} }

// FromBeats returns a time at an exact beat boundary.
func FromBeats(beat uint64) MusicalTime { return MusicalTime{Beat: beat} }

// Less reports whether t sorts before o.
func (t MusicalTime) Less(o MusicalTime) bool {
	if t.Beat != o.Beat {
		return t.Beat < o.Beat
	}
	return t.SubBeat < o.SubBeat
}

// Compare returns -1, 0, or 1 as t is less than, equal to, or greater than o.
func (t MusicalTime) Compare(o MusicalTime) int {
	switch {
	case t.Beat < o.Beat:
		return -1
	case t.Beat > o.Beat:
		return 1
	case t.SubBeat < o.SubBeat:
		return -1
	case t.SubBeat > o.SubBeat:
		return 1
	default:
		return 0
	}
}

// AddRows advances by rows rows at rowsPerBeat resolution, normalizing the
// sub-beat carry into whole beats.
func (t MusicalTime) AddRows(rows, rowsPerBeat uint32) MusicalTime {
	if rowsPerBeat == 0 {
		return t
	}
	subPerRow := SubBeatUnit / rowsPerBeat
	total := uint64(t.SubBeat) + uint64(rows)*uint64(subPerRow)
	extraBeats := total / uint64(SubBeatUnit)
	return MusicalTime{Beat: t.Beat + extraBeats, SubBeat: uint32(total % uint64(SubBeatUnit))}
}

// AddTicks advances by ticks ticks at ticksPerBeat resolution. Used for
// NoteDelay sub-beat offsets, where ticksPerBeat = speed * rowsPerBeat.
func (t MusicalTime) AddTicks(ticks, ticksPerBeat uint32) MusicalTime {
	if ticksPerBeat == 0 {
		return t
	}
	subPerTick := SubBeatUnit / ticksPerBeat
	total := uint64(t.SubBeat) + uint64(ticks)*uint64(subPerTick)
	extraBeats := total / uint64(SubBeatUnit)
	return MusicalTime{Beat: t.Beat + extraBeats, SubBeat: uint32(total % uint64(SubBeatUnit))}
}

// AddSubBeats advances by a raw sub-beat delta, normalizing carries.
func (t MusicalTime) AddSubBeats(delta uint64) MusicalTime {
	total := uint64(t.SubBeat) + delta
	extraBeats := total / uint64(SubBeatUnit)
	return MusicalTime{Beat: t.Beat + extraBeats, SubBeat: uint32(total % uint64(SubBeatUnit))}
}

// Pack encodes t as a single uint64 for use as a sortable/compact key; beat
// is truncated to 32 bits, which is ample for any realistic song length.
func Pack(t MusicalTime) uint64 {
	return (uint64(uint32(t.Beat)) << 32) | uint64(t.SubBeat)
}
