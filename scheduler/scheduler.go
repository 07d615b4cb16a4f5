// Package scheduler walks a song's tracks and patterns, producing a sorted
// list of ir.Event values that the engine consumes for playback.
package scheduler

import (
	"fmt"
	"sort"

	"github.com/oxbowlabs/beatforge/ir"
)

// ReplayBudgetFactor (K) bounds how many pattern rows the scheduler may
// process per total row across every pattern in the song, guarding against
// an infinite PositionJump/PatternBreak loop in malformed IR. The tracker
// engine this was grounded on hardcodes a fixed budget (sum(rows)*2+256);
// this scheduler scales the budget by this package constant instead
// (sum(rows)*8+256).
const ReplayBudgetFactor = 8

// Result is the outcome of scheduling a song.
type Result struct {
	Events    []ir.Event
	TotalTime ir.MusicalTime
}

// ScheduleSong schedules every track in song into a single time-sorted
// event list. Each track walks its own Sequence independently; PositionJump
// and PatternBreak are reinterpreted as jumps within that track's own
// sequence rather than a single song-wide order list, since this IR gives
// every track its own timeline instead of one linear order driving all
// channels together.
func ScheduleSong(song *ir.Song) (*Result, error) {
	if err := song.Validate(); err != nil {
		return nil, err
	}
	var all []ir.Event
	budget := replayBudget(song)

	var maxTime ir.MusicalTime
	for trackIdx := range song.Tracks {
		// Tempo/speed are global transport concepts but each track walks its
		// own sequence independently; only track 0 (the conductor track) is
		// allowed to emit global SetBPM/SetSpeed events, so two tracks never
		// fight over the engine's tick clock.
		events, end, err := scheduleTrack(song, &song.Tracks[trackIdx], budget, trackIdx == 0)
		if err != nil {
			return nil, err
		}
		all = append(all, events...)
		if end.Compare(maxTime) > 0 {
			maxTime = end
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Time.Compare(all[j].Time) < 0 })
	return &Result{Events: all, TotalTime: maxTime}, nil
}

// flowControl is what a row's effects told the scheduler to do next.
type flowControl struct {
	breakRow     *uint16
	jumpSeqEntry *uint16
	newSpeed     *uint32
	patternDelay uint8
}

// rowVisit describes one row as scheduleTrack's walk reaches it, passed to
// a visitor so the same walk can drive both full scheduling (append events)
// and the edit system's occurrence lookups (record matches).
type rowVisit struct {
	clipIdx     int
	patternIdx  int
	row         int
	channelBase uint8
	channels    int
	time        ir.MusicalTime
	speed, rpb  uint32
}

// walkTrack replays one track's sequence, honoring PositionJump (jump to a
// different sequence entry) and PatternBreak (jump to a row within the next
// entry), invoking visit once per row reached. isConductor gates whether a
// change of ticks-per-row or rows-per-beat at this row (from a SetSpeed
// effect or the pattern's own settings) is reported via speedChange (nil
// when no track-relative view is needed, i.e. from the edit system's
// occurrence lookups, which only care about row identity). Once a SetSpeed
// effect has set the speed, later patterns' TicksPerRow no longer override
// it. SetTempo is not reported here; it is scheduled as a SetBPM event.
func walkTrack(song *ir.Song, tr *ir.Track, budget uint64, isConductor bool, visit func(rowVisit), speedChange func(t ir.MusicalTime, speed, rpb uint32)) (ir.MusicalTime, error) {
	if len(tr.Sequence) == 0 {
		return ir.Zero(), nil
	}

	seqIdx := 0
	row := uint16(0)
	time := tr.Sequence[0].Start
	speed := uint32(song.InitialSpeed)
	songRPB := uint32(song.RowsPerBeat)
	channelBase := uint8(tr.BaseChannel)

	var lastSpeed, lastRPB uint32
	var speedSet bool
	var rowsProcessed uint64
	for seqIdx < len(tr.Sequence) {
		entry := tr.Sequence[seqIdx]
		if int(entry.ClipIdx) >= len(tr.Clips) {
			return ir.Zero(), fmt.Errorf("scheduler: track references out-of-range clip")
		}
		clip := tr.Clips[entry.ClipIdx]
		if clip.Kind != ir.ClipPattern {
			seqIdx++
			if seqIdx < len(tr.Sequence) {
				time = tr.Sequence[seqIdx].Start
			}
			continue
		}
		pattern := song.Pattern(clip.PatternIdx)
		if pattern == nil {
			return ir.Zero(), fmt.Errorf("scheduler: clip references missing pattern %d", clip.PatternIdx)
		}
		if row >= uint16(pattern.Rows) {
			row = 0
		}

		channels := pattern.Channels
		if tr.NumChannels > 0 && tr.NumChannels < channels {
			channels = tr.NumChannels
		}
		fc := scanFlowControl(pattern, int(row), channels)
		if fc.newSpeed != nil {
			speed = *fc.newSpeed
			speedSet = true
		}

		rpb := songRPB
		if pattern.RowsPerBeat > 0 {
			rpb = uint32(pattern.RowsPerBeat)
		}
		effSpeed := speed
		if !speedSet && pattern.TicksPerRow > 0 {
			effSpeed = uint32(pattern.TicksPerRow)
		}

		if isConductor && speedChange != nil && (effSpeed != lastSpeed || rpb != lastRPB) {
			speedChange(time, effSpeed, rpb)
			lastSpeed, lastRPB = effSpeed, rpb
		}

		visit(rowVisit{
			clipIdx:     int(entry.ClipIdx),
			patternIdx:  clip.PatternIdx,
			row:         int(row),
			channelBase: channelBase,
			channels:    channels,
			time:        time,
			speed:       effSpeed,
			rpb:         rpb,
		})

		time = time.AddRows(1+uint32(fc.patternDelay), rpb)
		rowsProcessed++
		if rowsProcessed >= budget {
			break
		}

		switch {
		case fc.jumpSeqEntry != nil && fc.breakRow != nil:
			seqIdx = clampSeqIdx(int(*fc.jumpSeqEntry), len(tr.Sequence))
			row = *fc.breakRow
		case fc.jumpSeqEntry != nil:
			seqIdx = clampSeqIdx(int(*fc.jumpSeqEntry), len(tr.Sequence))
			row = 0
		case fc.breakRow != nil:
			seqIdx++
			row = *fc.breakRow
		default:
			row++
			if row >= uint16(pattern.Rows) {
				seqIdx++
				row = 0
			}
		}
	}

	return time, nil
}

// scheduleTrack walks one track's sequence and appends the events every row
// produces.
func scheduleTrack(song *ir.Song, tr *ir.Track, budget uint64, isConductor bool) ([]ir.Event, ir.MusicalTime, error) {
	var events []ir.Event
	end, err := walkTrack(song, tr, budget, isConductor, func(rv rowVisit) {
		pattern := song.Pattern(rv.patternIdx)
		for ch := 0; ch < rv.channels; ch++ {
			scheduleCell(pattern.Cell(rv.row, ch), rv.time, rv.channelBase+uint8(ch), rv.speed, rv.rpb, isConductor, &events)
		}
	}, func(t ir.MusicalTime, speed, rpb uint32) {
		events = append(events, ir.SetSpeedEvent(t, speed, rpb))
	})
	if err != nil {
		return nil, ir.Zero(), err
	}
	events = append(events, ir.EndOfSongEvent(end))
	return events, end, nil
}

// RowOccurrence is one point in time where a specific pattern row plays on
// some track, the unit the edit system re-schedules when a cell or pattern
// changes mid-song.
type RowOccurrence struct {
	Track   int
	Channel uint8 // BaseChannel + the row's column, i.e. the target of the cell's events
	Time    ir.MusicalTime
	Speed   uint32
	RPB     uint32
}

// LocateRowOccurrences replays every track and reports every time+channel at
// which patternIdx's row plays on column, without emitting any events. The
// edit system uses this to find exactly which queued events a single-cell
// edit must invalidate and where to re-insert the replacement.
func LocateRowOccurrences(song *ir.Song, patternIdx, row, column int) ([]RowOccurrence, error) {
	budget := replayBudget(song)
	var out []RowOccurrence
	for trackIdx := range song.Tracks {
		tr := &song.Tracks[trackIdx]
		if column >= tr.NumChannels && tr.NumChannels > 0 {
			continue
		}
		_, err := walkTrack(song, tr, budget, false, func(rv rowVisit) {
			if rv.patternIdx != patternIdx || rv.row != row || column >= rv.channels {
				return
			}
			out = append(out, RowOccurrence{
				Track:   trackIdx,
				Channel: rv.channelBase + uint8(column),
				Time:    rv.time,
				Speed:   rv.speed,
				RPB:     rv.rpb,
			})
		}, nil)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PatternOccurrence is one span of time and channels over which a whole
// pattern plays on some track.
type PatternOccurrence struct {
	Track       int
	ChannelBase uint8
	Channels    int
	RowTimes    []ir.MusicalTime // RowTimes[row] is nil-time (Zero) for rows never reached
	Speed       []uint32         // per-row effective speed
	RPB         []uint32         // per-row effective rows-per-beat
}

// LocatePatternOccurrences replays every track and reports every span over
// which patternIdx plays, one entry per visit (a looped pattern produces
// multiple entries covering the same rows at different times).
func LocatePatternOccurrences(song *ir.Song, patternIdx int) ([]PatternOccurrence, error) {
	pattern := song.Pattern(patternIdx)
	if pattern == nil {
		return nil, fmt.Errorf("scheduler: no pattern at index %d", patternIdx)
	}
	budget := replayBudget(song)
	var out []PatternOccurrence
	for trackIdx := range song.Tracks {
		tr := &song.Tracks[trackIdx]
		var cur *PatternOccurrence
		_, err := walkTrack(song, tr, budget, false, func(rv rowVisit) {
			if rv.patternIdx != patternIdx {
				cur = nil
				return
			}
			if cur == nil || rv.row == 0 {
				out = append(out, PatternOccurrence{
					Track:       trackIdx,
					ChannelBase: rv.channelBase,
					Channels:    rv.channels,
					RowTimes:    make([]ir.MusicalTime, pattern.Rows),
					Speed:       make([]uint32, pattern.Rows),
					RPB:         make([]uint32, pattern.Rows),
				})
				cur = &out[len(out)-1]
			}
			if rv.row < len(cur.RowTimes) {
				cur.RowTimes[rv.row] = rv.time
				cur.Speed[rv.row] = rv.speed
				cur.RPB[rv.row] = rv.rpb
			}
		}, nil)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// replayBudget bounds how many rows LocateRowOccurrences/LocatePatternOccurrences
// may walk, the same guard ScheduleSong applies against a malformed loop.
func replayBudget(song *ir.Song) uint64 {
	totalRows := 0
	for _, p := range song.Patterns {
		totalRows += p.Rows
	}
	budget := uint64(totalRows)*ReplayBudgetFactor + 256
	if budget < 256 {
		budget = 256
	}
	return budget
}

// ScheduleCellEvents converts a single tracker cell into events the same
// way the full-song scheduler does, exported for the edit system to
// re-schedule one cell without re-running ScheduleSong. isConductor should
// match the conductor status of the track the cell belongs to (index 0)
// so a re-scheduled tempo-setting cell still updates the engine's clock.
func ScheduleCellEvents(cell *ir.Cell, t ir.MusicalTime, channel uint8, speed, rpb uint32, isConductor bool) []ir.Event {
	var events []ir.Event
	scheduleCell(cell, t, channel, speed, rpb, isConductor, &events)
	return events
}

// TrackPlaybackPosition locates a track's play head within its own clip/row
// coordinates, the view the Controller exposes for a UI cursor.
type TrackPlaybackPosition struct {
	ClipIdx int
	Row     int
	Time    ir.MusicalTime
}

// TrackPositionAt replays trackIdx's sequence up to at and returns the last
// row reached by that time. ok is false if the track has no Sequence or has
// not started playing by at.
func TrackPositionAt(song *ir.Song, trackIdx int, at ir.MusicalTime) (pos TrackPlaybackPosition, ok bool) {
	if trackIdx < 0 || trackIdx >= len(song.Tracks) {
		return TrackPlaybackPosition{}, false
	}
	tr := &song.Tracks[trackIdx]
	budget := replayBudget(song)
	_, err := walkTrack(song, tr, budget, false, func(rv rowVisit) {
		if rv.time.Compare(at) > 0 {
			return
		}
		pos = TrackPlaybackPosition{ClipIdx: rv.clipIdx, Row: rv.row, Time: rv.time}
		ok = true
	}, nil)
	if err != nil {
		return TrackPlaybackPosition{}, false
	}
	return pos, ok
}

func clampSeqIdx(idx, length int) int {
	if idx < 0 {
		return 0
	}
	if idx >= length {
		return length
	}
	return idx
}

func scanFlowControl(pattern *ir.Pattern, row, channels int) flowControl {
	var fc flowControl
	for ch := 0; ch < channels; ch++ {
		e := pattern.Cell(row, ch).Effect
		switch e.Kind {
		case ir.EffectPatternBreak:
			r := uint16(e.X)
			fc.breakRow = &r
		case ir.EffectPositionJump:
			p := uint16(e.X)
			fc.jumpSeqEntry = &p
		case ir.EffectSetSpeed:
			if e.X > 0 {
				s := uint32(e.X)
				fc.newSpeed = &s
			}
		case ir.EffectPatternDelay:
			fc.patternDelay = uint8(e.X)
		}
	}
	return fc
}

func isTonePorta(e ir.Effect) bool {
	return e.Kind == ir.EffectTonePorta || e.Kind == ir.EffectTonePortaVolSlide
}

func noteDelayAmount(e ir.Effect) uint32 {
	if e.Kind == ir.EffectNoteDelay && e.X > 0 {
		return uint32(e.X)
	}
	return 0
}

// scheduleCell converts a single tracker cell into zero or more events,
// appending them to events.
func scheduleCell(cell *ir.Cell, t ir.MusicalTime, channel uint8, speed, rpb uint32, isConductor bool, events *[]ir.Event) {
	delay := noteDelayAmount(cell.Effect)
	tpb := speed * rpb
	noteTime := t.AddTicks(delay, tpb)

	switch cell.Note.Kind {
	case ir.NoteOn:
		if isTonePorta(cell.Effect) {
			*events = append(*events, ir.PortaTargetEvent(noteTime, channel, cell.Note.Value, cell.Instrument))
		} else {
			*events = append(*events, ir.NoteOnEvent(noteTime, channel, cell.Note.Value, 64, cell.Instrument))
		}
	case ir.NoteOff, ir.NoteFade:
		*events = append(*events, ir.NoteOffEvent(noteTime, channel))
	}

	scheduleVolumeCommand(cell.Volume, noteTime, channel, events)
	scheduleEffect(cell.Effect, t, channel, isConductor, events)
}

func scheduleVolumeCommand(vol ir.VolumeCommand, t ir.MusicalTime, channel uint8, events *[]ir.Event) {
	push := func(eff ir.Effect) {
		*events = append(*events, ir.EffectEvent(t, channel, eff))
	}
	switch vol.Kind {
	case ir.VolNone:
	case ir.VolVolume:
		push(ir.Effect{Kind: ir.EffectSetVolume, X: int16(vol.Value)})
	case ir.VolPanning:
		push(ir.Effect{Kind: ir.EffectSetPan, X: int16(vol.Value)})
	case ir.VolTonePorta:
		push(ir.Effect{Kind: ir.EffectTonePorta, X: int16(vol.Value)})
	case ir.VolVibrato:
		push(ir.Effect{Kind: ir.EffectVibrato, X: 0, Y: int16(vol.Value)})
	case ir.VolSlideDown:
		push(ir.Effect{Kind: ir.EffectVolumeSlide, X: -int16(vol.Value)})
	case ir.VolSlideUp:
		push(ir.Effect{Kind: ir.EffectVolumeSlide, X: int16(vol.Value)})
	case ir.VolFineSlideDown:
		push(ir.Effect{Kind: ir.EffectFineVolumeSlideDown, X: int16(vol.Value)})
	case ir.VolFineSlideUp:
		push(ir.Effect{Kind: ir.EffectFineVolumeSlideUp, X: int16(vol.Value)})
	case ir.VolPortaDown:
		push(ir.Effect{Kind: ir.EffectPortaDown, X: int16(vol.Value)})
	case ir.VolPortaUp:
		push(ir.Effect{Kind: ir.EffectPortaUp, X: int16(vol.Value)})
	}
}

// isSchedulerDirective reports whether an effect is consumed by the
// scheduler itself rather than emitted as a channel event.
func isSchedulerDirective(e ir.Effect) bool {
	switch e.Kind {
	case ir.EffectPatternBreak, ir.EffectPositionJump, ir.EffectPatternDelay, ir.EffectNoteDelay:
		return true
	default:
		return false
	}
}

func scheduleEffect(e ir.Effect, t ir.MusicalTime, channel uint8, isConductor bool, events *[]ir.Event) {
	if e.Kind == ir.EffectNone || isSchedulerDirective(e) {
		return
	}
	if e.Kind == ir.EffectSetTempo {
		if isConductor {
			*events = append(*events, ir.SetBPMEvent(t, int32(e.X)*100))
		}
		return
	}
	*events = append(*events, ir.EffectEvent(t, channel, e))
}
