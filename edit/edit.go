// Package edit implements the tagged data-only command set the Controller
// applies against a running Engine: a node parameter change, a single-cell
// rewrite, a whole-pattern transform, or a live note. The cell and pattern
// commands mutate the Engine's Song in place and then surgically invalidate
// and re-schedule only the queued events the mutation actually affects, so
// an edit never requires re-scheduling the entire song. SetNodeParam and
// LiveNote act on the Engine directly and leave the Song unchanged.
package edit

import (
	"fmt"

	"github.com/oxbowlabs/beatforge/engine"
	"github.com/oxbowlabs/beatforge/ir"
	"github.com/oxbowlabs/beatforge/ir/patternops"
	"github.com/oxbowlabs/beatforge/scheduler"
)

// Kind tags which fields of a Command are populated.
type Kind int

const (
	SetNodeParam Kind = iota
	SetCell
	RotatePattern
	ReversePattern
	TransposePattern
	InvertPattern
	EuclideanFill
	LiveNote
)

// Command is a small Copy-cheap tagged union covering every edit variant.
type Command struct {
	Kind Kind

	// SetNodeParam
	Node    ir.NodeKey
	ParamID int
	Value   int32

	// SetCell, and the target pattern for every *Pattern/EuclideanFill variant
	Pattern int

	// SetCell
	Row    int
	Column int
	Cell   ir.Cell

	// RotatePattern (rows to shift), TransposePattern (semitones), InvertPattern (pivot note)
	Amount int

	// EuclideanFill
	Pulses     int
	Note       uint8
	Instrument uint8

	// LiveNote: a note trigger/release that bypasses Song/pattern data
	// entirely, the shape a MIDI controller or an on-screen keyboard feeds
	// through the same edit queue everything else uses.
	Channel  uint8
	NoteOn   bool
	Velocity uint8
}

// Apply mutates eng's song per cmd and re-schedules whatever queued events
// the mutation invalidated. Safe to call whether or not eng is playing:
// stopping the engine leaves its queue in place, so re-scheduled events
// take effect once playback resumes.
func Apply(eng *engine.Engine, cmd Command) error {
	switch cmd.Kind {
	case SetNodeParam:
		eng.SetNodeParam(cmd.Node, cmd.ParamID, cmd.Value)
		return nil
	case SetCell:
		return applySetCell(eng, cmd)
	case RotatePattern:
		return applyPatternOp(eng, cmd.Pattern, func(p *ir.Pattern) { patternops.Rotate(p, cmd.Amount) })
	case ReversePattern:
		return applyPatternOp(eng, cmd.Pattern, func(p *ir.Pattern) { patternops.Reverse(p) })
	case TransposePattern:
		return applyPatternOp(eng, cmd.Pattern, func(p *ir.Pattern) { patternops.Transpose(p, cmd.Amount) })
	case InvertPattern:
		return applyPatternOp(eng, cmd.Pattern, func(p *ir.Pattern) { patternops.Invert(p, cmd.Amount) })
	case EuclideanFill:
		return applyPatternOp(eng, cmd.Pattern, func(p *ir.Pattern) {
			patternops.EuclideanFill(p, cmd.Column, cmd.Pulses, cmd.Note, cmd.Instrument)
		})
	case LiveNote:
		eng.ApplyLiveNote(cmd.Channel, cmd.NoteOn, cmd.Note, cmd.Velocity, cmd.Instrument)
		return nil
	default:
		return fmt.Errorf("edit: unknown command kind %d", cmd.Kind)
	}
}

// applySetCell mutates a single (pattern, row, column) cell, then for every
// point in the song where that row plays: drops any events already queued
// for that row on that channel and re-schedules the new cell in their
// place. Mirrors the mixer's SetCell handling one level of granularity finer
// than a full re-schedule.
func applySetCell(eng *engine.Engine, cmd Command) error {
	song := eng.Song()
	pattern := song.Pattern(cmd.Pattern)
	if pattern == nil {
		return fmt.Errorf("edit: no pattern at index %d", cmd.Pattern)
	}
	if pattern.Shape != ir.ShapeTracker {
		return fmt.Errorf("edit: pattern %d is not tracker-shaped", cmd.Pattern)
	}
	if cmd.Row < 0 || cmd.Row >= pattern.Rows || cmd.Column < 0 || cmd.Column >= pattern.Channels {
		return fmt.Errorf("edit: cell (%d,%d) out of range for pattern %d", cmd.Row, cmd.Column, cmd.Pattern)
	}

	*pattern.Cell(cmd.Row, cmd.Column) = cmd.Cell

	occurrences, err := scheduler.LocateRowOccurrences(song, cmd.Pattern, cmd.Row, cmd.Column)
	if err != nil {
		return fmt.Errorf("edit: %w", err)
	}
	for _, occ := range occurrences {
		windowEnd := occ.Time.AddRows(1, occ.RPB)
		eng.RemoveChannelEventsInRange(occ.Channel, occ.Time, windowEnd)
		events := scheduler.ScheduleCellEvents(&cmd.Cell, occ.Time, occ.Channel, occ.Speed, occ.RPB, occ.Track == 0)
		eng.ScheduleEvents(events)
	}
	return nil
}

// applyPatternOp runs transform over the Song's pattern at patternIdx, then
// for every track occurrence of that pattern: drops every queued event
// covering the pattern's span on its channels and re-schedules the whole
// pattern in their place.
func applyPatternOp(eng *engine.Engine, patternIdx int, transform func(*ir.Pattern)) error {
	song := eng.Song()
	pattern := song.Pattern(patternIdx)
	if pattern == nil {
		return fmt.Errorf("edit: no pattern at index %d", patternIdx)
	}

	occurrences, err := scheduler.LocatePatternOccurrences(song, patternIdx)
	if err != nil {
		return fmt.Errorf("edit: %w", err)
	}

	transform(pattern)

	for _, occ := range occurrences {
		start, end, ok := occurrenceSpan(occ)
		if !ok {
			continue
		}
		for ch := 0; ch < occ.Channels; ch++ {
			eng.RemoveChannelEventsInRange(occ.ChannelBase+uint8(ch), start, end)
		}
		isConductor := occ.Track == 0
		for row := 0; row < len(occ.RowTimes); row++ {
			t := occ.RowTimes[row]
			if row > 0 && t.Compare(ir.Zero()) == 0 {
				continue // row never reached this pass (e.g. a mid-song PatternBreak)
			}
			for ch := 0; ch < occ.Channels; ch++ {
				events := scheduler.ScheduleCellEvents(pattern.Cell(row, ch), t, occ.ChannelBase+uint8(ch), occ.Speed[row], occ.RPB[row], isConductor)
				eng.ScheduleEvents(events)
			}
		}
	}
	return nil
}

// occurrenceSpan returns the [start, end) time range an occurrence's rows
// cover, using the last reached row's time plus one row as the end bound.
func occurrenceSpan(occ scheduler.PatternOccurrence) (start, end ir.MusicalTime, ok bool) {
	last := -1
	for row, t := range occ.RowTimes {
		if row == 0 || t.Compare(ir.Zero()) != 0 {
			last = row
		}
	}
	if last < 0 {
		return ir.Zero(), ir.Zero(), false
	}
	start = occ.RowTimes[0]
	end = occ.RowTimes[last].AddRows(1, occ.RPB[last])
	return start, end, true
}
