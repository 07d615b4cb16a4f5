package ir

import (
	"errors"
	"fmt"
)

// ChannelDefaults holds a tracker channel's static configuration: initial
// pan/volume and whether the channel starts muted.
type ChannelDefaults struct {
	Pan    int8 // -64..+64
	Volume uint8 // 0-64
	Mute   bool
}

// Song is the top-level, format-neutral container the scheduler and engine
// consume. It is treated as immutable during one realtime render pass;
// mutation happens only through the edit command system (package edit).
type Song struct {
	Title string

	InitialBPM   int32 // beats per minute * 100
	InitialSpeed int   // ticks per row, 1-31
	GlobalVolume uint8 // 0-128
	RowsPerBeat  int   // default rows-per-beat, typically 4

	Samples     []Sample
	Instruments []Instrument
	Channels    []ChannelDefaults
	Patterns    []Pattern

	Graph  *AudioGraph
	Tracks []Track
}

// Pattern returns the pattern at idx, or nil if idx is out of range. Clips
// of Kind == ClipPattern reference patterns by this index.
func (s *Song) Pattern(idx int) *Pattern {
	if idx < 0 || idx >= len(s.Patterns) {
		return nil
	}
	return &s.Patterns[idx]
}

// Validate checks the Song-level invariants required before Engine
// construction will accept it (spec.md §7: "Invalid IR" refuses to
// construct).
func (s *Song) Validate() error {
	if s.InitialBPM <= 0 {
		return errors.New("ir: song initial BPM must be > 0")
	}
	if s.InitialSpeed < 1 || s.InitialSpeed > 31 {
		return errors.New("ir: song initial speed must be in [1,31]")
	}
	if s.RowsPerBeat < 1 {
		return errors.New("ir: song rows_per_beat must be >= 1")
	}
	if s.Graph == nil {
		return errors.New("ir: song has no audio graph")
	}
	if err := s.Graph.Validate(); err != nil {
		return err
	}
	for i, tr := range s.Tracks {
		for _, entry := range tr.Sequence {
			if int(entry.ClipIdx) >= len(tr.Clips) {
				return fmt.Errorf("ir: track %d references a clip index out of range", i)
			}
		}
		for _, clip := range tr.Clips {
			if clip.Kind == ClipPattern && s.Pattern(clip.PatternIdx) == nil {
				return fmt.Errorf("ir: track %d references a pattern index out of range", i)
			}
		}
	}
	return nil
}
