package ir

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// The types below are the on-disk authoring format for a Song, the same
// role .yml song files play for the teacher's cmd/sointu-play. They mirror
// the runtime IR closely but stay plain data (no generational keys, no
// *AudioGraph) so yaml.v3 can unmarshal them directly; LoadSongYAML then
// builds the runtime Song from the decoded document, inserting nodes and
// samples in file order so every key lands in the canonical key space
// (index i, generation 1) documented on Instrument.SampleMap.

type yamlSample struct {
	Name          string  `yaml:"name"`
	Mono16        []int16 `yaml:"mono16"`
	LoopStart     uint32  `yaml:"loop_start"`
	LoopEnd       uint32  `yaml:"loop_end"`
	LoopType      int     `yaml:"loop_type"`
	DefaultVolume uint8   `yaml:"default_volume"`
	DefaultPan    int8    `yaml:"default_pan"`
	C4Speed       uint32  `yaml:"c4_speed"`
}

type yamlInstrument struct {
	Name          string `yaml:"name"`
	SampleIndex   int    `yaml:"sample_index"` // applied to every one of the 120 note slots
	Fadeout       uint16 `yaml:"fadeout"`
	NewNoteAction int    `yaml:"new_note_action"`
	DefaultVolume uint8  `yaml:"default_volume"`
}

type yamlChannel struct {
	Pan    int8  `yaml:"pan"`
	Volume uint8 `yaml:"volume"`
	Mute   bool  `yaml:"mute"`
}

type yamlNode struct {
	Type                int              `yaml:"type"`
	TrackerChannelIndex int              `yaml:"tracker_channel_index"`
	MachineName         string           `yaml:"machine_name"`
	Params              map[string]int32 `yaml:"params"`
	Bypass              bool             `yaml:"bypass"`
	NumIns              int              `yaml:"num_ins"`
	NumOuts             int              `yaml:"num_outs"`
}

type yamlConnection struct {
	From        int   `yaml:"from"` // index into the document's Nodes list
	To          int   `yaml:"to"`
	FromChannel int   `yaml:"from_channel"`
	ToChannel   int   `yaml:"to_channel"`
	Gain        int32 `yaml:"gain"`
}

type yamlGraph struct {
	Nodes       []yamlNode       `yaml:"nodes"`
	Connections []yamlConnection `yaml:"connections"`
}

type yamlNote struct {
	Kind  int   `yaml:"kind"`
	Value uint8 `yaml:"value"`
}

type yamlVolumeCommand struct {
	Kind  int   `yaml:"kind"`
	Value uint8 `yaml:"value"`
}

type yamlEffect struct {
	Kind int   `yaml:"kind"`
	X    int16 `yaml:"x"`
	Y    int16 `yaml:"y"`
}

type yamlCell struct {
	Note       yamlNote          `yaml:"note"`
	Instrument uint8             `yaml:"instrument"`
	Volume     yamlVolumeCommand `yaml:"volume"`
	Effect     yamlEffect        `yaml:"effect"`
}

type yamlPattern struct {
	TicksPerRow int          `yaml:"ticks_per_row"`
	RowsPerBeat int          `yaml:"rows_per_beat"`
	Rows        [][]yamlCell `yaml:"rows"` // outer len == Rows, inner len == Channels
}

type yamlClip struct {
	Kind       int `yaml:"kind"`
	PatternIdx int `yaml:"pattern_idx"`
}

type yamlSeqEntry struct {
	StartBeat    uint64  `yaml:"start_beat"`
	StartSubBeat uint32  `yaml:"start_subbeat"`
	ClipIdx      uint16  `yaml:"clip_idx"`
	Repeat       *uint16 `yaml:"repeat,omitempty"`
}

type yamlTrack struct {
	MachineNodeIndex *int           `yaml:"machine_node_index,omitempty"` // index into the document's graph.nodes
	BaseChannel      int            `yaml:"base_channel"`
	NumChannels      int            `yaml:"num_channels"`
	Clips            []yamlClip     `yaml:"clips"`
	Sequence         []yamlSeqEntry `yaml:"sequence"`
}

type yamlSong struct {
	Title        string           `yaml:"title"`
	InitialBPM   int32            `yaml:"initial_bpm"`
	InitialSpeed int              `yaml:"initial_speed"`
	RowsPerBeat  int              `yaml:"rows_per_beat"`
	GlobalVolume uint8            `yaml:"global_volume"`
	Samples      []yamlSample     `yaml:"samples"`
	Instruments  []yamlInstrument `yaml:"instruments"`
	Channels     []yamlChannel    `yaml:"channels"`
	Graph        yamlGraph        `yaml:"graph"`
	Patterns     []yamlPattern    `yaml:"patterns"`
	Tracks       []yamlTrack      `yaml:"tracks"`
}

// LoadSongYAML decodes a song authored in the on-disk YAML format and
// builds the runtime Song, wiring its AudioGraph and sample keys in
// document order.
func LoadSongYAML(data []byte) (*Song, error) {
	var doc yamlSong
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("ir: parsing song YAML: %w", err)
	}

	song := &Song{
		Title:        doc.Title,
		InitialBPM:   doc.InitialBPM,
		InitialSpeed: doc.InitialSpeed,
		RowsPerBeat:  doc.RowsPerBeat,
		GlobalVolume: doc.GlobalVolume,
		Graph:        NewAudioGraph(),
	}

	for _, s := range doc.Samples {
		song.Samples = append(song.Samples, Sample{
			Name:          s.Name,
			Data:          SampleData{Format: FormatMono16, Mono16: s.Mono16},
			LoopStart:     s.LoopStart,
			LoopEnd:       s.LoopEnd,
			LoopType:      LoopType(s.LoopType),
			DefaultVolume: s.DefaultVolume,
			DefaultPan:    s.DefaultPan,
			C4Speed:       s.C4Speed,
		})
	}

	// Reproduce the canonical sample-key space: a fresh SlotMap populated in
	// Song.Samples order always yields Key{index: i, generation: 1}.
	sampleKeys := make([]SampleKey, len(song.Samples))
	for i := range song.Samples {
		sampleKeys[i] = Key{index: i, generation: 1}
	}

	for _, in := range doc.Instruments {
		inst := Instrument{
			Name:          in.Name,
			Fadeout:       in.Fadeout,
			NewNoteAction: NewNoteAction(in.NewNoteAction),
			DefaultVolume: in.DefaultVolume,
		}
		if in.SampleIndex >= 0 && in.SampleIndex < len(sampleKeys) {
			for n := range inst.SampleMap {
				inst.SampleMap[n] = sampleKeys[in.SampleIndex]
			}
		}
		song.Instruments = append(song.Instruments, inst)
	}

	for _, c := range doc.Channels {
		song.Channels = append(song.Channels, ChannelDefaults{Pan: c.Pan, Volume: c.Volume, Mute: c.Mute})
	}

	nodeKeys := make([]NodeKey, len(doc.Graph.Nodes))
	for i, n := range doc.Graph.Nodes {
		key, err := song.Graph.AddNode(Node{
			Type:                NodeType(n.Type),
			TrackerChannelIndex: n.TrackerChannelIndex,
			MachineName:         n.MachineName,
			Params:              n.Params,
			Bypass:              n.Bypass,
			NumIns:              n.NumIns,
			NumOuts:             n.NumOuts,
		})
		if err != nil {
			return nil, fmt.Errorf("ir: song graph node %d: %w", i, err)
		}
		nodeKeys[i] = key
	}
	for i, c := range doc.Graph.Connections {
		if c.From < 0 || c.From >= len(nodeKeys) || c.To < 0 || c.To >= len(nodeKeys) {
			return nil, fmt.Errorf("ir: song graph connection %d references an out-of-range node index", i)
		}
		if err := song.Graph.Connect(Connection{
			From: nodeKeys[c.From], To: nodeKeys[c.To],
			FromChannel: c.FromChannel, ToChannel: c.ToChannel, Gain: c.Gain,
		}); err != nil {
			return nil, fmt.Errorf("ir: song graph connection %d: %w", i, err)
		}
	}

	for pi, p := range doc.Patterns {
		channels := 0
		if len(p.Rows) > 0 {
			channels = len(p.Rows[0])
		}
		pattern := Pattern{
			Shape:       ShapeTracker,
			Rows:        len(p.Rows),
			TicksPerRow: p.TicksPerRow,
			RowsPerBeat: p.RowsPerBeat,
			Channels:    channels,
			Cells:       make([]Cell, len(p.Rows)*channels),
		}
		for row, cells := range p.Rows {
			if len(cells) != channels {
				return nil, fmt.Errorf("ir: pattern %d row %d has %d columns, want %d", pi, row, len(cells), channels)
			}
			for ch, c := range cells {
				pattern.Cells[row*channels+ch] = Cell{
					Note:       Note{Kind: NoteKind(c.Note.Kind), Value: c.Note.Value},
					Instrument: c.Instrument,
					Volume:     VolumeCommand{Kind: VolumeCmdKind(c.Volume.Kind), Value: c.Volume.Value},
					Effect:     Effect{Kind: EffectKind(c.Effect.Kind), X: c.Effect.X, Y: c.Effect.Y},
				}
			}
		}
		song.Patterns = append(song.Patterns, pattern)
	}

	for ti, t := range doc.Tracks {
		track := Track{BaseChannel: t.BaseChannel, NumChannels: t.NumChannels}
		if t.MachineNodeIndex != nil {
			idx := *t.MachineNodeIndex
			if idx < 0 || idx >= len(nodeKeys) {
				return nil, fmt.Errorf("ir: track %d machine_node_index out of range", ti)
			}
			node := nodeKeys[idx]
			track.MachineNode = &node
		}
		for _, c := range t.Clips {
			track.Clips = append(track.Clips, Clip{Kind: ClipKind(c.Kind), PatternIdx: c.PatternIdx})
		}
		for _, s := range t.Sequence {
			track.Sequence = append(track.Sequence, SeqEntry{
				Start:   MusicalTime{Beat: s.StartBeat, SubBeat: s.StartSubBeat},
				ClipIdx: s.ClipIdx,
				Repeat:  s.Repeat,
			})
		}
		song.Tracks = append(song.Tracks, track)
	}

	return song, nil
}
