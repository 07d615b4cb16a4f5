package controller

import (
	"os"
	"testing"

	"github.com/oxbowlabs/beatforge/edit"
	"github.com/oxbowlabs/beatforge/ir"
)

func testSong() *ir.Song {
	g := ir.NewAudioGraph()
	master, _ := g.AddNode(ir.Node{Type: ir.NodeMaster, NumIns: 2, NumOuts: 2})
	ch, _ := g.AddNode(ir.Node{Type: ir.NodeTrackerChannel, TrackerChannelIndex: 0})
	g.Connect(ir.Connection{From: ch, To: master, Gain: ir.GainUnity})

	var inst ir.Instrument
	inst.DefaultVolume = 64
	sample := ir.Sample{
		Data:          ir.SampleData{Format: ir.FormatMono16, Mono16: []int16{20000, 20000, 20000, 20000}},
		LoopType:      ir.LoopNone,
		DefaultVolume: 64,
		C4Speed:       8363,
	}
	bank := ir.NewSlotMap[ir.Sample]()
	key := bank.Insert(sample)
	for n := range inst.SampleMap {
		inst.SampleMap[n] = key
	}

	p := ir.NewTrackerPattern(4, 1, 6)
	p.Cell(0, 0).Note = ir.Note{Kind: ir.NoteOn, Value: 60}
	p.Cell(0, 0).Instrument = 1

	return &ir.Song{
		InitialBPM:   12500,
		InitialSpeed: 6,
		RowsPerBeat:  4,
		GlobalVolume: 128,
		Samples:      []ir.Sample{sample},
		Instruments:  []ir.Instrument{inst},
		Channels:     []ir.ChannelDefaults{{Volume: 64}},
		Graph:        g,
		Patterns:     []ir.Pattern{*p},
		Tracks: []ir.Track{{
			NumChannels: 1,
			Clips:       []ir.Clip{{Kind: ir.ClipPattern, PatternIdx: 0}},
			Sequence:    []ir.SeqEntry{{Start: ir.Zero(), ClipIdx: 0}},
		}},
	}
}

func TestLoadSongResetsState(t *testing.T) {
	c := New(44100)
	if err := c.LoadSong(testSong()); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	if c.IsFinished() {
		t.Fatal("expected a freshly loaded song to not be finished")
	}
	if p := c.Position(); p.Beat != 0 || p.SubBeat != 0 {
		t.Fatalf("expected position reset to zero, got %+v", p)
	}
}

func TestPlayStopTogglesPlaying(t *testing.T) {
	c := New(44100)
	if err := c.LoadSong(testSong()); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	c.Play()
	if !c.playing.Load() {
		t.Fatal("expected Play to mark the controller playing")
	}
	c.Stop()
	if c.playing.Load() {
		t.Fatal("expected Stop to mark the controller stopped")
	}
}

func TestRenderFramesIntoAdvancesPosition(t *testing.T) {
	c := New(44100)
	if err := c.LoadSong(testSong()); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	c.Play()
	frames := make([]Frame, 64)
	if err := c.RenderFramesInto(frames); err != nil {
		t.Fatalf("RenderFramesInto: %v", err)
	}

	var heard bool
	for _, f := range frames {
		if f.L != 0 || f.R != 0 {
			heard = true
		}
	}
	if !heard {
		t.Fatal("expected nonzero output after Play + RenderFramesInto")
	}
	if c.Position() == (ir.MusicalTime{}) {
		t.Fatal("expected RenderFramesInto to advance the published position")
	}
}

func TestSubmitEditWhileStoppedAppliesSynchronously(t *testing.T) {
	c := New(44100)
	song := testSong()
	if err := c.LoadSong(song); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}

	cmd := edit.Command{
		Kind:    edit.SetCell,
		Pattern: 0,
		Row:     1,
		Column:  0,
		Cell:    ir.Cell{Note: ir.Note{Kind: ir.NoteOn, Value: 67}, Instrument: 1},
	}
	if err := c.SubmitEdit(cmd); err != nil {
		t.Fatalf("SubmitEdit: %v", err)
	}
	if song.Patterns[0].Cell(1, 0).Note.Value != 67 {
		t.Fatal("expected a synchronous edit to mutate the song immediately while stopped")
	}
}

func TestSubmitEditWhilePlayingQueuesForAudioThread(t *testing.T) {
	c := New(44100)
	song := testSong()
	if err := c.LoadSong(song); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	c.Play()

	cmd := edit.Command{
		Kind:    edit.SetCell,
		Pattern: 0,
		Row:     1,
		Column:  0,
		Cell:    ir.Cell{Note: ir.Note{Kind: ir.NoteOn, Value: 67}, Instrument: 1},
	}
	if err := c.SubmitEdit(cmd); err != nil {
		t.Fatalf("SubmitEdit: %v", err)
	}
	if song.Patterns[0].Cell(1, 0).Note.Value == 67 {
		t.Fatal("expected a queued edit to not mutate the song before the audio thread drains it")
	}

	frames := make([]Frame, 1)
	if err := c.RenderFramesInto(frames); err != nil {
		t.Fatalf("RenderFramesInto: %v", err)
	}
	if song.Patterns[0].Cell(1, 0).Note.Value != 67 {
		t.Fatal("expected the queued edit to apply once the audio thread rendered a frame")
	}
}

func TestSubmitEditQueueFullReturnsError(t *testing.T) {
	c := New(44100)
	if err := c.LoadSong(testSong()); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	c.Play()

	var lastErr error
	for i := 0; i < editQueueCapacity+1; i++ {
		lastErr = c.SubmitEdit(edit.Command{Kind: edit.SetCell, Pattern: 0, Row: 1, Column: 0})
	}
	if lastErr != ErrEditQueueFull {
		t.Fatalf("expected ErrEditQueueFull once the queue fills, got %v", lastErr)
	}
}

func TestTrackPositionBeforePlaybackStarts(t *testing.T) {
	c := New(44100)
	if err := c.LoadSong(testSong()); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	pos, ok := c.TrackPosition(0)
	if !ok {
		t.Fatal("expected a track position at time zero")
	}
	if pos.Row != 0 {
		t.Fatalf("expected row 0 at time zero, got %d", pos.Row)
	}
}

func TestTrackPositionOutOfRangeTrack(t *testing.T) {
	c := New(44100)
	if err := c.LoadSong(testSong()); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	if _, ok := c.TrackPosition(7); ok {
		t.Fatal("expected an out-of-range track to report not-ok")
	}
}

func TestRenderToWavWritesFile(t *testing.T) {
	c := New(44100)
	if err := c.LoadSong(testSong()); err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	path := t.TempDir() + "/out.wav"
	if err := c.RenderToWav(path, 32, true); err != nil {
		t.Fatalf("RenderToWav: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data[0:4]) != "RIFF" {
		t.Fatal("expected a RIFF header in the rendered file")
	}
}
