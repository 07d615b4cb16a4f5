// Package midiin forwards note on/off messages from a live MIDI input
// straight into a Controller's edit queue as LiveNote commands, bypassing
// pattern data entirely -- the same rtmididrv-backed shape the teacher's
// tracker/gomidi package uses for its player, scaled down to a single
// target channel and instrument rather than a multi-track MIDI learn
// surface.
package midiin

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/oxbowlabs/beatforge/controller"
	"github.com/oxbowlabs/beatforge/edit"
)

// Source owns one rtmidi driver and, once Listen is called, one open input
// forwarding its note messages to a Controller.
type Source struct {
	driver *rtmididrv.Driver
	in     drivers.In
	stop   func()

	channel    uint8
	instrument uint8
}

// New opens the rtmidi driver without opening any input device yet.
func New() (*Source, error) {
	d, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("midiin: %w", err)
	}
	return &Source{driver: d}, nil
}

// Devices lists the names of every currently available MIDI input.
func (s *Source) Devices() ([]string, error) {
	ins, err := s.driver.Ins()
	if err != nil {
		return nil, fmt.Errorf("midiin: %w", err)
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names, nil
}

// Listen opens the first input whose name starts with namePrefix (or the
// first input available at all, if namePrefix is empty) and forwards its
// note on/off messages to ctrl as LiveNote edits targeting channel, with
// every triggered note resolved through instrument.
func (s *Source) Listen(ctrl *controller.Controller, namePrefix string, channel, instrument uint8) error {
	ins, err := s.driver.Ins()
	if err != nil {
		return fmt.Errorf("midiin: %w", err)
	}
	var chosen drivers.In
	for _, in := range ins {
		if namePrefix == "" || strings.HasPrefix(in.String(), namePrefix) {
			chosen = in
			break
		}
	}
	if chosen == nil {
		return fmt.Errorf("midiin: no input device found for prefix %q", namePrefix)
	}
	if err := chosen.Open(); err != nil {
		return fmt.Errorf("midiin: opening input failed: %w", err)
	}

	s.channel = channel
	s.instrument = instrument
	stop, err := midi.ListenTo(chosen, func(msg midi.Message, _ int32) {
		s.handle(ctrl, msg)
	})
	if err != nil {
		chosen.Close()
		return fmt.Errorf("midiin: %w", err)
	}
	s.in = chosen
	s.stop = stop
	return nil
}

// handle runs on the driver's own callback goroutine; it must never block,
// so a full edit queue just drops the note rather than stalling MIDI input.
func (s *Source) handle(ctrl *controller.Controller, msg midi.Message) {
	var ch, key, velocity uint8
	isOn := msg.GetNoteOn(&ch, &key, &velocity)
	isOff := !isOn && msg.GetNoteOff(&ch, &key, &velocity)
	if !isOn && !isOff {
		return
	}
	_ = ctrl.SubmitEdit(edit.Command{
		Kind:       edit.LiveNote,
		Channel:    s.channel,
		NoteOn:     isOn,
		Note:       key,
		Velocity:   velocity,
		Instrument: s.instrument,
	})
}

// Close stops listening, closes the input if one is open, and releases the
// underlying driver.
func (s *Source) Close() {
	if s.stop != nil {
		s.stop()
	}
	if s.in != nil && s.in.IsOpen() {
		s.in.Close()
	}
	s.driver.Close()
}
