package emu

import (
	"io"
	"math"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/go-faster/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"keytone/fw"
	"keytone/fw/tone"
	"keytone/hw/tm4c"
)

// noteOutput returns the buzzer output while the firmware plays n, on a PWM
// counter running at refClock Hz.
func noteOutput(n fw.Note, refClock uint32) (tm4c.PWMOutput, error) {
	period, cmp, err := tone.New(nil, refClock).Settings(n.Pitch())
	if err != nil {
		return tm4c.PWMOutput{}, err
	}
	if refClock == 0 {
		refClock = tone.DefaultRefClock
	}
	// The generator sets the output on load and clears it on compare, while
	// counting down from period.
	return tm4c.PWMOutput{
		On:    true,
		Load:  period,
		Cmp:   cmp,
		Freq:  float64(refClock) / float64(period+1),
		Duty:  float64(period-cmp) / float64(period+1),
		Clock: refClock,
	}, nil
}

// RenderWAV renders the playback of notes, with the firmware timing tm, as a
// 16-bit mono WAV stream.
func RenderWAV(w io.WriteSeeker, notes []fw.Note, tm fw.Timing, refClock uint32, acfg AudioConfig) error {
	s := newSynth(acfg.SampleRate, acfg.Volume)
	enc := wav.NewEncoder(w, acfg.SampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: acfg.SampleRate},
		SourceBitDepth: 16,
	}

	emit := func(out tm4c.PWMOutput, d time.Duration) error {
		clocks := int(d.Seconds() * synthClock)
		for clocks > 0 {
			n := min(clocks, s.maxFrameClocks())
			samples := s.run(out, n)
			buf.Data = buf.Data[:0]
			for _, v := range samples {
				buf.Data = append(buf.Data, int(v))
			}
			if err := enc.Write(buf); err != nil {
				return errors.Wrap(err, "write wav")
			}
			clocks -= n
		}
		return nil
	}

	for _, n := range notes {
		out, err := noteOutput(n, refClock)
		if err != nil {
			return err
		}
		if err := emit(out, tm.Note); err != nil {
			return err
		}
		if err := emit(tm4c.PWMOutput{}, tm.Gap); err != nil {
			return err
		}
	}
	// Let the band-limited steps settle.
	if err := emit(tm4c.PWMOutput{}, 50*time.Millisecond); err != nil {
		return err
	}
	return enc.Close()
}

const (
	midiTicks    = 960 // per quarter note
	midiTempo    = 120 // quarter notes per minute
	midiVelocity = 100
)

// midiKey returns the MIDI key closest to freq.
func midiKey(freq uint32) uint8 {
	return uint8(math.Round(69 + 12*math.Log2(float64(freq)/440)))
}

func midiDuration(d time.Duration) uint32 {
	quarter := time.Minute / midiTempo
	return uint32(d * midiTicks / quarter)
}

// ExportMIDI writes the playback of notes, with the firmware timing tm, as a
// single track Standard MIDI File.
func ExportMIDI(w io.Writer, notes []fw.Note, tm fw.Timing) error {
	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName("keytone"))
	tr.Add(0, smf.MetaTempo(midiTempo))

	var delta uint32
	for _, n := range notes {
		key := midiKey(n.Pitch())
		tr.Add(delta, midi.NoteOn(0, key, midiVelocity))
		tr.Add(midiDuration(tm.Note), midi.NoteOff(0, key))
		delta = midiDuration(tm.Gap)
	}
	tr.Close(delta)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(midiTicks)
	if err := s.Add(tr); err != nil {
		return errors.Wrap(err, "add midi track")
	}
	if _, err := s.WriteTo(w); err != nil {
		return errors.Wrap(err, "write midi")
	}
	return nil
}
