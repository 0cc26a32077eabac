package emu

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/google/go-cmp/cmp"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"keytone/fw"
	"keytone/hw/tm4c"
)

// risingEdges counts the rising edges of a square wave rendered at volume 0.5.
func risingEdges(samples []int) int {
	const thr = math.MaxInt16 / 8
	n := 0
	rising := false
	for i := 1; i < len(samples); i++ {
		d := samples[i] - samples[i-1]
		if d > thr && !rising {
			n++
		}
		rising = d > thr
	}
	return n
}

func TestSynthFrequency(t *testing.T) {
	const rate = 48000
	s := newSynth(rate, 0.5)
	out, err := noteOutput(6, 0) // 440 Hz
	if err != nil {
		t.Fatal(err)
	}

	var samples []int
	for range 100 { // 1s
		for _, v := range s.run(out, synthClock/100) {
			samples = append(samples, int(v))
		}
	}
	if len(samples) < rate-10 || len(samples) > rate+10 {
		t.Errorf("%d samples for 1s at %d Hz", len(samples), rate)
	}
	if n := risingEdges(samples); n < 435 || n > 445 {
		t.Errorf("%d periods in 1s, want about 440", n)
	}
}

func TestSynthSilence(t *testing.T) {
	s := newSynth(44100, 0.5)
	out, _ := noteOutput(1, 0)
	s.run(out, 20000)

	// Once off, the output decays to silence.
	var last []int16
	for range 20 {
		last = s.run(tm4c.PWMOutput{}, 10000)
	}
	for _, v := range last {
		if v > 64 || v < -64 {
			t.Fatalf("sample %d after the output went off", v)
		}
	}
}

func TestNoteOutput(t *testing.T) {
	out, err := noteOutput(6, 16_000_000)
	if err != nil {
		t.Fatal(err)
	}
	want := tm4c.PWMOutput{On: true, Load: 36363, Cmp: 32727, Clock: 16_000_000}
	if diff := cmp.Diff(want, out, cmpIgnoreWave); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}
	if out.Duty < 0.09 || out.Duty > 0.11 {
		t.Errorf("duty = %v, want 10%%", out.Duty)
	}

	if _, err := noteOutput(1, 100); err == nil {
		t.Errorf("note on a 100 Hz clock accepted")
	}
}

var cmpIgnoreWave = cmp.FilterPath(func(p cmp.Path) bool {
	name := p.Last().String()
	return name == ".Freq" || name == ".Duty"
}, cmp.Ignore())

func TestRenderWAV(t *testing.T) {
	tm := fw.DefaultTiming
	tm.Note = 200 * time.Millisecond
	tm.Gap = 50 * time.Millisecond
	acfg := DefaultConfig().Audio

	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := RenderWAV(f, []fw.Note{1, 8}, tm, 0, acfg); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	f, err = os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if dec.SampleRate != uint32(acfg.SampleRate) || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Errorf("format: %d Hz, %d channels, %d bits", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}

	// 2 notes and gaps, plus the tail.
	want := acfg.SampleRate * (2*250 + 50) / 1000
	if n := len(buf.Data); n < want-10 || n > want+10 {
		t.Errorf("%d samples, want about %d", n, want)
	}

	first := buf.Data[:acfg.SampleRate/5]
	second := buf.Data[acfg.SampleRate/4 : acfg.SampleRate/4+acfg.SampleRate/5]
	if n := risingEdges(first); n < 50 || n > 54 {
		t.Errorf("first note: %d periods in 200ms, want about 52", n)
	}
	if n := risingEdges(second); n < 102 || n > 107 {
		t.Errorf("second note: %d periods in 200ms, want about 105", n)
	}
}

func TestExportMIDI(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportMIDI(&buf, []fw.Note{1, 5, 8}, fw.DefaultTiming); err != nil {
		t.Fatal(err)
	}

	s, err := smf.ReadFrom(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Tracks) != 1 {
		t.Fatalf("%d tracks, want 1", len(s.Tracks))
	}

	type event struct {
		Delta uint32
		On    bool
		Key   uint8
	}
	var got []event
	for _, ev := range s.Tracks[0] {
		var ch, key, vel uint8
		msg := midi.Message(ev.Message)
		switch {
		case msg.GetNoteOn(&ch, &key, &vel):
			got = append(got, event{Delta: ev.Delta, On: true, Key: key})
		case msg.GetNoteOff(&ch, &key, &vel):
			got = append(got, event{Delta: ev.Delta, Key: key})
		}
	}

	// 1s is 2 quarter notes at 120 bpm, 50ms is 96 ticks.
	want := []event{
		{Delta: 0, On: true, Key: 60},
		{Delta: 1920, Key: 60},
		{Delta: 96, On: true, Key: 67},
		{Delta: 1920, Key: 67},
		{Delta: 96, On: true, Key: 72},
		{Delta: 1920, Key: 72},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestMIDIKey(t *testing.T) {
	var got []uint8
	for _, p := range fw.Pitches {
		got = append(got, midiKey(p))
	}
	want := []uint8{60, 62, 64, 65, 67, 69, 71, 72}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
}

type fakeSink struct {
	queued [][]byte
	full   bool
	closed int
}

func (f *fakeSink) Queue(buf []byte) error { f.queued = append(f.queued, buf); return nil }
func (f *fakeSink) Close()                 { f.closed++ }

func (f *fakeSink) Queued() int {
	if f.full {
		return 1 << 30
	}
	return 0
}

func TestAudioFollowsBuzzer(t *testing.T) {
	sink := &fakeSink{}
	a := newAudio(AudioConfig{SampleRate: 44100, Volume: 0.5}, sink)

	if err := a.frame(10 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	out, _ := noteOutput(3, 0)
	a.setOutput(out)
	if err := a.frame(10 * time.Millisecond); err != nil {
		t.Fatal(err)
	}

	if len(sink.queued) != 2 {
		t.Fatalf("%d buffers queued, want 2", len(sink.queued))
	}
	if n := len(sink.queued[1]); n < 2*435 || n > 2*445 {
		t.Errorf("%d bytes for 10ms, want about 882", n)
	}
	if !bytes.Equal(sink.queued[0], make([]byte, len(sink.queued[0]))) {
		t.Errorf("sound while the buzzer is off")
	}
	if bytes.Equal(sink.queued[1], make([]byte, len(sink.queued[1]))) {
		t.Errorf("silence while the buzzer is on")
	}

	// Frames are dropped while the sink is behind.
	sink.full = true
	if err := a.frame(10 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if len(sink.queued) != 2 {
		t.Errorf("frame queued on a full sink")
	}

	a.close()
	a.close()
	if sink.closed != 1 {
		t.Errorf("sink closed %d times", sink.closed)
	}
}
