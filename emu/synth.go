package emu

import (
	"math"

	"github.com/arl/blip"

	"keytone/hw/tm4c"
)

// synthClock is the time base of the synthesizer, in clocks per second.
const synthClock = 1_000_000

// synth renders the buzzer square wave into band-limited 16-bit mono samples.
type synth struct {
	buf   *blip.Buffer
	out   []int16
	rate  int
	amp   int32
	level int32   // current output level
	phase float64 // clocks since the start of the current period
}

func newSynth(sampleRate int, volume float64) *synth {
	s := &synth{
		buf:  blip.NewBuffer(blip.MaxFrame),
		out:  make([]int16, blip.MaxFrame),
		rate: sampleRate,
		amp:  int32(volume * math.MaxInt16 / 2),
	}
	s.buf.SetRates(synthClock, float64(sampleRate))
	return s
}

// maxFrameClocks is the longest frame that fits the blip buffer.
func (s *synth) maxFrameClocks() int {
	return (blip.MaxFrame - 64) * synthClock / s.rate
}

func (s *synth) set(t float64, level int32) {
	if level != s.level {
		s.buf.AddDelta(uint64(t), level-s.level)
		s.level = level
	}
}

// run synthesizes clocks clocks of the output described by out, and returns
// the samples produced. The returned slice is only valid until the next call.
func (s *synth) run(out tm4c.PWMOutput, clocks int) []int16 {
	frame := float64(clocks)
	if !out.On || out.Freq <= 0 {
		s.set(0, 0)
		s.phase = 0
	} else {
		period := synthClock / out.Freq
		high := period * out.Duty
		for t := 0.0; t < frame; {
			var next float64
			if s.phase < high {
				s.set(t, s.amp)
				next = high - s.phase
			} else {
				s.set(t, -s.amp)
				next = period - s.phase
			}
			adv := min(next, frame-t)
			t += adv
			s.phase += adv
			if s.phase >= period {
				s.phase -= period
			}
		}
	}

	s.buf.EndFrame(clocks)
	n := s.buf.ReadSamples(s.out, len(s.out), blip.Mono)
	return s.out[:n]
}
