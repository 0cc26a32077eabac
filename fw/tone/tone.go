// Package tone drives the buzzer with a square wave of a given pitch.
package tone

import (
	"github.com/go-faster/errors"

	"keytone/emu/log"
	"keytone/hw/hal"
)

const (
	// DefaultRefClock is the PWM counter clock.
	DefaultRefClock = 16_000_000

	maxPeriod = 0xFFFF // 16-bit generator counter
)

var ErrInvalidFrequency = errors.New("invalid tone frequency")

// Generator is a tone generator on top of a PWM output.
type Generator struct {
	pwm      hal.PWM
	refClock uint32
}

// New returns a generator for pwm, whose counter runs at refClock Hz (0 means
// DefaultRefClock).
func New(pwm hal.PWM, refClock uint32) *Generator {
	if refClock == 0 {
		refClock = DefaultRefClock
	}
	return &Generator{pwm: pwm, refClock: refClock}
}

// Settings returns the period and compare values for a tone of freq Hz. The
// output is high for the last tenth of the period.
func (g *Generator) Settings(freq uint32) (period, compare uint32, err error) {
	if freq == 0 {
		return 0, 0, errors.Wrap(ErrInvalidFrequency, "zero frequency")
	}
	period = g.refClock / freq
	if period == 0 || period > maxPeriod {
		return 0, 0, errors.Wrapf(ErrInvalidFrequency, "%d Hz: period %d out of range", freq, period)
	}
	return period, period - period/10, nil
}

// Start plays a tone of freq Hz until Stop.
func (g *Generator) Start(freq uint32) error {
	period, compare, err := g.Settings(freq)
	if err != nil {
		return err
	}

	g.pwm.SetPeriod(period)
	g.pwm.SetCompare(compare)
	g.pwm.Enable(true)

	log.ModFw.DebugZ("tone on").
		Uint32("freq", freq).
		Uint32("period", period).
		Uint32("cmp", compare).
		End()
	return nil
}

// Stop silences the output. Period and compare are left as they are.
func (g *Generator) Stop() {
	g.pwm.Enable(false)
	log.ModFw.DebugZ("tone off").End()
}
