package tm4c

import (
	"sync"

	"keytone/emu/log"
	"keytone/hw/hwio"
)

// PWM module register offsets (generator 0 only).
const (
	pwmCTL    = 0x000
	pwmENABLE = 0x008
	pwmG0CTL  = 0x040
	pwmG0LOAD = 0x050
	pwmG0CMPA = 0x058
	pwmG0GENA = 0x060
)

// Generator actions, as encoded in GENA fields.
const (
	actNone = iota
	actInvert
	actLow
	actHigh
)

// PWMOutput describes the square wave on a PWM output line.
type PWMOutput struct {
	On    bool
	Load  uint32
	Cmp   uint32
	Freq  float64 // Hz
	Duty  float64 // fraction of the period the line is high
	Clock uint32  // PWM module clock, Hz
}

// PWM is a PWM module with its generator 0 driving output 0.
type PWM struct {
	num    uint
	sysclk uint32
	sysctl *SysCtl
	pin    func() bool // output pin routed to the generator

	CTL    hwio.Reg32 `hwio:"offset=0x000,rwmask=0x3F"`
	ENABLE hwio.Reg32 `hwio:"offset=0x008,rwmask=0xFF,wcb"`
	G0CTL  hwio.Reg32 `hwio:"offset=0x040,rwmask=0x7FFFF,wcb"`
	G0LOAD hwio.Reg32 `hwio:"offset=0x050,rwmask=0xFFFF,wcb"`
	G0CMPA hwio.Reg32 `hwio:"offset=0x058,rwmask=0xFFFF,wcb"`
	G0GENA hwio.Reg32 `hwio:"offset=0x060,rwmask=0xFFF,wcb"`

	mu       sync.Mutex
	out      PWMOutput
	onChange func(PWMOutput)
}

func newPWM(num uint, sysclk uint32, sysctl *SysCtl, pin func() bool) *PWM {
	p := &PWM{num: num, sysclk: sysclk, sysctl: sysctl, pin: pin}
	hwio.MustInitRegs(p)
	return p
}

// OnChange registers f to be called each time the output changes. f runs
// with the peripheral bus locked and must not access registers.
func (p *PWM) OnChange(f func(PWMOutput)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = f
}

// Output returns the current state of output 0.
func (p *PWM) Output() PWMOutput {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out
}

func (p *PWM) WriteENABLE(_, _ uint32) { p.update() }
func (p *PWM) WriteG0CTL(_, _ uint32)  { p.update() }
func (p *PWM) WriteG0LOAD(_, _ uint32) { p.update() }
func (p *PWM) WriteG0CMPA(_, _ uint32) { p.update() }
func (p *PWM) WriteG0GENA(_, _ uint32) { p.update() }

func (p *PWM) update() {
	clocked := p.sysctl.pwmClocked(p.num)
	if !clocked {
		log.ModSound.ErrorZ("pwm access while unclocked").Uint8("module", uint8(p.num)).End()
	}

	out := PWMOutput{
		Load:  p.G0LOAD.Value,
		Cmp:   p.G0CMPA.Value,
		Clock: p.sysclk / p.sysctl.pwmClockDiv(),
	}
	running := hwio.GetBit32(p.G0CTL.Value, 0)
	enabled := hwio.GetBit32(p.ENABLE.Value, 0)
	routed := p.pin == nil || p.pin()
	out.On = clocked && running && enabled && routed && out.Load > 0

	if out.On {
		period := out.Load + 1
		high := highTime(p.G0GENA.Value, out.Load, out.Cmp)
		out.Freq = float64(out.Clock) / float64(period)
		out.Duty = float64(high) / float64(period)
		if high == 0 || high == period {
			// Constant level, nothing audible.
			out.On = false
		}
	}

	p.mu.Lock()
	changed := out != p.out
	p.out = out
	f := p.onChange
	p.mu.Unlock()

	if changed {
		log.ModSound.DebugZ("pwm output").
			Bool("on", out.On).
			Uint32("load", out.Load).
			Uint32("cmp", out.Cmp).
			End()
		if f != nil {
			f(out)
		}
	}
}

// highTime returns the number of PWM clocks per period the output is high,
// for a generator counting down from load, with gen the GENA actions.
func highTime(gen, load, cmp uint32) uint32 {
	actZero := hwio.Bits(gen, 0, 2)
	actLoad := hwio.Bits(gen, 2, 2)
	actCmpD := hwio.Bits(gen, 6, 2)

	apply := func(level bool, act uint32) bool {
		switch act {
		case actInvert:
			return !level
		case actLow:
			return false
		case actHigh:
			return true
		}
		return level
	}
	if cmp > load {
		// Comparator never matches.
		actCmpD = actNone
		cmp = 0
	}

	// Run two periods so inverting actions start from a known level, count
	// the second one.
	var level bool
	var high uint32
	for range 2 {
		high = 0
		level = apply(level, actLoad)
		if level {
			high += load - cmp
		}
		level = apply(level, actCmpD)
		if level {
			high += cmp
		}
		level = apply(level, actZero)
		if level {
			high++
		}
	}
	return high
}
