// Package tm4c simulates the subset of a TM4C123 microcontroller the keypad
// tone board uses, at register level: system control clock gates, GPIO ports
// B to E, I2C0 in master mode and PWM0 generator 0.
//
// The board wiring is fixed: keypad rows on PE0-PE3, keypad columns on
// PC4-PC7, mode LEDs on PD1-PD3, EEPROM on I2C0 (PB2/PB3) and the buzzer on
// M0PWM0 (PB6).
package tm4c

import (
	"sync/atomic"

	"keytone/hw/hal"
	"keytone/hw/hwio"
	"keytone/hw/i2c"
	"keytone/hw/keymatrix"
)

// Peripheral base addresses.
const (
	SysCtlBase = 0x400FE000
	GPIOBBase  = 0x40005000
	GPIOCBase  = 0x40006000
	GPIODBase  = 0x40007000
	GPIOEBase  = 0x40024000
	I2C0Base   = 0x40020000
	PWM0Base   = 0x40028000
)

const DefaultSysClock = 16_000_000

type Config struct {
	SysClock     uint32 // Hz
	I2CBusyPolls int    // MCS reads reporting BUSY after each command
}

type SoC struct {
	Bus *hwio.Table

	SysCtl *SysCtl
	PortB  *GPIO
	PortC  *GPIO
	PortD  *GPIO
	PortE  *GPIO
	I2C0   *I2C
	PWM0   *PWM

	clock hal.Clock
	keys  *keymatrix.Matrix
	leds  atomic.Uint32
}

// New returns a SoC in reset state, with keys wired to ports C and E.
func New(cfg Config, clock hal.Clock, keys *keymatrix.Matrix) *SoC {
	if cfg.SysClock == 0 {
		cfg.SysClock = DefaultSysClock
	}

	s := &SoC{
		Bus:   hwio.NewTable("apb"),
		clock: clock,
		keys:  keys,
	}
	s.SysCtl = newSysCtl()
	s.PortB = newGPIO("B", gateGPIOB, s.SysCtl)
	s.PortC = newGPIO("C", gateGPIOC, s.SysCtl)
	s.PortD = newGPIO("D", gateGPIOD, s.SysCtl)
	s.PortE = newGPIO("E", gateGPIOE, s.SysCtl)

	master := i2c.NewMaster()
	master.BusyPolls = cfg.I2CBusyPolls
	s.I2C0 = newI2C(0, s.SysCtl, master)
	s.PWM0 = newPWM(0, cfg.SysClock, s.SysCtl, s.buzzerRouted)

	s.PortC.Input = func(uint8) uint8 {
		if s.keys == nil {
			return 0
		}
		rows := s.PortE.driven() & 0x0F
		return s.keys.Columns(rows) << 4
	}
	s.PortD.Output = func(driven uint8) {
		s.leds.Store(uint32(driven))
	}

	s.Bus.MapBank(SysCtlBase, s.SysCtl, 0)
	s.Bus.MapBank(GPIOBBase, s.PortB, 0)
	s.Bus.MapBank(GPIOCBase, s.PortC, 0)
	s.Bus.MapBank(GPIODBase, s.PortD, 0)
	s.Bus.MapBank(GPIOEBase, s.PortE, 0)
	s.Bus.MapBank(I2C0Base, s.I2C0, 0)
	s.Bus.MapBank(PWM0Base, s.PWM0, 0)
	return s
}

// Clock returns the clock the SoC runs on.
func (s *SoC) Clock() hal.Clock { return s.clock }

// Keys returns the keypad wired to ports C and E.
func (s *SoC) Keys() *keymatrix.Matrix { return s.keys }

// Attach connects t to the I2C0 bus. Targets are attached before the
// firmware starts.
func (s *SoC) Attach(t hal.Target) {
	s.I2C0.master.Attach(t)
}

// LEDs returns the port D lines currently driven high.
func (s *SoC) LEDs() uint8 {
	return uint8(s.leds.Load())
}

// Buzzer returns the state of the M0PWM0 output.
func (s *SoC) Buzzer() PWMOutput {
	return s.PWM0.Output()
}

// buzzerRouted reports whether PB6 is configured as M0PWM0.
func (s *SoC) buzzerRouted() bool {
	const pin = 6
	return hwio.GetBit32(s.PortB.DEN.Value, pin) &&
		hwio.GetBit32(s.PortB.AFSEL.Value, pin) &&
		hwio.Bits(s.PortB.PCTL.Value, pin*4, 4) == 4
}
