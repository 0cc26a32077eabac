package tm4c

import (
	"keytone/emu/log"
	"keytone/hw/hwio"
)

// GPIO port register offsets (APB aperture).
const (
	gpioDATA  = 0x3FC // DATA with all address mask bits set
	gpioDIR   = 0x400
	gpioAFSEL = 0x420
	gpioODR   = 0x50C
	gpioPUR   = 0x510
	gpioPDR   = 0x514
	gpioDEN   = 0x51C
	gpioPCTL  = 0x52C
)

// GPIO is an 8-bit general purpose I/O port.
type GPIO struct {
	name   string
	gate   uint // bit in RCGCGPIO
	sysctl *SysCtl

	DATA  hwio.Reg32 `hwio:"offset=0x3FC,rwmask=0xFF,rcb,wcb"`
	DIR   hwio.Reg32 `hwio:"offset=0x400,rwmask=0xFF"`
	AFSEL hwio.Reg32 `hwio:"offset=0x420,rwmask=0xFF"`
	ODR   hwio.Reg32 `hwio:"offset=0x50C,rwmask=0xFF"`
	PUR   hwio.Reg32 `hwio:"offset=0x510,rwmask=0xFF"`
	PDR   hwio.Reg32 `hwio:"offset=0x514,rwmask=0xFF"`
	DEN   hwio.Reg32 `hwio:"offset=0x51C,rwmask=0xFF"`
	PCTL  hwio.Reg32 `hwio:"offset=0x52C"`

	// Input returns the level of the external lines, given the lines the
	// port currently drives. Nil means nothing is connected.
	Input func(driven uint8) uint8
	// Output is called when the driven lines change.
	Output func(driven uint8)
}

func newGPIO(name string, gate uint, sysctl *SysCtl) *GPIO {
	p := &GPIO{name: name, gate: gate, sysctl: sysctl}
	hwio.MustInitRegs(p)
	return p
}

// driven returns the output lines driven high.
func (p *GPIO) driven() uint8 {
	return uint8(p.DATA.Value & p.DIR.Value & p.DEN.Value)
}

func (p *GPIO) ReadDATA(val uint32) uint32 {
	if !p.sysctl.gpioClocked(p.gate) {
		log.ModHwIo.ErrorZ("read from unclocked gpio port").String("port", p.name).End()
		return 0
	}

	den := uint8(p.DEN.Value)
	dir := uint8(p.DIR.Value)

	var in uint8
	if p.Input != nil {
		in = p.Input(p.driven())
	}
	// Undriven inputs read their pull resistor: low with pull-down or no
	// pull, high with pull-up.
	floating := ^dir &^ in
	in |= floating & uint8(p.PUR.Value) &^ uint8(p.PDR.Value)

	out := uint8(val) & dir
	return uint32((out | (in &^ dir)) & den)
}

func (p *GPIO) WriteDATA(old, val uint32) {
	if !p.sysctl.gpioClocked(p.gate) {
		log.ModHwIo.ErrorZ("write to unclocked gpio port").
			String("port", p.name).
			Hex8("val", uint8(val)).
			End()
		return
	}
	if p.Output != nil && old != val {
		p.Output(p.driven())
	}
}
