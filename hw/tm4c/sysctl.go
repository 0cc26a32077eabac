package tm4c

import "keytone/hw/hwio"

// System control register offsets.
const (
	sysRCC      = 0x060
	sysRCGCGPIO = 0x608
	sysRCGCI2C  = 0x620
	sysRCGCPWM  = 0x640
	sysPRGPIO   = 0xA08
)

// RCGCGPIO bits.
const (
	gateGPIOA = iota
	gateGPIOB
	gateGPIOC
	gateGPIOD
	gateGPIOE
	gateGPIOF
)

const rccUSEPWMDIV = 1 << 20

// SysCtl holds the clock gating registers. A peripheral whose gate is off
// ignores accesses.
type SysCtl struct {
	RCC      hwio.Reg32 `hwio:"offset=0x060,reset=0x078E3AD1"`
	RCGCGPIO hwio.Reg32 `hwio:"offset=0x608,rwmask=0x3F"`
	RCGCI2C  hwio.Reg32 `hwio:"offset=0x620,rwmask=0xF"`
	RCGCPWM  hwio.Reg32 `hwio:"offset=0x640,rwmask=0x3"`
	PRGPIO   hwio.Reg32 `hwio:"offset=0xA08,readonly,rcb"`
}

func newSysCtl() *SysCtl {
	s := new(SysCtl)
	hwio.MustInitRegs(s)
	return s
}

// ReadPRGPIO reports ports as ready as soon as they are clocked.
func (s *SysCtl) ReadPRGPIO(uint32) uint32 {
	return s.RCGCGPIO.Value
}

func (s *SysCtl) gpioClocked(gate uint) bool {
	return hwio.GetBit32(s.RCGCGPIO.Value, gate)
}

func (s *SysCtl) i2cClocked(n uint) bool {
	return hwio.GetBit32(s.RCGCI2C.Value, n)
}

func (s *SysCtl) pwmClocked(n uint) bool {
	return hwio.GetBit32(s.RCGCPWM.Value, n)
}

// pwmClockDiv returns the divider between the system clock and the PWM
// module clock.
func (s *SysCtl) pwmClockDiv() uint32 {
	if s.RCC.Value&rccUSEPWMDIV == 0 {
		return 1
	}
	return 2 << min(hwio.Bits(s.RCC.Value, 17, 3), 5)
}
