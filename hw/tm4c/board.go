package tm4c

import (
	"keytone/hw/hal"
	"keytone/hw/hwio"
)

// Board is the board support layer: it brings the peripherals up and exposes
// them through the hal interfaces, with every access going through the
// peripheral registers.
type Board struct {
	soc *SoC

	Rows [4]hal.Pin // PE0-PE3
	Cols [4]hal.Pin // PC4-PC7
	LEDs [3]hal.Pin // PD1-PD3
	Bus  hal.Bus    // I2C0
	PWM  hal.PWM    // M0PWM0
}

// NewBoard runs the peripheral bring-up sequence on s and returns its
// hal bindings.
func NewBoard(s *SoC) *Board {
	b := &Board{soc: s}
	b.initKeypad()
	b.initLEDs()
	b.initI2C()
	b.initPWM()

	t := s.Bus
	for i := range b.Rows {
		b.Rows[i] = &gpioPin{t: t, base: GPIOEBase, bit: uint(i)}
	}
	for i := range b.Cols {
		b.Cols[i] = &gpioPin{t: t, base: GPIOCBase, bit: uint(i + 4)}
	}
	for i := range b.LEDs {
		b.LEDs[i] = &gpioPin{t: t, base: GPIODBase, bit: uint(i + 1)}
	}
	b.Bus = &i2cBus{t: t, base: I2C0Base}
	b.PWM = &pwmOut{t: t, base: PWM0Base}
	return b
}

func (b *Board) SoC() *SoC { return b.soc }

func (b *Board) setBits(addr uint32, mask uint32) {
	b.soc.Bus.Modify(addr, 0, mask)
}

func (b *Board) clearBits(addr uint32, mask uint32) {
	b.soc.Bus.Modify(addr, mask, 0)
}

func (b *Board) initKeypad() {
	t := b.soc.Bus
	b.setBits(SysCtlBase+sysRCGCGPIO, 1<<gateGPIOE)
	t.Write32(GPIOEBase+gpioDEN, 0x0F)
	t.Write32(GPIOEBase+gpioDIR, 0x0F)

	b.setBits(SysCtlBase+sysRCGCGPIO, 1<<gateGPIOC)
	t.Write32(GPIOCBase+gpioDEN, 0xF0)
	t.Write32(GPIOCBase+gpioDIR, 0x00)
	t.Write32(GPIOCBase+gpioPDR, 0xF0)
}

func (b *Board) initLEDs() {
	b.setBits(SysCtlBase+sysRCGCGPIO, 1<<gateGPIOD)
	b.setBits(GPIODBase+gpioDEN, 0x0E)
	b.setBits(GPIODBase+gpioDIR, 0x0E)
}

func (b *Board) initI2C() {
	t := b.soc.Bus

	// PB2 = I2C0SCL, PB3 = I2C0SDA (open drain).
	b.setBits(SysCtlBase+sysRCGCGPIO, 1<<gateGPIOB)
	b.setBits(GPIOBBase+gpioDEN, 1<<3|1<<2)
	b.setBits(GPIOBBase+gpioAFSEL, 1<<3|1<<2)
	b.setBits(GPIOBBase+gpioPCTL, 3<<12|3<<8)
	b.setBits(GPIOBBase+gpioODR, 1<<3)
	b.setBits(GPIOBBase+gpioPUR, 1<<3|1<<2)

	b.setBits(SysCtlBase+sysRCGCI2C, 1<<0)
	t.Write32(I2C0Base+i2cMCR, mcrMFE)
	t.Write32(I2C0Base+i2cMTPR, 0x07) // 100 kbps at 16 MHz
}

func (b *Board) initPWM() {
	t := b.soc.Bus

	b.setBits(SysCtlBase+sysRCGCPWM, 1<<0)
	b.clearBits(SysCtlBase+sysRCC, rccUSEPWMDIV)

	// PB6 = M0PWM0.
	b.setBits(SysCtlBase+sysRCGCGPIO, 1<<gateGPIOB)
	b.setBits(GPIOBBase+gpioDEN, 1<<6)
	b.setBits(GPIOBBase+gpioAFSEL, 1<<6)
	b.setBits(GPIOBBase+gpioPCTL, 4<<24)

	// Count-down, high on load, low on comparator A match. Output 0 stays
	// disabled until a tone starts.
	t.Write32(PWM0Base+pwmG0CTL, 0)
	t.Write32(PWM0Base+pwmG0GENA, 0x8C)
	t.Write32(PWM0Base+pwmG0LOAD, 16000)
	t.Write32(PWM0Base+pwmG0CMPA, 16000-1)
	b.setBits(PWM0Base+pwmG0CTL, 1<<0)
}

type gpioPin struct {
	t    *hwio.Table
	base uint32
	bit  uint
}

func (p *gpioPin) Configure(cfg hal.PinConfig) {
	mask := uint32(1) << p.bit
	p.t.Modify(p.base+gpioDEN, 0, mask)
	switch cfg.Mode {
	case hal.PinOutput:
		p.t.Modify(p.base+gpioDIR, 0, mask)
	case hal.PinInput:
		p.t.Modify(p.base+gpioDIR, mask, 0)
		p.t.Modify(p.base+gpioPDR, mask, 0)
		p.t.Modify(p.base+gpioPUR, mask, 0)
	case hal.PinInputPulldown:
		p.t.Modify(p.base+gpioDIR, mask, 0)
		p.t.Modify(p.base+gpioPUR, mask, 0)
		p.t.Modify(p.base+gpioPDR, 0, mask)
	case hal.PinInputPullup:
		p.t.Modify(p.base+gpioDIR, mask, 0)
		p.t.Modify(p.base+gpioPDR, mask, 0)
		p.t.Modify(p.base+gpioPUR, 0, mask)
	}
}

func (p *gpioPin) Set(high bool) {
	mask := uint32(1) << p.bit
	if high {
		p.t.Modify(p.base+gpioDATA, 0, mask)
	} else {
		p.t.Modify(p.base+gpioDATA, mask, 0)
	}
}

func (p *gpioPin) Get() bool {
	return hwio.GetBit32(p.t.Read32(p.base+gpioDATA), p.bit)
}

type i2cBus struct {
	t    *hwio.Table
	base uint32
}

func (b *i2cBus) SetTarget(addr uint8, read bool) {
	sa := uint32(addr&0x7F) << 1
	if read {
		sa |= 1
	}
	b.t.Write32(b.base+i2cMSA, sa)
}

func mcsCommand(cond hal.Cond) uint32 {
	cmd := uint32(mcsRUN)
	if cond&hal.CondStart != 0 {
		cmd |= mcsSTART
	}
	if cond&hal.CondStop != 0 {
		cmd |= mcsSTOP
	}
	if cond&hal.CondAck != 0 {
		cmd |= mcsACK
	}
	return cmd
}

func (b *i2cBus) Transmit(data byte, cond hal.Cond) {
	b.t.Write32(b.base+i2cMDR, uint32(data))
	b.t.Write32(b.base+i2cMCS, mcsCommand(cond))
}

func (b *i2cBus) Receive(cond hal.Cond) {
	b.t.Write32(b.base+i2cMCS, mcsCommand(cond))
}

func (b *i2cBus) Stop() {
	b.t.Write32(b.base+i2cMCS, mcsSTOP)
}

func (b *i2cBus) Status() hal.Status {
	mcs := b.t.Read32(b.base + i2cMCS)

	var s hal.Status
	for _, f := range []struct {
		bit  uint32
		flag hal.Status
	}{
		{mcsBUSY, hal.StatusBusy},
		{mcsERROR, hal.StatusError},
		{mcsADRACK, hal.StatusAddrNack},
		{mcsDATACK, hal.StatusDataNack},
		{mcsARBLST, hal.StatusArbLost},
		{mcsIDLE, hal.StatusIdle},
	} {
		if mcs&f.bit != 0 {
			s |= f.flag
		}
	}
	return s
}

func (b *i2cBus) Data() byte {
	return byte(b.t.Read32(b.base + i2cMDR))
}

type pwmOut struct {
	t    *hwio.Table
	base uint32
}

func (p *pwmOut) SetPeriod(load uint32) {
	p.t.Write32(p.base+pwmG0LOAD, load)
}

func (p *pwmOut) SetCompare(cmp uint32) {
	p.t.Write32(p.base+pwmG0CMPA, cmp)
}

func (p *pwmOut) Enable(on bool) {
	if on {
		p.t.Modify(p.base+pwmENABLE, 0, 1<<0)
	} else {
		p.t.Modify(p.base+pwmENABLE, 1<<0, 0)
	}
}
