package tm4c

import (
	"fmt"
	"io"

	"keytone/emu/log"
	"keytone/hw/hal"
	"keytone/hw/hwio"
	"keytone/hw/i2c"
)

// I2C master register offsets.
const (
	i2cMSA  = 0x000
	i2cMCS  = 0x004
	i2cMDR  = 0x008
	i2cMTPR = 0x00C
	i2cMCR  = 0x020
)

// MCS bits, when written.
const (
	mcsRUN   = 1 << 0
	mcsSTART = 1 << 1
	mcsSTOP  = 1 << 2
	mcsACK   = 1 << 3
)

// MCS bits, when read.
const (
	mcsBUSY   = 1 << 0
	mcsERROR  = 1 << 1
	mcsADRACK = 1 << 2
	mcsDATACK = 1 << 3
	mcsARBLST = 1 << 4
	mcsIDLE   = 1 << 5
	mcsBUSBSY = 1 << 6
)

const mcrMFE = 1 << 4 // master function enable

// I2C is an I2C module in master mode. Protocol handling is delegated to an
// i2c.Master, the registers only translate commands and status.
type I2C struct {
	num    uint
	sysctl *SysCtl
	master *i2c.Master

	// Trace, when set, receives one line per command written to MCS.
	Trace io.Writer

	MSA  hwio.Reg32 `hwio:"offset=0x000,rwmask=0xFF"`
	MCS  hwio.Reg32 `hwio:"offset=0x004,rwmask=0xF,rcb,wcb"`
	MDR  hwio.Reg32 `hwio:"offset=0x008,rwmask=0xFF,rcb"`
	MTPR hwio.Reg32 `hwio:"offset=0x00C,rwmask=0xFF,reset=0x1"`
	MCR  hwio.Reg32 `hwio:"offset=0x020,rwmask=0x31"`

	rx bool // last command was a receive
}

func newI2C(num uint, sysctl *SysCtl, master *i2c.Master) *I2C {
	p := &I2C{num: num, sysctl: sysctl, master: master}
	hwio.MustInitRegs(p)
	return p
}

// Master returns the protocol engine, to attach targets.
func (p *I2C) Master() *i2c.Master { return p.master }

func (p *I2C) ReadMCS(uint32) uint32 {
	s := p.master.Status()

	var v uint32
	if s&hal.StatusBusy != 0 {
		v |= mcsBUSY
	}
	if s&hal.StatusError != 0 {
		v |= mcsERROR
	}
	if s&hal.StatusAddrNack != 0 {
		v |= mcsADRACK
	}
	if s&hal.StatusDataNack != 0 {
		v |= mcsDATACK
	}
	if s&hal.StatusArbLost != 0 {
		v |= mcsARBLST
	}
	if s&hal.StatusIdle != 0 {
		v |= mcsIDLE
	} else {
		v |= mcsBUSBSY
	}
	return v
}

func (p *I2C) WriteMCS(_, val uint32) {
	if !p.sysctl.i2cClocked(p.num) || p.MCR.Value&mcrMFE == 0 {
		log.ModBus.ErrorZ("i2c command while master disabled").
			Uint8("module", uint8(p.num)).
			Hex8("mcs", uint8(val)).
			Hex32("mcr", p.MCR.Value).
			End()
		return
	}

	addr := uint8(p.MSA.Value >> 1)
	read := p.MSA.Value&1 != 0
	p.trace(val, addr, read)

	if val&mcsRUN == 0 {
		if val&mcsSTOP != 0 {
			p.master.Stop()
		}
		return
	}

	var cond hal.Cond
	if val&mcsSTART != 0 {
		cond |= hal.CondStart
	}
	if val&mcsSTOP != 0 {
		cond |= hal.CondStop
	}
	if val&mcsACK != 0 {
		cond |= hal.CondAck
	}

	p.master.SetTarget(addr, read)
	p.rx = read
	if read {
		p.master.Receive(cond)
	} else {
		p.master.Transmit(uint8(p.MDR.Value), cond)
	}
}

// ReadMDR returns the last received byte after a receive command, the byte
// to transmit otherwise.
func (p *I2C) ReadMDR(val uint32) uint32 {
	if p.rx {
		return uint32(p.master.Data())
	}
	return val
}

func (p *I2C) trace(mcs uint32, addr uint8, read bool) {
	if p.Trace == nil {
		return
	}
	var cmd string
	for _, b := range []struct {
		bit  uint32
		name string
	}{{mcsSTART, "START"}, {mcsRUN, "RUN"}, {mcsACK, "ACK"}, {mcsSTOP, "STOP"}} {
		if mcs&b.bit != 0 {
			if cmd != "" {
				cmd += "|"
			}
			cmd += b.name
		}
	}
	dir := "W"
	if read {
		dir = "R"
	}
	fmt.Fprintf(p.Trace, "I2C%d MCS=%-18s SA=%02X %s MDR=%02X\n", p.num, cmd, addr, dir, uint8(p.MDR.Value))
}
