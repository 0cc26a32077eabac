package hwio

import (
	"fmt"
	"sync"

	"keytone/emu/log"
)

// log unmapped accesses
const logUnmapped = true

type BankIO32 interface {
	Read32(addr uint32) uint32
	Peek32(addr uint32) uint32
	Write32(addr uint32, val uint32)
}

// A Table is the peripheral address space. Accesses are serialized: the
// firmware and the simulator host may touch it from different goroutines.
//
// Register callbacks run with the table lock held, they must access their
// bank fields directly and never go back through the table.
type Table struct {
	Name string

	mu    sync.Mutex
	table map[uint32]BankIO32
}

func NewTable(name string) *Table {
	t := new(Table)
	t.Name = name
	t.Reset()
	return t
}

func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.table = make(map[uint32]BankIO32)
}

// MapBank maps a register bank, that is a structure containing multiple
// Reg32 fields. For this function to work, registers must have a struct tag
// "hwio", containing the following fields:
//
//	offset=0x12     Byte-offset within the register bank at which this
//	                register is mapped. There is no default value: if this
//	                option is missing, the register is assumed not to be
//	                part of the bank, and is ignored by this call.
//
//	bank=NN         Ordinal bank number (if not specified, default to zero).
//	                This option allows for a structure to expose multiple
//	                banks, as regs can be grouped by bank by specified the
//	                bank number.
func (t *Table) MapBank(addr uint32, bank any, bankNum int) {
	regs, err := bankGetRegs(bank, bankNum)
	if err != nil {
		panic(err)
	}

	for _, reg := range regs {
		t.MapReg32(addr+reg.offset, reg.regPtr)
	}
}

func (t *Table) UnmapBank(addr uint32, bank any, bankNum int) {
	regs, err := bankGetRegs(bank, bankNum)
	if err != nil {
		panic(err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, reg := range regs {
		delete(t.table, addr+reg.offset)
	}
}

func (t *Table) MapReg32(addr uint32, io BankIO32) {
	if addr&3 != 0 {
		panic(fmt.Errorf("unaligned register address %08x", addr))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.table[addr]; ok {
		panic(fmt.Errorf("register already mapped at %08x on %s", addr, t.Name))
	}
	t.table[addr] = io

	log.ModHwIo.DebugZ("mapping reg").
		Hex32("addr", addr).
		String("bus", t.Name).
		End()
}

// Read32 searches in the table for the register mapped at the given address
// and forwards the read to it.
func (t *Table) Read32(addr uint32) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	io := t.table[addr]
	if io == nil {
		if logUnmapped {
			log.ModHwIo.ErrorZ("unmapped Read32").
				String("name", t.Name).
				Hex32("addr", addr).
				End()
		}
		return 0
	}
	return io.Read32(addr)
}

// Peek32 reads without side effects (debugging/tracing).
func (t *Table) Peek32(addr uint32) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if io := t.table[addr]; io != nil {
		return io.Peek32(addr)
	}
	return 0
}

func (t *Table) Write32(addr uint32, val uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	io := t.table[addr]
	if io == nil {
		if logUnmapped {
			log.ModHwIo.ErrorZ("unmapped Write32").
				String("name", t.Name).
				Hex32("addr", addr).
				Hex32("val", val).
				End()
		}
		return
	}
	io.Write32(addr, val)
}

// Modify performs a locked read-modify-write: the register becomes
// (old &^ clr) | set.
func (t *Table) Modify(addr uint32, clr, set uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	io := t.table[addr]
	if io == nil {
		return
	}
	io.Write32(addr, (io.Read32(addr)&^clr)|set)
}
