package hwio_test

import (
	"testing"

	"keytone/hw/hwio"
)

type testBank struct {
	Data   hwio.Reg32 `hwio:"offset=0x3FC,rcb"`
	Dir    hwio.Reg32 `hwio:"offset=0x400,rwmask=0xFF"`
	Status hwio.Reg32 `hwio:"offset=0x004,bank=1,readonly,reset=0x20"`
	Ctrl   hwio.Reg32 `hwio:"offset=0x008,bank=1,writeonly,wcb"`

	input  uint32
	ctrlwr []uint32
}

func (b *testBank) ReadDATA(val uint32) uint32  { return val | b.input }
func (b *testBank) WriteCTRL(old, val uint32) { b.ctrlwr = append(b.ctrlwr, val) }

func newTestTable(tb testing.TB) (*hwio.Table, *testBank) {
	tb.Helper()

	bank := &testBank{}
	hwio.MustInitRegs(bank)

	tbl := hwio.NewTable("apb")
	tbl.MapBank(0x4000_5000, bank, 0)
	return tbl, bank
}

func wantRead32(t *testing.T, tbl *hwio.Table, addr uint32, want uint32) {
	t.Helper()

	if got := tbl.Read32(addr); got != want {
		t.Errorf("Read32(%08X) = %08X, want %08X", addr, got, want)
	}
}

func TestTableRegs(t *testing.T) {
	tbl, bank := newTestTable(t)

	tbl.Write32(0x4000_53FC, 0x0F)
	bank.input = 0xF0
	wantRead32(t, tbl, 0x4000_53FC, 0xFF)
	if got := tbl.Peek32(0x4000_53FC); got != 0x0F {
		t.Errorf("Peek32 = %02X, want 0F (no read callback)", got)
	}

	tbl.Write32(0x4000_5400, 0x1234)
	wantRead32(t, tbl, 0x4000_5400, 0x34)

	tbl.Modify(0x4000_5400, 0x04, 0x80)
	wantRead32(t, tbl, 0x4000_5400, 0xB0)
}

func TestTableUnmapped(t *testing.T) {
	tbl, _ := newTestTable(t)

	wantRead32(t, tbl, 0x1234_5678, 0)
	tbl.Write32(0x1234_5678, 1)
	tbl.Modify(0x1234_5678, 0, 1)
}

func TestTableUnmapBank(t *testing.T) {
	tbl, bank := newTestTable(t)

	other := hwio.NewTable("other")
	other.MapBank(0x0, bank, 1)
	other.Write32(0x4, 0x55)
	other.Write32(0x8, 0x66)
	wantRead32(t, other, 0x4, 0x20)
	wantRead32(t, other, 0x8, 0)
	if len(bank.ctrlwr) != 1 || bank.ctrlwr[0] != 0x66 {
		t.Errorf("ctrl writes = %x, want [66]", bank.ctrlwr)
	}

	tbl.UnmapBank(0x4000_5000, bank, 0)
	tbl.Write32(0x4000_5400, 0x12)
	if bank.Dir.Value != 0 {
		t.Errorf("write reached unmapped register: %x", bank.Dir.Value)
	}
}

func TestTableDoubleMap(t *testing.T) {
	tbl, bank := newTestTable(t)

	defer func() {
		if recover() == nil {
			t.Errorf("mapping the same bank twice should panic")
		}
	}()
	tbl.MapBank(0x4000_5000, bank, 0)
}
