package eeprom

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-faster/errors"
	"github.com/google/go-cmp/cmp"

	"keytone/hw/hal"
)

func newTestDevice(t *testing.T) (*Device, *hal.VirtualClock) {
	t.Helper()

	clock := &hal.VirtualClock{}
	return New(Config{Size: 256, PageSize: 16}, clock), clock
}

func writeBytes(t *testing.T, d *Device, addr int, data ...byte) {
	t.Helper()

	if !d.Start(false) {
		t.Fatalf("start not acknowledged")
	}
	d.Send(byte(addr >> 8))
	d.Send(byte(addr))
	for _, b := range data {
		if !d.Send(b) {
			t.Fatalf("data byte %02x not acknowledged", b)
		}
	}
	d.Stop()
}

func readBytes(t *testing.T, d *Device, addr int, n int) []byte {
	t.Helper()

	if !d.Start(false) {
		t.Fatalf("start not acknowledged")
	}
	d.Send(byte(addr >> 8))
	d.Send(byte(addr))
	d.Stop()

	if !d.Start(true) {
		t.Fatalf("read start not acknowledged")
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = d.Recv()
	}
	d.Stop()
	return buf
}

func TestErasedAfterNew(t *testing.T) {
	d, _ := newTestDevice(t)

	for i, b := range d.Cells(256) {
		if b != Erased {
			t.Fatalf("cell %d = %02x, want %02x", i, b, Erased)
		}
	}
}

func TestWriteRead(t *testing.T) {
	d, clock := newTestDevice(t)

	writeBytes(t, d, 0x10, 1, 2, 3)
	clock.Advance(DefaultWriteCycle)

	got := readBytes(t, d, 0x0F, 5)
	want := []byte{Erased, 1, 2, 3, Erased}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("read mismatch (-want +got):\n%s", diff)
	}
	if d.WriteCycles() != 1 {
		t.Errorf("write cycles = %d, want 1", d.WriteCycles())
	}
}

func TestPageWrap(t *testing.T) {
	d, clock := newTestDevice(t)

	// 3 bytes from the end of page 0x10-0x1F, the last one wraps to 0x10.
	writeBytes(t, d, 0x1E, 0xA, 0xB, 0xC)
	clock.Advance(DefaultWriteCycle)

	cells := d.Cells(0x20)
	if cells[0x1E] != 0xA || cells[0x1F] != 0xB || cells[0x10] != 0xC {
		t.Errorf("page wrap not respected: % x", cells[0x10:0x20])
	}
}

func TestNackDuringWriteCycle(t *testing.T) {
	d, clock := newTestDevice(t)

	writeBytes(t, d, 0, 7)
	if !d.Busy() {
		t.Fatal("device should be busy right after a write")
	}
	if d.Start(false) {
		t.Fatal("device acknowledged during write cycle")
	}

	clock.Advance(DefaultWriteCycle - 1)
	if d.Start(true) {
		t.Fatal("device acknowledged before the end of write cycle")
	}

	clock.Advance(1)
	if !d.Start(true) {
		t.Fatal("device didn't acknowledge after write cycle")
	}
	d.Stop()
}

func TestPointerSetNoWriteCycle(t *testing.T) {
	d, _ := newTestDevice(t)

	readBytes(t, d, 0, 1)
	if d.Busy() || d.WriteCycles() != 0 {
		t.Errorf("pointer set alone started a write cycle")
	}
}

func TestRepeatedStartAbortsWrite(t *testing.T) {
	d, _ := newTestDevice(t)

	d.Start(false)
	d.Send(0)
	d.Send(0)
	d.Send(0x42)
	// Repeated start without stop.
	d.Start(true)
	d.Stop()

	if got := d.Cells(1)[0]; got != Erased {
		t.Errorf("aborted write reached memory: %02x", got)
	}
}

func TestDisconnected(t *testing.T) {
	d, _ := newTestDevice(t)

	d.SetDisconnected(true)
	if d.Start(false) || d.Start(true) {
		t.Fatal("disconnected device acknowledged")
	}
	d.SetDisconnected(false)
	if !d.Start(false) {
		t.Fatal("reconnected device didn't acknowledge")
	}
}

func TestImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eeprom.bin")

	d, _ := newTestDevice(t)
	if err := d.Load(path); err != nil {
		t.Fatalf("Load of missing image: %v", err)
	}

	d.Poke(0, 1, 2, 3)
	if err := d.Save(path); err != nil {
		t.Fatal(err)
	}

	d2, _ := newTestDevice(t)
	if err := d2.Load(path); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(d.Cells(256), d2.Cells(256)); diff != "" {
		t.Errorf("image mismatch (-want +got):\n%s", diff)
	}

	if err := os.WriteFile(path, []byte{1, 2}, 0644); err != nil {
		t.Fatal(err)
	}
	if err := d2.Load(path); !errors.Is(err, ErrImageSize) {
		t.Errorf("Load of truncated image = %v, want ErrImageSize", err)
	}
}
