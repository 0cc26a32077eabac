// Package eeprom models a 24LC256-style serial EEPROM on a two-wire bus:
// 2-byte word address, page writes wrapping inside a page, sequential reads
// and an internal write cycle during which the part doesn't acknowledge its
// address.
package eeprom

import (
	"os"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"keytone/emu/log"
	"keytone/hw/hal"
)

const (
	DefaultAddress    = 0x50 // 1010 A2 A1 A0, address pins tied low
	DefaultSize       = 32 * 1024
	DefaultPageSize   = 64
	DefaultWriteCycle = 5 * time.Millisecond

	// Erased is the value of a cell that hasn't been programmed since the
	// last erase.
	Erased = 0xFF
)

var ErrImageSize = errors.New("eeprom image size mismatch")

type Config struct {
	Address    uint8
	Size       int // power of 2
	PageSize   int // power of 2
	WriteCycle time.Duration
}

func (cfg *Config) setDefaults() {
	if cfg.Address == 0 {
		cfg.Address = DefaultAddress
	}
	if cfg.Size == 0 {
		cfg.Size = DefaultSize
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.WriteCycle == 0 {
		cfg.WriteCycle = DefaultWriteCycle
	}
}

type phase uint8

const (
	phaseIdle phase = iota
	phaseAddrHi
	phaseAddrLo
	phaseData
	phaseRead
)

type pendingWrite struct {
	addr int
	val  byte
}

// Device is the EEPROM. Its methods are safe for concurrent use: the
// simulator host saves the image while the firmware runs.
type Device struct {
	mu    sync.Mutex
	cfg   Config
	clock hal.Clock

	mem   []byte
	ptr   int
	phase phase

	pageBase int
	pageOff  int
	pending  []pendingWrite

	busyUntil    time.Duration
	disconnected bool

	writeCycles int
}

// New returns an erased EEPROM.
func New(cfg Config, clock hal.Clock) *Device {
	cfg.setDefaults()
	if cfg.Size&(cfg.Size-1) != 0 || cfg.PageSize&(cfg.PageSize-1) != 0 {
		panic("eeprom size and page size must be powers of 2")
	}

	d := &Device{
		cfg:   cfg,
		clock: clock,
		mem:   make([]byte, cfg.Size),
	}
	d.Fill(Erased)
	return d
}

func (d *Device) Address() uint8 { return d.cfg.Address }

// SetDisconnected simulates a missing or broken part: the device stops
// acknowledging its address.
func (d *Device) SetDisconnected(disc bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnected = disc
}

func (d *Device) Start(read bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disconnected {
		return false
	}
	if now := d.clock.Now(); now < d.busyUntil {
		log.ModEeprom.DebugZ("nack during write cycle").
			Duration("left", d.busyUntil-now).
			End()
		return false
	}

	// A repeated start aborts any unfinished page write.
	d.pending = d.pending[:0]
	if read {
		d.phase = phaseRead
	} else {
		d.phase = phaseAddrHi
	}
	return true
}

func (d *Device) Send(b byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	mask := d.cfg.Size - 1
	switch d.phase {
	case phaseAddrHi:
		d.ptr = (int(b) << 8) & mask
		d.phase = phaseAddrLo
	case phaseAddrLo:
		d.ptr = (d.ptr&0xFF00 | int(b)) & mask
		d.pageBase = d.ptr &^ (d.cfg.PageSize - 1)
		d.pageOff = d.ptr & (d.cfg.PageSize - 1)
		d.phase = phaseData
	case phaseData:
		addr := d.pageBase + d.pageOff
		d.pending = append(d.pending, pendingWrite{addr: addr, val: b})
		d.pageOff = (d.pageOff + 1) & (d.cfg.PageSize - 1)
	default:
		return false
	}
	return true
}

func (d *Device) Recv() byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.phase != phaseRead {
		return Erased
	}
	b := d.mem[d.ptr]
	d.ptr = (d.ptr + 1) & (d.cfg.Size - 1)
	return b
}

func (d *Device) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.phase == phaseData && len(d.pending) > 0 {
		for _, w := range d.pending {
			d.mem[w.addr] = w.val
		}
		d.ptr = d.pageBase + d.pageOff
		d.busyUntil = d.clock.Now() + d.cfg.WriteCycle
		d.writeCycles++

		log.ModEeprom.DebugZ("write cycle").
			Int("addr", d.pending[0].addr).
			Int("len", len(d.pending)).
			End()
		d.pending = d.pending[:0]
	}
	d.phase = phaseIdle
}

// WriteCycles returns the number of internal write cycles performed.
func (d *Device) WriteCycles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeCycles
}

// Busy reports whether an internal write cycle is in progress.
func (d *Device) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock.Now() < d.busyUntil
}

// Cells returns a copy of the n first cells.
func (d *Device) Cells(n int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.mem[:min(n, len(d.mem))]...)
}

// Poke writes directly to the memory array, bypassing the bus.
func (d *Device) Poke(addr int, data ...byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, b := range data {
		d.mem[(addr+i)&(d.cfg.Size-1)] = b
	}
}

// Fill sets all cells to b.
func (d *Device) Fill(b byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.mem {
		d.mem[i] = b
	}
}

// Load replaces the memory array with the content of the image file at path.
// A missing file leaves the device erased.
func (d *Device) Load(path string) error {
	buf, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.ModEeprom.InfoZ("no image, starting erased").String("path", path).End()
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load eeprom image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(buf) != len(d.mem) {
		return errors.Wrapf(ErrImageSize, "%s: %d bytes, want %d", path, len(buf), len(d.mem))
	}
	copy(d.mem, buf)
	return nil
}

// Save writes the memory array to the image file at path.
func (d *Device) Save(path string) error {
	d.mu.Lock()
	buf := append([]byte(nil), d.mem...)
	d.mu.Unlock()

	if err := os.WriteFile(path, buf, 0644); err != nil {
		return errors.Wrap(err, "save eeprom image")
	}
	return nil
}
