// Package storage persists note codes to a serial EEPROM over a two-wire
// bus: 2-byte word addressing, one byte per cell, 0xFF marks an erased cell.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"keytone/emu/log"
	"keytone/hw/hal"
)

const (
	// Cells is the number of cells holding a recording, from address 0.
	Cells = 32

	// Erased is the value of a cell that holds no note.
	Erased = 0xFF

	DefaultAddress = 0x50
	DefaultSettle  = 5 * time.Millisecond
)

var ErrBus = errors.New("bus error")

// BusError reports a failed transfer. The bus has been stopped.
type BusError struct {
	Op     string
	Addr   uint16
	Status hal.Status
}

func (e *BusError) Error() string {
	return fmt.Sprintf("%s at %#04x: bus error (%v)", e.Op, e.Addr, e.Status)
}

func (e *BusError) Unwrap() error { return ErrBus }

type Config struct {
	Address uint8         // 7-bit target address
	Settle  time.Duration // wait after a write transaction
}

// Driver is the EEPROM driver. It is not safe for concurrent use.
type Driver struct {
	bus   hal.Bus
	clock hal.Clock
	cfg   Config
}

func New(bus hal.Bus, clock hal.Clock, cfg Config) *Driver {
	if cfg.Address == 0 {
		cfg.Address = DefaultAddress
	}
	if cfg.Settle == 0 {
		cfg.Settle = DefaultSettle
	}
	return &Driver{bus: bus, clock: clock, cfg: cfg}
}

// wait polls the bus until the current transfer completes, and checks its
// outcome. On error, the bus is stopped.
func (d *Driver) wait(ctx context.Context, op string, addr uint16) error {
	for {
		s := d.bus.Status()
		if s&hal.StatusBusy == 0 {
			if s&hal.StatusError != 0 {
				d.bus.Stop()
				err := &BusError{Op: op, Addr: addr, Status: s}
				log.ModFw.ErrorZ("storage transfer failed").
					String("op", op).
					Hex16("addr", addr).
					Stringer("status", s).
					End()
				return err
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			d.bus.Stop()
			return err
		}
	}
}

// transmit sends b and waits for the transfer to complete.
func (d *Driver) transmit(ctx context.Context, op string, addr uint16, b byte, cond hal.Cond) error {
	d.bus.Transmit(b, cond)
	return d.wait(ctx, op, addr)
}

// begin starts a write transaction and sets the address pointer.
func (d *Driver) begin(ctx context.Context, op string, addr uint16) error {
	d.bus.SetTarget(d.cfg.Address, false)
	if err := d.transmit(ctx, op, addr, byte(addr>>8), hal.CondStart); err != nil {
		return err
	}
	return d.transmit(ctx, op, addr, byte(addr), 0)
}

// Write stores b at addr.
func (d *Driver) Write(ctx context.Context, addr uint16, b byte) error {
	if err := d.begin(ctx, "write", addr); err != nil {
		return err
	}
	if err := d.transmit(ctx, "write", addr, b, hal.CondStop); err != nil {
		return err
	}
	log.ModFw.DebugZ("stored").Hex16("addr", addr).Uint8("val", b).End()

	d.clock.Sleep(d.cfg.Settle)
	return nil
}

// ReadAll reads cells from address 0 into buf until an erased cell, at most
// min(len(buf), Cells) of them. It returns the number of cells read, the
// erased cell excluded.
func (d *Driver) ReadAll(ctx context.Context, buf []byte) (int, error) {
	if err := d.begin(ctx, "read", 0); err != nil {
		return 0, err
	}
	d.bus.Stop()
	if err := d.wait(ctx, "read", 0); err != nil {
		return 0, err
	}

	limit := min(len(buf), Cells)
	if limit == 0 {
		return 0, nil
	}

	d.bus.SetTarget(d.cfg.Address, true)
	n := 0
	for i := range limit {
		cond := hal.CondAck
		if i == 0 {
			cond |= hal.CondStart
		}
		if i == limit-1 {
			// Last byte isn't acknowledged.
			cond = cond&^hal.CondAck | hal.CondStop
		}
		d.bus.Receive(cond)
		if err := d.wait(ctx, "read", uint16(i)); err != nil {
			return n, err
		}

		b := d.bus.Data()
		if b == Erased {
			break
		}
		buf[n] = b
		n++
	}
	if n < limit {
		d.bus.Stop()
		if err := d.wait(ctx, "read", uint16(n)); err != nil {
			return n, err
		}
	}

	log.ModFw.DebugZ("read recording").Int("len", n).Blob("data", buf[:n]).End()
	return n, nil
}

// Erase sets the Cells first cells to Erased, in a single page write.
func (d *Driver) Erase(ctx context.Context) error {
	if err := d.begin(ctx, "erase", 0); err != nil {
		return err
	}
	for i := range Cells {
		var cond hal.Cond
		if i == Cells-1 {
			cond = hal.CondStop
		}
		if err := d.transmit(ctx, "erase", uint16(i), Erased, cond); err != nil {
			return err
		}
	}
	log.ModFw.DebugZ("erased").Int("cells", Cells).End()

	d.clock.Sleep(d.cfg.Settle)
	return nil
}
