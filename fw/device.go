// Package fw is the keypad tone firmware: it scans the keypad and plays,
// records and plays back notes, in a single polling loop.
package fw

import (
	"context"

	"keytone/emu/log"
	"keytone/fw/keypad"
	"keytone/fw/storage"
	"keytone/fw/tone"
	"keytone/hw/hal"
)

// Hardware is what the firmware runs on.
type Hardware struct {
	Rows  [keypad.Rows]hal.Pin
	Cols  [keypad.Cols]hal.Pin
	LEDs  [3]hal.Pin
	Bus   hal.Bus
	PWM   hal.PWM
	Clock hal.Clock
}

type Config struct {
	Timing   Timing
	Layout   keypad.Layout
	RefClock uint32 // PWM counter clock, Hz
	Address  uint8  // EEPROM 7-bit address
}

// DefaultConfig returns the configuration of the original board.
func DefaultConfig() Config {
	return Config{
		Timing:   DefaultTiming,
		Layout:   keypad.DefaultLayout,
		RefClock: tone.DefaultRefClock,
		Address:  storage.DefaultAddress,
	}
}

// Device is the firmware main loop.
type Device struct {
	scanner *keypad.Scanner
	ctrl    *Controller
	clock   hal.Clock
	tm      Timing
}

func NewDevice(hw Hardware, cfg Config) *Device {
	scanner := keypad.New(hw.Rows, hw.Cols, cfg.Layout, hw.Clock)
	scanner.PollInterval = cfg.Timing.Poll

	store := storage.New(hw.Bus, hw.Clock, storage.Config{
		Address: cfg.Address,
		Settle:  cfg.Timing.Settle,
	})
	gen := tone.New(hw.PWM, cfg.RefClock)
	ind := NewLEDIndicator(hw.LEDs)

	return &Device{
		scanner: scanner,
		ctrl:    NewController(gen, store, ind, scanner, hw.Clock, cfg.Timing),
		clock:   hw.Clock,
		tm:      cfg.Timing,
	}
}

func (d *Device) Controller() *Controller { return d.ctrl }

// Step performs one scan of the keypad and handles the pressed key, if any.
// It reports whether a key was handled.
func (d *Device) Step(ctx context.Context) (bool, error) {
	k, ok := d.scanner.Scan()
	if !ok {
		return false, nil
	}
	return true, d.ctrl.HandleKey(ctx, k)
}

// Run runs the main loop until ctx is done or the device halts. It returns
// ctx.Err() or a *HaltError.
func (d *Device) Run(ctx context.Context) error {
	log.ModFw.InfoZ("firmware started").Stringer("mode", d.ctrl.Mode()).End()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		handled, err := d.Step(ctx)
		if err != nil {
			return err
		}
		if !handled {
			d.clock.Sleep(d.tm.Scan)
		}
	}
}
