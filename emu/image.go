package emu

import (
	"context"

	"github.com/go-faster/errors"

	"keytone/fw"
	"keytone/fw/storage"
	"keytone/hw/eeprom"
	"keytone/hw/hal"
	"keytone/hw/tm4c"
)

// Recording is the content of the recording area of an EEPROM image, as the
// firmware sees it.
type Recording struct {
	Cells []byte // raw recording area
	Notes []fw.Note
	Bad   int // index of the invalid code that ended the recording, -1 if none
}

// bench is an EEPROM image on the I2C bus of an idle SoC, with the firmware
// storage driver on top. It runs on a virtual clock.
type bench struct {
	rom   *eeprom.Device
	store *storage.Driver
	path  string
}

func openBench(hcfg HardwareConfig) (*bench, error) {
	clock := &hal.VirtualClock{}
	rom := eeprom.New(eeprom.Config{Address: hcfg.Address, Size: hcfg.Size}, clock)
	path := hcfg.ImagePath()
	if err := rom.Load(path); err != nil {
		return nil, err
	}

	soc := tm4c.New(tm4c.Config{SysClock: hcfg.RefClock, I2CBusyPolls: hcfg.BusyPolls}, clock, nil)
	soc.Attach(rom)
	board := tm4c.NewBoard(soc)

	return &bench{
		rom:   rom,
		store: storage.New(board.Bus, clock, storage.Config{Address: hcfg.Address}),
		path:  path,
	}, nil
}

// ReadRecording reads the recording stored in the EEPROM image.
func ReadRecording(hcfg HardwareConfig) (*Recording, error) {
	b, err := openBench(hcfg)
	if err != nil {
		return nil, err
	}

	var buf [storage.Cells]byte
	n, err := b.store.ReadAll(context.Background(), buf[:])
	if err != nil {
		return nil, errors.Wrap(err, "read recording")
	}
	seq, bad := fw.DecodeSequence(buf[:n])
	return &Recording{
		Cells: b.rom.Cells(storage.Cells),
		Notes: seq.Notes(),
		Bad:   bad,
	}, nil
}

// EraseImage erases the recording stored in the EEPROM image, the way entering
// record mode does.
func EraseImage(hcfg HardwareConfig) error {
	b, err := openBench(hcfg)
	if err != nil {
		return err
	}
	if err := b.store.Erase(context.Background()); err != nil {
		return errors.Wrap(err, "erase recording")
	}
	return b.rom.Save(b.path)
}
