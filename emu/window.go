package emu

import (
	"github.com/go-faster/errors"
	"github.com/veandco/go-sdl2/sdl"

	"keytone/emu/log"
	"keytone/fw"
	"keytone/fw/keypad"
)

const (
	keySize   = 64
	keyMargin = 8
	ledSize   = 24
	padX      = 24
	padY      = 72

	windowWidth  = padX*2 + keypad.Cols*keySize + (keypad.Cols-1)*keyMargin
	windowHeight = padY + padX + keypad.Rows*keySize + (keypad.Rows-1)*keyMargin
)

// Mode LED colors, in mode order.
var ledColors = [3]sdl.Color{
	{R: 0x30, G: 0xD0, B: 0x40, A: 0xFF}, // play
	{R: 0xE0, G: 0x30, B: 0x30, A: 0xFF}, // record
	{R: 0x30, G: 0x60, B: 0xF0, A: 0xFF}, // playback
}

type keyPos struct{ row, col int }

// window shows the keypad, the mode LEDs and the buzzer, and turns host key
// presses into keypad presses.
type window struct {
	sim      *Simulator
	win      *sdl.Window
	renderer *sdl.Renderer
	keys     map[sdl.Scancode]keyPos
}

func newWindow(sim *Simulator, icfg InputConfig) (*window, error) {
	w := &window{sim: sim, keys: make(map[sdl.Scancode]keyPos)}

	var err error
	sdl.Do(func() {
		if err = sdl.InitSubSystem(sdl.INIT_VIDEO); err != nil {
			err = errors.Wrap(err, "failed to initialize SDL")
			return
		}
		w.win, err = sdl.CreateWindow("Keytone",
			sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
			windowWidth, windowHeight, sdl.WINDOW_SHOWN)
		if err != nil {
			err = errors.Wrap(err, "failed to create window")
			return
		}
		w.renderer, err = sdl.CreateRenderer(w.win, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
		if err != nil {
			w.win.Destroy()
			err = errors.Wrap(err, "failed to create renderer")
			return
		}

		for name, sym := range icfg.Keys {
			code := sdl.GetScancodeFromName(name)
			if code == sdl.SCANCODE_UNKNOWN {
				log.ModInput.WarnZ("Unknown key name, ignored").String("key", name).End()
				continue
			}
			r, c, ok := sim.layout.Find(sym[0])
			if !ok {
				continue
			}
			w.keys[code] = keyPos{row: r, col: c}
		}
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (w *window) Poll() bool {
	running := true
	sdl.Do(func() {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case sdl.QuitEvent:
				running = false
			case sdl.KeyboardEvent:
				if e.Keysym.Scancode == sdl.SCANCODE_ESCAPE {
					running = false
					continue
				}
				if e.Repeat != 0 {
					continue
				}
				w.handleKey(e.Keysym.Scancode, e.State == sdl.PRESSED)
			}
		}
		w.draw()
	})
	return running
}

func (w *window) handleKey(code sdl.Scancode, down bool) {
	pos, ok := w.keys[code]
	if !ok {
		return
	}
	if down {
		w.sim.Keys.Press(pos.row, pos.col)
	} else {
		w.sim.Keys.Release(pos.row, pos.col)
	}
	log.ModInput.DebugZ("host key").
		String("name", sdl.GetScancodeName(code)).
		Int("row", pos.row).
		Int("col", pos.col).
		Bool("down", down).
		End()
}

func (w *window) fill(rect sdl.Rect, col sdl.Color) {
	w.renderer.SetDrawColor(col.R, col.G, col.B, col.A)
	w.renderer.FillRect(&rect)
}

func (w *window) draw() {
	w.renderer.SetDrawColor(0x20, 0x20, 0x20, 0xFF)
	w.renderer.Clear()

	// Mode LEDs, lit from the port D lines.
	leds := w.sim.SoC.LEDs()
	for i := range ledColors {
		col := sdl.Color{R: 0x40, G: 0x40, B: 0x40, A: 0xFF}
		if leds&(1<<(i+1)) != 0 {
			col = ledColors[i]
		}
		x := int32(padX + i*(ledSize+keyMargin*2))
		w.fill(sdl.Rect{X: x, Y: padX, W: ledSize, H: ledSize}, col)
	}

	// Buzzer.
	buzz := sdl.Color{R: 0x40, G: 0x40, B: 0x40, A: 0xFF}
	if w.sim.SoC.Buzzer().On {
		buzz = sdl.Color{R: 0xF0, G: 0xC0, B: 0x20, A: 0xFF}
	}
	w.fill(sdl.Rect{X: windowWidth - padX - ledSize, Y: padX, W: ledSize, H: ledSize}, buzz)

	// Keypad.
	halted := w.sim.Device.Controller().Err() != nil
	for r := range keypad.Rows {
		for c := range keypad.Cols {
			col := sdl.Color{R: 0xC8, G: 0xC8, B: 0xC8, A: 0xFF}
			switch {
			case w.sim.Keys.Pressed(r, c):
				col = sdl.Color{R: 0x70, G: 0x70, B: 0x70, A: 0xFF}
			case halted:
				col = sdl.Color{R: 0x80, G: 0x50, B: 0x50, A: 0xFF}
			case isNoteKey(w.sim.layout[r][c]):
				col = sdl.Color{R: 0xF0, G: 0xF0, B: 0xF0, A: 0xFF}
			}
			x := int32(padX + c*(keySize+keyMargin))
			y := int32(padY + r*(keySize+keyMargin))
			w.fill(sdl.Rect{X: x, Y: y, W: keySize, H: keySize}, col)
		}
	}

	w.renderer.Present()
}

func isNoteKey(sym byte) bool {
	_, ok := fw.NoteKey(sym)
	return ok
}

func (w *window) Close() {
	sdl.Do(func() {
		w.renderer.Destroy()
		w.win.Destroy()
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
	})
}
