package emu

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"keytone/emu/log"
	"keytone/fw"
	"keytone/fw/keypad"
	"keytone/hw/eeprom"
	"keytone/hw/hal"
	"keytone/hw/keymatrix"
	"keytone/hw/tm4c"
)

// ErrUnknownKey is returned when pressing a symbol the keypad doesn't have.
var ErrUnknownKey = errors.New("unknown keypad key")

// Frontend is the user side of the simulator.
type Frontend interface {
	// Poll handles pending user events and draws the board. It returns false
	// once the user asked to quit.
	Poll() bool
	Close()
}

// Simulator is the simulated board: the SoC and its peripherals, with the
// firmware running on it.
type Simulator struct {
	SoC    *tm4c.SoC
	EEPROM *eeprom.Device
	Keys   *keymatrix.Matrix
	Device *fw.Device

	clock  hal.Clock
	layout keypad.Layout
	image  string
	out    Frontend
	audio  *audio

	mu     sync.Mutex
	cancel context.CancelFunc
	quit   bool
}

// New powers the board up. It doesn't start the firmware, call Run for that.
func New(cfg Config, clock hal.Clock) (*Simulator, error) {
	hcfg := cfg.Hardware
	rom := eeprom.New(eeprom.Config{Address: hcfg.Address, Size: hcfg.Size}, clock)
	image := hcfg.ImagePath()
	if err := rom.Load(image); err != nil {
		return nil, errors.Wrap(err, "power up failed")
	}

	keys := keymatrix.New(clock)
	soc := tm4c.New(tm4c.Config{SysClock: hcfg.RefClock, I2CBusyPolls: hcfg.BusyPolls}, clock, keys)
	soc.Attach(rom)
	if cfg.TraceOut != nil {
		soc.I2C0.Trace = cfg.TraceOut
	}
	board := tm4c.NewBoard(soc)

	fwcfg := fw.DefaultConfig()
	fwcfg.Timing = cfg.Firmware.Timing()
	fwcfg.RefClock = hcfg.RefClock
	fwcfg.Address = hcfg.Address
	dev := fw.NewDevice(fw.Hardware{
		Rows:  board.Rows,
		Cols:  board.Cols,
		LEDs:  board.LEDs,
		Bus:   board.Bus,
		PWM:   board.PWM,
		Clock: clock,
	}, fwcfg)

	return &Simulator{
		SoC:    soc,
		EEPROM: rom,
		Keys:   keys,
		Device: dev,
		clock:  clock,
		layout: fwcfg.Layout,
		image:  image,
	}, nil
}

// Launch powers the board up on the wall clock, shows the window and opens
// the audio stream, unless headless. It must be called from within sdl.Main.
func Launch(cfg Config, headless bool) (*Simulator, error) {
	s, err := New(cfg, hal.NewSystemClock())
	if err != nil {
		return nil, err
	}

	if headless {
		log.ModEmu.InfoZ("Running headless").End()
		return s, nil
	}

	if cfg.Audio.DisableAudio {
		log.ModEmu.WarnZ("Audio disabled").End()
	} else {
		sink, err := openSDLAudio(cfg.Audio)
		if err != nil {
			return nil, err
		}
		s.audio = newAudio(cfg.Audio, sink)
		s.SoC.PWM0.OnChange(s.audio.setOutput)
		log.ModEmu.InfoZ("Audio enabled").Int("rate", cfg.Audio.SampleRate).End()
	}

	out, err := newWindow(s, cfg.Input)
	if err != nil {
		if s.audio != nil {
			s.audio.close()
		}
		return nil, err
	}
	s.out = out
	return s, nil
}

// Run runs the firmware until Stop is called, ctx is done, the window is
// closed or, when headless, the firmware halts. The EEPROM image is saved
// before returning. A firmware halt is returned as a *fw.HaltError.
func (s *Simulator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	quit := s.quit
	s.mu.Unlock()
	if quit {
		cancel()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.runFirmware(ctx) })
	if s.audio != nil {
		g.Go(func() error { return s.audio.run(ctx) })
	}
	if s.out != nil {
		s.frontendLoop(ctx, cancel)
	}

	err := g.Wait()
	log.ModEmu.InfoZ("Simulation exited").End()
	s.save()

	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func (s *Simulator) runFirmware(ctx context.Context) error {
	err := s.Device.Run(ctx)
	if !errors.Is(err, fw.ErrHalted) {
		return err
	}

	log.ModEmu.ErrorZ("Firmware halted").Error("err", err).End()
	if s.out != nil {
		// Leave the window open on the halted board.
		<-ctx.Done()
	}
	return err
}

func (s *Simulator) frontendLoop(ctx context.Context, cancel context.CancelFunc) {
	const framePeriod = time.Second / 60

	tick := time.NewTicker(framePeriod)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.out.Close()
			return
		case <-tick.C:
			if !s.out.Poll() {
				cancel()
			}
		}
	}
}

func (s *Simulator) save() {
	if s.audio != nil {
		s.audio.close()
	}
	if err := s.EEPROM.Save(s.image); err != nil {
		log.ModEmu.WarnZ("Failed to save eeprom image").String("path", s.image).Error("err", err).End()
		return
	}
	log.ModEmu.InfoZ("Saved eeprom image").String("path", s.image).End()
}

// Stop stops Run. It can be called from any goroutine, before or during Run.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quit = true
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Simulator) find(sym byte) (row, col int, err error) {
	row, col, ok := s.layout.Find(sym)
	if !ok {
		return 0, 0, errors.Wrapf(ErrUnknownKey, "%q", sym)
	}
	return row, col, nil
}

// Press presses the keypad key labelled sym.
func (s *Simulator) Press(sym byte) error {
	row, col, err := s.find(sym)
	if err != nil {
		return err
	}
	log.ModInput.DebugZ("press").String("key", string(sym)).End()
	s.Keys.Press(row, col)
	return nil
}

// Release releases the keypad key labelled sym.
func (s *Simulator) Release(sym byte) error {
	row, col, err := s.find(sym)
	if err != nil {
		return err
	}
	log.ModInput.DebugZ("release").String("key", string(sym)).End()
	s.Keys.Release(row, col)
	return nil
}

// Tap presses sym for hold, then waits as long again for the firmware to
// see the release.
func (s *Simulator) Tap(sym byte, hold time.Duration) error {
	if err := s.Press(sym); err != nil {
		return err
	}
	s.clock.Sleep(hold)
	if err := s.Release(sym); err != nil {
		return err
	}
	s.clock.Sleep(hold)
	return nil
}

// State returns a snapshot of the board.
func (s *Simulator) State() State {
	st := s.Device.Controller().State()
	state := State{
		Mode:     st.Mode,
		Cursor:   st.Cursor,
		Sequence: st.Sequence,
		Playing:  st.Playing,
		Halted:   st.Halted,
		LEDs:     s.SoC.LEDs(),
		Buzzer:   s.SoC.Buzzer(),
		Uptime:   s.clock.Now(),
	}
	if st.Err != nil {
		state.Err = st.Err.Error()
	}
	return state
}
