package fw

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"keytone/emu/log"
	"keytone/fw/keypad"
	"keytone/fw/storage"
	"keytone/hw/hal"
)

var ErrHalted = errors.New("device halted")

// HaltError is returned once a storage failure has halted the device.
type HaltError struct {
	Err error
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("%v: %v", ErrHalted, e.Err)
}

func (e *HaltError) Is(target error) bool { return target == ErrHalted }
func (e *HaltError) Unwrap() error        { return e.Err }

// Timing holds the durations of the firmware blocking waits.
type Timing struct {
	Debounce time.Duration // after a key release
	Settle   time.Duration // after an EEPROM write
	Scan     time.Duration // between two keypad scans
	Poll     time.Duration // between two samples while waiting for a release
	Note     time.Duration // note length during playback
	Gap      time.Duration // silence between played back notes
}

var DefaultTiming = Timing{
	Debounce: 10 * time.Millisecond,
	Settle:   storage.DefaultSettle,
	Scan:     time.Millisecond,
	Poll:     keypad.DefaultPollInterval,
	Note:     time.Second,
	Gap:      50 * time.Millisecond,
}

// Tone plays notes.
type Tone interface {
	Start(freq uint32) error
	Stop()
}

// Storage persists the recording.
type Storage interface {
	Write(ctx context.Context, addr uint16, b byte) error
	ReadAll(ctx context.Context, buf []byte) (int, error)
	Erase(ctx context.Context) error
}

// Releaser waits for a key to be released.
type Releaser interface {
	WaitRelease(ctx context.Context, k keypad.Key) error
}

// State is a snapshot of the controller state.
type State struct {
	Mode     Mode
	Cursor   int
	Sequence []Note
	Playing  Note // note being played, NoteNone if silent
	Halted   bool
	Err      error
}

// Controller implements the modes. HandleKey must always be called from the
// same goroutine; State may be called from any.
type Controller struct {
	tone  Tone
	store Storage
	ind   Indicator
	keys  Releaser
	clock hal.Clock
	tm    Timing

	mu      sync.Mutex
	mode    Mode
	seq     Sequence
	cursor  int
	playing Note
	halt    *HaltError
}

func NewController(tone Tone, store Storage, ind Indicator, keys Releaser, clock hal.Clock, tm Timing) *Controller {
	c := &Controller{
		tone:  tone,
		store: store,
		ind:   ind,
		keys:  keys,
		clock: clock,
		tm:    tm,
		mode:  Play,
	}
	c.ind.SetIndicator(c.mode)
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Mode:     c.mode,
		Cursor:   c.cursor,
		Sequence: c.seq.Notes(),
		Playing:  c.playing,
	}
	if c.halt != nil {
		st.Halted = true
		st.Err = c.halt
	}
	return st
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Err returns the halt error, nil if the device runs.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.halt == nil {
		return nil
	}
	return c.halt
}

// HandleKey reacts to the press of k, and returns once k has been released
// and debounced. It returns a *HaltError if the device halted.
func (c *Controller) HandleKey(ctx context.Context, k keypad.Key) error {
	if err := c.Err(); err != nil {
		return err
	}

	log.ModFw.DebugZ("key").String("key", k.String()).Stringer("mode", c.Mode()).End()

	var err error
	if m, ok := modeKey(k.Symbol); ok {
		if err = c.switchMode(ctx, m); err == nil {
			err = c.release(ctx, k)
		}
		return c.check(err)
	}

	switch c.Mode() {
	case Playback:
		if k.Symbol == playbackKey {
			err = c.playback(ctx)
		}
		if err == nil {
			err = c.release(ctx, k)
		}
	case Play, Record:
		if n, ok := NoteKey(k.Symbol); ok {
			err = c.playNote(ctx, k, n)
		} else {
			err = c.release(ctx, k)
		}
	}
	return c.check(err)
}

// check halts the device on storage errors.
func (c *Controller) check(err error) error {
	if err == nil || !errors.Is(err, storage.ErrBus) {
		return err
	}

	c.tone.Stop()

	c.mu.Lock()
	c.halt = &HaltError{Err: err}
	c.playing = NoteNone
	halt := c.halt
	c.mu.Unlock()

	log.ModFw.ErrorZ("halted").Error("err", err).End()
	return halt
}

// release waits for k to be released, then debounces.
func (c *Controller) release(ctx context.Context, k keypad.Key) error {
	if err := c.keys.WaitRelease(ctx, k); err != nil {
		return err
	}
	return c.sleep(ctx, c.tm.Debounce)
}

// sleep waits for d, returning early if ctx is done.
func (c *Controller) sleep(ctx context.Context, d time.Duration) error {
	const step = 10 * time.Millisecond
	for d > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := min(d, step)
		c.clock.Sleep(s)
		d -= s
	}
	return ctx.Err()
}

func (c *Controller) switchMode(ctx context.Context, m Mode) error {
	switch m {
	case Record:
		c.mu.Lock()
		c.cursor = 0
		c.mu.Unlock()

		if err := c.store.Erase(ctx); err != nil {
			return err
		}

		c.mu.Lock()
		c.seq.Reset()
		c.mu.Unlock()

	case Playback:
		c.mu.Lock()
		c.seq.Reset()
		c.mu.Unlock()

		var buf [SequenceCap]byte
		n, err := c.store.ReadAll(ctx, buf[:])
		if err != nil {
			return err
		}
		seq, bad := DecodeSequence(buf[:n])
		if bad >= 0 {
			log.ModFw.WarnZ("invalid note code in storage").
				Int("cell", bad).
				Hex8("code", buf[bad]).
				End()
		}

		c.mu.Lock()
		c.seq = seq
		c.mu.Unlock()
	}

	c.mu.Lock()
	old := c.mode
	c.mode = m
	c.mu.Unlock()

	c.ind.SetIndicator(m)
	log.ModFw.InfoZ("mode").Stringer("from", old).Stringer("to", m).End()
	return nil
}

// playNote sounds n as long as k is held, then records it in Record mode.
func (c *Controller) playNote(ctx context.Context, k keypad.Key, n Note) error {
	c.startTone(n)
	err := c.keys.WaitRelease(ctx, k)
	c.stopTone()
	if err != nil {
		return err
	}
	if err := c.sleep(ctx, c.tm.Debounce); err != nil {
		return err
	}

	if c.Mode() == Record {
		return c.record(ctx, n)
	}
	return nil
}

func (c *Controller) record(ctx context.Context, n Note) error {
	c.mu.Lock()
	cursor := c.cursor
	full := cursor >= storage.Cells || c.seq.Len() >= SequenceCap
	c.mu.Unlock()

	if full {
		log.ModFw.WarnZ("recording full, note dropped").
			Int("cursor", cursor).
			Uint8("note", uint8(n)).
			Error("err", ErrSequenceFull).
			End()
		return nil
	}

	if err := c.store.Write(ctx, uint16(cursor), byte(n)); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor++
	return c.seq.Append(n)
}

func (c *Controller) playback(ctx context.Context) error {
	c.mu.Lock()
	notes := c.seq.Notes()
	c.mu.Unlock()

	log.ModFw.InfoZ("playback").Int("notes", len(notes)).End()
	for _, n := range notes {
		c.startTone(n)
		err := c.sleep(ctx, c.tm.Note)
		c.stopTone()
		if err != nil {
			return err
		}
		if err := c.sleep(ctx, c.tm.Gap); err != nil {
			return err
		}
	}
	return nil
}

// startTone starts the tone of n. A tone the generator can't produce is
// logged and the note stays silent.
func (c *Controller) startTone(n Note) {
	if err := c.tone.Start(n.Pitch()); err != nil {
		log.ModFw.WarnZ("can't play note").Uint8("note", uint8(n)).Error("err", err).End()
		return
	}
	c.mu.Lock()
	c.playing = n
	c.mu.Unlock()
}

func (c *Controller) stopTone() {
	c.tone.Stop()
	c.mu.Lock()
	c.playing = NoteNone
	c.mu.Unlock()
}
