// Package keypad scans a 4x4 push-button matrix: rows are outputs driven
// high one at a time, columns are pulled-down inputs.
package keypad

import (
	"context"
	"time"

	"keytone/emu/log"
	"keytone/hw/hal"
)

const (
	Rows = 4
	Cols = 4

	DefaultPollInterval = time.Millisecond
)

// Layout maps matrix positions to key symbols.
type Layout [Rows][Cols]byte

// DefaultLayout is the layout printed on the keypad.
var DefaultLayout = Layout{
	{'1', '2', '3', 'A'},
	{'4', '5', '6', 'B'},
	{'7', '8', '9', 'C'},
	{'*', '0', '#', 'D'},
}

// Find returns the position of the key labelled sym.
func (l *Layout) Find(sym byte) (row, col int, ok bool) {
	for r := range Rows {
		for c := range Cols {
			if l[r][c] == sym {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}

// Key is a pressed key.
type Key struct {
	Row, Col int
	Symbol   byte
}

func (k Key) String() string { return string(k.Symbol) }

// Scanner scans the matrix. It is not safe for concurrent use.
type Scanner struct {
	rows   [Rows]hal.Pin
	cols   [Cols]hal.Pin
	layout Layout
	clock  hal.Clock

	// PollInterval is the time between two samples of a column while waiting
	// for a key release.
	PollInterval time.Duration
}

// New returns a scanner over the given lines and configures them.
func New(rows [Rows]hal.Pin, cols [Cols]hal.Pin, layout Layout, clock hal.Clock) *Scanner {
	s := &Scanner{
		rows:         rows,
		cols:         cols,
		layout:       layout,
		clock:        clock,
		PollInterval: DefaultPollInterval,
	}
	for _, p := range s.rows {
		p.Configure(hal.PinConfig{Mode: hal.PinOutput})
		p.Set(false)
	}
	for _, p := range s.cols {
		p.Configure(hal.PinConfig{Mode: hal.PinInputPulldown})
	}
	return s
}

// Layout returns the scanner key layout.
func (s *Scanner) Layout() Layout { return s.layout }

// drive drives row r high and all the others low.
func (s *Scanner) drive(r int) {
	for i, p := range s.rows {
		p.Set(i == r)
	}
}

// Scan drives each row in turn and samples all columns. It returns the first
// pressed key in row-major order, if any. All rows are scanned, every time.
func (s *Scanner) Scan() (Key, bool) {
	var (
		key   Key
		found bool
	)
	for r := range Rows {
		s.drive(r)
		for c, p := range s.cols {
			if !p.Get() || found {
				continue
			}
			key = Key{Row: r, Col: c, Symbol: s.layout[r][c]}
			found = true
		}
	}

	if found {
		log.ModInput.DebugZ("key down").
			Int("row", key.Row).
			Int("col", key.Col).
			String("key", key.String()).
			End()
	}
	return key, found
}

// Held reports whether k is still pressed.
func (s *Scanner) Held(k Key) bool {
	s.drive(k.Row)
	return s.cols[k.Col].Get()
}

// WaitRelease blocks until k is released or ctx is done.
func (s *Scanner) WaitRelease(ctx context.Context, k Key) error {
	for s.Held(k) {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.clock.Sleep(s.PollInterval)
	}
	log.ModInput.DebugZ("key up").String("key", k.String()).End()
	return nil
}
