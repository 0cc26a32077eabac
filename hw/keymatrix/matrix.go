// Package keymatrix models a 4x4 push-button matrix: rows are driven by the
// controller, columns are pulled down and read high when a pressed button
// connects them to a driven row.
package keymatrix

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"keytone/emu/log"
	"keytone/hw/hal"
)

const (
	Rows = 4
	Cols = 4
)

// Event is a scripted button state change, applied once the clock reaches At.
type Event struct {
	At   time.Duration
	Row  int
	Col  int
	Down bool
}

// Tap returns the events of a press of the button at (row, col) at time at,
// held for hold.
func Tap(at, hold time.Duration, row, col int) []Event {
	return []Event{
		{At: at, Row: row, Col: col, Down: true},
		{At: at + hold, Row: row, Col: col, Down: false},
	}
}

// Matrix is safe for concurrent use: the host presses buttons while the
// firmware scans.
type Matrix struct {
	mu      sync.Mutex
	clock   hal.Clock
	pressed [Rows][Cols]bool
	script  []Event
	driven  uint8 // row mask driven through RowPin
}

func New(clock hal.Clock) *Matrix {
	return &Matrix{clock: clock}
}

func (m *Matrix) set(row, col int, down bool) {
	if row < 0 || row >= Rows || col < 0 || col >= Cols {
		log.ModInput.WarnZ("button out of matrix").Int("row", row).Int("col", col).End()
		return
	}
	m.pressed[row][col] = down
}

func (m *Matrix) Press(row, col int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(row, col, true)
}

func (m *Matrix) Release(row, col int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(row, col, false)
}

// ReleaseAll releases every button and drops the pending script.
func (m *Matrix) ReleaseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pressed = [Rows][Cols]bool{}
	m.script = nil
}

func (m *Matrix) Pressed(row, col int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.update()
	return m.pressed[row][col]
}

// Schedule adds events to the script.
func (m *Matrix) Schedule(events ...Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, events...)
	slices.SortStableFunc(m.script, func(a, b Event) int {
		return cmp.Compare(a.At, b.At)
	})
}

// Pending returns the number of scripted events not applied yet.
func (m *Matrix) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.update()
	return len(m.script)
}

// End returns the time of the last scripted event.
func (m *Matrix) End() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.script) == 0 {
		return 0
	}
	return m.script[len(m.script)-1].At
}

func (m *Matrix) update() {
	if m.clock == nil {
		return
	}
	now := m.clock.Now()
	n := 0
	for _, ev := range m.script {
		if ev.At > now {
			break
		}
		m.set(ev.Row, ev.Col, ev.Down)
		log.ModInput.DebugZ("scripted button").
			Int("row", ev.Row).
			Int("col", ev.Col).
			Bool("down", ev.Down).
			Duration("at", ev.At).
			End()
		n++
	}
	m.script = m.script[n:]
}

// Columns returns the column lines state (bit j set when column j reads
// high) while the rows of the rows mask are driven high.
func (m *Matrix) Columns(rows uint8) uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.update()

	var cols uint8
	for r := range Rows {
		if rows&(1<<r) == 0 {
			continue
		}
		for c := range Cols {
			if m.pressed[r][c] {
				cols |= 1 << c
			}
		}
	}
	return cols
}

// RowPin returns a pin driving row i.
func (m *Matrix) RowPin(i int) hal.Pin { return &rowPin{m: m, row: i} }

// ColPin returns a pin sensing column j.
func (m *Matrix) ColPin(j int) hal.Pin { return &colPin{m: m, col: j} }

type rowPin struct {
	m   *Matrix
	row int
}

func (p *rowPin) Configure(hal.PinConfig) {}

func (p *rowPin) Set(high bool) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	if high {
		p.m.driven |= 1 << p.row
	} else {
		p.m.driven &^= 1 << p.row
	}
}

func (p *rowPin) Get() bool {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	return p.m.driven&(1<<p.row) != 0
}

type colPin struct {
	m   *Matrix
	col int
}

func (p *colPin) Configure(hal.PinConfig) {}
func (p *colPin) Set(bool)                {}

func (p *colPin) Get() bool {
	p.m.mu.Lock()
	driven := p.m.driven
	p.m.mu.Unlock()
	return p.m.Columns(driven)&(1<<p.col) != 0
}
