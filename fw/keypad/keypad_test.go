package keypad

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"keytone/hw/hal"
	"keytone/hw/hal/haltest"
	"keytone/hw/keymatrix"
)

func newTestScanner(t *testing.T) (*Scanner, *keymatrix.Matrix, *haltest.Clock) {
	t.Helper()

	clock := &haltest.Clock{}
	m := keymatrix.New(clock)
	var rows [Rows]hal.Pin
	var cols [Cols]hal.Pin
	for i := range rows {
		rows[i] = m.RowPin(i)
	}
	for i := range cols {
		cols[i] = m.ColPin(i)
	}
	return New(rows, cols, DefaultLayout, clock), m, clock
}

func TestScanEachKey(t *testing.T) {
	s, m, _ := newTestScanner(t)

	for r := range Rows {
		for c := range Cols {
			m.Press(r, c)
			k, ok := s.Scan()
			m.Release(r, c)

			want := Key{Row: r, Col: c, Symbol: DefaultLayout[r][c]}
			if !ok {
				t.Errorf("key %c not detected", want.Symbol)
				continue
			}
			if diff := cmp.Diff(want, k); diff != "" {
				t.Errorf("Scan (-want +got):\n%s", diff)
			}
		}
	}
}

func TestScanNothing(t *testing.T) {
	s, _, _ := newTestScanner(t)

	if k, ok := s.Scan(); ok {
		t.Errorf("Scan reported %v with no key pressed", k)
	}
}

func TestScanRowMajor(t *testing.T) {
	s, m, _ := newTestScanner(t)

	m.Press(2, 0) // '7'
	m.Press(1, 3) // 'B'
	m.Press(1, 1) // '5'
	k, ok := s.Scan()
	if !ok || k.Symbol != '5' {
		t.Errorf("Scan = %v, %t; want 5", k, ok)
	}
}

func TestScanDrivesOneRowAtATime(t *testing.T) {
	var rows [Rows]hal.Pin
	var cols [Cols]hal.Pin
	pins := make([]*haltest.Pin, Rows)
	for i := range rows {
		pins[i] = &haltest.Pin{}
		rows[i] = pins[i]
	}
	for i := range cols {
		cols[i] = &haltest.Pin{}
	}
	s := New(rows, cols, DefaultLayout, &haltest.Clock{})
	for _, p := range pins {
		p.Sets = nil
	}

	s.Scan()

	// Row i is high during step i only.
	for i, p := range pins {
		want := make([]bool, Rows)
		want[i] = true
		if diff := cmp.Diff(want, p.Sets); diff != "" {
			t.Errorf("row %d levels (-want +got):\n%s", i, diff)
		}
	}
	if cols[0].(*haltest.Pin).Config.Mode != hal.PinInputPulldown {
		t.Errorf("columns not configured as pulled-down inputs")
	}
}

func TestWaitRelease(t *testing.T) {
	s, m, clock := newTestScanner(t)

	m.Schedule(keymatrix.Tap(0, 30*time.Millisecond, 0, 1)...)
	k, ok := s.Scan()
	if !ok || k.Symbol != '2' {
		t.Fatalf("Scan = %v, %t; want 2", k, ok)
	}
	if err := s.WaitRelease(context.Background(), k); err != nil {
		t.Fatal(err)
	}
	if now := clock.Now(); now != 30*time.Millisecond {
		t.Errorf("released at %v, want 30ms", now)
	}
	if s.Held(k) {
		t.Errorf("key still held")
	}
}

func TestWaitReleaseCancel(t *testing.T) {
	s, m, _ := newTestScanner(t)
	m.Press(3, 3)

	k, _ := s.Scan()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.WaitRelease(ctx, k); err != context.Canceled {
		t.Errorf("WaitRelease = %v, want context.Canceled", err)
	}
}

func TestLayoutFind(t *testing.T) {
	l := DefaultLayout
	r, c, ok := l.Find('C')
	if !ok || r != 2 || c != 3 {
		t.Errorf("Find('C') = %d, %d, %t", r, c, ok)
	}
	if _, _, ok := l.Find('E'); ok {
		t.Errorf("Find('E') found a key")
	}
}
