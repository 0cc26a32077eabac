package rpc

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"keytone/emu"
	"keytone/fw"
)

type fakeSim struct {
	mu      sync.Mutex
	calls   []string
	stopped bool
}

func (f *fakeSim) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeSim) Press(sym byte) error {
	if sym == '?' {
		return fmt.Errorf("unknown key %q", sym)
	}
	f.record("press %c", sym)
	return nil
}

func (f *fakeSim) Release(sym byte) error {
	f.record("release %c", sym)
	return nil
}

func (f *fakeSim) Tap(sym byte, hold time.Duration) error {
	f.record("tap %c %v", sym, hold)
	return nil
}

func (f *fakeSim) State() emu.State {
	return emu.State{
		Mode:     fw.Record,
		Cursor:   2,
		Sequence: []fw.Note{3, 4},
		LEDs:     1 << 2,
	}
}

func (f *fakeSim) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func TestClientServer(t *testing.T) {
	sim := &fakeSim{}
	port := UnusedPort()
	srv, err := NewServer(port, sim)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	c, err := NewClient(port)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Press('5'); err != nil {
		t.Fatal(err)
	}
	if err := c.Release('5'); err != nil {
		t.Fatal(err)
	}
	if err := c.Tap('B', 30*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := c.Press('?'); err == nil {
		t.Errorf("Press('?') succeeded, want error")
	}

	want := []string{"press 5", "release 5", "tap B 30ms"}
	if diff := cmp.Diff(want, sim.calls); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}

	st, err := c.State()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(sim.State(), st); diff != "" {
		t.Errorf("state (-want +got):\n%s", diff)
	}

	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if !sim.stopped {
		t.Errorf("simulator not stopped")
	}
}

func TestTwoServers(t *testing.T) {
	// Each server has its own handler, several can run in a process.
	for range 2 {
		srv, err := NewServer(UnusedPort(), &fakeSim{})
		if err != nil {
			t.Fatal(err)
		}
		srv.Close()
	}
}
