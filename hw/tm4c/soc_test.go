package tm4c

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"keytone/hw/eeprom"
	"keytone/hw/hal"
	"keytone/hw/keymatrix"
)

func newTestBoard(t *testing.T) (*Board, *keymatrix.Matrix, *hal.VirtualClock) {
	t.Helper()

	clock := &hal.VirtualClock{}
	keys := keymatrix.New(clock)
	soc := New(Config{I2CBusyPolls: 2}, clock, keys)
	return NewBoard(soc), keys, clock
}

func TestBringupState(t *testing.T) {
	b, _, _ := newTestBoard(t)

	if out := b.SoC().Buzzer(); out.On {
		t.Errorf("buzzer on after bring-up: %+v", out)
	}
	if leds := b.SoC().LEDs(); leds != 0 {
		t.Errorf("leds = %08b after bring-up, want 0", leds)
	}
	if !b.SoC().buzzerRouted() {
		t.Errorf("PB6 not routed to M0PWM0")
	}
	if got := b.SoC().I2C0.MTPR.Value; got != 7 {
		t.Errorf("MTPR = %d, want 7", got)
	}
}

func TestKeypadLines(t *testing.T) {
	b, keys, _ := newTestBoard(t)
	keys.Press(1, 2)

	cols := func() []bool {
		var got []bool
		for _, c := range b.Cols {
			got = append(got, c.Get())
		}
		return got
	}

	b.Rows[0].Set(true)
	if diff := cmp.Diff([]bool{false, false, false, false}, cols()); diff != "" {
		t.Errorf("row 0 driven (-want +got):\n%s", diff)
	}
	b.Rows[0].Set(false)

	b.Rows[1].Set(true)
	if diff := cmp.Diff([]bool{false, false, true, false}, cols()); diff != "" {
		t.Errorf("row 1 driven (-want +got):\n%s", diff)
	}
	if !b.Rows[1].Get() {
		t.Errorf("row 1 output reads low")
	}

	keys.Release(1, 2)
	if diff := cmp.Diff([]bool{false, false, false, false}, cols()); diff != "" {
		t.Errorf("after release (-want +got):\n%s", diff)
	}
}

func TestUnclockedPort(t *testing.T) {
	clock := &hal.VirtualClock{}
	keys := keymatrix.New(clock)
	soc := New(Config{}, clock, keys)
	keys.Press(0, 0)

	soc.Bus.Write32(GPIOEBase+gpioDEN, 0x0F)
	soc.Bus.Write32(GPIOEBase+gpioDIR, 0x0F)
	soc.Bus.Write32(GPIOEBase+gpioDATA, 0x01)
	soc.Bus.Write32(GPIOCBase+gpioDEN, 0xF0)
	if got := soc.Bus.Read32(GPIOCBase + gpioDATA); got != 0 {
		t.Errorf("unclocked port C reads %02x", got)
	}
}

func TestLEDs(t *testing.T) {
	b, _, _ := newTestBoard(t)

	b.LEDs[1].Set(true)
	if got := b.SoC().LEDs(); got != 1<<2 {
		t.Errorf("leds = %08b, want PD2", got)
	}
	b.LEDs[1].Set(false)
	b.LEDs[2].Set(true)
	if got := b.SoC().LEDs(); got != 1<<3 {
		t.Errorf("leds = %08b, want PD3", got)
	}
}

func waitBus(t *testing.T, bus hal.Bus) hal.Status {
	t.Helper()

	for range 100 {
		if s := bus.Status(); s&hal.StatusBusy == 0 {
			return s
		}
	}
	t.Fatal("i2c still busy")
	return 0
}

func TestI2CTransactions(t *testing.T) {
	b, _, clock := newTestBoard(t)
	rom := eeprom.New(eeprom.Config{}, clock)
	b.SoC().Attach(rom)

	bus := b.Bus
	bus.SetTarget(eeprom.DefaultAddress, false)
	for i, v := range []byte{0x00, 0x04, 3, 5} {
		cond := hal.Cond(0)
		switch i {
		case 0:
			cond = hal.CondStart
		case 3:
			cond = hal.CondStop
		}
		bus.Transmit(v, cond)
		if s := waitBus(t, bus); s&hal.StatusError != 0 {
			t.Fatalf("byte %d: status %v", i, s)
		}
	}
	if diff := cmp.Diff([]byte{0xFF, 0xFF, 0xFF, 0xFF, 3, 5, 0xFF}, rom.Cells(7)); diff != "" {
		t.Fatalf("eeprom content (-want +got):\n%s", diff)
	}

	// Busy in write cycle: address NACK.
	bus.SetTarget(eeprom.DefaultAddress, false)
	bus.Transmit(0, hal.CondStart)
	s := waitBus(t, bus)
	if s&hal.StatusError == 0 || s&hal.StatusAddrNack == 0 {
		t.Fatalf("status = %v, want error|addr-nack", s)
	}
	bus.Stop()
	if s := waitBus(t, bus); s&hal.StatusIdle == 0 {
		t.Errorf("status = %v after stop, want idle", s)
	}

	clock.Advance(eeprom.DefaultWriteCycle)

	bus.SetTarget(eeprom.DefaultAddress, false)
	bus.Transmit(0x00, hal.CondStart)
	waitBus(t, bus)
	bus.Transmit(0x04, hal.CondStop)
	waitBus(t, bus)

	bus.SetTarget(eeprom.DefaultAddress, true)
	bus.Receive(hal.CondStart | hal.CondAck)
	waitBus(t, bus)
	first := bus.Data()
	bus.Receive(hal.CondStop)
	waitBus(t, bus)
	second := bus.Data()

	if first != 3 || second != 5 {
		t.Errorf("read %d %d, want 3 5", first, second)
	}
}

func TestI2CDisabled(t *testing.T) {
	clock := &hal.VirtualClock{}
	soc := New(Config{}, clock, nil)
	rom := eeprom.New(eeprom.Config{}, clock)
	soc.Attach(rom)

	// Clock gate open but master function not enabled.
	soc.Bus.Write32(SysCtlBase+sysRCGCI2C, 1)
	soc.Bus.Write32(I2C0Base+i2cMSA, eeprom.DefaultAddress<<1)
	soc.Bus.Write32(I2C0Base+i2cMCS, mcsSTART|mcsRUN)
	if soc.I2C0.Master().Held() {
		t.Errorf("disabled master started a transaction")
	}
}

func TestI2CTrace(t *testing.T) {
	b, _, clock := newTestBoard(t)
	b.SoC().Attach(eeprom.New(eeprom.Config{}, clock))

	var buf bytes.Buffer
	b.SoC().I2C0.Trace = &buf

	b.Bus.SetTarget(eeprom.DefaultAddress, false)
	b.Bus.Transmit(0x12, hal.CondStart)
	b.Bus.Stop()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("trace:\n%s", buf.String())
	}
	if !strings.Contains(lines[0], "START|RUN") || !strings.Contains(lines[0], "SA=50 W MDR=12") {
		t.Errorf("trace line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "STOP") {
		t.Errorf("trace line = %q", lines[1])
	}
}

func TestBuzzer(t *testing.T) {
	b, _, _ := newTestBoard(t)

	var changes []PWMOutput
	b.SoC().PWM0.OnChange(func(out PWMOutput) { changes = append(changes, out) })

	b.PWM.SetPeriod(36363)
	b.PWM.SetCompare(32727)
	b.PWM.Enable(true)

	out := b.SoC().Buzzer()
	if !out.On {
		t.Fatalf("buzzer off: %+v", out)
	}
	if want := 16e6 / 36364; math.Abs(out.Freq-want) > 1e-6 {
		t.Errorf("freq = %f, want %f", out.Freq, want)
	}
	if want := 3636.0 / 36364; math.Abs(out.Duty-want) > 1e-9 {
		t.Errorf("duty = %f, want %f", out.Duty, want)
	}

	b.PWM.Enable(false)
	if b.SoC().Buzzer().On {
		t.Errorf("buzzer still on after disable")
	}
	if n := len(changes); n != 4 || changes[n-1].On || !changes[n-2].On {
		t.Errorf("changes = %+v", changes)
	}
}

func TestHighTime(t *testing.T) {
	tests := []struct {
		name           string
		gen, load, cmp uint32
		want           uint32
	}{
		{"high on load, low on cmp", 0x8C, 100, 90, 10},
		{"low on load, high on cmp", 0xC8, 100, 90, 91},
		{"cmp above load", 0x8C, 100, 200, 101},
		{"no actions", 0, 100, 50, 0},
		{"invert on load and cmp", 0x44, 100, 50, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := highTime(tt.gen, tt.load, tt.cmp); got != tt.want {
				t.Errorf("highTime(%#x, %d, %d) = %d, want %d", tt.gen, tt.load, tt.cmp, got, tt.want)
			}
		})
	}
}
