package tone

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/google/go-cmp/cmp"

	"keytone/hw/hal/haltest"
)

func TestSettings(t *testing.T) {
	tests := []struct {
		freq    uint32
		period  uint32
		compare uint32
	}{
		{262, 61068, 54962},
		{294, 54421, 48979},
		{330, 48484, 43636},
		{349, 45845, 41261},
		{392, 40816, 36735},
		{440, 36363, 32727},
		{494, 32388, 29150},
		{523, 30592, 27533},
	}

	g := New(&haltest.PWM{}, 0)
	for _, tt := range tests {
		period, compare, err := g.Settings(tt.freq)
		if err != nil {
			t.Errorf("%d Hz: %v", tt.freq, err)
			continue
		}
		if period != tt.period || compare != tt.compare {
			t.Errorf("%d Hz: got %d/%d, want %d/%d", tt.freq, period, compare, tt.period, tt.compare)
		}
	}
}

func TestInvalidFrequency(t *testing.T) {
	pwm := &haltest.PWM{}
	g := New(pwm, 0)

	for _, freq := range []uint32{0, 100, 20_000_000} {
		if err := g.Start(freq); !errors.Is(err, ErrInvalidFrequency) {
			t.Errorf("Start(%d) = %v, want ErrInvalidFrequency", freq, err)
		}
	}
	if len(pwm.Enables) != 0 {
		t.Errorf("output enabled by an invalid tone")
	}
}

func TestStartStop(t *testing.T) {
	pwm := &haltest.PWM{}
	g := New(pwm, 0)

	if err := g.Start(440); err != nil {
		t.Fatal(err)
	}
	load, cmpv, on := pwm.State()
	if load != 36363 || cmpv != 32727 || !on {
		t.Errorf("after Start(440): load=%d cmp=%d on=%t", load, cmpv, on)
	}

	g.Stop()
	load, cmpv, on = pwm.State()
	if on {
		t.Errorf("output still enabled after Stop")
	}
	if load != 36363 || cmpv != 32727 {
		t.Errorf("Stop changed period/compare: %d/%d", load, cmpv)
	}
	if diff := cmp.Diff([]bool{true, false}, pwm.Enables); diff != "" {
		t.Errorf("enables (-want +got):\n%s", diff)
	}
}
