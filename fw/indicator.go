package fw

import "keytone/hw/hal"

// Indicator shows the current mode to the user.
type Indicator interface {
	SetIndicator(m Mode)
}

// LEDIndicator lights one LED per mode.
type LEDIndicator struct {
	leds [3]hal.Pin
}

// NewLEDIndicator returns an indicator lighting leds[m] in mode m.
func NewLEDIndicator(leds [3]hal.Pin) *LEDIndicator {
	for _, p := range leds {
		p.Configure(hal.PinConfig{Mode: hal.PinOutput})
	}
	return &LEDIndicator{leds: leds}
}

func (ind *LEDIndicator) SetIndicator(m Mode) {
	// Turn off before on, never two LEDs lit.
	for i, p := range ind.leds {
		if Mode(i) != m {
			p.Set(false)
		}
	}
	if int(m) < len(ind.leds) {
		ind.leds[m].Set(true)
	}
}
