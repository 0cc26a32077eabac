// Package hal defines the hardware capabilities the firmware depends on:
// digital pins, a two-wire bus master, a periodic output generator and a
// clock. Implementations live in hw/tm4c (register-level simulation) and
// hw/hal/haltest (recording test doubles).
package hal

import (
	"strings"
	"time"
)

type PinMode uint8

const (
	PinOutput PinMode = iota
	PinInput
	PinInputPulldown
	PinInputPullup
)

type PinConfig struct {
	Mode PinMode
}

// Pin is a single digital line.
type Pin interface {
	Configure(cfg PinConfig)
	Set(high bool)
	Get() bool
}

// Cond is a set of bus conditions generated around a byte transfer.
type Cond uint8

const (
	CondStart Cond = 1 << iota // (repeated) START + target address before the byte
	CondStop                   // STOP after the byte
	CondAck                    // acknowledge a received byte, requesting the next one
)

// Status is the bus master status, polled after each transfer.
type Status uint8

const (
	StatusBusy     Status = 1 << iota // a transfer is in progress
	StatusError                       // last transfer failed, see other bits
	StatusAddrNack                    // target address not acknowledged
	StatusDataNack                    // data byte not acknowledged
	StatusArbLost                     // arbitration lost
	StatusIdle                        // bus idle

	numStatusBits = 6
)

var statusNames = [numStatusBits]string{
	"busy",
	"error",
	"addr-nack",
	"data-nack",
	"arb-lost",
	"idle",
}

func (s Status) String() string {
	var names []string
	for i := range numStatusBits {
		if s&(1<<i) != 0 {
			names = append(names, statusNames[i])
		}
	}
	if len(names) == 0 {
		return "0"
	}
	return strings.Join(names, "|")
}

// Bus is a blocking-capable two-wire bus master. Transmit and Receive start a
// transfer and return immediately; callers poll Status until StatusBusy is
// clear before looking at the error bits or the received byte.
type Bus interface {
	// SetTarget selects the 7-bit target address and the direction of the
	// next START.
	SetTarget(addr uint8, read bool)
	// Transmit sends b, with the conditions of cond around it.
	Transmit(b byte, cond Cond)
	// Receive reads one byte, with the conditions of cond around it.
	Receive(cond Cond)
	// Stop generates a STOP condition alone.
	Stop()
	Status() Status
	// Data returns the last received byte.
	Data() byte
}

// PWM is a periodic output generator counting down from a load value at the
// reference clock rate. The output is high from reload until the counter
// matches the compare value.
type PWM interface {
	SetPeriod(load uint32)
	SetCompare(cmp uint32)
	Enable(on bool)
}

// Clock provides the passage of time.
type Clock interface {
	Now() time.Duration
	Sleep(d time.Duration)
}

// Target is the device side of the two-wire bus, driven by a Bus
// implementation.
type Target interface {
	// Address returns the 7-bit target address.
	Address() uint8
	// Start is called on (repeated) START addressed to this target. It
	// returns whether the target acknowledges.
	Start(read bool) bool
	// Send is called for each byte written to the target. It returns
	// whether the target acknowledges.
	Send(b byte) bool
	// Recv returns the next byte to send to the master.
	Recv() byte
	// Stop is called on STOP.
	Stop()
}
