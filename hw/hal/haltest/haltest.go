// Package haltest provides recording implementations of the hal interfaces
// for driver tests.
package haltest

import (
	"fmt"
	"sync"
	"time"

	"keytone/hw/hal"
	"keytone/hw/i2c"
)

// Pin records the levels it is set to. Get returns Level, or the result of
// Input when set.
type Pin struct {
	mu     sync.Mutex
	Config hal.PinConfig
	Level  bool
	Input  func() bool
	Sets   []bool
}

func (p *Pin) Configure(cfg hal.PinConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Config = cfg
}

func (p *Pin) Set(high bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Level = high
	p.Sets = append(p.Sets, high)
}

func (p *Pin) Get() bool {
	p.mu.Lock()
	in := p.Input
	lvl := p.Level
	p.mu.Unlock()
	if in != nil {
		return in()
	}
	return lvl
}

// PWM records the programmed values.
type PWM struct {
	mu      sync.Mutex
	Load    uint32
	Cmp     uint32
	On      bool
	Enables []bool
}

func (p *PWM) SetPeriod(load uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Load = load
}

func (p *PWM) SetCompare(cmp uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Cmp = cmp
}

func (p *PWM) Enable(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.On = on
	p.Enables = append(p.Enables, on)
}

// State returns the current programmed values.
func (p *PWM) State() (load, cmp uint32, on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Load, p.Cmp, p.On
}

// Clock is a virtual clock recording the sleeps.
type Clock struct {
	hal.VirtualClock

	mu     sync.Mutex
	Sleeps []time.Duration
}

func (c *Clock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.Sleeps = append(c.Sleeps, d)
	c.mu.Unlock()
	c.VirtualClock.Sleep(d)
}

// Slept returns the total time slept.
func (c *Clock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.Sleeps {
		total += d
	}
	return total
}

// Op is a bus operation recorded by Bus.
type Op struct {
	Kind string // "target", "tx", "rx", "stop"
	Addr uint8
	Read bool
	Data byte
	Cond hal.Cond
}

func (op Op) String() string {
	switch op.Kind {
	case "target":
		return fmt.Sprintf("target %02x read=%t", op.Addr, op.Read)
	case "tx":
		return fmt.Sprintf("tx %02x cond=%d", op.Data, op.Cond)
	case "rx":
		return fmt.Sprintf("rx cond=%d", op.Cond)
	}
	return op.Kind
}

// Bus is a bus master over an i2c.Master, recording the operations and able
// to force failures.
type Bus struct {
	mu sync.Mutex
	m  *i2c.Master

	Ops []Op

	// FailAt makes the transfer with this index (counting Transmit and
	// Receive calls from 0) report StatusArbLost. Negative disables.
	FailAt int
	xfers  int
	failed bool
}

// NewBus returns a bus with the given targets attached.
func NewBus(targets ...hal.Target) *Bus {
	b := &Bus{m: i2c.NewMaster(), FailAt: -1}
	for _, t := range targets {
		b.m.Attach(t)
	}
	return b
}

// Master returns the underlying protocol engine.
func (b *Bus) Master() *i2c.Master { return b.m }

func (b *Bus) record(op Op) {
	b.Ops = append(b.Ops, op)
}

func (b *Bus) SetTarget(addr uint8, read bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Op{Kind: "target", Addr: addr, Read: read})
	b.m.SetTarget(addr, read)
}

func (b *Bus) fail() bool {
	n := b.xfers
	b.xfers++
	b.failed = n == b.FailAt
	return b.failed
}

func (b *Bus) Transmit(data byte, cond hal.Cond) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Op{Kind: "tx", Data: data, Cond: cond})
	if b.fail() {
		return
	}
	b.m.Transmit(data, cond)
}

func (b *Bus) Receive(cond hal.Cond) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Op{Kind: "rx", Cond: cond})
	if b.fail() {
		return
	}
	b.m.Receive(cond)
}

func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Op{Kind: "stop"})
	b.failed = false
	b.m.Stop()
}

func (b *Bus) Status() hal.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failed {
		return hal.StatusError | hal.StatusArbLost
	}
	return b.m.Status()
}

func (b *Bus) Data() byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.m.Data()
}

// Count returns the number of recorded operations of the given kind.
func (b *Bus) Count(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, op := range b.Ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}
