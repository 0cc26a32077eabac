// Package i2c models the protocol side of a two-wire bus master: address
// phase, acknowledgments, repeated starts and the status a polling driver
// observes. Register-level front-ends (hw/tm4c) and test doubles translate
// their own interface into calls to a Master.
package i2c

import (
	"keytone/emu/log"
	"keytone/hw/hal"
)

// Master is a single-master bus with any number of attached targets. It is
// not safe for concurrent use, callers serialize accesses.
type Master struct {
	// BusyPolls is the number of Status calls reporting StatusBusy after each
	// transfer, to exercise the drivers polling loops.
	BusyPolls int

	targets map[uint8]hal.Target

	addr uint8
	read bool

	active   hal.Target // addressed target, nil after an address NACK
	held     bool       // between START and STOP
	status   hal.Status
	data     byte
	busyLeft int
}

func NewMaster() *Master {
	return &Master{targets: make(map[uint8]hal.Target)}
}

// Attach connects t to the bus.
func (m *Master) Attach(t hal.Target) {
	m.targets[t.Address()] = t
}

// Detach disconnects the target at addr.
func (m *Master) Detach(addr uint8) {
	delete(m.targets, addr)
}

func (m *Master) SetTarget(addr uint8, read bool) {
	m.addr = addr & 0x7F
	m.read = read
}

func (m *Master) start() bool {
	if m.held && m.active != nil {
		log.ModBus.DebugZ("repeated start").Hex8("addr", m.addr).Bool("read", m.read).End()
	} else {
		log.ModBus.DebugZ("start").Hex8("addr", m.addr).Bool("read", m.read).End()
	}

	m.held = true
	m.active = nil

	t := m.targets[m.addr]
	if t == nil || !t.Start(m.read) {
		m.status = hal.StatusError | hal.StatusAddrNack
		log.ModBus.DebugZ("address nack").Hex8("addr", m.addr).End()
		return false
	}
	m.active = t
	return true
}

func (m *Master) stop() {
	if !m.held {
		return
	}
	if m.active != nil {
		m.active.Stop()
	}
	m.active = nil
	m.held = false
	log.ModBus.DebugZ("stop").Hex8("addr", m.addr).End()
}

func (m *Master) transfer(cond hal.Cond, read bool) bool {
	m.status = 0
	m.busyLeft = m.BusyPolls

	if cond&hal.CondStart != 0 {
		if !m.start() {
			return false
		}
	}
	if !m.held || m.active == nil || m.read != read {
		m.status = hal.StatusError
		log.ModBus.WarnZ("transfer outside of a transaction").
			Hex8("addr", m.addr).
			Bool("held", m.held).
			Bool("read", read).
			End()
		return false
	}
	return true
}

func (m *Master) Transmit(b byte, cond hal.Cond) {
	if !m.transfer(cond, false) {
		return
	}
	if !m.active.Send(b) {
		m.status = hal.StatusError | hal.StatusDataNack
		log.ModBus.DebugZ("data nack").Hex8("addr", m.addr).Hex8("data", b).End()
		return
	}
	log.ModBus.DebugZ("tx").Hex8("addr", m.addr).Hex8("data", b).End()
	if cond&hal.CondStop != 0 {
		m.stop()
	}
}

func (m *Master) Receive(cond hal.Cond) {
	if !m.transfer(cond, true) {
		return
	}
	m.data = m.active.Recv()
	log.ModBus.DebugZ("rx").Hex8("addr", m.addr).Hex8("data", m.data).End()
	if cond&hal.CondStop != 0 {
		m.stop()
	}
}

func (m *Master) Stop() {
	m.status = 0
	m.busyLeft = m.BusyPolls
	m.stop()
}

func (m *Master) Status() hal.Status {
	if m.busyLeft > 0 {
		m.busyLeft--
		return m.status | hal.StatusBusy
	}
	s := m.status
	if !m.held {
		s |= hal.StatusIdle
	}
	return s
}

func (m *Master) Data() byte { return m.data }

// Held reports whether the bus is between a START and a STOP.
func (m *Master) Held() bool { return m.held }
