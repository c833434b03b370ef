// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuserver

import (
	"log/slog"
	"sync"

	"github.com/serialmodbus/rtu/modbus"
	"github.com/serialmodbus/rtu/modbus/crc"
	"github.com/serialmodbus/rtu/modbus/rtu"
)

// BroadcastAddr is the reserved slave address meaning "every device on
// the bus"; a server must act on a broadcast request but must never
// transmit a reply to it.
const BroadcastAddr byte = 0

// Engine is the RTU line discipline: it turns a stream of received
// bytes, punctuated by 1.5t/3.5t silent-interval timer expiries, into
// validated ApplicationDataUnits dispatched to a Handler, and drives
// the reply back out through a Driver. It holds no knowledge of how
// bytes actually reach it (interrupt handler, goroutine reading a
// serial fd, or a test harness feeding bytes directly).
//
// Feed, FeedError, TimerFired and the internal sent callback behave
// like ISR entry points: they update the packed Status record and
// immediately drive one round of event processing. An interrupt-driven
// port would defer that processing to a separate context; Engine does
// not need to, since Go's scheduler and the engine's own mutex already
// give it a safe place to run.
type Engine struct {
	mu      sync.Mutex
	addr    byte
	driver  Driver
	handler Handler
	logger  *slog.Logger

	rxbuf   []byte
	txbuf   []byte
	status  Status
	stats   Stats
	timerCB func()

	onSuspend func()
	onResume  func()
}

// New builds an Engine for the slave address addr. A nil logger falls
// back to slog.Default.
func New(addr byte, driver Driver, handler Handler, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		addr:    addr,
		driver:  driver,
		handler: handler,
		logger:  logger,
		rxbuf:   make([]byte, 0, rtu.MaxSize),
		txbuf:   make([]byte, 0, rtu.MaxSize),
	}
}

// Start initializes the state machine and arms the first silent
// interval: the bus is considered busy until 3.5 character times of
// silence confirm it is safe to treat the next byte as a new frame.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats = Stats{}
	e.status = Status{Updated: true, Prev: StateInit, Curr: StateInit}
	e.timerCB = nil
	e.process()
}

// SetLineHooks installs optional callbacks fired when the line stops
// being idle (the first byte of a frame arrived) and when it goes
// idle again after the frame has been handled. An embedding
// application can gate power saving or other background work on them.
// Both may be nil; call before Start. The hooks run with the engine's
// lock held and must not call back into the engine.
func (e *Engine) SetLineHooks(suspend, resume func()) {
	e.onSuspend = suspend
	e.onResume = resume
}

// Address reports the slave address the engine answers to.
func (e *Engine) Address() byte {
	return e.addr
}

// Idle reports whether the bus is currently quiet and a new frame may
// begin.
func (e *Engine) Idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.Curr == StateIdle
}

// Status returns a copy of the current transition record, for tests
// and diagnostics.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Stats returns a copy of the saturating error counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Feed delivers one byte received from the serial line.
func (e *Engine) Feed(data byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.status.Curr {
	case StateIdle:
		// 1st character: start of frame, switch from the 3.5t idle
		// timer to the 1.5t inter-character timer.
		e.status.transition(StateSOF)
		e.appendRxByte(data)
		e.timerCB = e.onInterFrameTimeout
		e.driver.StartTimer1T5()
	case StateSOF, StateRecv:
		e.status.transition(StateRecv)
		e.appendRxByte(data)
		e.driver.ResetTimer()
	default:
		e.logger.Warn("rtu: byte received outside a frame window", "state", e.status.Curr)
		e.status.markError()
	}
	e.process()
}

// FeedError reports a serial-line reception error (framing, parity,
// overrun) for the byte currently in flight.
func (e *Engine) FeedError() {
	e.mu.Lock()
	defer e.mu.Unlock()

	satInc(&e.stats.SerialRecvErrCount)
	e.status.markError()
	e.process()
}

// TimerFired is called by the Driver when the currently armed timer
// expires.
func (e *Engine) TimerFired() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb := e.timerCB; cb != nil {
		cb()
	}
	e.process()
}

func (e *Engine) onSilentInterval() {
	switch {
	case e.status.Curr == StateInit:
		// INIT -> IDLE on start or restart: the bus has been quiet for
		// 3.5 character times.
		e.status.transition(StateIdle)
		e.driver.StopTimer()
	case e.status.Prev == StateRecv && e.status.Curr == StateEOF:
		// confirmed end of frame
		e.status.transition(StateIdle)
		e.driver.StopTimer()
	default:
		e.logger.Warn("rtu: silent interval fired outside init/eof", "status", e.status)
		e.status.markError()
	}
}

func (e *Engine) onInterFrameTimeout() {
	if e.status.Curr == StateRecv {
		// possible end of frame: 1.5t elapsed since the last byte.
		// Switch to the 3.5t timer; if it also elapses without a new
		// byte, the frame is confirmed complete.
		e.status.transition(StateEOF)
		e.driver.StopTimer()
		e.timerCB = e.onSilentInterval
		e.driver.StartTimer3T5()
	} else {
		e.logger.Warn("rtu: inter-character timeout outside recv", "status", e.status)
		e.status.markError()
	}
}

func (e *Engine) onSent() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status.Curr == StateBusy {
		e.txbuf = e.txbuf[:0]
		e.status.transition(StateInit)
	} else {
		e.logger.Warn("rtu: send completed outside busy", "state", e.status.Curr)
		e.status.markError()
	}
	e.process()
}

func (e *Engine) appendRxByte(data byte) {
	if len(e.rxbuf) >= cap(e.rxbuf) {
		e.logger.Warn("rtu: rx buffer overflow")
		e.status.markError()
		return
	}
	e.rxbuf = append(e.rxbuf, data)
}

// process applies the transition rules for the current Status: it runs
// once per state change and decides whether the change is legal,
// recovering to INIT whenever it is not.
func (e *Engine) process() {
	if !e.status.Updated {
		return
	}
	e.status.Updated = false

	if e.status.Error {
		e.status.Error = false
		e.fail("error flagged")
		return
	}

	switch e.status.Curr {
	case StateInit:
		e.restart()
	case StateIdle:
		switch e.status.Prev {
		case StateInit:
			// nothing to do, first entry after restart
		case StateEOF:
			if len(e.txbuf) != 0 {
				e.fail("txbuf not drained entering idle")
				return
			}
			e.processADU()
			if e.onResume != nil {
				e.onResume()
			}
		default:
			e.fail("unexpected transition into idle")
		}
	case StateSOF:
		if e.status.Prev != StateIdle {
			e.fail("unexpected transition into sof")
			return
		}
		if e.onSuspend != nil {
			e.onSuspend()
		}
	case StateRecv:
		// nothing extra: the 1.5t timer reset happens in Feed.
	case StateEOF:
		if e.status.Prev != StateRecv {
			e.fail("unexpected transition into eof")
		}
	case StateBusy:
		// reply transmission in progress
	default:
		e.fail("unknown state")
	}
}

// fail logs and recovers from an error condition by forcing the
// engine back to INIT and immediately re-arming the idle timer, the
// same sequence a fresh Start performs.
func (e *Engine) fail(reason string) {
	satInc(&e.stats.ErrCount)
	e.logger.Error("rtu: recovering from error",
		"reason", reason,
		"errCount", e.stats.ErrCount,
		"serialRecvErrCount", e.stats.SerialRecvErrCount)
	if e.stats.CRCErrCount > 0 {
		e.logger.Warn("rtu: crc error count", "count", e.stats.CRCErrCount)
	}
	e.status = Status{Prev: e.status.Curr, Curr: StateInit}
	e.restart()
}

func (e *Engine) restart() {
	e.rxbuf = e.rxbuf[:0]
	e.txbuf = e.txbuf[:0]
	e.driver.StopTimer()
	e.timerCB = e.onSilentInterval
	e.driver.StartTimer3T5()
}

// processADU verifies the framed request and, unless the frame is
// malformed, dispatches it to the handler and queues a reply. It is
// only ever reached from the confirmed-end-of-frame idle transition.
func (e *Engine) processADU() {
	frame := e.rxbuf

	if len(frame) < rtu.MinSize {
		e.fail("frame shorter than minimum size")
		return
	}
	if !crc.Verify(frame) {
		satInc(&e.stats.CRCErrCount)
		e.fail("crc mismatch")
		return
	}

	addr := frame[0]
	fcode := frame[1]
	data := append([]byte(nil), frame[2:len(frame)-2]...)
	e.rxbuf = e.rxbuf[:0]

	reply, ok := e.handler.HandlePDU(addr, modbus.ProtocolDataUnit{FunctionCode: fcode, Data: data})
	if !ok || addr == BroadcastAddr {
		// No reply: either the handler chose not to answer, or the
		// request was a broadcast and servers never reply to those.
		return
	}

	if 2+len(reply.Data)+2 > rtu.MaxSize {
		e.fail("reply exceeds adu capacity")
		return
	}
	body := make([]byte, 0, 2+len(reply.Data))
	body = append(body, addr, reply.FunctionCode)
	body = append(body, reply.Data...)
	e.txbuf = rtu.ImplaceCRC(body)

	e.status.transition(StateBusy)
	e.driver.Send(e.txbuf, e.onSent)
}
