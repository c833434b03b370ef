// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtuserver implements the MODBUS RTU slave-side line
// discipline: the silent-interval/inter-character state machine that
// turns a raw serial byte stream into validated application data
// units and drives the reply back out, independent of any particular
// serial transport.
package rtuserver

// State is one node of the RTU reception state machine, driven by
// received bytes and the 1.5/3.5 character-time silent-interval
// timers.
type State int

const (
	StateInit State = iota
	StateIdle
	StateSOF
	StateRecv
	StateEOF
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateIdle:
		return "IDLE"
	case StateSOF:
		return "SOF"
	case StateRecv:
		return "RECV"
	case StateEOF:
		return "EOF"
	case StateBusy:
		return "BUSY"
	default:
		return "UNKNOWN"
	}
}

// Status is the packed transition record the engine consults each
// time it processes an event (Engine.process): whether something changed since the last call, whether
// an error was flagged, and the previous/current state pair that the
// transition rules are keyed on.
type Status struct {
	Updated bool
	Error   bool
	Prev    State
	Curr    State
}

func (s *Status) transition(next State) {
	s.Updated = true
	s.Prev = s.Curr
	s.Curr = next
}

func (s *Status) markError() {
	s.Updated = true
	s.Error = true
}

// Stats accumulates saturating error counters for diagnostics; each
// counter sticks at 255 instead of wrapping.
type Stats struct {
	ErrCount           uint8
	SerialRecvErrCount uint8
	CRCErrCount        uint8
}

func satInc(c *uint8) {
	if *c < 255 {
		*c++
	}
}
