// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuserver

import "github.com/serialmodbus/rtu/modbus"

// Driver is the capability set the engine needs from the platform: the
// two silent-interval timers and the ability to put a frame on the
// wire. Implementations (hostdriver, or a bare-metal one) may be
// interrupt-driven; the engine only ever calls these from within
// Start, Feed, FeedError, TimerFired or its sent callback, with its
// lock held, never concurrently with itself.
type Driver interface {
	// StartTimer1T5 arms the inter-character timeout (1.5 character
	// times): if it fires before the next byte, the frame may have
	// ended, pending confirmation by the 3.5t silent interval.
	StartTimer1T5()
	// StartTimer3T5 arms the inter-frame silent interval (3.5 character
	// times) used both to detect confirmed end-of-frame and to
	// recognize the bus has gone idle after init/restart.
	StartTimer3T5()
	// StopTimer disarms whichever timer is currently running.
	StopTimer()
	// ResetTimer restarts the currently armed timer's countdown
	// without changing which timer is armed.
	ResetTimer()
	// Send transmits frame and invokes done once the last bit has left
	// the wire. Send itself is called synchronously from inside a
	// locked Engine method, so an implementation must never call done
	// (or FeedError, on a failed send) before returning from Send: do
	// so from a separate goroutine instead, or the engine will deadlock
	// re-entering its own mutex.
	Send(frame []byte, done func())
}

// Handler answers one decoded PDU. ok reports whether a reply should
// be transmitted at all: the memory slave returns false for a frame
// addressed to another slave. A reply to the broadcast address is
// discarded by the engine even when ok is true, since MODBUS servers
// must not reply to broadcasts.
type Handler interface {
	HandlePDU(addr byte, pdu modbus.ProtocolDataUnit) (reply modbus.ProtocolDataUnit, ok bool)
}
