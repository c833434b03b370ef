// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package hostdriver is a rtuserver.Driver implementation for hosted
// OSes: time.Timer for the two silent-interval timers and
// github.com/grid-x/serial for the UART.
package hostdriver

import "time"

// Baud rate at and above which the specification mandates fixed
// timer values rather than a per-baud computation.
const fastBaudThreshold = 19200

// t1T5Micros returns the 1.5 character-time inter-character timeout
// in microseconds for baud.
func t1T5Micros(baud int) int64 {
	if baud >= fastBaudThreshold {
		return 750
	}
	return 8_250_000 / int64(baud)
}

// t3T5Micros returns the 3.5 character-time inter-frame silent
// interval in microseconds for baud.
func t3T5Micros(baud int) int64 {
	if baud >= fastBaudThreshold {
		return 1750
	}
	return 19_250_000 / int64(baud)
}

// T1T5 returns the 1.5 character-time duration for baud.
func T1T5(baud int) time.Duration {
	return time.Duration(t1T5Micros(baud)) * time.Microsecond
}

// T3T5 returns the 3.5 character-time duration for baud.
func T3T5(baud int) time.Duration {
	return time.Duration(t3T5Micros(baud)) * time.Microsecond
}

// MinTransmissionTime returns the minimum time to put n bytes on the
// wire at baud, an 11-bit character time per byte (start + 8 data +
// parity + stop). Used to size I/O timeouts, not to pace writes.
func MinTransmissionTime(n int, baud int) time.Duration {
	ms := (11 * int64(n) * 1000) / int64(baud)
	return time.Duration(ms) * time.Millisecond
}
