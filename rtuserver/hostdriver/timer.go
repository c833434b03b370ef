// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package hostdriver

import (
	"sync"
	"time"
)

// timer is a single armed-slot timer built on time.Timer. The driver
// contract requires StartTimer1T5/3T5 to be called only when no timer
// is armed; violating that invariant is a programmer error, so this
// implementation panics rather than silently leaking or rearming.
type timer struct {
	mu       sync.Mutex
	t1t5     time.Duration
	t3t5     time.Duration
	armed    *time.Timer
	duration time.Duration
	onFire   func()
}

func newTimer(t1t5, t3t5 time.Duration, onFire func()) *timer {
	return &timer{t1t5: t1t5, t3t5: t3t5, onFire: onFire}
}

func (tm *timer) start(d time.Duration) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.armed != nil {
		panic("hostdriver: timer armed twice without an intervening stop")
	}
	tm.duration = d
	tm.armed = time.AfterFunc(d, tm.fire)
}

func (tm *timer) fire() {
	tm.mu.Lock()
	tm.armed = nil
	tm.mu.Unlock()
	tm.onFire()
}

// StartTimer1T5 implements rtuserver.Driver.
func (tm *timer) StartTimer1T5() { tm.start(tm.t1t5) }

// StartTimer3T5 implements rtuserver.Driver.
func (tm *timer) StartTimer3T5() { tm.start(tm.t3t5) }

// StopTimer implements rtuserver.Driver. Idempotent: stopping an
// already-disarmed timer is a no-op.
func (tm *timer) StopTimer() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.armed != nil {
		tm.armed.Stop()
		tm.armed = nil
	}
}

// ResetTimer implements rtuserver.Driver: restart the currently armed
// timer's countdown without changing which duration it uses.
func (tm *timer) ResetTimer() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.armed == nil {
		panic("hostdriver: reset with no timer armed")
	}
	tm.armed.Reset(tm.duration)
}
