// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package hostdriver

import "testing"

func TestBaudFormulasBelowThreshold(t *testing.T) {
	if got := t1T5Micros(9600); got != 8_250_000/9600 {
		t.Fatalf("t1T5Micros(9600) = %d", got)
	}
	if got := t3T5Micros(9600); got != 19_250_000/9600 {
		t.Fatalf("t3T5Micros(9600) = %d", got)
	}
}

func TestBaudFormulasAtAndAboveThreshold(t *testing.T) {
	for _, baud := range []int{19200, 57600, 115200} {
		if got := t1T5Micros(baud); got != 750 {
			t.Fatalf("t1T5Micros(%d) = %d, want 750", baud, got)
		}
		if got := t3T5Micros(baud); got != 1750 {
			t.Fatalf("t3T5Micros(%d) = %d, want 1750", baud, got)
		}
	}
}

func TestMinTransmissionTime(t *testing.T) {
	got := MinTransmissionTime(8, 9600)
	want := (11 * 8 * 1000) / 9600
	if got.Milliseconds() != int64(want) {
		t.Fatalf("MinTransmissionTime = %v, want %dms", got, want)
	}
}

func TestTimerPanicsWhenArmedTwice(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic arming an already-armed timer")
		}
	}()
	tm := newTimer(T1T5(9600), T3T5(9600), func() {})
	tm.StartTimer1T5()
	defer tm.StopTimer()
	tm.StartTimer3T5()
}

func TestTimerStopIsIdempotent(t *testing.T) {
	tm := newTimer(T1T5(9600), T3T5(9600), func() {})
	tm.StopTimer()
	tm.StopTimer()
}
