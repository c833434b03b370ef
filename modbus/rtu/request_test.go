// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"testing"

	"github.com/serialmodbus/rtu/modbus"
)

func TestBuildReadHoldingRegistersRequest(t *testing.T) {
	raw, err := BuildReadHoldingRegistersRequest(0x11, 0x006B, 0x0003)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{0x11, modbus.FuncCodeRdHoldingRegisters, 0x00, 0x6B, 0x00, 0x03}
	want = ImplaceCRC(want)
	if string(raw) != string(want) {
		t.Fatalf("raw = % x, want % x", raw, want)
	}
}

func TestBuildReadHoldingRegistersRequestRejectsOverLimit(t *testing.T) {
	if _, err := BuildReadHoldingRegistersRequest(0x11, 0, maxRegisterCount+1); err == nil {
		t.Fatalf("expected error for over-limit count")
	}
	if _, err := BuildReadHoldingRegistersRequest(0x11, 0, 0); err == nil {
		t.Fatalf("expected error for zero count")
	}
}

func TestBuildWriteCoilRequestRejectsIllegalValue(t *testing.T) {
	if _, err := BuildWriteCoilRequest(0x11, 0x00AC, 0x1234); err == nil {
		t.Fatalf("expected error for illegal coil value")
	}
	if _, err := BuildWriteCoilRequest(0x11, 0x00AC, 0xFF00); err != nil {
		t.Fatalf("unexpected error for ON value: %v", err)
	}
	if _, err := BuildWriteCoilRequest(0x11, 0x00AC, 0x0000); err != nil {
		t.Fatalf("unexpected error for OFF value: %v", err)
	}
}

func TestBuildWriteRegistersRequest(t *testing.T) {
	raw, err := BuildWriteRegistersRequest(0x11, 0x0001, []uint16{0x000A, 0x0102})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{0x11, modbus.FuncCodeWrRegisters, 0x00, 0x01, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x01, 0x02}
	want = ImplaceCRC(want)
	if string(raw) != string(want) {
		t.Fatalf("raw = % x, want % x", raw, want)
	}
}

func TestBuildWriteRegistersRequestRejectsOverLimit(t *testing.T) {
	data := make([]uint16, maxWriteRegCount+1)
	if _, err := BuildWriteRegistersRequest(0x11, 0, data); err == nil {
		t.Fatalf("expected error for over-limit register count")
	}
}

func TestBuildReadBytesRequest(t *testing.T) {
	raw, err := BuildReadBytesRequest(0x11, 0x0010, 0x08)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ImplaceCRC([]byte{0x11, modbus.FuncCodeRdBytes, 0x00, 0x10, 0x08})
	if string(raw) != string(want) {
		t.Fatalf("raw = % x, want % x", raw, want)
	}
}

func TestBuildWriteBytesRequestRejectsOverLimit(t *testing.T) {
	data := make([]byte, maxByteCount+1)
	if _, err := BuildWriteBytesRequest(0x11, 0, data); err == nil {
		t.Fatalf("expected error for over-limit byte count")
	}
}
