// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"testing"

	"github.com/serialmodbus/rtu/modbus"
)

func TestParseReadRegistersReply(t *testing.T) {
	pdu := modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeRdHoldingRegisters,
		Data:         []byte{0x04, 0x00, 0x0A, 0x01, 0x02},
	}
	regs, err := ParseReadRegistersReply(pdu)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []uint16{0x000A, 0x0102}
	if len(regs) != len(want) {
		t.Fatalf("regs = %v, want %v", regs, want)
	}
	for i := range regs {
		if regs[i] != want[i] {
			t.Fatalf("regs[%d] = %#04x, want %#04x", i, regs[i], want[i])
		}
	}
}

func TestParseReadBitsReply(t *testing.T) {
	pdu := modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeRdCoils,
		Data:         []byte{0x01, 0x05},
	}
	bits, err := ParseReadBitsReply(pdu, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []bool{true, false, true, false}
	for i := range want {
		if bits[i] != want[i] {
			t.Fatalf("bits[%d] = %v, want %v", i, bits[i], want[i])
		}
	}
}

func TestParseReplyReturnsException(t *testing.T) {
	pdu := modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeRdHoldingRegisters | 0x80,
		Data:         []byte{modbus.ExcIllegalDataAddress},
	}
	if _, err := ParseReadRegistersReply(pdu); err == nil {
		t.Fatalf("expected exception error")
	} else if exc, ok := err.(*modbus.Exception); !ok {
		t.Fatalf("error is %T, want *modbus.Exception", err)
	} else if exc.Code != modbus.ExcIllegalDataAddress {
		t.Fatalf("exception code = %#02x, want %#02x", exc.Code, modbus.ExcIllegalDataAddress)
	}
}

func TestParseWriteRegisterReply(t *testing.T) {
	pdu := modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWrRegister,
		Data:         []byte{0x00, 0x01, 0x00, 0x03},
	}
	addr, data, err := ParseWriteRegisterReply(pdu)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != 0x0001 || data != 0x0003 {
		t.Fatalf("addr=%#04x data=%#04x, want addr=0x0001 data=0x0003", addr, data)
	}
}

func TestParseReadBytesReply(t *testing.T) {
	pdu := modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeRdBytes,
		Data:         []byte{0x00, 0x10, 0x03, 0xDE, 0xAD, 0xBE},
	}
	addr, data, err := ParseReadBytesReply(pdu)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != 0x0010 {
		t.Fatalf("addr = %#04x, want 0x0010", addr)
	}
	want := []byte{0xDE, 0xAD, 0xBE}
	if len(data) != len(want) {
		t.Fatalf("data = % x, want % x", data, want)
	}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("data[%d] = %#02x, want %#02x", i, data[i], want[i])
		}
	}
}

func TestParseWriteBytesReply(t *testing.T) {
	pdu := modbus.ProtocolDataUnit{
		FunctionCode: modbus.FuncCodeWrBytes,
		Data:         []byte{0x00, 0x10, 0x08},
	}
	addr, count, err := ParseWriteBytesReply(pdu)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != 0x0010 || count != 0x08 {
		t.Fatalf("addr=%#04x count=%d, want addr=0x0010 count=8", addr, count)
	}
}
