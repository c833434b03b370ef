// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package modbus holds the transport-agnostic pieces of the MODBUS
// application layer: the protocol data unit, the public function-code
// catalog and the exception-code catalog. Both the RTU server side
// (rtuserver, memslave) and the RTU client side (rtuclient, modbus/rtu)
// build on these names so a frame never needs translating between
// packages.
package modbus

import "fmt"

// ProtocolDataUnit is the function-code-plus-data portion of a MODBUS
// frame, with the address and CRC stripped by the transport.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// IsException reports whether FunctionCode carries the exception bit.
func (pdu ProtocolDataUnit) IsException() bool {
	return pdu.FunctionCode&ExceptionBit != 0
}

// Function codes, spelled out per "MODBUS over serial line specification
// and implementation guide V1.02". RdCoils/RdInputs adopt the plural
// naming; the RdBytes/WrBytes pair is the user-range byte-addressable
// extension used by the reference memory slave.
const (
	FuncCodeRdCoils             byte = 1
	FuncCodeRdInputs            byte = 2
	FuncCodeRdHoldingRegisters  byte = 3
	FuncCodeRdInputRegisters    byte = 4
	FuncCodeWrCoil              byte = 5
	FuncCodeWrRegister          byte = 6
	FuncCodeRdExceptionStatus   byte = 7
	FuncCodeDiagnostic          byte = 8
	FuncCodeGetComEventCounter  byte = 11
	FuncCodeGetComEventLog      byte = 12
	FuncCodeWrCoils             byte = 15
	FuncCodeWrRegisters         byte = 16
	FuncCodeReportServerID      byte = 17
	FuncCodeRdFile              byte = 20
	FuncCodeWrFile              byte = 21
	FuncCodeMaskWrRegister      byte = 22
	FuncCodeRdWrRegisters       byte = 23
	FuncCodeRdFIFO              byte = 24
	FuncCodeRdDeviceIdentifier  byte = 43
	FuncCodeRdBytes             byte = 65
	FuncCodeWrBytes             byte = 66

	// ExceptionBit, or'd into a request's function code, marks a reply
	// as an exception: fcode|ExceptionBit, followed by a one-byte
	// exception code from the catalog below.
	ExceptionBit byte = 0x80
)

// Exception codes.
const (
	ExcIllegalFunction     byte = 0x01
	ExcIllegalDataAddress  byte = 0x02
	ExcIllegalDataValue    byte = 0x03
	ExcServerDeviceFailure byte = 0x04
	ExcFormatError         byte = 0x80
)

// Exception is the typed error a slave-side handler returns for a PDU
// that must be rejected; the caller is responsible for encoding it as
// fcode|0x80, ecode.
type Exception struct {
	FunctionCode byte
	Code         byte
}

func (e *Exception) Error() string {
	return fmt.Sprintf("modbus: exception %#02x on function %#02x", e.Code, e.FunctionCode)
}

// NewException builds an Exception for the given request function code
// and exception code.
func NewException(fcode, ecode byte) *Exception {
	return &Exception{FunctionCode: fcode, Code: ecode}
}
