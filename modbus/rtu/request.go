// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"fmt"

	"github.com/serialmodbus/rtu/modbus"
)

// Client-side request builders. Each returns a complete ADU (address,
// function code, data, CRC) ready for the wire, or an error describing
// which limit from the function-code table was violated. Count/data
// ranges are checked before anything is allocated.

func BuildReadCoilsRequest(addr byte, memAddr, count uint16) ([]byte, error) {
	return buildReadRequest(addr, modbus.FuncCodeRdCoils, memAddr, count, maxCoilCount)
}

func BuildReadInputsRequest(addr byte, memAddr, count uint16) ([]byte, error) {
	return buildReadRequest(addr, modbus.FuncCodeRdInputs, memAddr, count, maxCoilCount)
}

func BuildReadHoldingRegistersRequest(addr byte, memAddr, count uint16) ([]byte, error) {
	return buildReadRequest(addr, modbus.FuncCodeRdHoldingRegisters, memAddr, count, maxRegisterCount)
}

func BuildReadInputRegistersRequest(addr byte, memAddr, count uint16) ([]byte, error) {
	return buildReadRequest(addr, modbus.FuncCodeRdInputRegisters, memAddr, count, maxRegisterCount)
}

func buildReadRequest(addr, fcode byte, memAddr, count uint16, limit uint16) ([]byte, error) {
	if count == 0 || count > limit {
		return nil, fmt.Errorf("modbus: count %d out of range for function %#02x", count, fcode)
	}
	body := make([]byte, 6)
	body[0], body[1] = addr, fcode
	binary.BigEndian.PutUint16(body[2:4], memAddr)
	binary.BigEndian.PutUint16(body[4:6], count)
	return ImplaceCRC(body), nil
}

// BuildWriteCoilRequest writes a single coil; data must be 0x0000 or
// 0xFF00 per the specification.
func BuildWriteCoilRequest(addr byte, memAddr, data uint16) ([]byte, error) {
	if data != 0x0000 && data != 0xFF00 {
		return nil, fmt.Errorf("modbus: illegal coil value %#04x", data)
	}
	body := make([]byte, 6)
	body[0], body[1] = addr, modbus.FuncCodeWrCoil
	binary.BigEndian.PutUint16(body[2:4], memAddr)
	binary.BigEndian.PutUint16(body[4:6], data)
	return ImplaceCRC(body), nil
}

// BuildWriteRegisterRequest writes a single 16-bit register.
func BuildWriteRegisterRequest(addr byte, memAddr, data uint16) ([]byte, error) {
	body := make([]byte, 6)
	body[0], body[1] = addr, modbus.FuncCodeWrRegister
	binary.BigEndian.PutUint16(body[2:4], memAddr)
	binary.BigEndian.PutUint16(body[4:6], data)
	return ImplaceCRC(body), nil
}

// BuildWriteRegistersRequest writes a run of 16-bit registers starting
// at memAddr. At most 0x7B (123) registers per the wire limit.
func BuildWriteRegistersRequest(addr byte, memAddr uint16, data []uint16) ([]byte, error) {
	count := len(data)
	if count == 0 || count > maxWriteRegCount {
		return nil, fmt.Errorf("modbus: register count %d out of range", count)
	}
	byteCount := byte(count * 2)
	body := make([]byte, 7+int(byteCount))
	body[0], body[1] = addr, modbus.FuncCodeWrRegisters
	binary.BigEndian.PutUint16(body[2:4], memAddr)
	binary.BigEndian.PutUint16(body[4:6], uint16(count))
	body[6] = byteCount
	for i, word := range data {
		binary.BigEndian.PutUint16(body[7+i*2:9+i*2], word)
	}
	return ImplaceCRC(body), nil
}

// BuildReadBytesRequest issues the user-range byte read (fcode 65)
// against the reference memory slave's byte-addressable space.
func BuildReadBytesRequest(addr byte, memAddr uint16, count byte) ([]byte, error) {
	if count == 0 || count > maxByteCount {
		return nil, fmt.Errorf("modbus: byte count %d out of range", count)
	}
	body := make([]byte, 5)
	body[0], body[1] = addr, modbus.FuncCodeRdBytes
	binary.BigEndian.PutUint16(body[2:4], memAddr)
	body[4] = count
	return ImplaceCRC(body), nil
}

// BuildWriteBytesRequest issues the user-range byte write (fcode 66).
func BuildWriteBytesRequest(addr byte, memAddr uint16, data []byte) ([]byte, error) {
	count := len(data)
	if count == 0 || count > maxByteCount {
		return nil, fmt.Errorf("modbus: byte count %d out of range", count)
	}
	body := make([]byte, 5+count)
	body[0], body[1] = addr, modbus.FuncCodeWrBytes
	binary.BigEndian.PutUint16(body[2:4], memAddr)
	body[4] = byte(count)
	copy(body[5:], data)
	return ImplaceCRC(body), nil
}
