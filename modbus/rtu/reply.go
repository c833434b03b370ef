// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"fmt"

	"github.com/serialmodbus/rtu/modbus"
)

// Typed reply parsers for the client side. Each takes the decoded PDU
// from a successful ApplicationDataUnit and returns the reply's value,
// or the slave's Exception if the function code carries the exception
// bit.

func checkException(pdu modbus.ProtocolDataUnit) error {
	if !pdu.IsException() {
		return nil
	}
	if len(pdu.Data) < 1 {
		return fmt.Errorf("modbus: truncated exception reply")
	}
	return &modbus.Exception{
		FunctionCode: pdu.FunctionCode &^ modbus.ExceptionBit,
		Code:         pdu.Data[0],
	}
}

// ParseReadBitsReply unpacks a RD_COILS/RD_INPUTS reply into count
// booleans, LSB of the first data byte first.
func ParseReadBitsReply(pdu modbus.ProtocolDataUnit, count int) ([]bool, error) {
	if err := checkException(pdu); err != nil {
		return nil, err
	}
	if len(pdu.Data) < 1 {
		return nil, fmt.Errorf("modbus: short reply")
	}
	byteCount := int(pdu.Data[0])
	if len(pdu.Data) != 1+byteCount {
		return nil, fmt.Errorf("modbus: byte count %d does not match reply length", byteCount)
	}
	bits := make([]bool, count)
	for i := 0; i < count; i++ {
		bits[i] = pdu.Data[1+i/8]&(1<<uint(i%8)) != 0
	}
	return bits, nil
}

// ParseReadRegistersReply unpacks a RD_HOLDING_REGISTERS/RD_INPUT_REGISTERS
// reply into big-endian 16-bit words.
func ParseReadRegistersReply(pdu modbus.ProtocolDataUnit) ([]uint16, error) {
	if err := checkException(pdu); err != nil {
		return nil, err
	}
	if len(pdu.Data) < 1 {
		return nil, fmt.Errorf("modbus: short reply")
	}
	byteCount := int(pdu.Data[0])
	if byteCount%2 != 0 || len(pdu.Data) != 1+byteCount {
		return nil, fmt.Errorf("modbus: malformed register reply")
	}
	regs := make([]uint16, byteCount/2)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(pdu.Data[1+2*i : 3+2*i])
	}
	return regs, nil
}

// ParseReadBytesReply unpacks a RD_BYTES (user-range, fcode 65) reply.
// Unlike the register/coil reads, its data is addr(2), num(1), then
// num data bytes: the slave echoes the address before the count.
func ParseReadBytesReply(pdu modbus.ProtocolDataUnit) (memAddr uint16, out []byte, err error) {
	if err = checkException(pdu); err != nil {
		return 0, nil, err
	}
	if len(pdu.Data) < 3 {
		return 0, nil, fmt.Errorf("modbus: short reply")
	}
	memAddr = binary.BigEndian.Uint16(pdu.Data[0:2])
	count := int(pdu.Data[2])
	if len(pdu.Data) != 3+count {
		return 0, nil, fmt.Errorf("modbus: byte count %d does not match reply length", count)
	}
	out = make([]byte, count)
	copy(out, pdu.Data[3:])
	return memAddr, out, nil
}

// ParseWriteCoilReply confirms a WR_COIL echo and returns the address
// and value the slave reports.
func ParseWriteCoilReply(pdu modbus.ProtocolDataUnit) (memAddr, data uint16, err error) {
	return parseEchoReply(pdu)
}

// ParseWriteRegisterReply confirms a WR_REGISTER echo.
func ParseWriteRegisterReply(pdu modbus.ProtocolDataUnit) (memAddr, data uint16, err error) {
	return parseEchoReply(pdu)
}

func parseEchoReply(pdu modbus.ProtocolDataUnit) (memAddr, data uint16, err error) {
	if err = checkException(pdu); err != nil {
		return 0, 0, err
	}
	if len(pdu.Data) != 4 {
		return 0, 0, fmt.Errorf("modbus: malformed echo reply")
	}
	memAddr = binary.BigEndian.Uint16(pdu.Data[0:2])
	data = binary.BigEndian.Uint16(pdu.Data[2:4])
	return memAddr, data, nil
}

// ParseWriteRegistersReply confirms a WR_REGISTERS reply: starting
// address and the number of registers actually written.
func ParseWriteRegistersReply(pdu modbus.ProtocolDataUnit) (memAddr, count uint16, err error) {
	if err = checkException(pdu); err != nil {
		return 0, 0, err
	}
	if len(pdu.Data) != 4 {
		return 0, 0, fmt.Errorf("modbus: malformed reply")
	}
	memAddr = binary.BigEndian.Uint16(pdu.Data[0:2])
	count = binary.BigEndian.Uint16(pdu.Data[2:4])
	return memAddr, count, nil
}

// ParseWriteBytesReply confirms a WR_BYTES reply: starting address and
// byte count actually written.
func ParseWriteBytesReply(pdu modbus.ProtocolDataUnit) (memAddr uint16, count byte, err error) {
	if err = checkException(pdu); err != nil {
		return 0, 0, err
	}
	if len(pdu.Data) != 3 {
		return 0, 0, fmt.Errorf("modbus: malformed reply")
	}
	memAddr = binary.BigEndian.Uint16(pdu.Data[0:2])
	count = pdu.Data[2]
	return memAddr, count, nil
}
