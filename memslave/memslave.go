// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package memslave is the reference RTU slave: a single contiguous,
// byte-addressable memory region exposed through RD_HOLDING_REGISTERS,
// WR_REGISTER, WR_REGISTERS and the user-range RD_BYTES/WR_BYTES pair.
// Each "register" is one byte zero-extended to 16 bits: the store is
// byte-wide, so register words carry a zero high byte on the wire and
// reject writes with a nonzero one.
package memslave

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/serialmodbus/rtu/memslave/persistence"
	"github.com/serialmodbus/rtu/modbus"
	"github.com/serialmodbus/rtu/modbus/rtu"
	"github.com/serialmodbus/rtu/rtuserver"
)

// MemorySlave answers requests addressed to Addr (or to the broadcast
// address) against the half-open byte range [AddrBegin, AddrEnd).
type MemorySlave struct {
	mu sync.Mutex

	addr      byte
	addrBegin uint16
	addrEnd   uint16
	storage   persistence.Storage
	bytes     []byte
	logger    *slog.Logger
}

// New builds a MemorySlave for the half-open region [addrBegin,
// addrEnd). storage.Load is called immediately to materialize the
// backing bytes.
func New(addr byte, addrBegin, addrEnd uint16, storage persistence.Storage, logger *slog.Logger) (*MemorySlave, error) {
	if addrEnd <= addrBegin {
		return nil, fmt.Errorf("memslave: empty or inverted region [%d, %d)", addrBegin, addrEnd)
	}
	if logger == nil {
		logger = slog.Default()
	}
	data, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("memslave: load storage: %w", err)
	}
	want := int(addrEnd - addrBegin)
	if len(data) != want {
		return nil, fmt.Errorf("memslave: storage size %d does not match region size %d", len(data), want)
	}
	return &MemorySlave{
		addr:      addr,
		addrBegin: addrBegin,
		addrEnd:   addrEnd,
		storage:   storage,
		bytes:     data,
		logger:    logger,
	}, nil
}

// HandlePDU implements rtuserver.Handler.
func (m *MemorySlave) HandlePDU(addr byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, bool) {
	if addr != m.addr && addr != rtuserver.BroadcastAddr {
		return modbus.ProtocolDataUnit{}, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch pdu.FunctionCode {
	case modbus.FuncCodeRdHoldingRegisters:
		return m.readRegisters(pdu.Data)
	case modbus.FuncCodeWrRegister:
		return m.writeRegister(pdu.Data)
	case modbus.FuncCodeWrRegisters:
		return m.writeRegisters(pdu.Data)
	case modbus.FuncCodeRdBytes:
		return m.readBytes(pdu.Data)
	case modbus.FuncCodeWrBytes:
		return m.writeBytes(pdu.Data)
	default:
		return m.exception(pdu.FunctionCode, modbus.ExcIllegalFunction), true
	}
}

func (m *MemorySlave) exception(fcode, ecode byte) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{FunctionCode: fcode | modbus.ExceptionBit, Data: []byte{ecode}}
}

func (m *MemorySlave) inRange(addr uint16) bool {
	return addr >= m.addrBegin && addr < m.addrEnd
}

func (m *MemorySlave) readRegisters(data []byte) (modbus.ProtocolDataUnit, bool) {
	const fcode = modbus.FuncCodeRdHoldingRegisters
	if len(data) < 4 {
		return m.exception(fcode, modbus.ExcFormatError), true
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	num := binary.BigEndian.Uint16(data[2:4])

	if !m.inRange(addr) {
		return m.exception(fcode, modbus.ExcIllegalDataAddress), true
	}
	if num == 0 || num > 0x7D {
		return m.exception(fcode, modbus.ExcIllegalDataValue), true
	}
	if uint32(addr)+uint32(num) > uint32(m.addrEnd) {
		return m.exception(fcode, modbus.ExcIllegalDataAddress), true
	}

	out := make([]byte, 1+int(num)*2)
	out[0] = byte(num * 2)
	offset := addr - m.addrBegin
	for i := uint16(0); i < num; i++ {
		binary.BigEndian.PutUint16(out[1+2*i:3+2*i], uint16(m.bytes[offset+i]))
	}
	return modbus.ProtocolDataUnit{FunctionCode: fcode, Data: out}, true
}

func (m *MemorySlave) writeRegister(data []byte) (modbus.ProtocolDataUnit, bool) {
	const fcode = modbus.FuncCodeWrRegister
	if len(data) < 4 {
		return m.exception(fcode, modbus.ExcFormatError), true
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	if !m.inRange(addr) {
		return m.exception(fcode, modbus.ExcIllegalDataAddress), true
	}
	if value&0xFF00 != 0 {
		return m.exception(fcode, modbus.ExcIllegalDataValue), true
	}

	m.bytes[addr-m.addrBegin] = byte(value)
	m.storage.OnWrite(addr-m.addrBegin, 1)

	return modbus.ProtocolDataUnit{FunctionCode: fcode, Data: append([]byte(nil), data[:4]...)}, true
}

func (m *MemorySlave) writeRegisters(data []byte) (modbus.ProtocolDataUnit, bool) {
	const fcode = modbus.FuncCodeWrRegisters
	if len(data) < 5 {
		return m.exception(fcode, modbus.ExcFormatError), true
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	num := binary.BigEndian.Uint16(data[2:4])
	byteCount := data[4]

	if !m.inRange(addr) {
		return m.exception(fcode, modbus.ExcIllegalDataAddress), true
	}
	if num == 0 || num > 0x7B {
		return m.exception(fcode, modbus.ExcIllegalDataValue), true
	}
	if uint32(addr)+uint32(num) > uint32(m.addrEnd) {
		return m.exception(fcode, modbus.ExcIllegalDataAddress), true
	}
	if byteCount != byte(num*2) {
		return m.exception(fcode, modbus.ExcIllegalDataValue), true
	}
	if len(data) != 5+int(byteCount) {
		return m.exception(fcode, modbus.ExcFormatError), true
	}

	offset := addr - m.addrBegin
	for i := uint16(0); i < num; i++ {
		word := binary.BigEndian.Uint16(data[5+2*i : 7+2*i])
		if word&0xFF00 != 0 {
			return m.exception(fcode, modbus.ExcIllegalDataValue), true
		}
		m.bytes[offset+i] = byte(word)
	}
	m.storage.OnWrite(offset, int(num))

	return modbus.ProtocolDataUnit{FunctionCode: fcode, Data: append([]byte(nil), data[:4]...)}, true
}

func (m *MemorySlave) readBytes(data []byte) (modbus.ProtocolDataUnit, bool) {
	const fcode = modbus.FuncCodeRdBytes
	if len(data) < 3 {
		return m.exception(fcode, modbus.ExcFormatError), true
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	num := data[2]

	if !m.inRange(addr) {
		return m.exception(fcode, modbus.ExcIllegalDataAddress), true
	}
	if num == 0 || num > rtu.PDUMaxSize-4 {
		return m.exception(fcode, modbus.ExcIllegalDataValue), true
	}
	if uint32(addr)+uint32(num) > uint32(m.addrEnd) {
		return m.exception(fcode, modbus.ExcIllegalDataAddress), true
	}

	out := make([]byte, 3+int(num))
	copy(out[0:2], data[0:2])
	out[2] = num
	copy(out[3:], m.bytes[addr-m.addrBegin:addr-m.addrBegin+uint16(num)])
	return modbus.ProtocolDataUnit{FunctionCode: fcode, Data: out}, true
}

func (m *MemorySlave) writeBytes(data []byte) (modbus.ProtocolDataUnit, bool) {
	const fcode = modbus.FuncCodeWrBytes
	if len(data) < 3 {
		return m.exception(fcode, modbus.ExcFormatError), true
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	num := data[2]

	if !m.inRange(addr) {
		return m.exception(fcode, modbus.ExcIllegalDataAddress), true
	}
	if num == 0 || num > rtu.PDUMaxSize-4 {
		return m.exception(fcode, modbus.ExcIllegalDataValue), true
	}
	if len(data) != 3+int(num) {
		return m.exception(fcode, modbus.ExcIllegalDataValue), true
	}
	if uint32(addr)+uint32(num) > uint32(m.addrEnd) {
		return m.exception(fcode, modbus.ExcIllegalDataAddress), true
	}

	offset := addr - m.addrBegin
	copy(m.bytes[offset:offset+uint16(num)], data[3:])
	m.storage.OnWrite(offset, int(num))

	out := make([]byte, 3)
	copy(out[0:2], data[0:2])
	out[2] = num
	return modbus.ProtocolDataUnit{FunctionCode: fcode, Data: out}, true
}
