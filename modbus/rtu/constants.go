// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

// ADU/PDU size limits, per "MODBUS over serial line specification and
// implementation guide V1.02" section 2.5.1.
const (
	MinSize       = 4   // address + function code + 2-byte CRC
	MaxSize       = 256 // address(1) + PDU(253) + CRC(2)
	PDUMaxSize    = 253
	ExceptionSize = 5 // address, fcode|0x80, ecode, crc(2)

	maxCoilCount     = 0x7D
	maxRegisterCount = 0x7D
	maxWriteRegCount = 0x7B
	maxByteCount     = 249
)
