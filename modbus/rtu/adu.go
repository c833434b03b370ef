// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"

	"github.com/serialmodbus/rtu/modbus"
	"github.com/serialmodbus/rtu/modbus/crc"
)

// ApplicationDataUnit is a decoded RTU frame: slave address plus PDU,
// with the CRC trailer verified and stripped.
type ApplicationDataUnit struct {
	Address byte
	PDU     modbus.ProtocolDataUnit
}

// Decode validates an inbound RTU frame's size and CRC and splits it
// into address and PDU. Validation order matches the wire codec
// contract: size first, then CRC.
func Decode(raw []byte) (*ApplicationDataUnit, error) {
	if len(raw) < MinSize {
		return nil, fmt.Errorf("modbus: frame length %d below minimum %d", len(raw), MinSize)
	}
	if len(raw) > MaxSize {
		return nil, fmt.Errorf("modbus: frame length %d above maximum %d", len(raw), MaxSize)
	}
	if !crc.Verify(raw) {
		return nil, fmt.Errorf("modbus: crc mismatch")
	}
	return &ApplicationDataUnit{
		Address: raw[0],
		PDU: modbus.ProtocolDataUnit{
			FunctionCode: raw[1],
			Data:         raw[2 : len(raw)-2],
		},
	}, nil
}

// Encode serializes the ADU as address, function code, data, crc(low,
// high).
func (adu *ApplicationDataUnit) Encode() ([]byte, error) {
	length := 2 + len(adu.PDU.Data) + 2
	if length > MaxSize {
		return nil, fmt.Errorf("modbus: encoded length %d exceeds maximum %d", length, MaxSize)
	}
	raw := make([]byte, 0, length)
	raw = append(raw, adu.Address, adu.PDU.FunctionCode)
	raw = append(raw, adu.PDU.Data...)
	raw = ImplaceCRC(raw)
	return raw, nil
}

// ImplaceCRC computes the CRC-16/Modbus over body and appends the
// trailer (low byte, then high byte).
func ImplaceCRC(body []byte) []byte {
	return crc.Encode(body, crc.Checksum(body))
}

// FindException reports whether raw is an exception reply: exactly
// ExceptionSize bytes with a valid CRC. It returns the exception code
// and true on success.
func FindException(raw []byte) (ecode byte, ok bool) {
	if len(raw) != ExceptionSize {
		return 0, false
	}
	if !crc.Verify(raw) {
		return 0, false
	}
	if raw[1]&modbus.ExceptionBit == 0 {
		return 0, false
	}
	return raw[2], true
}
