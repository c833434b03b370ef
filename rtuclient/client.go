// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtuclient is the master side of the RTU line: it frames a
// request, paces its send according to the same baud-derived silent
// intervals the slave side waits on, and reads back exactly as many
// bytes as the function code promises.
package rtuclient

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grid-x/serial"
	"github.com/serialmodbus/rtu/modbus"
	"github.com/serialmodbus/rtu/modbus/rtu"
)

// ErrRequestTimedOut is returned when a reply is not received within
// the client's configured timeout.
var ErrRequestTimedOut = errors.New("rtuclient: request timed out")

// Config describes the serial port a Client opens.
type Config struct {
	Device   string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
	Timeout  time.Duration
}

// Client is a Modbus RTU master bound to a single serial port. One
// Client serializes all requests: the bus is half-duplex, so only one
// request may be outstanding at a time.
type Client struct {
	mu     sync.Mutex
	cfg    Config
	port   io.ReadWriteCloser
	logger *slog.Logger
}

// Open opens the serial port described by cfg.
func Open(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("rtuclient: open %s: %w", cfg.Device, err)
	}
	return &Client{cfg: cfg, port: port, logger: logger}, nil
}

// Close releases the underlying serial port.
func (c *Client) Close() error {
	return c.port.Close()
}

// Send transmits a request frame for addr and returns the decoded
// reply PDU. An exception reply is returned as a *modbus.Exception
// error, not folded into the PDU.
func (c *Client) Send(ctx context.Context, addr byte, request modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	body := make([]byte, 0, 2+len(request.Data))
	body = append(body, addr, request.FunctionCode)
	body = append(body, request.Data...)
	frame := rtu.ImplaceCRC(body)

	c.logger.Debug("rtuclient: send", "frame", hex.EncodeToString(frame))
	if _, err := c.port.Write(frame); err != nil {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("rtuclient: write: %w", err)
	}

	delay := c.turnaroundDelay(len(frame))
	select {
	case <-ctx.Done():
		return modbus.ProtocolDataUnit{}, ctx.Err()
	case <-time.After(delay):
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	raw, err := readReply(c.port, addr, request.FunctionCode, deadline)
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	c.logger.Debug("rtuclient: recv", "frame", hex.EncodeToString(raw))

	adu, err := rtu.Decode(raw)
	if err != nil {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("rtuclient: decode reply: %w", err)
	}
	if adu.PDU.IsException() {
		if len(adu.PDU.Data) < 1 {
			return modbus.ProtocolDataUnit{}, fmt.Errorf("rtuclient: truncated exception reply")
		}
		return modbus.ProtocolDataUnit{}, &modbus.Exception{
			FunctionCode: adu.PDU.FunctionCode &^ modbus.ExceptionBit,
			Code:         adu.PDU.Data[0],
		}
	}
	return adu.PDU, nil
}

// turnaroundDelay mirrors the baud-derived silent-interval formulas:
// 1.5 character times per byte already on the wire plus one 3.5
// character-time frame gap before the slave is guaranteed to answer.
func (c *Client) turnaroundDelay(frameLen int) time.Duration {
	var charMicros, frameMicros int64
	if c.cfg.BaudRate <= 0 || c.cfg.BaudRate >= 19200 {
		charMicros, frameMicros = 750, 1750
	} else {
		charMicros = 8_250_000 / int64(c.cfg.BaudRate)
		frameMicros = 19_250_000 / int64(c.cfg.BaudRate)
	}
	return time.Duration(charMicros*int64(frameLen)+frameMicros) * time.Microsecond
}

const (
	readPhaseAddr = iota
	readPhaseFunc
	readPhaseSkip
	readPhaseLen
	readPhasePayload
	readPhaseCRC
)

// readReply reads exactly one ADU addressed from addr answering
// function, tolerating an exception reply (function|0x80) in its
// place. It blocks a byte at a time until the frame is complete or
// the deadline passes. A reader with SetReadDeadline has the deadline
// applied to each blocking read; any other reader is only checked
// against the deadline between reads.
func readReply(r io.Reader, addr, function byte, deadline time.Time) ([]byte, error) {
	buf := make([]byte, 1)
	data := make([]byte, 0, rtu.MaxSize)

	phase := readPhaseAddr
	var remaining, skip int
	var crcSeen int

	if d, ok := r.(interface{ SetReadDeadline(time.Time) error }); ok {
		_ = d.SetReadDeadline(deadline)
		defer d.SetReadDeadline(time.Time{})
	}

	for {
		if time.Now().After(deadline) {
			return nil, ErrRequestTimedOut
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			var te interface{ Timeout() bool }
			if (errors.As(err, &te) && te.Timeout()) || time.Now().After(deadline) {
				return nil, ErrRequestTimedOut
			}
			return nil, err
		}
		b := buf[0]

		switch phase {
		case readPhaseAddr:
			if b != addr {
				continue
			}
			data = append(data, b)
			phase = readPhaseFunc
		case readPhaseFunc:
			data = append(data, b)
			switch {
			case b == function:
				remaining, skip = fixedReplyPayload(function)
				switch {
				case skip > 0:
					phase = readPhaseSkip
				case remaining < 0:
					phase = readPhaseLen
				default:
					phase = readPhasePayload
				}
			case b == function|modbus.ExceptionBit:
				remaining = 1 // exception code
				phase = readPhasePayload
			default:
				return nil, fmt.Errorf("rtuclient: unexpected function code %#02x in reply", b)
			}
		case readPhaseSkip:
			data = append(data, b)
			skip--
			if skip == 0 {
				phase = readPhaseLen
			}
		case readPhaseLen:
			data = append(data, b)
			remaining = int(b)
			if remaining == 0 {
				phase = readPhaseCRC
			} else {
				phase = readPhasePayload
			}
		case readPhasePayload:
			data = append(data, b)
			remaining--
			if remaining == 0 {
				phase = readPhaseCRC
			}
		case readPhaseCRC:
			data = append(data, b)
			crcSeen++
			if crcSeen == 2 {
				return data, nil
			}
		}
	}
}

// fixedReplyPayload returns the number of payload bytes (after the
// function code, before the CRC) a reply for function carries when
// that count is fixed by the function code alone (remaining >= 0,
// skip == 0); otherwise skip reports how many header bytes (e.g. an
// echoed address) precede the length byte that remaining must then be
// read from (remaining == -1).
func fixedReplyPayload(function byte) (remaining, skip int) {
	switch function {
	case modbus.FuncCodeRdCoils, modbus.FuncCodeRdInputs,
		modbus.FuncCodeRdHoldingRegisters, modbus.FuncCodeRdInputRegisters:
		return -1, 0 // byte count field follows immediately
	case modbus.FuncCodeWrCoil, modbus.FuncCodeWrRegister:
		return 4, 0 // addr(2) + data(2)
	case modbus.FuncCodeWrRegisters:
		return 4, 0 // addr(2) + count(2)
	case modbus.FuncCodeRdBytes:
		return -1, 2 // addr(2), then a num(1) length byte
	case modbus.FuncCodeWrBytes:
		return 3, 0 // addr(2) + num(1)
	default:
		return -1, 0
	}
}
