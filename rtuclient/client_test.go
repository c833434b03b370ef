// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuclient

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/serialmodbus/rtu/modbus"
	"github.com/serialmodbus/rtu/modbus/rtu"
)

func newClientOverPipe(t *testing.T, timeout time.Duration) (*Client, net.Conn) {
	t.Helper()
	clientSide, slaveSide := net.Pipe()
	c := &Client{cfg: Config{BaudRate: 19200, Timeout: timeout}, port: clientSide, logger: slog.Default()}
	t.Cleanup(func() {
		clientSide.Close()
		slaveSide.Close()
	})
	return c, slaveSide
}

// readFrame reads one RTU request frame off conn by parsing just
// enough of it to know its total length, mirroring what a real slave
// would do byte by byte.
func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	var payloadLen int
	switch header[1] {
	case modbus.FuncCodeRdHoldingRegisters, modbus.FuncCodeRdCoils, modbus.FuncCodeRdInputs, modbus.FuncCodeRdInputRegisters:
		payloadLen = 4
	case modbus.FuncCodeWrRegister, modbus.FuncCodeWrCoil:
		payloadLen = 4
	case modbus.FuncCodeRdBytes:
		payloadLen = 3
	case modbus.FuncCodeWrBytes:
		// addr(2) + num(1) + num data bytes; peek num after reading 3 more.
		rest := make([]byte, 3)
		if _, err := io.ReadFull(conn, rest); err != nil {
			t.Fatalf("read wr_bytes header: %v", err)
		}
		num := int(rest[2])
		data := make([]byte, num+2)
		if _, err := io.ReadFull(conn, data); err != nil {
			t.Fatalf("read wr_bytes body: %v", err)
		}
		return append(append(header, rest...), data...)
	default:
		t.Fatalf("unhandled function code %#02x in test helper", header[1])
	}
	rest := make([]byte, payloadLen+2)
	if _, err := io.ReadFull(conn, rest); err != nil {
		t.Fatalf("read rest: %v", err)
	}
	return append(header, rest...)
}

// TestSendReadHoldingRegisters exercises the happy path for a read
// reply whose length byte immediately follows the function code.
func TestSendReadHoldingRegisters(t *testing.T) {
	c, slave := newClientOverPipe(t, time.Second)

	done := make(chan struct{})
	go func() {
		defer close(done)
		readFrame(t, slave)
		reply := rtu.ImplaceCRC([]byte{0xAA, modbus.FuncCodeRdHoldingRegisters, 4, 0x00, 0x01, 0x00, 0x02})
		if _, err := slave.Write(reply); err != nil {
			t.Errorf("write reply: %v", err)
		}
	}()

	req := modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeRdHoldingRegisters, Data: []byte{0x00, 0x00, 0x00, 0x02}}
	reply, err := c.Send(context.Background(), 0xAA, req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := []byte{4, 0x00, 0x01, 0x00, 0x02}
	if string(reply.Data) != string(want) {
		t.Fatalf("reply.Data = % x, want % x", reply.Data, want)
	}
	<-done
}

// TestSendReadBytes exercises the RdBytes framing path, whose reply
// carries an echoed address before the length byte.
func TestSendReadBytes(t *testing.T) {
	c, slave := newClientOverPipe(t, time.Second)

	done := make(chan struct{})
	go func() {
		defer close(done)
		readFrame(t, slave)
		reply := rtu.ImplaceCRC([]byte{0xAA, modbus.FuncCodeRdBytes, 0x00, 0x10, 3, 0x01, 0x02, 0x03})
		if _, err := slave.Write(reply); err != nil {
			t.Errorf("write reply: %v", err)
		}
	}()

	req := modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeRdBytes, Data: []byte{0x00, 0x10, 3}}
	reply, err := c.Send(context.Background(), 0xAA, req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := []byte{0x00, 0x10, 3, 0x01, 0x02, 0x03}
	if string(reply.Data) != string(want) {
		t.Fatalf("reply.Data = % x, want % x", reply.Data, want)
	}
	<-done
}

// TestSendWriteRegisterEcho exercises a fixed-length echo reply.
func TestSendWriteRegisterEcho(t *testing.T) {
	c, slave := newClientOverPipe(t, time.Second)

	done := make(chan struct{})
	go func() {
		defer close(done)
		readFrame(t, slave)
		reply := rtu.ImplaceCRC([]byte{0xAA, modbus.FuncCodeWrRegister, 0x00, 0x20, 0x00, 0xAB})
		if _, err := slave.Write(reply); err != nil {
			t.Errorf("write reply: %v", err)
		}
	}()

	req := modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeWrRegister, Data: []byte{0x00, 0x20, 0x00, 0xAB}}
	reply, err := c.Send(context.Background(), 0xAA, req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(reply.Data) != string(req.Data) {
		t.Fatalf("reply.Data = % x, want echo % x", reply.Data, req.Data)
	}
	<-done
}

// TestSendExceptionReply verifies an exception reply is surfaced as a
// *modbus.Exception error rather than folded into the returned PDU.
func TestSendExceptionReply(t *testing.T) {
	c, slave := newClientOverPipe(t, time.Second)

	done := make(chan struct{})
	go func() {
		defer close(done)
		readFrame(t, slave)
		reply := rtu.ImplaceCRC([]byte{0xAA, modbus.FuncCodeRdHoldingRegisters | 0x80, modbus.ExcIllegalDataAddress})
		if _, err := slave.Write(reply); err != nil {
			t.Errorf("write reply: %v", err)
		}
	}()

	req := modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeRdHoldingRegisters, Data: []byte{0xFF, 0xFF, 0x00, 0x01}}
	_, err := c.Send(context.Background(), 0xAA, req)
	if err == nil {
		t.Fatalf("expected an exception error")
	}
	exc, ok := err.(*modbus.Exception)
	if !ok {
		t.Fatalf("err = %v (%T), want *modbus.Exception", err, err)
	}
	if exc.Code != modbus.ExcIllegalDataAddress {
		t.Fatalf("exception code = %#02x, want %#02x", exc.Code, modbus.ExcIllegalDataAddress)
	}
	<-done
}

// TestSendTimesOut confirms a silent slave yields ErrRequestTimedOut
// rather than blocking forever.
func TestSendTimesOut(t *testing.T) {
	c, slave := newClientOverPipe(t, 50*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		readFrame(t, slave) // read the request, never reply
	}()

	req := modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeRdHoldingRegisters, Data: []byte{0x00, 0x00, 0x00, 0x01}}
	_, err := c.Send(context.Background(), 0xAA, req)
	if err != ErrRequestTimedOut {
		t.Fatalf("err = %v, want ErrRequestTimedOut", err)
	}
	<-done
}
