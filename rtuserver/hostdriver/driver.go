// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package hostdriver

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/grid-x/serial"
	"github.com/serialmodbus/rtu/modbus/rtu"
)

// Config describes the UART to open, mirroring the fields grid-x/serial
// itself exposes. T1T5Override/T3T5Override, when nonzero, replace the
// baud-derived silent-interval durations; leave them zero to derive
// from BaudRate.
type Config struct {
	Device   string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string // "N", "E" or "O"

	T1T5Override time.Duration
	T3T5Override time.Duration

	// DebugFrames logs every received read chunk and every transmitted
	// frame at debug level, matching the reference runner's -D flag.
	DebugFrames bool
}

// Driver is a rtuserver.Driver for a real UART: time.Timer-backed
// 1.5t/3.5t timers and a grid-x/serial port. Engine is wired in after
// construction with BindEngine, since the Engine itself needs a
// Driver to be built first.
type Driver struct {
	*timer

	port   io.ReadWriteCloser
	logger *slog.Logger
	engine engineFeeder
	debug  bool
}

// engineFeeder is the slice of *rtuserver.Engine the driver needs; kept
// as an interface here so this package does not import rtuserver for
// more than is necessary, and so tests can substitute a fake.
type engineFeeder interface {
	Feed(byte)
	FeedError()
	TimerFired()
}

// Open opens the configured serial port and returns a Driver ready to
// be bound to an Engine.
func Open(cfg Config, logger *slog.Logger) (*Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
	})
	if err != nil {
		return nil, fmt.Errorf("hostdriver: open %s: %w", cfg.Device, err)
	}
	t1t5, t3t5 := T1T5(cfg.BaudRate), T3T5(cfg.BaudRate)
	if cfg.T1T5Override > 0 {
		t1t5 = cfg.T1T5Override
	}
	if cfg.T3T5Override > 0 {
		t3t5 = cfg.T3T5Override
	}
	d := &Driver{port: port, logger: logger, debug: cfg.DebugFrames}
	d.timer = newTimer(t1t5, t3t5, d.fireTimer)
	return d, nil
}

// BindEngine wires the driver to the engine it serves. Must be called
// once, before Run.
func (d *Driver) BindEngine(e engineFeeder) {
	d.engine = e
}

func (d *Driver) fireTimer() {
	if d.engine != nil {
		d.engine.TimerFired()
	}
}

// Send implements rtuserver.Driver: write frame to the wire and invoke
// done once transmission completes. The caller (Engine.processADU) is
// still on the stack inside a locked Engine call when Send is invoked,
// so the write and the done/FeedError callback run on a goroutine of
// their own: grid-x/serial's Write is synchronous, but calling back
// into the engine from the same goroutine that is already inside one
// of its locked methods would deadlock on its non-reentrant mutex. A
// partial write is reported as a serial receive error on the next
// event so the engine recovers instead of hanging in BUSY.
func (d *Driver) Send(frame []byte, done func()) {
	if d.debug {
		d.logger.Debug("hostdriver: tx", "frame", hex.EncodeToString(frame))
	}
	go func() {
		n, err := d.port.Write(frame)
		if err != nil || n != len(frame) {
			d.logger.Error("hostdriver: short or failed write", "wrote", n, "want", len(frame), "err", err)
			d.engine.FeedError()
			return
		}
		done()
	}()
}

// Run reads bytes from the serial port and feeds them to the bound
// engine until ctx is cancelled or the port returns a fatal error. It
// blocks and is meant to run in its own goroutine.
func (d *Driver) Run(ctx context.Context) error {
	buf := make([]byte, rtu.MaxSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := d.port.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Warn("hostdriver: serial read error", "err", err)
			d.engine.FeedError()
			continue
		}
		if d.debug {
			d.logger.Debug("hostdriver: rx", "frame", hex.EncodeToString(buf[:n]))
		}
		for i := 0; i < n; i++ {
			d.engine.Feed(buf[i])
		}
	}
}

// Close releases the underlying serial port.
func (d *Driver) Close() error {
	return d.port.Close()
}
