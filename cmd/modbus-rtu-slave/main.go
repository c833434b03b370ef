// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Command modbus-rtu-slave is a hosted Modbus RTU slave serving the
// reference byte-addressable memory, wired to a real serial port.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/serialmodbus/rtu/memslave"
	"github.com/serialmodbus/rtu/memslave/persistence"
	"github.com/serialmodbus/rtu/rtuserver"
	"github.com/serialmodbus/rtu/rtuserver/hostdriver"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel, cfg.LogFile)
	logger := slog.Default()

	if cfg.SetAddr >= 0 {
		if err := writeAddrFile(cfg, byte(cfg.SetAddr)); err != nil {
			logger.Error("Failed to persist slave address", "err", err)
			os.Exit(1)
		}
		logger.Info("Persisted slave address", "addr", cfg.SetAddr, "addr_file", cfg.AddrFile)
		return
	}

	addr, err := resolveAddr(cfg)
	if err != nil {
		logger.Error("Failed to resolve slave address", "err", err)
		os.Exit(1)
	}

	storage, err := buildStorage(cfg)
	if err != nil {
		logger.Error("Failed to build storage backend", "err", err)
		os.Exit(1)
	}

	slave, err := memslave.New(addr, uint16(cfg.MemBegin), uint16(cfg.MemEnd), storage, logger)
	if err != nil {
		logger.Error("Failed to construct memory slave", "err", err)
		os.Exit(1)
	}

	driver, err := hostdriver.Open(hostdriver.Config{
		Device:       cfg.Device,
		BaudRate:     cfg.BaudRate,
		DataBits:     cfg.DataBits,
		StopBits:     cfg.StopBits,
		Parity:       cfg.Parity,
		T1T5Override: time.Duration(cfg.T1T5Micros) * time.Microsecond,
		T3T5Override: time.Duration(cfg.T3T5Micros) * time.Microsecond,
		DebugFrames:  cfg.DebugBuffer,
	}, logger)
	if err != nil {
		logger.Error("Failed to open serial port", "device", cfg.Device, "err", err)
		os.Exit(1)
	}

	engine := rtuserver.New(addr, driver, slave, logger)
	driver.BindEngine(engine)
	engine.Start()

	logger.Info("Starting Modbus RTU slave...", "addr", addr, "device", cfg.Device, "baud", cfg.BaudRate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- driver.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("Shutting down...")
		cancel()
		// Closing the port surrenders the driver's blocking read.
		driver.Close()
		<-runErr
	case err := <-runErr:
		driver.Close()
		if err != nil && ctx.Err() == nil {
			logger.Error("Serial driver stopped with error", "err", err)
			os.Exit(1)
		}
	}

	if err := storage.Close(); err != nil {
		logger.Warn("Failed to close storage backend", "err", err)
	}
	logger.Info("Goodbye.")
}

// resolveAddr returns the slave address from --addr_file if set,
// falling back to cfg.Addr.
func resolveAddr(cfg *Config) (byte, error) {
	if cfg.AddrFile == "" {
		return byte(cfg.Addr), nil
	}
	data, err := os.ReadFile(cfg.AddrFile)
	if err != nil {
		if os.IsNotExist(err) {
			return byte(cfg.Addr), nil
		}
		return 0, fmt.Errorf("read addr-file %s: %w", cfg.AddrFile, err)
	}
	if len(data) < 1 {
		return 0, fmt.Errorf("addr-file %s is empty", cfg.AddrFile)
	}
	return data[0], nil
}

// writeAddrFile persists addr as the single byte of cfg.AddrFile,
// backing the --set_addr one-shot CLI request.
func writeAddrFile(cfg *Config, addr byte) error {
	if cfg.AddrFile == "" {
		return fmt.Errorf("set_addr requires --addr_file to be set")
	}
	return os.WriteFile(cfg.AddrFile, []byte{addr}, 0644)
}

func buildStorage(cfg *Config) (persistence.Storage, error) {
	size := cfg.MemEnd - cfg.MemBegin
	switch cfg.Storage {
	case "memory", "":
		return persistence.NewMemoryStorage(size), nil
	case "file":
		if cfg.StorageFile == "" {
			return nil, fmt.Errorf("storage=file requires storage_file")
		}
		return persistence.NewFileStorage(cfg.StorageFile, size, slog.Default()), nil
	case "mmap":
		if cfg.StorageFile == "" {
			return nil, fmt.Errorf("storage=mmap requires storage_file")
		}
		return persistence.NewMmapStorage(cfg.StorageFile, size, slog.Default()), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

func setupLogger(level, file string) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if file != "" && file != "-" {
		f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
