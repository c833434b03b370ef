// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full set of settings a hosted RTU slave needs: no TCP
// or gateway fields, since bridging RTU to TCP is out of scope.
type Config struct {
	Addr     int    `mapstructure:"addr"`
	AddrFile string `mapstructure:"addr_file"`

	Device   string `mapstructure:"device"`
	BaudRate int    `mapstructure:"baud_rate"`
	DataBits int    `mapstructure:"data_bits"`
	StopBits int    `mapstructure:"stop_bits"`
	Parity   string `mapstructure:"parity"`

	T1T5Micros int64 `mapstructure:"t1t5_micros"` // 0 means derive from baud_rate
	T3T5Micros int64 `mapstructure:"t3t5_micros"`

	MemBegin    int    `mapstructure:"mem_begin"`
	MemEnd      int    `mapstructure:"mem_end"`
	Storage     string `mapstructure:"storage"` // "memory", "file", "mmap"
	StorageFile string `mapstructure:"storage_file"`

	DebugBuffer bool `mapstructure:"debug_buffer"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	ConfigFile string `mapstructure:"-"`

	// SetAddr is a one-shot CLI-only request to persist a new slave
	// address to AddrFile and exit, not part of the layered config.
	SetAddr int `mapstructure:"-"`
}

// LoadConfig loads configuration from defaults, an optional config
// file and the command line, in that layering order.
func LoadConfig() (*Config, error) {
	viper.SetDefault("addr", 0xAA)
	viper.SetDefault("addr_file", "")
	viper.SetDefault("device", "/tmp/pts1")
	viper.SetDefault("baud_rate", 19200)
	viper.SetDefault("data_bits", 8)
	viper.SetDefault("stop_bits", 1)
	viper.SetDefault("parity", "E")
	viper.SetDefault("t1t5_micros", 0)
	viper.SetDefault("t3t5_micros", 0)
	viper.SetDefault("mem_begin", 0)
	viper.SetDefault("mem_end", 256)
	viper.SetDefault("storage", "memory")
	viper.SetDefault("storage_file", "")
	viper.SetDefault("debug_buffer", false)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_file", "")

	pflag.StringP("config", "c", "", "Configuration file path.")
	pflag.IntP("addr", "a", viper.GetInt("addr"), "Slave address (1-247).")
	pflag.String("addr_file", viper.GetString("addr_file"), "Path to a one-byte file holding a persisted slave address.")
	pflag.StringP("device", "d", viper.GetString("device"), "Serial port device name.")
	pflag.IntP("baud_rate", "r", viper.GetInt("baud_rate"), "Serial port speed.")
	pflag.StringP("parity", "p", viper.GetString("parity"), "Serial parity (N, E, O).")
	pflag.Int64P("t1t5_micros", "t", viper.GetInt64("t1t5_micros"), "1.5 character silent interval override, in microseconds (0 derives from baud_rate).")
	pflag.Int64P("t3t5_micros", "T", viper.GetInt64("t3t5_micros"), "3.5 character silent interval override, in microseconds (0 derives from baud_rate).")
	pflag.BoolP("debug_buffer", "D", viper.GetBool("debug_buffer"), "Log every received/sent frame at debug level.")
	pflag.Int("mem_begin", viper.GetInt("mem_begin"), "First byte address served by the reference memory slave.")
	pflag.Int("mem_end", viper.GetInt("mem_end"), "One past the last byte address served by the reference memory slave.")
	pflag.String("storage", viper.GetString("storage"), "Memory slave persistence backend (memory, file, mmap).")
	pflag.String("storage_file", viper.GetString("storage_file"), "Backing file path for the file/mmap storage backends.")
	pflag.StringP("log_level", "v", viper.GetString("log_level"), "Log verbosity level (debug, info, warn, error).")
	pflag.StringP("log_file", "L", viper.GetString("log_file"), "Log file path ('-' or empty for STDOUT).")
	pflag.Int("set_addr", -1, "Write this slave address to addr_file and exit, instead of starting the slave.")
	pflag.Parse()

	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		return nil, fmt.Errorf("failed to bind pflags: %w", err)
	}

	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/modbusrtu/")
		viper.AddConfigPath("$HOME/.modbusrtu")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Parity = strings.ToUpper(cfg.Parity)
	cfg.ConfigFile = configFile
	cfg.SetAddr = viper.GetInt("set_addr")
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	switch cfg.BaudRate {
	case 1200, 2400, 4800, 9600, 19200, 57600, 115200:
	default:
		return fmt.Errorf("unsupported baud rate %d", cfg.BaudRate)
	}
	switch cfg.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("unsupported parity %q (want N, E or O)", cfg.Parity)
	}
	if cfg.Device == "" {
		return fmt.Errorf("device must not be empty")
	}
	if cfg.Addr < 1 || cfg.Addr > 247 {
		return fmt.Errorf("slave address %d outside the unicast range 1-247", cfg.Addr)
	}
	if cfg.MemBegin < 0 || cfg.MemEnd > 0x10000 || cfg.MemEnd <= cfg.MemBegin {
		return fmt.Errorf("invalid memory region [%d, %d)", cfg.MemBegin, cfg.MemEnd)
	}
	return nil
}
