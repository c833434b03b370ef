// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"
)

// MmapStorage persists the region as a memory-mapped file: writes hit
// the page cache immediately and OnWrite only has to ask the kernel to
// flush those pages, instead of rewriting the whole region like
// FileStorage does.
type MmapStorage struct {
	path   string
	size   int
	file   *os.File
	region mmap.MMap
	logger *slog.Logger
}

// NewMmapStorage returns a Storage backed by a memory-mapped file at
// path, created and sized to size bytes if necessary.
func NewMmapStorage(path string, size int, logger *slog.Logger) *MmapStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &MmapStorage{path: path, size: size, logger: logger}
}

func (ms *MmapStorage) Load() ([]byte, error) {
	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", ms.path, err)
	}
	ms.file = f

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(ms.size) {
		if err := f.Truncate(int64(ms.size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("persistence: resize %s: %w", ms.path, err)
		}
	}

	region, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("persistence: mmap %s: %w", ms.path, err)
	}
	ms.region = region
	return ms.region, nil
}

func (ms *MmapStorage) OnWrite(offset uint16, length int) {
	if err := ms.Save(); err != nil {
		ms.logger.Error("persistence: msync after write failed", "err", err)
	}
}

// Save requests a synchronous flush of the mapped pages to disk.
func (ms *MmapStorage) Save() error {
	if ms.region == nil {
		return nil
	}
	if err := ms.region.Flush(); err != nil {
		return fmt.Errorf("persistence: msync %s: %w", ms.path, err)
	}
	return nil
}

func (ms *MmapStorage) Close() error {
	if ms.region != nil {
		if err := ms.region.Unmap(); err != nil {
			ms.logger.Error("persistence: munmap failed", "err", err)
		}
		ms.region = nil
	}
	if ms.file != nil {
		err := ms.file.Close()
		ms.file = nil
		return err
	}
	return nil
}
