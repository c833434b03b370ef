// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// FileStorage persists the region as a plain file, read fully into
// memory on Load and rewritten on every OnWrite. Simple and portable,
// at the cost of a full-file write on every mutation.
type FileStorage struct {
	path   string
	size   int
	file   *os.File
	data   []byte
	logger *slog.Logger
}

// NewFileStorage returns a Storage backed by the file at path, created
// and zero-padded to size bytes if it does not already exist.
func NewFileStorage(path string, size int, logger *slog.Logger) *FileStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStorage{path: path, size: size, logger: logger}
}

func (fs *FileStorage) Load() ([]byte, error) {
	f, err := os.OpenFile(fs.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", fs.path, err)
	}
	fs.file = f

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(fs.size) {
		if err := f.Truncate(int64(fs.size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("persistence: resize %s: %w", fs.path, err)
		}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(f, int64(fs.size)))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("persistence: read %s: %w", fs.path, err)
	}
	if len(data) < fs.size {
		data = append(data, make([]byte, fs.size-len(data))...)
	}
	fs.data = data
	return fs.data, nil
}

func (fs *FileStorage) OnWrite(offset uint16, length int) {
	if err := fs.Save(); err != nil {
		fs.logger.Error("persistence: sync after write failed", "err", err)
	}
}

func (fs *FileStorage) Save() error {
	if fs.data == nil || fs.file == nil {
		return nil
	}
	if _, err := fs.file.WriteAt(fs.data, 0); err != nil {
		return fmt.Errorf("persistence: write %s: %w", fs.path, err)
	}
	return fs.file.Sync()
}

func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
