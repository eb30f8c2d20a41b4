// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package blockdev is the lowest external collaborator: a flat file
// standing in for the physical disk. Everything above it
// (bcache, txlog, and all filesystem layers) only ever reads or writes
// whole BSIZE-byte blocks through this package.
package blockdev

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/GoogleCloudPlatform/tinyfs/params"
)

// Device is a fixed-size, block-addressable backing store.
type Device struct {
	f      *os.File
	nblock uint32
}

// Create formats a new backing file of exactly nblock blocks, all zeroed,
// and returns it open for use.
func Create(path string, nblock uint32) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockdev: create %s: %w", path, err)
	}

	if err := f.Truncate(int64(nblock) * params.BSIZE); err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: truncate %s: %w", path, err)
	}

	return &Device{f: f, nblock: nblock}, nil
}

// Open opens an existing backing file, trusting the caller to have
// recorded its block count in the superblock.
func Open(path string, nblock uint32) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %s: %w", path, err)
	}
	return &Device{f: f, nblock: nblock}, nil
}

// NBlock reports the device's fixed block count.
func (d *Device) NBlock() uint32 { return d.nblock }

// ReadBlock fills dst (which must be exactly params.BSIZE bytes) with the
// contents of block b.
func (d *Device) ReadBlock(b uint32, dst []byte) error {
	if err := d.checkBounds(b, len(dst)); err != nil {
		return err
	}
	n, err := unix.Pread(int(d.f.Fd()), dst, int64(b)*params.BSIZE)
	if err != nil {
		return fmt.Errorf("blockdev: pread block %d: %w", b, err)
	}
	if n != params.BSIZE {
		return fmt.Errorf("blockdev: short read on block %d: got %d bytes", b, n)
	}
	return nil
}

// WriteBlock writes src (exactly params.BSIZE bytes) to block b.
func (d *Device) WriteBlock(b uint32, src []byte) error {
	if err := d.checkBounds(b, len(src)); err != nil {
		return err
	}
	n, err := unix.Pwrite(int(d.f.Fd()), src, int64(b)*params.BSIZE)
	if err != nil {
		return fmt.Errorf("blockdev: pwrite block %d: %w", b, err)
	}
	if n != params.BSIZE {
		return fmt.Errorf("blockdev: short write on block %d: wrote %d bytes", b, n)
	}
	return nil
}

// Sync flushes the backing file to stable storage. Package mount calls
// this when a filesystem is closed.
func (d *Device) Sync() error {
	return d.f.Sync()
}

// Close releases the backing file.
func (d *Device) Close() error {
	return d.f.Close()
}

func (d *Device) checkBounds(b uint32, n int) error {
	if n != params.BSIZE {
		return fmt.Errorf("blockdev: buffer size %d != block size %d", n, params.BSIZE)
	}
	if b >= d.nblock {
		return fmt.Errorf("blockdev: block %d out of range [0, %d)", b, d.nblock)
	}
	return nil
}
