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

// Package super holds the on-disk layout: block 0 reserved, block 1 the
// superblock, then the log, then the inode array, then the bitmap, then
// data blocks. It is read once per device at mount time and is constant
// thereafter.
package super

import (
	"encoding/binary"
	"fmt"

	"github.com/GoogleCloudPlatform/tinyfs/internal/bcache"
	"github.com/GoogleCloudPlatform/tinyfs/params"
)

const (
	bootBlock = 0
	sbBlock   = 1
)

// Superblock is read once per device at init and constant after mount.
type Superblock struct {
	Size       uint32 // total number of blocks on the device
	NBlocks    uint32 // number of data blocks
	NInodes    uint32 // number of inode slots
	NLog       uint32 // number of log data blocks (excludes the log header)
	LogStart   uint32 // block number of the log header
	InodeStart uint32 // block number of the first inode block
	BmapStart  uint32 // block number of the first bitmap block
	DataStart  uint32 // block number of the first data block
}

// Format computes the layout for a device of size blocks with ninodes
// inode slots, writes the superblock, and zeroes the inode and bitmap
// regions. It does not zero data blocks; those are zeroed lazily by balloc.
func Format(cache *bcache.Cache, size, ninodes uint32) (*Superblock, error) {
	inodeBlocks := (ninodes + params.IPB - 1) / params.IPB
	logStart := uint32(sbBlock + 1)
	nlog := uint32(params.LOGSIZE)
	inodeStart := logStart + 1 + nlog
	dataBlocksGuess := size - inodeStart - inodeBlocks
	bmapBlocks := (dataBlocksGuess + params.BPB - 1) / params.BPB
	bmapStart := inodeStart + inodeBlocks
	dataStart := bmapStart + bmapBlocks
	if dataStart >= size {
		return nil, fmt.Errorf("super: device of %d blocks too small for %d inodes", size, ninodes)
	}

	sb := &Superblock{
		Size:       size,
		NBlocks:    size - dataStart,
		NInodes:    ninodes,
		NLog:       nlog,
		LogStart:   logStart,
		InodeStart: inodeStart,
		BmapStart:  bmapStart,
		DataStart:  dataStart,
	}

	if err := sb.write(cache); err != nil {
		return nil, err
	}
	if err := zeroRange(cache, inodeStart, inodeBlocks); err != nil {
		return nil, err
	}
	if err := zeroRange(cache, bmapStart, bmapBlocks); err != nil {
		return nil, err
	}
	return sb, nil
}

// Read loads the superblock written by Format.
func Read(cache *bcache.Cache) (*Superblock, error) {
	buf, err := cache.Get(sbBlock)
	if err != nil {
		return nil, fmt.Errorf("super: read superblock: %w", err)
	}
	defer cache.Release(buf)

	sb := &Superblock{}
	fields := []*uint32{
		&sb.Size, &sb.NBlocks, &sb.NInodes, &sb.NLog,
		&sb.LogStart, &sb.InodeStart, &sb.BmapStart, &sb.DataStart,
	}
	for i, f := range fields {
		*f = binary.LittleEndian.Uint32(buf.Data[4*i : 4*i+4])
	}
	if sb.Size == 0 {
		return nil, fmt.Errorf("super: device has not been formatted")
	}
	return sb, nil
}

func (sb *Superblock) write(cache *bcache.Cache) error {
	buf, err := cache.Get(sbBlock)
	if err != nil {
		return fmt.Errorf("super: write superblock: %w", err)
	}
	defer cache.Release(buf)

	fields := []uint32{
		sb.Size, sb.NBlocks, sb.NInodes, sb.NLog,
		sb.LogStart, sb.InodeStart, sb.BmapStart, sb.DataStart,
	}
	for i, v := range fields {
		binary.LittleEndian.PutUint32(buf.Data[4*i:4*i+4], v)
	}
	return cache.WriteThrough(buf)
}

// IBlock returns the block number holding inode inum.
func (sb *Superblock) IBlock(inum uint32) uint32 {
	return sb.InodeStart + inum/params.IPB
}

// BBlock returns the bitmap block number covering data block b.
func (sb *Superblock) BBlock(b uint32) uint32 {
	return sb.BmapStart + b/params.BPB
}

func zeroRange(cache *bcache.Cache, start, n uint32) error {
	for i := uint32(0); i < n; i++ {
		buf, err := cache.Get(start + i)
		if err != nil {
			return err
		}
		for j := range buf.Data {
			buf.Data[j] = 0
		}
		err = cache.WriteThrough(buf)
		cache.Release(buf)
		if err != nil {
			return err
		}
	}
	return nil
}
