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

// Package balloc is the free-block allocator: it serves unique zeroed
// block numbers from a bitmap, one bit per data block, and
// every mutation it makes travels through the caller's already-open
// transaction (the caller must have called txlog.Log.Begin first).
package balloc

import (
	"fmt"

	"github.com/GoogleCloudPlatform/tinyfs/internal/bcache"
	"github.com/GoogleCloudPlatform/tinyfs/internal/logger"
	"github.com/GoogleCloudPlatform/tinyfs/internal/txlog"
	"github.com/GoogleCloudPlatform/tinyfs/params"
	"github.com/GoogleCloudPlatform/tinyfs/super"
)

// Allocator serves and reclaims data blocks for one device.
type Allocator struct {
	cache *bcache.Cache
	log   *txlog.Log
	sb    *super.Superblock
}

// New constructs an Allocator over the given superblock.
func New(cache *bcache.Cache, log *txlog.Log, sb *super.Superblock) *Allocator {
	return &Allocator{cache: cache, log: log, sb: sb}
}

// Alloc returns a freshly zeroed, newly reserved data block number.
// Panics (a fatal, unrecoverable condition) if the device has no free
// block. The caller must be inside an open transaction.
func (a *Allocator) Alloc() (uint32, error) {
	for base := uint32(0); base < a.sb.NBlocks; base += params.BPB {
		bn, err := a.allocInGroup(base)
		if err != nil {
			return 0, err
		}
		if bn != noBlock {
			if err := a.Zero(bn); err != nil {
				return 0, err
			}
			logger.Debugf("balloc: allocated block %d", bn)
			return bn, nil
		}
	}
	panic("balloc: out of free blocks")
}

const noBlock = ^uint32(0)

// allocInGroup scans the bitmap block covering data blocks
// [base, base+BPB) for a clear bit, sets it, and returns the corresponding
// data block number, or noBlock if the group is full.
func (a *Allocator) allocInGroup(base uint32) (uint32, error) {
	bmapBlock := a.sb.BBlock(base)
	buf, err := a.cache.Get(bmapBlock)
	if err != nil {
		return 0, fmt.Errorf("balloc: read bitmap block: %w", err)
	}
	defer a.cache.Release(buf)

	limit := params.BPB
	if base+uint32(limit) > a.sb.NBlocks {
		limit = int(a.sb.NBlocks - base)
	}

	for bit := 0; bit < limit; bit++ {
		byteIdx, mask := bit/8, byte(1<<(uint(bit)%8))
		if buf.Data[byteIdx]&mask != 0 {
			continue
		}
		buf.Data[byteIdx] |= mask
		a.log.Write(buf)
		return a.sb.DataStart + base + uint32(bit), nil
	}
	return noBlock, nil
}

// Free clears the bitmap bit for block b. Panics if the bit was already
// clear.
func (a *Allocator) Free(b uint32) error {
	dataIdx := b - a.sb.DataStart
	bmapBlock := a.sb.BBlock(dataIdx)
	buf, err := a.cache.Get(bmapBlock)
	if err != nil {
		return fmt.Errorf("balloc: read bitmap block: %w", err)
	}
	defer a.cache.Release(buf)

	bit := dataIdx % params.BPB
	byteIdx, mask := bit/8, byte(1<<(bit%8))
	if buf.Data[byteIdx]&mask == 0 {
		panic(fmt.Sprintf("balloc: freeing already-free block %d", b))
	}
	buf.Data[byteIdx] &^= mask
	a.log.Write(buf)
	logger.Debugf("balloc: freed block %d", b)
	return nil
}

// Zero reads block b, clears its contents, and schedules it into the
// current transaction.
func (a *Allocator) Zero(b uint32) error {
	buf, err := a.cache.Get(b)
	if err != nil {
		return fmt.Errorf("balloc: zero block %d: %w", b, err)
	}
	defer a.cache.Release(buf)
	for i := range buf.Data {
		buf.Data[i] = 0
	}
	a.log.Write(buf)
	return nil
}
