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

// Package txlog is the crash-recovery log: the write-ahead log that
// makes every multi-block metadata update atomic with respect to
// crashes. It owns a reserved region of the device and exposes exactly
// the three calls the rest of the filesystem needs: Begin, Write, End.
//
// On-disk layout of the log region: block 0 is the header (a count
// followed by that many logged block numbers); blocks 1..size hold the
// corresponding logged block contents, in order. A transaction commits
// by copying each logged block into its log slot, then writing the header
// with a non-zero count (the commit point), then copying each logged block
// to its home location, then zeroing the header. Every write goes straight
// to the backing file through bcache.WriteThrough; the log issues no fsync
// between these steps. Recovery (recover) replays any committed-but-not-yet
// -installed transaction found at open time; an uncommitted (zero-count)
// header means the last transaction never reached its commit point and is
// simply discarded, which is exactly the crash-atomicity property a
// write-ahead log is meant to provide.
package txlog

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/GoogleCloudPlatform/tinyfs/internal/bcache"
	"github.com/GoogleCloudPlatform/tinyfs/internal/logger"
	"github.com/GoogleCloudPlatform/tinyfs/params"
)

// Log serializes filesystem transactions over a reserved block range.
//
// This implementation admits one transaction at a time (Begin blocks until
// the previous End returns), a deliberate simplification of a
// group-commit log: it preserves the crash-atomicity contract while
// keeping the concurrency story in this teaching module legible. Callers
// needing to run independent syscalls concurrently still can; they
// simply serialize at the log, which sits outermost in the lock order.
type Log struct {
	cache *bcache.Cache
	start uint32 // first block of the log region (the header block)
	size  uint32 // number of data blocks after the header

	mu      sync.Mutex
	cond    *sync.Cond
	busy    bool
	pending []uint32          // block numbers logged so far this transaction, in order
	dirty   map[uint32]*bcache.Buf // absorption set: block# -> buffer holding its new contents
}

// Open attaches to the log region [start, start+size) (size excludes the
// header block, i.e. the region is size+1 blocks long) and replays any
// committed transaction left behind by a crash.
func Open(cache *bcache.Cache, start, size uint32) (*Log, error) {
	l := &Log{cache: cache, start: start, size: size, dirty: make(map[uint32]*bcache.Buf)}
	l.cond = sync.NewCond(&l.mu)
	if err := l.recover(); err != nil {
		return nil, err
	}
	return l, nil
}

// Begin opens a transaction on the calling goroutine, blocking if another
// transaction is in flight.
func (l *Log) Begin() {
	l.mu.Lock()
	for l.busy {
		l.cond.Wait()
	}
	l.busy = true
	l.pending = l.pending[:0]
	for k := range l.dirty {
		delete(l.dirty, k)
	}
	l.mu.Unlock()
}

// Write schedules buf to be part of the currently open transaction.
// Repeated writes of the same block coalesce (absorption): only the latest
// contents are kept, and the block number is recorded once.
func (l *Log) Write(buf *bcache.Buf) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.busy {
		panic("txlog: Write called outside a transaction")
	}
	if _, ok := l.dirty[buf.Blockno]; !ok {
		if uint32(len(l.pending)) >= l.size {
			panic("txlog: transaction too big for log")
		}
		l.pending = append(l.pending, buf.Blockno)
	}
	l.dirty[buf.Blockno] = buf
}

// End commits the transaction: writes the logged blocks into the log
// slots, writes the log header, installs each block at its home location,
// then clears the header. If any step fails, End returns the error and the
// log stays marked busy, so every later Begin blocks.
func (l *Log) End() error {
	l.mu.Lock()
	if !l.busy {
		l.mu.Unlock()
		panic("txlog: End called without Begin")
	}
	pending := append([]uint32(nil), l.pending...)
	dirty := l.dirty
	l.mu.Unlock()

	if len(pending) > 0 {
		if err := l.commit(pending, dirty); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.busy = false
	l.pending = l.pending[:0]
	l.dirty = make(map[uint32]*bcache.Buf)
	l.cond.Signal()
	l.mu.Unlock()
	return nil
}

func (l *Log) commit(pending []uint32, dirty map[uint32]*bcache.Buf) error {
	logger.Debugf("txlog: committing %d block(s)", len(pending))

	// Phase 1: copy logged blocks into the log region's data slots.
	for i, blockno := range pending {
		if err := l.writeLogSlot(uint32(i), dirty[blockno].Data[:]); err != nil {
			return err
		}
	}
	if err := l.writeHeader(pending); err != nil {
		return err
	}

	// Phase 2: install into home locations.
	for _, blockno := range pending {
		if err := l.cache.WriteThrough(dirty[blockno]); err != nil {
			return fmt.Errorf("txlog: install block %d: %w", blockno, err)
		}
	}

	// Phase 3: clear the header — the transaction is now durable at its
	// home location and the log slots may be reused.
	return l.writeHeader(nil)
}

func (l *Log) writeLogSlot(slot uint32, data []byte) error {
	buf, err := l.cache.Get(l.start + 1 + slot)
	if err != nil {
		return fmt.Errorf("txlog: get log slot %d: %w", slot, err)
	}
	defer l.cache.Release(buf)
	copy(buf.Data[:], data)
	return l.cache.WriteThrough(buf)
}

func (l *Log) writeHeader(pending []uint32) error {
	buf, err := l.cache.Get(l.start)
	if err != nil {
		return fmt.Errorf("txlog: get header: %w", err)
	}
	defer l.cache.Release(buf)

	for i := range buf.Data {
		buf.Data[i] = 0
	}
	binary.LittleEndian.PutUint32(buf.Data[0:4], uint32(len(pending)))
	for i, blockno := range pending {
		binary.LittleEndian.PutUint32(buf.Data[4+4*i:8+4*i], blockno)
	}
	return l.cache.WriteThrough(buf)
}

// recover replays a committed transaction found at open time.
func (l *Log) recover() error {
	buf, err := l.cache.Get(l.start)
	if err != nil {
		return fmt.Errorf("txlog: read header: %w", err)
	}
	n := binary.LittleEndian.Uint32(buf.Data[0:4])
	blocks := make([]uint32, n)
	for i := uint32(0); i < n; i++ {
		blocks[i] = binary.LittleEndian.Uint32(buf.Data[4+4*i : 8+4*i])
	}
	l.cache.Release(buf)

	if n == 0 {
		return nil
	}
	logger.Infof("txlog: replaying %d block(s) from an interrupted transaction", n)

	for i, blockno := range blocks {
		src, err := l.cache.Get(l.start + 1 + uint32(i))
		if err != nil {
			return fmt.Errorf("txlog: read log slot %d: %w", i, err)
		}
		dst, err := l.cache.Get(blockno)
		if err != nil {
			l.cache.Release(src)
			return fmt.Errorf("txlog: read home block %d: %w", blockno, err)
		}
		dst.Data = src.Data
		err = l.cache.WriteThrough(dst)
		l.cache.Release(src)
		l.cache.Release(dst)
		if err != nil {
			return fmt.Errorf("txlog: install recovered block %d: %w", blockno, err)
		}
	}
	return l.writeHeader(nil)
}

// Size returns the number of data blocks (excluding the header) reserved
// for the log.
func (l *Log) Size() uint32 { return l.size }
