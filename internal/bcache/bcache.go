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

// Package bcache is the block buffer cache: a small fixed pool of
// reference-counted in-memory block buffers. Buffers are not locked: every
// caller that asks for the same block gets the same Buf and the same Data,
// even while another caller still holds it. It is an external
// collaborator to the core (the inode,
// content, and directory layers only ever call Get/Release), so it is
// intentionally simple: a bounded LRU list guarded by one mutex, with no
// attempt at the two-lock split that the inode cache (in package inode)
// uses for its much hotter path.
package bcache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/GoogleCloudPlatform/tinyfs/internal/blockdev"
	"github.com/GoogleCloudPlatform/tinyfs/internal/logger"
	"github.com/GoogleCloudPlatform/tinyfs/params"
)

const nbuf = 32

// Buf is a view onto one disk block, shared by every caller that holds it.
// It carries no lock of its own, so the buffer is not safe for concurrent
// use by two goroutines.
type Buf struct {
	Blockno uint32
	Data    [params.BSIZE]byte

	cache *Cache
	elem  *list.Element
}

type entry struct {
	buf    *Buf
	refcnt int
	valid  bool
}

// Cache is the block buffer cache for one device.
type Cache struct {
	dev *blockdev.Device

	mu      sync.Mutex
	lru     *list.List // most-recently-used at the front
	byBlock map[uint32]*list.Element
}

// New creates a buffer cache over dev.
func New(dev *blockdev.Device) *Cache {
	return &Cache{
		dev:     dev,
		lru:     list.New(),
		byBlock: make(map[uint32]*list.Element),
	}
}

// Get returns the buffer for block b, reading it from the device on first
// use. The caller must call Release when done. This collapses the usual
// separate get-then-read steps into one call, since Go's zero-value
// semantics make "locked but not yet loaded" an unnecessary extra state
// here.
func (c *Cache) Get(b uint32) (*Buf, error) {
	c.mu.Lock()
	if el, ok := c.byBlock[b]; ok {
		e := el.Value.(*entry)
		e.refcnt++
		c.lru.MoveToFront(el)
		c.mu.Unlock()
		return e.buf, nil
	}

	// Evict the least-recently-used unreferenced buffer if we're full.
	if len(c.byBlock) >= nbuf {
		if !c.evictLocked() {
			c.mu.Unlock()
			panic("bcache: no free buffers")
		}
	}

	buf := &Buf{Blockno: b, cache: c}
	e := &entry{buf: buf, refcnt: 1}
	el := c.lru.PushFront(e)
	buf.elem = el
	c.byBlock[b] = el
	c.mu.Unlock()

	if err := c.dev.ReadBlock(b, buf.Data[:]); err != nil {
		c.mu.Lock()
		delete(c.byBlock, b)
		c.lru.Remove(el)
		c.mu.Unlock()
		return nil, fmt.Errorf("bcache: load block %d: %w", b, err)
	}
	logger.Tracef("bcache: loaded block %d", b)
	return buf, nil
}

// Release returns a buffer to the cache. It does not write the buffer back
// to disk; callers that mutated Data must route through package txlog to
// have it written durably.
func (c *Cache) Release(buf *Buf) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.byBlock[buf.Blockno]
	if !ok {
		panic("bcache: release of unknown block")
	}
	e := el.Value.(*entry)
	if e.refcnt < 1 {
		panic("bcache: release of unreferenced block")
	}
	e.refcnt--
}

// WriteThrough persists buf's current contents to the device immediately.
// Package txlog calls this when it commits a transaction.
func (c *Cache) WriteThrough(buf *Buf) error {
	if err := c.dev.WriteBlock(buf.Blockno, buf.Data[:]); err != nil {
		return fmt.Errorf("bcache: write-through block %d: %w", buf.Blockno, err)
	}
	return nil
}

// evictLocked removes the least-recently-used buffer with refcnt == 0.
// Caller holds c.mu.
func (c *Cache) evictLocked() bool {
	for el := c.lru.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if e.refcnt == 0 {
			delete(c.byBlock, e.buf.Blockno)
			c.lru.Remove(el)
			return true
		}
	}
	return false
}
