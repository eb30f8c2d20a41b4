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

// Package inode is the inode layer: a reference-counted, sleep-locked
// in-memory table of active inodes, write-through to disk via the log.
// Two lock flavors guard it: Table.mu (a spinlock stand-in) protects
// identity and ref across an O(1) cache scan, and each Inode's own
// mutex (a sleep-lock stand-in) protects everything else across the
// disk I/O that loading or updating an inode requires. The reference
// counting follows the familiar Inc/Dec-with-panic-on-misuse,
// invoke-a-callback-at-zero shape, generalized here into the full
// get/put discipline an inode cache needs.
package inode

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/GoogleCloudPlatform/tinyfs/balloc"
	"github.com/GoogleCloudPlatform/tinyfs/internal/bcache"
	"github.com/GoogleCloudPlatform/tinyfs/internal/logger"
	"github.com/GoogleCloudPlatform/tinyfs/internal/txlog"
	"github.com/GoogleCloudPlatform/tinyfs/params"
	"github.com/GoogleCloudPlatform/tinyfs/super"
)

// Inode is an in-memory, possibly-cached view of one disk inode.
//
// ref, Dev, and Inum may only be read or written while the owning Table's
// mu is held. Every other field may only be read or written by whichever
// goroutine currently holds lk, and only after Lock has loaded them from
// disk (Valid == true).
type Inode struct {
	table *Table

	Dev  uint32
	Inum uint32

	ref int // GUARDED_BY(table.mu)

	lk    sync.Mutex
	Valid bool // GUARDED_BY(lk)

	// Cached fields, mirror the disk inode once Valid.
	Type  uint16
	Major uint16
	Minor uint16
	Nlink uint16
	Size  uint32
	Addrs [params.NDIRECT + 1]uint32
}

// Table is the fixed NINODE-slot in-memory inode cache for one device.
type Table struct {
	cache *bcache.Cache
	log   *txlog.Log
	sb    *super.Superblock
	alloc *balloc.Allocator

	mu    sync.Mutex
	slots [params.NINODE]*Inode
}

// New constructs the inode cache table for a device.
func New(cache *bcache.Cache, log *txlog.Log, sb *super.Superblock, alloc *balloc.Allocator) *Table {
	return &Table{cache: cache, log: log, sb: sb, alloc: alloc}
}

// Get returns a referenced but unlocked in-memory inode for (dev, inum).
// It does not touch the disk.
func (t *Table) Get(dev, inum uint32) *Inode {
	t.mu.Lock()
	defer t.mu.Unlock()

	var free *Inode
	for _, ip := range t.slots {
		if ip == nil {
			continue
		}
		if ip.ref > 0 && ip.Dev == dev && ip.Inum == inum {
			ip.ref++
			return ip
		}
		if free == nil && ip.ref == 0 {
			free = ip
		}
	}

	if free == nil {
		for i, ip := range t.slots {
			if ip == nil {
				free = &Inode{table: t}
				t.slots[i] = free
				break
			}
		}
	}
	if free == nil {
		panic("inode: no free inode cache slots")
	}

	free.Dev = dev
	free.Inum = inum
	free.ref = 1
	free.Valid = false
	return free
}

// Dup increments ip's reference count and returns ip.
func (ip *Inode) Dup() *Inode {
	ip.table.mu.Lock()
	defer ip.table.mu.Unlock()
	ip.ref++
	return ip
}

// Lock acquires the inode's sleep-lock, loading its contents from disk on
// first use. Fails fatally if the loaded type is free.
func (ip *Inode) Lock() error {
	ip.lk.Lock()
	if ip.Valid {
		return nil
	}

	buf, err := ip.table.cache.Get(ip.table.sb.IBlock(ip.Inum))
	if err != nil {
		ip.lk.Unlock()
		return fmt.Errorf("inode: load inode %d: %w", ip.Inum, err)
	}
	var d diskInode
	d.unmarshal(buf.Data[:], ip.Inum)
	ip.table.cache.Release(buf)

	if d.Type == params.TypeFree {
		ip.lk.Unlock()
		panic(fmt.Sprintf("inode: ilock on free inode %d", ip.Inum))
	}

	ip.Type, ip.Major, ip.Minor, ip.Nlink, ip.Size = d.Type, d.Major, d.Minor, d.Nlink, d.Size
	ip.Addrs = d.Addrs
	ip.Valid = true
	logger.Tracef("inode: loaded inode %d from disk", ip.Inum)
	return nil
}

// Unlock releases the inode's sleep-lock.
func (ip *Inode) Unlock() {
	ip.lk.Unlock()
}

// Update writes ip's cached fields through to disk, inside the caller's
// open transaction. The caller must hold ip's sleep-lock.
func (ip *Inode) Update() error {
	buf, err := ip.table.cache.Get(ip.table.sb.IBlock(ip.Inum))
	if err != nil {
		return fmt.Errorf("inode: update inode %d: %w", ip.Inum, err)
	}
	defer ip.table.cache.Release(buf)

	d := diskInode{
		Type: ip.Type, Major: ip.Major, Minor: ip.Minor,
		Nlink: ip.Nlink, Size: ip.Size, Addrs: ip.Addrs,
	}
	d.marshal(buf.Data[:], ip.Inum)
	ip.table.log.Write(buf)
	return nil
}

// Put releases one reference to ip. If the reference count falls to zero
// and the inode is an unlinked, loaded inode (Nlink == 0), it truncates
// and frees the on-disk inode. Must run inside an open transaction, since
// it may call Truncate.
func (t *Table) Put(ip *Inode) error {
	ip.lk.Lock()

	t.mu.Lock()
	freeing := ip.Valid && ip.Nlink == 0 && ip.ref == 1
	t.mu.Unlock()

	if freeing {
		if err := ip.Truncate(); err != nil {
			ip.lk.Unlock()
			return err
		}
		ip.Type = params.TypeFree
		if err := ip.Update(); err != nil {
			ip.lk.Unlock()
			return err
		}
		ip.Valid = false
		logger.Debugf("inode: freed inode %d", ip.Inum)
	}
	ip.lk.Unlock()

	t.mu.Lock()
	ip.ref--
	t.mu.Unlock()
	return nil
}

// Alloc scans disk inode slots for a free one, stamps it with typ, and
// returns it via Get. Fails fatally if the disk has none free.
func (t *Table) Alloc(dev uint32, typ uint16) (*Inode, error) {
	for inum := uint32(1); inum < t.sb.NInodes; inum++ {
		buf, err := t.cache.Get(t.sb.IBlock(inum))
		if err != nil {
			return nil, fmt.Errorf("inode: scan for free inode: %w", err)
		}
		var d diskInode
		d.unmarshal(buf.Data[:], inum)
		if d.Type == params.TypeFree {
			d = diskInode{Type: typ}
			d.marshal(buf.Data[:], inum)
			t.log.Write(buf)
			t.cache.Release(buf)
			logger.Debugf("inode: allocated inode %d type %d", inum, typ)
			return t.Get(dev, inum), nil
		}
		t.cache.Release(buf)
	}
	panic("inode: no free inodes on disk")
}

// Truncate frees every block reachable from ip (direct, indirect, and the
// indirect block itself), sets Size to 0, and writes the inode through.
// The caller must hold ip's sleep-lock.
func (ip *Inode) Truncate() error {
	for i := 0; i < params.NDIRECT; i++ {
		if ip.Addrs[i] != 0 {
			if err := ip.table.alloc.Free(ip.Addrs[i]); err != nil {
				return err
			}
			ip.Addrs[i] = 0
		}
	}

	if ip.Addrs[params.NDIRECT] != 0 {
		buf, err := ip.table.cache.Get(ip.Addrs[params.NDIRECT])
		if err != nil {
			return fmt.Errorf("inode: truncate read indirect block: %w", err)
		}
		var entries [params.NINDIRECT]uint32
		for i := 0; i < params.NINDIRECT; i++ {
			entries[i] = binary.LittleEndian.Uint32(buf.Data[4*i : 4*i+4])
		}
		ip.table.cache.Release(buf)

		for _, a := range entries {
			if a != 0 {
				if err := ip.table.alloc.Free(a); err != nil {
					return err
				}
			}
		}
		if err := ip.table.alloc.Free(ip.Addrs[params.NDIRECT]); err != nil {
			return err
		}
		ip.Addrs[params.NDIRECT] = 0
	}

	ip.Size = 0
	return ip.Update()
}
