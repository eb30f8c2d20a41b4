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

// Package content is the content-mapping layer: it translates a byte
// offset within an inode to a disk block (allocating
// lazily), and implements the read/write paths on top of that mapping,
// including the device-file fast path that bypasses block mapping
// entirely. Every exported method requires the caller to already hold the
// inode's sleep-lock (package inode's Lock/Unlock).
package content

import (
	"encoding/binary"
	"fmt"

	"github.com/GoogleCloudPlatform/tinyfs/balloc"
	"github.com/GoogleCloudPlatform/tinyfs/device"
	"github.com/GoogleCloudPlatform/tinyfs/inode"
	"github.com/GoogleCloudPlatform/tinyfs/internal/bcache"
	"github.com/GoogleCloudPlatform/tinyfs/internal/txlog"
	"github.com/GoogleCloudPlatform/tinyfs/params"
)

// Mapper bundles the collaborators bmap/readi/writei need: the block
// cache, the open transaction log, the block allocator, and the character
// device switch.
type Mapper struct {
	cache   *bcache.Cache
	log     *txlog.Log
	alloc   *balloc.Allocator
	devices *device.Switch
}

// New constructs a content Mapper.
func New(cache *bcache.Cache, log *txlog.Log, alloc *balloc.Allocator, devices *device.Switch) *Mapper {
	return &Mapper{cache: cache, log: log, alloc: alloc, devices: devices}
}

// Bmap returns the disk block number backing the n-th block of ip,
// allocating it if absent. The caller must hold ip's sleep-lock and an
// open transaction, since allocation may write the inode and an indirect
// block.
func (m *Mapper) Bmap(ip *inode.Inode, n uint32) (uint32, error) {
	if n < params.NDIRECT {
		if ip.Addrs[n] == 0 {
			b, err := m.alloc.Alloc()
			if err != nil {
				return 0, err
			}
			ip.Addrs[n] = b
		}
		return ip.Addrs[n], nil
	}

	n -= params.NDIRECT
	if n >= params.NINDIRECT {
		panic(fmt.Sprintf("content: block index %d beyond MAXFILE", n+params.NDIRECT))
	}

	if ip.Addrs[params.NDIRECT] == 0 {
		b, err := m.alloc.Alloc()
		if err != nil {
			return 0, err
		}
		ip.Addrs[params.NDIRECT] = b
	}

	ibuf, err := m.cache.Get(ip.Addrs[params.NDIRECT])
	if err != nil {
		return 0, fmt.Errorf("content: read indirect block: %w", err)
	}
	defer m.cache.Release(ibuf)

	entry := binary.LittleEndian.Uint32(ibuf.Data[4*n : 4*n+4])
	if entry == 0 {
		entry, err = m.alloc.Alloc()
		if err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint32(ibuf.Data[4*n:4*n+4], entry)
		m.log.Write(ibuf)
	}
	return entry, nil
}

// ReadI copies up to len(dst) bytes starting at byte offset off within ip
// into dst, returning the number of bytes copied. Device-typed inodes
// dispatch to the device switch instead of the block mapping.
func (m *Mapper) ReadI(ip *inode.Inode, dst []byte, off uint32) (int, error) {
	if ip.Type == params.TypeDev {
		e, err := m.devices.Get(ip.Major)
		if err != nil {
			return 0, err
		}
		return e.Read(dst)
	}

	n := uint32(len(dst))
	if off > ip.Size {
		return 0, fmt.Errorf("content: read offset %d beyond size %d", off, ip.Size)
	}
	if off+n < off {
		return 0, fmt.Errorf("content: read offset+n overflow")
	}
	if off+n > ip.Size {
		n = ip.Size - off
	}

	var total uint32
	for total < n {
		blockIdx := (off + total) / params.BSIZE
		blockOff := (off + total) % params.BSIZE
		bn, err := m.Bmap(ip, blockIdx)
		if err != nil {
			return int(total), err
		}
		buf, err := m.cache.Get(bn)
		if err != nil {
			return int(total), fmt.Errorf("content: read block %d: %w", bn, err)
		}
		chunk := min32(n-total, params.BSIZE-blockOff)
		copy(dst[total:total+chunk], buf.Data[blockOff:blockOff+chunk])
		m.cache.Release(buf)
		total += chunk
	}
	return int(total), nil
}

// WriteI writes len(src) bytes from src to ip starting at byte offset off,
// returning the number of bytes written. A write that extends ip's size
// updates the cached size and calls ip.Update(). The caller must be inside
// an open transaction. Device-typed inodes dispatch to the device switch.
func (m *Mapper) WriteI(ip *inode.Inode, src []byte, off uint32) (int, error) {
	if ip.Type == params.TypeDev {
		e, err := m.devices.Get(ip.Major)
		if err != nil {
			return 0, err
		}
		return e.Write(src)
	}

	n := uint32(len(src))
	if off > ip.Size {
		return 0, fmt.Errorf("content: write offset %d beyond size %d", off, ip.Size)
	}
	if off+n < off {
		return 0, fmt.Errorf("content: write offset+n overflow")
	}
	if off+n > params.MAXFILE*params.BSIZE {
		return 0, fmt.Errorf("content: write would exceed max file size")
	}

	var total uint32
	for total < n {
		blockIdx := (off + total) / params.BSIZE
		blockOff := (off + total) % params.BSIZE
		bn, err := m.Bmap(ip, blockIdx)
		if err != nil {
			return int(total), err
		}
		buf, err := m.cache.Get(bn)
		if err != nil {
			return int(total), fmt.Errorf("content: write block %d: %w", bn, err)
		}
		chunk := min32(n-total, params.BSIZE-blockOff)
		copy(buf.Data[blockOff:blockOff+chunk], src[total:total+chunk])
		m.log.Write(buf)
		m.cache.Release(buf)
		total += chunk
	}

	if off+total > ip.Size {
		ip.Size = off + total
		if err := ip.Update(); err != nil {
			return int(total), err
		}
	}
	return int(total), nil
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
