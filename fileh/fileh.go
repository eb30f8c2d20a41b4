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

// Package fileh is the open-file table: a fixed NFILE-slot,
// reference-counted table of open files, each either backed by an inode
// (with its own read/write cursor) or by a pipe end. Uses the same
// mutex-guarded fixed-array-of-slots shape as package inode's Table.
package fileh

import (
	"fmt"
	"sync"

	"github.com/GoogleCloudPlatform/tinyfs/content"
	"github.com/GoogleCloudPlatform/tinyfs/inode"
	"github.com/GoogleCloudPlatform/tinyfs/params"
	"github.com/GoogleCloudPlatform/tinyfs/pipe"
)

// Kind distinguishes what backs an open File.
type Kind int

const (
	KindNone Kind = iota
	KindPipe
	KindInode
)

// Stat is the subset of inode metadata file_stat exposes to callers.
type Stat struct {
	Type  uint16
	Inum  uint32
	Nlink uint16
	Size  uint32
}

// File is one entry in the open-file table: either a pipe end or an
// inode plus cursor, shared by every descriptor that duplicated it.
type File struct {
	table *Table

	mu        sync.Mutex
	ref       int
	kind      Kind
	readable  bool
	writable  bool
	pipe      *pipe.Pipe
	pipeWrite bool
	ip        *inode.Inode
	off       uint32
}

// Table is the fixed NFILE-slot open-file table for one filesystem
// instance.
type Table struct {
	content *content.Mapper
	inodes  *inode.Table

	mu    sync.Mutex
	slots [params.NFILE]*File
}

// New constructs an open-file table bound to a content mapper and inode
// table.
func New(content *content.Mapper, inodes *inode.Table) *Table {
	return &Table{content: content, inodes: inodes}
}

// AllocInode installs a new open file backed by ip. ip must already be
// referenced by the caller; File takes ownership of that reference.
func (t *Table) AllocInode(ip *inode.Inode, readable, writable bool) (*File, error) {
	return t.alloc(func(f *File) {
		f.kind = KindInode
		f.ip = ip
		f.readable = readable
		f.writable = writable
	})
}

// AllocPipe installs a new open file backed by one end of p.
func (t *Table) AllocPipe(p *pipe.Pipe, writeEnd bool) (*File, error) {
	return t.alloc(func(f *File) {
		f.kind = KindPipe
		f.pipe = p
		f.pipeWrite = writeEnd
		f.readable = !writeEnd
		f.writable = writeEnd
	})
}

func (t *Table) alloc(init func(*File)) (*File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, f := range t.slots {
		if f == nil {
			nf := &File{table: t, ref: 1}
			init(nf)
			t.slots[i] = nf
			return nf, nil
		}
	}
	return nil, fmt.Errorf("fileh: no free file table slots")
}

// Dup increments f's reference count.
func (f *File) Dup() *File {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ref < 1 {
		panic("fileh: Dup on closed file")
	}
	f.ref++
	return f
}

// Close drops one reference to f. At zero references it releases the
// underlying pipe end or inode. Closing the inode end must run inside an
// open transaction, since inode.Table.Put may truncate and free blocks.
func (t *Table) Close(f *File) error {
	f.mu.Lock()
	f.ref--
	if f.ref > 0 {
		f.mu.Unlock()
		return nil
	}
	kind, pipeEnd, pipeWrite, ip := f.kind, f.pipe, f.pipeWrite, f.ip
	f.kind = KindNone
	f.mu.Unlock()

	t.mu.Lock()
	for i, slot := range t.slots {
		if slot == f {
			t.slots[i] = nil
			break
		}
	}
	t.mu.Unlock()

	switch kind {
	case KindPipe:
		if pipeWrite {
			pipeEnd.CloseWrite()
		} else {
			pipeEnd.CloseRead()
		}
	case KindInode:
		if err := t.inodes.Put(ip); err != nil {
			return fmt.Errorf("fileh: close inode file: %w", err)
		}
	}
	return nil
}

// Stat returns the metadata of f's underlying inode. It is an error to
// call Stat on a pipe-backed file.
func (f *File) Stat() (Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kind != KindInode {
		return Stat{}, fmt.Errorf("fileh: Stat on non-inode file")
	}
	if err := f.ip.Lock(); err != nil {
		return Stat{}, err
	}
	defer f.ip.Unlock()
	return Stat{Type: f.ip.Type, Inum: f.ip.Inum, Nlink: f.ip.Nlink, Size: f.ip.Size}, nil
}

// Read reads into dst from f, advancing f's cursor if inode-backed.
func (f *File) Read(dst []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.readable {
		return 0, fmt.Errorf("fileh: Read on non-readable file")
	}

	switch f.kind {
	case KindPipe:
		return f.pipe.Read(dst)
	case KindInode:
		if err := f.ip.Lock(); err != nil {
			return 0, err
		}
		n, err := f.table.content.ReadI(f.ip, dst, f.off)
		f.ip.Unlock()
		f.off += uint32(n)
		return n, err
	default:
		return 0, fmt.Errorf("fileh: Read on closed file")
	}
}

// Write writes src to f, advancing f's cursor if inode-backed. Inode
// writes must run inside an open transaction.
func (f *File) Write(src []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.writable {
		return 0, fmt.Errorf("fileh: Write on non-writable file")
	}

	switch f.kind {
	case KindPipe:
		return f.pipe.Write(src)
	case KindInode:
		if err := f.ip.Lock(); err != nil {
			return 0, err
		}
		n, err := f.table.content.WriteI(f.ip, src, f.off)
		f.ip.Unlock()
		f.off += uint32(n)
		return n, err
	default:
		return 0, fmt.Errorf("fileh: Write on closed file")
	}
}

// Inode returns f's underlying inode and true, or (nil, false) for a
// pipe-backed file. Used by fsyscall's fstat and link/unlink paths.
func (f *File) Inode() (*inode.Inode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ip, f.kind == KindInode
}
