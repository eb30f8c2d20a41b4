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

// Package pipe implements the in-memory IPC channel that package fileh
// hands out for the pipe(2) envelope: a real bounded pipe rather than a
// stub. Data in flight is held in a common.Queue[byte], used here as a
// bounded byte ring.
package pipe

import (
	"fmt"
	"sync"

	"github.com/GoogleCloudPlatform/tinyfs/common"
)

// Capacity is the number of bytes a Pipe buffers before Write blocks.
const Capacity = 512

// Pipe is a bounded, closable byte channel shared by a read end and a
// write end, guarded by one mutex, with one condition variable for
// readers waiting on data (notEmpty) and one for writers waiting on space
// (notFull).
type Pipe struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf         common.Queue[byte]
	readClosed  bool
	writeClosed bool
}

// New constructs an open pipe with no buffered data.
func New() *Pipe {
	p := &Pipe{buf: common.NewLinkedListQueue[byte]()}
	p.notEmpty = sync.NewCond(&p.mu)
	p.notFull = sync.NewCond(&p.mu)
	return p
}

// Write copies src into the pipe, blocking while the buffer is full, and
// returns an error once the read end has closed (the classic broken-pipe
// condition).
func (p *Pipe) Write(src []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeClosed {
		panic("pipe: Write after CloseWrite")
	}

	var n int
	for n < len(src) {
		if p.readClosed {
			return n, fmt.Errorf("pipe: write on closed read end")
		}
		if p.buf.Len() >= Capacity {
			p.notFull.Wait()
			continue
		}
		p.buf.Push(src[n])
		n++
		p.notEmpty.Signal()
	}
	return n, nil
}

// Read copies buffered bytes into dst, blocking until at least one byte
// is available, the write end closes, or dst is empty. Returns (0, nil)
// at end-of-pipe: a zero-byte read marks the end, the same convention the
// device layer's Console uses (it maps io.EOF to a nil error).
func (p *Pipe) Read(dst []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.readClosed {
		panic("pipe: Read after CloseRead")
	}

	for len(dst) > 0 && p.buf.IsEmpty() && !p.writeClosed {
		p.notEmpty.Wait()
	}

	n := 0
	for n < len(dst) && !p.buf.IsEmpty() {
		dst[n] = p.buf.Pop()
		n++
	}
	if n > 0 {
		p.notFull.Signal()
	}
	return n, nil
}

// CloseRead marks the read end closed, waking any blocked writer so it
// can observe the broken-pipe condition.
func (p *Pipe) CloseRead() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readClosed = true
	p.notFull.Broadcast()
}

// CloseWrite marks the write end closed, waking any blocked reader so it
// can drain the remaining buffer and then observe end-of-pipe.
func (p *Pipe) CloseWrite() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeClosed = true
	p.notEmpty.Broadcast()
}
