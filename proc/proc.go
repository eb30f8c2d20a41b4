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

// Package proc models the minimal process state the syscall envelope
// needs but does not itself define: something that owns a current
// working directory and a fixed-size table of per-process file
// descriptors pointing into package fileh's open-file table. Each
// Process carries a UUID debug tag so log lines from concurrent syscall
// callers can be told apart.
package proc

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/GoogleCloudPlatform/tinyfs/fileh"
	"github.com/GoogleCloudPlatform/tinyfs/inode"
	"github.com/GoogleCloudPlatform/tinyfs/params"
)

// Process is one client of the filesystem's syscall envelope: a working
// directory and a table of open descriptors.
type Process struct {
	ID uuid.UUID

	mu    sync.Mutex
	cwd   *inode.Inode
	ofile [params.NOFILE]*fileh.File
}

// New constructs a Process rooted at cwd, which must already be a
// referenced, valid directory inode; the Process takes ownership of that
// reference.
func New(cwd *inode.Inode) *Process {
	return &Process{ID: uuid.New(), cwd: cwd}
}

// Cwd returns the process's current working directory inode.
func (p *Process) Cwd() *inode.Inode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cwd
}

// SetCwd replaces the process's working directory, taking ownership of
// the new inode's reference. The caller is responsible for releasing the
// old one if it differs.
func (p *Process) SetCwd(ip *inode.Inode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cwd = ip
}

// AddFile installs f into the lowest free descriptor slot and returns its
// number.
func (p *Process) AddFile(f *fileh.File) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for fd, slot := range p.ofile {
		if slot == nil {
			p.ofile[fd] = f
			return fd, nil
		}
	}
	return -1, fmt.Errorf("proc: no free descriptor slots")
}

// GetFile returns the open file at descriptor fd.
func (p *Process) GetFile(fd int) (*fileh.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fd < 0 || fd >= params.NOFILE || p.ofile[fd] == nil {
		return nil, fmt.Errorf("proc: descriptor %d not open", fd)
	}
	return p.ofile[fd], nil
}

// ClearFile removes fd from the descriptor table and returns the file
// that was installed there, so the caller can close it.
func (p *Process) ClearFile(fd int) (*fileh.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fd < 0 || fd >= params.NOFILE || p.ofile[fd] == nil {
		return nil, fmt.Errorf("proc: descriptor %d not open", fd)
	}
	f := p.ofile[fd]
	p.ofile[fd] = nil
	return f, nil
}
