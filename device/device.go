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

// Package device is the character device switch table: an array indexed
// by major number, each slot holding a read and a write function. Majors
// outside the table or with no registered functions are rejected.
package device

import (
	"fmt"
	"sync"

	"github.com/GoogleCloudPlatform/tinyfs/params"
)

// ReadFunc reads into dst, returning the number of bytes read.
type ReadFunc func(dst []byte) (int, error)

// WriteFunc writes from src, returning the number of bytes written.
type WriteFunc func(src []byte) (int, error)

// Entry is one character device's read/write pair.
type Entry struct {
	Read  ReadFunc
	Write WriteFunc
}

// Switch is the fixed NDEV-slot device table.
type Switch struct {
	mu      sync.Mutex
	entries [params.NDEV]*Entry
}

// NewSwitch constructs an empty device switch.
func NewSwitch() *Switch { return &Switch{} }

// Register installs e at major, which must be in [0, NDEV).
func (s *Switch) Register(major int, e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if major < 0 || major >= params.NDEV {
		panic(fmt.Sprintf("device: major %d out of range", major))
	}
	s.entries[major] = e
}

// Get returns the entry for major, or an error if major is out of range or
// has no registered functions.
func (s *Switch) Get(major uint16) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(major) < 0 || int(major) >= params.NDEV {
		return nil, fmt.Errorf("device: major %d out of range", major)
	}
	e := s.entries[major]
	if e == nil || e.Read == nil || e.Write == nil {
		return nil, fmt.Errorf("device: major %d has no registered functions", major)
	}
	return e, nil
}
