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

package device

import (
	"io"
	"sync"
)

// Console is a toy character device backed by arbitrary Reader/Writer
// streams, used to exercise the device-switch dispatch. A real kernel
// would wire this to a terminal; here it is just something mknod can
// create and open/read/write can reach.
type Console struct {
	mu sync.Mutex
	r  io.Reader
	w  io.Writer
}

// NewConsole wraps r and w as a character device.
func NewConsole(r io.Reader, w io.Writer) *Console {
	return &Console{r: r, w: w}
}

func (c *Console) read(dst []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.r.Read(dst)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (c *Console) write(src []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(src)
}

// Entry returns the device-switch entry for this console.
func (c *Console) Entry() *Entry {
	return &Entry{Read: c.read, Write: c.write}
}

// Null is the toy /dev/null-equivalent: reads return EOF immediately,
// writes discard everything and report full success.
type Null struct{}

func (Null) read(dst []byte) (int, error)  { return 0, nil }
func (Null) write(src []byte) (int, error) { return len(src), nil }

// Entry returns the device-switch entry for the null device.
func (n Null) Entry() *Entry {
	return &Entry{Read: n.read, Write: n.write}
}
