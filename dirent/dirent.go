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

// Package dirent is the directory layer: a directory's content, read
// through package content, is simply a sequence of
// fixed-size (inum, name) records. This package knows how those records
// are laid out and how to look up, insert, and test emptiness over them;
// it never touches the disk directly, only through a content.Mapper.
package dirent

import (
	"encoding/binary"
	"fmt"

	"github.com/GoogleCloudPlatform/tinyfs/content"
	"github.com/GoogleCloudPlatform/tinyfs/inode"
	"github.com/GoogleCloudPlatform/tinyfs/params"
)

// Dirent is one directory entry: an inumber and a name up to DIRSIZ bytes,
// NUL-padded. Inum == 0 marks a free (unused or deleted) slot.
type Dirent struct {
	Inum uint32
	Name string
}

func (d *Dirent) marshal(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], uint16(d.Inum))
	var name [params.DIRSIZ]byte
	copy(name[:], d.Name)
	copy(b[2:2+params.DIRSIZ], name[:])
}

func (d *Dirent) unmarshal(b []byte) {
	d.Inum = uint32(binary.LittleEndian.Uint16(b[0:2]))
	end := 2
	for end < 2+params.DIRSIZ && b[end] != 0 {
		end++
	}
	d.Name = string(b[2:end])
}

// Lookup scans directory dp for an entry named name, returning the child
// inumber and its byte offset within dp on success. dp must be a locked,
// valid directory inode.
func Lookup(m *content.Mapper, dp *inode.Inode, name string) (inum uint32, off uint32, ok bool) {
	if dp.Type != params.TypeDir {
		panic("dirent: Lookup on non-directory inode")
	}
	var buf [params.DirentSize]byte
	for o := uint32(0); o < dp.Size; o += params.DirentSize {
		n, err := m.ReadI(dp, buf[:], o)
		if err != nil || n != params.DirentSize {
			return 0, 0, false
		}
		var de Dirent
		de.unmarshal(buf[:])
		if de.Inum != 0 && de.Name == name {
			return de.Inum, o, true
		}
	}
	return 0, 0, false
}

// Link appends an entry (name -> inum) to directory dp, reusing a free
// slot if one exists. Returns an error if name is already present or
// exceeds DIRSIZ. The caller must be inside an open transaction.
func Link(m *content.Mapper, dp *inode.Inode, name string, inum uint32) error {
	if len(name) > params.DIRSIZ {
		return fmt.Errorf("dirent: name %q exceeds %d bytes", name, params.DIRSIZ)
	}
	if _, _, ok := Lookup(m, dp, name); ok {
		return fmt.Errorf("dirent: name %q already exists", name)
	}

	var buf [params.DirentSize]byte
	var o uint32
	for o = 0; o < dp.Size; o += params.DirentSize {
		n, err := m.ReadI(dp, buf[:], o)
		if err != nil || n != params.DirentSize {
			return fmt.Errorf("dirent: read directory at offset %d: %w", o, err)
		}
		var de Dirent
		de.unmarshal(buf[:])
		if de.Inum == 0 {
			break
		}
	}

	de := Dirent{Inum: inum, Name: name}
	de.marshal(buf[:])
	if _, err := m.WriteI(dp, buf[:], o); err != nil {
		return fmt.Errorf("dirent: write directory entry: %w", err)
	}
	return nil
}

// Unlink clears the entry at byte offset off within dp, which must have
// been returned by a prior Lookup. The caller must be inside an open
// transaction.
func Unlink(m *content.Mapper, dp *inode.Inode, off uint32) error {
	var buf [params.DirentSize]byte
	de := Dirent{}
	de.marshal(buf[:])
	if _, err := m.WriteI(dp, buf[:], off); err != nil {
		return fmt.Errorf("dirent: clear directory entry at offset %d: %w", off, err)
	}
	return nil
}

// ReadDir returns every occupied entry in directory dp, in on-disk order.
// Used by callers (the shell's "ls") that want a directory's full
// listing rather than a single lookup.
func ReadDir(m *content.Mapper, dp *inode.Inode) ([]Dirent, error) {
	if dp.Type != params.TypeDir {
		panic("dirent: ReadDir on non-directory inode")
	}
	var out []Dirent
	var buf [params.DirentSize]byte
	for o := uint32(0); o < dp.Size; o += params.DirentSize {
		n, err := m.ReadI(dp, buf[:], o)
		if err != nil || n != params.DirentSize {
			return nil, fmt.Errorf("dirent: read directory at offset %d: %w", o, err)
		}
		var de Dirent
		de.unmarshal(buf[:])
		if de.Inum != 0 {
			out = append(out, de)
		}
	}
	return out, nil
}

// IsEmpty reports whether directory dp has no entries besides "." and
// ".." (a precondition for unlink on a directory).
func IsEmpty(m *content.Mapper, dp *inode.Inode) (bool, error) {
	var buf [params.DirentSize]byte
	for o := uint32(2 * params.DirentSize); o < dp.Size; o += params.DirentSize {
		n, err := m.ReadI(dp, buf[:], o)
		if err != nil || n != params.DirentSize {
			return false, fmt.Errorf("dirent: read directory at offset %d: %w", o, err)
		}
		var de Dirent
		de.unmarshal(buf[:])
		if de.Inum != 0 {
			return false, nil
		}
	}
	return true, nil
}
