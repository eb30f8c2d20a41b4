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

package inode

import (
	"encoding/binary"

	"github.com/GoogleCloudPlatform/tinyfs/params"
)

// diskInode is the fixed-size on-disk record: type, major, minor, nlink
// (16 bits each), size (32 bits), and NDIRECT+1 32-bit block addresses.
type diskInode struct {
	Type  uint16
	Major uint16
	Minor uint16
	Nlink uint16
	Size  uint32
	Addrs [params.NDIRECT + 1]uint32
}

// offsetInBlock returns this inode's byte offset within its IBlock.
func offsetInBlock(inum uint32) int {
	return int(inum%params.IPB) * params.DinodeSize
}

func (d *diskInode) marshal(block []byte, inum uint32) {
	off := offsetInBlock(inum)
	b := block[off : off+params.DinodeSize]
	binary.LittleEndian.PutUint16(b[0:2], d.Type)
	binary.LittleEndian.PutUint16(b[2:4], d.Major)
	binary.LittleEndian.PutUint16(b[4:6], d.Minor)
	binary.LittleEndian.PutUint16(b[6:8], d.Nlink)
	binary.LittleEndian.PutUint32(b[8:12], d.Size)
	for i, a := range d.Addrs {
		binary.LittleEndian.PutUint32(b[12+4*i:16+4*i], a)
	}
}

func (d *diskInode) unmarshal(block []byte, inum uint32) {
	off := offsetInBlock(inum)
	b := block[off : off+params.DinodeSize]
	d.Type = binary.LittleEndian.Uint16(b[0:2])
	d.Major = binary.LittleEndian.Uint16(b[2:4])
	d.Minor = binary.LittleEndian.Uint16(b[4:6])
	d.Nlink = binary.LittleEndian.Uint16(b[6:8])
	d.Size = binary.LittleEndian.Uint32(b[8:12])
	for i := range d.Addrs {
		d.Addrs[i] = binary.LittleEndian.Uint32(b[12+4*i : 16+4*i])
	}
}
