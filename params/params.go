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

// Package params holds the on-disk layout constants shared by every layer
// of the filesystem: small, dependency-free, imported everywhere.
package params

const (
	// BSIZE is the size in bytes of a disk block.
	BSIZE = 512

	// NDIRECT is the number of direct block addresses stored inline in a
	// disk inode.
	NDIRECT = 12

	// NINDIRECT is the number of block addresses that fit in a single
	// indirect block.
	NINDIRECT = BSIZE / 4

	// MAXFILE is the maximum number of blocks addressable by an inode.
	MAXFILE = NDIRECT + NINDIRECT

	// DIRSIZ is the maximum length in bytes of a directory entry name.
	DIRSIZ = 14

	// DirentSize is the on-disk size of one directory entry record.
	DirentSize = 2 + DIRSIZ

	// DinodeSize is the on-disk size of one disk inode record:
	// type, major, minor, nlink (uint16 each), size (uint32), and
	// NDIRECT+1 uint32 address slots.
	DinodeSize = 2 + 2 + 2 + 2 + 4 + 4*(NDIRECT+1)

	// IPB is the number of disk inodes that fit in one block.
	IPB = BSIZE / DinodeSize

	// BPB is the number of bitmap bits (i.e. data blocks) tracked by one
	// bitmap block.
	BPB = BSIZE * 8

	// NINODE is the fixed size of the in-memory inode cache table.
	NINODE = 50

	// NFILE is the fixed size of the process-wide open-file handle table.
	NFILE = 100

	// NOFILE is the number of descriptor slots per process.
	NOFILE = 16

	// NDEV is the number of slots in the character device switch table.
	NDEV = 10

	// MAXOPBLOCKS is the maximum number of distinct blocks a single
	// transaction may write.
	MAXOPBLOCKS = 10

	// LOGSIZE is the number of blocks reserved on disk for the
	// crash-recovery log, sized generously relative to MAXOPBLOCKS so a
	// full transaction plus its header always fits.
	LOGSIZE = MAXOPBLOCKS*3 + 3

	// RootIno is the inumber of the filesystem root directory.
	RootIno = 1

	// ConsoleMajor and NullMajor are the device-switch slots wired up by
	// package device.
	ConsoleMajor = 1
	NullMajor    = 2
)

// Inode types, stored in the 16-bit type field of a disk inode. Zero means
// "free."
const (
	TypeFree = 0
	TypeDir  = 1
	TypeFile = 2
	TypeDev  = 3
)

// FileWriteMaxBlocks is the number of blocks' worth of bytes file_write
// puts in a single transaction: the MAXOPBLOCKS budget less four blocks of
// headroom for the metadata blocks a chunk may also touch, halved (3 with
// MAXOPBLOCKS = 10).
const FileWriteMaxBlocks = (MAXOPBLOCKS - 4) / 2
