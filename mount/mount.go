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

// Package mount assembles every layer into one filesystem instance: the
// block device, buffer cache, crash-recovery log, superblock,
// free-block allocator, inode cache, content mapper, device switch,
// open-file table, and syscall envelope. It is where the CLI's "mkfs"
// and "shell" subcommands get something they can actually call
// syscalls against.
package mount

import (
	"fmt"
	"os"

	"github.com/GoogleCloudPlatform/tinyfs/balloc"
	"github.com/GoogleCloudPlatform/tinyfs/content"
	"github.com/GoogleCloudPlatform/tinyfs/device"
	"github.com/GoogleCloudPlatform/tinyfs/dirent"
	"github.com/GoogleCloudPlatform/tinyfs/fileh"
	"github.com/GoogleCloudPlatform/tinyfs/fsyscall"
	"github.com/GoogleCloudPlatform/tinyfs/inode"
	"github.com/GoogleCloudPlatform/tinyfs/internal/bcache"
	"github.com/GoogleCloudPlatform/tinyfs/internal/blockdev"
	"github.com/GoogleCloudPlatform/tinyfs/internal/logger"
	"github.com/GoogleCloudPlatform/tinyfs/internal/txlog"
	"github.com/GoogleCloudPlatform/tinyfs/params"
	"github.com/GoogleCloudPlatform/tinyfs/path"
	"github.com/GoogleCloudPlatform/tinyfs/proc"
	"github.com/GoogleCloudPlatform/tinyfs/super"
)

// FileSystem is one mounted device and every layer built on top of it.
type FileSystem struct {
	dev     *blockdev.Device
	cache   *bcache.Cache
	log     *txlog.Log
	sb      *super.Superblock
	alloc   *balloc.Allocator
	inodes  *inode.Table
	content *content.Mapper
	devices *device.Switch
	files   *fileh.Table
	Syscall *fsyscall.Server
}

const thisDevice = 0

// Format creates a new backing file at path with the given block and
// inode counts, lays out the on-disk structures, creates the root
// directory, and returns it mounted and ready for use.
func Format(path string, blockCount, inodeCount uint32) (*FileSystem, error) {
	dev, err := blockdev.Create(path, blockCount)
	if err != nil {
		return nil, err
	}
	cache := bcache.New(dev)

	sb, err := super.Format(cache, blockCount, inodeCount)
	if err != nil {
		dev.Close()
		return nil, err
	}

	log, err := txlog.Open(cache, sb.LogStart, sb.NLog)
	if err != nil {
		dev.Close()
		return nil, err
	}

	fs := build(dev, cache, log, sb)

	log.Begin()
	root, err := fs.inodes.Alloc(thisDevice, params.TypeDir)
	if err != nil {
		log.End()
		return nil, err
	}
	if root.Inum != params.RootIno {
		log.End()
		return nil, fmt.Errorf("mount: root directory did not land on inode %d", params.RootIno)
	}
	if err := root.Lock(); err != nil {
		log.End()
		return nil, err
	}
	root.Nlink = 1
	if err := root.Update(); err != nil {
		root.Unlock()
		log.End()
		return nil, err
	}
	if err := dirent.Link(fs.content, root, ".", root.Inum); err != nil {
		root.Unlock()
		log.End()
		return nil, err
	}
	if err := dirent.Link(fs.content, root, "..", root.Inum); err != nil {
		root.Unlock()
		log.End()
		return nil, err
	}
	root.Unlock()
	if err := fs.inodes.Put(root); err != nil {
		log.End()
		return nil, err
	}
	if err := log.End(); err != nil {
		return nil, err
	}

	logger.Infof("mount: formatted %s: %d blocks, %d inodes", path, blockCount, inodeCount)
	return fs, nil
}

// Open mounts an already-formatted backing file at path.
func Open(path string) (*FileSystem, error) {
	// The superblock is read before its own block count is known, so the
	// device is opened provisionally with just the boot block and the
	// superblock in range, and widened once the true size is known.
	probe, err := blockdev.Open(path, 2)
	if err != nil {
		return nil, err
	}
	probeCache := bcache.New(probe)
	sb, err := super.Read(probeCache)
	probe.Close()
	if err != nil {
		return nil, err
	}

	dev, err := blockdev.Open(path, sb.Size)
	if err != nil {
		return nil, err
	}
	cache := bcache.New(dev)

	log, err := txlog.Open(cache, sb.LogStart, sb.NLog)
	if err != nil {
		dev.Close()
		return nil, err
	}

	logger.Infof("mount: opened %s: %d blocks, %d inodes", path, sb.Size, sb.NInodes)
	return build(dev, cache, log, sb), nil
}

func build(dev *blockdev.Device, cache *bcache.Cache, log *txlog.Log, sb *super.Superblock) *FileSystem {
	alloc := balloc.New(cache, log, sb)
	inodes := inode.New(cache, log, sb, alloc)
	devices := device.NewSwitch()
	devices.Register(params.ConsoleMajor, device.NewConsole(os.Stdin, os.Stdout).Entry())
	devices.Register(params.NullMajor, device.Null{}.Entry())
	contentMapper := content.New(cache, log, alloc, devices)
	files := fileh.New(contentMapper, inodes)
	syscallServer := fsyscall.New(log, inodes, contentMapper, files, thisDevice)

	return &FileSystem{
		dev: dev, cache: cache, log: log, sb: sb,
		alloc: alloc, inodes: inodes, content: contentMapper,
		devices: devices, files: files, Syscall: syscallServer,
	}
}

// RootProcess returns a new Process whose working directory is the
// filesystem root, ready to be handed to Syscall's methods.
func (fs *FileSystem) RootProcess() (*proc.Process, error) {
	root := fs.inodes.Get(thisDevice, params.RootIno)
	return proc.New(root), nil
}

// ListDir resolves name to a directory relative to p's cwd and returns
// its entries. It is a read-only convenience built directly on packages
// path and dirent for callers (the shell's "ls") that want a full
// listing rather than a single lookup.
func (fs *FileSystem) ListDir(p *proc.Process, name string) ([]dirent.Dirent, error) {
	r := path.New(fs.inodes, fs.content, thisDevice)
	ip, err := r.Namei(name, p.Cwd())
	if err != nil {
		return nil, err
	}
	if err := ip.Lock(); err != nil {
		return nil, err
	}
	if ip.Type != params.TypeDir {
		ip.Unlock()
		if err := fs.inodes.Put(ip); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("mount: %q is not a directory", name)
	}
	entries, err := dirent.ReadDir(fs.content, ip)
	ip.Unlock()
	if putErr := fs.inodes.Put(ip); putErr != nil && err == nil {
		err = putErr
	}
	return entries, err
}

// Close flushes and releases the backing device.
func (fs *FileSystem) Close() error {
	if err := fs.dev.Sync(); err != nil {
		return fmt.Errorf("mount: sync on close: %w", err)
	}
	return fs.dev.Close()
}
