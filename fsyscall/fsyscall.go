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

// Package fsyscall is the syscall envelope: open, link, unlink, mkdir,
// mknod, chdir, dup, close, read, write, fstat, and pipe, each one built
// on the lower layers and each mutating call wrapped in exactly one
// txlog transaction so a crash mid-syscall never leaves the disk in a
// partially-updated state. The one exception is write, which splits a
// large write into several transactions, each atomic on its own. One
// small method per syscall, each
// validating arguments, acquiring what it needs, and delegating to a
// collaborator.
package fsyscall

import (
	"fmt"

	"github.com/GoogleCloudPlatform/tinyfs/content"
	"github.com/GoogleCloudPlatform/tinyfs/dirent"
	"github.com/GoogleCloudPlatform/tinyfs/fileh"
	"github.com/GoogleCloudPlatform/tinyfs/inode"
	"github.com/GoogleCloudPlatform/tinyfs/internal/logger"
	"github.com/GoogleCloudPlatform/tinyfs/internal/txlog"
	"github.com/GoogleCloudPlatform/tinyfs/params"
	"github.com/GoogleCloudPlatform/tinyfs/path"
	"github.com/GoogleCloudPlatform/tinyfs/pipe"
	"github.com/GoogleCloudPlatform/tinyfs/proc"
)

// Open flags.
const (
	ORdOnly = 0x0
	OWrOnly = 0x1
	ORdWr   = 0x2
	OCreate = 0x200
)

// Server is the single entry point every syscall method hangs off of. It
// owns no process state itself; every method takes the calling Process
// explicitly, so the envelope itself stays stateless with respect to
// which process is calling.
type Server struct {
	log     *txlog.Log
	inodes  *inode.Table
	content *content.Mapper
	files   *fileh.Table
	dev     uint32
}

// New constructs a syscall Server over one device's lower layers.
func New(log *txlog.Log, inodes *inode.Table, content *content.Mapper, files *fileh.Table, dev uint32) *Server {
	return &Server{log: log, inodes: inodes, content: content, files: files, dev: dev}
}

func (s *Server) resolver() *path.Resolver {
	return path.New(s.inodes, s.content, s.dev)
}

// Open resolves name relative to p's cwd, optionally creating it as a
// plain file when flags includes OCreate, and installs the result as a
// new descriptor on p.
func (s *Server) Open(p *proc.Process, name string, flags int) (int, error) {
	s.log.Begin()
	defer s.log.End()

	var ip *inode.Inode
	var err error
	if flags&OCreate != 0 {
		ip, err = s.create(p, name, params.TypeFile, 0, 0)
		if err != nil {
			return -1, err
		}
	} else {
		r := s.resolver()
		ip, err = r.Namei(name, p.Cwd())
		if err != nil {
			return -1, err
		}
		if err := ip.Lock(); err != nil {
			return -1, err
		}
	}
	if ip.Type == params.TypeDir && flags != ORdOnly {
		ip.Unlock()
		if err := s.inodes.Put(ip); err != nil {
			logger.Errorf("fsyscall: open cleanup failed: %v", err)
		}
		return -1, fmt.Errorf("fsyscall: open: %q is a directory, write access denied", name)
	}

	readable := flags&OWrOnly == 0
	writable := flags&OWrOnly != 0 || flags&ORdWr != 0

	f, err := s.files.AllocInode(ip, readable, writable)
	if err != nil {
		ip.Unlock()
		if err2 := s.inodes.Put(ip); err2 != nil {
			logger.Errorf("fsyscall: open cleanup failed: %v", err2)
		}
		return -1, err
	}
	ip.Unlock()
	fd, err := p.AddFile(f)
	if err != nil {
		if err2 := s.files.Close(f); err2 != nil {
			logger.Errorf("fsyscall: open cleanup failed: %v", err2)
		}
		return -1, err
	}
	logger.Debugf("fsyscall: opened %q as fd %d for process %s", name, fd, p.ID)
	return fd, nil
}

// create implements the shared core of sys_open(O_CREATE), sys_mkdir, and
// sys_mknod: resolve the parent directory, reuse an existing entry of a
// matching type if present, otherwise allocate a new inode of typ and
// link it in. Caller must already be inside an open transaction.
func (s *Server) create(p *proc.Process, name string, typ uint16, major, minor uint16) (*inode.Inode, error) {
	r := s.resolver()
	dp, leaf, err := r.NameiParent(name, p.Cwd())
	if err != nil {
		return nil, err
	}
	if err := dp.Lock(); err != nil {
		return nil, err
	}

	if childInum, _, found := dirent.Lookup(s.content, dp, leaf); found {
		dp.Unlock()
		if err := s.inodes.Put(dp); err != nil {
			return nil, err
		}
		child := s.inodes.Get(s.dev, childInum)
		if err := child.Lock(); err != nil {
			return nil, err
		}
		if child.Type != typ {
			child.Unlock()
			if err := s.inodes.Put(child); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("fsyscall: create: %q exists with a different type", name)
		}
		return child, nil
	}

	ip, err := s.inodes.Alloc(s.dev, typ)
	if err != nil {
		dp.Unlock()
		if err2 := s.inodes.Put(dp); err2 != nil {
			logger.Errorf("fsyscall: create cleanup failed: %v", err2)
		}
		return nil, err
	}
	if err := ip.Lock(); err != nil {
		dp.Unlock()
		if err2 := s.inodes.Put(dp); err2 != nil {
			logger.Errorf("fsyscall: create cleanup failed: %v", err2)
		}
		return nil, err
	}
	ip.Major, ip.Minor, ip.Nlink = major, minor, 1
	if err := ip.Update(); err != nil {
		return nil, err
	}

	if typ == params.TypeDir {
		dp.Nlink++
		if err := dp.Update(); err != nil {
			return nil, err
		}
		if err := dirent.Link(s.content, ip, ".", ip.Inum); err != nil {
			return nil, err
		}
		if err := dirent.Link(s.content, ip, "..", dp.Inum); err != nil {
			return nil, err
		}
	}

	if err := dirent.Link(s.content, dp, leaf, ip.Inum); err != nil {
		return nil, err
	}

	dp.Unlock()
	if err := s.inodes.Put(dp); err != nil {
		return nil, err
	}
	logger.Debugf("fsyscall: created inode %d (type %d) as %q", ip.Inum, typ, name)
	return ip, nil
}

// Mkdir creates an empty directory at name.
func (s *Server) Mkdir(p *proc.Process, name string) error {
	s.log.Begin()
	defer s.log.End()
	ip, err := s.create(p, name, params.TypeDir, 0, 0)
	if err != nil {
		return err
	}
	ip.Unlock()
	return s.inodes.Put(ip)
}

// Mknod creates a device special file at name with the given major/minor.
func (s *Server) Mknod(p *proc.Process, name string, major, minor uint16) error {
	s.log.Begin()
	defer s.log.End()
	ip, err := s.create(p, name, params.TypeDev, major, minor)
	if err != nil {
		return err
	}
	ip.Unlock()
	return s.inodes.Put(ip)
}

// Link adds newname as another name for the inode currently named
// oldname.
func (s *Server) Link(p *proc.Process, oldname, newname string) error {
	s.log.Begin()
	defer s.log.End()

	r := s.resolver()
	ip, err := r.Namei(oldname, p.Cwd())
	if err != nil {
		return err
	}
	if err := ip.Lock(); err != nil {
		return err
	}
	if ip.Type == params.TypeDir {
		ip.Unlock()
		if err := s.inodes.Put(ip); err != nil {
			return err
		}
		return fmt.Errorf("fsyscall: link: %q is a directory", oldname)
	}
	ip.Nlink++
	err = ip.Update()
	ip.Unlock()
	if err != nil {
		return err
	}

	dp, leaf, err := r.NameiParent(newname, p.Cwd())
	if err != nil {
		return s.undoLink(ip, err)
	}
	if err := dp.Lock(); err != nil {
		return s.undoLink(ip, err)
	}
	if dp.Dev != ip.Dev {
		dp.Unlock()
		if err := s.inodes.Put(dp); err != nil {
			return err
		}
		return s.undoLink(ip, fmt.Errorf("fsyscall: link: %q and %q are on different devices", oldname, newname))
	}
	if err := dirent.Link(s.content, dp, leaf, ip.Inum); err != nil {
		dp.Unlock()
		if err2 := s.inodes.Put(dp); err2 != nil {
			logger.Errorf("fsyscall: link cleanup failed: %v", err2)
		}
		return s.undoLink(ip, err)
	}
	dp.Unlock()
	if err := s.inodes.Put(dp); err != nil {
		return err
	}
	return s.inodes.Put(ip)
}

func (s *Server) undoLink(ip *inode.Inode, cause error) error {
	if err := ip.Lock(); err != nil {
		return err
	}
	ip.Nlink--
	err := ip.Update()
	ip.Unlock()
	if err != nil {
		return err
	}
	if err := s.inodes.Put(ip); err != nil {
		return err
	}
	return cause
}

// Unlink removes name from its parent directory, decrementing the link
// count of the inode it named. Refuses to remove a non-empty directory
// or "." / "..".
func (s *Server) Unlink(p *proc.Process, name string) error {
	s.log.Begin()
	defer s.log.End()

	r := s.resolver()
	dp, leaf, err := r.NameiParent(name, p.Cwd())
	if err != nil {
		return err
	}
	if leaf == "." || leaf == ".." {
		if err := s.inodes.Put(dp); err != nil {
			return err
		}
		return fmt.Errorf("fsyscall: unlink: refusing to remove %q", leaf)
	}
	if err := dp.Lock(); err != nil {
		return err
	}

	childInum, off, found := dirent.Lookup(s.content, dp, leaf)
	if !found {
		dp.Unlock()
		if err := s.inodes.Put(dp); err != nil {
			return err
		}
		return fmt.Errorf("fsyscall: unlink: %q: no such file or directory", name)
	}

	ip := s.inodes.Get(s.dev, childInum)
	if err := ip.Lock(); err != nil {
		dp.Unlock()
		if err2 := s.inodes.Put(dp); err2 != nil {
			logger.Errorf("fsyscall: unlink cleanup failed: %v", err2)
		}
		return err
	}
	if ip.Nlink < 1 {
		panic("fsyscall: unlink: inode with nlink < 1")
	}
	if ip.Type == params.TypeDir {
		empty, err := dirent.IsEmpty(s.content, ip)
		if err != nil {
			ip.Unlock()
			dp.Unlock()
			if err2 := s.inodes.Put(ip); err2 != nil {
				logger.Errorf("fsyscall: unlink cleanup failed: %v", err2)
			}
			if err2 := s.inodes.Put(dp); err2 != nil {
				logger.Errorf("fsyscall: unlink cleanup failed: %v", err2)
			}
			return err
		}
		if !empty {
			ip.Unlock()
			dp.Unlock()
			if err := s.inodes.Put(ip); err != nil {
				return err
			}
			if err := s.inodes.Put(dp); err != nil {
				return err
			}
			return fmt.Errorf("fsyscall: unlink: %q is not empty", name)
		}
	}

	if err := dirent.Unlink(s.content, dp, off); err != nil {
		ip.Unlock()
		dp.Unlock()
		if err2 := s.inodes.Put(ip); err2 != nil {
			logger.Errorf("fsyscall: unlink cleanup failed: %v", err2)
		}
		if err2 := s.inodes.Put(dp); err2 != nil {
			logger.Errorf("fsyscall: unlink cleanup failed: %v", err2)
		}
		return err
	}
	if ip.Type == params.TypeDir {
		dp.Nlink--
		if err := dp.Update(); err != nil {
			return err
		}
	}
	dp.Unlock()
	if err := s.inodes.Put(dp); err != nil {
		return err
	}

	ip.Nlink--
	err = ip.Update()
	ip.Unlock()
	if err != nil {
		return err
	}
	logger.Debugf("fsyscall: unlinked %q (inode %d)", name, ip.Inum)
	return s.inodes.Put(ip)
}

// Chdir replaces p's working directory with the directory named by name.
func (s *Server) Chdir(p *proc.Process, name string) error {
	s.log.Begin()
	defer s.log.End()

	r := s.resolver()
	ip, err := r.Namei(name, p.Cwd())
	if err != nil {
		return err
	}
	if err := ip.Lock(); err != nil {
		return err
	}
	if ip.Type != params.TypeDir {
		ip.Unlock()
		if err := s.inodes.Put(ip); err != nil {
			return err
		}
		return fmt.Errorf("fsyscall: chdir: %q is not a directory", name)
	}
	ip.Unlock()

	old := p.Cwd()
	p.SetCwd(ip)
	return s.inodes.Put(old)
}

// Dup duplicates the open file at fd into a new descriptor.
func (s *Server) Dup(p *proc.Process, fd int) (int, error) {
	f, err := p.GetFile(fd)
	if err != nil {
		return -1, err
	}
	return p.AddFile(f.Dup())
}

// Close releases descriptor fd.
func (s *Server) Close(p *proc.Process, fd int) error {
	f, err := p.ClearFile(fd)
	if err != nil {
		return err
	}
	s.log.Begin()
	defer s.log.End()
	return s.files.Close(f)
}

// Read reads up to len(dst) bytes from descriptor fd.
func (s *Server) Read(p *proc.Process, fd int, dst []byte) (int, error) {
	f, err := p.GetFile(fd)
	if err != nil {
		return 0, err
	}
	return f.Read(dst)
}

// Write writes len(src) bytes to descriptor fd, one transaction per chunk
// of at most FileWriteMaxBlocks*BSIZE bytes. A chunk that does not start
// on a block boundary touches FileWriteMaxBlocks+1 data blocks.
func (s *Server) Write(p *proc.Process, fd int, src []byte) (int, error) {
	f, err := p.GetFile(fd)
	if err != nil {
		return 0, err
	}

	chunkBytes := params.FileWriteMaxBlocks * params.BSIZE
	var total int
	for total < len(src) {
		end := total + chunkBytes
		if end > len(src) {
			end = len(src)
		}
		s.log.Begin()
		n, err := f.Write(src[total:end])
		s.log.End()
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// Fstat reports metadata about descriptor fd's underlying inode.
func (s *Server) Fstat(p *proc.Process, fd int) (fileh.Stat, error) {
	f, err := p.GetFile(fd)
	if err != nil {
		return fileh.Stat{}, err
	}
	return f.Stat()
}

// Pipe creates a pipe and installs its two ends as new descriptors on p,
// returning (readFd, writeFd).
func (s *Server) Pipe(p *proc.Process) (int, int, error) {
	pp := pipe.New()

	rf, err := s.files.AllocPipe(pp, false)
	if err != nil {
		return -1, -1, err
	}
	wf, err := s.files.AllocPipe(pp, true)
	if err != nil {
		if err2 := s.files.Close(rf); err2 != nil {
			logger.Errorf("fsyscall: pipe cleanup failed: %v", err2)
		}
		return -1, -1, err
	}

	rfd, err := p.AddFile(rf)
	if err != nil {
		if err2 := s.files.Close(rf); err2 != nil {
			logger.Errorf("fsyscall: pipe cleanup failed: %v", err2)
		}
		if err2 := s.files.Close(wf); err2 != nil {
			logger.Errorf("fsyscall: pipe cleanup failed: %v", err2)
		}
		return -1, -1, err
	}
	wfd, err := p.AddFile(wf)
	if err != nil {
		if err2 := s.files.Close(wf); err2 != nil {
			logger.Errorf("fsyscall: pipe cleanup failed: %v", err2)
		}
		return -1, -1, err
	}
	return rfd, wfd, nil
}
