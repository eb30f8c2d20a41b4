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

package fsyscall

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoogleCloudPlatform/tinyfs/balloc"
	"github.com/GoogleCloudPlatform/tinyfs/content"
	"github.com/GoogleCloudPlatform/tinyfs/device"
	"github.com/GoogleCloudPlatform/tinyfs/dirent"
	"github.com/GoogleCloudPlatform/tinyfs/fileh"
	"github.com/GoogleCloudPlatform/tinyfs/inode"
	"github.com/GoogleCloudPlatform/tinyfs/internal/bcache"
	"github.com/GoogleCloudPlatform/tinyfs/internal/blockdev"
	"github.com/GoogleCloudPlatform/tinyfs/internal/txlog"
	"github.com/GoogleCloudPlatform/tinyfs/params"
	"github.com/GoogleCloudPlatform/tinyfs/proc"
	"github.com/GoogleCloudPlatform/tinyfs/super"
)

func newTestServer(t *testing.T) (*Server, *proc.Process) {
	t.Helper()
	diskPath := filepath.Join(t.TempDir(), "disk.img")
	dev, err := blockdev.Create(diskPath, 2048)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })

	cache := bcache.New(dev)
	sb, err := super.Format(cache, 2048, 64)
	require.NoError(t, err)
	log, err := txlog.Open(cache, sb.LogStart, sb.NLog)
	require.NoError(t, err)
	alloc := balloc.New(cache, log, sb)
	inodes := inode.New(cache, log, sb, alloc)
	m := content.New(cache, log, alloc, device.NewSwitch())

	log.Begin()
	root, err := inodes.Alloc(0, params.TypeDir)
	require.NoError(t, err)
	require.NoError(t, root.Lock())
	root.Nlink = 1
	require.NoError(t, root.Update())
	require.NoError(t, dirent.Link(m, root, ".", root.Inum))
	require.NoError(t, dirent.Link(m, root, "..", root.Inum))
	root.Unlock()
	require.NoError(t, log.End())

	files := fileh.New(m, inodes)
	s := New(log, inodes, m, files, 0)
	return s, proc.New(root)
}

func TestDupSharesTheSameFileEntry(t *testing.T) {
	s, p := newTestServer(t)

	fd, err := s.Open(p, "a.txt", OCreate|ORdWr)
	require.NoError(t, err)
	_, err = s.Write(p, fd, []byte("hi"))
	require.NoError(t, err)

	dupfd, err := s.Dup(p, fd)
	require.NoError(t, err)
	assert.NotEqual(t, fd, dupfd)

	require.NoError(t, s.Close(p, fd))

	// The dup still works after fd is closed, and it shares the cursor the
	// write through fd already advanced past "hi".
	buf := make([]byte, 2)
	n, err := s.Read(p, dupfd, buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	require.NoError(t, s.Close(p, dupfd))
}

func TestChdirThenRelativeOpenResolvesInsideSubdir(t *testing.T) {
	s, p := newTestServer(t)

	require.NoError(t, s.Mkdir(p, "sub"))
	require.NoError(t, s.Chdir(p, "sub"))

	fd, err := s.Open(p, "inner.txt", OCreate|OWrOnly)
	require.NoError(t, err)
	require.NoError(t, s.Close(p, fd))

	fd, err = s.Open(p, "/sub/inner.txt", ORdOnly)
	require.NoError(t, err)
	require.NoError(t, s.Close(p, fd))
}

func TestChdirIntoFileFails(t *testing.T) {
	s, p := newTestServer(t)

	fd, err := s.Open(p, "notadir.txt", OCreate|OWrOnly)
	require.NoError(t, err)
	require.NoError(t, s.Close(p, fd))

	err = s.Chdir(p, "notadir.txt")
	assert.Error(t, err)
}

func TestMknodCreatesDeviceSpecialFile(t *testing.T) {
	s, p := newTestServer(t)

	require.NoError(t, s.Mknod(p, "dev0", 7, 3))

	fd, err := s.Open(p, "dev0", ORdOnly)
	require.NoError(t, err)
	st, err := s.Fstat(p, fd)
	require.NoError(t, err)
	assert.EqualValues(t, params.TypeDev, st.Type)
	require.NoError(t, s.Close(p, fd))
}

func TestOpenDirectoryForWriteFails(t *testing.T) {
	s, p := newTestServer(t)

	require.NoError(t, s.Mkdir(p, "sub"))
	_, err := s.Open(p, "sub", OWrOnly)
	assert.Error(t, err)
}
