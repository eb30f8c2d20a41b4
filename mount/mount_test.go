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

package mount

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoogleCloudPlatform/tinyfs/fsyscall"
	"github.com/GoogleCloudPlatform/tinyfs/params"
)

func newTestFS(t *testing.T) *FileSystem {
	t.Helper()
	diskPath := filepath.Join(t.TempDir(), "disk.img")
	fs, err := Format(diskPath, 4096, 200)
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })
	return fs
}

// TestCreateWriteReadRoundTrip checks that a freshly formatted
// filesystem can create a file, write to it, and read back exactly what
// was written.
func TestCreateWriteReadRoundTrip(t *testing.T) {
	fs := newTestFS(t)
	p, err := fs.RootProcess()
	require.NoError(t, err)
	s := fs.Syscall

	fd, err := s.Open(p, "hello.txt", fsyscall.OCreate|fsyscall.OWrOnly)
	require.NoError(t, err)
	n, err := s.Write(p, fd, []byte("hello, tinyfs"))
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	require.NoError(t, s.Close(p, fd))

	fd, err = s.Open(p, "hello.txt", fsyscall.ORdOnly)
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err = s.Read(p, fd, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello, tinyfs", string(buf[:n]))
	require.NoError(t, s.Close(p, fd))
}

// TestMkdirAndFstat checks that a created directory reports type dir.
func TestMkdirAndFstat(t *testing.T) {
	fs := newTestFS(t)
	p, err := fs.RootProcess()
	require.NoError(t, err)
	s := fs.Syscall

	require.NoError(t, s.Mkdir(p, "sub"))

	fd, err := s.Open(p, "sub", fsyscall.ORdOnly)
	require.NoError(t, err)
	st, err := s.Fstat(p, fd)
	require.NoError(t, err)
	assert.EqualValues(t, params.TypeDir, st.Type)
	require.NoError(t, s.Close(p, fd))
}

// TestLinkUnlinkNamei checks that creating a second name for a file,
// then removing the original name, still resolves the content through the
// surviving name; removing the last name makes it unreachable.
func TestLinkUnlinkNamei(t *testing.T) {
	fs := newTestFS(t)
	p, err := fs.RootProcess()
	require.NoError(t, err)
	s := fs.Syscall

	fd, err := s.Open(p, "orig.txt", fsyscall.OCreate|fsyscall.OWrOnly)
	require.NoError(t, err)
	_, err = s.Write(p, fd, []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, s.Close(p, fd))

	require.NoError(t, s.Link(p, "orig.txt", "alias.txt"))
	require.NoError(t, s.Unlink(p, "orig.txt"))

	fd, err = s.Open(p, "alias.txt", fsyscall.ORdOnly)
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := s.Read(p, fd, buf)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf[:n]))
	require.NoError(t, s.Close(p, fd))

	_, err = s.Open(p, "orig.txt", fsyscall.ORdOnly)
	assert.Error(t, err)
}

// TestUnlinkNonEmptyDirectoryFails checks that unlink refuses a directory
// that still has entries.
func TestUnlinkNonEmptyDirectoryFails(t *testing.T) {
	fs := newTestFS(t)
	p, err := fs.RootProcess()
	require.NoError(t, err)
	s := fs.Syscall

	require.NoError(t, s.Mkdir(p, "sub"))
	fd, err := s.Open(p, "sub/file.txt", fsyscall.OCreate|fsyscall.OWrOnly)
	require.NoError(t, err)
	require.NoError(t, s.Close(p, fd))

	err = s.Unlink(p, "sub")
	assert.Error(t, err)
}

// TestLargeChunkedWrite checks that a write spanning many transaction
// chunks reads back byte-for-byte.
func TestLargeChunkedWrite(t *testing.T) {
	fs := newTestFS(t)
	p, err := fs.RootProcess()
	require.NoError(t, err)
	s := fs.Syscall

	want := bytes.Repeat([]byte("0123456789abcdef"), 2048) // 32 KiB

	fd, err := s.Open(p, "big.bin", fsyscall.OCreate|fsyscall.OWrOnly)
	require.NoError(t, err)
	n, err := s.Write(p, fd, want)
	require.NoError(t, err)
	assert.Equal(t, len(want), n)
	require.NoError(t, s.Close(p, fd))

	fd, err = s.Open(p, "big.bin", fsyscall.ORdOnly)
	require.NoError(t, err)
	got := make([]byte, len(want))
	total := 0
	for total < len(got) {
		n, err := s.Read(p, fd, got[total:])
		require.NoError(t, err)
		if n == 0 {
			break
		}
		total += n
	}
	require.NoError(t, s.Close(p, fd))
	assert.Equal(t, want, got[:total])
}

// TestPipeRoundTrip exercises the pipe(2) envelope end to end.
func TestPipeRoundTrip(t *testing.T) {
	fs := newTestFS(t)
	p, err := fs.RootProcess()
	require.NoError(t, err)
	s := fs.Syscall

	rfd, wfd, err := s.Pipe(p)
	require.NoError(t, err)

	_, err = s.Write(p, wfd, []byte("ping"))
	require.NoError(t, err)
	require.NoError(t, s.Close(p, wfd))

	buf := make([]byte, 16)
	n, err := s.Read(p, rfd, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
	require.NoError(t, s.Close(p, rfd))
}

// TestCloseThenReopenSurvivesRemount checks that data written before a
// clean close is visible after closing and reopening the device, the way
// it must remain visible across a restart.
func TestCloseThenReopenSurvivesRemount(t *testing.T) {
	diskPath := filepath.Join(t.TempDir(), "disk.img")
	fs, err := Format(diskPath, 4096, 200)
	require.NoError(t, err)

	p, err := fs.RootProcess()
	require.NoError(t, err)
	fd, err := fs.Syscall.Open(p, "durable.txt", fsyscall.OCreate|fsyscall.OWrOnly)
	require.NoError(t, err)
	_, err = fs.Syscall.Write(p, fd, []byte("still here"))
	require.NoError(t, err)
	require.NoError(t, fs.Syscall.Close(p, fd))
	require.NoError(t, fs.Close())

	reopened, err := Open(diskPath)
	require.NoError(t, err)
	defer reopened.Close()

	p2, err := reopened.RootProcess()
	require.NoError(t, err)
	fd2, err := reopened.Syscall.Open(p2, "durable.txt", fsyscall.ORdOnly)
	require.NoError(t, err)
	buf := make([]byte, 32)
	n, err := reopened.Syscall.Read(p2, fd2, buf)
	require.NoError(t, err)
	assert.Equal(t, "still here", string(buf[:n]))
	require.NoError(t, reopened.Syscall.Close(p2, fd2))
}
