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

package fileh

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoogleCloudPlatform/tinyfs/balloc"
	"github.com/GoogleCloudPlatform/tinyfs/content"
	"github.com/GoogleCloudPlatform/tinyfs/device"
	"github.com/GoogleCloudPlatform/tinyfs/inode"
	"github.com/GoogleCloudPlatform/tinyfs/internal/bcache"
	"github.com/GoogleCloudPlatform/tinyfs/internal/blockdev"
	"github.com/GoogleCloudPlatform/tinyfs/internal/txlog"
	"github.com/GoogleCloudPlatform/tinyfs/params"
	"github.com/GoogleCloudPlatform/tinyfs/pipe"
	"github.com/GoogleCloudPlatform/tinyfs/super"
)

type harness struct {
	log    *txlog.Log
	inodes *inode.Table
	files  *Table
}

func newHarness(t *testing.T) *harness {
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

	return &harness{log: log, inodes: inodes, files: New(m, inodes)}
}

func (h *harness) newFileInode(t *testing.T) *inode.Inode {
	t.Helper()
	h.log.Begin()
	ip, err := h.inodes.Alloc(0, params.TypeFile)
	require.NoError(t, err)
	require.NoError(t, ip.Lock())
	ip.Nlink = 1
	require.NoError(t, ip.Update())
	ip.Unlock()
	require.NoError(t, h.log.End())
	return ip
}

func TestInodeFileWriteReadCursorAdvances(t *testing.T) {
	h := newHarness(t)
	ip := h.newFileInode(t)

	f, err := h.files.AllocInode(ip.Dup(), true, true)
	require.NoError(t, err)

	h.log.Begin()
	n, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, h.log.End())
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "cursor is past the data just written")

	h.log.Begin()
	require.NoError(t, h.files.Close(f))
	require.NoError(t, h.log.End())
}

func TestDupSharesCursorAndRef(t *testing.T) {
	h := newHarness(t)
	ip := h.newFileInode(t)

	f, err := h.files.AllocInode(ip.Dup(), true, true)
	require.NoError(t, err)
	g := f.Dup()
	assert.Same(t, f, g)

	h.log.Begin()
	_, err = f.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, h.log.End())

	h.log.Begin()
	require.NoError(t, h.files.Close(f))
	require.NoError(t, h.log.End())

	// g still holds a reference; a read through it should still work.
	buf := make([]byte, 3)
	n, err := g.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n) // cursor already advanced past "abc" by the shared write

	h.log.Begin()
	require.NoError(t, h.files.Close(g))
	require.NoError(t, h.log.End())
}

func TestStatReportsInodeMetadata(t *testing.T) {
	h := newHarness(t)
	ip := h.newFileInode(t)

	f, err := h.files.AllocInode(ip.Dup(), true, true)
	require.NoError(t, err)

	h.log.Begin()
	_, err = f.Write([]byte("xy"))
	require.NoError(t, err)
	require.NoError(t, h.log.End())

	st, err := f.Stat()
	require.NoError(t, err)
	assert.EqualValues(t, params.TypeFile, st.Type)
	assert.EqualValues(t, 2, st.Size)

	h.log.Begin()
	require.NoError(t, h.files.Close(f))
	require.NoError(t, h.log.End())
}

func TestPipeEndsRespectReadableWritable(t *testing.T) {
	h := newHarness(t)
	p := pipe.New()

	rf, err := h.files.AllocPipe(p, false)
	require.NoError(t, err)
	wf, err := h.files.AllocPipe(p, true)
	require.NoError(t, err)

	_, err = rf.Write([]byte("x"))
	assert.Error(t, err)
	_, err = wf.Read(make([]byte, 1))
	assert.Error(t, err)

	n, err := wf.Write([]byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	buf := make([]byte, 2)
	n, err = rf.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))

	h.log.Begin()
	require.NoError(t, h.files.Close(rf))
	require.NoError(t, h.files.Close(wf))
	require.NoError(t, h.log.End())
}
