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

package balloc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoogleCloudPlatform/tinyfs/internal/bcache"
	"github.com/GoogleCloudPlatform/tinyfs/internal/blockdev"
	"github.com/GoogleCloudPlatform/tinyfs/internal/txlog"
	"github.com/GoogleCloudPlatform/tinyfs/super"
)

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := blockdev.Create(path, 256)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })

	cache := bcache.New(dev)
	sb, err := super.Format(cache, 256, 32)
	require.NoError(t, err)
	log, err := txlog.Open(cache, sb.LogStart, sb.NLog)
	require.NoError(t, err)

	return New(cache, log, sb)
}

func withTx(t *testing.T, log *txlog.Log, fn func()) {
	t.Helper()
	log.Begin()
	fn()
	require.NoError(t, log.End())
}

func TestAllocReturnsDistinctZeroedBlocks(t *testing.T) {
	a := newTestAllocator(t)

	var b1, b2 uint32
	withTx(t, a.log, func() {
		var err error
		b1, err = a.Alloc()
		require.NoError(t, err)
		b2, err = a.Alloc()
		require.NoError(t, err)
	})

	assert.NotEqual(t, b1, b2)

	buf, err := a.cache.Get(b1)
	require.NoError(t, err)
	for _, byteVal := range buf.Data {
		assert.Zero(t, byteVal)
	}
	a.cache.Release(buf)
}

func TestFreeThenReallocReusesBlock(t *testing.T) {
	a := newTestAllocator(t)

	var b uint32
	withTx(t, a.log, func() {
		var err error
		b, err = a.Alloc()
		require.NoError(t, err)
	})
	withTx(t, a.log, func() {
		require.NoError(t, a.Free(b))
	})

	seen := false
	withTx(t, a.log, func() {
		for i := 0; i < 8; i++ {
			n, err := a.Alloc()
			require.NoError(t, err)
			if n == b {
				seen = true
			}
			require.NoError(t, a.Free(n))
		}
	})
	assert.True(t, seen, "expected the freed block to be reallocated")
}

func TestFreeingAlreadyFreeBlockPanics(t *testing.T) {
	a := newTestAllocator(t)

	var b uint32
	withTx(t, a.log, func() {
		var err error
		b, err = a.Alloc()
		require.NoError(t, err)
		require.NoError(t, a.Free(b))
	})

	assert.Panics(t, func() {
		a.log.Begin()
		defer a.log.End()
		_ = a.Free(b)
	})
}
