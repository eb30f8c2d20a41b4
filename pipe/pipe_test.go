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

package pipe

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	p := New()
	n, err := p.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}

func TestReadBlocksUntilWrite(t *testing.T) {
	p := New()
	done := make(chan struct{})
	var got []byte

	go func() {
		buf := make([]byte, 3)
		n, err := p.Read(buf)
		assert.NoError(t, err)
		got = buf[:n]
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	_, err := p.Write([]byte("abc"))
	require.NoError(t, err)

	select {
	case <-done:
		assert.Equal(t, "abc", string(got))
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock after Write")
	}
}

func TestWriteAfterCloseReadErrors(t *testing.T) {
	p := New()
	p.CloseRead()
	_, err := p.Write([]byte("x"))
	assert.Error(t, err)
}

func TestReadReturnsZeroAfterCloseWriteDrains(t *testing.T) {
	p := New()
	_, err := p.Write([]byte("ab"))
	require.NoError(t, err)
	p.CloseWrite()

	buf := make([]byte, 2)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWriteBlocksWhenFull(t *testing.T) {
	p := New()
	full := make([]byte, Capacity)
	n, err := p.Write(full)
	require.NoError(t, err)
	require.Equal(t, Capacity, n)

	var wg sync.WaitGroup
	var unblocked atomic.Bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := p.Write([]byte("x"))
		assert.NoError(t, err)
		unblocked.Store(true)
	}()

	time.Sleep(10 * time.Millisecond)
	assert.False(t, unblocked.Load(), "write should still be blocked on a full pipe")

	buf := make([]byte, 1)
	_, err = p.Read(buf)
	require.NoError(t, err)

	wg.Wait()
	assert.True(t, unblocked.Load())
}
