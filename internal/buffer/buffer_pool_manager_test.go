package buffer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridgedb/internal/disk"
)

func newTestBPM(t *testing.T, poolSize int) *BufferPoolManager {
	t.Helper()
	dm := disk.NewMemManager(4096)
	return NewBufferPoolManager(poolSize, 4096, dm)
}

// TestBufferPoolManager_PoolExhaustionAndEviction uses a pool of size 2:
// two pinned new pages, a third NewPage fails until a pin is released, and
// the evicted dirty page is written back before reuse.
func TestBufferPoolManager_PoolExhaustionAndEviction(t *testing.T) {
	bpm := newTestBPM(t, 2)

	p1, err := bpm.NewPage()
	require.NoError(t, err)
	p2, err := bpm.NewPage()
	require.NoError(t, err)

	_, err = bpm.NewPage()
	assert.ErrorIs(t, err, ErrPoolExhausted)

	copy(p1.Data(), []byte("dirty-payload"))
	require.NoError(t, bpm.UnpinPage(p1.PageID(), true))

	p3, err := bpm.NewPage()
	require.NoError(t, err)
	require.NotNil(t, p3)

	// p1's frame was evicted and its dirty content written back to disk.
	readBack := make([]byte, 4096)
	require.NoError(t, bpm.diskManager.ReadPage(p1.PageID(), readBack))
	assert.Equal(t, []byte("dirty-payload"), readBack[:len("dirty-payload")])

	require.NoError(t, bpm.UnpinPage(p2.PageID(), false))
	require.NoError(t, bpm.UnpinPage(p3.PageID(), false))
}

func TestBufferPoolManager_FetchPageReturnsSameFrameWhileResident(t *testing.T) {
	bpm := newTestBPM(t, 4)

	p, err := bpm.NewPage()
	require.NoError(t, err)
	id := p.PageID()
	require.NoError(t, bpm.UnpinPage(id, false))

	fetched, err := bpm.FetchPage(id)
	require.NoError(t, err)
	assert.Same(t, p, fetched)
	assert.Equal(t, 1, fetched.PinCount())
	require.NoError(t, bpm.UnpinPage(id, false))
}

func TestBufferPoolManager_UnpinUnknownPageErrors(t *testing.T) {
	bpm := newTestBPM(t, 4)
	err := bpm.UnpinPage(999, false)
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func TestBufferPoolManager_DeletePageRejectsPinned(t *testing.T) {
	bpm := newTestBPM(t, 4)
	p, err := bpm.NewPage()
	require.NoError(t, err)

	ok, err := bpm.DeletePage(p.PageID())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, bpm.UnpinPage(p.PageID(), false))
	ok, err = bpm.DeletePage(p.PageID())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBufferPoolManager_DeleteAbsentPageIsNoop(t *testing.T) {
	bpm := newTestBPM(t, 4)
	ok, err := bpm.DeletePage(12345)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestBufferPoolManager_RoundTripsRandomPages mirrors
// helin/buffer.BufferPool's corruption-detection test: write random pages
// through a small pool, forcing evictions, then read every page back.
func TestBufferPoolManager_RoundTripsRandomPages(t *testing.T) {
	bpm := newTestBPM(t, 3)

	const n = 40
	want := make([][]byte, n)
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		p, err := bpm.NewPage()
		require.NoError(t, err)
		ids[i] = p.PageID()

		payload := make([]byte, 4096)
		rand.Read(payload)
		copy(p.Data(), payload)
		want[i] = payload

		require.NoError(t, bpm.UnpinPage(p.PageID(), true))
	}

	for i := 0; i < n; i++ {
		p, err := bpm.FetchPage(ids[i])
		require.NoError(t, err)
		assert.Equal(t, want[i], p.Data())
		require.NoError(t, bpm.UnpinPage(ids[i], false))
	}
}

// TestBufferPoolManager_FlushAllObservesCurrentMapping checks FlushAllPages
// writes back every currently mapped page (all of them dirty here).
func TestBufferPoolManager_FlushAllObservesCurrentMapping(t *testing.T) {
	bpm := newTestBPM(t, 4)

	var ids []int64
	for i := 0; i < 3; i++ {
		p, err := bpm.NewPage()
		require.NoError(t, err)
		copy(p.Data(), []byte{byte(i + 1)})
		ids = append(ids, p.PageID())
		require.NoError(t, bpm.UnpinPage(p.PageID(), true))
	}

	require.NoError(t, bpm.FlushAllPages())

	for i, id := range ids {
		buf := make([]byte, 4096)
		require.NoError(t, bpm.diskManager.ReadPage(id, buf))
		assert.Equal(t, byte(i+1), buf[0])
	}
}
