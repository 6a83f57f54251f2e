package bptree

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"ridgedb/internal/common"
)

// TestConcurrent_Inserts mirrors the chunked-goroutine insert pattern used
// against helin's in-memory-paged tree: many writers crab down the same
// tree concurrently and every key must end up reachable afterward.
func TestConcurrent_Inserts(t *testing.T) {
	cfg := common.DefaultConfig()
	cfg.LeafMaxSize = 6
	cfg.InternalMaxSize = 6
	tree := newTestTree(t, cfg)

	const n, chunkSize = 5000, 250
	r := rand.New(rand.NewSource(42))
	inserted := r.Perm(n)

	wg := &sync.WaitGroup{}
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		chunk := inserted[start:end]
		wg.Add(1)
		go func(keys []int) {
			defer wg.Done()
			for _, k := range keys {
				_, err := tree.Insert(common.Int64Key(k), rid(int64(k)))
				require.NoError(t, err)
			}
		}(chunk)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		v, found, err := tree.GetValue(common.Int64Key(i))
		require.NoError(t, err)
		require.True(t, found, "key %d should be present", i)
		require.Equal(t, rid(int64(i)), v)
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()

	count := 0
	var prev int64 = -1
	for it.Valid() {
		k := int64(it.Key().(common.Int64Key))
		require.Less(t, prev, k)
		prev = k
		count++
		require.NoError(t, it.Next())
	}
	require.Equal(t, n, count)
}

// TestConcurrent_InsertsAndRemoves interleaves writers inserting a fresh
// key range with writers removing a disjoint one, exercising split and
// merge propagation under concurrent latch-crabbing at once.
func TestConcurrent_InsertsAndRemoves(t *testing.T) {
	cfg := common.DefaultConfig()
	cfg.LeafMaxSize = 6
	cfg.InternalMaxSize = 6
	tree := newTestTree(t, cfg)

	const preload = 2000
	for i := 0; i < preload; i++ {
		_, err := tree.Insert(common.Int64Key(i), rid(int64(i)))
		require.NoError(t, err)
	}

	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < preload; i += 2 {
			_, err := tree.Remove(common.Int64Key(i))
			require.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := preload; i < preload*2; i++ {
			_, err := tree.Insert(common.Int64Key(i), rid(int64(i)))
			require.NoError(t, err)
		}
	}()
	wg.Wait()

	for i := 0; i < preload; i += 2 {
		_, found, err := tree.GetValue(common.Int64Key(i))
		require.NoError(t, err)
		require.False(t, found, fmt.Sprintf("key %d should have been removed", i))
	}
	for i := 1; i < preload; i += 2 {
		_, found, err := tree.GetValue(common.Int64Key(i))
		require.NoError(t, err)
		require.True(t, found)
	}
	for i := preload; i < preload*2; i++ {
		_, found, err := tree.GetValue(common.Int64Key(i))
		require.NoError(t, err)
		require.True(t, found)
	}
}
