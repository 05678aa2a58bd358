package extsort

import (
	"context"
	"encoding/binary"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobilg/citystream/internal/tiling"
)

func cleanupRuns(t *testing.T, runs []*os.File) {
	t.Helper()
	for _, f := range runs {
		f.Close()
		os.Remove(f.Name())
	}
}

func TestRunBuilderSpillsWhenRAMWindowExceeded(t *testing.T) {
	b := NewRunBuilder(Config{RAMWindowBytes: 64, TempDir: t.TempDir()})

	for i := 0; i < 20; i++ {
		require.NoError(t, b.Add(tiling.TileID(20-i), make([]byte, 8)))
	}
	runs, err := b.Finish()
	require.NoError(t, err)
	defer cleanupRuns(t, runs)

	assert.Greater(t, len(runs), 1, "20 8-byte records with a 64-byte window should spill more than one run")
}

func TestMergeProducesSortedOutputAndPreservesCount(t *testing.T) {
	const n = 5000
	b := NewRunBuilder(Config{RAMWindowBytes: 4096, TempDir: t.TempDir()})

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < n; i++ {
		id := tiling.TileID(rng.Uint64() % 1_000_000)
		payload := make([]byte, 16)
		binary.BigEndian.PutUint64(payload, uint64(id))
		require.NoError(t, b.Add(id, payload))
	}
	runs, err := b.Finish()
	require.NoError(t, err)
	defer cleanupRuns(t, runs)

	var last tiling.TileID
	count := 0
	first := true
	for rec, err := range Merge(context.Background(), runs) {
		require.NoError(t, err)
		if !first {
			assert.LessOrEqual(t, last, rec.ID)
		}
		first = false
		last = rec.ID
		count++
	}
	assert.Equal(t, n, count)
}

// TestMergeAtScale is scenario 6, scaled down from 1,000,000 to 100,000
// 64-byte records to keep the default test suite fast; a 1 MiB RAM
// window forces many spilled runs, exercising the same k-way merge path
// the full-scale scenario would.
func TestMergeAtScale(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping scaled external-sort test in -short mode")
	}

	const n = 100_000
	b := NewRunBuilder(Config{RAMWindowBytes: 1 << 20, TempDir: t.TempDir()})

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < n; i++ {
		id := tiling.TileID(rng.Uint64())
		payload := make([]byte, 56)
		rng.Read(payload)
		require.NoError(t, b.Add(id, payload))
	}
	runs, err := b.Finish()
	require.NoError(t, err)
	defer cleanupRuns(t, runs)

	require.Greater(t, len(runs), 1)

	var last tiling.TileID
	count := 0
	first := true
	for rec, err := range Merge(context.Background(), runs) {
		require.NoError(t, err)
		if !first {
			assert.LessOrEqual(t, last, rec.ID)
		}
		first = false
		last = rec.ID
		count++
	}
	assert.Equal(t, n, count)
}

func TestMergeRespectsCancellation(t *testing.T) {
	b := NewRunBuilder(Config{RAMWindowBytes: 256, TempDir: t.TempDir()})
	for i := 0; i < 50_000; i++ {
		require.NoError(t, b.Add(tiling.TileID(i), make([]byte, 8)))
	}
	runs, err := b.Finish()
	require.NoError(t, err)
	defer cleanupRuns(t, runs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sawErr := false
	for _, err := range Merge(ctx, runs) {
		if err != nil {
			sawErr = true
			break
		}
	}
	assert.True(t, sawErr, "a pre-cancelled context should surface context.Canceled before completing the merge")
}
