package unit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sukryu/GoKeep/pkg/adapters/lsmtree"
	"github.com/sukryu/GoKeep/pkg/types"
)

func newLSMTree(t *testing.T, dir string, mutate func(*lsmtree.Config)) *lsmtree.LSMTree {
	config := lsmtree.DefaultConfig()
	config.Directory = dir
	if mutate != nil {
		mutate(&config)
	}
	lsm, err := lsmtree.NewLSMTree(config)
	if err != nil {
		t.Fatalf("failed to create LSMTree: %v", err)
	}
	return lsm
}

func segmentCount(t *testing.T, dir string) int {
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	count := 0
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "segment-") && strings.HasSuffix(f.Name(), ".data") {
			count++
		}
	}
	return count
}

// TestLSMBasicOperations는 Insert, Get, Delete 기본 연산을 검증합니다.
func TestLSMBasicOperations(t *testing.T) {
	dir := createTempDir(t)
	defer removeTempDir(t, dir)

	lsm := newLSMTree(t, dir, nil)
	defer lsm.Close()

	require.NoError(t, lsm.Insert("hello", "world"))
	value, err := lsm.Get("hello")
	require.NoError(t, err)
	assert.Equal(t, "world", value)

	require.NoError(t, lsm.Delete("hello"))
	_, err = lsm.Get("hello")
	assert.True(t, lsmtree.IsNotFound(err), "deleted key must be absent")
}

// TestLSMOverwriteAcrossFlush verifies recency across a memtable flush:
// with threshold 2 the first two puts land in a segment and the third in
// a fresh memtable.
func TestLSMOverwriteAcrossFlush(t *testing.T) {
	dir := createTempDir(t)
	defer removeTempDir(t, dir)

	lsm := newLSMTree(t, dir, func(c *lsmtree.Config) { c.MemtableThreshold = 2 })
	defer lsm.Close()

	require.NoError(t, lsm.Insert("a", "1"))
	require.NoError(t, lsm.Insert("b", "2")) // triggers the flush
	require.NoError(t, lsm.Insert("a", "3"))

	assert.Equal(t, 1, segmentCount(t, dir), "first two puts must have flushed")

	value, err := lsm.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "3", value, "memtable must shadow the segment")
	value, err = lsm.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "2", value, "flushed value must be served from the segment")
}

// TestLSMRecencyAcrossSegments verifies the newest segment wins when the
// same key lives in several.
func TestLSMRecencyAcrossSegments(t *testing.T) {
	dir := createTempDir(t)
	defer removeTempDir(t, dir)

	lsm := newLSMTree(t, dir, nil)
	defer lsm.Close()

	require.NoError(t, lsm.Insert("x", "1"))
	require.NoError(t, lsm.Flush())
	require.NoError(t, lsm.Insert("x", "2"))
	require.NoError(t, lsm.Flush())

	assert.Equal(t, 2, segmentCount(t, dir))
	value, err := lsm.Get("x")
	require.NoError(t, err)
	assert.Equal(t, "2", value)
}

// TestLSMDeleteShadowsSegment verifies a tombstone hides an older
// segment record and that compaction erases the key entirely.
func TestLSMDeleteShadowsSegment(t *testing.T) {
	dir := createTempDir(t)
	defer removeTempDir(t, dir)

	lsm := newLSMTree(t, dir, nil)
	defer lsm.Close()

	require.NoError(t, lsm.Insert("k", "v"))
	require.NoError(t, lsm.Flush())
	require.NoError(t, lsm.Delete("k"))

	_, err := lsm.Get("k")
	assert.True(t, lsmtree.IsNotFound(err))

	require.NoError(t, lsm.ForceCompaction())
	_, err = lsm.Get("k")
	assert.True(t, lsmtree.IsNotFound(err))
	assert.Zero(t, segmentCount(t, dir),
		"a fully tombstoned keyspace must compact to no segments")
}

// TestLSMCompactionDedup verifies compaction keeps exactly the newest
// record per key and deletes the input segments.
func TestLSMCompactionDedup(t *testing.T) {
	dir := createTempDir(t)
	defer removeTempDir(t, dir)

	lsm := newLSMTree(t, dir, nil)
	defer lsm.Close()

	require.NoError(t, lsm.Insert("x", "1"))
	require.NoError(t, lsm.Flush())
	require.NoError(t, lsm.Insert("x", "2"))
	require.NoError(t, lsm.Flush())
	require.Equal(t, 2, segmentCount(t, dir))

	require.NoError(t, lsm.ForceCompaction())
	assert.Equal(t, 1, segmentCount(t, dir), "inputs must be deleted after the merge")

	value, err := lsm.Get("x")
	require.NoError(t, err)
	assert.Equal(t, "2", value)

	// The merged segment must hold exactly one record for x.
	sst, err := lsmtree.OpenSSTable(filepath.Join(dir, "segment-2"))
	require.NoError(t, err)
	defer sst.Close()
	assert.Equal(t, 1, sst.Length())
}

// TestLSMCompactionManyKeys exercises the k-way merge across several
// overlapping segments.
func TestLSMCompactionManyKeys(t *testing.T) {
	dir := createTempDir(t)
	defer removeTempDir(t, dir)

	lsm := newLSMTree(t, dir, nil)
	defer lsm.Close()

	// Three generations of overlapping writes plus some deletes.
	for round := 0; round < 3; round++ {
		for i := round; i < 30; i += 2 {
			key := fmt.Sprintf("key%02d", i)
			require.NoError(t, lsm.Insert(key, fmt.Sprintf("r%d", round)))
		}
		require.NoError(t, lsm.Flush())
	}
	require.NoError(t, lsm.Delete("key00"))
	require.NoError(t, lsm.ForceCompaction())
	assert.Equal(t, 1, segmentCount(t, dir))

	_, err := lsm.Get("key00")
	assert.True(t, lsmtree.IsNotFound(err))

	// key02 was written in rounds 0 and 2; round 2 must win.
	value, err := lsm.Get("key02")
	require.NoError(t, err)
	assert.Equal(t, "r2", value)
	// key01 was only written in round 1.
	value, err = lsm.Get("key01")
	require.NoError(t, err)
	assert.Equal(t, "r1", value)
}

// TestLSMFuzzyGet verifies approximate search across memtable and
// segments with recency and tombstone handling.
func TestLSMFuzzyGet(t *testing.T) {
	dir := createTempDir(t)
	defer removeTempDir(t, dir)

	lsm := newLSMTree(t, dir, nil)
	defer lsm.Close()

	require.NoError(t, lsm.Insert("apple", "fruit"))
	require.NoError(t, lsm.Insert("apply", "action"))
	require.NoError(t, lsm.Insert("banana", "yellow"))

	matches, err := lsm.FuzzyGet("aple", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, types.Entry{Key: "apple", Value: "fruit"}, matches[0])

	matches, err = lsm.FuzzyGet("aple", 2)
	require.NoError(t, err)
	keys := map[string]string{}
	for _, e := range matches {
		keys[e.Key] = e.Value
	}
	assert.Equal(t, map[string]string{"apple": "fruit", "apply": "action"}, keys)

	_, err = lsm.FuzzyGet("aple", -1)
	assert.ErrorIs(t, err, lsmtree.ErrInvalidDistance)
}

// TestLSMFuzzyGetRecency verifies the first observation wins: a newer
// overwrite or tombstone shadows older segment records.
func TestLSMFuzzyGetRecency(t *testing.T) {
	dir := createTempDir(t)
	defer removeTempDir(t, dir)

	lsm := newLSMTree(t, dir, nil)
	defer lsm.Close()

	require.NoError(t, lsm.Insert("apple", "old"))
	require.NoError(t, lsm.Insert("apricot", "stone"))
	require.NoError(t, lsm.Flush())
	require.NoError(t, lsm.Insert("apple", "new"))
	require.NoError(t, lsm.Delete("apricot"))

	matches, err := lsm.FuzzyGet("apple", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "new", matches[0].Value)

	matches, err = lsm.FuzzyGet("apricot", 0)
	require.NoError(t, err)
	assert.Empty(t, matches, "tombstoned key must not match")
}

// TestLSMPersistenceAcrossReopen verifies Close flushes the memtable and
// a reopened tree serves all committed data.
func TestLSMPersistenceAcrossReopen(t *testing.T) {
	dir := createTempDir(t)
	defer removeTempDir(t, dir)

	lsm := newLSMTree(t, dir, nil)
	keys := []string{"delta", "epsilon", "zeta"}
	values := []string{"4", "5", "6"}
	for i, key := range keys {
		require.NoError(t, lsm.Insert(key, values[i]))
	}
	require.NoError(t, lsm.Close())

	reopened := newLSMTree(t, dir, nil)
	defer reopened.Close()
	for i, key := range keys {
		value, err := reopened.Get(key)
		require.NoError(t, err, "key %s after reopen", key)
		assert.Equal(t, values[i], value)
	}
}

// TestLSMWALRecovery verifies that with the memtable WAL enabled, a
// crash (no Close) loses nothing.
func TestLSMWALRecovery(t *testing.T) {
	dir := createTempDir(t)
	defer removeTempDir(t, dir)

	withWAL := func(c *lsmtree.Config) { c.WALEnabled = true }
	lsm := newLSMTree(t, dir, withWAL)
	require.NoError(t, lsm.Insert("a", "1"))
	require.NoError(t, lsm.Insert("b", "2"))
	require.NoError(t, lsm.Delete("a"))
	// 크래시 시뮬레이션: Close 없이 인스턴스를 버립니다.

	recovered := newLSMTree(t, dir, withWAL)
	defer recovered.Close()

	_, err := recovered.Get("a")
	assert.True(t, lsmtree.IsNotFound(err))
	value, err := recovered.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "2", value)
}

// TestLSMClosed verifies operations are rejected after Close.
func TestLSMClosed(t *testing.T) {
	dir := createTempDir(t)
	defer removeTempDir(t, dir)

	lsm := newLSMTree(t, dir, nil)
	require.NoError(t, lsm.Close())

	assert.ErrorIs(t, lsm.Insert("a", "1"), lsmtree.ErrDBClosed)
	_, err := lsm.Get("a")
	assert.ErrorIs(t, err, lsmtree.ErrDBClosed)
	_, err = lsm.FuzzyGet("a", 1)
	assert.ErrorIs(t, err, lsmtree.ErrDBClosed)
	assert.NoError(t, lsm.Close(), "double close must be a no-op")
}

// TestLSMStats verifies the stats map reflects engine activity.
func TestLSMStats(t *testing.T) {
	dir := createTempDir(t)
	defer removeTempDir(t, dir)

	lsm := newLSMTree(t, dir, nil)
	defer lsm.Close()

	require.NoError(t, lsm.Insert("a", "1"))
	require.NoError(t, lsm.Flush())
	_, err := lsm.Get("a")
	require.NoError(t, err)

	stats := lsm.Stats()
	assert.Equal(t, "lsmtree", stats["engine"])
	assert.Equal(t, 1, stats["segment_count"])
	assert.Equal(t, int64(1), stats["writes"])
	assert.Equal(t, int64(1), stats["flushes"])
}

// TestLSMSweepsTmpFiles verifies leftover .tmp files from a crashed
// flush are removed and never opened as segments.
func TestLSMSweepsTmpFiles(t *testing.T) {
	dir := createTempDir(t)
	defer removeTempDir(t, dir)

	require.NoError(t, os.MkdirAll(dir, 0o755))
	tmpPath := filepath.Join(dir, "segment-9.data.tmp")
	require.NoError(t, os.WriteFile(tmpPath, []byte("partial"), 0o644))

	lsm := newLSMTree(t, dir, nil)
	defer lsm.Close()

	_, err := os.Stat(tmpPath)
	assert.True(t, os.IsNotExist(err), "tmp file must be swept at open")
	assert.Zero(t, segmentCount(t, dir))
}
