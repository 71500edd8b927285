// Package lsmtree implements a Log-Structured Merge-Tree storage engine:
// a B-tree memtable in front of immutable SSTable segments with sparse
// index and bloom filter sidecars, full-merge compaction, and
// Levenshtein-based fuzzy key search.
package lsmtree

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"k8s.io/klog/v2"

	"github.com/sukryu/GoKeep/pkg/adapters/btree"
	"github.com/sukryu/GoKeep/pkg/ports"
	"github.com/sukryu/GoKeep/pkg/types"
)

// segmentPrefix is the filename stem prefix; the embedded generation
// number recovers segment order from a directory listing alone.
const segmentPrefix = "segment-"

// LSMTree represents the Log-Structured Merge Tree.
type LSMTree struct {
	config    Config
	memTable  *MemTable
	segments  []*SSTable // oldest → newest
	wal       *btree.WAL // nil unless WALEnabled
	cache     *Cache
	metrics   *Metrics
	compactor *Compactor
	nextGen   uint64
	mu        sync.RWMutex
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closed    bool
}

var (
	_ ports.StoragePort   = (*LSMTree)(nil)
	_ ports.FuzzySearcher = (*LSMTree)(nil)
	_ ports.Compactable   = (*LSMTree)(nil)
	_ ports.StatsReporter = (*LSMTree)(nil)
)

// NewLSMTree opens (or creates) the tree rooted at config.Directory:
// leftover .tmp files are swept, committed segments are opened in
// generation order, and the memtable WAL (when enabled) is replayed.
func NewLSMTree(config Config) (*LSMTree, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(config.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", config.Directory, err)
	}

	l := &LSMTree{
		config:   config,
		memTable: NewMemTable(config.BTreeMinDegree),
		cache:    NewCache(config.CacheSize),
		metrics:  NewMetrics(),
	}
	if err := l.loadSegments(); err != nil {
		return nil, err
	}

	if config.WALEnabled {
		wal, err := btree.OpenWAL(filepath.Join(config.Directory, walFileName), config.SyncWrites)
		if err != nil {
			return nil, err
		}
		replayed, err := recoverFromWAL(wal, l.memTable)
		if err != nil {
			wal.Close()
			return nil, err
		}
		l.wal = wal
		klog.V(2).InfoS("memtable wal replayed", "dir", config.Directory, "records", replayed)
	}

	l.compactor = NewCompactor(l)
	if config.CompactionInterval > 0 {
		l.stopCh = make(chan struct{})
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.compactor.Run(l.stopCh)
		}()
	}
	klog.V(2).InfoS("lsm tree opened", "dir", config.Directory,
		"segments", len(l.segments), "nextGeneration", l.nextGen)
	return l, nil
}

// loadSegments sweeps temporary files and opens every committed segment
// in ascending generation order. Any unreadable segment fails the open.
func (l *LSMTree) loadSegments() error {
	files, err := os.ReadDir(l.config.Directory)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", l.config.Directory, err)
	}
	var gens []uint64
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		name := file.Name()
		if strings.HasSuffix(name, tmpFileSuffix) {
			// 커밋되지 못한 flush/compaction 잔재를 정리합니다.
			if err := os.Remove(filepath.Join(l.config.Directory, name)); err != nil {
				return fmt.Errorf("sweep %s: %w", name, err)
			}
			continue
		}
		if !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, dataFileSuffix) {
			continue
		}
		genStr := strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), dataFileSuffix)
		gen, err := strconv.ParseUint(genStr, 10, 64)
		if err != nil {
			return fmt.Errorf("segment file %s: bad generation: %w", name, ErrSSTableCorrupted)
		}
		gens = append(gens, gen)
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })

	for _, gen := range gens {
		seg, err := OpenSSTable(l.segmentStem(gen))
		if err != nil {
			return err
		}
		l.segments = append(l.segments, seg)
		l.nextGen = gen + 1
	}
	return nil
}

func (l *LSMTree) segmentStem(gen uint64) string {
	return filepath.Join(l.config.Directory, fmt.Sprintf("%s%d", segmentPrefix, gen))
}

// Insert adds or updates a key-value pair. When the memtable reaches the
// configured threshold it is flushed into a new segment.
func (l *LSMTree) Insert(key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrDBClosed
	}
	if l.wal != nil {
		if err := l.wal.AppendPut(key, value); err != nil {
			return err
		}
	}
	l.memTable.Insert(key, value)
	l.cache.Invalidate(key)
	l.metrics.IncWrites()
	if l.memTable.Len() >= l.config.MemtableThreshold {
		return l.flushLocked()
	}
	return nil
}

// Delete marks a key as deleted using a tombstone. A delete is always a
// write; it never probes the segments.
func (l *LSMTree) Delete(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrDBClosed
	}
	if l.wal != nil {
		if err := l.wal.AppendDelete(key); err != nil {
			return err
		}
	}
	l.memTable.Delete(key)
	l.cache.Invalidate(key)
	l.metrics.IncWrites()
	if l.memTable.Len() >= l.config.MemtableThreshold {
		return l.flushLocked()
	}
	return nil
}

// Get retrieves the value associated with the given key: memtable first,
// then the read cache, then segments newest to oldest. A tombstone at any
// level reports absence.
func (l *LSMTree) Get(key string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return "", ErrDBClosed
	}
	if entry, ok := l.memTable.Get(key); ok {
		if entry.Tombstone {
			return "", ErrKeyNotFound
		}
		l.metrics.IncReads()
		return entry.Value, nil
	}
	if value, ok := l.cache.Get(key); ok {
		l.metrics.IncCacheHits()
		return value, nil
	}
	for i := len(l.segments) - 1; i >= 0; i-- {
		seg := l.segments[i]
		if !seg.MightContain(key) {
			l.metrics.IncBloomRejections()
			continue
		}
		entry, ok, err := seg.Get(key)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		if entry.Tombstone {
			return "", ErrKeyNotFound
		}
		l.cache.Put(key, entry.Value)
		l.metrics.IncReads()
		return entry.Value, nil
	}
	return "", ErrKeyNotFound
}

// Flush writes the current memtable out as a new segment, if non-empty.
func (l *LSMTree) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrDBClosed
	}
	return l.flushLocked()
}

// flushLocked materializes the memtable as a new SSTable with the next
// generation number, swaps in a fresh memtable, and truncates the WAL.
// Callers must hold l.mu.
func (l *LSMTree) flushLocked() error {
	if l.memTable.Len() == 0 {
		return nil
	}
	entries := l.memTable.Items()
	seg, err := CreateSSTable(l.segmentStem(l.nextGen), entries,
		l.config.SparseIndexStride, l.config.BloomFalsePositiveRate)
	if err != nil {
		return err
	}
	l.nextGen++
	l.segments = append(l.segments, seg)
	l.memTable = NewMemTable(l.config.BTreeMinDegree)
	if l.wal != nil {
		if err := l.wal.Truncate(); err != nil {
			return err
		}
	}
	l.metrics.IncFlushes()
	klog.V(2).InfoS("memtable flushed", "dir", l.config.Directory,
		"segment", seg.Stem(), "records", len(entries))
	return nil
}

// FuzzyGet returns every live entry whose key is within maxDistance
// Levenshtein edits of pattern. Recency is preserved by remembering the
// first observation of each key while walking the memtable and then the
// segments newest to oldest; bloom filters cannot help, so each segment
// is scanned lazily in full.
func (l *LSMTree) FuzzyGet(pattern string, maxDistance int) ([]types.Entry, error) {
	if maxDistance < 0 {
		return nil, ErrInvalidDistance
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrDBClosed
	}

	seen := make(map[string]struct{})
	var results []types.Entry
	observe := func(e types.Entry) {
		if _, ok := seen[e.Key]; ok {
			return
		}
		seen[e.Key] = struct{}{}
		if !e.Tombstone && LevenshteinDistance(pattern, e.Key) <= maxDistance {
			results = append(results, e)
		}
	}

	for _, e := range l.memTable.Items() {
		observe(e)
	}
	for i := len(l.segments) - 1; i >= 0; i-- {
		it, err := l.segments[i].Iterator()
		if err != nil {
			return nil, err
		}
		for it.Next() {
			observe(it.Entry())
		}
		if err := it.Err(); err != nil {
			it.Close()
			return nil, err
		}
		if err := it.Close(); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// ForceCompaction flushes the memtable and merges all segments into one,
// or into none when every remaining record is a tombstone.
func (l *LSMTree) ForceCompaction() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrDBClosed
	}
	if err := l.flushLocked(); err != nil {
		l.mu.Unlock()
		return err
	}
	l.mu.Unlock()
	return l.compactor.Compact()
}

// Stats returns current statistics of the LSM Tree.
func (l *LSMTree) Stats() map[string]interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stats := map[string]interface{}{
		"engine":           "lsmtree",
		"memtable_entries": l.memTable.Len(),
		"segment_count":    len(l.segments),
		"next_generation":  l.nextGen,
	}
	for k, v := range l.metrics.Snapshot() {
		stats[k] = v
	}
	return stats
}

// Close flushes a non-empty memtable into a final segment and releases
// all file handles.
func (l *LSMTree) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if l.stopCh != nil {
		close(l.stopCh)
		l.wg.Wait()
		l.stopCh = nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	if err := l.flushLocked(); err != nil {
		return err
	}
	for _, seg := range l.segments {
		if err := seg.Close(); err != nil {
			return err
		}
	}
	if l.wal != nil {
		if err := l.wal.Close(); err != nil {
			return err
		}
	}
	l.closed = true
	klog.V(2).InfoS("lsm tree closed", "dir", l.config.Directory, "segments", len(l.segments))
	return nil
}
