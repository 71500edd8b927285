package lsmtree

import (
	"container/heap"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/sukryu/GoKeep/pkg/types"
)

// Compactor merges all committed segments into a single new segment,
// keeping only the newest record per key and dropping tombstones. When no
// live record remains, no new segment is written and the segment list is
// left empty.
type Compactor struct {
	lsm *LSMTree
	mu  sync.Mutex
}

var _ types.CompactorInterface = (*Compactor)(nil)

// NewCompactor creates a new Compactor for the given LSMTree.
func NewCompactor(lsm *LSMTree) *Compactor {
	return &Compactor{lsm: lsm}
}

// Run starts the periodic compaction loop. It is only launched when the
// configuration sets a positive CompactionInterval.
func (c *Compactor) Run(stopCh <-chan struct{}) {
	ticker := time.NewTicker(c.lsm.config.CompactionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if err := c.Compact(); err != nil {
				klog.ErrorS(err, "background compaction failed", "dir", c.lsm.config.Directory)
			}
		}
	}
}

// Compact performs a single full compaction cycle.
func (c *Compactor) Compact() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	lsm := c.lsm
	lsm.mu.Lock()
	defer lsm.mu.Unlock()
	if lsm.closed {
		return ErrDBClosed
	}
	return lsm.compactLocked()
}

// compactLocked merges every current segment into one new segment via a
// k-way heap merge. Callers must hold l.mu.
func (l *LSMTree) compactLocked() error {
	if len(l.segments) == 0 {
		return nil
	}

	iters := make([]*SSTableIterator, 0, len(l.segments))
	defer func() {
		for _, it := range iters {
			it.Close()
		}
	}()

	h := &mergeHeap{}
	heap.Init(h)
	// rank는 세그먼트 목록상의 위치: 클수록 최신입니다.
	for rank, seg := range l.segments {
		it, err := seg.Iterator()
		if err != nil {
			return ErrCompactionError{Message: "open segment iterator", Err: err}
		}
		iters = append(iters, it)
		if it.Next() {
			heap.Push(h, &mergeCursor{entry: it.Entry(), rank: rank, iter: it})
		} else if it.Err() != nil {
			return ErrCompactionError{Message: "read segment head", Err: it.Err()}
		}
	}

	advance := func(cur *mergeCursor) error {
		if cur.iter.Next() {
			heap.Push(h, &mergeCursor{entry: cur.iter.Entry(), rank: cur.rank, iter: cur.iter})
		} else if cur.iter.Err() != nil {
			return ErrCompactionError{Message: "advance segment iterator", Err: cur.iter.Err()}
		}
		return nil
	}

	var merged []types.Entry
	for h.Len() > 0 {
		cur := heap.Pop(h).(*mergeCursor)
		winner := cur.entry
		if err := advance(cur); err != nil {
			return err
		}
		// 같은 키의 오래된 레코드를 모두 버립니다.
		for h.Len() > 0 && h.Peek().entry.Key == winner.Key {
			dup := heap.Pop(h).(*mergeCursor)
			if err := advance(dup); err != nil {
				return err
			}
		}
		if !winner.Tombstone {
			merged = append(merged, winner)
		}
	}

	old := l.segments
	var segments []*SSTable
	if len(merged) > 0 {
		seg, err := CreateSSTable(l.segmentStem(l.nextGen), merged,
			l.config.SparseIndexStride, l.config.BloomFalsePositiveRate)
		if err != nil {
			return ErrCompactionError{Message: "write merged segment", Err: err}
		}
		l.nextGen++
		segments = []*SSTable{seg}
	}
	l.segments = segments

	for _, seg := range old {
		if err := seg.Close(); err != nil {
			return ErrCompactionError{Message: "close superseded segment", Err: err}
		}
		if err := seg.Remove(); err != nil {
			return ErrCompactionError{Message: "remove superseded segment", Err: err}
		}
	}
	l.metrics.IncCompactions()
	klog.V(2).InfoS("compaction complete", "dir", l.config.Directory,
		"inputSegments", len(old), "outputRecords", len(merged))
	return nil
}
