package lsmtree

import (
	"github.com/sukryu/GoKeep/pkg/types"
)

// mergeCursor is one segment's head position during a k-way merge. rank is
// the segment's position in the list: higher rank means newer segment.
type mergeCursor struct {
	entry types.Entry
	rank  int
	iter  *SSTableIterator
}

// mergeHeap is a binary min-heap of merge cursors ordered by key, with
// ties resolved by rank descending so the newest segment surfaces first.
type mergeHeap []*mergeCursor

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if h[i].entry.Key != h[j].entry.Key {
		return h[i].entry.Key < h[j].entry.Key
	}
	// 키가 같으면 최신 세그먼트가 먼저 나옵니다.
	return h[i].rank > h[j].rank
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x interface{}) {
	*h = append(*h, x.(*mergeCursor))
}

func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// Peek returns the minimum cursor without removing it.
func (h mergeHeap) Peek() *mergeCursor {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}
