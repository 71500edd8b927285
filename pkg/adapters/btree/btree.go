// Package btree implements an in-memory B-tree keyed by string.
// 이 트리는 독립 엔진의 저장 구조이자 LSM memtable의 정렬 구조로 사용됩니다.
package btree

import (
	"sort"

	"github.com/sukryu/GoKeep/pkg/types"
)

// DefaultMinDegree is the minimum degree used when none is configured.
const DefaultMinDegree = 3

// Tree is an in-memory B-tree with minimum degree t: every non-root node
// holds between t-1 and 2t-1 items and all leaves sit at the same depth.
// Entries are upserted, so no duplicate keys ever exist in the tree.
// Deletion is expressed as a tombstone upsert; callers that need live data
// filter on Entry.Tombstone.
type Tree struct {
	root   *node
	degree int // Minimum degree (t)
	length int // Total number of items in the tree, tombstones included
}

// node represents a single node in the B-tree.
type node struct {
	items    []types.Entry
	children []*node
	leaf     bool
}

// NewTree creates an empty B-tree with the given minimum degree.
// Degrees below 2 fall back to DefaultMinDegree.
func NewTree(minDegree int) *Tree {
	if minDegree < 2 {
		minDegree = DefaultMinDegree
	}
	return &Tree{
		root:   &node{leaf: true},
		degree: minDegree,
	}
}

// Len returns the number of entries in the tree, tombstones included.
func (t *Tree) Len() int {
	return t.length
}

// Search descends from the root and returns the entry stored under key.
func (t *Tree) Search(key string) (types.Entry, bool) {
	n := t.root
	for {
		idx, found := n.find(key)
		if found {
			return n.items[idx], true
		}
		if n.leaf {
			return types.Entry{}, false
		}
		n = n.children[idx]
	}
}

// Insert upserts the entry. An existing key has its value replaced in
// place; a new key is inserted with top-down splitting of full nodes.
func (t *Tree) Insert(e types.Entry) {
	r := t.root
	if len(r.items) == 2*t.degree-1 {
		// 루트가 가득 차면 새 루트를 만들어 먼저 분할합니다.
		newRoot := &node{children: []*node{r}}
		newRoot.splitChild(0, t.degree)
		t.root = newRoot
		r = newRoot
	}
	if t.insertNonFull(r, e) {
		t.length++
	}
}

// insertNonFull inserts into a node known to have room. It reports whether
// a new key was added (false means an existing key was updated in place).
func (t *Tree) insertNonFull(n *node, e types.Entry) bool {
	idx, found := n.find(e.Key)
	if found {
		n.items[idx] = e
		return false
	}
	if n.leaf {
		n.items = append(n.items, types.Entry{})
		copy(n.items[idx+1:], n.items[idx:])
		n.items[idx] = e
		return true
	}
	if len(n.children[idx].items) == 2*t.degree-1 {
		n.splitChild(idx, t.degree)
		// 분할로 올라온 중앙 키와 다시 비교합니다.
		if e.Key == n.items[idx].Key {
			n.items[idx] = e
			return false
		}
		if e.Key > n.items[idx].Key {
			idx++
		}
	}
	return t.insertNonFull(n.children[idx], e)
}

// splitChild splits the full child at index i around its median item,
// promoting the median into n.
func (n *node) splitChild(i, degree int) {
	child := n.children[i]
	sibling := &node{leaf: child.leaf}
	sibling.items = append(sibling.items, child.items[degree:]...)
	if !child.leaf {
		sibling.children = append(sibling.children, child.children[degree:]...)
		child.children = child.children[:degree]
	}
	median := child.items[degree-1]
	child.items = child.items[:degree-1]

	n.items = append(n.items, types.Entry{})
	copy(n.items[i+1:], n.items[i:])
	n.items[i] = median
	n.children = append(n.children, nil)
	copy(n.children[i+2:], n.children[i+1:])
	n.children[i+1] = sibling
}

// find returns the index of key within the node's items, or the child
// index to descend into when the key is absent.
func (n *node) find(key string) (int, bool) {
	idx := sort.Search(len(n.items), func(i int) bool {
		return n.items[i].Key >= key
	})
	if idx < len(n.items) && n.items[idx].Key == key {
		return idx, true
	}
	return idx, false
}

// Items returns every entry in strictly ascending key order, tombstones
// included.
func (t *Tree) Items() []types.Entry {
	out := make([]types.Entry, 0, t.length)
	t.root.appendItems(&out)
	return out
}

func (n *node) appendItems(out *[]types.Entry) {
	if n.leaf {
		*out = append(*out, n.items...)
		return
	}
	for i := range n.items {
		n.children[i].appendItems(out)
		*out = append(*out, n.items[i])
	}
	n.children[len(n.items)].appendItems(out)
}
