package lsmtree

import (
	"github.com/sukryu/GoKeep/pkg/adapters/btree"
	"github.com/sukryu/GoKeep/pkg/types"
)

// MemTable is the in-memory write buffer: a B-tree holding at most one
// entry per key, iterable in sorted order. Deletions are stored as
// tombstone entries so they shadow older segments until compaction.
type MemTable struct {
	tree   *btree.Tree
	degree int
}

var _ types.MemTableStorage = (*MemTable)(nil)

// NewMemTable creates an empty MemTable backed by a B-tree of the given
// minimum degree.
func NewMemTable(minDegree int) *MemTable {
	if minDegree < 2 {
		minDegree = btree.DefaultMinDegree
	}
	return &MemTable{tree: btree.NewTree(minDegree), degree: minDegree}
}

// Insert inserts or updates a key-value pair.
func (m *MemTable) Insert(key, value string) {
	m.tree.Insert(types.Entry{Key: key, Value: value})
}

// Delete marks a key as deleted by upserting a tombstone.
func (m *MemTable) Delete(key string) {
	m.tree.Insert(types.Entry{Key: key, Tombstone: true})
}

// Get retrieves the entry for key. Tombstones are returned as-is; the
// caller decides how to interpret them.
func (m *MemTable) Get(key string) (types.Entry, bool) {
	return m.tree.Search(key)
}

// Items returns all entries in strictly ascending key order, tombstones
// included. The slice is a snapshot and safe to keep across a Reset.
func (m *MemTable) Items() []types.Entry {
	return m.tree.Items()
}

// Len returns the number of entries, tombstones included. The flush
// threshold counts against this value.
func (m *MemTable) Len() int {
	return m.tree.Len()
}

// Reset clears the table.
func (m *MemTable) Reset() {
	m.tree = btree.NewTree(m.degree)
}
