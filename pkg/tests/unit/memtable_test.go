package unit

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sukryu/GoKeep/pkg/adapters/lsmtree"
)

// TestMemTableBasicOperations tests insert, get, and tombstone delete.
func TestMemTableBasicOperations(t *testing.T) {
	mt := lsmtree.NewMemTable(3)

	mt.Insert("a", "1")
	entry, ok := mt.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", entry.Value)
	assert.False(t, entry.Tombstone)

	mt.Delete("a")
	entry, ok = mt.Get("a")
	require.True(t, ok, "tombstones stay visible to the caller")
	assert.True(t, entry.Tombstone)
	assert.Equal(t, 1, mt.Len(), "delete overwrites, it does not add")

	// Deleting an absent key records a tombstone entry.
	mt.Delete("ghost")
	entry, ok = mt.Get("ghost")
	require.True(t, ok)
	assert.True(t, entry.Tombstone)
}

// TestMemTableSortedItems verifies sorted iteration regardless of insert
// order.
func TestMemTableSortedItems(t *testing.T) {
	mt := lsmtree.NewMemTable(3)
	for _, key := range []string{"delta", "alpha", "echo", "charlie", "bravo"} {
		mt.Insert(key, "v")
	}
	items := mt.Items()
	require.Len(t, items, 5)
	assert.True(t, sort.SliceIsSorted(items, func(i, j int) bool {
		return items[i].Key < items[j].Key
	}))
}

// TestMemTableReset verifies the table empties and stays usable.
func TestMemTableReset(t *testing.T) {
	mt := lsmtree.NewMemTable(2)
	for i := 0; i < 50; i++ {
		mt.Insert(fmt.Sprintf("key%02d", i), "v")
	}
	assert.Equal(t, 50, mt.Len())

	mt.Reset()
	assert.Zero(t, mt.Len())
	assert.Empty(t, mt.Items())

	mt.Insert("again", "v")
	assert.Equal(t, 1, mt.Len())
}
