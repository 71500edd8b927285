package unit

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sukryu/GoKeep/pkg/adapters/btree"
	"github.com/sukryu/GoKeep/pkg/types"
)

// TestTreeBasicOperations tests insert, search, and in-place update.
func TestTreeBasicOperations(t *testing.T) {
	tree := btree.NewTree(2) // Small degree for testing splits

	tree.Insert(types.Entry{Key: "key1", Value: "value1"})
	tree.Insert(types.Entry{Key: "key2", Value: "value2"})
	tree.Insert(types.Entry{Key: "key3", Value: "value3"})

	entry, ok := tree.Search("key1")
	require.True(t, ok, "Search should find key1")
	assert.Equal(t, "value1", entry.Value)

	_, ok = tree.Search("nonexistent")
	assert.False(t, ok, "Search should miss a nonexistent key")

	// Update in place: length must not change.
	tree.Insert(types.Entry{Key: "key2", Value: "updated"})
	entry, ok = tree.Search("key2")
	require.True(t, ok)
	assert.Equal(t, "updated", entry.Value)
	assert.Equal(t, 3, tree.Len(), "Upsert should not grow the tree")
}

// TestTreeSplits inserts enough keys to force repeated node splits and
// verifies every key stays reachable.
func TestTreeSplits(t *testing.T) {
	tree := btree.NewTree(2)
	const n = 500
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key%04d", i)
		tree.Insert(types.Entry{Key: key, Value: fmt.Sprintf("v%d", i)})
	}
	assert.Equal(t, n, tree.Len())
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key%04d", i)
		entry, ok := tree.Search(key)
		require.True(t, ok, "key %s must be reachable after splits", key)
		assert.Equal(t, fmt.Sprintf("v%d", i), entry.Value)
	}
}

// TestTreeItemsSorted verifies that Items yields strictly ascending keys
// with exactly the final value per key, for a randomized insert order.
func TestTreeItemsSorted(t *testing.T) {
	tree := btree.NewTree(3)
	rng := rand.New(rand.NewSource(42))
	want := make(map[string]string)
	for i := 0; i < 300; i++ {
		key := fmt.Sprintf("key%03d", rng.Intn(100))
		value := fmt.Sprintf("v%d", i)
		tree.Insert(types.Entry{Key: key, Value: value})
		want[key] = value
	}

	items := tree.Items()
	assert.Equal(t, len(want), len(items))
	assert.True(t, sort.SliceIsSorted(items, func(i, j int) bool {
		return items[i].Key < items[j].Key
	}), "Items must be sorted by key")
	for i := 1; i < len(items); i++ {
		assert.Less(t, items[i-1].Key, items[i].Key, "keys must be strictly increasing")
	}
	for _, item := range items {
		assert.Equal(t, want[item.Key], item.Value, "final value must win for key %s", item.Key)
	}
}

// TestTreeTombstoneUpsert verifies that tombstones replace live entries
// and are visible through Search and Items.
func TestTreeTombstoneUpsert(t *testing.T) {
	tree := btree.NewTree(2)
	tree.Insert(types.Entry{Key: "a", Value: "1"})
	tree.Insert(types.Entry{Key: "a", Tombstone: true})

	entry, ok := tree.Search("a")
	require.True(t, ok)
	assert.True(t, entry.Tombstone)
	assert.Equal(t, 1, tree.Len())

	items := tree.Items()
	require.Len(t, items, 1)
	assert.True(t, items[0].Tombstone, "Items must include tombstones")
}
