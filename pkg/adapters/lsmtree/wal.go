package lsmtree

import (
	"github.com/sukryu/GoKeep/pkg/adapters/btree"
)

// The memtable WAL reuses the btree adapter's log: the record format and
// replay semantics of both engines are identical, only the apply target
// differs.

// walFileName is the memtable log inside the LSM directory.
const walFileName = "memtable.wal"

// recoverFromWAL replays the memtable log into mt. Put records become live
// entries, delete records become tombstones, both shadowing anything the
// segments hold.
func recoverFromWAL(w *btree.WAL, mt *MemTable) (int, error) {
	replayed := 0
	err := w.Replay(func(op byte, key, value string) error {
		switch op {
		case btree.WalOpPut:
			mt.Insert(key, value)
		case btree.WalOpDelete:
			mt.Delete(key)
		}
		replayed++
		return nil
	})
	return replayed, err
}
