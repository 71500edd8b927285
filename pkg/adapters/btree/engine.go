package btree

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"k8s.io/klog/v2"

	"github.com/sukryu/GoKeep/pkg/ports"
	"github.com/sukryu/GoKeep/pkg/types"
)

// Files owned by the engine inside its directory.
const (
	walFileName      = "wal.log"
	snapshotFileName = "snapshot"
)

// ErrEngineClosed는 닫힌 엔진에 액세스하려고 할 때 반환됩니다.
var ErrEngineClosed = errors.New("btree engine is closed")

// EngineConfig holds configuration for the durable B-tree engine.
type EngineConfig struct {
	// Directory is the exclusively owned data directory.
	Directory string

	// MinDegree is the B-tree minimum degree (t).
	MinDegree int

	// SyncWrites forces an fsync after every WAL append. Disabling it
	// trades the durability point for throughput.
	SyncWrites bool

	// Compression selects the snapshot stream algorithm:
	// "none", "snappy" 또는 "zstd".
	Compression string
}

// DefaultEngineConfig는 기본 설정으로 EngineConfig 인스턴스를 반환합니다.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Directory:   "data_dir",
		MinDegree:   DefaultMinDegree,
		SyncWrites:  true,
		Compression: CompressionSnappy,
	}
}

// Validate는 설정의 유효성을 검사하고 잘못된 설정이 있으면 오류를 반환합니다.
func (c *EngineConfig) Validate() error {
	if c.Directory == "" {
		return fmt.Errorf("invalid configuration: Directory is required")
	}
	if c.MinDegree < 2 {
		return fmt.Errorf("invalid configuration: MinDegree must be at least 2")
	}
	switch c.Compression {
	case CompressionNone, CompressionSnappy, CompressionZstd:
	default:
		return fmt.Errorf("invalid configuration: Compression must be 'none', 'snappy', or 'zstd'")
	}
	return nil
}

// Engine is the durable standalone B-tree storage engine: an in-memory
// tree guarded by a WAL, persisted as a compressed snapshot on close.
// Startup loads the snapshot (if any) and replays the WAL on top of it.
type Engine struct {
	config EngineConfig
	tree   *Tree
	wal    *WAL
	mu     sync.RWMutex
	closed bool
}

var _ ports.StoragePort = (*Engine)(nil)

// NewEngine opens (or creates) the engine rooted at config.Directory.
func NewEngine(config EngineConfig) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(config.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", config.Directory, err)
	}

	tree := NewTree(config.MinDegree)
	snapshotPath := filepath.Join(config.Directory, snapshotFileName)
	entries, err := loadSnapshot(snapshotPath)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		tree.Insert(e)
	}

	wal, err := OpenWAL(filepath.Join(config.Directory, walFileName), config.SyncWrites)
	if err != nil {
		return nil, err
	}
	replayed := 0
	err = wal.Replay(func(op byte, key, value string) error {
		switch op {
		case WalOpPut:
			tree.Insert(types.Entry{Key: key, Value: value})
		case WalOpDelete:
			tree.Insert(types.Entry{Key: key, Tombstone: true})
		}
		replayed++
		return nil
	})
	if err != nil {
		wal.Close()
		return nil, err
	}
	klog.V(2).InfoS("btree engine opened", "dir", config.Directory,
		"snapshotEntries", len(entries), "walRecords", replayed)

	return &Engine{config: config, tree: tree, wal: wal}, nil
}

// Insert stores or overwrites a key-value pair. The WAL append (and its
// fsync) completes before the tree is mutated.
func (e *Engine) Insert(key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if err := e.wal.AppendPut(key, value); err != nil {
		return err
	}
	e.tree.Insert(types.Entry{Key: key, Value: value})
	return nil
}

// Get returns the value stored under key. Tombstoned and absent keys both
// report ports.ErrKeyNotFound.
func (e *Engine) Get(key string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return "", ErrEngineClosed
	}
	entry, ok := e.tree.Search(key)
	if !ok || entry.Tombstone {
		return "", ports.ErrKeyNotFound
	}
	return entry.Value, nil
}

// Delete marks the key as deleted. The mark is itself a write and succeeds
// whether or not the key exists.
func (e *Engine) Delete(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if err := e.wal.AppendDelete(key); err != nil {
		return err
	}
	e.tree.Insert(types.Entry{Key: key, Tombstone: true})
	return nil
}

// Stats returns current statistics of the engine.
func (e *Engine) Stats() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	live := 0
	for _, entry := range e.tree.Items() {
		if !entry.Tombstone {
			live++
		}
	}
	return map[string]interface{}{
		"engine":       "btree",
		"entries":      e.tree.Len(),
		"live_entries": live,
	}
}

// Close persists a snapshot of the live entries, truncates the WAL, and
// releases file handles. Tombstones are dropped at snapshot time, so they
// do not accumulate across restarts.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}

	items := e.tree.Items()
	live := make([]types.Entry, 0, len(items))
	for _, entry := range items {
		if !entry.Tombstone {
			live = append(live, entry)
		}
	}
	snapshotPath := filepath.Join(e.config.Directory, snapshotFileName)
	if err := writeSnapshot(snapshotPath, live, e.config.Compression); err != nil {
		return err
	}
	if err := e.wal.Truncate(); err != nil {
		return err
	}
	if err := e.wal.Close(); err != nil {
		return err
	}
	e.closed = true
	klog.V(2).InfoS("btree engine closed", "dir", e.config.Directory, "snapshotEntries", len(live))
	return nil
}
