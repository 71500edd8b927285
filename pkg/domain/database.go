// Package domain은 엔진 선택과 연산 디스패치를 담당하는 데이터베이스 파사드를 제공합니다.
package domain

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sukryu/GoKeep/pkg/adapters/btree"
	"github.com/sukryu/GoKeep/pkg/adapters/lsmtree"
	"github.com/sukryu/GoKeep/pkg/ports"
	"github.com/sukryu/GoKeep/pkg/types"
	"github.com/sukryu/GoKeep/pkg/utils"
)

// EngineType identifies a storage backend.
type EngineType string

// Recognized engine tags.
const (
	EngineBTree   EngineType = "btree"
	EngineLSMTree EngineType = "lsmtree"
)

// DatabaseConfig defines the configuration for a Database.
type DatabaseConfig struct {
	Name      string     `yaml:"name"`
	Engine    EngineType `yaml:"engine"`
	Directory string     `yaml:"directory"`

	// B-tree engine options.
	BTreeMinDegree int    `yaml:"btree_min_degree"`
	SyncWrites     bool   `yaml:"sync_writes"`
	Compression    string `yaml:"compression"`

	// LSM engine options.
	MemtableThreshold      int     `yaml:"memtable_threshold"`
	BloomFalsePositiveRate float64 `yaml:"bloom_false_positive_rate"`
	SparseIndexStride      int     `yaml:"sparse_index_stride"`
	WALEnabled             bool    `yaml:"wal_enabled"`
}

// DefaultDatabaseConfig는 기본 설정으로 DatabaseConfig 인스턴스를 반환합니다.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Name:                   "gokeep",
		Engine:                 EngineBTree,
		Directory:              "data_dir",
		BTreeMinDegree:         btree.DefaultMinDegree,
		SyncWrites:             true,
		Compression:            btree.CompressionSnappy,
		MemtableThreshold:      1000,
		BloomFalsePositiveRate: 0.01,
		SparseIndexStride:      100,
		WALEnabled:             false,
	}
}

// LoadConfig reads a YAML configuration file on top of the defaults.
func LoadConfig(path string) (DatabaseConfig, error) {
	config := DefaultDatabaseConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parse config %s: %w", path, err)
	}
	return config, nil
}

// Validate는 설정의 유효성을 검사하고 잘못된 설정이 있으면 오류를 반환합니다.
func (c *DatabaseConfig) Validate() error {
	if c.Directory == "" {
		return fmt.Errorf("directory is required")
	}
	switch c.Engine {
	case EngineBTree, EngineLSMTree:
	default:
		return fmt.Errorf("unknown engine type %q (expected %q or %q)",
			c.Engine, EngineBTree, EngineLSMTree)
	}
	return nil
}

// DatabaseStatus defines the observed state of a Database.
type DatabaseStatus struct {
	Engine EngineType // Selected storage backend
	Ready  bool       // Database readiness
	Error  string     // Last error, if any
}

// Database is the facade that owns one storage engine and dispatches
// every operation to it. Capabilities beyond the base port (fuzzy search,
// compaction, stats) are forwarded only when the engine provides them.
type Database struct {
	config  DatabaseConfig
	status  DatabaseStatus
	storage ports.StoragePort
	mu      sync.RWMutex
	logger  utils.Logger
}

// NewDatabase creates a Database with the engine selected by the config.
func NewDatabase(config DatabaseConfig, logger utils.Logger) (*Database, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = utils.NewSimpleLogger()
	}

	var storage ports.StoragePort
	var err error
	switch config.Engine {
	case EngineBTree:
		storage, err = btree.NewEngine(btree.EngineConfig{
			Directory:   config.Directory,
			MinDegree:   config.BTreeMinDegree,
			SyncWrites:  config.SyncWrites,
			Compression: config.Compression,
		})
	case EngineLSMTree:
		lsmConfig := lsmtree.DefaultConfig()
		lsmConfig.Directory = config.Directory
		lsmConfig.MemtableThreshold = config.MemtableThreshold
		lsmConfig.BTreeMinDegree = config.BTreeMinDegree
		lsmConfig.BloomFalsePositiveRate = config.BloomFalsePositiveRate
		lsmConfig.SparseIndexStride = config.SparseIndexStride
		lsmConfig.WALEnabled = config.WALEnabled
		lsmConfig.SyncWrites = config.SyncWrites
		storage, err = lsmtree.NewLSMTree(lsmConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize %s engine: %w", config.Engine, err)
	}

	db := &Database{
		config:  config,
		status:  DatabaseStatus{Engine: config.Engine, Ready: true},
		storage: storage,
		logger:  logger,
	}
	logger.Info(fmt.Sprintf("Database %s initialized with %s engine at %s",
		config.Name, config.Engine, config.Directory))
	return db, nil
}

// Put inserts or overwrites a key-value pair.
func (db *Database) Put(key, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.storage.Insert(key, value); err != nil {
		db.status.Error = err.Error()
		db.logger.Error(fmt.Sprintf("Failed to put key %s: %v", key, err))
		return err
	}
	return nil
}

// Get retrieves the value for key; absent keys report ports.ErrKeyNotFound.
func (db *Database) Get(key string) (string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.storage.Get(key)
}

// Delete marks the key as deleted.
func (db *Database) Delete(key string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.storage.Delete(key); err != nil {
		db.status.Error = err.Error()
		db.logger.Error(fmt.Sprintf("Failed to delete key %s: %v", key, err))
		return err
	}
	return nil
}

// FuzzyGet returns every live entry within maxDistance edits of pattern.
// Engines without the capability reject the call.
func (db *Database) FuzzyGet(pattern string, maxDistance int) ([]types.Entry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	searcher, ok := db.storage.(ports.FuzzySearcher)
	if !ok {
		return nil, fmt.Errorf("%s engine: %w", db.config.Engine, ports.ErrFuzzyGetNotSupported)
	}
	return searcher.FuzzyGet(pattern, maxDistance)
}

// ForceCompaction merges the engine's segments when the engine supports it.
func (db *Database) ForceCompaction() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	compactable, ok := db.storage.(ports.Compactable)
	if !ok {
		return nil // nothing to compact for this engine
	}
	return compactable.ForceCompaction()
}

// Stats returns engine statistics, or an empty map when unsupported.
func (db *Database) Stats() map[string]interface{} {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if reporter, ok := db.storage.(ports.StatsReporter); ok {
		return reporter.Stats()
	}
	return map[string]interface{}{}
}

// Close gracefully shuts down the database.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.storage.Close(); err != nil {
		db.status.Error = err.Error()
		db.logger.Error(fmt.Sprintf("Failed to close database %s: %v", db.config.Name, err))
		return err
	}
	db.status.Ready = false
	db.logger.Info(fmt.Sprintf("Database %s closed", db.config.Name))
	return nil
}

// GetStatus returns the current status of the database.
func (db *Database) GetStatus() DatabaseStatus {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.status
}
