// Package ports는 GoKeep의 헥사고날 아키텍처에서 저장소 관련 인터페이스를 정의합니다.
// 이 패키지는 도메인 로직과 어댑터(B-트리, LSM 등)를 연결하는 포트 역할을 합니다.
package ports

import (
	"errors"

	"github.com/sukryu/GoKeep/pkg/types"
)

// StoragePort는 GoKeep의 저장소 동작을 정의하는 인터페이스입니다.
// 키-값 저장 방식을 기반으로 하며, 삽입, 조회, 삭제를 지원합니다.
type StoragePort interface {
	// Insert는 키-값 쌍을 저장소에 삽입합니다.
	// 키가 이미 존재하면 값을 덮어씌우고, 오류가 없으면 nil을 반환합니다.
	Insert(key string, value string) error

	// Get은 주어진 키에 해당하는 값을 조회합니다.
	// 키가 존재하지 않으면 ErrKeyNotFound 오류를 반환합니다.
	Get(key string) (string, error)

	// Delete는 주어진 키에 해당하는 키-값 쌍을 삭제합니다.
	// Delete is always a write; it succeeds even when the key is absent.
	Delete(key string) error

	// Close는 저장소를 정상 종료하고 파일 핸들을 해제합니다.
	Close() error
}

// FuzzySearcher is the optional capability of engines that can answer
// approximate key lookups. Only the LSM adapter provides it.
type FuzzySearcher interface {
	// FuzzyGet returns every live entry whose key is within maxDistance
	// Levenshtein edits of pattern.
	FuzzyGet(pattern string, maxDistance int) ([]types.Entry, error)
}

// Compactable is the optional capability of engines that maintain
// on-disk segments and can merge them on demand.
type Compactable interface {
	ForceCompaction() error
}

// StatsReporter is the optional capability of engines that expose
// runtime statistics.
type StatsReporter interface {
	Stats() map[string]interface{}
}

// ErrKeyNotFound는 키가 저장소에 존재하지 않을 때 반환되는 오류입니다.
var ErrKeyNotFound = errors.New("key not found")

// ErrFuzzyGetNotSupported is returned when FuzzyGet is requested from an
// engine that does not implement FuzzySearcher.
var ErrFuzzyGetNotSupported = errors.New("fuzzy get not supported by this engine")
