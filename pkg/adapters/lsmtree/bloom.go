package lsmtree

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/twmb/murmur3"
)

// BloomFilter is a bit-array membership filter with k positions derived
// from two murmur3 base hashes via double hashing:
// h_i = (h1 + i*h2) mod m. False positives are possible, false negatives
// are not.
type BloomFilter struct {
	bits []byte
	m    uint64 // bit array size
	k    uint32 // number of hash functions
}

// NewBloomFilter sizes a filter for the expected number of items and the
// target false-positive rate using the standard formulas
// m = -n*ln(p)/(ln 2)^2 and k = (m/n)*ln 2.
func NewBloomFilter(expectedItems int, falsePositiveRate float64) *BloomFilter {
	if expectedItems <= 0 {
		expectedItems = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}
	m := uint64(math.Ceil(-float64(expectedItems) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)))
	if m < 8 {
		m = 8
	}
	k := uint32(math.Round(float64(m) / float64(expectedItems) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	return &BloomFilter{
		bits: make([]byte, (m+7)/8),
		m:    m,
		k:    k,
	}
}

// Add sets the k derived bit positions for key.
func (bf *BloomFilter) Add(key string) {
	h1, h2 := murmur3.Sum128([]byte(key))
	for i := uint32(0); i < bf.k; i++ {
		pos := (h1 + uint64(i)*h2) % bf.m
		bf.bits[pos/8] |= 1 << (pos % 8)
	}
}

// MightContain returns true iff all k derived bits are set. A true result
// may be a false positive; a false result is definitive.
func (bf *BloomFilter) MightContain(key string) bool {
	h1, h2 := murmur3.Sum128([]byte(key))
	for i := uint32(0); i < bf.k; i++ {
		pos := (h1 + uint64(i)*h2) % bf.m
		if bf.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

// Marshal packs the filter as [m u64][k u32][byteLen u32][bits], all
// BigEndian. A filter rebuilt from this encoding answers membership
// bit-identically.
func (bf *BloomFilter) Marshal() []byte {
	out := make([]byte, 16+len(bf.bits))
	binary.BigEndian.PutUint64(out[0:8], bf.m)
	binary.BigEndian.PutUint32(out[8:12], bf.k)
	binary.BigEndian.PutUint32(out[12:16], uint32(len(bf.bits)))
	copy(out[16:], bf.bits)
	return out
}

// UnmarshalBloomFilter rehydrates a filter from Marshal's encoding.
func UnmarshalBloomFilter(data []byte) (*BloomFilter, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("bloom filter header too short (%d bytes): %w", len(data), ErrSSTableCorrupted)
	}
	m := binary.BigEndian.Uint64(data[0:8])
	k := binary.BigEndian.Uint32(data[8:12])
	byteLen := binary.BigEndian.Uint32(data[12:16])
	if m == 0 || k == 0 || uint64(byteLen) != (m+7)/8 || len(data) != 16+int(byteLen) {
		return nil, fmt.Errorf("bloom filter parameters inconsistent (m=%d k=%d len=%d): %w",
			m, k, byteLen, ErrSSTableCorrupted)
	}
	bits := make([]byte, byteLen)
	copy(bits, data[16:])
	return &BloomFilter{bits: bits, m: m, k: k}, nil
}
