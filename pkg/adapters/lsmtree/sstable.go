package lsmtree

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"

	"k8s.io/klog/v2"

	"github.com/sukryu/GoKeep/pkg/types"
)

// Segment file suffixes. The three files of a segment share a stem.
const (
	dataFileSuffix  = ".data"
	indexFileSuffix = ".index"
	bloomFileSuffix = ".bloom"
	tmpFileSuffix   = ".tmp"
)

// tombstoneValueLen is the reserved value-length sentinel that encodes a
// tombstone on disk. A tombstone record carries no value payload.
const tombstoneValueLen = 0xFFFFFFFF

// maxFieldLen caps decoded field lengths; anything larger is corruption.
const maxFieldLen = 1 << 30

// sparseIndexEntry is one sampled (key, byte offset) pair of the data file.
type sparseIndexEntry struct {
	key    string
	offset int64
}

// SSTable is an immutable on-disk sorted run: a data file of
// length-prefixed records in strictly ascending key order, a sparse index
// sidecar sampling every Nth record, and a bloom filter sidecar. The
// sidecars live in memory once the table is open; the data file is read by
// seek.
type SSTable struct {
	stem     string // path without suffix
	file     *os.File
	dataSize int64
	index    []sparseIndexEntry
	bloom    *BloomFilter
	length   int // number of records in the data file
}

var _ types.SSTableInterface = (*SSTable)(nil)

// CreateSSTable writes the sorted entries as a new segment under stem.
// All three files are first written as .tmp siblings and fsynced; the
// sidecars are renamed before the data file, so a stem with a visible
// .data file always has complete sidecars.
func CreateSSTable(stem string, entries []types.Entry, stride int, falsePositiveRate float64) (*SSTable, error) {
	if stride <= 0 {
		stride = 1
	}

	dataTmp := stem + dataFileSuffix + tmpFileSuffix
	f, err := os.Create(dataTmp)
	if err != nil {
		return nil, ErrSSTableError{Stem: stem, Message: "create data file", Err: err}
	}
	defer f.Close()

	bloom := NewBloomFilter(len(entries), falsePositiveRate)
	var index []sparseIndexEntry
	w := bufio.NewWriter(f)
	var offset int64
	prevKey := ""
	for i, e := range entries {
		if i > 0 && e.Key <= prevKey {
			return nil, ErrSSTableError{Stem: stem,
				Message: fmt.Sprintf("keys out of order: %q after %q", e.Key, prevKey)}
		}
		prevKey = e.Key
		if i%stride == 0 {
			index = append(index, sparseIndexEntry{key: e.Key, offset: offset})
		}
		bloom.Add(e.Key)
		n, err := writeRecord(w, e)
		if err != nil {
			return nil, ErrSSTableError{Stem: stem, Message: "write record", Err: err}
		}
		offset += n
	}
	if err := w.Flush(); err != nil {
		return nil, ErrSSTableError{Stem: stem, Message: "flush data file", Err: err}
	}
	if err := f.Sync(); err != nil {
		return nil, ErrSSTableError{Stem: stem, Message: "sync data file", Err: err}
	}
	if err := f.Close(); err != nil {
		return nil, ErrSSTableError{Stem: stem, Message: "close data file", Err: err}
	}

	if err := writeSidecar(stem+indexFileSuffix, encodeSparseIndex(len(entries), index)); err != nil {
		return nil, ErrSSTableError{Stem: stem, Message: "write index sidecar", Err: err}
	}
	if err := writeSidecar(stem+bloomFileSuffix, bloom.Marshal()); err != nil {
		return nil, ErrSSTableError{Stem: stem, Message: "write bloom sidecar", Err: err}
	}
	// 데이터 파일의 rename이 커밋 지점입니다.
	if err := os.Rename(dataTmp, stem+dataFileSuffix); err != nil {
		return nil, ErrSSTableError{Stem: stem, Message: "commit data file", Err: err}
	}

	file, err := os.Open(stem + dataFileSuffix)
	if err != nil {
		return nil, ErrSSTableError{Stem: stem, Message: "reopen data file", Err: err}
	}
	klog.V(3).InfoS("sstable committed", "stem", stem, "records", len(entries), "indexEntries", len(index))
	return &SSTable{
		stem:     stem,
		file:     file,
		dataSize: offset,
		index:    index,
		bloom:    bloom,
		length:   len(entries),
	}, nil
}

// writeRecord encodes one record and returns its encoded size.
func writeRecord(w *bufio.Writer, e types.Entry) (int64, error) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.Key)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return 0, err
	}
	if _, err := w.WriteString(e.Key); err != nil {
		return 0, err
	}
	if e.Tombstone {
		binary.BigEndian.PutUint32(lenBuf[:], tombstoneValueLen)
		if _, err := w.Write(lenBuf[:]); err != nil {
			return 0, err
		}
		return int64(8 + len(e.Key)), nil
	}
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.Value)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return 0, err
	}
	if _, err := w.WriteString(e.Value); err != nil {
		return 0, err
	}
	return int64(8 + len(e.Key) + len(e.Value)), nil
}

// writeSidecar writes payload+CRC32 to path via a .tmp sibling.
func writeSidecar(path string, payload []byte) error {
	tmp := path + tmpFileSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer f.Close()
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc32.ChecksumIEEE(payload))
	if _, err := f.Write(payload); err != nil {
		return err
	}
	if _, err := f.Write(crcBuf[:]); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// readSidecar reads path and verifies its CRC32 trailer, returning the
// payload.
func readSidecar(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("sidecar %s too short: %w", path, ErrSSTableCorrupted)
	}
	payload := data[:len(data)-4]
	want := binary.BigEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(payload) != want {
		return nil, fmt.Errorf("sidecar %s checksum mismatch: %w", path, ErrSSTableCorrupted)
	}
	return payload, nil
}

// encodeSparseIndex packs [recordCount u32][indexCount u32] followed by
// (keyLen u32, key, offset u64) per sampled record, all BigEndian.
func encodeSparseIndex(recordCount int, index []sparseIndexEntry) []byte {
	size := 8
	for _, e := range index {
		size += 4 + len(e.key) + 8
	}
	out := make([]byte, 0, size)
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], uint32(recordCount))
	out = append(out, buf[:4]...)
	binary.BigEndian.PutUint32(buf[:4], uint32(len(index)))
	out = append(out, buf[:4]...)
	for _, e := range index {
		binary.BigEndian.PutUint32(buf[:4], uint32(len(e.key)))
		out = append(out, buf[:4]...)
		out = append(out, e.key...)
		binary.BigEndian.PutUint64(buf[:8], uint64(e.offset))
		out = append(out, buf[:8]...)
	}
	return out
}

// decodeSparseIndex is the inverse of encodeSparseIndex. It validates that
// keys are strictly ascending and offsets monotone.
func decodeSparseIndex(payload []byte, path string) (int, []sparseIndexEntry, error) {
	if len(payload) < 8 {
		return 0, nil, fmt.Errorf("index %s header too short: %w", path, ErrSSTableCorrupted)
	}
	recordCount := int(binary.BigEndian.Uint32(payload[0:4]))
	indexCount := int(binary.BigEndian.Uint32(payload[4:8]))
	pos := 8
	index := make([]sparseIndexEntry, 0, indexCount)
	for i := 0; i < indexCount; i++ {
		if pos+4 > len(payload) {
			return 0, nil, fmt.Errorf("index %s truncated: %w", path, ErrSSTableCorrupted)
		}
		keyLen := int(binary.BigEndian.Uint32(payload[pos : pos+4]))
		pos += 4
		if keyLen > maxFieldLen || pos+keyLen+8 > len(payload) {
			return 0, nil, fmt.Errorf("index %s truncated: %w", path, ErrSSTableCorrupted)
		}
		key := string(payload[pos : pos+keyLen])
		pos += keyLen
		offset := int64(binary.BigEndian.Uint64(payload[pos : pos+8]))
		pos += 8
		if n := len(index); n > 0 && (key <= index[n-1].key || offset <= index[n-1].offset) {
			return 0, nil, fmt.Errorf("index %s entries not monotone: %w", path, ErrSSTableCorrupted)
		}
		index = append(index, sparseIndexEntry{key: key, offset: offset})
	}
	if pos != len(payload) {
		return 0, nil, fmt.Errorf("index %s trailing bytes: %w", path, ErrSSTableCorrupted)
	}
	return recordCount, index, nil
}

// OpenSSTable opens an existing segment by stem, loading both sidecars. A
// missing or corrupt sidecar makes the segment unusable and fails the open.
func OpenSSTable(stem string) (*SSTable, error) {
	file, err := os.Open(stem + dataFileSuffix)
	if err != nil {
		return nil, ErrSSTableError{Stem: stem, Message: "open data file", Err: err}
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, ErrSSTableError{Stem: stem, Message: "stat data file", Err: err}
	}

	indexPayload, err := readSidecar(stem + indexFileSuffix)
	if err != nil {
		file.Close()
		return nil, ErrSSTableError{Stem: stem, Message: "load index sidecar", Err: err}
	}
	recordCount, index, err := decodeSparseIndex(indexPayload, stem+indexFileSuffix)
	if err != nil {
		file.Close()
		return nil, err
	}

	bloomPayload, err := readSidecar(stem + bloomFileSuffix)
	if err != nil {
		file.Close()
		return nil, ErrSSTableError{Stem: stem, Message: "load bloom sidecar", Err: err}
	}
	bloom, err := UnmarshalBloomFilter(bloomPayload)
	if err != nil {
		file.Close()
		return nil, err
	}

	if len(index) > 0 && index[len(index)-1].offset >= fi.Size() {
		file.Close()
		return nil, fmt.Errorf("index %s points past data end: %w", stem, ErrSSTableCorrupted)
	}

	return &SSTable{
		stem:     stem,
		file:     file,
		dataSize: fi.Size(),
		index:    index,
		bloom:    bloom,
		length:   recordCount,
	}, nil
}

// MightContain consults the segment's bloom filter. A false result is
// definitive; a true result still requires a Get.
func (s *SSTable) MightContain(key string) bool {
	return s.bloom.MightContain(key)
}

// Get performs a point lookup: bloom gate, sparse index binary search,
// then a bounded forward scan from the nearest sampled offset. The
// returned entry may be a tombstone; the caller interprets it.
func (s *SSTable) Get(key string) (types.Entry, bool, error) {
	if !s.bloom.MightContain(key) {
		return types.Entry{}, false, nil
	}
	// 목표 키 이하의 가장 큰 색인 키를 이진 탐색합니다.
	idx := sort.Search(len(s.index), func(i int) bool {
		return s.index[i].key > key
	})
	if idx == 0 {
		// Target precedes the first record; the bloom filter lied.
		return types.Entry{}, false, nil
	}
	offset := s.index[idx-1].offset

	r := bufio.NewReader(io.NewSectionReader(s.file, offset, s.dataSize-offset))
	for {
		entry, err := readRecord(r)
		if err == io.EOF {
			return types.Entry{}, false, nil
		}
		if err != nil {
			return types.Entry{}, false, ErrSSTableError{Stem: s.stem, Message: "decode record", Err: err}
		}
		if entry.Key == key {
			return entry, true, nil
		}
		if entry.Key > key {
			return types.Entry{}, false, nil
		}
	}
}

// readRecord decodes one record. io.EOF marks a clean end of data; any
// partial or malformed record is reported as corruption.
func readRecord(r *bufio.Reader) (types.Entry, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return types.Entry{}, io.EOF
		}
		return types.Entry{}, fmt.Errorf("record truncated: %w", ErrSSTableCorrupted)
	}
	keyLen := binary.BigEndian.Uint32(lenBuf[:])
	if keyLen > maxFieldLen {
		return types.Entry{}, fmt.Errorf("key length %d: %w", keyLen, ErrSSTableCorrupted)
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return types.Entry{}, fmt.Errorf("record truncated: %w", ErrSSTableCorrupted)
	}
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return types.Entry{}, fmt.Errorf("record truncated: %w", ErrSSTableCorrupted)
	}
	valLen := binary.BigEndian.Uint32(lenBuf[:])
	if valLen == tombstoneValueLen {
		return types.Entry{Key: string(key), Tombstone: true}, nil
	}
	if valLen > maxFieldLen {
		return types.Entry{}, fmt.Errorf("value length %d: %w", valLen, ErrSSTableCorrupted)
	}
	value := make([]byte, valLen)
	if _, err := io.ReadFull(r, value); err != nil {
		return types.Entry{}, fmt.Errorf("record truncated: %w", ErrSSTableCorrupted)
	}
	return types.Entry{Key: string(key), Value: string(value)}, nil
}

// SSTableIterator lazily decodes the whole data file in key order. It owns
// its own file handle, so it stays valid independent of the parent table
// and is restartable by calling Iterator again.
type SSTableIterator struct {
	file  *os.File
	r     *bufio.Reader
	entry types.Entry
	err   error
}

// Iterator opens a fresh ordered scan over the segment.
func (s *SSTable) Iterator() (*SSTableIterator, error) {
	file, err := os.Open(s.stem + dataFileSuffix)
	if err != nil {
		return nil, ErrSSTableError{Stem: s.stem, Message: "open iterator", Err: err}
	}
	return &SSTableIterator{file: file, r: bufio.NewReader(file)}, nil
}

// Next advances to the next record, reporting false at the end of the
// data or on error.
func (it *SSTableIterator) Next() bool {
	if it.err != nil {
		return false
	}
	entry, err := readRecord(it.r)
	if err == io.EOF {
		return false
	}
	if err != nil {
		it.err = err
		return false
	}
	it.entry = entry
	return true
}

// Entry returns the current record.
func (it *SSTableIterator) Entry() types.Entry {
	return it.entry
}

// Err returns the first decode error, if any.
func (it *SSTableIterator) Err() error {
	return it.err
}

// Close releases the iterator's file handle.
func (it *SSTableIterator) Close() error {
	return it.file.Close()
}

// Length returns the number of records in the segment.
func (s *SSTable) Length() int {
	return s.length
}

// Stem returns the segment's path stem.
func (s *SSTable) Stem() string {
	return s.stem
}

// Close releases the data file handle.
func (s *SSTable) Close() error {
	return s.file.Close()
}

// Remove unlinks all three segment files. The table must be closed first.
func (s *SSTable) Remove() error {
	for _, suffix := range []string{dataFileSuffix, indexFileSuffix, bloomFileSuffix} {
		if err := os.Remove(s.stem + suffix); err != nil {
			return ErrSSTableError{Stem: s.stem, Message: "remove " + suffix, Err: err}
		}
	}
	return nil
}
