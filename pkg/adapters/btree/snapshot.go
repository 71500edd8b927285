package btree

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/sukryu/GoKeep/pkg/types"
)

// Snapshot compression algorithms.
const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionZstd   = "zstd"
)

// Snapshot stream algorithm tags. The tag byte makes the file
// self-describing, so a snapshot written under one configuration can be
// read under another.
const (
	snapshotTagNone   byte = 0x00
	snapshotTagSnappy byte = 0x01
	snapshotTagZstd   byte = 0x02
)

// ErrSnapshotCorrupted는 스냅샷 파일이 손상되었을 때 반환됩니다.
var ErrSnapshotCorrupted = errors.New("snapshot file is corrupted")

func compressionTag(compression string) (byte, error) {
	switch compression {
	case CompressionNone:
		return snapshotTagNone, nil
	case CompressionSnappy:
		return snapshotTagSnappy, nil
	case CompressionZstd:
		return snapshotTagZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression type %q", compression)
	}
}

// writeSnapshot persists entries as [tag][stream of keyLen,key,valLen,value]
// with the stream compressed per the configured algorithm. The file is
// written to a .tmp sibling and renamed into place so a partial snapshot is
// never observable.
func writeSnapshot(path string, entries []types.Entry, compression string) error {
	tag, err := compressionTag(compression)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("snapshot create %s: %w", tmp, err)
	}
	defer f.Close()

	if _, err := f.Write([]byte{tag}); err != nil {
		return fmt.Errorf("snapshot write %s: %w", tmp, err)
	}

	var w io.Writer
	var finish func() error
	switch tag {
	case snapshotTagSnappy:
		sw := snappy.NewBufferedWriter(f)
		w, finish = sw, sw.Close
	case snapshotTagZstd:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			return fmt.Errorf("snapshot zstd %s: %w", tmp, err)
		}
		w, finish = zw, zw.Close
	default:
		bw := bufio.NewWriter(f)
		w, finish = bw, bw.Flush
	}

	var lenBuf [4]byte
	for _, e := range entries {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.Key)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("snapshot write %s: %w", tmp, err)
		}
		if _, err := io.WriteString(w, e.Key); err != nil {
			return fmt.Errorf("snapshot write %s: %w", tmp, err)
		}
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.Value)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("snapshot write %s: %w", tmp, err)
		}
		if _, err := io.WriteString(w, e.Value); err != nil {
			return fmt.Errorf("snapshot write %s: %w", tmp, err)
		}
	}
	if err := finish(); err != nil {
		return fmt.Errorf("snapshot flush %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("snapshot sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("snapshot close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("snapshot commit %s: %w", path, err)
	}
	return nil
}

// loadSnapshot reads a snapshot back into memory. A missing file is not an
// error; it simply means no snapshot was ever taken.
func loadSnapshot(path string) ([]types.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot open %s: %w", path, err)
	}
	defer f.Close()

	var tagBuf [1]byte
	if _, err := io.ReadFull(f, tagBuf[:]); err != nil {
		if err == io.EOF {
			return nil, nil // empty snapshot
		}
		return nil, fmt.Errorf("snapshot %s: %w", path, ErrSnapshotCorrupted)
	}

	var r io.Reader
	switch tagBuf[0] {
	case snapshotTagNone:
		r = bufio.NewReader(f)
	case snapshotTagSnappy:
		r = snappy.NewReader(f)
	case snapshotTagZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", path, ErrSnapshotCorrupted)
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("snapshot %s: bad algorithm tag 0x%02x: %w", path, tagBuf[0], ErrSnapshotCorrupted)
	}

	var entries []types.Entry
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("snapshot %s: %w", path, ErrSnapshotCorrupted)
		}
		keyLen := binary.BigEndian.Uint32(lenBuf[:])
		if keyLen > maxWALFieldLen {
			return nil, fmt.Errorf("snapshot %s: key length %d: %w", path, keyLen, ErrSnapshotCorrupted)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", path, ErrSnapshotCorrupted)
		}
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", path, ErrSnapshotCorrupted)
		}
		valLen := binary.BigEndian.Uint32(lenBuf[:])
		if valLen > maxWALFieldLen {
			return nil, fmt.Errorf("snapshot %s: value length %d: %w", path, valLen, ErrSnapshotCorrupted)
		}
		value := make([]byte, valLen)
		if _, err := io.ReadFull(r, value); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", path, ErrSnapshotCorrupted)
		}
		entries = append(entries, types.Entry{Key: string(key), Value: string(value)})
	}
	return entries, nil
}
