// Package mlog implements the per-queue, append-only message log described
// in spec §4.2: a data file `<basedir>/<queue>.mqd` with length-prefixed
// records, in-place invalidation on ack, and offline compaction. It is
// grounded on the original implementation's MessageMapper
// (server/message.hpp), generalized from its 4-byte-length/text-valid-flag
// C++ layout to an 8-byte native length prefix and a 1-byte valid flag, per
// the spec's own recommendation ("8-byte native, because persistence is
// always local to this broker").
package mlog

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.bryk.io/hive/model"
)

const (
	dataSuffix = ".mqd"
	tmpSuffix  = ".mqd.tmp"

	lengthPrefixSize = 8
)

// Log manages the on-disk append-only file for a single durable queue. All
// mutation is serialized through `mu`; a Log instance is owned by exactly
// one pipeline.
type Log struct {
	mu       sync.Mutex
	dataFile string
	tmpFile  string
	f        *os.File
}

// Entry describes a valid record recovered from disk, its on-disk location
// and a handle the pipeline uses to update it (ack / recompute offset).
type Entry struct {
	Message model.Message
	Offset  int64
	Length  int64
}

// Open creates/opens the data file for `queue` under `basedir`, creating the
// directory if required. Any leftover temp file from a crash mid-compaction
// is removed, per spec §6 ("any leftover temp file MAY be deleted safely").
func Open(basedir, queue string) (*Log, error) {
	if err := os.MkdirAll(basedir, 0o755); err != nil {
		return nil, fmt.Errorf("mlog: create basedir: %w", err)
	}
	l := &Log{
		dataFile: filepath.Join(basedir, queue+dataSuffix),
		tmpFile:  filepath.Join(basedir, queue+tmpSuffix),
	}
	_ = os.Remove(l.tmpFile)

	f, err := os.OpenFile(l.dataFile, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mlog: open data file: %w", err)
	}
	l.f = f
	return l, nil
}

// Close releases the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// Remove closes and deletes the data and temp files; used when the owning
// queue is destroyed.
func (l *Log) Remove() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.f.Close()
	_ = os.Remove(l.tmpFile)
	return os.Remove(l.dataFile)
}

// Append writes `m` at the end of the data file and returns the offset and
// length of the serialized record, to be recorded on the in-memory durable
// index entry.
func (l *Log) Append(m model.Message) (offset int64, length int64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendTo(l.f, m)
}

func (l *Log) appendTo(f *os.File, m model.Message) (int64, int64, error) {
	off, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("mlog: seek end: %w", err)
	}
	payload := recordFromMessage(m).encode()
	if err := writeFramed(f, off, payload); err != nil {
		return 0, 0, err
	}
	return off, int64(len(payload)), nil
}

func writeFramed(f *os.File, offset int64, payload []byte) error {
	header := make([]byte, lengthPrefixSize)
	binary.LittleEndian.PutUint64(header, uint64(len(payload)))
	if _, err := f.WriteAt(header, offset); err != nil {
		return fmt.Errorf("mlog: write length prefix: %w", err)
	}
	if _, err := f.WriteAt(payload, offset+lengthPrefixSize); err != nil {
		return fmt.Errorf("mlog: write payload: %w", err)
	}
	return nil
}

// Invalidate flips the `valid` flag of the record at `offset`/`length` to
// invalid and rewrites it in place. The re-serialization is required to
// produce a byte-identical length (only the fixed-width valid byte moves
// from 1 to 0); a length mismatch indicates a schema-drift bug and is a
// fatal condition the caller must abort on, per spec §7.
func (l *Log) Invalidate(offset, length int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	payload := make([]byte, length)
	if _, err := l.f.ReadAt(payload, offset+lengthPrefixSize); err != nil {
		return fmt.Errorf("mlog: read record for invalidation: %w", err)
	}
	rec, err := decodeRecord(payload)
	if err != nil {
		return err
	}
	rec.valid = false
	newPayload := rec.encode()
	if int64(len(newPayload)) != length {
		return fmt.Errorf("%w: old=%d new=%d", ErrSchemaDrift, length, len(newPayload))
	}
	if _, err := l.f.WriteAt(newPayload, offset+lengthPrefixSize); err != nil {
		return fmt.Errorf("mlog: write invalidated record: %w", err)
	}
	return nil
}

// ErrSchemaDrift is returned by Invalidate when flipping the valid flag
// changed the serialized record length — an unrecoverable, fatal condition.
var ErrSchemaDrift = fmt.Errorf("mlog: in-place invalidation produced a different length")

// LoadValid scans the data file front-to-back and returns every valid
// record found, in file order, along with its current on-disk location.
func (l *Log) LoadValid(queue string) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return loadValidFrom(l.f, queue)
}

func loadValidFrom(f *os.File, queue string) ([]Entry, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()

	var entries []Entry
	var offset int64
	header := make([]byte, lengthPrefixSize)
	for offset < size {
		if _, err := io.ReadFull(f, header); err != nil {
			return nil, fmt.Errorf("mlog: read length prefix at %d: %w", offset, err)
		}
		length := int64(binary.LittleEndian.Uint64(header))
		payload := make([]byte, length)
		if _, err := io.ReadFull(f, payload); err != nil {
			return nil, fmt.Errorf("mlog: read payload at %d: %w", offset, err)
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		recOffset := offset
		offset += lengthPrefixSize + length
		if !rec.valid {
			continue
		}
		entries = append(entries, Entry{
			Message: rec.toProperties(queue),
			Offset:  recOffset,
			Length:  length,
		})
	}
	return entries, nil
}

// Stats reports the total record count and valid record count currently on
// disk, used by the pipeline to decide whether to trigger compaction.
func (l *Log) Stats(queue string) (total, valid int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err = l.f.Seek(0, io.SeekStart); err != nil {
		return
	}
	info, err := l.f.Stat()
	if err != nil {
		return
	}
	size := info.Size()
	var offset int64
	header := make([]byte, lengthPrefixSize)
	for offset < size {
		if _, err = io.ReadFull(l.f, header); err != nil {
			return
		}
		length := int64(binary.LittleEndian.Uint64(header))
		payload := make([]byte, length)
		if _, err = io.ReadFull(l.f, payload); err != nil {
			return
		}
		total++
		if payload[0] == 1 {
			valid++
		}
		offset += lengthPrefixSize + length
	}
	return total, valid, nil
}

// Compact rewrites the data file keeping only valid records: it loads every
// valid record, appends each to a temp file (recording its new offset and
// length), atomically replaces the data file with the temp file, and
// returns the relocated entries so the pipeline can update its durable
// index. Per spec §4.2, compaction should only be invoked after both
// `total > 2000` and `valid/total < 0.5` hold.
func (l *Log) Compact(queue string) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	valid, err := loadValidFrom(l.f, queue)
	if err != nil {
		return nil, fmt.Errorf("mlog: compact: load valid records: %w", err)
	}

	tmp, err := os.OpenFile(l.tmpFile, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mlog: compact: create temp file: %w", err)
	}
	relocated := make([]Entry, 0, len(valid))
	for _, e := range valid {
		off, length, err := l.appendTo(tmp, e.Message)
		if err != nil {
			_ = tmp.Close()
			return nil, fmt.Errorf("mlog: compact: write temp record: %w", err)
		}
		relocated = append(relocated, Entry{Message: e.Message, Offset: off, Length: length})
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("mlog: compact: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("mlog: compact: close temp file: %w", err)
	}
	if err := l.f.Close(); err != nil {
		return nil, fmt.Errorf("mlog: compact: close data file: %w", err)
	}
	if err := os.Remove(l.dataFile); err != nil {
		return nil, fmt.Errorf("mlog: compact: remove data file: %w", err)
	}
	if err := os.Rename(l.tmpFile, l.dataFile); err != nil {
		return nil, fmt.Errorf("mlog: compact: rename temp file: %w", err)
	}
	f, err := os.OpenFile(l.dataFile, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mlog: compact: reopen data file: %w", err)
	}
	l.f = f
	return relocated, nil
}

// ShouldCompact implements the spec §4.2 compaction trigger: total > 2000
// AND valid/total < 0.5.
func ShouldCompact(total, valid int) bool {
	if total <= 2000 {
		return false
	}
	return float64(valid)/float64(total) < 0.5
}
