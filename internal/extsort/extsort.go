// Package extsort implements the disk-spilled k-way merge sort (C9): a
// RunBuilder that buffers records up to a configured RAM window, sorts
// and spills each full buffer to a zstd-compressed temp file, and a
// Merge that streams the runs back out in non-decreasing tile-id order
// via a container/heap-backed k-way merge.
package extsort

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/tobilg/citystream/internal/tiling"
)

// Record is one (tile id, serialized payload) pair moving through the
// external sort.
type Record struct {
	ID      tiling.TileID
	Payload []byte
}

// Config tunes the external sort's memory/disk trade-off.
type Config struct {
	// RAMWindowBytes bounds how much payload a RunBuilder buffers before
	// spilling a sorted run to disk. Default 200 MiB.
	RAMWindowBytes int64
	// TempDir is where run files are created; the caller owns its
	// lifecycle (extsort never creates or removes the directory itself).
	TempDir string
}

func (c Config) withDefaults() Config {
	if c.RAMWindowBytes <= 0 {
		c.RAMWindowBytes = 200 << 20
	}
	return c
}

const recordHeaderSize = 8 + 4 // TileID + payload length, both fixed-width

// writeRecord appends one length-prefixed record to w.
func writeRecord(w io.Writer, r Record) error {
	var header [recordHeaderSize]byte
	binary.BigEndian.PutUint64(header[0:8], uint64(r.ID))
	binary.BigEndian.PutUint32(header[8:12], uint32(len(r.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(r.Payload)
	return err
}

// readRecord reads one length-prefixed record from r, or io.EOF at a clean
// stream boundary.
func readRecord(r io.Reader) (Record, error) {
	var header [recordHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Record{}, err
	}
	id := tiling.TileID(binary.BigEndian.Uint64(header[0:8]))
	length := binary.BigEndian.Uint32(header[8:12])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Record{}, fmt.Errorf("extsort: truncated record body: %w", err)
	}
	return Record{ID: id, Payload: payload}, nil
}

// RunBuilder accumulates records in memory and spills sorted, zstd-
// compressed runs to TempDir once RAMWindowBytes is exceeded.
type RunBuilder struct {
	cfg Config

	buf          []Record
	bufferedSize int64

	runs []*os.File
}

// NewRunBuilder returns a RunBuilder ready to accept records.
func NewRunBuilder(cfg Config) *RunBuilder {
	return &RunBuilder{cfg: cfg.withDefaults()}
}

// Add buffers one record, spilling the current buffer as a sorted run if
// this addition would exceed the configured RAM window.
func (b *RunBuilder) Add(id tiling.TileID, payload []byte) error {
	b.buf = append(b.buf, Record{ID: id, Payload: payload})
	b.bufferedSize += int64(len(payload)) + recordHeaderSize

	if b.bufferedSize >= b.cfg.RAMWindowBytes {
		return b.flush()
	}
	return nil
}

// flush sorts the current buffer by tile id and spills it to a new
// zstd-compressed temp file, named with a uuid so concurrent converter
// runs sharing TempDir never collide.
func (b *RunBuilder) flush() error {
	if len(b.buf) == 0 {
		return nil
	}
	sort.Slice(b.buf, func(i, j int) bool { return b.buf[i].ID < b.buf[j].ID })

	name := fmt.Sprintf("citystream-extsort-%s.run", uuid.NewString())
	f, err := os.CreateTemp(b.cfg.TempDir, name)
	if err != nil {
		return fmt.Errorf("extsort: creating run file: %w", err)
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("extsort: starting zstd stream: %w", err)
	}
	bw := bufio.NewWriter(enc)
	for _, r := range b.buf {
		if err := writeRecord(bw, r); err != nil {
			enc.Close()
			f.Close()
			return fmt.Errorf("extsort: writing run %s: %w", f.Name(), err)
		}
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("extsort: flushing run %s: %w", f.Name(), err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("extsort: closing zstd stream for %s: %w", f.Name(), err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return fmt.Errorf("extsort: rewinding run %s: %w", f.Name(), err)
	}

	b.runs = append(b.runs, f)
	b.buf = nil
	b.bufferedSize = 0
	return nil
}

// Finish flushes any buffered records and returns the run files ready for
// Merge. The caller owns closing/removing the returned files once Merge
// has consumed them (Merge does not delete them itself, matching the
// "caller-chosen TempDir" ownership split in SPEC_FULL.md §3.9).
func (b *RunBuilder) Finish() ([]*os.File, error) {
	if err := b.flush(); err != nil {
		return nil, err
	}
	return b.runs, nil
}
