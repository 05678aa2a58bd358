package extsort

import (
	"container/heap"
	"context"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/klauspost/compress/zstd"
)

// runReader peeks one run file's next record, decompressing lazily.
type runReader struct {
	dec     *zstd.Decoder
	f       *os.File
	current Record
	done    bool
}

func newRunReader(f *os.File) (*runReader, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("extsort: rewinding run %s: %w", f.Name(), err)
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("extsort: opening zstd stream for %s: %w", f.Name(), err)
	}
	r := &runReader{dec: dec, f: f}
	if err := r.advance(); err != nil {
		dec.Close()
		return nil, err
	}
	return r, nil
}

func (r *runReader) advance() error {
	rec, err := readRecord(r.dec)
	if err != nil {
		if err == io.EOF {
			r.done = true
			return nil
		}
		return fmt.Errorf("extsort: reading run %s: %w", r.f.Name(), err)
	}
	r.current = rec
	return nil
}

func (r *runReader) close() {
	r.dec.Close()
}

// runHeap is a min-heap of active runReaders ordered by their current
// record's tile id, the merge front of the k-way external sort.
type runHeap []*runReader

func (h runHeap) Len() int            { return len(h) }
func (h runHeap) Less(i, j int) bool  { return h[i].current.ID < h[j].current.ID }
func (h runHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *runHeap) Push(x any)         { *h = append(*h, x.(*runReader)) }
func (h *runHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Merge streams every run's records back out in non-decreasing tile-id
// order via a container/heap-backed k-way merge, checking ctx every
// 10000 emitted records so a cancelled pipeline run unwinds promptly.
// Runs are read from their current file position 0 regardless of where
// RunBuilder left the handle (Merge always rewinds first).
func Merge(ctx context.Context, runs []*os.File) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		h := make(runHeap, 0, len(runs))
		for _, f := range runs {
			r, err := newRunReader(f)
			if err != nil {
				yield(Record{}, err)
				return
			}
			if r.done {
				r.close()
				continue
			}
			h = append(h, r)
		}
		heap.Init(&h)
		defer func() {
			for _, r := range h {
				r.close()
			}
		}()

		emitted := 0
		for h.Len() > 0 {
			emitted++
			if emitted%10000 == 0 {
				if err := ctx.Err(); err != nil {
					yield(Record{}, err)
					return
				}
			}

			top := h[0]
			rec := top.current
			if err := top.advance(); err != nil {
				heap.Pop(&h)
				top.close()
				yield(Record{}, err)
				return
			}
			if top.done {
				heap.Pop(&h)
				top.close()
			} else {
				heap.Fix(&h, 0)
			}

			if !yield(rec, nil) {
				return
			}
		}
	}
}
