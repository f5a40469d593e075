// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package lineio provides the line source and the result sinks used
// by the bigline engine.
package lineio

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/bigline"
)

// DefaultMemoryBudget is the default upper bound on the number of
// input bytes held by a single batch.
const DefaultMemoryBudget = 60 << 20

// A BatchReader produces successive batches of input lines. Batches
// are contiguous: each batch begins at the line following the last
// line of the previous batch. NextBatch returns a batch with no lines
// exactly when the input is exhausted.
type BatchReader interface {
	// NextBatch reads the next batch of at most capacityHint lines.
	NextBatch(ctx context.Context, capacityHint int) (*bigline.Batch, error)
}

// A SourceOption configures a Source.
type SourceOption func(s *Source)

// MemoryBudget bounds the number of input bytes, delimiters included,
// held by a single batch. A batch always admits its first line, even
// if that line alone exceeds the budget.
func MemoryBudget(bytes int64) SourceOption {
	if bytes <= 0 {
		panic("lineio.MemoryBudget: bytes <= 0")
	}
	return func(s *Source) {
		s.budget = bytes
	}
}

// Limit stops the source after the provided number of lines, as if
// the input ended there.
func Limit(lines int64) SourceOption {
	if lines <= 0 {
		panic("lineio.Limit: lines <= 0")
	}
	return func(s *Source) {
		s.limit = lines
	}
}

// A Source reads newline-delimited lines from an io.Reader and
// groups them into batches. Each line's trailing '\n' is stripped;
// all other bytes, including any '\r', are preserved. A final line
// that is not terminated by a delimiter is still a line.
//
// A Source reads its input strictly sequentially, once. It is not
// safe for concurrent use.
type Source struct {
	r      *bufio.Reader
	f      file.File
	budget int64
	limit  int64
	// offset is the global index of the next line to be returned.
	offset int64

	// scratch holds the most recently read line. When that line did
	// not fit into the batch under construction, held is set and the
	// line becomes the first line of the next batch.
	scratch []byte
	held    bool
	heldLen int

	err error
}

// NewSource returns a Source that reads lines from r.
func NewSource(r io.Reader, opts ...SourceOption) *Source {
	s := &Source{
		r:      bufio.NewReaderSize(r, 1<<20),
		budget: DefaultMemoryBudget,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the file at the provided path, which may be any path
// supported by github.com/grailbio/base/file, and returns a Source
// reading from it. The caller must close the source when done.
func Open(ctx context.Context, path string, opts ...SourceOption) (*Source, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, fmt.Sprintf("lineio.Open %s", path))
	}
	s := NewSource(f.Reader(ctx), opts...)
	s.f = f
	return s, nil
}

// Close releases the file opened by Open. It is a no-op for sources
// created by NewSource.
func (s *Source) Close(ctx context.Context) error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close(ctx)
	s.f = nil
	return err
}

// Offset returns the global index of the next line to be read.
func (s *Source) Offset() int64 { return s.offset }

// NextBatch implements BatchReader. It reads lines until the batch
// holds capacityHint lines, until the next line would take the batch
// beyond the source's memory budget, or until the input is
// exhausted. Read errors are sticky.
func (s *Source) NextBatch(ctx context.Context, capacityHint int) (*bigline.Batch, error) {
	if capacityHint <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("lineio.NextBatch: invalid capacity hint %d", capacityHint))
	}
	if s.err != nil {
		return nil, s.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		buf  = bigline.NewBatchBuffer(s.offset)
		used int64
	)
	for buf.Len() < capacityHint {
		if s.limit > 0 && s.offset+int64(buf.Len()) >= s.limit {
			break
		}
		line, size, ok, err := s.next()
		if err != nil {
			s.err = errors.E(err, "lineio: read")
			return nil, s.err
		}
		if !ok {
			break
		}
		if buf.Len() > 0 && used+int64(size) > s.budget {
			s.held, s.heldLen = true, size
			break
		}
		buf.Append(line)
		used += int64(size)
	}
	batch := buf.Batch()
	s.offset = batch.End()
	return batch, nil
}

// Next returns the next line, its footprint (the number of input
// bytes it occupied), and whether a line was available.
func (s *Source) next() (line []byte, size int, ok bool, err error) {
	if s.held {
		s.held = false
		return s.scratch, s.heldLen, true, nil
	}
	s.scratch = s.scratch[:0]
	for {
		frag, err := s.r.ReadSlice('\n')
		s.scratch = append(s.scratch, frag...)
		switch err {
		case nil:
			n := len(s.scratch)
			s.scratch = s.scratch[:n-1]
			return s.scratch, n, true, nil
		case bufio.ErrBufferFull:
		case io.EOF:
			if len(s.scratch) == 0 {
				return nil, 0, false, nil
			}
			return s.scratch, len(s.scratch), true, nil
		default:
			return nil, 0, false, err
		}
	}
}
