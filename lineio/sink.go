// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package lineio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
)

// A Sink consumes the results of one batch: results[i] is the
// reduction of the line with global index offset+i. The engine calls
// Consume once per batch, in input order. The results slice is valid
// only for the duration of the call.
type Sink interface {
	Consume(ctx context.Context, offset int64, results []int) error
}

// SinkFunc adapts an ordinary function to a Sink.
type SinkFunc func(ctx context.Context, offset int64, results []int) error

// Consume implements Sink.
func (f SinkFunc) Consume(ctx context.Context, offset int64, results []int) error {
	return f(ctx, offset, results)
}

// A TextSink writes one "index: result" line per input line.
// Output is buffered; the user must call Flush when done.
type TextSink struct {
	w   *bufio.Writer
	buf []byte
}

// NewTextSink returns a TextSink that writes to w.
func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: bufio.NewWriter(w)}
}

// Consume implements Sink.
func (s *TextSink) Consume(ctx context.Context, offset int64, results []int) error {
	for i, r := range results {
		s.buf = strconv.AppendInt(s.buf[:0], offset+int64(i), 10)
		s.buf = append(s.buf, ':', ' ')
		s.buf = strconv.AppendInt(s.buf, int64(r), 10)
		s.buf = append(s.buf, '\n')
		if _, err := s.w.Write(s.buf); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes any buffered output.
func (s *TextSink) Flush() error {
	return s.w.Flush()
}

type orderedSink struct {
	Sink
	next int64
}

// Ordered returns a Sink that checks that results are consumed in
// strictly increasing line order, without gaps or duplicates,
// starting at line 0, before passing them on to sink. Violations are
// reported as errors of kind errors.Invalid.
func Ordered(sink Sink) Sink {
	return &orderedSink{Sink: sink}
}

func (o *orderedSink) Consume(ctx context.Context, offset int64, results []int) error {
	if offset != o.next {
		return errors.E(errors.Invalid,
			fmt.Sprintf("lineio: results for line %d consumed out of order; expected line %d", offset, o.next))
	}
	o.next += int64(len(results))
	return o.Sink.Consume(ctx, offset, results)
}
