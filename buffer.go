// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigline

const (
	// InitialLines is the initial line capacity of a batch buffer.
	initialLines = 1024
	// InitialBytes is the initial data capacity of a batch buffer.
	initialBytes = 64 << 10
)

// A BatchBuffer accumulates lines into a Batch. Its storage starts
// small and doubles whenever it overflows; grown storage is freshly
// allocated (and thus zeroed) before existing lines are copied into
// it, so no part of a batch ever exposes stale data.
//
// A BatchBuffer is owned by a single reader and is not safe for
// concurrent use.
type BatchBuffer struct {
	offset int64
	data   []byte
	ends   []int
}

// NewBatchBuffer returns an empty buffer for a batch whose first line
// has the provided global index.
func NewBatchBuffer(offset int64) *BatchBuffer {
	return &BatchBuffer{offset: offset}
}

// Len returns the number of lines appended so far.
func (b *BatchBuffer) Len() int { return len(b.ends) }

// Size returns the number of content bytes appended so far.
func (b *BatchBuffer) Size() int { return len(b.data) }

// Cap returns the current line capacity of the buffer.
func (b *BatchBuffer) Cap() int { return cap(b.ends) }

// Append copies line into the buffer as its next line.
func (b *BatchBuffer) Append(line []byte) {
	if len(b.ends) == cap(b.ends) {
		b.ends = growInts(b.ends)
	}
	if need := len(b.data) + len(line); need > cap(b.data) {
		b.data = growBytes(b.data, need)
	}
	b.data = append(b.data, line...)
	b.ends = append(b.ends, len(b.data))
}

// Batch returns the batch of lines appended to the buffer. The buffer
// hands its storage to the batch and is reset to an empty buffer
// positioned after the returned batch.
func (b *BatchBuffer) Batch() *Batch {
	batch := &Batch{Offset: b.offset, Data: b.data, Ends: b.ends}
	b.offset += int64(len(b.ends))
	b.data, b.ends = nil, nil
	return batch
}

func growInts(p []int) []int {
	n := 2 * cap(p)
	if n == 0 {
		n = initialLines
	}
	q := make([]int, len(p), n)
	copy(q, p)
	return q
}

func growBytes(p []byte, need int) []byte {
	n := 2 * cap(p)
	if n == 0 {
		n = initialBytes
	}
	for n < need {
		n *= 2
	}
	q := make([]byte, len(p), n)
	copy(q, p)
	return q
}
