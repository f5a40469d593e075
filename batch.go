// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigline

import (
	"encoding/binary"
	"fmt"

	"github.com/spaolacci/murmur3"
)

// A Line is a single input line, without its trailing delimiter,
// together with its global index. Bytes is a length-bounded view into
// the owning batch's storage: it must not be modified, and it is valid
// only for the lifetime of the batch.
type Line struct {
	// Index is the zero-based position of the line in the input.
	Index int64
	// Bytes holds the contents of the line.
	Bytes []byte
}

// A Batch is a contiguous run of input lines, stored in a single arena.
// Line i of the batch has global index Offset+i and occupies
// Data[Ends[i-1]:Ends[i]], where Ends[-1] is taken to be 0.
//
// Batch fields are exported so that batches may be transmitted
// between processes; they should otherwise be treated as opaque.
// A batch with no lines is the end-of-input sentinel.
type Batch struct {
	// Offset is the global index of the batch's first line.
	Offset int64
	// Data is the concatenated line contents.
	Data []byte
	// Ends holds the end position in Data of each line.
	Ends []int
}

// Len returns the number of lines in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Ends)
}

// End returns the global index one past the batch's last line.
func (b *Batch) End() int64 {
	return b.Offset + int64(b.Len())
}

func (b *Batch) start(i int) int {
	if i == 0 {
		return 0
	}
	return b.Ends[i-1]
}

// Bytes returns the contents of line i. The returned slice is capped
// at the line's end, so that appending to it never writes into the
// next line.
func (b *Batch) Bytes(i int) []byte {
	beg, end := b.start(i), b.Ends[i]
	return b.Data[beg:end:end]
}

// Line returns line i of the batch.
func (b *Batch) Line(i int) Line {
	return Line{Index: b.Offset + int64(i), Bytes: b.Bytes(i)}
}

// Size returns the number of content bytes held by the batch.
func (b *Batch) Size() int {
	if b.Len() == 0 {
		return 0
	}
	return b.Ends[len(b.Ends)-1]
}

// Slice returns the sub-batch of lines [i, j). The sub-batch is
// re-based: its offset is b.Offset+i and its ends are relative to its
// own data. Line contents are shared with b.
func (b *Batch) Slice(i, j int) *Batch {
	if i < 0 || j < i || j > b.Len() {
		panic(fmt.Sprintf("bigline.Batch.Slice: [%d, %d) out of range [0, %d)", i, j, b.Len()))
	}
	base := b.start(i)
	s := &Batch{Offset: b.Offset + int64(i)}
	if i == j {
		return s
	}
	s.Data = b.Data[base:b.Ends[j-1]]
	s.Ends = make([]int, j-i)
	for k := range s.Ends {
		s.Ends[k] = b.Ends[i+k] - base
	}
	return s
}

// Digest returns a fingerprint of the batch's offset and contents.
// Two batches with the same digest are, for the purposes of the
// engine, the same batch.
func (b *Batch) Digest() uint64 {
	h := murmur3.New64()
	var buf [binary.MaxVarintLen64]byte
	h.Write(buf[:binary.PutVarint(buf[:], b.Offset)])
	h.Write(buf[:binary.PutUvarint(buf[:], uint64(b.Len()))])
	for i := 0; i < b.Len(); i++ {
		h.Write(buf[:binary.PutUvarint(buf[:], uint64(b.Ends[i]))])
	}
	if b.Len() > 0 {
		h.Write(b.Data[:b.Size()])
	}
	return h.Sum64()
}

// String returns a short description of the batch, suitable for
// logging.
func (b *Batch) String() string {
	return fmt.Sprintf("batch[%d, %d)", b.Offset, b.End())
}
