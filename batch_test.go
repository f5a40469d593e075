// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigline

import (
	"bytes"
	"testing"
)

func makeBatch(offset int64, lines ...string) *Batch {
	buf := NewBatchBuffer(offset)
	for _, line := range lines {
		buf.Append([]byte(line))
	}
	return buf.Batch()
}

func TestBatchBytesBounded(t *testing.T) {
	b := makeBatch(0, "abc", "", "Z")
	if got, want := b.Len(), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := b.Size(), 4; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	first := b.Bytes(0)
	if got, want := cap(first), len(first); got != want {
		t.Errorf("got cap %v, want %v", got, want)
	}
	// Appending to a line must not clobber its neighbours.
	_ = append(first, 'X')
	if got, want := string(b.Bytes(2)), "Z"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := b.Bytes(1); len(got) != 0 {
		t.Errorf("got %q, want empty line", got)
	}
}

func TestBatchSlice(t *testing.T) {
	b := makeBatch(10, "a", "bb", "ccc", "dddd")
	s := b.Slice(1, 3)
	if got, want := s.Offset, int64(11); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := s.Len(), 2; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, want := range []string{"bb", "ccc"} {
		if got := s.Line(i); string(got.Bytes) != want || got.Index != int64(11+i) {
			t.Errorf("line %d: got %v %q, want %v %q", i, got.Index, got.Bytes, 11+i, want)
		}
	}
	if got, want := s.Digest(), makeBatch(11, "bb", "ccc").Digest(); got != want {
		t.Errorf("re-based slice digest %x, want %x", got, want)
	}
	empty := b.Slice(2, 2)
	if got, want := empty.Len(), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := empty.Offset, int64(12); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBatchDigest(t *testing.T) {
	a := makeBatch(0, "ab", "c")
	for _, other := range []*Batch{
		makeBatch(1, "ab", "c"),
		makeBatch(0, "a", "bc"),
		makeBatch(0, "ab", "d"),
		makeBatch(0, "ab"),
	} {
		if a.Digest() == other.Digest() {
			t.Errorf("%v and %v share digest %x", a, other, a.Digest())
		}
	}
	if got, want := a.Digest(), makeBatch(0, "ab", "c").Digest(); got != want {
		t.Errorf("got %x, want %x", got, want)
	}
}

func TestBatchSlicePanics(t *testing.T) {
	b := makeBatch(0, "a")
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	b.Slice(0, 2)
}

func TestEmptyBatch(t *testing.T) {
	var b *Batch
	if got, want := b.Len(), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	e := &Batch{Offset: 5}
	if got, want := e.Size(), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if !bytes.Equal(e.Data, nil) {
		t.Error("empty batch holds data")
	}
}
