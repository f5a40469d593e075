// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package lineio

import (
	"bytes"
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/bigline"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
)

func readAll(t *testing.T, src *Source, hint int) []*bigline.Batch {
	t.Helper()
	ctx := context.Background()
	var batches []*bigline.Batch
	for {
		b, err := src.NextBatch(ctx, hint)
		if err != nil {
			t.Fatal(err)
		}
		if b.Len() == 0 {
			return batches
		}
		batches = append(batches, b)
	}
}

func lines(batches []*bigline.Batch) []string {
	var out []string
	for _, b := range batches {
		for i := 0; i < b.Len(); i++ {
			out = append(out, string(b.Bytes(i)))
		}
	}
	return out
}

func TestSourceStripping(t *testing.T) {
	src := NewSource(strings.NewReader("abc\nZ\n\nlast\r\nno-delim"))
	batches := readAll(t, src, 100)
	if got, want := len(batches), 1; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	got, want := lines(batches), []string{"abc", "Z", "", "last\r", "no-delim"}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSourceEmpty(t *testing.T) {
	ctx := context.Background()
	src := NewSource(strings.NewReader(""))
	for i := 0; i < 3; i++ {
		b, err := src.NextBatch(ctx, 10)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := b.Len(), 0; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
		if got, want := b.Offset, int64(0); got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestSourceCapacity(t *testing.T) {
	src := NewSource(strings.NewReader("a\nb\nc\nd\ne\n"))
	batches := readAll(t, src, 2)
	if got, want := len(batches), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, want := range []int{2, 2, 1} {
		if got := batches[i].Len(); got != want {
			t.Errorf("batch %d: got %v, want %v", i, got, want)
		}
	}
}

func TestSourceLimit(t *testing.T) {
	src := NewSource(strings.NewReader("a\nb\nc\nd\ne\n"), Limit(3))
	batches := readAll(t, src, 2)
	if got, want := strings.Join(lines(batches), ""), "abc"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSourceBudgetHoldsBack(t *testing.T) {
	// Each line has a footprint of 4 bytes; a budget of 10 admits two.
	src := NewSource(strings.NewReader("aaa\nbbb\nccc\nddd\neee\n"), MemoryBudget(10))
	batches := readAll(t, src, 100)
	if got, want := len(batches), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := strings.Join(lines(batches), ","), "aaa,bbb,ccc,ddd,eee"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSourceBudgetOversizedLine(t *testing.T) {
	long := strings.Repeat("x", 100)
	src := NewSource(strings.NewReader("a\n"+long+"\nb\n"), MemoryBudget(8))
	batches := readAll(t, src, 100)
	if got, want := len(batches), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := string(batches[1].Bytes(0)), long; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestSourceProperties checks, over random inputs, that batches
// partition the input exactly and respect the memory budget.
func TestSourceProperties(t *testing.T) {
	fz := fuzz.NewWithSeed(12345).NilChance(0).NumElements(0, 200)
	for iter := 0; iter < 50; iter++ {
		var (
			input  []string
			budget uint8
			hint   uint8
		)
		fz.Fuzz(&input)
		fz.Fuzz(&budget)
		fz.Fuzz(&hint)
		for i := range input {
			input[i] = strings.Replace(input[i], "\n", " ", -1)
		}
		var buf bytes.Buffer
		for _, line := range input {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
		src := NewSource(&buf, MemoryBudget(int64(budget)+1))
		batches := readAll(t, src, int(hint)+1)

		var offset int64
		for _, b := range batches {
			if got, want := b.Offset, offset; got != want {
				t.Fatalf("got offset %v, want %v", got, want)
			}
			if b.Len() > int(hint)+1 {
				t.Fatalf("batch of %d lines exceeds hint %d", b.Len(), int(hint)+1)
			}
			if footprint := b.Size() + b.Len(); b.Len() > 1 && footprint > int(budget)+1 {
				t.Fatalf("batch footprint %d exceeds budget %d", footprint, int(budget)+1)
			}
			offset = b.End()
		}
		if got, want := offset, int64(len(input)); got != want {
			t.Fatalf("got %v lines, want %v", got, want)
		}
		got := lines(batches)
		for i := range input {
			if got[i] != input[i] {
				t.Fatalf("line %d: got %q, want %q", i, got[i], input[i])
			}
		}
	}
}

func TestSourceInvalidHint(t *testing.T) {
	src := NewSource(strings.NewReader("a\n"))
	_, err := src.NextBatch(context.Background(), 0)
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(dir, "input.txt")
	assert.NoError(t, ioutil.WriteFile(path, []byte("abc\nZ\n\n"), 0644))
	src, err := Open(ctx, path)
	assert.NoError(t, err)
	batches := readAll(t, src, 10)
	assert.NoError(t, src.Close(ctx))
	assert.EQ(t, lines(batches), []string{"abc", "Z", ""})

	_, err = Open(ctx, filepath.Join(dir, "missing.txt"))
	if err == nil {
		t.Error("expected error opening missing file")
	}
}
