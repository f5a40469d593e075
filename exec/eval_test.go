// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bigline"
	"github.com/grailbio/bigline/lineio"
	"github.com/grailbio/bigline/stats"
)

var panicky = bigline.Register("test-panic-on-p", func(line []byte) int {
	if strings.HasPrefix(string(line), "p") {
		panic("line starts with p")
	}
	return len(line)
})

// RecordingExecutor records the batches it is asked to reduce.
type recordingExecutor struct {
	localExecutor
	batches []*bigline.Batch
}

func (r *recordingExecutor) Reduce(ctx context.Context, batch *bigline.Batch, fn *bigline.FuncValue, results []int) error {
	r.batches = append(r.batches, batch)
	return r.localExecutor.Reduce(ctx, batch, fn, results)
}

func TestEvalSentinel(t *testing.T) {
	x := &recordingExecutor{localExecutor: localExecutor{p: 2}}
	src := lineio.NewSource(strings.NewReader("a\nb\nc\n"))
	var offsets []int64
	sink := lineio.SinkFunc(func(_ context.Context, offset int64, results []int) error {
		offsets = append(offsets, offset)
		return nil
	})
	counters := stats.NewMap()
	if err := Eval(context.Background(), x, src, bigline.Length, sink, 2, counters, nil); err != nil {
		t.Fatal(err)
	}
	if got, want := len(x.batches), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if last := x.batches[2]; last.Len() != 0 || last.Offset != 3 {
		t.Errorf("bad end of input batch %v", last)
	}
	if got, want := offsets, []int64{0, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := counters.Snapshot()[stats.Batches], int64(2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestEvalPanic(t *testing.T) {
	testSession(t, func(t *testing.T, sess *Session) {
		src := lineio.NewSource(strings.NewReader("a\nb\npanic\nc\n"))
		_, err := sess.Run(context.Background(), src, panicky, lineio.SinkFunc(func(context.Context, int64, []int) error {
			return nil
		}))
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "line starts with p") {
			t.Errorf("unexpected error %v", err)
		}
		// The session remains usable after a failed run.
		pairs, _ := collect(t, sess, "ab\n", bigline.Length)
		if got, want := pairs, []pair{{0, 2}}; !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}

func TestEvalSinkError(t *testing.T) {
	sess := Start(Local, BatchCapacity(1))
	defer sess.Shutdown()
	var n int
	sink := lineio.SinkFunc(func(context.Context, int64, []int) error {
		n++
		if n == 2 {
			return errors.E(errors.Unavailable, "sink is full")
		}
		return nil
	})
	src := lineio.NewSource(strings.NewReader("a\nb\nc\n"))
	vals, err := sess.Run(context.Background(), src, bigline.Length, sink)
	if !errors.Is(errors.Unavailable, err) {
		t.Errorf("unexpected error %v", err)
	}
	if got, want := vals[stats.Batches], int64(1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestReducePanic(t *testing.T) {
	batch := testBatch(0, "ok", "pow")
	out := make([]int, 2)
	err := reduce(batch, panicky, bigline.Share{End: 2}, out)
	if err == nil || errors.Recover(err).Severity != errors.Fatal {
		t.Errorf("unexpected error %v", err)
	}
	if got, want := out[0], 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParallelForChunks(t *testing.T) {
	x := &parallelForExecutor{p: 3}
	for _, n := range []int{1, 2, 23, 24, 25, 1000} {
		buf := bigline.NewBatchBuffer(0)
		for i := 0; i < n; i++ {
			buf.Append([]byte(strings.Repeat("x", i%7)))
		}
		batch := buf.Batch()
		results := make([]int, n)
		for i := range results {
			results[i] = -1
		}
		if err := x.Reduce(context.Background(), batch, bigline.Length, results); err != nil {
			t.Fatal(err)
		}
		for i, v := range results {
			if got, want := v, i%7; got != want {
				t.Fatalf("n=%d line %d: got %v, want %v", n, i, got, want)
			}
		}
	}
}
