// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/grailbio/base/data"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigline"
	"github.com/grailbio/bigline/lineio"
	"github.com/grailbio/bigline/stats"
)

// Executor applies a reduction function to every line of a batch,
// in parallel, producing results in line order. Executors implement
// the execution strategies of a session.
type Executor interface {
	// Name returns the name of the executor, for diagnostics.
	Name() string

	// Start starts the executor. It is called before any batch is
	// reduced and after all funcs have been registered. Start need not
	// return: the bigmachine executor uses Start as the entry point of
	// its worker processes.
	Start(*Session) (shutdown func())

	// Reduce applies fn to each line of batch, storing the result for
	// line i in results[i]. Reduce returns only after every line has
	// been reduced, or on error. A batch with no lines signals the end
	// of the input; results is then nil.
	Reduce(ctx context.Context, batch *bigline.Batch, fn *bigline.FuncValue, results []int) error

	// HandleDebug adds executor-specific debug handlers to the provided
	// http.ServeMux.
	HandleDebug(handler *http.ServeMux)
}

// Eval drives one run of the engine. It reads batches from src, has
// the executor reduce each batch with fn, and passes each batch's
// results to sink before reading the next batch. Batches are never
// processed concurrently with each other. Counters are maintained in
// counters; progress is reported to task if it is non-nil.
//
// Eval returns on the first error, which is always fatal to the run.
func Eval(ctx context.Context, executor Executor, src lineio.BatchReader, fn *bigline.FuncValue, sink lineio.Sink, capacity int, counters *stats.Map, task *status.Task) error {
	var (
		batches = counters.Int(stats.Batches)
		lines   = counters.Int(stats.Lines)
		bytes   = counters.Int(stats.Bytes)
	)
	for {
		batch, err := src.NextBatch(ctx, capacity)
		if err != nil {
			return err
		}
		if batch.Len() == 0 {
			if err := executor.Reduce(ctx, batch, fn, nil); err != nil {
				return errors.E(err, "end of input")
			}
			return nil
		}
		results := make([]int, batch.Len())
		if err := executor.Reduce(ctx, batch, fn, results); err != nil {
			return errors.E(err, fmt.Sprintf("reduce %v", batch))
		}
		if err := sink.Consume(ctx, batch.Offset, results); err != nil {
			return errors.E(err, fmt.Sprintf("consume %v", batch))
		}
		batches.Add(1)
		lines.Add(int64(batch.Len()))
		bytes.Add(int64(batch.Size()))
		log.Debug.Printf("%s: reduced %v (%s)", executor.Name(), batch, data.Size(batch.Size()))
		if task != nil {
			task.Printf("%d lines (%s) in %d batches", lines.Get(), data.Size(bytes.Get()), batches.Get())
		}
	}
}

// reduce applies fn to the lines of batch in share, storing the
// result for line i in out[i-share.Start]. A panic in fn is fatal to
// the whole batch.
func reduce(batch *bigline.Batch, fn *bigline.FuncValue, share bigline.Share, out []int) (err error) {
	defer func() {
		if e := recover(); e != nil {
			stack := debug.Stack()
			err = fmt.Errorf("panic while reducing lines %v of %v with %s: %v\n%s", share, batch, fn, e, string(stack))
			err = errors.E(err, errors.Fatal)
		}
	}()
	for i := share.Start; i < share.End; i++ {
		out[i-share.Start] = fn.Apply(batch.Bytes(i))
	}
	return nil
}
