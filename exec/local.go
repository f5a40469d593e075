// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"net/http"

	"github.com/grailbio/base/traverse"
	"github.com/grailbio/bigline"
	"golang.org/x/sync/errgroup"
)

// LocalExecutor reduces each batch in-process with exactly p
// goroutines, one for each of the batch's shares. The goroutines
// write directly into disjoint ranges of the result vector; the batch
// is done when all of them have returned.
type localExecutor struct {
	p int
}

func newLocalExecutor() *localExecutor {
	return new(localExecutor)
}

func (*localExecutor) Name() string { return "local" }

func (l *localExecutor) Start(sess *Session) (shutdown func()) {
	l.p = sess.p
	return func() {}
}

func (l *localExecutor) Reduce(_ context.Context, batch *bigline.Batch, fn *bigline.FuncValue, results []int) error {
	if batch.Len() == 0 {
		return nil
	}
	var g errgroup.Group
	for _, share := range bigline.Split(batch.Len(), l.p) {
		share := share
		// Workers with empty shares are started all the same, so that
		// every worker takes part in each round.
		g.Go(func() error {
			return reduce(batch, fn, share, results[share.Start:share.End])
		})
	}
	return g.Wait()
}

func (*localExecutor) HandleDebug(*http.ServeMux) {}

// ChunksPerProc is the number of chunks per unit of parallelism into
// which the parallel loop divides a batch. Chunks are handed out to
// the loop's goroutines dynamically, as they become idle.
const chunksPerProc = 8

// ParallelForExecutor reduces each batch in-process with a single
// parallel loop over the batch's lines. Unlike localExecutor, it does
// not partition the batch among workers up front: the loop is cut
// into small chunks that are scheduled on up to p goroutines by
// package traverse.
type parallelForExecutor struct {
	p int
}

func newParallelForExecutor() *parallelForExecutor {
	return new(parallelForExecutor)
}

func (*parallelForExecutor) Name() string { return "parallelfor" }

func (l *parallelForExecutor) Start(sess *Session) (shutdown func()) {
	l.p = sess.p
	return func() {}
}

func (l *parallelForExecutor) Reduce(_ context.Context, batch *bigline.Batch, fn *bigline.FuncValue, results []int) error {
	n := batch.Len()
	if n == 0 {
		return nil
	}
	nchunk := l.p * chunksPerProc
	chunk := (n + nchunk - 1) / nchunk
	nchunk = (n + chunk - 1) / chunk
	return traverse.Limit(l.p).Each(nchunk, func(i int) error {
		share := bigline.Share{Start: i * chunk, End: (i + 1) * chunk}
		if share.End > n {
			share.End = n
		}
		return reduce(batch, fn, share, results[share.Start:share.End])
	})
}

func (*parallelForExecutor) HandleDebug(*http.ServeMux) {}
