// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package linetest provides utilities for testing bigline reduction
// functions. The utilities here are generally not optimized for
// performance or robustness; they are strictly intended for unit
// testing.
package linetest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/grailbio/base/log"
	"github.com/grailbio/bigline"
	"github.com/grailbio/bigline/exec"
	"github.com/grailbio/bigline/lineio"
)

// A Pair is the result of reducing a single line.
type Pair struct {
	Index int64
	Value int
}

func (p Pair) String() string {
	return fmt.Sprintf("%d: %d", p.Index, p.Value)
}

// CollectSink is a sink that accumulates all results as pairs. It
// checks that results arrive in order.
type CollectSink struct {
	mu    sync.Mutex
	pairs []Pair
}

// Consume implements lineio.Sink.
func (c *CollectSink) Consume(_ context.Context, offset int64, results []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next := int64(len(c.pairs)); offset != next {
		return fmt.Errorf("linetest: results for line %d delivered before line %d", offset, next)
	}
	for i, v := range results {
		c.pairs = append(c.pairs, Pair{offset + int64(i), v})
	}
	return nil
}

// Pairs returns the pairs collected so far.
func (c *CollectSink) Pairs() []Pair {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Pair(nil), c.pairs...)
}

// Run reduces the lines of input with fn in a session started with the
// provided options, returning the resulting pairs. Errors are reported
// as fatal to the provided t instance. If no options are given, the
// local executor is used.
func Run(t *testing.T, input string, fn *bigline.FuncValue, options ...exec.Option) []Pair {
	t.Helper()
	if len(options) == 0 {
		options = []exec.Option{exec.Local}
	}
	sess := exec.Start(options...)
	defer sess.Shutdown()
	var sink CollectSink
	src := lineio.NewSource(strings.NewReader(input))
	if _, err := sess.Run(context.Background(), src, fn, &sink); err != nil {
		t.Fatal(err)
	}
	return sink.Pairs()
}

// Sequential reduces the lines of input with fn one at a time, in
// order, in the calling goroutine. It defines the results that every
// execution strategy must reproduce.
func Sequential(input string, fn *bigline.FuncValue) []Pair {
	var pairs []Pair
	for len(input) > 0 {
		line := input
		if i := strings.IndexByte(input, '\n'); i >= 0 {
			line, input = input[:i], input[i+1:]
		} else {
			input = ""
		}
		pairs = append(pairs, Pair{int64(len(pairs)), fn.Apply([]byte(line))})
	}
	return pairs
}

// Print prints the pairs of reducing input with fn in the local
// executor to stdout, one per line. This is useful for examples.
func Print(input string, fn *bigline.FuncValue) {
	sess := exec.Start(exec.Local)
	defer sess.Shutdown()
	sink := lineio.NewTextSink(os.Stdout)
	src := lineio.NewSource(strings.NewReader(input))
	if _, err := sess.Run(context.Background(), src, fn, sink); err != nil {
		log.Panicf("unhandled error running session: %v", err)
	}
	if err := sink.Flush(); err != nil {
		log.Panicf("unhandled error writing results: %v", err)
	}
}
