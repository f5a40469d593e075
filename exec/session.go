// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigline"
	"github.com/grailbio/bigline/lineio"
	"github.com/grailbio/bigline/stats"
	"github.com/grailbio/bigmachine"
)

// DefaultBatchCapacity is the default maximum number of lines in a
// batch.
const DefaultBatchCapacity = 1000

// Session represents a bigline compute session. A session shares a
// binary and executor, and is valid for the run of the binary. A
// session can run any number of reductions, one at a time.
//
// A session is started by the Start method. The bigmachine executor
// launches additional copies of the binary: these are called workers,
// and Start does not return in them. All reduction funcs must thus be
// registered before Start is called, as part of package
// initialization:
//
//	var Vowels = bigline.Register("vowels", func(line []byte) int {
//		...
//	})
//
//	func main() {
//		sess := exec.Start(exec.Bigmachine(bigmachine.Local, 4))
//		defer sess.Shutdown()
//		src := lineio.NewSource(os.Stdin)
//		sink := lineio.NewTextSink(os.Stdout)
//		if _, err := sess.Run(ctx, src, Vowels, sink); err != nil {
//			log.Fatal(err)
//		}
//	}
type Session struct {
	shutdown func()
	p        int
	capacity int
	scatter  bool
	executor Executor
	status   *status.Status

	// mu serializes runs.
	mu   sync.Mutex
	runs int
}

func newSession() *Session {
	return new(Session)
}

// An Option represents a session configuration parameter value.
type Option func(s *Session)

// Local configures a session with the local executor, which reduces
// each batch with exactly one goroutine for each unit of parallelism.
var Local Option = func(s *Session) {
	s.executor = newLocalExecutor()
}

// ParallelFor configures a session with the parallel loop executor,
// which schedules small chunks of each batch onto a bounded number of
// goroutines.
var ParallelFor Option = func(s *Session) {
	s.executor = newParallelForExecutor()
}

// Bigmachine configures a session using the bigmachine executor
// configured with the provided system. Batches are reduced by a group
// of procs processes: the session's own process and procs-1
// bigmachine machines.
func Bigmachine(system bigmachine.System, procs int) Option {
	if procs <= 0 {
		panic("exec.Bigmachine: procs <= 0")
	}
	return func(s *Session) {
		s.executor = newBigmachineExecutor(system, procs)
	}
}

// Scatter configures the bigmachine executor to send each worker only
// its own share of each batch, instead of the whole batch.
var Scatter Option = func(s *Session) {
	s.scatter = true
}

// Parallelism configures the session with the provided target
// parallelism.
func Parallelism(p int) Option {
	if p <= 0 {
		panic("exec.Parallelism: p <= 0")
	}
	return func(s *Session) {
		s.p = p
	}
}

// BatchCapacity configures the maximum number of lines in a batch.
func BatchCapacity(n int) Option {
	if n <= 0 {
		panic("exec.BatchCapacity: n <= 0")
	}
	return func(s *Session) {
		s.capacity = n
	}
}

// Status configures the session with a status object to which
// run statuses are reported.
func Status(status *status.Status) Option {
	return func(s *Session) {
		s.status = status
	}
}

// Start creates and starts a new bigline session, configuring it
// according to the provided options. If no executor is configured,
// the session uses the local executor.
func Start(options ...Option) *Session {
	s := newSession()
	for _, opt := range options {
		opt(s)
	}
	s.start()
	return s
}

func (s *Session) start() {
	if s.p == 0 {
		s.p = runtime.GOMAXPROCS(0)
	}
	if s.capacity == 0 {
		s.capacity = DefaultBatchCapacity
	}
	if s.executor == nil {
		s.executor = newLocalExecutor()
	}
	s.shutdown = s.executor.Start(s)
}

// Run reduces every line read from src with fn, passing the results of
// each batch, in order, to sink. Run returns the run's statistics,
// also on error. Runs of the same session are serialized.
func (s *Session) Run(ctx context.Context, src lineio.BatchReader, fn *bigline.FuncValue, sink lineio.Sink) (stats.Values, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	var task *status.Task
	if s.status != nil {
		task = s.status.Groupf("run %d", s.runs).Start()
		task.Title(fmt.Sprintf("%s (%s)", fn, s.executor.Name()))
		defer task.Done()
	}
	counters := stats.NewMap()
	err := Eval(ctx, s.executor, src, fn, sink, s.capacity, counters, task)
	vals := counters.Snapshot()
	if err != nil {
		log.Error.Printf("run %d: %s: %v", s.runs, fn, err)
		if task != nil {
			task.Printf("error: %v", err)
		}
		return vals, errors.E(err, fmt.Sprintf("run %s", fn))
	}
	log.Printf("run %d: %s: %s", s.runs, fn, vals)
	return vals, nil
}

// Parallelism returns the desired amount of parallelism for batches
// reduced in this session.
func (s *Session) Parallelism() int {
	return s.p
}

// BatchCapacity returns the maximum number of lines per batch.
func (s *Session) BatchCapacity() int {
	return s.capacity
}

// Status returns the session's status aggregator.
func (s *Session) Status() *status.Status {
	return s.status
}

// HandleDebug registers the executor's debug handlers on handler.
func (s *Session) HandleDebug(handler *http.ServeMux) {
	s.executor.HandleDebug(handler)
}

// Shutdown tears down resources associated with this session.
// It should be called when the session is discarded.
func (s *Session) Shutdown() {
	if s.shutdown != nil {
		s.shutdown()
	}
}
