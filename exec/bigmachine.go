// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"encoding/gob"
	"fmt"
	"net/http"
	"sync"

	"github.com/grailbio/base/data"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigline"
	"github.com/grailbio/bigline/stats"
	"github.com/grailbio/bigmachine"
	"golang.org/x/sync/errgroup"
)

func init() {
	gob.Register(&worker{})
}

// BigmachineExecutor is an executor that reduces each batch across a
// fixed group of processes. The process that runs the session is rank
// 0, the coordinator: it reads the input, distributes each batch to
// ranks 1 through procs-1 (bigmachine machines), reduces its own share
// locally, and gathers the results of all ranks into the batch's
// result vector.
//
// Every batch is a collective round: all ranks take part in it, even
// those whose share is empty. The round after the last batch carries
// a stop marker, after which workers refuse further batches for the
// run.
type bigmachineExecutor struct {
	system bigmachine.System
	procs  int

	sess    *Session
	b       *bigmachine.B
	status  *status.Group
	scatter bool

	machinesOnce sync.Once
	machinesErr  error
	// machines[i] is the machine of rank i+1.
	machines []*bigmachine.Machine
	tasks    []*status.Task

	// run is the current run number. Seq is the sequence number of the
	// next round in the run.
	run uint64
	seq int
}

func newBigmachineExecutor(system bigmachine.System, procs int) *bigmachineExecutor {
	return &bigmachineExecutor{system: system, procs: procs, run: 1}
}

func (b *bigmachineExecutor) Name() string {
	return "bigmachine:" + b.system.Name()
}

// Start starts the underlying bigmachine and returns a shutdown
// function that tears it down. In worker processes, Start does not
// return.
func (b *bigmachineExecutor) Start(sess *Session) (shutdown func()) {
	b.sess = sess
	b.scatter = sess.scatter
	b.b = bigmachine.Start(b.system)
	if st := sess.Status(); st != nil {
		b.status = st.Groupf("bigmachine %s", b.system.Name())
	}
	return b.b.Shutdown
}

// InitMachines starts the group's worker machines, once. The group is
// of fixed size: if fewer than procs-1 machines come up, every run
// fails.
func (b *bigmachineExecutor) initMachines() error {
	b.machinesOnce.Do(func() {
		n := b.procs - 1
		if n == 0 {
			return
		}
		log.Printf("starting %d bigmachine workers (procs=%d)", n, b.procs)
		ctx := context.Background()
		machines, err := b.b.Start(ctx, n, bigmachine.Services{
			"Worker": &worker{},
		})
		if err != nil {
			b.machinesErr = errors.E(err, "start machines")
			return
		}
		if len(machines) != n {
			b.machinesErr = errors.E(errors.Unavailable, errors.Fatal,
				fmt.Sprintf("started %d machines, need %d", len(machines), n))
			return
		}
		tasks := make([]*status.Task, n)
		g, _ := errgroup.WithContext(ctx)
		for i := range machines {
			i, m := i, machines[i]
			if b.status != nil {
				tasks[i] = b.status.Start()
				tasks[i].Title(fmt.Sprintf("rank %d", i+1))
				tasks[i].Print("waiting for machine to boot")
			}
			g.Go(func() error {
				<-m.Wait(bigmachine.Running)
				if err := m.Err(); err != nil {
					log.Error.Printf("machine %s (rank %d) failed to start: %v", m.Addr, i+1, err)
					if tasks[i] != nil {
						tasks[i].Printf("failed to start: %v", err)
						tasks[i].Done()
					}
					return errors.E(err, fmt.Sprintf("start machine %s", m.Addr))
				}
				log.Printf("machine %s (rank %d) is ready", m.Addr, i+1)
				if tasks[i] != nil {
					tasks[i].Title(fmt.Sprintf("rank %d: %s", i+1, m.Addr))
					tasks[i].Print("running")
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			b.machinesErr = err
			return
		}
		b.machines = machines
		b.tasks = tasks
	})
	return b.machinesErr
}

func (b *bigmachineExecutor) Reduce(ctx context.Context, batch *bigline.Batch, fn *bigline.FuncValue, results []int) (err error) {
	if err := b.initMachines(); err != nil {
		return err
	}
	// A failed round abandons the run; workers reset when they see
	// the next run number.
	defer func() {
		if err != nil && b.seq != 0 {
			log.Error.Printf("run %d: abandoned after round %d: %v", b.run, b.seq-1, err)
			b.run++
			b.seq = 0
		}
	}()
	if batch.Len() == 0 {
		return b.stop(ctx)
	}
	var (
		count   = batch.Len()
		size    = len(b.machines) + 1
		seq     = b.seq
		digest  = batch.Digest()
		digests = make([]uint64, size)
		replies = make([]reduceReply, size)
	)
	b.seq++
	g, gctx := errgroup.WithContext(ctx)
	for rank := 1; rank < size; rank++ {
		rank, m := rank, b.machines[rank-1]
		req := reduceRequest{
			Run:   b.run,
			Seq:   seq,
			Func:  fn.Name(),
			Rank:  rank,
			Size:  size,
			Batch: batch,
		}
		if b.scatter {
			share := bigline.ShareOf(count, size, rank)
			req.Batch = batch.Slice(share.Start, share.End)
			req.Scattered = true
			req.Digest = req.Batch.Digest()
		} else {
			req.Digest = digest
		}
		digests[rank] = req.Digest
		log.Debug.Printf("rank %d (%s): sending batch %d of run %d: %v (%s)",
			rank, m.Addr, seq, b.run, req.Batch, data.Size(req.Batch.Size()))
		g.Go(func() error {
			if err := m.Call(gctx, "Worker.Reduce", req, &replies[rank]); err != nil {
				return errors.E(err, fmt.Sprintf("rank %d (%s)", rank, m.Addr))
			}
			return nil
		})
	}
	// The coordinator reduces its own share while the workers reduce
	// theirs; it always waits for the round to complete.
	share := bigline.ShareOf(count, size, 0)
	localErr := reduce(batch, fn, share, results[share.Start:share.End])
	if err := g.Wait(); err != nil {
		return err
	}
	if localErr != nil {
		return localErr
	}
	for rank := 1; rank < size; rank++ {
		share := bigline.ShareOf(count, size, rank)
		reply := replies[rank]
		switch {
		case reply.Rank != rank:
			return protocolErrorf("rank %d: reply is from rank %d", rank, reply.Rank)
		case reply.Digest != digests[rank]:
			return protocolErrorf("rank %d: reply digest %x, sent %x", rank, reply.Digest, digests[rank])
		case reply.Offset != batch.Offset+int64(share.Start) || len(reply.Results) != share.Len():
			return protocolErrorf("rank %d: reply covers %d results from line %d, expected share %v at line %d",
				rank, len(reply.Results), reply.Offset, share, batch.Offset+int64(share.Start))
		}
		copy(results[share.Start:share.End], reply.Results)
		if t := b.tasks[rank-1]; t != nil {
			t.Printf("run %d: %d batches", b.run, seq+1)
		}
	}
	return nil
}

// Stop ends the current run: every worker receives the stop marker,
// after which its statistics for the run are retrieved and logged.
func (b *bigmachineExecutor) stop(ctx context.Context) error {
	var (
		run  = b.run
		seq  = b.seq
		size = len(b.machines) + 1
		vals = make([]stats.Values, size)
	)
	b.run++
	b.seq = 0
	g, gctx := errgroup.WithContext(ctx)
	for rank := 1; rank < size; rank++ {
		rank, m := rank, b.machines[rank-1]
		req := reduceRequest{Run: run, Seq: seq, Rank: rank, Size: size, Stop: true}
		g.Go(func() error {
			if err := m.Call(gctx, "Worker.Reduce", req, new(reduceReply)); err != nil {
				return errors.E(err, fmt.Sprintf("stop rank %d (%s)", rank, m.Addr))
			}
			if err := m.Call(gctx, "Worker.Stats", struct{}{}, &vals[rank]); err != nil {
				return errors.E(err, fmt.Sprintf("stats rank %d (%s)", rank, m.Addr))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	total := make(stats.Values)
	for rank := 1; rank < size; rank++ {
		log.Printf("run %d: rank %d (%s): %s", run, rank, b.machines[rank-1].Addr, vals[rank])
		total.Merge(vals[rank])
		if t := b.tasks[rank-1]; t != nil {
			t.Printf("run %d done: %s", run, vals[rank])
		}
	}
	if size > 1 {
		log.Printf("run %d: workers: %s", run, total)
	}
	return nil
}

func (b *bigmachineExecutor) HandleDebug(handler *http.ServeMux) {
	b.b.HandleDebug(handler)
}

// ReduceRequest is one round of the collective protocol, sent by the
// coordinator to a single rank.
type reduceRequest struct {
	// Run and Seq identify the round: Seq counts the rounds of run Run,
	// starting from 0.
	Run uint64
	Seq int
	// Func names the registered reduction function.
	Func string
	// Rank is the rank of the recipient; Size the size of the group.
	Rank, Size int
	// Batch is the batch to be reduced. If Scattered is set, Batch
	// holds only the recipient's share of the batch.
	Batch     *bigline.Batch
	Scattered bool
	// Digest is the digest of Batch as sent.
	Digest uint64
	// Stop marks the end of the run. Stop rounds carry no batch.
	Stop bool
}

// ReduceReply carries the results of one rank's share of a batch.
type reduceReply struct {
	Rank   int
	Digest uint64
	// Offset is the global index of the line of Results[0].
	Offset  int64
	Results []int
}

// Worker is the bigmachine service that reduces shares of batches on
// ranks other than the coordinator.
type worker struct {
	// Exported just satisfies gob's persnickety nature: we need at least
	// one exported field.
	Exported struct{}

	mu      sync.Mutex
	run     uint64
	seq     int
	stopped bool
	stats   *stats.Map
}

func (w *worker) Init(b *bigmachine.B) error {
	w.stats = stats.NewMap()
	return nil
}

// Reduce reduces the recipient's share of the request's batch. Rounds
// must arrive in order; rounds for a stopped or past run, and batches
// that do not match their digest, are rejected as fatal protocol
// errors.
func (w *worker) Reduce(ctx context.Context, req reduceRequest, reply *reduceReply) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.advance(req); err != nil {
		return err
	}
	reply.Rank = req.Rank
	reply.Digest = req.Digest
	if req.Stop {
		log.Printf("rank %d: run %d stopped after %d batches", req.Rank, req.Run, req.Seq)
		return nil
	}
	fn, err := bigline.Lookup(req.Func)
	if err != nil {
		return errors.E(errors.Fatal, err)
	}
	batch := req.Batch
	if got := batch.Digest(); got != req.Digest {
		return protocolErrorf("rank %d: batch %d of run %d has digest %x, want %x", req.Rank, req.Seq, req.Run, got, req.Digest)
	}
	share := bigline.Share{End: batch.Len()}
	if !req.Scattered {
		share = bigline.ShareOf(batch.Len(), req.Size, req.Rank)
	}
	reply.Offset = batch.Offset + int64(share.Start)
	reply.Results = make([]int, share.Len())
	if err := reduce(batch, fn, share, reply.Results); err != nil {
		return err
	}
	w.stats.Int(stats.Batches).Add(1)
	w.stats.Int(stats.Lines).Add(int64(share.Len()))
	w.stats.Int(stats.Bytes).Add(int64(batch.Slice(share.Start, share.End).Size()))
	return nil
}

// Advance checks that req is the next round expected by the worker
// and moves the worker past it. The first round of a new run resets
// the worker's state.
func (w *worker) advance(req reduceRequest) error {
	switch {
	case req.Run < w.run:
		return protocolErrorf("rank %d: round %d of finished run %d (current run %d)", req.Rank, req.Seq, req.Run, w.run)
	case req.Run > w.run:
		w.run, w.seq, w.stopped = req.Run, 0, false
		w.stats = stats.NewMap()
	}
	if w.stopped {
		return protocolErrorf("rank %d: round %d of run %d after stop", req.Rank, req.Seq, req.Run)
	}
	if req.Seq != w.seq {
		return protocolErrorf("rank %d: received round %d of run %d, expected round %d", req.Rank, req.Seq, req.Run, w.seq)
	}
	if req.Rank < 1 || req.Rank >= req.Size {
		return protocolErrorf("invalid rank %d for group of size %d", req.Rank, req.Size)
	}
	w.seq++
	w.stopped = req.Stop
	return nil
}

// Stats returns the worker's statistics for its current run.
func (w *worker) Stats(ctx context.Context, _ struct{}, values *stats.Values) error {
	w.mu.Lock()
	*values = w.stats.Snapshot()
	w.mu.Unlock()
	return nil
}

// ProtocolErrorf returns a fatal error indicating that the ranks of a
// group disagree about the state of the collective protocol.
func protocolErrorf(format string, args ...interface{}) error {
	return errors.E(errors.Invalid, errors.Fatal, "protocol mismatch: "+fmt.Sprintf(format, args...))
}
