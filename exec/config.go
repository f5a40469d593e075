// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"fmt"
	"runtime"

	"github.com/grailbio/base/config"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
)

func init() {
	config.Register("bigline", func(inst *config.Constructor) {
		var (
			sess     = newSession()
			strategy string
			system   bigmachine.System
			procs    int
		)
		inst.StringVar(&strategy, "strategy", "local", "execution strategy: local, parallelfor, or bigmachine")
		inst.IntVar(&sess.p, "parallelism", runtime.GOMAXPROCS(0), "number of workers reducing each batch")
		inst.IntVar(&sess.capacity, "batch-capacity", DefaultBatchCapacity, "maximum number of lines per batch")
		inst.InstanceVar(&system, "system", "", "the bigmachine system used by the bigmachine strategy")
		inst.IntVar(&procs, "procs", 2, "number of processes, including the coordinator, used by the bigmachine strategy")
		inst.BoolVar(&sess.scatter, "scatter", false, "send each bigmachine worker only its share of each batch")
		inst.Doc = "bigline configures the bigline runtime"
		inst.New = func() (interface{}, error) {
			if sess.p <= 0 || sess.capacity <= 0 || procs <= 0 {
				return nil, errors.E(errors.Invalid,
					fmt.Sprintf("bigline: nonpositive parallelism %d, batch capacity %d, or procs %d", sess.p, sess.capacity, procs))
			}
			switch strategy {
			case "local":
				sess.executor = newLocalExecutor()
			case "parallelfor":
				sess.executor = newParallelForExecutor()
			case "bigmachine":
				if system == nil {
					system = bigmachine.Local
				}
				sess.executor = newBigmachineExecutor(system, procs)
			default:
				return nil, errors.E(errors.Invalid, fmt.Sprintf("bigline: unknown strategy %q", strategy))
			}
			sess.status = new(status.Status)
			sess.start()
			return sess, nil
		}
	})
}
