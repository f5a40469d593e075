// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package bigline implements a batched, memory-bounded, parallel
	line-reduction engine. Bigline streams a newline-delimited input
	through memory one batch at a time, applies a pure per-line
	reduction function (a Func) to every line of the batch in parallel,
	and hands the per-line results, in input order, to a sink before
	the next batch is read.

	The types in this package describe the data that flows through the
	engine: Lines and the Batches that own them, Shares that divide a
	batch among workers, and the registry of reduction functions. The
	engine itself lives in package exec, which provides three
	interchangeable execution strategies: goroutines over explicit
	shares, a dynamically scheduled parallel loop, and a distributed
	process group built on bigmachine. Package lineio provides the line
	source and sinks.

	Because Go cannot serialize code to be sent to other processes,
	reduction functions are named: they must be registered with Register
	during package initialization so that every process of a distributed
	group holds the same registry. Registering funcs as global variables
	is both safe and encouraged:

		var Checksum = bigline.Register("checksum", func(line []byte) int {
			...
		})

	Funcs must be pure: the engine applies them concurrently and in any
	order, and relies on the outcome being the same as a sequential
	application over every line.
*/
package bigline
