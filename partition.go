// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigline

import "fmt"

// A Share is the contiguous range [Start, End) of a batch's line
// positions that is assigned to a single worker.
type Share struct {
	Start, End int
}

// Len returns the number of lines in the share.
func (s Share) Len() int { return s.End - s.Start }

// Empty tells whether the share contains no lines.
func (s Share) Empty() bool { return s.Start == s.End }

func (s Share) String() string {
	return fmt.Sprintf("[%d, %d)", s.Start, s.End)
}

// Split divides the positions [0, count) among n workers. Each of the
// first n-1 workers receives count/n consecutive positions; the last
// worker receives the rest, absorbing the remainder of the division.
// When count < n, some shares are empty. They are returned all the
// same: every worker takes part in each round even if it has no
// lines to reduce.
//
// Split panics if n < 1 or count < 0.
func Split(count, n int) []Share {
	shares := make([]Share, n)
	for i := range shares {
		shares[i] = ShareOf(count, n, i)
	}
	return shares
}

// ShareOf returns the share of worker rank among n workers, as
// computed by Split.
func ShareOf(count, n, rank int) Share {
	if n < 1 {
		panic("bigline.ShareOf: n < 1")
	}
	if count < 0 {
		panic("bigline.ShareOf: count < 0")
	}
	if rank < 0 || rank >= n {
		panic(fmt.Sprintf("bigline.ShareOf: rank %d out of range [0, %d)", rank, n))
	}
	base := count / n
	s := Share{Start: rank * base, End: (rank + 1) * base}
	if rank == n-1 {
		s.End = count
	}
	return s
}
