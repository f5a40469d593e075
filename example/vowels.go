// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package example illustrates how to define and test a reduction
// function of your own.
package example

import "github.com/grailbio/bigline"

// Vowels counts the ASCII vowels of a line, in either case. We use
// this trivial function to illustrate testing facilities. See
// vowels_test.go.
var Vowels = bigline.Register("vowels", func(line []byte) int {
	var n int
	for _, c := range line {
		switch c | 0x20 {
		case 'a', 'e', 'i', 'o', 'u':
			n++
		}
	}
	return n
})
