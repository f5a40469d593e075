// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stats

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
)

func TestStats(t *testing.T) {
	coll := NewMap()
	var (
		lines = coll.Int(Lines)
		_     = coll.Int(Batches)
	)
	if got, want := lines.Get(), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	lines.Add(123)
	lines.Add(123)
	if got, want := lines.Get(), int64(123*2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	all := make(Values)
	coll.AddAll(all)
	all.Merge(coll.Snapshot())
	if got, want := len(all), 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := all[Lines], int64(123*4); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := all.String(), "batches:0 lines:492"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	var nilInt *Int
	nilInt.Add(1)
	if got, want := nilInt.Get(), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSummary(t *testing.T) {
	s := Summary{Elapsed: 2 * time.Second, CPU: 3 * time.Second}
	if got, want := s.String(), "Time: 2.000000s CPU: 150.00%"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := (Summary{}).Percent(), 0.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestUsageWriteFile(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	u := StartUsage()
	var x int
	for i := 0; i < 1e6; i++ {
		x += i
	}
	_ = x
	path := filepath.Join(dir, "summary.txt")
	assert.NoError(t, u.Summary().WriteFile(ctx, path))
	b, err := ioutil.ReadFile(path)
	assert.NoError(t, err)
	if !regexp.MustCompile(`^Time: [0-9]+\.[0-9]{6}s CPU: [0-9]+\.[0-9]{2}%$`).Match(b) {
		t.Errorf("malformed summary %q", b)
	}
}
