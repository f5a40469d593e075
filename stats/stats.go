// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stats provides the counters kept by the bigline engine and
// the summary of a complete run. Counters belong to a Map, whose
// values can be snapshotted and merged across processes.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Names of the counters maintained by the engine.
const (
	// Batches counts processed batches, not including the
	// end-of-input sentinel.
	Batches = "batches"
	// Lines counts reduced lines.
	Lines = "lines"
	// Bytes counts the content bytes of reduced lines.
	Bytes = "bytes"
)

// Values is a snapshot of counter values.
type Values map[string]int64

// Copy returns a copy of the values v.
func (v Values) Copy() Values {
	w := make(Values, len(v))
	for k, x := range v {
		w[k] = x
	}
	return w
}

// Merge adds the values in w to v.
func (v Values) Merge(w Values) {
	for k, x := range w {
		v[k] += x
	}
}

// String returns the values sorted by name, as "name:value" pairs.
func (v Values) String() string {
	keys := make([]string, 0, len(v))
	for key := range v {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for i, key := range keys {
		keys[i] = fmt.Sprintf("%s:%d", key, v[key])
	}
	return strings.Join(keys, " ")
}

// A Map is a set of counters keyed by name.
type Map struct {
	mu     sync.Mutex
	values map[string]*Int
}

// NewMap returns a fresh Map.
func NewMap() *Map {
	return &Map{values: make(map[string]*Int)}
}

// Int returns the counter with the provided name, creating it if it
// does not exist.
func (m *Map) Int(name string) *Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.values[name]
	if v == nil {
		v = new(Int)
		m.values[name] = v
	}
	return v
}

// AddAll adds the current value of every counter in m to vals.
func (m *Map) AddAll(vals Values) {
	m.mu.Lock()
	for k, v := range m.values {
		vals[k] += v.Get()
	}
	m.mu.Unlock()
}

// Snapshot returns the current values of m.
func (m *Map) Snapshot() Values {
	vals := make(Values)
	m.AddAll(vals)
	return vals
}

// An Int is an integer counter that can be updated atomically. The
// methods of a nil *Int are no-ops, so optional counters need not be
// checked before use.
type Int struct {
	val int64
}

// Add increments v by delta.
func (v *Int) Add(delta int64) {
	if v == nil {
		return
	}
	atomic.AddInt64(&v.val, delta)
}

// Set sets the counter's value to val.
func (v *Int) Set(val int64) {
	if v == nil {
		return
	}
	atomic.StoreInt64(&v.val, val)
}

// Get returns the current value of the counter.
func (v *Int) Get() int64 {
	if v == nil {
		return 0
	}
	return atomic.LoadInt64(&v.val)
}
