// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
)

// A Func is a per-line reduction: it computes a single scalar from the
// contents of one line. Funcs must be pure; the engine applies them
// concurrently, to lines in any order, and on any process of a
// distributed group.
type Func func(line []byte) int

var (
	// funcs is the registry of named reduction functions. Distributed
	// execution refers to functions by name, so every process must
	// register the same functions; this is guaranteed when funcs are
	// registered during package initialization.
	funcsMu sync.Mutex
	funcs   = make(map[string]*FuncValue)
)

// A FuncValue is a registered, named reduction function, as returned
// by Register.
type FuncValue struct {
	name string
	fn   Func
}

// Name returns the name under which f was registered.
func (f *FuncValue) Name() string { return f.name }

// Apply applies f to the provided line contents.
func (f *FuncValue) Apply(line []byte) int { return f.fn(line) }

func (f *FuncValue) String() string { return f.name }

// Register registers fn as a reduction function with the provided
// name. Register panics if the name is empty, if fn is nil, or if the
// name is already taken.
func Register(name string, fn Func) *FuncValue {
	if name == "" {
		panic("bigline.Register: empty name")
	}
	if fn == nil {
		panic("bigline.Register: nil func")
	}
	funcsMu.Lock()
	defer funcsMu.Unlock()
	if _, ok := funcs[name]; ok {
		panic(fmt.Sprintf("bigline.Register: func %q already registered", name))
	}
	v := &FuncValue{name: name, fn: fn}
	funcs[name] = v
	return v
}

// Lookup returns the function registered under the provided name.
// An error of kind errors.NotExist is returned if no such function
// has been registered.
func Lookup(name string) (*FuncValue, error) {
	funcsMu.Lock()
	v := funcs[name]
	funcsMu.Unlock()
	if v == nil {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("bigline func %q", name))
	}
	return v, nil
}

// Funcs returns the sorted names of all registered functions.
func Funcs() []string {
	funcsMu.Lock()
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	funcsMu.Unlock()
	sort.Strings(names)
	return names
}

// MaxByte reduces a line to its largest byte value; an empty line
// reduces to 0.
var MaxByte = Register("maxbyte", func(line []byte) int {
	var max byte
	for _, c := range line {
		if c > max {
			max = c
		}
	}
	return int(max)
})

// Length reduces a line to its length in bytes.
var Length = Register("length", func(line []byte) int {
	return len(line)
})
