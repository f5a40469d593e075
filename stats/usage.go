// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stats

import (
	"context"
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// A Usage measures the wall-clock and CPU time consumed by the current
// process over one run of the engine.
type Usage struct {
	start time.Time
	cpu   time.Duration
}

// StartUsage begins measuring.
func StartUsage() *Usage {
	return &Usage{start: time.Now(), cpu: cpuTime()}
}

// A Summary reports the resources used by a run.
type Summary struct {
	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration
	// CPU is the user plus system CPU time of the process.
	CPU time.Duration
}

// Summary returns the resources used since the usage was started.
func (u *Usage) Summary() Summary {
	return Summary{
		Elapsed: time.Since(u.start),
		CPU:     cpuTime() - u.cpu,
	}
}

// Percent returns CPU utilization as a percentage of elapsed time.
// Values above 100 indicate parallel execution.
func (s Summary) Percent() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return 100 * s.CPU.Seconds() / s.Elapsed.Seconds()
}

// String renders the two-field summary, for example
// "Time: 1.250000s CPU: 387.52%".
func (s Summary) String() string {
	return fmt.Sprintf("Time: %.6fs CPU: %.2f%%", s.Elapsed.Seconds(), s.Percent())
}

// WriteTo writes the summary to w.
func (s Summary) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, s.String())
	return int64(n), err
}

// WriteFile writes the summary to the provided path, which may be any
// path supported by github.com/grailbio/base/file.
func (s Summary) WriteFile(ctx context.Context, path string) (err error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, fmt.Sprintf("stats: create %s", path))
	}
	defer func() {
		if closeErr := f.Close(ctx); err == nil && closeErr != nil {
			err = errors.E(closeErr, fmt.Sprintf("stats: close %s", path))
		}
	}()
	_, err = s.WriteTo(f.Writer(ctx))
	return err
}

func cpuTime() time.Duration {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	return time.Duration(ru.Utime.Nano() + ru.Stime.Nano())
}
