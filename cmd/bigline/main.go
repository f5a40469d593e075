// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command bigline reduces every line of its input with a registered
// reduction function, printing one "index: result" line per input
// line to standard output.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigline"
	"github.com/grailbio/bigline/lineconfig"
	"github.com/grailbio/bigline/lineio"
	"github.com/grailbio/bigline/stats"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `usage: bigline [flags] [input]

Command bigline reads input (standard input if omitted or "-") in
memory-bounded batches of lines and reduces each line to an integer
with the function named by -func. Results are printed in input order.

The execution strategy is configured by the "bigline" config
instance; for example:

	bigline -set bigline.strategy=bigmachine -set bigline.procs=4 input

Available functions are: %s

Flags:
`, strings.Join(bigline.Funcs(), ", "))
		flag.PrintDefaults()
		os.Exit(2)
	}
	var (
		funcName      = flag.String("func", bigline.MaxByte.Name(), "name of the reduction function")
		limit         = flag.Int64("limit", 0, "maximum number of lines to reduce; 0 reduces all lines")
		budget        = flag.Int64("budget", lineio.DefaultMemoryBudget, "memory budget, in bytes, for the lines of a batch")
		summaryPath   = flag.String("summary", "", "path to which the run's time summary is written")
		consoleStatus = flag.Bool("console-status", false, "print status to stderr")
		httpAddr      = flag.String("http", "", "address on which debug and status pages are served")
	)
	log.AddFlags()
	sess, shutdown := lineconfig.Parse()
	if flag.NArg() > 1 {
		flag.Usage()
	}
	must.True(*budget > 0, "-budget must be positive")
	fn, err := bigline.Lookup(*funcName)
	must.Nil(err)

	if *consoleStatus {
		var console status.Reporter
		go console.Go(os.Stderr, sess.Status())
	}
	if *httpAddr != "" {
		sess.HandleDebug(http.DefaultServeMux)
		http.Handle("/debug/status", status.Handler(sess.Status()))
		go func() {
			log.Printf("HTTP status at: %v", *httpAddr)
			if err := http.ListenAndServe(*httpAddr, nil); err != nil {
				log.Error.Printf("failed to start HTTP at %v: %v", *httpAddr, err)
			}
		}()
	}

	ctx := context.Background()
	opts := []lineio.SourceOption{lineio.MemoryBudget(*budget)}
	if *limit > 0 {
		opts = append(opts, lineio.Limit(*limit))
	}
	var src *lineio.Source
	if path := flag.Arg(0); path == "" || path == "-" {
		src = lineio.NewSource(os.Stdin, opts...)
	} else {
		src, err = lineio.Open(ctx, path, opts...)
		must.Nil(err)
	}
	usage := stats.StartUsage()
	sink := lineio.NewTextSink(os.Stdout)
	_, err = sess.Run(ctx, src, fn, lineio.Ordered(sink))
	if err == nil {
		err = sink.Flush()
	}
	if cerr := src.Close(ctx); err == nil {
		err = cerr
	}
	summary := usage.Summary()
	shutdown()
	if err != nil {
		log.Fatal(err)
	}
	log.Print(summary)
	if *summaryPath != "" {
		must.Nil(summary.WriteFile(ctx, *summaryPath), *summaryPath)
	}
}
