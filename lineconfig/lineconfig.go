// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package lineconfig provides a mechanism to create a bigline
// session from a shared configuration. Lineconfig uses the
// configuration mechanism in package
// github.com/grailbio/base/config, and reads a default profile from
// $HOME/.bigline/config, if it exists.
package lineconfig

import (
	"flag"
	"os"

	"github.com/grailbio/base/config"
	"github.com/grailbio/base/must"

	// Used to provide ec2system.System bigmachines.
	_ "github.com/grailbio/bigmachine/ec2system"
	"github.com/grailbio/bigline/exec"
)

// Path determines the location of the bigline profile read
// by Parse.
var Path = os.ExpandEnv("$HOME/.bigline/config")

// Parse registers configuration flags and calls flag.Parse. It reads
// bigline configuration from Path defined in this package. Parse
// returns the session as configured by the configuration and any
// flags provided. Parse panics if session creation fails.
func Parse() (sess *exec.Session, shutdown func()) {
	config.RegisterFlags("", Path)
	flag.Parse()
	must.Nil(config.ProcessFlags())
	return Session()
}

// Session returns the session configured by the "bigline" instance of
// the current configuration profile. Flags must already have been
// processed.
func Session() (sess *exec.Session, shutdown func()) {
	config.Must("bigline", &sess)
	return sess, sess.Shutdown
}
