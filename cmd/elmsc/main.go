// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// elmsc compiles spending policies into Elements miniscript and inspects,
// derives and satisfies output descriptors.
package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	elog "github.com/btcsuite/elementsminiscript/internal/log"
	flags "github.com/jessevdk/go-flags"
)

// log is the logger of the command.
var log = elog.ElmsLog

// appName returns the base name of the executable.
func appName() string {
	name := filepath.Base(os.Args[0])
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// newParser returns the command line parser with all commands registered.
func newParser() *flags.Parser {
	parserFlags := flags.Options(flags.HelpFlag | flags.PassDoubleDash)
	parser := flags.NewNamedParser(appName(), parserFlags)
	parser.AddGroup("Global Options", "", cfg)
	parser.AddCommand("compile",
		"Compile a policy into miniscript",
		"Compile a policy into the cheapest miniscript for a script "+
			"context and print it with its descriptor.", &compileCfg)
	parser.AddCommand("parse",
		"Parse a descriptor and print its scripts",
		"Parse a descriptor or legacy peg-in, verifying its checksum, "+
			"and print its scripts, lifted policy and maximum "+
			"satisfaction weight.", &parseCfg)
	parser.AddCommand("derive",
		"Derive child descriptors of a ranged descriptor", "",
		&deriveCfg)
	parser.AddCommand("satisfy",
		"Build the witness spending a descriptor",
		"Build the cheapest non-malleable scriptSig and witness for "+
			"a descriptor from the given signatures, preimages and "+
			"timelocks.", &satisfyCfg)
	parser.AddCommand("checksum",
		"Add or replace the checksum of a descriptor", "",
		&checksumCfg)
	parser.AddCommand("version", "Display version information", "",
		&versionCfg)
	return parser
}

// realMain is the real main function for the utility.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is called.
func realMain() error {
	defer func() {
		if elog.LogRotator != nil {
			elog.LogRotator.Close()
		}
	}()

	// Parse command line and invoke the Execute function for the specified
	// command.
	parser := newParser()
	if _, err := parser.Parse(); err != nil {
		var e *flags.Error
		switch {
		case errors.As(err, &e) && e.Type == flags.ErrHelp:
			parser.WriteHelp(os.Stderr)
		case errors.Is(err, errShowedSubsystems):
			return nil
		default:
			log.Error(err)
		}

		return err
	}

	return nil
}

func main() {
	// Work around defer not working after os.Exit()
	if err := realMain(); err != nil {
		os.Exit(1)
	}
}
