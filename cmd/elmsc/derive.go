// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/elementsminiscript/descriptor"
)

// deriveCmd defines the configuration options for the derive command.
type deriveCmd struct {
	Index uint32 `short:"i" long:"index" description:"First child index to derive"`
	Count uint32 `short:"n" long:"count" description:"Number of consecutive children to derive"`
}

var (
	// deriveCfg defines the configuration options for the command.
	deriveCfg = deriveCmd{
		Count: 1,
	}
)

// Execute is the main entry point for the command.  It's invoked by the parser.
func (cmd *deriveCmd) Execute(args []string) error {
	// Setup the global config options and ensure they are valid.
	if err := setupGlobalConfig(); err != nil {
		return err
	}

	if len(args) < 1 {
		return errors.New("required descriptor parameter not specified")
	}
	desc, err := descriptor.Parse(args[0])
	if err != nil {
		return err
	}

	for i := uint32(0); i < cmd.Count; i++ {
		index := cmd.Index + i
		if index < cmd.Index {
			return errors.New("child index overflow")
		}
		derived, err := desc.Derive(index)
		if err != nil {
			return err
		}
		pkScript, err := derived.ScriptPubKey()
		if err != nil {
			return err
		}
		fmt.Printf("%d %s %s\n", index, derived,
			hex.EncodeToString(pkScript))
	}
	return nil
}

// Usage overrides the usage display for the command.
func (cmd *deriveCmd) Usage() string {
	return "<descriptor>"
}
