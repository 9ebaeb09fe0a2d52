// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"

	"github.com/btcsuite/elementsminiscript/descriptor"
)

// checksumCmd defines the configuration options for the checksum command.
type checksumCmd struct{}

var (
	// checksumCfg defines the configuration options for the command.
	checksumCfg = checksumCmd{}
)

// Execute is the main entry point for the command.  It's invoked by the parser.
func (cmd *checksumCmd) Execute(args []string) error {
	if len(args) < 1 {
		return errors.New("required descriptor parameter not specified")
	}

	// An existing checksum is verified and replaced.
	body, err := descriptor.VerifyChecksum(args[0])
	if err != nil {
		return err
	}
	withChecksum, err := descriptor.AddChecksum(body)
	if err != nil {
		return err
	}
	fmt.Println(withChecksum)
	return nil
}

// Usage overrides the usage display for the command.
func (cmd *checksumCmd) Usage() string {
	return "<descriptor>"
}
