// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/elementsminiscript/descriptor"
	"github.com/btcsuite/elementsminiscript/miniscript"
	"github.com/btcsuite/elementsminiscript/policy"
)

// parseCmd defines the configuration options for the parse command.
type parseCmd struct {
	Tree bool `long:"tree" description:"Print the miniscript as a tree"`
}

var (
	// parseCfg defines the configuration options for the command.
	parseCfg = parseCmd{}
)

// spendable is implemented by the descriptor and the legacy peg-in.
type spendable interface {
	String() string
	ScriptPubKey() ([]byte, error)
	MaxSatisfactionWeight() (int, error)
	Satisfy(src miniscript.SecretSource) (wire.TxWitness, []byte, error)
}

// isLegacyPegin reports whether the text is a legacy peg-in descriptor.
func isLegacyPegin(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "legacy_pegin(")
}

// parseSpendable parses either a descriptor or a legacy peg-in.
func parseSpendable(s string) (spendable, error) {
	if isLegacyPegin(s) {
		return descriptor.ParseLegacyPegin(s)
	}
	return descriptor.Parse(s)
}

// printDescriptor prints everything known about a descriptor which does not
// need a derivation index.
func (cmd *parseCmd) printDescriptor(desc *descriptor.Descriptor) error {
	fmt.Printf("Descriptor: %s\n", desc)
	fmt.Printf("Type: %s\n", desc.Type())

	if ms := desc.Miniscript(); ms != nil {
		fmt.Printf("Miniscript: %s\n", ms)
		lifted, err := policy.Lift(ms)
		if err != nil {
			return err
		}
		fmt.Printf("Policy: %s\n", lifted)
		fmt.Printf("Script: %s\n", ms.ScriptString())
		if cmd.Tree {
			fmt.Print(ms.DrawTree())
		}
	}

	if desc.HasWildcard() {
		fmt.Println("Derive the descriptor for its scripts")
		return nil
	}
	pkScript, err := desc.ScriptPubKey()
	if err != nil {
		return err
	}
	fmt.Printf("ScriptPubKey: %s\n", hex.EncodeToString(pkScript))
	return nil
}

// printPegin prints the scripts and the mainchain address of a legacy
// peg-in.
func (cmd *parseCmd) printPegin(pegin *descriptor.LegacyPegin) error {
	fmt.Printf("Descriptor: %s\n", pegin)
	fmt.Printf("Claim: %s\n", pegin.Descriptor())
	fmt.Printf("Timelock: %d\n", pegin.Timelock())

	fedKeys, err := pegin.FederationKeys()
	if err != nil {
		return err
	}
	for i, key := range fedKeys {
		fmt.Printf("Tweaked federation key %d: %x\n", i,
			key.SerializeCompressed())
	}

	witnessScript, err := pegin.WitnessScript()
	if err != nil {
		return err
	}
	fmt.Printf("Witness script: %s\n", hex.EncodeToString(witnessScript))

	addr, err := pegin.Address(activeNetParams)
	if err != nil {
		return err
	}
	fmt.Printf("Address (%s): %s\n", activeNetParams.Name,
		addr.EncodeAddress())
	return nil
}

// Execute is the main entry point for the command.  It's invoked by the parser.
func (cmd *parseCmd) Execute(args []string) error {
	// Setup the global config options and ensure they are valid.
	if err := setupGlobalConfig(); err != nil {
		return err
	}

	if len(args) < 1 {
		return errors.New("required descriptor parameter not specified")
	}

	var s spendable
	if isLegacyPegin(args[0]) {
		pegin, err := descriptor.ParseLegacyPegin(args[0])
		if err != nil {
			return err
		}
		if err := cmd.printPegin(pegin); err != nil {
			return err
		}
		s = pegin
	} else {
		desc, err := descriptor.Parse(args[0])
		if err != nil {
			return err
		}
		if err := cmd.printDescriptor(desc); err != nil {
			return err
		}
		s = desc
	}

	// The weight is independent of the derivation index.
	weight, err := s.MaxSatisfactionWeight()
	if err != nil {
		return err
	}
	fmt.Printf("Max satisfaction weight: %d\n", weight)
	return nil
}

// Usage overrides the usage display for the command.
func (cmd *parseCmd) Usage() string {
	return "<descriptor>"
}
