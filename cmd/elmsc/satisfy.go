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
	"github.com/btcsuite/elementsminiscript/miniscript"
)

// satisfyCmd defines the configuration options for the satisfy command.
type satisfyCmd struct {
	Signatures []string `short:"s" long:"sig" description:"Signature as <key>:<hex>, the key written as in the descriptor"`
	Preimages  []string `short:"p" long:"preimage" description:"Hex encoded 32-byte hash preimage"`
	Sequence   uint32   `long:"sequence" description:"Sequence number of the spending input"`
	LockTime   uint32   `long:"locktime" description:"Lock time of the spending transaction"`
	TxVersion  uint32   `long:"txversion" description:"Version of the spending transaction"`
}

var (
	// satisfyCfg defines the configuration options for the command.
	satisfyCfg = satisfyCmd{
		Sequence:  wire.MaxTxInSequenceNum,
		TxVersion: 2,
	}
)

// secrets builds the secret source from the command line.
func (cmd *satisfyCmd) secrets() (*miniscript.Secrets, error) {
	secrets := &miniscript.Secrets{
		TxVersion: cmd.TxVersion,
		Sequence:  cmd.Sequence,
		LockTime:  cmd.LockTime,
	}

	for _, arg := range cmd.Signatures {
		keyText, sigText, found := strings.Cut(arg, ":")
		if !found {
			return nil, fmt.Errorf("signature %q is not of the "+
				"form <key>:<hex>", arg)
		}
		key, err := parseKey(keyText)
		if err != nil {
			return nil, err
		}
		sig, err := hex.DecodeString(sigText)
		if err != nil {
			return nil, fmt.Errorf("signature for %s: %w", keyText,
				err)
		}
		secrets.AddSignature(key, sig)
	}

	for _, arg := range cmd.Preimages {
		preimage, err := hex.DecodeString(arg)
		if err != nil {
			return nil, fmt.Errorf("preimage %q: %w", arg, err)
		}
		if len(preimage) != 32 {
			return nil, fmt.Errorf("preimage %q is %d bytes, "+
				"expected 32", arg, len(preimage))
		}
		secrets.AddPreimage(preimage)
	}

	return secrets, nil
}

// Execute is the main entry point for the command.  It's invoked by the parser.
func (cmd *satisfyCmd) Execute(args []string) error {
	// Setup the global config options and ensure they are valid.
	if err := setupGlobalConfig(); err != nil {
		return err
	}

	if len(args) < 1 {
		return errors.New("required descriptor parameter not specified")
	}
	s, err := parseSpendable(args[0])
	if err != nil {
		return err
	}
	secrets, err := cmd.secrets()
	if err != nil {
		return err
	}

	witness, sigScript, err := s.Satisfy(miniscript.NewCachedSource(
		secrets, 0))
	var notSat *miniscript.NotSatisfiableError
	if errors.As(err, &notSat) {
		for _, r := range notSat.Missing {
			log.Infof("Missing %s", r)
		}
		if notSat.HasTimelock() {
			log.Info("A timelock is not yet reached, check " +
				"--sequence and --locktime")
		}
	}
	if err != nil {
		return err
	}

	for i, elem := range witness {
		fmt.Printf("Witness %d: %s\n", i, hex.EncodeToString(elem))
	}
	fmt.Printf("ScriptSig: %s\n", hex.EncodeToString(sigScript))
	fmt.Printf("Weight: %d\n", witness.SerializeSize()+
		4*wire.VarIntSerializeSize(uint64(len(sigScript)))+
		4*len(sigScript))
	return nil
}

// Usage overrides the usage display for the command.
func (cmd *satisfyCmd) Usage() string {
	return "<descriptor>"
}
