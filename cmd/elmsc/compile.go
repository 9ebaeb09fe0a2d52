// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/elementsminiscript/descriptor"
	"github.com/btcsuite/elementsminiscript/miniscript"
	"github.com/btcsuite/elementsminiscript/policy"
)

// compileCmd defines the configuration options for the compile command.
type compileCmd struct {
	Context   string `short:"c" long:"context" description:"Script context to compile for {bare, legacy, segwitv0}"`
	MaxDepth  int    `long:"maxdepth" description:"Maximum nesting depth of the policy"`
	MaxLeaves int    `long:"maxleaves" description:"Maximum number of terminals of the policy"`
}

var (
	// compileCfg defines the configuration options for the command.
	compileCfg = compileCmd{
		Context: miniscript.ContextSegwitV0.String(),
	}
)

// descriptorFor wraps a compiled fragment in the descriptor template of the
// script context.
func descriptorFor(ctx miniscript.Context,
	ms *miniscript.Fragment) (*descriptor.Descriptor, error) {

	switch ctx {
	case miniscript.ContextBare:
		return descriptor.NewBare(ms)
	case miniscript.ContextLegacy:
		return descriptor.NewSh(ms)
	default:
		return descriptor.NewWsh(ms)
	}
}

// compilePolicy compiles the policy, consulting the compile cache unless it
// is disabled.
func (cmd *compileCmd) compilePolicy(pol *policy.Policy,
	ctx miniscript.Context) (*miniscript.Fragment, error) {

	// Only default limits are cached, other limits may fail where the
	// cached result succeeded.
	useCache := !cfg.NoCache && cmd.MaxDepth == 0 && cmd.MaxLeaves == 0

	var cache *compileCache
	if useCache {
		var err error
		cache, err = openCompileCache(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		defer cache.Close()

		ms, ok, err := cache.Get(ctx, pol)
		if err != nil {
			return nil, err
		}
		if ok {
			return ms, nil
		}
	}

	compiler := policy.NewCompiler(ctx, policy.Config{
		MaxDepth:  cmd.MaxDepth,
		MaxLeaves: cmd.MaxLeaves,
	})
	startTime := time.Now()
	ms, err := compiler.Compile(pol)
	if err != nil {
		return nil, err
	}
	log.Infof("Compiled policy in %v", time.Since(startTime))

	if cache != nil {
		if err := cache.Put(ctx, pol, ms); err != nil {
			return nil, err
		}
	}
	return ms, nil
}

// Execute is the main entry point for the command.  It's invoked by the parser.
func (cmd *compileCmd) Execute(args []string) error {
	// Setup the global config options and ensure they are valid.
	if err := setupGlobalConfig(); err != nil {
		return err
	}

	if len(args) < 1 {
		return errors.New("required policy parameter not specified")
	}
	ctx, err := parseContext(cmd.Context)
	if err != nil {
		return err
	}
	pol, err := policy.ParseWithKeys(args[0], parseKey)
	if err != nil {
		return err
	}

	ms, err := cmd.compilePolicy(pol, ctx)
	if err != nil {
		return err
	}
	typ, err := ms.Type()
	if err != nil {
		return err
	}

	fmt.Printf("Miniscript: %s\n", ms)
	fmt.Printf("Type: %s\n", typ)
	fmt.Printf("Script: %s\n", ms.ScriptString())
	if elems, size, ok := ms.MaxSatisfactionSize(); ok {
		fmt.Printf("Max satisfaction: %d elements, %d bytes\n", elems,
			size)
	}

	// Placeholder names have no script encoding.
	if hasNamedKeys(ms.Keys()) {
		return nil
	}
	desc, err := descriptorFor(ctx, ms)
	if err != nil {
		return err
	}
	fmt.Printf("Descriptor: %s\n", desc)
	if desc.HasWildcard() {
		return nil
	}
	script, err := ms.Script()
	if err != nil {
		return err
	}
	fmt.Printf("Script hex: %s\n", hex.EncodeToString(script))
	return nil
}

// Usage overrides the usage display for the command.
func (cmd *compileCmd) Usage() string {
	return "<policy>"
}
