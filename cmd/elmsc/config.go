// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/elementsminiscript/descriptor"
	elog "github.com/btcsuite/elementsminiscript/internal/log"
	"github.com/btcsuite/elementsminiscript/miniscript"
)

const (
	defaultLogFilename = "elmsc.log"
	defaultLogDirname  = "logs"
)

var (
	elmscHomeDir    = btcutil.AppDataDir("elmsc", false)
	activeNetParams = &chaincfg.MainNetParams

	// Default global config.
	cfg = &config{
		DataDir:    filepath.Join(elmscHomeDir, "data"),
		DebugLevel: "info",
	}

	// errShowedSubsystems is returned after the subsystems were listed so
	// the command exits without running.
	errShowedSubsystems = errors.New("listed logging subsystems")
)

// config defines the global configuration options.
type config struct {
	DataDir    string `short:"b" long:"datadir" description:"Directory to store the compile cache and log files"`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	NoLogFile  bool   `long:"nologfile" description:"Only log to standard error"`
	NoCache    bool   `long:"nocache" description:"Do not read or write the compile cache"`
	TestNet    bool   `long:"testnet" description:"Use the test network for peg-in addresses"`
	RegTest    bool   `long:"regtest" description:"Use the regression test network for peg-in addresses"`
}

// setupGlobalConfig examine the global configuration options for any conditions
// which are invalid as well as performs any addition setup necessary after the
// initial parse.
func setupGlobalConfig() error {
	// Multiple networks can't be selected simultaneously.
	numNets := 0
	if cfg.TestNet {
		numNets++
		activeNetParams = &chaincfg.TestNet3Params
	}
	if cfg.RegTest {
		numNets++
		activeNetParams = &chaincfg.RegressionNetParams
	}
	if numNets > 1 {
		return errors.New("the testnet and regtest params can't be " +
			"used together -- choose one of the two")
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", elog.SupportedSubsystems())
		return errShowedSubsystems
	}
	if err := elog.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return err
	}

	// Namespace the data directory per network, the peg-in addresses
	// are the only network specific output.
	cfg.DataDir = filepath.Join(cfg.DataDir, activeNetParams.Name)

	if !cfg.NoLogFile {
		logFile := filepath.Join(cfg.DataDir, defaultLogDirname,
			defaultLogFilename)
		if err := elog.InitLogRotator(logFile); err != nil {
			return err
		}
	}

	return nil
}

// parseKey accepts descriptor key expressions and falls back to placeholder
// names, so policies can be compiled before the keys are known.
func parseKey(s string) (miniscript.Key, error) {
	key, err := descriptor.ParseKey(s)
	if err == nil {
		return key, nil
	}
	named, nerr := miniscript.ParseKey(s)
	if nerr != nil {
		return nil, err
	}
	return named, nil
}

// hasNamedKeys reports whether any of the keys is a placeholder name.
func hasNamedKeys(keys []miniscript.Key) bool {
	for _, key := range keys {
		if _, ok := key.(miniscript.NamedKey); ok {
			return true
		}
	}
	return false
}

// parseContext converts a context name into a script context.
func parseContext(name string) (miniscript.Context, error) {
	for _, ctx := range []miniscript.Context{
		miniscript.ContextBare,
		miniscript.ContextLegacy,
		miniscript.ContextSegwitV0,
	} {
		if strings.EqualFold(name, ctx.String()) {
			return ctx, nil
		}
	}
	return 0, fmt.Errorf("unknown script context %q -- supported "+
		"contexts bare, legacy, segwitv0", name)
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}
