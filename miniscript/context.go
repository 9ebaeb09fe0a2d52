// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"github.com/btcsuite/btcd/txscript"
)

const (
	// maxStandardP2WSHScriptSize is the maximum size in bytes of a
	// standard witnessScript.
	maxStandardP2WSHScriptSize = 3600

	// maxStandardP2WSHStackItems is the maximum number of witness stack
	// items of a standard P2WSH spend, excluding the witnessScript.
	maxStandardP2WSHStackItems = 100

	// maxOpsPerScript is the maximum number of non-push operations per
	// script.
	maxOpsPerScript = txscript.MaxOpsPerScript

	// maxStandardScriptSigSize is the maximum size of a standard
	// scriptSig.
	maxStandardScriptSigSize = 1650
)

// Context is the script context a fragment is executed in. It determines
// the resource limits checked at the top level.
type Context uint8

const (
	// ContextBare is a bare output script, the fragment is the
	// scriptPubKey itself.
	ContextBare Context = iota

	// ContextLegacy is a P2SH redeem script.
	ContextLegacy

	// ContextSegwitV0 is a P2WSH witness script.
	ContextSegwitV0
)

// String returns a human-readable name of the context.
func (c Context) String() string {
	switch c {
	case ContextBare:
		return "bare"
	case ContextLegacy:
		return "legacy"
	case ContextSegwitV0:
		return "segwitv0"
	}
	return "unknown"
}

// MaxScriptSize returns the maximum script size in the context.
func (c Context) MaxScriptSize() int {
	switch c {
	case ContextLegacy:
		return txscript.MaxScriptElementSize
	case ContextSegwitV0:
		return maxStandardP2WSHScriptSize
	}
	return txscript.MaxScriptSize
}

// TopLevelCheck checks whether the fragment is valid as a script on its own
// in the given context: it must be well typed, of type B, must not be
// satisfiable by an empty witness without a signature, and must respect
// the resource limits of the context.
func TopLevelCheck(f *Fragment, ctx Context) error {
	t, err := f.Type()
	if err != nil {
		return err
	}

	// Top-level expression must be of type "B".
	if t.basic != TypeB {
		return fragmentErrorf(ErrTopLevel, "expression `%s` expected "+
			"to have type B, but is type %s", f, t.basic)
	}
	if t.props.z && !t.props.s {
		return fragmentErrorf(ErrTopLevel, "expression `%s` can be "+
			"satisfied by an empty witness", f)
	}
	if f.scriptLen > ctx.MaxScriptSize() {
		return fragmentErrorf(ErrTopLevel, "the script size is %d, "+
			"which is larger than the maximum %s script size of %d",
			f.scriptLen, ctx, ctx.MaxScriptSize())
	}
	if ops, ok := f.MaxOpCount(); ok && ops > maxOpsPerScript {
		return fragmentErrorf(ErrTopLevel, "the script requires a "+
			"maximum number of %d ops, which is larger than the "+
			"consensus limit of %d", ops, maxOpsPerScript)
	}

	elems, size, ok := f.MaxSatisfactionSize()
	if !ok {
		return nil
	}
	switch ctx {
	case ContextSegwitV0:
		if elems > maxStandardP2WSHStackItems {
			return fragmentErrorf(ErrTopLevel, "a satisfaction "+
				"may require %d witness elements, which is "+
				"larger than the standard limit of %d", elems,
				maxStandardP2WSHStackItems)
		}

	case ContextLegacy, ContextBare:
		scriptSigSize := size
		if ctx == ContextLegacy {
			scriptSigSize += numPushDataLen(f.scriptLen)
		}
		if scriptSigSize > maxStandardScriptSigSize {
			return fragmentErrorf(ErrTopLevel, "a satisfaction "+
				"may require a scriptSig of %d bytes, which is "+
				"larger than the standard limit of %d",
				scriptSigSize, maxStandardScriptSigSize)
		}
	}
	return nil
}

// numPushDataLen returns the size of a data push of n bytes.
func numPushDataLen(n int) int {
	switch {
	case n < txscript.OP_PUSHDATA1:
		return 1 + n
	case n <= 0xff:
		return 2 + n
	case n <= 0xffff:
		return 3 + n
	}
	return 5 + n
}

// SanityCheck checks whether the fragment is safe as a script on its own:
// in addition to TopLevelCheck, every satisfaction must be non-malleable,
// require a signature, and no key may appear twice.
func SanityCheck(f *Fragment, ctx Context) error {
	if err := TopLevelCheck(f, ctx); err != nil {
		return err
	}
	t, _ := f.Type()
	if !t.props.m {
		return fragmentErrorf(ErrInsane, "`%s` is malleable", f)
	}
	if !t.props.s {
		return fragmentErrorf(ErrInsane, "`%s` does not need a "+
			"signature", f)
	}
	seen := make(map[string]struct{})
	for _, key := range f.Keys() {
		if _, ok := seen[key.String()]; ok {
			return fragmentErrorf(ErrInsane, "duplicate key %s in "+
				"`%s`", key, f)
		}
		seen[key.String()] = struct{}{}
	}
	return nil
}
