// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package descriptor

import (
	"strings"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/elementsminiscript/expression"
	"github.com/btcsuite/elementsminiscript/miniscript"
)

// elementsPrefix marks Elements descriptors. It is written on output and
// optional on input.
const elementsPrefix = "el"

const (
	// maxSigScriptSize is the size of a pushed DER signature with sighash
	// byte.
	maxSigScriptSize = 1 + 73

	// pubKeyScriptSize is the size of a pushed compressed public key.
	pubKeyScriptSize = 1 + compressedPubKeyLen

	// p2wpkhScriptLen is the length of a P2WPKH script.
	p2wpkhScriptLen = 22

	// p2wshScriptLen is the length of a P2WSH script.
	p2wshScriptLen = 34
)

// Type is the output template of a descriptor.
type Type uint8

const (
	// TypeBare is `elbare(ms)`, the miniscript is the output script.
	TypeBare Type = iota

	// TypePkh is `elpkh(K)`.
	TypePkh

	// TypeWpkh is `elwpkh(K)`.
	TypeWpkh

	// TypeShWpkh is `elsh(wpkh(K))`.
	TypeShWpkh

	// TypeSh is `elsh(ms)`, the miniscript is the P2SH redeem script.
	TypeSh

	// TypeWsh is `elwsh(ms)`, the miniscript is the P2WSH witness script.
	TypeWsh

	// TypeShWsh is `elsh(wsh(ms))`, a P2WSH output nested in P2SH.
	TypeShWsh
)

// String returns the template name without the Elements prefix.
func (t Type) String() string {
	switch t {
	case TypeBare:
		return "bare"
	case TypePkh:
		return "pkh"
	case TypeWpkh:
		return "wpkh"
	case TypeShWpkh:
		return "sh(wpkh)"
	case TypeSh:
		return "sh"
	case TypeWsh:
		return "wsh"
	case TypeShWsh:
		return "sh(wsh)"
	}
	return "unknown"
}

// Context returns the script context of the miniscript of the template.
func (t Type) Context() miniscript.Context {
	switch t {
	case TypeSh:
		return miniscript.ContextLegacy
	case TypeWsh, TypeShWsh, TypeWpkh, TypeShWpkh:
		return miniscript.ContextSegwitV0
	}
	return miniscript.ContextBare
}

// Descriptor is an Elements output descriptor: an output template wrapping
// either a single key or a miniscript. Descriptors are immutable.
type Descriptor struct {
	typ Type
	key miniscript.Key
	ms  *miniscript.Fragment
}

// newKeyDescriptor creates a single key descriptor.
func newKeyDescriptor(typ Type, key miniscript.Key) (*Descriptor, error) {
	if key == nil {
		return nil, descriptorErrorf(ErrKey, "missing key for %s", typ)
	}
	return &Descriptor{typ: typ, key: key}, nil
}

// newScriptDescriptor creates a miniscript descriptor after checking the
// miniscript is valid at the top level of the template's context.
func newScriptDescriptor(typ Type, ms *miniscript.Fragment) (*Descriptor,
	error) {

	if err := miniscript.TopLevelCheck(ms, typ.Context()); err != nil {
		return nil, err
	}
	return &Descriptor{typ: typ, ms: ms}, nil
}

// NewBare creates an `elbare(ms)` descriptor.
func NewBare(ms *miniscript.Fragment) (*Descriptor, error) {
	return newScriptDescriptor(TypeBare, ms)
}

// NewPkh creates an `elpkh(K)` descriptor.
func NewPkh(key miniscript.Key) (*Descriptor, error) {
	return newKeyDescriptor(TypePkh, key)
}

// NewWpkh creates an `elwpkh(K)` descriptor.
func NewWpkh(key miniscript.Key) (*Descriptor, error) {
	return newKeyDescriptor(TypeWpkh, key)
}

// NewShWpkh creates an `elsh(wpkh(K))` descriptor.
func NewShWpkh(key miniscript.Key) (*Descriptor, error) {
	return newKeyDescriptor(TypeShWpkh, key)
}

// NewSh creates an `elsh(ms)` descriptor.
func NewSh(ms *miniscript.Fragment) (*Descriptor, error) {
	return newScriptDescriptor(TypeSh, ms)
}

// NewWsh creates an `elwsh(ms)` descriptor.
func NewWsh(ms *miniscript.Fragment) (*Descriptor, error) {
	return newScriptDescriptor(TypeWsh, ms)
}

// NewShWsh creates an `elsh(wsh(ms))` descriptor.
func NewShWsh(ms *miniscript.Fragment) (*Descriptor, error) {
	return newScriptDescriptor(TypeShWsh, ms)
}

// Parse parses a descriptor. The checksum is verified first if present,
// then the structure, and finally the miniscript is type checked and
// checked for validity at the top level of the template's context.
func Parse(s string) (*Descriptor, error) {
	desc, err := VerifyChecksum(s)
	if err != nil {
		return nil, err
	}
	tree, err := expression.Parse(desc)
	if err != nil {
		return nil, descriptorErrorf(ErrParse, "%s: %v", desc, err)
	}
	d, err := FromTree(tree)
	if err != nil {
		return nil, err
	}
	log.Debugf("Parsed %s descriptor %s", d.typ, desc)
	return d, nil
}

// singleArg returns the only argument of a template.
func singleArg(tree *expression.Tree) (*expression.Tree, error) {
	if len(tree.Args) != 1 {
		return nil, descriptorErrorf(ErrParse, "%s expects 1 argument, "+
			"got %d", tree.Name, len(tree.Args))
	}
	return tree.Args[0], nil
}

// keyArg parses the key argument of a single key template.
func keyArg(tree *expression.Tree) (*Key, error) {
	arg, err := singleArg(tree)
	if err != nil {
		return nil, err
	}
	if !arg.IsLeaf() {
		return nil, descriptorErrorf(ErrParse, "argument of %s must "+
			"be a key", tree.Name)
	}
	return ParseKey(arg.Name)
}

// scriptArg parses the miniscript argument of a template.
func scriptArg(tree *expression.Tree) (*miniscript.Fragment, error) {
	arg, err := singleArg(tree)
	if err != nil {
		return nil, err
	}
	return miniscript.FromTree(arg, parseMiniscriptKey)
}

// FromTree converts an expression tree into a descriptor.
func FromTree(tree *expression.Tree) (*Descriptor, error) {
	switch strings.TrimPrefix(tree.Name, elementsPrefix) {
	case "bare":
		ms, err := scriptArg(tree)
		if err != nil {
			return nil, err
		}
		return NewBare(ms)

	case "pkh":
		key, err := keyArg(tree)
		if err != nil {
			return nil, err
		}
		return NewPkh(key)

	case "wpkh":
		key, err := keyArg(tree)
		if err != nil {
			return nil, err
		}
		return NewWpkh(key)

	case "wsh":
		ms, err := scriptArg(tree)
		if err != nil {
			return nil, err
		}
		return NewWsh(ms)

	case "sh":
		inner, err := singleArg(tree)
		if err != nil {
			return nil, err
		}
		switch inner.Name {
		case "wpkh":
			key, err := keyArg(inner)
			if err != nil {
				return nil, err
			}
			return NewShWpkh(key)

		case "wsh":
			ms, err := scriptArg(inner)
			if err != nil {
				return nil, err
			}
			return NewShWsh(ms)
		}
		ms, err := miniscript.FromTree(inner, parseMiniscriptKey)
		if err != nil {
			return nil, err
		}
		return NewSh(ms)
	}
	return nil, descriptorErrorf(ErrParse, "unknown descriptor template "+
		"%q", tree.Name)
}

// Type returns the output template.
func (d *Descriptor) Type() Type {
	return d.typ
}

// Miniscript returns the miniscript of a script template or nil.
func (d *Descriptor) Miniscript() *miniscript.Fragment {
	return d.ms
}

// Keys returns the keys of the descriptor in script order.
func (d *Descriptor) Keys() []miniscript.Key {
	if d.ms != nil {
		return d.ms.Keys()
	}
	return []miniscript.Key{d.key}
}

// body returns the descriptor text without checksum.
func (d *Descriptor) body() string {
	var inner string
	if d.ms != nil {
		inner = d.ms.String()
	} else {
		inner = d.key.String()
	}

	switch d.typ {
	case TypeShWpkh:
		return elementsPrefix + "sh(wpkh(" + inner + "))"
	case TypeShWsh:
		return elementsPrefix + "sh(wsh(" + inner + "))"
	}
	return elementsPrefix + d.typ.String() + "(" + inner + ")"
}

// String returns the canonical descriptor text followed by its checksum.
func (d *Descriptor) String() string {
	s, err := AddChecksum(d.body())
	if err != nil {
		// Only keys and extensions with characters outside of the
		// descriptor character set get here.
		return d.body()
	}
	return s
}

// HasWildcard returns true if any key of the descriptor ends in a wildcard.
func (d *Descriptor) HasWildcard() bool {
	for _, key := range d.Keys() {
		if k, ok := key.(*Key); ok && k.Wildcard() != WildcardNone {
			return true
		}
	}
	return false
}

// Derive returns a new descriptor with every wildcard replaced by the
// child index.
func (d *Descriptor) Derive(index uint32) (*Descriptor, error) {
	if !d.HasWildcard() {
		return nil, descriptorErrorf(ErrDerivation, "descriptor %s "+
			"has no wildcard", d.body())
	}

	derive := func(key miniscript.Key) (miniscript.Key, error) {
		k, ok := key.(*Key)
		if !ok || k.Wildcard() == WildcardNone {
			return key, nil
		}
		return k.Derive(index)
	}

	if d.ms == nil {
		key, err := derive(d.key)
		if err != nil {
			return nil, err
		}
		return &Descriptor{typ: d.typ, key: key}, nil
	}

	ms, err := d.ms.TranslateKeys(derive)
	if err != nil {
		return nil, err
	}
	log.Tracef("Derived %s at index %d", d.body(), index)
	return &Descriptor{typ: d.typ, ms: ms}, nil
}

// keyHash returns the hash160 of the single key.
func (d *Descriptor) keyHash() ([]byte, error) {
	pubKey, err := d.key.PubKeyBytes()
	if err != nil {
		return nil, err
	}
	return btcutil.Hash160(pubKey), nil
}

func payToPubKeyHash(hash []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(hash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

func payToWitnessProgram(program []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(program).
		Script()
}

func payToScriptHash(script []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(script)).
		AddOp(txscript.OP_EQUAL).
		Script()
}

func payToWitnessScriptHash(script []byte) ([]byte, error) {
	return payToWitnessProgram(chainhash.HashB(script))
}

// WitnessScript returns the witness script of wsh templates.
func (d *Descriptor) WitnessScript() ([]byte, error) {
	switch d.typ {
	case TypeWsh, TypeShWsh:
		return d.ms.Script()
	}
	return nil, descriptorErrorf(ErrNoScript, "%s descriptor has no "+
		"witness script", d.typ)
}

// RedeemScript returns the P2SH redeem script of sh templates.
func (d *Descriptor) RedeemScript() ([]byte, error) {
	switch d.typ {
	case TypeShWpkh:
		hash, err := d.keyHash()
		if err != nil {
			return nil, err
		}
		return payToWitnessProgram(hash)

	case TypeSh:
		return d.ms.Script()

	case TypeShWsh:
		script, err := d.ms.Script()
		if err != nil {
			return nil, err
		}
		return payToWitnessScriptHash(script)
	}
	return nil, descriptorErrorf(ErrNoScript, "%s descriptor has no "+
		"redeem script", d.typ)
}

// ScriptPubKey returns the output script. It fails while keys contain a
// wildcard.
func (d *Descriptor) ScriptPubKey() ([]byte, error) {
	switch d.typ {
	case TypeBare:
		return d.ms.Script()

	case TypePkh:
		hash, err := d.keyHash()
		if err != nil {
			return nil, err
		}
		return payToPubKeyHash(hash)

	case TypeWpkh:
		hash, err := d.keyHash()
		if err != nil {
			return nil, err
		}
		return payToWitnessProgram(hash)

	case TypeWsh:
		script, err := d.ms.Script()
		if err != nil {
			return nil, err
		}
		return payToWitnessScriptHash(script)
	}

	redeemScript, err := d.RedeemScript()
	if err != nil {
		return nil, err
	}
	return payToScriptHash(redeemScript)
}

// ExplicitScript returns the script that is executed to spend the output:
// the witness script, the redeem script or the output script itself.
func (d *Descriptor) ExplicitScript() ([]byte, error) {
	switch d.typ {
	case TypeWsh, TypeShWsh:
		return d.WitnessScript()
	case TypeSh, TypeShWpkh:
		return d.RedeemScript()
	}
	return d.ScriptPubKey()
}

// pushAll returns a script pushing every element.
func pushAll(elements [][]byte, extra ...[]byte) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	for _, e := range elements {
		b.AddData(e)
	}
	for _, e := range extra {
		b.AddData(e)
	}
	return b.Script()
}

// signKey asks the source for a signature of the single key.
func (d *Descriptor) signKey(src miniscript.SecretSource) (wire.TxWitness,
	error) {

	pubKey, err := d.key.PubKeyBytes()
	if err != nil {
		return nil, err
	}
	sig, ok := src.Sign(d.key)
	if !ok {
		return nil, &miniscript.NotSatisfiableError{
			Fragment: d.body(),
			Missing: []miniscript.Requirement{{
				Kind: miniscript.RequireSignature,
				Key:  d.key,
			}},
		}
	}
	return wire.TxWitness{sig, pubKey}, nil
}

// Satisfy returns the witness and the scriptSig spending the output with the
// secrets of src. Either may be empty depending on the template.
func (d *Descriptor) Satisfy(src miniscript.SecretSource) (wire.TxWitness,
	[]byte, error) {

	if d.ms == nil {
		witness, err := d.signKey(src)
		if err != nil {
			return nil, nil, err
		}
		switch d.typ {
		case TypePkh:
			sigScript, err := pushAll(witness)
			return nil, sigScript, err

		case TypeWpkh:
			return witness, nil, nil
		}

		redeemScript, err := d.RedeemScript()
		if err != nil {
			return nil, nil, err
		}
		sigScript, err := pushAll(nil, redeemScript)
		return witness, sigScript, err
	}

	satisfaction, err := miniscript.Satisfy(d.ms, src)
	if err != nil {
		return nil, nil, err
	}
	script, err := d.ms.Script()
	if err != nil {
		return nil, nil, err
	}

	switch d.typ {
	case TypeBare:
		sigScript, err := pushAll(satisfaction)
		return nil, sigScript, err

	case TypeSh:
		sigScript, err := pushAll(satisfaction, script)
		return nil, sigScript, err
	}

	witness := make(wire.TxWitness, 0, len(satisfaction)+1)
	witness = append(witness, satisfaction...)
	witness = append(witness, script)
	if d.typ == TypeWsh {
		return witness, nil, nil
	}

	redeemScript, err := payToWitnessScriptHash(script)
	if err != nil {
		return nil, nil, err
	}
	sigScript, err := pushAll(nil, redeemScript)
	return witness, sigScript, err
}

// pushDataLen returns the size of a data push of n bytes.
func pushDataLen(n int) int {
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

// varIntLen returns the serialized size of n as a compact size integer.
func varIntLen(n int) int {
	return wire.VarIntSerializeSize(uint64(n))
}

// scriptSigWeight returns the weight of a scriptSig of the given size
// including its length prefix.
func scriptSigWeight(size int) int {
	return blockchain.WitnessScaleFactor * (varIntLen(size) + size)
}

// MaxSatisfactionWeight returns an upper bound of the weight of the
// scriptSig and witness of any satisfaction. The weight of an empty
// scriptSig length prefix is included for segwit templates.
func (d *Descriptor) MaxSatisfactionWeight() (int, error) {
	keyWitness := varIntLen(2) + maxSigScriptSize + pubKeyScriptSize

	switch d.typ {
	case TypePkh:
		return scriptSigWeight(maxSigScriptSize + pubKeyScriptSize), nil

	case TypeWpkh:
		return scriptSigWeight(0) + keyWitness, nil

	case TypeShWpkh:
		return scriptSigWeight(pushDataLen(p2wpkhScriptLen)) +
			keyWitness, nil
	}

	elems, size, ok := d.ms.MaxSatisfactionSize()
	if !ok {
		return 0, descriptorErrorf(ErrNotSatisfiable, "%s can never "+
			"be satisfied", d.body())
	}
	scriptLen := d.ms.ScriptLen()
	witnessScript := varIntLen(elems+1) + size + varIntLen(scriptLen) +
		scriptLen

	switch d.typ {
	case TypeBare:
		return scriptSigWeight(size), nil

	case TypeSh:
		return scriptSigWeight(size + pushDataLen(scriptLen)), nil

	case TypeWsh:
		return scriptSigWeight(0) + witnessScript, nil
	}
	return scriptSigWeight(pushDataLen(p2wshScriptLen)) + witnessScript, nil
}
