// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/txscript"
)

// Elements opcodes. They are undefined in Bitcoin script, so txscript has no
// names for them.
//
// Elements enables the introspection opcodes 0xc7..0xd6 only in tapscript.
// In the contexts supported here they fail script execution, so fragments
// using them serve script construction and analysis but are not spendable.
const (
	OP_CHECKSIGFROMSTACK         = 0xc1
	OP_CHECKSIGFROMSTACKVERIFY   = 0xc2
	OP_SHA256INITIALIZE          = 0xc4
	OP_SHA256UPDATE              = 0xc5
	OP_SHA256FINALIZE            = 0xc6
	OP_INSPECTINPUTOUTPOINT      = 0xc7
	OP_INSPECTINPUTASSET         = 0xc8
	OP_INSPECTINPUTVALUE         = 0xc9
	OP_INSPECTINPUTSCRIPTPUBKEY  = 0xca
	OP_INSPECTINPUTSEQUENCE      = 0xcb
	OP_INSPECTINPUTISSUANCE      = 0xcc
	OP_PUSHCURRENTINPUTINDEX     = 0xcd
	OP_INSPECTOUTPUTASSET        = 0xce
	OP_INSPECTOUTPUTVALUE        = 0xcf
	OP_INSPECTOUTPUTNONCE        = 0xd0
	OP_INSPECTOUTPUTSCRIPTPUBKEY = 0xd1
	OP_INSPECTVERSION            = 0xd2
	OP_INSPECTLOCKTIME           = 0xd3
	OP_INSPECTNUMINPUTS          = 0xd4
	OP_INSPECTNUMOUTPUTS         = 0xd5
	OP_TXWEIGHT                  = 0xd6
)

var elementsOpcodeNames = map[byte]string{
	OP_CHECKSIGFROMSTACK:         "CHECKSIGFROMSTACK",
	OP_CHECKSIGFROMSTACKVERIFY:   "CHECKSIGFROMSTACKVERIFY",
	OP_SHA256INITIALIZE:          "SHA256INITIALIZE",
	OP_SHA256UPDATE:              "SHA256UPDATE",
	OP_SHA256FINALIZE:            "SHA256FINALIZE",
	OP_INSPECTINPUTOUTPOINT:      "INSPECTINPUTOUTPOINT",
	OP_INSPECTINPUTASSET:         "INSPECTINPUTASSET",
	OP_INSPECTINPUTVALUE:         "INSPECTINPUTVALUE",
	OP_INSPECTINPUTSCRIPTPUBKEY:  "INSPECTINPUTSCRIPTPUBKEY",
	OP_INSPECTINPUTSEQUENCE:      "INSPECTINPUTSEQUENCE",
	OP_INSPECTINPUTISSUANCE:      "INSPECTINPUTISSUANCE",
	OP_PUSHCURRENTINPUTINDEX:     "PUSHCURRENTINPUTINDEX",
	OP_INSPECTOUTPUTASSET:        "INSPECTOUTPUTASSET",
	OP_INSPECTOUTPUTVALUE:        "INSPECTOUTPUTVALUE",
	OP_INSPECTOUTPUTNONCE:        "INSPECTOUTPUTNONCE",
	OP_INSPECTOUTPUTSCRIPTPUBKEY: "INSPECTOUTPUTSCRIPTPUBKEY",
	OP_INSPECTVERSION:            "INSPECTVERSION",
	OP_INSPECTLOCKTIME:           "INSPECTLOCKTIME",
	OP_INSPECTNUMINPUTS:          "INSPECTNUMINPUTS",
	OP_INSPECTNUMOUTPUTS:         "INSPECTNUMOUTPUTS",
	OP_TXWEIGHT:                  "TXWEIGHT",
}

const (
	// confExplicitPrefix marks an explicit (unblinded) asset or value in
	// the Elements confidential encoding.
	confExplicitPrefix = 0x01

	// assetIDLen is the length of an Elements asset id.
	assetIDLen = 32
)

// TxEnv is the view of the spending Elements transaction needed to
// evaluate introspection extensions.
type TxEnv interface {
	// Version returns the transaction version.
	Version() uint32

	// NumInputs returns the number of inputs.
	NumInputs() int

	// NumOutputs returns the number of outputs.
	NumOutputs() int

	// CurrentIndex returns the index of the input being spent.
	CurrentIndex() int

	// OutputAsset returns the confidential encoding of the asset of
	// output i: 0x01 followed by the 32 byte asset id if explicit, or a
	// 33 byte commitment.
	OutputAsset(i int) ([]byte, error)

	// OutputValue returns the confidential encoding of the value of
	// output i: 0x01 followed by the 8 byte big endian amount if
	// explicit, or a 33 byte commitment.
	OutputValue(i int) ([]byte, error)
}

// ElementsTxOut is an output of an ElementsTx.
type ElementsTxOut struct {
	Asset    []byte
	Value    []byte
	PkScript []byte
}

// ElementsTx is a plain in-memory TxEnv.
type ElementsTx struct {
	TxVersion  uint32
	InputCount int
	InputIndex int
	Outputs    []ElementsTxOut
}

// A compile-time assertion to ensure ElementsTx implements TxEnv.
var _ TxEnv = (*ElementsTx)(nil)

// Version returns the transaction version.
func (tx *ElementsTx) Version() uint32 { return tx.TxVersion }

// NumInputs returns the number of inputs.
func (tx *ElementsTx) NumInputs() int { return tx.InputCount }

// NumOutputs returns the number of outputs.
func (tx *ElementsTx) NumOutputs() int { return len(tx.Outputs) }

// CurrentIndex returns the index of the input being spent.
func (tx *ElementsTx) CurrentIndex() int { return tx.InputIndex }

func (tx *ElementsTx) output(i int) (*ElementsTxOut, error) {
	if i < 0 || i >= len(tx.Outputs) {
		return nil, fmt.Errorf("output index %d out of range, tx has "+
			"%d outputs", i, len(tx.Outputs))
	}
	return &tx.Outputs[i], nil
}

// OutputAsset returns the encoded asset of output i.
func (tx *ElementsTx) OutputAsset(i int) ([]byte, error) {
	out, err := tx.output(i)
	if err != nil {
		return nil, err
	}
	return out.Asset, nil
}

// OutputValue returns the encoded value of output i.
func (tx *ElementsTx) OutputValue(i int) ([]byte, error) {
	out, err := tx.output(i)
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

// ExplicitAsset returns the confidential encoding of an explicit asset id.
func ExplicitAsset(id []byte) []byte {
	return append([]byte{confExplicitPrefix}, id...)
}

// ExplicitValue returns the confidential encoding of an explicit amount.
func ExplicitValue(amount uint64) []byte {
	var b [9]byte
	b[0] = confExplicitPrefix
	binary.BigEndian.PutUint64(b[1:], amount)
	return b[:]
}

// introspection is the common implementation of the built-in Elements
// extensions. Each one compares a value pushed by an introspection opcode
// against a constant.
type introspection struct {
	name  string
	index uint32
	num   uint64
	asset []byte
}

// A compile-time assertion to ensure introspection implements Extension.
var _ Extension = (*introspection)(nil)

var introspectionType, _ = NewType(TypeB, "zumfx")

func (e *introspection) Name() string { return e.name }

func (e *introspection) Args() []string {
	switch e.name {
	case "asset_eq":
		return []string{
			strconv.FormatUint(uint64(e.index), 10),
			hex.EncodeToString(e.asset),
		}
	case "value_eq":
		return []string{
			strconv.FormatUint(uint64(e.index), 10),
			strconv.FormatUint(e.num, 10),
		}
	case "ver_eq", "num_in_eq", "num_out_eq":
		return []string{strconv.FormatUint(e.num, 10)}
	}
	return []string{strconv.FormatUint(uint64(e.index), 10)}
}

func (e *introspection) Type() Type { return introspectionType }

func (e *introspection) ScriptLen() int {
	switch e.name {
	case "ver_eq":
		// INSPECTVERSION <4 bytes> EQUAL
		return 1 + 5 + 1
	case "num_in_eq", "num_out_eq":
		return 1 + numPushLen(int64(e.num)) + 1
	case "curr_idx_eq":
		return 1 + numPushLen(int64(e.index)) + 1
	case "is_exp_asset", "is_exp_value":
		// <i> INSPECT NIP 1 EQUAL
		return numPushLen(int64(e.index)) + 4
	case "asset_eq":
		// <i> INSPECT 1 EQUALVERIFY <32 bytes> EQUAL
		return numPushLen(int64(e.index)) + 3 + 1 + assetIDLen + 1
	case "value_eq":
		// <i> INSPECT 1 EQUALVERIFY <8 bytes> EQUAL
		return numPushLen(int64(e.index)) + 3 + 1 + 8 + 1
	}
	return 0
}

func (e *introspection) OpCount() int {
	switch e.name {
	case "is_exp_asset", "is_exp_value", "asset_eq", "value_eq":
		return 3
	}
	return 2
}

func (e *introspection) Encode(b *txscript.ScriptBuilder, verify bool) error {
	switch e.name {
	case "ver_eq":
		var v [4]byte
		binary.LittleEndian.PutUint32(v[:], uint32(e.num))
		b.AddOp(OP_INSPECTVERSION)
		b.AddData(v[:])

	case "num_in_eq":
		b.AddOp(OP_INSPECTNUMINPUTS)
		b.AddInt64(int64(e.num))

	case "num_out_eq":
		b.AddOp(OP_INSPECTNUMOUTPUTS)
		b.AddInt64(int64(e.num))

	case "curr_idx_eq":
		b.AddOp(OP_PUSHCURRENTINPUTINDEX)
		b.AddInt64(int64(e.index))

	case "is_exp_asset", "is_exp_value":
		op := byte(OP_INSPECTOUTPUTASSET)
		if e.name == "is_exp_value" {
			op = OP_INSPECTOUTPUTVALUE
		}
		b.AddInt64(int64(e.index))
		b.AddOp(op)
		b.AddOp(txscript.OP_NIP)
		b.AddInt64(confExplicitPrefix)

	case "asset_eq":
		b.AddInt64(int64(e.index))
		b.AddOp(OP_INSPECTOUTPUTASSET)
		b.AddInt64(confExplicitPrefix)
		b.AddOp(txscript.OP_EQUALVERIFY)
		b.AddData(e.asset)

	case "value_eq":
		var v [8]byte
		binary.LittleEndian.PutUint64(v[:], e.num)
		b.AddInt64(int64(e.index))
		b.AddOp(OP_INSPECTOUTPUTVALUE)
		b.AddInt64(confExplicitPrefix)
		b.AddOp(txscript.OP_EQUALVERIFY)
		b.AddData(v[:])

	default:
		return fragmentErrorf(ErrUnknownExtension, "unknown "+
			"introspection %s", e.name)
	}

	if verify {
		b.AddOp(txscript.OP_EQUALVERIFY)
	} else {
		b.AddOp(txscript.OP_EQUAL)
	}
	return nil
}

func (e *introspection) Satisfied(env TxEnv) (bool, error) {
	if env == nil {
		return false, nil
	}
	idx := int(e.index)
	switch e.name {
	case "ver_eq":
		return uint64(env.Version()) == e.num, nil

	case "num_in_eq":
		return uint64(env.NumInputs()) == e.num, nil

	case "num_out_eq":
		return uint64(env.NumOutputs()) == e.num, nil

	case "curr_idx_eq":
		return env.CurrentIndex() == idx, nil
	}

	if idx >= env.NumOutputs() {
		return false, nil
	}
	switch e.name {
	case "is_exp_asset", "asset_eq":
		asset, err := env.OutputAsset(idx)
		if err != nil {
			return false, err
		}
		explicit := len(asset) == 1+assetIDLen &&
			asset[0] == confExplicitPrefix
		if e.name == "is_exp_asset" || !explicit {
			return explicit, nil
		}
		return bytes.Equal(asset[1:], e.asset), nil

	case "is_exp_value", "value_eq":
		value, err := env.OutputValue(idx)
		if err != nil {
			return false, err
		}
		explicit := len(value) == 9 && value[0] == confExplicitPrefix
		if e.name == "is_exp_value" || !explicit {
			return explicit, nil
		}
		return binary.BigEndian.Uint64(value[1:]) == e.num, nil
	}
	return false, fragmentErrorf(ErrUnknownExtension, "unknown "+
		"introspection %s", e.name)
}

func parseExtNum(name, arg string, bits int) (uint64, error) {
	n, err := strconv.ParseUint(arg, 10, bits)
	if err != nil {
		return 0, fragmentErrorf(ErrParse, "%s: invalid number %q",
			name, arg)
	}
	return n, nil
}

func expectExtArgs(name string, args []string, n int) error {
	if len(args) != n {
		return fragmentErrorf(ErrMalformedFragment, "%s expects %d "+
			"arguments, got %d", name, n, len(args))
	}
	return nil
}

// numParser parses extensions with a single numeric argument that is
// stored as num (values compared against) or index (input/output indexes).
func numParser(name string, bits int, isIndex bool) ExtensionParser {
	return func(args []string) (Extension, error) {
		if err := expectExtArgs(name, args, 1); err != nil {
			return nil, err
		}
		n, err := parseExtNum(name, args[0], bits)
		if err != nil {
			return nil, err
		}
		if isIndex {
			return &introspection{name: name, index: uint32(n)}, nil
		}
		return &introspection{name: name, num: n}, nil
	}
}

func parseAssetEq(args []string) (Extension, error) {
	if err := expectExtArgs("asset_eq", args, 2); err != nil {
		return nil, err
	}
	idx, err := parseExtNum("asset_eq", args[0], 31)
	if err != nil {
		return nil, err
	}
	asset, err := hex.DecodeString(args[1])
	if err != nil || len(asset) != assetIDLen {
		return nil, fragmentErrorf(ErrParse, "asset_eq: invalid asset "+
			"id %q", args[1])
	}
	return &introspection{
		name:  "asset_eq",
		index: uint32(idx),
		asset: asset,
	}, nil
}

func parseValueEq(args []string) (Extension, error) {
	if err := expectExtArgs("value_eq", args, 2); err != nil {
		return nil, err
	}
	idx, err := parseExtNum("value_eq", args[0], 31)
	if err != nil {
		return nil, err
	}
	amount, err := parseExtNum("value_eq", args[1], 64)
	if err != nil {
		return nil, err
	}
	return &introspection{
		name:  "value_eq",
		index: uint32(idx),
		num:   amount,
	}, nil
}

// disasmElements renders a script in the ScriptString notation, naming the
// Elements opcodes.
func disasmElements(script []byte) string {
	var s []string
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		op := tokenizer.Opcode()
		switch {
		case tokenizer.Data() != nil:
			s = append(s, fmt.Sprintf("<%x>", tokenizer.Data()))
		case op == txscript.OP_0:
			s = append(s, "0")
		case op >= txscript.OP_1 && op <= txscript.OP_16:
			s = append(s, fmt.Sprint(op-txscript.OP_1+1))
		case elementsOpcodeNames[op] != "":
			s = append(s, elementsOpcodeNames[op])
		default:
			name, _ := txscript.DisasmString([]byte{op})
			s = append(s, strings.TrimPrefix(name, "OP_"))
		}
	}
	return strings.Join(s, " ")
}

func init() {
	builtins := map[string]ExtensionParser{
		"ver_eq":       numParser("ver_eq", 32, false),
		"num_in_eq":    numParser("num_in_eq", 31, false),
		"num_out_eq":   numParser("num_out_eq", 31, false),
		"curr_idx_eq":  numParser("curr_idx_eq", 31, true),
		"is_exp_asset": numParser("is_exp_asset", 31, true),
		"is_exp_value": numParser("is_exp_value", 31, true),
		"asset_eq":     parseAssetEq,
		"value_eq":     parseValueEq,
	}
	for name, parser := range builtins {
		extensions[name] = parser
	}
}
