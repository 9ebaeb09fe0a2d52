// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"bytes"
	"encoding/hex"
	"strconv"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

// TestElementsScript tests the exact encoding of the introspection
// extensions.
func TestElementsScript(t *testing.T) {
	t.Parallel()

	asset := strings.Repeat("aa", 32)

	testCases := []struct {
		miniscript string
		script     string
	}{{
		miniscript: "num_in_eq(2)",
		script:     "d45287",
	}, {
		miniscript: "num_out_eq(17)",
		script:     "d5011187",
	}, {
		miniscript: "ver_eq(2)",
		script:     "d2040200000087",
	}, {
		miniscript: "curr_idx_eq(0)",
		script:     "cd0087",
	}, {
		miniscript: "is_exp_asset(1)",
		script:     "51ce775187",
	}, {
		miniscript: "is_exp_value(1)",
		script:     "51cf775187",
	}, {
		miniscript: "asset_eq(0," + asset + ")",
		script:     "00ce518820" + asset + "87",
	}, {
		miniscript: "value_eq(0,100000)",
		script:     "00cf518808a08601000000000087",
	}, {
		// The final EQUAL is collapsed into EQUALVERIFY.
		miniscript: "v:num_in_eq(2)",
		script:     "d45288",
	}}

	for _, tc := range testCases {
		f := mustParse(t, tc.miniscript)
		script, err := f.Script()
		require.NoError(t, err, tc.miniscript)
		require.Equal(t, tc.script, hex.EncodeToString(script),
			tc.miniscript)
		require.Equal(t, len(script), f.ScriptLen(), tc.miniscript)
	}
}

// TestElementsScriptString tests that the introspection opcodes are named in
// the script listing.
func TestElementsScriptString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		miniscript string
		expected   string
	}{{
		miniscript: "num_in_eq(2)",
		expected:   "INSPECTNUMINPUTS 2 EQUAL",
	}, {
		miniscript: "v:num_in_eq(2)",
		expected:   "INSPECTNUMINPUTS 2 EQUALVERIFY",
	}, {
		miniscript: "is_exp_asset(1)",
		expected:   "1 INSPECTOUTPUTASSET NIP 1 EQUAL",
	}, {
		miniscript: "curr_idx_eq(0)",
		expected:   "PUSHCURRENTINPUTINDEX 0 EQUAL",
	}, {
		miniscript: "ver_eq(2)",
		expected:   "INSPECTVERSION <02000000> EQUAL",
	}}

	for _, tc := range testCases {
		f := mustParse(t, tc.miniscript)
		require.Equal(t, tc.expected, f.ScriptString(), tc.miniscript)
	}
}

// TestElementsSatisfied tests the evaluation of the introspection
// extensions against a transaction.
func TestElementsSatisfied(t *testing.T) {
	t.Parallel()

	assetID := bytes.Repeat([]byte{0xaa}, 32)
	commitment := append([]byte{0x0a}, bytes.Repeat([]byte{0x01}, 32)...)

	tx := &ElementsTx{
		TxVersion:  2,
		InputCount: 3,
		InputIndex: 1,
		Outputs: []ElementsTxOut{{
			Asset: ExplicitAsset(assetID),
			Value: ExplicitValue(100000),
		}, {
			Asset: commitment,
			Value: commitment,
		}},
	}

	testCases := []struct {
		miniscript string
		satisfied  bool
	}{
		{miniscript: "ver_eq(2)", satisfied: true},
		{miniscript: "ver_eq(1)"},
		{miniscript: "num_in_eq(3)", satisfied: true},
		{miniscript: "num_in_eq(2)"},
		{miniscript: "num_out_eq(2)", satisfied: true},
		{miniscript: "curr_idx_eq(1)", satisfied: true},
		{miniscript: "curr_idx_eq(0)"},
		{miniscript: "is_exp_asset(0)", satisfied: true},
		{miniscript: "is_exp_asset(1)"},
		{miniscript: "is_exp_value(0)", satisfied: true},
		{miniscript: "is_exp_value(1)"},
		{miniscript: "is_exp_value(2)"},
		{
			miniscript: "asset_eq(0," + hex.EncodeToString(assetID) +
				")",
			satisfied: true,
		},
		{miniscript: "asset_eq(0," + strings.Repeat("bb", 32) + ")"},
		{
			miniscript: "asset_eq(1," + hex.EncodeToString(assetID) +
				")",
		},
		{miniscript: "value_eq(0,100000)", satisfied: true},
		{miniscript: "value_eq(0,100001)"},
		{miniscript: "value_eq(1,100000)"},
	}

	for _, tc := range testCases {
		f := mustParse(t, tc.miniscript)
		ok, err := f.Extension().Satisfied(tx)
		require.NoError(t, err, tc.miniscript)
		require.Equal(t, tc.satisfied, ok, tc.miniscript)

		// Nothing is satisfied without a transaction.
		ok, err = f.Extension().Satisfied(nil)
		require.NoError(t, err)
		require.False(t, ok)
	}
}

// TestElementsParseErrors tests that invalid extension arguments are
// rejected.
func TestElementsParseErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		miniscript string
		err        ErrorKind
	}{
		{miniscript: "num_in_eq(a)", err: ErrParse},
		{miniscript: "num_in_eq(1,2)", err: ErrMalformedFragment},
		{miniscript: "ver_eq(4294967296)", err: ErrParse},
		{miniscript: "asset_eq(0,abcd)", err: ErrParse},
		{miniscript: "value_eq(0)", err: ErrMalformedFragment},
		{miniscript: "num_in_eq(pk(A))", err: ErrMalformedFragment},
		{miniscript: "not_an_ext(1)", err: ErrUnknownExtension},
	}

	for _, tc := range testCases {
		_, err := Parse(tc.miniscript)
		require.ErrorIs(t, err, tc.err, tc.miniscript)
	}
}

// constExt is a test extension which pushes its number twice and compares
// the copies. It is always satisfied.
type constExt struct {
	n   int64
	typ Type
}

func (e *constExt) Name() string { return "const_eq" }

func (e *constExt) Args() []string {
	return []string{strconv.FormatInt(e.n, 10)}
}

func (e *constExt) Type() Type { return e.typ }

func (e *constExt) ScriptLen() int { return 2*numPushLen(e.n) + 1 }

func (e *constExt) OpCount() int { return 1 }

func (e *constExt) Encode(b *txscript.ScriptBuilder, verify bool) error {
	b.AddInt64(e.n).AddInt64(e.n)
	if verify {
		b.AddOp(txscript.OP_EQUALVERIFY)
	} else {
		b.AddOp(txscript.OP_EQUAL)
	}
	return nil
}

func (e *constExt) Satisfied(TxEnv) (bool, error) { return true, nil }

// TestRegisterExtension tests adding a terminal kind to the parser.
func TestRegisterExtension(t *testing.T) {
	t.Parallel()

	typ, err := NewType(TypeB, "zumfx")
	require.NoError(t, err)

	parser := func(args []string) (Extension, error) {
		if len(args) != 1 {
			return nil, fragmentErrorf(ErrMalformedFragment,
				"const_eq expects one argument")
		}
		n, err := strconv.ParseInt(args[0], 10, 32)
		if err != nil {
			return nil, fragmentErrorf(ErrParse, "const_eq: %v", err)
		}
		return &constExt{n: n, typ: typ}, nil
	}

	require.ErrorIs(t, RegisterExtension("pk", parser),
		ErrUnknownExtension)
	require.ErrorIs(t, RegisterExtension("", parser), ErrUnknownExtension)
	require.ErrorIs(t, RegisterExtension("a:b", parser),
		ErrUnknownExtension)
	require.ErrorIs(t, RegisterExtension("num_in_eq", parser),
		ErrUnknownExtension)

	require.NoError(t, RegisterExtension("const_eq", parser))
	require.ErrorIs(t, RegisterExtension("const_eq", parser),
		ErrUnknownExtension)

	f := mustParse(t, "and_v(v:const_eq(7),pk(A))")
	require.Equal(t, "and_v(v:const_eq(7),pk(A))", f.String())

	script, err := concrete(t, f).Script()
	require.NoError(t, err)
	require.Equal(t, "575788", hex.EncodeToString(script[:3]))

	secrets := &Secrets{}
	secrets.AddSignature(NamedKey("A"), []byte{0x30})
	witness, err := Satisfy(f, secrets)
	require.NoError(t, err)
	require.Len(t, witness, 1)
}

// TestNewExtConsumesWitness tests that extensions reading from the witness
// are rejected.
func TestNewExtConsumesWitness(t *testing.T) {
	t.Parallel()

	typ, err := NewType(TypeB, "ondu")
	require.NoError(t, err)

	_, err = NewExt(&constExt{n: 1, typ: typ})
	require.ErrorIs(t, err, ErrMalformedFragment)

	_, err = NewExt(nil)
	require.ErrorIs(t, err, ErrMalformedFragment)
}
