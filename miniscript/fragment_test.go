// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// testKey derives a deterministic key pair from a name.
func testKey(name string) (*btcec.PrivateKey, PubKey) {
	priv, pub := btcec.PrivKeyFromBytes(chainhash.HashB([]byte(name)))
	return priv, NewPubKey(pub)
}

// concrete replaces all placeholder keys by deterministic public keys.
func concrete(t *testing.T, f *Fragment) *Fragment {
	t.Helper()

	translated, err := f.TranslateKeys(func(key Key) (Key, error) {
		if _, ok := key.(NamedKey); !ok {
			return key, nil
		}
		_, pub := testKey(key.String())
		return pub, nil
	})
	require.NoError(t, err)
	return translated
}

func mustParse(t *testing.T, s string) *Fragment {
	t.Helper()

	f, err := Parse(s)
	require.NoError(t, err, s)
	return f
}

// TestParseRoundTrip tests that printing a parsed miniscript gives the
// canonical form, and that parsing it again gives an equal tree.
func TestParseRoundTrip(t *testing.T) {
	t.Parallel()

	h := strings.Repeat("ab", 32)
	h20 := strings.Repeat("cd", 20)

	testCases := []struct {
		in       string
		expected string
	}{{
		in:       "pk(A)",
		expected: "pk(A)",
	}, {
		in:       "c:pk_k(A)",
		expected: "pk(A)",
	}, {
		in:       "c:pk_h(A)",
		expected: "pkh(A)",
	}, {
		in:       "and_v(v:pk(A),pk(B))",
		expected: "and_v(v:pk(A),pk(B))",
	}, {
		in:       "and_v(vc:pk_k(A),c:pk_h(B))",
		expected: "and_v(v:pk(A),pkh(B))",
	}, {
		in:       "andor(pk(A),pk(B),0)",
		expected: "and_n(pk(A),pk(B))",
	}, {
		in:       "t:or_c(pk(A),v:pk(B))",
		expected: "t:or_c(pk(A),v:pk(B))",
	}, {
		in:       "and_v(or_c(pk(A),v:pk(B)),1)",
		expected: "t:or_c(pk(A),v:pk(B))",
	}, {
		in:       "or_i(0,pk(A))",
		expected: "l:pk(A)",
	}, {
		in:       "or_i(pk(A),0)",
		expected: "u:pk(A)",
	}, {
		in:       "or_d(pk(A),older(144))",
		expected: "or_d(pk(A),older(144))",
	}, {
		in:       "thresh(2,pk(A),s:pk(B),sln:older(10))",
		expected: "thresh(2,pk(A),s:pk(B),sln:older(10))",
	}, {
		in:       "multi(2,A,B,C)",
		expected: "multi(2,A,B,C)",
	}, {
		in:       "and_v(v:sha256(" + h + "),pk(A))",
		expected: "and_v(v:sha256(" + h + "),pk(A))",
	}, {
		in:       "or_b(pk(A),a:hash160(" + h20 + "))",
		expected: "or_b(pk(A),a:hash160(" + h20 + "))",
	}, {
		in:       "and_v(v:num_in_eq(2),pk(A))",
		expected: "and_v(v:num_in_eq(2),pk(A))",
	}}

	for _, tc := range testCases {
		f := mustParse(t, tc.in)
		require.Equal(t, tc.expected, f.String())

		again := mustParse(t, f.String())
		require.True(t, Equal(f, again), tc.in)
	}
}

// TestParseErrors tests that malformed expressions are rejected with the
// correct error kind.
func TestParseErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		kind ErrorKind
	}{
		{in: "pk(A", kind: ErrParse},
		{in: "", kind: ErrParse},
		{in: ":pk(A)", kind: ErrParse},
		{in: "v:", kind: ErrParse},
		{in: "x:pk(A)", kind: ErrParse},
		{in: "older(0)", kind: ErrMalformedFragment},
		{in: "older(2147483648)", kind: ErrMalformedFragment},
		{in: "older(010)", kind: ErrParse},
		{in: "after(-1)", kind: ErrParse},
		{in: "pk(A,B)", kind: ErrMalformedFragment},
		{in: "pk(pk(A))", kind: ErrMalformedFragment},
		{in: "multi(0,A,B)", kind: ErrMalformedFragment},
		{in: "multi(3,A,B)", kind: ErrMalformedFragment},
		{in: "thresh(3,pk(A),s:pk(B))", kind: ErrMalformedFragment},
		{in: "sha256(abcd)", kind: ErrMalformedFragment},
		{in: "sha256(zz)", kind: ErrParse},
		{in: "and_v(pk(A))", kind: ErrMalformedFragment},
		{in: "foo(1)", kind: ErrUnknownExtension},
		{in: "pk(A-B)", kind: ErrKey},
		{in: "and_b(pk(A),pk(B))", kind: ErrTypeCheck},
		{in: "v:older(0)", kind: ErrMalformedFragment},
	}

	for _, tc := range testCases {
		_, err := Parse(tc.in)
		require.Error(t, err, tc.in)
		require.Truef(t, errors.Is(err, tc.kind), "%s: expected %v, "+
			"got %v", tc.in, tc.kind, err)
	}
}

// TestParseNumber tests that decimal numbers round trip and that
// non-canonical encodings are rejected.
func TestParseNumber(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Uint32().Draw(t, "n")
		parsed, err := ParseNumber(strconv.FormatUint(uint64(n), 10))
		require.NoError(t, err)
		require.Equal(t, n, parsed)
	})

	for _, s := range []string{"", "01", "+1", "-1", "4294967296", "1a"} {
		_, err := ParseNumber(s)
		require.Error(t, err, s)
	}
}

// TestScriptLen tests that the computed script length matches the length
// of the encoded script.
func TestScriptLen(t *testing.T) {
	t.Parallel()

	h := strings.Repeat("ab", 32)
	h20 := strings.Repeat("cd", 20)
	asset := strings.Repeat("11", 32)

	testCases := []string{
		"pk(A)",
		"pkh(A)",
		"older(144)",
		"after(500000001)",
		"sha256(" + h + ")",
		"hash256(" + h + ")",
		"ripemd160(" + h20 + ")",
		"hash160(" + h20 + ")",
		"multi(2,A,B,C)",
		"and_v(v:pk(A),pk(B))",
		"and_v(v:multi(1,A,B),pk(C))",
		"and_b(pk(A),s:pk(B))",
		"or_b(pk(A),s:pk(B))",
		"t:or_c(pk(A),v:pk(B))",
		"or_d(pk(A),older(144))",
		"or_i(pk(A),pk(B))",
		"andor(pk(A),older(10),pk(B))",
		"thresh(2,pk(A),s:pk(B),sln:older(10))",
		"thresh(17,pk(A),s:pk(B),s:pk(C),s:pk(D),s:pk(E),s:pk(F)," +
			"s:pk(G),s:pk(H),s:pk(I),s:pk(J),s:pk(K),s:pk(L)," +
			"s:pk(M),s:pk(N),s:pk(O),s:pk(P),s:pk(Q))",
		"and_v(v:thresh(1,pk(A),s:pk(B)),pk(C))",
		"and_v(v:sha256(" + h + "),pk(A))",
		"j:pk(A)",
		"n:pk(A)",
		"dv:older(144)",
		"and_v(v:num_in_eq(2),pk(A))",
		"and_v(v:ver_eq(2),pk(A))",
		"and_v(v:curr_idx_eq(0),pk(A))",
		"and_v(v:is_exp_asset(1),pk(A))",
		"and_v(v:is_exp_value(1),pk(A))",
		"and_v(v:asset_eq(0," + asset + "),pk(A))",
		"and_v(v:value_eq(0,100000),pk(A))",
		"and_v(v:num_out_eq(17),pk(A))",
	}

	for _, tc := range testCases {
		f := concrete(t, mustParse(t, tc))
		script, err := f.Script()
		require.NoError(t, err, tc)
		require.Equalf(t, f.ScriptLen(), len(script), "%s: %s", tc,
			f.DrawTree())
	}
}

// TestScript tests the exact encoding of simple fragments.
func TestScript(t *testing.T) {
	t.Parallel()

	_, pubA := testKey("A")
	_, pubB := testKey("B")
	a := pubA.String()
	b := pubB.String()

	testCases := []struct {
		miniscript string
		script     string
	}{{
		miniscript: "pk(" + a + ")",
		script:     "21" + a + "ac",
	}, {
		miniscript: "older(144)",
		script:     "029000b2",
	}, {
		miniscript: "after(16)",
		script:     "60b1",
	}, {
		// The CHECKSIG of the first key is collapsed into
		// CHECKSIGVERIFY.
		miniscript: "and_v(v:pk(" + a + "),pk(" + b + "))",
		script:     "21" + a + "ad21" + b + "ac",
	}, {
		miniscript: "multi(1," + a + "," + b + ")",
		script:     "5121" + a + "21" + b + "52ae",
	}, {
		// OP_1 OP_VERIFY cannot be collapsed.
		miniscript: "and_v(v:1,pk(" + a + "))",
		script:     "516921" + a + "ac",
	}}

	for _, tc := range testCases {
		f := mustParse(t, tc.miniscript)
		script, err := f.Script()
		require.NoError(t, err)
		require.Equal(t, tc.script, hex.EncodeToString(script),
			tc.miniscript)
	}
}

// TestScriptPlaceholderKey tests that placeholder keys cannot be encoded.
func TestScriptPlaceholderKey(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "pk(A)")
	_, err := f.Script()
	require.ErrorIs(t, err, ErrKey)

	require.Equal(t, "<A> CHECKSIG", f.ScriptString())
}

// TestComputeOpCount tests that MaxOpCount returns the correct number of
// operations.
func TestComputeOpCount(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		script     string
		maxOpCount int
	}{
		{
			script: "or_i(multi(2,key1,key2,key3)," +
				"multi(3,key4,key5,key6,key7))",
			maxOpCount: 9,
		},
		{
			script: "thresh(2,or_i(multi(2,key1,key2,key3)," +
				"multi(3,key4,key5,key6,key7))," +
				"s:pk(key8),s:pk(key9))",
			maxOpCount: 16,
		},
		{
			script: "thresh(2,or_d(multi(2,key1,key2,key3)," +
				"multi(3,key4,key5,key6,key7))," +
				"s:pk(key8),s:pk(key9))",
			maxOpCount: 19,
		},
		{
			script:     "pk(A)",
			maxOpCount: 1,
		},
		{
			script:     "pkh(A)",
			maxOpCount: 4,
		},
	}

	for _, tc := range testCases {
		node := mustParse(t, tc.script)
		count, ok := node.MaxOpCount()
		require.True(t, ok)
		require.Equal(t, tc.maxOpCount, count, tc.script)
	}
}

// TestSatisfactionSize tests the witness size bounds of simple fragments.
func TestSatisfactionSize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		miniscript string
		satElems   int
		satSize    int
		dsat       bool
		dsatElems  int
		dsatSize   int
	}{{
		miniscript: "pk(A)",
		satElems:   1,
		satSize:    74,
		dsat:       true,
		dsatElems:  1,
		dsatSize:   1,
	}, {
		miniscript: "pkh(A)",
		satElems:   2,
		satSize:    74 + 34,
		dsat:       true,
		dsatElems:  2,
		dsatSize:   1 + 34,
	}, {
		miniscript: "multi(2,A,B,C)",
		satElems:   3,
		satSize:    1 + 2*74,
		dsat:       true,
		dsatElems:  3,
		dsatSize:   3,
	}, {
		miniscript: "and_v(v:pk(A),pk(B))",
		satElems:   2,
		satSize:    2 * 74,
	}, {
		miniscript: "or_i(pk(A),pk(B))",
		satElems:   2,
		satSize:    74 + 2,
		dsat:       true,
		dsatElems:  2,
		dsatSize:   1 + 2,
	}}

	for _, tc := range testCases {
		f := mustParse(t, tc.miniscript)
		elems, size, ok := f.MaxSatisfactionSize()
		require.True(t, ok, tc.miniscript)
		require.Equal(t, tc.satElems, elems, tc.miniscript)
		require.Equal(t, tc.satSize, size, tc.miniscript)

		elems, size, ok = f.MaxDissatisfactionSize()
		require.Equal(t, tc.dsat, ok, tc.miniscript)
		if tc.dsat {
			require.Equal(t, tc.dsatElems, elems, tc.miniscript)
			require.Equal(t, tc.dsatSize, size, tc.miniscript)
		}
	}
}

// TestKeys tests key listing and translation.
func TestKeys(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "or_d(multi(1,A,B),and_v(v:pkh(C),older(10)))")

	var names []string
	for _, key := range f.Keys() {
		names = append(names, key.String())
	}
	require.Equal(t, []string{"A", "B", "C"}, names)

	renamed, err := f.TranslateKeys(func(key Key) (Key, error) {
		return NamedKey(strings.ToLower(key.String())), nil
	})
	require.NoError(t, err)
	require.Equal(t, "or_d(multi(1,a,b),and_v(v:pkh(c),older(10)))",
		renamed.String())

	// The original tree is unchanged.
	require.Equal(t, "or_d(multi(1,A,B),and_v(v:pkh(C),older(10)))",
		f.String())
}

// TestDrawTree tests the debug rendering of a typed tree.
func TestDrawTree(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "and_v(v:pk(A),older(10))")
	tree := f.DrawTree()
	require.True(t, strings.HasPrefix(tree, "and_v ["), tree)
	require.Contains(t, tree, "pk(A) [")
	require.Contains(t, tree, "older(10) [")
}
