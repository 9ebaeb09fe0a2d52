// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package policy

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/elementsminiscript/miniscript"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// testPubKey derives a deterministic public key from a name.
func testPubKey(name string) string {
	_, pub := btcec.PrivKeyFromBytes(chainhash.HashB([]byte(name)))
	return hex.EncodeToString(pub.SerializeCompressed())
}

func keyStrings(keys []miniscript.Key) []string {
	s := make([]string, len(keys))
	for i, key := range keys {
		s[i] = key.String()
	}
	sort.Strings(s)
	return s
}

// requireSane checks the invariants of every compiler output.
func requireSane(t require.TestingT, p *Policy, f *miniscript.Fragment,
	ctx miniscript.Context) {

	_, err := miniscript.TypeCheck(f)
	require.NoError(t, err, f.String())
	require.NoError(t, miniscript.SanityCheck(f, ctx), f.String())

	// The miniscript implements the same keys as the policy.
	lifted, err := Lift(f)
	require.NoError(t, err)
	require.Equal(t, keyStrings(p.Keys()), keyStrings(lifted.Keys()))

	// The text form parses back into the same miniscript.
	parsed, err := miniscript.Parse(f.String())
	require.NoError(t, err)
	require.True(t, miniscript.Equal(f, parsed))
}

// TestCompileExact tests the compilation of policies whose cheapest
// miniscript is known.
func TestCompileExact(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		policy     string
		miniscript string
	}{{
		policy:     "pk(A)",
		miniscript: "pk(A)",
	}, {
		policy:     "thresh(2,pk(A),pk(B),pk(C))",
		miniscript: "multi(2,A,B,C)",
	}}

	for _, tc := range testCases {
		p := mustParse(t, tc.policy)
		f, err := Compile(p, miniscript.ContextSegwitV0)
		require.NoError(t, err, tc.policy)
		require.Equal(t, tc.miniscript, f.String(), tc.policy)
		requireSane(t, p, f, miniscript.ContextSegwitV0)
	}
}

// TestCompile tests that compiled policies are well typed and sane in all
// contexts, and that compilation is deterministic.
func TestCompile(t *testing.T) {
	t.Parallel()

	h := strings.Repeat("ab", 32)

	policies := []string{
		"or(pk(A),pk(B))",
		"or(pk(A),and(pk(B),older(10)))",
		"or(99@pk(A),1@and(pk(B),older(10)))",
		"or(1@pk(A),99@and(pk(B),older(10)))",
		"and(pk(A),or(pk(B),sha256(" + h + ")))",
		"and(pk(A),after(500000001))",
		"thresh(2,pk(A),pk(B),older(100))",
		"thresh(3,pk(A),pk(B),pk(C))",
		"thresh(1,pk(A),pk(B),pk(C))",
		"and(pk(A),num_in_eq(2))",
		"or(and(pk(A),pk(B)),and(pk(C),older(1000)))",
	}

	for _, ctx := range []miniscript.Context{
		miniscript.ContextSegwitV0,
		miniscript.ContextLegacy,
	} {
		for _, s := range policies {
			p := mustParse(t, s)
			f, err := Compile(p, ctx)
			require.NoError(t, err, s)
			requireSane(t, p, f, ctx)

			again, err := Compile(mustParse(t, s), ctx)
			require.NoError(t, err)
			require.Equal(t, f.String(), again.String())
		}
	}
}

// TestCompileSatisfy tests that a compiled policy is satisfiable through
// the timelocked branch only once the timelock is reached.
func TestCompileSatisfy(t *testing.T) {
	t.Parallel()

	a, b := testPubKey("A"), testPubKey("B")
	p := mustParse(t, "or(pk("+a+"),and(pk("+b+"),older(10)))")
	f, err := Compile(p, miniscript.ContextSegwitV0)
	require.NoError(t, err)
	requireSane(t, p, f, miniscript.ContextSegwitV0)

	keyB, err := miniscript.ParseKey(b)
	require.NoError(t, err)
	sigB := []byte{0x30, 0x44, 0x01}

	secrets := &miniscript.Secrets{TxVersion: 2, Sequence: 10}
	secrets.AddSignature(keyB, sigB)
	witness, err := miniscript.Satisfy(f, secrets)
	require.NoError(t, err)
	require.Contains(t, witness, sigB)

	secrets.Sequence = 5
	_, err = miniscript.Satisfy(f, secrets)
	require.ErrorIs(t, err, miniscript.ErrNotSatisfiable)

	var notSat *miniscript.NotSatisfiableError
	require.True(t, errors.As(err, &notSat))
	require.True(t, notSat.HasTimelock())
}

// TestCompileInfeasible tests policies without a sane miniscript.
func TestCompileInfeasible(t *testing.T) {
	t.Parallel()

	// Both halves compile on their own.
	for _, s := range []string{
		"and(pk(A),after(100))",
		"and(pk(B),after(500000001))",
	} {
		_, err := Compile(mustParse(t, s), miniscript.ContextSegwitV0)
		require.NoError(t, err, s)
	}

	mixed := "and(and(pk(A),after(100)),and(pk(B),after(500000001)))"
	_, err := Compile(mustParse(t, mixed), miniscript.ContextSegwitV0)
	require.ErrorIs(t, err, ErrInfeasible)
	require.ErrorIs(t, err, miniscript.ErrTimelockMix)

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	require.Equal(t, mixed, compileErr.Policy)

	// Repeated keys.
	_, err = Compile(mustParse(t, "or(pk(A),pk(A))"),
		miniscript.ContextSegwitV0)
	require.ErrorIs(t, err, ErrInfeasible)
	require.ErrorIs(t, err, miniscript.ErrInsane)

	// No signature required.
	_, err = Compile(mustParse(t, "older(10)"), miniscript.ContextSegwitV0)
	require.ErrorIs(t, err, ErrInfeasible)
}

// TestCompileTooComplex tests the complexity limits.
func TestCompileTooComplex(t *testing.T) {
	t.Parallel()

	p := mustParse(t, "and(pk(A),and(pk(B),pk(C)))")
	_, err := NewCompiler(miniscript.ContextSegwitV0,
		Config{MaxDepth: 2}).Compile(p)
	require.ErrorIs(t, err, ErrTooComplex)

	p = mustParse(t, "thresh(2,pk(A),pk(B),pk(C))")
	_, err = NewCompiler(miniscript.ContextSegwitV0,
		Config{MaxLeaves: 2}).Compile(p)
	require.ErrorIs(t, err, ErrTooComplex)

	_, err = NewCompiler(miniscript.ContextSegwitV0, Config{}).Compile(p)
	require.NoError(t, err)
}

// genPolicy draws a random policy with unique keys.
func genPolicy(t *rapid.T, depth int, keys *int) *Policy {
	if depth == 0 || rapid.Bool().Draw(t, "leaf") {
		switch rapid.IntRange(0, 3).Draw(t, "terminal") {
		case 0:
			n := rapid.Uint32Range(1, 1000).Draw(t, "older")
			p, _ := NewOlder(n)
			return p

		case 1:
			*keys++
			digest := chainhash.HashB([]byte{byte(*keys)})
			p, _ := NewHash(miniscript.HashSha256, digest)
			return p

		default:
			*keys++
			p, _ := NewKey(miniscript.NamedKey(fmt.Sprintf("K%d",
				*keys)))
			return p
		}
	}

	switch rapid.IntRange(0, 2).Draw(t, "combinator") {
	case 0:
		p, _ := NewAnd(genPolicy(t, depth-1, keys),
			genPolicy(t, depth-1, keys))
		return p

	case 1:
		wx := rapid.Uint32Range(1, 10).Draw(t, "wx")
		wy := rapid.Uint32Range(1, 10).Draw(t, "wy")
		p, _ := NewOr(genPolicy(t, depth-1, keys),
			genPolicy(t, depth-1, keys), wx, wy)
		return p

	default:
		n := rapid.IntRange(2, 3).Draw(t, "n")
		k := rapid.IntRange(1, n).Draw(t, "k")
		subs := make([]*Policy, n)
		for i := range subs {
			subs[i] = genPolicy(t, depth-1, keys)
		}
		p, _ := NewThresh(k, subs)
		return p
	}
}

// TestCompileProperty tests that every compiler output passes the type and
// sanity checks, and that failures are reported as infeasible.
func TestCompileProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		var keys int
		p := genPolicy(t, 2, &keys)

		f, err := Compile(p, miniscript.ContextSegwitV0)
		if err != nil {
			require.ErrorIs(t, err, ErrInfeasible, p.String())
			return
		}
		requireSane(t, p, f, miniscript.ContextSegwitV0)
	})
}
