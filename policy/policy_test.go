// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package policy

import (
	"strings"
	"testing"

	"github.com/btcsuite/elementsminiscript/miniscript"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) *Policy {
	t.Helper()

	p, err := Parse(s)
	require.NoError(t, err, s)
	return p
}

// TestParseRoundTrip tests that printing a parsed policy gives the canonical
// form.
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
		in:       "or(1@pk(A),1@pk(B))",
		expected: "or(pk(A),pk(B))",
	}, {
		in:       "or(9@pk(A),and(pk(B),older(10)))",
		expected: "or(9@pk(A),and(pk(B),older(10)))",
	}, {
		in:       "thresh(2,pk(A),sha256(" + h + "),after(500000001))",
		expected: "thresh(2,pk(A),sha256(" + h + "),after(500000001))",
	}, {
		in:       "and(hash160(" + h20 + "),ripemd160(" + h20 + "))",
		expected: "and(hash160(" + h20 + "),ripemd160(" + h20 + "))",
	}, {
		in:       "or(UNSATISFIABLE,TRIVIAL)",
		expected: "or(UNSATISFIABLE,TRIVIAL)",
	}, {
		in:       "and(pk(A),num_in_eq(2))",
		expected: "and(pk(A),num_in_eq(2))",
	}}

	for _, tc := range testCases {
		p := mustParse(t, tc.in)
		require.Equal(t, tc.expected, p.String(), tc.in)
		require.True(t, Equal(p, mustParse(t, p.String())))
	}
}

// TestParseErrors tests that invalid policies are rejected.
func TestParseErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		policy string
		err    ErrorKind
	}{
		{policy: "pk(A", err: ErrParse},
		{policy: "", err: ErrParse},
		{policy: "foo(A)", err: ErrParse},
		{policy: "or(pk(A))", err: ErrMalformedPolicy},
		{policy: "or(0@pk(A),pk(B))", err: ErrParse},
		{policy: "or(x@pk(A),pk(B))", err: ErrParse},
		{policy: "and(2@pk(A),pk(B))", err: ErrParse},
		{policy: "and(pk(A),pk(B),pk(C))", err: ErrMalformedPolicy},
		{policy: "thresh(3,pk(A),pk(B))", err: ErrMalformedPolicy},
		{policy: "thresh(0,pk(A),pk(B))", err: ErrMalformedPolicy},
		{policy: "thresh(2)", err: ErrMalformedPolicy},
		{policy: "older(0)", err: ErrMalformedPolicy},
		{policy: "after(2147483648)", err: ErrMalformedPolicy},
		{policy: "older(x)", err: ErrParse},
		{policy: "sha256(00)", err: ErrMalformedPolicy},
		{policy: "sha256(zz)", err: ErrParse},
		{policy: "pk(and(pk(A),pk(B)))", err: ErrMalformedPolicy},
		{policy: "TRIVIAL(1)", err: ErrMalformedPolicy},
	}

	for _, tc := range testCases {
		_, err := Parse(tc.policy)
		require.ErrorIs(t, err, tc.err, tc.policy)
	}
}

// TestPolicyAccessors tests the structure of a parsed policy.
func TestPolicyAccessors(t *testing.T) {
	t.Parallel()

	p := mustParse(t, "or(3@pk(A),and(pk(B),thresh(1,older(10),pk(C))))")
	require.Equal(t, KindOr, p.Kind())
	require.Equal(t, []uint32{3, 1}, p.Weights())
	require.Equal(t, 4, p.Depth())
	require.Equal(t, 4, p.Leaves())
	require.Equal(t, []miniscript.Key{
		miniscript.NamedKey("A"),
		miniscript.NamedKey("B"),
		miniscript.NamedKey("C"),
	}, p.Keys())

	thresh := p.Subs()[1].Subs()[1]
	require.Equal(t, KindThresh, thresh.Kind())
	require.Equal(t, 1, thresh.K())
	require.Equal(t, uint32(10), thresh.Subs()[0].Lock())
}
