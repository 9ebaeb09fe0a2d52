// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// andVChain returns and_v(v:X0,and_v(v:X1,...,Xn-1)) where Xi is
// fragment(Ki).
func andVChain(fragment string, n int) string {
	s := fmt.Sprintf("%s(K%d)", fragment, n-1)
	for i := n - 2; i >= 0; i-- {
		s = fmt.Sprintf("and_v(v:%s(K%d),%s)", fragment, i, s)
	}
	return s
}

// TestTopLevelCheck tests the checks of a fragment used as a complete
// script.
func TestTopLevelCheck(t *testing.T) {
	t.Parallel()

	bigThresh := "thresh(1,pk(K0)"
	for i := 1; i < 16; i++ {
		bigThresh += fmt.Sprintf(",s:pk(K%d)", i)
	}
	bigThresh += ")"

	testCases := []struct {
		miniscript string
		ctx        Context
		valid      bool
	}{
		{miniscript: "pk(A)", ctx: ContextSegwitV0, valid: true},
		{miniscript: "pk(A)", ctx: ContextBare, valid: true},
		{miniscript: "v:pk(A)", ctx: ContextSegwitV0},
		{miniscript: "older(10)", ctx: ContextSegwitV0},
		{miniscript: "1", ctx: ContextSegwitV0},
		{miniscript: bigThresh, ctx: ContextSegwitV0, valid: true},
		{miniscript: bigThresh, ctx: ContextLegacy},

		// 51 * 4 ops.
		{miniscript: andVChain("pkh", 51), ctx: ContextSegwitV0},

		// 101 witness elements.
		{miniscript: andVChain("pk", 101), ctx: ContextSegwitV0},
		{miniscript: andVChain("pk", 100), ctx: ContextSegwitV0,
			valid: true},
	}

	for _, tc := range testCases {
		f := mustParse(t, tc.miniscript)
		err := TopLevelCheck(f, tc.ctx)
		if tc.valid {
			require.NoError(t, err, tc.miniscript)
			continue
		}
		require.ErrorIs(t, err, ErrTopLevel, tc.miniscript)
	}
}

// TestSanityCheck tests the safety checks of a complete script.
func TestSanityCheck(t *testing.T) {
	t.Parallel()

	h := strings.Repeat("ab", 32)

	testCases := []struct {
		miniscript string
		err        error
	}{
		{miniscript: "or_i(pk(A),pk(B))"},
		{miniscript: "and_v(v:pk(A),older(10))"},
		{
			miniscript: "and_v(v:pk(A),pk(A))",
			err:        ErrInsane,
		},
		{
			miniscript: "or_d(sha256(" + h + "),pk(A))",
			err:        ErrInsane,
		},
		{
			miniscript: "or_d(pk(A),older(10))",
			err:        ErrInsane,
		},
		{
			miniscript: "v:pk(A)",
			err:        ErrTopLevel,
		},
	}

	for _, tc := range testCases {
		f := mustParse(t, tc.miniscript)
		err := SanityCheck(f, ContextSegwitV0)
		if tc.err == nil {
			require.NoError(t, err, tc.miniscript)
			continue
		}
		require.ErrorIs(t, err, tc.err, tc.miniscript)
	}
}
