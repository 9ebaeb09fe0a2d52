// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package policy

import (
	"testing"

	"github.com/btcsuite/elementsminiscript/miniscript"
	"github.com/stretchr/testify/require"
)

// TestLift tests converting miniscripts back into policies.
func TestLift(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		miniscript string
		policy     string
	}{{
		miniscript: "pkh(A)",
		policy:     "pk(A)",
	}, {
		miniscript: "or_d(pk(A),and_v(v:pk(B),older(10)))",
		policy:     "or(pk(A),and(pk(B),older(10)))",
	}, {
		miniscript: "andor(pk(A),pk(B),pk(C))",
		policy:     "or(and(pk(A),pk(B)),pk(C))",
	}, {
		miniscript: "multi(2,A,B,C)",
		policy:     "thresh(2,pk(A),pk(B),pk(C))",
	}, {
		miniscript: "and_n(pk(A),pk(B))",
		policy:     "and(pk(A),pk(B))",
	}, {
		miniscript: "l:pk(A)",
		policy:     "pk(A)",
	}, {
		miniscript: "t:or_c(pk(A),v:pk(B))",
		policy:     "or(pk(A),pk(B))",
	}, {
		miniscript: "thresh(2,pk(A),s:pk(B),sln:older(10))",
		policy:     "thresh(2,pk(A),pk(B),older(10))",
	}, {
		miniscript: "and_v(v:num_in_eq(2),pk(A))",
		policy:     "and(num_in_eq(2),pk(A))",
	}}

	for _, tc := range testCases {
		f, err := miniscript.Parse(tc.miniscript)
		require.NoError(t, err, tc.miniscript)

		p, err := Lift(f)
		require.NoError(t, err, tc.miniscript)
		require.Equal(t, tc.policy, p.String(), tc.miniscript)
	}
}
