// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sortString(s string) string {
	r := []rune(s)
	sort.Slice(r, func(i, j int) bool {
		return r[i] < r[j]
	})
	return string(r)
}

// TestTypes tests the computed types of well typed fragments.
func TestTypes(t *testing.T) {
	t.Parallel()

	h := strings.Repeat("ab", 32)

	testCases := []struct {
		miniscript string
		typ        string
	}{
		{miniscript: "pk(A)", typ: "Bondumse"},
		{miniscript: "pkh(A)", typ: "Bndumse"},
		{miniscript: "older(144)", typ: "Bzmf"},
		{miniscript: "v:pk(A)", typ: "Vonmsf"},
		{miniscript: "and_v(v:pk(A),pk(B))", typ: "Bnumsf"},
		{miniscript: "or_d(pk(A),older(144))", typ: "Bomf"},
		{miniscript: "multi(2,A,B,C)", typ: "Bndumse"},
		{miniscript: "sha256(" + h + ")", typ: "Bondum"},
		{miniscript: "and_b(pk(A),s:pk(B))", typ: "Bndumse"},
		{miniscript: "dv:older(144)", typ: "Bondme"},
		{
			miniscript: "thresh(2,pk(A),s:pk(B),sln:older(10))",
			typ:        "Bdums",
		},
		{miniscript: "num_in_eq(2)", typ: "Bzumf"},
	}

	for _, tc := range testCases {
		f := mustParse(t, tc.miniscript)
		typ, err := TypeCheck(f)
		require.NoError(t, err)
		require.Equal(t, sortString(tc.typ), sortString(typ.String()),
			tc.miniscript)
	}
}

// TestTypeErrors tests that ill typed fragments are rejected.
func TestTypeErrors(t *testing.T) {
	t.Parallel()

	testCases := []string{
		"and_v(pk(A),pk(B))",
		"or_b(pk(A),pk(B))",
		"c:older(1)",
		"d:pk(A)",
		"s:older(1)",
		"thresh(1,s:pk(A))",
		"or_d(v:pk(A),pk(B))",
		"andor(pk(A),pk(B),v:pk(C))",
		"j:older(1)",
		"av:pk(A)",
	}

	for _, tc := range testCases {
		_, err := Parse(tc)
		require.Error(t, err, tc)
		require.ErrorIs(t, err, ErrTypeCheck, tc)
	}
}

// TestTypeErrorPropagation tests that FromTree builds ill typed trees and
// that the first error of the children is reported by the parent.
func TestTypeErrorPropagation(t *testing.T) {
	t.Parallel()

	inner, err := NewBinary(KindAndB, True(), True())
	require.NoError(t, err)
	_, innerErr := inner.Type()
	require.Error(t, innerErr)

	pk, err := NewPk(NamedKey("A"))
	require.NoError(t, err)
	outer, err := NewBinary(KindOrD, inner, pk)
	require.NoError(t, err)

	_, outerErr := outer.Type()
	require.Equal(t, innerErr, outerErr)
}

// TestTimelockMix tests that conjunctions of height and time based locks of
// the same family are type errors.
func TestTimelockMix(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		miniscript string
		family     string
	}{{
		miniscript: "and_v(v:after(100),after(500000001))",
		family:     "after",
	}, {
		miniscript: "and_b(older(10),a:older(4194305))",
		family:     "older",
	}, {
		miniscript: "andor(pk(A),after(100),after(500000001))",
	}, {
		miniscript: "andor(ln:after(100),after(500000001),pk(A))",
		family:     "after",
	}, {
		miniscript: "or_i(after(100),after(500000001))",
	}, {
		miniscript: "and_v(v:after(100),older(4194305))",
	}, {
		miniscript: "thresh(1,pk(A),sln:after(100)," +
			"sln:after(500000001))",
	}, {
		miniscript: "thresh(2,pk(A),sln:after(100)," +
			"sln:after(500000001))",
		family: "after",
	}}

	for _, tc := range testCases {
		_, err := Parse(tc.miniscript)
		if tc.family == "" {
			if err != nil {
				// Only timelock mixing must not be reported.
				require.False(t, errors.Is(err, ErrTimelockMix),
					tc.miniscript)
			}
			continue
		}

		require.ErrorIs(t, err, ErrTimelockMix, tc.miniscript)
		var mixErr *TimelockMixError
		require.True(t, errors.As(err, &mixErr))
		require.Equal(t, tc.family, mixErr.Family)
	}
}

// TestTimelockInfo tests the timelock classes of a type.
func TestTimelockInfo(t *testing.T) {
	t.Parallel()

	f := mustParse(t, "or_i(after(100),older(4194305))")
	typ, err := f.Type()
	require.NoError(t, err)
	require.Equal(t, TimelockInfo{
		CLTVHeight: true,
		CSVTime:    true,
	}, typ.Timelocks())
}

// TestNewType tests the property letters accepted for extension types.
func TestNewType(t *testing.T) {
	t.Parallel()

	typ, err := NewType(TypeB, "zumfx")
	require.NoError(t, err)
	require.True(t, typ.ZeroArg())
	require.True(t, typ.Unit())
	require.True(t, typ.NonMalleable())
	require.True(t, typ.Forced())
	require.False(t, typ.Dissatisfiable())
	require.Equal(t, "Bzumf", typ.String())

	_, err = NewType(TypeB, "zq")
	require.ErrorIs(t, err, ErrTypeCheck)
}
