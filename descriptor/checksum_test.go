// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestChecksum tests the checksum against the reference vector.
func TestChecksum(t *testing.T) {
	t.Parallel()

	checksum, err := Checksum("raw(deadbeef)")
	require.NoError(t, err)
	require.Equal(t, "89f8spxm", checksum)

	withChecksum, err := AddChecksum("raw(deadbeef)")
	require.NoError(t, err)
	require.Equal(t, "raw(deadbeef)#89f8spxm", withChecksum)

	_, err = Checksum("raw(é)")
	require.ErrorIs(t, err, ErrChecksum)
}

// TestVerifyChecksum tests the checksum verification of descriptor texts.
func TestVerifyChecksum(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
		err  error
	}{{
		name: "valid",
		in:   "raw(deadbeef)#89f8spxm",
	}, {
		name: "without checksum",
		in:   "raw(deadbeef)",
	}, {
		name: "flipped character",
		in:   "raw(deadbeef)#89f8spxn",
		err:  ErrChecksumMismatch,
	}, {
		name: "modified descriptor",
		in:   "raw(deadbeee)#89f8spxm",
		err:  ErrChecksumMismatch,
	}, {
		name: "short checksum",
		in:   "raw(deadbeef)#89f8spx",
		err:  ErrChecksum,
	}, {
		name: "long checksum",
		in:   "raw(deadbeef)#89f8spxmq",
		err:  ErrChecksum,
	}, {
		name: "invalid checksum character",
		in:   "raw(deadbeef)#89f8spxb",
		err:  ErrChecksum,
	}, {
		name: "empty checksum",
		in:   "raw(deadbeef)#",
		err:  ErrChecksum,
	}}

	for _, tc := range testCases {
		desc, err := VerifyChecksum(tc.in)
		if tc.err != nil {
			require.ErrorIs(t, err, tc.err, tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
		require.Equal(t, "raw(deadbeef)", desc, tc.name)
	}
}
