// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package descriptor

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

// testKey derives a deterministic key pair from a name.
func testKey(name string) (*btcec.PrivateKey, string) {
	priv, pub := btcec.PrivKeyFromBytes(chainhash.HashB([]byte(name)))
	return priv, hex.EncodeToString(pub.SerializeCompressed())
}

// testMaster returns a deterministic extended private key.
func testMaster(t *testing.T) *hdkeychain.ExtendedKey {
	t.Helper()

	seed := bytes.Repeat([]byte{0x42}, hdkeychain.RecommendedSeedLen)
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	require.NoError(t, err)
	return master
}

// testXPub returns the extended public key of the test master key.
func testXPub(t *testing.T) string {
	t.Helper()

	xpub, err := testMaster(t).Neuter()
	require.NoError(t, err)
	return xpub.String()
}

// TestParseKey tests parsing and printing key expressions.
func TestParseKey(t *testing.T) {
	t.Parallel()

	_, pub := testKey("A")
	xpub := testXPub(t)

	testCases := []struct {
		in       string
		expected string
		wildcard Wildcard
	}{{
		in:       pub,
		expected: pub,
	}, {
		in:       "[d34db33f/44'/0'/0']" + pub,
		expected: "[d34db33f/44'/0'/0']" + pub,
	}, {
		in:       "[d34db33f/44h/0h/0h]" + xpub + "/1/*",
		expected: "[d34db33f/44'/0'/0']" + xpub + "/1/*",
		wildcard: WildcardUnhardened,
	}, {
		in:       xpub + "/0/7",
		expected: xpub + "/0/7",
	}, {
		in:       xpub + "/*h",
		expected: xpub + "/*'",
		wildcard: WildcardHardened,
	}}

	for _, tc := range testCases {
		key, err := ParseKey(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.expected, key.String())
		require.Equal(t, tc.wildcard, key.Wildcard())
	}
}

// TestParseKeyErrors tests that invalid key expressions are rejected.
func TestParseKeyErrors(t *testing.T) {
	t.Parallel()

	_, pub := testKey("A")
	xpub := testXPub(t)
	xprv := testMaster(t).String()

	uncompressed := "04" + pub[2:] + pub[2:]

	for _, in := range []string{
		"",
		"A",
		pub + "/0",
		uncompressed,
		"[d34db33f" + pub,
		"[d34db3/0]" + pub,
		"[d34db33f/x]" + pub,
		xprv + "/0/*",
		xpub + "/1'/*",
		xpub + "/01/*",
		xpub + "/2147483648",
		xpub + "/*/0",
	} {
		_, err := ParseKey(in)
		require.ErrorIs(t, err, ErrKey, in)
	}
}

// TestKeyDerive tests that deriving a wildcard key yields the hdkeychain
// child key.
func TestKeyDerive(t *testing.T) {
	t.Parallel()

	xpub := testXPub(t)
	key, err := ParseKey("[d34db33f/44'/0'/0']" + xpub + "/1/*")
	require.NoError(t, err)

	_, err = key.PubKeyBytes()
	require.ErrorIs(t, err, ErrKey)

	derived, err := key.Derive(5)
	require.NoError(t, err)
	require.Equal(t, "[d34db33f/44'/0'/0']"+xpub+"/1/5", derived.String())
	require.Equal(t, WildcardNone, derived.Wildcard())

	parent, err := hdkeychain.NewKeyFromString(xpub)
	require.NoError(t, err)
	child, err := parent.Derive(1)
	require.NoError(t, err)
	child, err = child.Derive(5)
	require.NoError(t, err)
	expected, err := child.ECPubKey()
	require.NoError(t, err)

	pubKey, err := derived.PubKeyBytes()
	require.NoError(t, err)
	require.Equal(t, expected.SerializeCompressed(), pubKey)

	// The original key is unchanged.
	require.Equal(t, WildcardUnhardened, key.Wildcard())

	_, err = key.Derive(hdkeychain.HardenedKeyStart)
	require.ErrorIs(t, err, ErrDerivation)

	_, err = derived.Derive(1)
	require.ErrorIs(t, err, ErrDerivation)

	hardened, err := ParseKey(xpub + "/*'")
	require.NoError(t, err)
	_, err = hardened.Derive(1)
	require.ErrorIs(t, err, ErrDerivation)
}
