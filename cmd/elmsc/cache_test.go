// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/btcsuite/elementsminiscript/miniscript"
	"github.com/btcsuite/elementsminiscript/policy"
	"github.com/stretchr/testify/require"
)

// TestCompileCache tests storing, loading and dropping compile cache
// entries.
func TestCompileCache(t *testing.T) {
	dataDir := t.TempDir()

	pol, err := policy.ParseWithKeys("or(99@pk(A),1@and(pk(B),older(144)))",
		parseKey)
	require.NoError(t, err)
	ms, err := policy.Compile(pol, miniscript.ContextSegwitV0)
	require.NoError(t, err)

	cache, err := openCompileCache(dataDir)
	require.NoError(t, err)

	_, ok, err := cache.Get(miniscript.ContextSegwitV0, pol)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.Put(miniscript.ContextSegwitV0, pol, ms))
	require.NoError(t, cache.Close())

	// Entries survive reopening and are keyed by context.
	cache, err = openCompileCache(dataDir)
	require.NoError(t, err)
	defer cache.Close()

	cached, ok, err := cache.Get(miniscript.ContextSegwitV0, pol)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, miniscript.Equal(ms, cached))

	_, ok, err = cache.Get(miniscript.ContextLegacy, pol)
	require.NoError(t, err)
	require.False(t, ok)

	// A corrupt entry is a miss and is removed.
	key := cacheKey(miniscript.ContextSegwitV0, pol)
	require.NoError(t, cache.db.Put(key, []byte("and_v(pk(A)"), nil))
	_, ok, err = cache.Get(miniscript.ContextSegwitV0, pol)
	require.NoError(t, err)
	require.False(t, ok)

	has, err := cache.db.Has(key, nil)
	require.NoError(t, err)
	require.False(t, has)
}

// TestParseContext tests the script context names.
func TestParseContext(t *testing.T) {
	for _, name := range []string{"bare", "legacy", "segwitv0", "SegwitV0"} {
		_, err := parseContext(name)
		require.NoError(t, err, name)
	}
	_, err := parseContext("taproot")
	require.Error(t, err)
}

// TestParseKey tests that descriptor keys and placeholder names are both
// accepted.
func TestParseKey(t *testing.T) {
	const pub = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

	key, err := parseKey(pub)
	require.NoError(t, err)
	require.False(t, hasNamedKeys([]miniscript.Key{key}))

	key, err = parseKey("Alice")
	require.NoError(t, err)
	require.True(t, hasNamedKeys([]miniscript.Key{key}))

	_, err = parseKey("not a key")
	require.Error(t, err)
}
