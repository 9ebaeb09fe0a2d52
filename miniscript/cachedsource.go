// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"encoding/hex"
	"sync"

	"github.com/decred/dcrd/lru"
)

const (
	// defaultMissCacheSize is the default number of unavailable secrets
	// remembered by a CachedSource.
	defaultMissCacheSize = 1000
)

// CachedSource wraps a SecretSource which is expensive to query, such as a
// hardware signer. Signatures and preimages are remembered once returned,
// and a bounded number of misses is remembered so the wrapped source is
// asked at most once per key or digest. Timelocks and the transaction are
// always forwarded.
type CachedSource struct {
	src SecretSource

	mtx       sync.Mutex
	sigs      map[string][]byte
	preimages map[string][]byte
	misses    lru.Cache
}

// A compile-time assertion to ensure CachedSource implements SecretSource.
var _ SecretSource = (*CachedSource)(nil)

// NewCachedSource returns a CachedSource remembering up to missCacheSize
// unavailable secrets. A zero size selects a default.
func NewCachedSource(src SecretSource, missCacheSize uint) *CachedSource {
	if missCacheSize == 0 {
		missCacheSize = defaultMissCacheSize
	}
	return &CachedSource{
		src:       src,
		sigs:      make(map[string][]byte),
		preimages: make(map[string][]byte),
		misses:    lru.NewCache(missCacheSize),
	}
}

// Sign returns the signature for the key, asking the wrapped source only
// the first time.
func (c *CachedSource) Sign(key Key) ([]byte, bool) {
	id := "sig:" + key.String()

	c.mtx.Lock()
	defer c.mtx.Unlock()

	if sig, ok := c.sigs[id]; ok {
		return sig, true
	}
	if c.misses.Contains(id) {
		return nil, false
	}
	sig, ok := c.src.Sign(key)
	if !ok {
		c.misses.Add(id)
		log.Tracef("Cached missing signature for %s", key)
		return nil, false
	}
	c.sigs[id] = sig
	return sig, true
}

// Preimage returns the preimage of the digest, asking the wrapped source
// only the first time.
func (c *CachedSource) Preimage(kind HashKind, digest []byte) ([]byte,
	bool) {

	id := kind.String() + ":" + hex.EncodeToString(digest)

	c.mtx.Lock()
	defer c.mtx.Unlock()

	if preimage, ok := c.preimages[id]; ok {
		return preimage, true
	}
	if c.misses.Contains(id) {
		return nil, false
	}
	preimage, ok := c.src.Preimage(kind, digest)
	if !ok {
		c.misses.Add(id)
		log.Tracef("Cached missing preimage for %s", id)
		return nil, false
	}
	c.preimages[id] = preimage
	return preimage, true
}

// CheckOlder forwards to the wrapped source.
func (c *CachedSource) CheckOlder(lockTime uint32) (bool, error) {
	return c.src.CheckOlder(lockTime)
}

// CheckAfter forwards to the wrapped source.
func (c *CachedSource) CheckAfter(lockTime uint32) (bool, error) {
	return c.src.CheckAfter(lockTime)
}

// TxEnv forwards to the wrapped source.
func (c *CachedSource) TxEnv() TxEnv {
	return c.src.TxEnv()
}
