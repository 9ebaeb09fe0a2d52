// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/crypto/ripemd160"
)

// preimageLen is the only preimage size miniscript hash fragments accept.
const preimageLen = 32

// HashKind identifies the hash function of a hash fragment.
type HashKind uint8

const (
	HashSha256 HashKind = iota
	HashHash256
	HashRipemd160
	HashHash160
)

var hashKindNames = map[HashKind]string{
	HashSha256:    "sha256",
	HashHash256:   "hash256",
	HashRipemd160: "ripemd160",
	HashHash160:   "hash160",
}

// String returns the fragment name of the hash function.
func (h HashKind) String() string {
	if s, ok := hashKindNames[h]; ok {
		return s
	}
	return "unknown"
}

// Size returns the digest length in bytes.
func (h HashKind) Size() int {
	switch h {
	case HashRipemd160, HashHash160:
		return 20
	default:
		return 32
	}
}

// Sum computes the digest of data.
func (h HashKind) Sum(data []byte) []byte {
	switch h {
	case HashSha256:
		return chainhash.HashB(data)
	case HashHash256:
		return chainhash.DoubleHashB(data)
	case HashRipemd160:
		hasher := ripemd160.New()
		hasher.Write(data)
		return hasher.Sum(nil)
	case HashHash160:
		return btcutil.Hash160(data)
	}
	return nil
}

// AllHashKinds lists the hash kinds in fragment order.
var AllHashKinds = []HashKind{
	HashSha256, HashHash256, HashRipemd160, HashHash160,
}
