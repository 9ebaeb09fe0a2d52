// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"encoding/hex"
	"regexp"

	"github.com/btcsuite/btcd/btcec/v2"
)

const (
	// pubKeyLen is the length of a public key inside P2WSH, which are 33
	// byte compressed public keys.
	pubKeyLen = 33

	// pubKeyDataPushLen is the length of a public key data push in P2WSH,
	// which is 1+33 (1 byte for the VarInt encoding of 33).
	pubKeyDataPushLen = 34
)

// Key is a public key handle referenced by pk_k, pk_h and multi fragments.
// Keys are compared by their canonical text form.
type Key interface {
	// String returns the canonical text form of the key as used in
	// miniscript and descriptor strings.
	String() string

	// PubKeyBytes returns the 33 byte compressed public key. An error is
	// returned for keys that are not concrete, such as placeholder names
	// or extended keys that still contain a wildcard.
	PubKeyBytes() ([]byte, error)
}

// KeyParser turns the textual key argument of a fragment into a Key.
type KeyParser func(string) (Key, error)

// PubKey is a concrete compressed secp256k1 public key.
type PubKey struct {
	key *btcec.PublicKey
}

// NewPubKey wraps a parsed public key.
func NewPubKey(key *btcec.PublicKey) PubKey {
	return PubKey{key: key}
}

// ParsePubKey parses a hex encoded 33 byte compressed public key.
func ParsePubKey(s string) (PubKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return PubKey{}, fragmentErrorf(ErrKey, "invalid hex key %q: %v",
			s, err)
	}
	if len(raw) != pubKeyLen {
		return PubKey{}, fragmentErrorf(ErrKey, "pubkey expected to be "+
			"of size %d, but got %d", pubKeyLen, len(raw))
	}
	key, err := btcec.ParsePubKey(raw)
	if err != nil {
		return PubKey{}, fragmentErrorf(ErrKey, "invalid pubkey %s: %v",
			s, err)
	}
	return PubKey{key: key}, nil
}

// String returns the hex encoded compressed key.
func (p PubKey) String() string {
	if p.key == nil {
		return ""
	}
	return hex.EncodeToString(p.key.SerializeCompressed())
}

// PubKeyBytes returns the compressed serialization of the key.
func (p PubKey) PubKeyBytes() ([]byte, error) {
	if p.key == nil {
		return nil, fragmentError(ErrKey, "empty pubkey")
	}
	return p.key.SerializeCompressed(), nil
}

// PublicKey returns the underlying btcec public key.
func (p PubKey) PublicKey() *btcec.PublicKey {
	return p.key
}

// NamedKey is a placeholder key identified by name only, e.g. "A" in
// `or(pk(A),pk(B))`. It can be type checked, compiled and satisfied by
// name, but not encoded to script.
type NamedKey string

var namedKeyRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// String returns the name.
func (k NamedKey) String() string {
	return string(k)
}

// PubKeyBytes always fails since a name is not a concrete key.
func (k NamedKey) PubKeyBytes() ([]byte, error) {
	return nil, fragmentErrorf(ErrKey, "key %s is a placeholder without "+
		"a concrete value", string(k))
}

// ParseKey is the default KeyParser. It accepts hex encoded compressed
// public keys and placeholder names.
func ParseKey(s string) (Key, error) {
	if len(s) == 2*pubKeyLen {
		if _, err := hex.DecodeString(s); err == nil {
			return ParsePubKey(s)
		}
	}
	if namedKeyRegexp.MatchString(s) {
		return NamedKey(s), nil
	}
	return nil, fragmentErrorf(ErrKey, "invalid key %q", s)
}

// keyEqual compares two key handles by their canonical form.
func keyEqual(a, b Key) bool {
	return a.String() == b.String()
}
