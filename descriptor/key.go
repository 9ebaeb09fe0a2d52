// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package descriptor

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/elementsminiscript/miniscript"
)

const (
	// fingerprintLen is the length of a key origin fingerprint.
	fingerprintLen = 4

	// compressedPubKeyLen is the length of a compressed public key.
	compressedPubKeyLen = 33
)

// Wildcard describes the trailing wildcard step of an extended key path.
type Wildcard uint8

const (
	// WildcardNone is a key path without wildcard.
	WildcardNone Wildcard = iota

	// WildcardUnhardened is a key path ending in `/*`.
	WildcardUnhardened

	// WildcardHardened is a key path ending in `/*'`. It can not be
	// derived from an extended public key.
	WildcardHardened
)

// KeyOrigin is the optional `[fingerprint/path]` prefix of a key
// expression which records where the key was derived from.
type KeyOrigin struct {
	Fingerprint [fingerprintLen]byte
	Path        []uint32
}

// Key is a descriptor key expression: a hex encoded compressed public key or
// an extended public key with a derivation path and an optional wildcard,
// each with an optional key origin. Key implements miniscript.Key.
type Key struct {
	origin   *KeyOrigin
	pubKey   *btcec.PublicKey
	extKey   *hdkeychain.ExtendedKey
	path     []uint32
	wildcard Wildcard
}

// Ensure Key satisfies the miniscript key interface.
var _ miniscript.Key = (*Key)(nil)

// formatPath appends the path steps to the builder, each prefixed with '/'.
func formatPath(b *strings.Builder, path []uint32) {
	for _, step := range path {
		b.WriteByte('/')
		if step >= hdkeychain.HardenedKeyStart {
			b.WriteString(strconv.FormatUint(
				uint64(step-hdkeychain.HardenedKeyStart), 10))
			b.WriteByte('\'')
			continue
		}
		b.WriteString(strconv.FormatUint(uint64(step), 10))
	}
}

// parsePathStep parses one derivation step. Both `'` and `h` mark a
// hardened step.
func parsePathStep(s string) (uint32, error) {
	hardened := strings.HasSuffix(s, "'") || strings.HasSuffix(s, "h")
	if hardened {
		s = s[:len(s)-1]
	}
	n, err := miniscript.ParseNumber(s)
	if err != nil {
		return 0, descriptorErrorf(ErrKey, "invalid derivation step "+
			"%q", s)
	}
	if n >= hdkeychain.HardenedKeyStart {
		return 0, descriptorErrorf(ErrKey, "derivation step %d out of "+
			"range", n)
	}
	if hardened {
		n += hdkeychain.HardenedKeyStart
	}
	return n, nil
}

// parseOrigin parses the text between the brackets of a key origin.
func parseOrigin(s string) (*KeyOrigin, error) {
	parts := strings.Split(s, "/")
	fingerprint, err := hex.DecodeString(parts[0])
	if err != nil || len(fingerprint) != fingerprintLen {
		return nil, descriptorErrorf(ErrKey, "invalid key origin "+
			"fingerprint %q", parts[0])
	}

	origin := &KeyOrigin{}
	copy(origin.Fingerprint[:], fingerprint)
	for _, part := range parts[1:] {
		step, err := parsePathStep(part)
		if err != nil {
			return nil, err
		}
		origin.Path = append(origin.Path, step)
	}
	return origin, nil
}

// ParseKey parses a key expression.
func ParseKey(s string) (*Key, error) {
	key := &Key{}
	rest := s
	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end == -1 {
			return nil, descriptorErrorf(ErrKey, "unterminated key "+
				"origin in %q", s)
		}
		origin, err := parseOrigin(rest[1:end])
		if err != nil {
			return nil, err
		}
		key.origin = origin
		rest = rest[end+1:]
	}

	parts := strings.Split(rest, "/")
	if len(parts[0]) == 2*compressedPubKeyLen {
		if len(parts) > 1 {
			return nil, descriptorErrorf(ErrKey, "derivation path "+
				"after single key %q", s)
		}
		raw, err := hex.DecodeString(parts[0])
		if err != nil {
			return nil, descriptorErrorf(ErrKey, "invalid hex key "+
				"%q: %v", s, err)
		}
		pubKey, err := btcec.ParsePubKey(raw)
		if err != nil {
			return nil, descriptorErrorf(ErrKey, "invalid public key "+
				"%q: %v", s, err)
		}
		key.pubKey = pubKey
		return key, nil
	}
	if len(parts[0]) == 130 {
		return nil, descriptorErrorf(ErrKey, "uncompressed key %q is "+
			"not supported", s)
	}

	extKey, err := hdkeychain.NewKeyFromString(parts[0])
	if err != nil {
		return nil, descriptorErrorf(ErrKey, "invalid key %q: %v", s,
			err)
	}
	if extKey.IsPrivate() {
		return nil, descriptorErrorf(ErrKey, "private extended key in "+
			"%q, only public keys are supported", s)
	}
	key.extKey = extKey

	steps := parts[1:]
	if n := len(steps); n > 0 {
		switch steps[n-1] {
		case "*":
			key.wildcard = WildcardUnhardened
			steps = steps[:n-1]
		case "*'", "*h":
			key.wildcard = WildcardHardened
			steps = steps[:n-1]
		}
	}
	for _, part := range steps {
		step, err := parsePathStep(part)
		if err != nil {
			return nil, err
		}
		if step >= hdkeychain.HardenedKeyStart {
			return nil, descriptorErrorf(ErrKey, "hardened step %s "+
				"can not be derived from public key %q", part, s)
		}
		key.path = append(key.path, step)
	}
	return key, nil
}

// parseMiniscriptKey is a miniscript.KeyParser for descriptor keys.
func parseMiniscriptKey(s string) (miniscript.Key, error) {
	key, err := ParseKey(s)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// String returns the canonical key expression. Hardened steps are written
// with `'`.
func (k *Key) String() string {
	var b strings.Builder
	if k.origin != nil {
		b.WriteByte('[')
		b.WriteString(hex.EncodeToString(k.origin.Fingerprint[:]))
		formatPath(&b, k.origin.Path)
		b.WriteByte(']')
	}
	if k.pubKey != nil {
		b.WriteString(hex.EncodeToString(k.pubKey.SerializeCompressed()))
		return b.String()
	}

	b.WriteString(k.extKey.String())
	formatPath(&b, k.path)
	switch k.wildcard {
	case WildcardUnhardened:
		b.WriteString("/*")
	case WildcardHardened:
		b.WriteString("/*'")
	}
	return b.String()
}

// Origin returns the key origin or nil.
func (k *Key) Origin() *KeyOrigin {
	return k.origin
}

// Wildcard returns the wildcard of the key path.
func (k *Key) Wildcard() Wildcard {
	return k.wildcard
}

// IsExtended returns true for extended keys.
func (k *Key) IsExtended() bool {
	return k.extKey != nil
}

// PublicKey returns the concrete public key. It fails for keys with a
// wildcard.
func (k *Key) PublicKey() (*btcec.PublicKey, error) {
	if k.pubKey != nil {
		return k.pubKey, nil
	}
	if k.wildcard != WildcardNone {
		return nil, descriptorErrorf(ErrKey, "key %s contains a "+
			"wildcard", k)
	}

	extKey := k.extKey
	for _, step := range k.path {
		child, err := extKey.Derive(step)
		if err != nil {
			return nil, descriptorErrorf(ErrDerivation, "unable to "+
				"derive %s: %v", k, err)
		}
		extKey = child
	}
	pubKey, err := extKey.ECPubKey()
	if err != nil {
		return nil, descriptorErrorf(ErrKey, "invalid key %s: %v", k,
			err)
	}
	return pubKey, nil
}

// PubKeyBytes returns the 33 byte compressed public key.
func (k *Key) PubKeyBytes() ([]byte, error) {
	pubKey, err := k.PublicKey()
	if err != nil {
		return nil, err
	}
	return pubKey.SerializeCompressed(), nil
}

// Derive replaces the wildcard with the child index. The result has no
// wildcard and keeps the key origin.
func (k *Key) Derive(index uint32) (*Key, error) {
	switch {
	case k.wildcard == WildcardNone:
		return nil, descriptorErrorf(ErrDerivation, "key %s has no "+
			"wildcard", k)

	case k.wildcard == WildcardHardened:
		return nil, descriptorErrorf(ErrDerivation, "hardened "+
			"wildcard of %s can not be derived from a public key", k)

	case index >= hdkeychain.HardenedKeyStart:
		return nil, descriptorErrorf(ErrDerivation, "index %d is not "+
			"below %d", index, hdkeychain.HardenedKeyStart)
	}

	path := make([]uint32, len(k.path), len(k.path)+1)
	copy(path, k.path)
	return &Key{
		origin:   k.origin,
		extKey:   k.extKey,
		path:     append(path, index),
		wildcard: WildcardNone,
	}, nil
}

// GoString returns the key expression for %#v.
func (k *Key) GoString() string {
	return fmt.Sprintf("descriptor.Key(%s)", k)
}
