// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"encoding/hex"
	"sync"
)

// SignFunc is a function type that returns a signature for a key or false if
// no signer is available.
type SignFunc func(key Key) (signature []byte, available bool)

// SecretSource is queried by the satisfier for signatures, hash preimages,
// timelock conditions and the spending transaction. Every method may be
// called several times for the same argument.
type SecretSource interface {
	// Sign returns a signature for the key or false if a signer is not
	// available.
	Sign(key Key) (signature []byte, available bool)

	// Preimage returns the 32 byte preimage of the digest.
	Preimage(kind HashKind, digest []byte) (preimage []byte,
		available bool)

	// CheckOlder checks if the OP_CHECKSEQUENCEVERIFY call is satisfied
	// in the context of the spending transaction.
	CheckOlder(lockTime uint32) (bool, error)

	// CheckAfter checks if the OP_CHECKLOCKTIMEVERIFY call is satisfied
	// in the context of the spending transaction.
	CheckAfter(lockTime uint32) (bool, error)

	// TxEnv returns the spending transaction used to evaluate
	// introspection extensions, or nil if it is not known.
	TxEnv() TxEnv
}

// Secrets is an in-memory SecretSource. The zero value knows no secrets and
// satisfies no timelocks.
type Secrets struct {
	mtx        sync.RWMutex
	signatures map[string][]byte
	preimages  map[HashKind]map[string][]byte

	// Signer is asked for signatures of keys without a stored signature.
	Signer SignFunc

	// TxVersion, Sequence and LockTime describe the input being signed
	// and are compared against older and after.
	TxVersion uint32
	Sequence  uint32
	LockTime  uint32

	// Tx is returned by TxEnv.
	Tx TxEnv
}

// A compile-time assertion to ensure Secrets implements SecretSource.
var _ SecretSource = (*Secrets)(nil)

// AddSignature stores the signature for the key.
func (s *Secrets) AddSignature(key Key, signature []byte) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.signatures == nil {
		s.signatures = make(map[string][]byte)
	}
	s.signatures[key.String()] = signature
}

// AddPreimage stores the preimage under its digest for every hash kind.
func (s *Secrets) AddPreimage(preimage []byte) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.preimages == nil {
		s.preimages = make(map[HashKind]map[string][]byte)
	}
	for _, kind := range AllHashKinds {
		if s.preimages[kind] == nil {
			s.preimages[kind] = make(map[string][]byte)
		}
		digest := hex.EncodeToString(kind.Sum(preimage))
		s.preimages[kind][digest] = preimage
	}
}

// Sign returns the stored signature of the key, falling back to Signer.
func (s *Secrets) Sign(key Key) ([]byte, bool) {
	s.mtx.RLock()
	sig, ok := s.signatures[key.String()]
	s.mtx.RUnlock()
	if ok {
		return sig, true
	}
	if s.Signer != nil {
		return s.Signer(key)
	}
	return nil, false
}

// Preimage returns the stored preimage of the digest.
func (s *Secrets) Preimage(kind HashKind, digest []byte) ([]byte, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	preimage, ok := s.preimages[kind][hex.EncodeToString(digest)]
	return preimage, ok
}

// CheckOlder compares the relative timelock against TxVersion and Sequence.
func (s *Secrets) CheckOlder(lockTime uint32) (bool, error) {
	return CheckOlder(lockTime, s.TxVersion, s.Sequence), nil
}

// CheckAfter compares the absolute timelock against LockTime and Sequence.
func (s *Secrets) CheckAfter(lockTime uint32) (bool, error) {
	return CheckAfter(lockTime, s.LockTime, s.Sequence), nil
}

// TxEnv returns Tx.
func (s *Secrets) TxEnv() TxEnv {
	return s.Tx
}

// noSecrets is used for dissatisfactions, which never need secrets.
type noSecrets struct{}

func (noSecrets) Sign(Key) ([]byte, bool)                  { return nil, false }
func (noSecrets) Preimage(HashKind, []byte) ([]byte, bool) { return nil, false }
func (noSecrets) CheckOlder(uint32) (bool, error)          { return false, nil }
func (noSecrets) CheckAfter(uint32) (bool, error)          { return false, nil }
func (noSecrets) TxEnv() TxEnv                             { return nil }
