// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
)

// satisfaction is a struct based on `InputStack` of the Bitcoin Core
// implementation at
// https://github.com/bitcoin/bitcoin/blob/a13f374/src/script/miniscript.cpp
type satisfaction struct {
	// witness is a list of data elements that will be pushed onto the
	// witness stack.
	witness wire.TxWitness

	// available, if false, indicates there is no valid satisfaction (i.e.
	// private key or hash preimage not available, time lock not yet valid,
	// generally not satisfiable, etc.).
	available bool

	// malleable, if true, indicates the satisfaction is malleable by a
	// third party.
	malleable bool

	// hasSig indicates this satisfaction requires a signature, which means
	// a third party cannot malleate this satisfaction even if `malleable`
	// is true. If `malleable` and `hasSig` is true, only we (the
	// key-holders) can malleate this satisfaction.
	hasSig bool
}

func (s *satisfaction) setAvailable(available bool) *satisfaction {
	c := *s
	c.available = available
	return &c
}

func (s *satisfaction) withSig() *satisfaction {
	c := *s
	c.hasSig = true
	return &c
}

func (s *satisfaction) setMalleable(malleable bool) *satisfaction {
	c := *s
	c.malleable = malleable
	return &c
}

// and concatenates two satisfactions. The elements of b end up on top of
// the stack.
func (s *satisfaction) and(b *satisfaction) *satisfaction {
	witness := append(wire.TxWitness{}, s.witness...)
	return &satisfaction{
		witness:   append(witness, b.witness...),
		available: s.available && b.available,
		malleable: s.malleable || b.malleable,
		hasSig:    s.hasSig || b.hasSig,
	}
}

// or picks the better of two alternative satisfactions.
func (s *satisfaction) or(b *satisfaction) *satisfaction {
	// If only one (or neither) is valid, pick the other one.
	if !s.available {
		return b
	}
	if !b.available {
		return s
	}
	// If only one of the solutions has a signature, we must pick the other
	// one.
	if !s.hasSig && b.hasSig {
		return s
	}
	if s.hasSig && !b.hasSig {
		return b
	}
	if !s.hasSig && !b.hasSig {
		// If neither solution requires a signature, the result is
		// inevitably malleable.
		s = s.setMalleable(true)
		b = b.setMalleable(true)
	} else {
		// If both options require a signature, prefer the non-malleable
		// one.
		if b.malleable && !s.malleable {
			return s
		}
		if s.malleable && !b.malleable {
			return b
		}
	}

	// Both available, pick the smaller one.
	if s.witness.SerializeSize() <= b.witness.SerializeSize() {
		return s
	}
	return b
}

type satisfactions struct {
	dsat, sat *satisfaction
}

func zero() *satisfaction {
	// Empty data translates to OP_0/OP_FALSE (push zero bytes).
	return &satisfaction{witness: wire.TxWitness{{}}, available: true}
}

func one() *satisfaction {
	return &satisfaction{witness: wire.TxWitness{{1}}, available: true}
}

func empty() *satisfaction {
	return &satisfaction{witness: wire.TxWitness{}, available: true}
}

func unavailable() *satisfaction {
	return &satisfaction{}
}

func witness(w []byte) *satisfaction {
	return &satisfaction{witness: wire.TxWitness{w}, available: true}
}

// satisfier walks a fragment, querying the secret source and recording every
// requirement that turned out to be unavailable.
type satisfier struct {
	src     SecretSource
	missing []Requirement
}

func (s *satisfier) require(r Requirement) {
	s.missing = append(s.missing, r)
}

func (s *satisfier) sign(key Key) *satisfaction {
	sig, available := s.src.Sign(key)
	if !available {
		s.require(Requirement{Kind: RequireSignature, Key: key})
		return unavailable().withSig()
	}
	return witness(sig).withSig()
}

// Satisfy produces the smallest non-malleable witness satisfying the
// fragment with the secrets of src. The witness is ordered bottom to top of
// the stack and does not include the script itself.
//
// If no satisfaction exists, the error is a *NotSatisfiableError listing
// the missing requirements. Fragments whose type is not non-malleable, and
// fragments for which only malleable satisfactions exist, are refused with
// an Error of kind ErrMalleableSatisfaction.
func Satisfy(f *Fragment, src SecretSource) (wire.TxWitness, error) {
	typ, err := f.Type()
	if err != nil {
		return nil, err
	}
	if !typ.NonMalleable() {
		return nil, fragmentErrorf(ErrMalleableSatisfaction, "`%s` "+
			"of type %s is not malleability-safe", f, typ)
	}
	s := &satisfier{src: src}
	sats, err := s.satisfy(f)
	if err != nil {
		return nil, err
	}
	if !sats.sat.available {
		log.Debugf("No satisfaction for %s, %d missing requirements",
			f, len(s.missing))
		return nil, &NotSatisfiableError{
			Fragment: f.String(),
			Missing:  s.missing,
		}
	}
	if sats.sat.malleable {
		return nil, fragmentErrorf(ErrMalleableSatisfaction, "all "+
			"satisfactions of `%s` with the available secrets are "+
			"malleable", f)
	}
	log.Tracef("Satisfaction of %s: %v", f, newLogClosure(func() string {
		return spew.Sdump(sats.sat.witness)
	}))
	return sats.sat.witness, nil
}

// Dissatisfy produces the canonical dissatisfaction of the fragment. It
// never requires secrets.
func Dissatisfy(f *Fragment) (wire.TxWitness, error) {
	if _, err := f.Type(); err != nil {
		return nil, err
	}
	s := &satisfier{src: noSecrets{}}
	sats, err := s.satisfy(f)
	if err != nil {
		return nil, err
	}
	if !sats.dsat.available {
		return nil, fragmentErrorf(ErrNotDissatisfiable, "`%s` has no "+
			"dissatisfaction", f)
	}
	return sats.dsat.witness, nil
}

// satisfy computes the best satisfaction and the canonical dissatisfaction
// of a node. It is based on `ProduceInput()` of the Bitcoin Core
// implementation at:
// https://github.com/bitcoin/bitcoin/blob/a13f374/src/script/miniscript.h#L850
func (s *satisfier) satisfy(node *Fragment) (*satisfactions, error) {
	sats, err := s.produce(node)
	if err != nil {
		return nil, err
	}

	// A dissatisfaction of a node without the e property is not unique,
	// so a third party may replace it unless it is bound by a signature.
	if !node.typ.props.e && sats.dsat.available && !sats.dsat.hasSig {
		sats.dsat = sats.dsat.setMalleable(true)
	}
	return sats, nil
}

func (s *satisfier) subs(node *Fragment) ([]*satisfactions, error) {
	result := make([]*satisfactions, len(node.subs))
	for i, sub := range node.subs {
		sats, err := s.satisfy(sub)
		if err != nil {
			return nil, err
		}
		result[i] = sats
	}
	return result, nil
}

func (s *satisfier) produce(node *Fragment) (*satisfactions, error) {
	switch node.kind {
	case KindFalse:
		return &satisfactions{dsat: empty(), sat: unavailable()}, nil

	case KindTrue:
		return &satisfactions{dsat: unavailable(), sat: empty()}, nil

	case KindPkK:
		return &satisfactions{
			dsat: zero(),
			sat:  s.sign(node.keys[0]),
		}, nil

	case KindPkH:
		key := node.keys[0]
		keyBytes, err := key.PubKeyBytes()
		if err != nil {
			return nil, err
		}
		return &satisfactions{
			dsat: zero().and(witness(keyBytes)),
			sat:  s.sign(key).and(witness(keyBytes)),
		}, nil

	case KindOlder, KindAfter:
		var (
			satisfied bool
			err       error
			kind      = RequireOlder
		)
		if node.kind == KindOlder {
			// BIP112 - OP_CHECKSEQUENCEVERIFY
			satisfied, err = s.src.CheckOlder(node.k)
		} else {
			// BIP65 - OP_CHECKLOCKTIMEVERIFY
			satisfied, err = s.src.CheckAfter(node.k)
			kind = RequireAfter
		}
		if err != nil {
			return nil, err
		}
		if !satisfied {
			s.require(Requirement{Kind: kind, Lock: node.k})
			return &satisfactions{
				dsat: unavailable(),
				sat:  unavailable(),
			}, nil
		}
		return &satisfactions{dsat: unavailable(), sat: empty()}, nil

	case KindSha256, KindHash256, KindRipemd160, KindHash160:
		hashKind, _ := node.kind.hashKind()
		preimage, available := s.src.Preimage(hashKind, node.hash)
		if available && len(preimage) != preimageLen {
			return nil, fragmentErrorf(ErrMalformedFragment, "length "+
				"of %s preimage of %x expected to be %d, got %d",
				hashKind, node.hash, preimageLen, len(preimage))
		}
		if !available {
			s.require(Requirement{
				Kind:     RequirePreimage,
				HashKind: hashKind,
				Hash:     node.hash,
			})
		}
		return &satisfactions{
			// Preimage 0x0000... is assumed invalid.
			dsat: witness(make([]byte, preimageLen)).setMalleable(true),
			sat:  witness(preimage).setAvailable(available),
		}, nil

	case KindMulti:
		// sigs[j] is the best satisfaction with j signatures of the
		// keys seen so far, on top of the dummy element consumed by
		// OP_CHECKMULTISIG. Signatures are in key order.
		sigs := []*satisfaction{zero()}
		for _, key := range node.keys {
			sig := s.sign(key)
			next := make([]*satisfaction, len(sigs)+1)
			next[0] = sigs[0]
			for j := 1; j < len(sigs); j++ {
				next[j] = sigs[j].or(sigs[j-1].and(sig))
			}
			next[len(sigs)] = sigs[len(sigs)-1].and(sig)
			sigs = next
		}
		// The canonical dissatisfaction pushes k+1 empty elements.
		dsat := zero()
		for i := uint32(0); i < node.k; i++ {
			dsat = dsat.and(zero())
		}
		return &satisfactions{dsat: dsat, sat: sigs[node.k]}, nil

	case KindExt:
		env := s.src.TxEnv()
		satisfied, err := node.ext.Satisfied(env)
		if err != nil {
			return nil, err
		}
		if !satisfied {
			s.require(Requirement{
				Kind:      RequireExtension,
				Extension: extString(node.ext),
			})
		}
		dsat := unavailable()
		if node.ext.Type().props.d && env != nil && !satisfied {
			dsat = empty()
		}
		return &satisfactions{
			dsat: dsat,
			sat:  empty().setAvailable(satisfied),
		}, nil
	}

	subs, err := s.subs(node)
	if err != nil {
		return nil, err
	}

	switch node.kind {
	case KindAndOr:
		x, y, z := subs[0], subs[1], subs[2]
		return &satisfactions{
			dsat: z.dsat.and(x.dsat),
			sat:  y.sat.and(x.sat).or(z.sat.and(x.dsat)),
		}, nil

	case KindAndV:
		x, y := subs[0], subs[1]
		return &satisfactions{
			dsat: unavailable(),
			sat:  y.sat.and(x.sat),
		}, nil

	case KindAndB:
		x, y := subs[0], subs[1]
		return &satisfactions{
			dsat: y.dsat.and(x.dsat),
			sat:  y.sat.and(x.sat),
		}, nil

	case KindOrB:
		x, z := subs[0], subs[1]
		return &satisfactions{
			dsat: z.dsat.and(x.dsat),
			sat: z.dsat.and(x.sat).or(
				z.sat.and(x.dsat),
			).or(
				z.sat.and(x.sat).setMalleable(true),
			),
		}, nil

	case KindOrC:
		x, z := subs[0], subs[1]
		return &satisfactions{
			dsat: unavailable(),
			sat:  x.sat.or(z.sat.and(x.dsat)),
		}, nil

	case KindOrD:
		x, z := subs[0], subs[1]
		return &satisfactions{
			dsat: z.dsat.and(x.dsat),
			sat:  x.sat.or(z.sat.and(x.dsat)),
		}, nil

	case KindOrI:
		x, z := subs[0], subs[1]
		return &satisfactions{
			dsat: x.dsat.and(one()).or(z.dsat.and(zero())),
			sat:  x.sat.and(one()).or(z.sat.and(zero())),
		}, nil

	case KindThresh:
		// Every choice of k satisfied subexpressions is tried and the
		// others are dissatisfied. The first subexpression is executed
		// first, so its witness ends up on top.
		dsat := empty()
		for i := len(subs) - 1; i >= 0; i-- {
			dsat = dsat.and(subs[i].dsat)
		}
		sat := unavailable()
		forEachSubset(len(subs), int(node.k), func(chosen []bool) {
			for i, sub := range subs {
				if chosen[i] && !sub.sat.available {
					return
				}
				if !chosen[i] && !sub.dsat.available {
					return
				}
			}
			w := empty()
			for i := len(subs) - 1; i >= 0; i-- {
				if chosen[i] {
					w = w.and(subs[i].sat)
				} else {
					w = w.and(subs[i].dsat)
				}
			}
			sat = sat.or(w)
		})
		return &satisfactions{dsat: dsat, sat: sat}, nil

	case KindWrapA, KindWrapS, KindWrapC, KindWrapN:
		return subs[0], nil

	case KindWrapD:
		return &satisfactions{
			dsat: zero(),
			sat:  subs[0].sat.and(one()),
		}, nil

	case KindWrapV:
		return &satisfactions{
			dsat: unavailable(),
			sat:  subs[0].sat,
		}, nil

	case KindWrapJ:
		x := subs[0]
		return &satisfactions{
			dsat: zero().setMalleable(
				x.dsat.available && !x.dsat.hasSig,
			),
			sat: x.sat,
		}, nil
	}

	return nil, fragmentErrorf(ErrMalformedFragment, "unrecognized "+
		"fragment: %s", node.kind)
}

// forEachSubset calls fn once for every way of choosing k out of n
// elements, in lexicographic order of the chosen indices. The slice passed
// to fn is reused between calls.
func forEachSubset(n, k int, fn func(chosen []bool)) {
	chosen := make([]bool, n)
	var choose func(start, left int)
	choose = func(start, left int) {
		if left == 0 {
			fn(chosen)
			return
		}
		for i := start; i <= n-left; i++ {
			chosen[i] = true
			choose(i+1, left-1)
			chosen[i] = false
		}
	}
	choose(0, k)
}
