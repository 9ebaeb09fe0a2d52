// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package policy

import (
	"github.com/btcsuite/elementsminiscript/miniscript"
)

// Lift returns the spending policy implemented by a miniscript. Wrappers are
// dropped, andor(X,Y,Z) becomes or(and(X,Y),Z) and multi becomes a thresh
// of keys. Branches that are trivially true or unsatisfiable are folded
// away, so lifting and_n(X,Y) gives and(X,Y).
func Lift(f *miniscript.Fragment) (*Policy, error) {
	subs := f.Subs()
	lift := func(fs ...*miniscript.Fragment) ([]*Policy, error) {
		result := make([]*Policy, len(fs))
		for i, sub := range fs {
			p, err := Lift(sub)
			if err != nil {
				return nil, err
			}
			result[i] = p
		}
		return result, nil
	}

	switch kind := f.Kind(); kind {
	case miniscript.KindFalse:
		return Unsatisfiable(), nil

	case miniscript.KindTrue:
		return Trivial(), nil

	case miniscript.KindPkK, miniscript.KindPkH:
		return NewKey(f.Keys()[0])

	case miniscript.KindOlder:
		return NewOlder(f.K())

	case miniscript.KindAfter:
		return NewAfter(f.K())

	case miniscript.KindSha256:
		return NewHash(miniscript.HashSha256, f.Hash())

	case miniscript.KindHash256:
		return NewHash(miniscript.HashHash256, f.Hash())

	case miniscript.KindRipemd160:
		return NewHash(miniscript.HashRipemd160, f.Hash())

	case miniscript.KindHash160:
		return NewHash(miniscript.HashHash160, f.Hash())

	case miniscript.KindExt:
		return NewExt(f.Extension())

	case miniscript.KindMulti:
		keys := f.Keys()
		ps := make([]*Policy, len(keys))
		for i, key := range keys {
			p, err := NewKey(key)
			if err != nil {
				return nil, err
			}
			ps[i] = p
		}
		return NewThresh(int(f.K()), ps)

	case miniscript.KindAndV, miniscript.KindAndB:
		ps, err := lift(subs...)
		if err != nil {
			return nil, err
		}
		return and(ps[0], ps[1])

	case miniscript.KindOrB, miniscript.KindOrC, miniscript.KindOrD,
		miniscript.KindOrI:

		ps, err := lift(subs...)
		if err != nil {
			return nil, err
		}
		return or(ps[0], ps[1])

	case miniscript.KindAndOr:
		ps, err := lift(subs...)
		if err != nil {
			return nil, err
		}
		left, err := and(ps[0], ps[1])
		if err != nil {
			return nil, err
		}
		return or(left, ps[2])

	case miniscript.KindThresh:
		ps, err := lift(subs...)
		if err != nil {
			return nil, err
		}
		return NewThresh(int(f.K()), ps)

	default:
		if kind.IsWrapper() {
			return Lift(subs[0])
		}
		return nil, policyErrorf(ErrMalformedPolicy, "cannot lift %s",
			f)
	}
}

// and folds trivial branches of a conjunction.
func and(x, y *Policy) (*Policy, error) {
	switch {
	case x.kind == KindUnsatisfiable || y.kind == KindUnsatisfiable:
		return Unsatisfiable(), nil
	case x.kind == KindTrivial:
		return y, nil
	case y.kind == KindTrivial:
		return x, nil
	}
	return NewAnd(x, y)
}

// or folds trivial branches of a disjunction.
func or(x, y *Policy) (*Policy, error) {
	switch {
	case x.kind == KindTrivial || y.kind == KindTrivial:
		return Trivial(), nil
	case x.kind == KindUnsatisfiable:
		return y, nil
	case y.kind == KindUnsatisfiable:
		return x, nil
	}
	return NewOr(x, y, 1, 1)
}
