// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"strings"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// BasicType is the correctness type of a fragment, describing what it leaves
// on the stack.
type BasicType uint8

const (
	// TypeB pushes a nonzero value on satisfaction and an exact 0 on
	// dissatisfaction.
	TypeB BasicType = iota

	// TypeV pushes nothing on satisfaction and cannot be dissatisfied.
	TypeV

	// TypeK pushes a public key for a signature check.
	TypeK

	// TypeW takes its input from one below the top of the stack and
	// otherwise behaves like B.
	TypeW
)

// String returns the single letter name of the basic type.
func (b BasicType) String() string {
	switch b {
	case TypeB:
		return "B"
	case TypeV:
		return "V"
	case TypeK:
		return "K"
	case TypeW:
		return "W"
	}
	return "?"
}

type properties struct {
	// Basic type properties.
	z, o, n, d, u bool

	// Malleability properties.
	// If `m`, a non-malleable satisfaction is guaranteed to exist.
	// The purpose of s/f/e is only to compute `m` and can be disregarded
	// afterward.
	m, s, f, e bool

	// canCollapseVerify is set if the rightmost script byte produced by
	// this node is OP_EQUAL, OP_CHECKSIG or OP_CHECKMULTISIG, so that a
	// v: wrapper can use the VERIFY version of the opcode.
	canCollapseVerify bool
}

func (p properties) String() string {
	s := strings.Builder{}
	for _, prop := range []struct {
		set  bool
		name rune
	}{
		{p.z, 'z'}, {p.o, 'o'}, {p.n, 'n'}, {p.d, 'd'}, {p.u, 'u'},
		{p.m, 'm'}, {p.s, 's'}, {p.f, 'f'}, {p.e, 'e'},
	} {
		if prop.set {
			s.WriteRune(prop.name)
		}
	}
	return s.String()
}

// TimelockInfo records which classes of timelocks a fragment may require.
type TimelockInfo struct {
	CSVHeight  bool
	CSVTime    bool
	CLTVHeight bool
	CLTVTime   bool
}

func (t TimelockInfo) union(o TimelockInfo) TimelockInfo {
	return TimelockInfo{
		CSVHeight:  t.CSVHeight || o.CSVHeight,
		CSVTime:    t.CSVTime || o.CSVTime,
		CLTVHeight: t.CLTVHeight || o.CLTVHeight,
		CLTVTime:   t.CLTVTime || o.CLTVTime,
	}
}

// mixedWith returns the timelock family that would be mixed if both t and o
// had to be satisfied together, or the empty string.
func (t TimelockInfo) mixedWith(o TimelockInfo) string {
	if (t.CLTVHeight && o.CLTVTime) || (t.CLTVTime && o.CLTVHeight) {
		return "after"
	}
	if (t.CSVHeight && o.CSVTime) || (t.CSVTime && o.CSVHeight) {
		return "older"
	}
	return ""
}

// Type is the type of a well typed fragment: its basic type, its
// correctness and malleability properties and its timelock classes.
type Type struct {
	basic     BasicType
	props     properties
	timelocks TimelockInfo
}

// NewType creates a terminal type from a basic type and a string of
// property letters out of "zondumsfe" plus "x" if the last opcode of the
// terminal can be turned into its VERIFY version. It is used by extensions
// to declare their type.
func NewType(basic BasicType, props string) (Type, error) {
	t := Type{basic: basic}
	for _, c := range props {
		switch c {
		case 'z':
			t.props.z = true
		case 'o':
			t.props.o = true
		case 'n':
			t.props.n = true
		case 'd':
			t.props.d = true
		case 'u':
			t.props.u = true
		case 'm':
			t.props.m = true
		case 's':
			t.props.s = true
		case 'f':
			t.props.f = true
		case 'e':
			t.props.e = true
		case 'x':
			t.props.canCollapseVerify = true
		default:
			return Type{}, fragmentErrorf(ErrTypeCheck, "unknown "+
				"type property %q", c)
		}
	}
	return t, nil
}

// Basic returns the correctness type.
func (t Type) Basic() BasicType { return t.basic }

// ZeroArg reports the z property: the fragment consumes no stack elements.
func (t Type) ZeroArg() bool { return t.props.z }

// OneArg reports the o property: the fragment consumes exactly one stack
// element.
func (t Type) OneArg() bool { return t.props.o }

// NonZero reports the n property: the top input is never zero on
// satisfaction.
func (t Type) NonZero() bool { return t.props.n }

// Dissatisfiable reports the d property: a canonical dissatisfaction
// exists.
func (t Type) Dissatisfiable() bool { return t.props.d }

// Unit reports the u property: satisfaction pushes exactly 1.
func (t Type) Unit() bool { return t.props.u }

// NonMalleable reports the m property: a non-malleable satisfaction is
// guaranteed to exist.
func (t Type) NonMalleable() bool { return t.props.m }

// NeedsSignature reports the s property: every satisfaction requires a
// signature.
func (t Type) NeedsSignature() bool { return t.props.s }

// Forced reports the f property: no dissatisfaction exists without a
// signature.
func (t Type) Forced() bool { return t.props.f }

// Expressive reports the e property: the dissatisfaction is unique and
// non-malleable.
func (t Type) Expressive() bool { return t.props.e }

// Timelocks returns the timelock classes the fragment may require.
func (t Type) Timelocks() TimelockInfo { return t.timelocks }

// CanCollapseVerify reports whether the last opcode can be merged with a
// following VERIFY.
func (t Type) CanCollapseVerify() bool { return t.props.canCollapseVerify }

// String returns the basic type followed by all properties, e.g. "Bondusme".
func (t Type) String() string {
	return t.basic.String() + t.props.String()
}

// expectBasicType is a helper function to check that a subexpression has a
// specific type.
func expectBasicType(parent *Fragment, arg *Fragment, idx int,
	typ BasicType) error {

	if arg.typ.basic != typ {
		return fragmentErrorf(ErrTypeCheck, "argument %d of `%s` "+
			"expected to have type %s, but `%s` is type %s", idx,
			parent, typ, arg, arg.typ.basic)
	}
	return nil
}

func expectProps(parent *Fragment, arg *Fragment, idx int,
	props string) error {

	p := arg.typ.props
	for _, c := range props {
		ok := true
		switch c {
		case 'd':
			ok = p.d
		case 'u':
			ok = p.u
		case 'z':
			ok = p.z
		case 'o':
			ok = p.o
		case 'n':
			ok = p.n
		}
		if !ok {
			return fragmentErrorf(ErrTypeCheck, "argument %d of "+
				"`%s` must have property %c, but `%s` is %s",
				idx, parent, c, arg, arg.typ)
		}
	}
	return nil
}

func expectBKV(parent *Fragment, arg *Fragment, idx int) error {
	switch arg.typ.basic {
	case TypeB, TypeK, TypeV:
		return nil
	}
	return fragmentErrorf(ErrTypeCheck, "argument %d of `%s` must be "+
		"of type B, K or V, but `%s` is type %s", idx, parent, arg,
		arg.typ.basic)
}

func expectSameType(parent *Fragment, a, b *Fragment) error {
	if a.typ.basic != b.typ.basic {
		return fragmentErrorf(ErrTypeCheck, "branches of `%s` have "+
			"different types %s and %s", parent, a.typ.basic,
			b.typ.basic)
	}
	return nil
}

// computeType type checks a node whose children are already typed. The
// first error of the children in left-to-right order is propagated.
func computeType(node *Fragment) (Type, error) {
	for _, sub := range node.subs {
		if sub.typErr != nil {
			return Type{}, sub.typErr
		}
	}

	var t Type
	if err := correctnessCheck(node, &t); err != nil {
		return Type{}, err
	}
	malleabilityCheck(node, &t)
	if err := timelockCheck(node, &t); err != nil {
		return Type{}, err
	}
	return t, nil
}

// correctnessCheck sets the basic type and the properties z, o, n, d, u
// and canCollapseVerify.
func correctnessCheck(node *Fragment, t *Type) error {
	p := &t.props
	switch node.kind {
	case KindFalse:
		t.basic = TypeB
		p.z, p.u, p.d = true, true, true

	case KindTrue:
		t.basic = TypeB
		p.z, p.u = true, true

	case KindPkK:
		t.basic = TypeK
		p.o, p.n, p.d, p.u = true, true, true, true

	case KindPkH:
		t.basic = TypeK
		p.n, p.d, p.u = true, true, true

	case KindOlder, KindAfter:
		t.basic = TypeB
		p.z = true

	case KindSha256, KindHash256, KindRipemd160, KindHash160:
		t.basic = TypeB
		p.o, p.n, p.d, p.u = true, true, true, true
		p.canCollapseVerify = true

	case KindMulti:
		t.basic = TypeB
		p.n, p.d, p.u = true, true, true
		p.canCollapseVerify = true

	case KindExt:
		ext := node.ext.Type()
		t.basic = ext.basic
		*p = ext.props

	case KindAndOr:
		x, y, z := node.subs[0], node.subs[1], node.subs[2]
		if err := expectBasicType(node, x, 0, TypeB); err != nil {
			return err
		}
		if err := expectProps(node, x, 0, "du"); err != nil {
			return err
		}
		if err := expectBKV(node, y, 1); err != nil {
			return err
		}
		if err := expectSameType(node, y, z); err != nil {
			return err
		}
		xp, yp, zp := x.typ.props, y.typ.props, z.typ.props
		t.basic = y.typ.basic
		p.z = xp.z && yp.z && zp.z
		p.o = (xp.z && yp.o && zp.o) || (xp.o && yp.z && zp.z)
		p.u = yp.u && zp.u
		p.d = zp.d

	case KindAndV:
		x, y := node.subs[0], node.subs[1]
		if err := expectBasicType(node, x, 0, TypeV); err != nil {
			return err
		}
		if err := expectBKV(node, y, 1); err != nil {
			return err
		}
		xp, yp := x.typ.props, y.typ.props
		t.basic = y.typ.basic
		p.z = xp.z && yp.z
		p.o = (xp.z && yp.o) || (yp.z && xp.o)
		p.n = xp.n || (xp.z && yp.n)
		p.u = yp.u
		p.canCollapseVerify = yp.canCollapseVerify

	case KindAndB:
		x, y := node.subs[0], node.subs[1]
		if err := expectBasicType(node, x, 0, TypeB); err != nil {
			return err
		}
		if err := expectBasicType(node, y, 1, TypeW); err != nil {
			return err
		}
		xp, yp := x.typ.props, y.typ.props
		t.basic = TypeB
		p.z = xp.z && yp.z
		p.o = (xp.z && yp.o) || (yp.z && xp.o)
		p.n = xp.n || (xp.z && yp.n)
		p.d = xp.d && yp.d
		p.u = true

	case KindOrB:
		x, z := node.subs[0], node.subs[1]
		if err := expectBasicType(node, x, 0, TypeB); err != nil {
			return err
		}
		if err := expectProps(node, x, 0, "d"); err != nil {
			return err
		}
		if err := expectBasicType(node, z, 1, TypeW); err != nil {
			return err
		}
		if err := expectProps(node, z, 1, "d"); err != nil {
			return err
		}
		xp, zp := x.typ.props, z.typ.props
		t.basic = TypeB
		p.z = xp.z && zp.z
		p.o = (xp.z && zp.o) || (zp.z && xp.o)
		p.d, p.u = true, true

	case KindOrC:
		x, z := node.subs[0], node.subs[1]
		if err := expectBasicType(node, x, 0, TypeB); err != nil {
			return err
		}
		if err := expectProps(node, x, 0, "du"); err != nil {
			return err
		}
		if err := expectBasicType(node, z, 1, TypeV); err != nil {
			return err
		}
		xp, zp := x.typ.props, z.typ.props
		t.basic = TypeV
		p.z = xp.z && zp.z
		p.o = xp.o && zp.z

	case KindOrD:
		x, z := node.subs[0], node.subs[1]
		if err := expectBasicType(node, x, 0, TypeB); err != nil {
			return err
		}
		if err := expectProps(node, x, 0, "du"); err != nil {
			return err
		}
		if err := expectBasicType(node, z, 1, TypeB); err != nil {
			return err
		}
		xp, zp := x.typ.props, z.typ.props
		t.basic = TypeB
		p.z = xp.z && zp.z
		p.o = xp.o && zp.z
		p.d = zp.d
		p.u = zp.u

	case KindOrI:
		x, z := node.subs[0], node.subs[1]
		if err := expectBKV(node, x, 0); err != nil {
			return err
		}
		if err := expectSameType(node, x, z); err != nil {
			return err
		}
		xp, zp := x.typ.props, z.typ.props
		t.basic = x.typ.basic
		p.o = xp.z && zp.z
		p.u = xp.u && zp.u
		p.d = xp.d || zp.d

	case KindThresh:
		// X1 is Bdu, the others are Wdu.
		numZ, numO := 0, 0
		for i, sub := range node.subs {
			want := TypeW
			if i == 0 {
				want = TypeB
			}
			if err := expectBasicType(node, sub, i+1, want); err != nil {
				return err
			}
			if err := expectProps(node, sub, i+1, "du"); err != nil {
				return err
			}
			switch {
			case sub.typ.props.z:
				numZ++
			case sub.typ.props.o:
				numO++
			}
		}
		n := len(node.subs)
		t.basic = TypeB
		p.z = numZ == n
		p.o = numZ == n-1 && numO == 1
		p.d, p.u = true, true
		p.canCollapseVerify = true

	case KindWrapA:
		x := node.subs[0]
		if err := expectBasicType(node, x, 0, TypeB); err != nil {
			return err
		}
		t.basic = TypeW
		p.d = x.typ.props.d
		p.u = x.typ.props.u

	case KindWrapS:
		x := node.subs[0]
		if err := expectBasicType(node, x, 0, TypeB); err != nil {
			return err
		}
		if err := expectProps(node, x, 0, "o"); err != nil {
			return err
		}
		t.basic = TypeW
		p.d = x.typ.props.d
		p.u = x.typ.props.u
		p.canCollapseVerify = x.typ.props.canCollapseVerify

	case KindWrapC:
		x := node.subs[0]
		if err := expectBasicType(node, x, 0, TypeK); err != nil {
			return err
		}
		xp := x.typ.props
		t.basic = TypeB
		p.o, p.n, p.d = xp.o, xp.n, xp.d
		p.u = true
		p.canCollapseVerify = true

	case KindWrapD:
		x := node.subs[0]
		if err := expectBasicType(node, x, 0, TypeV); err != nil {
			return err
		}
		if err := expectProps(node, x, 0, "z"); err != nil {
			return err
		}
		t.basic = TypeB
		p.o, p.n, p.d = true, true, true

	case KindWrapV:
		x := node.subs[0]
		if err := expectBasicType(node, x, 0, TypeB); err != nil {
			return err
		}
		xp := x.typ.props
		t.basic = TypeV
		p.z, p.o, p.n = xp.z, xp.o, xp.n

	case KindWrapJ:
		x := node.subs[0]
		if err := expectBasicType(node, x, 0, TypeB); err != nil {
			return err
		}
		if err := expectProps(node, x, 0, "n"); err != nil {
			return err
		}
		xp := x.typ.props
		t.basic = TypeB
		p.o, p.n, p.u = xp.o, true, xp.u
		p.d = true

	case KindWrapN:
		x := node.subs[0]
		if err := expectBasicType(node, x, 0, TypeB); err != nil {
			return err
		}
		xp := x.typ.props
		t.basic = TypeB
		p.z, p.o, p.n, p.d = xp.z, xp.o, xp.n, xp.d
		p.u = true

	default:
		return fragmentErrorf(ErrTypeCheck, "unknown fragment kind %d",
			node.kind)
	}
	return nil
}

// malleabilityCheck sets the properties m, s, f and e.
func malleabilityCheck(node *Fragment, t *Type) {
	p := &t.props
	switch node.kind {
	case KindFalse:
		p.s, p.e, p.m = true, true, true

	case KindTrue:
		p.f, p.m = true, true

	case KindPkK, KindPkH, KindMulti:
		p.s, p.e, p.m = true, true, true

	case KindOlder, KindAfter:
		p.f, p.m = true, true

	case KindSha256, KindHash256, KindRipemd160, KindHash160:
		p.m = true

	case KindExt:
		// Declared by the extension.

	case KindAndOr:
		x, y, z := node.subs[0].typ.props, node.subs[1].typ.props,
			node.subs[2].typ.props
		p.s = z.s && (x.s || y.s)
		p.f = z.f && (x.s || y.f)
		p.e = x.e && z.e && (x.s || y.f)
		p.m = x.m && y.m && z.m && x.e && (x.s || y.f)

	case KindAndV:
		x, y := node.subs[0].typ.props, node.subs[1].typ.props
		p.s = x.s || y.s
		p.f = x.s || y.f
		p.m = x.m && y.m

	case KindAndB:
		x, y := node.subs[0].typ.props, node.subs[1].typ.props
		p.s = x.s || y.s
		p.f = (x.f && y.f) || (x.s && x.f) || (y.s && y.f)
		p.e = x.e && y.e && x.s && y.s
		p.m = x.m && y.m

	case KindOrB:
		x, z := node.subs[0].typ.props, node.subs[1].typ.props
		p.s = x.s && z.s
		p.e = x.e && z.e
		p.m = x.m && z.m && x.e && z.e && (x.s || z.s)

	case KindOrC:
		x, z := node.subs[0].typ.props, node.subs[1].typ.props
		p.s = x.s && z.s
		p.f = true
		p.m = x.m && z.m && x.e && (x.s || z.s)

	case KindOrD:
		x, z := node.subs[0].typ.props, node.subs[1].typ.props
		p.s = x.s && z.s
		p.f = z.f
		p.e = z.e
		p.m = x.m && z.m && x.e && (x.s || z.s)

	case KindOrI:
		x, z := node.subs[0].typ.props, node.subs[1].typ.props
		p.s = x.s && z.s
		p.f = x.f && z.f
		p.e = (x.e && z.f) || (z.e && x.f)
		p.m = x.m && z.m && (x.s || z.s)

	case KindThresh:
		allE, allM, allS := true, true, true
		numS := 0
		for _, sub := range node.subs {
			sp := sub.typ.props
			allE = allE && sp.e
			allM = allM && sp.m
			allS = allS && sp.s
			if sp.s {
				numS++
			}
		}
		n, k := len(node.subs), int(node.k)
		p.s = n-numS <= k-1
		p.e = allE && allS
		p.m = allE && allM && n-numS <= k

	case KindWrapA, KindWrapS, KindWrapC, KindWrapN:
		x := node.subs[0].typ.props
		p.f, p.e, p.m = x.f, x.e, x.m
		p.s = x.s
		if node.kind == KindWrapC {
			p.s = true
		}

	case KindWrapD:
		x := node.subs[0].typ.props
		p.s, p.m = x.s, x.m
		p.e = x.f

	case KindWrapV:
		x := node.subs[0].typ.props
		p.s, p.m = x.s, x.m
		p.f = true

	case KindWrapJ:
		x := node.subs[0].typ.props
		p.s, p.m = x.s, x.m
		p.e = x.f
	}
}

// timelockClasses returns the timelock class of a single older or after
// value.
func timelockClasses(kind Kind, n uint32) TimelockInfo {
	switch kind {
	case KindAfter:
		if n < txscript.LockTimeThreshold {
			return TimelockInfo{CLTVHeight: true}
		}
		return TimelockInfo{CLTVTime: true}

	case KindOlder:
		if n&wire.SequenceLockTimeIsSeconds != 0 {
			return TimelockInfo{CSVTime: true}
		}
		return TimelockInfo{CSVHeight: true}
	}
	return TimelockInfo{}
}

// timelockCheck computes the timelock classes of the node and rejects
// conjunctions that require a height and a time lock of the same family.
func timelockCheck(node *Fragment, t *Type) error {
	switch node.kind {
	case KindOlder, KindAfter:
		t.timelocks = timelockClasses(node.kind, node.k)
		return nil

	case KindAndV, KindAndB:
		return combineTimelocks(node, t, 2, node.subs)

	case KindAndOr:
		// X and Y are satisfied together, Z is an alternative.
		var both Type
		if err := combineTimelocks(node, &both, 2,
			node.subs[:2]); err != nil {

			return err
		}
		t.timelocks = both.timelocks.union(
			node.subs[2].typ.timelocks,
		)
		return nil

	case KindThresh:
		return combineTimelocks(node, t, int(node.k), node.subs)

	default:
		for _, sub := range node.subs {
			t.timelocks = t.timelocks.union(sub.typ.timelocks)
		}
		return nil
	}
}

func combineTimelocks(node *Fragment, t *Type, k int,
	subs []*Fragment) error {

	var acc TimelockInfo
	for _, sub := range subs {
		if k > 1 {
			if family := acc.mixedWith(sub.typ.timelocks); family != "" {
				return &TimelockMixError{
					Fragment: node.String(),
					Family:   family,
				}
			}
		}
		acc = acc.union(sub.typ.timelocks)
	}
	t.timelocks = acc
	return nil
}

// TypeCheck returns the type of the fragment or the first type error found
// in post-order, left-to-right traversal.
func TypeCheck(f *Fragment) (Type, error) {
	return f.Type()
}
