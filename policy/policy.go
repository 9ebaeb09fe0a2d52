// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package policy implements concrete spending policies and their compilation
// into miniscript.
//
// A policy is an untyped boolean expression over the miniscript terminals:
//
//	pk(K) after(n) older(n) sha256(H) hash256(H) ripemd160(H) hash160(H)
//	and(X,Y) or([w@]X,[w@]Y) thresh(k,X1,...,Xn) UNSATISFIABLE TRIVIAL
//
// plus every registered miniscript extension. The optional weights of or
// express how likely each branch is to be used, e.g. or(9@pk(A),1@pk(B))
// tells the compiler that A signs nine times out of ten.
package policy

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/btcsuite/elementsminiscript/expression"
	"github.com/btcsuite/elementsminiscript/miniscript"
)

const (
	// maxLockTime is the exclusive upper bound for older and after
	// values.
	maxLockTime = 1 << 31

	// maxMultiKeys is the maximum number of keys of a multi fragment.
	maxMultiKeys = 20
)

// Kind identifies the type of a policy node.
type Kind uint8

// All policy node kinds.
const (
	KindUnsatisfiable Kind = iota
	KindTrivial
	KindKey
	KindAfter
	KindOlder
	KindHash
	KindExt
	KindAnd
	KindOr
	KindThresh
)

// Policy is a node of a concrete spending policy. Policies are immutable.
type Policy struct {
	kind Kind

	key      miniscript.Key
	lock     uint32
	hashKind miniscript.HashKind
	hash     []byte
	ext      miniscript.Extension

	// k is the threshold of thresh.
	k int

	subs []*Policy

	// weights are the relative probabilities of the branches of or.
	weights []uint32
}

// Unsatisfiable returns the policy that can never be satisfied.
func Unsatisfiable() *Policy {
	return &Policy{kind: KindUnsatisfiable}
}

// Trivial returns the policy that is always satisfied.
func Trivial() *Policy {
	return &Policy{kind: KindTrivial}
}

// NewKey returns a policy requiring a signature for key.
func NewKey(key miniscript.Key) (*Policy, error) {
	if key == nil {
		return nil, policyErrorf(ErrMalformedPolicy, "empty key")
	}
	return &Policy{kind: KindKey, key: key}, nil
}

func checkLockTime(name string, n uint32) error {
	if n == 0 || n >= maxLockTime {
		return policyErrorf(ErrMalformedPolicy, "%s(%d) out of range",
			name, n)
	}
	return nil
}

// NewAfter returns an absolute timelock policy.
func NewAfter(n uint32) (*Policy, error) {
	if err := checkLockTime("after", n); err != nil {
		return nil, err
	}
	return &Policy{kind: KindAfter, lock: n}, nil
}

// NewOlder returns a relative timelock policy.
func NewOlder(n uint32) (*Policy, error) {
	if err := checkLockTime("older", n); err != nil {
		return nil, err
	}
	return &Policy{kind: KindOlder, lock: n}, nil
}

// NewHash returns a policy requiring the preimage of digest.
func NewHash(kind miniscript.HashKind, digest []byte) (*Policy, error) {
	if len(digest) != kind.Size() {
		return nil, policyErrorf(ErrMalformedPolicy, "%s digest must "+
			"be %d bytes, got %d", kind, kind.Size(), len(digest))
	}
	return &Policy{
		kind:     KindHash,
		hashKind: kind,
		hash:     append([]byte(nil), digest...),
	}, nil
}

// NewExt returns a policy for an Elements extension terminal.
func NewExt(ext miniscript.Extension) (*Policy, error) {
	if ext == nil {
		return nil, policyErrorf(ErrMalformedPolicy, "empty extension")
	}
	return &Policy{kind: KindExt, ext: ext}, nil
}

// NewAnd returns the conjunction of x and y.
func NewAnd(x, y *Policy) (*Policy, error) {
	if x == nil || y == nil {
		return nil, policyErrorf(ErrMalformedPolicy, "and requires two "+
			"subpolicies")
	}
	return &Policy{kind: KindAnd, subs: []*Policy{x, y}}, nil
}

// NewOr returns the disjunction of x and y, where x is expected to be used
// wx times for every wy times y is used.
func NewOr(x, y *Policy, wx, wy uint32) (*Policy, error) {
	if x == nil || y == nil {
		return nil, policyErrorf(ErrMalformedPolicy, "or requires two "+
			"subpolicies")
	}
	if wx == 0 || wy == 0 {
		return nil, policyErrorf(ErrMalformedPolicy, "or weights must "+
			"be positive")
	}
	return &Policy{
		kind:    KindOr,
		subs:    []*Policy{x, y},
		weights: []uint32{wx, wy},
	}, nil
}

// NewThresh returns a policy satisfied by any k of subs.
func NewThresh(k int, subs []*Policy) (*Policy, error) {
	if len(subs) == 0 || k < 1 || k > len(subs) {
		return nil, policyErrorf(ErrMalformedPolicy, "invalid threshold "+
			"%d of %d", k, len(subs))
	}
	for _, sub := range subs {
		if sub == nil {
			return nil, policyErrorf(ErrMalformedPolicy, "empty "+
				"subpolicy of thresh")
		}
	}
	return &Policy{
		kind: KindThresh,
		k:    k,
		subs: append([]*Policy(nil), subs...),
	}, nil
}

// Kind returns the node kind.
func (p *Policy) Kind() Kind { return p.kind }

// Key returns the key of a key policy.
func (p *Policy) Key() miniscript.Key { return p.key }

// Lock returns the value of after and older.
func (p *Policy) Lock() uint32 { return p.lock }

// Hash returns the hash kind and digest of a hash policy.
func (p *Policy) Hash() (miniscript.HashKind, []byte) {
	return p.hashKind, p.hash
}

// Extension returns the extension of an extension policy.
func (p *Policy) Extension() miniscript.Extension { return p.ext }

// K returns the threshold of thresh.
func (p *Policy) K() int { return p.k }

// Subs returns the subpolicies. The slice must not be modified.
func (p *Policy) Subs() []*Policy { return p.subs }

// Weights returns the branch weights of or.
func (p *Policy) Weights() []uint32 { return p.weights }

// Keys returns all keys in order of appearance.
func (p *Policy) Keys() []miniscript.Key {
	var keys []miniscript.Key
	p.walk(func(node *Policy) {
		if node.kind == KindKey {
			keys = append(keys, node.key)
		}
	})
	return keys
}

func (p *Policy) walk(fn func(*Policy)) {
	fn(p)
	for _, sub := range p.subs {
		sub.walk(fn)
	}
}

// Depth returns the nesting depth. A terminal has depth 1.
func (p *Policy) Depth() int {
	depth := 0
	for _, sub := range p.subs {
		if d := sub.Depth(); d > depth {
			depth = d
		}
	}
	return depth + 1
}

// Leaves returns the number of terminals.
func (p *Policy) Leaves() int {
	if len(p.subs) == 0 {
		return 1
	}
	leaves := 0
	for _, sub := range p.subs {
		leaves += sub.Leaves()
	}
	return leaves
}

// String returns the canonical text form. Weights of 1 are omitted.
func (p *Policy) String() string {
	var b strings.Builder
	p.write(&b)
	return b.String()
}

func (p *Policy) write(b *strings.Builder) {
	switch p.kind {
	case KindUnsatisfiable:
		b.WriteString("UNSATISFIABLE")
	case KindTrivial:
		b.WriteString("TRIVIAL")
	case KindKey:
		b.WriteString("pk(" + p.key.String() + ")")
	case KindAfter:
		b.WriteString("after(" + strconv.FormatUint(uint64(p.lock), 10) +
			")")
	case KindOlder:
		b.WriteString("older(" + strconv.FormatUint(uint64(p.lock), 10) +
			")")
	case KindHash:
		b.WriteString(p.hashKind.String() + "(" +
			hex.EncodeToString(p.hash) + ")")
	case KindExt:
		b.WriteString(p.ext.Name() + "(" +
			strings.Join(p.ext.Args(), ",") + ")")
	case KindAnd:
		b.WriteString("and(")
		p.subs[0].write(b)
		b.WriteByte(',')
		p.subs[1].write(b)
		b.WriteByte(')')
	case KindOr:
		b.WriteString("or(")
		for i, sub := range p.subs {
			if i > 0 {
				b.WriteByte(',')
			}
			if p.weights[i] != 1 {
				b.WriteString(strconv.FormatUint(
					uint64(p.weights[i]), 10))
				b.WriteByte('@')
			}
			sub.write(b)
		}
		b.WriteByte(')')
	case KindThresh:
		b.WriteString("thresh(" + strconv.Itoa(p.k))
		for _, sub := range p.subs {
			b.WriteByte(',')
			sub.write(b)
		}
		b.WriteByte(')')
	}
}

// Equal returns true if both policies have the same canonical text.
func Equal(a, b *Policy) bool {
	return a.String() == b.String()
}

// Parse parses a policy with hex encoded keys or placeholder names.
func Parse(policy string) (*Policy, error) {
	return ParseWithKeys(policy, miniscript.ParseKey)
}

// ParseWithKeys parses a policy using parseKey for all key arguments.
func ParseWithKeys(policy string, parseKey miniscript.KeyParser) (*Policy,
	error) {

	tree, err := expression.Parse(policy)
	if err != nil {
		return nil, policyErrorf(ErrParse, "%s: %v", policy, err)
	}
	return FromTree(tree, parseKey)
}

func expectArgs(name string, tree *expression.Tree, n int) error {
	if len(tree.Args) != n {
		return policyErrorf(ErrMalformedPolicy, "%s expects %d "+
			"arguments, got %d", name, n, len(tree.Args))
	}
	return nil
}

func leafArg(name string, tree *expression.Tree) (string, error) {
	if !tree.IsLeaf() {
		return "", policyErrorf(ErrMalformedPolicy, "argument of %s "+
			"must not contain subexpressions", name)
	}
	return tree.Name, nil
}

// splitWeight splits the optional w@ prefix of an or argument.
func splitWeight(name string) (uint32, string, error) {
	idx := strings.IndexByte(name, '@')
	if idx < 0 {
		return 1, name, nil
	}
	w, err := miniscript.ParseNumber(name[:idx])
	if err != nil || w == 0 {
		return 0, "", policyErrorf(ErrParse, "invalid weight %q",
			name[:idx])
	}
	return w, name[idx+1:], nil
}

// FromTree converts a generic expression tree into a policy.
func FromTree(tree *expression.Tree, parseKey miniscript.KeyParser) (*Policy,
	error) {

	if strings.IndexByte(tree.Name, '@') >= 0 {
		return nil, policyErrorf(ErrParse, "weight outside of or: %s",
			tree.Name)
	}

	name := tree.Name
	switch name {
	case "UNSATISFIABLE", "TRIVIAL":
		if err := expectArgs(name, tree, 0); err != nil {
			return nil, err
		}
		if name == "TRIVIAL" {
			return Trivial(), nil
		}
		return Unsatisfiable(), nil

	case "pk":
		if err := expectArgs(name, tree, 1); err != nil {
			return nil, err
		}
		s, err := leafArg(name, tree.Args[0])
		if err != nil {
			return nil, err
		}
		key, err := parseKey(s)
		if err != nil {
			return nil, err
		}
		return NewKey(key)

	case "after", "older":
		if err := expectArgs(name, tree, 1); err != nil {
			return nil, err
		}
		s, err := leafArg(name, tree.Args[0])
		if err != nil {
			return nil, err
		}
		n, err := miniscript.ParseNumber(s)
		if err != nil {
			return nil, policyErrorf(ErrParse, "%s: %v", name, err)
		}
		if name == "after" {
			return NewAfter(n)
		}
		return NewOlder(n)

	case "sha256", "hash256", "ripemd160", "hash160":
		if err := expectArgs(name, tree, 1); err != nil {
			return nil, err
		}
		s, err := leafArg(name, tree.Args[0])
		if err != nil {
			return nil, err
		}
		digest, err := hex.DecodeString(s)
		if err != nil {
			return nil, policyErrorf(ErrParse, "%s: invalid hex "+
				"digest %q", name, s)
		}
		kind := map[string]miniscript.HashKind{
			"sha256":    miniscript.HashSha256,
			"hash256":   miniscript.HashHash256,
			"ripemd160": miniscript.HashRipemd160,
			"hash160":   miniscript.HashHash160,
		}[name]
		return NewHash(kind, digest)

	case "and":
		if err := expectArgs(name, tree, 2); err != nil {
			return nil, err
		}
		subs, err := fromTrees(tree.Args, parseKey)
		if err != nil {
			return nil, err
		}
		return NewAnd(subs[0], subs[1])

	case "or":
		if err := expectArgs(name, tree, 2); err != nil {
			return nil, err
		}
		var (
			weights [2]uint32
			subs    [2]*Policy
		)
		for i, arg := range tree.Args {
			w, argName, err := splitWeight(arg.Name)
			if err != nil {
				return nil, err
			}
			sub, err := FromTree(&expression.Tree{
				Name: argName,
				Args: arg.Args,
			}, parseKey)
			if err != nil {
				return nil, err
			}
			weights[i], subs[i] = w, sub
		}
		return NewOr(subs[0], subs[1], weights[0], weights[1])

	case "thresh":
		if len(tree.Args) < 2 {
			return nil, policyErrorf(ErrMalformedPolicy, "thresh "+
				"must have at least two arguments")
		}
		s, err := leafArg(name, tree.Args[0])
		if err != nil {
			return nil, err
		}
		k, err := miniscript.ParseNumber(s)
		if err != nil {
			return nil, policyErrorf(ErrParse, "thresh: %v", err)
		}
		subs, err := fromTrees(tree.Args[1:], parseKey)
		if err != nil {
			return nil, err
		}
		return NewThresh(int(k), subs)
	}

	parser, ok := miniscript.LookupExtension(name)
	if !ok {
		return nil, policyErrorf(ErrParse, "unknown policy %q", name)
	}
	args := make([]string, len(tree.Args))
	for i, arg := range tree.Args {
		s, err := leafArg(name, arg)
		if err != nil {
			return nil, err
		}
		args[i] = s
	}
	ext, err := parser(args)
	if err != nil {
		return nil, err
	}
	return NewExt(ext)
}

func fromTrees(trees []*expression.Tree,
	parseKey miniscript.KeyParser) ([]*Policy, error) {

	subs := make([]*Policy, len(trees))
	for i, tree := range trees {
		sub, err := FromTree(tree, parseKey)
		if err != nil {
			return nil, err
		}
		subs[i] = sub
	}
	return subs, nil
}
