// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"bytes"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	// multisigMaxKeys is the maximum number of keys in a multisig.
	multisigMaxKeys = 20

	// MaxThresholdArity is the maximum number of subexpressions of a
	// thresh fragment. The satisfier enumerates all k-subsets of the
	// children, so the arity is kept at the multisig key limit.
	MaxThresholdArity = 20

	// maxLockTime is the exclusive upper bound for older and after
	// values. Bit 31 disables relative locktimes and is not allowed.
	maxLockTime = 1 << 31
)

// Kind identifies the fragment type of a node.
type Kind uint8

// All fragment kinds. Sugar such as pk(), pkh(), and_n() and the t:, l:, u:
// wrappers is expanded into these on construction.
const (
	KindFalse Kind = iota
	KindTrue
	KindPkK
	KindPkH
	KindSha256
	KindHash256
	KindRipemd160
	KindHash160
	KindOlder
	KindAfter
	KindMulti
	KindExt
	KindAndOr
	KindAndV
	KindAndB
	KindOrB
	KindOrC
	KindOrD
	KindOrI
	KindThresh
	KindWrapA
	KindWrapS
	KindWrapC
	KindWrapD
	KindWrapV
	KindWrapJ
	KindWrapN
)

var kindNames = map[Kind]string{
	KindFalse:     "0",
	KindTrue:      "1",
	KindPkK:       "pk_k",
	KindPkH:       "pk_h",
	KindSha256:    "sha256",
	KindHash256:   "hash256",
	KindRipemd160: "ripemd160",
	KindHash160:   "hash160",
	KindOlder:     "older",
	KindAfter:     "after",
	KindMulti:     "multi",
	KindExt:       "ext",
	KindAndOr:     "andor",
	KindAndV:      "and_v",
	KindAndB:      "and_b",
	KindOrB:       "or_b",
	KindOrC:       "or_c",
	KindOrD:       "or_d",
	KindOrI:       "or_i",
	KindThresh:    "thresh",
	KindWrapA:     "a",
	KindWrapS:     "s",
	KindWrapC:     "c",
	KindWrapD:     "d",
	KindWrapV:     "v",
	KindWrapJ:     "j",
	KindWrapN:     "n",
}

// String returns the fragment identifier of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsWrapper returns true for the single letter wrapper kinds.
func (k Kind) IsWrapper() bool {
	return k >= KindWrapA && k <= KindWrapN
}

// hashKind maps a hash fragment kind to its hash function.
func (k Kind) hashKind() (HashKind, bool) {
	switch k {
	case KindSha256:
		return HashSha256, true
	case KindHash256:
		return HashHash256, true
	case KindRipemd160:
		return HashRipemd160, true
	case KindHash160:
		return HashHash160, true
	}
	return 0, false
}

func hashFragmentKind(h HashKind) Kind {
	switch h {
	case HashHash256:
		return KindHash256
	case HashRipemd160:
		return KindRipemd160
	case HashHash160:
		return KindHash160
	default:
		return KindSha256
	}
}

// Fragment is a node of a miniscript expression tree. Fragments are
// immutable: all derived data such as the type, the script length and the
// witness size bounds is computed once by the constructors.
type Fragment struct {
	kind Kind

	// k is the threshold of thresh and multi, or the value of older and
	// after.
	k uint32

	// keys holds the key of pk_k and pk_h, or all keys of multi.
	keys []Key

	// hash is the digest of hash fragments.
	hash []byte

	// ext is set for Elements extension terminals.
	ext Extension

	// subs are the subexpressions in script order.
	subs []*Fragment

	typ       Type
	typErr    error
	scriptLen int
	opCount   ops
	satSize   witnessSize
	dsatSize  witnessSize
}

// newFragment computes all derived data of a node whose children are
// already complete.
func newFragment(f *Fragment) *Fragment {
	f.typ, f.typErr = computeType(f)
	f.scriptLen = computeScriptLen(f)
	f.opCount = computeOpCount(f)
	f.satSize, f.dsatSize = computeWitnessSize(f)
	return f
}

// False returns the 0 fragment.
func False() *Fragment {
	return newFragment(&Fragment{kind: KindFalse})
}

// True returns the 1 fragment.
func True() *Fragment {
	return newFragment(&Fragment{kind: KindTrue})
}

// NewPkK returns pk_k(key).
func NewPkK(key Key) (*Fragment, error) {
	if key == nil {
		return nil, fragmentError(ErrMalformedFragment,
			"pk_k requires a key")
	}
	return newFragment(&Fragment{kind: KindPkK, keys: []Key{key}}), nil
}

// NewPkH returns pk_h(key).
func NewPkH(key Key) (*Fragment, error) {
	if key == nil {
		return nil, fragmentError(ErrMalformedFragment,
			"pk_h requires a key")
	}
	return newFragment(&Fragment{kind: KindPkH, keys: []Key{key}}), nil
}

// NewPk returns pk(key), i.e. c:pk_k(key).
func NewPk(key Key) (*Fragment, error) {
	pkK, err := NewPkK(key)
	if err != nil {
		return nil, err
	}
	return NewWrapper(KindWrapC, pkK)
}

// NewPkh returns pkh(key), i.e. c:pk_h(key).
func NewPkh(key Key) (*Fragment, error) {
	pkH, err := NewPkH(key)
	if err != nil {
		return nil, err
	}
	return NewWrapper(KindWrapC, pkH)
}

// NewHash returns the hash fragment of the given kind committing to digest.
func NewHash(kind HashKind, digest []byte) (*Fragment, error) {
	if len(digest) != kind.Size() {
		return nil, fragmentErrorf(ErrMalformedFragment, "%s expects a "+
			"%d byte digest, got %d", kind, kind.Size(), len(digest))
	}
	return newFragment(&Fragment{
		kind: hashFragmentKind(kind),
		hash: append([]byte(nil), digest...),
	}), nil
}

func checkLockTime(name string, n uint32) error {
	if n == 0 || n >= maxLockTime {
		return fragmentErrorf(ErrMalformedFragment, "%s(%d): value "+
			"must be in [1, 2^31)", name, n)
	}
	return nil
}

// NewOlder returns older(n), a relative timelock.
func NewOlder(n uint32) (*Fragment, error) {
	if err := checkLockTime("older", n); err != nil {
		return nil, err
	}
	return newFragment(&Fragment{kind: KindOlder, k: n}), nil
}

// NewAfter returns after(n), an absolute timelock.
func NewAfter(n uint32) (*Fragment, error) {
	if err := checkLockTime("after", n); err != nil {
		return nil, err
	}
	return newFragment(&Fragment{kind: KindAfter, k: n}), nil
}

// NewMulti returns multi(k,keys...).
func NewMulti(k int, keys []Key) (*Fragment, error) {
	n := len(keys)
	if n == 0 || n > multisigMaxKeys {
		return nil, fragmentErrorf(ErrMalformedFragment, "multi "+
			"requires 1 to %d keys, got %d", multisigMaxKeys, n)
	}
	if k < 1 || k > n {
		return nil, fragmentErrorf(ErrMalformedFragment, "multi "+
			"threshold %d not in [1, %d]", k, n)
	}
	for _, key := range keys {
		if key == nil {
			return nil, fragmentError(ErrMalformedFragment,
				"multi with empty key")
		}
	}
	return newFragment(&Fragment{
		kind: KindMulti,
		k:    uint32(k),
		keys: append([]Key(nil), keys...),
	}), nil
}

// NewExt returns a terminal for an Elements extension.
func NewExt(ext Extension) (*Fragment, error) {
	if ext == nil {
		return nil, fragmentError(ErrMalformedFragment,
			"empty extension")
	}
	if !ext.Type().props.z {
		return nil, fragmentErrorf(ErrMalformedFragment, "extension "+
			"%s must not consume witness elements", ext.Name())
	}
	return newFragment(&Fragment{kind: KindExt, ext: ext}), nil
}

func checkSubs(kind Kind, subs ...*Fragment) error {
	for _, sub := range subs {
		if sub == nil {
			return fragmentErrorf(ErrMalformedFragment,
				"%s with empty subexpression", kind)
		}
	}
	return nil
}

// NewAndOr returns andor(x,y,z).
func NewAndOr(x, y, z *Fragment) (*Fragment, error) {
	if err := checkSubs(KindAndOr, x, y, z); err != nil {
		return nil, err
	}
	return newFragment(&Fragment{
		kind: KindAndOr,
		subs: []*Fragment{x, y, z},
	}), nil
}

// NewAndN returns and_n(x,y), i.e. andor(x,y,0).
func NewAndN(x, y *Fragment) (*Fragment, error) {
	return NewAndOr(x, y, False())
}

// NewBinary returns one of the two argument combinators and_v, and_b, or_b,
// or_c, or_d and or_i.
func NewBinary(kind Kind, x, y *Fragment) (*Fragment, error) {
	switch kind {
	case KindAndV, KindAndB, KindOrB, KindOrC, KindOrD, KindOrI:
	default:
		return nil, fragmentErrorf(ErrMalformedFragment, "%s is not a "+
			"binary combinator", kind)
	}
	if err := checkSubs(kind, x, y); err != nil {
		return nil, err
	}
	return newFragment(&Fragment{kind: kind, subs: []*Fragment{x, y}}), nil
}

// NewThresh returns thresh(k,subs...).
func NewThresh(k int, subs []*Fragment) (*Fragment, error) {
	n := len(subs)
	if n == 0 || n > MaxThresholdArity {
		return nil, fragmentErrorf(ErrMalformedFragment, "thresh "+
			"requires 1 to %d subexpressions, got %d",
			MaxThresholdArity, n)
	}
	if k < 1 || k > n {
		return nil, fragmentErrorf(ErrMalformedFragment, "thresh "+
			"threshold %d not in [1, %d]", k, n)
	}
	if err := checkSubs(KindThresh, subs...); err != nil {
		return nil, err
	}
	return newFragment(&Fragment{
		kind: KindThresh,
		k:    uint32(k),
		subs: append([]*Fragment(nil), subs...),
	}), nil
}

// NewWrapper applies one of the wrappers a, s, c, d, v, j and n to x.
func NewWrapper(kind Kind, x *Fragment) (*Fragment, error) {
	if !kind.IsWrapper() {
		return nil, fragmentErrorf(ErrMalformedFragment, "%s is not a "+
			"wrapper", kind)
	}
	if err := checkSubs(kind, x); err != nil {
		return nil, err
	}
	return newFragment(&Fragment{kind: kind, subs: []*Fragment{x}}), nil
}

// applyWrapper applies a wrapper letter including the sugar wrappers t, l
// and u.
func applyWrapper(w byte, x *Fragment) (*Fragment, error) {
	switch w {
	case 'a':
		return NewWrapper(KindWrapA, x)
	case 's':
		return NewWrapper(KindWrapS, x)
	case 'c':
		return NewWrapper(KindWrapC, x)
	case 'd':
		return NewWrapper(KindWrapD, x)
	case 'v':
		return NewWrapper(KindWrapV, x)
	case 'j':
		return NewWrapper(KindWrapJ, x)
	case 'n':
		return NewWrapper(KindWrapN, x)
	case 't':
		return NewBinary(KindAndV, x, True())
	case 'l':
		return NewBinary(KindOrI, False(), x)
	case 'u':
		return NewBinary(KindOrI, x, False())
	}
	return nil, fragmentErrorf(ErrParse, "unknown wrapper %q", w)
}

// Kind returns the fragment kind.
func (f *Fragment) Kind() Kind {
	return f.kind
}

// K returns the threshold of thresh and multi, or the timelock value of
// older and after.
func (f *Fragment) K() uint32 {
	return f.k
}

// Subs returns the subexpressions. The slice must not be modified.
func (f *Fragment) Subs() []*Fragment {
	return f.subs
}

// Hash returns the digest of hash fragments.
func (f *Fragment) Hash() []byte {
	return f.hash
}

// Extension returns the extension of an extension terminal.
func (f *Fragment) Extension() Extension {
	return f.ext
}

// Type returns the type of the fragment, or the first type error found in
// post-order traversal.
func (f *Fragment) Type() (Type, error) {
	return f.typ, f.typErr
}

// ScriptLen returns the length of the script in bytes.
func (f *Fragment) ScriptLen() int {
	return f.scriptLen
}

// MaxOpCount returns the maximum number of non-push opcodes executed by
// any satisfaction, including the keys of executed CHECKMULTISIGs. False is
// returned if the fragment cannot be satisfied.
func (f *Fragment) MaxOpCount() (int, bool) {
	if !f.opCount.sat.valid {
		return 0, false
	}
	return f.opCount.count + f.opCount.sat.value, true
}

// MaxSatisfactionSize returns the upper bound of the number of witness
// elements and of their serialized size in bytes for any satisfaction.
// False is returned if the fragment cannot be satisfied.
func (f *Fragment) MaxSatisfactionSize() (elems, size int, ok bool) {
	return f.satSize.elems, f.satSize.size, f.satSize.valid
}

// MaxDissatisfactionSize returns the size of the canonical
// dissatisfaction. False is returned if there is none.
func (f *Fragment) MaxDissatisfactionSize() (elems, size int, ok bool) {
	return f.dsatSize.elems, f.dsatSize.size, f.dsatSize.valid
}

// Keys returns all keys in script order.
func (f *Fragment) Keys() []Key {
	var keys []Key
	f.walk(func(node *Fragment) {
		keys = append(keys, node.keys...)
	})
	return keys
}

// walk calls fn for every node in pre-order.
func (f *Fragment) walk(fn func(*Fragment)) {
	fn(f)
	for _, sub := range f.subs {
		sub.walk(fn)
	}
}

// TranslateKeys returns a copy of the tree with every key replaced by the
// result of fn. The derived data of the copy is recomputed.
func (f *Fragment) TranslateKeys(fn func(Key) (Key, error)) (*Fragment,
	error) {

	node := &Fragment{
		kind: f.kind,
		k:    f.k,
		hash: f.hash,
		ext:  f.ext,
	}
	if len(f.keys) > 0 {
		node.keys = make([]Key, len(f.keys))
		for i, key := range f.keys {
			translated, err := fn(key)
			if err != nil {
				return nil, err
			}
			if translated == nil {
				return nil, fragmentErrorf(ErrKey, "key %s "+
					"translated to nothing", key)
			}
			node.keys[i] = translated
		}
	}
	if len(f.subs) > 0 {
		node.subs = make([]*Fragment, len(f.subs))
		for i, sub := range f.subs {
			translated, err := sub.TranslateKeys(fn)
			if err != nil {
				return nil, err
			}
			node.subs[i] = translated
		}
	}
	return newFragment(node), nil
}

// Equal returns true if both trees are structurally identical.
func Equal(a, b *Fragment) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.kind != b.kind || a.k != b.k || !bytes.Equal(a.hash, b.hash) ||
		len(a.keys) != len(b.keys) || len(a.subs) != len(b.subs) {

		return false
	}
	for i := range a.keys {
		if !keyEqual(a.keys[i], b.keys[i]) {
			return false
		}
	}
	if a.ext != nil || b.ext != nil {
		if a.ext == nil || b.ext == nil ||
			extString(a.ext) != extString(b.ext) {

			return false
		}
	}
	for i := range a.subs {
		if !Equal(a.subs[i], b.subs[i]) {
			return false
		}
	}
	return true
}

// String returns the canonical text form of the fragment. Sugar is used
// wherever it applies, so that parsing the result yields an equal tree.
func (f *Fragment) String() string {
	var b strings.Builder
	f.write(&b)
	return b.String()
}

// unwrapSugar returns the wrapper letter a node is rendered as and the
// node it wraps. ok is false if the node is not rendered as a wrapper.
func (f *Fragment) unwrapSugar() (letter byte, inner *Fragment, ok bool) {
	switch {
	case f.kind == KindWrapC && (f.subs[0].kind == KindPkK ||
		f.subs[0].kind == KindPkH):

		// Rendered as pk() or pkh().
		return 0, nil, false

	case f.kind.IsWrapper():
		return f.kind.String()[0], f.subs[0], true

	case f.kind == KindAndV && f.subs[1].kind == KindTrue:
		return 't', f.subs[0], true

	case f.kind == KindOrI && f.subs[0].kind == KindFalse:
		return 'l', f.subs[1], true

	case f.kind == KindOrI && f.subs[1].kind == KindFalse:
		return 'u', f.subs[0], true
	}
	return 0, nil, false
}

func (f *Fragment) write(b *strings.Builder) {
	node := f
	var wrappers []byte
	for {
		letter, inner, ok := node.unwrapSugar()
		if !ok {
			break
		}
		wrappers = append(wrappers, letter)
		node = inner
	}
	if len(wrappers) > 0 {
		b.Write(wrappers)
		b.WriteByte(':')
	}
	node.writeBody(b)
}

func (f *Fragment) writeBody(b *strings.Builder) {
	switch f.kind {
	case KindFalse, KindTrue:
		b.WriteString(f.kind.String())

	case KindPkK, KindPkH:
		b.WriteString(f.kind.String())
		b.WriteByte('(')
		b.WriteString(f.keys[0].String())
		b.WriteByte(')')

	case KindWrapC:
		// Only reached for c:pk_k and c:pk_h.
		name := "pk"
		if f.subs[0].kind == KindPkH {
			name = "pkh"
		}
		b.WriteString(name)
		b.WriteByte('(')
		b.WriteString(f.subs[0].keys[0].String())
		b.WriteByte(')')

	case KindSha256, KindHash256, KindRipemd160, KindHash160:
		b.WriteString(f.kind.String())
		b.WriteByte('(')
		b.WriteString(hex.EncodeToString(f.hash))
		b.WriteByte(')')

	case KindOlder, KindAfter:
		b.WriteString(f.kind.String())
		b.WriteByte('(')
		b.WriteString(strconv.FormatUint(uint64(f.k), 10))
		b.WriteByte(')')

	case KindMulti:
		b.WriteString("multi(")
		b.WriteString(strconv.FormatUint(uint64(f.k), 10))
		for _, key := range f.keys {
			b.WriteByte(',')
			b.WriteString(key.String())
		}
		b.WriteByte(')')

	case KindExt:
		b.WriteString(extString(f.ext))

	case KindAndOr:
		if f.subs[2].kind == KindFalse {
			b.WriteString("and_n(")
			f.subs[0].write(b)
			b.WriteByte(',')
			f.subs[1].write(b)
			b.WriteByte(')')
			return
		}
		f.writeCall(b)

	case KindThresh:
		b.WriteString("thresh(")
		b.WriteString(strconv.FormatUint(uint64(f.k), 10))
		for _, sub := range f.subs {
			b.WriteByte(',')
			sub.write(b)
		}
		b.WriteByte(')')

	default:
		f.writeCall(b)
	}
}

func (f *Fragment) writeCall(b *strings.Builder) {
	b.WriteString(f.kind.String())
	b.WriteByte('(')
	for i, sub := range f.subs {
		if i > 0 {
			b.WriteByte(',')
		}
		sub.write(b)
	}
	b.WriteByte(')')
}
