// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import (
	"github.com/btcsuite/btcd/txscript"
)

const (
	// maxSigWitnessSize is the size of a witness element holding a DER
	// signature with sighash byte: 1 byte length prefix and up to 73 bytes.
	maxSigWitnessSize = 1 + 73

	// pubKeyWitnessSize is the size of a witness element holding a
	// compressed public key.
	pubKeyWitnessSize = 1 + pubKeyLen

	// preimageWitnessSize is the size of a witness element holding a
	// hash preimage.
	preimageWitnessSize = 1 + preimageLen
)

// numPushLen returns the length of the minimal push of n.
func numPushLen(n int64) int {
	numPush, _ := txscript.NewScriptBuilder().AddInt64(n).Script()
	return len(numPush)
}

// computeScriptLen computes the length of the script of a node from the
// lengths of its children.
func computeScriptLen(node *Fragment) int {
	argsSummed := 0
	for _, sub := range node.subs {
		argsSummed += sub.scriptLen
	}

	switch node.kind {
	case KindFalse, KindTrue:
		return 1

	case KindPkK:
		return pubKeyDataPushLen

	case KindPkH:
		// DUP HASH160 <20 bytes> EQUALVERIFY
		return 24

	case KindOlder, KindAfter:
		return 1 + numPushLen(int64(node.k))

	case KindSha256, KindHash256:
		return 39

	case KindRipemd160, KindHash160:
		return 27

	case KindExt:
		return node.ext.ScriptLen()

	case KindAndOr, KindOrI, KindOrD, KindWrapD:
		return argsSummed + 3

	case KindAndV:
		return argsSummed

	case KindAndB, KindOrB, KindWrapS, KindWrapC, KindWrapN:
		return argsSummed + 1

	case KindOrC, KindWrapA:
		return argsSummed + 2

	case KindThresh:
		// One OP_ADD between every two subexpressions, then <k> EQUAL.
		return argsSummed + len(node.subs) - 1 +
			numPushLen(int64(node.k)) + 1

	case KindMulti:
		numKeys := len(node.keys)
		return numPushLen(int64(node.k)) +
			numKeys*pubKeyDataPushLen +
			numPushLen(int64(numKeys)) + 1

	case KindWrapV:
		if node.subs[0].typ.props.canCollapseVerify {
			// OP_VERIFY not needed, collapsed into OP_EQUALVERIFY,
			// OP_CHECKSIGVERIFY, OP_CHECKMULTISIGVERIFY.
			return argsSummed
		}
		return argsSummed + 1

	case KindWrapJ:
		return argsSummed + 4
	}
	return 0
}

// witnessSize is an upper bound of the number of witness elements and of
// their serialized size, excluding the witness item count.
type witnessSize struct {
	valid bool
	elems int
	size  int
}

var (
	noWitness    = witnessSize{valid: true}
	zeroWitness  = witnessSize{valid: true, elems: 1, size: 1}
	oneWitness   = witnessSize{valid: true, elems: 1, size: 2}
	emptyWitness = witnessSize{}
)

func (w witnessSize) and(b witnessSize) witnessSize {
	if !w.valid || !b.valid {
		return emptyWitness
	}
	return witnessSize{
		valid: true,
		elems: w.elems + b.elems,
		size:  w.size + b.size,
	}
}

func (w witnessSize) or(b witnessSize) witnessSize {
	if !w.valid {
		return b
	}
	if !b.valid {
		return w
	}
	max := w
	if b.elems > max.elems {
		max.elems = b.elems
	}
	if b.size > max.size {
		max.size = b.size
	}
	return max
}

// computeWitnessSize computes the maximum satisfaction size and the size
// of the canonical dissatisfaction of a node.
func computeWitnessSize(node *Fragment) (sat, dsat witnessSize) {
	sub := func(i int) (witnessSize, witnessSize) {
		return node.subs[i].satSize, node.subs[i].dsatSize
	}

	switch node.kind {
	case KindFalse:
		return emptyWitness, noWitness

	case KindTrue:
		return noWitness, emptyWitness

	case KindPkK:
		return witnessSize{true, 1, maxSigWitnessSize}, zeroWitness

	case KindPkH:
		key := witnessSize{true, 1, pubKeyWitnessSize}
		return witnessSize{true, 1, maxSigWitnessSize}.and(key),
			zeroWitness.and(key)

	case KindOlder, KindAfter:
		return noWitness, emptyWitness

	case KindSha256, KindHash256, KindRipemd160, KindHash160:
		preimage := witnessSize{true, 1, preimageWitnessSize}
		return preimage, preimage

	case KindExt:
		if node.ext.Type().props.d {
			return noWitness, noWitness
		}
		return noWitness, emptyWitness

	case KindMulti:
		k := int(node.k)
		return witnessSize{true, k + 1, 1 + k*maxSigWitnessSize},
			witnessSize{true, k + 1, k + 1}

	case KindAndOr:
		xs, xd := sub(0)
		ys, _ := sub(1)
		zs, zd := sub(2)
		return ys.and(xs).or(zs.and(xd)), zd.and(xd)

	case KindAndV:
		xs, _ := sub(0)
		ys, _ := sub(1)
		return ys.and(xs), emptyWitness

	case KindAndB:
		xs, xd := sub(0)
		ys, yd := sub(1)
		return ys.and(xs), yd.and(xd)

	case KindOrB:
		xs, xd := sub(0)
		zs, zd := sub(1)
		return zd.and(xs).or(zs.and(xd)), zd.and(xd)

	case KindOrC:
		xs, xd := sub(0)
		zs, _ := sub(1)
		return xs.or(zs.and(xd)), emptyWitness

	case KindOrD:
		xs, xd := sub(0)
		zs, zd := sub(1)
		return xs.or(zs.and(xd)), zd.and(xd)

	case KindOrI:
		xs, xd := sub(0)
		zs, zd := sub(1)
		return xs.and(oneWitness).or(zs.and(zeroWitness)),
			xd.and(oneWitness).or(zd.and(zeroWitness))

	case KindThresh:
		dsat := noWitness
		elems := make([][2]maxInt, len(node.subs))
		sizes := make([][2]maxInt, len(node.subs))
		for i := range node.subs {
			s, d := sub(i)
			dsat = dsat.and(d)
			elems[i] = [2]maxInt{{s.valid, s.elems}, {d.valid, d.elems}}
			sizes[i] = [2]maxInt{{s.valid, s.size}, {d.valid, d.size}}
		}
		k := int(node.k)
		maxElems := threshPairs(k, elems)
		maxSize := threshPairs(k, sizes)
		sat := witnessSize{
			valid: maxSize.valid,
			elems: maxElems.value,
			size:  maxSize.value,
		}
		return sat, dsat

	case KindWrapA, KindWrapS, KindWrapC, KindWrapN:
		return sub(0)

	case KindWrapD:
		xs, _ := sub(0)
		return xs.and(oneWitness), zeroWitness

	case KindWrapV:
		xs, _ := sub(0)
		return xs, emptyWitness

	case KindWrapJ:
		xs, _ := sub(0)
		return xs, zeroWitness
	}
	return emptyWitness, emptyWitness
}

func threshPairs(k int, pairs [][2]maxInt) maxInt {
	sats := make([]maxInt, len(pairs))
	dsats := make([]maxInt, len(pairs))
	for i, p := range pairs {
		sats[i], dsats[i] = p[0], p[1]
	}
	return maxThreshSum(k, sats, dsats)
}
