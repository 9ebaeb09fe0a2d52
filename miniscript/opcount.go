// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package miniscript

import "sort"

type maxInt struct {
	valid bool
	value int
}

func (m maxInt) and(b maxInt) maxInt {
	if !m.valid || !b.valid {
		return maxInt{}
	}
	return maxInt{
		valid: true,
		value: m.value + b.value,
	}
}

func (m maxInt) or(b maxInt) maxInt {
	if !m.valid {
		return b
	}
	if !b.valid {
		return m
	}
	if m.value >= b.value {
		return m
	}
	return b
}

// maxThreshSum returns the maximum sum over all choices of exactly k
// satisfied and n-k dissatisfied children.
func maxThreshSum(k int, sats, dsats []maxInt) maxInt {
	var (
		sum      int
		forced   int
		optional []int
	)
	for i := range sats {
		switch {
		case sats[i].valid && dsats[i].valid:
			sum += dsats[i].value
			optional = append(optional, sats[i].value-dsats[i].value)
		case sats[i].valid:
			sum += sats[i].value
			forced++
		case dsats[i].valid:
			sum += dsats[i].value
		default:
			return maxInt{}
		}
	}
	if forced > k || forced+len(optional) < k {
		return maxInt{}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(optional)))
	for _, diff := range optional[:k-forced] {
		sum += diff
	}
	return maxInt{valid: true, value: sum}
}

type ops struct {
	// count is the number of non-push opcodes.
	count int

	// dsat is the number of keys in possibly executed
	// OP_CHECKMULTISIG(VERIFY)s to dissatisfy.
	dsat maxInt

	// sat is the number of keys in possibly executed
	// OP_CHECKMULTISIG(VERIFY)s to satisfy.
	sat maxInt
}

// computeOpCount counts the non-push opcodes of a node from the counts of
// its children.
func computeOpCount(node *Fragment) ops {
	zero := maxInt{valid: true, value: 0}
	invalid := maxInt{valid: false}
	sub := func(i int) ops {
		return node.subs[i].opCount
	}

	switch node.kind {
	case KindFalse:
		return ops{0, zero, invalid}

	case KindTrue:
		return ops{0, invalid, zero}

	case KindPkK:
		return ops{0, zero, zero}

	case KindPkH:
		return ops{3, zero, zero}

	case KindOlder, KindAfter:
		return ops{1, invalid, zero}

	case KindSha256, KindHash256, KindRipemd160, KindHash160:
		return ops{4, zero, zero}

	case KindExt:
		dsat := invalid
		if node.ext.Type().props.d {
			dsat = zero
		}
		return ops{node.ext.OpCount(), dsat, zero}

	case KindAndOr:
		x, y, z := sub(0), sub(1), sub(2)
		return ops{
			3 + x.count + y.count + z.count,
			z.dsat.and(x.dsat),
			y.sat.and(x.sat).or(z.sat.and(x.dsat)),
		}

	case KindAndV:
		x, y := sub(0), sub(1)
		return ops{x.count + y.count, invalid, y.sat.and(x.sat)}

	case KindAndB:
		x, y := sub(0), sub(1)
		return ops{
			1 + x.count + y.count,
			y.dsat.and(x.dsat),
			y.sat.and(x.sat),
		}

	case KindOrB:
		x, z := sub(0), sub(1)
		return ops{
			1 + x.count + z.count,
			z.dsat.and(x.dsat),
			z.dsat.and(x.sat).or(z.sat.and(x.dsat)),
		}

	case KindOrC:
		x, z := sub(0), sub(1)
		return ops{
			2 + x.count + z.count,
			invalid,
			x.sat.or(z.sat.and(x.dsat)),
		}

	case KindOrD:
		x, z := sub(0), sub(1)
		return ops{
			3 + x.count + z.count,
			z.dsat.and(x.dsat),
			x.sat.or(z.sat.and(x.dsat)),
		}

	case KindOrI:
		x, z := sub(0), sub(1)
		return ops{
			3 + x.count + z.count,
			x.dsat.or(z.dsat),
			x.sat.or(z.sat),
		}

	case KindThresh:
		count := 0
		dsat := zero
		sats := make([]maxInt, len(node.subs))
		dsats := make([]maxInt, len(node.subs))
		for i := range node.subs {
			count += sub(i).count + 1
			dsat = dsat.and(sub(i).dsat)
			sats[i], dsats[i] = sub(i).sat, sub(i).dsat
		}
		return ops{count, dsat, maxThreshSum(int(node.k), sats, dsats)}

	case KindMulti:
		n := maxInt{valid: true, value: len(node.keys)}
		return ops{1, n, n}

	case KindWrapA:
		x := sub(0)
		return ops{2 + x.count, x.dsat, x.sat}

	case KindWrapS, KindWrapC, KindWrapN:
		x := sub(0)
		return ops{1 + x.count, x.dsat, x.sat}

	case KindWrapD:
		x := sub(0)
		return ops{3 + x.count, zero, x.sat}

	case KindWrapV:
		x := sub(0)
		opVerify := 0
		if !node.subs[0].typ.props.canCollapseVerify {
			opVerify = 1
		}
		return ops{opVerify + x.count, invalid, x.sat}

	case KindWrapJ:
		x := sub(0)
		return ops{4 + x.count, zero, x.sat}
	}
	return ops{0, invalid, invalid}
}
