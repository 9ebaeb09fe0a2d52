// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package policy

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/elementsminiscript/miniscript"
	"github.com/davecgh/go-spew/spew"
)

const (
	// DefaultMaxDepth is the default maximum nesting depth of a policy.
	DefaultMaxDepth = 32

	// DefaultMaxLeaves is the default maximum number of terminals of a
	// policy.
	DefaultMaxLeaves = 64

	// maxCasts bounds the number of wrappers applied on top of a
	// combinator.
	maxCasts = 5
)

// Witness costs in serialized bytes, including the length prefix.
const (
	sigCost      = 73
	pubKeyCost   = 34
	preimageCost = 33
	emptyCost    = 1
	oneCost      = 2
)

var infinity = math.Inf(1)

// Config holds the complexity limits of the compiler. A zero value selects
// the default.
type Config struct {
	// MaxDepth is the maximum nesting depth of a policy.
	MaxDepth int

	// MaxLeaves is the maximum number of terminals of a policy.
	MaxLeaves int
}

// Compiler compiles policies into miniscript for one script context. A
// Compiler has no mutable state and is safe for concurrent use.
type Compiler struct {
	ctx miniscript.Context
	cfg Config
}

// NewCompiler returns a compiler for the script context.
func NewCompiler(ctx miniscript.Context, cfg Config) *Compiler {
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.MaxLeaves == 0 {
		cfg.MaxLeaves = DefaultMaxLeaves
	}
	return &Compiler{ctx: ctx, cfg: cfg}
}

// Compile compiles a policy with the default limits.
func Compile(p *Policy, ctx miniscript.Context) (*miniscript.Fragment,
	error) {

	return NewCompiler(ctx, Config{}).Compile(p)
}

// candidate is one miniscript encoding of a policy together with its
// expected witness costs.
type candidate struct {
	frag *miniscript.Fragment
	typ  miniscript.Type

	// satCost is the expected size of a satisfaction and dsatCost the
	// size of the dissatisfaction, or infinity if there is none.
	satCost  float64
	dsatCost float64

	// casts is the number of wrappers applied since the last combinator.
	casts int

	str string
}

func (c *candidate) String() string {
	if c.str == "" {
		c.str = c.frag.String()
	}
	return c.str
}

// cost returns the script length plus the expected witness size when the
// candidate is satisfied with probability p and dissatisfied with
// probability q.
func (c *candidate) cost(p, q float64) float64 {
	cost := float64(c.frag.ScriptLen())
	if p > 0 {
		cost += p * c.satCost
	}
	if q > 0 {
		cost += q * c.dsatCost
	}
	return cost
}

// better reports whether a is preferable to b. Ties are broken by the
// lexicographically smaller text.
func better(a, b *candidate, p, q float64) bool {
	ca, cb := a.cost(p, q), b.cost(p, q)
	if ca != cb {
		return ca < cb
	}
	return a.String() < b.String()
}

// mul returns p*c, treating 0*inf as 0.
func mul(p, c float64) float64 {
	if p == 0 {
		return 0
	}
	return p * c
}

// table holds the best candidate of a policy for each type.
type table map[string]*candidate

func classKey(typ miniscript.Type) string {
	if typ.CanCollapseVerify() {
		return typ.String() + "x"
	}
	return typ.String()
}

// sorted returns the candidates in a deterministic order.
func (t table) sorted() []*candidate {
	keys := make([]string, 0, len(t))
	for key := range t {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	cands := make([]*candidate, len(keys))
	for i, key := range keys {
		cands[i] = t[key]
	}
	return cands
}

// cheapest returns the cheapest candidate matching filter.
func (t table) cheapest(p, q float64,
	filter func(miniscript.Type) bool) *candidate {

	var best *candidate
	for _, cand := range t.sorted() {
		if !filter(cand.typ) {
			continue
		}
		if best == nil || better(cand, best, p, q) {
			best = cand
		}
	}
	return best
}

type memoKey struct {
	policy *Policy
	p, q   float64
}

// compilation holds the state of a single Compile call.
type compilation struct {
	*Compiler

	memo map[memoKey]table

	// aux holds the and and or chains a thresh is expanded into, so
	// they are memoized like the policy itself.
	aux map[*Policy][]*Policy
}

// typeErrors remembers why candidates were rejected, preferring timelock
// mixing which is the most useful cause to report.
type typeErrors struct {
	last error
	mix  error
}

func (e *typeErrors) note(err error) {
	if errors.Is(err, miniscript.ErrTimelockMix) {
		if e.mix == nil {
			e.mix = err
		}
		return
	}
	e.last = err
}

func (e *typeErrors) cause() error {
	if e.mix != nil {
		return e.mix
	}
	return e.last
}

// Compile returns the cheapest well typed, non-malleable miniscript which
// implements the policy and passes the sanity checks of the context.
func (c *Compiler) Compile(p *Policy) (*miniscript.Fragment, error) {
	if p.Depth() > c.cfg.MaxDepth {
		return nil, &CompileError{
			Kind:   ErrTooComplex,
			Policy: p.String(),
			Cause: fmt.Errorf("depth %d exceeds %d", p.Depth(),
				c.cfg.MaxDepth),
		}
	}
	if p.Leaves() > c.cfg.MaxLeaves {
		return nil, &CompileError{
			Kind:   ErrTooComplex,
			Policy: p.String(),
			Cause: fmt.Errorf("%d terminals exceed %d", p.Leaves(),
				c.cfg.MaxLeaves),
		}
	}

	comp := &compilation{
		Compiler: c,
		memo:     make(map[memoKey]table),
		aux:      make(map[*Policy][]*Policy),
	}
	tab, err := comp.best(p, 1, 0)
	if err != nil {
		return nil, err
	}

	var (
		best     *candidate
		firstErr error
	)
	for _, cand := range tab.sorted() {
		if cand.typ.Basic() != miniscript.TypeB {
			continue
		}
		if err := miniscript.SanityCheck(cand.frag, c.ctx); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if best == nil || better(cand, best, 1, 0) {
			best = cand
		}
	}
	if best == nil {
		return nil, &CompileError{
			Kind:   ErrInfeasible,
			Policy: p.String(),
			Cause:  firstErr,
		}
	}

	log.Debugf("Compiled %v to %v (cost %.2f) for %v context", p,
		best, best.cost(1, 0), c.ctx)
	return best.frag, nil
}

// best returns the table of the best candidates of a policy which is
// satisfied with probability p and dissatisfied with probability q.
func (c *compilation) best(pol *Policy, p, q float64) (table, error) {
	key := memoKey{policy: pol, p: p, q: q}
	if tab, ok := c.memo[key]; ok {
		return tab, nil
	}

	tab := make(table)
	errs := &typeErrors{}
	if err := c.compile(pol, p, q, tab, errs); err != nil {
		return nil, err
	}
	if len(tab) == 0 {
		return nil, &CompileError{
			Kind:   ErrInfeasible,
			Policy: pol.String(),
			Cause:  errs.cause(),
		}
	}

	log.Tracef("Candidates of %v at p=%.3f q=%.3f: %v", pol, p, q,
		newLogClosure(func() string {
			var s []string
			for _, cand := range tab.sorted() {
				s = append(s, fmt.Sprintf("%s %v cost %.2f",
					cand.typ, cand, cand.cost(p, q)))
			}
			return spew.Sdump(s)
		}))

	c.memo[key] = tab
	return tab, nil
}

// insert adds cand to the table if it is well typed, non-malleable, within
// the limits of the context and cheaper than the current candidate of its
// type.
func (c *compilation) insert(tab table, cand *candidate, p, q float64,
	errs *typeErrors) bool {

	typ, err := cand.frag.Type()
	if err != nil {
		errs.note(err)
		return false
	}
	if !typ.NonMalleable() {
		return false
	}
	if cand.frag.ScriptLen() > c.ctx.MaxScriptSize() {
		return false
	}
	if ops, ok := cand.frag.MaxOpCount(); ok &&
		ops > txscript.MaxOpsPerScript {

		return false
	}

	cand.typ = typ
	key := classKey(typ)
	if old, ok := tab[key]; ok && !better(cand, old, p, q) {
		return false
	}
	tab[key] = cand
	return true
}

// cast is a wrapper, or a sugar expanding to a combinator with a constant,
// which changes the type of a candidate.
type cast struct {
	wrap func(x *miniscript.Fragment) (*miniscript.Fragment, error)
	cost func(sat, dsat float64) (float64, float64)
}

func wrapper(kind miniscript.Kind) func(*miniscript.Fragment) (
	*miniscript.Fragment, error) {

	return func(x *miniscript.Fragment) (*miniscript.Fragment, error) {
		return miniscript.NewWrapper(kind, x)
	}
}

func sameCost(sat, dsat float64) (float64, float64) { return sat, dsat }

var casts = []cast{{
	wrap: wrapper(miniscript.KindWrapA),
	cost: sameCost,
}, {
	wrap: wrapper(miniscript.KindWrapS),
	cost: sameCost,
}, {
	wrap: wrapper(miniscript.KindWrapC),
	cost: sameCost,
}, {
	wrap: wrapper(miniscript.KindWrapD),
	cost: func(sat, _ float64) (float64, float64) {
		return sat + oneCost, emptyCost
	},
}, {
	wrap: wrapper(miniscript.KindWrapV),
	cost: func(sat, _ float64) (float64, float64) {
		return sat, infinity
	},
}, {
	wrap: wrapper(miniscript.KindWrapJ),
	cost: func(sat, _ float64) (float64, float64) {
		return sat, emptyCost
	},
}, {
	wrap: wrapper(miniscript.KindWrapN),
	cost: sameCost,
}, {
	// t:X = and_v(X,1)
	wrap: func(x *miniscript.Fragment) (*miniscript.Fragment, error) {
		return miniscript.NewBinary(miniscript.KindAndV, x,
			miniscript.True())
	},
	cost: func(sat, _ float64) (float64, float64) {
		return sat, infinity
	},
}, {
	// l:X = or_i(0,X)
	wrap: func(x *miniscript.Fragment) (*miniscript.Fragment, error) {
		return miniscript.NewBinary(miniscript.KindOrI,
			miniscript.False(), x)
	},
	cost: func(sat, dsat float64) (float64, float64) {
		return sat + emptyCost, math.Min(oneCost, dsat+emptyCost)
	},
}, {
	// u:X = or_i(X,0)
	wrap: func(x *miniscript.Fragment) (*miniscript.Fragment, error) {
		return miniscript.NewBinary(miniscript.KindOrI, x,
			miniscript.False())
	},
	cost: func(sat, dsat float64) (float64, float64) {
		return sat + oneCost, math.Min(dsat+oneCost, emptyCost)
	},
}}

// insertWrapped inserts cand and every candidate reachable from it by
// casts which improves the table.
func (c *compilation) insertWrapped(tab table, cand *candidate, p, q float64,
	errs *typeErrors) {

	if !c.insert(tab, cand, p, q, errs) {
		return
	}
	queue := []*candidate{cand}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.casts >= maxCasts {
			continue
		}
		for _, cs := range casts {
			frag, err := cs.wrap(cur.frag)
			if err != nil {
				continue
			}
			sat, dsat := cs.cost(cur.satCost, cur.dsatCost)
			next := &candidate{
				frag:     frag,
				satCost:  sat,
				dsatCost: dsat,
				casts:    cur.casts + 1,
			}
			// Type errors of casts are expected and not worth
			// reporting.
			if c.insert(tab, next, p, q, &typeErrors{}) {
				queue = append(queue, next)
			}
		}
	}
}

// compile fills tab with the candidates of pol.
func (c *compilation) compile(pol *Policy, p, q float64, tab table,
	errs *typeErrors) error {

	term := func(frag *miniscript.Fragment, err error, sat,
		dsat float64) error {

		if err != nil {
			return &CompileError{
				Kind:   ErrInfeasible,
				Policy: pol.String(),
				Cause:  err,
			}
		}
		c.insertWrapped(tab, &candidate{
			frag:     frag,
			satCost:  sat,
			dsatCost: dsat,
		}, p, q, errs)
		return nil
	}

	switch pol.kind {
	case KindUnsatisfiable:
		return term(miniscript.False(), nil, infinity, 0)

	case KindTrivial:
		return term(miniscript.True(), nil, 0, infinity)

	case KindKey:
		frag, err := miniscript.NewPkK(pol.key)
		if err := term(frag, err, sigCost, emptyCost); err != nil {
			return err
		}
		frag, err = miniscript.NewPkH(pol.key)
		return term(frag, err, sigCost+pubKeyCost, emptyCost+pubKeyCost)

	case KindAfter:
		frag, err := miniscript.NewAfter(pol.lock)
		return term(frag, err, 0, infinity)

	case KindOlder:
		frag, err := miniscript.NewOlder(pol.lock)
		return term(frag, err, 0, infinity)

	case KindHash:
		frag, err := miniscript.NewHash(pol.hashKind, pol.hash)
		return term(frag, err, preimageCost, preimageCost)

	case KindExt:
		frag, err := miniscript.NewExt(pol.ext)
		dsat := infinity
		if err == nil && pol.ext.Type().Dissatisfiable() {
			dsat = 0
		}
		return term(frag, err, 0, dsat)

	case KindAnd:
		return c.compileAnd(pol, p, q, tab, errs)

	case KindOr:
		return c.compileOr(pol, p, q, tab, errs)

	case KindThresh:
		return c.compileThresh(pol, p, q, tab, errs)
	}
	return &CompileError{
		Kind:   ErrInfeasible,
		Policy: pol.String(),
		Cause:  fmt.Errorf("unknown policy kind %d", pol.kind),
	}
}

// combine inserts kind(subs...) for every combination of the candidates of
// the sub tables. costs computes the witness costs from the candidates of
// the subexpressions.
func (c *compilation) combine(tab table, p, q float64, errs *typeErrors,
	kind miniscript.Kind, costs func(subs []*candidate) (float64, float64),
	subTabs ...table) {

	lists := make([][]*candidate, len(subTabs))
	for i, subTab := range subTabs {
		lists[i] = subTab.sorted()
	}

	subs := make([]*candidate, len(subTabs))
	var rec func(i int)
	rec = func(i int) {
		if i < len(lists) {
			for _, cand := range lists[i] {
				subs[i] = cand
				rec(i + 1)
			}
			return
		}

		var (
			frag *miniscript.Fragment
			err  error
		)
		switch kind {
		case miniscript.KindAndOr:
			frag, err = miniscript.NewAndOr(subs[0].frag,
				subs[1].frag, subs[2].frag)
		default:
			frag, err = miniscript.NewBinary(kind, subs[0].frag,
				subs[1].frag)
		}
		if err != nil {
			errs.note(err)
			return
		}
		sat, dsat := costs(subs)
		c.insertWrapped(tab, &candidate{
			frag:     frag,
			satCost:  sat,
			dsatCost: dsat,
		}, p, q, errs)
	}
	rec(0)
}

func andCost(subs []*candidate) (float64, float64) {
	return subs[0].satCost + subs[1].satCost,
		subs[0].dsatCost + subs[1].dsatCost
}

func andVCost(subs []*candidate) (float64, float64) {
	return subs[0].satCost + subs[1].satCost, infinity
}

// andNCost is the cost of andor(X,Y,0).
func andNCost(subs []*candidate) (float64, float64) {
	return subs[0].satCost + subs[1].satCost, subs[0].dsatCost
}

func (c *compilation) compileAnd(pol *Policy, p, q float64, tab table,
	errs *typeErrors) error {

	x, y := pol.subs[0], pol.subs[1]
	left, err := c.best(x, p, q)
	if err != nil {
		return err
	}
	right, err := c.best(y, p, q)
	if err != nil {
		return err
	}
	leftZ, err := c.best(x, p, 0)
	if err != nil {
		return err
	}
	rightZ, err := c.best(y, p, 0)
	if err != nil {
		return err
	}

	c.combine(tab, p, q, errs, miniscript.KindAndB, andCost, left, right)
	c.combine(tab, p, q, errs, miniscript.KindAndB, andCost, right, left)
	c.combine(tab, p, q, errs, miniscript.KindAndV, andVCost, leftZ,
		rightZ)
	c.combine(tab, p, q, errs, miniscript.KindAndV, andVCost, rightZ,
		leftZ)

	falseTab := table{"0": &candidate{
		frag:     miniscript.False(),
		satCost:  infinity,
		dsatCost: 0,
	}}
	c.combine(tab, p, q, errs, miniscript.KindAndOr, andNCost, left,
		rightZ, falseTab)
	c.combine(tab, p, q, errs, miniscript.KindAndOr, andNCost, right,
		leftZ, falseTab)
	return nil
}

// orCosts returns the cost functions of the or combinators when the first
// subexpression is used with probability lw and the second with rw.
func orCosts(kind miniscript.Kind, lw, rw float64) func(
	[]*candidate) (float64, float64) {

	return func(subs []*candidate) (float64, float64) {
		l, r := subs[0], subs[1]
		switch kind {
		case miniscript.KindOrB:
			return mul(lw, l.satCost+r.dsatCost) +
					mul(rw, r.satCost+l.dsatCost),
				l.dsatCost + r.dsatCost

		case miniscript.KindOrD:
			return mul(lw, l.satCost) +
					mul(rw, r.satCost+l.dsatCost),
				l.dsatCost + r.dsatCost

		case miniscript.KindOrC:
			return mul(lw, l.satCost) +
				mul(rw, r.satCost+l.dsatCost), infinity

		default:
			return mul(lw, l.satCost+oneCost) +
					mul(rw, r.satCost+emptyCost),
				math.Min(l.dsatCost+oneCost,
					r.dsatCost+emptyCost)
		}
	}
}

// andOrCost is the cost of andor(X,Y,Z) where Y is used with probability lw
// and Z with rw.
func andOrCost(lw, rw float64) func([]*candidate) (float64, float64) {
	return func(subs []*candidate) (float64, float64) {
		x, y, z := subs[0], subs[1], subs[2]
		return mul(lw, x.satCost+y.satCost) +
				mul(rw, x.dsatCost+z.satCost),
			x.dsatCost + z.dsatCost
	}
}

func (c *compilation) compileOr(pol *Policy, p, q float64, tab table,
	errs *typeErrors) error {

	x, y := pol.subs[0], pol.subs[1]
	total := float64(pol.weights[0]) + float64(pol.weights[1])
	lw := float64(pol.weights[0]) / total
	rw := float64(pol.weights[1]) / total

	left, err := c.best(x, lw*p, q+rw*p)
	if err != nil {
		return err
	}
	right, err := c.best(y, rw*p, q+lw*p)
	if err != nil {
		return err
	}
	leftZ, err := c.best(x, lw*p, 0)
	if err != nil {
		return err
	}
	rightZ, err := c.best(y, rw*p, 0)
	if err != nil {
		return err
	}

	for _, kind := range []miniscript.Kind{
		miniscript.KindOrB, miniscript.KindOrD,
	} {
		c.combine(tab, p, q, errs, kind, orCosts(kind, lw, rw), left,
			right)
		c.combine(tab, p, q, errs, kind, orCosts(kind, rw, lw), right,
			left)
	}
	c.combine(tab, p, q, errs, miniscript.KindOrC,
		orCosts(miniscript.KindOrC, lw, rw), left, rightZ)
	c.combine(tab, p, q, errs, miniscript.KindOrC,
		orCosts(miniscript.KindOrC, rw, lw), right, leftZ)
	c.combine(tab, p, q, errs, miniscript.KindOrI,
		orCosts(miniscript.KindOrI, lw, rw), leftZ, rightZ)
	c.combine(tab, p, q, errs, miniscript.KindOrI,
		orCosts(miniscript.KindOrI, rw, lw), rightZ, leftZ)
	c.combine(tab, p, q, errs, miniscript.KindOrI,
		orCosts(miniscript.KindOrI, lw, rw), left, right)
	c.combine(tab, p, q, errs, miniscript.KindOrI,
		orCosts(miniscript.KindOrI, rw, lw), right, left)

	// or(and(A,B),Z) can be encoded as andor(A,B,Z).
	try := func(and, other *Policy, w, ow float64) error {
		if and.kind != KindAnd {
			return nil
		}
		for _, order := range [][2]*Policy{
			{and.subs[0], and.subs[1]},
			{and.subs[1], and.subs[0]},
		} {
			a, err := c.best(order[0], w*p, q+ow*p)
			if err != nil {
				return err
			}
			b, err := c.best(order[1], w*p, 0)
			if err != nil {
				return err
			}
			z, err := c.best(other, ow*p, q)
			if err != nil {
				return err
			}
			c.combine(tab, p, q, errs, miniscript.KindAndOr,
				andOrCost(w, ow), a, b, z)
		}
		return nil
	}
	if err := try(x, y, lw, rw); err != nil {
		return err
	}
	return try(y, x, rw, lw)
}

// chains returns the and chain and the equally weighted or chain of the
// subpolicies of a thresh.
func (c *compilation) chains(pol *Policy) (*Policy, *Policy, error) {
	if aux, ok := c.aux[pol]; ok {
		return aux[0], aux[1], nil
	}

	n := len(pol.subs)
	andChain, orChain := pol.subs[n-1], pol.subs[n-1]
	for i := n - 2; i >= 0; i-- {
		var err error
		andChain, err = NewAnd(pol.subs[i], andChain)
		if err != nil {
			return nil, nil, err
		}
		orChain, err = NewOr(pol.subs[i], orChain, 1, uint32(n-1-i))
		if err != nil {
			return nil, nil, err
		}
	}
	c.aux[pol] = []*Policy{andChain, orChain}
	return andChain, orChain, nil
}

func (c *compilation) compileThresh(pol *Policy, p, q float64, tab table,
	errs *typeErrors) error {

	n := len(pol.subs)
	k := pol.k

	// thresh(n,...) is an and chain and thresh(1,...) an or chain.
	if n > 1 && (k == n || k == 1) {
		andChain, orChain, err := c.chains(pol)
		if err != nil {
			return err
		}
		chain := andChain
		if k == 1 {
			chain = orChain
		}
		chainTab, err := c.best(chain, p, q)
		if err == nil {
			for _, cand := range chainTab.sorted() {
				c.insert(tab, cand, p, q, errs)
			}
		} else {
			errs.note(err)
		}
	}

	if n == 1 {
		subTab, err := c.best(pol.subs[0], p, q)
		if err != nil {
			return err
		}
		for _, cand := range subTab.sorted() {
			c.insert(tab, cand, p, q, errs)
		}
		return nil
	}

	// All keys can be a multi.
	keys := make([]miniscript.Key, 0, n)
	for _, sub := range pol.subs {
		if sub.kind == KindKey {
			keys = append(keys, sub.key)
		}
	}
	if len(keys) == n && n <= maxMultiKeys {
		frag, err := miniscript.NewMulti(k, keys)
		if err == nil {
			c.insertWrapped(tab, &candidate{
				frag:     frag,
				satCost:  emptyCost + float64(k)*sigCost,
				dsatCost: float64(k+1) * emptyCost,
			}, p, q, errs)
		} else {
			errs.note(err)
		}
	}

	if n > miniscript.MaxThresholdArity {
		return nil
	}

	// The first subexpression of thresh must be Bdue and the others
	// Wdue. The one which costs least extra as B goes first.
	kn := float64(k) / float64(n)
	sp, dp := p*kn, q+p*(1-kn)
	isDUE := func(typ miniscript.Type) bool {
		return typ.Dissatisfiable() && typ.Unit() && typ.Expressive()
	}
	bests := make([]*candidate, n)
	ws := make([]*candidate, n)
	first, minDiff := -1, infinity
	for i, sub := range pol.subs {
		subTab, err := c.best(sub, sp, dp)
		if err != nil {
			return err
		}
		bests[i] = subTab.cheapest(sp, dp, func(typ miniscript.Type) bool {
			return typ.Basic() == miniscript.TypeB && isDUE(typ)
		})
		ws[i] = subTab.cheapest(sp, dp, func(typ miniscript.Type) bool {
			return typ.Basic() == miniscript.TypeW && isDUE(typ)
		})
		if bests[i] == nil {
			continue
		}
		wCost := infinity
		if ws[i] != nil {
			wCost = ws[i].cost(sp, dp)
		}
		if diff := bests[i].cost(sp, dp) - wCost; first < 0 ||
			diff < minDiff {

			first, minDiff = i, diff
		}
	}
	if first < 0 {
		return nil
	}

	subs := []*candidate{bests[first]}
	for i := range pol.subs {
		if i == first {
			continue
		}
		if ws[i] == nil {
			return nil
		}
		subs = append(subs, ws[i])
	}

	frags := make([]*miniscript.Fragment, len(subs))
	var sat, dsat float64
	for i, sub := range subs {
		frags[i] = sub.frag
		sat += mul(kn, sub.satCost) + mul(1-kn, sub.dsatCost)
		dsat += sub.dsatCost
	}
	frag, err := miniscript.NewThresh(k, frags)
	if err != nil {
		errs.note(err)
		return nil
	}
	c.insertWrapped(tab, &candidate{
		frag:     frag,
		satCost:  sat,
		dsatCost: dsat,
	}, p, q, errs)
	return nil
}
