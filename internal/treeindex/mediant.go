// Package treeindex implements the Farey-sequence/mediant ordering algebra
// described for the tree engine: computing insertion keys, validating the
// subtree-as-range-scan invariant, and driving insert/delete mutations
// against a Store. Ordering comparisons are done with math/big.Int
// cross-multiplication rather than a float cast, so deep trees never lose
// ordering precision the way a `lft_num/lft_den::float` comparison would.
package treeindex

import "math/big"

// Mediant returns the mediant of a/b and c/d: (a+c)/(b+d), as a plain
// int64 numerator/denominator pair. Inputs need not be in lowest terms and
// the result is not reduced; the engine persists such pairs directly, which
// keeps the schema a plain pair of integers per the data model. The sums
// are int64 additions with no overflow check.
func Mediant(aNum, aDen, cNum, cDen int64) (num, den int64) {
	return aNum + cNum, aDen + cDen
}

// Less reports whether num1/den1 < num2/den2 using cross-multiplication on
// big.Int, avoiding any lossy float cast. Denominators must be positive.
func Less(num1, den1, num2, den2 int64) bool {
	lhs := new(big.Int).Mul(big.NewInt(num1), big.NewInt(den2))
	rhs := new(big.Int).Mul(big.NewInt(num2), big.NewInt(den1))
	return lhs.Cmp(rhs) < 0
}

// LessEq reports whether num1/den1 <= num2/den2.
func LessEq(num1, den1, num2, den2 int64) bool {
	lhs := new(big.Int).Mul(big.NewInt(num1), big.NewInt(den2))
	rhs := new(big.Int).Mul(big.NewInt(num2), big.NewInt(den1))
	return lhs.Cmp(rhs) <= 0
}

// Equal reports whether num1/den1 == num2/den2.
func Equal(num1, den1, num2, den2 int64) bool {
	lhs := new(big.Int).Mul(big.NewInt(num1), big.NewInt(den2))
	rhs := new(big.Int).Mul(big.NewInt(num2), big.NewInt(den1))
	return lhs.Cmp(rhs) == 0
}

// AsFloat renders num/den as a float64, used only to populate the
// secondary lft_float index hint column — never as the basis for an
// ordering decision. See the REDESIGN FLAG decision in DESIGN.md.
func AsFloat(num, den int64) float64 {
	r := new(big.Rat).SetFrac64(num, den)
	f, _ := r.Float64()
	return f
}

// MediantHolder is satisfied by anything that can act as a tree-engine
// parent: an Instance (synthetic root) or a Comment. It models the
// "polymorphic parent" capability set from the design notes: a mediant
// base, a reference right key, and a direct-child counter.
type MediantHolder interface {
	LeftIns() (num, den int64)
	SetLeftIns(num, den int64)
	ReferenceRight() (num, den int64)
	IncChildren(delta int64)
}

// NextChildKeys computes the left/right keys a new direct child of parent
// would receive, and the mediant parent.LeftIns must advance to. It does
// not mutate parent; callers apply SetLeftIns/IncChildren themselves once
// the child row has been persisted, matching the insert contract's
// ordering: compute keys, persist child, then advance and persist parent.
func NextChildKeys(parent MediantHolder) (childLftNum, childLftDen, childRhtNum, childRhtDen int64) {
	lftNum, lftDen := parent.LeftIns()
	refNum, refDen := parent.ReferenceRight()
	medNum, medDen := Mediant(lftNum, lftDen, refNum, refDen)
	return lftNum, lftDen, medNum, medDen
}
