package treeindex

import "testing"

func TestLess(t *testing.T) {
	cases := []struct {
		n1, d1, n2, d2 int64
		want           bool
	}{
		{0, 1, 1, 1, true},
		{1, 1, 0, 1, false},
		{1, 2, 1, 2, false},
		{1, 3, 1, 2, true},
		{2, 3, 1, 2, false},
	}
	for _, c := range cases {
		if got := Less(c.n1, c.d1, c.n2, c.d2); got != c.want {
			t.Errorf("Less(%d/%d, %d/%d) = %v, want %v", c.n1, c.d1, c.n2, c.d2, got, c.want)
		}
	}
}

func TestEqualAndLessEq(t *testing.T) {
	if !Equal(1, 2, 2, 4) {
		t.Error("1/2 should equal 2/4")
	}
	if !LessEq(1, 2, 2, 4) {
		t.Error("1/2 <= 2/4 should hold (equal)")
	}
	if LessEq(2, 3, 1, 2) {
		t.Error("2/3 <= 1/2 should not hold")
	}
}

func TestMediantStrictlyBetween(t *testing.T) {
	// Mediant of 0/1 and 1/1 is 1/2, strictly between the two endpoints.
	num, den := Mediant(0, 1, 1, 1)
	if !Less(0, 1, num, den) || !Less(num, den, 1, 1) {
		t.Errorf("mediant %d/%d not strictly between 0/1 and 1/1", num, den)
	}
}

func TestMediantPreservesOrderingAcrossDepth(t *testing.T) {
	// Repeated mediant-of-left-and-previous-key simulates nesting: each
	// level's first child takes the mediant of the shared left bound and its
	// parent's right key, so each new key must stay strictly less than the
	// previous one and strictly greater than the fixed left bound.
	leftNum, leftDen := int64(0), int64(1)
	refNum, refDen := int64(1), int64(1)

	prevNum, prevDen := refNum, refDen
	for i := 0; i < 50; i++ {
		num, den := Mediant(leftNum, leftDen, prevNum, prevDen)
		if !Less(leftNum, leftDen, num, den) {
			t.Fatalf("iteration %d: new key %d/%d not greater than left bound", i, num, den)
		}
		if !Less(num, den, prevNum, prevDen) {
			t.Fatalf("iteration %d: new key %d/%d not less than previous bound", i, num, den)
		}
		prevNum, prevDen = num, den
	}
}

func TestAsFloatMatchesRatOrdering(t *testing.T) {
	if AsFloat(1, 2) >= AsFloat(2, 3) {
		t.Errorf("AsFloat(1/2)=%v should be < AsFloat(2/3)=%v", AsFloat(1, 2), AsFloat(2, 3))
	}
}

type fakeHolder struct {
	lftNum, lftDen int64
	refNum, refDen int64
	children       int64
}

func (f *fakeHolder) LeftIns() (int64, int64)       { return f.lftNum, f.lftDen }
func (f *fakeHolder) SetLeftIns(num, den int64)     { f.lftNum, f.lftDen = num, den }
func (f *fakeHolder) ReferenceRight() (int64, int64) { return f.refNum, f.refDen }
func (f *fakeHolder) IncChildren(delta int64)       { f.children += delta }

func TestNextChildKeysAdvancesWithinBounds(t *testing.T) {
	parent := &fakeHolder{lftNum: 0, lftDen: 1, refNum: 1, refDen: 1}

	var lastRht struct{ num, den int64 }
	for i := 0; i < 5; i++ {
		childLftNum, childLftDen, childRhtNum, childRhtDen := NextChildKeys(parent)
		if !Less(childLftNum, childLftDen, childRhtNum, childRhtDen) {
			t.Fatalf("child %d: lft %d/%d not less than rht %d/%d", i, childLftNum, childLftDen, childRhtNum, childRhtDen)
		}
		if !Less(childRhtNum, childRhtDen, parent.refNum, parent.refDen) {
			t.Fatalf("child %d: rht %d/%d escapes parent reference right bound", i, childRhtNum, childRhtDen)
		}
		parent.SetLeftIns(childRhtNum, childRhtDen)
		parent.IncChildren(1)
		lastRht.num, lastRht.den = childRhtNum, childRhtDen
	}
	if parent.children != 5 {
		t.Errorf("children = %d, want 5", parent.children)
	}
	if !Equal(parent.lftNum, parent.lftDen, lastRht.num, lastRht.den) {
		t.Errorf("parent left bound did not advance to last child's right key")
	}
}
