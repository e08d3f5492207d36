package gf65537

import "testing"

func elementsEqual(a, b []Element) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPolyDegree(t *testing.T) {
	cases := []struct {
		p    []Element
		want int
	}{
		{nil, -1},
		{[]Element{0}, -1},
		{[]Element{0, 0, 0}, -1},
		{[]Element{1}, 0},
		{[]Element{0, 1}, 1},
		{[]Element{1, 0, 0}, 0},
	}
	for _, c := range cases {
		if got := PolyDegree(c.p); got != c.want {
			t.Errorf("PolyDegree(%v) = %d, want %d", c.p, got, c.want)
		}
	}
}

func TestPolyAddSubRoundTrip(t *testing.T) {
	a := []Element{1, 2, 3}
	b := []Element{10, 20}
	sum := PolyAdd(a, b)
	back := PolySub(sum, b)
	want := []Element{1, 2, 3}
	if !elementsEqual(PolyNormalize(back), PolyNormalize(want)) {
		t.Fatalf("PolySub(PolyAdd(a,b),b) = %v, want %v", back, want)
	}
}

func TestPolyAddSelfIsZeroUnderSub(t *testing.T) {
	a := []Element{5, 6, 7}
	sum := PolyAdd(a, a)
	diff := PolySub(sum, a)
	if !elementsEqual(diff, a) {
		t.Fatalf("PolySub(PolyAdd(a,a),a) = %v, want %v", diff, a)
	}
}

// P-POLY-1: a = (a div b)*b + (a mod b).
func TestPolyDivModReconstructsDividend(t *testing.T) {
	cases := [][2][]Element{
		{{1, 2, 3, 4, 5}, {1, 1}},
		{{0, 0, 0, 1}, {5, 3, 1}},
		{{7}, {1, 1}},
		{{1, 2, 3, 4, 5, 6, 7, 8}, {1, 0, 1}},
	}
	for _, c := range cases {
		a, b := c[0], c[1]
		q, r := PolyDivMod(a, b)
		reconstructed := PolyAdd(PolyMul(q, b), r)
		want := PolyNormalize(append([]Element(nil), a...))
		got := PolyNormalize(reconstructed)
		if !elementsEqual(got, want) {
			t.Fatalf("PolyDivMod(%v,%v): q*b+r = %v, want %v", a, b, got, want)
		}
		if PolyDegree(r) >= 0 && PolyDegree(r) >= PolyDegree(b) {
			t.Fatalf("remainder degree %d >= divisor degree %d", PolyDegree(r), PolyDegree(b))
		}
	}
}

func TestPolyMulDegreeAdds(t *testing.T) {
	a := []Element{1, 2, 3}
	b := []Element{1, 1}
	prod := PolyMul(a, b)
	if PolyDegree(prod) != 3 {
		t.Fatalf("PolyMul degree = %d, want 3", PolyDegree(prod))
	}
}

func TestPolyEvalAtZeroIsConstantTerm(t *testing.T) {
	p := []Element{42, 1, 2}
	if got := PolyEval(p, 0); got != 42 {
		t.Fatalf("PolyEval(p,0) = %d, want 42", got)
	}
}

func TestPolyEvalMatchesDirectEvaluation(t *testing.T) {
	p := []Element{3, 5, 7, 1} // 3 + 5x + 7x^2 + x^3
	x := Element(11)
	want := Add(Add(Add(3, Mul(5, x)), Mul(7, Mul(x, x))), Mul(1, Mul(Mul(x, x), x)))
	if got := PolyEval(p, x); got != want {
		t.Fatalf("PolyEval(p,%d) = %d, want %d", x, got, want)
	}
}

// P-POLY-2, adapted for non-characteristic-2 arithmetic: PolyModXN returns
// the raw (un-negated) remainder, so appending the NEGATED remainder to the
// message and recomputing must yield zero (msg.x^n + (-R) mod G = R - R = 0).
func TestPolyModXNMatchesDirectPolyMod(t *testing.T) {
	genTail := []Element{100, 200, 300, 400}
	msg := []Element{1, 2, 3, 4, 5}

	rem := PolyModXN(msg, genTail)

	// Direct check against the generic ascending-order PolyMod: write the
	// dividend msg||0^n and the divisor 1||genTail in ascending order,
	// reduce, and compare the remainder read back in descending order.
	n := len(genTail)
	dividend := make([]Element, len(msg)+n)
	for i, v := range msg {
		dividend[len(msg)+n-1-i] = v
	}
	divisor := make([]Element, n+1)
	divisor[n] = 1
	for i, v := range genTail {
		divisor[n-1-i] = v
	}
	direct := PolyMod(dividend, divisor)
	for i := 0; i < n; i++ {
		var want Element
		if n-1-i < len(direct) {
			want = direct[n-1-i]
		}
		if rem[i] != want {
			t.Fatalf("PolyModXN = %v, PolyMod (ascending) = %v", rem, direct)
		}
	}

	negated := make([]Element, len(rem))
	for i, v := range rem {
		negated[i] = Neg(v)
	}
	extended := append(append([]Element(nil), msg...), negated...)
	remAfter := PolyModXN(extended, genTail)
	for i, v := range remAfter {
		if v != 0 {
			t.Fatalf("remainder of (msg||-remainder) mod generator not zero at %d: %v", i, remAfter)
		}
	}
}

func TestPolyModXNZeroMessageGivesZeroRemainder(t *testing.T) {
	genTail := []Element{1, 2, 3, 4}
	rem := PolyModXN([]Element{0, 0, 0}, genTail)
	for _, v := range rem {
		if v != 0 {
			t.Fatalf("PolyModXN(zero msg) = %v, want all zero", rem)
		}
	}
}
