package gf256

import (
	"bytes"
	"testing"
)

func TestPolyDegree(t *testing.T) {
	cases := []struct {
		p    []byte
		want int
	}{
		{nil, -1},
		{[]byte{0}, -1},
		{[]byte{0, 0, 0}, -1},
		{[]byte{1}, 0},
		{[]byte{0, 1}, 1},
		{[]byte{1, 0, 0}, 0},
	}
	for _, c := range cases {
		if got := PolyDegree(c.p); got != c.want {
			t.Errorf("PolyDegree(%v) = %d, want %d", c.p, got, c.want)
		}
	}
}

func TestPolyAddIsSubInCharacteristic2(t *testing.T) {
	f, _ := New(DefaultPoly1, DefaultPrimitive)
	a := []byte{1, 2, 3}
	b := []byte{4, 5}
	if !bytes.Equal(f.PolyAdd(a, b), f.PolySub(a, b)) {
		t.Fatal("PolyAdd != PolySub in characteristic 2")
	}
}

func TestPolyAddSelfInverse(t *testing.T) {
	f, _ := New(DefaultPoly1, DefaultPrimitive)
	a := []byte{0x12, 0x34, 0x56}
	sum := f.PolyAdd(a, a)
	for i, v := range sum {
		if v != 0 {
			t.Fatalf("PolyAdd(a,a)[%d] = %d, want 0", i, v)
		}
	}
}

// P-POLY-1: a = (a div b)*b + (a mod b).
func TestPolyDivModReconstructsDividend(t *testing.T) {
	f, _ := New(DefaultPoly1, DefaultPrimitive)
	cases := [][2][]byte{
		{{1, 2, 3, 4, 5}, {1, 1}},
		{{0, 0, 0, 1}, {5, 3, 1}},
		{{7}, {1, 1}},
		{{1, 2, 3, 4, 5, 6, 7, 8}, {1, 0, 1}},
	}
	for _, c := range cases {
		a, b := c[0], c[1]
		q, r := f.PolyDivMod(a, b)
		reconstructed := f.PolyAdd(f.PolyMul(q, b), r)
		want := PolyNormalize(append([]byte(nil), a...))
		got := PolyNormalize(reconstructed)
		if !bytes.Equal(got, want) {
			t.Fatalf("PolyDivMod(%v,%v): q*b+r = %v, want %v", a, b, got, want)
		}
		if PolyDegree(r) >= 0 && PolyDegree(r) >= PolyDegree(b) {
			t.Fatalf("remainder degree %d >= divisor degree %d", PolyDegree(r), PolyDegree(b))
		}
	}
}

func TestPolyMulDegreeAdds(t *testing.T) {
	f, _ := New(DefaultPoly1, DefaultPrimitive)
	a := []byte{1, 2, 3}   // degree 2
	b := []byte{1, 1}      // degree 1
	prod := f.PolyMul(a, b) // degree 3
	if PolyDegree(prod) != 3 {
		t.Fatalf("PolyMul degree = %d, want 3", PolyDegree(prod))
	}
}

func TestPolyEvalAtZeroIsConstantTerm(t *testing.T) {
	f, _ := New(DefaultPoly1, DefaultPrimitive)
	p := []byte{0x42, 0x01, 0x02}
	if got := f.PolyEval(p, 0); got != 0x42 {
		t.Fatalf("PolyEval(p,0) = %#x, want 0x42", got)
	}
}

func TestPolyEvalMatchesDirectEvaluation(t *testing.T) {
	f, _ := New(DefaultPoly1, DefaultPrimitive)
	p := []byte{3, 5, 7, 1} // 3 + 5x + 7x^2 + x^3
	x := byte(0x05)
	want := f.Add(f.Add(f.Add(3, f.Mul(5, x)), f.Mul(7, f.Mul(x, x))), f.Mul(1, f.Mul(f.Mul(x, x), x)))
	if got := f.PolyEval(p, x); got != want {
		t.Fatalf("PolyEval(p,%d) = %d, want %d", x, got, want)
	}
}

// P-POLY-2: poly_mod_x_n(a, b_tail) = (a*x^n) mod (x^n + b_tail).
func TestPolyModXNMatchesDirectPolyMod(t *testing.T) {
	f, _ := New(DefaultPoly1, DefaultPrimitive)
	genTail := []byte{0xC2, 0xD9, 0x36, 0xC1} // descending order, as rs256 uses it
	msg := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	got := f.PolyModXN(msg, genTail)

	// Direct check against the generic ascending-order PolyMod: write the
	// dividend msg||0^n and the divisor 1||genTail in ascending order,
	// reduce, and compare the remainder read back in descending order.
	n := len(genTail)
	dividend := make([]byte, len(msg)+n)
	for i, v := range msg {
		dividend[len(msg)+n-1-i] = v
	}
	divisor := make([]byte, n+1)
	divisor[n] = 1
	for i, v := range genTail {
		divisor[n-1-i] = v
	}
	direct := f.PolyMod(dividend, divisor)
	for i := 0; i < n; i++ {
		var want byte
		if n-1-i < len(direct) {
			want = direct[n-1-i]
		}
		if got[i] != want {
			t.Fatalf("PolyModXN = %v, PolyMod (ascending) = %v", got, direct)
		}
	}

	// Self-consistency: appending the remainder to msg must produce a buffer
	// whose value is divisible by the generator.
	extended := append(append([]byte(nil), msg...), got...)
	remAfter := f.PolyModXN(extended, genTail)
	for i, v := range remAfter {
		if v != 0 {
			t.Fatalf("remainder of (msg||remainder) mod generator not zero at %d: %v", i, remAfter)
		}
	}
}

func TestPolyModXNZeroMessageGivesZeroRemainder(t *testing.T) {
	f, _ := New(DefaultPoly1, DefaultPrimitive)
	genTail := []byte{1, 2, 3, 4}
	rem := f.PolyModXN([]byte{0, 0, 0}, genTail)
	for _, v := range rem {
		if v != 0 {
			t.Fatalf("PolyModXN(zero msg) = %v, want all zero", rem)
		}
	}
}
