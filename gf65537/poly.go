package gf65537

// Polynomials are ascending-degree coefficient slices: index 0 is the
// constant term, mirroring gf256's convention.

// PolyDegree returns the index of the highest non-zero coefficient, or -1
// for the zero polynomial.
func PolyDegree(p []Element) int {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] != 0 {
			return i
		}
	}
	return -1
}

// PolyNormalize trims trailing zero coefficients.
func PolyNormalize(p []Element) []Element {
	deg := PolyDegree(p)
	if deg < 0 {
		return []Element{0}
	}
	return p[:deg+1]
}

// PolyAdd returns a+b.
func PolyAdd(a, b []Element) []Element {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]Element, n)
	copy(out, a)
	for i, c := range b {
		out[i] = Add(out[i], c)
	}
	return out
}

// PolySub returns a-b.
func PolySub(a, b []Element) []Element {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]Element, n)
	copy(out, a)
	for i, c := range b {
		out[i] = Sub(out[i], c)
	}
	return out
}

// PolyMul returns a*b.
func PolyMul(a, b []Element) []Element {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	out := make([]Element, len(a)+len(b)-1)
	for i, ac := range a {
		if ac == 0 {
			continue
		}
		for j, bc := range b {
			out[i+j] = Add(out[i+j], Mul(ac, bc))
		}
	}
	return out
}

// PolyScale returns p scaled by a constant.
func PolyScale(p []Element, c Element) []Element {
	out := make([]Element, len(p))
	for i, v := range p {
		out[i] = Mul(v, c)
	}
	return out
}

// PolyEval evaluates p at x using Horner's method over ascending-order
// coefficients.
func PolyEval(p []Element, x Element) Element {
	if len(p) == 0 {
		return 0
	}
	result := p[len(p)-1]
	for i := len(p) - 2; i >= 0; i-- {
		result = Add(Mul(result, x), p[i])
	}
	return result
}

// PolyDivMod divides a by b, returning quotient and remainder, both
// ascending-order. b must be non-zero.
func PolyDivMod(a, b []Element) (quotient, remainder []Element) {
	bDeg := PolyDegree(b)
	if bDeg < 0 {
		return nil, nil
	}
	aDeg := PolyDegree(a)
	if aDeg < bDeg {
		return []Element{0}, append([]Element(nil), a...)
	}

	rem := make([]Element, len(a))
	copy(rem, a)
	quot := make([]Element, aDeg-bDeg+1)
	bLeadInv, _ := Inv(b[bDeg])

	for i := aDeg; i >= bDeg; i-- {
		if rem[i] == 0 {
			continue
		}
		coeff := Mul(rem[i], bLeadInv)
		quot[i-bDeg] = coeff
		for j := 0; j <= bDeg; j++ {
			rem[i-bDeg+j] = Sub(rem[i-bDeg+j], Mul(coeff, b[j]))
		}
	}
	return quot, PolyNormalize(rem[:bDeg+1])
}

// PolyMod returns a mod b.
func PolyMod(a, b []Element) []Element {
	_, rem := PolyDivMod(a, b)
	return rem
}

// PolyModXN computes the remainder of msg . x^n divided by (x^n || genTail)
// via extended synthetic division, the GF(65537) analogue of gf256's
// PolyModXN. Unlike the characteristic-2 field, subtraction is not addition
// here, so the scaled generator tail is subtracted from (rather than XORed
// into) the rolling remainder. The returned value
// is the raw remainder of msg.x^n mod G(x), not yet negated; callers that
// want systematic parity (codeword orthogonal to G under evaluation) must
// negate it elementwise, since parity = -(msg.x^n mod G(x)) in any field
// where negation isn't its own inverse (see rsi16.Codec.Encode).
func PolyModXN(msg []Element, genTail []Element) []Element {
	n := len(genTail)
	remainder := make([]Element, n)
	for _, coef := range msg {
		feedback := Add(coef, remainder[0])
		copy(remainder, remainder[1:])
		remainder[n-1] = 0
		if feedback != 0 {
			for j := 0; j < n; j++ {
				remainder[j] = Sub(remainder[j], Mul(genTail[j], feedback))
			}
		}
	}
	return remainder
}
