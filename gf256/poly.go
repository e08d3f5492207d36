package gf256

// Polynomials are ascending-degree coefficient slices: index 0 is the
// constant term. This mirrors the host module's polynomial_ops.go
// convention exactly. The RS codec's hot encode/decode paths do not use
// this type directly (see rs256, which works on the wire buffer's own
// natural order); this surface exists for the generic add/sub/mul/divmod/
// mod/eval operations exposed to callers that want to manipulate
// polynomials directly.

// PolyDegree returns the index of the highest non-zero coefficient, or -1
// for the zero polynomial.
func PolyDegree(p []byte) int {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] != 0 {
			return i
		}
	}
	return -1
}

// PolyNormalize trims trailing zero coefficients (high-degree zeros).
func PolyNormalize(p []byte) []byte {
	deg := PolyDegree(p)
	if deg < 0 {
		return []byte{0}
	}
	return p[:deg+1]
}

// PolyAdd returns a+b (XOR, term by term).
func (f *Field) PolyAdd(a, b []byte) []byte {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]byte, n)
	copy(out, a)
	for i, c := range b {
		out[i] = f.Add(out[i], c)
	}
	return out
}

// PolySub returns a-b. Equals PolyAdd in characteristic 2.
func (f *Field) PolySub(a, b []byte) []byte {
	return f.PolyAdd(a, b)
}

// PolyMul returns a*b.
func (f *Field) PolyMul(a, b []byte) []byte {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	out := make([]byte, len(a)+len(b)-1)
	for i, ac := range a {
		if ac == 0 {
			continue
		}
		for j, bc := range b {
			out[i+j] = f.Add(out[i+j], f.Mul(ac, bc))
		}
	}
	return out
}

// PolyScale returns p scaled by a constant.
func (f *Field) PolyScale(p []byte, c byte) []byte {
	out := make([]byte, len(p))
	for i, v := range p {
		out[i] = f.Mul(v, c)
	}
	return out
}

// PolyEval evaluates p at x using Horner's method over ascending-order
// coefficients.
func (f *Field) PolyEval(p []byte, x byte) byte {
	if len(p) == 0 {
		return 0
	}
	result := p[len(p)-1]
	for i := len(p) - 2; i >= 0; i-- {
		result = f.Add(f.Mul(result, x), p[i])
	}
	return result
}

// PolyDivMod divides a by b, returning quotient and remainder, both
// ascending-order. b must be non-zero.
func (f *Field) PolyDivMod(a, b []byte) (quotient, remainder []byte) {
	bDeg := PolyDegree(b)
	if bDeg < 0 {
		return nil, nil
	}
	aDeg := PolyDegree(a)
	if aDeg < bDeg {
		return []byte{0}, append([]byte(nil), a...)
	}

	rem := make([]byte, len(a))
	copy(rem, a)
	quot := make([]byte, aDeg-bDeg+1)
	bLead := b[bDeg]

	for i := aDeg; i >= bDeg; i-- {
		if rem[i] == 0 {
			continue
		}
		coeff, _ := f.Div(rem[i], bLead)
		quot[i-bDeg] = coeff
		for j := 0; j <= bDeg; j++ {
			rem[i-bDeg+j] = f.Add(rem[i-bDeg+j], f.Mul(coeff, b[j]))
		}
	}
	return quot, PolyNormalize(rem[:bDeg+1])
}

// PolyMod returns a mod b.
func (f *Field) PolyMod(a, b []byte) []byte {
	_, rem := f.PolyDivMod(a, b)
	return rem
}

// PolyModXN computes (msg . x^n) mod (x^n || genTail) via extended synthetic
// division (the LFSR/shift-register form used by CRC and QR-code ECC
// generation). msg is processed high-end first (descending index, i.e.
// treated as a fixed-size buffer rather than an ascending Poly),
// accumulating into a rolling remainder of length n = len(genTail). genTail
// is the generator polynomial with its leading 1 coefficient removed, in
// descending (buffer-natural, high-degree-first) order to match msg's own
// order.
func (f *Field) PolyModXN(msg []byte, genTail []byte) []byte {
	n := len(genTail)
	remainder := make([]byte, n)
	for _, coef := range msg {
		feedback := f.Add(coef, remainder[0])
		copy(remainder, remainder[1:])
		remainder[n-1] = 0
		if feedback != 0 {
			for j := 0; j < n; j++ {
				remainder[j] = f.Add(remainder[j], f.Mul(genTail[j], feedback))
			}
		}
	}
	return remainder
}
