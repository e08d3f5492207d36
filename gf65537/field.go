// Package gf65537 implements arithmetic over the Fermat prime field
// GF(65537) = F_{2^16+1}, with fast modular reduction exploiting
// 2^16 ≡ -1 (mod p), and the radix-2 NTT used by the transform-domain RS
// codec. Grounded in structure (fast-reduction mod-prime FieldElement,
// power-of-two root-of-unity tables, Cooley-Tukey/Gentleman-Sande butterfly
// shape) on the host module's BLS12-381 scalar field type
// (pkg/das/field.go) and its NTT precompile (pkg/core/vm/precompile_ntt.go),
// re-specialized from big.Int arithmetic to native uint32 arithmetic since
// GF(65537) fits comfortably in machine words.
package gf65537

import "github.com/fecgo/rscodec/ferr"

// Modulus is the Fermat prime 2^16 + 1.
const Modulus uint32 = 65537

// DefaultPrimitive is the default primitive root of the multiplicative
// group (order 65536).
const DefaultPrimitive Element = 3

// MaxLog2N is the largest k such that 2^k divides Modulus-1 (=2^16), i.e.
// the largest supported power-of-two transform length is 2^16.
const MaxLog2N = 16

// Element is a field element in [0, Modulus).
type Element uint32

// reduce performs the fast Mersenne-Fermat reduction of a 32-bit product
// using 2^16 ≡ -1 (mod p): for product = hi*2^16 + lo, product ≡ lo - hi.
func reduce(product uint64) Element {
	hi := uint32(product >> 16)
	lo := uint32(product & 0xFFFF)
	v := int64(lo) - int64(hi)
	v %= int64(Modulus)
	if v < 0 {
		v += int64(Modulus)
	}
	return Element(v)
}

// Add returns a+b mod p.
func Add(a, b Element) Element {
	v := uint32(a) + uint32(b)
	if v >= Modulus {
		v -= Modulus
	}
	return Element(v)
}

// Sub returns a-b mod p.
func Sub(a, b Element) Element {
	if a >= b {
		return Element(uint32(a) - uint32(b))
	}
	return Element(Modulus - uint32(b) + uint32(a))
}

// Neg returns -a mod p.
func Neg(a Element) Element {
	if a == 0 {
		return 0
	}
	return Element(Modulus) - a
}

// Mul returns a*b mod p using fast Mersenne-Fermat reduction.
func Mul(a, b Element) Element {
	return reduce(uint64(a) * uint64(b))
}

// Pow returns a^e mod p by square-and-multiply. By convention 0^0 = 1.
func Pow(a Element, e uint32) Element {
	result := Element(1)
	base := a
	for e > 0 {
		if e&1 == 1 {
			result = Mul(result, base)
		}
		base = Mul(base, base)
		e >>= 1
	}
	return result
}

// Inv returns the multiplicative inverse of a via Fermat's little theorem
// (a^(p-2)). Returns ErrDivisionByZero if a is zero.
func Inv(a Element) (Element, error) {
	if a == 0 {
		return 0, ferr.ErrDivisionByZero
	}
	return Pow(a, Modulus-2), nil
}

// Div returns a/b mod p. Returns ErrDivisionByZero if b is zero.
func Div(a, b Element) (Element, error) {
	inv, err := Inv(b)
	if err != nil {
		return 0, err
	}
	return Mul(a, inv), nil
}

// FromUint16 wraps a 16-bit payload value. Payload values are always in
// [0, 65535] by construction; 65536 is representable in Element but must
// never appear in user-visible payload positions.
func FromUint16(v uint16) Element {
	return Element(v)
}

// ToUint16 converts a payload element back to its 16-bit wire
// representation. Returns ErrInputRange if the value is 65536, which must
// never occur in payload positions.
func ToUint16(e Element) (uint16, error) {
	if e >= 65536 {
		return 0, ferr.InputRangef("gf65537: value %d not representable in 16-bit payload", e)
	}
	return uint16(e), nil
}
