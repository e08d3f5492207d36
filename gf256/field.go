// Package gf256 implements GF(2^8) arithmetic parameterized by an
// irreducible polynomial and a primitive element, with precomputed log/exp
// tables for O(1) multiply/divide. Grounded on the host module's
// erasure-coding Galois field (struct-based GaloisField with logTbl/expTbl),
// generalized here to accept a caller-supplied poly1/primitive instead of
// hardcoding 0x11D/2.
package gf256

import "github.com/fecgo/rscodec/ferr"

// DefaultPoly1 is the default irreducible polynomial x^8+x^4+x^3+x^2+1.
const DefaultPoly1 = 0x11d

// DefaultPrimitive is the default primitive element.
const DefaultPrimitive = 2

// fieldOrder is the number of non-zero elements in GF(2^8).
const fieldOrder = 255

// Field holds precomputed GF(2^8) arithmetic tables for a given
// (poly1, primitive) pair. The zero value is not usable; construct with New.
type Field struct {
	poly1     uint16
	primitive byte
	exp       [2 * fieldOrder]byte // doubled to avoid mod after log-sum
	log       [256]int16          // log[0] is unused (sentinel -1)
}

// New builds a Field from an irreducible polynomial (poly1, bit 8 set, i.e.
// in [256,511]) and a primitive element (in [2,255]). It validates that
// primitive generates all 255 non-zero elements under poly1; if it does not,
// ErrInvalidConfig is returned.
func New(poly1 uint16, primitive byte) (*Field, error) {
	if poly1 < 256 || poly1 > 511 {
		return nil, ferr.Invalidf("gf256: poly1 %#x must be a degree-8 polynomial (bit 8 set)", poly1)
	}
	if primitive < 2 {
		return nil, ferr.Invalidf("gf256: primitive %d must be >= 2", primitive)
	}

	f := &Field{poly1: poly1, primitive: primitive}
	for i := range f.log {
		f.log[i] = -1
	}

	x := uint16(1)
	for i := 0; i < fieldOrder; i++ {
		if f.log[x] != -1 {
			return nil, ferr.Invalidf("gf256: primitive %d is not primitive modulo %#x (order %d < %d)", primitive, poly1, i, fieldOrder)
		}
		f.exp[i] = byte(x)
		f.log[x] = int16(i)
		x = carrylessMul(x, uint16(primitive), poly1)
	}
	for i := 0; i < fieldOrder; i++ {
		f.exp[i+fieldOrder] = f.exp[i]
	}
	return f, nil
}

// carrylessMul multiplies a and b as GF(2)[x] polynomials (carryless, XOR
// reduction) and reduces modulo poly1.
func carrylessMul(a, b, poly1 uint16) uint16 {
	var result uint16
	for b != 0 {
		if b&1 != 0 {
			result ^= a
		}
		b >>= 1
		a <<= 1
		if a&0x100 != 0 {
			a ^= poly1
		}
	}
	return result
}

// Poly1 returns the field's irreducible polynomial.
func (f *Field) Poly1() uint16 { return f.poly1 }

// Primitive returns the field's primitive element.
func (f *Field) Primitive() byte { return f.primitive }

// Add returns a+b. In characteristic 2 this is XOR.
func (f *Field) Add(a, b byte) byte { return a ^ b }

// Sub returns a-b. In characteristic 2 this equals Add.
func (f *Field) Sub(a, b byte) byte { return a ^ b }

// Mul returns a*b.
func (f *Field) Mul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return f.exp[int(f.log[a])+int(f.log[b])]
}

// Div returns a/b. Returns ErrDivisionByZero if b is zero.
func (f *Field) Div(a, b byte) (byte, error) {
	if b == 0 {
		return 0, ferr.ErrDivisionByZero
	}
	if a == 0 {
		return 0, nil
	}
	idx := int(f.log[a]) + fieldOrder - int(f.log[b])
	return f.exp[idx], nil
}

// Inv returns the multiplicative inverse of a. Returns ErrDivisionByZero if
// a is zero.
func (f *Field) Inv(a byte) (byte, error) {
	return f.Div(1, a)
}

// Pow returns a^e. By convention 0^0 = 1.
func (f *Field) Pow(a byte, e int) byte {
	if e == 0 {
		return 1
	}
	if a == 0 {
		return 0
	}
	if e < 0 {
		inv, err := f.Inv(a)
		if err != nil {
			return 0
		}
		a = inv
		e = -e
	}
	idx := (int(f.log[a]) * e) % fieldOrder
	if idx < 0 {
		idx += fieldOrder
	}
	return f.exp[idx]
}

// Exp returns primitive^i.
func (f *Field) Exp(i int) byte {
	idx := i % fieldOrder
	if idx < 0 {
		idx += fieldOrder
	}
	return f.exp[idx]
}

// Log returns the discrete logarithm (base primitive) of a. Returns
// ErrDivisionByZero (log is undefined at zero) if a is zero.
func (f *Field) Log(a byte) (int, error) {
	if a == 0 {
		return 0, ferr.ErrDivisionByZero
	}
	return int(f.log[a]), nil
}
