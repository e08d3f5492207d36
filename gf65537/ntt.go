package gf65537

import (
	"math/bits"

	"github.com/fecgo/rscodec/ferr"
	"github.com/fecgo/rscodec/flog"
	"github.com/klauspost/cpuid/v2"
)

var nttLog = flog.Default().Module("gf65537.ntt")

func init() {
	// Informational only: nothing below consults these flags. They are
	// logged once at startup so operators can see whether the host could
	// in principle support a vectorized butterfly; an actual SIMD path is
	// not implemented here.
	nttLog.Debug("cpu capability snapshot",
		"avx2", cpuid.CPU.Supports(cpuid.AVX2),
		"bmi2", cpuid.CPU.Supports(cpuid.BMI2),
	)
}

// RootOfUnity returns a primitive n-th root of unity derived from
// primitive, the generator of the full (Modulus-1)-order multiplicative
// group. n must be a power of two dividing Modulus-1 (i.e. n <= 2^16).
func RootOfUnity(primitive Element, n uint32) (Element, error) {
	if n == 0 || n&(n-1) != 0 {
		return 0, ferr.Invalidf("gf65537: transform length %d is not a power of two", n)
	}
	if (Modulus-1)%n != 0 {
		return 0, ferr.Invalidf("gf65537: transform length %d does not divide p-1", n)
	}
	return Pow(primitive, (Modulus-1)/n), nil
}

// rbo reverses the low log2(n) bits of i. n must be a power of two.
func rbo(n uint32, i uint32) uint32 {
	logN := bits.TrailingZeros32(n)
	var r uint32
	for k := 0; k < logN; k++ {
		r = (r << 1) | (i & 1)
		i >>= 1
	}
	return r
}

// Engine holds the precomputed twiddle tables for forward/inverse
// transforms of a fixed power-of-two length n.
type Engine struct {
	n           uint32
	omega       Element
	omegaInv    Element
	nInv        Element
	twiddles    []Element // [omega^0 .. omega^(n/2-1)]
	twiddlesInv []Element // [omegaInv^0 .. omegaInv^(n/2-1)]
}

// NewEngine builds an Engine for transform length n using the given
// primitive n-th root of unity omega (see RootOfUnity).
func NewEngine(n uint32, omega Element) (*Engine, error) {
	if n < 2 || n&(n-1) != 0 {
		return nil, ferr.Invalidf("gf65537: transform length %d is not a power of two >= 2", n)
	}
	omegaInv, err := Inv(omega)
	if err != nil {
		return nil, ferr.Invalidf("gf65537: root of unity must be non-zero")
	}
	nInv, err := Inv(Element(n % Modulus))
	if err != nil {
		return nil, ferr.Invalidf("gf65537: transform length %d is not invertible mod p", n)
	}

	half := n / 2
	tw := make([]Element, half)
	twInv := make([]Element, half)
	acc := Element(1)
	accInv := Element(1)
	for i := uint32(0); i < half; i++ {
		tw[i] = acc
		twInv[i] = accInv
		acc = Mul(acc, omega)
		accInv = Mul(accInv, omegaInv)
	}

	return &Engine{
		n:           n,
		omega:       omega,
		omegaInv:    omegaInv,
		nInv:        nInv,
		twiddles:    tw,
		twiddlesInv: twInv,
	}, nil
}

// N returns the engine's transform length.
func (e *Engine) N() uint32 { return e.n }

// Forward performs the forward NTT in place: natural-in, bit-reversed-out
// (decimation-in-frequency / Gentleman-Sande). len(x) must equal e.N().
func (e *Engine) Forward(x []Element) error {
	if uint32(len(x)) != e.n {
		return ferr.BufferSizef("gf65537: NTT input length %d != %d", len(x), e.n)
	}
	n := e.n
	for length := n; length >= 2; length /= 2 {
		half := length / 2
		step := n / length
		for start := uint32(0); start < n; start += length {
			for j := uint32(0); j < half; j++ {
				u := x[start+j]
				v := x[start+j+half]
				x[start+j] = Add(u, v)
				x[start+j+half] = Mul(Sub(u, v), e.twiddles[j*step])
			}
		}
	}
	return nil
}

// Inverse performs the inverse NTT in place: bit-reversed-in, natural-out
// (decimation-in-time / Cooley-Tukey), followed by scaling by n^-1.
// len(x) must equal e.N().
func (e *Engine) Inverse(x []Element) error {
	if uint32(len(x)) != e.n {
		return ferr.BufferSizef("gf65537: INTT input length %d != %d", len(x), e.n)
	}
	n := e.n
	for length := uint32(2); length <= n; length *= 2 {
		half := length / 2
		step := n / length
		for start := uint32(0); start < n; start += length {
			for j := uint32(0); j < half; j++ {
				u := x[start+j]
				v := Mul(x[start+j+half], e.twiddlesInv[j*step])
				x[start+j] = Add(u, v)
				x[start+j+half] = Sub(u, v)
			}
		}
	}
	for i := range x {
		x[i] = Mul(x[i], e.nInv)
	}
	return nil
}

// BitReversePermute applies the in-place bit-reversal permutation: swaps
// x[i] and x[rbo(n,i)] for every i < rbo(n,i).
func BitReversePermute(x []Element) {
	n := uint32(len(x))
	for i := uint32(0); i < n; i++ {
		j := rbo(n, i)
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
}

// ForwardNatural computes the forward NTT and returns output in natural
// (non-bit-reversed) frequency order, for callers that need explicit
// natural-order coefficients rather than the bit-reversed layout Forward
// produces.
func (e *Engine) ForwardNatural(x []Element) error {
	if err := e.Forward(x); err != nil {
		return err
	}
	BitReversePermute(x)
	return nil
}

// InverseNatural accepts natural-order frequency coefficients, permutes
// them into the bit-reversed order Inverse expects, and inverts in place.
func (e *Engine) InverseNatural(x []Element) error {
	BitReversePermute(x)
	return e.Inverse(x)
}
